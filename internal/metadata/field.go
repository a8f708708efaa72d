package metadata

import "fmt"

// FieldType is the closed set of input kinds a Field can have.
type FieldType string

const (
	FieldText        FieldType = "text"
	FieldEmail       FieldType = "email"
	FieldDate        FieldType = "date"
	FieldNumber      FieldType = "number"
	FieldCheckbox    FieldType = "checkbox"
	FieldSelect      FieldType = "select"
	FieldMultiselect FieldType = "multiselect"
	FieldTextarea    FieldType = "textarea"
	FieldPhone       FieldType = "phone"
	FieldAddress     FieldType = "address"
	FieldParty       FieldType = "party"
	FieldCurrency    FieldType = "currency"
	FieldPercentage  FieldType = "percentage"
	FieldURL         FieldType = "url"
)

// FieldTypes lists every FieldType in declaration order.
var FieldTypes = []FieldType{
	FieldText, FieldEmail, FieldDate, FieldNumber, FieldCheckbox, FieldSelect,
	FieldMultiselect, FieldTextarea, FieldPhone, FieldAddress, FieldParty,
	FieldCurrency, FieldPercentage, FieldURL,
}

// ParseFieldType validates s against the closed FieldType set.
func ParseFieldType(s string) (FieldType, error) {
	t := FieldType(s)
	switch t {
	case FieldText, FieldEmail, FieldDate, FieldNumber, FieldCheckbox, FieldSelect,
		FieldMultiselect, FieldTextarea, FieldPhone, FieldAddress, FieldParty,
		FieldCurrency, FieldPercentage, FieldURL:
		return t, nil
	}
	return "", fmt.Errorf("unknown field type %q", s)
}

// HasOptions reports whether the type draws its values from Field.Options.
func (t FieldType) HasOptions() bool {
	switch t {
	case FieldSelect, FieldMultiselect:
		return true
	case FieldText, FieldEmail, FieldDate, FieldNumber, FieldCheckbox, FieldTextarea,
		FieldPhone, FieldAddress, FieldParty, FieldCurrency, FieldPercentage, FieldURL:
		return false
	}
	return false
}

// Translations binds display strings to i18n keys. Resolution happens in
// the presentation layer.
type Translations struct {
	LabelKey       string `json:"label_key,omitempty" yaml:"label_key,omitempty"`
	PlaceholderKey string `json:"placeholder_key,omitempty" yaml:"placeholder_key,omitempty"`
	HelpTextKey    string `json:"help_text_key,omitempty" yaml:"help_text_key,omitempty"`
}

type Field struct {
	ID                  string        `json:"id"`
	ScreenID            string        `json:"screen_id"`
	Name                string        `json:"name"`
	Label               string        `json:"label"`
	Type                FieldType     `json:"type"`
	Required            bool          `json:"required"`
	Placeholder         *string       `json:"placeholder,omitempty"`
	HelpText            *string       `json:"help_text,omitempty"`
	Options             []string      `json:"options,omitempty"`
	Order               int           `json:"order"`
	AISuggestionEnabled bool          `json:"ai_suggestion_enabled"`
	AISuggestionKey     string        `json:"ai_suggestion_key,omitempty"`
	Condition           *string       `json:"condition,omitempty"`
	Translations        *Translations `json:"translations,omitempty"`
}

// AdditionalSignatoriesField is the name of the repeating signatory field.
const AdditionalSignatoriesField = "additionalSignatories"

// IsSignatoryList reports whether the field holds a list of signatory
// entries rather than a scalar value.
func (f *Field) IsSignatoryList() bool {
	return f.Name == AdditionalSignatoriesField || f.Type == FieldParty
}
