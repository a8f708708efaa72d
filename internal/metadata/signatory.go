package metadata

// SignatoryConfig configures the repeating signatory field on a signatory screen.
type SignatoryConfig struct {
	PartyTypes           []PartyTypeOption    `json:"party_types,omitempty" yaml:"party_types,omitempty"`
	AllowCustomPartyType bool                 `json:"allow_custom_party_type" yaml:"allow_custom_party_type"`
	MinSignatories       int                  `json:"min_signatories" yaml:"min_signatories"`
	MaxSignatories       int                  `json:"max_signatories" yaml:"max_signatories"`
	RequiredPartyTypes   []string             `json:"required_party_types,omitempty" yaml:"required_party_types,omitempty"`
	Collect              CollectFields        `json:"collect" yaml:"collect"`
	CustomFields         []SignatoryFieldSpec `json:"custom_fields,omitempty" yaml:"custom_fields,omitempty"`
}

type PartyTypeOption struct {
	Value string `json:"value" yaml:"value"`
	Label string `json:"label" yaml:"label"`
}

// CollectFields toggles the optional contact attributes of an entry.
type CollectFields struct {
	Title   bool `json:"title" yaml:"title"`
	Phone   bool `json:"phone" yaml:"phone"`
	Company bool `json:"company" yaml:"company"`
	Address bool `json:"address" yaml:"address"`
}

type SignatoryFieldSpec struct {
	Key        string               `json:"key" yaml:"key"`
	Label      string               `json:"label" yaml:"label"`
	Required   bool                 `json:"required" yaml:"required"`
	Validation *SignatoryFieldCheck `json:"validation,omitempty" yaml:"validation,omitempty"`
}

type SignatoryFieldCheck struct {
	Pattern string `json:"pattern,omitempty" yaml:"pattern,omitempty"`
	Message string `json:"message,omitempty" yaml:"message,omitempty"`
}

// DefaultSignatoryConfig is used for signatory fields on screens with no config.
func DefaultSignatoryConfig() *SignatoryConfig {
	return &SignatoryConfig{
		PartyTypes: []PartyTypeOption{
			{Value: "employer", Label: "Employer"},
			{Value: "employee", Label: "Employee"},
			{Value: "witness", Label: "Witness"},
			{Value: "other", Label: "Other"},
		},
		AllowCustomPartyType: true,
		MinSignatories:       0,
		MaxSignatories:       10,
		Collect:              CollectFields{Title: true, Phone: true},
	}
}

// HasPartyType reports whether value is one of the configured party types.
func (c *SignatoryConfig) HasPartyType(value string) bool {
	for _, p := range c.PartyTypes {
		if p.Value == value {
			return true
		}
	}
	return false
}

// PartyLabel returns the display label for a party type value.
func (c *SignatoryConfig) PartyLabel(value string) string {
	for _, p := range c.PartyTypes {
		if p.Value == value && p.Label != "" {
			return p.Label
		}
	}
	return value
}

// SignatoryEntry is one party in a signatory list value.
type SignatoryEntry struct {
	ID           string            `json:"id"`
	PartyType    string            `json:"partyType"`
	Name         string            `json:"name"`
	Email        string            `json:"email"`
	Title        string            `json:"title,omitempty"`
	Phone        string            `json:"phone,omitempty"`
	Company      string            `json:"company,omitempty"`
	Address      string            `json:"address,omitempty"`
	CustomFields map[string]string `json:"customFields,omitempty"`
}
