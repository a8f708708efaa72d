package metadata

import (
	"fmt"
	"sort"
	"time"
)

// ScreenType selects which type-specific attributes of a Screen are meaningful.
type ScreenType string

const (
	ScreenStandard  ScreenType = "standard"
	ScreenSignatory ScreenType = "signatory"
	ScreenDynamic   ScreenType = "dynamic"
)

// ParseScreenType validates s; the empty string defaults to standard.
func ParseScreenType(s string) (ScreenType, error) {
	if s == "" {
		return ScreenStandard, nil
	}
	t := ScreenType(s)
	switch t {
	case ScreenStandard, ScreenSignatory, ScreenDynamic:
		return t, nil
	}
	return "", fmt.Errorf("unknown screen type %q", s)
}

type Template struct {
	ID             string    `json:"id"`
	OrganizationID *string   `json:"organization_id"`
	Slug           string    `json:"slug"`
	Title          string    `json:"title"`
	Description    string    `json:"description"`
	Available      bool      `json:"available"`
	HasPreview     bool      `json:"has_preview_token"`
	Screens        []*Screen `json:"screens,omitempty"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
}

// IsGlobal reports whether the template is public (not owned by an organization).
func (t *Template) IsGlobal() bool {
	return t.OrganizationID == nil || *t.OrganizationID == ""
}

// BelongsTo reports whether the template is owned by orgID.
func (t *Template) BelongsTo(orgID string) bool {
	return t.OrganizationID != nil && *t.OrganizationID == orgID
}

// FindField returns the first field named name across all screens in
// order. Names are unique per screen only, so a later screen's field with
// the same name is shadowed.
func (t *Template) FindField(name string) (*Field, *Screen) {
	for _, s := range t.Screens {
		for _, f := range s.Fields {
			if f.Name == name {
				return f, s
			}
		}
	}
	return nil, nil
}

// SortScreens orders screens and their fields by order. The sort is
// stable so equal order values keep load (insertion) order.
func (t *Template) SortScreens() {
	sort.SliceStable(t.Screens, func(i, j int) bool {
		return t.Screens[i].Order < t.Screens[j].Order
	})
	for _, s := range t.Screens {
		s.SortFields()
	}
}

type Screen struct {
	ID              string           `json:"id"`
	TemplateID      string           `json:"template_id"`
	Title           string           `json:"title"`
	Description     *string          `json:"description,omitempty"`
	Type            ScreenType       `json:"type"`
	Order           int              `json:"order"`
	AIPrompt        *string          `json:"ai_prompt,omitempty"`
	AIOutputSchema  *string          `json:"ai_output_schema,omitempty"`
	SignatoryConfig *SignatoryConfig `json:"signatory_config,omitempty"`
	Condition       *string          `json:"condition,omitempty"`
	ApplyStandards  bool             `json:"apply_standards"`
	Fields          []*Field         `json:"fields,omitempty"`
}

func (s *Screen) SortFields() {
	sort.SliceStable(s.Fields, func(i, j int) bool {
		return s.Fields[i].Order < s.Fields[j].Order
	})
}

// GetField returns the field with the given name on this screen, or nil.
func (s *Screen) GetField(name string) *Field {
	for _, f := range s.Fields {
		if f.Name == name {
			return f
		}
	}
	return nil
}

// NormalizeTypeAttributes clears attributes that the screen's type ignores.
func (s *Screen) NormalizeTypeAttributes() {
	switch s.Type {
	case ScreenStandard:
		s.AIPrompt = nil
		s.AIOutputSchema = nil
		s.SignatoryConfig = nil
	case ScreenSignatory:
		s.AIPrompt = nil
		s.AIOutputSchema = nil
	case ScreenDynamic:
		s.SignatoryConfig = nil
	}
}

// EffectiveSignatoryConfig returns the screen's signatory config, or the
// default one when none is configured.
func (s *Screen) EffectiveSignatoryConfig() *SignatoryConfig {
	if s != nil && s.SignatoryConfig != nil {
		return s.SignatoryConfig
	}
	return DefaultSignatoryConfig()
}
