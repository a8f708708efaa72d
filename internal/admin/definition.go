package admin

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/tidwall/jsonc"
	"gopkg.in/yaml.v3"

	"lexform-backend/internal/engine"
	"lexform-backend/internal/metadata"
	"lexform-backend/internal/store"
)

// TemplateDefinition is the file form of a template with its screens and
// fields in order. Files are YAML or JSON with comments.
type TemplateDefinition struct {
	Slug        string             `yaml:"slug" json:"slug"`
	Title       string             `yaml:"title" json:"title"`
	Description string             `yaml:"description,omitempty" json:"description,omitempty"`
	Available   bool               `yaml:"available" json:"available"`
	Screens     []ScreenDefinition `yaml:"screens" json:"screens"`
}

type ScreenDefinition struct {
	Title          string `yaml:"title" json:"title"`
	Description    string `yaml:"description,omitempty" json:"description,omitempty"`
	Type           string `yaml:"type,omitempty" json:"type,omitempty"`
	AIPrompt       string `yaml:"ai_prompt,omitempty" json:"ai_prompt,omitempty"`
	AIOutputSchema string `yaml:"ai_output_schema,omitempty" json:"ai_output_schema,omitempty"`
	Condition      string `yaml:"condition,omitempty" json:"condition,omitempty"`
	ApplyStandards bool   `yaml:"apply_standards,omitempty" json:"apply_standards,omitempty"`

	SignatoryConfig *metadata.SignatoryConfig `yaml:"signatory_config,omitempty" json:"signatory_config,omitempty"`
	Fields          []FieldDefinition         `yaml:"fields" json:"fields"`
}

type FieldDefinition struct {
	Name                string                 `yaml:"name" json:"name"`
	Label               string                 `yaml:"label" json:"label"`
	Type                string                 `yaml:"type" json:"type"`
	Required            bool                   `yaml:"required,omitempty" json:"required,omitempty"`
	Placeholder         string                 `yaml:"placeholder,omitempty" json:"placeholder,omitempty"`
	HelpText            string                 `yaml:"help_text,omitempty" json:"help_text,omitempty"`
	Options             []string               `yaml:"options,omitempty" json:"options,omitempty"`
	AISuggestionEnabled bool                   `yaml:"ai_suggestion_enabled,omitempty" json:"ai_suggestion_enabled,omitempty"`
	AISuggestionKey     string                 `yaml:"ai_suggestion_key,omitempty" json:"ai_suggestion_key,omitempty"`
	Condition           string                 `yaml:"condition,omitempty" json:"condition,omitempty"`
	Translations        *metadata.Translations `yaml:"translations,omitempty" json:"translations,omitempty"`
}

// ParseDefinition decodes data by file extension: .yaml/.yml as YAML,
// .json/.jsonc as JSON with comments and trailing commas allowed.
func ParseDefinition(filename string, data []byte) (*TemplateDefinition, error) {
	var def TemplateDefinition
	switch strings.ToLower(filepath.Ext(filename)) {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, &def); err != nil {
			return nil, fmt.Errorf("parsing %s: %w", filename, err)
		}
	case ".json", ".jsonc":
		if err := json.Unmarshal(jsonc.ToJSON(data), &def); err != nil {
			return nil, fmt.Errorf("parsing %s: %w", filename, err)
		}
	default:
		return nil, fmt.Errorf("%s: unsupported extension (want .yaml, .yml, .json or .jsonc)", filename)
	}
	return &def, nil
}

// ReadDefinition reads and parses a definition file.
func ReadDefinition(path string) (*TemplateDefinition, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}
	return ParseDefinition(path, data)
}

// Build converts the definition into a template tree and checks it with
// the same rules the admin operations apply, without a database. Orders
// follow list position.
func (d *TemplateDefinition) Build() (*metadata.Template, error) {
	t := &metadata.Template{Slug: d.Slug, Title: strings.TrimSpace(d.Title), Description: d.Description, Available: d.Available}
	if err := validateTemplate(t); err != nil {
		return nil, err
	}
	for i, sd := range d.Screens {
		sc := &metadata.Screen{Type: metadata.ScreenStandard, Order: i}
		in := ScreenInput{
			Title: &sd.Title, Description: &sd.Description, Type: &sd.Type,
			AIPrompt: &sd.AIPrompt, AIOutputSchema: &sd.AIOutputSchema,
			Condition: &sd.Condition, ApplyStandards: &sd.ApplyStandards,
			SignatoryConfig: sd.SignatoryConfig,
		}
		if err := applyScreenInput(sc, in); err != nil {
			return nil, prefixed(fmt.Sprintf("screens[%d]", i), err)
		}

		names := make(map[string]bool, len(sd.Fields))
		for j, fd := range sd.Fields {
			f := &metadata.Field{Order: j}
			fin := FieldInput{
				Name: &fd.Name, Label: &fd.Label, Type: &fd.Type, Required: &fd.Required,
				Placeholder: &fd.Placeholder, HelpText: &fd.HelpText, Options: fd.Options,
				AISuggestionEnabled: &fd.AISuggestionEnabled, AISuggestionKey: &fd.AISuggestionKey,
				Condition: &fd.Condition, Translations: fd.Translations,
			}
			if err := applyFieldInput(f, fin); err != nil {
				return nil, prefixed(fmt.Sprintf("screens[%d].fields[%d]", i, j), err)
			}
			if names[f.Name] {
				return nil, engine.DuplicateNameError(fmt.Sprintf("screens[%d]: field %q is defined twice", i, f.Name))
			}
			names[f.Name] = true
			sc.Fields = append(sc.Fields, f)
		}
		t.Screens = append(t.Screens, sc)
	}
	return t, nil
}

// prefixed qualifies validation details with the definition path.
func prefixed(path string, err error) error {
	var appErr *engine.AppError
	if !errors.As(err, &appErr) {
		return fmt.Errorf("%s: %w", path, err)
	}
	out := *appErr
	out.Details = make([]engine.ErrorDetail, len(appErr.Details))
	for i, d := range appErr.Details {
		d.Field = path + "." + d.Field
		out.Details[i] = d
	}
	return &out
}

// Import creates the template described by def, with all screens and
// fields, in a single transaction.
func (s *Service) Import(ctx context.Context, user *metadata.UserContext, orgID string, def *TemplateDefinition) (*metadata.Template, error) {
	if err := authorize(user, orgID); err != nil {
		return nil, err
	}
	t, err := def.Build()
	if err != nil {
		return nil, err
	}
	if orgID != "" {
		t.OrganizationID = &orgID
	}
	err = s.run(ctx, user, orgID, "template.import", func(ctx context.Context, r *store.Repo) (string, error) {
		if err := checkOrgLimit(ctx, r, orgID); err != nil {
			return "", err
		}
		if err := checkSlug(ctx, r, orgID, t.Slug, ""); err != nil {
			return "", err
		}
		if err := r.InsertTemplate(ctx, t); err != nil {
			return "", err
		}
		for _, sc := range t.Screens {
			sc.TemplateID = t.ID
			if err := r.InsertScreen(ctx, sc); err != nil {
				return "", err
			}
			for _, f := range sc.Fields {
				f.ScreenID = sc.ID
				if err := r.InsertField(ctx, f); err != nil {
					return "", err
				}
			}
		}
		return t.ID, nil
	})
	if err != nil {
		return nil, err
	}
	return t, nil
}

// Export returns the definition of the template with slug in the scope.
func (s *Service) Export(ctx context.Context, user *metadata.UserContext, orgID, slug string) (*TemplateDefinition, error) {
	if err := authorize(user, orgID); err != nil {
		return nil, err
	}
	r := s.store.Repo()
	t, err := r.GetTemplateBySlug(ctx, orgID, slug)
	if err != nil {
		return nil, engine.MapStoreError(err, "template", slug)
	}
	tree, err := r.LoadTemplateTree(ctx, t.ID)
	if err != nil {
		return nil, engine.MapStoreError(err, "template", slug)
	}
	return DefinitionOf(tree), nil
}

// DefinitionOf converts a loaded template tree into its file form.
func DefinitionOf(t *metadata.Template) *TemplateDefinition {
	def := &TemplateDefinition{Slug: t.Slug, Title: t.Title, Description: t.Description, Available: t.Available}
	for _, sc := range t.Screens {
		sd := ScreenDefinition{
			Title:          sc.Title,
			Description:    deref(sc.Description),
			Type:           string(sc.Type),
			AIPrompt:       deref(sc.AIPrompt),
			AIOutputSchema: deref(sc.AIOutputSchema),
			Condition:      deref(sc.Condition),
			ApplyStandards: sc.ApplyStandards,

			SignatoryConfig: sc.SignatoryConfig,
		}
		for _, f := range sc.Fields {
			sd.Fields = append(sd.Fields, FieldDefinition{
				Name:                f.Name,
				Label:               f.Label,
				Type:                string(f.Type),
				Required:            f.Required,
				Placeholder:         deref(f.Placeholder),
				HelpText:            deref(f.HelpText),
				Options:             f.Options,
				AISuggestionEnabled: f.AISuggestionEnabled,
				AISuggestionKey:     f.AISuggestionKey,
				Condition:           deref(f.Condition),
				Translations:        f.Translations,
			})
		}
		def.Screens = append(def.Screens, sd)
	}
	return def
}

// YAML renders the definition as a YAML document.
func (d *TemplateDefinition) YAML() ([]byte, error) {
	return yaml.Marshal(d)
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
