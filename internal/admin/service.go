package admin

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"lexform-backend/internal/engine"
	"lexform-backend/internal/instrument"
	"lexform-backend/internal/metadata"
	"lexform-backend/internal/store"
)

var (
	slugPattern      = regexp.MustCompile(`^[a-z0-9]+(?:-[a-z0-9]+)*$`)
	fieldNamePattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)
)

// Service implements template, screen and field administration. Every
// operation takes the scope it runs in: an empty orgID is the platform
// scope (public templates), otherwise the organization that owns the
// templates being edited.
type Service struct {
	store    *store.Store
	registry *metadata.Registry
}

func NewService(s *store.Store, reg *metadata.Registry) *Service {
	return &Service{store: s, registry: reg}
}

// TemplateInput carries create and partial-update attributes. Nil pointers
// leave the attribute unchanged.
type TemplateInput struct {
	Slug        *string `json:"slug"`
	Title       *string `json:"title"`
	Description *string `json:"description"`
	Available   *bool   `json:"available"`
}

// ScreenInput carries create and partial-update attributes. Empty strings
// clear optional text attributes.
type ScreenInput struct {
	Title           *string                   `json:"title"`
	Description     *string                   `json:"description"`
	Type            *string                   `json:"type"`
	Order           *int                      `json:"order"`
	AIPrompt        *string                   `json:"ai_prompt"`
	AIOutputSchema  *string                   `json:"ai_output_schema"`
	SignatoryConfig *metadata.SignatoryConfig `json:"signatory_config"`
	Condition       *string                   `json:"condition"`
	ApplyStandards  *bool                     `json:"apply_standards"`
}

// FieldInput carries create and partial-update attributes. A ScreenID
// different from the field's current screen moves the field.
type FieldInput struct {
	ScreenID            *string                `json:"screen_id"`
	Name                *string                `json:"name"`
	Label               *string                `json:"label"`
	Type                *string                `json:"type"`
	Required            *bool                  `json:"required"`
	Placeholder         *string                `json:"placeholder"`
	HelpText            *string                `json:"help_text"`
	Options             []string               `json:"options"`
	Order               *int                   `json:"order"`
	AISuggestionEnabled *bool                  `json:"ai_suggestion_enabled"`
	AISuggestionKey     *string                `json:"ai_suggestion_key"`
	Condition           *string                `json:"condition"`
	Translations        *metadata.Translations `json:"translations"`
}

func authorize(user *metadata.UserContext, orgID string) error {
	if orgID == "" {
		if user.CanEditGlobal() {
			return nil
		}
		return engine.ForbiddenError("Admin or editor role required")
	}
	if user.IsAdmin() || user.CanManageTemplates(orgID) {
		return nil
	}
	return engine.ForbiddenError("Template management permission required for this organization")
}

// run authorizes the caller, then executes fn in one transaction inside an
// admin span. fn returns the id of the template it touched so the cached
// copy can be dropped once the transaction commits.
func (s *Service) run(ctx context.Context, user *metadata.UserContext, orgID, action string,
	fn func(ctx context.Context, r *store.Repo) (string, error)) error {
	if err := authorize(user, orgID); err != nil {
		return err
	}

	ctx, span := instrument.GetInstrumenter(ctx).StartSpan(ctx, "admin", "template", action)
	defer span.End()
	if orgID != "" {
		span.SetMetadata("org_id", orgID)
	}

	var templateID string
	err := s.store.WithTx(ctx, func(r *store.Repo) error {
		id, err := fn(ctx, r)
		templateID = id
		return err
	})
	if err != nil {
		span.Fail(err)
		return engine.MapStoreError(err, "record", "")
	}
	span.SetEntity(instrument.EntityTemplate, templateID)
	span.SetStatus("ok")
	if s.registry != nil && templateID != "" {
		s.registry.Invalidate(templateID)
	}
	return nil
}

func (s *Service) loadTemplate(ctx context.Context, r *store.Repo, orgID, id string) (*metadata.Template, error) {
	t, err := r.GetTemplate(ctx, id)
	if err != nil {
		return nil, engine.MapStoreError(err, "template", id)
	}
	if (orgID == "" && !t.IsGlobal()) || (orgID != "" && !t.BelongsTo(orgID)) {
		return nil, engine.NotFoundError("template", id)
	}
	return t, nil
}

func (s *Service) loadScreen(ctx context.Context, r *store.Repo, orgID, id string) (*metadata.Screen, error) {
	sc, err := r.GetScreen(ctx, id)
	if err != nil {
		return nil, engine.MapStoreError(err, "screen", id)
	}
	if _, err := s.loadTemplate(ctx, r, orgID, sc.TemplateID); err != nil {
		if engine.IsCode(err, "NOT_FOUND") {
			return nil, engine.NotFoundError("screen", id)
		}
		return nil, err
	}
	return sc, nil
}

func (s *Service) loadField(ctx context.Context, r *store.Repo, orgID, id string) (*metadata.Field, *metadata.Screen, error) {
	f, err := r.GetField(ctx, id)
	if err != nil {
		return nil, nil, engine.MapStoreError(err, "field", id)
	}
	sc, err := s.loadScreen(ctx, r, orgID, f.ScreenID)
	if err != nil {
		if engine.IsCode(err, "NOT_FOUND") {
			return nil, nil, engine.NotFoundError("field", id)
		}
		return nil, nil, err
	}
	return f, sc, nil
}

// --- Templates ---

func (s *Service) ListTemplates(ctx context.Context, user *metadata.UserContext, orgID string) ([]*metadata.Template, error) {
	if err := authorize(user, orgID); err != nil {
		return nil, err
	}
	list, err := s.store.Repo().ListTemplates(ctx, store.TemplateFilter{OrgID: orgID})
	if err != nil {
		return nil, err
	}
	if list == nil {
		list = []*metadata.Template{}
	}
	return list, nil
}

// GetTemplate returns the template with its screens and fields.
func (s *Service) GetTemplate(ctx context.Context, user *metadata.UserContext, orgID, id string) (*metadata.Template, error) {
	if err := authorize(user, orgID); err != nil {
		return nil, err
	}
	r := s.store.Repo()
	if _, err := s.loadTemplate(ctx, r, orgID, id); err != nil {
		return nil, err
	}
	t, err := r.LoadTemplateTree(ctx, id)
	if err != nil {
		return nil, engine.MapStoreError(err, "template", id)
	}
	return t, nil
}

func (s *Service) CreateTemplate(ctx context.Context, user *metadata.UserContext, orgID string, in TemplateInput) (*metadata.Template, error) {
	t := &metadata.Template{}
	if orgID != "" {
		t.OrganizationID = &orgID
	}
	applyTemplateInput(t, in)

	err := s.run(ctx, user, orgID, "template.create", func(ctx context.Context, r *store.Repo) (string, error) {
		if err := validateTemplate(t); err != nil {
			return "", err
		}
		if err := checkOrgLimit(ctx, r, orgID); err != nil {
			return "", err
		}
		if err := checkSlug(ctx, r, orgID, t.Slug, ""); err != nil {
			return "", err
		}
		if err := r.InsertTemplate(ctx, t); err != nil {
			return "", err
		}
		return t.ID, nil
	})
	if err != nil {
		return nil, err
	}
	return t, nil
}

func (s *Service) UpdateTemplate(ctx context.Context, user *metadata.UserContext, orgID, id string, in TemplateInput) (*metadata.Template, error) {
	var out *metadata.Template
	err := s.run(ctx, user, orgID, "template.update", func(ctx context.Context, r *store.Repo) (string, error) {
		t, err := s.loadTemplate(ctx, r, orgID, id)
		if err != nil {
			return "", err
		}
		applyTemplateInput(t, in)
		if err := validateTemplate(t); err != nil {
			return "", err
		}
		if in.Slug != nil {
			if err := checkSlug(ctx, r, orgID, t.Slug, t.ID); err != nil {
				return "", err
			}
		}
		if err := r.UpdateTemplate(ctx, t); err != nil {
			return "", err
		}
		out = t
		return t.ID, nil
	})
	return out, err
}

// DeleteTemplate removes the template with its screens and fields.
func (s *Service) DeleteTemplate(ctx context.Context, user *metadata.UserContext, orgID, id string) error {
	return s.run(ctx, user, orgID, "template.delete", func(ctx context.Context, r *store.Repo) (string, error) {
		if _, err := s.loadTemplate(ctx, r, orgID, id); err != nil {
			return "", err
		}
		return id, engine.MapStoreError(r.DeleteTemplate(ctx, id), "template", id)
	})
}

// IssuePreviewToken replaces the template's preview token. The plain token
// is only ever returned here.
func (s *Service) IssuePreviewToken(ctx context.Context, user *metadata.UserContext, orgID, id string) (string, error) {
	token, hash, err := engine.NewPreviewToken()
	if err != nil {
		return "", err
	}
	err = s.run(ctx, user, orgID, "template.preview_token", func(ctx context.Context, r *store.Repo) (string, error) {
		if _, err := s.loadTemplate(ctx, r, orgID, id); err != nil {
			return "", err
		}
		return id, r.SetPreviewTokenHash(ctx, id, &hash)
	})
	if err != nil {
		return "", err
	}
	return token, nil
}

func (s *Service) RevokePreviewToken(ctx context.Context, user *metadata.UserContext, orgID, id string) error {
	return s.run(ctx, user, orgID, "template.preview_token_revoke", func(ctx context.Context, r *store.Repo) (string, error) {
		if _, err := s.loadTemplate(ctx, r, orgID, id); err != nil {
			return "", err
		}
		return id, r.SetPreviewTokenHash(ctx, id, nil)
	})
}

func applyTemplateInput(t *metadata.Template, in TemplateInput) {
	if in.Slug != nil {
		t.Slug = strings.TrimSpace(*in.Slug)
	}
	if in.Title != nil {
		t.Title = strings.TrimSpace(*in.Title)
	}
	if in.Description != nil {
		t.Description = *in.Description
	}
	if in.Available != nil {
		t.Available = *in.Available
	}
}

func validateTemplate(t *metadata.Template) error {
	var details []engine.ErrorDetail
	if t.Title == "" {
		details = append(details, engine.ErrorDetail{Field: "title", Rule: "required", Message: "title is required"})
	}
	if !slugPattern.MatchString(t.Slug) {
		details = append(details, engine.ErrorDetail{Field: "slug", Rule: "format",
			Message: "slug must be lowercase letters, digits and single hyphens"})
	}
	if len(details) > 0 {
		return engine.ValidationError(details)
	}
	return nil
}

// checkOrgLimit enforces the organization's max_templates. Zero means
// unlimited; the platform scope has no limit.
func checkOrgLimit(ctx context.Context, r *store.Repo, orgID string) error {
	if orgID == "" {
		return nil
	}
	org, err := r.GetOrganization(ctx, orgID)
	if err != nil {
		return engine.MapStoreError(err, "organization", orgID)
	}
	if org.MaxTemplates <= 0 {
		return nil
	}
	n, err := r.CountOrgTemplates(ctx, orgID)
	if err != nil {
		return err
	}
	if n >= org.MaxTemplates {
		return engine.LimitExceededError(fmt.Sprintf("Organization template limit of %d reached", org.MaxTemplates))
	}
	return nil
}

func checkSlug(ctx context.Context, r *store.Repo, orgID, slug, excludeID string) error {
	taken, err := r.SlugExists(ctx, orgID, slug, excludeID)
	if err != nil {
		return err
	}
	if taken {
		return engine.DuplicateNameError(fmt.Sprintf("A template with slug %q already exists", slug))
	}
	return nil
}

// --- Screens ---

func (s *Service) CreateScreen(ctx context.Context, user *metadata.UserContext, orgID, templateID string, in ScreenInput) (*metadata.Screen, error) {
	sc := &metadata.Screen{TemplateID: templateID, Type: metadata.ScreenStandard}
	err := s.run(ctx, user, orgID, "screen.create", func(ctx context.Context, r *store.Repo) (string, error) {
		if _, err := s.loadTemplate(ctx, r, orgID, templateID); err != nil {
			return "", err
		}
		if err := applyScreenInput(sc, in); err != nil {
			return "", err
		}
		if in.Order == nil {
			next, err := r.NextScreenOrder(ctx, templateID)
			if err != nil {
				return "", err
			}
			sc.Order = next
		}
		if err := r.InsertScreen(ctx, sc); err != nil {
			return "", err
		}
		return templateID, nil
	})
	if err != nil {
		return nil, err
	}
	return sc, nil
}

// UpdateScreen applies a partial update. Changing the type keeps only the
// attributes the new type uses.
func (s *Service) UpdateScreen(ctx context.Context, user *metadata.UserContext, orgID, id string, in ScreenInput) (*metadata.Screen, error) {
	var out *metadata.Screen
	err := s.run(ctx, user, orgID, "screen.update", func(ctx context.Context, r *store.Repo) (string, error) {
		sc, err := s.loadScreen(ctx, r, orgID, id)
		if err != nil {
			return "", err
		}
		if err := applyScreenInput(sc, in); err != nil {
			return "", err
		}
		if err := r.UpdateScreen(ctx, sc); err != nil {
			return "", engine.MapStoreError(err, "screen", id)
		}
		out = sc
		return sc.TemplateID, nil
	})
	return out, err
}

// DeleteScreen removes the screen and its fields. Sibling order values are
// left as they are.
func (s *Service) DeleteScreen(ctx context.Context, user *metadata.UserContext, orgID, id string) error {
	return s.run(ctx, user, orgID, "screen.delete", func(ctx context.Context, r *store.Repo) (string, error) {
		sc, err := s.loadScreen(ctx, r, orgID, id)
		if err != nil {
			return "", err
		}
		return sc.TemplateID, engine.MapStoreError(r.DeleteScreen(ctx, id), "screen", id)
	})
}

// ReorderScreens sets order = index for every screen of the template. ids
// must list each of the template's screens exactly once.
func (s *Service) ReorderScreens(ctx context.Context, user *metadata.UserContext, orgID, templateID string, ids []string) error {
	return s.run(ctx, user, orgID, "screen.reorder", func(ctx context.Context, r *store.Repo) (string, error) {
		if _, err := s.loadTemplate(ctx, r, orgID, templateID); err != nil {
			return "", err
		}
		screens, err := r.ListScreens(ctx, templateID)
		if err != nil {
			return "", err
		}
		existing := make([]string, len(screens))
		for i, sc := range screens {
			existing[i] = sc.ID
		}
		if err := checkPermutation(ids, existing, "screen"); err != nil {
			return "", err
		}
		for i, id := range ids {
			if err := r.SetScreenOrder(ctx, id, i); err != nil {
				return "", err
			}
		}
		return templateID, nil
	})
}

func applyScreenInput(sc *metadata.Screen, in ScreenInput) error {
	if in.Title != nil {
		sc.Title = strings.TrimSpace(*in.Title)
	}
	if in.Description != nil {
		sc.Description = optional(*in.Description)
	}
	if in.Type != nil {
		t, err := metadata.ParseScreenType(*in.Type)
		if err != nil {
			return engine.FieldValidationError("type", "enum", err.Error())
		}
		sc.Type = t
	}
	if in.Order != nil {
		sc.Order = *in.Order
	}
	if in.AIPrompt != nil {
		sc.AIPrompt = optional(*in.AIPrompt)
	}
	if in.AIOutputSchema != nil {
		sc.AIOutputSchema = optional(*in.AIOutputSchema)
	}
	if in.SignatoryConfig != nil {
		sc.SignatoryConfig = in.SignatoryConfig
	}
	if in.Condition != nil {
		sc.Condition = optional(*in.Condition)
	}
	if in.ApplyStandards != nil {
		sc.ApplyStandards = *in.ApplyStandards
	}
	sc.NormalizeTypeAttributes()
	return validateScreen(sc)
}

func validateScreen(sc *metadata.Screen) error {
	var details []engine.ErrorDetail
	if sc.Title == "" {
		details = append(details, engine.ErrorDetail{Field: "title", Rule: "required", Message: "title is required"})
	}
	if sc.Order < 0 {
		details = append(details, engine.ErrorDetail{Field: "order", Rule: "min", Message: "order must not be negative"})
	}
	if sc.Condition != nil {
		if err := engine.CompileCondition(*sc.Condition); err != nil {
			details = append(details, engine.ErrorDetail{Field: "condition", Rule: "expression", Message: err.Error()})
		}
	}
	if cfg := sc.SignatoryConfig; cfg != nil {
		if cfg.MinSignatories < 0 || cfg.MaxSignatories < 0 {
			details = append(details, engine.ErrorDetail{Field: "signatory_config", Rule: "min",
				Message: "signatory limits must not be negative"})
		} else if cfg.MaxSignatories > 0 && cfg.MinSignatories > cfg.MaxSignatories {
			details = append(details, engine.ErrorDetail{Field: "signatory_config", Rule: "range",
				Message: "min_signatories must not exceed max_signatories"})
		}
	}
	if len(details) > 0 {
		return engine.ValidationError(details)
	}
	return nil
}

// --- Fields ---

func (s *Service) CreateField(ctx context.Context, user *metadata.UserContext, orgID, screenID string, in FieldInput) (*metadata.Field, error) {
	f := &metadata.Field{ScreenID: screenID}
	err := s.run(ctx, user, orgID, "field.create", func(ctx context.Context, r *store.Repo) (string, error) {
		sc, err := s.loadScreen(ctx, r, orgID, screenID)
		if err != nil {
			return "", err
		}
		if in.Type == nil {
			return "", engine.FieldValidationError("type", "required", "type is required")
		}
		if err := applyFieldInput(f, in); err != nil {
			return "", err
		}
		if err := checkFieldName(ctx, r, screenID, f.Name, ""); err != nil {
			return "", err
		}
		if in.Order == nil {
			next, err := r.NextFieldOrder(ctx, screenID)
			if err != nil {
				return "", err
			}
			f.Order = next
		}
		if err := r.InsertField(ctx, f); err != nil {
			return "", err
		}
		return sc.TemplateID, nil
	})
	if err != nil {
		return nil, err
	}
	return f, nil
}

// UpdateField applies a partial update. When ScreenID names another screen
// of the same template the field is appended to the end of that screen and
// any supplied order is ignored.
func (s *Service) UpdateField(ctx context.Context, user *metadata.UserContext, orgID, id string, in FieldInput) (*metadata.Field, error) {
	var out *metadata.Field
	err := s.run(ctx, user, orgID, "field.update", func(ctx context.Context, r *store.Repo) (string, error) {
		f, sc, err := s.loadField(ctx, r, orgID, id)
		if err != nil {
			return "", err
		}
		oldName := f.Name

		target := sc
		moving := in.ScreenID != nil && *in.ScreenID != f.ScreenID
		if moving {
			target, err = s.loadScreen(ctx, r, orgID, *in.ScreenID)
			if err != nil {
				return "", err
			}
			if target.TemplateID != sc.TemplateID {
				return "", engine.FieldValidationError("screen_id", "same_template",
					"Fields can only move between screens of the same template")
			}
			in.Order = nil
		}

		if err := applyFieldInput(f, in); err != nil {
			return "", err
		}
		if moving {
			f.ScreenID = target.ID
			next, err := r.NextFieldOrder(ctx, target.ID)
			if err != nil {
				return "", err
			}
			f.Order = next
		}
		if moving || f.Name != oldName {
			if err := checkFieldName(ctx, r, target.ID, f.Name, f.ID); err != nil {
				return "", err
			}
		}
		if err := r.UpdateField(ctx, f); err != nil {
			return "", engine.MapStoreError(err, "field", id)
		}
		out = f
		return sc.TemplateID, nil
	})
	return out, err
}

// MoveField appends the field to the end of another screen.
func (s *Service) MoveField(ctx context.Context, user *metadata.UserContext, orgID, id, screenID string) (*metadata.Field, error) {
	if screenID == "" {
		return nil, engine.FieldValidationError("screen_id", "required", "screen_id is required")
	}
	return s.UpdateField(ctx, user, orgID, id, FieldInput{ScreenID: &screenID})
}

// DeleteField removes the field without compacting sibling order values.
func (s *Service) DeleteField(ctx context.Context, user *metadata.UserContext, orgID, id string) error {
	return s.run(ctx, user, orgID, "field.delete", func(ctx context.Context, r *store.Repo) (string, error) {
		_, sc, err := s.loadField(ctx, r, orgID, id)
		if err != nil {
			return "", err
		}
		return sc.TemplateID, engine.MapStoreError(r.DeleteField(ctx, id), "field", id)
	})
}

// ReorderFields sets order = index for every field of the screen in one
// transaction. ids must list each of the screen's fields exactly once.
func (s *Service) ReorderFields(ctx context.Context, user *metadata.UserContext, orgID, screenID string, ids []string) error {
	return s.run(ctx, user, orgID, "field.reorder", func(ctx context.Context, r *store.Repo) (string, error) {
		sc, err := s.loadScreen(ctx, r, orgID, screenID)
		if err != nil {
			return "", err
		}
		fields, err := r.ListFields(ctx, screenID)
		if err != nil {
			return "", err
		}
		existing := make([]string, len(fields))
		for i, f := range fields {
			existing[i] = f.ID
		}
		if err := checkPermutation(ids, existing, "field"); err != nil {
			return "", err
		}
		for i, id := range ids {
			if err := r.SetFieldOrder(ctx, id, i); err != nil {
				return "", err
			}
		}
		return sc.TemplateID, nil
	})
}

func applyFieldInput(f *metadata.Field, in FieldInput) error {
	if in.Name != nil {
		f.Name = strings.TrimSpace(*in.Name)
	}
	if in.Label != nil {
		f.Label = strings.TrimSpace(*in.Label)
	}
	if in.Type != nil {
		t, err := metadata.ParseFieldType(*in.Type)
		if err != nil {
			return engine.FieldValidationError("type", "enum", err.Error())
		}
		f.Type = t
	}
	if in.Required != nil {
		f.Required = *in.Required
	}
	if in.Placeholder != nil {
		f.Placeholder = optional(*in.Placeholder)
	}
	if in.HelpText != nil {
		f.HelpText = optional(*in.HelpText)
	}
	if in.Options != nil {
		f.Options = in.Options
	}
	if in.Order != nil {
		f.Order = *in.Order
	}
	if in.AISuggestionEnabled != nil {
		f.AISuggestionEnabled = *in.AISuggestionEnabled
	}
	if in.AISuggestionKey != nil {
		f.AISuggestionKey = strings.TrimSpace(*in.AISuggestionKey)
	}
	if in.Condition != nil {
		f.Condition = optional(*in.Condition)
	}
	if in.Translations != nil {
		f.Translations = in.Translations
	}
	if !f.Type.HasOptions() {
		f.Options = nil
	}
	return validateField(f)
}

func validateField(f *metadata.Field) error {
	var details []engine.ErrorDetail
	if !fieldNamePattern.MatchString(f.Name) {
		details = append(details, engine.ErrorDetail{Field: "name", Rule: "format",
			Message: "name must start with a letter or underscore and contain only letters, digits and underscores"})
	}
	if f.Label == "" {
		details = append(details, engine.ErrorDetail{Field: "label", Rule: "required", Message: "label is required"})
	}
	if f.Type.HasOptions() && len(f.Options) == 0 {
		details = append(details, engine.ErrorDetail{Field: "options", Rule: "required",
			Message: fmt.Sprintf("%s fields need at least one option", f.Type)})
	}
	if f.Order < 0 {
		details = append(details, engine.ErrorDetail{Field: "order", Rule: "min", Message: "order must not be negative"})
	}
	if f.Condition != nil {
		if err := engine.CompileCondition(*f.Condition); err != nil {
			details = append(details, engine.ErrorDetail{Field: "condition", Rule: "expression", Message: err.Error()})
		}
	}
	if len(details) > 0 {
		return engine.ValidationError(details)
	}
	return nil
}

func checkFieldName(ctx context.Context, r *store.Repo, screenID, name, excludeID string) error {
	taken, err := r.FieldNameExists(ctx, screenID, name, excludeID)
	if err != nil {
		return err
	}
	if taken {
		return engine.DuplicateNameError(fmt.Sprintf("A field named %q already exists on this screen", name))
	}
	return nil
}

// checkPermutation requires ids to contain every id of existing exactly once.
func checkPermutation(ids, existing []string, entity string) error {
	known := make(map[string]bool, len(existing))
	for _, id := range existing {
		known[id] = true
	}
	seen := make(map[string]bool, len(ids))
	var details []engine.ErrorDetail
	for _, id := range ids {
		switch {
		case !known[id]:
			details = append(details, engine.ErrorDetail{Field: "ids", Rule: "unknown",
				Message: fmt.Sprintf("%s %s does not belong here", entity, id)})
		case seen[id]:
			details = append(details, engine.ErrorDetail{Field: "ids", Rule: "duplicate",
				Message: fmt.Sprintf("%s %s is listed more than once", entity, id)})
		}
		seen[id] = true
	}
	if len(details) == 0 && len(ids) != len(existing) {
		details = append(details, engine.ErrorDetail{Field: "ids", Rule: "incomplete",
			Message: fmt.Sprintf("expected all %d %ss, got %d", len(existing), entity, len(ids))})
	}
	if len(details) > 0 {
		return engine.ValidationError(details)
	}
	return nil
}

func optional(s string) *string {
	if strings.TrimSpace(s) == "" {
		return nil
	}
	return &s
}

// --- Catalog ---

// Catalog lists the templates user may start: available public templates
// plus the available templates of the user's organization.
func (s *Service) Catalog(ctx context.Context, user *metadata.UserContext) ([]*metadata.Template, error) {
	filter := store.TemplateFilter{OnlyAvailable: true}
	if user != nil && user.IsMemberOf(user.OrgID) {
		filter.OrgID = user.OrgID
		filter.IncludeGlobal = true
	}
	list, err := s.store.Repo().ListTemplates(ctx, filter)
	if err != nil {
		return nil, err
	}
	if list == nil {
		list = []*metadata.Template{}
	}
	return list, nil
}

// CatalogTemplate returns the full template tree when user may use it.
// Inaccessible templates are reported as not found.
func (s *Service) CatalogTemplate(ctx context.Context, user *metadata.UserContext, id, previewToken string) (*metadata.Template, error) {
	t, err := s.registry.GetTemplate(ctx, id)
	if err != nil {
		return nil, engine.MapStoreError(err, "template", id)
	}
	ok, err := engine.CanUseTemplate(ctx, s.store.Repo(), user, t, previewToken)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, engine.NotFoundError("template", id)
	}
	return t, nil
}

