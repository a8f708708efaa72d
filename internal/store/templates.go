package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"lexform-backend/internal/metadata"
)

const templateColumns = `id, organization_id, slug, title, description, available,
    preview_token_hash IS NOT NULL, created_at, updated_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanTemplate(row rowScanner) (*metadata.Template, error) {
	var t metadata.Template
	var orgID sql.NullString
	var created, updated scanTime
	if err := row.Scan(&t.ID, &orgID, &t.Slug, &t.Title, &t.Description, &t.Available,
		&t.HasPreview, &created, &updated); err != nil {
		return nil, err
	}
	t.OrganizationID = strPtr(orgID)
	t.CreatedAt = created.t
	t.UpdatedAt = updated.t
	return &t, nil
}

// InsertTemplate stores t, assigning an id and timestamps.
func (r *Repo) InsertTemplate(ctx context.Context, t *metadata.Template) error {
	if t.ID == "" {
		t.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	t.CreatedAt, t.UpdatedAt = now, now
	_, err := r.exec(ctx,
		`INSERT INTO _templates (id, organization_id, slug, title, description, available, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		t.ID, nullable(t.OrganizationID), t.Slug, t.Title, t.Description, t.Available,
		r.d.TimeParam(now), r.d.TimeParam(now))
	return err
}

// GetTemplate returns the template row without screens.
func (r *Repo) GetTemplate(ctx context.Context, id string) (*metadata.Template, error) {
	t, err := scanTemplate(r.queryRow(ctx, `SELECT `+templateColumns+` FROM _templates WHERE id = $1`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get template %s: %w", id, err)
	}
	return t, nil
}

// GetTemplateBySlug looks a slug up within a scope. An empty orgID is the
// global scope.
func (r *Repo) GetTemplateBySlug(ctx context.Context, orgID, slug string) (*metadata.Template, error) {
	t, err := scanTemplate(r.queryRow(ctx,
		`SELECT `+templateColumns+` FROM _templates WHERE COALESCE(organization_id, '') = $1 AND slug = $2`,
		orgID, slug))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get template %s: %w", slug, err)
	}
	return t, nil
}

// TemplateFilter narrows ListTemplates.
type TemplateFilter struct {
	// OrgID restricts to one organization; empty means global templates.
	OrgID string
	// IncludeGlobal adds global templates to an organization listing.
	IncludeGlobal bool
	OnlyAvailable bool
}

func (r *Repo) ListTemplates(ctx context.Context, f TemplateFilter) ([]*metadata.Template, error) {
	pb := r.d.NewParamBuilder()
	where := "organization_id IS NULL"
	if f.OrgID != "" {
		where = "organization_id = " + pb.Add(f.OrgID)
		if f.IncludeGlobal {
			where = "(" + where + " OR organization_id IS NULL)"
		}
	}
	if f.OnlyAvailable {
		where += " AND available = " + pb.Add(true)
	}
	rows, err := r.q.QueryContext(ctx,
		`SELECT `+templateColumns+` FROM _templates WHERE `+where+` ORDER BY title, id`, pb.Params()...)
	if err != nil {
		return nil, fmt.Errorf("list templates: %w", err)
	}
	defer rows.Close()

	var out []*metadata.Template
	for rows.Next() {
		t, err := scanTemplate(rows)
		if err != nil {
			return nil, fmt.Errorf("scan template: %w", err)
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

// UpdateTemplate writes the mutable template attributes.
func (r *Repo) UpdateTemplate(ctx context.Context, t *metadata.Template) error {
	t.UpdatedAt = time.Now().UTC()
	n, err := r.exec(ctx,
		`UPDATE _templates SET slug = $1, title = $2, description = $3, available = $4, updated_at = $5 WHERE id = $6`,
		t.Slug, t.Title, t.Description, t.Available, r.d.TimeParam(t.UpdatedAt), t.ID)
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// DeleteTemplate removes the template; screens and fields cascade.
func (r *Repo) DeleteTemplate(ctx context.Context, id string) error {
	n, err := r.exec(ctx, `DELETE FROM _templates WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// SlugExists reports whether slug is taken in the scope, ignoring excludeID.
func (r *Repo) SlugExists(ctx context.Context, orgID, slug, excludeID string) (bool, error) {
	var n int
	err := r.queryRow(ctx,
		`SELECT COUNT(*) FROM _templates WHERE COALESCE(organization_id, '') = $1 AND slug = $2 AND id <> $3`,
		orgID, slug, excludeID).Scan(&n)
	if err != nil {
		return false, fmt.Errorf("check slug: %w", err)
	}
	return n > 0, nil
}

func (r *Repo) CountOrgTemplates(ctx context.Context, orgID string) (int, error) {
	var n int
	if err := r.queryRow(ctx, `SELECT COUNT(*) FROM _templates WHERE organization_id = $1`, orgID).Scan(&n); err != nil {
		return 0, fmt.Errorf("count templates: %w", err)
	}
	return n, nil
}

// SetPreviewTokenHash stores (or with nil, clears) the preview token hash.
func (r *Repo) SetPreviewTokenHash(ctx context.Context, id string, hash *string) error {
	n, err := r.exec(ctx, `UPDATE _templates SET preview_token_hash = $1 WHERE id = $2`, nullable(hash), id)
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// PreviewTokenHash returns the stored hash, or "" when none is set.
func (r *Repo) PreviewTokenHash(ctx context.Context, id string) (string, error) {
	var hash sql.NullString
	err := r.queryRow(ctx, `SELECT preview_token_hash FROM _templates WHERE id = $1`, id).Scan(&hash)
	if errors.Is(err, sql.ErrNoRows) {
		return "", ErrNotFound
	}
	if err != nil {
		return "", fmt.Errorf("get preview token: %w", err)
	}
	return hash.String, nil
}

// LoadTemplateTree returns the template with its screens and fields in
// order. Equal order values fall back to creation order.
func (r *Repo) LoadTemplateTree(ctx context.Context, id string) (*metadata.Template, error) {
	t, err := r.GetTemplate(ctx, id)
	if err != nil {
		return nil, err
	}
	screens, err := r.ListScreens(ctx, id)
	if err != nil {
		return nil, err
	}
	fields, err := r.ListTemplateFields(ctx, id)
	if err != nil {
		return nil, err
	}
	byScreen := make(map[string]*metadata.Screen, len(screens))
	for _, s := range screens {
		byScreen[s.ID] = s
	}
	for _, f := range fields {
		if s, ok := byScreen[f.ScreenID]; ok {
			s.Fields = append(s.Fields, f)
		}
	}
	t.Screens = screens
	return t, nil
}
