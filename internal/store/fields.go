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

const fieldColumns = `f.id, f.screen_id, f.name, f.label, f.type, f.required, f.placeholder, f.help_text,
    f.options, f.sort_order, f.ai_suggestion_enabled, f.ai_suggestion_key, f.visibility_condition, f.translations`

func scanField(row rowScanner) (*metadata.Field, error) {
	var f metadata.Field
	var typ string
	var placeholder, help, options, cond, translations sql.NullString
	if err := row.Scan(&f.ID, &f.ScreenID, &f.Name, &f.Label, &typ, &f.Required, &placeholder, &help,
		&options, &f.Order, &f.AISuggestionEnabled, &f.AISuggestionKey, &cond, &translations); err != nil {
		return nil, err
	}
	f.Type = metadata.FieldType(typ)
	f.Placeholder = strPtr(placeholder)
	f.HelpText = strPtr(help)
	f.Condition = strPtr(cond)
	if err := jsonScan(options, &f.Options); err != nil {
		return nil, err
	}
	if translations.Valid {
		f.Translations = &metadata.Translations{}
		if err := jsonScan(translations, f.Translations); err != nil {
			return nil, err
		}
	}
	return &f, nil
}

func (r *Repo) InsertField(ctx context.Context, f *metadata.Field) error {
	if f.ID == "" {
		f.ID = uuid.NewString()
	}
	opts, err := optionsParam(f.Options)
	if err != nil {
		return err
	}
	tr, err := jsonParam(f.Translations)
	if err != nil {
		return err
	}
	now := r.d.TimeParam(time.Now())
	_, err = r.exec(ctx,
		`INSERT INTO _fields (id, screen_id, name, label, type, required, placeholder, help_text, options,
		     sort_order, ai_suggestion_enabled, ai_suggestion_key, visibility_condition, translations,
		     created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16)`,
		f.ID, f.ScreenID, f.Name, f.Label, string(f.Type), f.Required, nullable(f.Placeholder),
		nullable(f.HelpText), opts, f.Order, f.AISuggestionEnabled, f.AISuggestionKey,
		nullable(f.Condition), tr, now, now)
	return err
}

func (r *Repo) GetField(ctx context.Context, id string) (*metadata.Field, error) {
	f, err := scanField(r.queryRow(ctx, `SELECT `+fieldColumns+` FROM _fields f WHERE f.id = $1`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get field %s: %w", id, err)
	}
	return f, nil
}

// ListFields returns a screen's fields ordered by sort_order, then
// creation order.
func (r *Repo) ListFields(ctx context.Context, screenID string) ([]*metadata.Field, error) {
	return r.listFields(ctx,
		`SELECT `+fieldColumns+` FROM _fields f WHERE f.screen_id = $1
		 ORDER BY f.sort_order, f.created_at, f.id`, screenID)
}

// ListTemplateFields returns every field of a template in one query.
func (r *Repo) ListTemplateFields(ctx context.Context, templateID string) ([]*metadata.Field, error) {
	return r.listFields(ctx,
		`SELECT `+fieldColumns+` FROM _fields f JOIN _screens s ON s.id = f.screen_id
		 WHERE s.template_id = $1 ORDER BY f.sort_order, f.created_at, f.id`, templateID)
}

func (r *Repo) listFields(ctx context.Context, q string, args ...any) ([]*metadata.Field, error) {
	rows, err := r.query(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("list fields: %w", err)
	}
	defer rows.Close()

	var out []*metadata.Field
	for rows.Next() {
		f, err := scanField(rows)
		if err != nil {
			return nil, fmt.Errorf("scan field: %w", err)
		}
		out = append(out, f)
	}
	return out, rows.Err()
}

// UpdateField writes every mutable field attribute, including screen and order.
func (r *Repo) UpdateField(ctx context.Context, f *metadata.Field) error {
	opts, err := optionsParam(f.Options)
	if err != nil {
		return err
	}
	tr, err := jsonParam(f.Translations)
	if err != nil {
		return err
	}
	n, err := r.exec(ctx,
		`UPDATE _fields SET screen_id = $1, name = $2, label = $3, type = $4, required = $5, placeholder = $6,
		     help_text = $7, options = $8, sort_order = $9, ai_suggestion_enabled = $10, ai_suggestion_key = $11,
		     visibility_condition = $12, translations = $13, updated_at = $14
		 WHERE id = $15`,
		f.ScreenID, f.Name, f.Label, string(f.Type), f.Required, nullable(f.Placeholder),
		nullable(f.HelpText), opts, f.Order, f.AISuggestionEnabled, f.AISuggestionKey,
		nullable(f.Condition), tr, r.d.TimeParam(time.Now()), f.ID)
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *Repo) DeleteField(ctx context.Context, id string) error {
	n, err := r.exec(ctx, `DELETE FROM _fields WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// NextFieldOrder returns max(sort_order)+1 for the screen, or 0 when it has
// no fields.
func (r *Repo) NextFieldOrder(ctx context.Context, screenID string) (int, error) {
	var maxOrder sql.NullInt64
	if err := r.queryRow(ctx, `SELECT MAX(sort_order) FROM _fields WHERE screen_id = $1`, screenID).Scan(&maxOrder); err != nil {
		return 0, fmt.Errorf("max field order: %w", err)
	}
	if !maxOrder.Valid {
		return 0, nil
	}
	return int(maxOrder.Int64) + 1, nil
}

// FieldNameExists reports whether name is used on the screen by a field
// other than excludeID.
func (r *Repo) FieldNameExists(ctx context.Context, screenID, name, excludeID string) (bool, error) {
	var n int
	err := r.queryRow(ctx,
		`SELECT COUNT(*) FROM _fields WHERE screen_id = $1 AND name = $2 AND id <> $3`,
		screenID, name, excludeID).Scan(&n)
	if err != nil {
		return false, fmt.Errorf("check field name: %w", err)
	}
	return n > 0, nil
}

func (r *Repo) SetFieldOrder(ctx context.Context, id string, order int) error {
	n, err := r.exec(ctx, `UPDATE _fields SET sort_order = $1, updated_at = $2 WHERE id = $3`,
		order, r.d.TimeParam(time.Now()), id)
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

func optionsParam(opts []string) (any, error) {
	if len(opts) == 0 {
		return nil, nil
	}
	return jsonParam(opts)
}
