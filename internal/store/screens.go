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

const screenColumns = `id, template_id, title, description, type, sort_order, ai_prompt, ai_output_schema,
    signatory_config, visibility_condition, apply_standards`

func scanScreen(row rowScanner) (*metadata.Screen, error) {
	var s metadata.Screen
	var desc, prompt, schema, sigCfg, cond sql.NullString
	var typ string
	if err := row.Scan(&s.ID, &s.TemplateID, &s.Title, &desc, &typ, &s.Order, &prompt, &schema,
		&sigCfg, &cond, &s.ApplyStandards); err != nil {
		return nil, err
	}
	s.Type = metadata.ScreenType(typ)
	s.Description = strPtr(desc)
	s.AIPrompt = strPtr(prompt)
	s.AIOutputSchema = strPtr(schema)
	s.Condition = strPtr(cond)
	if sigCfg.Valid {
		s.SignatoryConfig = &metadata.SignatoryConfig{}
		if err := jsonScan(sigCfg, s.SignatoryConfig); err != nil {
			return nil, err
		}
	}
	return &s, nil
}

func (r *Repo) InsertScreen(ctx context.Context, s *metadata.Screen) error {
	if s.ID == "" {
		s.ID = uuid.NewString()
	}
	sigCfg, err := jsonParam(s.SignatoryConfig)
	if err != nil {
		return err
	}
	now := r.d.TimeParam(time.Now())
	_, err = r.exec(ctx,
		`INSERT INTO _screens (id, template_id, title, description, type, sort_order, ai_prompt, ai_output_schema,
		     signatory_config, visibility_condition, apply_standards, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)`,
		s.ID, s.TemplateID, s.Title, nullable(s.Description), string(s.Type), s.Order,
		nullable(s.AIPrompt), nullable(s.AIOutputSchema), sigCfg, nullable(s.Condition), s.ApplyStandards,
		now, now)
	return err
}

func (r *Repo) GetScreen(ctx context.Context, id string) (*metadata.Screen, error) {
	s, err := scanScreen(r.queryRow(ctx, `SELECT `+screenColumns+` FROM _screens WHERE id = $1`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get screen %s: %w", id, err)
	}
	return s, nil
}

// ListScreens returns a template's screens ordered by sort_order, then
// creation order.
func (r *Repo) ListScreens(ctx context.Context, templateID string) ([]*metadata.Screen, error) {
	rows, err := r.query(ctx,
		`SELECT `+screenColumns+` FROM _screens WHERE template_id = $1 ORDER BY sort_order, created_at, id`,
		templateID)
	if err != nil {
		return nil, fmt.Errorf("list screens: %w", err)
	}
	defer rows.Close()

	var out []*metadata.Screen
	for rows.Next() {
		s, err := scanScreen(rows)
		if err != nil {
			return nil, fmt.Errorf("scan screen: %w", err)
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

// UpdateScreen writes every mutable screen attribute, including the order.
func (r *Repo) UpdateScreen(ctx context.Context, s *metadata.Screen) error {
	sigCfg, err := jsonParam(s.SignatoryConfig)
	if err != nil {
		return err
	}
	n, err := r.exec(ctx,
		`UPDATE _screens SET title = $1, description = $2, type = $3, sort_order = $4, ai_prompt = $5,
		     ai_output_schema = $6, signatory_config = $7, visibility_condition = $8, apply_standards = $9,
		     updated_at = $10
		 WHERE id = $11`,
		s.Title, nullable(s.Description), string(s.Type), s.Order, nullable(s.AIPrompt),
		nullable(s.AIOutputSchema), sigCfg, nullable(s.Condition), s.ApplyStandards,
		r.d.TimeParam(time.Now()), s.ID)
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// DeleteScreen removes the screen; its fields cascade.
func (r *Repo) DeleteScreen(ctx context.Context, id string) error {
	n, err := r.exec(ctx, `DELETE FROM _screens WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// NextScreenOrder returns max(sort_order)+1 for the template, or 0 when it
// has no screens.
func (r *Repo) NextScreenOrder(ctx context.Context, templateID string) (int, error) {
	var maxOrder sql.NullInt64
	if err := r.queryRow(ctx, `SELECT MAX(sort_order) FROM _screens WHERE template_id = $1`, templateID).Scan(&maxOrder); err != nil {
		return 0, fmt.Errorf("max screen order: %w", err)
	}
	if !maxOrder.Valid {
		return 0, nil
	}
	return int(maxOrder.Int64) + 1, nil
}

func (r *Repo) SetScreenOrder(ctx context.Context, id string, order int) error {
	n, err := r.exec(ctx, `UPDATE _screens SET sort_order = $1, updated_at = $2 WHERE id = $3`,
		order, r.d.TimeParam(time.Now()), id)
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}
