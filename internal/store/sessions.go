package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// SessionRecord is the persisted state of a form-filling session.
type SessionRecord struct {
	ID             string         `json:"id"`
	TemplateID     string         `json:"template_id"`
	UserID         string         `json:"user_id"`
	OrgID          string         `json:"org_id,omitempty"`
	FormData       map[string]any `json:"form_data"`
	CurrentStep    int            `json:"current_step"`
	CompletedSteps []string       `json:"completed_steps"`
	Enrichment     map[string]any `json:"enrichment"`
	Status         string         `json:"status"`
	CreatedAt      time.Time      `json:"created_at"`
	UpdatedAt      time.Time      `json:"updated_at"`
}

// Session statuses.
const (
	SessionActive    = "active"
	SessionSubmitted = "submitted"
)

// SaveSession inserts or replaces the session row.
func (r *Repo) SaveSession(ctx context.Context, s *SessionRecord) error {
	if s.ID == "" {
		s.ID = uuid.NewString()
	}
	if s.Status == "" {
		s.Status = SessionActive
	}
	now := time.Now().UTC()
	if s.CreatedAt.IsZero() {
		s.CreatedAt = now
	}
	s.UpdatedAt = now

	formData, err := jsonParam(orEmptyMap(s.FormData))
	if err != nil {
		return err
	}
	steps := s.CompletedSteps
	if steps == nil {
		steps = []string{}
	}
	completed, err := jsonParam(steps)
	if err != nil {
		return err
	}
	enrichment, err := jsonParam(orEmptyMap(s.Enrichment))
	if err != nil {
		return err
	}

	var orgID any
	if s.OrgID != "" {
		orgID = s.OrgID
	}
	_, err = r.exec(ctx,
		`INSERT INTO _form_sessions (id, template_id, user_id, org_id, form_data, current_step, completed_steps,
		     enrichment, status, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		 ON CONFLICT (id) DO UPDATE SET form_data = EXCLUDED.form_data, current_step = EXCLUDED.current_step,
		     completed_steps = EXCLUDED.completed_steps, enrichment = EXCLUDED.enrichment,
		     status = EXCLUDED.status, updated_at = EXCLUDED.updated_at`,
		s.ID, s.TemplateID, s.UserID, orgID, formData, s.CurrentStep, completed, enrichment, s.Status,
		r.d.TimeParam(s.CreatedAt), r.d.TimeParam(s.UpdatedAt))
	return err
}

func (r *Repo) GetSession(ctx context.Context, id string) (*SessionRecord, error) {
	var s SessionRecord
	var orgID, formData, completed, enrichment sql.NullString
	var created, updated scanTime
	err := r.queryRow(ctx,
		`SELECT id, template_id, user_id, org_id, form_data, current_step, completed_steps, enrichment, status,
		     created_at, updated_at
		 FROM _form_sessions WHERE id = $1`, id).
		Scan(&s.ID, &s.TemplateID, &s.UserID, &orgID, &formData, &s.CurrentStep, &completed, &enrichment,
			&s.Status, &created, &updated)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get session %s: %w", id, err)
	}
	s.OrgID = orgID.String
	s.CreatedAt, s.UpdatedAt = created.t, updated.t
	if err := jsonScan(formData, &s.FormData); err != nil {
		return nil, err
	}
	if err := jsonScan(completed, &s.CompletedSteps); err != nil {
		return nil, err
	}
	if err := jsonScan(enrichment, &s.Enrichment); err != nil {
		return nil, err
	}
	return &s, nil
}

// SubmissionRecord is a completed form payload handed to document generation.
type SubmissionRecord struct {
	ID          string         `json:"id"`
	SessionID   string         `json:"session_id"`
	TemplateID  string         `json:"template_id"`
	UserID      string         `json:"user_id"`
	FormData    map[string]any `json:"form_data"`
	DocumentRef string         `json:"document_ref"`
	Status      string         `json:"status"`
	CreatedAt   time.Time      `json:"created_at"`
}

func (r *Repo) InsertSubmission(ctx context.Context, s *SubmissionRecord) error {
	if s.ID == "" {
		s.ID = uuid.NewString()
	}
	if s.Status == "" {
		s.Status = "generated"
	}
	s.CreatedAt = time.Now().UTC()
	formData, err := jsonParam(orEmptyMap(s.FormData))
	if err != nil {
		return err
	}
	_, err = r.exec(ctx,
		`INSERT INTO _submissions (id, session_id, template_id, user_id, form_data, document_ref, status, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		s.ID, s.SessionID, s.TemplateID, s.UserID, formData, s.DocumentRef, s.Status, r.d.TimeParam(s.CreatedAt))
	return err
}

func orEmptyMap(m map[string]any) map[string]any {
	if m == nil {
		return map[string]any{}
	}
	return m
}
