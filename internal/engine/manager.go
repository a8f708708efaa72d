package engine

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/singleflight"

	"lexform-backend/internal/docgen"
	"lexform-backend/internal/enrichment"
	"lexform-backend/internal/instrument"
	"lexform-backend/internal/metadata"
	"lexform-backend/internal/store"
)

// ManagerConfig holds the collaborators of a SessionManager. Oracle and
// Generator are optional. IdleTTL zero keeps idle sessions in memory until
// they are submitted.
type ManagerConfig struct {
	Store         *store.Store
	Registry      *metadata.Registry
	Visibility    VisibilityEvaluator
	Oracle        enrichment.Oracle
	LookupTimeout time.Duration
	Generator     docgen.Generator
	IdleTTL       time.Duration
	Now           func() time.Time
}

// SessionManager keeps live form sessions in memory, serializes access to
// each one, and persists every mutation to _form_sessions so a session can
// be resumed after a restart or eviction. Submitted sessions leave memory
// right away, idle ones after IdleTTL.
type SessionManager struct {
	cfg   ManagerConfig
	mu    sync.Mutex
	live  map[string]*liveSession
	loads singleflight.Group
}

type liveSession struct {
	mu        sync.Mutex
	session   *Session
	userID    string
	orgID     string
	status    string
	createdAt time.Time
	agg       *enrichment.Aggregator

	lastUsed time.Time // guarded by SessionManager.mu
}

func NewSessionManager(cfg ManagerConfig) *SessionManager {
	if cfg.Visibility == nil {
		cfg.Visibility = NewExprEvaluator()
	}
	if cfg.Oracle == nil {
		cfg.Oracle = enrichment.NewHeuristicOracle()
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &SessionManager{cfg: cfg, live: make(map[string]*liveSession)}
}

// SessionView is the client-facing state of a session.
type SessionView struct {
	ID               string                     `json:"id"`
	TemplateID       string                     `json:"template_id"`
	Status           string                     `json:"status"`
	CurrentStep      int                        `json:"current_step"`
	TotalSteps       int                        `json:"total_steps"`
	Screen           *metadata.Screen           `json:"screen,omitempty"`
	VisibleFields    []string                   `json:"visible_fields"`
	CompletedSteps   []string                   `json:"completed_steps"`
	FormData         map[string]any             `json:"form_data"`
	Errors           map[string]string          `json:"errors"`
	FieldErrors      map[string]FieldError      `json:"field_errors"`
	SignatoryResults map[string]SignatoryResult `json:"signatory_results,omitempty"`
	IsSubmitting     bool                       `json:"is_submitting"`
	Enrichment       enrichment.Snapshot        `json:"enrichment"`
	Suggestions      map[string]any             `json:"suggestions"`
}

// EnrichRequest merges Context into the enrichment context and starts a
// background lookup for every non-empty input.
type EnrichRequest struct {
	Context  map[string]any `json:"context"`
	Location string         `json:"location"`
	Company  string         `json:"company"`
	JobTitle string         `json:"job_title"`
}

// Start creates a session for templateID owned by user.
func (m *SessionManager) Start(ctx context.Context, user *metadata.UserContext, templateID, previewToken string) (*SessionView, error) {
	ctx, span := instrument.GetInstrumenter(ctx).StartSpan(ctx, "engine", "session", "session.start")
	defer span.End()

	tmpl, err := m.cfg.Registry.GetTemplate(ctx, templateID)
	if err != nil {
		span.Fail(err)
		return nil, MapStoreError(err, "template", templateID)
	}
	ok, err := CanUseTemplate(ctx, m.cfg.Store.Repo(), user, tmpl, previewToken)
	if err != nil {
		span.Fail(err)
		return nil, err
	}
	if !ok {
		span.SetStatus("error")
		return nil, NotFoundError("template", templateID)
	}

	ls := &liveSession{
		session:   NewSession(uuid.NewString(), tmpl, m.cfg.Visibility),
		userID:    user.ID,
		orgID:     user.OrgID,
		status:    store.SessionActive,
		createdAt: m.cfg.Now().UTC(),
	}
	ls.agg = m.newAggregator(ls)

	if err := m.persist(ctx, ls); err != nil {
		ls.agg.Close()
		span.Fail(err)
		return nil, err
	}
	m.mu.Lock()
	ls.lastUsed = m.cfg.Now()
	m.live[ls.session.ID] = ls
	m.mu.Unlock()

	span.SetEntity(instrument.EntitySession, ls.session.ID)
	span.SetStatus("ok")
	return m.view(ls), nil
}

// Get returns the session state.
func (m *SessionManager) Get(ctx context.Context, user *metadata.UserContext, id string) (*SessionView, error) {
	var v *SessionView
	err := m.with(ctx, user, id, false, func(ls *liveSession) error {
		v = m.view(ls)
		return nil
	})
	return v, err
}

// SetValues stores each value. With validate set, each stored field is
// validated right away.
func (m *SessionManager) SetValues(ctx context.Context, user *metadata.UserContext, id string, values map[string]any, validate bool) (*SessionView, error) {
	var v *SessionView
	err := m.with(ctx, user, id, true, func(ls *liveSession) error {
		for name, value := range values {
			ls.session.SetFieldValue(name, value)
		}
		if validate {
			for name := range values {
				ls.session.ValidateField(name)
			}
		}
		v = m.view(ls)
		return nil
	})
	return v, err
}

// ValidateField validates one field by name.
func (m *SessionManager) ValidateField(ctx context.Context, user *metadata.UserContext, id, name string) (bool, *SessionView, error) {
	var ok bool
	var v *SessionView
	err := m.with(ctx, user, id, true, func(ls *liveSession) error {
		ok = ls.session.ValidateField(name)
		v = m.view(ls)
		return nil
	})
	return ok, v, err
}

// ValidateScreen validates the screen at index.
func (m *SessionManager) ValidateScreen(ctx context.Context, user *metadata.UserContext, id string, index int) (bool, *SessionView, error) {
	var ok bool
	var v *SessionView
	err := m.with(ctx, user, id, true, func(ls *liveSession) error {
		ok = ls.session.ValidateScreen(index)
		v = m.view(ls)
		return nil
	})
	return ok, v, err
}

// Next advances when the current screen validates.
func (m *SessionManager) Next(ctx context.Context, user *metadata.UserContext, id string) (bool, *SessionView, error) {
	return m.navigate(ctx, user, id, (*Session).NextStep)
}

// Previous moves back without validation.
func (m *SessionManager) Previous(ctx context.Context, user *metadata.UserContext, id string) (bool, *SessionView, error) {
	return m.navigate(ctx, user, id, (*Session).PreviousStep)
}

// GoTo jumps to step without validation.
func (m *SessionManager) GoTo(ctx context.Context, user *metadata.UserContext, id string, step int) (bool, *SessionView, error) {
	return m.navigate(ctx, user, id, func(s *Session) bool { return s.GoToStep(step) })
}

func (m *SessionManager) navigate(ctx context.Context, user *metadata.UserContext, id string, move func(*Session) bool) (bool, *SessionView, error) {
	var moved bool
	var v *SessionView
	err := m.with(ctx, user, id, true, func(ls *liveSession) error {
		moved = move(ls.session)
		v = m.view(ls)
		return nil
	})
	return moved, v, err
}

// Enrich merges req.Context and starts the requested lookups. Lookup
// results arrive later and are merged into the session as they complete.
func (m *SessionManager) Enrich(ctx context.Context, user *metadata.UserContext, id string, req EnrichRequest) (*SessionView, error) {
	var v *SessionView
	err := m.with(ctx, user, id, true, func(ls *liveSession) error {
		if len(req.Context) > 0 {
			ls.session.SetEnrichmentContext(req.Context)
		}
		if req.Location != "" {
			ls.agg.LookupJurisdiction(ctx, req.Location)
		}
		if req.Company != "" {
			ls.agg.LookupCompany(ctx, req.Company)
		}
		if req.JobTitle != "" {
			ls.agg.LookupJobTitle(ctx, req.JobTitle)
		}
		v = m.view(ls)
		return nil
	})
	return v, err
}

// Submit validates every visible screen and hands the form payload to the
// document generator. On validation failure the session moves to the first
// invalid screen and a VALIDATION_FAILED error lists the field errors.
func (m *SessionManager) Submit(ctx context.Context, user *metadata.UserContext, id string) (*SessionView, *store.SubmissionRecord, error) {
	ctx, span := instrument.GetInstrumenter(ctx).StartSpan(ctx, "engine", "session", "session.submit")
	defer span.End()
	span.SetEntity(instrument.EntitySession, id)

	var v *SessionView
	var sub *store.SubmissionRecord
	err := m.with(ctx, user, id, true, func(ls *liveSession) error {
		s := ls.session
		s.SetSubmitting(true)
		formData, ok := s.Submission()
		if !ok {
			s.SetSubmitting(false)
			if step := s.FirstInvalidStep(); step >= 0 {
				s.GoToStep(step)
			}
			v = m.view(ls)
			return submissionErrors(s)
		}

		tmpl := s.Template()
		sub = &store.SubmissionRecord{
			ID:         uuid.NewString(),
			SessionID:  s.ID,
			TemplateID: tmpl.ID,
			UserID:     ls.userID,
			FormData:   formData,
		}
		if m.cfg.Generator != nil {
			res, err := m.cfg.Generator.Generate(ctx, docgen.Payload{
				SubmissionID:  sub.ID,
				SessionID:     s.ID,
				TemplateID:    tmpl.ID,
				TemplateSlug:  tmpl.Slug,
				TemplateTitle: tmpl.Title,
				UserID:        ls.userID,
				OrgID:         ls.orgID,
				FormData:      formData,
				Enrichment:    s.EnrichmentContext(),
				SubmittedAt:   time.Now().UTC(),
			})
			if err != nil {
				s.SetSubmitting(false)
				log.Printf("ERROR: document generation for session %s: %v", s.ID, err)
				return NewAppError("DOCUMENT_GENERATION_FAILED", 502, "Document generation failed")
			}
			sub.DocumentRef = res.DocumentRef
			sub.Status = res.Status
		}

		s.SetSubmitting(false)
		err := m.cfg.Store.WithTx(ctx, func(r *store.Repo) error {
			if err := r.InsertSubmission(ctx, sub); err != nil {
				return err
			}
			ls.status = store.SessionSubmitted
			return r.SaveSession(ctx, m.record(ls))
		})
		if err != nil {
			ls.status = store.SessionActive
			return fmt.Errorf("record submission: %w", err)
		}
		ls.agg.Close()
		instrument.GetInstrumenter(ctx).EmitBusinessEvent(ctx, instrument.EntitySession, s.ID, "form.submitted",
			map[string]any{"template_id": tmpl.ID, "submission_id": sub.ID})
		v = m.view(ls)
		return nil
	})
	if err != nil {
		span.Fail(err)
		return v, sub, err
	}
	m.forget(id)
	span.SetStatus("ok")
	return v, sub, nil
}

func submissionErrors(s *Session) error {
	errs := s.FieldErrors()
	details := make([]ErrorDetail, 0, len(errs))
	for _, sc := range s.Template().Screens {
		for _, f := range sc.Fields {
			if fe, ok := errs[f.Name]; ok {
				details = append(details, ErrorDetail{Field: f.Name, Rule: fe.Code, Message: fe.Message})
				delete(errs, f.Name)
			}
		}
	}
	return ValidationError(details)
}

// Close cancels every in-flight enrichment lookup.
func (m *SessionManager) Close() {
	m.mu.Lock()
	defer m.mu.Unlock()
	for id, ls := range m.live {
		ls.agg.Close()
		delete(m.live, id)
	}
}

// Len returns the number of sessions held in memory.
func (m *SessionManager) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.live)
}

// EvictIdle drops sessions unused for IdleTTL from memory and returns how
// many were dropped. Their state is already persisted.
func (m *SessionManager) EvictIdle() int {
	if m.cfg.IdleTTL <= 0 {
		return 0
	}
	cutoff := m.cfg.Now().Add(-m.cfg.IdleTTL)
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for id, ls := range m.live {
		if ls.lastUsed.After(cutoff) {
			continue
		}
		ls.agg.Close()
		delete(m.live, id)
		n++
	}
	return n
}

// RunEviction calls EvictIdle every interval until ctx is done.
func (m *SessionManager) RunEviction(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n := m.EvictIdle(); n > 0 {
				log.Printf("Evicted %d idle form sessions", n)
			}
		}
	}
}

func (m *SessionManager) forget(id string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if ls, ok := m.live[id]; ok {
		ls.agg.Close()
		delete(m.live, id)
	}
}

// with runs fn on the session while holding its lock, persisting afterwards
// when mutate is set. Submitted sessions are read-only.
func (m *SessionManager) with(ctx context.Context, user *metadata.UserContext, id string, mutate bool, fn func(*liveSession) error) error {
	ls, err := m.acquire(ctx, id)
	if err != nil {
		return err
	}
	ls.mu.Lock()
	defer ls.mu.Unlock()

	if user == nil || (ls.userID != user.ID && !user.IsAdmin()) {
		return NotFoundError("session", id)
	}
	if mutate && ls.status == store.SessionSubmitted {
		return NewAppError("SESSION_SUBMITTED", 409, "Session has already been submitted")
	}
	if err := fn(ls); err != nil {
		var appErr *AppError
		if errors.As(err, &appErr) && appErr.Code == "VALIDATION_FAILED" {
			if perr := m.persist(ctx, ls); perr != nil {
				return perr
			}
		}
		return err
	}
	if mutate {
		return m.persist(ctx, ls)
	}
	return nil
}

// acquire returns the live session, loading it from the store on a miss.
func (m *SessionManager) acquire(ctx context.Context, id string) (*liveSession, error) {
	m.mu.Lock()
	ls, ok := m.live[id]
	if ok {
		ls.lastUsed = m.cfg.Now()
	}
	m.mu.Unlock()
	if ok {
		return ls, nil
	}

	v, err, _ := m.loads.Do(id, func() (any, error) {
		m.mu.Lock()
		if ls, ok := m.live[id]; ok {
			ls.lastUsed = m.cfg.Now()
			m.mu.Unlock()
			return ls, nil
		}
		m.mu.Unlock()

		rec, err := m.cfg.Store.Repo().GetSession(ctx, id)
		if err != nil {
			return nil, MapStoreError(err, "session", id)
		}
		tmpl, err := m.cfg.Registry.GetTemplate(ctx, rec.TemplateID)
		if err != nil {
			return nil, MapStoreError(err, "template", rec.TemplateID)
		}
		s := NewSession(rec.ID, tmpl, m.cfg.Visibility)
		s.Restore(rec.FormData, rec.CurrentStep, rec.CompletedSteps, rec.Enrichment)
		ls := &liveSession{
			session:   s,
			userID:    rec.UserID,
			orgID:     rec.OrgID,
			status:    rec.Status,
			createdAt: rec.CreatedAt,
		}
		ls.agg = m.newAggregator(ls)

		m.mu.Lock()
		ls.lastUsed = m.cfg.Now()
		m.live[id] = ls
		m.mu.Unlock()
		return ls, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*liveSession), nil
}

// newAggregator wires lookup results back into the session.
func (m *SessionManager) newAggregator(ls *liveSession) *enrichment.Aggregator {
	return enrichment.NewAggregator(m.cfg.Oracle, m.cfg.LookupTimeout, func(snap enrichment.Snapshot) {
		ls.mu.Lock()
		defer ls.mu.Unlock()
		if ls.status == store.SessionSubmitted {
			return
		}
		// A failed lookup withdraws whatever an earlier one contributed.
		ls.session.DropEnrichment(enrichment.FailedTopics(snap)...)
		ls.session.SetEnrichmentContext(enrichment.ContextOf(snap))
		if err := m.persist(context.Background(), ls); err != nil {
			log.Printf("WARN: persist enrichment for session %s: %v", ls.session.ID, err)
		}
	})
}

func (m *SessionManager) record(ls *liveSession) *store.SessionRecord {
	s := ls.session
	return &store.SessionRecord{
		ID:             s.ID,
		TemplateID:     s.TemplateID,
		UserID:         ls.userID,
		OrgID:          ls.orgID,
		FormData:       s.FormData(),
		CurrentStep:    s.CurrentStep(),
		CompletedSteps: s.CompletedSteps(),
		Enrichment:     s.EnrichmentContext(),
		Status:         ls.status,
		CreatedAt:      ls.createdAt,
	}
}

func (m *SessionManager) persist(ctx context.Context, ls *liveSession) error {
	if err := m.cfg.Store.Repo().SaveSession(ctx, m.record(ls)); err != nil {
		return fmt.Errorf("save session %s: %w", ls.session.ID, err)
	}
	return nil
}

func (m *SessionManager) view(ls *liveSession) *SessionView {
	s := ls.session
	v := &SessionView{
		ID:               s.ID,
		TemplateID:       s.TemplateID,
		Status:           ls.status,
		CurrentStep:      s.CurrentStep(),
		TotalSteps:       s.TotalSteps(),
		VisibleFields:    s.VisibleFields(s.CurrentStep()),
		CompletedSteps:   s.CompletedSteps(),
		FormData:         s.FormData(),
		Errors:           s.Errors(),
		FieldErrors:      s.FieldErrors(),
		SignatoryResults: s.SignatoryResults(),
		IsSubmitting:     s.IsSubmitting(),
		Enrichment:       ls.agg.Snapshot(),
		Suggestions:      s.Suggestions(),
	}
	if s.CurrentStep() < s.TotalSteps() {
		v.Screen = s.Template().Screens[s.CurrentStep()]
	}
	return v
}

// Wait blocks until the session's in-flight lookups have finished and been
// merged. Used by tests and the CLI.
func (m *SessionManager) Wait(id string) {
	m.mu.Lock()
	ls, ok := m.live[id]
	m.mu.Unlock()
	if ok {
		ls.agg.Wait()
	}
}
