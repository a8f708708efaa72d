package engine

import (
	"context"
	"errors"
	"testing"
	"time"

	"lexform-backend/internal/docgen"
	"lexform-backend/internal/metadata"
	"lexform-backend/internal/store"
	"lexform-backend/internal/store/storetest"
)

type recordingGenerator struct {
	payloads []docgen.Payload
	err      error
}

func (g *recordingGenerator) Generate(_ context.Context, p docgen.Payload) (*docgen.Result, error) {
	if g.err != nil {
		return nil, g.err
	}
	g.payloads = append(g.payloads, p)
	return &docgen.Result{DocumentRef: "doc-" + p.SubmissionID, Status: "queued"}, nil
}

type fixture struct {
	store   *store.Store
	manager *SessionManager
	gen     *recordingGenerator
	tmpl    *metadata.Template
}

// seedEmployment stores a two-screen template and returns it.
func seedEmployment(t *testing.T, s *store.Store, available bool) *metadata.Template {
	t.Helper()
	ctx := context.Background()
	r := s.Repo()
	tmpl := &metadata.Template{Slug: "employment-agreement", Title: "Employment Agreement", Available: available}
	if err := r.InsertTemplate(ctx, tmpl); err != nil {
		t.Fatalf("insert template: %v", err)
	}
	s0 := &metadata.Screen{TemplateID: tmpl.ID, Title: "Company", Type: metadata.ScreenStandard, Order: 0}
	s1 := &metadata.Screen{TemplateID: tmpl.ID, Title: "Role", Type: metadata.ScreenStandard, Order: 1}
	for _, sc := range []*metadata.Screen{s0, s1} {
		if err := r.InsertScreen(ctx, sc); err != nil {
			t.Fatalf("insert screen: %v", err)
		}
	}
	fields := []*metadata.Field{
		{ScreenID: s0.ID, Name: "companyName", Label: "Company name", Type: metadata.FieldText, Required: true, Order: 0},
		{ScreenID: s1.ID, Name: "jobTitle", Type: metadata.FieldText, Required: true, Order: 0},
		{ScreenID: s1.ID, Name: "currency", Type: metadata.FieldText, Order: 1,
			AISuggestionEnabled: true, AISuggestionKey: "jurisdiction.currency"},
	}
	for _, f := range fields {
		if err := r.InsertField(ctx, f); err != nil {
			t.Fatalf("insert field: %v", err)
		}
	}
	return tmpl
}

func newFixture(t *testing.T, available bool) *fixture {
	t.Helper()
	s := storetest.New(t)
	tmpl := seedEmployment(t, s, available)
	reg := metadata.NewRegistry(s.Repo().LoadTemplateTree, 0, nil)
	gen := &recordingGenerator{}
	m := NewSessionManager(ManagerConfig{Store: s, Registry: reg, Generator: gen})
	t.Cleanup(m.Close)
	return &fixture{store: s, manager: m, gen: gen, tmpl: tmpl}
}

var alice = &metadata.UserContext{ID: "alice", Role: metadata.RoleMember}

func TestManager_FullFlow(t *testing.T) {
	f := newFixture(t, true)
	ctx := context.Background()

	v, err := f.manager.Start(ctx, alice, f.tmpl.ID, "")
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	if v.CurrentStep != 0 || v.TotalSteps != 2 || v.Screen == nil || v.Screen.Title != "Company" {
		t.Fatalf("unexpected start view: %+v", v)
	}

	moved, v, err := f.manager.Next(ctx, alice, v.ID)
	if err != nil || moved || v.Errors["companyName"] != "Company name is required" {
		t.Fatalf("next should be gated: moved=%v errors=%v err=%v", moved, v.Errors, err)
	}

	if _, err := f.manager.SetValues(ctx, alice, v.ID, map[string]any{"companyName": "Acme"}, false); err != nil {
		t.Fatalf("set values: %v", err)
	}
	moved, v, err = f.manager.Next(ctx, alice, v.ID)
	if err != nil || !moved || v.CurrentStep != 1 {
		t.Fatalf("expected to advance: moved=%v step=%d err=%v", moved, v.CurrentStep, err)
	}

	if _, err := f.manager.Enrich(ctx, alice, v.ID, EnrichRequest{Location: "Berlin, Germany", JobTitle: "Senior Engineer"}); err != nil {
		t.Fatalf("enrich: %v", err)
	}
	f.manager.Wait(v.ID)
	v, _ = f.manager.Get(ctx, alice, v.ID)
	if v.Suggestions["currency"] != "EUR" {
		t.Fatalf("expected EUR currency suggestion, got %v", v.Suggestions)
	}
	if v.Enrichment.MarketStandards.Data == nil {
		t.Fatal("expected market standards once both lookups completed")
	}

	_, _, err = f.manager.Submit(ctx, alice, v.ID)
	if !IsCode(err, "VALIDATION_FAILED") {
		t.Fatalf("expected validation failure, got %v", err)
	}
	var appErr *AppError
	errors.As(err, &appErr)
	if len(appErr.Details) != 1 || appErr.Details[0].Field != "jobTitle" || appErr.Details[0].Rule != RequiredFieldMissing {
		t.Fatalf("unexpected details: %+v", appErr.Details)
	}

	if _, err := f.manager.SetValues(ctx, alice, v.ID, map[string]any{"jobTitle": "Senior Engineer"}, true); err != nil {
		t.Fatalf("set values: %v", err)
	}
	v, sub, err := f.manager.Submit(ctx, alice, v.ID)
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	if v.Status != store.SessionSubmitted || sub.DocumentRef != "doc-"+sub.ID {
		t.Fatalf("unexpected submission: view status %s, sub %+v", v.Status, sub)
	}
	if len(f.gen.payloads) != 1 || f.gen.payloads[0].FormData["companyName"] != "Acme" || f.gen.payloads[0].TemplateSlug != "employment-agreement" {
		t.Fatalf("unexpected generator payloads: %+v", f.gen.payloads)
	}
	if f.gen.payloads[0].Enrichment["jurisdiction"] == nil {
		t.Fatal("payload should carry the enrichment context")
	}

	if _, err := f.manager.SetValues(ctx, alice, v.ID, map[string]any{"companyName": "Other"}, false); !IsCode(err, "SESSION_SUBMITTED") {
		t.Fatalf("submitted sessions are read-only, got %v", err)
	}
}

func TestManager_ResumeFromStore(t *testing.T) {
	f := newFixture(t, true)
	ctx := context.Background()

	v, err := f.manager.Start(ctx, alice, f.tmpl.ID, "")
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	f.manager.SetValues(ctx, alice, v.ID, map[string]any{"companyName": "Acme"}, false)
	f.manager.Next(ctx, alice, v.ID)

	// A second manager over the same database simulates a restart.
	reg := metadata.NewRegistry(f.store.Repo().LoadTemplateTree, 0, nil)
	m2 := NewSessionManager(ManagerConfig{Store: f.store, Registry: reg})
	defer m2.Close()

	got, err := m2.Get(ctx, alice, v.ID)
	if err != nil {
		t.Fatalf("resume: %v", err)
	}
	if got.CurrentStep != 1 || got.FormData["companyName"] != "Acme" || len(got.CompletedSteps) != 1 {
		t.Fatalf("resumed session lost state: %+v", got)
	}
}

func TestManager_AccessControl(t *testing.T) {
	f := newFixture(t, true)
	ctx := context.Background()

	v, err := f.manager.Start(ctx, alice, f.tmpl.ID, "")
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	bob := &metadata.UserContext{ID: "bob", Role: metadata.RoleMember}
	if _, err := f.manager.Get(ctx, bob, v.ID); !IsCode(err, "NOT_FOUND") {
		t.Fatalf("other users must not see the session, got %v", err)
	}
	admin := &metadata.UserContext{ID: "root", Role: metadata.RoleAdmin}
	if _, err := f.manager.Get(ctx, admin, v.ID); err != nil {
		t.Fatalf("platform admins can read any session: %v", err)
	}
	if _, err := f.manager.Get(ctx, alice, "missing"); !IsCode(err, "NOT_FOUND") {
		t.Fatalf("expected NOT_FOUND for unknown session, got %v", err)
	}
	if _, err := f.manager.Start(ctx, alice, "missing", ""); !IsCode(err, "NOT_FOUND") {
		t.Fatalf("expected NOT_FOUND for unknown template, got %v", err)
	}
}

func TestManager_PreviewToken(t *testing.T) {
	f := newFixture(t, false)
	ctx := context.Background()

	if _, err := f.manager.Start(ctx, alice, f.tmpl.ID, ""); !IsCode(err, "NOT_FOUND") {
		t.Fatalf("unavailable templates are hidden, got %v", err)
	}

	token, hash, err := NewPreviewToken()
	if err != nil {
		t.Fatalf("new token: %v", err)
	}
	if err := f.store.Repo().SetPreviewTokenHash(ctx, f.tmpl.ID, &hash); err != nil {
		t.Fatalf("store hash: %v", err)
	}
	if _, err := f.manager.Start(ctx, alice, f.tmpl.ID, "pv_wrong"); !IsCode(err, "NOT_FOUND") {
		t.Fatalf("wrong token must be rejected, got %v", err)
	}
	if _, err := f.manager.Start(ctx, alice, f.tmpl.ID, token); err != nil {
		t.Fatalf("matching token should grant access: %v", err)
	}
}

func TestManager_GenerationFailureKeepsSessionActive(t *testing.T) {
	f := newFixture(t, true)
	f.gen.err = errors.New("renderer down")
	ctx := context.Background()

	v, _ := f.manager.Start(ctx, alice, f.tmpl.ID, "")
	f.manager.SetValues(ctx, alice, v.ID, map[string]any{"companyName": "Acme", "jobTitle": "CEO"}, false)

	if _, _, err := f.manager.Submit(ctx, alice, v.ID); !IsCode(err, "DOCUMENT_GENERATION_FAILED") {
		t.Fatalf("expected generation failure, got %v", err)
	}
	got, _ := f.manager.Get(ctx, alice, v.ID)
	if got.Status != store.SessionActive || got.IsSubmitting {
		t.Fatalf("session should stay active and not submitting: %+v", got)
	}
}

func TestManager_FailedLookupWithdrawsEnrichment(t *testing.T) {
	f := newFixture(t, true)
	ctx := context.Background()

	v, _ := f.manager.Start(ctx, alice, f.tmpl.ID, "")
	if _, err := f.manager.Enrich(ctx, alice, v.ID, EnrichRequest{Location: "California", JobTitle: "Senior Engineer"}); err != nil {
		t.Fatalf("enrich: %v", err)
	}
	f.manager.Wait(v.ID)
	v, _ = f.manager.Get(ctx, alice, v.ID)
	if v.Suggestions["currency"] != "USD" {
		t.Fatalf("expected USD suggestion, got %v", v.Suggestions)
	}

	if _, err := f.manager.Enrich(ctx, alice, v.ID, EnrichRequest{Location: "Atlantis Nowhere"}); err != nil {
		t.Fatalf("re-enrich: %v", err)
	}
	f.manager.Wait(v.ID)
	v, _ = f.manager.Get(ctx, alice, v.ID)
	if v.Enrichment.Jurisdiction.Error == "" {
		t.Fatalf("expected the jurisdiction lookup to fail, got %+v", v.Enrichment.Jurisdiction)
	}
	if _, ok := v.Suggestions["currency"]; ok {
		t.Fatalf("suggestion from the replaced lookup is still offered: %v", v.Suggestions)
	}

	rec, err := f.store.Repo().GetSession(ctx, v.ID)
	if err != nil {
		t.Fatalf("load session: %v", err)
	}
	for _, key := range []string{"jurisdiction", "marketStandards"} {
		if _, ok := rec.Enrichment[key]; ok {
			t.Fatalf("%s kept in the persisted context after its lookup failed: %v", key, rec.Enrichment)
		}
	}
	if _, ok := rec.Enrichment["jobTitle"]; !ok {
		t.Fatalf("job title data should survive: %v", rec.Enrichment)
	}
}

func TestManager_EvictsSubmittedAndIdleSessions(t *testing.T) {
	s := storetest.New(t)
	tmpl := seedEmployment(t, s, true)
	clk := time.Date(2024, 1, 1, 9, 0, 0, 0, time.UTC)
	m := NewSessionManager(ManagerConfig{
		Store:    s,
		Registry: metadata.NewRegistry(s.Repo().LoadTemplateTree, 0, nil),
		IdleTTL:  10 * time.Minute,
		Now:      func() time.Time { return clk },
	})
	defer m.Close()
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		v, err := m.Start(ctx, alice, tmpl.ID, "")
		if err != nil {
			t.Fatalf("start: %v", err)
		}
		m.SetValues(ctx, alice, v.ID, map[string]any{"companyName": "Acme", "jobTitle": "CEO"}, false)
		if _, _, err := m.Submit(ctx, alice, v.ID); err != nil {
			t.Fatalf("submit: %v", err)
		}
	}
	if n := m.Len(); n != 0 {
		t.Fatalf("submitted sessions should leave memory, %d held", n)
	}

	idle, _ := m.Start(ctx, alice, tmpl.ID, "")
	m.SetValues(ctx, alice, idle.ID, map[string]any{"companyName": "Initech"}, false)
	clk = clk.Add(5 * time.Minute)
	busy, _ := m.Start(ctx, alice, tmpl.ID, "")

	clk = clk.Add(10 * time.Minute)
	if _, err := m.Get(ctx, alice, busy.ID); err != nil {
		t.Fatalf("get: %v", err)
	}
	if n := m.EvictIdle(); n != 1 || m.Len() != 1 {
		t.Fatalf("expected only the idle session evicted, evicted %d, held %d", n, m.Len())
	}

	got, err := m.Get(ctx, alice, idle.ID)
	if err != nil || got.FormData["companyName"] != "Initech" {
		t.Fatalf("evicted session should resume from the store: %+v %v", got, err)
	}
}
