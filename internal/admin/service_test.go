package admin

import (
	"context"
	"sync"
	"testing"

	"lexform-backend/internal/engine"
	"lexform-backend/internal/metadata"
	"lexform-backend/internal/store"
	"lexform-backend/internal/store/storetest"
)

var (
	editor = &metadata.UserContext{ID: "ed", Role: metadata.RoleEditor}
	member = &metadata.UserContext{ID: "mem", Role: metadata.RoleMember}
)

func ptr[T any](v T) *T { return &v }

type harness struct {
	store    *store.Store
	registry *metadata.Registry
	svc      *Service
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	s := storetest.New(t)
	reg := metadata.NewRegistry(s.Repo().LoadTemplateTree, 0, nil)
	return &harness{store: s, registry: reg, svc: NewService(s, reg)}
}

// template creates a public template with one screen.
func (h *harness) template(t *testing.T) (*metadata.Template, *metadata.Screen) {
	t.Helper()
	ctx := context.Background()
	tmpl, err := h.svc.CreateTemplate(ctx, editor, "", TemplateInput{Slug: ptr("nda"), Title: ptr("NDA")})
	if err != nil {
		t.Fatalf("create template: %v", err)
	}
	sc, err := h.svc.CreateScreen(ctx, editor, "", tmpl.ID, ScreenInput{Title: ptr("Parties")})
	if err != nil {
		t.Fatalf("create screen: %v", err)
	}
	return tmpl, sc
}

func (h *harness) field(t *testing.T, screenID, name string) *metadata.Field {
	t.Helper()
	f, err := h.svc.CreateField(context.Background(), editor, "", screenID,
		FieldInput{Name: ptr(name), Label: ptr(name), Type: ptr("text")})
	if err != nil {
		t.Fatalf("create field %s: %v", name, err)
	}
	return f
}

func orders(t *testing.T, s *store.Store, screenID string) map[string]int {
	t.Helper()
	fields, err := s.Repo().ListFields(context.Background(), screenID)
	if err != nil {
		t.Fatalf("list fields: %v", err)
	}
	out := make(map[string]int, len(fields))
	for _, f := range fields {
		out[f.Name] = f.Order
	}
	return out
}

func TestCreateField_DuplicateName(t *testing.T) {
	h := newHarness(t)
	_, sc := h.template(t)
	ctx := context.Background()

	if _, err := h.svc.CreateField(ctx, editor, "", sc.ID,
		FieldInput{Name: ptr("email"), Label: ptr("Email"), Type: ptr("email")}); err != nil {
		t.Fatalf("first create: %v", err)
	}
	_, err := h.svc.CreateField(ctx, editor, "", sc.ID,
		FieldInput{Name: ptr("email"), Label: ptr("Email Address"), Type: ptr("text")})
	if !engine.IsCode(err, "DUPLICATE_NAME") {
		t.Fatalf("expected DUPLICATE_NAME, got %v", err)
	}

	// The same name is allowed on another screen of the template.
	other, err := h.svc.CreateScreen(ctx, editor, "", sc.TemplateID, ScreenInput{Title: ptr("More")})
	if err != nil {
		t.Fatalf("create screen: %v", err)
	}
	if _, err := h.svc.CreateField(ctx, editor, "", other.ID,
		FieldInput{Name: ptr("email"), Label: ptr("Email"), Type: ptr("email")}); err != nil {
		t.Fatalf("names are scoped to a screen: %v", err)
	}
}

func TestCreateField_ConcurrentSameName(t *testing.T) {
	h := newHarness(t)
	_, sc := h.template(t)

	const attempts = 4
	errs := make([]error, attempts)
	var wg sync.WaitGroup
	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = h.svc.CreateField(context.Background(), editor, "", sc.ID,
				FieldInput{Name: ptr("email"), Label: ptr("Email"), Type: ptr("email")})
		}(i)
	}
	wg.Wait()

	succeeded := 0
	for _, err := range errs {
		switch {
		case err == nil:
			succeeded++
		case !engine.IsCode(err, "DUPLICATE_NAME"):
			t.Fatalf("unexpected error: %v", err)
		}
	}
	if succeeded != 1 {
		t.Fatalf("expected exactly one create to succeed, got %d", succeeded)
	}
	if got := orders(t, h.store, sc.ID); len(got) != 1 {
		t.Fatalf("expected one stored field, got %v", got)
	}
}

func TestCreateField_OrderDefaults(t *testing.T) {
	h := newHarness(t)
	_, sc := h.template(t)

	a := h.field(t, sc.ID, "a")
	b := h.field(t, sc.ID, "b")
	if a.Order != 0 || b.Order != 1 {
		t.Fatalf("expected orders 0 and 1, got %d and %d", a.Order, b.Order)
	}
	c, err := h.svc.CreateField(context.Background(), editor, "", sc.ID,
		FieldInput{Name: ptr("c"), Label: ptr("C"), Type: ptr("text"), Order: ptr(7)})
	if err != nil || c.Order != 7 {
		t.Fatalf("explicit order should be kept: %v %+v", err, c)
	}
	d := h.field(t, sc.ID, "d")
	if d.Order != 8 {
		t.Fatalf("expected last order + 1 = 8, got %d", d.Order)
	}
}

func TestReorderFields(t *testing.T) {
	h := newHarness(t)
	_, sc := h.template(t)
	a, b, c := h.field(t, sc.ID, "a"), h.field(t, sc.ID, "b"), h.field(t, sc.ID, "c")
	ctx := context.Background()

	if err := h.svc.ReorderFields(ctx, editor, "", sc.ID, []string{c.ID, a.ID, b.ID}); err != nil {
		t.Fatalf("reorder: %v", err)
	}
	got := orders(t, h.store, sc.ID)
	if got["c"] != 0 || got["a"] != 1 || got["b"] != 2 {
		t.Fatalf("unexpected orders after reorder: %v", got)
	}

	bad := [][]string{
		{c.ID, a.ID},
		{c.ID, a.ID, a.ID},
		{c.ID, a.ID, b.ID, "nope"},
	}
	for _, ids := range bad {
		if err := h.svc.ReorderFields(ctx, editor, "", sc.ID, ids); !engine.IsCode(err, "VALIDATION_FAILED") {
			t.Fatalf("reorder %v: expected VALIDATION_FAILED, got %v", ids, err)
		}
	}
	got = orders(t, h.store, sc.ID)
	if got["c"] != 0 || got["a"] != 1 || got["b"] != 2 {
		t.Fatalf("rejected reorders must not change anything: %v", got)
	}
}

func TestMoveField_AppendsToTarget(t *testing.T) {
	h := newHarness(t)
	tmpl, s1 := h.template(t)
	ctx := context.Background()
	s2, err := h.svc.CreateScreen(ctx, editor, "", tmpl.ID, ScreenInput{Title: ptr("Terms")})
	if err != nil {
		t.Fatalf("create screen: %v", err)
	}
	h.field(t, s1.ID, "a")
	moving := h.field(t, s1.ID, "b")
	h.field(t, s1.ID, "c")
	h.field(t, s2.ID, "x")
	h.field(t, s2.ID, "y")

	f, err := h.svc.UpdateField(ctx, editor, "", moving.ID, FieldInput{ScreenID: &s2.ID, Order: ptr(0)})
	if err != nil {
		t.Fatalf("move: %v", err)
	}
	if f.ScreenID != s2.ID || f.Order != 2 {
		t.Fatalf("expected field at order 2 on the target screen, got %+v", f)
	}
	if got := orders(t, h.store, s1.ID); got["a"] != 0 || got["c"] != 2 || len(got) != 2 {
		t.Fatalf("source screen keeps its order values: %v", got)
	}

	h.field(t, s1.ID, "x2")
	dup := h.field(t, s1.ID, "y")
	if _, err := h.svc.MoveField(ctx, editor, "", dup.ID, s2.ID); !engine.IsCode(err, "DUPLICATE_NAME") {
		t.Fatalf("move onto a screen with the same name: expected DUPLICATE_NAME, got %v", err)
	}
	if _, err := h.svc.MoveField(ctx, editor, "", dup.ID, "missing"); !engine.IsCode(err, "NOT_FOUND") {
		t.Fatalf("move to missing screen: expected NOT_FOUND, got %v", err)
	}
}

func TestUpdateField_Rename(t *testing.T) {
	h := newHarness(t)
	_, sc := h.template(t)
	h.field(t, sc.ID, "a")
	b := h.field(t, sc.ID, "b")
	ctx := context.Background()

	if _, err := h.svc.UpdateField(ctx, editor, "", b.ID, FieldInput{Name: ptr("a")}); !engine.IsCode(err, "DUPLICATE_NAME") {
		t.Fatalf("expected DUPLICATE_NAME, got %v", err)
	}
	f, err := h.svc.UpdateField(ctx, editor, "", b.ID, FieldInput{Name: ptr("b"), Label: ptr("Bee")})
	if err != nil || f.Label != "Bee" {
		t.Fatalf("renaming to itself is allowed: %v %+v", err, f)
	}
	if _, err := h.svc.UpdateField(ctx, editor, "", "missing", FieldInput{}); !engine.IsCode(err, "NOT_FOUND") {
		t.Fatalf("expected NOT_FOUND, got %v", err)
	}
}

func TestDeleteField_LeavesGaps(t *testing.T) {
	h := newHarness(t)
	_, sc := h.template(t)
	h.field(t, sc.ID, "a")
	b := h.field(t, sc.ID, "b")
	h.field(t, sc.ID, "c")
	ctx := context.Background()

	if err := h.svc.DeleteField(ctx, editor, "", b.ID); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if got := orders(t, h.store, sc.ID); got["a"] != 0 || got["c"] != 2 {
		t.Fatalf("delete must not compact orders: %v", got)
	}
	if err := h.svc.DeleteField(ctx, editor, "", b.ID); !engine.IsCode(err, "NOT_FOUND") {
		t.Fatalf("second delete: expected NOT_FOUND, got %v", err)
	}
}

func TestFieldValidation(t *testing.T) {
	h := newHarness(t)
	_, sc := h.template(t)
	ctx := context.Background()

	tests := []struct {
		name string
		in   FieldInput
	}{
		{"missing type", FieldInput{Name: ptr("a"), Label: ptr("A")}},
		{"unknown type", FieldInput{Name: ptr("a"), Label: ptr("A"), Type: ptr("slider")}},
		{"bad name", FieldInput{Name: ptr("first name"), Label: ptr("A"), Type: ptr("text")}},
		{"missing label", FieldInput{Name: ptr("a"), Type: ptr("text")}},
		{"select without options", FieldInput{Name: ptr("a"), Label: ptr("A"), Type: ptr("select")}},
		{"bad condition", FieldInput{Name: ptr("a"), Label: ptr("A"), Type: ptr("text"), Condition: ptr("x ==")}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := h.svc.CreateField(ctx, editor, "", sc.ID, tt.in); !engine.IsCode(err, "VALIDATION_FAILED") {
				t.Fatalf("expected VALIDATION_FAILED, got %v", err)
			}
		})
	}

	f, err := h.svc.CreateField(ctx, editor, "", sc.ID, FieldInput{
		Name: ptr("country"), Label: ptr("Country"), Type: ptr("select"), Options: []string{"US", "UK"},
		Condition: ptr(`hasEmployees == true`),
	})
	if err != nil || len(f.Options) != 2 || f.Condition == nil {
		t.Fatalf("valid select field rejected: %v %+v", err, f)
	}
}

func TestScreenTypeChange(t *testing.T) {
	h := newHarness(t)
	_, sc := h.template(t)
	ctx := context.Background()

	dyn, err := h.svc.UpdateScreen(ctx, editor, "", sc.ID, ScreenInput{
		Type: ptr("dynamic"), AIPrompt: ptr("Suggest clauses"), SignatoryConfig: &metadata.SignatoryConfig{MinSignatories: 1},
	})
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	if dyn.AIPrompt == nil || dyn.SignatoryConfig != nil {
		t.Fatalf("dynamic screens keep the prompt and drop signatory config: %+v", dyn)
	}

	std, err := h.svc.UpdateScreen(ctx, editor, "", sc.ID, ScreenInput{Type: ptr("standard")})
	if err != nil || std.AIPrompt != nil {
		t.Fatalf("standard screens drop AI attributes: %v %+v", err, std)
	}
	if _, err := h.svc.UpdateScreen(ctx, editor, "", sc.ID, ScreenInput{Type: ptr("wizard")}); !engine.IsCode(err, "VALIDATION_FAILED") {
		t.Fatalf("expected VALIDATION_FAILED for unknown type, got %v", err)
	}
}

func TestDeleteScreen_CascadesFields(t *testing.T) {
	h := newHarness(t)
	_, sc := h.template(t)
	f := h.field(t, sc.ID, "a")
	ctx := context.Background()

	if err := h.svc.DeleteScreen(ctx, editor, "", sc.ID); err != nil {
		t.Fatalf("delete screen: %v", err)
	}
	if _, err := h.store.Repo().GetField(ctx, f.ID); err != store.ErrNotFound {
		t.Fatalf("field should be gone, got %v", err)
	}
}

func TestReorderScreens(t *testing.T) {
	h := newHarness(t)
	tmpl, s1 := h.template(t)
	ctx := context.Background()
	s2, _ := h.svc.CreateScreen(ctx, editor, "", tmpl.ID, ScreenInput{Title: ptr("Second")})

	if err := h.svc.ReorderScreens(ctx, editor, "", tmpl.ID, []string{s2.ID, s1.ID}); err != nil {
		t.Fatalf("reorder screens: %v", err)
	}
	screens, _ := h.store.Repo().ListScreens(ctx, tmpl.ID)
	if screens[0].ID != s2.ID || screens[0].Order != 0 || screens[1].Order != 1 {
		t.Fatalf("unexpected screen order: %+v %+v", screens[0], screens[1])
	}
	if err := h.svc.ReorderScreens(ctx, editor, "", tmpl.ID, []string{s2.ID}); !engine.IsCode(err, "VALIDATION_FAILED") {
		t.Fatalf("expected VALIDATION_FAILED, got %v", err)
	}
}

func TestAuthorization(t *testing.T) {
	h := newHarness(t)
	_, sc := h.template(t)
	ctx := context.Background()

	_, err := h.svc.CreateField(ctx, member, "", sc.ID, FieldInput{Name: ptr("a"), Label: ptr("A"), Type: ptr("text")})
	if !engine.IsCode(err, "FORBIDDEN") {
		t.Fatalf("expected FORBIDDEN, got %v", err)
	}
	if got := orders(t, h.store, sc.ID); len(got) != 0 {
		t.Fatalf("forbidden create must not write: %v", got)
	}
	if _, err := h.svc.CreateField(ctx, nil, "", sc.ID, FieldInput{}); !engine.IsCode(err, "FORBIDDEN") {
		t.Fatalf("anonymous callers are forbidden, got %v", err)
	}
}

func TestOrgScope(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	r := h.store.Repo()
	acme := &store.Organization{Name: "Acme", Slug: "acme", MaxTemplates: 1}
	if err := r.InsertOrganization(ctx, acme); err != nil {
		t.Fatalf("insert org: %v", err)
	}
	orgEditor := &metadata.UserContext{ID: "oe", Role: metadata.RoleMember, OrgID: acme.ID, OrgRole: metadata.OrgRoleEditor}
	orgMember := &metadata.UserContext{ID: "om", Role: metadata.RoleMember, OrgID: acme.ID, OrgRole: metadata.OrgRoleMember}

	if _, err := h.svc.CreateTemplate(ctx, orgMember, acme.ID, TemplateInput{Slug: ptr("offer"), Title: ptr("Offer")}); !engine.IsCode(err, "FORBIDDEN") {
		t.Fatalf("plain members cannot manage templates, got %v", err)
	}
	tmpl, err := h.svc.CreateTemplate(ctx, orgEditor, acme.ID, TemplateInput{Slug: ptr("offer"), Title: ptr("Offer")})
	if err != nil {
		t.Fatalf("create org template: %v", err)
	}
	if !tmpl.BelongsTo(acme.ID) {
		t.Fatalf("template should belong to the org: %+v", tmpl)
	}
	if _, err := h.svc.CreateTemplate(ctx, orgEditor, acme.ID, TemplateInput{Slug: ptr("nda"), Title: ptr("NDA")}); !engine.IsCode(err, "LIMIT_EXCEEDED") {
		t.Fatalf("expected LIMIT_EXCEEDED, got %v", err)
	}

	// Org templates are invisible from the platform scope and vice versa.
	global, _ := h.template(t)
	if _, err := h.svc.GetTemplate(ctx, editor, "", tmpl.ID); !engine.IsCode(err, "NOT_FOUND") {
		t.Fatalf("org template from platform scope: expected NOT_FOUND, got %v", err)
	}
	if _, err := h.svc.CreateScreen(ctx, orgEditor, acme.ID, global.ID, ScreenInput{Title: ptr("x")}); !engine.IsCode(err, "NOT_FOUND") {
		t.Fatalf("global template from org scope: expected NOT_FOUND, got %v", err)
	}
}

func TestTemplateSlugs(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	h.template(t)

	if _, err := h.svc.CreateTemplate(ctx, editor, "", TemplateInput{Slug: ptr("nda"), Title: ptr("Other")}); !engine.IsCode(err, "DUPLICATE_NAME") {
		t.Fatalf("expected DUPLICATE_NAME, got %v", err)
	}
	if _, err := h.svc.CreateTemplate(ctx, editor, "", TemplateInput{Slug: ptr("Not A Slug"), Title: ptr("x")}); !engine.IsCode(err, "VALIDATION_FAILED") {
		t.Fatalf("expected VALIDATION_FAILED, got %v", err)
	}
}

func TestRegistryInvalidation(t *testing.T) {
	h := newHarness(t)
	tmpl, sc := h.template(t)
	ctx := context.Background()

	before, err := h.registry.GetTemplate(ctx, tmpl.ID)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if len(before.Screens[0].Fields) != 0 {
		t.Fatalf("expected empty screen, got %+v", before.Screens[0].Fields)
	}
	h.field(t, sc.ID, "a")
	after, _ := h.registry.GetTemplate(ctx, tmpl.ID)
	if len(after.Screens[0].Fields) != 1 {
		t.Fatal("registry should reload the template after a mutation")
	}
}

func TestCatalogAndPreviewToken(t *testing.T) {
	h := newHarness(t)
	tmpl, _ := h.template(t)
	ctx := context.Background()

	list, err := h.svc.Catalog(ctx, member)
	if err != nil || len(list) != 0 {
		t.Fatalf("unavailable templates are not listed: %v %v", err, list)
	}
	if _, err := h.svc.CatalogTemplate(ctx, member, tmpl.ID, ""); !engine.IsCode(err, "NOT_FOUND") {
		t.Fatalf("expected NOT_FOUND without token, got %v", err)
	}

	token, err := h.svc.IssuePreviewToken(ctx, editor, "", tmpl.ID)
	if err != nil {
		t.Fatalf("issue token: %v", err)
	}
	got, err := h.svc.CatalogTemplate(ctx, member, tmpl.ID, token)
	if err != nil || got.ID != tmpl.ID || !got.HasPreview {
		t.Fatalf("token should grant access: %v %+v", err, got)
	}

	if err := h.svc.RevokePreviewToken(ctx, editor, "", tmpl.ID); err != nil {
		t.Fatalf("revoke: %v", err)
	}
	if _, err := h.svc.CatalogTemplate(ctx, member, tmpl.ID, token); !engine.IsCode(err, "NOT_FOUND") {
		t.Fatalf("revoked token: expected NOT_FOUND, got %v", err)
	}

	if _, err := h.svc.UpdateTemplate(ctx, editor, "", tmpl.ID, TemplateInput{Available: ptr(true)}); err != nil {
		t.Fatalf("publish: %v", err)
	}
	list, _ = h.svc.Catalog(ctx, member)
	if len(list) != 1 {
		t.Fatalf("published template should be listed, got %v", list)
	}
}
