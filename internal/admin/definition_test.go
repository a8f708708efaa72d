package admin

import (
	"context"
	"strings"
	"testing"

	"lexform-backend/internal/engine"
)

const employmentYAML = `
slug: employment-agreement
title: Employment Agreement
available: true
screens:
  - title: Company
    fields:
      - name: companyName
        label: Company name
        type: text
        required: true
      - name: companyEmail
        label: Company email
        type: email
  - title: Signatories
    type: signatory
    signatory_config:
      min_signatories: 1
      max_signatories: 4
      required_party_types: [employer]
    fields:
      - name: additionalSignatories
        label: Additional signatories
        type: party
`

const ndaJSONC = `{
  // mutual NDA
  "slug": "mutual-nda",
  "title": "Mutual NDA",
  "screens": [
    {
      "title": "Term",
      "fields": [
        {"name": "term", "label": "Term", "type": "select", "options": ["1 year", "2 years"],},
      ],
    },
  ],
}`

func TestParseDefinition(t *testing.T) {
	def, err := ParseDefinition("employment.yaml", []byte(employmentYAML))
	if err != nil {
		t.Fatalf("parse yaml: %v", err)
	}
	tmpl, err := def.Build()
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	if len(tmpl.Screens) != 2 || tmpl.Screens[1].Order != 1 || len(tmpl.Screens[0].Fields) != 2 {
		t.Fatalf("unexpected tree: %+v", tmpl)
	}
	sig := tmpl.Screens[1].SignatoryConfig
	if sig == nil || sig.MinSignatories != 1 || sig.RequiredPartyTypes[0] != "employer" {
		t.Fatalf("signatory config not decoded: %+v", sig)
	}

	def, err = ParseDefinition("nda.jsonc", []byte(ndaJSONC))
	if err != nil {
		t.Fatalf("parse jsonc: %v", err)
	}
	if def.Screens[0].Fields[0].Options[1] != "2 years" {
		t.Fatalf("unexpected jsonc decode: %+v", def)
	}

	if _, err := ParseDefinition("nda.toml", nil); err == nil {
		t.Fatal("expected unsupported extension error")
	}
}

func TestDefinitionBuild_Errors(t *testing.T) {
	tests := []struct {
		name string
		doc  string
		code string
		path string
	}{
		{"bad slug", "slug: Bad Slug\ntitle: x\n", "VALIDATION_FAILED", "slug"},
		{"field type", "slug: a\ntitle: A\nscreens:\n  - title: S\n    fields:\n      - {name: x, label: X, type: slider}\n", "VALIDATION_FAILED", "screens[0].fields[0].type"},
		{"screen title", "slug: a\ntitle: A\nscreens:\n  - fields: []\n", "VALIDATION_FAILED", "screens[0].title"},
		{"duplicate field", "slug: a\ntitle: A\nscreens:\n  - title: S\n    fields:\n      - {name: x, label: X, type: text}\n      - {name: x, label: Y, type: text}\n", "DUPLICATE_NAME", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			def, err := ParseDefinition("t.yaml", []byte(tt.doc))
			if err != nil {
				t.Fatalf("parse: %v", err)
			}
			_, err = def.Build()
			if !engine.IsCode(err, tt.code) {
				t.Fatalf("expected %s, got %v", tt.code, err)
			}
			if tt.path != "" {
				appErr := err.(*engine.AppError)
				if appErr.Details[0].Field != tt.path {
					t.Fatalf("detail field = %q, want %q", appErr.Details[0].Field, tt.path)
				}
			}
		})
	}
}

func TestImportExport(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	def, _ := ParseDefinition("employment.yaml", []byte(employmentYAML))

	if _, err := h.svc.Import(ctx, member, "", def); !engine.IsCode(err, "FORBIDDEN") {
		t.Fatalf("expected FORBIDDEN, got %v", err)
	}
	tmpl, err := h.svc.Import(ctx, editor, "", def)
	if err != nil {
		t.Fatalf("import: %v", err)
	}
	if _, err := h.svc.Import(ctx, editor, "", def); !engine.IsCode(err, "DUPLICATE_NAME") {
		t.Fatalf("second import: expected DUPLICATE_NAME, got %v", err)
	}

	tree, err := h.registry.GetTemplate(ctx, tmpl.ID)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if len(tree.Screens) != 2 || tree.Screens[0].Fields[1].Name != "companyEmail" {
		t.Fatalf("imported tree mismatch: %+v", tree.Screens)
	}

	out, err := h.svc.Export(ctx, editor, "", "employment-agreement")
	if err != nil {
		t.Fatalf("export: %v", err)
	}
	doc, err := out.YAML()
	if err != nil {
		t.Fatalf("yaml: %v", err)
	}
	for _, want := range []string{"slug: employment-agreement", "name: companyName", "min_signatories: 1", "type: signatory"} {
		if !strings.Contains(string(doc), want) {
			t.Fatalf("export missing %q:\n%s", want, doc)
		}
	}
	if _, err := h.svc.Export(ctx, editor, "", "missing"); !engine.IsCode(err, "NOT_FOUND") {
		t.Fatalf("expected NOT_FOUND, got %v", err)
	}
}
