// Package docgen hands completed form payloads to a document generator.
// It does not produce document bytes itself.
package docgen

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"lexform-backend/internal/config"
	"lexform-backend/internal/storage"
)

// Payload is the flat record of a submitted form.
type Payload struct {
	SubmissionID  string         `json:"submission_id"`
	SessionID     string         `json:"session_id"`
	TemplateID    string         `json:"template_id"`
	TemplateSlug  string         `json:"template_slug"`
	TemplateTitle string         `json:"template_title"`
	UserID        string         `json:"user_id"`
	OrgID         string         `json:"org_id,omitempty"`
	FormData      map[string]any `json:"form_data"`
	Enrichment    map[string]any `json:"enrichment,omitempty"`
	SubmittedAt   time.Time      `json:"submitted_at"`
}

// Result identifies the generated document.
type Result struct {
	DocumentRef string `json:"document_ref"`
	Status      string `json:"status"`
}

type Generator interface {
	Generate(ctx context.Context, p Payload) (*Result, error)
}

// New builds the generator selected by cfg.Driver. The file generator is
// the default.
func New(cfg config.DocGenConfig, st *storage.LocalStorage) (Generator, error) {
	switch cfg.Driver {
	case "webhook":
		if cfg.WebhookURL == "" {
			return nil, fmt.Errorf("docgen: webhook driver needs docgen.webhook_url")
		}
		return NewWebhookGenerator(cfg.WebhookURL, cfg.Headers, cfg.MaxAttempts), nil
	case "", "file":
		return NewFileGenerator(st), nil
	}
	return nil, fmt.Errorf("docgen: unknown driver %q", cfg.Driver)
}

// ResolveHeaders replaces {{env.VAR_NAME}} in header values with os env values.
func ResolveHeaders(headers map[string]string) map[string]string {
	resolved := make(map[string]string, len(headers))
	for k, v := range headers {
		resolved[k] = resolveEnvVars(v)
	}
	return resolved
}

func resolveEnvVars(s string) string {
	for {
		start := strings.Index(s, "{{env.")
		if start == -1 {
			return s
		}
		end := strings.Index(s[start:], "}}")
		if end == -1 {
			return s
		}
		end += start
		s = s[:start] + os.Getenv(s[start+6:end]) + s[end+2:]
	}
}
