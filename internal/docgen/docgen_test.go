package docgen

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"lexform-backend/internal/config"
	"lexform-backend/internal/storage"
)

func noSleep(context.Context, time.Duration) error { return nil }

func TestResolveHeaders(t *testing.T) {
	t.Setenv("DOCGEN_TOKEN", "s3cret")
	got := ResolveHeaders(map[string]string{
		"Authorization": "Bearer {{env.DOCGEN_TOKEN}}",
		"X-Static":      "plain",
		"X-Broken":      "{{env.UNCLOSED",
	})
	if got["Authorization"] != "Bearer s3cret" || got["X-Static"] != "plain" || got["X-Broken"] != "{{env.UNCLOSED" {
		t.Fatalf("unexpected headers: %v", got)
	}
}

func TestWebhookGenerator_RetriesWithSameKey(t *testing.T) {
	var mu sync.Mutex
	var keys []string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		keys = append(keys, r.Header.Get("Idempotency-Key"))
		n := len(keys)
		mu.Unlock()
		if n < 3 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		var body webhookBody
		b, _ := io.ReadAll(r.Body)
		if err := json.Unmarshal(b, &body); err != nil || body.Payload.FormData["employee_name"] != "Ada" {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		_, _ = w.Write([]byte(`{"document_ref":"doc-42"}`))
	}))
	defer srv.Close()

	g := NewWebhookGenerator(srv.URL, nil, 3)
	g.sleep = noSleep
	res, err := g.Generate(context.Background(), Payload{SubmissionID: "sub-1", FormData: map[string]any{"employee_name": "Ada"}})
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	if res.DocumentRef != "doc-42" || res.Status != "accepted" {
		t.Fatalf("unexpected result: %+v", res)
	}
	if len(keys) != 3 || keys[0] != "doc_sub-1" || keys[0] != keys[2] {
		t.Fatalf("expected three attempts with a stable key, got %v", keys)
	}
}

func TestWebhookGenerator_ClientErrorNotRetried(t *testing.T) {
	var calls int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.WriteHeader(http.StatusUnprocessableEntity)
	}))
	defer srv.Close()

	g := NewWebhookGenerator(srv.URL, nil, 5)
	g.sleep = noSleep
	_, err := g.Generate(context.Background(), Payload{SubmissionID: "sub-2"})
	if !errors.Is(err, ErrDeliveryFailed) {
		t.Fatalf("expected ErrDeliveryFailed, got %v", err)
	}
	if calls != 1 {
		t.Fatalf("expected a single attempt for a 4xx, got %d", calls)
	}
}

func TestFileGenerator(t *testing.T) {
	st := storage.NewLocalStorage(t.TempDir())
	g, err := New(config.DocGenConfig{Driver: "file"}, st)
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	res, err := g.Generate(context.Background(), Payload{SubmissionID: "sub-3", TemplateSlug: "nda"})
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	rc, err := st.Open(context.Background(), res.DocumentRef)
	if err != nil {
		t.Fatalf("open stored payload: %v", err)
	}
	defer rc.Close()
	var p Payload
	if err := json.NewDecoder(rc).Decode(&p); err != nil || p.TemplateSlug != "nda" {
		t.Fatalf("unexpected stored payload %+v (%v)", p, err)
	}
}

func TestNewRejectsMisconfiguredDriver(t *testing.T) {
	if _, err := New(config.DocGenConfig{Driver: "webhook"}, nil); err == nil {
		t.Fatal("expected error without webhook url")
	}
	if _, err := New(config.DocGenConfig{Driver: "pdf"}, nil); err == nil {
		t.Fatal("expected error for unknown driver")
	}
}
