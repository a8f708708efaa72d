package docgen

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"math"
	"net/http"
	"time"

	"lexform-backend/internal/instrument"
)

// ErrDeliveryFailed is returned when every delivery attempt failed.
var ErrDeliveryFailed = errors.New("document webhook delivery failed")

// WebhookGenerator POSTs the payload to an external document service.
// Every attempt for one submission carries the same Idempotency-Key.
type WebhookGenerator struct {
	url         string
	headers     map[string]string
	maxAttempts int
	client      *http.Client
	baseBackoff time.Duration
	sleep       func(context.Context, time.Duration) error
}

func NewWebhookGenerator(url string, headers map[string]string, maxAttempts int) *WebhookGenerator {
	if maxAttempts < 1 {
		maxAttempts = 3
	}
	return &WebhookGenerator{
		url:         url,
		headers:     headers,
		maxAttempts: maxAttempts,
		client:      &http.Client{Timeout: 30 * time.Second},
		baseBackoff: 500 * time.Millisecond,
		sleep:       sleepCtx,
	}
}

type webhookBody struct {
	Event          string  `json:"event"`
	IdempotencyKey string  `json:"idempotency_key"`
	Payload        Payload `json:"payload"`
}

type webhookReply struct {
	DocumentRef string `json:"document_ref"`
	URL         string `json:"url"`
	Status      string `json:"status"`
}

func (g *WebhookGenerator) Generate(ctx context.Context, p Payload) (*Result, error) {
	ctx, span := instrument.GetInstrumenter(ctx).StartSpan(ctx, "docgen", "webhook", "document.generate")
	defer span.End()
	span.SetEntity(instrument.EntitySubmission, p.SubmissionID)

	key := "doc_" + p.SubmissionID
	body, err := json.Marshal(webhookBody{Event: "form.submitted", IdempotencyKey: key, Payload: p})
	if err != nil {
		span.Fail(err)
		return nil, fmt.Errorf("marshal payload: %w", err)
	}
	headers := ResolveHeaders(g.headers)

	var lastErr error
	for attempt := 0; attempt < g.maxAttempts; attempt++ {
		if attempt > 0 {
			backoff := time.Duration(math.Pow(2, float64(attempt-1))) * g.baseBackoff
			if err := g.sleep(ctx, backoff); err != nil {
				lastErr = err
				break
			}
		}
		res, retry, err := g.post(ctx, key, headers, body)
		if err == nil {
			span.SetStatus("ok")
			span.SetMetadata("attempts", attempt+1)
			return res, nil
		}
		lastErr = err
		log.Printf("WARN: document webhook attempt %d/%d for submission %s: %v", attempt+1, g.maxAttempts, p.SubmissionID, err)
		if !retry {
			break
		}
	}
	span.Fail(lastErr)
	return nil, fmt.Errorf("%w: %v", ErrDeliveryFailed, lastErr)
}

// post performs one attempt. retry reports whether a failure is transient.
func (g *WebhookGenerator) post(ctx context.Context, key string, headers map[string]string, body []byte) (*Result, bool, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, g.url, bytes.NewReader(body))
	if err != nil {
		return nil, false, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Idempotency-Key", key)
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := g.client.Do(req)
	if err != nil {
		return nil, ctx.Err() == nil, fmt.Errorf("http call: %w", err)
	}
	defer resp.Body.Close()
	respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 64*1024))

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		transient := resp.StatusCode >= 500 || resp.StatusCode == http.StatusTooManyRequests
		return nil, transient, fmt.Errorf("HTTP %d", resp.StatusCode)
	}

	var reply webhookReply
	_ = json.Unmarshal(respBody, &reply)
	res := &Result{DocumentRef: reply.DocumentRef, Status: reply.Status}
	if res.DocumentRef == "" {
		res.DocumentRef = reply.URL
	}
	if res.DocumentRef == "" {
		res.DocumentRef = "webhook:" + key
	}
	if res.Status == "" {
		res.Status = "accepted"
	}
	return res, false, nil
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
