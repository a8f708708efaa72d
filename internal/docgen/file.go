package docgen

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"

	"lexform-backend/internal/storage"
)

// FileGenerator stores the payload as JSON for an offline document
// renderer to pick up.
type FileGenerator struct {
	storage *storage.LocalStorage
}

func NewFileGenerator(st *storage.LocalStorage) *FileGenerator {
	return &FileGenerator{storage: st}
}

func (g *FileGenerator) Generate(ctx context.Context, p Payload) (*Result, error) {
	body, err := json.MarshalIndent(p, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("marshal payload: %w", err)
	}
	path, err := g.storage.Save(ctx, "submissions", p.SubmissionID, "payload.json", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("store payload: %w", err)
	}
	return &Result{DocumentRef: path, Status: "queued"}, nil
}
