// Package storetest opens throwaway SQLite stores for tests.
package storetest

import (
	"context"
	"testing"

	"lexform-backend/internal/config"
	"lexform-backend/internal/store"
)

// New returns a bootstrapped store backed by a SQLite file in a temp dir.
func New(t testing.TB) *store.Store {
	t.Helper()
	ctx := context.Background()
	s, err := store.New(ctx, config.DatabaseConfig{Driver: "sqlite", Path: t.TempDir(), Name: "test"})
	if err != nil {
		t.Fatalf("open sqlite store: %v", err)
	}
	t.Cleanup(s.Close)
	if err := s.Bootstrap(ctx); err != nil {
		t.Fatalf("bootstrap: %v", err)
	}
	return s
}
