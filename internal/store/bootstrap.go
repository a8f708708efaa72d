package store

import (
	"context"
	"fmt"
	"log"
)

// Bootstrap creates the application tables if they do not exist.
func (s *Store) Bootstrap(ctx context.Context) error {
	if _, err := s.DB.ExecContext(ctx, s.Dialect.SchemaSQL()); err != nil {
		return fmt.Errorf("bootstrap tables: %w", err)
	}
	log.Printf("Schema ready (%s)", s.Dialect.Name())
	return nil
}
