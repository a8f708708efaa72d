package instrument

import (
	"context"
	"fmt"
	"log"
	"time"

	"lexform-backend/internal/store"
)

// CleanupOldEvents deletes events older than retentionDays from the _events table.
func CleanupOldEvents(ctx context.Context, s *store.Store, retentionDays int) int64 {
	pb := s.Dialect.NewParamBuilder()
	whereExpr := s.Dialect.IntervalDeleteExpr("created_at", pb, fmt.Sprintf("%d", retentionDays))
	sqlStr := fmt.Sprintf("DELETE FROM _events WHERE %s", whereExpr)
	result, err := s.DB.ExecContext(ctx, sqlStr, pb.Params()...)
	if err != nil {
		log.Printf("ERROR: event cleanup: %v", err)
		return 0
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		log.Printf("ERROR: event cleanup rows affected: %v", err)
		return 0
	}
	if rowsAffected > 0 {
		log.Printf("Event cleanup: deleted %d old events", rowsAffected)
	}
	return rowsAffected
}

// RunCleanup deletes expired events every interval until ctx is done.
func RunCleanup(ctx context.Context, s *store.Store, retentionDays int, interval time.Duration) {
	if retentionDays <= 0 {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			CleanupOldEvents(ctx, s, retentionDays)
		}
	}
}
