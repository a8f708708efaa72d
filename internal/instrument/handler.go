package instrument

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/gofiber/fiber/v2"

	"lexform-backend/internal/store"
)

const eventSelect = `SELECT id, trace_id, span_id, parent_span_id, event_type, source, component, action, entity,
	record_id, user_id, duration_ms, status, metadata, created_at FROM _events`

// EventHandler exposes the recorded spans and business events to platform admins.
type EventHandler struct {
	store *store.Store
}

func NewEventHandler(s *store.Store) *EventHandler {
	return &EventHandler{store: s}
}

// List handles GET /api/admin/events with optional equality filters.
func (h *EventHandler) List(c *fiber.Ctx) error {
	pb := h.store.Dialect.NewParamBuilder()
	var conditions []string
	for _, col := range []string{"source", "component", "action", "entity", "record_id", "event_type", "trace_id", "user_id", "status"} {
		if v := c.Query(col); v != "" {
			conditions = append(conditions, fmt.Sprintf("%s = %s", col, pb.Add(v)))
		}
	}

	page, _ := strconv.Atoi(c.Query("page", "1"))
	if page < 1 {
		page = 1
	}
	perPage, _ := strconv.Atoi(c.Query("per_page", "50"))
	if perPage < 1 {
		perPage = 50
	}
	if perPage > 100 {
		perPage = 100
	}

	where := ""
	if len(conditions) > 0 {
		where = " WHERE " + strings.Join(conditions, " AND ")
	}
	sqlStr := fmt.Sprintf("%s%s ORDER BY created_at DESC LIMIT %s OFFSET %s",
		eventSelect, where, pb.Add(perPage), pb.Add((page-1)*perPage))

	// Placeholders are already dialect-specific; QueryRows' rebind is a no-op for them.
	rows, err := store.QueryRows(c.UserContext(), h.store.DB, h.store.Dialect, sqlStr, pb.Params()...)
	if err != nil {
		return fmt.Errorf("list events: %w", err)
	}
	if rows == nil {
		rows = []map[string]any{}
	}
	return c.JSON(fiber.Map{
		"data":       rows,
		"pagination": fiber.Map{"page": page, "per_page": perPage},
	})
}

// GetTrace handles GET /api/admin/events/trace/:traceId and returns the
// spans of one trace nested under their parents.
func (h *EventHandler) GetTrace(c *fiber.Ctx) error {
	traceID := c.Params("traceId")
	rows, err := store.QueryRows(c.UserContext(), h.store.DB, h.store.Dialect,
		eventSelect+" WHERE trace_id = $1 ORDER BY created_at ASC", traceID)
	if err != nil {
		return fmt.Errorf("get trace: %w", err)
	}
	if len(rows) == 0 {
		return c.Status(404).JSON(fiber.Map{"error": fiber.Map{"code": "NOT_FOUND", "message": "Trace not found: " + traceID}})
	}

	bySpan := make(map[string]map[string]any, len(rows))
	for _, row := range rows {
		row["children"] = []map[string]any{}
		id, _ := row["span_id"].(string)
		bySpan[id] = row
	}
	var root map[string]any
	for _, row := range rows {
		parentID, _ := row["parent_span_id"].(string)
		if parent, ok := bySpan[parentID]; ok && parentID != "" {
			parent["children"] = append(parent["children"].([]map[string]any), row)
			continue
		}
		if root == nil {
			root = row
		}
	}

	return c.JSON(fiber.Map{
		"data": fiber.Map{
			"trace_id":          traceID,
			"root_span":         root,
			"total_duration_ms": root["duration_ms"],
			"span_count":        len(rows),
		},
	})
}
