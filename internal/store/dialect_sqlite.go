package store

import (
	"fmt"
	"strings"
	"time"
)

// SQLiteDialect implements Dialect for SQLite via modernc.org/sqlite.
type SQLiteDialect struct{}

func (d *SQLiteDialect) Name() string       { return "sqlite" }
func (d *SQLiteDialect) DriverName() string { return "sqlite" }

// Rebind turns $N into ?N, which SQLite binds by position.
func (d *SQLiteDialect) Rebind(query string) string {
	return dollarPlaceholder.ReplaceAllString(query, "?$1")
}

func (d *SQLiteDialect) NewParamBuilder() ParamBuilder {
	return &sqliteParamBuilder{}
}

func (d *SQLiteDialect) NowExpr() string { return "strftime('%Y-%m-%d %H:%M:%f', 'now')" }

// TimeParam formats t with fixed-width fractional seconds so text
// ordering matches time ordering.
func (d *SQLiteDialect) TimeParam(t time.Time) any {
	return t.UTC().Format("2006-01-02 15:04:05.000000")
}

func (d *SQLiteDialect) SchemaSQL() string {
	return sqliteSchemaSQL
}

func (d *SQLiteDialect) IntervalDeleteExpr(createdAtCol string, pb ParamBuilder, days string) string {
	ph := pb.Add(days)
	return fmt.Sprintf("%s < datetime('now', '-' || %s || ' days')", createdAtCol, ph)
}

func (d *SQLiteDialect) SyncCommitOff() string { return "" }

func (d *SQLiteDialect) MapError(err error) error {
	if err == nil {
		return nil
	}
	errStr := err.Error()
	if strings.Contains(errStr, "UNIQUE constraint failed") || strings.Contains(errStr, "constraint failed: UNIQUE") {
		return fmt.Errorf("%w: %w", ErrUniqueViolation, err)
	}
	return err
}

// --- SQLite DDL ---

const sqliteSchemaSQL = `
CREATE TABLE IF NOT EXISTS _organizations (
    id            TEXT PRIMARY KEY,
    name          TEXT NOT NULL,
    slug          TEXT NOT NULL UNIQUE,
    max_templates INTEGER NOT NULL DEFAULT 10,
    created_at    TEXT DEFAULT (datetime('now'))
);

CREATE TABLE IF NOT EXISTS _memberships (
    org_id     TEXT NOT NULL REFERENCES _organizations(id) ON DELETE CASCADE,
    user_id    TEXT NOT NULL,
    role       TEXT NOT NULL DEFAULT 'member',
    created_at TEXT DEFAULT (datetime('now')),
    PRIMARY KEY (org_id, user_id)
);

CREATE TABLE IF NOT EXISTS _templates (
    id                 TEXT PRIMARY KEY,
    organization_id    TEXT REFERENCES _organizations(id) ON DELETE CASCADE,
    slug               TEXT NOT NULL,
    title              TEXT NOT NULL,
    description        TEXT NOT NULL DEFAULT '',
    available          BOOLEAN NOT NULL DEFAULT 1,
    preview_token_hash TEXT,
    created_at         TEXT NOT NULL DEFAULT (datetime('now')),
    updated_at         TEXT NOT NULL DEFAULT (datetime('now'))
);
CREATE UNIQUE INDEX IF NOT EXISTS idx_templates_scope_slug ON _templates (COALESCE(organization_id, ''), slug);

CREATE TABLE IF NOT EXISTS _screens (
    id                   TEXT PRIMARY KEY,
    template_id          TEXT NOT NULL REFERENCES _templates(id) ON DELETE CASCADE,
    title                TEXT NOT NULL,
    description          TEXT,
    type                 TEXT NOT NULL DEFAULT 'standard',
    sort_order           INTEGER NOT NULL DEFAULT 0,
    ai_prompt            TEXT,
    ai_output_schema     TEXT,
    signatory_config     TEXT,
    visibility_condition TEXT,
    apply_standards      BOOLEAN NOT NULL DEFAULT 0,
    created_at           TEXT NOT NULL DEFAULT (datetime('now')),
    updated_at           TEXT NOT NULL DEFAULT (datetime('now'))
);
CREATE INDEX IF NOT EXISTS idx_screens_template ON _screens (template_id, sort_order);

CREATE TABLE IF NOT EXISTS _fields (
    id                    TEXT PRIMARY KEY,
    screen_id             TEXT NOT NULL REFERENCES _screens(id) ON DELETE CASCADE,
    name                  TEXT NOT NULL,
    label                 TEXT NOT NULL,
    type                  TEXT NOT NULL,
    required              BOOLEAN NOT NULL DEFAULT 0,
    placeholder           TEXT,
    help_text             TEXT,
    options               TEXT,
    sort_order            INTEGER NOT NULL DEFAULT 0,
    ai_suggestion_enabled BOOLEAN NOT NULL DEFAULT 0,
    ai_suggestion_key     TEXT NOT NULL DEFAULT '',
    visibility_condition  TEXT,
    translations          TEXT,
    created_at            TEXT NOT NULL DEFAULT (datetime('now')),
    updated_at            TEXT NOT NULL DEFAULT (datetime('now')),
    UNIQUE (screen_id, name)
);
CREATE INDEX IF NOT EXISTS idx_fields_screen ON _fields (screen_id, sort_order);

CREATE TABLE IF NOT EXISTS _form_sessions (
    id              TEXT PRIMARY KEY,
    template_id     TEXT NOT NULL REFERENCES _templates(id) ON DELETE CASCADE,
    user_id         TEXT NOT NULL,
    org_id          TEXT,
    form_data       TEXT NOT NULL DEFAULT '{}',
    current_step    INTEGER NOT NULL DEFAULT 0,
    completed_steps TEXT NOT NULL DEFAULT '[]',
    enrichment      TEXT NOT NULL DEFAULT '{}',
    status          TEXT NOT NULL DEFAULT 'active',
    created_at      TEXT NOT NULL DEFAULT (datetime('now')),
    updated_at      TEXT NOT NULL DEFAULT (datetime('now'))
);
CREATE INDEX IF NOT EXISTS idx_form_sessions_user ON _form_sessions (user_id, updated_at DESC);

CREATE TABLE IF NOT EXISTS _submissions (
    id           TEXT PRIMARY KEY,
    session_id   TEXT NOT NULL,
    template_id  TEXT NOT NULL,
    user_id      TEXT NOT NULL,
    form_data    TEXT NOT NULL,
    document_ref TEXT NOT NULL DEFAULT '',
    status       TEXT NOT NULL DEFAULT 'generated',
    created_at   TEXT NOT NULL DEFAULT (datetime('now'))
);

CREATE TABLE IF NOT EXISTS _events (
    id              TEXT PRIMARY KEY DEFAULT (lower(hex(randomblob(16)))),
    trace_id        TEXT NOT NULL,
    span_id         TEXT NOT NULL,
    parent_span_id  TEXT,
    event_type      TEXT NOT NULL,
    source          TEXT NOT NULL,
    component       TEXT NOT NULL,
    action          TEXT NOT NULL,
    entity          TEXT,
    record_id       TEXT,
    user_id         TEXT,
    duration_ms     REAL,
    status          TEXT,
    metadata        TEXT,
    created_at      TEXT NOT NULL DEFAULT (datetime('now'))
);
CREATE INDEX IF NOT EXISTS idx_events_trace ON _events (trace_id);
CREATE INDEX IF NOT EXISTS idx_events_entity_created ON _events (entity, created_at DESC);
`
