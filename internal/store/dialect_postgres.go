package store

import (
	"fmt"
	"strings"
	"time"
)

// PostgresDialect implements Dialect for PostgreSQL via pgx/stdlib.
type PostgresDialect struct{}

func (d *PostgresDialect) Name() string       { return "postgres" }
func (d *PostgresDialect) DriverName() string { return "pgx" }

func (d *PostgresDialect) Rebind(query string) string { return query }

func (d *PostgresDialect) NewParamBuilder() ParamBuilder {
	return &pgParamBuilder{}
}

func (d *PostgresDialect) NowExpr() string { return "NOW()" }

func (d *PostgresDialect) TimeParam(t time.Time) any { return t.UTC() }

func (d *PostgresDialect) SchemaSQL() string {
	return pgSchemaSQL
}

func (d *PostgresDialect) IntervalDeleteExpr(createdAtCol string, pb ParamBuilder, days string) string {
	ph := pb.Add(days)
	return fmt.Sprintf("%s < now() - (%s || ' days')::interval", createdAtCol, ph)
}

func (d *PostgresDialect) SyncCommitOff() string {
	return "SET LOCAL synchronous_commit = off"
}

func (d *PostgresDialect) MapError(err error) error {
	if err == nil {
		return nil
	}
	// With pgx/stdlib, the underlying error message includes the PG code
	errStr := err.Error()
	if strings.Contains(errStr, "23505") || strings.Contains(errStr, "unique constraint") || strings.Contains(errStr, "duplicate key") {
		return fmt.Errorf("%w: %w", ErrUniqueViolation, err)
	}
	return err
}

// --- PostgreSQL DDL ---

const pgSchemaSQL = `
CREATE TABLE IF NOT EXISTS _organizations (
    id            TEXT PRIMARY KEY,
    name          TEXT NOT NULL,
    slug          TEXT NOT NULL UNIQUE,
    max_templates INT NOT NULL DEFAULT 10,
    created_at    TIMESTAMPTZ DEFAULT NOW()
);

CREATE TABLE IF NOT EXISTS _memberships (
    org_id     TEXT NOT NULL REFERENCES _organizations(id) ON DELETE CASCADE,
    user_id    TEXT NOT NULL,
    role       TEXT NOT NULL DEFAULT 'member',
    created_at TIMESTAMPTZ DEFAULT NOW(),
    PRIMARY KEY (org_id, user_id)
);

CREATE TABLE IF NOT EXISTS _templates (
    id                 TEXT PRIMARY KEY,
    organization_id    TEXT REFERENCES _organizations(id) ON DELETE CASCADE,
    slug               TEXT NOT NULL,
    title              TEXT NOT NULL,
    description        TEXT NOT NULL DEFAULT '',
    available          BOOLEAN NOT NULL DEFAULT true,
    preview_token_hash TEXT,
    created_at         TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    updated_at         TIMESTAMPTZ NOT NULL DEFAULT NOW()
);
CREATE UNIQUE INDEX IF NOT EXISTS idx_templates_scope_slug ON _templates ((COALESCE(organization_id, '')), slug);

CREATE TABLE IF NOT EXISTS _screens (
    id                   TEXT PRIMARY KEY,
    template_id          TEXT NOT NULL REFERENCES _templates(id) ON DELETE CASCADE,
    title                TEXT NOT NULL,
    description          TEXT,
    type                 TEXT NOT NULL DEFAULT 'standard',
    sort_order           INT NOT NULL DEFAULT 0,
    ai_prompt            TEXT,
    ai_output_schema     TEXT,
    signatory_config     JSONB,
    visibility_condition TEXT,
    apply_standards      BOOLEAN NOT NULL DEFAULT false,
    created_at           TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    updated_at           TIMESTAMPTZ NOT NULL DEFAULT NOW()
);
CREATE INDEX IF NOT EXISTS idx_screens_template ON _screens (template_id, sort_order);

CREATE TABLE IF NOT EXISTS _fields (
    id                    TEXT PRIMARY KEY,
    screen_id             TEXT NOT NULL REFERENCES _screens(id) ON DELETE CASCADE,
    name                  TEXT NOT NULL,
    label                 TEXT NOT NULL,
    type                  TEXT NOT NULL,
    required              BOOLEAN NOT NULL DEFAULT false,
    placeholder           TEXT,
    help_text             TEXT,
    options               JSONB,
    sort_order            INT NOT NULL DEFAULT 0,
    ai_suggestion_enabled BOOLEAN NOT NULL DEFAULT false,
    ai_suggestion_key     TEXT NOT NULL DEFAULT '',
    visibility_condition  TEXT,
    translations          JSONB,
    created_at            TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    updated_at            TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    UNIQUE (screen_id, name)
);
CREATE INDEX IF NOT EXISTS idx_fields_screen ON _fields (screen_id, sort_order);

CREATE TABLE IF NOT EXISTS _form_sessions (
    id              TEXT PRIMARY KEY,
    template_id     TEXT NOT NULL REFERENCES _templates(id) ON DELETE CASCADE,
    user_id         TEXT NOT NULL,
    org_id          TEXT,
    form_data       JSONB NOT NULL DEFAULT '{}',
    current_step    INT NOT NULL DEFAULT 0,
    completed_steps JSONB NOT NULL DEFAULT '[]',
    enrichment      JSONB NOT NULL DEFAULT '{}',
    status          TEXT NOT NULL DEFAULT 'active',
    created_at      TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    updated_at      TIMESTAMPTZ NOT NULL DEFAULT NOW()
);
CREATE INDEX IF NOT EXISTS idx_form_sessions_user ON _form_sessions (user_id, updated_at DESC);

CREATE TABLE IF NOT EXISTS _submissions (
    id           TEXT PRIMARY KEY,
    session_id   TEXT NOT NULL,
    template_id  TEXT NOT NULL,
    user_id      TEXT NOT NULL,
    form_data    JSONB NOT NULL,
    document_ref TEXT NOT NULL DEFAULT '',
    status       TEXT NOT NULL DEFAULT 'generated',
    created_at   TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE TABLE IF NOT EXISTS _events (
    id              UUID PRIMARY KEY DEFAULT gen_random_uuid(),
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
    duration_ms     DOUBLE PRECISION,
    status          TEXT,
    metadata        JSONB,
    created_at      TIMESTAMPTZ NOT NULL DEFAULT now()
);
CREATE INDEX IF NOT EXISTS idx_events_trace ON _events (trace_id);
CREATE INDEX IF NOT EXISTS idx_events_entity_created ON _events (entity, created_at DESC);
`
