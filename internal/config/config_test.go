package config

import "testing"

func TestDSN(t *testing.T) {
	pg := DatabaseConfig{Driver: "postgres", User: "u", Password: "p", Host: "db", Port: 5432, Name: "lexform"}
	if got := pg.DSN(); got != "postgres://u:p@db:5432/lexform?sslmode=disable" {
		t.Fatalf("unexpected postgres DSN: %s", got)
	}

	lite := DatabaseConfig{Driver: "sqlite", Path: "/tmp/data", Name: "lexform"}
	if got := lite.DSN(); got != "/tmp/data/lexform.db" {
		t.Fatalf("unexpected sqlite DSN: %s", got)
	}
	if !lite.IsSQLite() || pg.IsSQLite() {
		t.Fatal("IsSQLite mismatch")
	}
}

func TestLoad_DefaultsWithoutFile(t *testing.T) {
	t.Chdir(t.TempDir())

	cfg, err := Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Server.Port != 8080 {
		t.Fatalf("expected default port 8080, got %d", cfg.Server.Port)
	}
	if cfg.DocGen.Driver != "file" {
		t.Fatalf("expected default docgen driver file, got %s", cfg.DocGen.Driver)
	}
	if cfg.Enrichment.LookupTimeoutMs != 15000 {
		t.Fatalf("expected default lookup timeout, got %d", cfg.Enrichment.LookupTimeoutMs)
	}
}
