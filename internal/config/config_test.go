package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

const fullYAML = `
database:
  driver: postgres
  host: 10.0.0.5
  port: 5433
  name: kpi_prod
  user: kpi

server:
  port: 9090
  jwt_secret: s3cret

retry:
  max_retries: 5
  backoff_ms: 20

notify:
  store: true
  slack:
    token: xoxb-1
    channel: C01

kpi_types:
  - id: quality
    name: Quality checklist
    kind: QUALITATIVE_CHECKLIST
    checklist:
      - {id: q1, title: Documented, weight: 10}
      - {id: q2, title: Reviewed, weight: 20}
      - {id: q3, title: Tested, weight: 30}
      - {id: q4, title: Shipped, weight: 40}
  - id: revenue
    name: Revenue
    kind: QUANTITATIVE

cycles:
  - id: 2026-h2
    name: 2026 H2
    define_mode: EVALUATOR_DEFINES
    recurrence: "0 0 1 1,7 *"
    activities:
      define:
        enabled: true
        start: 2026-07-01T00:00:00Z
        end: 2026-07-31T23:59:59Z
      evaluate:
        enabled: true
    assignments:
      - {id: a1, evaluator: mgr-1, evaluatee: emp-1}
`

const minimalYAML = `
kpi_types:
  - id: custom
    name: Custom
    kind: CUSTOM
`

func TestParse_FullConfig(t *testing.T) {
	cfg, err := Parse([]byte(fullYAML))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if cfg.Database.Driver != "postgres" {
		t.Errorf("Database.Driver = %q, want postgres", cfg.Database.Driver)
	}
	if cfg.Database.Port != 5433 {
		t.Errorf("Database.Port = %d, want 5433", cfg.Database.Port)
	}
	if cfg.Server.Port != 9090 {
		t.Errorf("Server.Port = %d, want 9090", cfg.Server.Port)
	}
	if cfg.Retry.MaxRetries != 5 || cfg.Retry.Backoff() != 20*time.Millisecond {
		t.Errorf("Retry = %+v", cfg.Retry)
	}
	if !cfg.Notify.Store || !cfg.Notify.Slack.Enabled() || cfg.Notify.Discord.Enabled() {
		t.Errorf("Notify = %+v", cfg.Notify)
	}
	if len(cfg.KpiTypes) != 2 {
		t.Fatalf("len(KpiTypes) = %d, want 2", len(cfg.KpiTypes))
	}
	if len(cfg.KpiTypes[0].Checklist) != 4 {
		t.Errorf("checklist items = %d, want 4", len(cfg.KpiTypes[0].Checklist))
	}
	if len(cfg.Cycles) != 1 {
		t.Fatalf("len(Cycles) = %d, want 1", len(cfg.Cycles))
	}
	cy := cfg.Cycles[0]
	if cy.DefineMode != "EVALUATOR_DEFINES" {
		t.Errorf("DefineMode = %q", cy.DefineMode)
	}
	def, ok := cy.Activities["define"]
	if !ok || !def.Enabled || def.Start == nil || def.End == nil {
		t.Fatalf("define activity = %+v", def)
	}
	if def.Start.Month() != time.July {
		t.Errorf("define start = %v", def.Start)
	}
	if len(cy.Assignments) != 1 || cy.Assignments[0].Evaluatee != "emp-1" {
		t.Errorf("Assignments = %+v", cy.Assignments)
	}
}

func TestParse_Defaults(t *testing.T) {
	cfg, err := Parse([]byte(minimalYAML))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Database.Driver != "sqlite" {
		t.Errorf("Driver = %q, want sqlite", cfg.Database.Driver)
	}
	if cfg.Database.DSN != "kpiyard.db" {
		t.Errorf("DSN = %q, want kpiyard.db", cfg.Database.DSN)
	}
	if cfg.Server.Port != 8080 {
		t.Errorf("Server.Port = %d, want 8080", cfg.Server.Port)
	}
	if cfg.Retry.MaxRetries != 3 || cfg.Retry.BackoffMS != 50 {
		t.Errorf("Retry = %+v, want 3 retries / 50ms", cfg.Retry)
	}
}

func TestParse_MySQLDefaults(t *testing.T) {
	cfg, err := Parse([]byte("database:\n  driver: mysql\n"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Database.Host != "127.0.0.1" || cfg.Database.Port != 3306 || cfg.Database.User != "root" {
		t.Errorf("Database = %+v", cfg.Database)
	}
}

func TestParse_CycleDefineModeDefault(t *testing.T) {
	cfg, err := Parse([]byte("cycles:\n  - id: c1\n    name: C1\n"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Cycles[0].DefineMode != "EVALUATEE_DEFINES" {
		t.Errorf("DefineMode = %q, want EVALUATEE_DEFINES", cfg.Cycles[0].DefineMode)
	}
}

func TestParse_ValidationErrors(t *testing.T) {
	tests := []struct {
		name string
		yaml string
		want string
	}{
		{"bad driver", "database:\n  driver: oracle\n", "database.driver"},
		{"negative retries", "retry:\n  max_retries: -1\n", "retry.max_retries"},
		{"missing type id", "kpi_types:\n  - name: X\n    kind: CUSTOM\n", "kpi_types[0].id is required"},
		{"bad kind", "kpi_types:\n  - id: x\n    name: X\n    kind: FUZZY\n", "kind \"FUZZY\" is invalid"},
		{"checklist weights", "kpi_types:\n  - id: x\n    name: X\n    kind: QUALITATIVE_CHECKLIST\n    checklist:\n      - {id: a, title: A, weight: 60}\n      - {id: b, title: B, weight: 30}\n", "sum to 90.00"},
		{"empty checklist", "kpi_types:\n  - id: x\n    name: X\n    kind: QUALITATIVE_CHECKLIST\n", "at least one item"},
		{"bad define mode", "cycles:\n  - id: c\n    name: C\n    define_mode: NOBODY\n", "define_mode"},
		{"bad activity", "cycles:\n  - id: c\n    name: C\n    activities:\n      party: {enabled: true}\n", "activities.party"},
		{"inverted window", "cycles:\n  - id: c\n    name: C\n    activities:\n      define:\n        start: 2026-02-01T00:00:00Z\n        end: 2026-01-01T00:00:00Z\n", "ends before it starts"},
		{"half assignment", "cycles:\n  - id: c\n    name: C\n    assignments:\n      - {evaluator: m}\n", "needs evaluator and evaluatee"},
	}
	for _, tt := range tests {
		_, err := Parse([]byte(tt.yaml))
		if err == nil {
			t.Errorf("%s: expected error", tt.name)
			continue
		}
		if !strings.Contains(err.Error(), tt.want) {
			t.Errorf("%s: error = %q, want to contain %q", tt.name, err.Error(), tt.want)
		}
	}
}

func TestParse_EnvOverrides(t *testing.T) {
	t.Setenv("KPI_JWT_SECRET", "from-env")
	t.Setenv("KPI_DATABASE_DSN", "file:env.db")
	cfg, err := Parse([]byte(minimalYAML))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Server.JWTSecret != "from-env" {
		t.Errorf("JWTSecret = %q, want from-env", cfg.Server.JWTSecret)
	}
	if cfg.Database.DSN != "file:env.db" {
		t.Errorf("DSN = %q, want file:env.db", cfg.Database.DSN)
	}
}

func TestParse_InvalidYAML(t *testing.T) {
	_, err := Parse([]byte("database: [unclosed"))
	if err == nil {
		t.Fatal("expected parse error")
	}
	if !strings.Contains(err.Error(), "config: parse") {
		t.Errorf("error = %q, want config: parse prefix", err.Error())
	}
}

func TestLoad_FromFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "kpi.yaml")
	if err := os.WriteFile(path, []byte(fullYAML), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Database.Name != "kpi_prod" {
		t.Errorf("Database.Name = %q, want kpi_prod", cfg.Database.Name)
	}
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	if err == nil {
		t.Fatal("expected error for missing file")
	}
	if !strings.Contains(err.Error(), "config: read") {
		t.Errorf("error = %q", err.Error())
	}
}
