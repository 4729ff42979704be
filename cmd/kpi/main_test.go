package main

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func runCmd(t *testing.T, stdin string, args ...string) (string, error) {
	t.Helper()
	cmd := newRootCmd()
	buf := new(bytes.Buffer)
	cmd.SetOut(buf)
	cmd.SetErr(buf)
	cmd.SetIn(strings.NewReader(stdin))
	cmd.SetArgs(args)
	err := cmd.Execute()
	return buf.String(), err
}

// writeConfig writes a config pointing at a fresh SQLite file and returns its path.
func writeConfig(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	yaml := `
database:
  driver: sqlite
  dsn: ` + filepath.Join(dir, "kpi.db") + `
server:
  jwt_secret: cli-secret
kpi_types:
  - id: delivery
    name: Delivery
    kind: QUANTITATIVE
  - id: quality
    name: Quality
    kind: QUALITATIVE_CHECKLIST
    checklist:
      - {id: q1, title: Reviewed, weight: 50}
      - {id: q2, title: Tested, weight: 50}
cycles:
  - id: h1
    name: H1
    recurrence: "0 0 1 1,7 *"
    activities:
      define:
        enabled: true
        start: 2026-01-01T00:00:00Z
        end: 2026-01-31T00:00:00Z
      evaluate:
        enabled: false
    assignments:
      - {id: a1, evaluator: mgr, evaluatee: emp}
`
	path := filepath.Join(dir, "kpi.yaml")
	if err := os.WriteFile(path, []byte(yaml), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestVersionCmd(t *testing.T) {
	out, err := runCmd(t, "", "version")
	if err != nil {
		t.Fatalf("version command failed: %v", err)
	}
	if !strings.Contains(out, "kpi dev") || !strings.Contains(out, "commit: none") {
		t.Errorf("unexpected output: %s", out)
	}
}

func TestVersionCmdWithCustomValues(t *testing.T) {
	origVersion, origCommit, origDate := Version, Commit, Date
	Version, Commit, Date = "1.0.0", "abc123", "2026-01-01"
	defer func() { Version, Commit, Date = origVersion, origCommit, origDate }()

	out, err := runCmd(t, "", "version")
	if err != nil {
		t.Fatalf("version command failed: %v", err)
	}
	if !strings.Contains(out, "kpi 1.0.0 (commit: abc123, built: 2026-01-01)") {
		t.Errorf("unexpected output: %s", out)
	}
}

func TestRootCmdHelp(t *testing.T) {
	out, err := runCmd(t, "", "--help")
	if err != nil {
		t.Fatalf("help failed: %v", err)
	}
	for _, sub := range []string{"db", "serve", "gates", "cycle", "notifications", "token", "version"} {
		if !strings.Contains(out, sub) {
			t.Errorf("help output missing %q", sub)
		}
	}
}

func TestMissingConfig(t *testing.T) {
	_, err := runCmd(t, "", "db", "init", "-c", filepath.Join(t.TempDir(), "nope.yaml"))
	if err == nil || !strings.Contains(err.Error(), "load config") {
		t.Errorf("err = %v, want load config error", err)
	}
}
