package testutil

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestImportPredicates(t *testing.T) {
	forbidden := AnyOf(InfraImportForbidden, DriverImportForbidden)
	cases := []struct {
		in   string
		want bool
	}{
		{"stancore/internal/infra/persistence/memory", true},
		{"stancore/internal/blob", true},
		{"stancore/internal/blob/core", false},
		{"database/sql", true},
		{"database/sql/driver", true},
		{"github.com/jackc/pgx/v5/stdlib", true},
		{"modernc.org/sqlite", true},
		{"github.com/aws/aws-sdk-go-v2/service/s3", true},
		{"stancore/pkg/domain", false},
		{"context", false},
	}
	for _, c := range cases {
		if got := forbidden(c.in); got != c.want {
			t.Fatalf("forbidden(%q)=%v want %v", c.in, got, c.want)
		}
	}
}

type recordingFatal struct {
	msg string
}

func (r *recordingFatal) Fatalf(format string, _ ...any) { r.msg = format }

func TestDirectImportViolations(t *testing.T) {
	dir := t.TempDir()
	files := map[string]string{
		"ok.go":       "package tmp\nimport \"fmt\"\nfunc X() { fmt.Println(1) }\n",
		"bad.go":      "package tmp\nimport _ \"database/sql\"\n",
		"bad_test.go": "package tmp\nimport _ \"modernc.org/sqlite\"\n",
	}
	for name, src := range files {
		if err := os.WriteFile(filepath.Join(dir, name), []byte(src), 0o600); err != nil {
			t.Fatalf("write %s: %v", name, err)
		}
	}
	viols, err := directImportViolations(dir, DriverImportForbidden)
	if err != nil {
		t.Fatalf("scan: %v", err)
	}
	if len(viols) != 1 || !strings.HasPrefix(viols[0], "database/sql (in bad.go)") {
		t.Fatalf("unexpected violations %v", viols)
	}

	rec := &recordingFatal{}
	failIfViolations(rec, "drivers", viols)
	if rec.msg == "" {
		t.Fatalf("expected violations to fail")
	}
	rec = &recordingFatal{}
	failIfViolations(rec, "drivers", nil)
	if rec.msg != "" {
		t.Fatalf("expected no failure without violations")
	}
}

func TestAssertNoDirectImportsPasses(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "x.go"), []byte("package tmp\nimport \"fmt\"\nfunc X() { fmt.Println(1) }\n"), 0o600); err != nil {
		t.Fatalf("write: %v", err)
	}
	AssertNoDirectImports(t, dir, func(string) bool { return false }, "none")
}
