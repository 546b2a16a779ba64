package migrate

import (
	"context"
	"io/fs"
	"testing"
)

func TestParseVersion(t *testing.T) {
	if v, err := parseVersion(" 20260301090300 "); err != nil || v != 20260301090300 {
		t.Fatalf("expected version got %d %v", v, err)
	}
	for _, raw := range []string{"", "2026", "2026030109030x", "202603010903001"} {
		if _, err := parseVersion(raw); err == nil {
			t.Fatalf("expected error for %q", raw)
		}
	}
}

func TestMigrationsAreEmbedded(t *testing.T) {
	embeddedNames, err := fs.Glob(embedded, embeddedDir+"/*.sql")
	if err != nil {
		t.Fatalf("glob embedded: %v", err)
	}
	if len(embeddedNames) == 0 {
		t.Fatal("no migrations embedded")
	}
	if err := ValidateDir(embeddedDir); err != nil {
		t.Fatalf("validate on-disk migrations: %v", err)
	}
}

func TestRunnerRequiresDB(t *testing.T) {
	if err := (Runner{}).Run(context.Background(), "up"); err == nil {
		t.Fatal("expected error without db")
	}
	if err := (Runner{}).ToVersion(context.Background(), "20260301090300"); err == nil {
		t.Fatal("expected error without db")
	}
}
