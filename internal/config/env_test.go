package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoadEnvFileMissingIsNoop(t *testing.T) {
	if err := LoadEnvFile(filepath.Join(t.TempDir(), "absent.env")); err != nil {
		t.Fatalf("missing file must be a no-op, got %v", err)
	}
}

func TestLoadEnvFileParsesEntries(t *testing.T) {
	path := filepath.Join(t.TempDir(), ".env")
	content := `# comment
FOO_FROM_FILE=bar

QUOTED_VALUE="with spaces"
SINGLE='single'
NOEQUALS_LINE
  SPACED_KEY = spaced value
`
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write: %v", err)
	}
	t.Setenv("FOO_FROM_FILE", "")
	_ = os.Unsetenv("FOO_FROM_FILE")
	t.Setenv("QUOTED_VALUE", "")
	_ = os.Unsetenv("QUOTED_VALUE")
	t.Setenv("SINGLE", "")
	_ = os.Unsetenv("SINGLE")
	t.Setenv("SPACED_KEY", "")
	_ = os.Unsetenv("SPACED_KEY")

	if err := LoadEnvFile(path); err != nil {
		t.Fatalf("load: %v", err)
	}
	if got := os.Getenv("FOO_FROM_FILE"); got != "bar" {
		t.Fatalf("FOO_FROM_FILE=%q", got)
	}
	if got := os.Getenv("QUOTED_VALUE"); got != "with spaces" {
		t.Fatalf("QUOTED_VALUE=%q", got)
	}
	if got := os.Getenv("SINGLE"); got != "single" {
		t.Fatalf("SINGLE=%q", got)
	}
	if got := os.Getenv("SPACED_KEY"); got != "spaced value" {
		t.Fatalf("SPACED_KEY=%q", got)
	}
}

func TestLoadEnvFileExistingEnvWins(t *testing.T) {
	path := filepath.Join(t.TempDir(), ".env")
	if err := os.WriteFile(path, []byte("PRESET_KEY=from-file\n"), 0o600); err != nil {
		t.Fatalf("write: %v", err)
	}
	t.Setenv("PRESET_KEY", "from-env")

	if err := LoadEnvFile(path); err != nil {
		t.Fatalf("load: %v", err)
	}
	if got := os.Getenv("PRESET_KEY"); got != "from-env" {
		t.Fatalf("existing env must win, got %q", got)
	}
}

func TestLoadEnvFileDirectory(t *testing.T) {
	if err := LoadEnvFile(t.TempDir()); err == nil {
		t.Fatal("expected error for directory path")
	}
}
