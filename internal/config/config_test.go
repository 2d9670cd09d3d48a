package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestFindConfig_Explicit(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "test.yml")
	os.WriteFile(path, []byte("api_port: 9999\n"), 0600)

	got, err := FindConfig(path)
	if err != nil {
		t.Fatalf("FindConfig(%q) error: %v", path, err)
	}
	if got != path {
		t.Errorf("FindConfig(%q) = %q, want %q", path, got, path)
	}
}

func TestFindConfig_ExplicitMissing(t *testing.T) {
	_, err := FindConfig("/nonexistent/config.yml")
	if err == nil {
		t.Fatal("FindConfig with missing explicit path should error")
	}
}

func TestFindConfig_SearchPath(t *testing.T) {
	dir := t.TempDir()
	orig := searchPathsFunc
	searchPathsFunc = func() []string {
		return []string{filepath.Join(dir, "config.yml")}
	}
	defer func() { searchPathsFunc = orig }()

	_, err := FindConfig("")
	if err == nil {
		t.Fatal("FindConfig(\"\") with no config files should error")
	}
}

func TestFindConfig_CWD(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yml")
	os.WriteFile(path, []byte("api_port: 8080\n"), 0600)

	orig := searchPathsFunc
	searchPathsFunc = func() []string {
		return []string{path}
	}
	defer func() { searchPathsFunc = orig }()

	got, err := FindConfig("")
	if err != nil {
		t.Fatalf("FindConfig(\"\") error: %v", err)
	}
	if got != path {
		t.Errorf("FindConfig(\"\") = %q, want %q", got, path)
	}
}

func TestLoad_Defaults(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yml")
	os.WriteFile(path, []byte("xmatch_radius: 5\n"), 0600)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.APIPort != 8080 {
		t.Errorf("APIPort default = %d, want 8080", cfg.APIPort)
	}
	if cfg.XMatchRadius != 5 {
		t.Errorf("XMatchRadius = %f, want 5", cfg.XMatchRadius)
	}
	if cfg.XMatchIDLen != 6 {
		t.Errorf("XMatchIDLen default = %d, want 6", cfg.XMatchIDLen)
	}
	if cfg.TNS.ObjPriorDays != 30 {
		t.Errorf("TNS.ObjPriorDays default = %d, want 30", cfg.TNS.ObjPriorDays)
	}
}

func TestLoad_EnvExpansion(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yml")
	os.WriteFile(path, []byte("tns:\n  url: ${TEST_TNS_URL}\n"), 0600)

	os.Setenv("TEST_TNS_URL", "https://example.test/tns")
	defer os.Unsetenv("TEST_TNS_URL")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.TNS.URL != "https://example.test/tns" {
		t.Errorf("TNS.URL = %q, want expanded env value", cfg.TNS.URL)
	}
}

func TestValidate_BadRadius(t *testing.T) {
	cfg := &Config{XMatchRadius: -1, XMatchWindowLen: 1, XMatchIDLen: 6, APIPort: 80}
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected error for non-positive xmatch_radius")
	}
}

func TestValidate_BadLogLevel(t *testing.T) {
	cfg := &Config{XMatchRadius: 1, XMatchWindowLen: 1, XMatchIDLen: 6, APIPort: 80, LogLevel: "nonsense"}
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected error for invalid log_level")
	}
}
