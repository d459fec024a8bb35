package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestDefaultsAreNilSafe(t *testing.T) {
	c := Defaults()
	if c.CallTimeout() != 5*time.Second {
		t.Fatalf("got %s", c.CallTimeout())
	}
	if c.PingTimeout() != time.Second {
		t.Fatalf("got %s", c.PingTimeout())
	}
	if c.WakePollInterval() != 100*time.Millisecond {
		t.Fatalf("got %s", c.WakePollInterval())
	}
}

func TestLoadWithoutEnvVarKeepsDefaults(t *testing.T) {
	os.Unsetenv(EnvVar)
	if err := Load(); err != nil {
		t.Fatal(err)
	}
	if Cfg.CallTimeoutSeconds != 5.0 {
		t.Fatalf("got %v", Cfg.CallTimeoutSeconds)
	}
}

func TestParseConfigOverridesDefaults(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "neverliie.json")
	body := `{"call_timeout_seconds": 2.5, "log_level": "DBG"}`
	if err := os.WriteFile(path, []byte(body), 0644); err != nil {
		t.Fatal(err)
	}
	if err := ParseConfig(path); err != nil {
		t.Fatal(err)
	}
	defer func() { Cfg = Defaults() }()

	if Cfg.CallTimeoutSeconds != 2.5 {
		t.Fatalf("got %v", Cfg.CallTimeoutSeconds)
	}
	if Cfg.LogLevel != "DBG" {
		t.Fatalf("got %v", Cfg.LogLevel)
	}
	// fields absent from the file keep their default value
	if Cfg.WakePollIntervalMillis != 100 {
		t.Fatalf("got %v", Cfg.WakePollIntervalMillis)
	}
}

func TestParseConfigAppliesEnvSubstitution(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "neverliie.json")
	body := `{"environ": {"BASE": "/opt/custom"}, "registry_path": "${BASE}/registry.json"}`
	if err := os.WriteFile(path, []byte(body), 0644); err != nil {
		t.Fatal(err)
	}
	if err := ParseConfig(path); err != nil {
		t.Fatal(err)
	}
	defer func() { Cfg = Defaults() }()

	if Cfg.RegistryPath != "/opt/custom/registry.json" {
		t.Fatalf("got %q", Cfg.RegistryPath)
	}
}

func TestParseConfigMissingFile(t *testing.T) {
	if err := ParseConfig("/nonexistent/neverliie.json"); err == nil {
		t.Fatal("expected error for missing file")
	}
}
