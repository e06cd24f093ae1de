package config

import (
	"os"
	"path/filepath"
	"testing"
)

// --- Defaults ---

func TestDefaults_AreValid(t *testing.T) {
	cfg := Defaults()
	if err := Validate(cfg); err != nil {
		t.Fatalf("default config should validate, got: %v", err)
	}
	if cfg.General.DefaultProvider != "gemini" {
		t.Fatalf("expected default provider gemini, got %q", cfg.General.DefaultProvider)
	}
	if cfg.Pipeline.TimeoutSeconds < 60 {
		t.Fatalf("gateway timeout default must be >= 60s, got %d", cfg.Pipeline.TimeoutSeconds)
	}
}

// --- Load / Save roundtrip ---

func TestLoadSave_Roundtrip(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.json")

	cfg := Defaults()
	cfg.API.Port = 6001
	cfg.Source.Limit = 5
	if err := Save(path, cfg); err != nil {
		t.Fatalf("save: %v", err)
	}

	loaded, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if loaded.API.Port != 6001 {
		t.Fatalf("expected port 6001, got %d", loaded.API.Port)
	}
	if loaded.Source.Limit != 5 {
		t.Fatalf("expected source limit 5, got %d", loaded.Source.Limit)
	}
}

func TestLoad_MissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "nope.json")); err == nil {
		t.Fatal("expected error for missing config file")
	}
}

// --- Env expansion ---

func TestExpandEnvVars_SetVariable(t *testing.T) {
	os.Setenv("INBOXAGENT_TEST_KEY", "secret-123")
	defer os.Unsetenv("INBOXAGENT_TEST_KEY")

	got := ExpandEnvVars(`{"apiKey": "${INBOXAGENT_TEST_KEY}"}`)
	if got != `{"apiKey": "secret-123"}` {
		t.Fatalf("unexpected expansion: %s", got)
	}
}

func TestExpandEnvVars_DefaultValue(t *testing.T) {
	os.Unsetenv("INBOXAGENT_UNSET_VAR")
	got := ExpandEnvVars("${INBOXAGENT_UNSET_VAR:-fallback}")
	if got != "fallback" {
		t.Fatalf("expected 'fallback', got %q", got)
	}
}

func TestExpandEnvVars_UnsetWithoutDefault_Empty(t *testing.T) {
	os.Unsetenv("INBOXAGENT_UNSET_VAR")
	got := ExpandEnvVars("key=${INBOXAGENT_UNSET_VAR}")
	if got != "key=" {
		t.Fatalf("expected empty substitution, got %q", got)
	}
}

// --- Validation ---

func TestValidate_BadPipelineConcurrency(t *testing.T) {
	cfg := Defaults()
	cfg.Pipeline.Concurrency = 0
	if err := Validate(cfg); err == nil {
		t.Fatal("expected validation error for concurrency 0")
	}
}

func TestValidate_UnknownDefaultProvider(t *testing.T) {
	cfg := Defaults()
	cfg.General.DefaultProvider = "does-not-exist"
	if err := Validate(cfg); err == nil {
		t.Fatal("expected validation error for unknown default provider")
	}
}

func TestValidate_IMAPModeRequiresServer(t *testing.T) {
	cfg := Defaults()
	cfg.Source.Mode = "imap"
	cfg.Source.IMAP.Server = ""
	if err := Validate(cfg); err == nil {
		t.Fatal("expected validation error for imap mode without server")
	}
}

func TestValidate_FailoverChainReferences(t *testing.T) {
	cfg := Defaults()
	cfg.General.FailoverChain = []string{"gemini", "ghost"}
	if err := Validate(cfg); err == nil {
		t.Fatal("expected validation error for unknown failover provider")
	}
}
