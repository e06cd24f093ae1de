package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
)

// Config is the root configuration for inboxagent.
type Config struct {
	General   GeneralConfig             `json:"general"`
	Providers map[string]ProviderConfig `json:"providers"`
	API       APIConfig                 `json:"api"`
	Pipeline  PipelineConfig            `json:"pipeline"`
	Source    SourceConfig              `json:"source"`
	Metrics   MetricsConfig             `json:"metrics"`
}

type GeneralConfig struct {
	DataDir         string   `json:"dataDir"`
	LogLevel        string   `json:"logLevel"`
	LogFile         string   `json:"logFile,omitempty"`
	DefaultProvider string   `json:"defaultProvider"`
	FailoverChain   []string `json:"failoverChain,omitempty"` // provider fallback order
}

type ProviderConfig struct {
	Enabled      bool   `json:"enabled"`
	APIBase      string `json:"apiBase,omitempty"`
	APIKey       string `json:"apiKey,omitempty"`
	DefaultModel string `json:"defaultModel,omitempty"`
}

type APIConfig struct {
	Host string `json:"host"`
	Port int    `json:"port"`
}

// PipelineConfig tunes the annotation pipeline.
type PipelineConfig struct {
	Concurrency    int `json:"concurrency"`    // parallel gateway calls across emails
	TimeoutSeconds int `json:"timeoutSeconds"` // per gateway call; generation can take tens of seconds
}

// SourceConfig selects where seeded emails come from.
type SourceConfig struct {
	Mode  string     `json:"mode"` // "mock" | "imap"
	Limit int        `json:"limit"`
	IMAP  IMAPConfig `json:"imap,omitempty"`
}

type IMAPConfig struct {
	Server   string `json:"server"` // host:port
	Username string `json:"username"`
	Password string `json:"password"`
	Mailbox  string `json:"mailbox,omitempty"`
}

type MetricsConfig struct {
	Enabled  bool   `json:"enabled"`
	Endpoint string `json:"endpoint"`
}

// Defaults returns the default configuration: mock source, Gemini provider
// keyed from the environment, local-only API.
func Defaults() *Config {
	return &Config{
		General: GeneralConfig{
			DataDir:         "~/.inboxagent",
			LogLevel:        "info",
			DefaultProvider: "gemini",
		},
		Providers: map[string]ProviderConfig{
			"gemini": {
				Enabled:      true,
				APIKey:       "${GEMINI_API_KEY}",
				DefaultModel: "gemini-2.5-flash",
			},
			"openai": {
				Enabled:      false,
				APIKey:       "${OPENAI_API_KEY}",
				DefaultModel: "gpt-4o-mini",
			},
			"ollama": {
				Enabled:      false,
				APIBase:      "http://localhost:11434",
				DefaultModel: "llama3.2",
			},
		},
		API: APIConfig{
			Host: "127.0.0.1",
			Port: 5001,
		},
		Pipeline: PipelineConfig{
			Concurrency:    3,
			TimeoutSeconds: 90,
		},
		Source: SourceConfig{
			Mode:  "mock",
			Limit: 20,
			IMAP:  IMAPConfig{Mailbox: "INBOX"},
		},
		Metrics: MetricsConfig{
			Enabled:  true,
			Endpoint: "/metrics",
		},
	}
}

// DefaultConfigDir returns the default config directory (~/.inboxagent).
func DefaultConfigDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".inboxagent"
	}
	return filepath.Join(home, ".inboxagent")
}

func DefaultConfigPath() string {
	return filepath.Join(DefaultConfigDir(), "config.json")
}

func Load(path string) (*Config, error) {
	path = ExpandPath(path)

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("cannot read config file %s: %w", path, err)
	}

	// Substitute environment variables: ${VAR} and ${VAR:-default}
	data = []byte(ExpandEnvVars(string(data)))

	cfg := Defaults()
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("cannot parse config file %s: %w", path, err)
	}

	cfg.General.DataDir = ExpandPath(cfg.General.DataDir)
	cfg.General.LogFile = ExpandPath(cfg.General.LogFile)

	if err := Validate(cfg); err != nil {
		return nil, fmt.Errorf("config validation: %w", err)
	}

	return cfg, nil
}

// envVarPattern matches ${VAR} and ${VAR:-default} patterns in config strings.
var envVarPattern = regexp.MustCompile(`\$\{([A-Za-z_][A-Za-z0-9_]*)(?::-(.*?))?\}`)

// ExpandEnvVars replaces ${VAR} with the environment variable value.
// Supports default values: ${VAR:-default} uses "default" when VAR is unset
// or empty. An unset variable without a default becomes the empty string so
// a missing API key reads as "not configured" rather than a literal
// placeholder.
func ExpandEnvVars(input string) string {
	return envVarPattern.ReplaceAllStringFunc(input, func(match string) string {
		groups := envVarPattern.FindStringSubmatch(match)
		if len(groups) < 2 {
			return match
		}
		varName := groups[1]
		defaultVal := ""
		hasDefault := len(groups) >= 3 && groups[2] != ""
		if hasDefault {
			defaultVal = groups[2]
		}

		val, exists := os.LookupEnv(varName)
		if !exists || val == "" {
			return defaultVal
		}
		return val
	})
}

func Save(path string, cfg *Config) error {
	path = ExpandPath(path)
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("cannot create config directory: %w", err)
	}

	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return fmt.Errorf("cannot marshal config: %w", err)
	}

	return os.WriteFile(path, data, 0o644)
}

// Validate checks that the config has valid values.
func Validate(cfg *Config) error {
	var errs []string

	if cfg.API.Port < 0 || cfg.API.Port > 65535 {
		errs = append(errs, "api.port must be between 0 and 65535")
	}
	if cfg.Pipeline.Concurrency < 1 || cfg.Pipeline.Concurrency > 64 {
		errs = append(errs, "pipeline.concurrency must be between 1 and 64")
	}
	if cfg.Pipeline.TimeoutSeconds < 1 {
		errs = append(errs, "pipeline.timeoutSeconds must be >= 1")
	}

	switch cfg.Source.Mode {
	case "mock", "imap":
		// valid
	default:
		errs = append(errs, "source.mode must be one of: mock, imap")
	}
	if cfg.Source.Mode == "imap" && cfg.Source.IMAP.Server == "" {
		errs = append(errs, "source.imap.server is required for imap mode")
	}

	if cfg.General.DefaultProvider != "" {
		if _, ok := cfg.Providers[cfg.General.DefaultProvider]; !ok {
			errs = append(errs, fmt.Sprintf("general.defaultProvider references unknown provider: %s", cfg.General.DefaultProvider))
		}
	}

	// Validate failover chain references exist in providers.
	for _, provName := range cfg.General.FailoverChain {
		if _, ok := cfg.Providers[provName]; !ok {
			errs = append(errs, fmt.Sprintf("general.failoverChain references unknown provider: %s", provName))
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation errors:\n  - %s", strings.Join(errs, "\n  - "))
	}
	return nil
}

// ExpandPath resolves ~/ to the user's home directory.
func ExpandPath(path string) string {
	if strings.HasPrefix(path, "~/") {
		home, err := os.UserHomeDir()
		if err != nil {
			return path
		}
		return filepath.Join(home, path[2:])
	}
	return path
}
