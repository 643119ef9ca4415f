package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"slices"

	"gopkg.in/yaml.v3"
)

// ValidProviderNames lists known provider names per provider kind.
// Used by [Validate] to warn about unrecognised provider names.
var ValidProviderNames = map[string][]string{
	"llm":     {"gateway", "openai", "anthropic", "ollama", "gemini", "deepseek", "mistral", "groq", "llamacpp", "llamafile"},
	"stt":     {"openai", "whisper", "deepgram"},
	"tts":     {"openai", "elevenlabs"},
	"storage": {"supabase"},
}

var validDifficulties = []string{"easy", "medium", "hard"}

// Load reads the YAML configuration file at path and returns a validated [Config].
// It is a convenience wrapper around [LoadFromReader].
func Load(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("config: open %q: %w", path, err)
	}
	defer f.Close()

	cfg, err := LoadFromReader(f)
	if err != nil {
		return nil, fmt.Errorf("config: parse %q: %w", path, err)
	}
	return cfg, nil
}

// LoadFromReader decodes a YAML config from r, applies defaults and validates
// the result. ${VAR} and $VAR references are replaced with environment values
// before decoding so secrets can stay out of the file.
func LoadFromReader(r io.Reader) (*Config, error) {
	raw, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("config: read: %w", err)
	}
	expanded := os.ExpandEnv(string(raw))

	cfg := &Config{}
	dec := yaml.NewDecoder(bytes.NewReader([]byte(expanded)))
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("config: decode yaml: %w", err)
	}
	ApplyDefaults(cfg)
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks that cfg contains a coherent set of values.
// It returns a joined error listing all validation failures found.
func Validate(cfg *Config) error {
	var errs []error

	// Server
	if cfg.Server.LogLevel != "" && !cfg.Server.LogLevel.IsValid() {
		errs = append(errs, fmt.Errorf("server.log_level %q is invalid; valid values: debug, info, warn, error", cfg.Server.LogLevel))
	}
	if cfg.Server.ShutdownTimeout < 0 {
		errs = append(errs, fmt.Errorf("server.shutdown_timeout %s must not be negative", cfg.Server.ShutdownTimeout))
	}
	if r := cfg.Server.TraceSampleRatio; r < 0 || r > 1 {
		errs = append(errs, fmt.Errorf("server.trace_sample_ratio %v must be between 0 and 1", r))
	}
	if cfg.Server.MetricsAddr != "" && cfg.Server.MetricsAddr == cfg.Server.ListenAddr {
		errs = append(errs, fmt.Errorf("server.metrics_addr %q must differ from server.listen_addr; leave it empty to share the listener", cfg.Server.MetricsAddr))
	}

	// Database
	if cfg.Database.PostgresDSN == "" {
		errs = append(errs, errors.New("database.postgres_dsn is required"))
	}

	// Auth
	if cfg.Auth.JWTSecret == "" {
		errs = append(errs, errors.New("auth.jwt_secret is required"))
	}

	// Providers
	for kind, e := range map[string]ProviderEntry{
		"llm": cfg.Providers.LLM,
		"stt": cfg.Providers.STT,
		"tts": cfg.Providers.TTS,
	} {
		validateProviderName(kind, e.Name)
		for i, fb := range e.Fallbacks {
			if fb.Name == "" {
				errs = append(errs, fmt.Errorf("providers.%s.fallbacks[%d].name is required", kind, i))
				continue
			}
			validateProviderName(kind, fb.Name)
		}
	}
	if cb := cfg.Providers.CircuitBreaker; cb.MaxFailures < 0 || cb.ResetTimeout < 0 || cb.HalfOpenMax < 0 {
		errs = append(errs, errors.New("providers.circuit_breaker values must not be negative"))
	}

	// Storage
	if cfg.Storage.Name != "" {
		validateProviderName("storage", cfg.Storage.Name)
		if cfg.Storage.URL == "" {
			errs = append(errs, fmt.Errorf("storage.url is required when storage.name is %q", cfg.Storage.Name))
		}
		if cfg.Storage.APIKey == "" {
			errs = append(errs, fmt.Errorf("storage.api_key is required when storage.name is %q", cfg.Storage.Name))
		}
	} else {
		slog.Warn("storage.name is empty; PDF uploads are disabled")
	}

	// Quiz
	if d := cfg.Quiz.DefaultDifficulty; d != "" && !slices.Contains(validDifficulties, d) {
		errs = append(errs, fmt.Errorf("quiz.default_difficulty %q is invalid; valid values: easy, medium, hard", d))
	}

	return errors.Join(errs...)
}

// validateProviderName logs a warning if name is non-empty and not found in
// the [ValidProviderNames] list for the given kind.
func validateProviderName(kind, name string) {
	if name == "" {
		return
	}
	known, ok := ValidProviderNames[kind]
	if !ok {
		return
	}
	if slices.Contains(known, name) {
		return
	}
	slog.Warn("unknown provider name, may be a typo or third-party provider",
		"kind", kind,
		"name", name,
		"known", known,
	)
}
