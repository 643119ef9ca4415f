package main

import (
	"fmt"
	"log/slog"
	"time"

	anyllmlib "github.com/mozilla-ai/any-llm-go"

	"github.com/MrWong99/agora/internal/app"
	"github.com/MrWong99/agora/internal/config"
	"github.com/MrWong99/agora/internal/resilience"
	"github.com/MrWong99/agora/pkg/objectstore"
	"github.com/MrWong99/agora/pkg/objectstore/supabase"
	"github.com/MrWong99/agora/pkg/provider/llm"
	"github.com/MrWong99/agora/pkg/provider/llm/anyllm"
	"github.com/MrWong99/agora/pkg/provider/llm/gateway"
	oaillm "github.com/MrWong99/agora/pkg/provider/llm/openai"
	"github.com/MrWong99/agora/pkg/provider/stt"
	"github.com/MrWong99/agora/pkg/provider/stt/deepgram"
	oaistt "github.com/MrWong99/agora/pkg/provider/stt/openai"
	"github.com/MrWong99/agora/pkg/provider/stt/whisper"
	"github.com/MrWong99/agora/pkg/provider/tts"
	"github.com/MrWong99/agora/pkg/provider/tts/elevenlabs"
	oaitts "github.com/MrWong99/agora/pkg/provider/tts/openai"
)

// anyLLMBackends are served through any-llm-go. They share the same pattern:
// optional APIKey + optional BaseURL.
var anyLLMBackends = []string{
	"anthropic", "gemini", "deepseek", "mistral", "groq", "ollama", "llamacpp", "llamafile",
}

// registerBuiltinProviders wires all built-in provider factories into reg.
// Each factory receives a config entry and constructs the appropriate
// provider from the real implementation packages.
func registerBuiltinProviders(reg *config.Registry) {
	// ── LLM ───────────────────────────────────────────────────────────────────

	reg.RegisterLLM("gateway", func(entry config.ProviderEntry) (llm.Provider, error) {
		var opts []gateway.Option
		if entry.BaseURL != "" {
			opts = append(opts, gateway.WithBaseURL(entry.BaseURL))
		}
		if entry.Model != "" {
			opts = append(opts, gateway.WithModel(entry.Model))
		}
		if d, err := optDuration(entry, "timeout"); err != nil {
			return nil, err
		} else if d > 0 {
			opts = append(opts, gateway.WithTimeout(d))
		}
		return gateway.New(entry.APIKey, opts...)
	})

	reg.RegisterLLM("openai", func(entry config.ProviderEntry) (llm.Provider, error) {
		var opts []oaillm.Option
		if entry.BaseURL != "" {
			opts = append(opts, oaillm.WithBaseURL(entry.BaseURL))
		}
		if org := entry.Option("organization"); org != "" {
			opts = append(opts, oaillm.WithOrganization(org))
		}
		if d, err := optDuration(entry, "timeout"); err != nil {
			return nil, err
		} else if d > 0 {
			opts = append(opts, oaillm.WithTimeout(d))
		}
		return oaillm.New(entry.APIKey, entry.Model, opts...)
	})

	for _, name := range anyLLMBackends {
		reg.RegisterLLM(name, func(entry config.ProviderEntry) (llm.Provider, error) {
			var opts []anyllmlib.Option
			if entry.APIKey != "" {
				opts = append(opts, anyllmlib.WithAPIKey(entry.APIKey))
			}
			if entry.BaseURL != "" {
				opts = append(opts, anyllmlib.WithBaseURL(entry.BaseURL))
			}
			return anyllm.New(name, entry.Model, opts...)
		})
	}

	// ── STT ───────────────────────────────────────────────────────────────────

	reg.RegisterSTT("openai", func(entry config.ProviderEntry) (stt.Provider, error) {
		var opts []oaistt.Option
		if entry.BaseURL != "" {
			opts = append(opts, oaistt.WithBaseURL(entry.BaseURL))
		}
		if entry.Model != "" {
			opts = append(opts, oaistt.WithModel(entry.Model))
		}
		if lang := entry.Option("language"); lang != "" {
			opts = append(opts, oaistt.WithLanguage(lang))
		}
		return oaistt.New(entry.APIKey, opts...)
	})

	reg.RegisterSTT("whisper", func(entry config.ProviderEntry) (stt.Provider, error) {
		var opts []whisper.Option
		if entry.Model != "" {
			opts = append(opts, whisper.WithModel(entry.Model))
		}
		if lang := entry.Option("language"); lang != "" {
			opts = append(opts, whisper.WithLanguage(lang))
		}
		if ep := entry.Option("endpoint"); ep != "" {
			opts = append(opts, whisper.WithEndpoint(ep))
		}
		if entry.APIKey != "" {
			opts = append(opts, whisper.WithAPIKey(entry.APIKey))
		}
		return whisper.New(entry.BaseURL, opts...)
	})

	reg.RegisterSTT("deepgram", func(entry config.ProviderEntry) (stt.Provider, error) {
		var opts []deepgram.Option
		if entry.Model != "" {
			opts = append(opts, deepgram.WithModel(entry.Model))
		}
		if lang := entry.Option("language"); lang != "" {
			opts = append(opts, deepgram.WithLanguage(lang))
		}
		if entry.BaseURL != "" {
			opts = append(opts, deepgram.WithEndpoint(entry.BaseURL))
		}
		return deepgram.New(entry.APIKey, opts...)
	})

	// ── TTS ───────────────────────────────────────────────────────────────────

	reg.RegisterTTS("openai", func(entry config.ProviderEntry) (tts.Provider, error) {
		var opts []oaitts.Option
		if entry.BaseURL != "" {
			opts = append(opts, oaitts.WithBaseURL(entry.BaseURL))
		}
		if entry.Model != "" {
			opts = append(opts, oaitts.WithModel(entry.Model))
		}
		if v := entry.Option("voice"); v != "" {
			opts = append(opts, oaitts.WithVoice(v))
		}
		if d, err := optDuration(entry, "timeout"); err != nil {
			return nil, err
		} else if d > 0 {
			opts = append(opts, oaitts.WithTimeout(d))
		}
		return oaitts.New(entry.APIKey, opts...)
	})

	reg.RegisterTTS("elevenlabs", func(entry config.ProviderEntry) (tts.Provider, error) {
		var opts []elevenlabs.Option
		if entry.Model != "" {
			opts = append(opts, elevenlabs.WithModel(entry.Model))
		}
		if f := entry.Option("output_format"); f != "" {
			opts = append(opts, elevenlabs.WithOutputFormat(f))
		}
		if id := entry.Option("voice_id"); id != "" {
			opts = append(opts, elevenlabs.WithVoiceID(id))
		}
		if entry.BaseURL != "" {
			opts = append(opts, elevenlabs.WithBaseURL(entry.BaseURL))
		}
		return elevenlabs.New(entry.APIKey, opts...)
	})

	// ── Object storage ────────────────────────────────────────────────────────

	reg.RegisterStorage("supabase", func(sc config.StorageConfig) (objectstore.Store, error) {
		var opts []supabase.Option
		if sc.Bucket != "" {
			opts = append(opts, supabase.WithBucket(sc.Bucket))
		}
		return supabase.New(sc.URL, sc.APIKey, opts...)
	})

	for kind, names := range reg.Names() {
		for _, name := range names {
			slog.Debug("registered provider", "kind", kind, "name", name)
		}
	}
}

// buildProviders instantiates all providers named in cfg using the registry
// and returns them in an [app.Providers] struct for the application to consume.
// LLM, STT and TTS must resolve; storage is optional. A provider with
// fallbacks is wrapped in a resilience fallback group.
func buildProviders(cfg *config.Config, reg *config.Registry) (*app.Providers, error) {
	ps := &app.Providers{}
	fc := fallbackConfig(cfg.Providers.CircuitBreaker)

	l, err := buildLLM(reg, cfg.Providers.LLM, fc)
	if err != nil {
		return nil, fmt.Errorf("create llm provider %q: %w", cfg.Providers.LLM.Name, err)
	}
	ps.LLM = l

	s, err := buildSTT(reg, cfg.Providers.STT, fc)
	if err != nil {
		return nil, fmt.Errorf("create stt provider %q: %w", cfg.Providers.STT.Name, err)
	}
	ps.STT = s

	t, err := buildTTS(reg, cfg.Providers.TTS, fc)
	if err != nil {
		return nil, fmt.Errorf("create tts provider %q: %w", cfg.Providers.TTS.Name, err)
	}
	ps.TTS = t

	if name := cfg.Storage.Name; name != "" {
		o, err := reg.CreateStorage(cfg.Storage)
		if err != nil {
			return nil, fmt.Errorf("create storage %q: %w", name, err)
		}
		ps.Objects = o
		slog.Info("provider created", "kind", "storage", "name", name, "bucket", cfg.Storage.Bucket)
	}

	return ps, nil
}

func buildLLM(reg *config.Registry, entry config.ProviderEntry, fc resilience.FallbackConfig) (llm.Provider, error) {
	primary, err := reg.CreateLLM(entry)
	if err != nil {
		return nil, err
	}
	logCreated("llm", entry)
	if len(entry.Fallbacks) == 0 {
		return primary, nil
	}
	fb := resilience.NewLLMFallback(primary, providerLabel(entry), fc)
	for _, e := range entry.Fallbacks {
		p, err := reg.CreateLLM(e)
		if err != nil {
			return nil, fmt.Errorf("fallback %q: %w", e.Name, err)
		}
		fb.AddFallback(providerLabel(e), p)
	}
	slog.Info("llm fallbacks enabled", "order", fb.Group().Names())
	return fb, nil
}

func buildSTT(reg *config.Registry, entry config.ProviderEntry, fc resilience.FallbackConfig) (stt.Provider, error) {
	primary, err := reg.CreateSTT(entry)
	if err != nil {
		return nil, err
	}
	logCreated("stt", entry)
	if len(entry.Fallbacks) == 0 {
		return primary, nil
	}
	fb := resilience.NewSTTFallback(primary, providerLabel(entry), fc)
	for _, e := range entry.Fallbacks {
		p, err := reg.CreateSTT(e)
		if err != nil {
			return nil, fmt.Errorf("fallback %q: %w", e.Name, err)
		}
		fb.AddFallback(providerLabel(e), p)
	}
	slog.Info("stt fallbacks enabled", "count", len(entry.Fallbacks))
	return fb, nil
}

func buildTTS(reg *config.Registry, entry config.ProviderEntry, fc resilience.FallbackConfig) (tts.Provider, error) {
	primary, err := reg.CreateTTS(entry)
	if err != nil {
		return nil, err
	}
	logCreated("tts", entry)
	if len(entry.Fallbacks) == 0 {
		return primary, nil
	}
	fb := resilience.NewTTSFallback(primary, providerLabel(entry), fc)
	for _, e := range entry.Fallbacks {
		p, err := reg.CreateTTS(e)
		if err != nil {
			return nil, fmt.Errorf("fallback %q: %w", e.Name, err)
		}
		fb.AddFallback(providerLabel(e), p)
	}
	slog.Info("tts fallbacks enabled", "count", len(entry.Fallbacks))
	return fb, nil
}

func fallbackConfig(cb config.CircuitBreakerConfig) resilience.FallbackConfig {
	return resilience.FallbackConfig{CircuitBreaker: resilience.CircuitBreakerConfig{
		MaxFailures:  cb.MaxFailures,
		ResetTimeout: cb.ResetTimeout,
		HalfOpenMax:  cb.HalfOpenMax,
	}}
}

// providerLabel names a provider in logs and breaker state. The model is
// included so two entries of the same provider stay distinguishable.
func providerLabel(e config.ProviderEntry) string {
	if e.Model == "" {
		return e.Name
	}
	return e.Name + ":" + e.Model
}

func logCreated(kind string, e config.ProviderEntry) {
	slog.Info("provider created", "kind", kind, "name", e.Name, "model", e.Model)
}

// optDuration parses entry.Options[key] as a Go duration ("30s"). A missing
// key yields zero.
func optDuration(entry config.ProviderEntry, key string) (time.Duration, error) {
	s := entry.Option(key)
	if s == "" {
		return 0, nil
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0, fmt.Errorf("%s option %q: %w", entry.Name, key, err)
	}
	return d, nil
}
