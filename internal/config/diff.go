package config

// ConfigDiff describes what changed between two configs.
// Only the log level is applied without a restart; every other changed
// section is listed in RestartRequired.
type ConfigDiff struct {
	LogLevelChanged bool
	NewLogLevel     LogLevel

	// RestartRequired names the top-level sections (e.g. "providers.llm",
	// "database") whose new values only take effect after a restart.
	RestartRequired []string
}

// Changed reports whether anything differs.
func (d ConfigDiff) Changed() bool {
	return d.LogLevelChanged || len(d.RestartRequired) > 0
}

// Diff compares old and new configs and returns what changed.
func Diff(old, new *Config) ConfigDiff {
	d := ConfigDiff{}

	if old.Server.LogLevel != new.Server.LogLevel {
		d.LogLevelChanged = true
		d.NewLogLevel = new.Server.LogLevel
	}

	oldServer, newServer := old.Server, new.Server
	oldServer.LogLevel, newServer.LogLevel = "", ""

	sections := []struct {
		name    string
		changed bool
	}{
		{"server", oldServer != newServer},
		{"database", old.Database != new.Database},
		{"auth", old.Auth != new.Auth},
		{"providers.llm", !sameEntry(old.Providers.LLM, new.Providers.LLM)},
		{"providers.stt", !sameEntry(old.Providers.STT, new.Providers.STT)},
		{"providers.tts", !sameEntry(old.Providers.TTS, new.Providers.TTS)},
		{"providers.circuit_breaker", old.Providers.CircuitBreaker != new.Providers.CircuitBreaker},
		{"storage", old.Storage != new.Storage},
		{"chat", old.Chat != new.Chat},
		{"voice", old.Voice != new.Voice},
		{"quiz", old.Quiz != new.Quiz},
	}
	for _, s := range sections {
		if s.changed {
			d.RestartRequired = append(d.RestartRequired, s.name)
		}
	}
	return d
}

// sameEntry compares two provider entries including their fallbacks.
// Options are compared by their string keys and formatted values.
func sameEntry(a, b ProviderEntry) bool {
	if a.Name != b.Name || a.APIKey != b.APIKey || a.BaseURL != b.BaseURL || a.Model != b.Model {
		return false
	}
	if len(a.Options) != len(b.Options) || len(a.Fallbacks) != len(b.Fallbacks) {
		return false
	}
	for i := range a.Fallbacks {
		if !sameEntry(a.Fallbacks[i], b.Fallbacks[i]) {
			return false
		}
	}
	for k, av := range a.Options {
		bv, ok := b.Options[k]
		if !ok || optString(av) != optString(bv) {
			return false
		}
	}
	return true
}
