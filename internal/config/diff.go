package config

import "reflect"

// ConfigDiff describes what changed between two configs.
//
// Log level, front-end tuning and conversation settings can be applied
// without a restart: the log level immediately, the rest to sessions started
// afterwards. Everything else is listed in RestartRequired.
type ConfigDiff struct {
	LogLevelChanged bool
	NewLogLevel     LogLevel

	// FrontendChanged is true if the resolved front-end tuning differs.
	FrontendChanged bool

	// ConversationChanged is true if prompts, voice or sampling changed.
	ConversationChanged bool

	// RestartRequired names the top-level sections whose changes only take
	// effect after a restart (e.g., "providers.llm", "memory").
	RestartRequired []string
}

// Empty reports whether nothing changed.
func (d ConfigDiff) Empty() bool {
	return !d.LogLevelChanged && !d.FrontendChanged && !d.ConversationChanged && len(d.RestartRequired) == 0
}

// Diff compares old and new configs and returns what changed.
func Diff(old, new *Config) ConfigDiff {
	d := ConfigDiff{}

	if old.Server.LogLevel != new.Server.LogLevel {
		d.LogLevelChanged = true
		d.NewLogLevel = new.Server.LogLevel
	}
	d.FrontendChanged = old.Frontend.Resolve() != new.Frontend.Resolve()
	d.ConversationChanged = old.Conversation != new.Conversation

	restart := func(section string, a, b any) {
		if !reflect.DeepEqual(a, b) {
			d.RestartRequired = append(d.RestartRequired, section)
		}
	}
	restart("server.listen_addr", old.Server.ListenAddr, new.Server.ListenAddr)
	restart("server.tls", old.Server.TLS, new.Server.TLS)
	restart("server.allowed_origins", old.Server.AllowedOrigins, new.Server.AllowedOrigins)
	restart("providers.llm", old.Providers.LLM, new.Providers.LLM)
	restart("providers.stt", old.Providers.STT, new.Providers.STT)
	restart("providers.tts", old.Providers.TTS, new.Providers.TTS)
	restart("providers.vad", old.Providers.VAD, new.Providers.VAD)
	restart("providers.keyword", old.Providers.Keyword, new.Providers.Keyword)
	restart("memory", old.Memory, new.Memory)
	restart("sessions", old.Sessions, new.Sessions)

	return d
}
