package config

import (
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
	"llm":     {"openai", "anthropic", "ollama", "gemini", "deepseek", "mistral", "groq", "llamacpp", "llamafile"},
	"stt":     {"whisper", "openai", "groq"},
	"tts":     {"deepgram", "elevenlabs"},
	"vad":     {"energy"},
	"keyword": {"tfserving"},
}

// Defaults applied by [ApplyDefaults].
const (
	DefaultListenAddr    = ":8080"
	DefaultMaxConcurrent = 4
	DefaultVAD           = "energy"
)

// Load reads the YAML configuration file at path and returns a validated [Config].
// It is a convenience wrapper around [LoadFromReader] and [Validate].
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

// LoadFromReader decodes a YAML config from r, fills in defaults and validates
// the result. Useful in tests where configs are constructed from string literals.
func LoadFromReader(r io.Reader) (*Config, error) {
	cfg := &Config{}
	dec := yaml.NewDecoder(r)
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

// ApplyDefaults fills unset top-level fields. Front-end defaults are applied
// later by [FrontendConfig.Resolve].
func ApplyDefaults(cfg *Config) {
	if cfg.Server.ListenAddr == "" {
		cfg.Server.ListenAddr = DefaultListenAddr
	}
	if cfg.Server.LogLevel == "" {
		cfg.Server.LogLevel = LogInfo
	}
	if cfg.Providers.VAD.Name == "" {
		cfg.Providers.VAD.Name = DefaultVAD
	}
	if cfg.Sessions.MaxConcurrent == 0 {
		cfg.Sessions.MaxConcurrent = DefaultMaxConcurrent
	}
}

// Validate checks that cfg contains a coherent set of values.
// It returns a joined error listing all validation failures found.
func Validate(cfg *Config) error {
	var errs []error

	// Server
	if cfg.Server.LogLevel != "" && !cfg.Server.LogLevel.IsValid() {
		errs = append(errs, fmt.Errorf("server.log_level %q is invalid; valid values: debug, info, warn, error", cfg.Server.LogLevel))
	}
	if tls := cfg.Server.TLS; tls != nil && (tls.CertFile == "" || tls.KeyFile == "") {
		errs = append(errs, errors.New("server.tls requires both cert_file and key_file"))
	}

	// Providers
	p := cfg.Providers
	if p.LLM.Name == "" {
		errs = append(errs, errors.New("providers.llm is required"))
	}
	if p.TTS.Name == "" {
		errs = append(errs, errors.New("providers.tts is required"))
	}
	errs = append(errs, validateEntry("llm", p.LLM, true)...)
	errs = append(errs, validateEntry("stt", p.STT, true)...)
	errs = append(errs, validateEntry("tts", p.TTS, true)...)
	errs = append(errs, validateEntry("vad", p.VAD, false)...)
	errs = append(errs, validateEntry("keyword", p.Keyword, false)...)
	if p.STT.Name == "" || p.VAD.Name == "" || p.Keyword.Name == "" {
		slog.Warn("providers.stt, providers.vad and providers.keyword are all needed for voice sessions; only text turns will be served")
	}

	// Front-end
	if err := cfg.Frontend.Resolve().Validate(); err != nil {
		errs = append(errs, err)
	}

	// Conversation
	if v := cfg.Conversation.Voice.SpeedFactor; v != 0 && (v < 0.5 || v > 2.0) {
		errs = append(errs, fmt.Errorf("conversation.voice.speed_factor %.2f is out of range [0.5, 2.0]", v))
	}
	if t := cfg.Conversation.Temperature; t < 0 || t > 2 {
		errs = append(errs, fmt.Errorf("conversation.temperature %.2f is out of range [0, 2]", t))
	}
	if cfg.Conversation.MaxTokens < 0 {
		errs = append(errs, fmt.Errorf("conversation.max_tokens must not be negative, got %d", cfg.Conversation.MaxTokens))
	}
	if cfg.Conversation.ContextWindow < 0 {
		errs = append(errs, fmt.Errorf("conversation.context_window must not be negative, got %d", cfg.Conversation.ContextWindow))
	}

	// Memory
	if cfg.Memory.PostgresDSN == "" {
		slog.Warn("memory.postgres_dsn is empty; transcripts will not be persisted")
	}

	// Sessions
	if cfg.Sessions.MaxConcurrent < 0 {
		errs = append(errs, fmt.Errorf("sessions.max_concurrent must not be negative, got %d", cfg.Sessions.MaxConcurrent))
	}
	if cfg.Sessions.MaxDuration < 0 {
		errs = append(errs, fmt.Errorf("sessions.max_duration must not be negative, got %s", cfg.Sessions.MaxDuration))
	}

	return errors.Join(errs...)
}

// validateEntry checks one provider block and its fallbacks.
func validateEntry(kind string, e ProviderEntry, fallbacksAllowed bool) []error {
	var errs []error
	validateProviderName(kind, e.Name)
	if len(e.Fallbacks) > 0 && !fallbacksAllowed {
		errs = append(errs, fmt.Errorf("providers.%s.fallbacks is not supported", kind))
	}
	if len(e.Fallbacks) > 0 && e.Name == "" {
		errs = append(errs, fmt.Errorf("providers.%s.fallbacks requires providers.%s.name", kind, kind))
	}
	for i, fb := range e.Fallbacks {
		prefix := fmt.Sprintf("providers.%s.fallbacks[%d]", kind, i)
		if fb.Name == "" {
			errs = append(errs, fmt.Errorf("%s.name is required", prefix))
		}
		if len(fb.Fallbacks) > 0 {
			errs = append(errs, fmt.Errorf("%s.fallbacks cannot be nested", prefix))
		}
		validateProviderName(kind, fb.Name)
	}
	return errs
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
	slog.Warn("unknown provider name; may be a typo or third-party provider",
		"kind", kind,
		"name", name,
		"known", known,
	)
}
