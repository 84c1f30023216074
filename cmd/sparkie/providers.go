package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	anyllmlib "github.com/mozilla-ai/any-llm-go"

	"github.com/MrWong99/sparkie/internal/app"
	"github.com/MrWong99/sparkie/internal/config"
	"github.com/MrWong99/sparkie/internal/observe"
	"github.com/MrWong99/sparkie/internal/resilience"
	"github.com/MrWong99/sparkie/pkg/provider/keyword"
	"github.com/MrWong99/sparkie/pkg/provider/keyword/tfserving"
	"github.com/MrWong99/sparkie/pkg/provider/llm"
	"github.com/MrWong99/sparkie/pkg/provider/llm/anyllm"
	oaillm "github.com/MrWong99/sparkie/pkg/provider/llm/openai"
	"github.com/MrWong99/sparkie/pkg/provider/stt"
	oaistt "github.com/MrWong99/sparkie/pkg/provider/stt/openai"
	"github.com/MrWong99/sparkie/pkg/provider/stt/whisper"
	"github.com/MrWong99/sparkie/pkg/provider/tts"
	"github.com/MrWong99/sparkie/pkg/provider/tts/deepgram"
	"github.com/MrWong99/sparkie/pkg/provider/tts/elevenlabs"
	"github.com/MrWong99/sparkie/pkg/provider/vad"
	"github.com/MrWong99/sparkie/pkg/provider/vad/energy"
)

// groqBaseURL is Groq's OpenAI-compatible endpoint, used by the "groq" STT
// provider when no base_url is configured.
const groqBaseURL = "https://api.groq.com/openai/v1"

// registerBuiltinProviders wires all built-in provider factories into reg.
func registerBuiltinProviders(reg *config.Registry) {
	// ── LLM ───────────────────────────────────────────────────────────────────

	reg.RegisterLLM("openai", func(entry config.ProviderEntry) (llm.Provider, error) {
		var opts []oaillm.Option
		if entry.BaseURL != "" {
			opts = append(opts, oaillm.WithBaseURL(entry.BaseURL))
		}
		if org := optString(entry.Options, "organization"); org != "" {
			opts = append(opts, oaillm.WithOrganization(org))
		}
		if d := optDuration(entry.Options, "timeout"); d > 0 {
			opts = append(opts, oaillm.WithTimeout(d))
		}
		return oaillm.New(entry.APIKey, entry.Model, opts...)
	})

	// anthropic, gemini, deepseek, mistral, groq, llamacpp and llamafile share
	// the same pattern: optional APIKey + optional BaseURL.
	for _, providerName := range []string{
		"anthropic", "gemini", "deepseek", "mistral", "groq", "llamacpp", "llamafile",
	} {
		reg.RegisterLLM(providerName, func(entry config.ProviderEntry) (llm.Provider, error) {
			var opts []anyllmlib.Option
			if entry.APIKey != "" {
				opts = append(opts, anyllmlib.WithAPIKey(entry.APIKey))
			}
			if entry.BaseURL != "" {
				opts = append(opts, anyllmlib.WithBaseURL(entry.BaseURL))
			}
			return anyllm.New(providerName, entry.Model, opts...)
		})
	}

	// ollama is a local server; it uses BaseURL for the address, not an API key.
	reg.RegisterLLM("ollama", func(entry config.ProviderEntry) (llm.Provider, error) {
		var opts []anyllmlib.Option
		if entry.BaseURL != "" {
			opts = append(opts, anyllmlib.WithBaseURL(entry.BaseURL))
		}
		return anyllm.New("ollama", entry.Model, opts...)
	})

	// ── STT ───────────────────────────────────────────────────────────────────

	reg.RegisterSTT("whisper", func(entry config.ProviderEntry) (stt.Provider, error) {
		var opts []whisper.Option
		if entry.Model != "" {
			opts = append(opts, whisper.WithModel(entry.Model))
		}
		if lang := optString(entry.Options, "language"); lang != "" {
			opts = append(opts, whisper.WithLanguage(lang))
		}
		return whisper.New(entry.BaseURL, opts...)
	})

	reg.RegisterSTT("openai", func(entry config.ProviderEntry) (stt.Provider, error) {
		return newOpenAISTT(entry, "")
	})

	reg.RegisterSTT("groq", func(entry config.ProviderEntry) (stt.Provider, error) {
		return newOpenAISTT(entry, groqBaseURL)
	})

	// ── TTS ───────────────────────────────────────────────────────────────────

	reg.RegisterTTS("deepgram", func(entry config.ProviderEntry) (tts.Provider, error) {
		var opts []deepgram.Option
		if entry.Model != "" {
			opts = append(opts, deepgram.WithModel(entry.Model))
		}
		if entry.BaseURL != "" {
			opts = append(opts, deepgram.WithBaseURL(entry.BaseURL))
		}
		if rate := optInt(entry.Options, "sample_rate"); rate > 0 {
			opts = append(opts, deepgram.WithSampleRate(rate))
		}
		if d := optDuration(entry.Options, "timeout"); d > 0 {
			opts = append(opts, deepgram.WithTimeout(d))
		}
		return deepgram.New(entry.APIKey, opts...)
	})

	reg.RegisterTTS("elevenlabs", func(entry config.ProviderEntry) (tts.Provider, error) {
		var opts []elevenlabs.Option
		if entry.Model != "" {
			opts = append(opts, elevenlabs.WithModel(entry.Model))
		}
		if outputFmt := optString(entry.Options, "output_format"); outputFmt != "" {
			opts = append(opts, elevenlabs.WithOutputFormat(outputFmt))
		}
		if entry.BaseURL != "" {
			opts = append(opts, elevenlabs.WithBaseURL(entry.BaseURL))
		}
		return elevenlabs.New(entry.APIKey, opts...)
	})

	// ── VAD ───────────────────────────────────────────────────────────────────

	reg.RegisterVAD("energy", func(entry config.ProviderEntry) (vad.Engine, error) {
		var opts []energy.Option
		if v, ok := optFloat(entry.Options, "midpoint_db"); ok {
			opts = append(opts, energy.WithMidpoint(v))
		}
		if v, ok := optFloat(entry.Options, "slope_db"); ok {
			opts = append(opts, energy.WithSlope(v))
		}
		return energy.New(opts...), nil
	})

	// ── Keyword ───────────────────────────────────────────────────────────────

	reg.RegisterKeyword("tfserving", func(entry config.ProviderEntry) (keyword.Classifier, error) {
		labels := optStrings(entry.Options, "labels")
		if len(labels) == 0 {
			return nil, errors.New("tfserving: options.labels is required")
		}
		var opts []tfserving.Option
		if d := optDuration(entry.Options, "timeout"); d > 0 {
			opts = append(opts, tfserving.WithTimeout(d))
		}
		if v := optInt(entry.Options, "version"); v > 0 {
			opts = append(opts, tfserving.WithVersion(v))
		}
		if sig := optString(entry.Options, "signature"); sig != "" {
			opts = append(opts, tfserving.WithSignature(sig))
		}
		return tfserving.New(entry.BaseURL, entry.Model, labels, opts...)
	})

	for _, kind := range []string{"llm", "stt", "tts", "vad", "keyword"} {
		slog.Debug("registered providers", "kind", kind, "names", reg.Names(kind))
	}
}

func newOpenAISTT(entry config.ProviderEntry, defaultBaseURL string) (stt.Provider, error) {
	var opts []oaistt.Option
	baseURL := entry.BaseURL
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	if baseURL != "" {
		opts = append(opts, oaistt.WithBaseURL(baseURL))
	}
	if d := optDuration(entry.Options, "timeout"); d > 0 {
		opts = append(opts, oaistt.WithTimeout(d))
	}
	if n := optInt(entry.Options, "max_retries"); n > 0 {
		opts = append(opts, oaistt.WithMaxRetries(n))
	}
	return oaistt.New(entry.APIKey, entry.Model, opts...)
}

// buildProviders instantiates all providers named in cfg using the registry
// and returns them in an [app.Providers] struct for the application to consume.
// LLM, STT and TTS entries with fallbacks are wrapped in a resilience group.
func buildProviders(cfg *config.Config, reg *config.Registry, metrics *observe.Metrics) (*app.Providers, error) {
	ps := &app.Providers{}
	fbCfg := func(kind string) resilience.FallbackConfig {
		return resilience.FallbackConfig{
			OnFailure: func(provider string, err error) {
				slog.Warn("provider call failed", "kind", kind, "provider", provider, "err", err)
				metrics.RecordProviderError(context.Background(), provider, kind)
			},
		}
	}

	// ── LLM ───────────────────────────────────────────────────────────────────
	if entry := cfg.Providers.LLM; entry.Name != "" {
		p, err := createOne("llm", entry, reg.CreateLLM)
		if err != nil {
			return nil, err
		}
		if p != nil && len(entry.Fallbacks) > 0 {
			fb := resilience.NewLLMFallback(p, entry.Name, fbCfg("llm"))
			for _, fe := range entry.Fallbacks {
				alt, err := createOne("llm", fe, reg.CreateLLM)
				if err != nil {
					return nil, err
				}
				if alt != nil {
					fb.AddFallback(fe.Name, alt)
				}
			}
			p = fb
		}
		ps.LLM = p
	}

	// ── STT ───────────────────────────────────────────────────────────────────
	if entry := cfg.Providers.STT; entry.Name != "" {
		p, err := createOne("stt", entry, reg.CreateSTT)
		if err != nil {
			return nil, err
		}
		if p != nil && len(entry.Fallbacks) > 0 {
			fb := resilience.NewSTTFallback(p, entry.Name, fbCfg("stt"))
			for _, fe := range entry.Fallbacks {
				alt, err := createOne("stt", fe, reg.CreateSTT)
				if err != nil {
					return nil, err
				}
				if alt != nil {
					fb.AddFallback(fe.Name, alt)
				}
			}
			p = fb
		}
		ps.STT = p
	}

	// ── TTS ───────────────────────────────────────────────────────────────────
	if entry := cfg.Providers.TTS; entry.Name != "" {
		p, err := createOne("tts", entry, reg.CreateTTS)
		if err != nil {
			return nil, err
		}
		if p != nil && len(entry.Fallbacks) > 0 {
			fb := resilience.NewTTSFallback(p, entry.Name, fbCfg("tts"))
			for _, fe := range entry.Fallbacks {
				alt, err := createOne("tts", fe, reg.CreateTTS)
				if err != nil {
					return nil, err
				}
				if alt == nil {
					continue
				}
				if err := fb.AddFallback(fe.Name, alt); err != nil {
					return nil, fmt.Errorf("tts fallback %q: %w", fe.Name, err)
				}
			}
			p = fb
		}
		ps.TTS = p
	}

	// ── VAD ───────────────────────────────────────────────────────────────────
	if entry := cfg.Providers.VAD; entry.Name != "" {
		p, err := createOne("vad", entry, reg.CreateVAD)
		if err != nil {
			return nil, err
		}
		ps.VAD = p
	}

	// ── Keyword ───────────────────────────────────────────────────────────────
	if entry := cfg.Providers.Keyword; entry.Name != "" {
		p, err := createOne("keyword", entry, reg.CreateKeyword)
		if err != nil {
			return nil, err
		}
		ps.Keyword = p
	}

	return ps, nil
}

// createOne builds a single provider. Unregistered names are logged and yield
// the zero value so the remaining configuration can still start.
func createOne[T any](kind string, entry config.ProviderEntry, create func(config.ProviderEntry) (T, error)) (T, error) {
	var zero T
	p, err := create(entry)
	if errors.Is(err, config.ErrProviderNotRegistered) {
		slog.Warn("unknown provider, skipping", "kind", kind, "name", entry.Name)
		return zero, nil
	}
	if err != nil {
		return zero, fmt.Errorf("create %s provider %q: %w", kind, entry.Name, err)
	}
	slog.Info("provider created", "kind", kind, "name", entry.Name)
	return p, nil
}

// ── Option helpers ────────────────────────────────────────────────────────────

// optString extracts a string value from a provider options map.
// Returns "" if the key is absent or the value is not a string.
func optString(opts map[string]any, key string) string {
	if opts == nil {
		return ""
	}
	v, ok := opts[key]
	if !ok {
		return ""
	}
	s, _ := v.(string)
	return s
}

// optFloat extracts a numeric option. YAML decodes integers as int.
func optFloat(opts map[string]any, key string) (float64, bool) {
	switch v := opts[key].(type) {
	case float64:
		return v, true
	case int:
		return float64(v), true
	default:
		return 0, false
	}
}

func optInt(opts map[string]any, key string) int {
	switch v := opts[key].(type) {
	case int:
		return v
	case float64:
		return int(v)
	default:
		return 0
	}
}

// optDuration accepts a Go duration string ("5s") or a number of seconds.
func optDuration(opts map[string]any, key string) time.Duration {
	if s := optString(opts, key); s != "" {
		d, err := time.ParseDuration(s)
		if err != nil {
			slog.Warn("ignoring invalid duration option", "key", key, "value", s)
			return 0
		}
		return d
	}
	if f, ok := optFloat(opts, key); ok {
		return time.Duration(f * float64(time.Second))
	}
	return 0
}

func optStrings(opts map[string]any, key string) []string {
	raw, ok := opts[key].([]any)
	if !ok {
		return nil
	}
	out := make([]string, 0, len(raw))
	for _, v := range raw {
		if s, ok := v.(string); ok && s != "" {
			out = append(out, s)
		}
	}
	return out
}
