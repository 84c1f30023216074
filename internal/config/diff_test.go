package config_test

import (
	"slices"
	"testing"

	"github.com/MrWong99/sparkie/internal/config"
)

func baseConfig() *config.Config {
	cfg := &config.Config{
		Providers: config.ProvidersConfig{
			LLM: config.ProviderEntry{Name: "openai", Model: "gpt-4o-mini"},
			TTS: config.ProviderEntry{Name: "deepgram"},
		},
		Conversation: config.ConversationConfig{Language: "en"},
	}
	config.ApplyDefaults(cfg)
	return cfg
}

func TestDiff_NoChanges(t *testing.T) {
	t.Parallel()
	d := config.Diff(baseConfig(), baseConfig())
	if !d.Empty() {
		t.Errorf("diff of identical configs = %+v, want empty", d)
	}
}

func TestDiff_LogLevel(t *testing.T) {
	t.Parallel()
	old, new := baseConfig(), baseConfig()
	new.Server.LogLevel = config.LogDebug

	d := config.Diff(old, new)
	if !d.LogLevelChanged {
		t.Error("LogLevelChanged = false, want true")
	}
	if d.NewLogLevel != config.LogDebug {
		t.Errorf("NewLogLevel = %q, want debug", d.NewLogLevel)
	}
	if d.Empty() {
		t.Error("Empty() = true, want false")
	}
}

func TestDiff_Frontend(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name   string
		mutate func(*config.FrontendConfig)
		want   bool
	}{
		{"threshold", func(f *config.FrontendConfig) { f.KeywordThreshold = 0.7 }, true},
		{"explicit default", func(f *config.FrontendConfig) { f.RedemptionFrames = 52 }, false},
		{"disable pending bound", func(f *config.FrontendConfig) { zero := 0; f.MaxPendingFrames = &zero }, true},
		{"submit on pause", func(f *config.FrontendConfig) { f.SubmitOnPause = true }, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			old, new := baseConfig(), baseConfig()
			tt.mutate(&new.Frontend)
			if got := config.Diff(old, new).FrontendChanged; got != tt.want {
				t.Errorf("FrontendChanged = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestDiff_Conversation(t *testing.T) {
	t.Parallel()
	old, new := baseConfig(), baseConfig()
	new.Conversation.Voice.VoiceID = "aura-luna-en"

	d := config.Diff(old, new)
	if !d.ConversationChanged {
		t.Error("ConversationChanged = false, want true")
	}
	if len(d.RestartRequired) != 0 {
		t.Errorf("RestartRequired = %v, want none", d.RestartRequired)
	}
}

func TestDiff_RestartRequired(t *testing.T) {
	t.Parallel()
	old, new := baseConfig(), baseConfig()
	new.Providers.LLM.Model = "gpt-4o"
	new.Memory.PostgresDSN = "postgres://localhost/sparkie"
	new.Providers.STT.Fallbacks = []config.ProviderEntry{{Name: "openai"}}

	d := config.Diff(old, new)
	for _, section := range []string{"providers.llm", "providers.stt", "memory"} {
		if !slices.Contains(d.RestartRequired, section) {
			t.Errorf("RestartRequired = %v, missing %q", d.RestartRequired, section)
		}
	}
	if slices.Contains(d.RestartRequired, "providers.tts") {
		t.Errorf("RestartRequired = %v, providers.tts did not change", d.RestartRequired)
	}
}
