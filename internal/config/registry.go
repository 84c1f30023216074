package config

import (
	"errors"
	"fmt"
	"slices"
	"sync"

	"github.com/MrWong99/sparkie/pkg/provider/keyword"
	"github.com/MrWong99/sparkie/pkg/provider/llm"
	"github.com/MrWong99/sparkie/pkg/provider/stt"
	"github.com/MrWong99/sparkie/pkg/provider/tts"
	"github.com/MrWong99/sparkie/pkg/provider/vad"
)

// ErrProviderNotRegistered is returned by Create* methods when no factory has
// been registered under the requested provider name.
var ErrProviderNotRegistered = errors.New("config: provider not registered")

// factories is one provider kind's name-to-constructor table.
type factories[T any] map[string]func(ProviderEntry) (T, error)

func (f factories[T]) create(kind string, entry ProviderEntry) (T, error) {
	factory, ok := f[entry.Name]
	if !ok {
		var zero T
		return zero, fmt.Errorf("%w: %s/%q", ErrProviderNotRegistered, kind, entry.Name)
	}
	return factory(entry)
}

// Registry maps provider names to their constructor functions for each
// provider type. It is safe for concurrent use.
type Registry struct {
	mu      sync.RWMutex
	llm     factories[llm.Provider]
	stt     factories[stt.Provider]
	tts     factories[tts.Provider]
	vad     factories[vad.Engine]
	keyword factories[keyword.Classifier]
}

// NewRegistry returns an empty, ready-to-use [Registry].
func NewRegistry() *Registry {
	return &Registry{
		llm:     make(factories[llm.Provider]),
		stt:     make(factories[stt.Provider]),
		tts:     make(factories[tts.Provider]),
		vad:     make(factories[vad.Engine]),
		keyword: make(factories[keyword.Classifier]),
	}
}

// RegisterLLM registers an LLM provider factory under name.
// Subsequent calls with the same name overwrite the previous registration.
func (r *Registry) RegisterLLM(name string, factory func(ProviderEntry) (llm.Provider, error)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.llm[name] = factory
}

// RegisterSTT registers an STT provider factory under name.
func (r *Registry) RegisterSTT(name string, factory func(ProviderEntry) (stt.Provider, error)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.stt[name] = factory
}

// RegisterTTS registers a TTS provider factory under name.
func (r *Registry) RegisterTTS(name string, factory func(ProviderEntry) (tts.Provider, error)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.tts[name] = factory
}

// RegisterVAD registers a VAD engine factory under name.
func (r *Registry) RegisterVAD(name string, factory func(ProviderEntry) (vad.Engine, error)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.vad[name] = factory
}

// RegisterKeyword registers a keyword classifier factory under name.
func (r *Registry) RegisterKeyword(name string, factory func(ProviderEntry) (keyword.Classifier, error)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.keyword[name] = factory
}

// CreateLLM instantiates an LLM provider using the factory registered under entry.Name.
// Returns [ErrProviderNotRegistered] if no factory has been registered for that name.
func (r *Registry) CreateLLM(entry ProviderEntry) (llm.Provider, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.llm.create("llm", entry)
}

// CreateSTT instantiates an STT provider using the factory registered under entry.Name.
func (r *Registry) CreateSTT(entry ProviderEntry) (stt.Provider, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.stt.create("stt", entry)
}

// CreateTTS instantiates a TTS provider using the factory registered under entry.Name.
func (r *Registry) CreateTTS(entry ProviderEntry) (tts.Provider, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.tts.create("tts", entry)
}

// CreateVAD instantiates a VAD engine using the factory registered under entry.Name.
func (r *Registry) CreateVAD(entry ProviderEntry) (vad.Engine, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.vad.create("vad", entry)
}

// CreateKeyword instantiates a keyword classifier using the factory registered
// under entry.Name.
func (r *Registry) CreateKeyword(entry ProviderEntry) (keyword.Classifier, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.keyword.create("keyword", entry)
}

// Names returns the sorted provider names registered for kind ("llm", "stt",
// "tts", "vad" or "keyword"). Unknown kinds return nil.
func (r *Registry) Names(kind string) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var names []string
	switch kind {
	case "llm":
		names = keys(r.llm)
	case "stt":
		names = keys(r.stt)
	case "tts":
		names = keys(r.tts)
	case "vad":
		names = keys(r.vad)
	case "keyword":
		names = keys(r.keyword)
	default:
		return nil
	}
	slices.Sort(names)
	return names
}

func keys[T any](f factories[T]) []string {
	out := make([]string, 0, len(f))
	for k := range f {
		out = append(out, k)
	}
	return out
}
