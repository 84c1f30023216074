// Package deepgram provides a TTS provider backed by the Deepgram Aura REST
// API (POST /v1/speak).
//
// Each text fragment is synthesised with one request. The response body is
// raw linear16 PCM (container=none) and is forwarded chunk by chunk as it
// arrives, so playback can begin before the request completes.
package deepgram

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/MrWong99/sparkie/pkg/provider/tts"
)

const (
	defaultBaseURL    = "https://api.deepgram.com"
	defaultModel      = "aura-asteria-en"
	defaultSampleRate = 24000

	// readChunk is the size of the buffer used to stream the response body.
	readChunk = 4096
)

var _ tts.Provider = (*Provider)(nil)

// voices is the Aura catalogue. Deepgram exposes no listing endpoint for
// TTS models, so the list is static.
var voices = []struct{ model, name, gender, accent string }{
	{"aura-asteria-en", "Asteria", "female", "american"},
	{"aura-luna-en", "Luna", "female", "american"},
	{"aura-stella-en", "Stella", "female", "american"},
	{"aura-athena-en", "Athena", "female", "british"},
	{"aura-hera-en", "Hera", "female", "american"},
	{"aura-orion-en", "Orion", "male", "american"},
	{"aura-arcas-en", "Arcas", "male", "american"},
	{"aura-perseus-en", "Perseus", "male", "american"},
	{"aura-angus-en", "Angus", "male", "irish"},
	{"aura-orpheus-en", "Orpheus", "male", "american"},
	{"aura-helios-en", "Helios", "male", "british"},
	{"aura-zeus-en", "Zeus", "male", "american"},
}

// Option is a functional option for configuring the Deepgram Provider.
type Option func(*Provider)

// WithModel sets the default Aura model used when a VoiceProfile has no ID.
func WithModel(model string) Option {
	return func(p *Provider) {
		p.model = model
	}
}

// WithSampleRate sets the output sample rate (8000, 16000, 24000, 32000 or
// 48000). Defaults to 24000.
func WithSampleRate(rate int) Option {
	return func(p *Provider) {
		p.sampleRate = rate
	}
}

// WithBaseURL overrides the API base URL (default https://api.deepgram.com).
func WithBaseURL(u string) Option {
	return func(p *Provider) {
		p.baseURL = strings.TrimRight(u, "/")
	}
}

// WithTimeout sets the per-request HTTP timeout. Defaults to 30 s.
func WithTimeout(d time.Duration) Option {
	return func(p *Provider) {
		p.httpClient.Timeout = d
	}
}

// Provider implements tts.Provider backed by Deepgram Aura.
type Provider struct {
	apiKey     string
	model      string
	sampleRate int
	baseURL    string
	httpClient *http.Client
}

// New creates a new Deepgram Provider. apiKey must be non-empty.
func New(apiKey string, opts ...Option) (*Provider, error) {
	if apiKey == "" {
		return nil, errors.New("deepgram: apiKey must not be empty")
	}
	p := &Provider{
		apiKey:     apiKey,
		model:      defaultModel,
		sampleRate: defaultSampleRate,
		baseURL:    defaultBaseURL,
		httpClient: &http.Client{Timeout: 30 * time.Second},
	}
	for _, o := range opts {
		o(p)
	}
	switch p.sampleRate {
	case 8000, 16000, 24000, 32000, 48000:
	default:
		return nil, fmt.Errorf("deepgram: unsupported sample rate %d", p.sampleRate)
	}
	return p, nil
}

// SampleRate implements tts.Provider.
func (p *Provider) SampleRate() int { return p.sampleRate }

// SynthesizeStream implements tts.Provider. Fragments are synthesised in
// order; a failed request ends the stream.
func (p *Provider) SynthesizeStream(ctx context.Context, text <-chan string, voice tts.VoiceProfile) (<-chan []byte, error) {
	model := voice.ID
	if model == "" {
		model = p.model
	}
	endpoint := p.speakURL(model)

	audioCh := make(chan []byte, 64)
	go func() {
		defer close(audioCh)
		for {
			select {
			case <-ctx.Done():
				return
			case fragment, ok := <-text:
				if !ok {
					return
				}
				if strings.TrimSpace(fragment) == "" {
					continue
				}
				if err := p.speak(ctx, endpoint, fragment, audioCh); err != nil {
					if ctx.Err() == nil {
						slog.Warn("deepgram: synthesis failed", "model", model, "err", err)
					}
					return
				}
			}
		}
	}()
	return audioCh, nil
}

func (p *Provider) speakURL(model string) string {
	q := url.Values{}
	q.Set("model", model)
	q.Set("encoding", "linear16")
	q.Set("container", "none")
	q.Set("sample_rate", strconv.Itoa(p.sampleRate))
	return p.baseURL + "/v1/speak?" + q.Encode()
}

// speak performs one /v1/speak request and forwards the body to out.
func (p *Provider) speak(ctx context.Context, endpoint, text string, out chan<- []byte) error {
	body, _ := json.Marshal(map[string]string{"text": text})
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Authorization", "Token "+p.apiKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("http request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("unexpected status %d: %s", resp.StatusCode, strings.TrimSpace(string(msg)))
	}

	// carry holds an odd trailing byte so every chunk is whole samples.
	var carry []byte
	buf := make([]byte, readChunk)
	for {
		n, rerr := resp.Body.Read(buf)
		if n > 0 {
			chunk := append(carry, buf[:n]...)
			whole := len(chunk) &^ 1
			carry = append([]byte(nil), chunk[whole:]...)
			if whole > 0 {
				select {
				case out <- chunk[:whole]:
				case <-ctx.Done():
					return ctx.Err()
				}
			}
		}
		if rerr == io.EOF {
			return nil
		}
		if rerr != nil {
			return fmt.Errorf("read body: %w", rerr)
		}
	}
}

// ListVoices implements tts.Provider. It returns the static Aura catalogue.
func (p *Provider) ListVoices(ctx context.Context) ([]tts.VoiceProfile, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	out := make([]tts.VoiceProfile, 0, len(voices))
	for _, v := range voices {
		out = append(out, tts.VoiceProfile{
			ID:       v.model,
			Name:     v.name,
			Provider: "deepgram",
			Metadata: map[string]string{"gender": v.gender, "accent": v.accent},
		})
	}
	return out, nil
}
