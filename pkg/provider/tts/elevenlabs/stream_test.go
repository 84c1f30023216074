package elevenlabs

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/coder/websocket"

	"github.com/MrWong99/sparkie/pkg/provider/tts"
)

// startServer launches a test server that accepts the stream-input socket
// and serves GET /v1/voices.
func startServer(t *testing.T, handler func(conn *websocket.Conn, r *http.Request)) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/v1/voices" {
			if r.Header.Get("xi-api-key") != "key" {
				http.Error(w, "unauthorized", http.StatusUnauthorized)
				return
			}
			_, _ = w.Write([]byte(`{"voices":[{"voice_id":"v1","name":"Rachel","category":"premade"}]}`))
			return
		}
		conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{InsecureSkipVerify: true})
		if err != nil {
			return
		}
		defer conn.Close(websocket.StatusNormalClosure, "done")
		handler(conn, r)
	}))
	t.Cleanup(srv.Close)
	return srv
}

func readText(ctx context.Context, conn *websocket.Conn) (map[string]any, error) {
	_, data, err := conn.Read(ctx)
	if err != nil {
		return nil, err
	}
	var m map[string]any
	err = json.Unmarshal(data, &m)
	return m, err
}

func TestSynthesizeStream(t *testing.T) {
	texts := make(chan string, 8)
	srv := startServer(t, func(conn *websocket.Conn, r *http.Request) {
		ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer cancel()
		if r.URL.Query().Get("output_format") != "pcm_16000" {
			return
		}
		boi, err := readText(ctx, conn)
		if err != nil || boi["xi_api_key"] != "key" {
			return
		}
		for {
			m, err := readText(ctx, conn)
			if err != nil {
				return
			}
			s, _ := m["text"].(string)
			texts <- s
			if s == "" {
				break
			}
			audio := base64.StdEncoding.EncodeToString([]byte(s))
			out, _ := json.Marshal(map[string]any{"audio": audio})
			_ = conn.Write(ctx, websocket.MessageText, out)
		}
		final, _ := json.Marshal(map[string]any{"isFinal": true})
		_ = conn.Write(ctx, websocket.MessageText, final)
	})

	p, err := New("key", WithBaseURL(srv.URL))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	pcm, err := tts.Collect(context.Background(), p, "Hello", tts.VoiceProfile{ID: "v1"})
	if err != nil {
		t.Fatalf("Collect: %v", err)
	}
	if string(pcm) != "Hello " {
		t.Errorf("pcm = %q, want echoed fragment", pcm)
	}
	close(texts)
	var got []string
	for s := range texts {
		got = append(got, s)
	}
	if len(got) != 2 || got[0] != "Hello " || got[1] != "" {
		t.Errorf("server received %q, want fragment then flush", got)
	}
}

func TestSynthesizeStream_EmptyVoice(t *testing.T) {
	p, _ := New("key")
	if _, err := p.SynthesizeStream(context.Background(), make(chan string), tts.VoiceProfile{}); err == nil {
		t.Fatal("expected error for empty voice ID")
	}
}

func TestListVoices(t *testing.T) {
	srv := startServer(t, func(*websocket.Conn, *http.Request) {})
	p, _ := New("key", WithBaseURL(srv.URL))
	voices, err := p.ListVoices(context.Background())
	if err != nil {
		t.Fatalf("ListVoices: %v", err)
	}
	if len(voices) != 1 || voices[0].ID != "v1" || voices[0].Metadata["category"] != "premade" {
		t.Errorf("voices = %+v", voices)
	}

	bad, _ := New("wrong", WithBaseURL(srv.URL))
	if _, err := bad.ListVoices(context.Background()); err == nil {
		t.Error("expected error for HTTP 401")
	}
}
