package openai_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/MrWong99/sparkie/pkg/audio"
	"github.com/MrWong99/sparkie/pkg/provider/stt"
	"github.com/MrWong99/sparkie/pkg/provider/stt/openai"
)

func TestNew_Validation(t *testing.T) {
	if _, err := openai.New("", "whisper-1"); err == nil {
		t.Fatal("expected error for empty apiKey")
	}
	if _, err := openai.New("sk-test", ""); err != nil {
		t.Fatalf("empty model should fall back to %s: %v", openai.DefaultModel, err)
	}
}

func TestTranscribe(t *testing.T) {
	var gotModel, gotLang, gotFile, gotAuth string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/audio/transcriptions" {
			http.Error(w, "not found", http.StatusNotFound)
			return
		}
		if err := r.ParseMultipartForm(1 << 20); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		gotModel = r.FormValue("model")
		gotLang = r.FormValue("language")
		gotAuth = r.Header.Get("Authorization")
		if _, hdr, err := r.FormFile("file"); err == nil {
			gotFile = hdr.Filename
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"text":" Hello there. "}`))
	}))
	defer srv.Close()

	p, err := openai.New("sk-test", "distil-whisper-large-v3-en",
		openai.WithBaseURL(srv.URL+"/"), openai.WithMaxRetries(0))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	wav := audio.EncodeWAVPCM16(make([]float32, 160), 16000)
	tr, err := p.Transcribe(context.Background(), stt.Request{Audio: wav, Language: "en"})
	if err != nil {
		t.Fatalf("Transcribe: %v", err)
	}
	if tr.Text != "Hello there." {
		t.Errorf("Text = %q", tr.Text)
	}
	if gotModel != "distil-whisper-large-v3-en" || gotLang != "en" || gotFile != "audio.wav" {
		t.Errorf("upload = model %q lang %q file %q", gotModel, gotLang, gotFile)
	}
	if gotAuth != "Bearer sk-test" {
		t.Errorf("Authorization = %q", gotAuth)
	}
}

func TestTranscribe_ClientError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"error":{"message":"bad audio","type":"invalid_request_error"}}`))
	}))
	defer srv.Close()

	p, _ := openai.New("sk-test", "", openai.WithBaseURL(srv.URL+"/"), openai.WithMaxRetries(0))
	wav := audio.EncodeWAVPCM16(make([]float32, 160), 16000)
	if _, err := p.Transcribe(context.Background(), stt.Request{Audio: wav}); err == nil {
		t.Fatal("expected error for HTTP 400")
	}
}

func TestTranscribe_EmptyAudio(t *testing.T) {
	p, _ := openai.New("sk-test", "")
	if _, err := p.Transcribe(context.Background(), stt.Request{}); err == nil {
		t.Fatal("expected error for empty audio")
	}
}
