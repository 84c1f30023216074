package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/MrWong99/sparkie/internal/conversation"
	"github.com/MrWong99/sparkie/internal/frontend"
	"github.com/MrWong99/sparkie/pkg/audio"
)

// RunLocal runs one voice interview from a local audio source, such as the
// default microphone. Front-end events and turns are logged; utterance and
// reply WAVs and the final summary are written to outDir when it is
// non-empty. RunLocal
// returns when the interview is over, the source ends, or ctx is cancelled.
func (a *App) RunLocal(ctx context.Context, src audio.Source, outDir string) error {
	if !a.providers.VoiceReady() {
		return errors.New("app: local capture needs stt, vad and keyword providers")
	}
	if outDir != "" {
		if err := os.MkdirAll(outDir, 0o755); err != nil {
			return fmt.Errorf("app: create output dir: %w", err)
		}
	}

	id := NewSessionID()
	conv, err := a.newConversation(id)
	if err != nil {
		return fmt.Errorf("app: create conversation: %w", err)
	}
	sess, err := a.sessions.Start(ctx, SessionInfo{ID: id, Kind: KindVoice}, conv)
	if err != nil {
		return err
	}
	defer a.sessions.Release(sess)

	log := slog.With("session_id", id)
	fe, err := frontend.Start(sess.Ctx, a.frontendConfig(), src.SampleRate(), a.providers.VAD, a.providers.Keyword,
		frontend.WithMetrics(a.metrics),
		frontend.WithLogger(log),
	)
	if err != nil {
		return fmt.Errorf("app: start front-end: %w", err)
	}

	iv := &interview{
		id:     id,
		fe:     fe,
		conv:   conv,
		writer: a.newWriter(),
		out:    &logSink{dir: outDir, log: log},
		log:    log,
	}
	log.Info("listening", "rate", src.SampleRate())
	err = iv.run(sess.Ctx, func(ctx context.Context, fe *frontend.Session) error {
		return fe.Consume(ctx, src)
	})
	if errors.Is(err, context.Canceled) && ctx.Err() != nil {
		return nil
	}
	return err
}

// logSink logs session output. With a directory set it also writes every
// utterance and reply as WAV files.
type logSink struct {
	dir   string
	log   *slog.Logger
	turns int
}

var _ sink = (*logSink)(nil)

func (s *logSink) Event(_ context.Context, ev frontend.Event) error {
	if ev.Type == frontend.SpeechEnd {
		s.log.Info(ev.Type.String(), "utterance", ev.UtteranceID, "cause", ev.Cause.String(), "duration", ev.Duration())
		if s.dir == "" {
			return nil
		}
		path := filepath.Join(s.dir, fmt.Sprintf("utterance-%03d.wav", ev.UtteranceID))
		if err := os.WriteFile(path, audio.EncodeWAV(ev.Audio, ev.SampleRate), 0o644); err != nil {
			return fmt.Errorf("app: write utterance audio: %w", err)
		}
		return nil
	}
	s.log.Info(ev.Type.String(), "utterance", ev.UtteranceID)
	return nil
}

func (s *logSink) Turn(_ context.Context, turn *conversation.Turn) error {
	s.turns++
	s.log.Info("turn",
		"you", turn.Transcript,
		"spark", turn.Response,
		"end", turn.EndOfConversation,
		"latency", turn.Latency,
	)
	if s.dir == "" {
		return nil
	}
	path := filepath.Join(s.dir, fmt.Sprintf("reply-%03d.wav", s.turns))
	if err := os.WriteFile(path, turn.Audio, 0o644); err != nil {
		return fmt.Errorf("app: write reply audio: %w", err)
	}
	return nil
}

func (s *logSink) Summary(_ context.Context, summary string) error {
	s.log.Info("summary", "text", summary)
	if s.dir == "" {
		return nil
	}
	if err := os.WriteFile(filepath.Join(s.dir, "summary.md"), []byte(summary), 0o644); err != nil {
		return fmt.Errorf("app: write summary: %w", err)
	}
	return nil
}

func (s *logSink) Error(_ context.Context, err error) error {
	s.log.Warn("session error", "err", err)
	return nil
}

func (s *logSink) End(context.Context) error { return nil }
