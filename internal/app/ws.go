package app

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"

	"github.com/MrWong99/sparkie/internal/conversation"
	"github.com/MrWong99/sparkie/internal/frontend"
	"github.com/MrWong99/sparkie/internal/observe"
	"github.com/MrWong99/sparkie/pkg/audio"
)

const (
	// defaultClientRate is assumed when the client does not pass ?rate=.
	defaultClientRate = 48000

	// Sample encodings accepted in ?format=.
	formatFloat32 = "f32le"
	formatPCM16   = "s16le"

	// maxMessageBytes caps a single client message. One second of 48 kHz
	// float32 audio is 192 KiB.
	maxMessageBytes = 1 << 20
)

// Client control message types.
const (
	ctrlForceEnd = "force_end"
	ctrlPause    = "pause"
	ctrlStart    = "start"
	ctrlToggle   = "toggle"
	ctrlCapture  = "capture"
)

// Server message types, besides the front-end event names.
const (
	msgReady   = "ready"
	msgState   = "state"
	msgTurn    = "turn"
	msgSummary = "summary"
	msgError   = "error"
)

// controlMessage is a JSON text message sent by the client.
type controlMessage struct {
	Type string `json:"type"`
}

// serverMessage is a JSON text message sent to the client. Reply audio
// follows a turn message as a binary WAV message.
type serverMessage struct {
	Type string `json:"type"`

	SessionID  string `json:"session_id,omitempty"`
	SampleRate int    `json:"sample_rate,omitempty"`
	Format     string `json:"format,omitempty"`

	// Front-end events.
	Utterance uint64 `json:"utterance,omitempty"`
	Samples   int    `json:"samples,omitempty"`
	Cause     string `json:"cause,omitempty"`

	// State after pause, start or toggle.
	Paused *bool `json:"paused,omitempty"`

	// Turns.
	Transcript        string `json:"transcript,omitempty"`
	Response          string `json:"response,omitempty"`
	EndOfConversation bool   `json:"end_of_conversation,omitempty"`
	LatencyMS         int64  `json:"latency_ms,omitempty"`

	Summary string `json:"summary,omitempty"`
	Message string `json:"message,omitempty"`
}

// handleVoice upgrades to a WebSocket and runs one voice interview.
//
// Binary client messages are microphone blocks at the rate given by ?rate=,
// encoded as little-endian float32 or, with ?format=s16le, as 16-bit PCM.
// Text client messages are [controlMessage] values.
func (a *App) handleVoice(w http.ResponseWriter, r *http.Request) {
	log := observe.Logger(r.Context())
	if !a.providers.VoiceReady() {
		http.Error(w, "voice sessions need stt, vad and keyword providers", http.StatusServiceUnavailable)
		return
	}
	rate := defaultClientRate
	if v := r.URL.Query().Get("rate"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			http.Error(w, fmt.Sprintf("invalid rate %q", v), http.StatusBadRequest)
			return
		}
		rate = n
	}
	format, err := parseSampleFormat(r.URL.Query().Get("format"))
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	id := NewSessionID()
	conv, err := a.newConversation(id)
	if err != nil {
		log.Error("voice: create conversation", "err", err)
		http.Error(w, "cannot start conversation", http.StatusInternalServerError)
		return
	}
	sess, err := a.sessions.Start(r.Context(), SessionInfo{ID: id, Kind: KindVoice, Remote: r.RemoteAddr}, conv)
	if err != nil {
		writeSessionError(w, err)
		return
	}
	defer a.sessions.Release(sess)

	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns: a.config().Server.AllowedOrigins,
	})
	if err != nil {
		log.Warn("voice: websocket accept", "err", err)
		return
	}
	defer conn.CloseNow()
	conn.SetReadLimit(maxMessageBytes)

	out := &wsSink{conn: conn}
	log = log.With("session_id", id)

	fe, err := frontend.Start(sess.Ctx, a.frontendConfig(), rate, a.providers.VAD, a.providers.Keyword,
		frontend.WithMetrics(a.metrics),
		frontend.WithLogger(log),
	)
	if err != nil {
		log.Warn("voice: start front-end", "err", err)
		_ = out.Error(sess.Ctx, err)
		conn.Close(websocket.StatusPolicyViolation, "cannot start front-end")
		return
	}
	if err := out.send(sess.Ctx, serverMessage{Type: msgReady, SessionID: id, SampleRate: rate, Format: format.name}); err != nil {
		_ = fe.Close()
		return
	}

	iv := &interview{
		id:     id,
		fe:     fe,
		conv:   conv,
		writer: a.newWriter(),
		out:    out,
		log:    log,
	}
	err = iv.run(sess.Ctx, wsInput(conn, out, format, log))
	switch {
	case err == nil:
		conn.Close(websocket.StatusNormalClosure, "interview over")
	case errors.Is(sess.Ctx.Err(), context.DeadlineExceeded):
		conn.Close(websocket.StatusGoingAway, "session time limit reached")
	case sess.Ctx.Err() != nil:
		conn.Close(websocket.StatusGoingAway, "session stopped")
	default:
		log.Debug("voice: session ended with error", "err", err)
	}
}

// sampleFormat is the encoding of binary client messages.
type sampleFormat struct {
	name   string
	width  int
	decode func([]byte) []float32
}

// parseSampleFormat resolves a ?format= value. An empty value selects
// float32.
func parseSampleFormat(v string) (sampleFormat, error) {
	switch v {
	case "", formatFloat32, "float32":
		return sampleFormat{name: formatFloat32, width: 4, decode: audio.DecodeFloat32LE}, nil
	case formatPCM16, "pcm16":
		return sampleFormat{name: formatPCM16, width: 2, decode: audio.PCM16ToFloat32}, nil
	default:
		return sampleFormat{}, fmt.Errorf("invalid format %q", v)
	}
}

// wsInput reads client messages until the socket closes.
func wsInput(conn *websocket.Conn, out *wsSink, format sampleFormat, log *slog.Logger) inputFunc {
	return func(ctx context.Context, fe *frontend.Session) error {
		for {
			typ, data, err := conn.Read(ctx)
			if err != nil {
				switch websocket.CloseStatus(err) {
				case websocket.StatusNormalClosure, websocket.StatusGoingAway:
					return nil
				}
				return err
			}
			switch typ {
			case websocket.MessageBinary:
				if len(data)%format.width != 0 {
					log.Debug("voice: ragged audio message", "bytes", len(data), "format", format.name)
				}
				if err := fe.Write(ctx, format.decode(data)); err != nil {
					return err
				}
			case websocket.MessageText:
				var msg controlMessage
				if err := json.Unmarshal(data, &msg); err != nil {
					if err := out.Error(ctx, fmt.Errorf("invalid control message: %w", err)); err != nil {
						return err
					}
					continue
				}
				if err := applyControl(ctx, fe, msg, out); err != nil {
					return err
				}
			}
		}
	}
}

// applyControl runs one client command against fe. Unknown commands are
// reported to the client and ignored.
func applyControl(ctx context.Context, fe *frontend.Session, msg controlMessage, out *wsSink) error {
	var err error
	switch msg.Type {
	case ctrlForceEnd:
		_, err = fe.ForceEnd(ctx)
	case ctrlCapture:
		err = fe.BeginCapture(ctx)
	case ctrlPause:
		if err = fe.Pause(ctx); err == nil {
			return out.state(ctx, true)
		}
	case ctrlStart:
		fe.Resume()
		return out.state(ctx, false)
	case ctrlToggle:
		var paused bool
		if paused, err = fe.Toggle(ctx); err == nil {
			return out.state(ctx, paused)
		}
	default:
		return out.Error(ctx, fmt.Errorf("unknown control %q", msg.Type))
	}
	return err
}

// ─── wsSink ──────────────────────────────────────────────────────────────────

// wsSink sends session output over a WebSocket. Conn writes are safe for
// concurrent use.
type wsSink struct {
	conn *websocket.Conn
}

var _ sink = (*wsSink)(nil)

func (s *wsSink) send(ctx context.Context, msg serverMessage) error {
	return wsjson.Write(ctx, s.conn, msg)
}

func (s *wsSink) state(ctx context.Context, paused bool) error {
	return s.send(ctx, serverMessage{Type: msgState, Paused: &paused})
}

// Event sends speech_start, misfire and speech_end notifications.
func (s *wsSink) Event(ctx context.Context, ev frontend.Event) error {
	msg := serverMessage{Type: ev.Type.String(), Utterance: ev.UtteranceID}
	if ev.Type == frontend.SpeechEnd {
		msg.Samples = len(ev.Audio)
		msg.SampleRate = ev.SampleRate
		msg.Cause = ev.Cause.String()
	}
	return s.send(ctx, msg)
}

// Turn sends the turn text followed by the reply WAV.
func (s *wsSink) Turn(ctx context.Context, turn *conversation.Turn) error {
	err := s.send(ctx, serverMessage{
		Type:              msgTurn,
		Transcript:        turn.Transcript,
		Response:          turn.Response,
		EndOfConversation: turn.EndOfConversation,
		LatencyMS:         turn.Latency.Milliseconds(),
	})
	if err != nil {
		return err
	}
	if len(turn.Audio) == 0 {
		return nil
	}
	return s.conn.Write(ctx, websocket.MessageBinary, turn.Audio)
}

// Summary sends the writer's drafts.
func (s *wsSink) Summary(ctx context.Context, summary string) error {
	return s.send(ctx, serverMessage{Type: msgSummary, Summary: summary})
}

// Error reports a non-fatal problem to the client.
func (s *wsSink) Error(ctx context.Context, err error) error {
	return s.send(ctx, serverMessage{Type: msgError, Message: err.Error()})
}

// End closes the socket normally once the interview is over.
func (s *wsSink) End(context.Context) error {
	return s.conn.Close(websocket.StatusNormalClosure, "interview over")
}
