package app

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/MrWong99/sparkie/internal/conversation"
	"github.com/MrWong99/sparkie/internal/observe"
	"github.com/MrWong99/sparkie/pkg/memory"
)

// maxRequestBytes caps JSON request bodies.
const maxRequestBytes = 1 << 20

// turnRequest is the body of POST /api/turn. An empty SessionID starts a new
// text interview.
type turnRequest struct {
	SessionID string `json:"session_id"`
	Text      string `json:"text"`
	StopWord  bool   `json:"stop_word"`
}

// turnResponse is the reply to POST /api/turn. Audio is the reply WAV,
// base64-encoded by encoding/json.
type turnResponse struct {
	SessionID         string `json:"session_id"`
	Transcript        string `json:"transcript"`
	Response          string `json:"response"`
	EndOfConversation bool   `json:"end_of_conversation"`
	LatencyMS         int64  `json:"latency_ms"`
	Audio             []byte `json:"audio,omitempty"`
	Summary           string `json:"summary,omitempty"`
}

// writerRequest is the body of POST /api/writer. Either SessionID names a
// live text session or a stored one, or Transcript carries the text
// directly.
type writerRequest struct {
	SessionID  string `json:"session_id"`
	Transcript string `json:"transcript"`
}

type writerResponse struct {
	Summary string `json:"summary"`
}

type sessionView struct {
	ID        string      `json:"id"`
	Kind      SessionKind `json:"kind"`
	StartedAt time.Time   `json:"started_at"`
	Remote    string      `json:"remote,omitempty"`
	Entries   int         `json:"entries"`
}

type entryView struct {
	Role       string    `json:"role"`
	Text       string    `json:"text"`
	EndCause   string    `json:"end_cause,omitempty"`
	Timestamp  time.Time `json:"timestamp"`
	DurationMS int64     `json:"duration_ms,omitempty"`
}

type transcriptResponse struct {
	SessionID  string      `json:"session_id"`
	Entries    []entryView `json:"entries"`
	Transcript string      `json:"transcript"`
}

type searchResponse struct {
	Query   string      `json:"query"`
	Entries []entryView `json:"entries"`
}

// errorResponse is the body of every failed request. SessionID is set when
// the failed turn belongs to a session that is still live.
type errorResponse struct {
	Error     string `json:"error"`
	SessionID string `json:"session_id,omitempty"`
}

// errStoreDisabled is reported by the transcript routes when no store is
// configured.
var errStoreDisabled = errors.New("app: transcript store is not configured")

// handleTurn runs one typed answer through the interview. The session ends
// when the model closes the interview; the response then also carries the
// writer's summary.
func (a *App) handleTurn(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	log := observe.Logger(ctx)

	var req turnRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: err.Error()})
		return
	}
	if strings.TrimSpace(req.Text) == "" {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: conversation.ErrEmptyInput.Error()})
		return
	}

	sess, created, err := a.textSession(r, req.SessionID)
	if err != nil {
		writeSessionError(w, err)
		return
	}

	turn, err := sess.Conv.SubmitText(ctx, req.Text, req.StopWord)
	if err != nil {
		// A session opened by this request is never seen by the client
		// unless its first turn succeeds.
		ended := errors.Is(err, conversation.ErrConversationEnded)
		if created || ended {
			a.sessions.Release(sess)
		}
		body := errorResponse{Error: err.Error()}
		if !created && !ended {
			body.SessionID = sess.Info.ID
		}
		switch {
		case ended:
			writeJSON(w, http.StatusConflict, body)
		case errors.Is(err, conversation.ErrEmptyInput):
			writeJSON(w, http.StatusBadRequest, body)
		default:
			log.Warn("api: turn failed", "session_id", sess.Info.ID, "new_session", created, "err", err)
			writeJSON(w, http.StatusBadGateway, body)
		}
		return
	}

	resp := turnResponse{
		SessionID:         sess.Info.ID,
		Transcript:        turn.Transcript,
		Response:          turn.Response,
		EndOfConversation: turn.EndOfConversation,
		LatencyMS:         turn.Latency.Milliseconds(),
		Audio:             turn.Audio,
	}
	if turn.EndOfConversation {
		summary, err := a.newWriter().Summarise(ctx, sess.Conv.Transcript())
		if err != nil {
			log.Warn("api: writer failed", "session_id", sess.Info.ID, "err", err)
		}
		resp.Summary = summary
		a.sessions.Release(sess)
	}
	writeJSON(w, http.StatusOK, resp)
}

// textSession returns the live text session with the given ID, or starts a
// new one when id is empty. created reports whether the session was started
// by this call.
func (a *App) textSession(r *http.Request, id string) (sess *Session, created bool, err error) {
	if id != "" {
		sess, err := a.sessions.Lookup(id)
		if err != nil {
			return nil, false, err
		}
		if sess.Info.Kind != KindText {
			return nil, false, ErrSessionNotFound
		}
		return sess, false, nil
	}
	id = NewSessionID()
	conv, err := a.newConversation(id)
	if err != nil {
		return nil, false, err
	}
	// Text sessions outlive the request that opened them.
	sess, err = a.sessions.Start(context.WithoutCancel(r.Context()), SessionInfo{ID: id, Kind: KindText, Remote: r.RemoteAddr}, conv)
	if err != nil {
		return nil, false, err
	}
	return sess, true, nil
}

// handleWriter turns a transcript into post drafts.
func (a *App) handleWriter(w http.ResponseWriter, r *http.Request) {
	var req writerRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: err.Error()})
		return
	}
	transcript := req.Transcript
	if req.SessionID != "" {
		var err error
		transcript, err = a.sessionTranscript(r.Context(), req.SessionID)
		if err != nil {
			writeSessionError(w, err)
			return
		}
	}

	summary, err := a.newWriter().Summarise(r.Context(), transcript)
	switch {
	case errors.Is(err, conversation.ErrEmptyTranscriptText):
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: err.Error()})
	case err != nil:
		observe.Logger(r.Context()).Warn("api: writer failed", "err", err)
		writeJSON(w, http.StatusBadGateway, errorResponse{Error: err.Error()})
	default:
		writeJSON(w, http.StatusOK, writerResponse{Summary: summary})
	}
}

// sessionTranscript renders the transcript of a live session, or of a
// finished one from the store.
func (a *App) sessionTranscript(ctx context.Context, id string) (string, error) {
	sess, err := a.sessions.Lookup(id)
	if err == nil {
		return sess.Conv.Transcript(), nil
	}
	if !errors.Is(err, ErrSessionNotFound) || a.store == nil {
		return "", err
	}
	entries, err := a.store.Entries(ctx, id)
	if err != nil {
		return "", err
	}
	if len(entries) == 0 {
		return "", ErrSessionNotFound
	}
	return conversation.FormatTranscript(entries), nil
}

// handleSessions lists live sessions with the number of stored transcript
// entries each has.
func (a *App) handleSessions(w http.ResponseWriter, r *http.Request) {
	infos := a.sessions.List()
	out := make([]sessionView, len(infos))
	for i, in := range infos {
		out[i] = sessionView{ID: in.ID, Kind: in.Kind, StartedAt: in.StartedAt, Remote: in.Remote}
		if a.store != nil {
			n, err := a.store.EntryCount(r.Context(), in.ID)
			if err != nil {
				observe.Logger(r.Context()).Warn("api: count entries", "session_id", in.ID, "err", err)
			}
			out[i].Entries = n
		}
	}
	writeJSON(w, http.StatusOK, out)
}

// handleTranscript returns the stored transcript of a live or finished
// session. With ?since=<duration> only entries recorded within that window
// are returned.
func (a *App) handleTranscript(w http.ResponseWriter, r *http.Request) {
	if a.store == nil {
		writeJSON(w, http.StatusNotFound, errorResponse{Error: errStoreDisabled.Error()})
		return
	}
	ctx := r.Context()
	id := r.PathValue("id")

	var (
		entries []memory.TranscriptEntry
		err     error
	)
	if raw := r.URL.Query().Get("since"); raw != "" {
		since, perr := time.ParseDuration(raw)
		if perr != nil || since <= 0 {
			writeJSON(w, http.StatusBadRequest, errorResponse{Error: fmt.Sprintf("app: invalid since %q", raw)})
			return
		}
		entries, err = a.store.GetRecent(ctx, id, since)
	} else {
		entries, err = a.store.Entries(ctx, id)
	}
	if err != nil {
		observe.Logger(ctx).Warn("api: read transcript", "session_id", id, "err", err)
		writeJSON(w, http.StatusBadGateway, errorResponse{Error: err.Error()})
		return
	}
	if len(entries) == 0 {
		if _, lerr := a.sessions.Lookup(id); lerr != nil {
			writeSessionError(w, ErrSessionNotFound)
			return
		}
	}
	writeJSON(w, http.StatusOK, transcriptResponse{
		SessionID:  id,
		Entries:    entryViews(entries),
		Transcript: conversation.FormatTranscript(entries),
	})
}

// handleSearch runs a keyword search over stored transcripts.
//
//	GET /api/search?q=pipelines&session_id=…&role=user&limit=20&after=…&before=…
//
// after and before are RFC 3339 timestamps.
func (a *App) handleSearch(w http.ResponseWriter, r *http.Request) {
	if a.store == nil {
		writeJSON(w, http.StatusNotFound, errorResponse{Error: errStoreDisabled.Error()})
		return
	}
	q := r.URL.Query()
	query := strings.TrimSpace(q.Get("q"))
	if query == "" {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "app: query parameter q is required"})
		return
	}
	opts, err := parseSearchOpts(q.Get)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: err.Error()})
		return
	}
	entries, err := a.store.Search(r.Context(), query, opts)
	if err != nil {
		observe.Logger(r.Context()).Warn("api: search transcripts", "err", err)
		writeJSON(w, http.StatusBadGateway, errorResponse{Error: err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, searchResponse{Query: query, Entries: entryViews(entries)})
}

func parseSearchOpts(get func(string) string) (memory.SearchOpts, error) {
	opts := memory.SearchOpts{SessionID: get("session_id")}
	switch role := get("role"); role {
	case "", memory.RoleUser, memory.RoleSpark:
		opts.Role = role
	default:
		return opts, fmt.Errorf("app: unknown role %q", role)
	}
	if raw := get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			return opts, fmt.Errorf("app: invalid limit %q", raw)
		}
		opts.Limit = n
	}
	for _, b := range []struct {
		key string
		dst *time.Time
	}{{"after", &opts.After}, {"before", &opts.Before}} {
		raw := get(b.key)
		if raw == "" {
			continue
		}
		ts, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			return opts, fmt.Errorf("app: invalid %s %q", b.key, raw)
		}
		*b.dst = ts
	}
	return opts, nil
}

func entryViews(entries []memory.TranscriptEntry) []entryView {
	out := make([]entryView, len(entries))
	for i, e := range entries {
		out[i] = entryView{
			Role:       e.Role,
			Text:       e.Text,
			EndCause:   e.EndCause,
			Timestamp:  e.Timestamp,
			DurationMS: e.Duration.Milliseconds(),
		}
	}
	return out
}

// handleStopSession ends a live session. Voice sessions close their socket.
func (a *App) handleStopSession(w http.ResponseWriter, r *http.Request) {
	if err := a.sessions.Stop(r.PathValue("id")); err != nil {
		writeSessionError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// ─── Helpers ─────────────────────────────────────────────────────────────────

func decodeJSON(w http.ResponseWriter, r *http.Request, v any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxRequestBytes))
	dec.DisallowUnknownFields()
	return dec.Decode(v)
}

// writeSessionError maps session manager errors to HTTP status codes.
func writeSessionError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, ErrTooManySessions), errors.Is(err, ErrShuttingDown):
		status = http.StatusServiceUnavailable
	case errors.Is(err, ErrSessionNotFound):
		status = http.StatusNotFound
	}
	writeJSON(w, status, errorResponse{Error: err.Error()})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	body, err := json.Marshal(v)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(body)
}
