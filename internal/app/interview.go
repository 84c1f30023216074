package app

import (
	"context"
	"errors"
	"log/slog"

	"golang.org/x/sync/errgroup"

	"github.com/MrWong99/sparkie/internal/conversation"
	"github.com/MrWong99/sparkie/internal/frontend"
	"github.com/MrWong99/sparkie/pkg/audio"
)

// errInterviewOver stops the task group once the model has closed the
// interview. It never leaves [interview.run].
var errInterviewOver = errors.New("interview over")

// utteranceBuffer is how many finished utterances may wait for the
// conversation before the front-end is back-pressured.
const utteranceBuffer = 4

// sink receives everything a voice session produces. Implementations send
// it to a WebSocket client or to the local log.
type sink interface {
	Event(ctx context.Context, ev frontend.Event) error
	Turn(ctx context.Context, turn *conversation.Turn) error
	Summary(ctx context.Context, summary string) error
	Error(ctx context.Context, err error) error

	// End is called once the model has closed the interview, after the
	// summary was sent.
	End(ctx context.Context) error
}

// inputFunc feeds microphone audio and control commands into fe until the
// client goes away or ctx is done. Returning nil means the input ended
// normally and utterances still in flight should be answered.
type inputFunc func(ctx context.Context, fe *frontend.Session) error

// interview drives one voice session: a front-end turning audio into
// utterances, a conversation answering them one at a time, and a writer
// producing the summary once the model closes the interview.
type interview struct {
	id     string
	fe     *frontend.Session
	conv   *conversation.Conversation
	writer *conversation.Writer
	out    sink
	log    *slog.Logger
}

// run blocks until the interview is over, the input ends or fails, or ctx
// is done. The front-end is closed before run returns.
func (iv *interview) run(ctx context.Context, input inputFunc) error {
	g, gctx := errgroup.WithContext(ctx)
	utterances := make(chan frontend.Event, utteranceBuffer)

	g.Go(func() error {
		if err := input(gctx, iv.fe); err != nil {
			return err
		}
		// Input ended: answer what the user already said, then let the
		// event stream drain.
		if _, err := iv.fe.ForceEnd(gctx); err != nil && !errors.Is(err, frontend.ErrClosed) {
			return err
		}
		return iv.fe.Close()
	})
	g.Go(func() error {
		defer close(utterances)
		return iv.forward(gctx, utterances)
	})
	g.Go(func() error {
		return iv.answer(gctx, utterances)
	})

	err := g.Wait()
	_ = iv.fe.Close()
	if errors.Is(err, errInterviewOver) {
		return nil
	}
	return err
}

// forward relays front-end events to the sink and hands finished
// utterances to the answer loop.
func (iv *interview) forward(ctx context.Context, utterances chan<- frontend.Event) error {
	// The front-end blocks on SpeechEnd until it is received.
	defer func() { go audio.Drain(iv.fe.Events()) }()
	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-iv.fe.Events():
			if !ok {
				return nil
			}
			if err := iv.out.Event(ctx, ev); err != nil {
				return err
			}
			if ev.Type != frontend.SpeechEnd {
				continue
			}
			select {
			case utterances <- ev:
			case <-ctx.Done():
				return nil
			}
		}
	}
}

// answer submits utterances in order. Failed turns are reported to the
// client and the interview continues.
func (iv *interview) answer(ctx context.Context, utterances <-chan frontend.Event) error {
	for ev := range utterances {
		turn, err := iv.conv.Submit(ctx, conversation.Utterance{
			Audio:      ev.Audio,
			SampleRate: ev.SampleRate,
			StopWord:   ev.Cause == frontend.EndKeyword,
			Cause:      ev.Cause.String(),
		})
		switch {
		case errors.Is(err, conversation.ErrConversationEnded):
			return errInterviewOver
		case ctx.Err() != nil:
			return nil
		case err != nil:
			iv.log.Warn("interview: turn failed", "utterance", ev.UtteranceID, "err", err)
			if sendErr := iv.out.Error(ctx, err); sendErr != nil {
				return sendErr
			}
			continue
		}
		if err := iv.out.Turn(ctx, turn); err != nil {
			return err
		}
		if turn.EndOfConversation {
			iv.finish(ctx)
			if err := iv.out.End(ctx); err != nil {
				iv.log.Debug("interview: end", "err", err)
			}
			return errInterviewOver
		}
	}
	return nil
}

// finish stops listening and sends the writer's drafts.
func (iv *interview) finish(ctx context.Context) {
	if err := iv.fe.Pause(ctx); err != nil && !errors.Is(err, frontend.ErrClosed) {
		iv.log.Warn("interview: pause front-end", "err", err)
	}
	iv.log.Info("interview: conversation ended", "turns", iv.conv.Turns())
	if iv.writer == nil {
		return
	}
	summary, err := iv.writer.Summarise(ctx, iv.conv.Transcript())
	if err != nil {
		iv.log.Warn("interview: writer failed", "err", err)
		_ = iv.out.Error(ctx, err)
		return
	}
	if err := iv.out.Summary(ctx, summary); err != nil {
		iv.log.Warn("interview: send summary", "err", err)
	}
}
