package app_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"

	"github.com/MrWong99/sparkie/internal/app"
	"github.com/MrWong99/sparkie/internal/observe"
)

var errTest = errors.New("test error")

func newTestSessionManager(t *testing.T, limit int, maxDuration time.Duration) (*app.SessionManager, *sdkmetric.ManualReader) {
	t.Helper()
	reader := sdkmetric.NewManualReader()
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	t.Cleanup(func() { _ = mp.Shutdown(context.Background()) })
	metrics, err := observe.NewMetrics(mp)
	if err != nil {
		t.Fatalf("NewMetrics: %v", err)
	}
	sm := app.NewSessionManager(app.SessionManagerConfig{
		MaxConcurrent: limit,
		MaxDuration:   maxDuration,
		Metrics:       metrics,
	})
	return sm, reader
}

func activeGauge(t *testing.T, reader *sdkmetric.ManualReader) int64 {
	t.Helper()
	var rm metricdata.ResourceMetrics
	if err := reader.Collect(context.Background(), &rm); err != nil {
		t.Fatalf("Collect: %v", err)
	}
	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			if m.Name != "sparkie.active_sessions" {
				continue
			}
			sum, ok := m.Data.(metricdata.Sum[int64])
			if !ok {
				t.Fatalf("active_sessions is %T", m.Data)
			}
			var total int64
			for _, dp := range sum.DataPoints {
				total += dp.Value
			}
			return total
		}
	}
	return 0
}

func TestSessionManager_StartRelease(t *testing.T) {
	t.Parallel()

	sm, reader := newTestSessionManager(t, 0, 0)

	s, err := sm.Start(context.Background(), app.SessionInfo{Kind: app.KindVoice, Remote: "10.0.0.1:5000"}, nil)
	if err != nil {
		t.Fatalf("Start() error: %v", err)
	}
	if s.Info.ID == "" {
		t.Error("expected a generated session ID")
	}
	if s.Info.StartedAt.IsZero() {
		t.Error("expected StartedAt to be set")
	}
	if sm.Active() != 1 {
		t.Errorf("Active() = %d, want 1", sm.Active())
	}
	if got := activeGauge(t, reader); got != 1 {
		t.Errorf("active gauge = %d, want 1", got)
	}
	infos := sm.List()
	if len(infos) != 1 || infos[0].ID != s.Info.ID || infos[0].Remote != "10.0.0.1:5000" {
		t.Errorf("List() = %+v", infos)
	}

	sm.Release(s)
	sm.Release(s)
	if sm.Active() != 0 {
		t.Errorf("Active() after Release = %d, want 0", sm.Active())
	}
	if s.Ctx.Err() == nil {
		t.Error("session context not cancelled after Release")
	}
	if got := activeGauge(t, reader); got != 0 {
		t.Errorf("active gauge after double Release = %d, want 0", got)
	}
}

func TestSessionManager_Limit(t *testing.T) {
	t.Parallel()

	sm, _ := newTestSessionManager(t, 1, 0)
	ctx := context.Background()

	first, err := sm.Start(ctx, app.SessionInfo{Kind: app.KindVoice}, nil)
	if err != nil {
		t.Fatalf("first Start() error: %v", err)
	}
	if _, err := sm.Start(ctx, app.SessionInfo{Kind: app.KindText}, nil); !errors.Is(err, app.ErrTooManySessions) {
		t.Fatalf("second Start() error = %v, want ErrTooManySessions", err)
	}
	sm.Release(first)
	if _, err := sm.Start(ctx, app.SessionInfo{Kind: app.KindText}, nil); err != nil {
		t.Fatalf("Start() after Release error: %v", err)
	}
}

func TestSessionManager_DuplicateID(t *testing.T) {
	t.Parallel()

	sm, _ := newTestSessionManager(t, 0, 0)
	ctx := context.Background()
	if _, err := sm.Start(ctx, app.SessionInfo{ID: "s1", Kind: app.KindText}, nil); err != nil {
		t.Fatalf("Start() error: %v", err)
	}
	if _, err := sm.Start(ctx, app.SessionInfo{ID: "s1", Kind: app.KindText}, nil); err == nil {
		t.Fatal("expected error for duplicate session ID")
	}
}

func TestSessionManager_StopAndLookup(t *testing.T) {
	t.Parallel()

	sm, _ := newTestSessionManager(t, 0, 0)
	s, err := sm.Start(context.Background(), app.SessionInfo{Kind: app.KindText}, nil)
	if err != nil {
		t.Fatalf("Start() error: %v", err)
	}

	got, err := sm.Lookup(s.Info.ID)
	if err != nil || got != s {
		t.Fatalf("Lookup() = %v, %v", got, err)
	}
	if err := sm.Stop(s.Info.ID); err != nil {
		t.Fatalf("Stop() error: %v", err)
	}
	if s.Ctx.Err() == nil {
		t.Error("context not cancelled by Stop")
	}
	if _, err := sm.Lookup(s.Info.ID); !errors.Is(err, app.ErrSessionNotFound) {
		t.Errorf("Lookup() after Stop error = %v, want ErrSessionNotFound", err)
	}
	if err := sm.Stop(s.Info.ID); !errors.Is(err, app.ErrSessionNotFound) {
		t.Errorf("second Stop() error = %v, want ErrSessionNotFound", err)
	}
}

func TestSessionManager_MaxDuration(t *testing.T) {
	t.Parallel()

	sm, _ := newTestSessionManager(t, 1, 20*time.Millisecond)
	s, err := sm.Start(context.Background(), app.SessionInfo{Kind: app.KindText}, nil)
	if err != nil {
		t.Fatalf("Start() error: %v", err)
	}

	select {
	case <-s.Ctx.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("session context did not expire")
	}
	if !errors.Is(s.Ctx.Err(), context.DeadlineExceeded) {
		t.Errorf("ctx.Err() = %v, want DeadlineExceeded", s.Ctx.Err())
	}
	if _, err := sm.Lookup(s.Info.ID); !errors.Is(err, app.ErrSessionNotFound) {
		t.Errorf("Lookup() of expired session error = %v, want ErrSessionNotFound", err)
	}

	// Expired text sessions do not hold a slot.
	if _, err := sm.Start(context.Background(), app.SessionInfo{Kind: app.KindText}, nil); err != nil {
		t.Fatalf("Start() after expiry error: %v", err)
	}
}

func TestSessionManager_StopAll(t *testing.T) {
	t.Parallel()

	sm, _ := newTestSessionManager(t, 0, 0)
	ctx := context.Background()

	var wg sync.WaitGroup
	for range 3 {
		s, err := sm.Start(ctx, app.SessionInfo{Kind: app.KindVoice}, nil)
		if err != nil {
			t.Fatalf("Start() error: %v", err)
		}
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-s.Ctx.Done()
			sm.Release(s)
		}()
	}
	if _, err := sm.Start(ctx, app.SessionInfo{Kind: app.KindText}, nil); err != nil {
		t.Fatalf("Start() text error: %v", err)
	}

	stopCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	if err := sm.StopAll(stopCtx); err != nil {
		t.Fatalf("StopAll() error: %v", err)
	}
	wg.Wait()
	if sm.Active() != 0 {
		t.Errorf("Active() after StopAll = %d, want 0", sm.Active())
	}
	if _, err := sm.Start(ctx, app.SessionInfo{Kind: app.KindVoice}, nil); !errors.Is(err, app.ErrShuttingDown) {
		t.Errorf("Start() after StopAll error = %v, want ErrShuttingDown", err)
	}
}

func TestSessionManager_StopAllDeadline(t *testing.T) {
	t.Parallel()

	sm, _ := newTestSessionManager(t, 0, 0)
	s, err := sm.Start(context.Background(), app.SessionInfo{Kind: app.KindVoice}, nil)
	if err != nil {
		t.Fatalf("Start() error: %v", err)
	}
	defer sm.Release(s)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if err := sm.StopAll(ctx); !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("StopAll() error = %v, want DeadlineExceeded", err)
	}
	if s.Ctx.Err() == nil {
		t.Error("unreleased session was not cancelled")
	}
}
