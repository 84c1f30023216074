package postgres_test

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/MrWong99/sparkie/pkg/memory"
	"github.com/MrWong99/sparkie/pkg/memory/postgres"
)

// testDSN returns the test database DSN from the environment, or skips the
// test if SPARKIE_TEST_POSTGRES_DSN is not set.
func testDSN(t *testing.T) string {
	t.Helper()
	dsn := os.Getenv("SPARKIE_TEST_POSTGRES_DSN")
	if dsn == "" {
		t.Skip("SPARKIE_TEST_POSTGRES_DSN not set, skipping PostgreSQL integration tests")
	}
	return dsn
}

// newTestStore creates a fresh [postgres.Store] with a clean schema.
func newTestStore(t *testing.T) *postgres.Store {
	t.Helper()
	dsn := testDSN(t)
	ctx := context.Background()

	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		t.Fatalf("pool: %v", err)
	}
	if _, err := pool.Exec(ctx, "DROP TABLE IF EXISTS session_entries CASCADE"); err != nil {
		t.Fatalf("drop schema: %v", err)
	}
	pool.Close()

	store, err := postgres.NewStore(ctx, dsn)
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}
	t.Cleanup(store.Close)
	return store
}

func TestNewStore_BadDSN(t *testing.T) {
	if _, err := postgres.NewStore(context.Background(), "::not a dsn::"); err == nil {
		t.Fatal("expected error for malformed DSN")
	}
}

func TestMigrate_Idempotent(t *testing.T) {
	dsn := testDSN(t)
	ctx := context.Background()
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		t.Fatalf("pool: %v", err)
	}
	defer pool.Close()
	for i := range 2 {
		if err := postgres.Migrate(ctx, pool); err != nil {
			t.Fatalf("Migrate #%d: %v", i+1, err)
		}
	}
}

func TestWriteEntry_EntriesRoundTrip(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	base := time.Now().Add(-time.Minute).UTC().Truncate(time.Microsecond)

	want := []memory.TranscriptEntry{
		{Role: memory.RoleSpark, Text: "Tell me about a project you are proud of.", Timestamp: base},
		{Role: memory.RoleUser, Text: "I rebuilt our billing pipeline.", EndCause: "vad", Timestamp: base.Add(time.Second), Duration: 2500 * time.Millisecond},
	}
	for _, e := range want {
		if err := store.WriteEntry(ctx, "s1", e); err != nil {
			t.Fatalf("WriteEntry: %v", err)
		}
	}
	if err := store.WriteEntry(ctx, "s2", memory.TranscriptEntry{Role: memory.RoleUser, Text: "other"}); err != nil {
		t.Fatalf("WriteEntry s2: %v", err)
	}

	got, err := store.Entries(ctx, "s1")
	if err != nil {
		t.Fatalf("Entries: %v", err)
	}
	if len(got) != len(want) {
		t.Fatalf("got %d entries, want %d", len(got), len(want))
	}
	for i := range want {
		if got[i].Role != want[i].Role || got[i].Text != want[i].Text || got[i].EndCause != want[i].EndCause {
			t.Errorf("entry %d = %+v, want %+v", i, got[i], want[i])
		}
		if got[i].Duration != want[i].Duration {
			t.Errorf("entry %d duration = %v, want %v", i, got[i].Duration, want[i].Duration)
		}
		if !got[i].Timestamp.Equal(want[i].Timestamp) {
			t.Errorf("entry %d timestamp = %v, want %v", i, got[i].Timestamp, want[i].Timestamp)
		}
	}

	n, err := store.EntryCount(ctx, "s1")
	if err != nil || n != 2 {
		t.Errorf("EntryCount = %d, %v; want 2, nil", n, err)
	}
}

func TestWriteEntry_EmptySessionID(t *testing.T) {
	store := newTestStore(t)
	if err := store.WriteEntry(context.Background(), "", memory.TranscriptEntry{Text: "x"}); err == nil {
		t.Fatal("expected error for empty session ID")
	}
}

func TestEntries_UnknownSessionIsEmpty(t *testing.T) {
	store := newTestStore(t)
	got, err := store.Entries(context.Background(), "nobody")
	if err != nil {
		t.Fatalf("Entries: %v", err)
	}
	if got == nil || len(got) != 0 {
		t.Errorf("Entries = %#v, want empty non-nil slice", got)
	}
}

func TestGetRecent_FiltersOldEntries(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	now := time.Now()
	_ = store.WriteEntry(ctx, "s1", memory.TranscriptEntry{Role: memory.RoleUser, Text: "old", Timestamp: now.Add(-2 * time.Hour)})
	_ = store.WriteEntry(ctx, "s1", memory.TranscriptEntry{Role: memory.RoleUser, Text: "new", Timestamp: now.Add(-time.Minute)})

	got, err := store.GetRecent(ctx, "s1", time.Hour)
	if err != nil {
		t.Fatalf("GetRecent: %v", err)
	}
	if len(got) != 1 || got[0].Text != "new" {
		t.Errorf("GetRecent = %+v, want only the recent entry", got)
	}
}

func TestSearch_FullTextWithFilters(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	_ = store.WriteEntry(ctx, "s1", memory.TranscriptEntry{Role: memory.RoleUser, Text: "I migrated the database to Postgres"})
	_ = store.WriteEntry(ctx, "s1", memory.TranscriptEntry{Role: memory.RoleSpark, Text: "Why did the database migration matter?"})
	_ = store.WriteEntry(ctx, "s2", memory.TranscriptEntry{Role: memory.RoleUser, Text: "database sharding"})

	got, err := store.Search(ctx, "database", memory.SearchOpts{SessionID: "s1", Role: memory.RoleUser})
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(got) != 1 || got[0].Role != memory.RoleUser {
		t.Errorf("Search = %+v, want the single user entry of s1", got)
	}

	all, err := store.Search(ctx, "database", memory.SearchOpts{Limit: 2})
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(all) != 2 {
		t.Errorf("Search with limit = %d results, want 2", len(all))
	}
}
