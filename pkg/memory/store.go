// Package memory defines the transcript store used by conversation sessions.
//
// Every finished turn is appended to a time-ordered log keyed by session ID:
// the user's transcribed answer and the interviewer's reply. The log feeds
// the post-conversation writer and the transcript API, and survives process
// restarts when backed by PostgreSQL.
//
// The interface is public so that alternative backends can be supplied
// without depending on sparkie internals.
//
// Every implementation must be safe for concurrent use.
package memory

import (
	"context"
	"time"
)

// SearchOpts configures a full-text search over transcript entries.
// All non-zero fields are applied as AND conditions.
type SearchOpts struct {
	// SessionID restricts the search to a single session.
	// An empty string searches across all sessions.
	SessionID string

	// After filters entries recorded after this instant (exclusive).
	// A zero Time disables the lower bound.
	After time.Time

	// Before filters entries recorded before this instant (exclusive).
	// A zero Time disables the upper bound.
	Before time.Time

	// Role restricts results to one speaker role ([RoleUser] or [RoleSpark]).
	// An empty string matches all roles.
	Role string

	// Limit caps the number of results returned.
	// A value of 0 means the implementation may apply its own default.
	Limit int
}

// SessionStore is a time-ordered, append-only log of [TranscriptEntry]
// records for one or more conversation sessions.
//
// Entries must be returned in chronological order unless otherwise specified.
// Implementations must be safe for concurrent use.
type SessionStore interface {
	// WriteEntry appends a TranscriptEntry to the store for the given session.
	// sessionID must be non-empty.
	// Returns an error only on persistent storage failure.
	WriteEntry(ctx context.Context, sessionID string, entry TranscriptEntry) error

	// Entries returns every entry of the session, oldest first.
	// Returns an empty (non-nil) slice when the session has no entries.
	Entries(ctx context.Context, sessionID string) ([]TranscriptEntry, error)

	// GetRecent returns all entries for the given session whose Timestamp is
	// no earlier than time.Now()-duration.
	// Returns an empty (non-nil) slice when no matching entries exist.
	GetRecent(ctx context.Context, sessionID string, duration time.Duration) ([]TranscriptEntry, error)

	// Search performs keyword / full-text search over stored entries.
	// The query string is matched against the Text field.
	// Returns an empty (non-nil) slice when no entries match.
	Search(ctx context.Context, query string, opts SearchOpts) ([]TranscriptEntry, error)

	// EntryCount returns the number of entries stored for the session.
	EntryCount(ctx context.Context, sessionID string) (int, error)
}
