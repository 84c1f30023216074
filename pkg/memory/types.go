package memory

import "time"

// Speaker roles stored in [TranscriptEntry.Role].
const (
	RoleUser  = "user"
	RoleSpark = "spark"
)

// TranscriptEntry is one side of a conversation turn.
type TranscriptEntry struct {
	// Role is [RoleUser] or [RoleSpark].
	Role string

	// Text is what was said. For user entries it is the raw transcript,
	// without any directive that was added for the model.
	Text string

	// EndCause records how the user's utterance was ended ("vad",
	// "keyword", "manual", "pause"). Empty for spark entries and typed input.
	EndCause string

	// Timestamp is when this entry was recorded.
	Timestamp time.Time

	// Duration is the length of the spoken audio, zero for typed input.
	Duration time.Duration
}
