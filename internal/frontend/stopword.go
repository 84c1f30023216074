package frontend

// Outcome is what a single [StopDebounce.Step] produced.
type Outcome int

const (
	// OutcomeNone means nothing changed that the caller must act on.
	OutcomeNone Outcome = iota

	// OutcomeArmed means a keyword hit entered or re-entered pending
	// confirmation.
	OutcomeArmed

	// OutcomeAborted means the speaker kept talking after the keyword; it
	// was a false trigger.
	OutcomeAborted

	// OutcomeConfirmed means the speaker stayed quiet after the keyword; the
	// caller must end the utterance.
	OutcomeConfirmed

	// OutcomeExpired means the pending confirmation exceeded its frame
	// budget without a verdict and was dropped.
	OutcomeExpired
)

// String returns the human-readable name of the outcome.
func (o Outcome) String() string {
	switch o {
	case OutcomeNone:
		return "none"
	case OutcomeArmed:
		return "armed"
	case OutcomeAborted:
		return "aborted"
	case OutcomeConfirmed:
		return "confirmed"
	case OutcomeExpired:
		return "expired"
	default:
		return "unknown"
	}
}

// StopDebounce confirms a keyword hit by watching what the speaker does
// next. Its two states are idle and pending confirmation.
//
// While pending, every frame adds to either the speech or the silence
// counter. The counters are cumulative: alternating frames do not reset
// them, so a verdict arrives within MaxPostStopSpeechFrames +
// MinPostStopSilenceFrames − 1 frames of the last hit. Repeated hits re-arm
// and reset both counters; maxPending bounds how long re-arming can keep the
// machine pending, counted from the first hit.
//
// StopDebounce is not safe for concurrent use.
type StopDebounce struct {
	maxSpeech  int
	minSilence int
	maxPending int

	pending bool
	speech  int
	silence int
	age     int
}

// NewStopDebounce returns an idle machine using the debounce fields of cfg.
func NewStopDebounce(cfg Config) *StopDebounce {
	return &StopDebounce{
		maxSpeech:  cfg.MaxPostStopSpeechFrames,
		minSilence: cfg.MinPostStopSilenceFrames,
		maxPending: cfg.MaxPendingFrames,
	}
}

// Pending reports whether a keyword hit awaits confirmation.
func (d *StopDebounce) Pending() bool { return d.pending }

// Step advances the machine by one frame. keyword is the spotter's verdict
// for this frame and speaking is the VAD's user-speaking flag.
func (d *StopDebounce) Step(keyword, speaking bool) Outcome {
	if keyword {
		if !d.pending {
			d.age = 0
		}
		d.pending = true
		d.speech = 0
		d.silence = 0
		return d.tick(OutcomeArmed)
	}
	if !d.pending {
		return OutcomeNone
	}

	if speaking {
		d.speech++
		if d.speech >= d.maxSpeech {
			d.Reset()
			return OutcomeAborted
		}
	} else {
		d.silence++
		if d.silence >= d.minSilence {
			d.Reset()
			return OutcomeConfirmed
		}
	}
	return d.tick(OutcomeNone)
}

// tick ages the pending confirmation and expires it once it has been
// pending for maxPending frames.
func (d *StopDebounce) tick(o Outcome) Outcome {
	d.age++
	if d.maxPending > 0 && d.age >= d.maxPending {
		d.Reset()
		return OutcomeExpired
	}
	return o
}

// Reset returns the machine to idle and clears all counters.
func (d *StopDebounce) Reset() {
	d.pending = false
	d.speech = 0
	d.silence = 0
	d.age = 0
}
