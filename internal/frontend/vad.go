package frontend

// Phase is the state of a [VADMachine].
type Phase int

const (
	// PhaseSilent means no utterance is open.
	PhaseSilent Phase = iota

	// PhaseMaybeSpeaking means speech frames were seen but fewer than
	// MinSpeechFrames in a row.
	PhaseMaybeSpeaking

	// PhaseSpeaking means speech-start has been confirmed.
	PhaseSpeaking

	// PhaseMaybeSilent means confirmed speech is followed by fewer than
	// RedemptionFrames non-speech frames.
	PhaseMaybeSilent
)

// String returns the human-readable name of the phase.
func (p Phase) String() string {
	switch p {
	case PhaseSilent:
		return "SILENT"
	case PhaseMaybeSpeaking:
		return "MAYBE_SPEAKING"
	case PhaseSpeaking:
		return "SPEAKING"
	case PhaseMaybeSilent:
		return "MAYBE_SILENT"
	default:
		return "UNKNOWN"
	}
}

// Transition is what a single [VADMachine.Step] produced.
type Transition int

const (
	// TransitionNone means the step did not cross an event boundary.
	TransitionNone Transition = iota

	// TransitionSpeechStart means MinSpeechFrames consecutive speech frames
	// have just been seen.
	TransitionSpeechStart

	// TransitionSpeechEnd means RedemptionFrames consecutive non-speech frames
	// have just ended a confirmed utterance.
	TransitionSpeechEnd

	// TransitionMisfire means a speech run ended before MinSpeechFrames.
	TransitionMisfire
)

// String returns the human-readable name of the transition.
func (t Transition) String() string {
	switch t {
	case TransitionNone:
		return "none"
	case TransitionSpeechStart:
		return "speech_start"
	case TransitionSpeechEnd:
		return "speech_end"
	case TransitionMisfire:
		return "misfire"
	default:
		return "unknown"
	}
}

// VADMachine turns per-frame speech probabilities into speech-start,
// speech-end and misfire transitions with minimum-duration and redemption
// debouncing.
//
// VADMachine is not safe for concurrent use.
type VADMachine struct {
	threshold         float64
	speakingThreshold float64
	minSpeech         int
	redemption        int

	phase        Phase
	speechRun    int
	redemptionN  int
	userSpeaking bool
}

// NewVADMachine returns a machine in [PhaseSilent] using the VAD fields of cfg.
func NewVADMachine(cfg Config) *VADMachine {
	return &VADMachine{
		threshold:         cfg.PositiveSpeechThreshold,
		speakingThreshold: cfg.UserSpeakingThreshold,
		minSpeech:         cfg.MinSpeechFrames,
		redemption:        cfg.RedemptionFrames,
	}
}

// Phase returns the current phase.
func (m *VADMachine) Phase() Phase { return m.phase }

// UserSpeaking reports whether the most recent frame's probability was
// strictly above the user-speaking threshold.
func (m *VADMachine) UserSpeaking() bool { return m.userSpeaking }

// Step advances the machine by one frame with speech probability p.
func (m *VADMachine) Step(p float64) Transition {
	m.userSpeaking = p > m.speakingThreshold
	speech := p >= m.threshold

	switch m.phase {
	case PhaseSilent:
		if !speech {
			return TransitionNone
		}
		m.speechRun = 1
		if m.speechRun >= m.minSpeech {
			m.phase = PhaseSpeaking
			return TransitionSpeechStart
		}
		m.phase = PhaseMaybeSpeaking

	case PhaseMaybeSpeaking:
		if !speech {
			m.phase = PhaseSilent
			m.speechRun = 0
			return TransitionMisfire
		}
		m.speechRun++
		if m.speechRun >= m.minSpeech {
			m.phase = PhaseSpeaking
			return TransitionSpeechStart
		}

	case PhaseSpeaking:
		if speech {
			return TransitionNone
		}
		m.phase = PhaseMaybeSilent
		m.redemptionN = 1
		return m.checkRedeemed()

	case PhaseMaybeSilent:
		if speech {
			m.phase = PhaseSpeaking
			m.redemptionN = 0
			return TransitionNone
		}
		m.redemptionN++
		return m.checkRedeemed()
	}
	return TransitionNone
}

func (m *VADMachine) checkRedeemed() Transition {
	if m.redemptionN < m.redemption {
		return TransitionNone
	}
	m.phase = PhaseSilent
	m.speechRun = 0
	m.redemptionN = 0
	return TransitionSpeechEnd
}

// Reset returns the machine to [PhaseSilent] and clears all counters.
func (m *VADMachine) Reset() {
	m.phase = PhaseSilent
	m.speechRun = 0
	m.redemptionN = 0
	m.userSpeaking = false
}
