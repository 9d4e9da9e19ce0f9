package guard

// Outcome describes how an open or password answer was resolved.
type Outcome int

const (
	OutcomeNone        Outcome = iota // no note to open
	OutcomeUnprotected                // note has no marker
	OutcomeUnlocked                   // already unlocked this session
	OutcomeChallenge                  // password prompt issued
	OutcomeDenied                     // no password configured; view closed
	OutcomeGranted                    // password accepted
	OutcomeRejected                   // password mismatch; view closed
	OutcomeCancelled                  // prompt dismissed; view closed
	OutcomeSuperseded                 // a newer signal replaced this one
)

var outcomeNames = [...]string{
	OutcomeNone:        "none",
	OutcomeUnprotected: "unprotected",
	OutcomeUnlocked:    "unlocked",
	OutcomeChallenge:   "challenge",
	OutcomeDenied:      "denied",
	OutcomeGranted:     "granted",
	OutcomeRejected:    "rejected",
	OutcomeCancelled:   "cancelled",
	OutcomeSuperseded:  "superseded",
}

func (o Outcome) String() string {
	if o < 0 || int(o) >= len(outcomeNames) {
		return "unknown"
	}
	return outcomeNames[o]
}

// MarshalText renders the outcome name in JSON responses.
func (o Outcome) MarshalText() ([]byte, error) {
	return []byte(o.String()), nil
}

// Readable reports whether the note may be shown after this outcome.
func (o Outcome) Readable() bool {
	switch o {
	case OutcomeUnprotected, OutcomeUnlocked, OutcomeGranted:
		return true
	}
	return false
}
