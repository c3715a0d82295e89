package gemini

import "fmt"

// Outcome tags how a call to the assistant ended.
type Outcome int

const (
	// OutcomeOK means the provider answered with at least one candidate.
	OutcomeOK Outcome = iota
	// OutcomeNoCandidates means the provider answered successfully but with nothing in it.
	OutcomeNoCandidates
	// OutcomeExhausted means every attempt failed at the transport level.
	OutcomeExhausted
	// OutcomeCritical means a non-transport failure stopped the call early.
	OutcomeCritical
)

const (
	textNotFound        = "Error: Text content not found."
	noCandidatesText    = "Error: API response contained no candidates."
	exhaustedTextFormat = "Error: Failed to connect to the AI system after %d attempts. Request Exception: %v"
	criticalErrorFormat = "Critical Error: An unexpected issue prevented processing. Exception: %v"
)

func (o Outcome) String() string {
	switch o {
	case OutcomeOK:
		return "ok"
	case OutcomeNoCandidates:
		return "no_candidates"
	case OutcomeExhausted:
		return "unavailable"
	case OutcomeCritical:
		return "critical"
	default:
		return fmt.Sprintf("outcome(%d)", int(o))
	}
}

// Result is what Ask returns. Sources is empty unless Outcome is OutcomeOK.
type Result struct {
	Outcome  Outcome
	Text     string
	Sources  []Attribution
	Attempts int
	Err      error
}

// Display renders the result as the text shown to the end user. Failures become a fixed
// human-readable message rather than an error.
func (r Result) Display() string {
	switch r.Outcome {
	case OutcomeOK:
		return r.Text
	case OutcomeNoCandidates:
		return noCandidatesText
	case OutcomeExhausted:
		return fmt.Sprintf(exhaustedTextFormat, r.Attempts, r.Err)
	default:
		return fmt.Sprintf(criticalErrorFormat, r.Err)
	}
}
