package session

// Outcome is the internal classification of one Authenticate call.
type Outcome uint8

const (
	// OutcomeNotFound: no record matched the presented pair.
	OutcomeNotFound Outcome = iota
	// OutcomeValid: access window open, pair unchanged.
	OutcomeValid
	// OutcomeRotated: refresh window open, a fresh pair replaced the old one.
	OutcomeRotated
	// OutcomeExpired: both windows closed, record removed.
	OutcomeExpired
	// OutcomeStoreFailure: a store call returned an error.
	OutcomeStoreFailure
	// OutcomeAborted: rotation stopped because a step had no effect or a concurrent caller won.
	OutcomeAborted
)

func (o Outcome) String() string {
	switch o {
	case OutcomeNotFound:
		return "not_found"
	case OutcomeValid:
		return "valid"
	case OutcomeRotated:
		return "rotated"
	case OutcomeExpired:
		return "expired"
	case OutcomeStoreFailure:
		return "store_failure"
	case OutcomeAborted:
		return "aborted"
	default:
		return "unknown"
	}
}

// Result is what Authenticate returns. Transport code should only use
// Authorized and Tokens; Outcome and Err are for logs and metrics.
type Result struct {
	Outcome Outcome
	Err     error

	pair Pair
}

// Authorized reports whether the caller may proceed.
func (r Result) Authorized() bool {
	return r.Outcome == OutcomeValid || r.Outcome == OutcomeRotated
}

// Tokens returns the pair to send back: the presented or rotated pair when
// authorized, otherwise the empty pair (clear the client's credentials).
func (r Result) Tokens() Pair {
	if !r.Authorized() {
		return Pair{}
	}
	return r.pair
}
