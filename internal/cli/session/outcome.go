package session

import "time"

// OutcomeKind classifies a guard transition
type OutcomeKind int

const (
	OutcomeLoggedIn OutcomeKind = iota + 1
	OutcomeLoggedOut
	OutcomeExpired
	OutcomeMalformed
	OutcomeUnauthorized
	OutcomeIdentityRefreshed
	OutcomeIdentityFetchFailed
	OutcomeLoginDiscarded
)

func (k OutcomeKind) String() string {
	switch k {
	case OutcomeLoggedIn:
		return "logged_in"
	case OutcomeLoggedOut:
		return "logged_out"
	case OutcomeExpired:
		return "expired"
	case OutcomeMalformed:
		return "malformed"
	case OutcomeUnauthorized:
		return "unauthorized"
	case OutcomeIdentityRefreshed:
		return "identity_refreshed"
	case OutcomeIdentityFetchFailed:
		return "identity_fetch_failed"
	case OutcomeLoginDiscarded:
		return "login_discarded"
	default:
		return "unknown"
	}
}

// Outcome is emitted after every transition, and after failures that are
// reported without a transition
type Outcome struct {
	Kind       OutcomeKind
	Previous   State
	Session    Session
	RedirectTo string
	Err        error
	At         time.Time
}

// Ended reports whether the outcome terminated an authenticated session
func (o Outcome) Ended() bool {
	switch o.Kind {
	case OutcomeExpired, OutcomeMalformed, OutcomeUnauthorized:
		return o.Previous == Authenticated
	}
	return false
}

// Observer receives outcomes. Observe runs after the guard has released its
// lock, so it may call back into the guard.
type Observer interface {
	Observe(Outcome)
}

// ObserverFunc adapts a function to Observer
type ObserverFunc func(Outcome)

func (f ObserverFunc) Observe(o Outcome) {
	f(o)
}
