// Package notify renders session outcomes for the person at the terminal.
package notify

import (
	"fmt"
	"io"
	"sync"

	"github.com/rs/zerolog"

	"github.com/razorquake/razorlinks/internal/cli/session"
)

// Notifier is a session.Observer that prints one line per user-visible
// outcome and logs every outcome
type Notifier struct {
	mu     sync.Mutex
	out    io.Writer
	logger zerolog.Logger
}

// New creates a notifier writing to out
func New(out io.Writer, logger zerolog.Logger) *Notifier {
	return &Notifier{out: out, logger: logger}
}

// Observe implements session.Observer
func (n *Notifier) Observe(o session.Outcome) {
	event := n.logger.Debug()
	if o.Err != nil {
		event = n.logger.Info().Err(o.Err)
	}
	event.
		Str("outcome", o.Kind.String()).
		Str("previous", o.Previous.String()).
		Str("redirect_to", o.RedirectTo).
		Msg("Session outcome")

	msg := Message(o)
	if msg == "" {
		return
	}
	n.mu.Lock()
	defer n.mu.Unlock()
	fmt.Fprintln(n.out, msg)
}

// Message returns the notification text for o, or "" when o is silent.
// Ending an anonymous session is silent: there was nothing to lose.
func Message(o session.Outcome) string {
	switch o.Kind {
	case session.OutcomeLoggedIn:
		if name := o.Session.Username(); name != "" {
			return fmt.Sprintf("✓ Logged in as %s", name)
		}
		return "✓ Logged in"
	case session.OutcomeLoggedOut:
		return "Logged out."
	case session.OutcomeExpired, session.OutcomeUnauthorized:
		if o.Ended() {
			return "Session expired. Please log in again."
		}
	case session.OutcomeMalformed:
		if o.Ended() {
			return "Session is invalid. Please log in again."
		}
	case session.OutcomeIdentityFetchFailed:
		return "Warning: could not refresh account details; using cached roles."
	}
	return ""
}
