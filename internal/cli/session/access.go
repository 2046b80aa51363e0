package session

import (
	"fmt"
	"strings"
)

// Class is the access class of a route
type Class int

const (
	PublicOnly Class = iota + 1
	AuthenticatedOnly
	AdminOnly
)

func (c Class) String() string {
	switch c {
	case PublicOnly:
		return "public"
	case AuthenticatedOnly:
		return "authenticated"
	case AdminOnly:
		return "admin"
	default:
		return fmt.Sprintf("class(%d)", int(c))
	}
}

// ParseClass accepts the names used in policy files
func ParseClass(s string) (Class, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "public", "public_only", "public-only":
		return PublicOnly, nil
	case "authenticated", "authenticated_only", "authenticated-only", "private":
		return AuthenticatedOnly, nil
	case "admin", "admin_only", "admin-only":
		return AdminOnly, nil
	default:
		return 0, fmt.Errorf("%w: unknown access class %q", ErrInvalidPolicy, s)
	}
}

// Targets are the routes a Decision can redirect to
type Targets struct {
	Login        string `yaml:"login"`
	Landing      string `yaml:"landing"`
	AccessDenied string `yaml:"access_denied"`
}

// DefaultTargets mirrors the web client's routes
var DefaultTargets = Targets{
	Login:        "/login",
	Landing:      "/dashboard",
	AccessDenied: "/access-denied",
}

func (t Targets) withDefaults() Targets {
	if t.Login == "" {
		t.Login = DefaultTargets.Login
	}
	if t.Landing == "" {
		t.Landing = DefaultTargets.Landing
	}
	if t.AccessDenied == "" {
		t.AccessDenied = DefaultTargets.AccessDenied
	}
	return t
}

// Reason explains a Decision
type Reason int

const (
	ReasonNone Reason = iota
	ReasonAlreadyAuthenticated
	ReasonLoginRequired
	ReasonAccessDenied
)

func (r Reason) String() string {
	switch r {
	case ReasonAlreadyAuthenticated:
		return "already authenticated"
	case ReasonLoginRequired:
		return "login required"
	case ReasonAccessDenied:
		return "admin role required"
	default:
		return ""
	}
}

// Decision is either Allow or RedirectTo(target)
type Decision struct {
	Allowed    bool
	RedirectTo string
	Reason     Reason
}

// Allow is the permitting decision
func Allow() Decision {
	return Decision{Allowed: true}
}

// RedirectTo redirects to target for reason
func RedirectTo(target string, reason Reason) Decision {
	return Decision{RedirectTo: target, Reason: reason}
}

// Err maps access-denied redirects to ErrAccessDenied, anything else to nil
func (d Decision) Err() error {
	if d.Reason == ReasonAccessDenied {
		return ErrAccessDenied
	}
	return nil
}

func (d Decision) String() string {
	if d.Allowed {
		return "allow"
	}
	return fmt.Sprintf("redirect to %s (%s)", d.RedirectTo, d.Reason)
}

// EvaluateRouteAccess decides whether s may reach a route of class c. It
// is pure and total: an unknown class fails closed to the login redirect.
func EvaluateRouteAccess(c Class, s Session, t Targets) Decision {
	t = t.withDefaults()
	authenticated := s.Authenticated()

	switch c {
	case PublicOnly:
		if authenticated {
			return RedirectTo(t.Landing, ReasonAlreadyAuthenticated)
		}
		return Allow()
	case AuthenticatedOnly:
		if !authenticated {
			return RedirectTo(t.Login, ReasonLoginRequired)
		}
		return Allow()
	case AdminOnly:
		if !authenticated {
			return RedirectTo(t.Login, ReasonLoginRequired)
		}
		if !s.IsAdmin {
			return RedirectTo(t.AccessDenied, ReasonAccessDenied)
		}
		return Allow()
	default:
		return RedirectTo(t.Login, ReasonLoginRequired)
	}
}
