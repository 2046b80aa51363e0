package session

import "time"

// Keys of the persisted session layout. Presence of KeyToken is the sole
// source of truth for "authenticated".
const (
	KeyToken   = "JWT_TOKEN"
	KeyUser    = "USER"
	KeyIsAdmin = "IS_ADMIN"
)

// State is the coarse session state
type State int

const (
	Anonymous State = iota
	Authenticated
)

func (s State) String() string {
	switch s {
	case Authenticated:
		return "authenticated"
	default:
		return "anonymous"
	}
}

// Identity is the decoded subject of a token. It is persisted under KeyUser
// as {"username": ..., "roles": [...]}.
type Identity struct {
	Username string  `json:"username"`
	Roles    RoleSet `json:"roles"`
}

// Session is an immutable snapshot of the guard's state
type Session struct {
	Token           string
	Identity        *Identity
	IsAdmin         bool
	LastEvaluatedAt time.Time
}

// Authenticated reports whether a token is present
func (s Session) Authenticated() bool {
	return s.Token != ""
}

// State returns Authenticated when a token is present
func (s Session) State() State {
	if s.Authenticated() {
		return Authenticated
	}
	return Anonymous
}

// Username returns the identity's subject or ""
func (s Session) Username() string {
	if s.Identity == nil {
		return ""
	}
	return s.Identity.Username
}

func (s Session) clone() Session {
	out := s
	if s.Identity != nil {
		id := Identity{Username: s.Identity.Username, Roles: s.Identity.Roles.clone()}
		out.Identity = &id
	}
	return out
}
