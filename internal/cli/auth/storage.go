// Package auth persists the CLI session between invocations.
//
// Values are opaque strings keyed by name. The session package decides the
// layout; storage backends only guarantee that a Set is visible to the next
// Get, including from a later process.
package auth

import (
	"errors"
	"fmt"
)

// ErrUnknownBackend is returned by Open for an unsupported backend name.
var ErrUnknownBackend = errors.New("unknown token store backend")

// Storage defines the key-value operations the session guard needs.
// This allows us to swap the OS keychain for a file or memory in tests.
type Storage interface {
	Get(key string) (string, bool, error)
	Set(key, value string) error
	Delete(key string) error
}

// Backend names accepted by Open
const (
	BackendKeyring = "keyring"
	BackendFile    = "file"
	BackendMemory  = "memory"
)

// Open returns the storage backend called name. namespace scopes keychain
// entries (usually the backend host) and path is the session file location;
// an empty path selects the default under the user's config directory.
func Open(name, namespace, path string) (Storage, error) {
	switch name {
	case BackendKeyring, "":
		return NewKeyringStore(namespace), nil
	case BackendFile:
		if path == "" {
			p, err := DefaultSessionPath()
			if err != nil {
				return nil, err
			}
			path = p
		}
		return NewFileStore(path), nil
	case BackendMemory:
		return NewMemoryStore(), nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownBackend, name)
	}
}
