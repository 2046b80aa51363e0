package auth

import (
	"errors"
	"fmt"

	"github.com/zalando/go-keyring"
)

const (
	service = "razorlinks-cli"
)

// KeyringStore keeps session values in the OS keychain/credential manager
type KeyringStore struct {
	namespace string
}

// NewKeyringStore creates a keychain-backed store. Entries are scoped by
// namespace so sessions for different backends do not collide.
func NewKeyringStore(namespace string) *KeyringStore {
	return &KeyringStore{namespace: namespace}
}

// getKeyringKey returns a unique account name per value and backend
func (k *KeyringStore) getKeyringKey(key string) string {
	if k.namespace == "" {
		return key
	}
	return fmt.Sprintf("%s@%s", key, k.namespace)
}

// Get retrieves a value from the OS keychain
func (k *KeyringStore) Get(key string) (string, bool, error) {
	value, err := keyring.Get(service, k.getKeyringKey(key))
	if err != nil {
		if errors.Is(err, keyring.ErrNotFound) {
			return "", false, nil
		}
		return "", false, fmt.Errorf("failed to load %s: %w", key, err)
	}
	return value, true, nil
}

// Set persists a value securely in the OS keychain
func (k *KeyringStore) Set(key, value string) error {
	if err := keyring.Set(service, k.getKeyringKey(key), value); err != nil {
		return fmt.Errorf("failed to save %s: %w", key, err)
	}
	return nil
}

// Delete removes a value from the OS keychain
func (k *KeyringStore) Delete(key string) error {
	if err := keyring.Delete(service, k.getKeyringKey(key)); err != nil {
		if errors.Is(err, keyring.ErrNotFound) {
			return nil // Already deleted
		}
		return fmt.Errorf("failed to delete %s: %w", key, err)
	}
	return nil
}
