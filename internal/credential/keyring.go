// Package credential stores provider secrets (API tokens, mailbox
// passwords) in the system keyring, keyed by the credential_key names
// that trigger configs reference.
package credential

import (
	"fmt"
	"sort"

	"github.com/99designs/keyring"
)

const serviceName = "pollwatch"

// Store wraps a keyring backend.
type Store struct {
	ring keyring.Keyring
}

// Open returns a Store over the system keyring, falling back to an
// encrypted file backend when no platform keyring is available.
func Open() (*Store, error) {
	ring, err := keyring.Open(keyring.Config{
		ServiceName: serviceName,
		AllowedBackends: []keyring.BackendType{
			keyring.KeychainBackend,
			keyring.SecretServiceBackend,
			keyring.WinCredBackend,
			keyring.PassBackend,
			keyring.FileBackend,
		},
		FileDir:                  "~/.config/pollwatch/credentials",
		FilePasswordFunc:         keyring.FixedStringPrompt("pollwatch-file-key"),
		KeychainTrustApplication: true,
	})
	if err != nil {
		return nil, fmt.Errorf("opening keyring: %w", err)
	}
	return &Store{ring: ring}, nil
}

// Get retrieves a credential value by key.
func (s *Store) Get(key string) (string, error) {
	item, err := s.ring.Get(key)
	if err != nil {
		return "", fmt.Errorf("getting credential %q: %w", key, err)
	}
	return string(item.Data), nil
}

// Set stores a credential value by key.
func (s *Store) Set(key string, value string) error {
	err := s.ring.Set(keyring.Item{
		Key:  key,
		Data: []byte(value),
	})
	if err != nil {
		return fmt.Errorf("setting credential %q: %w", key, err)
	}
	return nil
}

// Delete removes a credential by key.
func (s *Store) Delete(key string) error {
	if err := s.ring.Remove(key); err != nil {
		return fmt.Errorf("deleting credential %q: %w", key, err)
	}
	return nil
}

// Keys lists the stored credential keys, sorted. Used to point at the
// available keys when a configured credential_key does not resolve.
func (s *Store) Keys() ([]string, error) {
	keys, err := s.ring.Keys()
	if err != nil {
		return nil, fmt.Errorf("listing credentials: %w", err)
	}
	sort.Strings(keys)
	return keys, nil
}
