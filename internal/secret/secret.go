// Package secret resolves the key used to sign replay tokens.
package secret

import (
	"errors"
	"fmt"

	"github.com/99designs/keyring"
)

// ServiceName namespaces querylens entries in the OS keyring.
const ServiceName = "querylens"

// KeySigningSecret is the keyring item holding the token signing secret.
const KeySigningSecret = "signing_secret"

var ErrNoSecret = errors.New("signing secret not configured")

// Source yields the signing secret.
type Source interface {
	Secret() ([]byte, error)
}

// Static is a secret taken from configuration, usually SECRET_KEY.
type Static string

func (s Static) Secret() ([]byte, error) {
	if s == "" {
		return nil, ErrNoSecret
	}
	return []byte(s), nil
}

// Keyring reads and writes the secret in an OS credential store.
type Keyring struct {
	ring keyring.Keyring
}

// NewKeyring wraps an already opened keyring.
func NewKeyring(ring keyring.Keyring) *Keyring {
	return &Keyring{ring: ring}
}

// OpenKeyring opens the platform keyring. Backends that would prompt for a
// password on a headless server (file) are excluded.
func OpenKeyring() (*Keyring, error) {
	ring, err := keyring.Open(keyring.Config{
		ServiceName: ServiceName,
		AllowedBackends: []keyring.BackendType{
			keyring.KeychainBackend,
			keyring.WinCredBackend,
			keyring.SecretServiceBackend,
			keyring.KWalletBackend,
			keyring.PassBackend,
		},
		PassPrefix:               ServiceName,
		WinCredPrefix:            ServiceName,
		KeychainTrustApplication: true,
	})
	if err != nil {
		return nil, fmt.Errorf("opening OS keyring: %w", err)
	}
	return NewKeyring(ring), nil
}

func (k *Keyring) Secret() ([]byte, error) {
	item, err := k.ring.Get(KeySigningSecret)
	if errors.Is(err, keyring.ErrKeyNotFound) {
		return nil, fmt.Errorf("%w: no %q item in keyring", ErrNoSecret, KeySigningSecret)
	}
	if err != nil {
		return nil, fmt.Errorf("reading keyring: %w", err)
	}
	if len(item.Data) == 0 {
		return nil, fmt.Errorf("%w: keyring item is empty", ErrNoSecret)
	}
	return item.Data, nil
}

// Store saves secret, replacing any previous value.
func (k *Keyring) Store(secret []byte) error {
	if len(secret) == 0 {
		return ErrNoSecret
	}
	if err := k.ring.Set(keyring.Item{
		Key:         KeySigningSecret,
		Data:        secret,
		Label:       "querylens token signing secret",
		Description: "HMAC key for replay tokens",
	}); err != nil {
		return fmt.Errorf("writing keyring: %w", err)
	}
	return nil
}
