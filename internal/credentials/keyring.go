package credentials

import (
	"errors"

	"github.com/zalando/go-keyring"
)

// KeyringService is the service name under which knox stores secrets in the
// OS keyring (macOS Keychain, Secret Service, Windows Credential Manager).
const KeyringService = "knox"

// ErrKeyringItemNotFound is returned when a keyring entry does not exist.
var ErrKeyringItemNotFound = errors.New("keyring item not found")

// KeyringClient abstracts OS keyring operations for testing
type KeyringClient interface {
	// Get retrieves a secret from the keyring
	Get(service, account string) (string, error)

	// Set stores a secret in the keyring
	Set(service, account, secret string) error
}

// osKeyring implements KeyringClient with go-keyring.
type osKeyring struct{}

// NewOSKeyring returns the platform keyring client.
func NewOSKeyring() KeyringClient {
	return osKeyring{}
}

func (osKeyring) Get(service, account string) (string, error) {
	secret, err := keyring.Get(service, account)
	if err != nil {
		if errors.Is(err, keyring.ErrNotFound) {
			return "", ErrKeyringItemNotFound
		}
		return "", err
	}
	return secret, nil
}

func (osKeyring) Set(service, account, secret string) error {
	return keyring.Set(service, account, secret)
}
