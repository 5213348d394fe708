package fakes

import "errors"

// ErrFakeKeyringItemNotFound is the default error for missing entries.
var ErrFakeKeyringItemNotFound = errors.New("keyring item not found")

// FakeKeyringClient is a test double for credentials.KeyringClient
type FakeKeyringClient struct {
	// Secrets is a map of service -> account -> value
	Secrets map[string]map[string]string

	// NotFoundErr is returned for missing entries. Defaults to
	// ErrFakeKeyringItemNotFound.
	NotFoundErr error

	// GetErr is returned by Get() if set (overrides Secrets lookup)
	GetErr error

	// Gets counts Get calls.
	Gets int
}

// NewFakeKeyringClient creates an empty fake keyring.
func NewFakeKeyringClient() *FakeKeyringClient {
	return &FakeKeyringClient{
		Secrets:     make(map[string]map[string]string),
		NotFoundErr: ErrFakeKeyringItemNotFound,
	}
}

// Get retrieves a secret from the fake keyring
func (f *FakeKeyringClient) Get(service, account string) (string, error) {
	f.Gets++
	if f.GetErr != nil {
		return "", f.GetErr
	}
	if accounts, ok := f.Secrets[service]; ok {
		if value, ok := accounts[account]; ok {
			return value, nil
		}
	}
	return "", f.NotFoundErr
}

// Set stores a secret in the fake keyring
func (f *FakeKeyringClient) Set(service, account, secret string) error {
	if f.Secrets[service] == nil {
		f.Secrets[service] = make(map[string]string)
	}
	f.Secrets[service][account] = secret
	return nil
}
