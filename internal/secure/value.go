package secure

import (
	"crypto/subtle"
	"sync"

	"github.com/awnumar/memguard"
)

// Value stores one secret string in a memguard enclave.
//
// The zero length value is represented without an enclave since memguard
// refuses empty enclaves.
type Value struct {
	mu        sync.RWMutex
	enclave   *memguard.Enclave
	empty     bool
	destroyed bool
}

// NewValue seals s into a new enclave. The bytes handed to memguard are a
// private copy that memguard wipes after sealing.
func NewValue(s string) *Value {
	if s == "" {
		return &Value{empty: true}
	}
	return &Value{enclave: memguard.NewEnclave([]byte(s))}
}

// String decrypts and returns a copy of the value. A destroyed value
// returns the empty string.
func (v *Value) String() (string, error) {
	v.mu.RLock()
	defer v.mu.RUnlock()

	if v.destroyed || v.empty {
		return "", nil
	}

	locked, err := v.enclave.Open()
	if err != nil {
		return "", err
	}
	defer locked.Destroy()

	return string(locked.Bytes()), nil
}

// Equal reports whether the sealed value equals s, comparing in constant
// time. A destroyed value only equals the empty string.
func (v *Value) Equal(s string) bool {
	v.mu.RLock()
	defer v.mu.RUnlock()

	if v.destroyed || v.empty {
		return s == ""
	}

	locked, err := v.enclave.Open()
	if err != nil {
		return false
	}
	defer locked.Destroy()

	return subtle.ConstantTimeCompare(locked.Bytes(), []byte(s)) == 1
}

// Len returns the length in bytes of the sealed value.
func (v *Value) Len() int {
	v.mu.RLock()
	defer v.mu.RUnlock()

	if v.destroyed || v.empty {
		return 0
	}
	return v.enclave.Size()
}

// Destroy drops the enclave. Idempotent.
func (v *Value) Destroy() {
	v.mu.Lock()
	defer v.mu.Unlock()

	v.enclave = nil
	v.destroyed = true
}

// Purge wipes all memguard state. Call once when the session ends.
func Purge() {
	memguard.Purge()
}
