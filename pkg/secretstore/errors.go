package secretstore

import (
	"errors"
	"fmt"
)

// NotFoundError indicates that a secret or vault does not exist.
//
// Example:
//
//	_, err := store.GetSecret(ctx, "db-password")
//	var nf NotFoundError
//	if errors.As(err, &nf) {
//	    fmt.Printf("%s has no secret %s\n", nf.Store, nf.Name)
//	}
type NotFoundError struct {
	// Store is the vault the lookup ran against.
	Store string

	// Name is the secret that could not be found. Empty for a missing vault.
	Name string

	// Err is the raw backend error, if any.
	Err error
}

// Error implements the error interface.
func (e NotFoundError) Error() string {
	msg := "secret not found: " + e.Name + " in " + e.Store
	if e.Name == "" {
		msg = "vault not found: " + e.Store
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

// Unwrap returns the raw backend error.
func (e NotFoundError) Unwrap() error { return e.Err }

// ConflictError indicates a name collision, either reported by the store on
// create or detected locally before a move.
type ConflictError struct {
	Store   string
	Name    string
	Message string
	Err     error
}

// Error implements the error interface.
func (e ConflictError) Error() string {
	msg := fmt.Sprintf("conflict for %s in %s", e.Name, e.Store)
	if e.Message != "" {
		msg += ": " + e.Message
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

// Unwrap returns the raw backend error.
func (e ConflictError) Unwrap() error { return e.Err }

// AuthError indicates that credential acquisition failed, was cancelled by
// the user, or that the credential lacks permission for the operation.
type AuthError struct {
	Store   string
	Message string
	Err     error
}

// Error implements the error interface.
func (e AuthError) Error() string {
	msg := "authentication failed for " + e.Store
	if e.Message != "" {
		msg += ": " + e.Message
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

// Unwrap returns the raw credential or backend error.
func (e AuthError) Unwrap() error { return e.Err }

// RemoteError wraps transport and service failures that fit no other kind.
type RemoteError struct {
	Store string
	Op    string
	Err   error
}

// Error implements the error interface.
func (e RemoteError) Error() string {
	return fmt.Sprintf("%s %s failed: %v", e.Store, e.Op, e.Err)
}

// Unwrap returns the raw backend error.
func (e RemoteError) Unwrap() error { return e.Err }

// IsNotFound reports whether err is or wraps a NotFoundError.
func IsNotFound(err error) bool {
	var nf NotFoundError
	return errors.As(err, &nf)
}

// IsConflict reports whether err is or wraps a ConflictError.
func IsConflict(err error) bool {
	var ce ConflictError
	return errors.As(err, &ce)
}

// IsAuth reports whether err is or wraps an AuthError.
func IsAuth(err error) bool {
	var ae AuthError
	return errors.As(err, &ae)
}

// IsRemote reports whether err is or wraps a RemoteError.
func IsRemote(err error) bool {
	var re RemoteError
	return errors.As(err, &re)
}

// Kind names the taxonomy bucket of err: "not_found", "conflict", "auth",
// "remote" or "error" for anything unclassified. Used as a metrics label.
func Kind(err error) string {
	switch {
	case err == nil:
		return "ok"
	case IsNotFound(err):
		return "not_found"
	case IsConflict(err):
		return "conflict"
	case IsAuth(err):
		return "auth"
	case IsRemote(err):
		return "remote"
	default:
		return "error"
	}
}
