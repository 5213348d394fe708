package errors

import (
	"errors"
	"fmt"
	"strings"

	"github.com/systmms/knox/pkg/secretstore"
)

// UserError represents an error that should be shown to the user with helpful context
type UserError struct {
	Message    string
	Suggestion string
	Details    string
	Err        error
}

func (e UserError) Error() string {
	var parts []string

	if e.Message != "" {
		parts = append(parts, e.Message)
	} else if e.Err != nil {
		parts = append(parts, e.Err.Error())
	}

	if e.Details != "" {
		parts = append(parts, "\n  Details: "+e.Details)
	}

	if e.Suggestion != "" {
		parts = append(parts, "\n  💡 Try: "+e.Suggestion)
	}

	return strings.Join(parts, "")
}

func (e UserError) Unwrap() error {
	return e.Err
}

// ConfigError represents a configuration error with helpful context
type ConfigError struct {
	Field      string
	Value      interface{}
	Message    string
	Suggestion string
}

func (e ConfigError) Error() string {
	msg := "Configuration error"
	if e.Field != "" {
		msg += fmt.Sprintf(" in field '%s'", e.Field)
	}
	if e.Value != nil {
		msg += fmt.Sprintf(" (value: %v)", e.Value)
	}
	msg += ": " + e.Message

	if e.Suggestion != "" {
		msg += "\n  💡 " + e.Suggestion
	}

	return msg
}

// StoreError turns a store failure into a UserError carrying the raw
// message as details and a suggestion for the backend type.
func StoreError(storeType, vault, operation string, err error) error {
	if err == nil {
		return nil
	}
	var ue UserError
	if errors.As(err, &ue) {
		return err
	}

	return UserError{
		Message:    fmt.Sprintf("%s failed for vault '%s'", operation, vault),
		Details:    err.Error(),
		Suggestion: getStoreSuggestion(storeType, err),
		Err:        err,
	}
}

// getStoreSuggestion returns helpful suggestions based on store type and error kind
func getStoreSuggestion(storeType string, err error) string {
	errStr := strings.ToLower(err.Error())

	switch {
	case secretstore.IsNotFound(err):
		return "Run 'knox tree' to list the secrets knox can see. Secret names are matched case-insensitively"
	case secretstore.IsConflict(err):
		if strings.HasPrefix(storeType, "azure") {
			return "A secret with this name exists or is soft-deleted. Recover or purge it in the Azure portal first"
		}
		return "Pick a different name or remove the existing secret first"
	case secretstore.IsAuth(err):
		switch {
		case strings.HasPrefix(storeType, "azure"):
			return "Check clientId/tenantId in 'knox settings' and the vault access policy (Get, List, Set, Delete on secrets)"
		case strings.HasPrefix(storeType, "aws"):
			return "Configure AWS credentials: 'aws configure' or set the registration profile"
		case strings.HasPrefix(storeType, "gcp"):
			return "Run 'gcloud auth application-default login' or set credentialsFile"
		}
		return "Check the credentials for this registration"
	}

	if strings.Contains(errStr, "timeout") || strings.Contains(errStr, "deadline exceeded") {
		return "The operation timed out. Check your network connection and try again"
	}
	if strings.Contains(errStr, "connection refused") || strings.Contains(errStr, "no such host") {
		return "Unable to connect. Check your network and the vault name"
	}
	if strings.Contains(errStr, "throttl") || strings.Contains(errStr, "429") {
		return "Request was throttled. Wait a moment and try again"
	}

	return ""
}

// SimplifyError simplifies complex error messages for users
func SimplifyError(err error) error {
	if err == nil {
		return nil
	}

	// Already a user-friendly error
	if _, ok := err.(UserError); ok {
		return err
	}
	if _, ok := err.(ConfigError); ok {
		return err
	}

	// Unwrap to get the root cause
	rootErr := err
	for {
		unwrapped := errors.Unwrap(rootErr)
		if unwrapped == nil {
			break
		}
		rootErr = unwrapped
	}

	errStr := rootErr.Error()

	if strings.Contains(errStr, "yaml:") {
		return ConfigError{
			Message:    "Invalid YAML format",
			Suggestion: "Check for indentation errors and missing quotes",
		}
	}

	if strings.Contains(errStr, "permission denied") {
		return UserError{
			Message:    "Permission denied",
			Suggestion: "Check file permissions or run with appropriate privileges",
			Err:        err,
		}
	}

	if strings.Contains(errStr, "no such file or directory") {
		return UserError{
			Message:    "File or directory not found",
			Suggestion: "Verify the path exists and is spelled correctly",
			Err:        err,
		}
	}

	return err
}
