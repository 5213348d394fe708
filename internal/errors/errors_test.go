package errors_test

import (
	stderrors "errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/systmms/knox/internal/errors"
	"github.com/systmms/knox/pkg/secretstore"
)

// TestUserErrorFormatting verifies UserError displays properly
func TestUserErrorFormatting(t *testing.T) {
	t.Parallel()

	err := errors.UserError{
		Message:    "Operation failed",
		Details:    "Connection timeout",
		Suggestion: "Check network connectivity",
	}

	errMsg := err.Error()

	assert.Contains(t, errMsg, "Operation failed")
	assert.Contains(t, errMsg, "Details: Connection timeout")
	assert.Contains(t, errMsg, "Try: Check network connectivity")
}

func TestUserErrorFallsBackToWrapped(t *testing.T) {
	t.Parallel()

	raw := stderrors.New("raw failure")
	err := errors.UserError{Err: raw}

	assert.Equal(t, "raw failure", err.Error())
	assert.ErrorIs(t, err, raw)
}

// TestConfigErrorFormatting verifies ConfigError displays with context
func TestConfigErrorFormatting(t *testing.T) {
	t.Parallel()

	err := errors.ConfigError{
		Field:      "registrations[0].vaults",
		Value:      "[]",
		Message:    "at least one vault is required",
		Suggestion: "List the vault names served by this identity",
	}

	errMsg := err.Error()

	assert.Contains(t, errMsg, "registrations[0].vaults")
	assert.Contains(t, errMsg, "at least one vault is required")
	assert.Contains(t, errMsg, "List the vault names")
}

func TestStoreErrorSuggestions(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name      string
		storeType string
		err       error
		contains  string
	}{
		{
			name:      "not found",
			storeType: "azure.keyvault",
			err:       secretstore.NotFoundError{Store: "kv", Name: "db"},
			contains:  "knox tree",
		},
		{
			name:      "azure conflict mentions soft delete",
			storeType: "azure.keyvault",
			err:       secretstore.ConflictError{Store: "kv", Name: "db"},
			contains:  "soft-deleted",
		},
		{
			name:      "aws auth",
			storeType: "aws.secretsmanager",
			err:       secretstore.AuthError{Store: "us-east-1"},
			contains:  "aws configure",
		},
		{
			name:      "gcp auth",
			storeType: "gcp.secretmanager",
			err:       secretstore.AuthError{Store: "proj"},
			contains:  "gcloud auth",
		},
		{
			name:      "timeout",
			storeType: "azure.keyvault",
			err:       secretstore.RemoteError{Store: "kv", Op: "get", Err: fmt.Errorf("context deadline exceeded")},
			contains:  "timed out",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := errors.StoreError(tt.storeType, "kv", "Update", tt.err)
			var ue errors.UserError
			require.ErrorAs(t, err, &ue)
			assert.Contains(t, ue.Suggestion, tt.contains)
			assert.Equal(t, tt.err.Error(), ue.Details)
			assert.ErrorIs(t, err, tt.err)
		})
	}
}

func TestStoreErrorNil(t *testing.T) {
	t.Parallel()

	assert.NoError(t, errors.StoreError("azure.keyvault", "kv", "Get", nil))
}

func TestSimplifyError(t *testing.T) {
	t.Parallel()

	assert.Nil(t, errors.SimplifyError(nil))

	yamlErr := errors.SimplifyError(fmt.Errorf("load: %w", stderrors.New("yaml: line 3: mapping values are not allowed")))
	var ce errors.ConfigError
	assert.ErrorAs(t, yamlErr, &ce)

	missing := errors.SimplifyError(fmt.Errorf("open: %w", stderrors.New("no such file or directory")))
	var ue errors.UserError
	require.ErrorAs(t, missing, &ue)
	assert.Equal(t, "File or directory not found", ue.Message)

	plain := stderrors.New("something else")
	assert.Equal(t, plain, errors.SimplifyError(plain))
}
