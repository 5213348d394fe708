package editor

import (
	"context"
	"strings"

	"github.com/systmms/knox/pkg/secretstore"
)

// CreateWorkflow creates one new secret. Tags cannot be set here; the
// create call of the stores has no tag parameter.
type CreateWorkflow struct {
	client  Client
	state   State
	created secretstore.Secret
}

// NewCreate starts a create workflow against client.
func NewCreate(client Client) *CreateWorkflow {
	return &CreateWorkflow{client: client}
}

// State returns the workflow state.
func (w *CreateWorkflow) State() State {
	return w.state
}

// Created returns the secret written by a successful submit.
func (w *CreateWorkflow) Created() secretstore.Secret {
	return w.created
}

// Submit validates the input and creates the secret. A name already in the
// vault's cache is rejected with a ConflictError before any remote call,
// because on Key Vault a write to an existing name silently cuts a new
// version.
func (w *CreateWorkflow) Submit(ctx context.Context, name, password string) (secretstore.Secret, error) {
	if w.state == StateDone {
		return secretstore.Secret{}, ErrFinished
	}

	name = strings.TrimSpace(name)
	if name == "" {
		return secretstore.Secret{}, ValidationError{Field: "name", Message: "name cannot be empty"}
	}
	if password == "" {
		return secretstore.Secret{}, ValidationError{Field: "password", Message: "password cannot be empty"}
	}
	if w.client.Contains(name) {
		return secretstore.Secret{}, secretstore.ConflictError{
			Store:   w.client.Name(),
			Name:    name,
			Message: "a secret with this name already exists",
		}
	}

	created, err := w.client.CreateSecret(ctx, name, password)
	if err != nil {
		return secretstore.Secret{}, err
	}

	w.created = created
	w.state = StateDone
	return created, nil
}
