// Package editor implements the create and update workflows for a single
// secret and the cross-vault move.
//
// A workflow is a small state machine: it starts in StateEditing and moves
// to StateDone once a submit succeeds. A failed submit leaves it editing so
// the caller can correct the input and try again. There is no transition
// between create and update; editing a secret that was just created opens
// a fresh update workflow.
package editor

import (
	"context"
	"errors"
	"fmt"

	"github.com/systmms/knox/pkg/secretstore"
)

// Client is the part of a vault client the workflows need. *vault.Client
// satisfies it.
type Client interface {
	Name() string
	Contains(name string) bool
	GetSecret(ctx context.Context, name string) (secretstore.Secret, error)
	CreateSecret(ctx context.Context, name, value string) (secretstore.Secret, error)
	CloneTo(ctx context.Context, from secretstore.Secret, newName string) (secretstore.Secret, error)
	UpdateSecret(ctx context.Context, name string, updatePassword bool, newPassword string, tags []secretstore.Tag) (secretstore.Properties, error)
	DeleteSecret(ctx context.Context, name string) error
}

// State of a workflow.
type State int

const (
	StateEditing State = iota
	StateDone
)

func (s State) String() string {
	if s == StateDone {
		return "done"
	}
	return "editing"
}

// ErrFinished is returned when a workflow is submitted after it completed.
var ErrFinished = errors.New("workflow already finished")

// ValidationError reports invalid form input. Nothing was sent to the
// vault.
type ValidationError struct {
	Field   string
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// IsValidation reports whether err is a ValidationError.
func IsValidation(err error) bool {
	var ve ValidationError
	return errors.As(err, &ve)
}
