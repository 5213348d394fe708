package editor

import (
	"context"
	"fmt"
	"strings"

	"github.com/systmms/knox/pkg/secretstore"
)

// PartialMoveError is returned when the secret was cloned into the
// destination but could not be deleted from the source. The secret now
// exists in both vaults.
type PartialMoveError struct {
	Secret      string
	Source      string
	Destination string
	Err         error
}

func (e PartialMoveError) Error() string {
	return fmt.Sprintf("%s was copied to %s but could not be deleted from %s: %v",
		e.Secret, e.Destination, e.Source, e.Err)
}

func (e PartialMoveError) Unwrap() error { return e.Err }

// Move copies name from source to destination and deletes it from source.
// Moving within one vault and moving onto an existing name are rejected
// before anything is changed. The move is not transactional: a failed
// clone changes nothing, a failed delete leaves both copies and returns a
// PartialMoveError.
func Move(ctx context.Context, source, destination Client, name string) (secretstore.Secret, error) {
	if strings.EqualFold(source.Name(), destination.Name()) {
		return secretstore.Secret{}, secretstore.ConflictError{
			Store:   destination.Name(),
			Name:    name,
			Message: "source and destination are the same vault",
		}
	}
	if destination.Contains(name) {
		return secretstore.Secret{}, secretstore.ConflictError{
			Store:   destination.Name(),
			Name:    name,
			Message: "a secret with this name already exists in the destination",
		}
	}

	from, err := source.GetSecret(ctx, name)
	if err != nil {
		return secretstore.Secret{}, err
	}

	moved, err := destination.CloneTo(ctx, from, from.Name)
	if err != nil {
		return secretstore.Secret{}, err
	}

	if err := source.DeleteSecret(ctx, from.Name); err != nil {
		return moved, PartialMoveError{
			Secret:      from.Name,
			Source:      source.Name(),
			Destination: destination.Name(),
			Err:         err,
		}
	}
	return moved, nil
}
