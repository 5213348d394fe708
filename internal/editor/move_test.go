package editor

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/systmms/knox/pkg/secretstore"
	"github.com/systmms/knox/tests/fakes"
)

func TestMoveBetweenVaults(t *testing.T) {
	t.Parallel()

	src, srcStore := newVault(t, "kv-one", func(s *fakes.MemoryStore) {
		s.Seed("db", "p1", map[string]string{"Folder": "Prod", "owner": "dba"})
	})
	dst, dstStore := newVault(t, "kv-two", nil)

	moved, err := Move(context.Background(), src, dst, "db")
	require.NoError(t, err)
	assert.Equal(t, "p1", moved.Value)

	assert.False(t, src.Contains("db"))
	_, ok := srcStore.Latest("db")
	assert.False(t, ok)

	latest, ok := dstStore.Latest("db")
	require.True(t, ok)
	assert.Equal(t, "p1", latest.Value)
	assert.Equal(t, map[string]string{"Folder": "Prod", "owner": "dba"}, latest.Properties.Tags)
	assert.True(t, dst.Contains("db"))
}

func TestMoveRejectedBeforeMutation(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name      string
		sameVault bool
	}{
		{"same vault", true},
		{"name collision", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			src, srcStore := newVault(t, "kv-one", func(s *fakes.MemoryStore) {
				s.Seed("db", "p1", nil)
			})
			dst, dstStore := newVault(t, "KV-ONE", func(s *fakes.MemoryStore) {
				s.Seed("DB", "other", nil)
			})
			if !tt.sameVault {
				dst, dstStore = newVault(t, "kv-two", func(s *fakes.MemoryStore) {
					s.Seed("DB", "other", nil)
				})
			}

			_, err := Move(context.Background(), src, dst, "db")
			assert.True(t, secretstore.IsConflict(err))

			for _, s := range []*fakes.MemoryStore{srcStore, dstStore} {
				assert.Zero(t, s.Calls("get"))
				assert.Zero(t, s.Calls("set"))
				assert.Zero(t, s.Calls("update"))
				assert.Zero(t, s.Calls("delete"))
			}
		})
	}
}

func TestMoveCloneFailureChangesNothing(t *testing.T) {
	t.Parallel()

	src, srcStore := newVault(t, "kv-one", func(s *fakes.MemoryStore) {
		s.Seed("db", "p1", nil)
	})
	dst, dstStore := newVault(t, "kv-two", nil)
	dstStore.FailOn("set", "db", secretstore.AuthError{Store: "kv-two"})

	_, err := Move(context.Background(), src, dst, "db")
	assert.True(t, secretstore.IsAuth(err))
	assert.True(t, src.Contains("db"))
	assert.Zero(t, srcStore.Calls("delete"))
}

func TestMoveDeleteFailureIsPartial(t *testing.T) {
	t.Parallel()

	src, srcStore := newVault(t, "kv-one", func(s *fakes.MemoryStore) {
		s.Seed("db", "p1", nil)
	})
	dst, _ := newVault(t, "kv-two", nil)
	cause := secretstore.RemoteError{Store: "kv-one", Op: "delete", Err: errors.New("503")}
	srcStore.FailOn("delete", "db", cause)

	moved, err := Move(context.Background(), src, dst, "db")
	require.Error(t, err)

	var partial PartialMoveError
	require.ErrorAs(t, err, &partial)
	assert.Equal(t, "kv-one", partial.Source)
	assert.Equal(t, "kv-two", partial.Destination)
	assert.True(t, secretstore.IsRemote(err))
	assert.Contains(t, err.Error(), "copied to kv-two")

	assert.Equal(t, "db", moved.Name)
	assert.True(t, src.Contains("db"))
	assert.True(t, dst.Contains("db"))
}
