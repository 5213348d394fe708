package session

import (
	"bytes"
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/systmms/knox/internal/config"
	"github.com/systmms/knox/internal/credentials"
	"github.com/systmms/knox/internal/logging"
	"github.com/systmms/knox/internal/stores"
	"github.com/systmms/knox/pkg/secretstore"
	"github.com/systmms/knox/tests/fakes"
)

// memoryRegistry serves every Azure registration from in-memory stores.
func memoryRegistry(t *testing.T, backing map[string]*fakes.MemoryStore, opened *[]string) *stores.Registry {
	t.Helper()
	creds := credentials.NewCache(credentials.WithKeyring(fakes.NewFakeKeyringClient()))
	return stores.NewRegistry(creds, stores.WithFactory(config.TypeAzureKeyVault,
		func(ctx context.Context, entry config.VaultEntry) (secretstore.Store, error) {
			*opened = append(*opened, entry.Name)
			store, ok := backing[entry.Name]
			if !ok {
				return nil, secretstore.AuthError{Store: entry.Name, Message: "denied"}
			}
			return store, nil
		}))
}

func TestOpenLoadsVaultsInOrder(t *testing.T) {
	t.Parallel()

	one := fakes.NewMemoryStore("kv-one")
	one.Seed("a", "1", nil)
	two := fakes.NewMemoryStore("kv-two")
	backing := map[string]*fakes.MemoryStore{"kv-one": one, "kv-two": two}

	var opened []string
	regs := []config.VaultRegistration{
		{ClientID: "c", TenantID: "t", VaultNames: []string{"kv-two"}},
		{ClientID: "c2", TenantID: "t", VaultNames: []string{"kv-one", "KV-TWO"}},
	}

	var logs bytes.Buffer
	logger := logging.New(false, true)
	logger.SetOutput(&logs)

	s, err := Open(context.Background(), regs, nil, WithRegistry(memoryRegistry(t, backing, &opened)), WithLogger(logger))
	require.NoError(t, err)
	defer s.Close()

	assert.Equal(t, []string{"kv-two", "kv-one"}, s.VaultNames())
	assert.Equal(t, []string{"kv-two", "kv-one"}, opened, "duplicate is never opened")
	assert.Contains(t, logs.String(), "KV-TWO is registered more than once")
	assert.Len(t, s.Sources(), 2)
	assert.Empty(t, s.LoadErrors())
	assert.NotNil(t, s.Settings())
	assert.NotNil(t, s.ExpandedState())

	c, err := s.Vault("KV-ONE")
	require.NoError(t, err)
	assert.True(t, c.Contains("a"))
}

func TestOpenRecordsLoadErrors(t *testing.T) {
	t.Parallel()

	good := fakes.NewMemoryStore("good")
	broken := fakes.NewMemoryStore("broken")
	broken.FailOn("list", "", secretstore.RemoteError{Store: "broken", Op: "list", Err: errors.New("503")})
	backing := map[string]*fakes.MemoryStore{"good": good, "broken": broken}

	var opened []string
	regs := []config.VaultRegistration{{VaultNames: []string{"denied", "broken", "good"}}}

	s, err := Open(context.Background(), regs, config.DefaultSettings(), WithRegistry(memoryRegistry(t, backing, &opened)))
	require.NoError(t, err)
	defer s.Close()

	assert.Equal(t, []string{"good"}, s.VaultNames())
	failures := s.LoadErrors()
	require.Len(t, failures, 2)
	assert.Equal(t, "denied", failures[0].Vault)
	assert.Equal(t, config.TypeAzureKeyVault, failures[0].Type)
	assert.True(t, secretstore.IsAuth(failures[0]))
	assert.True(t, secretstore.IsRemote(failures[1]))

	_, err = s.Vault("denied")
	assert.True(t, secretstore.IsAuth(err))
	_, err = s.Vault("unknown")
	assert.True(t, secretstore.IsNotFound(err))
}

func TestOpenCancelled(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	var opened []string
	regs := []config.VaultRegistration{{VaultNames: []string{"kv"}}}
	_, err := Open(ctx, regs, nil, WithRegistry(memoryRegistry(t, nil, &opened)))
	assert.ErrorIs(t, err, context.Canceled)
	assert.Empty(t, opened)
}

func TestCloseIsIdempotent(t *testing.T) {
	t.Parallel()

	backing := map[string]*fakes.MemoryStore{"kv": fakes.NewMemoryStore("kv")}
	var opened []string
	s, err := Open(context.Background(), []config.VaultRegistration{{VaultNames: []string{"kv"}}}, nil,
		WithRegistry(memoryRegistry(t, backing, &opened)))
	require.NoError(t, err)

	purged := 0
	s.purge = func() { purged++ }

	s.Close()
	s.Close()
	assert.True(t, s.Closed())
	assert.Equal(t, 1, purged)
	assert.Empty(t, s.Vaults())
}
