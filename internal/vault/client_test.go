package vault

import (
	"context"
	"errors"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/systmms/knox/internal/metrics"
	"github.com/systmms/knox/internal/stores"
	"github.com/systmms/knox/pkg/secretstore"
	"github.com/systmms/knox/tests/fakes"
)

func newMemoryClient(t *testing.T, seed func(*fakes.MemoryStore)) (*Client, *fakes.MemoryStore) {
	t.Helper()
	store := fakes.NewMemoryStore("corp-kv")
	if seed != nil {
		seed(store)
	}
	c, err := New(context.Background(), store)
	require.NoError(t, err)
	return c, store
}

func TestNewCachesListingInOrder(t *testing.T) {
	t.Parallel()

	c, _ := newMemoryClient(t, func(s *fakes.MemoryStore) {
		s.Seed("Zeta", "1", nil)
		s.Seed("alpha", "2", map[string]string{"Folder": "A"})
	})

	props := c.Properties()
	require.Len(t, props, 2)
	assert.Equal(t, "Zeta", props[0].Name)
	assert.Equal(t, "alpha", props[1].Name)
	assert.Empty(t, props[0].Version)
	assert.Equal(t, "corp-kv", c.Name())
	assert.Equal(t, 2, c.Len())
}

func TestNewFailsWhenListingFails(t *testing.T) {
	t.Parallel()

	store := fakes.NewMemoryStore("corp-kv")
	store.FailOn("list", "", secretstore.AuthError{Store: "corp-kv"})

	_, err := New(context.Background(), store)
	assert.True(t, secretstore.IsAuth(err))
}

func TestLookupIsCaseInsensitive(t *testing.T) {
	t.Parallel()

	c, _ := newMemoryClient(t, func(s *fakes.MemoryStore) {
		s.Seed("DB-Password", "p", nil)
	})

	assert.True(t, c.Contains("db-password"))
	p, ok := c.Lookup("DB-PASSWORD")
	require.True(t, ok)
	assert.Equal(t, "DB-Password", p.Name)
	assert.False(t, c.Contains("other"))
}

func TestGetSecretDoesNotTouchCache(t *testing.T) {
	t.Parallel()

	c, store := newMemoryClient(t, nil)
	store.Seed("late", "v", nil)

	sec, err := c.GetSecret(context.Background(), "late")
	require.NoError(t, err)
	assert.Equal(t, "v", sec.Value)
	assert.False(t, c.Contains("late"))

	_, err = c.GetSecret(context.Background(), "missing")
	assert.True(t, secretstore.IsNotFound(err))
}

func TestPropertiesWithVersionBackfills(t *testing.T) {
	t.Parallel()

	c, store := newMemoryClient(t, func(s *fakes.MemoryStore) {
		s.Seed("db", "p", nil)
	})
	gets := store.Calls("get")

	p, err := c.PropertiesWithVersion(context.Background(), "DB")
	require.NoError(t, err)
	assert.NotEmpty(t, p.Version)
	assert.Equal(t, gets+1, store.Calls("get"))

	_, err = c.PropertiesWithVersion(context.Background(), "db")
	require.NoError(t, err)
	assert.Equal(t, gets+1, store.Calls("get"), "second call served from cache")

	_, err = c.PropertiesWithVersion(context.Background(), "nope")
	assert.True(t, secretstore.IsNotFound(err))
}

func TestCreateSecretAddsToCache(t *testing.T) {
	t.Parallel()

	c, store := newMemoryClient(t, nil)

	sec, err := c.CreateSecret(context.Background(), "api-key", "k1")
	require.NoError(t, err)
	assert.Equal(t, "api-key", sec.Name)
	assert.True(t, c.Contains("api-key"))
	assert.Equal(t, 1, store.Versions("api-key"))

	store.FailOn("set", "broken", errors.New("transport"))
	_, err = c.CreateSecret(context.Background(), "broken", "x")
	assert.Error(t, err)
	assert.False(t, c.Contains("broken"))
}

func TestDeleteSecretEvicts(t *testing.T) {
	t.Parallel()

	c, store := newMemoryClient(t, func(s *fakes.MemoryStore) {
		s.Seed("a", "1", nil)
		s.Seed("b", "2", nil)
		s.Seed("c", "3", nil)
	})

	require.NoError(t, c.DeleteSecret(context.Background(), "B"))
	assert.False(t, c.Contains("b"))
	names := []string{}
	for _, p := range c.Properties() {
		names = append(names, p.Name)
	}
	assert.Equal(t, []string{"a", "c"}, names)

	store.FailOn("delete", "a", secretstore.RemoteError{Store: "corp-kv", Op: "delete", Err: errors.New("503")})
	err := c.DeleteSecret(context.Background(), "a")
	assert.True(t, secretstore.IsRemote(err))
	assert.True(t, c.Contains("a"), "failed delete keeps the cache entry")
}

func TestOperationsUseStoredNameSpelling(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name  string
		op    func(ctx context.Context, c *Client) error
		check func(t *testing.T, c *Client, store *fakes.MemoryStore)
	}{
		{
			name: "get",
			op: func(ctx context.Context, c *Client) error {
				sec, err := c.GetSecret(ctx, "DB-Password")
				if err == nil && sec.Value != "hunter22" {
					return errors.New("wrong value " + sec.Value)
				}
				return err
			},
			check: func(t *testing.T, c *Client, store *fakes.MemoryStore) {
				assert.Equal(t, 1, store.Calls("get"))
			},
		},
		{
			name: "update",
			op: func(ctx context.Context, c *Client) error {
				_, err := c.UpdateSecret(ctx, "DB-PASSWORD", true, "rotated",
					[]secretstore.Tag{{Name: "Folder", Value: "Ops"}})
				return err
			},
			check: func(t *testing.T, c *Client, store *fakes.MemoryStore) {
				latest, ok := store.Latest("db-password")
				require.True(t, ok)
				assert.Equal(t, "rotated", latest.Value)
				assert.Equal(t, "Ops", latest.Properties.Tags["Folder"])

				cached, ok := c.Lookup("db-password")
				require.True(t, ok)
				assert.Equal(t, "db-password", cached.Name)
				assert.Equal(t, 1, c.Len())
			},
		},
		{
			name: "delete",
			op: func(ctx context.Context, c *Client) error {
				return c.DeleteSecret(ctx, "Db-Password")
			},
			check: func(t *testing.T, c *Client, store *fakes.MemoryStore) {
				_, ok := store.Latest("db-password")
				assert.False(t, ok)
				assert.False(t, c.Contains("db-password"))
				assert.Zero(t, c.Len())
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			c, store := newMemoryClient(t, func(s *fakes.MemoryStore) {
				s.Seed("db-password", "hunter22", map[string]string{"Folder": "Prod"})
			})
			require.True(t, c.Contains("DB-Password"))

			require.NoError(t, tt.op(context.Background(), c))
			tt.check(t, c, store)
		})
	}
}

func TestGetSecretUncachedNameIsPassedThrough(t *testing.T) {
	t.Parallel()

	c, _ := newMemoryClient(t, nil)

	_, err := c.GetSecret(context.Background(), "Missing")
	require.Error(t, err)
	assert.True(t, secretstore.IsNotFound(err))
	assert.Contains(t, err.Error(), "Missing")
}

func TestUpdateSecretPasswordChangeCreatesVersion(t *testing.T) {
	t.Parallel()

	c, store := newMemoryClient(t, func(s *fakes.MemoryStore) {
		s.Seed("db", "old", map[string]string{"Folder": "Prod", "owner": "ops"})
	})

	props, err := c.UpdateSecret(context.Background(), "db", true, "new",
		[]secretstore.Tag{{Name: "Folder", Value: "Prod"}, {Name: "owner", Value: "dba"}})
	require.NoError(t, err)

	assert.Equal(t, 2, store.Versions("db"))
	latest, ok := store.Latest("db")
	require.True(t, ok)
	assert.Equal(t, "new", latest.Value)
	assert.Equal(t, map[string]string{"Folder": "Prod", "owner": "dba"}, latest.Properties.Tags)
	assert.Equal(t, latest.Properties.Version, props.Version)

	cached, _ := c.Lookup("db")
	assert.Equal(t, "dba", cached.Tags["owner"])
}

func TestUpdateSecretTagOnlyKeepsVersion(t *testing.T) {
	t.Parallel()

	c, store := newMemoryClient(t, func(s *fakes.MemoryStore) {
		s.Seed("db", "same", map[string]string{"Folder": "Prod"})
	})

	_, err := c.UpdateSecret(context.Background(), "db", false, "",
		[]secretstore.Tag{{Name: "Folder", Value: "Staging"}})
	require.NoError(t, err)

	assert.Equal(t, 1, store.Versions("db"))
	latest, _ := store.Latest("db")
	assert.Equal(t, "Staging", latest.Properties.Tags["Folder"])
}

func TestUpdateSecretEmptyTagsWritesRootFolder(t *testing.T) {
	t.Parallel()

	fake := fakes.NewFakeAzureSecretsClient()
	fake.AddSecret("db", "p", map[string]string{"Folder": "Prod", "owner": "ops"})
	store, err := stores.NewAzureStore("corp-kv", nil, stores.WithAzureClient(fake))
	require.NoError(t, err)

	c, err := New(context.Background(), store)
	require.NoError(t, err)

	props, err := c.UpdateSecret(context.Background(), "db", false, "", nil)
	require.NoError(t, err)
	assert.Equal(t, map[string]string{"Folder": "/"}, props.Tags)

	latest, ok := fake.Latest("db")
	require.True(t, ok)
	assert.Equal(t, map[string]string{"Folder": "/"}, latest.Tags)
}

func TestCloneToCopiesProperties(t *testing.T) {
	t.Parallel()

	src, _ := newMemoryClient(t, func(s *fakes.MemoryStore) {
		s.Seed("db", "p1", map[string]string{"Folder": "Prod", "DisplayName": "Database"})
	})
	dst, dstStore := newMemoryClient(t, nil)

	from, err := src.GetSecret(context.Background(), "db")
	require.NoError(t, err)

	clone, err := dst.CloneTo(context.Background(), from, "db")
	require.NoError(t, err)
	assert.Equal(t, "p1", clone.Value)
	assert.Equal(t, from.Properties.Tags, clone.Properties.Tags)

	latest, ok := dstStore.Latest("db")
	require.True(t, ok)
	assert.Equal(t, "p1", latest.Value)
	assert.Equal(t, "Database", latest.Properties.Tags["DisplayName"])
	assert.True(t, dst.Contains("db"))
}

func TestCreateCloneDeleteRoundTrip(t *testing.T) {
	t.Parallel()

	a, aStore := newMemoryClient(t, nil)
	b, bStore := newMemoryClient(t, nil)

	_, err := a.CreateSecret(context.Background(), "token", "t0k3n")
	require.NoError(t, err)
	_, err = a.UpdateSecret(context.Background(), "token", false, "", []secretstore.Tag{{Name: "Folder", Value: "CI"}})
	require.NoError(t, err)

	from, err := a.GetSecret(context.Background(), "token")
	require.NoError(t, err)
	_, err = b.CloneTo(context.Background(), from, "token")
	require.NoError(t, err)
	require.NoError(t, a.DeleteSecret(context.Background(), "token"))

	_, ok := aStore.Latest("token")
	assert.False(t, ok)
	moved, ok := bStore.Latest("token")
	require.True(t, ok)
	assert.Equal(t, "t0k3n", moved.Value)
	assert.Equal(t, "CI", moved.Properties.Tags["Folder"])
}

func TestClientRecordsMetrics(t *testing.T) {
	t.Parallel()

	reg := prometheus.NewRegistry()
	m := metrics.New(reg)

	store := fakes.NewMemoryStore("corp-kv")
	store.Seed("db", "p", nil)
	c, err := New(context.Background(), store, WithMetrics(m))
	require.NoError(t, err)

	_, _ = c.GetSecret(context.Background(), "db")
	_, _ = c.GetSecret(context.Background(), "missing")

	assert.Equal(t, 1.0, testutil.ToFloat64(m.OperationsTotal().WithLabelValues("corp-kv", "list", "ok")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.OperationsTotal().WithLabelValues("corp-kv", "get", "ok")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.OperationsTotal().WithLabelValues("corp-kv", "get", "not_found")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.CachedSecrets().WithLabelValues("corp-kv")))
}
