package editor

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/systmms/knox/internal/vault"
	"github.com/systmms/knox/pkg/secretstore"
	"github.com/systmms/knox/tests/fakes"
)

func newVault(t *testing.T, name string, seed func(*fakes.MemoryStore)) (*vault.Client, *fakes.MemoryStore) {
	t.Helper()
	store := fakes.NewMemoryStore(name)
	if seed != nil {
		seed(store)
	}
	c, err := vault.New(context.Background(), store)
	require.NoError(t, err)
	return c, store
}

func TestCreateWorkflow(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name      string
		secret    string
		password  string
		wantErr   func(error) bool
		wantState State
	}{
		{"creates", "api-key", "k1", nil, StateDone},
		{"blank name", "  ", "k1", IsValidation, StateEditing},
		{"empty password", "api-key", "", IsValidation, StateEditing},
		{"existing name in any case", "DB", "x", secretstore.IsConflict, StateEditing},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, store := newVault(t, "kv", func(s *fakes.MemoryStore) {
				s.Seed("db", "p", nil)
			})
			sets := store.Calls("set")

			w := NewCreate(c)
			sec, err := w.Submit(context.Background(), tt.secret, tt.password)
			assert.Equal(t, tt.wantState, w.State())

			if tt.wantErr != nil {
				require.Error(t, err)
				assert.True(t, tt.wantErr(err), "unexpected error %v", err)
				assert.Equal(t, sets, store.Calls("set"), "no remote call on rejected input")
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.secret, sec.Name)
			assert.Equal(t, sec, w.Created())
			assert.True(t, c.Contains(tt.secret))
		})
	}
}

func TestCreateWorkflowStaysOpenOnRemoteFailure(t *testing.T) {
	t.Parallel()

	c, store := newVault(t, "kv", nil)
	store.FailOn("set", "api-key", secretstore.RemoteError{Store: "kv", Op: "set", Err: errors.New("503")})

	w := NewCreate(c)
	_, err := w.Submit(context.Background(), "api-key", "k1")
	assert.True(t, secretstore.IsRemote(err))
	assert.Equal(t, StateEditing, w.State())

	store.FailOn("set", "api-key", nil)
	_, err = w.Submit(context.Background(), "api-key", "k1")
	require.NoError(t, err)
	assert.Equal(t, StateDone, w.State())

	_, err = w.Submit(context.Background(), "other", "k2")
	assert.ErrorIs(t, err, ErrFinished)
}

func TestOpenUpdateSplitsReservedTags(t *testing.T) {
	t.Parallel()

	c, _ := newVault(t, "kv", func(s *fakes.MemoryStore) {
		s.Seed("db", "s3cret", map[string]string{
			"Folder":      "Prod/DB",
			"DisplayName": "Database",
			"owner":       "dba",
			"env":         "prod",
		})
	})

	w, err := OpenUpdate(context.Background(), c, "db")
	require.NoError(t, err)
	defer w.Close()

	form, err := w.Form()
	require.NoError(t, err)
	assert.Equal(t, "Database", form.Name)
	assert.Equal(t, "Prod/DB", form.Folder)
	assert.Equal(t, "s3cret", form.Password)
	assert.Equal(t, []secretstore.Tag{{Name: "env", Value: "prod"}, {Name: "owner", Value: "dba"}}, form.Tags)
	assert.Equal(t, "db", w.SecretName())
	assert.Equal(t, StateEditing, w.State())
}

func TestOpenUpdateWithoutDisplayName(t *testing.T) {
	t.Parallel()

	c, _ := newVault(t, "kv", func(s *fakes.MemoryStore) {
		s.Seed("db", "p", nil)
	})

	w, err := OpenUpdate(context.Background(), c, "db")
	require.NoError(t, err)
	form, err := w.Form()
	require.NoError(t, err)
	assert.Equal(t, "db", form.Name)
	assert.Empty(t, form.Folder)
	assert.Empty(t, form.Tags)

	_, err = OpenUpdate(context.Background(), c, "missing")
	assert.True(t, secretstore.IsNotFound(err))
}

func TestUpdateSubmitVersioning(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name         string
		password     string
		wantVersions int
	}{
		{"password change cuts a version", "n3w", 2},
		{"tag-only edit keeps the version", "old", 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, store := newVault(t, "kv", func(s *fakes.MemoryStore) {
				s.Seed("db", "old", map[string]string{"Folder": "Prod", "owner": "ops"})
			})

			w, err := OpenUpdate(context.Background(), c, "db")
			require.NoError(t, err)
			form, err := w.Form()
			require.NoError(t, err)

			form.Password = tt.password
			form.Tags = []secretstore.Tag{{Name: "owner", Value: "dba"}}
			_, err = w.Submit(context.Background(), form)
			require.NoError(t, err)

			assert.Equal(t, tt.wantVersions, store.Versions("db"))
			latest, _ := store.Latest("db")
			assert.Equal(t, tt.password, latest.Value)
			assert.Equal(t, map[string]string{"Folder": "Prod", "owner": "dba"}, latest.Properties.Tags)
			assert.Equal(t, StateDone, w.State())
		})
	}
}

func TestUpdateSubmitRejectsEmptyPassword(t *testing.T) {
	t.Parallel()

	c, store := newVault(t, "kv", func(s *fakes.MemoryStore) {
		s.Seed("db", "old", nil)
	})
	w, err := OpenUpdate(context.Background(), c, "db")
	require.NoError(t, err)

	_, err = w.Submit(context.Background(), Form{Name: "db"})
	assert.True(t, IsValidation(err))
	assert.Equal(t, 0, store.Calls("update"))
	assert.Equal(t, StateEditing, w.State())
}

func TestUpdateSubmitDisplayName(t *testing.T) {
	t.Parallel()

	c, store := newVault(t, "kv", func(s *fakes.MemoryStore) {
		s.Seed("db", "p", map[string]string{"DisplayName": "Database"})
	})

	w, err := OpenUpdate(context.Background(), c, "db")
	require.NoError(t, err)
	form, err := w.Form()
	require.NoError(t, err)

	form.Name = "db"
	_, err = w.Submit(context.Background(), form)
	require.NoError(t, err)

	latest, _ := store.Latest("db")
	assert.Equal(t, map[string]string{"Folder": "/"}, latest.Properties.Tags, "renaming back to the real name drops DisplayName")

	_, err = w.Submit(context.Background(), form)
	assert.ErrorIs(t, err, ErrFinished)
}

func TestOutgoingTags(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		form Form
		want []secretstore.Tag
	}{
		{
			name: "blank folder becomes root",
			form: Form{Name: "db", Folder: "  "},
			want: []secretstore.Tag{{Name: "Folder", Value: "/"}},
		},
		{
			name: "folder trimmed",
			form: Form{Name: "db", Folder: " Prod/DB "},
			want: []secretstore.Tag{{Name: "Folder", Value: "Prod/DB"}},
		},
		{
			name: "reserved names dropped in any case",
			form: Form{Name: "db", Folder: "A", Tags: []secretstore.Tag{
				{Name: "folder", Value: "X"},
				{Name: "DISPLAYNAME", Value: "Y"},
				{Name: "", Value: "orphan"},
				{Name: "owner", Value: "dba"},
			}},
			want: []secretstore.Tag{{Name: "owner", Value: "dba"}, {Name: "Folder", Value: "A"}},
		},
		{
			name: "display name only when different",
			form: Form{Name: "Database", Folder: "/"},
			want: []secretstore.Tag{{Name: "Folder", Value: "/"}, {Name: "DisplayName", Value: "Database"}},
		},
		{
			name: "blank display name ignored",
			form: Form{Name: " ", Folder: "/"},
			want: []secretstore.Tag{{Name: "Folder", Value: "/"}},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, OutgoingTags("db", tt.form))
		})
	}
}

func TestUpdateCloseDestroysValue(t *testing.T) {
	t.Parallel()

	c, _ := newVault(t, "kv", func(s *fakes.MemoryStore) {
		s.Seed("db", "p", nil)
	})
	w, err := OpenUpdate(context.Background(), c, "db")
	require.NoError(t, err)

	w.Close()
	w.Close()
	form, err := w.Form()
	require.NoError(t, err)
	assert.Empty(t, form.Password)
}
