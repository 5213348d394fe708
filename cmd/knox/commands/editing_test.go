package commands

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/systmms/knox/pkg/secretstore"
)

func TestCreateCommand(t *testing.T) {
	corp := corpVault()
	env := newCLIEnv(t, twoVaults(t).Write(), corp, devVault())

	out, _, err := run(t, NewCreateCommand(env.app), "s3cret\n", "corp-kv", "  new-secret ", "--password-stdin")
	require.NoError(t, err)
	assert.Contains(t, out, "Created new-secret in corp-kv")

	created, ok := corp.Latest("new-secret")
	require.True(t, ok)
	assert.Equal(t, "s3cret", created.Value)
}

func TestCreateCommandRejects(t *testing.T) {
	tests := []struct {
		name    string
		stdin   string
		args    []string
		wantErr string
	}{
		{
			name:    "existing name",
			stdin:   "x\n",
			args:    []string{"corp-kv", "DB-PASSWORD", "--password-stdin"},
			wantErr: "Creating secret failed",
		},
		{
			name:    "empty password",
			stdin:   "\n",
			args:    []string{"corp-kv", "fresh", "--password-stdin"},
			wantErr: "Cannot create secret",
		},
		{
			name:    "no prompt when non-interactive",
			args:    []string{"corp-kv", "fresh"},
			wantErr: "A password is required",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			corp := corpVault()
			env := newCLIEnv(t, twoVaults(t).Write(), corp, devVault())

			_, _, err := run(t, NewCreateCommand(env.app), tt.stdin, tt.args...)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
			assert.Zero(t, corp.Calls("set"))
		})
	}
}

func TestCreateCommandExistingNameIsConflict(t *testing.T) {
	env := newCLIEnv(t, twoVaults(t).Write(), corpVault(), devVault())

	_, _, err := run(t, NewCreateCommand(env.app), "x\n", "corp-kv", "api-key", "--password-stdin")
	require.Error(t, err)
	assert.True(t, secretstore.IsConflict(err))
}

func TestEditCommandTagsOnly(t *testing.T) {
	corp := corpVault()
	env := newCLIEnv(t, twoVaults(t).Write(), corp, devVault())

	out, _, err := run(t, NewEditCommand(env.app), "",
		"corp-kv", "db-password",
		"--folder", " Ops/Orders ",
		"--name", "Orders DB",
		"--tag", "env=prod",
		"--remove-tag", "owner",
	)
	require.NoError(t, err)
	assert.Contains(t, out, "Updated db-password in corp-kv")
	assert.NotContains(t, out, "new version")

	latest, ok := corp.Latest("db-password")
	require.True(t, ok)
	assert.Equal(t, "hunter22", latest.Value)
	assert.Equal(t, map[string]string{
		"Folder":      "Ops/Orders",
		"DisplayName": "Orders DB",
		"env":         "prod",
	}, latest.Properties.Tags)
	assert.Equal(t, 1, corp.Versions("db-password"))
}

func TestEditCommandNewPassword(t *testing.T) {
	corp := corpVault()
	env := newCLIEnv(t, twoVaults(t).Write(), corp, devVault())

	out, _, err := run(t, NewEditCommand(env.app), "rotated\n", "corp-kv", "db-password", "--password-stdin")
	require.NoError(t, err)
	assert.Contains(t, out, "new version")

	latest, ok := corp.Latest("db-password")
	require.True(t, ok)
	assert.Equal(t, "rotated", latest.Value)
	assert.Equal(t, 2, corp.Versions("db-password"))
	assert.Equal(t, map[string]string{"Folder": "Prod/DB", "owner": "dba"}, latest.Properties.Tags)
}

func TestEditCommandLabelMatchingNameIsDropped(t *testing.T) {
	corp := corpVault()
	env := newCLIEnv(t, twoVaults(t).Write(), corp, devVault())

	_, _, err := run(t, NewEditCommand(env.app), "", "corp-kv", "api-key", "--name", "api-key", "--folder", "")
	require.NoError(t, err)

	latest, ok := corp.Latest("api-key")
	require.True(t, ok)
	assert.Equal(t, map[string]string{"Folder": "/"}, latest.Properties.Tags)
}

func TestEditCommandInvalidTag(t *testing.T) {
	corp := corpVault()
	env := newCLIEnv(t, twoVaults(t).Write(), corp, devVault())

	_, _, err := run(t, NewEditCommand(env.app), "", "corp-kv", "db-password", "--tag", "novalue")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "Invalid tag")
	assert.Zero(t, corp.Calls("update"))
}

func TestDeleteCommand(t *testing.T) {
	corp := corpVault()
	env := newCLIEnv(t, twoVaults(t).Write(), corp, devVault())

	out, _, err := run(t, NewDeleteCommand(env.app), "", "corp-kv", "root-token", "--yes")
	require.NoError(t, err)
	assert.Contains(t, out, "Deleted root-token from corp-kv")

	_, ok := corp.Latest("root-token")
	assert.False(t, ok)
}

func TestDeleteCommandMatchesNameCaseInsensitively(t *testing.T) {
	corp := corpVault()
	env := newCLIEnv(t, twoVaults(t).Write(), corp, devVault())

	_, _, err := run(t, NewDeleteCommand(env.app), "", "corp-kv", "ROOT-TOKEN", "--yes")
	require.NoError(t, err)

	_, ok := corp.Latest("root-token")
	assert.False(t, ok)
}

func TestDeleteCommandNeedsConfirmation(t *testing.T) {
	corp := corpVault()
	env := newCLIEnv(t, twoVaults(t).Write(), corp, devVault())

	out, _, err := run(t, NewDeleteCommand(env.app), "y\n", "corp-kv", "root-token")
	require.NoError(t, err)
	assert.Contains(t, out, "Operation cancelled")
	assert.Zero(t, corp.Calls("delete"))

	env.app.Config.NonInteractive = false
	_, _, err = run(t, NewDeleteCommand(env.app), "y\n", "corp-kv", "root-token")
	require.NoError(t, err)
	assert.Equal(t, 1, corp.Calls("delete"))
}

func TestDeleteCommandUnknownSecret(t *testing.T) {
	corp := corpVault()
	env := newCLIEnv(t, twoVaults(t).Write(), corp, devVault())

	_, _, err := run(t, NewDeleteCommand(env.app), "", "corp-kv", "missing", "--yes")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not found")
	assert.Zero(t, corp.Calls("delete"))
}

func TestMoveCommand(t *testing.T) {
	corp := corpVault()
	dev := devVault()
	env := newCLIEnv(t, twoVaults(t).Write(), corp, dev)

	out, _, err := run(t, NewMoveCommand(env.app), "", "corp-kv", "db-password", "dev-kv", "--yes")
	require.NoError(t, err)
	assert.Contains(t, out, "Moved db-password from corp-kv to dev-kv")

	_, ok := corp.Latest("db-password")
	assert.False(t, ok)
	moved, ok := dev.Latest("db-password")
	require.True(t, ok)
	assert.Equal(t, "hunter22", moved.Value)
	assert.Equal(t, map[string]string{"Folder": "Prod/DB", "owner": "dba"}, moved.Properties.Tags)
}

func TestMoveCommandSameVault(t *testing.T) {
	corp := corpVault()
	env := newCLIEnv(t, twoVaults(t).Write(), corp, devVault())

	_, _, err := run(t, NewMoveCommand(env.app), "", "corp-kv", "db-password", "CORP-KV", "--yes")
	require.Error(t, err)
	assert.True(t, secretstore.IsConflict(err))
	assert.Zero(t, corp.Calls("get"))
}

func TestMoveCommandSuppressWarningsSkipsPrompt(t *testing.T) {
	corp := corpVault()
	dev := devVault()
	env := newCLIEnv(t, twoVaults(t).Write(), corp, dev)

	_, _, err := run(t, NewSettingsCommand(env.app), "", "set", "suppressWarnings", "true")
	require.NoError(t, err)

	_, _, err = run(t, NewMoveCommand(env.app), "", "corp-kv", "root-token", "dev-kv")
	require.NoError(t, err)
	_, ok := dev.Latest("root-token")
	assert.True(t, ok)
}

func TestMoveCommandPartialMove(t *testing.T) {
	corp := corpVault()
	dev := devVault()
	corp.FailOn("delete", "db-password", secretstore.RemoteError{Store: "corp-kv", Op: "delete"})
	env := newCLIEnv(t, twoVaults(t).Write(), corp, dev)

	_, _, err := run(t, NewMoveCommand(env.app), "", "corp-kv", "db-password", "dev-kv", "--yes")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "was copied to dev-kv but is still in corp-kv")

	_, ok := dev.Latest("db-password")
	assert.True(t, ok)
	_, ok = corp.Latest("db-password")
	assert.True(t, ok)
}
