package stores

import (
	"context"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/systmms/knox/pkg/secretstore"
	"github.com/systmms/knox/tests/fakes"
)

func newAWSTestStore(t *testing.T) (*AWSStore, *fakes.FakeSecretsManagerClient) {
	t.Helper()
	fake := fakes.NewFakeSecretsManagerClient()
	store := NewAWSStore(aws.Config{Region: "eu-west-1"}, "",
		WithSecretsManagerClient(fake),
		WithSTSClient(&fakes.FakeSTSClient{Account: "123456789012"}),
	)
	return store, fake
}

func TestAWSStoreName(t *testing.T) {
	t.Parallel()

	store, _ := newAWSTestStore(t)
	assert.Equal(t, "eu-west-1", store.Name())
}

func TestAWSStoreListPropertiesPaginates(t *testing.T) {
	t.Parallel()

	store, fake := newAWSTestStore(t)
	fake.PageSize = 1
	fake.AddSecret("b", "2", map[string]string{"Folder": "Ops"})
	fake.AddSecret("a", "1", nil)
	fake.AddSecret("c", "3", nil)
	require.NoError(t, store.DeleteSecret(context.Background(), "c"))

	props, err := store.ListProperties(context.Background())
	require.NoError(t, err)
	require.Len(t, props, 2)
	assert.Equal(t, "a", props[0].Name)
	assert.Equal(t, "Ops", props[1].Tags["Folder"])
}

func TestAWSStoreGetSecret(t *testing.T) {
	t.Parallel()

	store, fake := newAWSTestStore(t)
	fake.AddSecret("db", "p1", map[string]string{"env": "prod"})

	sec, err := store.GetSecret(context.Background(), "db")
	require.NoError(t, err)
	assert.Equal(t, "p1", sec.Value)
	assert.NotEmpty(t, sec.Properties.Version)
	assert.Equal(t, "prod", sec.Properties.Tags["env"])

	_, err = store.GetSecret(context.Background(), "nope")
	assert.True(t, secretstore.IsNotFound(err))
}

func TestAWSStoreSetSecretCreatesOrPuts(t *testing.T) {
	t.Parallel()

	store, fake := newAWSTestStore(t)

	created, err := store.SetSecret(context.Background(), "db", "p1")
	require.NoError(t, err)
	assert.Equal(t, 1, fake.VersionCount("db"))
	assert.Equal(t, 1, fake.Calls["CreateSecret"])

	next, err := store.SetSecret(context.Background(), "db", "p2")
	require.NoError(t, err)
	assert.Equal(t, 2, fake.VersionCount("db"))
	assert.NotEqual(t, created.Properties.Version, next.Properties.Version)
}

func TestAWSStoreUpdatePropertiesReplacesTags(t *testing.T) {
	t.Parallel()

	store, fake := newAWSTestStore(t)
	fake.AddSecret("db", "p1", map[string]string{"Folder": "Prod", "old": "x"})

	props, err := store.UpdateProperties(context.Background(), secretstore.Properties{
		Name:        "db",
		Tags:        map[string]string{"Folder": "Staging", "owner": "ops"},
		ContentType: "text/plain",
	})
	require.NoError(t, err)
	assert.Equal(t, map[string]string{"Folder": "Staging", "owner": "ops"}, fake.Tags("db"))
	assert.Equal(t, "text/plain", props.ContentType)
	assert.Equal(t, 1, fake.VersionCount("db"))
}

func TestAWSStoreDeleteAndRecreateConflicts(t *testing.T) {
	t.Parallel()

	store, fake := newAWSTestStore(t)
	fake.AddSecret("db", "p1", nil)

	require.NoError(t, store.DeleteSecret(context.Background(), "db"))
	assert.True(t, fake.IsScheduledForDeletion("db"))

	_, err := store.SetSecret(context.Background(), "db", "p2")
	assert.True(t, secretstore.IsConflict(err))

	_, err = store.GetSecret(context.Background(), "db")
	assert.Error(t, err)
}

func TestAWSStoreErrorClassification(t *testing.T) {
	t.Parallel()

	store, fake := newAWSTestStore(t)
	fake.AddSecret("db", "p1", nil)
	fake.Errors["GetSecretValue:db"] = fakes.AWSAccessDeniedError()

	_, err := store.GetSecret(context.Background(), "db")
	assert.True(t, secretstore.IsAuth(err))
}

func TestAWSStoreValidate(t *testing.T) {
	t.Parallel()

	store, _ := newAWSTestStore(t)
	assert.NoError(t, store.Validate(context.Background()))

	fake := fakes.NewFakeSecretsManagerClient()
	bad := NewAWSStore(aws.Config{Region: "eu-west-1"}, "",
		WithSecretsManagerClient(fake),
		WithSTSClient(&fakes.FakeSTSClient{Err: fakes.AWSAccessDeniedError()}),
	)
	assert.True(t, secretstore.IsAuth(bad.Validate(context.Background())))
}
