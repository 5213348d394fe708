package stores

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore"
	"github.com/Azure/azure-sdk-for-go/sdk/azcore/runtime"
	"github.com/Azure/azure-sdk-for-go/sdk/azcore/to"
	"github.com/Azure/azure-sdk-for-go/sdk/azidentity"
	"github.com/Azure/azure-sdk-for-go/sdk/security/keyvault/azsecrets"
	"github.com/systmms/knox/internal/logging"
	"github.com/systmms/knox/pkg/secretstore"
)

// AzureSecretsAPI is the subset of *azsecrets.Client used by AzureStore.
// It allows for mocking in tests.
type AzureSecretsAPI interface {
	NewListSecretPropertiesPager(options *azsecrets.ListSecretPropertiesOptions) *runtime.Pager[azsecrets.ListSecretPropertiesResponse]
	GetSecret(ctx context.Context, name string, version string, options *azsecrets.GetSecretOptions) (azsecrets.GetSecretResponse, error)
	SetSecret(ctx context.Context, name string, parameters azsecrets.SetSecretParameters, options *azsecrets.SetSecretOptions) (azsecrets.SetSecretResponse, error)
	UpdateSecretProperties(ctx context.Context, name string, version string, parameters azsecrets.UpdateSecretPropertiesParameters, options *azsecrets.UpdateSecretPropertiesOptions) (azsecrets.UpdateSecretPropertiesResponse, error)
	DeleteSecret(ctx context.Context, name string, options *azsecrets.DeleteSecretOptions) (azsecrets.DeleteSecretResponse, error)
}

// AzureStore implements secretstore.Store for one Azure Key Vault.
type AzureStore struct {
	vault    string
	vaultURL string
	client   AzureSecretsAPI
	logger   *logging.Logger
}

// AzureOption is a functional option for configuring an AzureStore.
type AzureOption func(*AzureStore)

// WithAzureClient sets a custom Key Vault client (for testing).
func WithAzureClient(client AzureSecretsAPI) AzureOption {
	return func(s *AzureStore) {
		s.client = client
	}
}

// WithAzureLogger sets the logger used for debug output.
func WithAzureLogger(logger *logging.Logger) AzureOption {
	return func(s *AzureStore) {
		s.logger = logger
	}
}

// NewAzureStore creates a store for the named vault. cred may be nil when
// a client is injected with WithAzureClient.
func NewAzureStore(vault string, cred azcore.TokenCredential, opts ...AzureOption) (*AzureStore, error) {
	s := &AzureStore{
		vault:    vault,
		vaultURL: AzureVaultURL(vault),
		logger:   logging.Discard(),
	}

	for _, opt := range opts {
		opt(s)
	}

	if s.client == nil {
		if cred == nil {
			return nil, fmt.Errorf("no credential for vault %s", vault)
		}
		client, err := azsecrets.NewClient(s.vaultURL, cred, nil)
		if err != nil {
			return nil, fmt.Errorf("failed to create Key Vault client: %w", err)
		}
		s.client = client
	}

	return s, nil
}

// AzureVaultURL returns the endpoint for a vault name. Names that are
// already URLs are returned unchanged.
func AzureVaultURL(vault string) string {
	if strings.HasPrefix(vault, "https://") || strings.HasPrefix(vault, "http://") {
		return vault
	}
	return fmt.Sprintf("https://%s.vault.azure.net/", vault)
}

// Name returns the vault name.
func (s *AzureStore) Name() string {
	return s.vault
}

// ListProperties pages through the vault listing.
func (s *AzureStore) ListProperties(ctx context.Context) ([]secretstore.Properties, error) {
	var out []secretstore.Properties

	pager := s.client.NewListSecretPropertiesPager(nil)
	for pager.More() {
		page, err := pager.NextPage(ctx)
		if err != nil {
			return nil, s.classify("list", "", err)
		}
		for _, item := range page.Value {
			if item == nil || item.ID == nil {
				continue
			}
			out = append(out, azureProperties(item.ID, item.Tags, item.ContentType, item.Attributes))
		}
	}

	s.logger.Debug("Listed %d secrets in %s", len(out), s.vault)
	return out, nil
}

// GetSecret fetches the latest version of name.
func (s *AzureStore) GetSecret(ctx context.Context, name string) (secretstore.Secret, error) {
	s.logger.Debug("Fetching %s from %s", logging.Secret(name), s.vault)

	resp, err := s.client.GetSecret(ctx, name, "", nil)
	if err != nil {
		return secretstore.Secret{}, s.classify("get", name, err)
	}
	return azureSecret(resp.Secret), nil
}

// SetSecret writes a new version of name holding value.
func (s *AzureStore) SetSecret(ctx context.Context, name, value string) (secretstore.Secret, error) {
	resp, err := s.client.SetSecret(ctx, name, azsecrets.SetSecretParameters{Value: to.Ptr(value)}, nil)
	if err != nil {
		return secretstore.Secret{}, s.classify("set", name, err)
	}
	return azureSecret(resp.Secret), nil
}

// UpdateProperties replaces the tags, content type and enabled flag of the
// version named by props, or the latest version when props.Version is
// empty. Key Vault keeps the existing tags when the new tag set is empty.
func (s *AzureStore) UpdateProperties(ctx context.Context, props secretstore.Properties) (secretstore.Properties, error) {
	params := azsecrets.UpdateSecretPropertiesParameters{
		Tags:             make(map[string]*string, len(props.Tags)),
		SecretAttributes: &azsecrets.SecretAttributes{Enabled: to.Ptr(props.Enabled)},
	}
	for k, v := range props.Tags {
		params.Tags[k] = to.Ptr(v)
	}
	if props.ContentType != "" {
		params.ContentType = to.Ptr(props.ContentType)
	}

	resp, err := s.client.UpdateSecretProperties(ctx, props.Name, props.Version, params, nil)
	if err != nil {
		return secretstore.Properties{}, s.classify("update", props.Name, err)
	}
	return azureSecret(resp.Secret).Properties, nil
}

// DeleteSecret soft-deletes name. Purging is left to the portal.
func (s *AzureStore) DeleteSecret(ctx context.Context, name string) error {
	if _, err := s.client.DeleteSecret(ctx, name, nil); err != nil {
		return s.classify("delete", name, err)
	}
	return nil
}

// Validate checks the vault is reachable by fetching the first listing page.
func (s *AzureStore) Validate(ctx context.Context) error {
	pager := s.client.NewListSecretPropertiesPager(&azsecrets.ListSecretPropertiesOptions{})
	if _, err := pager.NextPage(ctx); err != nil {
		return s.classify("validate", "", err)
	}
	return nil
}

func (s *AzureStore) classify(op, name string, err error) error {
	var authErr *azidentity.AuthenticationFailedError
	if errors.As(err, &authErr) {
		return secretstore.AuthError{Store: s.vault, Message: "credential rejected", Err: err}
	}

	var respErr *azcore.ResponseError
	if errors.As(err, &respErr) {
		switch respErr.StatusCode {
		case http.StatusNotFound:
			return secretstore.NotFoundError{Store: s.vault, Name: name, Err: err}
		case http.StatusConflict:
			return secretstore.ConflictError{Store: s.vault, Name: name, Message: respErr.ErrorCode, Err: err}
		case http.StatusUnauthorized, http.StatusForbidden:
			return secretstore.AuthError{Store: s.vault, Message: respErr.ErrorCode, Err: err}
		}
	}

	return secretstore.RemoteError{Store: s.vault, Op: op, Err: err}
}

func azureSecret(sec azsecrets.Secret) secretstore.Secret {
	out := secretstore.Secret{}
	if sec.ID != nil {
		out.Properties = azureProperties(sec.ID, sec.Tags, sec.ContentType, sec.Attributes)
		out.Name = out.Properties.Name
	}
	if sec.Value != nil {
		out.Value = *sec.Value
	}
	return out
}

func azureProperties(id *azsecrets.ID, tags map[string]*string, contentType *string, attrs *azsecrets.SecretAttributes) secretstore.Properties {
	p := secretstore.Properties{
		Name:    id.Name(),
		Version: id.Version(),
		Tags:    make(map[string]string, len(tags)),
		Enabled: true,
	}
	for k, v := range tags {
		if v != nil {
			p.Tags[k] = *v
		}
	}
	if contentType != nil {
		p.ContentType = *contentType
	}
	if attrs != nil {
		if attrs.Enabled != nil {
			p.Enabled = *attrs.Enabled
		}
		if attrs.Created != nil {
			p.Created = *attrs.Created
		}
		if attrs.Updated != nil {
			p.Updated = *attrs.Updated
		}
	}
	return p
}
