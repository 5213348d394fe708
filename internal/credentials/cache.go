// Package credentials builds and caches credentials per registration
// identity so that vaults sharing an identity sign in once per session.
package credentials

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore"
	"github.com/Azure/azure-sdk-for-go/sdk/azidentity"
	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	awscreds "github.com/aws/aws-sdk-go-v2/credentials"
	"google.golang.org/api/option"

	"github.com/systmms/knox/internal/config"
	"github.com/systmms/knox/internal/logging"
	"github.com/systmms/knox/pkg/secretstore"
)

// AzureFactory builds a token credential for a registration. clientSecret
// is only set for the "secret" auth method.
type AzureFactory func(reg config.VaultRegistration, clientSecret string) (azcore.TokenCredential, error)

// AWSLoader loads an SDK config for a registration and region. static is
// nil unless keyring access keys are configured.
type AWSLoader func(ctx context.Context, reg config.VaultRegistration, region string, static aws.CredentialsProvider) (aws.Config, error)

// Cache holds one credential per identity. It is safe for concurrent use.
type Cache struct {
	mu      sync.Mutex
	keyring KeyringClient
	logger  *logging.Logger

	newAzure AzureFactory
	loadAWS  AWSLoader

	azure map[string]azcore.TokenCredential
	aws   map[string]aws.Config
	gcp   map[string][]option.ClientOption
}

// Option configures a Cache.
type Option func(*Cache)

// WithKeyring sets the keyring client (for testing).
func WithKeyring(k KeyringClient) Option {
	return func(c *Cache) { c.keyring = k }
}

// WithLogger sets the logger.
func WithLogger(l *logging.Logger) Option {
	return func(c *Cache) { c.logger = l }
}

// WithAzureFactory replaces the azidentity based factory (for testing).
func WithAzureFactory(f AzureFactory) Option {
	return func(c *Cache) { c.newAzure = f }
}

// WithAWSLoader replaces config.LoadDefaultConfig (for testing).
func WithAWSLoader(l AWSLoader) Option {
	return func(c *Cache) { c.loadAWS = l }
}

// NewCache creates an empty cache.
func NewCache(opts ...Option) *Cache {
	c := &Cache{
		keyring:  NewOSKeyring(),
		logger:   logging.Discard(),
		newAzure: NewAzureCredential,
		loadAWS:  loadAWSConfig,
		azure:    make(map[string]azcore.TokenCredential),
		aws:      make(map[string]aws.Config),
		gcp:      make(map[string][]option.ClientOption),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Azure returns the token credential for reg, building it on first use.
func (c *Cache) Azure(reg config.VaultRegistration) (azcore.TokenCredential, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	id := reg.Identity()
	if cred, ok := c.azure[id]; ok {
		return cred, nil
	}

	var secret string
	if reg.EffectiveAuth() == config.AuthSecret {
		account := reg.KeyringAccount
		if account == "" {
			account = reg.ClientID
		}
		s, err := c.keyring.Get(KeyringService, account)
		if err != nil {
			return nil, keyringError(reg, account, err)
		}
		secret = s
	}

	c.logger.Debug("Creating Azure credential (%s) for tenant %s", reg.EffectiveAuth(), reg.TenantID)
	cred, err := c.newAzure(reg, secret)
	if err != nil {
		return nil, secretstore.AuthError{Store: config.TypeAzureKeyVault, Message: "could not create credential", Err: err}
	}
	c.azure[id] = cred
	return cred, nil
}

// AWS returns the SDK config for reg in region.
func (c *Cache) AWS(ctx context.Context, reg config.VaultRegistration, region string) (aws.Config, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	key := reg.Identity() + "|" + region
	if cfg, ok := c.aws[key]; ok {
		return cfg, nil
	}

	var static aws.CredentialsProvider
	if reg.KeyringAccount != "" {
		raw, err := c.keyring.Get(KeyringService, reg.KeyringAccount)
		if err != nil {
			return aws.Config{}, keyringError(reg, reg.KeyringAccount, err)
		}
		var keys struct {
			AccessKeyID     string `json:"accessKeyId"`
			SecretAccessKey string `json:"secretAccessKey"`
			SessionToken    string `json:"sessionToken"`
		}
		if err := json.Unmarshal([]byte(raw), &keys); err != nil || keys.AccessKeyID == "" {
			return aws.Config{}, secretstore.AuthError{
				Store:   config.TypeAWSSecretsManager,
				Message: fmt.Sprintf("keyring entry %q must hold JSON with accessKeyId and secretAccessKey", reg.KeyringAccount),
			}
		}
		static = awscreds.NewStaticCredentialsProvider(keys.AccessKeyID, keys.SecretAccessKey, keys.SessionToken)
	}

	c.logger.Debug("Loading AWS config for %s (profile %q)", region, reg.Profile)
	cfg, err := c.loadAWS(ctx, reg, region, static)
	if err != nil {
		return aws.Config{}, secretstore.AuthError{Store: region, Message: "could not load AWS configuration", Err: err}
	}
	c.aws[key] = cfg
	return cfg, nil
}

// GCP returns client options for reg. An empty credentials file means
// application default credentials.
func (c *Cache) GCP(reg config.VaultRegistration) ([]option.ClientOption, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	id := reg.Identity()
	if opts, ok := c.gcp[id]; ok {
		return opts, nil
	}

	var opts []option.ClientOption
	if reg.CredentialsFile != "" {
		path, err := expandHome(reg.CredentialsFile)
		if err != nil {
			return nil, err
		}
		if _, err := os.Stat(path); err != nil {
			return nil, secretstore.AuthError{Store: config.TypeGCPSecretManager, Message: "credentials file not readable", Err: err}
		}
		opts = append(opts, option.WithCredentialsFile(path))
	}
	c.gcp[id] = opts
	return opts, nil
}

// Len returns the number of cached credentials across all backends.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.azure) + len(c.aws) + len(c.gcp)
}

// Clear drops every cached credential.
func (c *Cache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.azure = make(map[string]azcore.TokenCredential)
	c.aws = make(map[string]aws.Config)
	c.gcp = make(map[string][]option.ClientOption)
}

// NewAzureCredential maps the registration auth method to an azidentity
// credential. The browser method tries the Azure CLI login first.
func NewAzureCredential(reg config.VaultRegistration, clientSecret string) (azcore.TokenCredential, error) {
	switch reg.EffectiveAuth() {
	case config.AuthBrowser:
		cli, err := azidentity.NewAzureCLICredential(&azidentity.AzureCLICredentialOptions{TenantID: reg.TenantID})
		if err != nil {
			return nil, err
		}
		browser, err := azidentity.NewInteractiveBrowserCredential(&azidentity.InteractiveBrowserCredentialOptions{
			ClientID:    reg.ClientID,
			TenantID:    reg.TenantID,
			RedirectURL: reg.EffectiveRedirectURI(),
		})
		if err != nil {
			return nil, err
		}
		return azidentity.NewChainedTokenCredential([]azcore.TokenCredential{cli, browser}, nil)
	case config.AuthCLI:
		return azidentity.NewAzureCLICredential(&azidentity.AzureCLICredentialOptions{TenantID: reg.TenantID})
	case config.AuthDevice:
		return azidentity.NewDeviceCodeCredential(&azidentity.DeviceCodeCredentialOptions{
			ClientID: reg.ClientID,
			TenantID: reg.TenantID,
		})
	case config.AuthSecret:
		return azidentity.NewClientSecretCredential(reg.TenantID, reg.ClientID, clientSecret, nil)
	case config.AuthManaged:
		opts := &azidentity.ManagedIdentityCredentialOptions{}
		if reg.ClientID != "" {
			opts.ID = azidentity.ClientID(reg.ClientID)
		}
		return azidentity.NewManagedIdentityCredential(opts)
	case config.AuthDefault:
		return azidentity.NewDefaultAzureCredential(&azidentity.DefaultAzureCredentialOptions{TenantID: reg.TenantID})
	}
	return nil, fmt.Errorf("unknown auth method %q", reg.Auth)
}

func loadAWSConfig(ctx context.Context, reg config.VaultRegistration, region string, static aws.CredentialsProvider) (aws.Config, error) {
	opts := []func(*awsconfig.LoadOptions) error{awsconfig.WithRegion(region)}
	if reg.Profile != "" {
		opts = append(opts, awsconfig.WithSharedConfigProfile(reg.Profile))
	}
	if static != nil {
		opts = append(opts, awsconfig.WithCredentialsProvider(static))
	}
	return awsconfig.LoadDefaultConfig(ctx, opts...)
}

func keyringError(reg config.VaultRegistration, account string, err error) error {
	msg := fmt.Sprintf("keyring entry %s/%s could not be read", KeyringService, account)
	if errors.Is(err, ErrKeyringItemNotFound) {
		msg = fmt.Sprintf("no keyring entry %s/%s", KeyringService, account)
	}
	return secretstore.AuthError{Store: reg.EffectiveType(), Message: msg, Err: err}
}

func expandHome(path string) (string, error) {
	if !strings.HasPrefix(path, "~/") {
		return path, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to get home directory: %w", err)
	}
	return filepath.Join(home, path[2:]), nil
}
