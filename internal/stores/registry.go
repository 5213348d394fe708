package stores

import (
	"context"
	"fmt"
	"sort"

	"github.com/systmms/knox/internal/config"
	"github.com/systmms/knox/internal/credentials"
	"github.com/systmms/knox/internal/logging"
	"github.com/systmms/knox/pkg/secretstore"
)

// Factory opens the store for one vault of a registration.
type Factory func(ctx context.Context, entry config.VaultEntry) (secretstore.Store, error)

// Registry manages store creation per registration type
type Registry struct {
	creds     *credentials.Cache
	logger    *logging.Logger
	factories map[string]Factory
}

// RegistryOption configures a Registry.
type RegistryOption func(*Registry)

// WithRegistryLogger sets the logger passed on to created stores.
func WithRegistryLogger(l *logging.Logger) RegistryOption {
	return func(r *Registry) { r.logger = l }
}

// WithFactory registers or replaces the factory for a registration type.
func WithFactory(storeType string, f Factory) RegistryOption {
	return func(r *Registry) { r.factories[storeType] = f }
}

// NewRegistry creates a registry with the built-in backends. Credentials
// are taken from creds, so vaults that share an identity share a sign-in.
func NewRegistry(creds *credentials.Cache, opts ...RegistryOption) *Registry {
	r := &Registry{
		creds:     creds,
		logger:    logging.Discard(),
		factories: make(map[string]Factory),
	}

	r.factories[config.TypeAzureKeyVault] = r.openAzure
	r.factories[config.TypeAWSSecretsManager] = r.openAWS
	r.factories[config.TypeGCPSecretManager] = r.openGCP

	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Open creates the store serving entry.
func (r *Registry) Open(ctx context.Context, entry config.VaultEntry) (secretstore.Store, error) {
	storeType := entry.Registration.EffectiveType()
	factory, ok := r.factories[storeType]
	if !ok {
		return nil, fmt.Errorf("unknown registration type: %s", storeType)
	}
	return factory(ctx, entry)
}

// SupportedTypes returns the registered types, sorted.
func (r *Registry) SupportedTypes() []string {
	types := make([]string, 0, len(r.factories))
	for t := range r.factories {
		types = append(types, t)
	}
	sort.Strings(types)
	return types
}

// IsSupported checks if a registration type is supported
func (r *Registry) IsSupported(storeType string) bool {
	_, ok := r.factories[storeType]
	return ok
}

func (r *Registry) openAzure(ctx context.Context, entry config.VaultEntry) (secretstore.Store, error) {
	cred, err := r.creds.Azure(entry.Registration)
	if err != nil {
		return nil, err
	}
	return NewAzureStore(entry.Name, cred, WithAzureLogger(r.logger))
}

func (r *Registry) openAWS(ctx context.Context, entry config.VaultEntry) (secretstore.Store, error) {
	cfg, err := r.creds.AWS(ctx, entry.Registration, entry.Name)
	if err != nil {
		return nil, err
	}
	return NewAWSStore(cfg, entry.Registration.Endpoint, WithAWSLogger(r.logger)), nil
}

func (r *Registry) openGCP(ctx context.Context, entry config.VaultEntry) (secretstore.Store, error) {
	opts, err := r.creds.GCP(entry.Registration)
	if err != nil {
		return nil, err
	}
	return NewGCPStore(ctx, entry.Name, opts, WithGCPLogger(r.logger))
}
