package config

import (
	"fmt"
	"strings"

	dserrors "github.com/systmms/knox/internal/errors"
)

// Registration types.
const (
	TypeAzureKeyVault        = "azure.keyvault"
	TypeAWSSecretsManager    = "aws.secretsmanager"
	TypeGCPSecretManager     = "gcp.secretmanager"
	DefaultRegistrationType  = TypeAzureKeyVault
	DefaultAzureAuthMethod   = AuthBrowser
	DefaultAzureRedirectURI  = "http://localhost"
)

// Azure authentication methods.
const (
	AuthBrowser = "browser"
	AuthCLI     = "cli"
	AuthDevice  = "device"
	AuthSecret  = "secret"
	AuthManaged = "managed"
	AuthDefault = "default"
)

// VaultRegistration is one credential identity together with the vaults it
// can reach. For Azure a vault name is a Key Vault name or URL, for AWS a
// region, for GCP a project ID.
type VaultRegistration struct {
	Type        string `yaml:"type,omitempty" json:"type,omitempty"`
	TenantID    string `yaml:"tenantId,omitempty" json:"tenantId,omitempty"`
	ClientID    string `yaml:"clientId,omitempty" json:"clientId,omitempty"`
	RedirectURI string `yaml:"redirectUri,omitempty" json:"redirectUri,omitempty"`
	Auth        string `yaml:"auth,omitempty" json:"auth,omitempty"`

	// KeyringAccount names the OS keyring entry (service "knox") holding a
	// client secret (Azure, auth: secret) or a JSON access key (AWS).
	KeyringAccount string `yaml:"keyringAccount,omitempty" json:"keyringAccount,omitempty"`

	Profile  string `yaml:"profile,omitempty" json:"profile,omitempty"`
	Endpoint string `yaml:"endpoint,omitempty" json:"endpoint,omitempty"`

	CredentialsFile string `yaml:"credentialsFile,omitempty" json:"credentialsFile,omitempty"`

	VaultNames []string `yaml:"vaults" json:"vaults"`
}

// EffectiveType returns Type, defaulting to Azure Key Vault.
func (r VaultRegistration) EffectiveType() string {
	if r.Type == "" {
		return DefaultRegistrationType
	}
	return r.Type
}

// EffectiveAuth returns the Azure auth method, defaulting to browser.
func (r VaultRegistration) EffectiveAuth() string {
	if r.Auth == "" {
		return DefaultAzureAuthMethod
	}
	return r.Auth
}

// EffectiveRedirectURI returns RedirectURI or the loopback default.
func (r VaultRegistration) EffectiveRedirectURI() string {
	if r.RedirectURI == "" {
		return DefaultAzureRedirectURI
	}
	return r.RedirectURI
}

// Identity is the credential cache key. Registrations with the same
// identity share one credential.
func (r VaultRegistration) Identity() string {
	switch r.EffectiveType() {
	case TypeAWSSecretsManager:
		return strings.Join([]string{TypeAWSSecretsManager, r.Profile, r.KeyringAccount, r.Endpoint}, "|")
	case TypeGCPSecretManager:
		return strings.Join([]string{TypeGCPSecretManager, r.CredentialsFile}, "|")
	default:
		return strings.Join([]string{
			TypeAzureKeyVault,
			strings.ToLower(r.TenantID),
			strings.ToLower(r.ClientID),
			r.EffectiveAuth(),
			r.EffectiveRedirectURI(),
			r.KeyringAccount,
		}, "|")
	}
}

// ApplyDefaults fills empty Azure client and tenant IDs from settings.
func (d *Definition) ApplyDefaults(s *Settings) {
	for i := range d.Registrations {
		r := &d.Registrations[i]
		if r.EffectiveType() != TypeAzureKeyVault {
			continue
		}
		if r.ClientID == "" {
			r.ClientID = s.ClientID
		}
		if r.TenantID == "" {
			r.TenantID = s.TenantID
		}
	}
}

// Validate checks per-type requirements the schema cannot express.
func (d *Definition) Validate() error {
	for i, r := range d.Registrations {
		field := fmt.Sprintf("registrations[%d]", i)

		if r.EffectiveType() != TypeAzureKeyVault {
			continue
		}

		switch r.EffectiveAuth() {
		case AuthBrowser, AuthDevice:
			if r.ClientID == "" || r.TenantID == "" {
				return dserrors.ConfigError{
					Field:      field,
					Message:    "clientId and tenantId are required for interactive Azure sign-in",
					Suggestion: "Set them on the registration or run 'knox settings set clientId <id>' and 'knox settings set tenantId <id>'",
				}
			}
		case AuthSecret:
			if r.ClientID == "" || r.TenantID == "" {
				return dserrors.ConfigError{
					Field:      field,
					Message:    "clientId and tenantId are required for client secret authentication",
					Suggestion: "Set clientId and tenantId on the registration",
				}
			}
		}
	}
	return nil
}

// Dedupe removes vault names already claimed by an earlier registration
// (case-insensitive, per backend type) or repeated within one. It returns
// the dropped names in encounter order.
func (d *Definition) Dedupe() []string {
	seen := make(map[string]bool)
	var dropped []string

	for i := range d.Registrations {
		r := &d.Registrations[i]
		kept := make([]string, 0, len(r.VaultNames))
		for _, name := range r.VaultNames {
			key := r.EffectiveType() + "|" + strings.ToLower(name)
			if seen[key] {
				dropped = append(dropped, name)
				continue
			}
			seen[key] = true
			kept = append(kept, name)
		}
		r.VaultNames = kept
	}
	return dropped
}

// VaultEntry pairs a vault name with the registration that serves it.
type VaultEntry struct {
	Name         string
	Registration VaultRegistration
}

// VaultEntries flattens the registrations into vaults in configuration
// order.
func (d *Definition) VaultEntries() []VaultEntry {
	var out []VaultEntry
	for _, r := range d.Registrations {
		for _, name := range r.VaultNames {
			out = append(out, VaultEntry{Name: name, Registration: r})
		}
	}
	return out
}

// IdentityGroup lists the vaults reachable with one credential identity.
type IdentityGroup struct {
	Identity     string
	Registration VaultRegistration
	VaultNames   []string
}

// GroupByIdentity merges registrations sharing an identity, keeping the
// order in which identities first appear.
func (d *Definition) GroupByIdentity() []IdentityGroup {
	var groups []IdentityGroup
	index := make(map[string]int)

	for _, r := range d.Registrations {
		id := r.Identity()
		i, ok := index[id]
		if !ok {
			index[id] = len(groups)
			groups = append(groups, IdentityGroup{Identity: id, Registration: r})
			i = len(groups) - 1
		}
		groups[i].VaultNames = append(groups[i].VaultNames, r.VaultNames...)
	}
	return groups
}
