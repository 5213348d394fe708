// Package testutil provides test utilities and helpers for knox tests.
//
// This package contains shared test infrastructure: a knox.yaml builder,
// a capturing logger and output assertions.
package testutil

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/systmms/knox/internal/config"
	"gopkg.in/yaml.v3"
)

// TestConfigBuilder provides a fluent API for building knox.yaml files.
//
// Example usage:
//
//	path := NewTestConfig(t).
//	    WithAzure("app-id", "tenant-id", "corp-kv", "dev-kv").
//	    WithAWS("ops", "us-east-1").
//	    Write()
type TestConfigBuilder struct {
	definition *config.Definition
	tempDir    string
	t          *testing.T
}

// NewTestConfig creates a builder with no registrations.
func NewTestConfig(t *testing.T) *TestConfigBuilder {
	t.Helper()

	return &TestConfigBuilder{
		definition: &config.Definition{Version: 0},
		tempDir:    t.TempDir(),
		t:          t,
	}
}

// WithRegistration appends a registration as is.
func (b *TestConfigBuilder) WithRegistration(reg config.VaultRegistration) *TestConfigBuilder {
	b.definition.Registrations = append(b.definition.Registrations, reg)
	return b
}

// WithAzure adds an Azure Key Vault registration using browser sign-in.
func (b *TestConfigBuilder) WithAzure(clientID, tenantID string, vaults ...string) *TestConfigBuilder {
	return b.WithRegistration(config.VaultRegistration{
		ClientID:   clientID,
		TenantID:   tenantID,
		VaultNames: vaults,
	})
}

// WithAWS adds an AWS Secrets Manager registration; vaults are regions.
func (b *TestConfigBuilder) WithAWS(profile string, regions ...string) *TestConfigBuilder {
	return b.WithRegistration(config.VaultRegistration{
		Type:       config.TypeAWSSecretsManager,
		Profile:    profile,
		VaultNames: regions,
	})
}

// WithGCP adds a GCP Secret Manager registration; vaults are project IDs.
func (b *TestConfigBuilder) WithGCP(credentialsFile string, projects ...string) *TestConfigBuilder {
	return b.WithRegistration(config.VaultRegistration{
		Type:            config.TypeGCPSecretManager,
		CredentialsFile: credentialsFile,
		VaultNames:      projects,
	})
}

// Build returns the definition built so far.
func (b *TestConfigBuilder) Build() *config.Definition {
	return b.definition
}

// Write writes knox.yaml to a temporary directory and returns its path.
func (b *TestConfigBuilder) Write() string {
	b.t.Helper()

	path := filepath.Join(b.tempDir, "knox.yaml")
	if err := b.WriteYAML(path); err != nil {
		b.t.Fatalf("Failed to write test config: %v", err)
	}
	return path
}

// WriteYAML writes the configuration to path, creating parent directories.
func (b *TestConfigBuilder) WriteYAML(path string) error {
	b.t.Helper()

	data, err := yaml.Marshal(b.definition)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return err
	}
	return os.WriteFile(path, data, 0644)
}

// WriteTestConfig writes a hand-written knox.yaml to a temporary directory
// and returns its path.
func WriteTestConfig(t *testing.T, yamlContent string) string {
	t.Helper()

	path := filepath.Join(t.TempDir(), "knox.yaml")
	if err := os.WriteFile(path, []byte(yamlContent), 0644); err != nil {
		t.Fatalf("Failed to write test config: %v", err)
	}
	return path
}
