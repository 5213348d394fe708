package config

import (
	"os"
	"path/filepath"

	dserrors "github.com/systmms/knox/internal/errors"
	"github.com/systmms/knox/internal/logging"
	"gopkg.in/yaml.v3"
)

// DefaultConfigFile is looked up in the working directory when --config is
// not given.
const DefaultConfigFile = "knox.yaml"

// Config holds the runtime configuration
type Config struct {
	Path           string
	SettingsPath   string
	Logger         *logging.Logger
	NonInteractive bool
	Definition     *Definition
	Settings       *Settings
}

// Definition represents the knox.yaml structure
type Definition struct {
	Version       int                 `yaml:"version" json:"version"`
	Registrations []VaultRegistration `yaml:"registrations" json:"registrations"`
}

// Load reads, validates and parses the knox.yaml file. Settings must be
// loaded first for Azure client/tenant defaults to apply.
func (c *Config) Load() error {
	data, err := os.ReadFile(c.Path)
	if err != nil {
		if os.IsNotExist(err) {
			return dserrors.ConfigError{
				Field:      "path",
				Value:      c.Path,
				Message:    "configuration file not found",
				Suggestion: "Run 'knox init' to create a new configuration file",
			}
		}
		return dserrors.UserError{
			Message:    "Failed to read configuration file",
			Details:    err.Error(),
			Suggestion: "Check file permissions and path",
			Err:        err,
		}
	}

	def, err := ParseDefinition(data)
	if err != nil {
		return err
	}

	if c.Settings != nil {
		def.ApplyDefaults(c.Settings)
	}
	if err := def.Validate(); err != nil {
		return err
	}

	dropped := def.Dedupe()
	for _, name := range dropped {
		c.logger().Warn("Vault %s is registered more than once; using the first registration", name)
	}

	c.Definition = def
	return nil
}

// ParseDefinition parses and schema-checks a knox.yaml document.
func ParseDefinition(data []byte) (*Definition, error) {
	var raw interface{}
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, dserrors.ConfigError{
			Message:    "invalid YAML syntax in configuration file",
			Suggestion: "Check for indentation errors, missing quotes, or invalid characters. Use a YAML validator",
		}
	}
	if err := validateSchema(raw); err != nil {
		return nil, err
	}

	var def Definition
	if err := yaml.Unmarshal(data, &def); err != nil {
		return nil, dserrors.ConfigError{
			Message:    "configuration does not match the expected structure",
			Suggestion: err.Error(),
		}
	}

	if def.Version != 0 {
		return nil, dserrors.ConfigError{
			Field:      "version",
			Value:      def.Version,
			Message:    "unsupported configuration version",
			Suggestion: "Set 'version: 0' at the top of your knox.yaml file",
		}
	}

	return &def, nil
}

// LoadSettings reads the settings file, creating it with defaults when it
// does not exist.
func (c *Config) LoadSettings() error {
	if c.SettingsPath == "" {
		path, err := DefaultSettingsPath()
		if err != nil {
			return err
		}
		c.SettingsPath = path
	}

	s, err := LoadSettings(c.SettingsPath)
	if err != nil {
		return err
	}
	c.Settings = s
	return nil
}

// SaveSettings writes the current settings back to SettingsPath.
func (c *Config) SaveSettings() error {
	if c.Settings == nil {
		return dserrors.UserError{
			Message:    "Settings not loaded",
			Suggestion: "This is an internal error. Please report it",
		}
	}
	return SaveSettings(c.SettingsPath, c.Settings)
}

// Registrations returns the loaded registrations, or nil before Load.
func (c *Config) Registrations() []VaultRegistration {
	if c.Definition == nil {
		return nil
	}
	return c.Definition.Registrations
}

// WriteExample writes a starter knox.yaml to path. It refuses to overwrite
// an existing file.
func WriteExample(path string) error {
	if _, err := os.Stat(path); err == nil {
		return dserrors.UserError{
			Message:    "Configuration file already exists",
			Details:    path,
			Suggestion: "Edit the existing file or pass a different --config path",
		}
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}
	return os.WriteFile(path, []byte(exampleConfig), 0o644)
}

func (c *Config) logger() *logging.Logger {
	if c.Logger == nil {
		return logging.Discard()
	}
	return c.Logger
}

const exampleConfig = `version: 0

# Each registration is one credential identity and the vaults it can reach.
registrations:
  - type: azure.keyvault
    # tenantId and clientId default to the values in the knox settings file.
    # tenantId: 00000000-0000-0000-0000-000000000000
    # clientId: 00000000-0000-0000-0000-000000000000
    redirectUri: http://localhost
    auth: browser
    vaults:
      - my-keyvault

  # - type: aws.secretsmanager
  #   profile: default
  #   vaults: [us-east-1]

  # - type: gcp.secretmanager
  #   credentialsFile: ~/.config/gcloud/application_default_credentials.json
  #   vaults: [my-project-id]
`
