package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	dserrors "github.com/systmms/knox/internal/errors"
)

// Settings are per-user preferences stored as JSON next to other user
// configuration.
type Settings struct {
	ClientID         string `json:"clientId"`
	TenantID         string `json:"tenantId"`
	SuppressWarnings bool   `json:"suppressWarnings"`
	IdleMinutesClose int    `json:"idleMinutesClose"`
}

// DefaultSettings returns the settings written on first run.
func DefaultSettings() *Settings {
	return &Settings{}
}

// DefaultSettingsPath returns <UserConfigDir>/knox/knox.json.
func DefaultSettingsPath() (string, error) {
	dir, err := os.UserConfigDir()
	if err != nil {
		return "", dserrors.UserError{
			Message:    "Cannot locate the user configuration directory",
			Details:    err.Error(),
			Suggestion: "Pass --settings with an explicit path",
			Err:        err,
		}
	}
	return filepath.Join(dir, "knox", "knox.json"), nil
}

// LoadSettings reads path. A missing file is created with defaults.
func LoadSettings(path string) (*Settings, error) {
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		s := DefaultSettings()
		if err := SaveSettings(path, s); err != nil {
			return nil, err
		}
		return s, nil
	}
	if err != nil {
		return nil, dserrors.UserError{
			Message:    "Failed to read settings file",
			Details:    err.Error(),
			Suggestion: "Check file permissions and path",
			Err:        err,
		}
	}

	s := DefaultSettings()
	if err := json.Unmarshal(data, s); err != nil {
		return nil, dserrors.ConfigError{
			Field:      "settings",
			Value:      path,
			Message:    "settings file is not valid JSON",
			Suggestion: "Fix or delete the file; a default one is created when it is missing",
		}
	}
	return s, nil
}

// SaveSettings writes s to path, creating parent directories.
func SaveSettings(path string, s *Settings) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return fmt.Errorf("failed to create settings directory: %w", err)
	}
	data, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		return err
	}
	if err := os.WriteFile(path, append(data, '\n'), 0o600); err != nil {
		return fmt.Errorf("failed to write settings: %w", err)
	}
	return nil
}

// SettingKeys lists the keys accepted by Set, sorted.
func SettingKeys() []string {
	keys := []string{"clientId", "tenantId", "suppressWarnings", "idleMinutesClose"}
	sort.Strings(keys)
	return keys
}

// Get returns the string form of a setting. Keys are case-insensitive.
func (s *Settings) Get(key string) (string, error) {
	switch strings.ToLower(key) {
	case "clientid":
		return s.ClientID, nil
	case "tenantid":
		return s.TenantID, nil
	case "suppresswarnings":
		return strconv.FormatBool(s.SuppressWarnings), nil
	case "idleminutesclose":
		return strconv.Itoa(s.IdleMinutesClose), nil
	}
	return "", unknownSetting(key)
}

// Set parses value into the named setting. Keys are case-insensitive.
func (s *Settings) Set(key, value string) error {
	value = strings.TrimSpace(value)

	switch strings.ToLower(key) {
	case "clientid":
		s.ClientID = value
	case "tenantid":
		s.TenantID = value
	case "suppresswarnings":
		b, err := strconv.ParseBool(value)
		if err != nil {
			return dserrors.ConfigError{Field: key, Value: value, Message: "expected true or false"}
		}
		s.SuppressWarnings = b
	case "idleminutesclose":
		n, err := strconv.Atoi(value)
		if err != nil || n < 0 {
			return dserrors.ConfigError{Field: key, Value: value, Message: "expected a whole number of minutes (0 disables)"}
		}
		s.IdleMinutesClose = n
	default:
		return unknownSetting(key)
	}
	return nil
}

func unknownSetting(key string) error {
	return dserrors.ConfigError{
		Field:      key,
		Message:    "unknown setting",
		Suggestion: "Valid settings: " + strings.Join(SettingKeys(), ", "),
	}
}
