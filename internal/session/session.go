// Package session owns the process-wide state of one knox run: the
// credential cache, the vault clients in configuration order and the
// remembered folder expand state.
//
// A Session is created once with Open and torn down with Close. Components
// that need this state receive the session (or the pieces of it they use)
// explicitly; nothing is kept in package variables.
package session

import (
	"context"
	"fmt"
	"strings"

	"github.com/systmms/knox/internal/config"
	"github.com/systmms/knox/internal/credentials"
	"github.com/systmms/knox/internal/logging"
	"github.com/systmms/knox/internal/metrics"
	"github.com/systmms/knox/internal/projection"
	"github.com/systmms/knox/internal/secure"
	"github.com/systmms/knox/internal/stores"
	"github.com/systmms/knox/internal/vault"
	"github.com/systmms/knox/pkg/secretstore"
)

// LoadError records a vault that could not be opened. The rest of the
// session stays usable.
type LoadError struct {
	Vault string
	Type  string
	Err   error
}

func (e LoadError) Error() string {
	return fmt.Sprintf("vault %s (%s): %v", e.Vault, e.Type, e.Err)
}

func (e LoadError) Unwrap() error { return e.Err }

// Session is the application state shared by the CLI commands.
type Session struct {
	settings *config.Settings
	creds    *credentials.Cache
	registry *stores.Registry
	logger   *logging.Logger
	metrics  *metrics.VaultMetrics
	purge    func()

	order    []string
	vaults   map[string]*vault.Client
	expanded projection.ExpandedState
	failures []LoadError
	closed   bool
}

// Option configures a Session.
type Option func(*Session)

// WithLogger sets the logger.
func WithLogger(l *logging.Logger) Option {
	return func(s *Session) { s.logger = l }
}

// WithMetrics records vault operations in m.
func WithMetrics(m *metrics.VaultMetrics) Option {
	return func(s *Session) { s.metrics = m }
}

// WithCredentials replaces the credential cache.
func WithCredentials(c *credentials.Cache) Option {
	return func(s *Session) { s.creds = c }
}

// WithRegistry replaces the store registry (for testing).
func WithRegistry(r *stores.Registry) Option {
	return func(s *Session) { s.registry = r }
}

// WithExpandedState starts the session with remembered expand state.
func WithExpandedState(state projection.ExpandedState) Option {
	return func(s *Session) { s.expanded = state }
}

// Open connects to every vault of regs in configuration order. A vault
// name seen earlier (in any case) is skipped with a warning. Vaults that
// fail to load are recorded in LoadErrors; Open itself only fails when the
// context is cancelled.
func Open(ctx context.Context, regs []config.VaultRegistration, settings *config.Settings, opts ...Option) (*Session, error) {
	if settings == nil {
		settings = config.DefaultSettings()
	}
	s := &Session{
		settings: settings,
		logger:   logging.Discard(),
		purge:    secure.Purge,
		vaults:   make(map[string]*vault.Client),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.creds == nil {
		s.creds = credentials.NewCache(credentials.WithLogger(s.logger))
	}
	if s.registry == nil {
		s.registry = stores.NewRegistry(s.creds, stores.WithRegistryLogger(s.logger))
	}
	if s.expanded == nil {
		s.expanded = make(projection.ExpandedState)
	}

	for _, reg := range regs {
		for _, name := range reg.VaultNames {
			if err := ctx.Err(); err != nil {
				s.Close()
				return nil, err
			}
			if _, ok := s.vaults[key(name)]; ok {
				s.logger.Warn("Vault %s is registered more than once; keeping the first registration", name)
				continue
			}
			s.load(ctx, config.VaultEntry{Name: name, Registration: reg})
		}
	}

	s.logger.Debug("Session opened with %d vaults (%d failed)", len(s.order), len(s.failures))
	return s, nil
}

func (s *Session) load(ctx context.Context, entry config.VaultEntry) {
	storeType := entry.Registration.EffectiveType()

	store, err := s.registry.Open(ctx, entry)
	if err == nil {
		var client *vault.Client
		client, err = vault.New(ctx, store, vault.WithLogger(s.logger), vault.WithMetrics(s.metrics))
		if err == nil {
			s.order = append(s.order, key(entry.Name))
			s.vaults[key(entry.Name)] = client
			return
		}
		closeStore(store)
	}

	s.logger.Warn("Could not load vault %s: %v", entry.Name, err)
	s.failures = append(s.failures, LoadError{Vault: entry.Name, Type: storeType, Err: err})
}

// Vault returns the client for name, matched case-insensitively.
func (s *Session) Vault(name string) (*vault.Client, error) {
	c, ok := s.vaults[key(name)]
	if !ok {
		for _, f := range s.failures {
			if strings.EqualFold(f.Vault, name) {
				return nil, f
			}
		}
		return nil, secretstore.NotFoundError{Store: name}
	}
	return c, nil
}

// Vaults returns the loaded clients in configuration order.
func (s *Session) Vaults() []*vault.Client {
	out := make([]*vault.Client, 0, len(s.order))
	for _, k := range s.order {
		out = append(out, s.vaults[k])
	}
	return out
}

// VaultNames returns the loaded vault names in configuration order.
func (s *Session) VaultNames() []string {
	names := make([]string, 0, len(s.order))
	for _, c := range s.Vaults() {
		names = append(names, c.Name())
	}
	return names
}

// Sources returns the loaded clients as projection sources.
func (s *Session) Sources() []projection.Source {
	out := make([]projection.Source, 0, len(s.order))
	for _, c := range s.Vaults() {
		out = append(out, c)
	}
	return out
}

// LoadErrors returns the vaults that failed to load.
func (s *Session) LoadErrors() []LoadError {
	return append([]LoadError(nil), s.failures...)
}

// ExpandedState returns the session's folder expand state.
func (s *Session) ExpandedState() projection.ExpandedState {
	return s.expanded
}

// Settings returns the settings the session was opened with.
func (s *Session) Settings() *config.Settings {
	return s.settings
}

// Credentials returns the credential cache.
func (s *Session) Credentials() *credentials.Cache {
	return s.creds
}

// Close drops every client and credential and wipes secure memory.
// Idempotent.
func (s *Session) Close() {
	if s.closed {
		return
	}
	s.closed = true

	for _, c := range s.vaults {
		closeStore(c.Store())
	}
	s.vaults = make(map[string]*vault.Client)
	s.order = nil
	s.creds.Clear()
	s.purge()
	s.logger.Debug("Session closed")
}

// Closed reports whether Close has been called.
func (s *Session) Closed() bool {
	return s.closed
}

func closeStore(store secretstore.Store) {
	if c, ok := store.(interface{ Close() error }); ok {
		_ = c.Close()
	}
}

func key(name string) string {
	return strings.ToLower(name)
}
