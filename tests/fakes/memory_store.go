package fakes

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/systmms/knox/pkg/secretstore"
)

// MemoryStore is a versioned in-memory secretstore.Store. Like Key Vault,
// an UpdateProperties call with no tags keeps the existing tags.
type MemoryStore struct {
	mu sync.Mutex

	name     string
	secrets  map[string][]secretstore.Secret
	deleted  map[string]bool
	seq      int
	clock    time.Time
	errors   map[string]error
	calls    map[string]int
	KeepTags bool
}

// NewMemoryStore returns an empty store reporting the given vault name.
func NewMemoryStore(name string) *MemoryStore {
	return &MemoryStore{
		name:     name,
		secrets:  make(map[string][]secretstore.Secret),
		deleted:  make(map[string]bool),
		errors:   make(map[string]error),
		calls:    make(map[string]int),
		clock:    time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
		KeepTags: true,
	}
}

// Name returns the vault name.
func (m *MemoryStore) Name() string { return m.name }

// Seed adds a version of name with tags and returns it.
func (m *MemoryStore) Seed(name, value string, tags map[string]string) secretstore.Secret {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.add(name, value, tags)
}

// FailOn makes op ("list", "get", "set", "update", "delete") fail for name.
// A nil err clears the failure.
func (m *MemoryStore) FailOn(op, name string, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err == nil {
		delete(m.errors, op+":"+name)
		return
	}
	m.errors[op+":"+name] = err
}

// Calls returns how many times op was invoked.
func (m *MemoryStore) Calls(op string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls[op]
}

// Versions returns the number of versions stored for name.
func (m *MemoryStore) Versions(name string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.secrets[name])
}

// Latest returns the newest live version of name.
func (m *MemoryStore) Latest(name string) (secretstore.Secret, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	vs := m.secrets[name]
	if len(vs) == 0 || m.deleted[name] {
		return secretstore.Secret{}, false
	}
	s := vs[len(vs)-1]
	s.Properties = s.Properties.Clone()
	return s, true
}

// ListProperties returns the latest properties of every live secret sorted
// by name.
func (m *MemoryStore) ListProperties(ctx context.Context) ([]secretstore.Properties, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.check("list", ""); err != nil {
		return nil, err
	}

	names := make([]string, 0, len(m.secrets))
	for name := range m.secrets {
		if !m.deleted[name] {
			names = append(names, name)
		}
	}
	sort.Strings(names)

	out := make([]secretstore.Properties, 0, len(names))
	for _, name := range names {
		vs := m.secrets[name]
		p := vs[len(vs)-1].Properties.Clone()
		p.Version = ""
		out = append(out, p)
	}
	return out, nil
}

// GetSecret returns the latest version of name.
func (m *MemoryStore) GetSecret(ctx context.Context, name string) (secretstore.Secret, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.check("get", name); err != nil {
		return secretstore.Secret{}, err
	}
	vs := m.secrets[name]
	if len(vs) == 0 || m.deleted[name] {
		return secretstore.Secret{}, secretstore.NotFoundError{Store: m.name, Name: name}
	}
	s := vs[len(vs)-1]
	s.Properties = s.Properties.Clone()
	return s, nil
}

// SetSecret adds a new version of name with no tags.
func (m *MemoryStore) SetSecret(ctx context.Context, name, value string) (secretstore.Secret, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.check("set", name); err != nil {
		return secretstore.Secret{}, err
	}
	if m.deleted[name] {
		return secretstore.Secret{}, secretstore.ConflictError{Store: m.name, Name: name, Message: "secret is deleted but recoverable"}
	}
	return m.add(name, value, nil), nil
}

// UpdateProperties updates the version named by props, or the latest.
func (m *MemoryStore) UpdateProperties(ctx context.Context, props secretstore.Properties) (secretstore.Properties, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.check("update", props.Name); err != nil {
		return secretstore.Properties{}, err
	}
	vs := m.secrets[props.Name]
	if len(vs) == 0 || m.deleted[props.Name] {
		return secretstore.Properties{}, secretstore.NotFoundError{Store: m.name, Name: props.Name}
	}

	idx := len(vs) - 1
	if props.Version != "" {
		idx = -1
		for i := range vs {
			if vs[i].Properties.Version == props.Version {
				idx = i
			}
		}
		if idx < 0 {
			return secretstore.Properties{}, secretstore.NotFoundError{Store: m.name, Name: props.Name}
		}
	}

	cur := &vs[idx].Properties
	if len(props.Tags) > 0 || !m.KeepTags {
		cur.Tags = props.Clone().Tags
		if cur.Tags == nil {
			cur.Tags = map[string]string{}
		}
	}
	cur.ContentType = props.ContentType
	cur.Enabled = props.Enabled
	cur.Updated = m.tick()
	return cur.Clone(), nil
}

// DeleteSecret soft-deletes name.
func (m *MemoryStore) DeleteSecret(ctx context.Context, name string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.check("delete", name); err != nil {
		return err
	}
	if len(m.secrets[name]) == 0 || m.deleted[name] {
		return secretstore.NotFoundError{Store: m.name, Name: name}
	}
	m.deleted[name] = true
	return nil
}

// Validate fails when listing is configured to fail.
func (m *MemoryStore) Validate(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.errors["list:"]
}

func (m *MemoryStore) check(op, name string) error {
	m.calls[op]++
	return m.errors[op+":"+name]
}

func (m *MemoryStore) add(name, value string, tags map[string]string) secretstore.Secret {
	m.seq++
	ts := m.tick()
	delete(m.deleted, name)
	s := secretstore.Secret{
		Name:  name,
		Value: value,
		Properties: secretstore.Properties{
			Name:    name,
			Version: fmt.Sprintf("v%d", m.seq),
			Tags:    copyTags(tags),
			Enabled: true,
			Created: ts,
			Updated: ts,
		},
	}
	m.secrets[name] = append(m.secrets[name], s)
	out := s
	out.Properties = s.Properties.Clone()
	return out
}

func (m *MemoryStore) tick() time.Time {
	m.clock = m.clock.Add(time.Second)
	return m.clock
}
