// Package vault wraps one remote secret store with a local cache of secret
// properties.
//
// A Client lists the vault once when it is created and afterwards keeps the
// cache in step with its own writes: an entry changes only after the remote
// call that changes it succeeds. Secret values are never cached; GetSecret
// always goes to the store.
//
// Names are matched case-insensitively, as Key Vault does, and the cache
// keeps the order in which the store listed the secrets so that views built
// on it are stable.
//
// Calls on one Client are serialised: at most one remote operation per
// vault is in flight at any time.
package vault

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/systmms/knox/internal/logging"
	"github.com/systmms/knox/internal/metrics"
	"github.com/systmms/knox/pkg/secretstore"
)

// Client is the cached view of one vault.
type Client struct {
	mu      sync.Mutex
	store   secretstore.Store
	logger  *logging.Logger
	metrics *metrics.VaultMetrics

	order []string
	props map[string]secretstore.Properties
}

// Option configures a Client.
type Option func(*Client)

// WithLogger sets the logger used for debug output.
func WithLogger(l *logging.Logger) Option {
	return func(c *Client) { c.logger = l }
}

// WithMetrics records every remote call in m.
func WithMetrics(m *metrics.VaultMetrics) Option {
	return func(c *Client) { c.metrics = m }
}

// New lists the store and returns a Client with a filled cache.
func New(ctx context.Context, store secretstore.Store, opts ...Option) (*Client, error) {
	c := &Client{
		store:  store,
		logger: logging.Discard(),
		props:  make(map[string]secretstore.Properties),
	}
	for _, opt := range opts {
		opt(c)
	}

	if err := c.Refresh(ctx); err != nil {
		return nil, err
	}
	return c, nil
}

// Name returns the vault name.
func (c *Client) Name() string {
	return c.store.Name()
}

// Store returns the underlying store.
func (c *Client) Store() secretstore.Store {
	return c.store
}

// Refresh replaces the cache with a fresh listing.
func (c *Client) Refresh(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	var listed []secretstore.Properties
	err := c.observe("list", func() error {
		var err error
		listed, err = c.store.ListProperties(ctx)
		return err
	})
	if err != nil {
		return err
	}

	c.order = c.order[:0]
	c.props = make(map[string]secretstore.Properties, len(listed))
	for _, p := range listed {
		c.put(p)
	}
	c.metrics.SetCached(c.Name(), len(c.order))
	c.logger.Debug("Cached %d secrets for %s", len(c.order), c.Name())
	return nil
}

// GetSecret fetches name from the store. The cache only supplies the
// stored spelling of name and is not updated.
func (c *Client) GetSecret(ctx context.Context, name string) (secretstore.Secret, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	name = c.storeName(name)
	var sec secretstore.Secret
	err := c.observe("get", func() error {
		var err error
		sec, err = c.store.GetSecret(ctx, name)
		return err
	})
	return sec, err
}

// PropertiesWithVersion returns the cached properties of name. Listings
// carry no version, so the first call for a secret fetches it and
// backfills the cache.
func (c *Client) PropertiesWithVersion(ctx context.Context, name string) (secretstore.Properties, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	p, ok := c.props[key(name)]
	if !ok {
		return secretstore.Properties{}, secretstore.NotFoundError{Store: c.Name(), Name: name}
	}
	if p.Version != "" {
		return p.Clone(), nil
	}

	var sec secretstore.Secret
	err := c.observe("get", func() error {
		var err error
		sec, err = c.store.GetSecret(ctx, p.Name)
		return err
	})
	if err != nil {
		return secretstore.Properties{}, err
	}
	c.put(sec.Properties)
	return sec.Properties.Clone(), nil
}

// CreateSecret writes name with value. There is no existence check: on
// Key Vault an existing name gets a new version.
func (c *Client) CreateSecret(ctx context.Context, name, value string) (secretstore.Secret, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.create(ctx, name, value)
}

// CloneTo creates newName in this vault with the value of from and then
// copies its tags, content type and enabled flag.
func (c *Client) CloneTo(ctx context.Context, from secretstore.Secret, newName string) (secretstore.Secret, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	created, err := c.create(ctx, newName, from.Value)
	if err != nil {
		return secretstore.Secret{}, err
	}

	props := from.Properties.Clone()
	props.Name = created.Properties.Name
	props.Version = created.Properties.Version
	updated, err := c.updateProperties(ctx, props)
	if err != nil {
		return created, err
	}
	created.Properties = updated
	return created, nil
}

// DeleteSecret soft-deletes name and evicts it from the cache.
func (c *Client) DeleteSecret(ctx context.Context, name string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	name = c.storeName(name)
	err := c.observe("delete", func() error {
		return c.store.DeleteSecret(ctx, name)
	})
	if err != nil {
		return err
	}
	c.evict(name)
	return nil
}

// UpdateSecret applies an edit. When updatePassword is set a new version is
// written and given the previous version's properties. The tag set of the
// current version is then replaced with tags. An empty tag set is sent as
// the root Folder tag, since Key Vault ignores updates with no tags.
func (c *Client) UpdateSecret(ctx context.Context, name string, updatePassword bool, newPassword string, tags []secretstore.Tag) (secretstore.Properties, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	name = c.storeName(name)
	var current secretstore.Secret
	err := c.observe("get", func() error {
		var err error
		current, err = c.store.GetSecret(ctx, name)
		return err
	})
	if err != nil {
		return secretstore.Properties{}, err
	}
	target := current.Properties.Clone()

	if updatePassword {
		var created secretstore.Secret
		err := c.observe("set", func() error {
			var err error
			created, err = c.store.SetSecret(ctx, current.Name, newPassword)
			return err
		})
		if err != nil {
			return secretstore.Properties{}, err
		}
		c.put(created.Properties)

		carried := current.Properties.Clone()
		carried.Name = created.Properties.Name
		carried.Version = created.Properties.Version
		target, err = c.updateProperties(ctx, carried)
		if err != nil {
			return secretstore.Properties{}, err
		}
	}

	if len(tags) == 0 {
		tags = []secretstore.Tag{{Name: secretstore.TagFolder, Value: secretstore.RootFolder}}
	}
	target.Tags = secretstore.TagsToMap(tags)

	return c.updateProperties(ctx, target)
}

// Properties returns a snapshot of the cache in listing order.
func (c *Client) Properties() []secretstore.Properties {
	c.mu.Lock()
	defer c.mu.Unlock()

	out := make([]secretstore.Properties, 0, len(c.order))
	for _, k := range c.order {
		out = append(out, c.props[k].Clone())
	}
	return out
}

// Lookup returns the cached properties of name.
func (c *Client) Lookup(name string) (secretstore.Properties, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	p, ok := c.props[key(name)]
	if !ok {
		return secretstore.Properties{}, false
	}
	return p.Clone(), true
}

// Contains reports whether name is cached.
func (c *Client) Contains(name string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	_, ok := c.props[key(name)]
	return ok
}

// Len returns the number of cached secrets.
func (c *Client) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	return len(c.order)
}

func (c *Client) create(ctx context.Context, name, value string) (secretstore.Secret, error) {
	var created secretstore.Secret
	err := c.observe("set", func() error {
		var err error
		created, err = c.store.SetSecret(ctx, name, value)
		return err
	})
	if err != nil {
		return secretstore.Secret{}, err
	}
	c.put(created.Properties)
	c.metrics.SetCached(c.Name(), len(c.order))
	return created, nil
}

func (c *Client) updateProperties(ctx context.Context, props secretstore.Properties) (secretstore.Properties, error) {
	var updated secretstore.Properties
	err := c.observe("update", func() error {
		var err error
		updated, err = c.store.UpdateProperties(ctx, props)
		return err
	})
	if err != nil {
		return secretstore.Properties{}, err
	}
	if updated.Version == "" {
		updated.Version = props.Version
	}
	c.put(updated)
	return updated.Clone(), nil
}

// storeName returns the name as the store listed it, or name itself when
// it is not cached.
func (c *Client) storeName(name string) string {
	if p, ok := c.props[key(name)]; ok {
		return p.Name
	}
	return name
}

// put inserts or replaces an entry, keeping its position when it exists.
func (c *Client) put(p secretstore.Properties) {
	k := key(p.Name)
	if _, ok := c.props[k]; !ok {
		c.order = append(c.order, k)
	}
	c.props[k] = p.Clone()
}

func (c *Client) evict(name string) {
	k := key(name)
	if _, ok := c.props[k]; !ok {
		return
	}
	delete(c.props, k)
	for i, o := range c.order {
		if o == k {
			c.order = append(c.order[:i], c.order[i+1:]...)
			break
		}
	}
	c.metrics.SetCached(c.Name(), len(c.order))
}

func (c *Client) observe(op string, fn func() error) error {
	start := time.Now()
	err := fn()
	c.metrics.Observe(c.Name(), op, err, time.Since(start))
	if err != nil {
		c.logger.Debug("%s %s failed: %v", c.Name(), op, err)
	}
	return err
}

func key(name string) string {
	return strings.ToLower(name)
}
