package secretstore

import (
	"context"
	"sort"
	"time"
)

// Store is the capability set knox requires from a remote secret store.
//
// Implementations are not required to be safe for concurrent use; the vault
// client serialises calls per store.
type Store interface {
	// Name returns the vault name this store instance serves.
	Name() string

	// ListProperties returns metadata for every secret in the vault.
	//
	// Backends may leave Properties.Version empty; callers that need a
	// version must fetch the secret.
	ListProperties(ctx context.Context) ([]Properties, error)

	// GetSecret fetches the current version of a secret including its value.
	//
	// Returns NotFoundError when no secret with that name exists.
	GetSecret(ctx context.Context, name string) (Secret, error)

	// SetSecret writes value under name.
	//
	// If the secret does not exist it is created; otherwise a new version is
	// cut. The returned secret carries the new version identifier. Tags are
	// not set by this call.
	SetSecret(ctx context.Context, name, value string) (Secret, error)

	// UpdateProperties replaces the tags, content type and enabled flag of
	// the version named by props.Version (the current version when empty).
	//
	// The tag set is replaced, not merged.
	UpdateProperties(ctx context.Context, props Properties) (Properties, error)

	// DeleteSecret soft-deletes a secret. Purging is never attempted.
	DeleteSecret(ctx context.Context, name string) error
}

// Validator is implemented by stores that can check connectivity and
// credentials without touching any secret.
type Validator interface {
	Validate(ctx context.Context) error
}

// Properties is the metadata of one secret version.
type Properties struct {
	// Name is the real secret name used for every API call. Unique within a
	// vault, compared case-insensitively.
	Name string

	// Version identifies the version these properties belong to. Empty when
	// the properties came from a bulk listing.
	Version string

	// Tags are free-form name/value pairs. Folder and DisplayName are
	// reserved; see the Tag constants.
	Tags map[string]string

	ContentType string
	Enabled     bool
	Created     time.Time
	Updated     time.Time
}

// Clone returns a deep copy of the properties.
func (p Properties) Clone() Properties {
	c := p
	if p.Tags != nil {
		c.Tags = make(map[string]string, len(p.Tags))
		for k, v := range p.Tags {
			c.Tags[k] = v
		}
	}
	return c
}

// Tag returns the value of a tag and whether it is present.
func (p Properties) Tag(name string) (string, bool) {
	v, ok := p.Tags[name]
	return v, ok
}

// SortedTags returns the tags as a list ordered by tag name.
func (p Properties) SortedTags() []Tag {
	tags := make([]Tag, 0, len(p.Tags))
	for k, v := range p.Tags {
		tags = append(tags, Tag{Name: k, Value: v})
	}
	sort.Slice(tags, func(i, j int) bool { return tags[i].Name < tags[j].Name })
	return tags
}

// Secret is a secret value together with its properties. It is only
// materialised on demand and never cached in bulk.
type Secret struct {
	Name       string
	Value      string
	Properties Properties
}

// Tag is one name/value pair in an ordered tag list.
type Tag struct {
	Name  string
	Value string
}

// Reserved tag names that drive the folder projection instead of being
// shown as free-form tags.
const (
	// TagFolder holds a slash or backslash delimited virtual folder path.
	TagFolder = "Folder"
	// TagDisplayName overrides the label shown for a secret.
	TagDisplayName = "DisplayName"
	// RootFolder is the Folder value used for secrets at the vault root.
	RootFolder = "/"
)

// IsReservedTag reports whether name is one of the reserved tag names.
func IsReservedTag(name string) bool {
	return name == TagFolder || name == TagDisplayName
}

// TagsToMap converts an ordered tag list to a map. Later entries win.
func TagsToMap(tags []Tag) map[string]string {
	m := make(map[string]string, len(tags))
	for _, t := range tags {
		m[t.Name] = t.Value
	}
	return m
}
