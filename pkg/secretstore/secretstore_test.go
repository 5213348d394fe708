package secretstore

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestPropertiesClone(t *testing.T) {
	t.Parallel()

	p := Properties{Name: "db", Tags: map[string]string{"Folder": "/A"}}
	c := p.Clone()
	c.Tags["Folder"] = "/B"

	assert.Equal(t, "/A", p.Tags["Folder"])
	assert.Equal(t, "/B", c.Tags["Folder"])
}

func TestPropertiesSortedTags(t *testing.T) {
	t.Parallel()

	p := Properties{Tags: map[string]string{"b": "2", "a": "1", "c": "3"}}
	assert.Equal(t, []Tag{{"a", "1"}, {"b", "2"}, {"c", "3"}}, p.SortedTags())
}

func TestTagsToMapLaterWins(t *testing.T) {
	t.Parallel()

	m := TagsToMap([]Tag{{"Folder", "/A"}, {"env", "prod"}, {"Folder", "/B"}})
	assert.Equal(t, map[string]string{"Folder": "/B", "env": "prod"}, m)
}

func TestIsReservedTag(t *testing.T) {
	t.Parallel()

	assert.True(t, IsReservedTag(TagFolder))
	assert.True(t, IsReservedTag(TagDisplayName))
	assert.False(t, IsReservedTag("folder"))
	assert.False(t, IsReservedTag("owner"))
}

func TestErrorKinds(t *testing.T) {
	t.Parallel()

	raw := errors.New("boom")
	tests := []struct {
		name string
		err  error
		kind string
	}{
		{"nil", nil, "ok"},
		{"not found", NotFoundError{Store: "kv", Name: "x", Err: raw}, "not_found"},
		{"wrapped not found", fmt.Errorf("ctx: %w", NotFoundError{Store: "kv", Name: "x"}), "not_found"},
		{"conflict", ConflictError{Store: "kv", Name: "x"}, "conflict"},
		{"auth", AuthError{Store: "kv", Err: raw}, "auth"},
		{"remote", RemoteError{Store: "kv", Op: "list", Err: raw}, "remote"},
		{"plain", raw, "error"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.kind, Kind(tt.err))
		})
	}
}

func TestErrorsKeepRawMessage(t *testing.T) {
	t.Parallel()

	raw := errors.New("SecretNotFound: (404)")
	err := NotFoundError{Store: "kv", Name: "db", Err: raw}

	assert.Contains(t, err.Error(), "SecretNotFound: (404)")
	assert.ErrorIs(t, err, raw)
	assert.Equal(t, "vault not found: kv", NotFoundError{Store: "kv"}.Error())
}
