package secure

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValueRoundTrip(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name  string
		input string
	}{
		{name: "plain password", input: "my-secret-password"},
		{name: "empty value", input: ""},
		{name: "unicode", input: "pässwörd-🔑"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			v := NewValue(tt.input)
			defer v.Destroy()

			got, err := v.String()
			require.NoError(t, err)
			assert.Equal(t, tt.input, got)
			assert.Equal(t, len(tt.input), v.Len())
		})
	}
}

func TestValueEqual(t *testing.T) {
	t.Parallel()

	v := NewValue("p1")
	defer v.Destroy()

	assert.True(t, v.Equal("p1"))
	assert.False(t, v.Equal("p2"))
	assert.False(t, v.Equal(""))
	assert.False(t, v.Equal("p1 "))

	empty := NewValue("")
	assert.True(t, empty.Equal(""))
	assert.False(t, empty.Equal("x"))
}

func TestValueDestroy(t *testing.T) {
	t.Parallel()

	v := NewValue("secret-to-destroy")
	v.Destroy()
	v.Destroy()

	got, err := v.String()
	require.NoError(t, err)
	assert.Empty(t, got)
	assert.Equal(t, 0, v.Len())
	assert.False(t, v.Equal("secret-to-destroy"))
}

func TestValueConcurrentAccess(t *testing.T) {
	t.Parallel()

	v := NewValue("concurrent-secret")
	defer v.Destroy()

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			got, err := v.String()
			assert.NoError(t, err)
			assert.Equal(t, "concurrent-secret", got)
		}()
	}
	wg.Wait()
}
