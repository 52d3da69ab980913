package ranking

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRegistryPutReturnsPrevious(t *testing.T) {
	r := NewRegistry()

	first := newSession("c1", testItems(), 30)
	assert.Nil(t, r.Put("c1", first))
	assert.Equal(t, 1, r.Len())

	second := newSession("c1", testItems(), 30)
	prev := r.Put("c1", second)
	assert.Same(t, first, prev)
	assert.Equal(t, 1, r.Len())

	got, ok := r.Get("c1")
	assert.True(t, ok)
	assert.Same(t, second, got)
}

func TestRegistryRetire(t *testing.T) {
	r := NewRegistry()
	r.Put("c1", newSession("c1", nil, 30))
	r.Put("c2", newSession("c2", nil, 30))

	r.Retire("c1", 7)
	_, ok := r.Get("c1")
	assert.False(t, ok)
	_, ok = r.Get("c2")
	assert.True(t, ok)
	assert.Equal(t, 1, r.Len())
	assert.Equal(t, uint64(7), r.RetiredGeneration("c1"))

	// Retiring an absent conversation is harmless, and a lower generation
	// never lowers the recorded floor.
	r.Retire("c1", 3)
	assert.Equal(t, uint64(7), r.RetiredGeneration("c1"))

	assert.Zero(t, r.RetiredGeneration("never-seen"))
}
