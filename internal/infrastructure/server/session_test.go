package server

import (
	"fmt"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSessionRegistry_GetOrCreate(t *testing.T) {
	reg := NewSessionRegistry(10, clockwork.NewFakeClock())

	id, sess := reg.GetOrCreate("")
	assert.NotEmpty(t, id)
	assert.Equal(t, id, sess.ID)
	assert.False(t, sess.Initialized)

	// The same id resolves to the same session.
	again, _ := reg.GetOrCreate(id)
	assert.Equal(t, id, again)
	assert.Equal(t, 1, reg.Len())

	// A client-supplied unknown id is adopted as-is.
	supplied, sess := reg.GetOrCreate("client-chosen")
	assert.Equal(t, "client-chosen", supplied)
	assert.Equal(t, "client-chosen", sess.ID)
	assert.Equal(t, 2, reg.Len())
}

func TestSessionRegistry_MarkInitialized(t *testing.T) {
	reg := NewSessionRegistry(10, clockwork.NewFakeClock())

	id, _ := reg.GetOrCreate("")
	reg.MarkInitialized(id)

	sess, ok := reg.Get(id)
	require.True(t, ok)
	assert.True(t, sess.Initialized)

	_, ok = reg.Get("missing")
	assert.False(t, ok)
}

func TestSessionRegistry_Touch(t *testing.T) {
	clock := clockwork.NewFakeClock()
	reg := NewSessionRegistry(10, clock)

	id, created := reg.GetOrCreate("")
	clock.Advance(5 * time.Minute)
	reg.Touch(id)

	sess, ok := reg.Get(id)
	require.True(t, ok)
	assert.True(t, sess.LastActivity.After(created.LastActivity))
}

func TestSessionRegistry_EvictsOldestInserted(t *testing.T) {
	clock := clockwork.NewFakeClock()
	reg := NewSessionRegistry(3, clock)

	for i := 0; i < 3; i++ {
		reg.GetOrCreate(fmt.Sprintf("s%d", i))
	}

	// Refreshing s0 does not protect it: eviction is by insertion order.
	reg.GetOrCreate("s0")
	reg.GetOrCreate("s3")

	assert.Equal(t, 3, reg.Len())
	_, ok := reg.Get("s0")
	assert.False(t, ok)
	_, ok = reg.Get("s1")
	assert.True(t, ok)
	_, ok = reg.Get("s3")
	assert.True(t, ok)
}

func TestSessionRegistry_DefaultCapacity(t *testing.T) {
	reg := NewSessionRegistry(0, clockwork.NewFakeClock())

	for i := 0; i < DefaultSessionCapacity+5; i++ {
		reg.GetOrCreate(fmt.Sprintf("s%d", i))
	}
	assert.Equal(t, DefaultSessionCapacity, reg.Len())
}
