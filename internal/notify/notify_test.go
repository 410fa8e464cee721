package notify

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRegistry_NotifyOnline(t *testing.T) {
	r := NewRegistry()
	ch := make(chan string, 1)
	r.Register("alice", ch)

	assert.True(t, r.Notify("alice", "you were outbid"))
	assert.Equal(t, "you were outbid", <-ch)
}

func TestRegistry_NotifyOffline(t *testing.T) {
	r := NewRegistry()
	assert.False(t, r.Notify("alice", "hello"))
}

func TestRegistry_SlowReceiverDropsEvent(t *testing.T) {
	r := NewRegistry()
	ch := make(chan string, 1)
	r.Register("alice", ch)

	assert.True(t, r.Notify("alice", "first"))
	// The buffer is full; dispatch must not block.
	assert.False(t, r.Notify("alice", "second"))
	assert.Equal(t, "first", <-ch)
}

func TestRegistry_SecondLoginDisplacesFirst(t *testing.T) {
	r := NewRegistry()
	first := make(chan string, 1)
	second := make(chan string, 1)
	r.Register("alice", first)
	r.Register("alice", second)

	assert.True(t, r.Notify("alice", "hello"))
	assert.Equal(t, "hello", <-second)
	assert.Empty(t, first)
}

func TestRegistry_DisplacedSessionCannotUnregisterSuccessor(t *testing.T) {
	r := NewRegistry()
	first := make(chan string, 1)
	second := make(chan string, 1)
	r.Register("alice", first)
	r.Register("alice", second)

	// The displaced session disconnects and cleans up after itself.
	r.Unregister("alice", first)
	assert.True(t, r.Notify("alice", "still here"))

	r.Unregister("alice", second)
	assert.False(t, r.Notify("alice", "gone"))
}
