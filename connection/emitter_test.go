package connection

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestEmitter_OnAndEmit(t *testing.T) {
	e := NewEmitter()

	var got []any
	e.On("ping", func(data any) {
		got = append(got, data)
	})

	e.Emit("ping", 1)
	e.Emit("pong", 2)
	e.Emit("ping", 3)

	assert.Equal(t, []any{1, 3}, got)
}

func TestEmitter_Unsubscribe(t *testing.T) {
	e := NewEmitter()

	calls := 0
	off := e.On("ping", func(any) { calls++ })

	e.Emit("ping", nil)
	off()
	e.Emit("ping", nil)

	// Repeated unsubscribe is a no-op
	off()
	e.Emit("ping", nil)

	assert.Equal(t, 1, calls)
}

func TestEmitter_UnsubscribeRemovesOnlyItsHandler(t *testing.T) {
	e := NewEmitter()

	var first, second int
	offFirst := e.On("ping", func(any) { first++ })
	e.On("ping", func(any) { second++ })

	offFirst()
	e.Emit("ping", nil)

	assert.Equal(t, 0, first)
	assert.Equal(t, 1, second)
}

func TestEmitter_RemoveAllListeners(t *testing.T) {
	e := NewEmitter()

	calls := 0
	e.On("ping", func(any) { calls++ })
	e.On("pong", func(any) { calls++ })

	e.RemoveAllListeners()
	e.Emit("ping", nil)
	e.Emit("pong", nil)

	assert.Equal(t, 0, calls)
	assert.Equal(t, 0, e.ListenerCount("ping"))
}
