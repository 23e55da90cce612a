package event

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEmitterDeliversInOrder(t *testing.T) {
	var e Emitter[int]
	var got []string

	e.On(func(v int) { got = append(got, "a") })
	e.On(func(v int) { got = append(got, "b") })
	e.Emit(1)

	assert.Equal(t, []string{"a", "b"}, got)
}

func TestEmitterOffIsIdempotent(t *testing.T) {
	var e Emitter[string]
	calls := 0
	off := e.On(func(string) { calls++ })

	e.Emit("x")
	off()
	off()
	e.Emit("y")

	assert.Equal(t, 1, calls)
	assert.Equal(t, 0, e.Len())
}

func TestEmitterOffDuringOwnCallback(t *testing.T) {
	var e Emitter[int]
	var off func()
	calls := 0
	off = e.On(func(int) {
		calls++
		off()
	})
	other := 0
	e.On(func(int) { other++ })

	e.Emit(1)
	e.Emit(2)

	assert.Equal(t, 1, calls)
	assert.Equal(t, 2, other)
}

func TestEmitterRemovalOfLaterHandlerSkipsIt(t *testing.T) {
	var e Emitter[int]
	var offB func()
	calledB := false

	e.On(func(int) { offB() })
	offB = e.On(func(int) { calledB = true })

	e.Emit(0)
	assert.False(t, calledB)
}

func TestEmitterOnce(t *testing.T) {
	var e Emitter[int]
	var got []int
	e.Once(func(v int) { got = append(got, v) })

	e.Emit(1)
	e.Emit(2)

	require.Len(t, got, 1)
	assert.Equal(t, 1, got[0])
}

func TestEmitterClear(t *testing.T) {
	var e Emitter[int]
	off := e.On(func(int) { t.Fatal("handler called after Clear") })
	e.Clear()
	e.Emit(1)
	off()
	assert.Equal(t, 0, e.Len())
}
