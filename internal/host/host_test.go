package host

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func start(t *testing.T) (*Host, context.CancelFunc) {
	t.Helper()
	h := New(120)
	ctx, cancel := context.WithCancel(context.Background())
	go h.Run(ctx)
	t.Cleanup(func() {
		cancel()
		<-h.Done()
	})
	return h, cancel
}

func TestCallRunsOnLoop(t *testing.T) {
	h, _ := start(t)

	counter := 0
	for i := 0; i < 10; i++ {
		require.NoError(t, h.Call(context.Background(), func() error {
			counter++
			return nil
		}))
	}
	assert.Equal(t, 10, counter)
}

func TestCallReturnsError(t *testing.T) {
	h, _ := start(t)
	want := errors.New("boom")

	err := h.Call(context.Background(), func() error { return want })
	assert.ErrorIs(t, err, want)
}

func TestCallSurvivesPanic(t *testing.T) {
	h, _ := start(t)

	err := h.Call(context.Background(), func() error { panic("bad") })
	require.Error(t, err)

	require.NoError(t, h.Call(context.Background(), func() error { return nil }))
}

func TestRequestFrameFiresOnTick(t *testing.T) {
	h, _ := start(t)
	fired := make(chan time.Time, 1)

	require.NoError(t, h.Do(func() {
		h.RequestFrame(func(now time.Time) { fired <- now })
	}))

	select {
	case now := <-fired:
		assert.False(t, now.IsZero())
	case <-time.After(2 * time.Second):
		t.Fatal("frame request never fired")
	}
}

func TestCancelledFrameDoesNotFire(t *testing.T) {
	h, _ := start(t)
	fired := make(chan struct{}, 1)

	require.NoError(t, h.Call(context.Background(), func() error {
		cancel := h.RequestFrame(func(time.Time) { fired <- struct{}{} })
		cancel()
		return nil
	}))

	select {
	case <-fired:
		t.Fatal("cancelled request fired")
	case <-time.After(100 * time.Millisecond):
	}
}

func TestDoAfterStop(t *testing.T) {
	h := New(60)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	require.ErrorIs(t, h.Run(ctx), context.Canceled)

	assert.ErrorIs(t, h.Do(func() {}), ErrStopped)
	assert.ErrorIs(t, h.Call(context.Background(), func() error { return nil }), ErrStopped)
}
