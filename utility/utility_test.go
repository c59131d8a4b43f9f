package utility

import (
	"context"
	"errors"
	"os"
	"syscall"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWaitFirstError(t *testing.T) {
	t.Run("all_closed", func(t *testing.T) {
		a, b := make(chan error), make(chan error)
		close(a)
		close(b)
		assert.NoError(t, WaitFirstError(a, b))
	})

	t.Run("first_error_is_returned", func(t *testing.T) {
		a, b := make(chan error), make(chan error, 1)
		firstErr := errors.New("fetch failed")
		b <- firstErr
		assert.Equal(t, firstErr, WaitFirstError(a, b))
	})

	t.Run("nil_values_are_skipped", func(t *testing.T) {
		a := make(chan error, 2)
		a <- nil
		close(a)
		assert.NoError(t, WaitFirstError(a))
	})

	t.Run("no_channels", func(t *testing.T) {
		assert.NoError(t, WaitFirstError())
	})
}

func TestResetTimer(t *testing.T) {
	timer := time.NewTimer(time.Millisecond)
	time.Sleep(5 * time.Millisecond)
	ResetTimer(timer, time.Hour)

	select {
	case <-timer.C:
		t.Fatal("expired tick must be drained")
	case <-time.After(10 * time.Millisecond):
	}
	ResetTimer(timer, time.Millisecond)
	select {
	case <-timer.C:
	case <-time.After(time.Second):
		t.Fatal("timer was not reset")
	}
}

func TestSignalHandler(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	sh := NewSignalHandler(ctx, cancel, []os.Signal{syscall.SIGUSR1})
	defer func() { _ = sh.Close() }()

	require.NoError(t, syscall.Kill(os.Getpid(), syscall.SIGUSR1))
	select {
	case <-ctx.Done():
	case <-time.After(time.Second):
		t.Fatal("context is not canceled by signal")
	}
}

type closerFunc func() error

func (f closerFunc) Close() error {
	return f()
}

func TestLoggedClose(t *testing.T) {
	closed := false
	LoggedClose(closerFunc(func() error { closed = true; return errors.New("closed twice") }), "")
	assert.True(t, closed)
}
