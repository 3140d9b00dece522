package routine

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestManagerRunAndShutdown(t *testing.T) {
	m := NewManager(context.Background())

	started := make(chan struct{})
	done := make(chan struct{})

	err := m.RunTask(&Task{
		ID: "kol-1",
		Handler: func(ctx context.Context) error {
			close(started)
			<-ctx.Done()
			return ctx.Err()
		},
		OnDone: func(string) { close(done) },
	})
	require.NoError(t, err)

	<-started
	require.NoError(t, m.Shutdown("kol-1"))
	<-done
}

func TestManagerDuplicateID(t *testing.T) {
	m := NewManager(context.Background())
	block := make(chan struct{})
	defer close(block)

	require.NoError(t, m.Run("kol-1", func(ctx context.Context) error {
		<-block
		return nil
	}))

	err := m.Run("kol-1", func(ctx context.Context) error { return nil })
	assert.ErrorIs(t, err, ErrRoutineExists)
}

func TestManagerShutdownAll(t *testing.T) {
	m := NewManager(context.Background())
	for _, id := range []string{"a", "b", "c"} {
		require.NoError(t, m.Run(id, func(ctx context.Context) error {
			<-ctx.Done()
			return ctx.Err()
		}))
	}

	doneCh := make(chan error, 1)
	go func() { doneCh <- m.ShutdownAll() }()

	select {
	case err := <-doneCh:
		require.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("ShutdownAll did not return in time")
	}
}

func TestManagerErrorHook(t *testing.T) {
	m := NewManager(context.Background())
	errCh := make(chan error, 1)
	wantErr := errors.New("boom")

	require.NoError(t, m.RunTask(&Task{
		ID:      "failing",
		Handler: func(ctx context.Context) error { return wantErr },
		OnError: func(id string, err error) { errCh <- err },
	}))

	select {
	case err := <-errCh:
		assert.ErrorIs(t, err, wantErr)
	case <-time.After(time.Second):
		t.Fatal("OnError was not invoked")
	}
}
