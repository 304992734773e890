package server

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

type blockingServer struct {
	stopped atomic.Bool
}

func (s *blockingServer) Start(ctx context.Context) error {
	<-ctx.Done()
	s.stopped.Store(true)
	return nil
}

type failingServer struct{ err error }

func (s failingServer) Start(context.Context) error { return s.err }

func TestManagerStopsAllOnFailure(t *testing.T) {
	a, b := &blockingServer{}, &blockingServer{}
	boom := errors.New("listen: address in use")

	m := NewManager(a, b)
	m.Add(failingServer{err: boom})

	err := m.Start(context.Background())
	assert.ErrorIs(t, err, boom)
	assert.True(t, a.stopped.Load())
	assert.True(t, b.stopped.Load())
}

func TestManagerStopsOnCancel(t *testing.T) {
	a := &blockingServer{}
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan error, 1)
	go func() { done <- NewManager(a).Start(ctx) }()
	cancel()

	select {
	case err := <-done:
		assert.NoError(t, err)
		assert.True(t, a.stopped.Load())
	case <-time.After(2 * time.Second):
		t.Fatal("manager did not stop")
	}
}
