package scheduler

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
)

type blockingTicker struct {
	calls   atomic.Int32
	release chan struct{}
	entered chan struct{}
}

func (b *blockingTicker) Tick(ctx context.Context) error {
	b.calls.Add(1)
	b.entered <- struct{}{}
	<-b.release
	return nil
}

type countingTicker struct {
	mu    sync.Mutex
	calls int
	err   error
}

func (c *countingTicker) Tick(context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.calls++
	return c.err
}

func (c *countingTicker) count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.calls
}

type fakeLocker struct {
	mu       sync.Mutex
	held     bool
	acquired int
	released int
}

func (f *fakeLocker) Acquire(context.Context, time.Duration) (string, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.held {
		return "", false, nil
	}
	f.held = true
	f.acquired++
	return "token", true, nil
}

func (f *fakeLocker) Release(_ context.Context, token string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if token == "token" {
		f.held = false
		f.released++
	}
	return nil
}

func TestTicksNeverOverlap(t *testing.T) {
	bt := &blockingTicker{release: make(chan struct{}), entered: make(chan struct{}, 1)}
	l := New(bt, time.Minute, nil, zerolog.Nop())
	ctx := context.Background()

	done := make(chan bool)
	go func() { done <- l.RunOnce(ctx) }()
	<-bt.entered

	// 上一次仍在执行
	require.False(t, l.RunOnce(ctx))
	l.launch(ctx)

	close(bt.release)
	require.True(t, <-done)
	require.Equal(t, int32(1), bt.calls.Load())

	// 释放后可以再次执行
	go func() { <-bt.entered }()
	require.True(t, l.RunOnce(ctx))
	require.Equal(t, int32(2), bt.calls.Load())
}

func TestFailingTickKeepsLoopAlive(t *testing.T) {
	ct := &countingTicker{err: errors.New("catalog down")}
	l := New(ct, 10*time.Millisecond, nil, zerolog.Nop())

	ctx, cancel := context.WithCancel(context.Background())
	finished := make(chan struct{})
	go func() {
		l.Run(ctx)
		close(finished)
	}()

	require.Eventually(t, func() bool { return ct.count() >= 3 }, 2*time.Second, 5*time.Millisecond)
	cancel()
	select {
	case <-finished:
	case <-time.After(2 * time.Second):
		t.Fatal("loop did not stop after cancel")
	}
}

func TestLockedTickSkipped(t *testing.T) {
	ct := &countingTicker{}
	lock := &fakeLocker{}
	l := New(ct, time.Minute, lock, zerolog.Nop())

	require.True(t, l.RunOnce(context.Background()))
	require.Equal(t, 1, ct.count())
	require.Equal(t, 1, lock.released)

	// 另一副本持有锁
	lock.held = true
	require.True(t, l.RunOnce(context.Background()))
	require.Equal(t, 1, ct.count())
}
