package store

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/boardstack/boardstack/database"
)

// countingBackend counts aggregations so debounce behavior is observable.
type countingBackend struct {
	*MemoryBackend
	reads atomic.Int32
}

func (c *countingBackend) VisibleBoards(ctx context.Context, userID string) ([]database.Board, error) {
	c.reads.Add(1)
	return c.MemoryBackend.VisibleBoards(ctx, userID)
}

// flakySubscribeBackend fails the first subscribe attempts to exercise the
// listener's resubscription backoff.
type flakySubscribeBackend struct {
	*MemoryBackend
	failures atomic.Int32
}

func (f *flakySubscribeBackend) Subscribe(ctx context.Context, userID string) (<-chan database.ChangeEvent, func(), error) {
	if f.failures.Add(-1) >= 0 {
		return nil, nil, errors.New("stream unavailable")
	}
	return f.MemoryBackend.Subscribe(ctx, userID)
}

// droppableBackend lets a test sever the active event stream.
type droppableBackend struct {
	*MemoryBackend
	mu         sync.Mutex
	cancelLast func()
}

func (d *droppableBackend) Subscribe(ctx context.Context, userID string) (<-chan database.ChangeEvent, func(), error) {
	events, cancel, err := d.MemoryBackend.Subscribe(ctx, userID)
	d.mu.Lock()
	d.cancelLast = cancel
	d.mu.Unlock()
	return events, cancel, err
}

func (d *droppableBackend) drop() {
	d.mu.Lock()
	cancel := d.cancelLast
	d.mu.Unlock()
	if cancel != nil {
		cancel()
	}
}

func waitFor(t *testing.T, timeout time.Duration, cond func() bool) bool {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return true
		}
		time.Sleep(5 * time.Millisecond)
	}
	return cond()
}

func TestListenerRefetchesOnChange(t *testing.T) {
	backend := NewMemoryBackend()
	s := NewStore(backend, "user-1")
	if err := s.Load(context.Background()); err != nil {
		t.Fatalf("Load: %v", err)
	}

	l := NewListener(s)
	l.debounce = 10 * time.Millisecond
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	l.Start(ctx)
	defer l.Close()

	if !waitFor(t, 2*time.Second, func() bool { return l.State() == Active }) {
		t.Fatalf("listener never became active, state %v", l.State())
	}

	// A change made by another session reaches this store's tree.
	if _, err := backend.CreateBoard(context.Background(), "user-1", "From elsewhere", ""); err != nil {
		t.Fatalf("CreateBoard: %v", err)
	}
	if !waitFor(t, 2*time.Second, func() bool { return len(s.Boards()) == 1 }) {
		t.Fatal("change event never reconciled into the tree")
	}
}

func TestListenerDebouncesBursts(t *testing.T) {
	backend := &countingBackend{MemoryBackend: NewMemoryBackend()}
	s := NewStore(backend, "user-1")
	if err := s.Load(context.Background()); err != nil {
		t.Fatalf("Load: %v", err)
	}
	board, err := backend.CreateBoard(context.Background(), "user-1", "Busy", "")
	if err != nil {
		t.Fatalf("CreateBoard: %v", err)
	}

	l := NewListener(s)
	l.debounce = 50 * time.Millisecond
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	l.Start(ctx)
	defer l.Close()

	if !waitFor(t, 2*time.Second, func() bool { return l.State() == Active }) {
		t.Fatalf("listener never became active, state %v", l.State())
	}
	backend.reads.Store(0)

	// A burst well inside one debounce window.
	title := "Renamed"
	for i := 0; i < 5; i++ {
		if _, err := backend.UpdateBoard(context.Background(), "user-1", board.ID, database.BoardPatch{Title: &title}); err != nil {
			t.Fatalf("UpdateBoard: %v", err)
		}
	}

	if !waitFor(t, 2*time.Second, func() bool { return backend.reads.Load() >= 1 }) {
		t.Fatal("burst never triggered a refetch")
	}
	time.Sleep(150 * time.Millisecond)
	if n := backend.reads.Load(); n > 2 {
		t.Errorf("burst of 5 events caused %d refetches, want the burst collapsed", n)
	}
	if got := s.Boards()[0].Title; got != "Renamed" {
		t.Errorf("tree title = %q after reconciliation, want Renamed", got)
	}
}

func TestListenerResubscribesAfterFailure(t *testing.T) {
	backend := &flakySubscribeBackend{MemoryBackend: NewMemoryBackend()}
	backend.failures.Store(1)
	s := NewStore(backend, "user-1")
	if err := s.Load(context.Background()); err != nil {
		t.Fatalf("Load: %v", err)
	}

	l := NewListener(s)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	l.Start(ctx)
	defer l.Close()

	// First attempt fails; the listener retries after the base backoff.
	if !waitFor(t, 5*time.Second, func() bool { return l.State() == Active }) {
		t.Fatalf("listener never recovered, state %v", l.State())
	}
}

func TestListenerFlushesPendingRefetchOnStreamDrop(t *testing.T) {
	backend := &droppableBackend{MemoryBackend: NewMemoryBackend()}
	s := NewStore(backend, "user-1")
	if err := s.Load(context.Background()); err != nil {
		t.Fatalf("Load: %v", err)
	}

	l := NewListener(s)
	l.debounce = 200 * time.Millisecond
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	l.Start(ctx)
	defer l.Close()

	if !waitFor(t, 2*time.Second, func() bool { return l.State() == Active }) {
		t.Fatalf("listener never became active, state %v", l.State())
	}

	// The stream drops inside the debounce window, before the scheduled
	// refetch fires.
	if _, err := backend.CreateBoard(context.Background(), "user-1", "Just in time", ""); err != nil {
		t.Fatalf("CreateBoard: %v", err)
	}
	time.Sleep(20 * time.Millisecond)
	backend.drop()

	if !waitFor(t, 2*time.Second, func() bool { return len(s.Boards()) == 1 }) {
		t.Fatal("change delivered before the drop never reached the tree")
	}
}

func TestListenerRefetchesAfterResubscribe(t *testing.T) {
	backend := &droppableBackend{MemoryBackend: NewMemoryBackend()}
	s := NewStore(backend, "user-1")
	if err := s.Load(context.Background()); err != nil {
		t.Fatalf("Load: %v", err)
	}

	l := NewListener(s)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	l.Start(ctx)
	defer l.Close()

	if !waitFor(t, 2*time.Second, func() bool { return l.State() == Active }) {
		t.Fatalf("listener never became active, state %v", l.State())
	}

	// Sever the stream, then change state while no subscription exists.
	backend.drop()
	if _, err := backend.CreateBoard(context.Background(), "user-1", "Made offline", ""); err != nil {
		t.Fatalf("CreateBoard: %v", err)
	}

	// The resubscribe resynchronizes even though the event was never seen.
	if !waitFor(t, 5*time.Second, func() bool { return len(s.Boards()) == 1 }) {
		t.Fatal("change made while disconnected never reached the tree")
	}
}

func TestCloseBeforeStartIsNoOp(t *testing.T) {
	backend := NewMemoryBackend()
	s := NewStore(backend, "user-1")

	l := NewListener(s)
	done := make(chan struct{})
	go func() {
		l.Close()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Close before Start blocked")
	}
	if l.State() != Unsubscribed {
		t.Errorf("state = %v, want unsubscribed", l.State())
	}
}

func TestListenerCloseTearsDownSubscription(t *testing.T) {
	backend := NewMemoryBackend()
	s := NewStore(backend, "user-1")
	if err := s.Load(context.Background()); err != nil {
		t.Fatalf("Load: %v", err)
	}

	l := NewListener(s)
	l.Start(context.Background())
	if !waitFor(t, 2*time.Second, func() bool { return l.State() == Active }) {
		t.Fatalf("listener never became active, state %v", l.State())
	}

	l.Close()
	if l.State() != Unsubscribed {
		t.Errorf("state after Close = %v, want unsubscribed", l.State())
	}

	backend.mu.Lock()
	remaining := len(backend.subs)
	backend.mu.Unlock()
	if remaining != 0 {
		t.Errorf("%d subscriptions outlived the listener", remaining)
	}
}
