package store

import (
	"context"
	"log"
	"sync/atomic"
	"time"

	"github.com/boardstack/boardstack/database"
)

// ListenerState is the subscription lifecycle of the realtime listener.
type ListenerState int32

const (
	Unsubscribed ListenerState = iota
	Subscribing
	Active
)

func (s ListenerState) String() string {
	switch s {
	case Unsubscribed:
		return "unsubscribed"
	case Subscribing:
		return "subscribing"
	case Active:
		return "active"
	}
	return "unknown"
}

const (
	defaultDebounce = 100 * time.Millisecond
	backoffBase     = 500 * time.Millisecond
	backoffCap      = 30 * time.Second
)

// Listener keeps a store eventually consistent with concurrent changes from
// other sessions. Any change event schedules a debounced full re-aggregation
// which supersedes optimistic state; the listener never patches the tree
// incrementally. A dropped stream is resubscribed with exponential backoff.
type Listener struct {
	store    *Store
	debounce time.Duration
	state    atomic.Int32
	cancel   context.CancelFunc
	done     chan struct{}
}

// NewListener builds a listener for the store's session. Start must be
// called to begin receiving events.
func NewListener(s *Store) *Listener {
	return &Listener{
		store:    s,
		debounce: defaultDebounce,
		done:     make(chan struct{}),
	}
}

// State reports the subscription lifecycle state.
func (l *Listener) State() ListenerState {
	return ListenerState(l.state.Load())
}

// Start begins the subscribe/pump loop in its own goroutine. The listener
// stops when ctx is cancelled or Close is called; no subscription outlives
// its session.
func (l *Listener) Start(ctx context.Context) {
	ctx, l.cancel = context.WithCancel(ctx)
	go l.run(ctx)
}

// Close tears the subscription down and waits for the loop to exit. Closing
// a listener that was never started is a no-op.
func (l *Listener) Close() {
	if l.cancel == nil {
		return
	}
	l.cancel()
	<-l.done
}

func (l *Listener) run(ctx context.Context) {
	defer close(l.done)
	defer l.state.Store(int32(Unsubscribed))

	backoff := backoffBase
	first := true
	for {
		l.state.Store(int32(Subscribing))
		events, cancelSub, err := l.store.backend.Subscribe(ctx, l.store.userID)
		if err != nil {
			log.Printf("Realtime subscribe failed: %v", err)
			if !sleepCtx(ctx, backoff) {
				return
			}
			backoff = nextBackoff(backoff)
			continue
		}

		l.state.Store(int32(Active))
		backoff = backoffBase
		// Changes made while the stream was down left no events behind;
		// resynchronize before pumping the new stream.
		if !first {
			if err := l.store.Refetch(ctx); err != nil {
				log.Printf("Refetch after resubscribe failed: %v", err)
			}
		}
		first = false
		l.pump(ctx, events)
		cancelSub()

		if ctx.Err() != nil {
			return
		}
		// Stream dropped; resubscribe after a pause.
		if !sleepCtx(ctx, backoff) {
			return
		}
		backoff = nextBackoff(backoff)
	}
}

// pump drains change events, collapsing bursts into one refetch per
// debounce window. Returns when the stream closes or ctx is done.
func (l *Listener) pump(ctx context.Context, events <-chan database.ChangeEvent) {
	timer := time.NewTimer(l.debounce)
	if !timer.Stop() {
		<-timer.C
	}
	defer timer.Stop()

	pending := false
	for {
		select {
		case <-ctx.Done():
			return
		case _, ok := <-events:
			if !ok {
				// A refetch still owed when the stream drops must not be
				// lost with it.
				if pending {
					if err := l.store.Refetch(ctx); err != nil {
						log.Printf("Refetch after change event failed: %v", err)
					}
				}
				return
			}
			if pending && !timer.Stop() {
				select {
				case <-timer.C:
				default:
				}
			}
			timer.Reset(l.debounce)
			pending = true
		case <-timer.C:
			pending = false
			if err := l.store.Refetch(ctx); err != nil {
				log.Printf("Refetch after change event failed: %v", err)
			}
		}
	}
}

func sleepCtx(ctx context.Context, d time.Duration) bool {
	select {
	case <-ctx.Done():
		return false
	case <-time.After(d):
		return true
	}
}

func nextBackoff(d time.Duration) time.Duration {
	d *= 2
	if d > backoffCap {
		d = backoffCap
	}
	return d
}
