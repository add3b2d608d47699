package live

import (
	"context"
	"sync"
)

type FetchFunc[T any] func(ctx context.Context) (T, error)

// Stream re-runs a query every time one of its topics changes and offers
// the latest result. An undelivered snapshot is replaced by a newer one,
// so a slow consumer only ever sees the most recent state.
type Stream[T any] struct {
	updates chan T
	cancel  context.CancelFunc
	done    chan struct{}

	mu  sync.Mutex
	err error
}

// Watch subscribes to topics, emits an initial snapshot and then one per
// notification until ctx is cancelled, Close is called, the broker closes
// or fetch fails.
func Watch[T any](ctx context.Context, b Broker, fetch FetchFunc[T], topics ...string) *Stream[T] {
	ctx, cancel := context.WithCancel(ctx)
	s := &Stream[T]{
		updates: make(chan T, 1),
		cancel:  cancel,
		done:    make(chan struct{}),
	}

	sub := b.Subscribe(topics...)
	go s.run(ctx, sub, fetch)

	return s
}

func (s *Stream[T]) run(ctx context.Context, sub *Subscription, fetch FetchFunc[T]) {
	defer func() {
		sub.Unsubscribe()
		close(s.updates)
		close(s.done)
	}()

	for {
		v, err := fetch(ctx)
		if err != nil {
			if ctx.Err() == nil {
				s.setErr(err)
			}
			return
		}
		s.offer(v)

		select {
		case <-ctx.Done():
			return
		case _, ok := <-sub.Notify():
			if !ok {
				s.setErr(ErrClosed)
				return
			}
		}
	}
}

func (s *Stream[T]) offer(v T) {
	select {
	case <-s.updates:
	default:
	}
	s.updates <- v
}

func (s *Stream[T]) setErr(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.err = err
}

// Updates is closed when the stream ends. Check Err afterwards.
func (s *Stream[T]) Updates() <-chan T {
	return s.updates
}

// Err returns the failure that ended the stream, if any. Cancellation is
// not a failure.
func (s *Stream[T]) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

// Done is closed once the stream goroutine has exited.
func (s *Stream[T]) Done() <-chan struct{} {
	return s.done
}

// Close cancels the stream and waits for it to stop.
func (s *Stream[T]) Close() {
	s.cancel()
	<-s.done
}
