package cache

import (
	"log/slog"
	"sync"
)

// stream is a live multicast of records to the current subscriber set.
// There is no replay: a late subscriber starts with the next published
// record. Each subscriber gets its own buffered channel; a subscriber whose
// buffer is full loses the record (counted via onDrop and logged) so that a
// slow consumer can never stall a mutation holding the exclusive lane.
type stream[T any] struct {
	mu     sync.Mutex
	subs   map[uint64]chan T
	nextID uint64
	buf    int
	closed bool
	done   chan struct{} // closed together with the stream

	name   string // label for logs
	log    *slog.Logger
	onDrop func()
}

func newStream[T any](buf int, name string, log *slog.Logger, onDrop func()) *stream[T] {
	return &stream[T]{
		subs:   make(map[uint64]chan T),
		buf:    buf,
		done:   make(chan struct{}),
		name:   name,
		log:    log,
		onDrop: onDrop,
	}
}

// subscribe registers a new subscriber and returns its id and channel.
// The channel is closed on unsubscribe or stream close.
func (s *stream[T]) subscribe() (uint64, <-chan T, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return 0, nil, ErrClosed
	}
	s.nextID++
	id := s.nextID
	ch := make(chan T, s.buf)
	s.subs[id] = ch
	return id, ch, nil
}

// unsubscribe removes a subscriber and closes its channel. Safe to call for
// an id that is already gone.
func (s *stream[T]) unsubscribe(id uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	ch, ok := s.subs[id]
	if !ok {
		return
	}
	delete(s.subs, id)
	close(ch)
}

// send pushes v to a single subscriber, dropping on a full buffer.
// Caller must hold s.mu.
func (s *stream[T]) send(ch chan T, v T) {
	select {
	case ch <- v:
	default:
		s.onDrop()
		s.log.Warn("subscriber buffer full, record dropped", "stream", s.name)
	}
}

// publish delivers v to every current subscriber. Publishers run under the
// exclusive lane, so subscribers observe records in mutation order.
func (s *stream[T]) publish(v T) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	for _, ch := range s.subs {
		s.send(ch, v)
	}
}

// deliver pushes v to one specific subscriber only (snapshot seeding).
func (s *stream[T]) deliver(id uint64, v T) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	if ch, ok := s.subs[id]; ok {
		s.send(ch, v)
	}
}

// closing returns a channel closed when the stream shuts down.
func (s *stream[T]) closing() <-chan struct{} { return s.done }

// close completes every subscriber channel and rejects new subscriptions.
func (s *stream[T]) close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.closed = true
	close(s.done)
	for id, ch := range s.subs {
		delete(s.subs, id)
		close(ch)
	}
}
