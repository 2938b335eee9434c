package cache

// store is the keyed mapping from key to Element plus an intrusive doubly
// linked list ordered by write recency (head = newest write, tail = oldest).
// The list drives capacity eviction and gives the sweep a stable iteration
// order.
//
// The store carries no lock of its own: the façade's reader/writer lock is
// the sole serialization mechanism, and every mutating method below must be
// called while holding the exclusive lane.
type store[K comparable, V any] struct {
	m    map[K]*Element[K, V]
	head *Element[K, V] // newest write
	tail *Element[K, V] // oldest write
	size int
}

func newStore[K comparable, V any]() *store[K, V] {
	return &store[K, V]{m: make(map[K]*Element[K, V])}
}

// len returns the number of resident entries.
func (s *store[K, V]) len() int { return s.size }

// get returns the element for k, if present. Non-mutating.
func (s *store[K, V]) get(k K) (*Element[K, V], bool) {
	el, ok := s.m[k]
	return el, ok
}

// add inserts a NEW element; the key must be absent.
func (s *store[K, V]) add(el *Element[K, V]) error {
	if _, exists := s.m[el.key]; exists {
		return ErrKeyAlreadyExists
	}
	s.m[el.key] = el
	s.pushFront(el)
	return nil
}

// upsert inserts el, displacing any existing element for the same key.
// Returns the displaced element, or nil if the key was absent.
// A replacement counts as a fresh write for capacity-eviction ordering.
func (s *store[K, V]) upsert(el *Element[K, V]) *Element[K, V] {
	old := s.m[el.key]
	if old != nil {
		s.unlink(old)
	}
	s.m[el.key] = el
	s.pushFront(el)
	return old
}

// replace swaps old for el in place; old must currently be resident.
func (s *store[K, V]) replace(old, el *Element[K, V]) {
	s.unlink(old)
	s.m[el.key] = el
	s.pushFront(el)
}

// remove deletes the element for k.
func (s *store[K, V]) remove(k K) (*Element[K, V], error) {
	el, ok := s.m[k]
	if !ok {
		return nil, ErrKeyNotFound
	}
	s.removeElement(el)
	return el, nil
}

// removeElement deletes a resident element directly (sweep/eviction path).
func (s *store[K, V]) removeElement(el *Element[K, V]) {
	s.unlink(el)
	delete(s.m, el.key)
}

// clear drops every entry in one logical step and returns how many there were.
func (s *store[K, V]) clear() int {
	n := s.size
	s.m = make(map[K]*Element[K, V])
	s.head, s.tail = nil, nil
	s.size = 0
	return n
}

// oldest returns the least recently written element in O(1).
func (s *store[K, V]) oldest() *Element[K, V] { return s.tail }

// expired collects resident elements whose deadline has elapsed at now and
// whose policy calls for automatic action. Oldest first, so sweep-driven
// removals come out in write order.
func (s *store[K, V]) expired(now int64) []*Element[K, V] {
	var out []*Element[K, V]
	for el := s.tail; el != nil; el = el.prev {
		if el.expiration != ExpireDoNothing && el.expiredAt(now) {
			out = append(out, el)
		}
	}
	return out
}

// -------------------- intrusive list (exclusive lane held) --------------------

// pushFront inserts el at the newest end in O(1).
func (s *store[K, V]) pushFront(el *Element[K, V]) {
	el.prev = nil
	el.next = s.head
	if s.head != nil {
		s.head.prev = el
	}
	s.head = el
	if s.tail == nil {
		s.tail = el
	}
	s.size++
}

// unlink removes el from the list and updates counters in O(1).
func (s *store[K, V]) unlink(el *Element[K, V]) {
	if el.prev != nil {
		el.prev.next = el.next
	}
	if el.next != nil {
		el.next.prev = el.prev
	}
	if s.head == el {
		s.head = el.next
	}
	if s.tail == el {
		s.tail = el.prev
	}
	el.prev, el.next = nil, nil
	s.size--
}
