package notify

import "sync"

// Scope groups subscriptions on a parent Subscriber so they can be removed
// together with Close. Publishing on a scope publishes on the parent.
type Scope struct {
	parent Subscriber

	mu     sync.Mutex
	nextID uint64
	unsubs map[uint64]func()
	closed bool
}

// NewScope creates a scope over parent.
func NewScope(parent Subscriber) *Scope {
	return &Scope{
		parent: parent,
		unsubs: make(map[uint64]func()),
	}
}

// Subscribe registers h on the parent and tracks it for Close.
// Subscribing on a closed scope is a no-op.
func (s *Scope) Subscribe(key Key, h Handler) func() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return func() {}
	}
	s.nextID++
	id := s.nextID
	s.mu.Unlock()

	unsub := s.parent.Subscribe(key, h)

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		unsub()
		return func() {}
	}
	s.unsubs[id] = unsub
	s.mu.Unlock()

	return func() {
		s.mu.Lock()
		u, ok := s.unsubs[id]
		delete(s.unsubs, id)
		s.mu.Unlock()
		if ok {
			u()
		}
	}
}

// Publish publishes on the parent.
func (s *Scope) Publish(key Key, payload any) {
	s.parent.Publish(key, payload)
}

// Scope returns a child scope. Closing s does not close the child; close
// each scope you create.
func (s *Scope) Scope() *Scope {
	return NewScope(s)
}

// Len returns the number of live subscriptions made through s.
func (s *Scope) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.unsubs)
}

// Close removes every subscription made through s.
func (s *Scope) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	unsubs := s.unsubs
	s.unsubs = nil
	s.mu.Unlock()

	for _, u := range unsubs {
		u()
	}
}
