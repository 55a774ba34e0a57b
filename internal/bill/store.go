package bill

import "sync"

// Store owns a bill document for one process. Reads hand out clones so
// callers can never mutate the document behind the store's back; writes go
// through Apply or SetState only.
type Store struct {
	mu       sync.RWMutex
	bill     Bill
	onChange func()
}

// NewStore returns a store seeded with an empty default bill.
func NewStore() *Store {
	return &Store{bill: New()}
}

// State returns a deep copy of the current document.
func (s *Store) State() Bill {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.bill.Clone()
}

// SetState replaces the document wholesale, e.g. from a snapshot.
func (s *Store) SetState(b Bill) {
	s.mu.Lock()
	s.bill = b.Clone()
	cb := s.onChange
	s.mu.Unlock()
	if cb != nil {
		cb()
	}
}

// Apply runs one action against the document. On error the document is
// unchanged and no change notification fires.
func (s *Store) Apply(a Action) error {
	s.mu.Lock()
	if err := Apply(&s.bill, a); err != nil {
		s.mu.Unlock()
		return err
	}
	cb := s.onChange
	s.mu.Unlock()
	if cb != nil {
		cb()
	}
	return nil
}

// OnChange registers a callback invoked after every successful mutation.
func (s *Store) OnChange(cb func()) {
	s.mu.Lock()
	s.onChange = cb
	s.mu.Unlock()
}
