// ABOUTME: Single-writer holder of the latest match snapshot
// ABOUTME: Readers see either no data or one complete snapshot
package state

import "sync/atomic"

// Reader is the read side handed to the game clock and score derivation
type Reader interface {
	// Current returns the latest snapshot, or false before the first push
	Current() (*Snapshot, bool)
}

// Store owns the current snapshot. Only the stream subscriber writes it.
type Store struct {
	current atomic.Pointer[Snapshot]
	updates atomic.Uint64
}

// NewStore creates an empty store
func NewStore() *Store {
	return &Store{}
}

// Update replaces the stored snapshot. Nil is ignored.
func (s *Store) Update(snap *Snapshot) {
	if snap == nil {
		return
	}
	s.current.Store(snap)
	s.updates.Add(1)
}

// Current returns the latest snapshot
func (s *Store) Current() (*Snapshot, bool) {
	snap := s.current.Load()
	return snap, snap != nil
}

// Updates returns how many snapshots have been stored
func (s *Store) Updates() uint64 {
	return s.updates.Load()
}
