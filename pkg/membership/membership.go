// Copyright 2025 Takhin Data, Inc.

// Package membership defines the narrow external collaborator the
// partition service depends on for cluster membership: who is currently a
// member, whether a member is a "lite" (non-data) member, and a way to be
// notified when membership changes. A real deployment would back this
// with a gossip-based failure detector; that detector is out of scope
// here (see Non-goals), so this package also ships a minimal static
// implementation good enough for tests and for single-process
// bring-up, alongside the interface real code depends on.
package membership

import (
	"sync"

	"github.com/google/uuid"
)

// UnknownUID is the sentinel identity for "no member" (e.g. an unassigned
// partition replica slot).
var UnknownUID = uuid.Nil

// Member describes one cluster member as the partition service sees it.
type Member struct {
	UUID    uuid.UUID
	Address string
	Lite    bool // lite members never own partitions or backups
}

// ChangeListener is notified whenever the membership view changes.
type ChangeListener func(members []Member)

// Provider is the capability pkg/partition depends on. It deliberately
// exposes nothing about how membership is discovered.
type Provider interface {
	// Members returns the current membership snapshot, ordered by join
	// order (oldest member first). The partition service uses join order
	// as a tie-breaker when building deterministic arrangements.
	Members() []Member

	// LocalMember returns the identity of the local process.
	LocalMember() Member

	// Subscribe registers a listener invoked after every membership
	// change. It returns an unsubscribe function.
	Subscribe(l ChangeListener) (unsubscribe func())
}

// Static is a fixed-membership Provider seeded once at construction and
// updated only through explicit calls to AddMember/RemoveMember. It does
// not perform failure detection of any kind.
type Static struct {
	mu        sync.RWMutex
	local     Member
	members   []Member
	listeners map[int]ChangeListener
	nextID    int
}

var _ Provider = (*Static)(nil)

// NewStatic creates a Static provider whose initial membership is exactly
// local plus seeds (local is always included, even if also present in
// seeds).
func NewStatic(local Member, seeds ...Member) *Static {
	s := &Static{
		local:     local,
		listeners: make(map[int]ChangeListener),
	}

	members := []Member{local}
	for _, seed := range seeds {
		if seed.UUID == local.UUID {
			continue
		}
		members = append(members, seed)
	}
	s.members = members
	return s
}

func (s *Static) Members() []Member {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Member, len(s.members))
	copy(out, s.members)
	return out
}

func (s *Static) LocalMember() Member {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.local
}

func (s *Static) Subscribe(l ChangeListener) func() {
	s.mu.Lock()
	id := s.nextID
	s.nextID++
	s.listeners[id] = l
	s.mu.Unlock()

	return func() {
		s.mu.Lock()
		delete(s.listeners, id)
		s.mu.Unlock()
	}
}

// AddMember appends a member to the static view and notifies listeners.
// A no-op if the member is already present.
func (s *Static) AddMember(m Member) {
	s.mu.Lock()
	for _, existing := range s.members {
		if existing.UUID == m.UUID {
			s.mu.Unlock()
			return
		}
	}
	s.members = append(s.members, m)
	snapshot := s.snapshotLocked()
	s.mu.Unlock()

	s.notify(snapshot)
}

// RemoveMember drops a member from the static view and notifies
// listeners. A no-op if the member is not present.
func (s *Static) RemoveMember(id uuid.UUID) {
	s.mu.Lock()
	kept := make([]Member, 0, len(s.members))
	found := false
	for _, existing := range s.members {
		if existing.UUID == id {
			found = true
			continue
		}
		kept = append(kept, existing)
	}
	if !found {
		s.mu.Unlock()
		return
	}
	s.members = kept
	snapshot := s.snapshotLocked()
	s.mu.Unlock()

	s.notify(snapshot)
}

func (s *Static) snapshotLocked() []Member {
	out := make([]Member, len(s.members))
	copy(out, s.members)
	return out
}

func (s *Static) notify(members []Member) {
	s.mu.RLock()
	listeners := make([]ChangeListener, 0, len(s.listeners))
	for _, l := range s.listeners {
		listeners = append(listeners, l)
	}
	s.mu.RUnlock()

	for _, l := range listeners {
		l(members)
	}
}
