// Copyright 2025 Takhin Data, Inc.

package membership

import (
	"sync/atomic"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewStaticIncludesLocalOnce(t *testing.T) {
	local := Member{UUID: uuid.New(), Address: "10.0.0.1:5701"}
	s := NewStatic(local, local, Member{UUID: uuid.New(), Address: "10.0.0.2:5701"})

	members := s.Members()
	require.Len(t, members, 2)
	assert.Equal(t, local, members[0])
}

func TestAddMemberNotifiesSubscribers(t *testing.T) {
	local := Member{UUID: uuid.New(), Address: "10.0.0.1:5701"}
	s := NewStatic(local)

	var notified atomic.Int32
	var lastCount atomic.Int32
	unsubscribe := s.Subscribe(func(members []Member) {
		notified.Add(1)
		lastCount.Store(int32(len(members)))
	})
	defer unsubscribe()

	s.AddMember(Member{UUID: uuid.New(), Address: "10.0.0.2:5701"})

	assert.Equal(t, int32(1), notified.Load())
	assert.Equal(t, int32(2), lastCount.Load())
	assert.Len(t, s.Members(), 2)
}

func TestAddMemberIsIdempotent(t *testing.T) {
	local := Member{UUID: uuid.New(), Address: "10.0.0.1:5701"}
	s := NewStatic(local)

	dup := Member{UUID: uuid.New(), Address: "10.0.0.2:5701"}
	s.AddMember(dup)
	s.AddMember(dup)

	assert.Len(t, s.Members(), 2)
}

func TestRemoveMember(t *testing.T) {
	local := Member{UUID: uuid.New(), Address: "10.0.0.1:5701"}
	other := Member{UUID: uuid.New(), Address: "10.0.0.2:5701"}
	s := NewStatic(local, other)

	var notified atomic.Int32
	unsubscribe := s.Subscribe(func(members []Member) { notified.Add(1) })
	defer unsubscribe()

	s.RemoveMember(other.UUID)

	assert.Len(t, s.Members(), 1)
	assert.Equal(t, int32(1), notified.Load())

	// Removing again is a no-op, no further notification.
	s.RemoveMember(other.UUID)
	assert.Equal(t, int32(1), notified.Load())
}

func TestUnsubscribeStopsNotifications(t *testing.T) {
	local := Member{UUID: uuid.New(), Address: "10.0.0.1:5701"}
	s := NewStatic(local)

	var notified atomic.Int32
	unsubscribe := s.Subscribe(func(members []Member) { notified.Add(1) })
	unsubscribe()

	s.AddMember(Member{UUID: uuid.New(), Address: "10.0.0.2:5701"})
	assert.Equal(t, int32(0), notified.Load())
}

func TestUnknownUIDIsNilUUID(t *testing.T) {
	assert.Equal(t, uuid.Nil, UnknownUID)
}
