package domain

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParticipantEventQueueClose(t *testing.T) {
	p := NewParticipant(uuid.New(), uuid.New(), "alice", false)

	p.EnqueueEvent(RoomEvent{Type: "joined"})
	p.EnqueueEvent(RoomEvent{Type: "document"})
	p.CloseEvents()

	// Enqueues after close are dropped rather than panicking, so a feed
	// callback still in flight during teardown is harmless.
	p.EnqueueEvent(RoomEvent{Type: "late"})
	p.CloseEvents()

	var received []string
	for event := range p.Events {
		received = append(received, event.Type)
	}
	assert.Equal(t, []string{"joined", "document"}, received)
}

func TestParticipantEnqueueDropsWhenFull(t *testing.T) {
	p := NewParticipant(uuid.New(), uuid.New(), "bob", false)

	for i := 0; i < cap(p.Events)+5; i++ {
		p.EnqueueEvent(RoomEvent{Type: "document"})
	}
	require.Len(t, p.Events, cap(p.Events))
}
