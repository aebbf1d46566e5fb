package domain

import (
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

type ParticipantStatus string

const (
	ParticipantStatusConnected    ParticipantStatus = "connected"
	ParticipantStatusConnecting   ParticipantStatus = "connecting"
	ParticipantStatusDisconnected ParticipantStatus = "disconnected"
)

// Participant represents a user's live membership in a room.
type Participant struct {
	ID       string
	RoomID   uuid.UUID
	UserID   uuid.UUID
	Username string
	IsHost   bool
	Status   ParticipantStatus
	JoinedAt time.Time
	LastSeen time.Time
	Mutex    sync.RWMutex
	Socket   *websocket.Conn
	Events   chan RoomEvent

	eventsClosed bool
}

func NewParticipant(roomID, userID uuid.UUID, username string, isHost bool) *Participant {
	now := time.Now().UTC()
	return &Participant{
		ID:       uuid.New().String(),
		RoomID:   roomID,
		UserID:   userID,
		Username: username,
		IsHost:   isHost,
		Status:   ParticipantStatusConnecting,
		JoinedAt: now,
		LastSeen: now,
		Events:   make(chan RoomEvent, 16),
	}
}

func (p *Participant) Touch() {
	p.Mutex.Lock()
	defer p.Mutex.Unlock()
	p.LastSeen = time.Now().UTC()
}

// EnqueueEvent delivers an event to the participant's socket queue without
// blocking. Events are dropped when the queue is full or already closed.
func (p *Participant) EnqueueEvent(event RoomEvent) {
	p.Mutex.RLock()
	defer p.Mutex.RUnlock()
	if p.eventsClosed {
		return
	}
	select {
	case p.Events <- event:
	default:
	}
}

// CloseEvents shuts the send queue so the socket forwarder drains what is
// left and returns. Safe to call more than once; later enqueues are no-ops.
func (p *Participant) CloseEvents() {
	p.Mutex.Lock()
	defer p.Mutex.Unlock()
	if p.eventsClosed {
		return
	}
	p.eventsClosed = true
	close(p.Events)
}

func (p *Participant) SetStatus(status ParticipantStatus) {
	p.Mutex.Lock()
	defer p.Mutex.Unlock()
	p.Status = status
}
