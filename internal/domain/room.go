package domain

import (
	"sync"
	"time"

	"github.com/google/uuid"
)

const DefaultMaxParticipants = 8

// Room represents a collaborative code session. The document is a single
// shared text column: every edit fully replaces the previous value and the
// last committed write wins. There is no merging and no version counter.
type Room struct {
	Mutex           sync.RWMutex
	ID              uuid.UUID
	Name            string
	Description     string
	Language        string
	Document        string
	CreatedBy       uuid.UUID
	IsActive        bool
	MaxParticipants int
	Participants    map[string]*Participant
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// NewRoom constructs a room owned by creator. The creator joins separately
// and becomes the room's first participant and host.
func NewRoom(name, description, language string, createdBy uuid.UUID, maxParticipants int) *Room {
	if maxParticipants <= 0 {
		maxParticipants = DefaultMaxParticipants
	}
	now := time.Now().UTC()
	return &Room{
		ID:              uuid.New(),
		Name:            name,
		Description:     description,
		Language:        language,
		CreatedBy:       createdBy,
		IsActive:        true,
		MaxParticipants: maxParticipants,
		Participants:    make(map[string]*Participant),
		CreatedAt:       now,
		UpdatedAt:       now,
	}
}

// SetDocument replaces the shared text wholesale.
func (r *Room) SetDocument(text string) {
	r.Mutex.Lock()
	r.Document = text
	r.UpdatedAt = time.Now().UTC()
	r.Mutex.Unlock()
}

func (r *Room) DocumentText() string {
	r.Mutex.RLock()
	defer r.Mutex.RUnlock()
	return r.Document
}

// DocumentChange is the change-feed row for a document overwrite. Text is
// the full new document, not a diff.
type DocumentChange struct {
	RoomID       uuid.UUID `json:"room_id"`
	EditorUserID uuid.UUID `json:"editor_user_id"`
	Text         string    `json:"text"`
}
