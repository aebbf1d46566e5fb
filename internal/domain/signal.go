package domain

import (
	"time"

	"github.com/google/uuid"
	"github.com/pion/webrtc/v3"
)

type SignalKind string

const (
	SignalOffer        SignalKind = "offer"
	SignalAnswer       SignalKind = "answer"
	SignalICECandidate SignalKind = "ice-candidate"
)

func (k SignalKind) Valid() bool {
	switch k {
	case SignalOffer, SignalAnswer, SignalICECandidate:
		return true
	}
	return false
}

// SignalMessage is one unit of peer negotiation persisted in the signals
// table. The room's change feed delivers every insert to every subscriber,
// including the author's own write; consumers must ignore messages where
// FromUserID equals their own id. The recipient deletes the row after
// processing it, so delivery is at most once.
type SignalMessage struct {
	ID         uuid.UUID                  `json:"id"`
	RoomID     uuid.UUID                  `json:"room_id"`
	FromUserID uuid.UUID                  `json:"from_user_id"`
	ToUserID   uuid.UUID                  `json:"to_user_id"`
	Kind       SignalKind                 `json:"signal_type"`
	SDP        *webrtc.SessionDescription `json:"sdp,omitempty"`
	Candidate  *webrtc.ICECandidateInit   `json:"candidate,omitempty"`
	CreatedAt  time.Time                  `json:"created_at"`
}

func NewSignalMessage(roomID, from, to uuid.UUID, kind SignalKind) *SignalMessage {
	return &SignalMessage{
		ID:         uuid.New(),
		RoomID:     roomID,
		FromUserID: from,
		ToUserID:   to,
		Kind:       kind,
		CreatedAt:  time.Now().UTC(),
	}
}

// RoomEvent is the websocket envelope exchanged with room clients. Signal
// kinds carry SDP/candidate payloads; the rest ("joined", "peer-left",
// "edit", "document") use the generic payload map.
type RoomEvent struct {
	Type      string                     `json:"type"`
	Room      string                     `json:"room,omitempty"`
	SenderID  string                     `json:"sender_id,omitempty"`
	TargetID  string                     `json:"target_id,omitempty"`
	SignalID  string                     `json:"signal_id,omitempty"`
	SDP       *webrtc.SessionDescription `json:"sdp,omitempty"`
	Candidate *webrtc.ICECandidateInit   `json:"candidate,omitempty"`
	Payload   map[string]any             `json:"payload,omitempty"`
}
