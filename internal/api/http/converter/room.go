package converter

import (
	"time"

	"github.com/ddenisenko/clubcode/internal/domain"
	"github.com/google/uuid"
)

type RoomResponse struct {
	ID              uuid.UUID             `json:"id"`
	Name            string                `json:"name"`
	Description     string                `json:"description"`
	Language        string                `json:"language"`
	Document        string                `json:"document"`
	CreatedBy       uuid.UUID             `json:"created_by"`
	IsActive        bool                  `json:"is_active"`
	MaxParticipants int                   `json:"max_participants"`
	Participants    []ParticipantResponse `json:"participants"`
	CreatedAt       time.Time             `json:"created_at"`
	UpdatedAt       time.Time             `json:"updated_at"`
}

type ParticipantResponse struct {
	ID       string                   `json:"id"`
	UserID   uuid.UUID                `json:"user_id"`
	Username string                   `json:"username"`
	IsHost   bool                     `json:"is_host"`
	Status   domain.ParticipantStatus `json:"status"`
	JoinedAt time.Time                `json:"joined_at"`
}

func RoomToApi(r *domain.Room) *RoomResponse {
	participants := make([]ParticipantResponse, 0, len(r.Participants))

	r.Mutex.RLock()
	for _, p := range r.Participants {
		participants = append(participants, ParticipantToApi(p))
	}
	document := r.Document
	r.Mutex.RUnlock()

	return &RoomResponse{
		ID:              r.ID,
		Name:            r.Name,
		Description:     r.Description,
		Language:        r.Language,
		Document:        document,
		CreatedBy:       r.CreatedBy,
		IsActive:        r.IsActive,
		MaxParticipants: r.MaxParticipants,
		Participants:    participants,
		CreatedAt:       r.CreatedAt,
		UpdatedAt:       r.UpdatedAt,
	}
}

func ParticipantToApi(p *domain.Participant) ParticipantResponse {
	return ParticipantResponse{
		ID:       p.ID,
		UserID:   p.UserID,
		Username: p.Username,
		IsHost:   p.IsHost,
		Status:   p.Status,
		JoinedAt: p.JoinedAt,
	}
}
