package model

import (
	"time"

	"github.com/google/uuid"
)

type Room struct {
	ID              uuid.UUID         `gorm:"type:uuid;primaryKey"`
	Name            string            `gorm:"size:255;not null"`
	Description     string            `gorm:"type:text"`
	Language        string            `gorm:"size:64;not null"`
	CodeContent     string            `gorm:"type:text"`
	CreatedBy       uuid.UUID         `gorm:"type:uuid;not null"`
	IsActive        bool              `gorm:"not null"`
	MaxParticipants int               `gorm:"not null"`
	CreatedAt       time.Time         `gorm:"not null"`
	UpdatedAt       time.Time         `gorm:"not null"`
	Participants    []RoomParticipant `gorm:"foreignKey:RoomID;constraint:OnDelete:CASCADE"`
}

type RoomParticipant struct {
	ID       string    `gorm:"size:64;primaryKey"`
	RoomID   uuid.UUID `gorm:"type:uuid;not null;uniqueIndex:idx_room_participants_room_user"`
	UserID   uuid.UUID `gorm:"type:uuid;not null;uniqueIndex:idx_room_participants_room_user"`
	Username string    `gorm:"size:255;not null"`
	IsHost   bool      `gorm:"not null"`
	JoinedAt time.Time `gorm:"not null"`
	LastSeen time.Time `gorm:"not null"`
}

type WebRTCSignal struct {
	ID         uuid.UUID `gorm:"type:uuid;primaryKey"`
	RoomID     uuid.UUID `gorm:"type:uuid;index;not null"`
	FromUserID uuid.UUID `gorm:"type:uuid;index;not null"`
	ToUserID   uuid.UUID `gorm:"type:uuid;index;not null"`
	SignalType string    `gorm:"size:32;not null"`
	SignalData []byte    `gorm:"type:jsonb"`
	CreatedAt  time.Time `gorm:"index;not null"`
}

type CodeBattle struct {
	ID               uuid.UUID  `gorm:"type:uuid;primaryKey"`
	Title            string     `gorm:"size:255;not null"`
	Description      string     `gorm:"type:text"`
	ProblemStatement string     `gorm:"type:text;not null"`
	StarterCode      string     `gorm:"type:text"`
	Difficulty       string     `gorm:"size:32;not null"`
	TimeLimitSeconds int        `gorm:"not null"`
	MaxParticipants  int        `gorm:"not null"`
	Status           string     `gorm:"size:32;index;not null"`
	StartedAt        *time.Time
	EndedAt          *time.Time
	CreatedBy        uuid.UUID  `gorm:"type:uuid;not null"`
	CreatedAt        time.Time  `gorm:"not null"`
}

type BattleParticipant struct {
	ID             uuid.UUID  `gorm:"type:uuid;primaryKey"`
	BattleID       uuid.UUID  `gorm:"type:uuid;not null;uniqueIndex:idx_battle_participants_battle_user"`
	UserID         uuid.UUID  `gorm:"type:uuid;not null;uniqueIndex:idx_battle_participants_battle_user"`
	Username       string     `gorm:"size:255;not null"`
	Status         string     `gorm:"size:32;not null"`
	Score          int        `gorm:"not null"`
	SubmissionCode string     `gorm:"type:text"`
	SubmissionTime *time.Time
	IsCorrect      bool       `gorm:"not null"`
	JoinedAt       time.Time  `gorm:"not null"`
}

type User struct {
	ID        uuid.UUID `gorm:"type:uuid;primaryKey"`
	Name      string    `gorm:"size:255;not null"`
	Email     *string   `gorm:"size:255;uniqueIndex:idx_users_email,where:email IS NOT NULL"`
	IsGuest   bool      `gorm:"not null"`
	CreatedAt time.Time `gorm:"not null"`
	UpdatedAt time.Time `gorm:"not null"`
}
