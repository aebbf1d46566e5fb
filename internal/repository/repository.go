package repository

import (
	"context"
	"errors"
	"time"

	"github.com/ddenisenko/clubcode/internal/domain"
	"github.com/google/uuid"
)

var (
	ErrRoomNotFound        = errors.New("room not found")
	ErrUserNotFound        = errors.New("user not found")
	ErrUserEmailExists     = errors.New("user with email already exists")
	ErrBattleNotFound      = errors.New("battle not found")
	ErrParticipantNotFound = errors.New("participant not found")
	ErrAlreadyJoined       = errors.New("already joined")
	ErrSignalNotFound      = errors.New("signal not found")
	ErrInvalidTransition   = errors.New("invalid status transition")
)

type RoomRepository interface {
	Create(ctx context.Context, room *domain.Room) error
	GetByID(ctx context.Context, id uuid.UUID) (*domain.Room, error)
	List(ctx context.Context) ([]*domain.Room, error)
	UpdateDocument(ctx context.Context, roomID uuid.UUID, text string) error
	SetActive(ctx context.Context, roomID uuid.UUID, active bool) error
	Delete(ctx context.Context, id uuid.UUID) error
}

type ParticipantRepository interface {
	// Add inserts a membership row. A duplicate (room, user) pair returns
	// ErrAlreadyJoined instead of a second row.
	Add(ctx context.Context, participant *domain.Participant) error
	Remove(ctx context.Context, roomID, userID uuid.UUID) error
	ListByRoom(ctx context.Context, roomID uuid.UUID) ([]*domain.Participant, error)
}

type SignalRepository interface {
	Create(ctx context.Context, signal *domain.SignalMessage) error
	Delete(ctx context.Context, id uuid.UUID) error
	// DeleteForUser removes every signal in the room where the user is the
	// sender or the recipient. Used for session teardown garbage collection.
	DeleteForUser(ctx context.Context, roomID, userID uuid.UUID) (int64, error)
	ListByRoom(ctx context.Context, roomID uuid.UUID) ([]*domain.SignalMessage, error)
	DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error)
}

type BattleRepository interface {
	Create(ctx context.Context, battle *domain.Battle) error
	GetByID(ctx context.Context, id uuid.UUID) (*domain.Battle, error)
	List(ctx context.Context) ([]*domain.Battle, error)
	// Start moves waiting -> active. Any other current status returns
	// ErrInvalidTransition.
	Start(ctx context.Context, battleID uuid.UUID, startedAt time.Time) error
	// Complete moves active -> completed and reports whether this call made
	// the transition. A battle that is already completed returns false with
	// no error, so racing completers no-op.
	Complete(ctx context.Context, battleID uuid.UUID, endedAt time.Time) (bool, error)
}

type BattleParticipantRepository interface {
	Add(ctx context.Context, participant *domain.BattleParticipant) error
	Get(ctx context.Context, battleID, userID uuid.UUID) (*domain.BattleParticipant, error)
	ListByBattle(ctx context.Context, battleID uuid.UUID) ([]*domain.BattleParticipant, error)
	// UpdateSubmission overwrites the submission fields of the existing
	// (battle, user) row; a second submit updates the same row.
	UpdateSubmission(ctx context.Context, participant *domain.BattleParticipant) error
}

type UserRepository interface {
	Create(ctx context.Context, user *domain.User) error
	GetByID(ctx context.Context, id uuid.UUID) (*domain.User, error)
	Update(ctx context.Context, user *domain.User) error
}
