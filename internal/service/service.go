package service

import (
	"context"

	"github.com/ddenisenko/clubcode/internal/domain"
	"github.com/google/uuid"
)

// Change-feed table names published by the services.
const (
	TableRooms              = "rooms"
	TableRoomParticipants   = "room_participants"
	TableSignals            = "webrtc_signals"
	TableBattles            = "code_battles"
	TableBattleParticipants = "battle_participants"
)

type RoomInteractor interface {
	CreateRoom(ctx context.Context, name, description, language string, createdBy uuid.UUID, maxParticipants int) (*domain.Room, error)
	GetRoom(ctx context.Context, id uuid.UUID) (*domain.Room, error)
	ListRooms(ctx context.Context) ([]*domain.Room, error)
	JoinRoom(ctx context.Context, roomID uuid.UUID, user *domain.User) (*domain.Participant, error)
	LeaveRoom(ctx context.Context, roomID, userID uuid.UUID) error
	UpdateDocument(ctx context.Context, roomID, editorUserID uuid.UUID, text string) error
	ListParticipants(ctx context.Context, roomID uuid.UUID) ([]*domain.Participant, error)
}

type SignalInteractor interface {
	Send(ctx context.Context, signal *domain.SignalMessage) error
	Consume(ctx context.Context, id uuid.UUID) error
	Cleanup(ctx context.Context, roomID, userID uuid.UUID) (int64, error)
	PendingByRoom(ctx context.Context, roomID uuid.UUID) ([]*domain.SignalMessage, error)
}

type BattleInteractor interface {
	CreateBattle(ctx context.Context, input CreateBattleInput) (*domain.Battle, error)
	GetBattle(ctx context.Context, id uuid.UUID) (*domain.Battle, error)
	ListBattles(ctx context.Context) ([]*domain.Battle, error)
	JoinBattle(ctx context.Context, battleID uuid.UUID, user *domain.User) (*domain.BattleParticipant, error)
	StartBattle(ctx context.Context, battleID, byUserID uuid.UUID) (*domain.Battle, error)
	CompleteBattle(ctx context.Context, battleID uuid.UUID) (*domain.Battle, error)
	Submit(ctx context.Context, battleID, userID uuid.UUID, code string) (*domain.BattleParticipant, error)
	ListBattleParticipants(ctx context.Context, battleID uuid.UUID) ([]*domain.BattleParticipant, error)
}

type UserInteractor interface {
	CreateUser(ctx context.Context, name string, email string) (*domain.User, error)
	GetUser(ctx context.Context, id uuid.UUID) (*domain.User, error)
	UpdateUser(ctx context.Context, user *domain.User) error
}

type CreateBattleInput struct {
	Title            string
	Description      string
	ProblemStatement string
	StarterCode      string
	Difficulty       string
	TimeLimitSeconds int
	MaxParticipants  int
	CreatedBy        uuid.UUID
}
