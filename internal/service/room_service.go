package service

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/ddenisenko/clubcode/internal/domain"
	"github.com/ddenisenko/clubcode/internal/feed"
	"github.com/ddenisenko/clubcode/internal/observability"
	"github.com/ddenisenko/clubcode/internal/repository"
	"github.com/ddenisenko/clubcode/lib/logger/sl"
	"github.com/google/uuid"
)

var (
	ErrRoomInactive       = errors.New("room is not active")
	ErrParticipantMissing = errors.New("participant not found")
)

// RoomService manages collaborative code rooms. The shared document uses
// conflict-oblivious overwrites: concurrent edits race and every client
// converges to whichever write committed last. The losing edit is discarded
// without notice. Known limitation, not a defect.
type RoomService struct {
	rooms        repository.RoomRepository
	participants repository.ParticipantRepository
	users        repository.UserRepository
	bus          *feed.Bus
	log          *slog.Logger
	mu           sync.RWMutex
	activeRooms  map[uuid.UUID]*domain.Room
}

func NewRoomService(
	rooms repository.RoomRepository,
	participants repository.ParticipantRepository,
	users repository.UserRepository,
	bus *feed.Bus,
	log *slog.Logger,
) *RoomService {
	if log == nil {
		log = slog.Default()
	}
	return &RoomService{
		rooms:        rooms,
		participants: participants,
		users:        users,
		bus:          bus,
		log:          log,
		activeRooms:  make(map[uuid.UUID]*domain.Room),
	}
}

func (s *RoomService) CreateRoom(ctx context.Context, name, description, language string, createdBy uuid.UUID, maxParticipants int) (*domain.Room, error) {
	const op = "service.room.create"
	if name == "" {
		return nil, errors.New("room name is required")
	}
	if createdBy == uuid.Nil {
		return nil, errors.New("creator is required")
	}

	room := domain.NewRoom(name, description, language, createdBy, maxParticipants)
	if err := s.rooms.Create(ctx, room); err != nil {
		return nil, err
	}

	s.mu.Lock()
	s.activeRooms[room.ID] = room
	s.mu.Unlock()

	s.bus.Publish(feed.Event{
		Table: TableRooms,
		Op:    feed.OpInsert,
		Keys:  map[string]string{"id": room.ID.String()},
		Row:   room,
	})

	s.log.Info("room created",
		slog.String("op", op),
		slog.String("room_id", room.ID.String()),
		slog.String("language", room.Language),
	)
	return room, nil
}

func (s *RoomService) GetRoom(ctx context.Context, id uuid.UUID) (*domain.Room, error) {
	if room := s.getActiveRoom(id); room != nil {
		return room, nil
	}

	roomFromDB, err := s.rooms.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}

	return s.activateRoom(roomFromDB), nil
}

func (s *RoomService) ListRooms(ctx context.Context) ([]*domain.Room, error) {
	return s.rooms.List(ctx)
}

// JoinRoom registers the user as a room participant. Joining a room the
// user already belongs to reuses the existing membership instead of adding
// a second row. The room's creator joins as host; max_participants is
// stored and surfaced but deliberately not enforced here (documented
// scalability limitation of the peer mesh).
func (s *RoomService) JoinRoom(ctx context.Context, roomID uuid.UUID, user *domain.User) (*domain.Participant, error) {
	const op = "service.room.join"
	log := s.log.With(
		slog.String("op", op),
		slog.String("room_id", roomID.String()),
	)

	if user == nil {
		return nil, errors.New("user is required")
	}

	room, err := s.GetRoom(ctx, roomID)
	if err != nil {
		return nil, err
	}
	if !room.IsActive {
		return nil, ErrRoomInactive
	}

	if err := s.ensureUser(ctx, user); err != nil {
		log.Error("ensure user failed", sl.Err(err))
		return nil, err
	}

	isHost := user.ID == room.CreatedBy
	participant := domain.NewParticipant(roomID, user.ID, user.Name, isHost)

	if err := s.participants.Add(ctx, participant); err != nil {
		if !errors.Is(err, repository.ErrAlreadyJoined) {
			return nil, err
		}
		// Duplicate join is informational, not fatal.
		log.Info("already joined", slog.String("user_id", user.ID.String()))
		existing, err := s.findParticipant(ctx, roomID, user.ID)
		if err != nil {
			return nil, err
		}
		existing.Events = make(chan domain.RoomEvent, 16)
		participant = existing
	}

	room.Mutex.Lock()
	room.Participants[participant.ID] = participant
	room.Mutex.Unlock()

	s.bus.Publish(feed.Event{
		Table: TableRoomParticipants,
		Op:    feed.OpInsert,
		Keys: map[string]string{
			"room_id": roomID.String(),
			"user_id": user.ID.String(),
		},
		Row: participant,
	})

	log.Info("participant joined",
		slog.String("participant_id", participant.ID),
		slog.String("user_id", user.ID.String()),
		slog.Bool("is_host", participant.IsHost),
	)
	return participant, nil
}

func (s *RoomService) LeaveRoom(ctx context.Context, roomID, userID uuid.UUID) error {
	const op = "service.room.leave"
	log := s.log.With(
		slog.String("op", op),
		slog.String("room_id", roomID.String()),
		slog.String("user_id", userID.String()),
	)

	room, err := s.GetRoom(ctx, roomID)
	if err != nil {
		return err
	}

	var left *domain.Participant
	room.Mutex.Lock()
	for id, p := range room.Participants {
		if p.UserID == userID {
			left = p
			delete(room.Participants, id)
			break
		}
	}
	roomEmpty := len(room.Participants) == 0
	room.Mutex.Unlock()

	if left != nil {
		left.SetStatus(domain.ParticipantStatusDisconnected)
		if left.Socket != nil {
			left.Socket.Close()
			left.Socket = nil
		}
	}

	if err := s.participants.Remove(ctx, roomID, userID); err != nil {
		if !errors.Is(err, repository.ErrParticipantNotFound) {
			log.Error("failed to remove participant", sl.Err(err))
			return err
		}
	}

	s.bus.Publish(feed.Event{
		Table: TableRoomParticipants,
		Op:    feed.OpDelete,
		Keys: map[string]string{
			"room_id": roomID.String(),
			"user_id": userID.String(),
		},
		Row: left,
	})

	if roomEmpty {
		s.removeActiveRoom(roomID)
	}

	log.Info("participant left")
	return nil
}

// UpdateDocument persists the full new text and publishes the change. The
// write is not versioned: whichever update commits last is what every
// subscriber converges to.
func (s *RoomService) UpdateDocument(ctx context.Context, roomID, editorUserID uuid.UUID, text string) error {
	const op = "service.room.document"

	room, err := s.GetRoom(ctx, roomID)
	if err != nil {
		return err
	}

	if err := s.rooms.UpdateDocument(ctx, roomID, text); err != nil {
		s.log.Error("failed to persist document", slog.String("op", op), sl.Err(err))
		return err
	}
	room.SetDocument(text)

	s.bus.Publish(feed.Event{
		Table: TableRooms,
		Op:    feed.OpUpdate,
		Keys:  map[string]string{"id": roomID.String()},
		Row: &domain.DocumentChange{
			RoomID:       roomID,
			EditorUserID: editorUserID,
			Text:         text,
		},
	})

	observability.IncDocEdit()
	return nil
}

func (s *RoomService) ListParticipants(ctx context.Context, roomID uuid.UUID) ([]*domain.Participant, error) {
	return s.participants.ListByRoom(ctx, roomID)
}

func (s *RoomService) ensureUser(ctx context.Context, user *domain.User) error {
	if user.ID == uuid.Nil {
		user.ID = uuid.New()
	}
	if user.CreatedAt.IsZero() {
		user.CreatedAt = time.Now().UTC()
	}
	user.UpdatedAt = time.Now().UTC()

	_, err := s.users.GetByID(ctx, user.ID)
	if err != nil {
		if errors.Is(err, repository.ErrUserNotFound) {
			return s.users.Create(ctx, user)
		}
		return err
	}
	return s.users.Update(ctx, user)
}

func (s *RoomService) findParticipant(ctx context.Context, roomID, userID uuid.UUID) (*domain.Participant, error) {
	all, err := s.participants.ListByRoom(ctx, roomID)
	if err != nil {
		return nil, err
	}
	for _, p := range all {
		if p.UserID == userID {
			return p, nil
		}
	}
	return nil, ErrParticipantMissing
}

func (s *RoomService) getActiveRoom(id uuid.UUID) *domain.Room {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.activeRooms[id]
}

func (s *RoomService) removeActiveRoom(id uuid.UUID) {
	s.mu.Lock()
	delete(s.activeRooms, id)
	s.mu.Unlock()
}

func (s *RoomService) activateRoom(room *domain.Room) *domain.Room {
	if room == nil {
		return nil
	}

	if room.Participants == nil {
		room.Participants = make(map[string]*domain.Participant)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if existing := s.activeRooms[room.ID]; existing != nil {
		return existing
	}

	s.activeRooms[room.ID] = room
	return room
}
