package repository

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/ddenisenko/clubcode/internal/domain"
	"github.com/google/uuid"
)

type InMemoryRoomRepository struct {
	mu    sync.RWMutex
	rooms map[uuid.UUID]*domain.Room
}

func NewInMemoryRoomRepository() *InMemoryRoomRepository {
	return &InMemoryRoomRepository{rooms: make(map[uuid.UUID]*domain.Room)}
}

func (r *InMemoryRoomRepository) Create(ctx context.Context, room *domain.Room) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	r.rooms[room.ID] = room
	return nil
}

func (r *InMemoryRoomRepository) GetByID(ctx context.Context, id uuid.UUID) (*domain.Room, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	room, ok := r.rooms[id]
	if !ok {
		return nil, ErrRoomNotFound
	}

	return room, nil
}

func (r *InMemoryRoomRepository) List(ctx context.Context) ([]*domain.Room, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	result := make([]*domain.Room, 0, len(r.rooms))
	for _, room := range r.rooms {
		result = append(result, room)
	}
	return result, nil
}

func (r *InMemoryRoomRepository) UpdateDocument(ctx context.Context, roomID uuid.UUID, text string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	room, ok := r.rooms[roomID]
	if !ok {
		return ErrRoomNotFound
	}

	room.SetDocument(text)
	return nil
}

func (r *InMemoryRoomRepository) SetActive(ctx context.Context, roomID uuid.UUID, active bool) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	room, ok := r.rooms[roomID]
	if !ok {
		return ErrRoomNotFound
	}

	room.Mutex.Lock()
	room.IsActive = active
	room.Mutex.Unlock()
	return nil
}

func (r *InMemoryRoomRepository) Delete(ctx context.Context, id uuid.UUID) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.rooms[id]; !ok {
		return ErrRoomNotFound
	}

	delete(r.rooms, id)
	return nil
}

type participantKey struct {
	roomID uuid.UUID
	userID uuid.UUID
}

type InMemoryParticipantRepository struct {
	mu           sync.RWMutex
	participants map[participantKey]*domain.Participant
}

func NewInMemoryParticipantRepository() *InMemoryParticipantRepository {
	return &InMemoryParticipantRepository{
		participants: make(map[participantKey]*domain.Participant),
	}
}

func (r *InMemoryParticipantRepository) Add(ctx context.Context, participant *domain.Participant) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	key := participantKey{roomID: participant.RoomID, userID: participant.UserID}
	if _, ok := r.participants[key]; ok {
		return ErrAlreadyJoined
	}

	r.participants[key] = participant
	return nil
}

func (r *InMemoryParticipantRepository) Remove(ctx context.Context, roomID, userID uuid.UUID) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	key := participantKey{roomID: roomID, userID: userID}
	if _, ok := r.participants[key]; !ok {
		return ErrParticipantNotFound
	}

	delete(r.participants, key)
	return nil
}

func (r *InMemoryParticipantRepository) ListByRoom(ctx context.Context, roomID uuid.UUID) ([]*domain.Participant, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	result := make([]*domain.Participant, 0)
	for key, participant := range r.participants {
		if key.roomID == roomID {
			result = append(result, participant)
		}
	}
	sort.Slice(result, func(i, j int) bool {
		return result[i].JoinedAt.Before(result[j].JoinedAt)
	})
	return result, nil
}

type InMemorySignalRepository struct {
	mu      sync.RWMutex
	signals map[uuid.UUID]*domain.SignalMessage
}

func NewInMemorySignalRepository() *InMemorySignalRepository {
	return &InMemorySignalRepository{signals: make(map[uuid.UUID]*domain.SignalMessage)}
}

func (r *InMemorySignalRepository) Create(ctx context.Context, signal *domain.SignalMessage) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	r.signals[signal.ID] = signal
	return nil
}

func (r *InMemorySignalRepository) Delete(ctx context.Context, id uuid.UUID) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.signals[id]; !ok {
		return ErrSignalNotFound
	}

	delete(r.signals, id)
	return nil
}

func (r *InMemorySignalRepository) DeleteForUser(ctx context.Context, roomID, userID uuid.UUID) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	var removed int64
	for id, signal := range r.signals {
		if signal.RoomID != roomID {
			continue
		}
		if signal.FromUserID == userID || signal.ToUserID == userID {
			delete(r.signals, id)
			removed++
		}
	}
	return removed, nil
}

func (r *InMemorySignalRepository) ListByRoom(ctx context.Context, roomID uuid.UUID) ([]*domain.SignalMessage, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	result := make([]*domain.SignalMessage, 0)
	for _, signal := range r.signals {
		if signal.RoomID == roomID {
			result = append(result, signal)
		}
	}
	sort.Slice(result, func(i, j int) bool {
		return result[i].CreatedAt.Before(result[j].CreatedAt)
	})
	return result, nil
}

func (r *InMemorySignalRepository) DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	var removed int64
	for id, signal := range r.signals {
		if signal.CreatedAt.Before(cutoff) {
			delete(r.signals, id)
			removed++
		}
	}
	return removed, nil
}

type InMemoryBattleRepository struct {
	mu      sync.RWMutex
	battles map[uuid.UUID]*domain.Battle
}

func NewInMemoryBattleRepository() *InMemoryBattleRepository {
	return &InMemoryBattleRepository{battles: make(map[uuid.UUID]*domain.Battle)}
}

func (r *InMemoryBattleRepository) Create(ctx context.Context, battle *domain.Battle) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	r.battles[battle.ID] = battle
	return nil
}

func (r *InMemoryBattleRepository) GetByID(ctx context.Context, id uuid.UUID) (*domain.Battle, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	battle, ok := r.battles[id]
	if !ok {
		return nil, ErrBattleNotFound
	}

	return battle, nil
}

func (r *InMemoryBattleRepository) List(ctx context.Context) ([]*domain.Battle, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	result := make([]*domain.Battle, 0, len(r.battles))
	for _, battle := range r.battles {
		result = append(result, battle)
	}
	sort.Slice(result, func(i, j int) bool {
		return result[i].CreatedAt.Before(result[j].CreatedAt)
	})
	return result, nil
}

func (r *InMemoryBattleRepository) Start(ctx context.Context, battleID uuid.UUID, startedAt time.Time) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	battle, ok := r.battles[battleID]
	if !ok {
		return ErrBattleNotFound
	}
	if battle.Status != domain.BattleStatusWaiting {
		return ErrInvalidTransition
	}

	startedAt = startedAt.UTC()
	battle.Status = domain.BattleStatusActive
	battle.StartedAt = &startedAt
	return nil
}

func (r *InMemoryBattleRepository) Complete(ctx context.Context, battleID uuid.UUID, endedAt time.Time) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	battle, ok := r.battles[battleID]
	if !ok {
		return false, ErrBattleNotFound
	}
	if battle.Status != domain.BattleStatusActive {
		return false, nil
	}

	endedAt = endedAt.UTC()
	battle.Status = domain.BattleStatusCompleted
	battle.EndedAt = &endedAt
	return true, nil
}

type battleParticipantKey struct {
	battleID uuid.UUID
	userID   uuid.UUID
}

type InMemoryBattleParticipantRepository struct {
	mu           sync.RWMutex
	participants map[battleParticipantKey]*domain.BattleParticipant
}

func NewInMemoryBattleParticipantRepository() *InMemoryBattleParticipantRepository {
	return &InMemoryBattleParticipantRepository{
		participants: make(map[battleParticipantKey]*domain.BattleParticipant),
	}
}

func (r *InMemoryBattleParticipantRepository) Add(ctx context.Context, participant *domain.BattleParticipant) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	key := battleParticipantKey{battleID: participant.BattleID, userID: participant.UserID}
	if _, ok := r.participants[key]; ok {
		return ErrAlreadyJoined
	}

	r.participants[key] = participant
	return nil
}

func (r *InMemoryBattleParticipantRepository) Get(ctx context.Context, battleID, userID uuid.UUID) (*domain.BattleParticipant, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	participant, ok := r.participants[battleParticipantKey{battleID: battleID, userID: userID}]
	if !ok {
		return nil, ErrParticipantNotFound
	}

	return participant, nil
}

func (r *InMemoryBattleParticipantRepository) ListByBattle(ctx context.Context, battleID uuid.UUID) ([]*domain.BattleParticipant, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	result := make([]*domain.BattleParticipant, 0)
	for key, participant := range r.participants {
		if key.battleID == battleID {
			result = append(result, participant)
		}
	}
	sort.Slice(result, func(i, j int) bool {
		return result[i].JoinedAt.Before(result[j].JoinedAt)
	})
	return result, nil
}

func (r *InMemoryBattleParticipantRepository) UpdateSubmission(ctx context.Context, participant *domain.BattleParticipant) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	key := battleParticipantKey{battleID: participant.BattleID, userID: participant.UserID}
	if _, ok := r.participants[key]; !ok {
		return ErrParticipantNotFound
	}

	r.participants[key] = participant
	return nil
}

type InMemoryUserRepository struct {
	mu     sync.RWMutex
	users  map[uuid.UUID]*domain.User
	emails map[string]uuid.UUID
}

func NewInMemoryUserRepository() *InMemoryUserRepository {
	return &InMemoryUserRepository{
		users:  make(map[uuid.UUID]*domain.User),
		emails: make(map[string]uuid.UUID),
	}
}

func (r *InMemoryUserRepository) Create(ctx context.Context, user *domain.User) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if user.Email != "" {
		if _, ok := r.emails[user.Email]; ok {
			return ErrUserEmailExists
		}
		r.emails[user.Email] = user.ID
	}

	r.users[user.ID] = user
	return nil
}

func (r *InMemoryUserRepository) GetByID(ctx context.Context, id uuid.UUID) (*domain.User, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	user, ok := r.users[id]
	if !ok {
		return nil, ErrUserNotFound
	}

	return user, nil
}

func (r *InMemoryUserRepository) Update(ctx context.Context, user *domain.User) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.users[user.ID]; !ok {
		return ErrUserNotFound
	}

	r.users[user.ID] = user
	if user.Email != "" {
		r.emails[user.Email] = user.ID
	}
	return nil
}
