package repository

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/ddenisenko/clubcode/internal/domain"
	"github.com/ddenisenko/clubcode/internal/repository/model"
	"github.com/google/uuid"
	"github.com/pion/webrtc/v3"
	"gorm.io/gorm"
)

type PostgresRoomRepository struct {
	db *gorm.DB
}

func NewPostgresRoomRepository(db *gorm.DB) *PostgresRoomRepository {
	return &PostgresRoomRepository{db: db}
}

func (r *PostgresRoomRepository) Create(ctx context.Context, room *domain.Room) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if room == nil {
		return errors.New("room is nil")
	}

	return r.db.WithContext(ctx).Create(toModelRoom(room)).Error
}

func (r *PostgresRoomRepository) GetByID(ctx context.Context, id uuid.UUID) (*domain.Room, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var room model.Room
	err := r.db.WithContext(ctx).First(&room, "id = ?", id).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrRoomNotFound
		}
		return nil, err
	}

	return toDomainRoom(&room), nil
}

func (r *PostgresRoomRepository) List(ctx context.Context) ([]*domain.Room, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var rooms []model.Room
	if err := r.db.WithContext(ctx).Order("created_at ASC").Find(&rooms).Error; err != nil {
		return nil, err
	}

	result := make([]*domain.Room, 0, len(rooms))
	for i := range rooms {
		result = append(result, toDomainRoom(&rooms[i]))
	}
	return result, nil
}

func (r *PostgresRoomRepository) UpdateDocument(ctx context.Context, roomID uuid.UUID, text string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	res := r.db.WithContext(ctx).Model(&model.Room{}).Where("id = ?", roomID).Updates(map[string]any{
		"code_content": text,
		"updated_at":   time.Now().UTC(),
	})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrRoomNotFound
	}
	return nil
}

func (r *PostgresRoomRepository) SetActive(ctx context.Context, roomID uuid.UUID, active bool) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	res := r.db.WithContext(ctx).Model(&model.Room{}).Where("id = ?", roomID).Updates(map[string]any{
		"is_active":  active,
		"updated_at": time.Now().UTC(),
	})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrRoomNotFound
	}
	return nil
}

func (r *PostgresRoomRepository) Delete(ctx context.Context, id uuid.UUID) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	res := r.db.WithContext(ctx).Delete(&model.Room{}, "id = ?", id)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrRoomNotFound
	}
	return nil
}

type PostgresParticipantRepository struct {
	db *gorm.DB
}

func NewPostgresParticipantRepository(db *gorm.DB) *PostgresParticipantRepository {
	return &PostgresParticipantRepository{db: db}
}

func (r *PostgresParticipantRepository) Add(ctx context.Context, participant *domain.Participant) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if participant == nil {
		return errors.New("participant is nil")
	}

	if err := r.db.WithContext(ctx).Create(toModelParticipant(participant)).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return ErrAlreadyJoined
		}
		return err
	}
	return nil
}

func (r *PostgresParticipantRepository) Remove(ctx context.Context, roomID, userID uuid.UUID) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	res := r.db.WithContext(ctx).
		Where("room_id = ? AND user_id = ?", roomID, userID).
		Delete(&model.RoomParticipant{})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrParticipantNotFound
	}
	return nil
}

func (r *PostgresParticipantRepository) ListByRoom(ctx context.Context, roomID uuid.UUID) ([]*domain.Participant, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var participants []model.RoomParticipant
	err := r.db.WithContext(ctx).
		Where("room_id = ?", roomID).
		Order("joined_at ASC").
		Find(&participants).Error
	if err != nil {
		return nil, err
	}

	result := make([]*domain.Participant, 0, len(participants))
	for i := range participants {
		result = append(result, toDomainParticipant(&participants[i]))
	}
	return result, nil
}

type PostgresSignalRepository struct {
	db *gorm.DB
}

func NewPostgresSignalRepository(db *gorm.DB) *PostgresSignalRepository {
	return &PostgresSignalRepository{db: db}
}

func (r *PostgresSignalRepository) Create(ctx context.Context, signal *domain.SignalMessage) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if signal == nil {
		return errors.New("signal is nil")
	}

	row, err := toModelSignal(signal)
	if err != nil {
		return err
	}
	return r.db.WithContext(ctx).Create(row).Error
}

func (r *PostgresSignalRepository) Delete(ctx context.Context, id uuid.UUID) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	res := r.db.WithContext(ctx).Delete(&model.WebRTCSignal{}, "id = ?", id)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrSignalNotFound
	}
	return nil
}

func (r *PostgresSignalRepository) DeleteForUser(ctx context.Context, roomID, userID uuid.UUID) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	res := r.db.WithContext(ctx).
		Where("room_id = ? AND (from_user_id = ? OR to_user_id = ?)", roomID, userID, userID).
		Delete(&model.WebRTCSignal{})
	return res.RowsAffected, res.Error
}

func (r *PostgresSignalRepository) ListByRoom(ctx context.Context, roomID uuid.UUID) ([]*domain.SignalMessage, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var signals []model.WebRTCSignal
	err := r.db.WithContext(ctx).
		Where("room_id = ?", roomID).
		Order("created_at ASC").
		Find(&signals).Error
	if err != nil {
		return nil, err
	}

	result := make([]*domain.SignalMessage, 0, len(signals))
	for i := range signals {
		signal, err := toDomainSignal(&signals[i])
		if err != nil {
			return nil, err
		}
		result = append(result, signal)
	}
	return result, nil
}

func (r *PostgresSignalRepository) DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	res := r.db.WithContext(ctx).
		Where("created_at < ?", cutoff.UTC()).
		Delete(&model.WebRTCSignal{})
	return res.RowsAffected, res.Error
}

type PostgresBattleRepository struct {
	db *gorm.DB
}

func NewPostgresBattleRepository(db *gorm.DB) *PostgresBattleRepository {
	return &PostgresBattleRepository{db: db}
}

func (r *PostgresBattleRepository) Create(ctx context.Context, battle *domain.Battle) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if battle == nil {
		return errors.New("battle is nil")
	}

	return r.db.WithContext(ctx).Create(toModelBattle(battle)).Error
}

func (r *PostgresBattleRepository) GetByID(ctx context.Context, id uuid.UUID) (*domain.Battle, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var battle model.CodeBattle
	err := r.db.WithContext(ctx).First(&battle, "id = ?", id).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrBattleNotFound
		}
		return nil, err
	}

	return toDomainBattle(&battle), nil
}

func (r *PostgresBattleRepository) List(ctx context.Context) ([]*domain.Battle, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var battles []model.CodeBattle
	if err := r.db.WithContext(ctx).Order("created_at DESC").Find(&battles).Error; err != nil {
		return nil, err
	}

	result := make([]*domain.Battle, 0, len(battles))
	for i := range battles {
		result = append(result, toDomainBattle(&battles[i]))
	}
	return result, nil
}

// Start is a conditional write: only a waiting battle becomes active, so a
// repeated start loses the race cleanly.
func (r *PostgresBattleRepository) Start(ctx context.Context, battleID uuid.UUID, startedAt time.Time) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	res := r.db.WithContext(ctx).Model(&model.CodeBattle{}).
		Where("id = ? AND status = ?", battleID, string(domain.BattleStatusWaiting)).
		Updates(map[string]any{
			"status":     string(domain.BattleStatusActive),
			"started_at": startedAt.UTC(),
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		if _, err := r.GetByID(ctx, battleID); err != nil {
			return err
		}
		return ErrInvalidTransition
	}
	return nil
}

// Complete is idempotent: racing completers after expiry all issue the same
// conditional write and only the first one changes the row.
func (r *PostgresBattleRepository) Complete(ctx context.Context, battleID uuid.UUID, endedAt time.Time) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}

	res := r.db.WithContext(ctx).Model(&model.CodeBattle{}).
		Where("id = ? AND status = ?", battleID, string(domain.BattleStatusActive)).
		Updates(map[string]any{
			"status":   string(domain.BattleStatusCompleted),
			"ended_at": endedAt.UTC(),
		})
	if res.Error != nil {
		return false, res.Error
	}
	if res.RowsAffected == 0 {
		if _, err := r.GetByID(ctx, battleID); err != nil {
			return false, err
		}
		return false, nil
	}
	return true, nil
}

type PostgresBattleParticipantRepository struct {
	db *gorm.DB
}

func NewPostgresBattleParticipantRepository(db *gorm.DB) *PostgresBattleParticipantRepository {
	return &PostgresBattleParticipantRepository{db: db}
}

func (r *PostgresBattleParticipantRepository) Add(ctx context.Context, participant *domain.BattleParticipant) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if participant == nil {
		return errors.New("participant is nil")
	}

	if err := r.db.WithContext(ctx).Create(toModelBattleParticipant(participant)).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return ErrAlreadyJoined
		}
		return err
	}
	return nil
}

func (r *PostgresBattleParticipantRepository) Get(ctx context.Context, battleID, userID uuid.UUID) (*domain.BattleParticipant, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var participant model.BattleParticipant
	err := r.db.WithContext(ctx).
		First(&participant, "battle_id = ? AND user_id = ?", battleID, userID).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrParticipantNotFound
		}
		return nil, err
	}

	return toDomainBattleParticipant(&participant), nil
}

func (r *PostgresBattleParticipantRepository) ListByBattle(ctx context.Context, battleID uuid.UUID) ([]*domain.BattleParticipant, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var participants []model.BattleParticipant
	err := r.db.WithContext(ctx).
		Where("battle_id = ?", battleID).
		Order("joined_at ASC").
		Find(&participants).Error
	if err != nil {
		return nil, err
	}

	result := make([]*domain.BattleParticipant, 0, len(participants))
	for i := range participants {
		result = append(result, toDomainBattleParticipant(&participants[i]))
	}
	return result, nil
}

func (r *PostgresBattleParticipantRepository) UpdateSubmission(ctx context.Context, participant *domain.BattleParticipant) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if participant == nil {
		return errors.New("participant is nil")
	}

	updates := map[string]any{
		"status":          string(participant.Status),
		"score":           participant.Score,
		"submission_code": participant.SubmissionCode,
		"is_correct":      participant.IsCorrect,
	}
	if participant.SubmissionTime != nil {
		updates["submission_time"] = participant.SubmissionTime.UTC()
	}

	res := r.db.WithContext(ctx).Model(&model.BattleParticipant{}).
		Where("battle_id = ? AND user_id = ?", participant.BattleID, participant.UserID).
		Updates(updates)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrParticipantNotFound
	}
	return nil
}

type PostgresUserRepository struct {
	db *gorm.DB
}

func NewPostgresUserRepository(db *gorm.DB) *PostgresUserRepository {
	return &PostgresUserRepository{db: db}
}

func (r *PostgresUserRepository) Create(ctx context.Context, user *domain.User) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if user == nil {
		return errors.New("user is nil")
	}

	if err := r.db.WithContext(ctx).Create(toModelUser(user)).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return ErrUserEmailExists
		}
		return err
	}
	return nil
}

func (r *PostgresUserRepository) GetByID(ctx context.Context, id uuid.UUID) (*domain.User, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var user model.User
	err := r.db.WithContext(ctx).First(&user, "id = ?", id).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrUserNotFound
		}
		return nil, err
	}

	return toDomainUser(&user), nil
}

func (r *PostgresUserRepository) Update(ctx context.Context, user *domain.User) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if user == nil {
		return errors.New("user is nil")
	}

	userModel := toModelUser(user)

	updates := map[string]any{
		"name":       userModel.Name,
		"is_guest":   userModel.IsGuest,
		"updated_at": userModel.UpdatedAt,
	}
	if userModel.Email == nil {
		updates["email"] = gorm.Expr("NULL")
	} else {
		updates["email"] = userModel.Email
	}

	res := r.db.WithContext(ctx).Model(&model.User{}).Where("id = ?", userModel.ID).Updates(updates)
	if res.Error != nil {
		if errors.Is(res.Error, gorm.ErrDuplicatedKey) {
			return ErrUserEmailExists
		}
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrUserNotFound
	}
	return nil
}

type signalPayload struct {
	SDP       *webrtc.SessionDescription `json:"sdp,omitempty"`
	Candidate *webrtc.ICECandidateInit   `json:"candidate,omitempty"`
}

func toModelRoom(room *domain.Room) *model.Room {
	room.Mutex.RLock()
	defer room.Mutex.RUnlock()

	return &model.Room{
		ID:              room.ID,
		Name:            room.Name,
		Description:     room.Description,
		Language:        room.Language,
		CodeContent:     room.Document,
		CreatedBy:       room.CreatedBy,
		IsActive:        room.IsActive,
		MaxParticipants: room.MaxParticipants,
		CreatedAt:       room.CreatedAt.UTC(),
		UpdatedAt:       room.UpdatedAt.UTC(),
	}
}

func toDomainRoom(room *model.Room) *domain.Room {
	return &domain.Room{
		ID:              room.ID,
		Name:            room.Name,
		Description:     room.Description,
		Language:        room.Language,
		Document:        room.CodeContent,
		CreatedBy:       room.CreatedBy,
		IsActive:        room.IsActive,
		MaxParticipants: room.MaxParticipants,
		Participants:    make(map[string]*domain.Participant),
		CreatedAt:       room.CreatedAt.UTC(),
		UpdatedAt:       room.UpdatedAt.UTC(),
	}
}

func toModelParticipant(p *domain.Participant) *model.RoomParticipant {
	joinedAt := p.JoinedAt
	if joinedAt.IsZero() {
		joinedAt = time.Now().UTC()
	}
	lastSeen := p.LastSeen
	if lastSeen.IsZero() {
		lastSeen = joinedAt
	}
	return &model.RoomParticipant{
		ID:       p.ID,
		RoomID:   p.RoomID,
		UserID:   p.UserID,
		Username: p.Username,
		IsHost:   p.IsHost,
		JoinedAt: joinedAt.UTC(),
		LastSeen: lastSeen.UTC(),
	}
}

func toDomainParticipant(p *model.RoomParticipant) *domain.Participant {
	return &domain.Participant{
		ID:       p.ID,
		RoomID:   p.RoomID,
		UserID:   p.UserID,
		Username: p.Username,
		IsHost:   p.IsHost,
		Status:   domain.ParticipantStatusDisconnected,
		JoinedAt: p.JoinedAt.UTC(),
		LastSeen: p.LastSeen.UTC(),
		Events:   make(chan domain.RoomEvent, 16),
	}
}

func toModelSignal(signal *domain.SignalMessage) (*model.WebRTCSignal, error) {
	data, err := json.Marshal(signalPayload{SDP: signal.SDP, Candidate: signal.Candidate})
	if err != nil {
		return nil, err
	}
	return &model.WebRTCSignal{
		ID:         signal.ID,
		RoomID:     signal.RoomID,
		FromUserID: signal.FromUserID,
		ToUserID:   signal.ToUserID,
		SignalType: string(signal.Kind),
		SignalData: data,
		CreatedAt:  signal.CreatedAt.UTC(),
	}, nil
}

func toDomainSignal(signal *model.WebRTCSignal) (*domain.SignalMessage, error) {
	var payload signalPayload
	if len(signal.SignalData) > 0 {
		if err := json.Unmarshal(signal.SignalData, &payload); err != nil {
			return nil, err
		}
	}
	return &domain.SignalMessage{
		ID:         signal.ID,
		RoomID:     signal.RoomID,
		FromUserID: signal.FromUserID,
		ToUserID:   signal.ToUserID,
		Kind:       domain.SignalKind(signal.SignalType),
		SDP:        payload.SDP,
		Candidate:  payload.Candidate,
		CreatedAt:  signal.CreatedAt.UTC(),
	}, nil
}

func toModelBattle(battle *domain.Battle) *model.CodeBattle {
	return &model.CodeBattle{
		ID:               battle.ID,
		Title:            battle.Title,
		Description:      battle.Description,
		ProblemStatement: battle.ProblemStatement,
		StarterCode:      battle.StarterCode,
		Difficulty:       battle.Difficulty,
		TimeLimitSeconds: battle.TimeLimitSeconds,
		MaxParticipants:  battle.MaxParticipants,
		Status:           string(battle.Status),
		StartedAt:        battle.StartedAt,
		EndedAt:          battle.EndedAt,
		CreatedBy:        battle.CreatedBy,
		CreatedAt:        battle.CreatedAt.UTC(),
	}
}

func toDomainBattle(battle *model.CodeBattle) *domain.Battle {
	return &domain.Battle{
		ID:               battle.ID,
		Title:            battle.Title,
		Description:      battle.Description,
		ProblemStatement: battle.ProblemStatement,
		StarterCode:      battle.StarterCode,
		Difficulty:       battle.Difficulty,
		TimeLimitSeconds: battle.TimeLimitSeconds,
		MaxParticipants:  battle.MaxParticipants,
		Status:           domain.BattleStatus(battle.Status),
		StartedAt:        battle.StartedAt,
		EndedAt:          battle.EndedAt,
		CreatedBy:        battle.CreatedBy,
		CreatedAt:        battle.CreatedAt.UTC(),
	}
}

func toModelBattleParticipant(p *domain.BattleParticipant) *model.BattleParticipant {
	return &model.BattleParticipant{
		ID:             p.ID,
		BattleID:       p.BattleID,
		UserID:         p.UserID,
		Username:       p.Username,
		Status:         string(p.Status),
		Score:          p.Score,
		SubmissionCode: p.SubmissionCode,
		SubmissionTime: p.SubmissionTime,
		IsCorrect:      p.IsCorrect,
		JoinedAt:       p.JoinedAt.UTC(),
	}
}

func toDomainBattleParticipant(p *model.BattleParticipant) *domain.BattleParticipant {
	return &domain.BattleParticipant{
		ID:             p.ID,
		BattleID:       p.BattleID,
		UserID:         p.UserID,
		Username:       p.Username,
		Status:         domain.BattleParticipantStatus(p.Status),
		Score:          p.Score,
		SubmissionCode: p.SubmissionCode,
		SubmissionTime: p.SubmissionTime,
		IsCorrect:      p.IsCorrect,
		JoinedAt:       p.JoinedAt.UTC(),
	}
}

func toModelUser(user *domain.User) *model.User {
	var email *string
	if user.Email != "" {
		e := user.Email
		email = &e
	}
	return &model.User{
		ID:        user.ID,
		Name:      user.Name,
		Email:     email,
		IsGuest:   user.IsGuest,
		CreatedAt: user.CreatedAt.UTC(),
		UpdatedAt: user.UpdatedAt.UTC(),
	}
}

func toDomainUser(user *model.User) *domain.User {
	email := ""
	if user.Email != nil {
		email = *user.Email
	}
	return &domain.User{
		ID:        user.ID,
		Name:      user.Name,
		Email:     email,
		IsGuest:   user.IsGuest,
		CreatedAt: user.CreatedAt.UTC(),
		UpdatedAt: user.UpdatedAt.UTC(),
	}
}
