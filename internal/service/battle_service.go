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
	ErrNotBattleCreator     = errors.New("only the battle creator can start it")
	ErrNotEnoughPlayers     = errors.New("battle needs at least two participants")
	ErrBattleNotJoinable    = errors.New("battle is not accepting participants")
	ErrBattleFull           = errors.New("battle is full")
	ErrBattleNotActive      = errors.New("battle is not active")
	ErrTimeLimitRequired    = errors.New("time limit is required")
	ErrProblemRequired      = errors.New("problem statement is required")
	ErrSubmissionNotAllowed = errors.New("participant has not joined the battle")
)

// BattleService drives the battle state machine: waiting -> active ->
// completed, terminal. The deadline is derived from started_at plus the
// time limit; the service arms a safety timer at activation, but any
// client whose countdown reaches zero may also request completion and the
// conditional status write makes the race harmless.
type BattleService struct {
	battles      repository.BattleRepository
	participants repository.BattleParticipantRepository
	users        repository.UserRepository
	bus          *feed.Bus
	log          *slog.Logger
	now          func() time.Time

	mu     sync.Mutex
	timers map[uuid.UUID]*time.Timer
}

func NewBattleService(
	battles repository.BattleRepository,
	participants repository.BattleParticipantRepository,
	users repository.UserRepository,
	bus *feed.Bus,
	log *slog.Logger,
) *BattleService {
	if log == nil {
		log = slog.Default()
	}
	return &BattleService{
		battles:      battles,
		participants: participants,
		users:        users,
		bus:          bus,
		log:          log,
		now:          time.Now,
		timers:       make(map[uuid.UUID]*time.Timer),
	}
}

func (s *BattleService) CreateBattle(ctx context.Context, input CreateBattleInput) (*domain.Battle, error) {
	const op = "service.battle.create"
	if input.Title == "" {
		return nil, errors.New("title is required")
	}
	if input.ProblemStatement == "" {
		return nil, ErrProblemRequired
	}
	if input.TimeLimitSeconds <= 0 {
		return nil, ErrTimeLimitRequired
	}
	if input.CreatedBy == uuid.Nil {
		return nil, errors.New("creator is required")
	}

	battle := domain.NewBattle(
		input.Title,
		input.Description,
		input.ProblemStatement,
		input.StarterCode,
		input.Difficulty,
		input.TimeLimitSeconds,
		input.MaxParticipants,
		input.CreatedBy,
	)
	if err := s.battles.Create(ctx, battle); err != nil {
		return nil, err
	}

	s.publishBattle(feed.OpInsert, battle)
	s.log.Info("battle created",
		slog.String("op", op),
		slog.String("battle_id", battle.ID.String()),
		slog.Int("time_limit_seconds", battle.TimeLimitSeconds),
	)
	return battle, nil
}

func (s *BattleService) GetBattle(ctx context.Context, id uuid.UUID) (*domain.Battle, error) {
	return s.battles.GetByID(ctx, id)
}

func (s *BattleService) ListBattles(ctx context.Context) ([]*domain.Battle, error) {
	return s.battles.List(ctx)
}

// JoinBattle adds the user while the battle is still waiting. A duplicate
// join returns the existing entry instead of a second row.
func (s *BattleService) JoinBattle(ctx context.Context, battleID uuid.UUID, user *domain.User) (*domain.BattleParticipant, error) {
	const op = "service.battle.join"
	log := s.log.With(
		slog.String("op", op),
		slog.String("battle_id", battleID.String()),
	)

	if user == nil {
		return nil, errors.New("user is required")
	}

	battle, err := s.battles.GetByID(ctx, battleID)
	if err != nil {
		return nil, err
	}
	if battle.Status != domain.BattleStatusWaiting {
		return nil, ErrBattleNotJoinable
	}

	existing, err := s.participants.ListByBattle(ctx, battleID)
	if err != nil {
		return nil, err
	}
	if len(existing) >= battle.MaxParticipants {
		return nil, ErrBattleFull
	}

	if err := s.ensureUser(ctx, user); err != nil {
		return nil, err
	}

	participant := domain.NewBattleParticipant(battleID, user.ID, user.Name)
	if err := s.participants.Add(ctx, participant); err != nil {
		if !errors.Is(err, repository.ErrAlreadyJoined) {
			return nil, err
		}
		log.Info("already joined", slog.String("user_id", user.ID.String()))
		return s.participants.Get(ctx, battleID, user.ID)
	}

	s.publishBattleParticipant(feed.OpInsert, participant)
	log.Info("participant joined", slog.String("user_id", user.ID.String()))
	return participant, nil
}

// StartBattle moves waiting -> active. Only the creator may start, and at
// least two distinct participants must have joined.
func (s *BattleService) StartBattle(ctx context.Context, battleID, byUserID uuid.UUID) (*domain.Battle, error) {
	const op = "service.battle.start"
	log := s.log.With(
		slog.String("op", op),
		slog.String("battle_id", battleID.String()),
	)

	battle, err := s.battles.GetByID(ctx, battleID)
	if err != nil {
		return nil, err
	}
	if battle.CreatedBy != byUserID {
		return nil, ErrNotBattleCreator
	}

	participants, err := s.participants.ListByBattle(ctx, battleID)
	if err != nil {
		return nil, err
	}
	if len(participants) < domain.MinBattleParticipants {
		return nil, ErrNotEnoughPlayers
	}

	startedAt := s.now().UTC()
	if err := s.battles.Start(ctx, battleID, startedAt); err != nil {
		return nil, err
	}

	battle, err = s.battles.GetByID(ctx, battleID)
	if err != nil {
		return nil, err
	}

	s.armDeadlineTimer(battle)
	s.publishBattle(feed.OpUpdate, battle)
	observability.IncBattlesActive()

	log.Info("battle started",
		slog.Time("started_at", startedAt),
		slog.Int("participants", len(participants)),
	)
	return battle, nil
}

// CompleteBattle moves active -> completed. It is idempotent: every client
// whose countdown expires calls this, and only the first write changes the
// row; the rest observe the already-completed battle and no-op.
func (s *BattleService) CompleteBattle(ctx context.Context, battleID uuid.UUID) (*domain.Battle, error) {
	const op = "service.battle.complete"

	changed, err := s.battles.Complete(ctx, battleID, s.now().UTC())
	if err != nil {
		return nil, err
	}

	battle, err := s.battles.GetByID(ctx, battleID)
	if err != nil {
		return nil, err
	}

	if changed {
		s.disarmDeadlineTimer(battleID)
		s.publishBattle(feed.OpUpdate, battle)
		observability.DecBattlesActive()
		s.log.Info("battle completed", slog.String("op", op), slog.String("battle_id", battleID.String()))
	} else {
		s.log.Debug("battle already completed", slog.String("op", op), slog.String("battle_id", battleID.String()))
	}
	return battle, nil
}

// Submit records the participant's code. Correctness is the documented
// placeholder heuristic and the score derives from the client-observed
// elapsed time; neither is server-verified (trusted-client gap, flagged in
// the design notes). A second submit overwrites the same row.
func (s *BattleService) Submit(ctx context.Context, battleID, userID uuid.UUID, code string) (*domain.BattleParticipant, error) {
	const op = "service.battle.submit"
	log := s.log.With(
		slog.String("op", op),
		slog.String("battle_id", battleID.String()),
		slog.String("user_id", userID.String()),
	)

	battle, err := s.battles.GetByID(ctx, battleID)
	if err != nil {
		return nil, err
	}
	if battle.Status != domain.BattleStatusActive {
		return nil, ErrBattleNotActive
	}

	participant, err := s.participants.Get(ctx, battleID, userID)
	if err != nil {
		if errors.Is(err, repository.ErrParticipantNotFound) {
			return nil, ErrSubmissionNotAllowed
		}
		return nil, err
	}

	now := s.now().UTC()
	elapsed := time.Duration(0)
	if battle.StartedAt != nil {
		elapsed = now.Sub(*battle.StartedAt)
	}

	correct := domain.EvaluateSubmission(code)
	participant.Status = domain.BattleParticipantSubmitted
	participant.SubmissionCode = code
	participant.SubmissionTime = &now
	participant.IsCorrect = correct
	participant.Score = domain.SubmissionScore(correct, elapsed)

	if err := s.participants.UpdateSubmission(ctx, participant); err != nil {
		log.Error("failed to store submission", sl.Err(err))
		return nil, err
	}

	s.publishBattleParticipant(feed.OpUpdate, participant)
	observability.IncSubmission(correct)

	log.Info("submission recorded",
		slog.Bool("is_correct", correct),
		slog.Int("score", participant.Score),
	)
	return participant, nil
}

func (s *BattleService) ListBattleParticipants(ctx context.Context, battleID uuid.UUID) ([]*domain.BattleParticipant, error) {
	return s.participants.ListByBattle(ctx, battleID)
}

// Close disarms all pending deadline timers.
func (s *BattleService) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for id, timer := range s.timers {
		timer.Stop()
		delete(s.timers, id)
	}
}

// armDeadlineTimer schedules the server-side completion at the derived
// deadline. Clients still drive their own countdowns; this is the backstop
// for a battle whose participants all disconnect.
func (s *BattleService) armDeadlineTimer(battle *domain.Battle) {
	remaining := battle.Remaining(s.now().UTC())
	if remaining <= 0 {
		remaining = time.Millisecond
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if existing, ok := s.timers[battle.ID]; ok {
		existing.Stop()
	}
	battleID := battle.ID
	s.timers[battleID] = time.AfterFunc(remaining, func() {
		if _, err := s.CompleteBattle(context.Background(), battleID); err != nil {
			s.log.Error("deadline completion failed",
				slog.String("battle_id", battleID.String()),
				sl.Err(err),
			)
		}
	})
}

func (s *BattleService) disarmDeadlineTimer(battleID uuid.UUID) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if timer, ok := s.timers[battleID]; ok {
		timer.Stop()
		delete(s.timers, battleID)
	}
}

func (s *BattleService) ensureUser(ctx context.Context, user *domain.User) error {
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

func (s *BattleService) publishBattle(op feed.Op, battle *domain.Battle) {
	s.bus.Publish(feed.Event{
		Table: TableBattles,
		Op:    op,
		Keys:  map[string]string{"id": battle.ID.String()},
		Row:   battle,
	})
}

func (s *BattleService) publishBattleParticipant(op feed.Op, participant *domain.BattleParticipant) {
	s.bus.Publish(feed.Event{
		Table: TableBattleParticipants,
		Op:    op,
		Keys: map[string]string{
			"battle_id": participant.BattleID.String(),
			"user_id":   participant.UserID.String(),
		},
		Row: participant,
	})
}
