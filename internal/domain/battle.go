package domain

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

type BattleStatus string

const (
	BattleStatusWaiting   BattleStatus = "waiting"
	BattleStatusActive    BattleStatus = "active"
	BattleStatusCompleted BattleStatus = "completed"
)

type BattleParticipantStatus string

const (
	BattleParticipantCoding    BattleParticipantStatus = "coding"
	BattleParticipantSubmitted BattleParticipantStatus = "submitted"
)

const MinBattleParticipants = 2

// Battle is a timed competitive coding session. Status moves strictly
// waiting -> active -> completed; completed is terminal and re-entry
// requires a new battle.
type Battle struct {
	ID               uuid.UUID
	Title            string
	Description      string
	ProblemStatement string
	StarterCode      string
	Difficulty       string
	TimeLimitSeconds int
	MaxParticipants  int
	Status           BattleStatus
	StartedAt        *time.Time
	EndedAt          *time.Time
	CreatedBy        uuid.UUID
	CreatedAt        time.Time
}

func NewBattle(title, description, problem, starterCode, difficulty string, timeLimitSeconds, maxParticipants int, createdBy uuid.UUID) *Battle {
	if maxParticipants <= 0 {
		maxParticipants = DefaultMaxParticipants
	}
	return &Battle{
		ID:               uuid.New(),
		Title:            title,
		Description:      description,
		ProblemStatement: problem,
		StarterCode:      starterCode,
		Difficulty:       difficulty,
		TimeLimitSeconds: timeLimitSeconds,
		MaxParticipants:  maxParticipants,
		Status:           BattleStatusWaiting,
		CreatedBy:        createdBy,
		CreatedAt:        time.Now().UTC(),
	}
}

// Deadline is derived from started_at plus the time limit; it is never
// stored. Clients recompute it independently, so their countdowns can drift
// by local clock skew plus the latency of observing the active transition.
func (b *Battle) Deadline() (time.Time, bool) {
	if b.StartedAt == nil {
		return time.Time{}, false
	}
	return b.StartedAt.Add(time.Duration(b.TimeLimitSeconds) * time.Second), true
}

// Remaining reports the seconds left on the countdown at the given instant.
func (b *Battle) Remaining(now time.Time) time.Duration {
	deadline, ok := b.Deadline()
	if !ok {
		return 0
	}
	left := deadline.Sub(now)
	if left < 0 {
		return 0
	}
	return left
}

func (b *Battle) Expired(now time.Time) bool {
	deadline, ok := b.Deadline()
	if !ok {
		return false
	}
	return !now.Before(deadline)
}

// BattleParticipant is one user's entry in a battle. The (battle, user)
// pair is unique; joining twice reuses the existing row.
type BattleParticipant struct {
	ID             uuid.UUID
	BattleID       uuid.UUID
	UserID         uuid.UUID
	Username       string
	Status         BattleParticipantStatus
	Score          int
	SubmissionCode string
	SubmissionTime *time.Time
	IsCorrect      bool
	JoinedAt       time.Time
}

func NewBattleParticipant(battleID, userID uuid.UUID, username string) *BattleParticipant {
	return &BattleParticipant{
		ID:       uuid.New(),
		BattleID: battleID,
		UserID:   userID,
		Username: username,
		Status:   BattleParticipantCoding,
		JoinedAt: time.Now().UTC(),
	}
}

// EvaluateSubmission is the placeholder correctness check: non-trivial
// length and a return statement. It is a stand-in for a real grader, not
// one; the submitting client is trusted for correctness and score.
func EvaluateSubmission(code string) bool {
	return len(code) > 50 && strings.Contains(code, "return")
}

// SubmissionScore computes the score for a correct submission from the
// elapsed time since the battle started. Incorrect submissions score zero.
func SubmissionScore(correct bool, elapsed time.Duration) int {
	if !correct {
		return 0
	}
	score := 1000 - int(elapsed.Seconds())/10
	if score < 100 {
		return 100
	}
	return score
}
