package converter

import (
	"time"

	"github.com/ddenisenko/clubcode/internal/domain"
	"github.com/google/uuid"
)

type BattleResponse struct {
	ID               uuid.UUID           `json:"id"`
	Title            string              `json:"title"`
	Description      string              `json:"description"`
	ProblemStatement string              `json:"problem_statement"`
	StarterCode      string              `json:"starter_code"`
	Difficulty       string              `json:"difficulty"`
	TimeLimitSeconds int                 `json:"time_limit_seconds"`
	MaxParticipants  int                 `json:"max_participants"`
	Status           domain.BattleStatus `json:"status"`
	StartedAt        *time.Time          `json:"started_at,omitempty"`
	EndedAt          *time.Time          `json:"ended_at,omitempty"`
	RemainingSeconds int                 `json:"remaining_seconds"`
	CreatedBy        uuid.UUID           `json:"created_by"`
	CreatedAt        time.Time           `json:"created_at"`
}

type BattleParticipantResponse struct {
	ID             uuid.UUID                      `json:"id"`
	BattleID       uuid.UUID                      `json:"battle_id"`
	UserID         uuid.UUID                      `json:"user_id"`
	Username       string                         `json:"username"`
	Status         domain.BattleParticipantStatus `json:"status"`
	Score          int                            `json:"score"`
	IsCorrect      bool                           `json:"is_correct"`
	SubmissionTime *time.Time                     `json:"submission_time,omitempty"`
	JoinedAt       time.Time                      `json:"joined_at"`
}

// BattleToApi serializes a battle. RemainingSeconds is computed from the
// server clock at response time; clients recompute their own countdown from
// started_at and may drift from it.
func BattleToApi(b *domain.Battle) *BattleResponse {
	return &BattleResponse{
		ID:               b.ID,
		Title:            b.Title,
		Description:      b.Description,
		ProblemStatement: b.ProblemStatement,
		StarterCode:      b.StarterCode,
		Difficulty:       b.Difficulty,
		TimeLimitSeconds: b.TimeLimitSeconds,
		MaxParticipants:  b.MaxParticipants,
		Status:           b.Status,
		StartedAt:        b.StartedAt,
		EndedAt:          b.EndedAt,
		RemainingSeconds: int(b.Remaining(time.Now().UTC()).Seconds()),
		CreatedBy:        b.CreatedBy,
		CreatedAt:        b.CreatedAt,
	}
}

func BattleParticipantToApi(p *domain.BattleParticipant) BattleParticipantResponse {
	return BattleParticipantResponse{
		ID:             p.ID,
		BattleID:       p.BattleID,
		UserID:         p.UserID,
		Username:       p.Username,
		Status:         p.Status,
		Score:          p.Score,
		IsCorrect:      p.IsCorrect,
		SubmissionTime: p.SubmissionTime,
		JoinedAt:       p.JoinedAt,
	}
}
