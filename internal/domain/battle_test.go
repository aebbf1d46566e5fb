package domain

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
)

func TestEvaluateSubmission(t *testing.T) {
	long := "func solve(nums []int) int {\n\ttotal := 0\n\treturn total\n}"

	assert.True(t, EvaluateSubmission(long))
	// Too short, even with a return.
	assert.False(t, EvaluateSubmission("return 1"))
	// Long enough but no return statement.
	assert.False(t, EvaluateSubmission("func solve(nums []int) { fmt.Println(len(nums), cap(nums)) }"))
	assert.False(t, EvaluateSubmission(""))
}

func TestSubmissionScore(t *testing.T) {
	assert.Equal(t, 0, SubmissionScore(false, time.Second))
	assert.Equal(t, 1000, SubmissionScore(true, 0))
	assert.Equal(t, 997, SubmissionScore(true, 30*time.Second))
	assert.Equal(t, 640, SubmissionScore(true, time.Hour))
	// Floor at 100 regardless of elapsed time.
	assert.Equal(t, 100, SubmissionScore(true, 10*time.Hour))
}

func TestBattleDeadline(t *testing.T) {
	battle := NewBattle("b", "", "p", "", "easy", 600, 0, uuid.New())

	_, ok := battle.Deadline()
	assert.False(t, ok, "deadline undefined before start")
	assert.False(t, battle.Expired(time.Now()))

	started := time.Now().UTC()
	battle.StartedAt = &started
	battle.Status = BattleStatusActive

	deadline, ok := battle.Deadline()
	assert.True(t, ok)
	assert.Equal(t, started.Add(10*time.Minute), deadline)

	assert.Equal(t, 9*time.Minute, battle.Remaining(started.Add(time.Minute)))
	assert.Equal(t, time.Duration(0), battle.Remaining(started.Add(time.Hour)))
	assert.False(t, battle.Expired(started.Add(9*time.Minute)))
	assert.True(t, battle.Expired(started.Add(10*time.Minute)))
}
