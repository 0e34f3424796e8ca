package models

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

func GenerateWagerID() string {
	return uuid.New().String()
}

func GenerateTransactionID() string {
	return fmt.Sprintf("tx_%s_%d",
		time.Now().Format("20060102"),
		uuid.New().ID())
}

// NormalizeUserID maps an omitted user id to the shared sentinel account.
func NormalizeUserID(userID string) string {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return DefaultUserID
	}
	return userID
}

func NewUserAccount(userID string, startingMana int64) *UserAccount {
	now := time.Now().Unix()
	return &UserAccount{
		UserID:    NormalizeUserID(userID),
		Balance:   startingMana,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

func DefaultRPGStats() RPGStats {
	return RPGStats{
		Endurance:     10,
		Focus:         10,
		Magic:         10,
		Level:         1,
		XP:            0,
		XPToNextLevel: 100,
		Title:         "First Year",
		Badges:        []string{},
	}
}

func (a *UserAccount) ToResponse() BalanceResponse {
	return BalanceResponse{
		UserID:          a.UserID,
		Balance:         a.Balance,
		TotalEarned:     a.TotalEarned,
		TotalLost:       a.TotalLost,
		QuestsCompleted: a.QuestsCompleted,
	}
}

// Validate checks the invariants every emitted task must hold.
func (t *MicroTask) Validate() error {
	if strings.TrimSpace(t.ID) == "" {
		return fmt.Errorf("task id is required")
	}
	if strings.TrimSpace(t.Title) == "" {
		return fmt.Errorf("task %s: title is required", t.ID)
	}
	if t.DurationMinutes < 1 {
		return fmt.Errorf("task %s: duration_minutes must be at least 1, got %d", t.ID, t.DurationMinutes)
	}
	if t.RequiredStake <= 0 {
		return fmt.Errorf("task %s: required_stake must be positive, got %d", t.ID, t.RequiredStake)
	}
	if t.RewardBounty <= t.RequiredStake {
		return fmt.Errorf("task %s: reward_bounty %d must exceed required_stake %d",
			t.ID, t.RewardBounty, t.RequiredStake)
	}
	return nil
}

func (q *QuestLog) Validate() error {
	if len(q.Tasks) == 0 {
		return fmt.Errorf("quest log contains no tasks")
	}
	for i := range q.Tasks {
		if err := q.Tasks[i].Validate(); err != nil {
			return err
		}
	}
	return nil
}

func (q *QuestLog) TotalMinutes(limit int) int {
	total := 0
	for i, task := range q.Tasks {
		if limit > 0 && i >= limit {
			break
		}
		total += task.DurationMinutes
	}
	return total
}

func (r *WagerStartRequest) Validate() error {
	if strings.TrimSpace(r.TaskID) == "" {
		return fmt.Errorf("task_id is required")
	}
	if r.Stake < 0 {
		return fmt.Errorf("stake must not be negative")
	}
	if r.Bounty < 0 {
		return fmt.Errorf("bounty must not be negative")
	}
	if r.DurationSeconds < 0 || r.DurationSeconds > MaxWagerDurationSeconds {
		return fmt.Errorf("duration_seconds must be between 0 and %d", MaxWagerDurationSeconds)
	}
	return validateWagerKey(r.UserID, r.TaskID)
}

func (r *WagerCompleteRequest) Validate() error {
	if strings.TrimSpace(r.TaskID) == "" {
		return fmt.Errorf("task_id is required")
	}
	if r.Stake < 0 || r.Bounty < 0 {
		return fmt.Errorf("stake and bounty must not be negative")
	}
	return validateWagerKey(r.UserID, r.TaskID)
}

// validateWagerKey rejects NUL, which separates user and task in the
// deadline index.
func validateWagerKey(userID, taskID string) error {
	if strings.ContainsRune(userID, 0) {
		return fmt.Errorf("user_id must not contain NUL")
	}
	if strings.ContainsRune(taskID, 0) {
		return fmt.Errorf("task_id must not contain NUL")
	}
	return nil
}
