package models

import "time"

const (
	DefaultUserID = "default"
	StartingMana  = 1000
)

type UserAccount struct {
	UserID          string `json:"user_id" redis:"user_id"`
	Balance         int64  `json:"balance" redis:"balance"`
	TotalEarned     int64  `json:"total_earned" redis:"total_earned"`
	TotalLost       int64  `json:"total_lost" redis:"total_lost"`
	QuestsCompleted int64  `json:"quests_completed" redis:"quests_completed"`

	CreatedAt int64 `json:"created_at,omitempty" redis:"created_at"`
	UpdatedAt int64 `json:"updated_at,omitempty" redis:"updated_at"`
}

type TransactionType string

const (
	TransactionTypeStake   TransactionType = "stake"
	TransactionTypeBounty  TransactionType = "bounty"
	TransactionTypeForfeit TransactionType = "forfeit"
	TransactionTypeReset   TransactionType = "reset"
)

type Transaction struct {
	ID           string          `json:"id" redis:"id"`
	UserID       string          `json:"user_id" redis:"user_id"`
	Type         TransactionType `json:"type" redis:"type"`
	Amount       int64           `json:"amount" redis:"amount"`
	BalanceAfter int64           `json:"balance_after" redis:"balance_after"`
	TaskID       string          `json:"task_id,omitempty" redis:"task_id,omitempty"`
	Description  string          `json:"description" redis:"description"`
	CreatedAt    time.Time       `json:"created_at" redis:"created_at"`
}

type BalanceResponse struct {
	UserID          string `json:"user_id"`
	Balance         int64  `json:"balance"`
	TotalEarned     int64  `json:"total_earned"`
	TotalLost       int64  `json:"total_lost"`
	QuestsCompleted int64  `json:"quests_completed"`
}

// RPGStats is the front end's character sheet. The service stores it
// verbatim and only supplies defaults.
type RPGStats struct {
	Endurance     int      `json:"endurance"`
	Focus         int      `json:"focus"`
	Magic         int      `json:"magic"`
	Level         int      `json:"level"`
	XP            int      `json:"xp"`
	XPToNextLevel int      `json:"xpToNextLevel"`
	Title         string   `json:"title"`
	Badges        []string `json:"badges"`
}
