package services

import (
	"context"
	"time"

	"chronocharm-backend/internal/models"
)

// Store is the persistent side of the Ledger. Every method that changes an
// account applies its check and its mutation as one atomic step, so
// concurrent requests for the same user cannot lose updates or overdraw.
type Store interface {
	GetOrCreateAccount(ctx context.Context, userID string) (*models.UserAccount, error)
	DeductStake(ctx context.Context, userID string, stake int64) (*models.UserAccount, error)
	AwardBounty(ctx context.Context, userID string, bounty, stake int64) (*models.UserAccount, error)
	LoseStake(ctx context.Context, userID string, stake int64) (*models.UserAccount, error)
	ResetAccount(ctx context.Context, userID string) (*models.UserAccount, error)

	// OpenWager deducts wager.Stake and records the wager as open.
	OpenWager(ctx context.Context, wager *models.Wager) (*models.UserAccount, error)
	// SettleWager resolves an open wager. A non-zero expectedStake must match
	// the recorded one. Settling a settled wager returns it with Replayed set.
	SettleWager(ctx context.Context, userID, taskID string, won bool, bounty, expectedStake int64) (*models.WagerSettlement, error)
	GetWager(ctx context.Context, userID, taskID string) (*models.Wager, error)
	GetOpenWagers(ctx context.Context, userID string) ([]*models.Wager, error)
	// DueWagers lists open wagers whose deadline is at or before the cutoff.
	DueWagers(ctx context.Context, cutoff time.Time) ([]WagerKey, error)

	SaveTransaction(ctx context.Context, tx *models.Transaction) error
	GetUserTransactions(ctx context.Context, userID string, limit int64) ([]*models.Transaction, error)

	GetStats(ctx context.Context, userID string) (*models.RPGStats, error)
	SaveStats(ctx context.Context, userID string, stats *models.RPGStats) error

	CheckRateLimit(ctx context.Context, userID, action string, limit int, window time.Duration) (bool, error)

	Close() error
}

type WagerKey struct {
	UserID string
	TaskID string
}
