package services

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"chronocharm-backend/internal/models"
)

// Ledger owns per-user Mana balances and the wager state machine.
type Ledger struct {
	store       Store
	broadcaster Broadcaster
	grace       time.Duration
}

func NewLedger(store Store) *Ledger {
	return &Ledger{
		store:       store,
		broadcaster: nopBroadcaster{},
		grace:       10 * time.Minute,
	}
}

func (l *Ledger) SetBroadcaster(b Broadcaster) {
	if b == nil {
		b = nopBroadcaster{}
	}
	l.broadcaster = b
}

// SetGracePeriod sets how long past its deadline an open wager survives
// before the sweeper forfeits it.
func (l *Ledger) SetGracePeriod(d time.Duration) {
	l.grace = d
}

func (l *Ledger) GetOrCreate(ctx context.Context, userID string) (*models.UserAccount, error) {
	account, err := l.store.GetOrCreateAccount(ctx, models.NormalizeUserID(userID))
	if err != nil {
		return nil, storageErr("get account", err)
	}
	return account, nil
}

func (l *Ledger) GetBalance(ctx context.Context, userID string) (int64, error) {
	account, err := l.GetOrCreate(ctx, userID)
	if err != nil {
		return 0, err
	}
	return account.Balance, nil
}

// DeductStake removes stake from the balance, failing with
// *InsufficientFundsError and no mutation when the balance cannot cover it.
func (l *Ledger) DeductStake(ctx context.Context, userID string, stake int64) (*models.UserAccount, error) {
	if stake < 0 {
		return nil, ErrInvalidAmount
	}
	userID = models.NormalizeUserID(userID)

	account, err := l.store.DeductStake(ctx, userID, stake)
	if err != nil {
		return nil, l.stakeErr(userID, err)
	}

	manaFlow.WithLabelValues("staked").Add(float64(stake))
	l.record(ctx, account, models.TransactionTypeStake, -stake, "", "Stake deducted")
	l.broadcaster.BroadcastBalance(account)

	log.Printf("Deducted %d Mana stake from %s, balance %d", stake, userID, account.Balance)
	return account, nil
}

// AwardBounty returns stake and pays bounty on top. It trusts the caller to
// have deducted stake earlier; CompleteWager is the checked path.
func (l *Ledger) AwardBounty(ctx context.Context, userID string, bounty, stake int64) (*models.UserAccount, error) {
	if bounty < 0 || stake < 0 {
		return nil, ErrInvalidAmount
	}
	userID = models.NormalizeUserID(userID)

	account, err := l.store.AwardBounty(ctx, userID, bounty, stake)
	if err != nil {
		return nil, storageErr("award bounty", err)
	}

	manaFlow.WithLabelValues("awarded").Add(float64(bounty))
	l.record(ctx, account, models.TransactionTypeBounty, bounty+stake, "", "Bounty awarded, stake returned")
	l.broadcaster.BroadcastBalance(account)

	log.Printf("Awarded %d Mana bounty plus %d stake to %s, balance %d", bounty, stake, userID, account.Balance)
	return account, nil
}

// LoseStake records a forfeited stake. The balance is untouched because the
// stake left it at deduction time.
func (l *Ledger) LoseStake(ctx context.Context, userID string, stake int64) (*models.UserAccount, error) {
	if stake < 0 {
		return nil, ErrInvalidAmount
	}
	userID = models.NormalizeUserID(userID)

	account, err := l.store.LoseStake(ctx, userID, stake)
	if err != nil {
		return nil, storageErr("lose stake", err)
	}

	manaFlow.WithLabelValues("forfeited").Add(float64(stake))
	l.record(ctx, account, models.TransactionTypeForfeit, 0, "", fmt.Sprintf("Stake of %d forfeited", stake))
	l.broadcaster.BroadcastBalance(account)

	log.Printf("Stake of %d Mana lost by %s, balance %d", stake, userID, account.Balance)
	return account, nil
}

func (l *Ledger) Reset(ctx context.Context, userID string) (*models.UserAccount, error) {
	userID = models.NormalizeUserID(userID)

	account, err := l.store.ResetAccount(ctx, userID)
	if err != nil {
		return nil, storageErr("reset account", err)
	}

	l.record(ctx, account, models.TransactionTypeReset, account.Balance, "", "Account reset")
	l.broadcaster.BroadcastBalance(account)

	log.Printf("Reset %s to %d Mana", userID, account.Balance)
	return account, nil
}

// StartWager deducts the stake and opens a wager on the task in one step.
func (l *Ledger) StartWager(ctx context.Context, req *models.WagerStartRequest) (*models.Wager, *models.UserAccount, error) {
	if err := req.Validate(); err != nil {
		return nil, nil, fmt.Errorf("%w: %v", ErrInvalidRequest, err)
	}

	now := time.Now()
	wager := &models.Wager{
		ID:        models.GenerateWagerID(),
		UserID:    models.NormalizeUserID(req.UserID),
		TaskID:    req.TaskID,
		TaskTitle: req.TaskTitle,
		Stake:     req.Stake,
		Bounty:    req.Bounty,
		Status:    models.WagerStatusOpen,
		CreatedAt: now.Unix(),
	}
	if req.DurationSeconds > 0 {
		wager.Deadline = now.Add(time.Duration(req.DurationSeconds) * time.Second).Unix()
	}

	account, err := l.store.OpenWager(ctx, wager)
	if err != nil {
		if errors.Is(err, ErrWagerAlreadyOpen) {
			return nil, nil, err
		}
		return nil, nil, l.stakeErr(wager.UserID, err)
	}

	wagersOpened.Inc()
	manaFlow.WithLabelValues("staked").Add(float64(wager.Stake))
	l.record(ctx, account, models.TransactionTypeStake, -wager.Stake, wager.TaskID, "Wager accepted")
	l.broadcaster.BroadcastWager(wager, account)

	log.Printf("Wager %s opened by %s on %s: stake %d, balance %d",
		wager.ID, wager.UserID, wager.TaskID, wager.Stake, account.Balance)
	return wager, account, nil
}

// CompleteWager settles the open wager on a task. Repeating the call
// returns the original outcome without touching the balance again.
func (l *Ledger) CompleteWager(ctx context.Context, req *models.WagerCompleteRequest) (*models.WagerSettlement, error) {
	if err := req.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidRequest, err)
	}
	return l.settle(ctx, models.NormalizeUserID(req.UserID), req.TaskID, req.Won, req.Bounty, req.Stake, "")
}

func (l *Ledger) settle(ctx context.Context, userID, taskID string, won bool, bounty, stake int64, reason string) (*models.WagerSettlement, error) {
	settlement, err := l.store.SettleWager(ctx, userID, taskID, won, bounty, stake)
	if err != nil {
		if errors.Is(err, ErrWagerNotFound) || errors.Is(err, ErrStakeMismatch) {
			return nil, err
		}
		return nil, storageErr("settle wager", err)
	}

	if settlement.Replayed {
		log.Printf("Wager on %s for %s already settled as %s", taskID, userID, settlement.Wager.Status)
		return settlement, nil
	}

	wager, account := settlement.Wager, settlement.Account
	switch wager.Status {
	case models.WagerStatusWon:
		wagersSettled.WithLabelValues("won").Inc()
		manaFlow.WithLabelValues("awarded").Add(float64(wager.Bounty))
		l.record(ctx, account, models.TransactionTypeBounty, wager.Payout, taskID, "Bounty awarded, stake returned")
	default:
		outcome := "lost"
		if reason != "" {
			outcome = reason
		}
		wagersSettled.WithLabelValues(outcome).Inc()
		manaFlow.WithLabelValues("forfeited").Add(float64(wager.Stake))
		l.record(ctx, account, models.TransactionTypeForfeit, 0, taskID, fmt.Sprintf("Stake of %d forfeited", wager.Stake))
	}
	l.broadcaster.BroadcastWager(wager, account)

	log.Printf("Wager %s on %s for %s settled %s, balance %d",
		wager.ID, taskID, userID, wager.Status, account.Balance)
	return settlement, nil
}

func (l *Ledger) OpenWagers(ctx context.Context, userID string) ([]*models.Wager, error) {
	wagers, err := l.store.GetOpenWagers(ctx, models.NormalizeUserID(userID))
	if err != nil {
		return nil, storageErr("list open wagers", err)
	}
	return wagers, nil
}

// ExpireOverdueWagers forfeits open wagers whose deadline passed more than
// the grace period before now. It returns how many it settled.
func (l *Ledger) ExpireOverdueWagers(ctx context.Context, now time.Time) (int, error) {
	due, err := l.store.DueWagers(ctx, now.Add(-l.grace))
	if err != nil {
		return 0, storageErr("list due wagers", err)
	}

	expired := 0
	for _, key := range due {
		settlement, err := l.settle(ctx, key.UserID, key.TaskID, false, 0, 0, "expired")
		if err != nil {
			if errors.Is(err, ErrWagerNotFound) {
				continue
			}
			return expired, err
		}
		if !settlement.Replayed {
			expired++
		}
	}

	if expired > 0 {
		log.Printf("Expired %d overdue wagers", expired)
	}
	return expired, nil
}

func (l *Ledger) Transactions(ctx context.Context, userID string, limit int64) ([]*models.Transaction, error) {
	txs, err := l.store.GetUserTransactions(ctx, models.NormalizeUserID(userID), limit)
	if err != nil {
		return nil, storageErr("list transactions", err)
	}
	return txs, nil
}

func (l *Ledger) Stats(ctx context.Context, userID string) (*models.RPGStats, error) {
	stats, err := l.store.GetStats(ctx, models.NormalizeUserID(userID))
	if err != nil {
		return nil, storageErr("get stats", err)
	}
	return stats, nil
}

func (l *Ledger) SaveStats(ctx context.Context, userID string, stats *models.RPGStats) (*models.RPGStats, error) {
	if stats.Badges == nil {
		stats.Badges = []string{}
	}
	if err := l.store.SaveStats(ctx, models.NormalizeUserID(userID), stats); err != nil {
		return nil, storageErr("save stats", err)
	}
	return stats, nil
}

// Allow reports whether the user may perform action again within window.
func (l *Ledger) Allow(ctx context.Context, userID, action string, limit int, window time.Duration) (bool, error) {
	allowed, err := l.store.CheckRateLimit(ctx, models.NormalizeUserID(userID), action, limit, window)
	if err != nil {
		return false, storageErr("check rate limit", err)
	}
	return allowed, nil
}

func (l *Ledger) stakeErr(userID string, err error) error {
	var insufficient *InsufficientFundsError
	if errors.As(err, &insufficient) {
		stakesRejected.Inc()
		log.Printf("Rejected stake of %d for %s: balance %d", insufficient.Required, userID, insufficient.Balance)
		return err
	}
	return storageErr("deduct stake", err)
}

// record appends to the user's history. History is best effort: a failure
// is logged but never fails the balance operation that already committed.
func (l *Ledger) record(ctx context.Context, account *models.UserAccount, kind models.TransactionType, amount int64, taskID, description string) {
	tx := &models.Transaction{
		ID:           models.GenerateTransactionID(),
		UserID:       account.UserID,
		Type:         kind,
		Amount:       amount,
		BalanceAfter: account.Balance,
		TaskID:       taskID,
		Description:  description,
		CreatedAt:    time.Now(),
	}
	if err := l.store.SaveTransaction(ctx, tx); err != nil {
		log.Printf("Failed to record %s transaction for %s: %v", kind, account.UserID, err)
	}
}
