package services_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"chronocharm-backend/internal/config"
	"chronocharm-backend/internal/models"
	"chronocharm-backend/internal/services"
)

func setupTestRedis(t *testing.T) *services.RedisService {
	t.Helper()

	cfg := &config.Config{
		RedisURL:     "localhost:6379",
		RedisPass:    "",
		RedisDB:      0,
		StartingMana: models.StartingMana,
	}

	redisService, err := services.NewRedisService(cfg)
	if err != nil {
		t.Skipf("Redis not available: %v", err)
	}
	t.Cleanup(func() { redisService.Close() })
	return redisService
}

func TestRedisLedger(t *testing.T) {
	redisService := setupTestRedis(t)
	ctx := context.Background()
	userID := "redis_test_user"

	redisService.DeleteUser(ctx, userID)
	defer redisService.DeleteUser(ctx, userID)

	ledger := services.NewLedger(redisService)

	account, err := ledger.GetOrCreate(ctx, userID)
	if err != nil {
		t.Fatalf("Failed to get account: %v", err)
	}
	if account.Balance != 1000 {
		t.Errorf("Expected default balance 1000, got %d", account.Balance)
	}

	_, account, err = ledger.StartWager(ctx, &models.WagerStartRequest{TaskID: "task-1", Stake: 10, UserID: userID})
	if err != nil {
		t.Fatalf("Failed to start wager: %v", err)
	}
	if account.Balance != 990 {
		t.Errorf("Expected 990 after stake, got %d", account.Balance)
	}

	if _, _, err := ledger.StartWager(ctx, &models.WagerStartRequest{TaskID: "task-1", Stake: 10, UserID: userID}); !errors.Is(err, services.ErrWagerAlreadyOpen) {
		t.Errorf("Expected ErrWagerAlreadyOpen, got %v", err)
	}

	settlement, err := ledger.CompleteWager(ctx, &models.WagerCompleteRequest{TaskID: "task-1", Stake: 10, Bounty: 25, Won: true, UserID: userID})
	if err != nil {
		t.Fatalf("Failed to complete wager: %v", err)
	}
	if settlement.Account.Balance != 1015 || settlement.Wager.Status != models.WagerStatusWon {
		t.Errorf("Unexpected settlement %+v / %+v", settlement.Account, settlement.Wager)
	}

	replay, err := ledger.CompleteWager(ctx, &models.WagerCompleteRequest{TaskID: "task-1", Stake: 10, Bounty: 25, Won: true, UserID: userID})
	if err != nil {
		t.Fatalf("Replay failed: %v", err)
	}
	if !replay.Replayed || replay.Account.Balance != 1015 {
		t.Errorf("Replay should not change balance: %+v", replay)
	}

	_, _, err = ledger.StartWager(ctx, &models.WagerStartRequest{TaskID: "task-2", Stake: 99999, UserID: userID})
	var insufficient *services.InsufficientFundsError
	if !errors.As(err, &insufficient) || insufficient.Balance != 1015 {
		t.Errorf("Expected InsufficientFundsError at 1015, got %v", err)
	}

	account, err = ledger.LoseStake(ctx, userID, 15)
	if err != nil {
		t.Fatalf("Failed to lose stake: %v", err)
	}
	if account.Balance != 1015 || account.TotalLost != 15 {
		t.Errorf("Unexpected account after loss %+v", account)
	}

	account, err = ledger.Reset(ctx, userID)
	if err != nil {
		t.Fatalf("Failed to reset: %v", err)
	}
	if account.Balance != 1000 || account.TotalEarned != 0 || account.TotalLost != 0 || account.QuestsCompleted != 0 {
		t.Errorf("Unexpected account after reset %+v", account)
	}

	txs, err := ledger.Transactions(ctx, userID, 10)
	if err != nil {
		t.Fatalf("Failed to list transactions: %v", err)
	}
	if len(txs) == 0 || txs[0].Type != models.TransactionTypeReset {
		t.Errorf("Expected reset as newest transaction, got %+v", txs)
	}

	allowed, err := ledger.Allow(ctx, userID, "breakdown", 5, time.Minute)
	if err != nil || !allowed {
		t.Errorf("First call should be allowed: %v", err)
	}
	redisService.DeleteUser(ctx, userID)
}
