package services

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"chronocharm-backend/internal/models"
)

// MemoryStore is an in-process Store. Mutations for one user run under that
// user's mutex; different users never contend on it.
type MemoryStore struct {
	startingMana int64

	locks sync.Map // user id -> *sync.Mutex

	mu           sync.RWMutex
	accounts     map[string]*models.UserAccount
	wagers       map[WagerKey]*models.Wager
	transactions map[string][]*models.Transaction
	stats        map[string]models.RPGStats
	rateLimits   map[string]*rateWindow
}

type rateWindow struct {
	count   int
	resetAt time.Time
}

func NewMemoryStore(startingMana int64) *MemoryStore {
	return &MemoryStore{
		startingMana: startingMana,
		accounts:     make(map[string]*models.UserAccount),
		wagers:       make(map[WagerKey]*models.Wager),
		transactions: make(map[string][]*models.Transaction),
		stats:        make(map[string]models.RPGStats),
		rateLimits:   make(map[string]*rateWindow),
	}
}

func (s *MemoryStore) lockUser(userID string) func() {
	v, _ := s.locks.LoadOrStore(userID, &sync.Mutex{})
	mu := v.(*sync.Mutex)
	mu.Lock()
	return mu.Unlock
}

// account returns the live record, creating it if needed. Callers must hold
// the user lock.
func (s *MemoryStore) account(userID string) *models.UserAccount {
	s.mu.RLock()
	acct, ok := s.accounts[userID]
	s.mu.RUnlock()
	if ok {
		return acct
	}

	acct = models.NewUserAccount(userID, s.startingMana)
	s.mu.Lock()
	s.accounts[userID] = acct
	s.mu.Unlock()
	return acct
}

func snapshot(acct *models.UserAccount) *models.UserAccount {
	c := *acct
	return &c
}

func (s *MemoryStore) mutate(userID string, fn func(*models.UserAccount) error) (*models.UserAccount, error) {
	unlock := s.lockUser(userID)
	defer unlock()

	acct := s.account(userID)
	if err := fn(acct); err != nil {
		return nil, err
	}
	acct.UpdatedAt = time.Now().Unix()
	return snapshot(acct), nil
}

func (s *MemoryStore) GetOrCreateAccount(ctx context.Context, userID string) (*models.UserAccount, error) {
	unlock := s.lockUser(userID)
	defer unlock()
	return snapshot(s.account(userID)), nil
}

func (s *MemoryStore) DeductStake(ctx context.Context, userID string, stake int64) (*models.UserAccount, error) {
	return s.mutate(userID, func(acct *models.UserAccount) error {
		if acct.Balance < stake {
			return &InsufficientFundsError{Balance: acct.Balance, Required: stake}
		}
		acct.Balance -= stake
		return nil
	})
}

func (s *MemoryStore) AwardBounty(ctx context.Context, userID string, bounty, stake int64) (*models.UserAccount, error) {
	return s.mutate(userID, func(acct *models.UserAccount) error {
		acct.Balance += bounty + stake
		acct.TotalEarned += bounty
		acct.QuestsCompleted++
		return nil
	})
}

func (s *MemoryStore) LoseStake(ctx context.Context, userID string, stake int64) (*models.UserAccount, error) {
	return s.mutate(userID, func(acct *models.UserAccount) error {
		acct.TotalLost += stake
		return nil
	})
}

func (s *MemoryStore) ResetAccount(ctx context.Context, userID string) (*models.UserAccount, error) {
	return s.mutate(userID, func(acct *models.UserAccount) error {
		acct.Balance = s.startingMana
		acct.TotalEarned = 0
		acct.TotalLost = 0
		acct.QuestsCompleted = 0
		return nil
	})
}

func (s *MemoryStore) OpenWager(ctx context.Context, wager *models.Wager) (*models.UserAccount, error) {
	key := WagerKey{UserID: wager.UserID, TaskID: wager.TaskID}

	return s.mutate(wager.UserID, func(acct *models.UserAccount) error {
		s.mu.RLock()
		existing, ok := s.wagers[key]
		s.mu.RUnlock()
		if ok && existing.IsOpen() {
			return ErrWagerAlreadyOpen
		}

		if acct.Balance < wager.Stake {
			return &InsufficientFundsError{Balance: acct.Balance, Required: wager.Stake}
		}
		acct.Balance -= wager.Stake

		w := *wager
		w.Status = models.WagerStatusOpen
		s.mu.Lock()
		s.wagers[key] = &w
		s.mu.Unlock()
		return nil
	})
}

func (s *MemoryStore) SettleWager(ctx context.Context, userID, taskID string, won bool, bounty, expectedStake int64) (*models.WagerSettlement, error) {
	key := WagerKey{UserID: userID, TaskID: taskID}

	unlock := s.lockUser(userID)
	defer unlock()

	s.mu.RLock()
	wager, ok := s.wagers[key]
	s.mu.RUnlock()
	if !ok {
		return nil, ErrWagerNotFound
	}

	acct := s.account(userID)

	if !wager.IsOpen() {
		w := *wager
		return &models.WagerSettlement{Wager: &w, Account: snapshot(acct), Replayed: true}, nil
	}

	if expectedStake > 0 && expectedStake != wager.Stake {
		return nil, fmt.Errorf("%w: recorded stake is %d", ErrStakeMismatch, wager.Stake)
	}

	settled := *wager
	if settled.Bounty <= 0 {
		settled.Bounty = bounty
	}

	now := time.Now().Unix()
	if won {
		acct.Balance += settled.Bounty + settled.Stake
		acct.TotalEarned += settled.Bounty
		acct.QuestsCompleted++
		settled.Status = models.WagerStatusWon
		settled.Payout = settled.Bounty + settled.Stake
	} else {
		acct.TotalLost += settled.Stake
		settled.Status = models.WagerStatusLost
		settled.Payout = 0
	}
	settled.SettledAt = now
	acct.UpdatedAt = now

	s.mu.Lock()
	s.wagers[key] = &settled
	s.mu.Unlock()

	w := settled
	return &models.WagerSettlement{Wager: &w, Account: snapshot(acct)}, nil
}

func (s *MemoryStore) GetWager(ctx context.Context, userID, taskID string) (*models.Wager, error) {
	unlock := s.lockUser(userID)
	defer unlock()

	s.mu.RLock()
	defer s.mu.RUnlock()

	wager, ok := s.wagers[WagerKey{UserID: userID, TaskID: taskID}]
	if !ok {
		return nil, ErrWagerNotFound
	}
	w := *wager
	return &w, nil
}

func (s *MemoryStore) GetOpenWagers(ctx context.Context, userID string) ([]*models.Wager, error) {
	unlock := s.lockUser(userID)
	defer unlock()

	s.mu.RLock()
	defer s.mu.RUnlock()

	wagers := []*models.Wager{}
	for key, wager := range s.wagers {
		if key.UserID == userID && wager.IsOpen() {
			w := *wager
			wagers = append(wagers, &w)
		}
	}
	sort.Slice(wagers, func(i, j int) bool { return wagers[i].CreatedAt < wagers[j].CreatedAt })
	return wagers, nil
}

// DueWagers reads wager state without the per-user locks; SettleWager
// re-checks the status under the lock, so a stale entry is harmless.
func (s *MemoryStore) DueWagers(ctx context.Context, cutoff time.Time) ([]WagerKey, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var keys []WagerKey
	for key, wager := range s.wagers {
		if wager.Status == models.WagerStatusOpen && wager.Deadline > 0 && wager.Deadline <= cutoff.Unix() {
			keys = append(keys, key)
		}
	}
	return keys, nil
}

func (s *MemoryStore) SaveTransaction(ctx context.Context, tx *models.Transaction) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	c := *tx
	list := append(s.transactions[tx.UserID], &c)
	if len(list) > MaxTransactions {
		list = list[len(list)-MaxTransactions:]
	}
	s.transactions[tx.UserID] = list
	return nil
}

func (s *MemoryStore) GetUserTransactions(ctx context.Context, userID string, limit int64) ([]*models.Transaction, error) {
	if limit <= 0 || limit > MaxTransactions {
		limit = 50
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	list := s.transactions[userID]
	out := make([]*models.Transaction, 0, limit)
	for i := len(list) - 1; i >= 0 && int64(len(out)) < limit; i-- {
		c := *list[i]
		out = append(out, &c)
	}
	return out, nil
}

func (s *MemoryStore) GetStats(ctx context.Context, userID string) (*models.RPGStats, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	stats, ok := s.stats[userID]
	if !ok {
		stats = models.DefaultRPGStats()
		s.stats[userID] = stats
	}
	stats.Badges = append([]string{}, stats.Badges...)
	return &stats, nil
}

func (s *MemoryStore) SaveStats(ctx context.Context, userID string, stats *models.RPGStats) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	c := *stats
	c.Badges = append([]string{}, stats.Badges...)
	s.stats[userID] = c
	return nil
}

func (s *MemoryStore) CheckRateLimit(ctx context.Context, userID, action string, limit int, window time.Duration) (bool, error) {
	key := fmt.Sprintf(KeyRateLimit, userID, action)
	now := time.Now()

	s.mu.Lock()
	defer s.mu.Unlock()

	w, ok := s.rateLimits[key]
	if !ok || now.After(w.resetAt) {
		w = &rateWindow{resetAt: now.Add(window)}
		s.rateLimits[key] = w
	}
	w.count++

	return w.count <= limit, nil
}

func (s *MemoryStore) Close() error {
	return nil
}
