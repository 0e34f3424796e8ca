package services

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"chronocharm-backend/internal/config"
	"chronocharm-backend/internal/models"

	"github.com/redis/go-redis/v9"
)

type RedisService struct {
	client       *redis.Client
	startingMana int64
}

func NewRedisService(cfg *config.Config) (*RedisService, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisURL,
		Password: cfg.RedisPass,
		DB:       cfg.RedisDB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if _, err := client.Ping(ctx).Result(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	return &RedisService{
		client:       client,
		startingMana: cfg.StartingMana,
	}, nil
}

func (s *RedisService) Close() error {
	return s.client.Close()
}

// ensureAccount is prepended to every account script so that the first
// reference to a user creates the record inside the same atomic step.
const ensureAccount = `
local function ensure(key, user, starting, now)
	if redis.call("EXISTS", key) == 0 then
		redis.call("HSET", key,
			"user_id", user,
			"balance", starting,
			"total_earned", 0,
			"total_lost", 0,
			"quests_completed", 0,
			"created_at", now,
			"updated_at", now)
	end
end
`

var getOrCreateScript = redis.NewScript(ensureAccount + `
	ensure(KEYS[1], ARGV[1], ARGV[2], ARGV[3])
	return {"ok", redis.call("HGETALL", KEYS[1])}
`)

var deductStakeScript = redis.NewScript(ensureAccount + `
	local key = KEYS[1]
	local stake = tonumber(ARGV[4])

	ensure(key, ARGV[1], ARGV[2], ARGV[3])

	local balance = tonumber(redis.call("HGET", key, "balance"))
	if balance < stake then
		return {"insufficient", tostring(balance)}
	end

	redis.call("HINCRBY", key, "balance", -stake)
	redis.call("HSET", key, "updated_at", ARGV[3])

	return {"ok", redis.call("HGETALL", key)}
`)

var awardBountyScript = redis.NewScript(ensureAccount + `
	local key = KEYS[1]
	local bounty = tonumber(ARGV[4])
	local stake = tonumber(ARGV[5])

	ensure(key, ARGV[1], ARGV[2], ARGV[3])

	redis.call("HINCRBY", key, "balance", bounty + stake)
	redis.call("HINCRBY", key, "total_earned", bounty)
	redis.call("HINCRBY", key, "quests_completed", 1)
	redis.call("HSET", key, "updated_at", ARGV[3])

	return {"ok", redis.call("HGETALL", key)}
`)

var loseStakeScript = redis.NewScript(ensureAccount + `
	local key = KEYS[1]

	ensure(key, ARGV[1], ARGV[2], ARGV[3])

	redis.call("HINCRBY", key, "total_lost", tonumber(ARGV[4]))
	redis.call("HSET", key, "updated_at", ARGV[3])

	return {"ok", redis.call("HGETALL", key)}
`)

var resetAccountScript = redis.NewScript(ensureAccount + `
	local key = KEYS[1]

	ensure(key, ARGV[1], ARGV[2], ARGV[3])

	redis.call("HSET", key,
		"balance", ARGV[2],
		"total_earned", 0,
		"total_lost", 0,
		"quests_completed", 0,
		"updated_at", ARGV[3])

	return {"ok", redis.call("HGETALL", key)}
`)

// KEYS: account, wager, user open set, deadline index
// ARGV: user, starting, now, stake, id, task, title, bounty, deadline, member
var openWagerScript = redis.NewScript(ensureAccount + `
	local account = KEYS[1]
	local wager = KEYS[2]
	local stake = tonumber(ARGV[4])
	local deadline = tonumber(ARGV[9])

	ensure(account, ARGV[1], ARGV[2], ARGV[3])

	if redis.call("HGET", wager, "status") == "open" then
		return {"open"}
	end

	local balance = tonumber(redis.call("HGET", account, "balance"))
	if balance < stake then
		return {"insufficient", tostring(balance)}
	end

	redis.call("HINCRBY", account, "balance", -stake)
	redis.call("HSET", account, "updated_at", ARGV[3])

	redis.call("DEL", wager)
	redis.call("HSET", wager,
		"id", ARGV[5],
		"user_id", ARGV[1],
		"task_id", ARGV[6],
		"task_title", ARGV[7],
		"stake", stake,
		"bounty", ARGV[8],
		"payout", 0,
		"status", "open",
		"deadline", deadline,
		"created_at", ARGV[3],
		"settled_at", 0)

	redis.call("SADD", KEYS[3], ARGV[6])
	if deadline > 0 then
		redis.call("ZADD", KEYS[4], deadline, ARGV[10])
	end

	return {"ok", redis.call("HGETALL", account)}
`)

// KEYS: account, wager, user open set, deadline index
// ARGV: user, starting, now, won, bounty, expected stake, task, member, settled ttl
var settleWagerScript = redis.NewScript(ensureAccount + `
	local account = KEYS[1]
	local wager = KEYS[2]

	local status = redis.call("HGET", wager, "status")
	if not status then
		return {"missing"}
	end

	ensure(account, ARGV[1], ARGV[2], ARGV[3])

	if status ~= "open" then
		return {"replayed", redis.call("HGETALL", wager), redis.call("HGETALL", account)}
	end

	local stake = tonumber(redis.call("HGET", wager, "stake"))
	local expected = tonumber(ARGV[6])
	if expected > 0 and expected ~= stake then
		return {"mismatch", tostring(stake)}
	end

	local bounty = tonumber(redis.call("HGET", wager, "bounty"))
	if bounty == nil or bounty <= 0 then
		bounty = tonumber(ARGV[5])
	end

	if ARGV[4] == "1" then
		redis.call("HINCRBY", account, "balance", bounty + stake)
		redis.call("HINCRBY", account, "total_earned", bounty)
		redis.call("HINCRBY", account, "quests_completed", 1)
		redis.call("HSET", wager, "status", "won", "bounty", bounty, "payout", bounty + stake)
	else
		redis.call("HINCRBY", account, "total_lost", stake)
		redis.call("HSET", wager, "status", "lost", "payout", 0)
	end

	redis.call("HSET", account, "updated_at", ARGV[3])
	redis.call("HSET", wager, "settled_at", ARGV[3])
	redis.call("EXPIRE", wager, tonumber(ARGV[9]))
	redis.call("SREM", KEYS[3], ARGV[7])
	redis.call("ZREM", KEYS[4], ARGV[8])

	return {"ok", redis.call("HGETALL", wager), redis.call("HGETALL", account)}
`)

func (s *RedisService) accountScript(ctx context.Context, op string, script *redis.Script, userID string, extra ...interface{}) (*models.UserAccount, error) {
	key := fmt.Sprintf(KeyAccount, userID)
	args := append([]interface{}{userID, s.startingMana, time.Now().Unix()}, extra...)

	reply, err := script.Run(ctx, s.client, []string{key}, args...).Slice()
	if err != nil {
		return nil, storageErr(op, err)
	}

	switch replyStatus(reply) {
	case "ok":
		return accountFromReply(reply, 1)
	case "insufficient":
		balance, _ := strconv.ParseInt(replyString(reply, 1), 10, 64)
		return nil, &InsufficientFundsError{Balance: balance, Required: amountArg(extra)}
	default:
		return nil, storageErr(op, fmt.Errorf("unexpected script reply %v", reply))
	}
}

func (s *RedisService) GetOrCreateAccount(ctx context.Context, userID string) (*models.UserAccount, error) {
	return s.accountScript(ctx, "get account", getOrCreateScript, userID)
}

func (s *RedisService) DeductStake(ctx context.Context, userID string, stake int64) (*models.UserAccount, error) {
	return s.accountScript(ctx, "deduct stake", deductStakeScript, userID, stake)
}

func (s *RedisService) AwardBounty(ctx context.Context, userID string, bounty, stake int64) (*models.UserAccount, error) {
	return s.accountScript(ctx, "award bounty", awardBountyScript, userID, bounty, stake)
}

func (s *RedisService) LoseStake(ctx context.Context, userID string, stake int64) (*models.UserAccount, error) {
	return s.accountScript(ctx, "lose stake", loseStakeScript, userID, stake)
}

func (s *RedisService) ResetAccount(ctx context.Context, userID string) (*models.UserAccount, error) {
	return s.accountScript(ctx, "reset account", resetAccountScript, userID)
}

func (s *RedisService) wagerKeys(userID, taskID string) []string {
	return []string{
		fmt.Sprintf(KeyAccount, userID),
		fmt.Sprintf(KeyWager, userID, taskID),
		fmt.Sprintf(KeyUserOpenWagers, userID),
		KeyWagerDeadlines,
	}
}

func (s *RedisService) OpenWager(ctx context.Context, wager *models.Wager) (*models.UserAccount, error) {
	reply, err := openWagerScript.Run(ctx, s.client, s.wagerKeys(wager.UserID, wager.TaskID),
		wager.UserID,
		s.startingMana,
		wager.CreatedAt,
		wager.Stake,
		wager.ID,
		wager.TaskID,
		wager.TaskTitle,
		wager.Bounty,
		wager.Deadline,
		wagerMember(wager.UserID, wager.TaskID),
	).Slice()
	if err != nil {
		return nil, storageErr("open wager", err)
	}

	switch replyStatus(reply) {
	case "ok":
		return accountFromReply(reply, 1)
	case "open":
		return nil, ErrWagerAlreadyOpen
	case "insufficient":
		balance, _ := strconv.ParseInt(replyString(reply, 1), 10, 64)
		return nil, &InsufficientFundsError{Balance: balance, Required: wager.Stake}
	default:
		return nil, storageErr("open wager", fmt.Errorf("unexpected script reply %v", reply))
	}
}

func (s *RedisService) SettleWager(ctx context.Context, userID, taskID string, won bool, bounty, expectedStake int64) (*models.WagerSettlement, error) {
	wonArg := "0"
	if won {
		wonArg = "1"
	}

	reply, err := settleWagerScript.Run(ctx, s.client, s.wagerKeys(userID, taskID),
		userID,
		s.startingMana,
		time.Now().Unix(),
		wonArg,
		bounty,
		expectedStake,
		taskID,
		wagerMember(userID, taskID),
		int64(TTLSettledWager.Seconds()),
	).Slice()
	if err != nil {
		return nil, storageErr("settle wager", err)
	}

	status := replyStatus(reply)
	switch status {
	case "ok", "replayed":
		wager, err := wagerFromReply(reply, 1)
		if err != nil {
			return nil, err
		}
		account, err := accountFromReply(reply, 2)
		if err != nil {
			return nil, err
		}
		return &models.WagerSettlement{
			Wager:    wager,
			Account:  account,
			Replayed: status == "replayed",
		}, nil
	case "missing":
		return nil, ErrWagerNotFound
	case "mismatch":
		return nil, fmt.Errorf("%w: recorded stake is %s", ErrStakeMismatch, replyString(reply, 1))
	default:
		return nil, storageErr("settle wager", fmt.Errorf("unexpected script reply %v", reply))
	}
}

func (s *RedisService) GetWager(ctx context.Context, userID, taskID string) (*models.Wager, error) {
	key := fmt.Sprintf(KeyWager, userID, taskID)

	cmd := s.client.HGetAll(ctx, key)
	data, err := cmd.Result()
	if err != nil {
		return nil, storageErr("get wager", err)
	}
	if len(data) == 0 {
		return nil, ErrWagerNotFound
	}

	var wager models.Wager
	if err := cmd.Scan(&wager); err != nil {
		return nil, storageErr("get wager", err)
	}
	return &wager, nil
}

func (s *RedisService) GetOpenWagers(ctx context.Context, userID string) ([]*models.Wager, error) {
	taskIDs, err := s.client.SMembers(ctx, fmt.Sprintf(KeyUserOpenWagers, userID)).Result()
	if err != nil {
		return nil, storageErr("list open wagers", err)
	}
	if len(taskIDs) == 0 {
		return []*models.Wager{}, nil
	}

	pipe := s.client.Pipeline()
	cmds := make([]*redis.MapStringStringCmd, len(taskIDs))
	for i, taskID := range taskIDs {
		cmds[i] = pipe.HGetAll(ctx, fmt.Sprintf(KeyWager, userID, taskID))
	}

	if _, err := pipe.Exec(ctx); err != nil && err != redis.Nil {
		return nil, storageErr("list open wagers", err)
	}

	wagers := make([]*models.Wager, 0, len(cmds))
	for _, cmd := range cmds {
		if data, err := cmd.Result(); err != nil || len(data) == 0 {
			continue
		}

		var wager models.Wager
		if err := cmd.Scan(&wager); err != nil {
			continue
		}
		if wager.IsOpen() {
			wagers = append(wagers, &wager)
		}
	}

	return wagers, nil
}

func (s *RedisService) DueWagers(ctx context.Context, cutoff time.Time) ([]WagerKey, error) {
	members, err := s.client.ZRangeByScore(ctx, KeyWagerDeadlines, &redis.ZRangeBy{
		Min: "1",
		Max: strconv.FormatInt(cutoff.Unix(), 10),
	}).Result()
	if err != nil {
		return nil, storageErr("list due wagers", err)
	}

	keys := make([]WagerKey, 0, len(members))
	for _, member := range members {
		userID, taskID, ok := strings.Cut(member, "\x00")
		if !ok {
			continue
		}
		keys = append(keys, WagerKey{UserID: userID, TaskID: taskID})
	}
	return keys, nil
}

func (s *RedisService) SaveTransaction(ctx context.Context, tx *models.Transaction) error {
	txKey := fmt.Sprintf(KeyTransaction, tx.ID)

	data, err := json.Marshal(tx)
	if err != nil {
		return fmt.Errorf("failed to marshal transaction: %w", err)
	}

	if err := s.client.Set(ctx, txKey, data, TTLTransaction).Err(); err != nil {
		return storageErr("save transaction", err)
	}

	userTxKey := fmt.Sprintf(KeyUserTransactions, tx.UserID)
	score := float64(tx.CreatedAt.UnixNano())

	if err := s.client.ZAdd(ctx, userTxKey, redis.Z{
		Score:  score,
		Member: tx.ID,
	}).Err(); err != nil {
		return storageErr("index transaction", err)
	}

	// Keep only the newest MaxTransactions
	s.client.ZRemRangeByRank(ctx, userTxKey, 0, -MaxTransactions-1)

	return nil
}

func (s *RedisService) GetUserTransactions(ctx context.Context, userID string, limit int64) ([]*models.Transaction, error) {
	if limit <= 0 || limit > MaxTransactions {
		limit = 50
	}

	userTxKey := fmt.Sprintf(KeyUserTransactions, userID)

	txIDs, err := s.client.ZRevRange(ctx, userTxKey, 0, limit-1).Result()
	if err != nil {
		return nil, storageErr("list transactions", err)
	}

	transactions := make([]*models.Transaction, 0, len(txIDs))
	for _, txID := range txIDs {
		data, err := s.client.Get(ctx, fmt.Sprintf(KeyTransaction, txID)).Result()
		if err != nil {
			continue
		}

		var tx models.Transaction
		if err := json.Unmarshal([]byte(data), &tx); err != nil {
			continue
		}

		transactions = append(transactions, &tx)
	}

	return transactions, nil
}

func (s *RedisService) GetStats(ctx context.Context, userID string) (*models.RPGStats, error) {
	key := fmt.Sprintf(KeyStats, userID)

	data, err := s.client.Get(ctx, key).Result()
	if err == redis.Nil {
		stats := models.DefaultRPGStats()
		if err := s.SaveStats(ctx, userID, &stats); err != nil {
			return nil, err
		}
		return &stats, nil
	}
	if err != nil {
		return nil, storageErr("get stats", err)
	}

	var stats models.RPGStats
	if err := json.Unmarshal([]byte(data), &stats); err != nil {
		return nil, storageErr("decode stats", err)
	}
	if stats.Badges == nil {
		stats.Badges = []string{}
	}
	return &stats, nil
}

func (s *RedisService) SaveStats(ctx context.Context, userID string, stats *models.RPGStats) error {
	data, err := json.Marshal(stats)
	if err != nil {
		return fmt.Errorf("failed to marshal stats: %w", err)
	}
	return storageErr("save stats", s.client.Set(ctx, fmt.Sprintf(KeyStats, userID), data, 0).Err())
}

func (s *RedisService) CheckRateLimit(ctx context.Context, userID, action string, limit int, window time.Duration) (bool, error) {
	key := fmt.Sprintf(KeyRateLimit, userID, action)

	count, err := s.client.Incr(ctx, key).Result()
	if err != nil {
		return false, storageErr("check rate limit", err)
	}

	if count == 1 {
		s.client.Expire(ctx, key, window)
	}

	return count <= int64(limit), nil
}

// DeleteUser removes every key owned by a user. Used by tests.
func (s *RedisService) DeleteUser(ctx context.Context, userID string) error {
	taskIDs, _ := s.client.SMembers(ctx, fmt.Sprintf(KeyUserOpenWagers, userID)).Result()

	keys := []string{
		fmt.Sprintf(KeyAccount, userID),
		fmt.Sprintf(KeyUserOpenWagers, userID),
		fmt.Sprintf(KeyUserTransactions, userID),
		fmt.Sprintf(KeyStats, userID),
	}
	for _, taskID := range taskIDs {
		keys = append(keys, fmt.Sprintf(KeyWager, userID, taskID))
		s.client.ZRem(ctx, KeyWagerDeadlines, wagerMember(userID, taskID))
	}

	return s.client.Del(ctx, keys...).Err()
}

func replyStatus(reply []interface{}) string {
	return replyString(reply, 0)
}

func replyString(reply []interface{}, i int) string {
	if i >= len(reply) {
		return ""
	}
	switch v := reply[i].(type) {
	case string:
		return v
	case int64:
		return strconv.FormatInt(v, 10)
	default:
		return ""
	}
}

// replyHash turns a flat HGETALL array nested in a script reply into a map.
func replyHash(reply []interface{}, i int) (map[string]string, error) {
	if i >= len(reply) {
		return nil, fmt.Errorf("script reply has no element %d", i)
	}
	flat, ok := reply[i].([]interface{})
	if !ok || len(flat)%2 != 0 {
		return nil, fmt.Errorf("script reply element %d is not a hash", i)
	}

	hash := make(map[string]string, len(flat)/2)
	for j := 0; j < len(flat); j += 2 {
		hash[replyString(flat, j)] = replyString(flat, j+1)
	}
	return hash, nil
}

func accountFromReply(reply []interface{}, i int) (*models.UserAccount, error) {
	hash, err := replyHash(reply, i)
	if err != nil {
		return nil, storageErr("decode account", err)
	}

	return &models.UserAccount{
		UserID:          hash["user_id"],
		Balance:         parseInt(hash["balance"]),
		TotalEarned:     parseInt(hash["total_earned"]),
		TotalLost:       parseInt(hash["total_lost"]),
		QuestsCompleted: parseInt(hash["quests_completed"]),
		CreatedAt:       parseInt(hash["created_at"]),
		UpdatedAt:       parseInt(hash["updated_at"]),
	}, nil
}

func wagerFromReply(reply []interface{}, i int) (*models.Wager, error) {
	hash, err := replyHash(reply, i)
	if err != nil {
		return nil, storageErr("decode wager", err)
	}

	return &models.Wager{
		ID:        hash["id"],
		UserID:    hash["user_id"],
		TaskID:    hash["task_id"],
		TaskTitle: hash["task_title"],
		Stake:     parseInt(hash["stake"]),
		Bounty:    parseInt(hash["bounty"]),
		Payout:    parseInt(hash["payout"]),
		Status:    models.WagerStatus(hash["status"]),
		Deadline:  parseInt(hash["deadline"]),
		CreatedAt: parseInt(hash["created_at"]),
		SettledAt: parseInt(hash["settled_at"]),
	}, nil
}

func parseInt(s string) int64 {
	n, _ := strconv.ParseInt(s, 10, 64)
	return n
}

func amountArg(extra []interface{}) int64 {
	if len(extra) == 0 {
		return 0
	}
	n, _ := extra[0].(int64)
	return n
}
