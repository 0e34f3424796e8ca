package services

import "time"

const (
	KeyAccount          = "account:%s"
	KeyWager            = "wager:%s:%s"
	KeyUserOpenWagers   = "user:%s:open_wagers"
	KeyWagerDeadlines   = "wagers:deadlines"
	KeyTransaction      = "transaction:%s"
	KeyUserTransactions = "user:%s:transactions"
	KeyStats            = "stats:%s"
	KeyRateLimit        = "ratelimit:%s:%s"

	TTLTransaction  = 30 * 24 * time.Hour // 30 days
	TTLSettledWager = 7 * 24 * time.Hour  // 7 days

	MaxTransactions = 100

	DefaultRateLimitAI = 20 // Oracle calls per user per minute
)

// wagerMember is the deadline index member for a wager. Wager requests
// reject ids containing NUL, so the split is unambiguous.
func wagerMember(userID, taskID string) string {
	return userID + "\x00" + taskID
}
