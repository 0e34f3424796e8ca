package models

type WagerStatus string

const (
	WagerStatusOpen WagerStatus = "open"
	WagerStatusWon  WagerStatus = "won"
	WagerStatusLost WagerStatus = "lost"
)

// Wager is keyed by (UserID, TaskID). Only one open wager may exist per key;
// once settled it is never settled again.
type Wager struct {
	ID        string      `json:"id" redis:"id"`
	UserID    string      `json:"user_id" redis:"user_id"`
	TaskID    string      `json:"task_id" redis:"task_id"`
	TaskTitle string      `json:"task_title,omitempty" redis:"task_title"`
	Stake     int64       `json:"stake" redis:"stake"`
	Bounty    int64       `json:"bounty,omitempty" redis:"bounty"`
	Payout    int64       `json:"payout,omitempty" redis:"payout"`
	Status    WagerStatus `json:"status" redis:"status"`

	Deadline  int64 `json:"deadline,omitempty" redis:"deadline"`
	CreatedAt int64 `json:"created_at" redis:"created_at"`
	SettledAt int64 `json:"settled_at,omitempty" redis:"settled_at"`
}

func (w *Wager) IsOpen() bool {
	return w.Status == WagerStatusOpen
}

// MaxWagerDurationSeconds caps a wager deadline at one week.
const MaxWagerDurationSeconds = 7 * 24 * 60 * 60

type WagerStartRequest struct {
	TaskID          string `json:"task_id" binding:"required"`
	Stake           int64  `json:"stake" binding:"min=0"`
	Bounty          int64  `json:"bounty" binding:"min=0"`
	TaskTitle       string `json:"task_title"`
	DurationSeconds int64  `json:"duration_seconds" binding:"min=0,max=604800"`
	UserID          string `json:"user_id"`
}

type WagerCompleteRequest struct {
	TaskID string `json:"task_id" binding:"required"`
	Bounty int64  `json:"bounty" binding:"min=0"`
	Stake  int64  `json:"stake" binding:"min=0"`
	Won    bool   `json:"won"`
	UserID string `json:"user_id"`
}

// WagerSettlement is the result of completing a wager. Replayed is set when
// the wager had already been settled by an earlier call.
type WagerSettlement struct {
	Wager    *Wager       `json:"wager"`
	Account  *UserAccount `json:"account"`
	Replayed bool         `json:"replayed"`
}
