package services

import "chronocharm-backend/internal/models"

// Broadcaster pushes account changes to connected clients.
type Broadcaster interface {
	BroadcastBalance(account *models.UserAccount)
	BroadcastWager(wager *models.Wager, account *models.UserAccount)
}

type nopBroadcaster struct{}

func (nopBroadcaster) BroadcastBalance(*models.UserAccount)              {}
func (nopBroadcaster) BroadcastWager(*models.Wager, *models.UserAccount) {}
