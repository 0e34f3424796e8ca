package handlers

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"chronocharm-backend/internal/models"
	"chronocharm-backend/internal/services"
)

type WagerHandler struct {
	ledger *services.Ledger
}

func NewWagerHandler(ledger *services.Ledger) *WagerHandler {
	return &WagerHandler{
		ledger: ledger,
	}
}

func (h *WagerHandler) GetBalance(c *gin.Context) {
	account, err := h.ledger.GetOrCreate(c.Request.Context(), requestUserID(c, ""))
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, account.ToResponse())
}

func (h *WagerHandler) StartWager(c *gin.Context) {
	var req models.WagerStartRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBindError(c, err)
		return
	}
	req.UserID = requestUserID(c, req.UserID)

	wager, account, err := h.ledger.StartWager(c.Request.Context(), &req)
	if err != nil {
		respondError(c, err)
		return
	}

	resp := gin.H{
		"success":        true,
		"task_id":        wager.TaskID,
		"wager_id":       wager.ID,
		"stake_deducted": wager.Stake,
		"new_balance":    account.Balance,
	}
	if wager.Deadline > 0 {
		resp["deadline"] = wager.Deadline
	}
	c.JSON(http.StatusOK, resp)
}

func (h *WagerHandler) CompleteWager(c *gin.Context) {
	var req models.WagerCompleteRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBindError(c, err)
		return
	}
	req.UserID = requestUserID(c, req.UserID)

	settlement, err := h.ledger.CompleteWager(c.Request.Context(), &req)
	if err != nil {
		respondError(c, err)
		return
	}

	wager, account := settlement.Wager, settlement.Account
	if wager.Status == models.WagerStatusWon {
		c.JSON(http.StatusOK, gin.H{
			"success":        true,
			"outcome":        "won",
			"task_id":        wager.TaskID,
			"bounty_awarded": wager.Bounty,
			"stake_returned": wager.Stake,
			"total_gain":     wager.Payout,
			"new_balance":    account.Balance,
			"replayed":       settlement.Replayed,
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success":     true,
		"outcome":     "lost",
		"task_id":     wager.TaskID,
		"stake_lost":  wager.Stake,
		"new_balance": account.Balance,
		"replayed":    settlement.Replayed,
	})
}

func (h *WagerHandler) GetActiveWagers(c *gin.Context) {
	wagers, err := h.ledger.OpenWagers(c.Request.Context(), requestUserID(c, ""))
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"wagers": wagers,
		"count":  len(wagers),
	})
}

func (h *WagerHandler) GetTransactions(c *gin.Context) {
	limit := int64(50)
	if raw := c.Query("limit"); raw != "" {
		parsed, err := strconv.ParseInt(raw, 10, 64)
		if err != nil || parsed < 1 || parsed > services.MaxTransactions {
			c.JSON(http.StatusBadRequest, gin.H{"error": "limit must be between 1 and 100"})
			return
		}
		limit = parsed
	}

	txs, err := h.ledger.Transactions(c.Request.Context(), requestUserID(c, ""), limit)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"transactions": txs,
		"count":        len(txs),
	})
}

func (h *WagerHandler) Reset(c *gin.Context) {
	account, err := h.ledger.Reset(c.Request.Context(), requestUserID(c, ""))
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"balance": account.Balance,
	})
}
