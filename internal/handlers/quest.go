package handlers

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"chronocharm-backend/internal/models"
	"chronocharm-backend/internal/services"
)

const defaultTaskCount = 10

type QuestHandler struct {
	oddsMaker *services.OddsMaker
	ledger    *services.Ledger
}

func NewQuestHandler(oddsMaker *services.OddsMaker, ledger *services.Ledger) *QuestHandler {
	return &QuestHandler{
		oddsMaker: oddsMaker,
		ledger:    ledger,
	}
}

func (h *QuestHandler) Breakdown(c *gin.Context) {
	var req models.BreakdownRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBindError(c, err)
		return
	}

	assignment := strings.TrimSpace(req.Text())
	if assignment == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Assignment is required"})
		return
	}
	taskCount := req.TaskCount
	if taskCount <= 0 {
		taskCount = defaultTaskCount
	}

	// The caller stakes against this account next
	if _, err := h.ledger.GetOrCreate(c.Request.Context(), requestUserID(c, req.UserID)); err != nil {
		respondError(c, err)
		return
	}

	result := h.oddsMaker.Breakdown(c.Request.Context(), assignment, services.BreakdownOptions{
		TaskCount:  taskCount,
		WizardMode: req.IsWizardMode,
	})

	questTasks := result.QuestLog.Tasks
	if len(questTasks) > taskCount {
		questTasks = questTasks[:taskCount]
	}

	tasks := make([]models.BoardTask, 0, len(questTasks))
	for i, task := range questTasks {
		tasks = append(tasks, models.BoardTask{
			ID:            fmt.Sprintf("task-%d", i+1),
			Title:         task.Title,
			Description:   task.EncouragementQuote,
			EstimatedTime: fmt.Sprintf("%d min", task.DurationMinutes),
			Completed:     false,
		})
	}

	c.JSON(http.StatusOK, models.BreakdownResponse{
		Tasks:              tasks,
		Quote:              services.MotivationalQuote(),
		TotalEstimatedTime: fmt.Sprintf("%d minutes", result.QuestLog.TotalMinutes(taskCount)),
	})
}

func (h *QuestHandler) Schedule(c *gin.Context) {
	var req models.ScheduleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBindError(c, err)
		return
	}

	result := h.oddsMaker.Schedule(c.Request.Context(), req.Tasks, req.AvailableHours)

	c.JSON(http.StatusOK, models.ScheduleResponse{
		Schedule: result.Schedule,
	})
}
