package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"math/rand"
	"regexp"
	"strings"
	"time"

	"chronocharm-backend/internal/models"
)

// OddsMaker turns assignments into staked micro-tasks and places tasks into
// free time. It keeps no state between calls.
type OddsMaker struct {
	oracle  Oracle
	timeout time.Duration
}

func NewOddsMaker(oracle Oracle, timeout time.Duration) *OddsMaker {
	if timeout <= 0 {
		timeout = 20 * time.Second
	}
	return &OddsMaker{
		oracle:  oracle,
		timeout: timeout,
	}
}

type BreakdownResult struct {
	QuestLog *models.QuestLog
	// Fallback is set when the Oracle failed and the fixed tasks were used.
	Fallback bool
	// Sparse is set when the Oracle returned fewer than MinOracleTasks.
	Sparse bool
	Err    error
}

type ScheduleResult struct {
	Schedule []models.ScheduleEntry
	Fallback bool
	Err      error
}

const MinOracleTasks = 3

// FallbackQuestLog is served whenever the Oracle cannot be used.
func FallbackQuestLog() *models.QuestLog {
	return &models.QuestLog{Tasks: []models.MicroTask{
		{
			ID:                 "task_1",
			Title:              "Read the assignment prompt carefully",
			DurationMinutes:    5,
			RequiredStake:      5,
			RewardBounty:       15,
			EncouragementQuote: "Every quest begins with a single step, young wizard.",
		},
		{
			ID:                 "task_2",
			Title:              "Create an outline or plan for your work",
			DurationMinutes:    5,
			RequiredStake:      10,
			RewardBounty:       25,
			EncouragementQuote: "A map guides even the lost traveler home.",
		},
		{
			ID:                 "task_3",
			Title:              "Complete the first small portion of the assignment",
			DurationMinutes:    5,
			RequiredStake:      15,
			RewardBounty:       35,
			EncouragementQuote: "The first strike sparks the forge.",
		},
	}}
}

// Breakdown never fails: any Oracle problem yields FallbackQuestLog.
func (om *OddsMaker) Breakdown(ctx context.Context, assignment string, opts BreakdownOptions) *BreakdownResult {
	prompt := BuildBreakdownPrompt(assignment, opts)

	text, err := om.generate(ctx, "breakdown", prompt)
	if err == nil {
		var questLog *models.QuestLog
		if questLog, err = ParseQuestLog(text); err == nil {
			oracleCalls.WithLabelValues("breakdown", "ok").Inc()
			result := &BreakdownResult{QuestLog: questLog}
			if len(questLog.Tasks) < MinOracleTasks {
				result.Sparse = true
				sparseBreakdowns.Inc()
				log.Printf("Warning: oracle produced only %d tasks; assignment may be too simple", len(questLog.Tasks))
			} else {
				log.Printf("Generated %d micro-tasks from assignment", len(questLog.Tasks))
			}
			return result
		}
		err = &OracleError{Op: "breakdown", Err: err}
	}

	oracleCalls.WithLabelValues("breakdown", "fallback").Inc()
	log.Printf("Using fallback task list: %v", err)
	return &BreakdownResult{
		QuestLog: FallbackQuestLog(),
		Fallback: true,
		Err:      err,
	}
}

// Schedule places tasks into free slots. It never fails; with no usable
// Oracle answer it assigns greedily, one task per day.
func (om *OddsMaker) Schedule(ctx context.Context, tasks []models.ScheduleTask, slots []models.TimeSlot) *ScheduleResult {
	days := freeHoursByDay(slots)
	if len(tasks) == 0 || len(sortedDays(days)) == 0 {
		return &ScheduleResult{Schedule: []models.ScheduleEntry{}}
	}

	text, err := om.generate(ctx, "schedule", BuildSchedulePrompt(tasks, slots))
	if err == nil {
		var entries []models.ScheduleEntry
		if entries, err = ParseSchedule(text, len(tasks), days); err == nil {
			oracleCalls.WithLabelValues("schedule", "ok").Inc()
			log.Printf("Oracle scheduled %d tasks", len(entries))
			return &ScheduleResult{Schedule: entries}
		}
		err = &OracleError{Op: "schedule", Err: err}
	}

	oracleCalls.WithLabelValues("schedule", "fallback").Inc()
	log.Printf("Using fallback schedule: %v", err)
	return &ScheduleResult{
		Schedule: FallbackSchedule(len(tasks), slots),
		Fallback: true,
		Err:      err,
	}
}

// FallbackSchedule walks days ascending and gives each its earliest free
// hour, one task per day, until tasks or days run out.
func FallbackSchedule(taskCount int, slots []models.TimeSlot) []models.ScheduleEntry {
	days := freeHoursByDay(slots)
	schedule := []models.ScheduleEntry{}

	taskIdx := 0
	for _, day := range sortedDays(days) {
		if taskIdx >= taskCount {
			break
		}
		schedule = append(schedule, models.ScheduleEntry{
			TaskIndex: taskIdx,
			DayIndex:  day,
			StartHour: days[day][0],
			Reasoning: "Auto-scheduled to next available slot",
		})
		taskIdx++
	}

	return schedule
}

func (om *OddsMaker) generate(ctx context.Context, op, prompt string) (string, error) {
	if om.oracle == nil {
		return "", &OracleError{Op: op, Err: errors.New("no oracle configured")}
	}

	ctx, cancel := context.WithTimeout(ctx, om.timeout)
	defer cancel()

	start := time.Now()
	text, err := om.oracle.Generate(ctx, prompt)
	oracleLatency.WithLabelValues(op).Observe(time.Since(start).Seconds())
	if err != nil {
		return "", &OracleError{Op: op, Err: err}
	}

	log.Printf("Received %s response from oracle (%d chars)", op, len(text))
	return text, nil
}

var fencedBlock = regexp.MustCompile("(?s)```[a-zA-Z0-9_-]*\\s*(.*?)\\s*```")

// StripCodeFence removes markdown code fences around a model reply.
func StripCodeFence(text string) string {
	text = strings.TrimSpace(text)
	if m := fencedBlock.FindStringSubmatch(text); m != nil {
		return strings.TrimSpace(m[1])
	}
	// Unterminated fence
	if strings.HasPrefix(text, "```") {
		text = strings.TrimPrefix(text, "```json")
		text = strings.TrimPrefix(text, "```")
	}
	return strings.TrimSpace(strings.TrimSuffix(text, "```"))
}

// Pointer fields distinguish a missing key from a zero value.
type rawMicroTask struct {
	ID                 *string `json:"id"`
	Title              *string `json:"title"`
	DurationMinutes    *int    `json:"duration_minutes"`
	RequiredStake      *int64  `json:"required_stake"`
	RewardBounty       *int64  `json:"reward_bounty"`
	EncouragementQuote *string `json:"encouragement_quote"`
}

type rawQuestLog struct {
	Tasks *[]rawMicroTask `json:"tasks"`
}

// ParseQuestLog decodes and validates a breakdown reply. A single bad task
// rejects the whole reply.
func ParseQuestLog(text string) (*models.QuestLog, error) {
	var raw rawQuestLog
	if err := json.Unmarshal([]byte(StripCodeFence(text)), &raw); err != nil {
		return nil, fmt.Errorf("failed to parse quest log JSON: %w", err)
	}
	if raw.Tasks == nil {
		return nil, errors.New("quest log has no tasks field")
	}

	questLog := &models.QuestLog{Tasks: make([]models.MicroTask, 0, len(*raw.Tasks))}
	for i, t := range *raw.Tasks {
		if t.ID == nil || t.Title == nil || t.DurationMinutes == nil ||
			t.RequiredStake == nil || t.RewardBounty == nil || t.EncouragementQuote == nil {
			return nil, fmt.Errorf("task %d is missing required fields", i)
		}
		questLog.Tasks = append(questLog.Tasks, models.MicroTask{
			ID:                 *t.ID,
			Title:              *t.Title,
			DurationMinutes:    *t.DurationMinutes,
			RequiredStake:      *t.RequiredStake,
			RewardBounty:       *t.RewardBounty,
			EncouragementQuote: *t.EncouragementQuote,
		})
	}

	if err := questLog.Validate(); err != nil {
		return nil, err
	}
	return questLog, nil
}

type rawScheduleEntry struct {
	TaskIndex *int   `json:"taskIndex"`
	DayIndex  *int   `json:"dayIndex"`
	StartHour *int   `json:"startHour"`
	Reasoning string `json:"reasoning"`
}

type rawSchedule struct {
	Schedule *[]rawScheduleEntry `json:"schedule"`
}

// ParseSchedule decodes a schedule reply and checks every entry against the
// task count and the free hours it was offered.
func ParseSchedule(text string, taskCount int, freeHours map[int][]int) ([]models.ScheduleEntry, error) {
	var raw rawSchedule
	if err := json.Unmarshal([]byte(StripCodeFence(text)), &raw); err != nil {
		return nil, fmt.Errorf("failed to parse schedule JSON: %w", err)
	}
	if raw.Schedule == nil || len(*raw.Schedule) == 0 {
		return nil, errors.New("schedule is empty")
	}

	seen := make(map[int]bool)
	entries := make([]models.ScheduleEntry, 0, len(*raw.Schedule))
	for i, e := range *raw.Schedule {
		if e.TaskIndex == nil || e.DayIndex == nil || e.StartHour == nil {
			return nil, fmt.Errorf("schedule entry %d is missing required fields", i)
		}
		if *e.TaskIndex < 0 || *e.TaskIndex >= taskCount {
			return nil, fmt.Errorf("schedule entry %d: task index %d out of range", i, *e.TaskIndex)
		}
		if seen[*e.TaskIndex] {
			return nil, fmt.Errorf("schedule entry %d: task %d scheduled twice", i, *e.TaskIndex)
		}
		if !containsHour(freeHours[*e.DayIndex], *e.StartHour) {
			return nil, fmt.Errorf("schedule entry %d: day %d hour %d is not free", i, *e.DayIndex, *e.StartHour)
		}
		seen[*e.TaskIndex] = true

		entries = append(entries, models.ScheduleEntry{
			TaskIndex: *e.TaskIndex,
			DayIndex:  *e.DayIndex,
			StartHour: *e.StartHour,
			Reasoning: e.Reasoning,
		})
	}

	return entries, nil
}

func containsHour(hours []int, hour int) bool {
	for _, h := range hours {
		if h == hour {
			return true
		}
	}
	return false
}

var motivationalQuotes = []string{
	"The journey of a thousand miles begins with a single step. You've got this!",
	"Magic is believing in yourself. If you can do that, you can make anything happen.",
	"It does not do to dwell on dreams and forget to live. Time to take action!",
	"Happiness can be found even in the darkest of times, if one only remembers to turn on the light.",
	"We must all face the choice between what is right and what is easy. Choose action today!",
}

func MotivationalQuote() string {
	return motivationalQuotes[rand.Intn(len(motivationalQuotes))]
}
