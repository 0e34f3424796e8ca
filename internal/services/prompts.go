package services

import (
	"fmt"
	"sort"
	"strings"

	"chronocharm-backend/internal/models"
)

const breakdownSystemPrompt = `You are the ChronoCharm Odds Maker, a wise, compassionate executive function coach for students with ADHD.

Your mission: transform overwhelming assignments into tiny, winnable micro-tasks of 5 minutes each.

For EACH task, you must:
1. Assess cognitive load (difficulty: easy/medium/hard)
2. Set the stake (Mana they risk to start, higher for harder tasks)
   - Easy: 5-15 Mana
   - Medium: 15-30 Mana
   - Hard: 30-50 Mana
3. Set the bounty (Mana they earn for winning, always 2-3x the stake)
4. Add encouragement (a short fantasy-mentor quote like "The scroll awaits your first mark...")

Critical rules:
- Break tasks into 5-minute chunks maximum
- Make the first task EXTREMELY easy (5 Mana stake) to build momentum
- Bounty must ALWAYS exceed stake
- Use clear, specific action verbs ("Read pages 1-3", not "Start reading")
- For math/coding: break by problem, not by concept
- For essays: break by paragraph or outline step

Output ONLY valid JSON in this EXACT format:
{
  "tasks": [
    {
      "id": "task_1",
      "title": "Clear, specific task description",
      "duration_minutes": 5,
      "required_stake": 5,
      "reward_bounty": 15,
      "encouragement_quote": "The journey begins with a single step..."
    }
  ]
}

IMPORTANT: Return ONLY the JSON, no other text or markdown.`

const wizardInstruction = "Use magical, wizard-themed language with emojis to make tasks more engaging and fun!"

type BreakdownOptions struct {
	TaskCount  int
	WizardMode bool
}

func BuildBreakdownPrompt(assignment string, opts BreakdownOptions) string {
	var b strings.Builder

	b.WriteString(breakdownSystemPrompt)
	b.WriteString("\n\nAssignment to break down:\n")
	b.WriteString(strings.TrimSpace(assignment))

	if opts.TaskCount > 0 || opts.WizardMode {
		b.WriteString("\n\n")
	}
	if opts.TaskCount > 0 {
		fmt.Fprintf(&b, "Generate exactly %d tasks.", opts.TaskCount)
	}
	if opts.WizardMode {
		if opts.TaskCount > 0 {
			b.WriteString(" ")
		}
		b.WriteString(wizardInstruction)
	}

	return b.String()
}

const defaultEstimatedMinutes = 60

// freeHoursByDay groups unblocked slots by day with hours ascending.
func freeHoursByDay(slots []models.TimeSlot) map[int][]int {
	days := make(map[int][]int)
	for _, slot := range slots {
		if slot.IsBlocked {
			continue
		}
		days[slot.DayIndex] = append(days[slot.DayIndex], slot.Hour)
	}
	for day := range days {
		sort.Ints(days[day])
	}
	return days
}

func sortedDays(days map[int][]int) []int {
	keys := make([]int, 0, len(days))
	for day, hours := range days {
		if len(hours) > 0 {
			keys = append(keys, day)
		}
	}
	sort.Ints(keys)
	return keys
}

func BuildSchedulePrompt(tasks []models.ScheduleTask, slots []models.TimeSlot) string {
	var b strings.Builder

	b.WriteString("You are a productivity AI scheduling assistant. Schedule these tasks optimally:\n\n")

	b.WriteString("TASKS TO SCHEDULE:\n")
	for i, task := range tasks {
		minutes := task.EstimatedMinutes
		if minutes <= 0 {
			minutes = defaultEstimatedMinutes
		}
		fmt.Fprintf(&b, "- [%d] %s: %d minutes, Complexity: %s\n",
			i, task.Title, minutes, models.ComplexityForStake(task.Stake))
	}

	b.WriteString("\nAVAILABLE TIME:\n")
	days := freeHoursByDay(slots)
	for _, day := range sortedDays(days) {
		hours := days[day]
		fmt.Fprintf(&b, "Day %d: %d free hours (%d-%d available): %s\n",
			day, len(hours), hours[0], hours[len(hours)-1], joinInts(hours))
	}

	b.WriteString(`
SCHEDULING RULES:
1. Place complex/difficult tasks during peak energy (9AM-12PM, 2PM-5PM)
2. Place simple tasks during low energy (early morning, after 6PM)
3. Group similar tasks together when possible
4. Leave buffer time between intense tasks
5. Spread work across multiple days for sustainability

Only use the free hours listed above. taskIndex is the number in brackets.

Return ONLY valid JSON in this format:
{
  "schedule": [
    {
      "taskIndex": 0,
      "dayIndex": 0,
      "startHour": 9,
      "reasoning": "Complex task scheduled during morning peak energy"
    }
  ]
}`)

	return b.String()
}

func joinInts(values []int) string {
	parts := make([]string, len(values))
	for i, v := range values {
		parts[i] = fmt.Sprint(v)
	}
	return strings.Join(parts, ",")
}
