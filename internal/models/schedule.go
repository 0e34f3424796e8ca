package models

type ScheduleTask struct {
	Title            string `json:"title"`
	Description      string `json:"description,omitempty"`
	EstimatedMinutes int    `json:"estimatedMinutes"`
	Stake            int64  `json:"stake"`
	Bounty           int64  `json:"bounty,omitempty"`
}

type TimeSlot struct {
	DayIndex  int  `json:"dayIndex"`
	Hour      int  `json:"hour"`
	IsBlocked bool `json:"isBlocked"`
}

type ScheduleEntry struct {
	TaskIndex int    `json:"taskIndex"`
	DayIndex  int    `json:"dayIndex"`
	StartHour int    `json:"startHour"`
	Reasoning string `json:"reasoning"`
}

type ScheduleRequest struct {
	Tasks          []ScheduleTask `json:"tasks"`
	AvailableHours []TimeSlot     `json:"available_hours"`
	UserID         string         `json:"user_id"`
}

type ScheduleResponse struct {
	Schedule []ScheduleEntry `json:"schedule"`
}

type Complexity string

const (
	ComplexitySimple   Complexity = "simple"
	ComplexityModerate Complexity = "moderate"
	ComplexityComplex  Complexity = "complex"
)

// ComplexityForStake derives a task's tier from the stake it carries.
func ComplexityForStake(stake int64) Complexity {
	switch {
	case stake < 15:
		return ComplexitySimple
	case stake < 25:
		return ComplexityModerate
	default:
		return ComplexityComplex
	}
}
