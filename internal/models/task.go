package models

// MicroTask is one Oracle-produced chunk of an assignment. It is never
// persisted; the caller owns it once returned.
type MicroTask struct {
	ID                 string `json:"id"`
	Title              string `json:"title"`
	DurationMinutes    int    `json:"duration_minutes"`
	RequiredStake      int64  `json:"required_stake"`
	RewardBounty       int64  `json:"reward_bounty"`
	EncouragementQuote string `json:"encouragement_quote"`
}

type QuestLog struct {
	Tasks []MicroTask `json:"tasks"`
}

type BreakdownRequest struct {
	Assignment     string `json:"assignment"`
	AssignmentText string `json:"assignment_text"`
	TaskCount      int    `json:"taskCount" binding:"omitempty,min=1,max=50"`
	IsWizardMode   bool   `json:"isWizardMode"`
	UserID         string `json:"user_id"`
}

// Text returns the assignment body, accepting the legacy assignment_text
// field used by older clients.
func (r *BreakdownRequest) Text() string {
	if r.Assignment != "" {
		return r.Assignment
	}
	return r.AssignmentText
}

type BoardTask struct {
	ID            string `json:"id"`
	Title         string `json:"title"`
	Description   string `json:"description"`
	EstimatedTime string `json:"estimatedTime"`
	Completed     bool   `json:"completed"`
}

type BreakdownResponse struct {
	Tasks              []BoardTask `json:"tasks"`
	Quote              string      `json:"quote"`
	TotalEstimatedTime string      `json:"totalEstimatedTime"`
}
