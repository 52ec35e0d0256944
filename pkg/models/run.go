package models

import "time"

// RunStatus represents the lifecycle state of a run.
type RunStatus string

const (
	RunStatusRunning RunStatus = "running"
	RunStatusSuccess RunStatus = "success"
	RunStatusFailed  RunStatus = "failed"
)

// TriggerKind records what caused a run.
type TriggerKind string

const (
	TriggerKindSchedule TriggerKind = "schedule"
	TriggerKindManual   TriggerKind = "manual"
	TriggerKindQueue    TriggerKind = "queue"
)

// TaskResult is the outcome of one task within a run.
type TaskResult struct {
	TaskID     string     `json:"task_id"`
	Status     TaskStatus `json:"status"`
	Error      string     `json:"error,omitempty"`
	StartedAt  *time.Time `json:"started_at,omitempty"`
	FinishedAt *time.Time `json:"finished_at,omitempty"`
}

// Run is one materialization of a workflow: the expanded tasks and
// their outcomes for a single logical date.
type Run struct {
	ID          string                 `json:"id"`
	WorkflowID  string                 `json:"workflow_id"`
	LogicalDate time.Time              `json:"logical_date"`
	Trigger     TriggerKind            `json:"trigger"`
	Status      RunStatus              `json:"status"`
	Tasks       []*Task                `json:"tasks,omitempty"`
	Results     map[string]*TaskResult `json:"results,omitempty"`
	StartedAt   time.Time              `json:"started_at"`
	FinishedAt  *time.Time             `json:"finished_at,omitempty"`
}

// Finish records the terminal status and completion time.
func (r *Run) Finish(status RunStatus) {
	now := time.Now().UTC()
	r.Status = status
	r.FinishedAt = &now
}
