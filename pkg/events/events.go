// Package events defines event types for run lifecycle notifications.
package events

import (
	"time"

	"github.com/google/uuid"

	"github.com/Beasttboy/dbt-etl-pipeline/pkg/models"
)

type EventType string

// Topic carries every run lifecycle event.
const Topic = "dbt_pipeline.runs"

const EventMetadataKey = "key"
const EventTypeMetadataKey = "event_type"

const (
	RunTriggeredEvent EventType = "run.triggered"
	RunStartedEvent   EventType = "run.started"
	RunCompletedEvent EventType = "run.completed"
	RunFailedEvent    EventType = "run.failed"

	TaskStartedEvent  EventType = "task.started"
	TaskFinishedEvent EventType = "task.finished"
)

type BaseEvent struct {
	ID         string    `json:"id"`
	Type       EventType `json:"type"`
	Timestamp  time.Time `json:"timestamp"`
	WorkflowID string    `json:"workflow_id"`
	RunID      string    `json:"run_id,omitempty"`
}

func NewBaseEvent(eventType EventType, workflowID, runID string) BaseEvent {
	return BaseEvent{
		ID:         uuid.New().String(),
		Type:       eventType,
		Timestamp:  time.Now().UTC(),
		WorkflowID: workflowID,
		RunID:      runID,
	}
}

type RunTriggered struct {
	BaseEvent

	Trigger     models.TriggerKind `json:"trigger"`
	LogicalDate time.Time          `json:"logical_date"`
}

func (e RunTriggered) GetType() EventType {
	return RunTriggeredEvent
}

type RunStarted struct {
	BaseEvent

	LogicalDate time.Time `json:"logical_date"`
	TaskCount   int       `json:"task_count"`
}

func (e RunStarted) GetType() EventType {
	return RunStartedEvent
}

type RunCompleted struct {
	BaseEvent

	Duration time.Duration `json:"duration"`
}

func (e RunCompleted) GetType() EventType {
	return RunCompletedEvent
}

type RunFailed struct {
	BaseEvent

	Error    string        `json:"error"`
	Duration time.Duration `json:"duration"`
}

func (e RunFailed) GetType() EventType {
	return RunFailedEvent
}

type TaskStarted struct {
	BaseEvent

	TaskID       string              `json:"task_id"`
	ResourceType models.ResourceType `json:"resource_type"`
}

func (e TaskStarted) GetType() EventType {
	return TaskStartedEvent
}

type TaskFinished struct {
	BaseEvent

	TaskID     string            `json:"task_id"`
	Status     models.TaskStatus `json:"status"`
	Error      string            `json:"error,omitempty"`
	DurationMs int64             `json:"duration_ms"`
}

func (e TaskFinished) GetType() EventType {
	return TaskFinishedEvent
}
