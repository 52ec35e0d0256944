package models

// ResourceType classifies an executable node of a dbt project.
type ResourceType string

const (
	ResourceTypeModel    ResourceType = "model"
	ResourceTypeSeed     ResourceType = "seed"
	ResourceTypeSnapshot ResourceType = "snapshot"
	ResourceTypeTest     ResourceType = "test"
)

// ExecutableResourceTypes lists the resource types that expand into
// tasks. Sources, macros and docs never execute.
var ExecutableResourceTypes = map[ResourceType]bool{
	ResourceTypeModel:    true,
	ResourceTypeSeed:     true,
	ResourceTypeSnapshot: true,
	ResourceTypeTest:     true,
}

// TaskStatus represents the lifecycle state of a task within a run.
type TaskStatus string

const (
	TaskStatusPending        TaskStatus = "pending"
	TaskStatusRunning        TaskStatus = "running"
	TaskStatusSuccess        TaskStatus = "success"
	TaskStatusFailed         TaskStatus = "failed"
	TaskStatusSkipped        TaskStatus = "skipped"
	TaskStatusUpstreamFailed TaskStatus = "upstream_failed"
)

// Task is one executable node of an expanded task group. ID is the
// dbt unique_id (e.g. "model.data_pipeline.stg_orders"), Name the
// selector-friendly node name.
type Task struct {
	ID           string       `json:"id"`
	Name         string       `json:"name"`
	ResourceType ResourceType `json:"resource_type"`
	DependsOn    []string     `json:"depends_on,omitempty"`
	Tags         []string     `json:"tags,omitempty"`
}
