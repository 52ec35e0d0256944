package file

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path"
	"path/filepath"

	"github.com/Beasttboy/dbt-etl-pipeline/pkg/models"
	"github.com/Beasttboy/dbt-etl-pipeline/pkg/persistence"
)

// ScheduleRepository stores schedule state as
// schedules/<workflow-id>.json.
type ScheduleRepository struct {
	root string
}

func NewScheduleRepository(root string) *ScheduleRepository {
	return &ScheduleRepository{root: root}
}

func (sr *ScheduleRepository) Save(_ context.Context, schedule *models.Schedule) error {
	dir := path.Join(sr.root, "schedules")
	if err := os.MkdirAll(dir, 0750); err != nil {
		return fmt.Errorf("failed to create schedules directory: %w", err)
	}

	data, err := json.MarshalIndent(schedule, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal schedule %s: %w", schedule.WorkflowID, err)
	}

	return os.WriteFile(path.Join(dir, schedule.WorkflowID+".json"), data, 0600)
}

func (sr *ScheduleRepository) GetByWorkflowID(_ context.Context, workflowID string) (*models.Schedule, error) {
	filePath := filepath.Clean(path.Join(sr.root, "schedules", workflowID+".json"))

	body, err := os.ReadFile(filePath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: %s", persistence.ErrScheduleNotFound, workflowID)
		}

		return nil, fmt.Errorf("failed to read schedule %s: %w", workflowID, err)
	}

	var schedule models.Schedule
	if err := json.Unmarshal(body, &schedule); err != nil {
		return nil, fmt.Errorf("failed to unmarshal schedule %s: %w", workflowID, err)
	}

	return &schedule, nil
}
