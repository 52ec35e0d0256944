package file

import (
	"context"
	"encoding/json"
	"fmt"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"sort"

	"github.com/Beasttboy/dbt-etl-pipeline/pkg/models"
	"github.com/Beasttboy/dbt-etl-pipeline/pkg/persistence"
)

// RunRepository stores runs as runs/<workflow-id>/<run-id>.json.
type RunRepository struct {
	root string
}

func NewRunRepository(root string) *RunRepository {
	return &RunRepository{root: root}
}

// Save writes a run document, creating the workflow directory as
// needed.
func (rr *RunRepository) Save(_ context.Context, run *models.Run) error {
	dir := path.Join(rr.root, "runs", run.WorkflowID)
	if err := os.MkdirAll(dir, 0750); err != nil {
		return fmt.Errorf("failed to create runs directory: %w", err)
	}

	data, err := json.MarshalIndent(run, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal run %s: %w", run.ID, err)
	}

	return os.WriteFile(path.Join(dir, run.ID+".json"), data, 0600)
}

// GetByID scans the workflow directories for the run.
func (rr *RunRepository) GetByID(_ context.Context, runID string) (*models.Run, error) {
	runsDir := path.Join(rr.root, "runs")

	matches, err := fs.Glob(os.DirFS(runsDir), "*/"+runID+".json")
	if err != nil || len(matches) == 0 {
		return nil, fmt.Errorf("%w: %s", persistence.ErrRunNotFound, runID)
	}

	return rr.readRun(path.Join(runsDir, matches[0]))
}

// ListByWorkflow returns runs for a workflow, most recent first.
func (rr *RunRepository) ListByWorkflow(_ context.Context, workflowID string) ([]*models.Run, error) {
	dir := path.Join(rr.root, "runs", workflowID)

	jsonFiles, err := fs.Glob(os.DirFS(dir), "*.json")
	if err != nil {
		return []*models.Run{}, nil
	}

	runs := make([]*models.Run, 0, len(jsonFiles))

	for _, file := range jsonFiles {
		run, err := rr.readRun(path.Join(dir, file))
		if err != nil {
			return nil, err
		}

		runs = append(runs, run)
	}

	sort.Slice(runs, func(i, j int) bool {
		return runs[i].StartedAt.After(runs[j].StartedAt)
	})

	return runs, nil
}

func (rr *RunRepository) readRun(filePath string) (*models.Run, error) {
	body, err := os.ReadFile(filepath.Clean(filePath))
	if err != nil {
		return nil, fmt.Errorf("failed to read run file %s: %w", filePath, err)
	}

	var run models.Run
	if err := json.Unmarshal(body, &run); err != nil {
		return nil, fmt.Errorf("failed to unmarshal run file %s: %w", filePath, err)
	}

	return &run, nil
}
