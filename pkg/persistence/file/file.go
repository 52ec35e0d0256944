// Package file provides file-based persistence for runs and schedules.
// One JSON document per entity under the root directory.
package file

import (
	"context"
	"os"
	"strings"

	"github.com/Beasttboy/dbt-etl-pipeline/pkg/persistence"
)

// Persistence implements the persistence.Persistence interface using
// the file system.
type Persistence struct {
	root         string
	runRepo      *RunRepository
	scheduleRepo *ScheduleRepository
}

// NewPersistence creates file persistence rooted at the given
// directory. A file:// prefix is accepted and stripped.
func NewPersistence(root string) *Persistence {
	cleanRoot := strings.Replace(root, "file://", "", 1)

	return &Persistence{
		root:         cleanRoot,
		runRepo:      NewRunRepository(cleanRoot),
		scheduleRepo: NewScheduleRepository(cleanRoot),
	}
}

// Close performs any necessary cleanup. Nothing to do for files.
func (fp *Persistence) Close(_ context.Context) error {
	return nil
}

// HealthCheck verifies the root directory exists.
func (fp *Persistence) HealthCheck(_ context.Context) error {
	if _, err := os.Stat(fp.root); os.IsNotExist(err) {
		return os.ErrNotExist
	}

	return nil
}

func (fp *Persistence) RunRepository() persistence.RunRepository {
	return fp.runRepo
}

func (fp *Persistence) ScheduleRepository() persistence.ScheduleRepository {
	return fp.scheduleRepo
}
