package cmd

import (
	"github.com/Beasttboy/dbt-etl-pipeline/pkg/persistence"
	"github.com/Beasttboy/dbt-etl-pipeline/pkg/persistence/file"
)

// NewPersistence builds the persistence layer from a database URL.
// Only the file provider exists today; anything else falls through to
// it so file paths work with or without the scheme.
func NewPersistence(databaseURL string) persistence.Persistence {
	return file.NewPersistence(databaseURL)
}
