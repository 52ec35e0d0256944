// Package catalog loads and registers workflow definitions from a
// directory of YAML files. Loading is pure configuration work: it never
// invokes dbt, never touches the dbt project and never opens network
// connections, so the catalog can be rescanned cheaply and often.
package catalog

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/xeipuuv/gojsonschema"
	"gopkg.in/yaml.v3"

	"github.com/Beasttboy/dbt-etl-pipeline/pkg/models"
)

var (
	ErrWorkflowNotFound = errors.New("workflow not found")
	ErrDuplicateID      = errors.New("duplicate workflow id")
)

// Catalog is the definition registry. Load replaces the registered set
// atomically; readers always see a complete catalog.
type Catalog struct {
	dir      string
	logger   *slog.Logger
	validate *validator.Validate
	schema   *gojsonschema.Schema

	mu      sync.RWMutex
	entries map[string]*models.Workflow
}

func New(dir string, logger *slog.Logger) (*Catalog, error) {
	schema, err := gojsonschema.NewSchema(gojsonschema.NewStringLoader(definitionSchema))
	if err != nil {
		return nil, fmt.Errorf("failed to compile definition schema: %w", err)
	}

	return &Catalog{
		dir:      dir,
		logger:   logger.With("module", "catalog", "dir", dir),
		validate: validator.New(),
		schema:   schema,
		entries:  make(map[string]*models.Workflow),
	}, nil
}

// Load scans the definitions directory and registers every valid
// workflow. Errors are aggregated per file; a bad file never blocks
// the others from being reported, and nothing is registered unless the
// whole directory is clean.
func (c *Catalog) Load(ctx context.Context) error {
	files, err := c.listDefinitionFiles()
	if err != nil {
		return err
	}

	entries := make(map[string]*models.Workflow, len(files))
	sources := make(map[string]string, len(files))

	var errs []error

	for _, file := range files {
		workflow, err := c.loadFile(file)
		if err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", file, err))

			continue
		}

		if existing, ok := sources[workflow.ID]; ok {
			errs = append(errs, fmt.Errorf("%s: %w: %q already defined in %s",
				file, ErrDuplicateID, workflow.ID, existing))

			continue
		}

		entries[workflow.ID] = workflow
		sources[workflow.ID] = file
	}

	if len(errs) > 0 {
		return errors.Join(errs...)
	}

	c.mu.Lock()
	c.entries = entries
	c.mu.Unlock()

	c.logger.InfoContext(ctx, "Loaded workflow definitions", "count", len(entries))

	return nil
}

// Reload rescans the directory. Loading the same directory twice
// yields structurally identical entries.
func (c *Catalog) Reload(ctx context.Context) error {
	return c.Load(ctx)
}

// Get returns a registered workflow by identifier.
func (c *Catalog) Get(id string) (*models.Workflow, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	workflow, ok := c.entries[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrWorkflowNotFound, id)
	}

	return workflow, nil
}

// List returns every registered workflow, sorted by identifier.
func (c *Catalog) List() []*models.Workflow {
	c.mu.RLock()
	defer c.mu.RUnlock()

	workflows := make([]*models.Workflow, 0, len(c.entries))
	for _, workflow := range c.entries {
		workflows = append(workflows, workflow)
	}

	sort.Slice(workflows, func(i, j int) bool {
		return workflows[i].ID < workflows[j].ID
	})

	return workflows
}

// Len returns the number of registered workflows.
func (c *Catalog) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()

	return len(c.entries)
}

func (c *Catalog) listDefinitionFiles() ([]string, error) {
	if _, err := os.Stat(c.dir); err != nil {
		return nil, fmt.Errorf("definitions directory: %w", err)
	}

	root := os.DirFS(c.dir)

	var files []string

	for _, pattern := range []string{"*.yaml", "*.yml"} {
		matches, err := fs.Glob(root, pattern)
		if err != nil {
			return nil, fmt.Errorf("failed to list definition files: %w", err)
		}

		files = append(files, matches...)
	}

	sort.Strings(files)

	for i, file := range files {
		files[i] = filepath.Join(c.dir, file)
	}

	return files, nil
}

func (c *Catalog) loadFile(path string) (*models.Workflow, error) {
	data, err := os.ReadFile(filepath.Clean(path))
	if err != nil {
		return nil, fmt.Errorf("failed to read definition: %w", err)
	}

	var document map[string]any
	if err := yaml.Unmarshal(data, &document); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	result, err := c.schema.Validate(gojsonschema.NewGoLoader(normalize(document)))
	if err != nil {
		return nil, fmt.Errorf("schema validation failed: %w", err)
	}

	if !result.Valid() {
		details := make([]string, 0, len(result.Errors()))
		for _, desc := range result.Errors() {
			details = append(details, desc.String())
		}

		return nil, fmt.Errorf("%w: %s", models.ErrInvalidWorkflow, strings.Join(details, "; "))
	}

	var workflow models.Workflow
	if err := yaml.Unmarshal(data, &workflow); err != nil {
		return nil, fmt.Errorf("failed to decode definition: %w", err)
	}

	workflow.ApplyDefaults()

	if err := workflow.Validate(c.validate); err != nil {
		return nil, err
	}

	return &workflow, nil
}

// normalize prepares a YAML document for JSON-Schema validation. The
// YAML decoder resolves unquoted dates into time.Time; the schema
// expects the literal YYYY-MM-DD string.
func normalize(value any) any {
	switch typed := value.(type) {
	case map[string]any:
		for key, entry := range typed {
			typed[key] = normalize(entry)
		}

		return typed
	case []any:
		for i, entry := range typed {
			typed[i] = normalize(entry)
		}

		return typed
	case time.Time:
		return typed.Format("2006-01-02")
	default:
		return value
	}
}
