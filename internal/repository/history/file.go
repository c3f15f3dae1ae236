package history

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"github.com/guardian-safety/alert-engine/internal/config"
	"github.com/guardian-safety/alert-engine/internal/domain/alert"
)

// Repository defines persistence operations for alert records.
type Repository interface {
	// Save inserts or replaces the record.
	Save(ctx context.Context, record *alert.Record) error
	// GetByID returns the record with the given alert ID.
	GetByID(ctx context.Context, alertID string) (*alert.Record, error)
	// ListByUser returns the user's alerts, newest first.
	ListByUser(ctx context.Context, userID string) ([]*alert.Record, error)
}

// ErrNotFound is returned when the requested record does not exist.
var ErrNotFound = errors.New("alert record not found")

// FileRepository persists alert records to a JSON file on disk.
type FileRepository struct {
	// path is the filesystem location of the JSON history file.
	path string
	// mu protects concurrent access to the history file.
	mu sync.Mutex
}

// NewFileRepository creates a repository that reads/writes JSON at the
// provided path.
func NewFileRepository(path string) *FileRepository {
	return &FileRepository{
		path: filepath.Clean(path),
	}
}

// Save inserts or replaces the record in the history file.
func (r *FileRepository) Save(_ context.Context, record *alert.Record) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	records, err := r.load()
	if err != nil {
		return err
	}

	records[record.ID] = record.Clone()

	return r.store(records)
}

// GetByID returns the record with the given alert ID.
func (r *FileRepository) GetByID(_ context.Context, alertID string) (*alert.Record, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	records, err := r.load()
	if err != nil {
		return nil, err
	}

	record, ok := records[alertID]
	if !ok {
		return nil, ErrNotFound
	}

	return record.Clone(), nil
}

// ListByUser returns the user's alerts, newest first.
func (r *FileRepository) ListByUser(_ context.Context, userID string) ([]*alert.Record, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	records, err := r.load()
	if err != nil {
		return nil, err
	}

	result := make([]*alert.Record, 0, len(records))

	for _, record := range records {
		if record.UserID == userID {
			result = append(result, record.Clone())
		}
	}

	sort.Slice(result, func(i, j int) bool {
		return result[i].CreatedAt.After(result[j].CreatedAt)
	})

	return result, nil
}

// load reads the history file into a map keyed by alert ID.
// A missing file is an empty history, not an error.
func (r *FileRepository) load() (map[string]*alert.Record, error) {
	contents, err := os.ReadFile(r.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return make(map[string]*alert.Record), nil
		}

		return nil, fmt.Errorf("read history file: %w", err)
	}

	records := make(map[string]*alert.Record)
	if err := json.Unmarshal(contents, &records); err != nil {
		return nil, fmt.Errorf("decode history file: %w", err)
	}

	return records, nil
}

// store writes the full history map back to disk.
func (r *FileRepository) store(records map[string]*alert.Record) error {
	data, err := json.MarshalIndent(records, "", "  ")
	if err != nil {
		return fmt.Errorf("encode history: %w", err)
	}

	if err := os.WriteFile(r.path, data, config.DefaultFilePermissions); err != nil {
		return fmt.Errorf("write history file: %w", err)
	}

	return nil
}
