package mysql

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
)

// PlanRecord is one generated plan or tip as persisted for audit and
// follow-up analysis.
type PlanRecord struct {
	SessionKey string `json:"session_key,omitempty"`
	Kind       string `json:"kind"`
	Summary    string `json:"summary"`
	Text       string `json:"text"`
	Model      string `json:"model"`
	CreatedAt  int64  `json:"created_at"`
}

// Record kinds.
const (
	KindPlan = "plan"
	KindTip  = "tip"
)

// PlanRepository abstracts where generated advice is archived.
type PlanRepository interface {
	Save(ctx context.Context, record PlanRecord) error
	ListLatest(ctx context.Context, limit int) ([]PlanRecord, error)
	Close() error
}

// FileRepository appends records to a JSONL file and keeps a bounded window
// in memory for reads. It stands in for MySQL in development, the same way
// the service runs its session store in memory by default.
type FileRepository struct {
	mu       sync.RWMutex
	dataFile string
	records  []PlanRecord
}

// maxCachedRecords bounds the in-memory read window of the file repository.
const maxCachedRecords = 512

// NewFileRepository creates the data directory if needed and replays any
// existing records from disk.
func NewFileRepository(dataDir string) (*FileRepository, error) {
	if dataDir == "" {
		dataDir = "."
	}
	if err := os.MkdirAll(dataDir, 0o755); err != nil {
		return nil, fmt.Errorf("create data directory: %w", err)
	}
	repo := &FileRepository{dataFile: filepath.Join(dataDir, "plans.log")}
	if err := repo.loadFromDisk(); err != nil {
		return nil, err
	}
	return repo, nil
}

// Save appends the record to the JSONL file.
func (f *FileRepository) Save(_ context.Context, record PlanRecord) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	file, err := os.OpenFile(f.dataFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return fmt.Errorf("open plan log: %w", err)
	}
	defer file.Close()

	encoded, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("encode plan record: %w", err)
	}
	if _, err := file.Write(append(encoded, '\n')); err != nil {
		return fmt.Errorf("write plan log: %w", err)
	}

	f.records = append([]PlanRecord{record}, f.records...)
	if len(f.records) > maxCachedRecords {
		f.records = f.records[:maxCachedRecords]
	}
	return nil
}

// ListLatest returns the most recent records, newest first.
func (f *FileRepository) ListLatest(_ context.Context, limit int) ([]PlanRecord, error) {
	f.mu.RLock()
	defer f.mu.RUnlock()

	if limit <= 0 || limit > len(f.records) {
		limit = len(f.records)
	}
	results := make([]PlanRecord, limit)
	copy(results, f.records[:limit])
	return results, nil
}

// Close implements PlanRepository.
func (f *FileRepository) Close() error {
	return nil
}

func (f *FileRepository) loadFromDisk() error {
	file, err := os.OpenFile(f.dataFile, os.O_RDONLY|os.O_CREATE, 0o644)
	if err != nil {
		return fmt.Errorf("open plan log: %w", err)
	}
	defer file.Close()

	scanner := bufio.NewScanner(file)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	var restored []PlanRecord
	for scanner.Scan() {
		var record PlanRecord
		if err := json.Unmarshal(scanner.Bytes(), &record); err != nil {
			continue
		}
		restored = append([]PlanRecord{record}, restored...)
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("replay plan log: %w", err)
	}
	if len(restored) > maxCachedRecords {
		restored = restored[:maxCachedRecords]
	}
	f.records = restored
	return nil
}
