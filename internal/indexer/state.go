package indexer

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/sugawarayuuta/sonnet"

	"nftsync/internal/storage"
)

// Checkpoint tracks the last processed block of one driver.
type Checkpoint struct {
	LastProcessedBlock uint64 `json:"last_processed_block"`
	UpdatedAt          string `json:"updated_at"`
}

// FileState keeps driver checkpoints in a JSON file, for runs without a
// database. A disabled FileState remembers nothing.
type FileState struct {
	path    string
	enabled bool
	mu      sync.Mutex
}

var _ storage.StateStore = (*FileState)(nil)

func NewFileState(path string, enabled bool) *FileState {
	return &FileState{path: path, enabled: enabled && path != ""}
}

func (f *FileState) read() (map[string]Checkpoint, error) {
	out := make(map[string]Checkpoint)
	stat, err := os.Stat(f.path)
	if err != nil {
		if os.IsNotExist(err) {
			return out, nil
		}
		return nil, fmt.Errorf("stat checkpoint: %w", err)
	}
	if stat.IsDir() {
		return nil, fmt.Errorf("checkpoint path is a directory")
	}
	data, err := os.ReadFile(f.path)
	if err != nil {
		return nil, fmt.Errorf("read checkpoint: %w", err)
	}
	if err := sonnet.Unmarshal(data, &out); err != nil {
		return nil, fmt.Errorf("parse checkpoint: %w", err)
	}
	return out, nil
}

func (f *FileState) LoadState(_ context.Context, name string) (uint64, bool, error) {
	if !f.enabled {
		return 0, false, nil
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	all, err := f.read()
	if err != nil {
		return 0, false, err
	}
	cp, ok := all[name]
	return cp.LastProcessedBlock, ok, nil
}

// SaveState rewrites the file through a rename so a crash never leaves it
// half written.
func (f *FileState) SaveState(_ context.Context, name string, block uint64) error {
	if !f.enabled {
		return nil
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	all, err := f.read()
	if err != nil {
		return err
	}
	all[name] = Checkpoint{
		LastProcessedBlock: block,
		UpdatedAt:          time.Now().UTC().Format(time.RFC3339Nano),
	}

	if dir := filepath.Dir(f.path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create checkpoint dir: %w", err)
		}
	}
	data, err := sonnet.Marshal(all)
	if err != nil {
		return fmt.Errorf("marshal checkpoint: %w", err)
	}
	tmpPath := f.path + ".tmp"
	if err := os.WriteFile(tmpPath, data, 0o644); err != nil {
		return fmt.Errorf("write checkpoint tmp: %w", err)
	}
	if err := os.Rename(tmpPath, f.path); err != nil {
		return fmt.Errorf("rename checkpoint: %w", err)
	}
	return nil
}
