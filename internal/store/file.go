package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/wanderwoll/mockup-pipeline/pkg/logger"
)

var _ ResultStore = (*FileStore)(nil)

// FileStore keeps runs as JSON files under <dir>/runs and writes named result
// files directly under dir.
type FileStore struct {
	dir string
	log *logger.Logger
	now func() time.Time

	mu sync.Mutex
}

// NewFileStore creates dir if needed.
func NewFileStore(dir string, log *logger.Logger) (*FileStore, error) {
	if log == nil {
		log = logger.NewDefault("store")
	}
	if err := os.MkdirAll(filepath.Join(dir, "runs"), 0o755); err != nil {
		return nil, fmt.Errorf("create output dir: %w", err)
	}
	return &FileStore{dir: dir, log: log, now: time.Now}, nil
}

// Dir returns the output directory.
func (s *FileStore) Dir() string { return s.dir }

// WriteResult writes v as indented JSON to <dir>/<name> and returns the path.
func (s *FileStore) WriteResult(name string, v interface{}) (string, error) {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return "", fmt.Errorf("encode %s: %w", name, err)
	}
	path := filepath.Join(s.dir, name)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return "", fmt.Errorf("create %s: %w", filepath.Dir(name), err)
	}
	if err := writeFile(path, data); err != nil {
		return "", err
	}
	s.log.WithField("path", path).Info("results saved")
	return path, nil
}

func (s *FileStore) Record(_ context.Context, kind, subject string, success bool, payload interface{}) (Run, error) {
	data, err := encodePayload(payload)
	if err != nil {
		return Run{}, err
	}
	run := Run{
		ID:        uuid.NewString(),
		Kind:      kind,
		Subject:   subject,
		Success:   success,
		Payload:   data,
		CreatedAt: s.now().UTC(),
	}
	encoded, err := json.MarshalIndent(run, "", "  ")
	if err != nil {
		return Run{}, fmt.Errorf("encode run: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if err := writeFile(s.runPath(run.ID), encoded); err != nil {
		return Run{}, err
	}
	return run, nil
}

func (s *FileStore) Get(_ context.Context, id string) (Run, error) {
	if _, err := uuid.Parse(id); err != nil {
		return Run{}, ErrNotFound
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.read(s.runPath(id))
}

func (s *FileStore) List(_ context.Context, kind string, limit int) ([]Run, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	entries, err := os.ReadDir(filepath.Join(s.dir, "runs"))
	if err != nil {
		return nil, fmt.Errorf("list runs: %w", err)
	}
	runs := make([]Run, 0, len(entries))
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".json") {
			continue
		}
		run, err := s.read(filepath.Join(s.dir, "runs", e.Name()))
		if err != nil {
			s.log.WithError(err).WithField("file", e.Name()).Warn("skipping unreadable run")
			continue
		}
		if kind != "" && run.Kind != kind {
			continue
		}
		runs = append(runs, run)
	}
	sort.Slice(runs, func(i, j int) bool { return runs[i].CreatedAt.After(runs[j].CreatedAt) })
	if limit > 0 && len(runs) > limit {
		runs = runs[:limit]
	}
	return runs, nil
}

func (s *FileStore) runPath(id string) string {
	return filepath.Join(s.dir, "runs", id+".json")
}

func (s *FileStore) read(path string) (Run, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return Run{}, ErrNotFound
	}
	if err != nil {
		return Run{}, fmt.Errorf("read run: %w", err)
	}
	var run Run
	if err := json.Unmarshal(data, &run); err != nil {
		return Run{}, fmt.Errorf("decode run %s: %w", filepath.Base(path), err)
	}
	return run, nil
}

// writeFile writes through a temp file so readers never see partial JSON.
func writeFile(path string, data []byte) error {
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("write %s: %w", filepath.Base(path), err)
	}
	if err := os.Rename(tmp, path); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("write %s: %w", filepath.Base(path), err)
	}
	return nil
}
