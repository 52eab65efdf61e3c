// Package file appends history events to a JSON lines file.
package file

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/loykin/warden/internal/history"
)

// Sink writes one JSON object per line. Each event is appended with a
// single write so concurrent processes sharing the file do not interleave.
type Sink struct {
	mu   sync.Mutex
	path string
}

// New accepts "file:///var/log/warden/history.jsonl" or a bare path.
func New(dsn string) (*Sink, error) {
	path := strings.TrimSpace(dsn)
	if strings.HasPrefix(strings.ToLower(path), "file://") {
		path = path[len("file://"):]
	}
	if path == "" {
		return nil, errors.New("empty history file path")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create history dir: %w", err)
	}
	return &Sink{path: path}, nil
}

func (s *Sink) Path() string { return s.path }

func (s *Sink) Send(_ context.Context, e history.Event) error {
	line, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}
	line = append(line, '\n')

	s.mu.Lock()
	defer s.mu.Unlock()
	// #nosec G304
	f, err := os.OpenFile(s.path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return fmt.Errorf("open history file: %w", err)
	}
	defer func() { _ = f.Close() }()
	if _, err := f.Write(line); err != nil {
		return fmt.Errorf("write history file: %w", err)
	}
	return nil
}
