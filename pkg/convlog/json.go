package convlog

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/teslashibe/go-companion/pkg/voice"
)

// JSONStore appends messages to a JSON Lines file.
type JSONStore struct {
	FilePath string

	mu sync.Mutex
}

// NewJSONStore creates a new JSON Lines file store.
func NewJSONStore(path string) *JSONStore {
	return &JSONStore{FilePath: path}
}

// Append writes msg as one line.
func (s *JSONStore) Append(ctx context.Context, msg voice.Message) error {
	if s.FilePath == "" {
		return nil
	}

	line, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("marshal message: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	dir := filepath.Dir(s.FilePath)
	if dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("create directory: %w", err)
		}
	}

	f, err := os.OpenFile(s.FilePath, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0644)
	if err != nil {
		return fmt.Errorf("open file: %w", err)
	}
	defer f.Close()

	if _, err := f.Write(append(line, '\n')); err != nil {
		return fmt.Errorf("write file: %w", err)
	}
	return nil
}

// Recent reads the file and returns the newest n messages.
// Lines that fail to parse are skipped.
func (s *JSONStore) Recent(ctx context.Context, n int) ([]voice.Message, error) {
	if s.FilePath == "" {
		return nil, nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	f, err := os.Open(s.FilePath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("read file: %w", err)
	}
	defer f.Close()

	var msgs []voice.Message
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)
	for scanner.Scan() {
		var msg voice.Message
		if json.Unmarshal(scanner.Bytes(), &msg) == nil {
			msgs = append(msgs, msg)
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("scan file: %w", err)
	}
	return tail(msgs, n), nil
}

// Close is a no-op for JSON files.
func (s *JSONStore) Close() error {
	return nil
}

var _ Store = (*JSONStore)(nil)
