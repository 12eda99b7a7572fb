package sink

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"sync"
)

// File appends one JSON object per routed record to a local file.
type File struct {
	mu  sync.Mutex
	f   *os.File
	enc *json.Encoder
}

// OpenFile opens path for appending, creating it if needed.
func OpenFile(path string) (*File, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, fmt.Errorf("file: open %q: %w", path, err)
	}
	return &File{f: f, enc: json.NewEncoder(f)}, nil
}

func (s *File) Deliver(_ context.Context, d Delivery) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.enc.Encode(d.payload()); err != nil {
		return fmt.Errorf("file: write %s: %w", d.Record.ID(), err)
	}
	return nil
}

func (s *File) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.f.Close()
}
