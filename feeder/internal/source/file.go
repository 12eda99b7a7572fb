package source

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"sync"

	"github.com/txnroute/txnroute/pkg/types"
)

// maxReadPerPoll bounds the bytes consumed by one Poll; the rest is read on
// the next one.
const maxReadPerPoll = 8 << 20

// File tails a JSON-lines file.
type File struct {
	id   string
	path string

	mu     sync.Mutex
	offset int64 // start of the first unconsumed line
}

// NewFile returns a File source reading path from the beginning.
func NewFile(id, path string) *File {
	return &File{id: id, path: path}
}

// ID returns the source identifier.
func (f *File) ID() string { return f.id }

// Offset returns the byte offset the next Poll will start from.
func (f *File) Offset() int64 {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.offset
}

// Poll returns the complete lines appended since the previous call.
// A missing file yields no records and no error.
func (f *File) Poll(ctx context.Context) ([]types.Record, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	fh, err := os.Open(f.path)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("source %q: open: %w", f.id, err)
	}
	defer fh.Close()

	info, err := fh.Stat()
	if err != nil {
		return nil, fmt.Errorf("source %q: stat: %w", f.id, err)
	}
	if info.Size() < f.offset {
		slog.Warn("source: file shrank, reading from start",
			"source", f.id, "path", f.path, "offset", f.offset, "size", info.Size())
		f.offset = 0
	}
	if info.Size() == f.offset {
		return nil, nil
	}

	if _, err := fh.Seek(f.offset, io.SeekStart); err != nil {
		return nil, fmt.Errorf("source %q: seek: %w", f.id, err)
	}
	data, err := io.ReadAll(io.LimitReader(fh, maxReadPerPoll))
	if err != nil {
		return nil, fmt.Errorf("source %q: read: %w", f.id, err)
	}

	// Only complete lines are consumed.
	end := bytes.LastIndexByte(data, '\n')
	if end < 0 {
		if len(data) == maxReadPerPoll {
			slog.Error("source: line exceeds read limit, skipping",
				"source", f.id, "offset", f.offset, "limit", maxReadPerPoll)
			f.offset += int64(len(data))
		}
		return nil, nil
	}
	data = data[:end+1]

	var out []types.Record
	lineStart := f.offset
	for len(data) > 0 {
		if err := ctx.Err(); err != nil {
			return out, err
		}
		i := bytes.IndexByte(data, '\n')
		line := bytes.TrimSpace(data[:i])
		data = data[i+1:]
		pos := lineStart
		lineStart += int64(i + 1)
		f.offset = lineStart

		if len(line) == 0 {
			continue
		}
		rec, err := decodeRecord(line)
		if err != nil {
			slog.Warn("source: skipping malformed line",
				"source", f.id, "offset", pos, "err", err)
			continue
		}
		out = append(out, rec)
	}
	return out, nil
}
