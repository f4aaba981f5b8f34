// Package sink writes formatted records, one per line.
package sink

import (
	"fmt"
	"io"
	"os"
	"sync"

	"gopkg.in/natefinch/lumberjack.v2"
)

// Options configures a file sink. Path "" or "-" selects stdout.
type Options struct {
	Path       string
	MaxSizeMB  int
	MaxBackups int
	MaxAgeDays int
	Compress   bool
}

// Writer serializes concurrent record writes so lines never interleave.
type Writer struct {
	mu     sync.Mutex
	w      io.Writer
	closer io.Closer
	lines  uint64
}

// Open returns a Writer for opts.
func Open(opts Options) (*Writer, error) {
	if opts.Path == "" || opts.Path == "-" {
		return New(os.Stdout), nil
	}

	// Fail early on an unwritable destination instead of on the first record
	f, err := os.OpenFile(opts.Path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0640)
	if err != nil {
		return nil, fmt.Errorf("failed to open output file: %w", err)
	}
	_ = f.Close()

	lj := &lumberjack.Logger{
		Filename:   opts.Path,
		MaxSize:    opts.MaxSizeMB,
		MaxBackups: opts.MaxBackups,
		MaxAge:     opts.MaxAgeDays,
		Compress:   opts.Compress,
	}
	return &Writer{w: lj, closer: lj}, nil
}

// New wraps w. Close does not close w.
func New(w io.Writer) *Writer {
	return &Writer{w: w}
}

// WriteRecord writes record followed by a newline.
func (s *Writer) WriteRecord(record string) error {
	buf := make([]byte, 0, len(record)+1)
	buf = append(buf, record...)
	buf = append(buf, '\n')

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, err := s.w.Write(buf); err != nil {
		return fmt.Errorf("failed to write record: %w", err)
	}
	s.lines++
	return nil
}

// Lines returns the number of records written.
func (s *Writer) Lines() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lines
}

// Close closes the underlying file, if any.
func (s *Writer) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closer == nil {
		return nil
	}
	return s.closer.Close()
}
