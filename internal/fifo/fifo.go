// Package fifo frames a run's suggestion stream over a named pipe.
// The consumer rendezvouses by path and reads verbatim text chunks
// terminated by a sentinel line.
package fifo

import (
	"errors"
	"fmt"
	"os"
	"sync"
	"syscall"
	"time"

	"go.uber.org/zap"
)

const (
	// DefaultPath is the well-known rendezvous point.
	DefaultPath = "/tmp/cmdfix_fifo"

	// Sentinel is the reserved line marking end of stream. No frames
	// follow it.
	Sentinel = "EOF"

	openRetryInterval = 50 * time.Millisecond
)

// Options controls how the pipe is opened for a run.
type Options struct {
	Path string
	// NonBlocking opens the pipe with O_NONBLOCK so a missing consumer
	// cannot stall the run indefinitely; the open is retried until
	// OpenTimeout expires.
	NonBlocking bool
	OpenTimeout time.Duration
}

// Sink writes one run's suggestion stream. Not shared across runs.
type Sink struct {
	mu           sync.Mutex
	file         *os.File
	logger       *zap.Logger
	sentinelSent bool
}

// Ensure creates the named pipe if it does not exist.
func Ensure(path string) error {
	if _, err := os.Stat(path); err == nil {
		return nil
	} else if !os.IsNotExist(err) {
		return err
	}
	return syscall.Mkfifo(path, 0o600)
}

// Open creates the pipe if needed and opens it for writing.
func Open(opts Options, logger *zap.Logger) (*Sink, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if opts.Path == "" {
		opts.Path = DefaultPath
	}
	if err := Ensure(opts.Path); err != nil {
		return nil, fmt.Errorf("create fifo %s: %w", opts.Path, err)
	}

	if !opts.NonBlocking {
		// Blocks until a consumer opens the read end.
		file, err := os.OpenFile(opts.Path, os.O_WRONLY, 0)
		if err != nil {
			return nil, fmt.Errorf("open fifo %s: %w", opts.Path, err)
		}
		return &Sink{file: file, logger: logger}, nil
	}

	deadline := time.Now().Add(opts.OpenTimeout)
	for {
		file, err := os.OpenFile(opts.Path, os.O_WRONLY|syscall.O_NONBLOCK, 0)
		if err == nil {
			return &Sink{file: file, logger: logger}, nil
		}
		// ENXIO means no consumer has the read end open yet.
		if !errors.Is(err, syscall.ENXIO) {
			return nil, fmt.Errorf("open fifo %s: %w", opts.Path, err)
		}
		if opts.OpenTimeout <= 0 || time.Now().After(deadline) {
			return nil, fmt.Errorf("no consumer attached to %s: %w", opts.Path, err)
		}
		time.Sleep(openRetryInterval)
	}
}

// WriteChunk writes one text chunk verbatim. Chunks must all be
// written before Close emits the sentinel.
func (s *Sink) WriteChunk(text string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.sentinelSent || s.file == nil {
		return errors.New("stream already closed")
	}
	if _, err := s.file.WriteString(text); err != nil {
		s.logger.Warn("fifo write failed", zap.Error(err))
		return err
	}
	return nil
}

// Close emits the sentinel exactly once and releases the pipe. Safe to
// call on every exit path, including after errors.
func (s *Sink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.file == nil {
		return nil
	}
	var writeErr error
	if !s.sentinelSent {
		s.sentinelSent = true
		if _, err := s.file.WriteString("\n" + Sentinel + "\n"); err != nil {
			s.logger.Warn("fifo sentinel write failed", zap.Error(err))
			writeErr = err
		}
	}
	closeErr := s.file.Close()
	s.file = nil
	if writeErr != nil {
		return writeErr
	}
	return closeErr
}
