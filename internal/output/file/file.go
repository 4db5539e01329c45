// Package file appends reports to a file as NDJSON, rotating it by size.
package file

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/hejijunhao/logwhisper/internal/engine/compactor"
	"github.com/hejijunhao/logwhisper/internal/model"
	"github.com/hejijunhao/logwhisper/internal/output"
)

const defaultBufSize = 64 * 1024 // 64KB

// Option configures a file Output.
type Option func(*Output)

// WithMaxSizeMB sets the size in megabytes at which the file is rotated.
// Default: 100.
func WithMaxSizeMB(mb int) Option {
	return func(o *Output) { o.lj.MaxSize = mb }
}

// WithMaxBackups caps the number of rotated files kept. 0 keeps all.
func WithMaxBackups(n int) Option {
	return func(o *Output) { o.lj.MaxBackups = n }
}

// WithCompress gzips rotated files.
func WithCompress(compress bool) Option {
	return func(o *Output) { o.lj.Compress = compress }
}

// WithBufSize sets the bufio.Writer buffer size. Default: 64KB.
func WithBufSize(bytes int) Option {
	return func(o *Output) { o.bufSize = bytes }
}

// Output writes NDJSON to a file with buffered I/O and size-based rotation.
type Output struct {
	mu        sync.Mutex
	w         *bufio.Writer
	lj        *lumberjack.Logger
	verbosity compactor.Verbosity
	bufSize   int
}

// New creates a file output that writes NDJSON to the given path. The parent
// directory must exist.
func New(path string, verbosity compactor.Verbosity, opts ...Option) (*Output, error) {
	if _, err := os.Stat(filepath.Dir(path)); err != nil {
		return nil, fmt.Errorf("file output: %w", err)
	}
	o := &Output{
		lj:        &lumberjack.Logger{Filename: path, MaxSize: 100},
		verbosity: verbosity,
		bufSize:   defaultBufSize,
	}
	for _, opt := range opts {
		opt(o)
	}
	o.w = bufio.NewWriterSize(o.lj, o.bufSize)
	return o, nil
}

// Write JSON-encodes the report and appends it as a line to the file.
func (o *Output) Write(_ context.Context, report model.Report) error {
	data, err := json.Marshal(output.FormatReport(report, o.verbosity))
	if err != nil {
		return fmt.Errorf("file output: marshal: %w", err)
	}
	data = append(data, '\n')

	o.mu.Lock()
	defer o.mu.Unlock()
	if _, err := o.w.Write(data); err != nil {
		return fmt.Errorf("file output: write: %w", err)
	}
	return nil
}

// Flush writes buffered reports through to the file.
func (o *Output) Flush() error {
	o.mu.Lock()
	defer o.mu.Unlock()
	if err := o.w.Flush(); err != nil {
		return fmt.Errorf("file output: flush: %w", err)
	}
	return nil
}

// Rotate flushes and starts a new file, keeping the old one as a backup.
func (o *Output) Rotate() error {
	o.mu.Lock()
	defer o.mu.Unlock()
	if err := o.w.Flush(); err != nil {
		return fmt.Errorf("file output: flush: %w", err)
	}
	if err := o.lj.Rotate(); err != nil {
		return fmt.Errorf("file output: rotate: %w", err)
	}
	return nil
}

// Close flushes the buffer and closes the file.
func (o *Output) Close() error {
	o.mu.Lock()
	defer o.mu.Unlock()
	if err := o.w.Flush(); err != nil {
		o.lj.Close()
		return fmt.Errorf("file output: flush: %w", err)
	}
	return o.lj.Close()
}
