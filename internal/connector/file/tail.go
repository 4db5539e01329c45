package file

import (
	"bytes"
	"context"
	"errors"
	"io"
	"io/fs"
	"os"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/hejijunhao/logwhisper/internal/connector"
	"github.com/hejijunhao/logwhisper/internal/model"
)

// tailer tracks the read position in a followed file. It is owned by a
// single stream goroutine.
type tailer struct {
	path    string
	log     *zap.Logger
	f       *os.File
	offset  int64
	partial []byte
	line    int
}

func (t *tailer) open(fromStart bool) error {
	f, err := os.Open(t.path)
	if err != nil {
		return err
	}
	var off int64
	if !fromStart {
		off, err = f.Seek(0, io.SeekEnd)
		if err != nil {
			f.Close()
			return err
		}
	}
	t.f, t.offset, t.partial, t.line = f, off, nil, 0
	return nil
}

func (t *tailer) close() {
	if t.f != nil {
		t.f.Close()
		t.f = nil
	}
}

// replaced reports whether the open descriptor no longer refers to the file
// at path.
func (t *tailer) replaced() bool {
	if t.f == nil {
		return false
	}
	open, err := t.f.Stat()
	if err != nil {
		return true
	}
	cur, err := os.Stat(t.path)
	if err != nil {
		return true
	}
	return !os.SameFile(open, cur)
}

// sync finishes the old file when it was rotated away, then reads whatever
// is new at path.
func (t *tailer) sync(ctx context.Context, ch chan<- model.RawLog) bool {
	if t.replaced() {
		if !t.drain(ctx, ch) {
			return false
		}
		t.close()
	}
	return t.drain(ctx, ch)
}

// drain emits every complete line appended since the last call. It returns
// false once ctx is done. A missing file is not an error; it is reopened from
// the start when it reappears.
func (t *tailer) drain(ctx context.Context, ch chan<- model.RawLog) bool {
	if t.f == nil {
		if err := t.open(true); err != nil {
			if !errors.Is(err, fs.ErrNotExist) {
				t.log.Warn("reopen failed", zap.Error(err))
			}
			return ctx.Err() == nil
		}
	}
	if fi, err := t.f.Stat(); err == nil && fi.Size() < t.offset {
		t.log.Info("file truncated, reading from start")
		if _, err := t.f.Seek(0, io.SeekStart); err != nil {
			t.log.Warn("seek failed", zap.Error(err))
			t.close()
			return ctx.Err() == nil
		}
		t.offset, t.partial = 0, nil
	}

	buf := make([]byte, 32*1024)
	for {
		n, err := t.f.Read(buf)
		if n > 0 {
			t.offset += int64(n)
			if !t.feed(ctx, buf[:n], ch) {
				return false
			}
		}
		if err != nil {
			if !errors.Is(err, io.EOF) {
				t.log.Warn("read failed", zap.Error(err))
			}
			return ctx.Err() == nil
		}
	}
}

// feed splits data into lines, holding back a trailing partial line until
// its newline arrives.
func (t *tailer) feed(ctx context.Context, data []byte, ch chan<- model.RawLog) bool {
	t.partial = append(t.partial, data...)
	for {
		i := bytes.IndexByte(t.partial, '\n')
		if i < 0 {
			break
		}
		line := strings.TrimRight(string(t.partial[:i]), "\r")
		t.partial = t.partial[i+1:]
		t.line++
		if strings.TrimSpace(line) == "" {
			continue
		}
		raw := model.RawLog{
			Timestamp: time.Now().UTC(),
			Source:    providerName,
			Raw:       line,
			Metadata:  map[string]any{"path": t.path, "line": t.line},
		}
		select {
		case ch <- raw:
		case <-ctx.Done():
			return false
		}
	}
	if len(t.partial) > connector.MaxLineBytes {
		t.log.Warn("dropping oversized partial line", zap.Int("bytes", len(t.partial)))
		t.partial = nil
	} else {
		t.partial = append([]byte(nil), t.partial...)
	}
	return true
}
