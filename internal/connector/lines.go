package connector

import (
	"bufio"
	"context"
	"errors"
	"io"
	"strings"
	"time"

	"github.com/hejijunhao/logwhisper/internal/model"
)

// LineReader yields the non-blank lines of a stream. Lines longer than
// MaxLineBytes are discarded up to the next newline and counted in Dropped;
// reading continues after them.
type LineReader struct {
	r       *bufio.Reader
	n       int
	Dropped int
}

// NewLineReader wraps r.
func NewLineReader(r io.Reader) *LineReader {
	return &LineReader{r: bufio.NewReaderSize(r, 64*1024)}
}

// Next returns the next non-blank line with its trailing "\r" removed and its
// 1-based line number. It returns io.EOF once the input is exhausted.
func (lr *LineReader) Next() (string, int, error) {
	for {
		line, tooLong, err := lr.readLine()
		if err != nil {
			return "", 0, err
		}
		lr.n++
		if tooLong {
			lr.Dropped++
			continue
		}
		line = strings.TrimRight(line, "\r")
		if strings.TrimSpace(line) == "" {
			continue
		}
		return line, lr.n, nil
	}
}

func (lr *LineReader) readLine() (line string, tooLong bool, err error) {
	var buf []byte
	read := 0
	for {
		frag, err := lr.r.ReadSlice('\n')
		read += len(frag)
		switch {
		case tooLong:
		case len(buf)+len(frag) > MaxLineBytes+1:
			tooLong, buf = true, nil
		default:
			buf = append(buf, frag...)
		}
		switch {
		case err == nil:
			return strings.TrimSuffix(string(buf), "\n"), tooLong, nil
		case errors.Is(err, bufio.ErrBufferFull):
			continue
		case errors.Is(err, io.EOF):
			if read == 0 {
				return "", false, io.EOF
			}
			return string(buf), tooLong || len(buf) > MaxLineBytes, nil
		default:
			return "", false, err
		}
	}
}

// ReadLines reads r into raw logs tagged with source. Blank lines are skipped.
// meta is called per line to attach connector metadata and may be nil.
func ReadLines(ctx context.Context, r io.Reader, source string, limit int, meta func(n int) map[string]any) ([]model.RawLog, error) {
	return Collect(ctx, NewLineReader(r), source, limit, meta)
}

// Collect drains lr like ReadLines. lr.Dropped holds the number of oversized
// lines skipped afterwards.
func Collect(ctx context.Context, lr *LineReader, source string, limit int, meta func(n int) map[string]any) ([]model.RawLog, error) {
	var out []model.RawLog
	for {
		if err := ctx.Err(); err != nil {
			return out, err
		}
		line, n, err := lr.Next()
		if errors.Is(err, io.EOF) {
			return out, nil
		}
		if err != nil {
			return out, err
		}
		raw := model.RawLog{Timestamp: time.Now().UTC(), Source: source, Raw: line}
		if meta != nil {
			raw.Metadata = meta(n)
		}
		out = append(out, raw)
		if limit > 0 && len(out) >= limit {
			return out, nil
		}
	}
}
