package file

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zstd"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hejijunhao/logwhisper/internal/connector"
	"github.com/hejijunhao/logwhisper/internal/model"
)

const sample = "2026-01-03T14:00:01Z ERROR api timeout after 5000ms\n\n2026-01-03T14:00:02Z INFO api ok\r\n"

func writeFile(t *testing.T, name string, data []byte) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, data, 0o644))
	return path
}

func rawLines(logs []model.RawLog) []string {
	var out []string
	for _, l := range logs {
		out = append(out, l.Raw)
	}
	return out
}

func TestRegistered(t *testing.T) {
	ctor, err := connector.Get("file")
	require.NoError(t, err)
	assert.IsType(t, &Connector{}, ctor())
}

func TestQueryPlain(t *testing.T) {
	path := writeFile(t, "app.log", []byte(sample))

	logs, err := New().Query(context.Background(), connector.ConnectorConfig{Path: path}, connector.QueryParams{})
	require.NoError(t, err)
	assert.Equal(t, []string{
		"2026-01-03T14:00:01Z ERROR api timeout after 5000ms",
		"2026-01-03T14:00:02Z INFO api ok",
	}, rawLines(logs))
	assert.Equal(t, "file", logs[0].Source)
	assert.Equal(t, path, logs[1].Metadata["path"])
	assert.Equal(t, 3, logs[1].Metadata["line"])
}

func TestQueryLimit(t *testing.T) {
	path := writeFile(t, "app.log", []byte(sample))
	logs, err := New().Query(context.Background(), connector.ConnectorConfig{Path: path}, connector.QueryParams{Limit: 1})
	require.NoError(t, err)
	assert.Len(t, logs, 1)
}

func TestQueryGzip(t *testing.T) {
	var buf bytes.Buffer
	zw := gzip.NewWriter(&buf)
	_, err := zw.Write([]byte(sample))
	require.NoError(t, err)
	require.NoError(t, zw.Close())
	path := writeFile(t, "app.log.gz", buf.Bytes())

	logs, err := New().Query(context.Background(), connector.ConnectorConfig{Path: path}, connector.QueryParams{})
	require.NoError(t, err)
	assert.Len(t, logs, 2)
}

func TestQueryZstd(t *testing.T) {
	enc, err := zstd.NewWriter(nil)
	require.NoError(t, err)
	data := enc.EncodeAll([]byte(sample), nil)
	require.NoError(t, enc.Close())
	path := writeFile(t, "app.log.zst", data)

	logs, err := New().Query(context.Background(), connector.ConnectorConfig{Path: path}, connector.QueryParams{})
	require.NoError(t, err)
	assert.Equal(t, "2026-01-03T14:00:02Z INFO api ok", logs[1].Raw)
}

func TestQueryMissingFile(t *testing.T) {
	_, err := New().Query(context.Background(), connector.ConnectorConfig{Path: filepath.Join(t.TempDir(), "nope.log")}, connector.QueryParams{})
	require.Error(t, err)

	_, err = New().Query(context.Background(), connector.ConnectorConfig{}, connector.QueryParams{})
	require.Error(t, err)
}

func TestStreamRejectsCompressed(t *testing.T) {
	_, err := New().Stream(context.Background(), connector.ConnectorConfig{Path: "app.log.gz"})
	require.Error(t, err)
}

func startStream(t *testing.T, path string, fromStart bool) (<-chan model.RawLog, context.CancelFunc) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	ch, err := New().Stream(ctx, connector.ConnectorConfig{
		Path:      path,
		FromStart: fromStart,
		Extra:     map[string]string{"poll_interval": "20ms"},
	})
	require.NoError(t, err)
	t.Cleanup(func() {
		cancel()
		for range ch {
		}
	})
	return ch, cancel
}

func next(t *testing.T, ch <-chan model.RawLog) string {
	t.Helper()
	select {
	case raw, ok := <-ch:
		if !ok {
			t.Fatal("stream closed early")
		}
		return raw.Raw
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for line")
	}
	return ""
}

func appendTo(t *testing.T, path, data string) {
	t.Helper()
	f, err := os.OpenFile(path, os.O_APPEND|os.O_WRONLY, 0o644)
	require.NoError(t, err)
	_, err = f.WriteString(data)
	require.NoError(t, err)
	require.NoError(t, f.Close())
}

func TestStreamFollowsAppends(t *testing.T) {
	path := writeFile(t, "app.log", []byte("old line\n"))
	ch, _ := startStream(t, path, false)

	appendTo(t, path, "first\n")
	assert.Equal(t, "first", next(t, ch))

	appendTo(t, path, "part")
	appendTo(t, path, "ial\n")
	assert.Equal(t, "partial", next(t, ch))
}

func TestStreamFromStart(t *testing.T) {
	path := writeFile(t, "app.log", []byte("one\ntwo\n"))
	ch, _ := startStream(t, path, true)

	assert.Equal(t, "one", next(t, ch))
	assert.Equal(t, "two", next(t, ch))
}

func TestStreamHandlesTruncation(t *testing.T) {
	path := writeFile(t, "app.log", []byte("a fairly long first line\n"))
	ch, _ := startStream(t, path, true)
	assert.Equal(t, "a fairly long first line", next(t, ch))

	require.NoError(t, os.WriteFile(path, []byte("short\n"), 0o644))
	assert.Equal(t, "short", next(t, ch))
}

func TestStreamHandlesRotation(t *testing.T) {
	path := writeFile(t, "app.log", []byte("before\n"))
	ch, _ := startStream(t, path, true)
	assert.Equal(t, "before", next(t, ch))

	require.NoError(t, os.Rename(path, path+".1"))
	require.NoError(t, os.WriteFile(path, []byte("after\n"), 0o644))
	assert.Equal(t, "after", next(t, ch))
}

func TestStreamClosesOnCancel(t *testing.T) {
	path := writeFile(t, "app.log", nil)
	ch, cancel := startStream(t, path, false)
	cancel()

	select {
	case _, ok := <-ch:
		assert.False(t, ok)
	case <-time.After(5 * time.Second):
		t.Fatal("stream not closed after cancel")
	}
}
