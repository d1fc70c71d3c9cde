package connlog

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/arloliu/go-linkwatch/linkwatch"
)

func TestAppendRecord(t *testing.T) {
	require := require.New(t)

	ts := time.Date(2026, 10, 19, 8, 30, 15, 123_000_000, time.UTC)
	line := AppendRecord(nil, ts, linkwatch.Record{
		Kind:    linkwatch.StreamClient,
		Address: "10.0.0.5:502",
		Alias:   "press\t1",
		Status:  linkwatch.StateDisconnected,
		Layer:   linkwatch.LayerLogical,
	})

	require.Equal("2026-10-19T08:30:15.123Z\tStreamClient\t10.0.0.5:502\tpress 1\tDisconnected\tLogical\n", string(line))

	line = AppendRecord(nil, ts, linkwatch.Record{
		Kind:   linkwatch.SerialPort,
		Status: linkwatch.StateConnected,
	})
	require.Equal("2026-10-19T08:30:15.123Z\tSerialPort\t-\t-\tConnected\tTransport\n", string(line))
}

type chunkRecorder struct {
	mu     sync.Mutex
	chunks []string
}

func (r *chunkRecorder) Write(p []byte) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.chunks = append(r.chunks, string(p))

	return len(p), nil
}

func TestWriter_ConcurrentRecords(t *testing.T) {
	require := require.New(t)

	rec := &chunkRecorder{}
	w := NewWriter(rec)

	const writers, perWriter = 8, 50
	var wg sync.WaitGroup
	for i := range writers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for range perWriter {
				err := w.Record(linkwatch.Record{
					Time:    time.Now(),
					Kind:    linkwatch.DatagramClient,
					Address: "10.0.0.9:161",
					Alias:   strings.Repeat("x", i+1),
					Status:  linkwatch.StateConnected,
					Layer:   linkwatch.LayerTransport,
				})
				assert.NoError(t, err)
			}
		}()
	}
	wg.Wait()

	require.Len(rec.chunks, writers*perWriter)
	for _, chunk := range rec.chunks {
		require.True(strings.HasSuffix(chunk, "\n"))
		require.Equal(1, strings.Count(chunk, "\n"))
		require.Len(strings.Split(strings.TrimSuffix(chunk, "\n"), "\t"), 6)
	}
}

func TestWriter_File(t *testing.T) {
	require := require.New(t)

	path := filepath.Join(t.TempDir(), "connection.log")
	w := New(Options{Filename: path, MaxSizeMB: 1})

	require.NoError(w.Record(linkwatch.Record{
		Time:    time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC),
		Kind:    linkwatch.StreamListener,
		Address: ":5000",
		Status:  linkwatch.StateConnected,
	}))
	require.NoError(w.Record(linkwatch.Record{
		Kind:    linkwatch.StreamListener,
		Address: ":5000",
		Status:  linkwatch.StateDisconnected,
	}))
	require.NoError(w.Close())

	data, err := os.ReadFile(path)
	require.NoError(err)

	lines := strings.Split(strings.TrimSuffix(string(data), "\n"), "\n")
	require.Len(lines, 2)
	require.Equal("2026-01-02T03:04:05.000Z\tStreamListener\t:5000\t-\tConnected\tTransport", lines[0])
	require.True(strings.HasSuffix(lines[1], "\tStreamListener\t:5000\t-\tDisconnected\tTransport"))
}

func TestWriter_Buffer(t *testing.T) {
	var buf bytes.Buffer
	w := NewWriter(&buf)

	require.NoError(t, w.Record(linkwatch.Record{Kind: linkwatch.StreamClient}))
	require.NoError(t, w.Close())
	require.Contains(t, buf.String(), "\tStreamClient\t-\t-\tUnknown\tTransport\n")
}
