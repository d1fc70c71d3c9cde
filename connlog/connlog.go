// Package connlog writes the connection log: an append-only text file with one line per
// published status change of a linkwatch engine.
//
// Each line holds tab-separated fields: timestamp (RFC 3339, milliseconds), endpoint kind,
// address, alias, status and the layer that triggered the change. Empty fields are written
// as "-". The file is rotated by lumberjack.
package connlog

import (
	"io"
	"strings"
	"sync"
	"time"

	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/arloliu/go-linkwatch/linkwatch"
)

// TimeLayout is the layout of the timestamp field.
const TimeLayout = "2006-01-02T15:04:05.000Z07:00"

// Options configures the rotation of a file backed Writer.
type Options struct {
	// Filename is the log file path.
	Filename string
	// MaxSizeMB is the size in megabytes at which the file is rotated. 0 selects lumberjack's 100MB.
	MaxSizeMB int
	// MaxBackups is the number of rotated files to keep. 0 keeps all.
	MaxBackups int
	// MaxAgeDays is the number of days to keep rotated files. 0 keeps them regardless of age.
	MaxAgeDays int
	// Compress gzips rotated files.
	Compress bool
	// LocalTime writes timestamps in local time instead of UTC.
	LocalTime bool
}

// Writer is a linkwatch.ConnLog. Writes are serialized and each record is a single Write call.
type Writer struct {
	mu        sync.Mutex
	out       io.Writer
	buf       []byte
	localTime bool
}

var _ linkwatch.ConnLog = (*Writer)(nil)

// New creates a Writer appending to a lumberjack rotated file.
func New(opts Options) *Writer {
	return &Writer{
		out: &lumberjack.Logger{
			Filename:   opts.Filename,
			MaxSize:    opts.MaxSizeMB,
			MaxBackups: opts.MaxBackups,
			MaxAge:     opts.MaxAgeDays,
			Compress:   opts.Compress,
			LocalTime:  opts.LocalTime,
		},
		localTime: opts.LocalTime,
	}
}

// NewWriter creates a Writer on w, with UTC timestamps.
func NewWriter(w io.Writer) *Writer {
	return &Writer{out: w}
}

// Record appends one line for rec.
func (w *Writer) Record(rec linkwatch.Record) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	ts := rec.Time
	if ts.IsZero() {
		ts = time.Now()
	}
	if !w.localTime {
		ts = ts.UTC()
	}

	w.buf = AppendRecord(w.buf[:0], ts, rec)
	_, err := w.out.Write(w.buf)

	return err
}

// Close closes the underlying writer if it is an io.Closer.
func (w *Writer) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if c, ok := w.out.(io.Closer); ok {
		return c.Close()
	}

	return nil
}

// AppendRecord appends the line of rec, stamped with ts, to buf.
func AppendRecord(buf []byte, ts time.Time, rec linkwatch.Record) []byte {
	buf = ts.AppendFormat(buf, TimeLayout)
	buf = appendField(buf, rec.Kind.String())
	buf = appendField(buf, rec.Address)
	buf = appendField(buf, rec.Alias)
	buf = appendField(buf, rec.Status.String())
	buf = appendField(buf, rec.Layer.String())

	return append(buf, '\n')
}

var fieldReplacer = strings.NewReplacer("\t", " ", "\n", " ", "\r", " ")

func appendField(buf []byte, s string) []byte {
	buf = append(buf, '\t')
	if s == "" {
		return append(buf, '-')
	}

	return append(buf, fieldReplacer.Replace(s)...)
}
