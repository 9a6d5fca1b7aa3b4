package report

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/klauspost/compress/zstd"

	"github.com/roach88/parsecheck/internal/verdict"
)

// LogPrefix starts every batch log name, so logs sort ahead of build output.
const LogPrefix = "0_log_"

// timestampLayout keeps log names sortable and free of path separators.
const timestampLayout = "20060102T150405.000000000Z"

// LogName returns the batch log file name for a run started at startedAt.
func LogName(startedAt time.Time, compress bool) string {
	name := LogPrefix + startedAt.UTC().Format(timestampLayout) + ".csv"
	if compress {
		name += ".zst"
	}
	return name
}

// Writer appends one row per fixture to a fresh batch log.
type Writer struct {
	path string
	file *os.File
	zw   *zstd.Encoder
	csv  *csv.Writer
	rows int
}

// Open creates the batch log in dir. The file must not already exist: a
// second run never overwrites an earlier run's log.
func Open(dir string, startedAt time.Time, compress bool) (*Writer, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create report directory: %w", err)
	}
	path := filepath.Join(dir, LogName(startedAt, compress))

	f, err := os.OpenFile(path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, fmt.Errorf("create report: %w", err)
	}

	w := &Writer{path: path, file: f}
	var sink io.Writer = f
	if compress {
		zw, err := zstd.NewWriter(f)
		if err != nil {
			f.Close()
			os.Remove(path)
			return nil, fmt.Errorf("create zstd encoder: %w", err)
		}
		w.zw = zw
		sink = zw
	}
	w.csv = csv.NewWriter(sink)
	return w, nil
}

// Path returns the log file path.
func (w *Writer) Path() string {
	return w.path
}

// Rows returns the number of records appended so far.
func (w *Writer) Rows() int {
	return w.rows
}

// Append writes rec and flushes it, so an interrupted run still leaves
// every completed fixture on disk.
func (w *Writer) Append(rec verdict.Record) error {
	if err := w.csv.Write([]string{rec.Fixture, string(rec.Verdict)}); err != nil {
		return fmt.Errorf("write report row: %w", err)
	}
	w.csv.Flush()
	if err := w.csv.Error(); err != nil {
		return fmt.Errorf("flush report row: %w", err)
	}
	if w.zw != nil {
		if err := w.zw.Flush(); err != nil {
			return fmt.Errorf("flush compressed report: %w", err)
		}
	}
	w.rows++
	return nil
}

// Close finishes the log.
func (w *Writer) Close() error {
	var errs []error
	if w.zw != nil {
		errs = append(errs, w.zw.Close())
	}
	errs = append(errs, w.file.Close())
	return errors.Join(errs...)
}

// Row is one parsed log line.
type Row struct {
	Fixture string
	Verdict verdict.Verdict
}

// ReadLog parses a batch log, decompressing .zst logs transparently.
func ReadLog(path string) ([]Row, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open report: %w", err)
	}
	defer f.Close()

	var src io.Reader = f
	if strings.HasSuffix(path, ".zst") {
		zr, err := zstd.NewReader(f)
		if err != nil {
			return nil, fmt.Errorf("create zstd reader: %w", err)
		}
		defer zr.Close()
		src = zr
	}

	r := csv.NewReader(src)
	r.FieldsPerRecord = 2
	r.TrimLeadingSpace = true

	var rows []Row
	for {
		fields, err := r.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read report: %w", err)
		}
		v, err := verdict.Parse(fields[1])
		if err != nil {
			return nil, fmt.Errorf("read report: %w", err)
		}
		rows = append(rows, Row{Fixture: fields[0], Verdict: v})
	}
	return rows, nil
}
