package txlog

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"
)

// CSVSink appends entries to a per-day CSV file in Dir. The day is taken from
// the clock at write time, so a batch straddling midnight lands in the new day.
type CSVSink struct {
	dir string
	now func() time.Time
}

// NewCSVSink creates a sink writing tx_log_YYYY-MM-DD.csv files into dir.
func NewCSVSink(dir string) *CSVSink {
	if dir == "" {
		dir = "."
	}
	return &CSVSink{dir: dir, now: time.Now}
}

// Name implements Sink.
func (s *CSVSink) Name() string { return "csv" }

// Path returns the file the sink would write to at t.
func (s *CSVSink) Path(t time.Time) string {
	return filepath.Join(s.dir, "tx_log_"+t.UTC().Format(time.DateOnly)+".csv")
}

// Write appends entries, creating the file with a header row if needed.
func (s *CSVSink) Write(entries []Entry) error {
	if len(entries) == 0 {
		return nil
	}
	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return fmt.Errorf("create log dir: %w", err)
	}

	path := s.Path(s.now())
	writeHeader := false
	if _, err := os.Stat(path); errors.Is(err, fs.ErrNotExist) {
		writeHeader = true
	} else if err != nil {
		return fmt.Errorf("stat %s: %w", path, err)
	}

	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return fmt.Errorf("open %s: %w", path, err)
	}

	if err := writeRows(f, writeHeader, entries); err != nil {
		f.Close()
		return fmt.Errorf("write %s: %w", path, err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("close %s: %w", path, err)
	}
	return nil
}

func writeRows(f *os.File, header bool, entries []Entry) error {
	w := csv.NewWriter(f)
	if header {
		if err := w.Write(Header); err != nil {
			return err
		}
	}
	for _, e := range entries {
		if err := w.Write(e.Row()); err != nil {
			return err
		}
	}
	w.Flush()
	return w.Error()
}
