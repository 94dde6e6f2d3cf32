// Package export writes consolidated exclusion records to files and to the
// run database.
package export

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/klauspost/compress/gzip"

	"github.com/banshee-data/datacleaner/internal/db"
	"github.com/banshee-data/datacleaner/internal/exclusion"
	"github.com/banshee-data/datacleaner/internal/monitoring"
)

// TimeLayout formats start, end and generation times in TSV output.
const TimeLayout = "2006-01-02 15:04:05"

// Run is one export: every record shares the same generation time.
type Run struct {
	ID        uuid.UUID
	Source    string
	Buffer    time.Duration
	Generated time.Time
	Records   []exclusion.Record
}

// NewRun wraps records generated at the given time in a Run with a fresh ID.
func NewRun(source string, buffer time.Duration, generated time.Time, records []exclusion.Record) Run {
	return Run{ID: uuid.New(), Source: source, Buffer: buffer, Generated: generated, Records: records}
}

// Sink receives finished runs.
type Sink interface {
	Write(ctx context.Context, run Run) error
}

// WriteTSV writes one line per record:
// mast, sensor, reason, start, end, generated.
func WriteTSV(w io.Writer, records []exclusion.Record) error {
	bw := bufio.NewWriter(w)
	for _, r := range records {
		if _, err := fmt.Fprintf(bw, "%s\t%s\t%s\t%s\t%s\t%s\n",
			r.Key.Mast, r.Key.Sensor, r.Key.Reason,
			r.Start.Format(TimeLayout), r.End.Format(TimeLayout), r.Generated.Format(TimeLayout),
		); err != nil {
			return err
		}
	}
	return bw.Flush()
}

// TSV writes runs to an io.Writer.
type TSV struct {
	W io.Writer
}

func (s TSV) Write(_ context.Context, run Run) error {
	return WriteTSV(s.W, run.Records)
}

// File writes each run to Path, replacing any previous file atomically. A
// ".gz" suffix compresses the output.
type File struct {
	Path string
}

func (s File) Write(_ context.Context, run Run) error {
	return WriteFile(s.Path, run.Records)
}

// WriteFile writes records as TSV to path through a temporary file in the
// same directory, so a failed export never leaves a partial file behind.
func WriteFile(path string, records []exclusion.Record) (err error) {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("failed to create output directory: %w", err)
	}

	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".*")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	defer func() {
		if err != nil {
			tmp.Close()
			os.Remove(tmp.Name())
		}
	}()

	if err = tmp.Chmod(0o644); err != nil {
		return fmt.Errorf("failed to set export permissions: %w", err)
	}

	var w io.Writer = tmp
	var gz *gzip.Writer
	if strings.HasSuffix(path, ".gz") {
		gz = gzip.NewWriter(tmp)
		w = gz
	}
	if err = WriteTSV(w, records); err != nil {
		return fmt.Errorf("failed to write records: %w", err)
	}
	if gz != nil {
		if err = gz.Close(); err != nil {
			return fmt.Errorf("failed to finish gzip stream: %w", err)
		}
	}
	if err = tmp.Close(); err != nil {
		return fmt.Errorf("failed to close temp file: %w", err)
	}
	if err = os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("failed to move export into place: %w", err)
	}
	monitoring.Logf("wrote %d exclusion records to %s", len(records), path)
	return nil
}

// DB stores runs in the run database.
type DB struct {
	Store *db.DB
}

func (s DB) Write(ctx context.Context, run Run) error {
	rows := make([]db.RecordRow, len(run.Records))
	for i, r := range run.Records {
		rows[i] = db.RecordRow{
			Mast:   r.Key.Mast,
			Sensor: r.Key.Sensor,
			Reason: r.Key.Reason,
			Start:  r.Start,
			End:    r.End,
		}
	}
	err := s.Store.SaveRun(ctx, db.RunRow{
		RunID:         run.ID.String(),
		Source:        run.Source,
		BufferSeconds: int64(run.Buffer / time.Second),
		Generated:     run.Generated,
	}, rows)
	if err != nil {
		return err
	}
	monitoring.Logf("stored run %s with %d records", run.ID, len(rows))
	return nil
}

// Multi writes to every sink in order and stops at the first error.
type Multi []Sink

func (m Multi) Write(ctx context.Context, run Run) error {
	for _, s := range m {
		if err := s.Write(ctx, run); err != nil {
			return err
		}
	}
	return nil
}
