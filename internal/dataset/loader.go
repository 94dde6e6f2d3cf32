package dataset

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/banshee-data/datacleaner/internal/monitoring"
)

// Defaults matching the files produced by the logger exports.
const (
	DefaultMissingValue    = 99999.0
	DefaultTimestampLayout = "2006-01-02 15:04"
)

// Loader reads tab-separated files whose first row names the columns and
// whose first column is the timestamp index.
type Loader struct {
	// MissingValue marks a cell as missing in addition to NaN and empty cells.
	MissingValue float64
	// TimestampLayout parses the index column.
	TimestampLayout string
	// Location is applied to parsed timestamps. Nil means UTC.
	Location *time.Location
}

// NewLoader returns a Loader with the default sentinel and layout.
func NewLoader() Loader {
	return Loader{MissingValue: DefaultMissingValue, TimestampLayout: DefaultTimestampLayout}
}

// LoadFile opens path and reads it with Load.
func (l Loader) LoadFile(path string) (*Dataset, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open data file: %w", err)
	}
	defer f.Close()
	return l.Load(f)
}

// Load parses a whole file. Line numbers in errors are 1-based and count the
// header.
func (l Loader) Load(r io.Reader) (*Dataset, error) {
	cr := csv.NewReader(r)
	cr.Comma = '\t'
	cr.LazyQuotes = true
	cr.ReuseRecord = false

	header, err := cr.Read()
	if errors.Is(err, io.EOF) {
		return nil, errors.New("empty file")
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read header: %w", err)
	}
	if len(header) < 2 {
		return nil, fmt.Errorf("header needs an index column and at least one series, got %d columns", len(header))
	}

	series := make([]*Series, len(header)-1)
	for i, name := range header[1:] {
		series[i] = &Series{Name: strings.TrimSpace(name)}
	}

	layout := l.TimestampLayout
	if layout == "" {
		layout = DefaultTimestampLayout
	}
	loc := l.Location
	if loc == nil {
		loc = time.UTC
	}

	var (
		raw        []string
		timestamps []time.Time
		timeErr    error
	)
	for {
		record, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			var perr *csv.ParseError
			if errors.As(err, &perr) {
				return nil, fmt.Errorf("line %d: %w", perr.Line, perr.Err)
			}
			return nil, err
		}
		line, _ := cr.FieldPos(0)

		idx := strings.TrimSpace(record[0])
		raw = append(raw, idx)
		if timeErr == nil {
			ts, err := time.ParseInLocation(layout, idx, loc)
			if err != nil {
				timeErr = fmt.Errorf("%w: line %d: index value %q does not match %q: %v", ErrNoTimestamps, line, idx, layout, err)
			} else {
				timestamps = append(timestamps, ts)
			}
		}

		for i, cell := range record[1:] {
			smp, err := l.parseCell(cell)
			if err != nil {
				return nil, fmt.Errorf("line %d: invalid numeric value %q in column %q", line, cell, series[i].Name)
			}
			series[i].Samples = append(series[i].Samples, smp)
		}
	}

	if timeErr != nil {
		monitoring.Warnf("loaded %d rows without timestamps: %v", len(raw), timeErr)
		timestamps = nil
	}
	ds, err := New(strings.TrimSpace(header[0]), raw, timestamps, series)
	if err != nil {
		return nil, err
	}
	if timeErr != nil {
		ds.timeErr = timeErr
	}
	monitoring.Logf("loaded %d rows, %d series", ds.Len(), len(series))
	return ds, nil
}

func (l Loader) parseCell(cell string) (Sample, error) {
	cell = strings.TrimSpace(cell)
	if cell == "" {
		return Missing(), nil
	}
	x, err := strconv.ParseFloat(cell, 64)
	if err != nil {
		return Sample{}, err
	}
	if math.IsNaN(x) || math.IsInf(x, 0) || x == l.MissingValue {
		return Missing(), nil
	}
	return Valid(x), nil
}
