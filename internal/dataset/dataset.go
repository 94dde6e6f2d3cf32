package dataset

import (
	"errors"
	"fmt"
	"time"

	"github.com/banshee-data/datacleaner/internal/containment"
	"github.com/banshee-data/datacleaner/internal/exclusion"
	"github.com/banshee-data/datacleaner/internal/geom"
)

var (
	ErrLengthMismatch = errors.New("length mismatch")
	ErrUnknownSeries  = errors.New("unknown series")
	ErrNoTimestamps   = errors.New("index is not a timestamp")
)

// Dataset is a set of equally long series sharing one timestamp index.
type Dataset struct {
	IndexName  string
	Raw        []string
	Timestamps []time.Time
	Series     []*Series

	// timeErr is set when the index could not be read as timestamps. Such a
	// dataset can still be plotted and edited but not exported.
	timeErr error
}

// New checks that every series matches the index length and returns the
// dataset. timestamps may be nil when the index is not time based.
func New(indexName string, raw []string, timestamps []time.Time, series []*Series) (*Dataset, error) {
	if timestamps != nil && len(timestamps) != len(raw) {
		return nil, fmt.Errorf("%w: %d timestamps for %d index values", ErrLengthMismatch, len(timestamps), len(raw))
	}
	for _, s := range series {
		if len(s.Samples) != len(raw) {
			return nil, fmt.Errorf("%w: series %q has %d samples, index has %d", ErrLengthMismatch, s.Name, len(s.Samples), len(raw))
		}
	}
	ds := &Dataset{IndexName: indexName, Raw: raw, Timestamps: timestamps, Series: series}
	if timestamps == nil {
		ds.timeErr = fmt.Errorf("index %q has no timestamps", indexName)
	}
	return ds, nil
}

// Len is the number of rows.
func (d *Dataset) Len() int { return len(d.Raw) }

// Names lists the series names in column order.
func (d *Dataset) Names() []string {
	names := make([]string, len(d.Series))
	for i, s := range d.Series {
		names[i] = s.Name
	}
	return names
}

// Lookup returns the column position of the named series.
func (d *Dataset) Lookup(name string) (int, error) {
	for i, s := range d.Series {
		if s.Name == name {
			return i, nil
		}
	}
	return -1, fmt.Errorf("%w %q", ErrUnknownSeries, name)
}

func (d *Dataset) series(i int) (*Series, error) {
	if i < 0 || i >= len(d.Series) {
		return nil, fmt.Errorf("%w: column %d out of range [0,%d)", ErrUnknownSeries, i, len(d.Series))
	}
	return d.Series[i], nil
}

// Queries pairs series x and y row by row. A row is present only when both
// samples are valid.
func (d *Dataset) Queries(x, y int) ([]containment.Query, error) {
	sx, err := d.series(x)
	if err != nil {
		return nil, err
	}
	sy, err := d.series(y)
	if err != nil {
		return nil, err
	}
	queries := make([]containment.Query, d.Len())
	for i := range queries {
		a, b := sx.Samples[i], sy.Samples[i]
		if a.IsValid() && b.IsValid() {
			queries[i] = containment.At(a.Value, b.Value)
		}
	}
	return queries, nil
}

// ValidPoints returns the rows where both x and y are valid.
func (d *Dataset) ValidPoints(x, y int) ([]geom.Point, error) {
	return d.points(x, y, KindValid)
}

// ExcludedPoints returns the rows where both x and y are excluded.
func (d *Dataset) ExcludedPoints(x, y int) ([]geom.Point, error) {
	return d.points(x, y, KindExcluded)
}

func (d *Dataset) points(x, y int, kind Kind) ([]geom.Point, error) {
	sx, err := d.series(x)
	if err != nil {
		return nil, err
	}
	sy, err := d.series(y)
	if err != nil {
		return nil, err
	}
	var pts []geom.Point
	for i := range sx.Samples {
		a, b := sx.Samples[i], sy.Samples[i]
		if a.Kind == kind && b.Kind == kind {
			pts = append(pts, geom.Pt(a.Value, b.Value))
		}
	}
	return pts, nil
}

// Apply excludes the valid samples of series axis wherever mask is true and
// returns how many changed. Missing and already excluded samples are left
// alone. Nothing changes if the arguments are invalid.
func (d *Dataset) Apply(axis int, mask []bool, reason string) (int, error) {
	s, err := d.series(axis)
	if err != nil {
		return 0, err
	}
	if len(mask) != len(s.Samples) {
		return 0, fmt.Errorf("%w: mask has %d entries, series %q has %d", ErrLengthMismatch, len(mask), s.Name, len(s.Samples))
	}
	changed := 0
	for i, inside := range mask {
		if !inside {
			continue
		}
		var ok bool
		if s.Samples[i], ok = s.Samples[i].Exclude(reason); ok {
			changed++
		}
	}
	return changed, nil
}

// Events lists one exclusion event per excluded sample, keyed by the mast and
// sensor parsed from the series name. Every series name is checked before any
// event is produced.
func (d *Dataset) Events(sep string) ([]exclusion.Event, error) {
	if d.timeErr != nil {
		return nil, d.timeErr
	}
	type ids struct{ mast, sensor string }
	parsed := make([]ids, len(d.Series))
	for i, s := range d.Series {
		if s.Counts().Excluded == 0 {
			continue
		}
		mast, sensor, err := SplitName(s.Name, sep)
		if err != nil {
			return nil, err
		}
		parsed[i] = ids{mast, sensor}
	}

	var events []exclusion.Event
	for i, s := range d.Series {
		for j, smp := range s.Samples {
			if !smp.IsExcluded() {
				continue
			}
			events = append(events, exclusion.Event{
				Key:  exclusion.GroupKey{Mast: parsed[i].mast, Sensor: parsed[i].sensor, Reason: smp.Reason},
				Time: d.Timestamps[j],
			})
		}
	}
	return events, nil
}
