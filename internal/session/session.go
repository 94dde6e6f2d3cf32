// Package session owns the state of one cleaning session: the loaded
// dataset, the selected axes, the curve being drawn and the reasons used so
// far. It is not safe for concurrent use; callers serialise access.
package session

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/banshee-data/datacleaner/internal/config"
	"github.com/banshee-data/datacleaner/internal/containment"
	"github.com/banshee-data/datacleaner/internal/dataset"
	"github.com/banshee-data/datacleaner/internal/exclusion"
	"github.com/banshee-data/datacleaner/internal/geom"
	"github.com/banshee-data/datacleaner/internal/monitoring"
	"github.com/banshee-data/datacleaner/internal/render"
	"github.com/banshee-data/datacleaner/internal/timeutil"
)

var (
	ErrNoDataset     = errors.New("load a data file first")
	ErrNoReason      = errors.New("write a reason for exclusion")
	ErrInvalidReason = errors.New("reason must not contain tabs or line breaks")
	ErrNoTarget      = errors.New("select the x series, the y series or both to exclude")
)

// Result describes a successful exclusion.
type Result struct {
	Reason    string `json:"reason"`
	Inside    int    `json:"inside"`
	ExcludedX int    `json:"excluded_x"`
	ExcludedY int    `json:"excluded_y"`
	Message   string `json:"message"`
}

// Session is the mutable state behind the editor.
type Session struct {
	classifier   *containment.Classifier
	consolidator *exclusion.Consolidator
	separator    string

	ds       *dataset.Dataset
	source   string
	x, y     int
	excludeX bool
	excludeY bool
	editor   *containment.Editor
	reasons  []string
}

// New returns an empty session configured from cfg.
func New(cfg *config.CleanerConfig, clock timeutil.Clock) *Session {
	var opts []containment.Option
	if cfg.GetReferenceMode() == config.ReferenceLegacy {
		opts = append(opts, containment.WithFixedReference(containment.LegacyReference))
	}
	return &Session{
		classifier:   containment.NewClassifier(opts...),
		consolidator: exclusion.NewConsolidator(clock),
		separator:    cfg.GetNameSeparator(),
		excludeX:     cfg.GetExcludeX(),
		excludeY:     cfg.GetExcludeY(),
		editor:       containment.NewEditor(cfg.GetCloseThreshold()),
		y:            1,
	}
}

// Load replaces the dataset, selects the first two series and clears the
// curve. Reasons from a previous dataset are forgotten.
func (s *Session) Load(ds *dataset.Dataset, source string) {
	s.ds = ds
	s.source = source
	s.x, s.y = 0, 1
	if len(ds.Series) < 2 {
		s.y = 0
	}
	s.reasons = nil
	s.editor.Clear()
	monitoring.Logf("session loaded %s: %d rows, %d series", source, ds.Len(), len(ds.Series))
}

// Dataset returns the loaded dataset, or nil.
func (s *Session) Dataset() *dataset.Dataset { return s.ds }

// Source names where the dataset came from.
func (s *Session) Source() string { return s.source }

// Axes returns the selected x and y series positions.
func (s *Session) Axes() (x, y int) { return s.x, s.y }

// SetAxes selects the series plotted on each axis. The curve is cleared
// because its coordinates belong to the previous axes.
func (s *Session) SetAxes(x, y int) error {
	if s.ds == nil {
		return ErrNoDataset
	}
	n := len(s.ds.Series)
	if x < 0 || x >= n || y < 0 || y >= n {
		return fmt.Errorf("%w: axes (%d, %d) with %d series", dataset.ErrUnknownSeries, x, y, n)
	}
	if x != s.x || y != s.y {
		s.editor.Clear()
	}
	s.x, s.y = x, y
	return nil
}

// SetAxesByName selects axes by series name.
func (s *Session) SetAxesByName(xName, yName string) error {
	if s.ds == nil {
		return ErrNoDataset
	}
	x, err := s.ds.Lookup(xName)
	if err != nil {
		return err
	}
	y, err := s.ds.Lookup(yName)
	if err != nil {
		return err
	}
	return s.SetAxes(x, y)
}

// Targets reports which axes an exclusion applies to.
func (s *Session) Targets() (x, y bool) { return s.excludeX, s.excludeY }

// SetTargets chooses which axes an exclusion applies to.
func (s *Session) SetTargets(x, y bool) {
	s.excludeX, s.excludeY = x, y
}

// AddPoint places a curve vertex and reports whether the curve closed.
func (s *Session) AddPoint(p geom.Point) (bool, error) {
	return s.editor.Add(p)
}

// ClearCurve discards the curve.
func (s *Session) ClearCurve() { s.editor.Clear() }

// Curve returns a copy of the current curve.
func (s *Session) Curve() containment.Curve { return s.editor.Curve() }

// SetCurve replaces the curve, for batch use where vertices come from a file.
func (s *Session) SetCurve(c containment.Curve) {
	s.editor.Set(c)
}

// Reasons lists the distinct reasons used, in first-use order.
func (s *Session) Reasons() []string {
	return append([]string(nil), s.reasons...)
}

// Exclude marks the valid samples inside the curve as excluded for reason on
// the selected target axes, then clears the curve. Preconditions are checked
// in order and nothing changes when one fails.
func (s *Session) Exclude(reason string) (Result, error) {
	if s.ds == nil {
		return Result{}, ErrNoDataset
	}
	reason = strings.TrimSpace(reason)
	if reason == "" {
		return Result{}, ErrNoReason
	}
	if strings.ContainsAny(reason, "\t\r\n") {
		return Result{}, ErrInvalidReason
	}
	curve := s.editor.Curve()
	if err := curve.Validate(); err != nil {
		return Result{}, err
	}
	if !s.excludeX && !s.excludeY {
		return Result{}, ErrNoTarget
	}

	queries, err := s.ds.Queries(s.x, s.y)
	if err != nil {
		return Result{}, err
	}
	inside, err := s.classifier.Classify(curve, queries)
	if err != nil {
		return Result{}, err
	}

	res := Result{Reason: reason}
	for _, in := range inside {
		if in {
			res.Inside++
		}
	}
	if s.excludeX {
		if res.ExcludedX, err = s.ds.Apply(s.x, inside, reason); err != nil {
			return Result{}, err
		}
	}
	if s.excludeY && !(s.excludeX && s.y == s.x) {
		if res.ExcludedY, err = s.ds.Apply(s.y, inside, reason); err != nil {
			return Result{}, err
		}
	}

	if !contains(s.reasons, reason) {
		s.reasons = append(s.reasons, reason)
	}
	s.editor.Clear()
	res.Message = fmt.Sprintf("Data excluded by '%s' reason", reason)
	monitoring.Logf("excluded %d points (x=%d y=%d) for %q", res.Inside, res.ExcludedX, res.ExcludedY, reason)
	return res, nil
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}

// Records consolidates every excluded sample into time ranges widened by
// buffer on each side. The returned time stamps every record and is set even
// when nothing is excluded.
func (s *Session) Records(buffer time.Duration) ([]exclusion.Record, time.Time, error) {
	if s.ds == nil {
		return nil, time.Time{}, ErrNoDataset
	}
	events, err := s.ds.Events(s.separator)
	if err != nil {
		return nil, time.Time{}, err
	}
	now := s.consolidator.Now()
	records, err := exclusion.Consolidate(events, buffer, now)
	if err != nil {
		return nil, time.Time{}, err
	}
	return records, now, nil
}

// Scene returns what should be drawn for the selected axes.
func (s *Session) Scene(showExcluded bool) (render.Scene, error) {
	curve := s.editor.Curve()
	scene := render.Scene{Curve: curve.Points, Closed: curve.Closed, ShowExcluded: showExcluded}
	if s.ds == nil {
		scene.Title = "no data loaded"
		return scene, nil
	}
	valid, err := s.ds.ValidPoints(s.x, s.y)
	if err != nil {
		return render.Scene{}, err
	}
	excluded, err := s.ds.ExcludedPoints(s.x, s.y)
	if err != nil {
		return render.Scene{}, err
	}
	scene.Valid, scene.Excluded = valid, excluded
	scene.XLabel = s.ds.Series[s.x].Name
	scene.YLabel = s.ds.Series[s.y].Name
	scene.Title = fmt.Sprintf("%s vs %s", scene.YLabel, scene.XLabel)
	return scene, nil
}

// SeriesState summarises one series for clients.
type SeriesState struct {
	Name   string         `json:"name"`
	Counts dataset.Counts `json:"counts"`
}

// State is a serialisable snapshot of the session.
type State struct {
	Source   string            `json:"source"`
	Rows     int               `json:"rows"`
	Series   []SeriesState     `json:"series"`
	X        int               `json:"x"`
	Y        int               `json:"y"`
	ExcludeX bool              `json:"exclude_x"`
	ExcludeY bool              `json:"exclude_y"`
	Curve    containment.Curve `json:"curve"`
	Reasons  []string          `json:"reasons"`

	// CloseThreshold is the distance within which a new point closes the curve.
	CloseThreshold float64 `json:"close_threshold"`
}

// State snapshots the session.
func (s *Session) State() State {
	st := State{
		Source:   s.source,
		X:        s.x,
		Y:        s.y,
		ExcludeX: s.excludeX,
		ExcludeY: s.excludeY,
		Curve:    s.editor.Curve(),
		Reasons:  s.Reasons(),

		CloseThreshold: s.editor.Threshold(),
	}
	if s.ds != nil {
		st.Rows = s.ds.Len()
		for _, ser := range s.ds.Series {
			st.Series = append(st.Series, SeriesState{Name: ser.Name, Counts: ser.Counts()})
		}
	}
	return st
}

// Loader returns a dataset loader using the sentinel, layout and time zone
// from cfg.
func Loader(cfg *config.CleanerConfig) dataset.Loader {
	return dataset.Loader{
		MissingValue:    cfg.GetMissingValue(),
		TimestampLayout: cfg.GetTimestampLayout(),
		Location:        cfg.GetLocation(),
	}
}
