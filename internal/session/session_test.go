package session

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/banshee-data/datacleaner/internal/config"
	"github.com/banshee-data/datacleaner/internal/containment"
	"github.com/banshee-data/datacleaner/internal/dataset"
	"github.com/banshee-data/datacleaner/internal/exclusion"
	"github.com/banshee-data/datacleaner/internal/geom"
	"github.com/banshee-data/datacleaner/internal/timeutil"
)

// Rows 00:00 and 00:10 sit inside the unit box around (5, 5); 00:20 is
// outside; 00:30 has a missing y.
const sessionTSV = "Timestamp\tM1~WS80\tM1~WS60\tM2~T2\n" +
	"2024-01-01 00:00\t5\t5\t1\n" +
	"2024-01-01 00:10\t5.5\t5.2\t1\n" +
	"2024-01-01 00:20\t9\t9\t1\n" +
	"2024-01-01 00:30\t5\t99999\t1\n"

var gen = time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)

func newSession(t *testing.T) *Session {
	t.Helper()
	cfg := config.DefaultCleanerConfig()
	s := New(cfg, timeutil.NewMockClock(gen))
	ds, err := Loader(cfg).Load(strings.NewReader(sessionTSV))
	require.NoError(t, err)
	s.Load(ds, "mast.tsv")
	return s
}

func drawBox(t *testing.T, s *Session) {
	t.Helper()
	for _, p := range []geom.Point{geom.Pt(4, 4), geom.Pt(6, 4), geom.Pt(6, 6), geom.Pt(4, 6), geom.Pt(4.1, 4.1)} {
		_, err := s.AddPoint(p)
		require.NoError(t, err)
	}
	require.True(t, s.Curve().Closed)
}

func TestLoadSelectsFirstTwoSeries(t *testing.T) {
	s := newSession(t)
	x, y := s.Axes()
	assert.Equal(t, 0, x)
	assert.Equal(t, 1, y)
	assert.Equal(t, "mast.tsv", s.Source())
	assert.NotNil(t, s.Dataset())
}

func TestExclude(t *testing.T) {
	s := newSession(t)
	drawBox(t, s)

	res, err := s.Exclude("  icing ")
	require.NoError(t, err)
	assert.Equal(t, Result{Reason: "icing", Inside: 2, ExcludedX: 2, ExcludedY: 2, Message: "Data excluded by 'icing' reason"}, res)
	assert.Equal(t, []string{"icing"}, s.Reasons())
	assert.Empty(t, s.Curve().Points, "curve cleared after exclusion")

	ds := s.Dataset()
	assert.Equal(t, dataset.Excluded(5, "icing"), ds.Series[0].Samples[0])
	assert.Equal(t, dataset.Valid(9), ds.Series[0].Samples[2])
	assert.Equal(t, dataset.Valid(5), ds.Series[0].Samples[3], "row with a missing partner is never inside")
	assert.Equal(t, dataset.Valid(1), ds.Series[2].Samples[0], "untargeted series untouched")

	// Same reason again is remembered once.
	drawBox(t, s)
	_, err = s.Exclude("icing")
	require.NoError(t, err)
	assert.Equal(t, []string{"icing"}, s.Reasons())
}

func TestExclude_OnlyX(t *testing.T) {
	s := newSession(t)
	s.SetTargets(true, false)
	drawBox(t, s)

	res, err := s.Exclude("spike")
	require.NoError(t, err)
	assert.Equal(t, 2, res.ExcludedX)
	assert.Equal(t, 0, res.ExcludedY)
	assert.Equal(t, dataset.Valid(5), s.Dataset().Series[1].Samples[0])
}

func TestExclude_Preconditions(t *testing.T) {
	t.Run("no dataset", func(t *testing.T) {
		s := New(config.EmptyCleanerConfig(), nil)
		_, err := s.Exclude("icing")
		assert.ErrorIs(t, err, ErrNoDataset)
	})

	t.Run("reason checked before curve", func(t *testing.T) {
		s := newSession(t)
		_, err := s.Exclude("   ")
		assert.ErrorIs(t, err, ErrNoReason)
	})

	t.Run("reason with tab", func(t *testing.T) {
		s := newSession(t)
		drawBox(t, s)
		_, err := s.Exclude("a\tb")
		assert.ErrorIs(t, err, ErrInvalidReason)
	})

	t.Run("too few points", func(t *testing.T) {
		s := newSession(t)
		_, _ = s.AddPoint(geom.Pt(0, 0))
		_, _ = s.AddPoint(geom.Pt(1, 0))
		_, err := s.Exclude("icing")
		assert.ErrorIs(t, err, containment.ErrTooFewPoints)
		assert.Equal(t, 2, len(s.Curve().Points), "curve kept on failure")
	})

	t.Run("open curve", func(t *testing.T) {
		s := newSession(t)
		for _, p := range []geom.Point{geom.Pt(4, 4), geom.Pt(6, 4), geom.Pt(6, 6)} {
			_, _ = s.AddPoint(p)
		}
		_, err := s.Exclude("icing")
		assert.ErrorIs(t, err, containment.ErrCurveOpen)
		assert.Equal(t, dataset.Valid(5), s.Dataset().Series[0].Samples[0])
		assert.Empty(t, s.Reasons())
	})

	t.Run("no target", func(t *testing.T) {
		s := newSession(t)
		s.SetTargets(false, false)
		drawBox(t, s)
		_, err := s.Exclude("icing")
		assert.ErrorIs(t, err, ErrNoTarget)
	})
}

func TestSetAxes(t *testing.T) {
	s := newSession(t)
	_, _ = s.AddPoint(geom.Pt(1, 1))

	require.NoError(t, s.SetAxesByName("M2~T2", "M1~WS80"))
	x, y := s.Axes()
	assert.Equal(t, 2, x)
	assert.Equal(t, 0, y)
	assert.Empty(t, s.Curve().Points, "changing axes clears the curve")

	assert.ErrorIs(t, s.SetAxes(0, 7), dataset.ErrUnknownSeries)
	assert.ErrorIs(t, s.SetAxesByName("nope", "M1~WS80"), dataset.ErrUnknownSeries)

	empty := New(config.EmptyCleanerConfig(), nil)
	assert.ErrorIs(t, empty.SetAxes(0, 1), ErrNoDataset)
}

func TestRecords(t *testing.T) {
	s := newSession(t)
	drawBox(t, s)
	_, err := s.Exclude("icing")
	require.NoError(t, err)

	records, generated, err := s.Records(10 * time.Minute)
	require.NoError(t, err)
	assert.Equal(t, gen, generated)

	start := time.Date(2023, 12, 31, 23, 50, 0, 0, time.UTC)
	end := time.Date(2024, 1, 1, 0, 20, 0, 0, time.UTC)
	want := []exclusion.Record{
		{Key: exclusion.GroupKey{Mast: "M1", Sensor: "WS60", Reason: "icing"}, Start: start, End: end, Generated: gen},
		{Key: exclusion.GroupKey{Mast: "M1", Sensor: "WS80", Reason: "icing"}, Start: start, End: end, Generated: gen},
	}
	assert.Equal(t, want, records)

	_, _, err = s.Records(-time.Minute)
	assert.ErrorIs(t, err, exclusion.ErrNegativeBuffer)

	_, _, err = New(config.EmptyCleanerConfig(), nil).Records(time.Minute)
	assert.ErrorIs(t, err, ErrNoDataset)
}

func TestRecords_NothingExcluded(t *testing.T) {
	s := newSession(t)
	records, generated, err := s.Records(10 * time.Minute)
	require.NoError(t, err)
	assert.Empty(t, records)
	assert.Equal(t, gen, generated)
}

func TestSetCurve(t *testing.T) {
	s := newSession(t)
	s.SetCurve(containment.NewCurve(geom.Pt(4, 4), geom.Pt(6, 4), geom.Pt(6, 6), geom.Pt(4, 6)))
	res, err := s.Exclude("batch")
	require.NoError(t, err)
	assert.Equal(t, 2, res.Inside)
}

func TestLegacyReferenceMode(t *testing.T) {
	cfg := config.DefaultCleanerConfig()
	mode := config.ReferenceLegacy
	cfg.ReferenceMode = &mode
	s := New(cfg, nil)

	ds, err := Loader(cfg).Load(strings.NewReader("T\tA~B\tA~C\n2024-01-01 00:00\t5\t5\n"))
	require.NoError(t, err)
	s.Load(ds, "legacy.tsv")
	s.SetCurve(containment.NewCurve(geom.Pt(0, 0), geom.Pt(0, 10), geom.Pt(10, 10), geom.Pt(10, 0)))

	res, err := s.Exclude("legacy")
	require.NoError(t, err)
	assert.Equal(t, 0, res.Inside, "the fixed origin ray runs through the (0,0) corner")
}

func TestSceneAndState(t *testing.T) {
	s := newSession(t)
	drawBox(t, s)
	_, err := s.Exclude("icing")
	require.NoError(t, err)
	_, _ = s.AddPoint(geom.Pt(1, 1))

	scene, err := s.Scene(true)
	require.NoError(t, err)
	assert.Equal(t, "M1~WS60 vs M1~WS80", scene.Title)
	assert.Equal(t, []geom.Point{geom.Pt(9, 9)}, scene.Valid)
	assert.Len(t, scene.Excluded, 2)
	assert.Equal(t, []geom.Point{geom.Pt(1, 1)}, scene.Curve)
	assert.False(t, scene.Closed)

	st := s.State()
	assert.Equal(t, 4, st.Rows)
	require.Len(t, st.Series, 3)
	assert.Equal(t, dataset.Counts{Valid: 2, Excluded: 2}, st.Series[0].Counts)
	assert.Equal(t, []string{"icing"}, st.Reasons)
	assert.Equal(t, 0.3, st.CloseThreshold)

	empty, err := New(config.EmptyCleanerConfig(), nil).Scene(false)
	require.NoError(t, err)
	assert.Equal(t, "no data loaded", empty.Title)
}
