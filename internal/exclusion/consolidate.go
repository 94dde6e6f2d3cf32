// Package exclusion turns individual excluded timestamps into merged time
// ranges per data source and reason.
package exclusion

import (
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/banshee-data/datacleaner/internal/timeutil"
)

var ErrNegativeBuffer = errors.New("buffer must not be negative")

// GroupKey identifies the data-source pair and reason an exclusion belongs to.
type GroupKey struct {
	Mast   string `json:"mast"`
	Sensor string `json:"sensor"`
	Reason string `json:"reason"`
}

// Less orders keys by mast, then sensor, then reason.
func (k GroupKey) Less(o GroupKey) bool {
	if k.Mast != o.Mast {
		return k.Mast < o.Mast
	}
	if k.Sensor != o.Sensor {
		return k.Sensor < o.Sensor
	}
	return k.Reason < o.Reason
}

func (k GroupKey) String() string {
	return fmt.Sprintf("%s~%s (%s)", k.Mast, k.Sensor, k.Reason)
}

// Event is one excluded sample at one timestamp.
type Event struct {
	Key  GroupKey
	Time time.Time
}

// Record is a consolidated exclusion interval.
type Record struct {
	Key       GroupKey  `json:"key"`
	Start     time.Time `json:"start"`
	End       time.Time `json:"end"`
	Generated time.Time `json:"generated"`
}

type interval struct {
	start, end time.Time
}

// Consolidate widens each event to [t-buffer, t+buffer] and merges overlapping
// or touching intervals within each group. Groups are emitted in key order and
// records within a group by increasing start. Every record carries now.
// events is not modified.
func Consolidate(events []Event, buffer time.Duration, now time.Time) ([]Record, error) {
	if buffer < 0 {
		return nil, fmt.Errorf("%w: got %v", ErrNegativeBuffer, buffer)
	}

	groups := make(map[GroupKey][]interval)
	for _, ev := range events {
		groups[ev.Key] = append(groups[ev.Key], interval{
			start: ev.Time.Add(-buffer),
			end:   ev.Time.Add(buffer),
		})
	}

	keys := make([]GroupKey, 0, len(groups))
	for k := range groups {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i].Less(keys[j]) })

	var records []Record
	for _, key := range keys {
		for _, iv := range merge(groups[key]) {
			records = append(records, Record{
				Key:       key,
				Start:     iv.start,
				End:       iv.end,
				Generated: now,
			})
		}
	}
	return records, nil
}

// merge sorts intervals by start and sweeps them into disjoint ranges. An
// interval starting exactly at the current end joins it.
func merge(ivs []interval) []interval {
	if len(ivs) == 0 {
		return nil
	}
	sort.Slice(ivs, func(i, j int) bool {
		if !ivs[i].start.Equal(ivs[j].start) {
			return ivs[i].start.Before(ivs[j].start)
		}
		return ivs[i].end.Before(ivs[j].end)
	})

	merged := make([]interval, 0, len(ivs))
	cur := ivs[0]
	for _, iv := range ivs[1:] {
		if !iv.start.After(cur.end) {
			if iv.end.After(cur.end) {
				cur.end = iv.end
			}
			continue
		}
		merged = append(merged, cur)
		cur = iv
	}
	return append(merged, cur)
}

// Consolidator stamps each run with a single reading of its clock.
type Consolidator struct {
	clock timeutil.Clock
}

// NewConsolidator returns a Consolidator. A nil clock uses the wall clock.
func NewConsolidator(clock timeutil.Clock) *Consolidator {
	if clock == nil {
		clock = timeutil.RealClock{}
	}
	return &Consolidator{clock: clock}
}

// Now reads the consolidator's clock.
func (c *Consolidator) Now() time.Time { return c.clock.Now() }

// Consolidate merges events using the current time as the generation stamp.
func (c *Consolidator) Consolidate(events []Event, buffer time.Duration) ([]Record, error) {
	return Consolidate(events, buffer, c.Now())
}
