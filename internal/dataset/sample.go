// Package dataset holds aligned sensor series read from tab-separated files
// and the per-sample exclusion state the cleaner edits.
package dataset

import (
	"errors"
	"fmt"
	"strings"
)

// Kind is the state of a single sample.
type Kind uint8

const (
	KindValid Kind = iota
	KindMissing
	KindExcluded
)

func (k Kind) String() string {
	switch k {
	case KindValid:
		return "valid"
	case KindMissing:
		return "missing"
	case KindExcluded:
		return "excluded"
	default:
		return fmt.Sprintf("Kind(%d)", uint8(k))
	}
}

// Sample is one reading of a series. Value is meaningful for valid and
// excluded samples; Reason only for excluded ones.
type Sample struct {
	Kind   Kind
	Value  float64
	Reason string
}

func Valid(x float64) Sample { return Sample{Kind: KindValid, Value: x} }

func Missing() Sample { return Sample{Kind: KindMissing} }

func Excluded(x float64, reason string) Sample {
	return Sample{Kind: KindExcluded, Value: x, Reason: reason}
}

func (s Sample) IsValid() bool    { return s.Kind == KindValid }
func (s Sample) IsExcluded() bool { return s.Kind == KindExcluded }

// Exclude returns the sample marked as excluded for reason. Only valid samples
// change; the bool reports whether a transition happened.
func (s Sample) Exclude(reason string) (Sample, bool) {
	if s.Kind != KindValid {
		return s, false
	}
	return Excluded(s.Value, reason), true
}

// Series is a named column of samples aligned with the dataset index.
type Series struct {
	Name    string
	Samples []Sample
}

// Counts tallies samples by kind.
type Counts struct {
	Valid    int `json:"valid"`
	Missing  int `json:"missing"`
	Excluded int `json:"excluded"`
}

func (s *Series) Counts() Counts {
	var c Counts
	for _, smp := range s.Samples {
		switch smp.Kind {
		case KindValid:
			c.Valid++
		case KindMissing:
			c.Missing++
		case KindExcluded:
			c.Excluded++
		}
	}
	return c
}

var ErrUnsupportedName = errors.New("unsupported series name")

// SplitName extracts the mast and sensor identifiers from a series name such
// as "M1~WS80" or "M1~WS80~mean". Any other token count is rejected.
func SplitName(name, sep string) (mast, sensor string, err error) {
	parts := strings.Split(name, sep)
	if len(parts) != 2 && len(parts) != 3 {
		return "", "", fmt.Errorf("%w %q: expected 2 or 3 %q-separated parts, got %d", ErrUnsupportedName, name, sep, len(parts))
	}
	return parts[0], parts[1], nil
}
