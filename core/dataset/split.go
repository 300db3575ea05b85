package dataset

import (
	"fmt"
	"math"
	"regexp"
	"strconv"
)

var splitPattern = regexp.MustCompile(`^(\w+(?:\.\w+)*)(?:\[(-?\d+%?)?:(-?\d+%?)?\])?$`)

// SplitSpec is a parsed split expression such as "train[:20%]"
type SplitSpec struct {
	Name    string
	From    *int
	To      *int
	Percent bool
}

// ParseSplit parses a split expression: a split name with an optional
// [from:to] slice whose bounds are row counts or percentages.
func ParseSplit(expr string) (SplitSpec, error) {
	m := splitPattern.FindStringSubmatch(expr)
	if m == nil {
		return SplitSpec{}, fmt.Errorf("invalid split expression %q", expr)
	}

	spec := SplitSpec{Name: m[1]}
	fromPct, toPct := false, false
	var err error
	if spec.From, fromPct, err = parseBound(m[2]); err != nil {
		return SplitSpec{}, fmt.Errorf("invalid split expression %q: %w", expr, err)
	}
	if spec.To, toPct, err = parseBound(m[3]); err != nil {
		return SplitSpec{}, fmt.Errorf("invalid split expression %q: %w", expr, err)
	}

	if spec.From != nil && spec.To != nil && fromPct != toPct {
		return SplitSpec{}, fmt.Errorf("invalid split expression %q: bounds mix rows and percentages", expr)
	}
	spec.Percent = fromPct || toPct

	if spec.Percent {
		for _, b := range []*int{spec.From, spec.To} {
			if b != nil && (*b < -100 || *b > 100) {
				return SplitSpec{}, fmt.Errorf("invalid split expression %q: percentage out of range", expr)
			}
		}
	}

	return spec, nil
}

func parseBound(s string) (*int, bool, error) {
	if s == "" {
		return nil, false, nil
	}
	pct := s[len(s)-1] == '%'
	if pct {
		s = s[:len(s)-1]
	}
	v, err := strconv.Atoi(s)
	if err != nil {
		return nil, false, err
	}
	return &v, pct, nil
}

// Sliced reports whether the expression selects a subset of the split
func (s SplitSpec) Sliced() bool {
	return s.From != nil || s.To != nil
}

// Bounds resolves the slice against a split of numRows rows and returns the
// half-open row range [start, end). Percent bounds round half to even.
func (s SplitSpec) Bounds(numRows int) (int, int) {
	start, end := 0, numRows
	if s.From != nil {
		start = s.resolve(*s.From, numRows)
	}
	if s.To != nil {
		end = s.resolve(*s.To, numRows)
	}
	if end < start {
		end = start
	}
	return start, end
}

func (s SplitSpec) resolve(bound, numRows int) int {
	v := bound
	if s.Percent {
		v = int(math.RoundToEven(float64(bound) * float64(numRows) / 100))
	}
	// Negative bounds count from the end, after percent rounding
	if v < 0 {
		v += numRows
	}
	return min(max(v, 0), numRows)
}

func (s SplitSpec) String() string {
	if !s.Sliced() {
		return s.Name
	}
	unit := ""
	if s.Percent {
		unit = "%"
	}
	bound := func(b *int) string {
		if b == nil {
			return ""
		}
		return strconv.Itoa(*b) + unit
	}
	return fmt.Sprintf("%s[%s:%s]", s.Name, bound(s.From), bound(s.To))
}
