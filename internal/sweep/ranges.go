// Package sweep enumerates the points of a simulation parameter sweep,
// aggregates the per-run statistics found for each point and writes one
// row per aggregate.
package sweep

import (
	"fmt"
	"strconv"
	"strings"
)

// maxPoints bounds the size of an expanded sweep.
const maxPoints = 100000

// IntRangeSpec defines an integer parameter range for sweeping.
type IntRangeSpec struct {
	Min  int
	Max  int
	Step int
}

// ParseIntRangeSpec parses a "min:max:step" string into an IntRangeSpec.
// Returns an error if the format is invalid or values cannot be parsed.
func ParseIntRangeSpec(s string) (IntRangeSpec, error) {
	parts := strings.Split(s, ":")
	if len(parts) != 3 {
		return IntRangeSpec{}, fmt.Errorf("invalid range format %q: expected min:max:step", s)
	}

	min, err := strconv.Atoi(strings.TrimSpace(parts[0]))
	if err != nil {
		return IntRangeSpec{}, fmt.Errorf("invalid min value %q: %w", parts[0], err)
	}

	max, err := strconv.Atoi(strings.TrimSpace(parts[1]))
	if err != nil {
		return IntRangeSpec{}, fmt.Errorf("invalid max value %q: %w", parts[1], err)
	}

	step, err := strconv.Atoi(strings.TrimSpace(parts[2]))
	if err != nil {
		return IntRangeSpec{}, fmt.Errorf("invalid step value %q: %w", parts[2], err)
	}

	if step <= 0 {
		return IntRangeSpec{}, fmt.Errorf("step must be positive, got %d", step)
	}

	return IntRangeSpec{Min: min, Max: max, Step: step}, nil
}

// GenerateIntRange generates the values from min to max (inclusive)
// stepping by step. Returns nil if min > max or the range is too large.
func GenerateIntRange(min, max, step int) []int {
	if step <= 0 || min > max {
		return nil
	}
	if (max-min)/step+1 > maxPoints {
		return nil
	}

	var result []int
	for v := min; v <= max; v += step {
		result = append(result, v)
	}
	return result
}

// ParseValues parses a dimension's value list. A string containing a colon
// is an integer "min:max:step" range; anything else is a comma-separated
// list whose entries are kept verbatim (after trimming blanks).
func ParseValues(s string) ([]string, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, nil
	}

	if strings.Contains(s, ":") {
		spec, err := ParseIntRangeSpec(s)
		if err != nil {
			return nil, err
		}
		ints := GenerateIntRange(spec.Min, spec.Max, spec.Step)
		if len(ints) == 0 {
			return nil, fmt.Errorf("range %q is empty or too large", s)
		}
		out := make([]string, len(ints))
		for i, v := range ints {
			out[i] = strconv.Itoa(v)
		}
		return out, nil
	}

	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		out = append(out, p)
	}
	return out, nil
}

// Dimension is one swept parameter. Name doubles as the output column name
// and the template key used to build file patterns.
type Dimension struct {
	Name   string
	Values []string
}

// Point is one combination of dimension values. It is immutable.
type Point struct {
	names  []string
	values []string
}

// NewPoint builds a point from parallel name and value slices.
func NewPoint(names, values []string) Point {
	return Point{
		names:  append([]string(nil), names...),
		values: append([]string(nil), values...),
	}
}

// Value returns the value of the named dimension.
func (p Point) Value(name string) (string, bool) {
	for i, n := range p.names {
		if n == name {
			return p.values[i], true
		}
	}
	return "", false
}

// Int returns the named dimension parsed as an integer.
func (p Point) Int(name string) (int, error) {
	v, ok := p.Value(name)
	if !ok {
		return 0, fmt.Errorf("point %s has no dimension %q", p, name)
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("dimension %s: %w", name, err)
	}
	return n, nil
}

// Values returns the values for the given column names, in that order.
func (p Point) Values(columns []string) ([]string, error) {
	out := make([]string, len(columns))
	for i, c := range columns {
		v, ok := p.Value(c)
		if !ok {
			return nil, fmt.Errorf("point %s has no dimension %q", p, c)
		}
		out[i] = v
	}
	return out, nil
}

// Map returns the point as name -> value.
func (p Point) Map() map[string]string {
	m := make(map[string]string, len(p.names))
	for i, n := range p.names {
		m[n] = p.values[i]
	}
	return m
}

func (p Point) String() string {
	parts := make([]string, len(p.names))
	for i, n := range p.names {
		parts[i] = n + "=" + p.values[i]
	}
	return strings.Join(parts, ",")
}

// ExpandPoints generates the full cartesian product of dims. The first
// dimension is the outermost loop; the last one varies fastest.
func ExpandPoints(dims []Dimension) ([]Point, error) {
	if len(dims) == 0 {
		return nil, nil
	}

	names := make([]string, len(dims))
	total := int64(1)
	for i, d := range dims {
		if len(d.Values) == 0 {
			return nil, fmt.Errorf("dimension %q has no values", d.Name)
		}
		names[i] = d.Name
		total *= int64(len(d.Values))
		if total > maxPoints {
			return nil, fmt.Errorf("sweep would exceed safe limit of %d points", maxPoints)
		}
	}

	rows := make([][]string, total)
	for i := range rows {
		rows[i] = make([]string, len(dims))
	}

	repeat := int64(1)
	for dim := len(dims) - 1; dim >= 0; dim-- {
		vals := dims[dim].Values
		cycle := int64(len(vals))
		for i := int64(0); i < total; i++ {
			rows[i][dim] = vals[(i/repeat)%cycle]
		}
		repeat *= cycle
	}

	points := make([]Point, total)
	for i, r := range rows {
		points[i] = Point{names: names, values: r}
	}
	return points, nil
}
