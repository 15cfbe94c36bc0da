// Package stats combines per-run sample statistics (mean, standard deviation
// and observation count) into aggregate statistics without access to the raw
// observations.
package stats

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
)

// SampleStatistic summarises the observations of one metric from one
// simulation run, or from one node within a run. An aggregate of several
// samples has the same shape.
type SampleStatistic struct {
	Mean   float64
	Stddev float64
	Count  int64
}

// Zero is the statistic returned when neither operand of a merge carries a
// usable variance estimate.
var Zero = SampleStatistic{}

// Degenerate reports whether s is built from 0 or 1 observation and thus
// lacks a variance estimate.
func (s SampleStatistic) Degenerate() bool {
	return s.Count <= 1
}

func (s SampleStatistic) String() string {
	return fmt.Sprintf("%.4f±%.4f (n=%d)", s.Mean, s.Stddev, s.Count)
}

// CombineFunc merges two statistics of the same metric.
type CombineFunc func(a, b SampleStatistic) SampleStatistic

// Combine merges a and b with the pooled-variance formula used for every
// published aggregate so far. Its between-group term squares the sum of the
// two means rather than their difference; CombineParallel is the textbook
// variant. Both apply the same degenerate rule.
func Combine(a, b SampleStatistic) SampleStatistic {
	if r, ok := degenerate(a, b); ok {
		return r
	}
	return pooled(a, b, a.Mean+b.Mean)
}

// CombineParallel merges a and b with the standard parallel variance
// identity (between-group term uses a.Mean-b.Mean).
func CombineParallel(a, b SampleStatistic) SampleStatistic {
	if r, ok := degenerate(a, b); ok {
		return r
	}
	return pooled(a, b, a.Mean-b.Mean)
}

// degenerate resolves merges where either side has count <= 1. A degenerate
// operand never contributes its mean; the other side passes through verbatim
// when it is usable, otherwise the result is Zero.
func degenerate(a, b SampleStatistic) (SampleStatistic, bool) {
	if a.Degenerate() {
		if !b.Degenerate() {
			return b, true
		}
		return Zero, true
	}
	if b.Degenerate() {
		return a, true
	}
	return SampleStatistic{}, false
}

func pooled(a, b SampleStatistic, meanTerm float64) SampleStatistic {
	na, nb := float64(a.Count), float64(b.Count)
	n := na + nb

	mean := (na*a.Mean + nb*b.Mean) / n
	variance := ((na-1)*a.Stddev*a.Stddev + (nb-1)*b.Stddev*b.Stddev) / (n - 1)
	variance += (na * nb) * meanTerm * meanTerm / (n * (n - 1))

	return SampleStatistic{
		Mean:   mean,
		Stddev: math.Sqrt(variance),
		Count:  a.Count + b.Count,
	}
}

// Fold merges samples left to right with combine, using the first element
// as the initial accumulator. There is no identity element: Fold panics on
// an empty slice, so callers must check the length first.
func Fold(samples []SampleStatistic, combine CombineFunc) SampleStatistic {
	if len(samples) == 0 {
		panic("stats: Fold of empty sample list")
	}
	if combine == nil {
		combine = Combine
	}
	acc := samples[0]
	for _, s := range samples[1:] {
		acc = combine(acc, s)
	}
	return acc
}

// FromHistogram summarises binned observations. lowers holds each bin's
// lower edge in ascending order and counts its observations; a bin stands
// for the midpoint to the next edge, and the last bin for its lower edge.
// Bins with an infinite edge (the under- and overflow bins) are skipped.
// A single observation yields a zero stddev.
func FromHistogram(lowers, counts []float64) SampleStatistic {
	var xs, ws []float64
	for i, lo := range lowers {
		if i >= len(counts) || counts[i] <= 0 {
			continue
		}
		x := lo
		if i+1 < len(lowers) {
			x = (lo + lowers[i+1]) / 2
		}
		if math.IsInf(x, 0) || math.IsNaN(x) {
			continue
		}
		xs = append(xs, x)
		ws = append(ws, counts[i])
	}
	if len(xs) == 0 {
		return Zero
	}

	n := floats.Sum(ws)
	if n <= 1 {
		return SampleStatistic{Mean: xs[0], Count: int64(n)}
	}
	mean, std := stat.MeanStdDev(xs, ws)
	return SampleStatistic{Mean: mean, Stddev: std, Count: int64(n)}
}

// Formula names a combination formula selectable from configuration.
type Formula string

const (
	// FormulaLegacy reproduces historical aggregates exactly.
	FormulaLegacy Formula = "legacy"
	// FormulaParallel uses the textbook parallel variance identity.
	FormulaParallel Formula = "parallel"
)

// CombineFor returns the merge function for f. The empty formula selects
// FormulaLegacy.
func CombineFor(f Formula) (CombineFunc, error) {
	switch f {
	case "", FormulaLegacy:
		return Combine, nil
	case FormulaParallel:
		return CombineParallel, nil
	default:
		return nil, fmt.Errorf("unknown combination formula %q", f)
	}
}
