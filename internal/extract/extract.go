// Package extract turns the records of one simulation run into per-metric
// sample statistics, optionally broken down by grid position.
package extract

import (
	"fmt"

	"github.com/banshee-data/vardis.report/internal/scave"
	"github.com/banshee-data/vardis.report/internal/stats"
)

// MetricKind distinguishes the measured metrics.
type MetricKind string

const (
	UpdateDelay MetricKind = "updateDelay"
	SeqnoDelta  MetricKind = "seqnoDelta"
)

// ParseMetricKind validates a metric name from configuration.
func ParseMetricKind(s string) (MetricKind, error) {
	switch k := MetricKind(s); k {
	case UpdateDelay, SeqnoDelta:
		return k, nil
	}
	return "", fmt.Errorf("unknown metric %q", s)
}

// PositionBucket tags which single grid node a statistic tracks. Whole is
// the network-wide statistic.
type PositionBucket string

const (
	Whole        PositionBucket = ""
	Edge         PositionBucket = "edge"
	Center       PositionBucket = "center"
	Intermediate PositionBucket = "intermediate"
)

// Positions lists the grid buckets in output order.
var Positions = []PositionBucket{Edge, Center, Intermediate}

func (b PositionBucket) String() string {
	if b == Whole {
		return "whole"
	}
	return string(b)
}

// GridIndex returns the node index tracked for bucket b in a square grid of
// the given side length, with nodes numbered row by row.
func GridIndex(side int, b PositionBucket) int {
	switch b {
	case Center:
		return side * side / 2
	case Intermediate:
		return (side + 1) * (side / 4)
	default:
		return 0
	}
}

// Metric binds a metric kind to the result-name pattern it is read from.
type Metric struct {
	Kind MetricKind
	Name *scave.Pattern
}

// Spec describes what to pull out of one run's records.
type Spec struct {
	// Module selects the application module(s) producing the metrics.
	Module *scave.Pattern
	// Metrics in output order.
	Metrics []Metric
	// Types restricts record kinds; statistic and histogram when empty.
	Types []scave.Type

	// Positional enables per-node extraction on a GridSide x GridSide grid.
	Positional bool
	GridSide   int
}

// Filter returns the record filter covering every metric in s.
func (s Spec) Filter() scave.Filter {
	f := scave.Filter{Module: s.Module, Types: s.Types}
	for _, m := range s.Metrics {
		f.Names = append(f.Names, m.Name)
	}
	return f
}

// Sample is one extracted statistic.
type Sample struct {
	Metric   MetricKind
	Position PositionBucket
	Stat     stats.SampleStatistic
}

// Missing records a metric (or grid position) the run did not provide.
type Missing struct {
	Metric   MetricKind
	Position PositionBucket
	Reason   string
}

func (m Missing) String() string {
	if m.Position == Whole {
		return fmt.Sprintf("%s: %s", m.Metric, m.Reason)
	}
	return fmt.Sprintf("%s/%s: %s", m.Metric, m.Position, m.Reason)
}

// Result is the outcome of extracting one run. Missing entries are the
// run's skipped contributions; they never invalidate the other samples.
type Result struct {
	Samples []Sample
	Missing []Missing
	// Discarded counts statistics dropped for having no observations.
	Discarded int
}

// Extract pulls the configured metrics out of records. Statistics with a
// count below one are discarded. For positional specs the whole-run
// statistic is the fold of every node's statistic with combine, and the
// edge, center and intermediate nodes are reported individually.
func Extract(records []scave.Record, spec Spec, combine stats.CombineFunc) Result {
	if combine == nil {
		combine = stats.Combine
	}
	var res Result
	for _, m := range spec.Metrics {
		nodes := matching(records, spec, m)
		if len(nodes) == 0 {
			res.Missing = append(res.Missing, Missing{Metric: m.Kind, Reason: "metric not found"})
			if spec.Positional {
				for _, b := range Positions {
					res.Missing = append(res.Missing, Missing{Metric: m.Kind, Position: b, Reason: "metric not found"})
				}
			}
			continue
		}

		if !spec.Positional {
			res.add(m.Kind, Whole, nodes[0])
			continue
		}

		var usable []stats.SampleStatistic
		for _, s := range nodes {
			if s.Count >= 1 {
				usable = append(usable, s)
			}
		}
		if len(usable) == 0 {
			res.Discarded++
		} else {
			res.add(m.Kind, Whole, stats.Fold(usable, combine))
		}

		for _, b := range Positions {
			idx := GridIndex(spec.GridSide, b)
			if idx >= len(nodes) {
				res.Missing = append(res.Missing, Missing{
					Metric:   m.Kind,
					Position: b,
					Reason:   fmt.Sprintf("node index %d out of range (%d nodes)", idx, len(nodes)),
				})
				continue
			}
			res.add(m.Kind, b, nodes[idx])
		}
	}
	return res
}

func (r *Result) add(k MetricKind, b PositionBucket, s stats.SampleStatistic) {
	if s.Count < 1 {
		r.Discarded++
		return
	}
	r.Samples = append(r.Samples, Sample{Metric: k, Position: b, Stat: s})
}

// matching returns the statistics of m in declaration order.
func matching(records []scave.Record, spec Spec, m Metric) []stats.SampleStatistic {
	f := scave.Filter{Module: spec.Module, Names: []*scave.Pattern{m.Name}, Types: spec.Types}
	var out []stats.SampleStatistic
	for i := range records {
		if f.Match(&records[i]) {
			r := records[i]
			out = append(out, stats.SampleStatistic{Mean: r.Mean, Stddev: r.Stddev, Count: r.Count})
		}
	}
	return out
}
