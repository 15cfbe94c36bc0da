package sweep

import (
	"context"
	"errors"
	"fmt"

	"github.com/banshee-data/vardis.report/internal/extract"
	"github.com/banshee-data/vardis.report/internal/monitoring"
	"github.com/banshee-data/vardis.report/internal/scave"
	"github.com/banshee-data/vardis.report/internal/stats"
)

// DefaultMinSamples is the number of contributing runs an aggregate needs
// before it is written.
const DefaultMinSamples = 3

// MetricSpec binds a metric kind to the result name it is read from.
type MetricSpec struct {
	Kind extract.MetricKind
	Name *scave.Pattern
}

// Plan is a fully resolved experiment: what to sweep, where the files are
// and what to pull out of them.
type Plan struct {
	Name string
	// Dimensions in iteration order, outermost first.
	Dimensions []Dimension
	// Columns is the output column order; defaults to iteration order.
	Columns []string
	// Module renders the module selector for a point.
	Module  *Template
	Metrics []MetricSpec
	Types   []scave.Type

	Positional    bool
	GridDimension string

	MinSamples int
}

// OutputColumns returns Columns, or the dimension names when unset.
func (p *Plan) OutputColumns() []string {
	if len(p.Columns) > 0 {
		return p.Columns
	}
	cols := make([]string, len(p.Dimensions))
	for i, d := range p.Dimensions {
		cols[i] = d.Name
	}
	return cols
}

// Spec resolves the extraction spec for one point.
func (p *Plan) Spec(pt Point) (extract.Spec, error) {
	mod, err := p.Module.Render(pt)
	if err != nil {
		return extract.Spec{}, err
	}
	modPattern, err := scave.CompilePattern(mod)
	if err != nil {
		return extract.Spec{}, err
	}
	spec := extract.Spec{Module: modPattern, Types: p.Types, Positional: p.Positional}
	for _, m := range p.Metrics {
		spec.Metrics = append(spec.Metrics, extract.Metric{Kind: m.Kind, Name: m.Name})
	}
	if p.Positional {
		side, err := pt.Int(p.GridDimension)
		if err != nil {
			return extract.Spec{}, fmt.Errorf("grid side: %w", err)
		}
		spec.GridSide = side
	}
	return spec, nil
}

// Summary counts what a run did.
type Summary struct {
	Points      int
	Files       int
	Malformed   int
	Missing     int
	RowsWritten int
	Dropped     int
}

// Orchestrator drives the batch job over every point of a plan.
type Orchestrator struct {
	Plan    *Plan
	Locator *Locator
	Reader  scave.Reader
	Writer  RowWriter
	Combine stats.CombineFunc
	Tally   *monitoring.Tally
}

// Run processes every sweep point in order and writes the aggregates that
// have enough samples. Unreadable files and missing metrics are reported
// and skipped; a failing writer aborts the run. Cancellation is checked
// between points.
func (o *Orchestrator) Run(ctx context.Context) (Summary, error) {
	var sum Summary
	if err := o.Validate(); err != nil {
		return sum, err
	}
	points, err := ExpandPoints(o.Plan.Dimensions)
	if err != nil {
		return sum, err
	}

	for _, pt := range points {
		if err := ctx.Err(); err != nil {
			return sum, err
		}
		rows, ps, err := o.ProcessPoint(pt)
		sum.add(ps)
		if err != nil {
			return sum, err
		}
		for _, r := range rows {
			if err := o.Writer.WriteRow(r); err != nil {
				return sum, fmt.Errorf("write row for %s: %w", pt, err)
			}
			sum.RowsWritten++
		}
	}
	return sum, nil
}

func (s *Summary) add(o Summary) {
	s.Points += o.Points
	s.Files += o.Files
	s.Malformed += o.Malformed
	s.Missing += o.Missing
	s.RowsWritten += o.RowsWritten
	s.Dropped += o.Dropped
}

type bucketKey struct {
	metric   extract.MetricKind
	position extract.PositionBucket
}

// pointCollector accumulates the samples of exactly one sweep point.
type pointCollector map[bucketKey][]stats.SampleStatistic

func (c pointCollector) add(samples []extract.Sample) {
	for _, s := range samples {
		k := bucketKey{s.Metric, s.Position}
		c[k] = append(c[k], s.Stat)
	}
}

// ProcessPoint discovers, reads and folds the result files of pt and
// returns the rows to emit, in table order (whole network first, then
// edge, center and intermediate). It writes nothing.
func (o *Orchestrator) ProcessPoint(pt Point) ([]Row, Summary, error) {
	sum := Summary{Points: 1}
	tally := o.Tally
	if tally == nil {
		tally = &monitoring.Tally{}
	}

	spec, err := o.Plan.Spec(pt)
	if err != nil {
		return nil, sum, err
	}
	files, err := o.Locator.Locate(pt)
	if err != nil {
		return nil, sum, err
	}
	filter := spec.Filter()
	monitoring.Logf("%s: %d result files, selecting %s", pt, len(files), filter)
	collected := make(pointCollector)
	for _, path := range files {
		sum.Files++
		records, err := o.Reader.Read(path, filter)
		if err != nil {
			sum.Malformed++
			tally.Report(monitoring.MalformedFile, "skipping %s: %v", path, err)
			continue
		}
		res := extract.Extract(records, spec, o.Combine)
		for _, m := range res.Missing {
			sum.Missing++
			category := monitoring.MissingMetric
			if m.Position != extract.Whole {
				category = monitoring.MissingPosition
			}
			tally.Report(category, "missing data from %s: %s", path, m)
		}
		collected.add(res.Samples)
	}

	minSamples := o.Plan.MinSamples
	if minSamples <= 0 {
		minSamples = DefaultMinSamples
	}
	buckets := []extract.PositionBucket{extract.Whole}
	if o.Plan.Positional {
		buckets = append(buckets, extract.Positions...)
	}

	combine := o.Combine
	if combine == nil {
		combine = stats.Combine
	}
	var rows []Row
	for _, m := range o.Plan.Metrics {
		for _, b := range buckets {
			samples := collected[bucketKey{m.Kind, b}]
			if len(samples) < minSamples {
				sum.Dropped++
				tally.Add(monitoring.InsufficientData)
				continue
			}
			rows = append(rows, Row{
				Metric:   m.Kind,
				Position: b,
				Point:    pt,
				Stat:     stats.Fold(samples, combine),
			})
		}
	}
	return rows, sum, nil
}

// ErrNoPlan is returned by Validate for an orchestrator without a plan.
var ErrNoPlan = errors.New("sweep: orchestrator has no plan")

// Validate checks that the orchestrator is wired up.
func (o *Orchestrator) Validate() error {
	switch {
	case o.Plan == nil:
		return ErrNoPlan
	case o.Plan.Module == nil:
		return errors.New("sweep: plan has no module selector")
	case len(o.Plan.Metrics) == 0:
		return errors.New("sweep: plan has no metrics")
	case o.Locator == nil:
		return errors.New("sweep: orchestrator has no locator")
	case o.Reader == nil:
		return errors.New("sweep: orchestrator has no reader")
	case o.Writer == nil:
		return errors.New("sweep: orchestrator has no writer")
	}
	return nil
}
