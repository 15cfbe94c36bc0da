package extract

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/banshee-data/vardis.report/internal/scave"
	"github.com/banshee-data/vardis.report/internal/stats"
)

func statRecord(module, name string, mean, stddev float64, count int64) scave.Record {
	return scave.Record{Module: module, Name: name, Type: scave.TypeStatistic, Mean: mean, Stddev: stddev, Count: count}
}

func metrics() []Metric {
	return []Metric{
		{Kind: UpdateDelay, Name: scave.MustCompilePattern("updateDelay:stats")},
		{Kind: SeqnoDelta, Name: scave.MustCompilePattern("seqnoDelta:stats")},
	}
}

func TestGridIndex(t *testing.T) {
	cases := []struct {
		side               int
		edge, center, intm int
	}{
		{3, 0, 4, 0},
		{5, 0, 12, 6},
		{7, 0, 24, 8},
		{8, 0, 32, 18},
		{14, 0, 98, 45},
	}
	for _, tc := range cases {
		t.Run(fmt.Sprint(tc.side), func(t *testing.T) {
			assert.Equal(t, tc.edge, GridIndex(tc.side, Edge))
			assert.Equal(t, tc.center, GridIndex(tc.side, Center))
			assert.Equal(t, tc.intm, GridIndex(tc.side, Intermediate))
			assert.Less(t, GridIndex(tc.side, Center), tc.side*tc.side)
			assert.Less(t, GridIndex(tc.side, Intermediate), tc.side*tc.side)
		})
	}
}

func TestExtract_SingleNode(t *testing.T) {
	spec := Spec{Module: scave.MustCompilePattern("**nodes[9].application"), Metrics: metrics()}
	records := []scave.Record{
		statRecord("Net.nodes[9].application", "updateDelay:stats", 100, 10, 50),
		statRecord("Net.nodes[9].application", "seqnoDelta:stats", 1.5, 0.5, 49),
		// A second match for the same metric is ignored.
		statRecord("Net.nodes[9].application", "updateDelay:stats", 1, 1, 2),
		statRecord("Net.nodes[3].application", "updateDelay:stats", 7, 7, 7),
	}

	res := Extract(records, spec, stats.Combine)
	assert.Empty(t, res.Missing)
	assert.Equal(t, 0, res.Discarded)
	assert.Equal(t, []Sample{
		{Metric: UpdateDelay, Stat: stats.SampleStatistic{Mean: 100, Stddev: 10, Count: 50}},
		{Metric: SeqnoDelta, Stat: stats.SampleStatistic{Mean: 1.5, Stddev: 0.5, Count: 49}},
	}, res.Samples)
}

func TestExtract_MissingMetricIsReportedNotFatal(t *testing.T) {
	spec := Spec{Module: scave.MustCompilePattern("**.application"), Metrics: metrics()}
	records := []scave.Record{
		statRecord("Net.nodes[0].application", "seqnoDelta:stats", 2, 1, 10),
	}

	res := Extract(records, spec, nil)
	require.Len(t, res.Missing, 1)
	assert.Equal(t, UpdateDelay, res.Missing[0].Metric)
	assert.Equal(t, "updateDelay: metric not found", res.Missing[0].String())
	require.Len(t, res.Samples, 1)
	assert.Equal(t, SeqnoDelta, res.Samples[0].Metric)
}

func TestExtract_ZeroCountDiscarded(t *testing.T) {
	spec := Spec{Module: scave.MustCompilePattern("**.application"), Metrics: metrics()}
	records := []scave.Record{
		statRecord("Net.nodes[0].application", "updateDelay:stats", 0, 0, 0),
		statRecord("Net.nodes[0].application", "seqnoDelta:stats", 3, 0, 1),
	}

	res := Extract(records, spec, nil)
	assert.Empty(t, res.Missing)
	assert.Equal(t, 1, res.Discarded)
	require.Len(t, res.Samples, 1)
	assert.Equal(t, int64(1), res.Samples[0].Stat.Count)
}

func TestExtract_TypeRestriction(t *testing.T) {
	spec := Spec{
		Module:  scave.MustCompilePattern("**"),
		Metrics: []Metric{{Kind: UpdateDelay, Name: scave.MustCompilePattern("updateDelay*")}},
		Types:   []scave.Type{scave.TypeHistogram},
	}
	records := []scave.Record{
		statRecord("Net.a", "updateDelay:stats", 1, 1, 5),
		{Module: "Net.a", Name: "updateDelay:histogram", Type: scave.TypeHistogram, Mean: 2, Stddev: 1, Count: 6},
		{Module: "Net.a", Name: "updateDelay:count", Type: scave.TypeScalar},
	}

	res := Extract(records, spec, nil)
	require.Len(t, res.Samples, 1)
	assert.Equal(t, int64(6), res.Samples[0].Stat.Count)
}

func gridRecords(side int, name string, count func(i int) int64) []scave.Record {
	var out []scave.Record
	for i := 0; i < side*side; i++ {
		out = append(out, statRecord(fmt.Sprintf("Grid.nodes[%d].application", i), name, float64(i), 1, count(i)))
	}
	return out
}

func TestExtract_Positional(t *testing.T) {
	side := 5
	spec := Spec{
		Module:     scave.MustCompilePattern("**.application"),
		Metrics:    metrics()[:1],
		Positional: true,
		GridSide:   side,
	}
	records := gridRecords(side, "updateDelay:stats", func(i int) int64 {
		if i == 3 {
			return 0
		}
		return 4
	})

	res := Extract(records, spec, stats.Combine)
	assert.Empty(t, res.Missing)
	require.Len(t, res.Samples, 4)

	var usable []stats.SampleStatistic
	for i, r := range records {
		if i != 3 {
			usable = append(usable, stats.SampleStatistic{Mean: r.Mean, Stddev: r.Stddev, Count: r.Count})
		}
	}
	whole := res.Samples[0]
	assert.Equal(t, Whole, whole.Position)
	assert.Equal(t, stats.Fold(usable, stats.Combine), whole.Stat)
	assert.Equal(t, int64(4*24), whole.Stat.Count)

	assert.Equal(t, Sample{Metric: UpdateDelay, Position: Edge, Stat: stats.SampleStatistic{Mean: 0, Stddev: 1, Count: 4}}, res.Samples[1])
	assert.Equal(t, Sample{Metric: UpdateDelay, Position: Center, Stat: stats.SampleStatistic{Mean: 12, Stddev: 1, Count: 4}}, res.Samples[2])
	assert.Equal(t, Sample{Metric: UpdateDelay, Position: Intermediate, Stat: stats.SampleStatistic{Mean: 6, Stddev: 1, Count: 4}}, res.Samples[3])
}

func TestExtract_PositionalWholeSkipsEmptyNodes(t *testing.T) {
	spec := Spec{
		Module:     scave.MustCompilePattern("**.application"),
		Metrics:    metrics()[:1],
		Positional: true,
		GridSide:   3,
	}
	records := gridRecords(3, "updateDelay:stats", func(i int) int64 {
		if i == 0 {
			return 1
		}
		return 0
	})

	var all []stats.SampleStatistic
	for _, r := range records {
		all = append(all, stats.SampleStatistic{Mean: r.Mean, Stddev: r.Stddev, Count: r.Count})
	}
	require.Equal(t, stats.Zero, stats.Fold(all, stats.Combine), "an unfiltered fold loses the single observation")

	res := Extract(records, spec, stats.Combine)
	require.Len(t, res.Samples, 3)
	assert.Equal(t, Sample{Metric: UpdateDelay, Position: Whole, Stat: all[0]}, res.Samples[0])
	assert.Equal(t, Edge, res.Samples[1].Position)
	assert.Equal(t, Intermediate, res.Samples[2].Position)
	assert.Equal(t, 1, res.Discarded, "the empty center node")
}

func TestExtract_PositionalTooFewNodes(t *testing.T) {
	spec := Spec{
		Module:     scave.MustCompilePattern("**.application"),
		Metrics:    metrics()[:1],
		Positional: true,
		GridSide:   5,
	}
	// Only 10 of 25 nodes reported: center (12) is missing, intermediate (6) present.
	records := gridRecords(5, "updateDelay:stats", func(int) int64 { return 3 })[:10]

	res := Extract(records, spec, nil)
	require.Len(t, res.Missing, 1)
	assert.Equal(t, Center, res.Missing[0].Position)
	assert.Contains(t, res.Missing[0].String(), "updateDelay/center")

	var buckets []PositionBucket
	for _, s := range res.Samples {
		buckets = append(buckets, s.Position)
	}
	assert.Equal(t, []PositionBucket{Whole, Edge, Intermediate}, buckets)
}

func TestExtract_PositionalMetricAbsent(t *testing.T) {
	spec := Spec{
		Module:     scave.MustCompilePattern("**.application"),
		Metrics:    metrics(),
		Positional: true,
		GridSide:   3,
	}
	records := gridRecords(3, "seqnoDelta:stats", func(int) int64 { return 0 })

	res := Extract(records, spec, nil)
	assert.Len(t, res.Missing, 4, "whole + three positions of updateDelay")
	assert.Empty(t, res.Samples)
	// seqnoDelta: no usable node for the whole-run fold, three zero-count positions.
	assert.Equal(t, 4, res.Discarded)
}

func TestSpec_Filter(t *testing.T) {
	spec := Spec{Module: scave.MustCompilePattern("**.sink"), Metrics: metrics()}
	f := spec.Filter()
	assert.Len(t, f.Names, 2)
	assert.Equal(t, `module =~ "**.sink" AND (name =~ "updateDelay:stats" OR name =~ "seqnoDelta:stats")`, f.String())
}

func TestParseMetricKind(t *testing.T) {
	k, err := ParseMetricKind("seqnoDelta")
	require.NoError(t, err)
	assert.Equal(t, SeqnoDelta, k)

	_, err = ParseMetricKind("latency")
	assert.Error(t, err)
}

func TestPositionBucket_String(t *testing.T) {
	assert.Equal(t, "whole", Whole.String())
	assert.Equal(t, "edge", Edge.String())
}
