package sweep

import (
	"errors"
	"io"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/banshee-data/vardis.report/internal/extract"
	"github.com/banshee-data/vardis.report/internal/fsutil"
	"github.com/banshee-data/vardis.report/internal/stats"
)

var gridColumns = []string{"grid_size", "beaconperiod", "update_period"}

func gridTables() []TableSpec {
	return []TableSpec{
		{TableKey: TableKey{Metric: extract.UpdateDelay}, File: "avg_update_delay.csv", ValueColumn: "avgdelay"},
		{TableKey: TableKey{Metric: extract.SeqnoDelta}, File: "avg_seqno_delta.csv", ValueColumn: "avgdelta"},
		{TableKey: TableKey{Metric: extract.UpdateDelay, Positional: true}, File: "avg_update_delay_pos.csv", ValueColumn: "avgdelay"},
		{TableKey: TableKey{Metric: extract.SeqnoDelta, Positional: true}, File: "avg_seqno_delta_pos.csv", ValueColumn: "avgdelta"},
	}
}

func readLines(t *testing.T, mfs *fsutil.MemoryFileSystem, path string) []string {
	t.Helper()
	data, err := mfs.ReadFile(path)
	require.NoError(t, err)
	return strings.Split(strings.TrimRight(string(data), "\n"), "\n")
}

func TestHeader(t *testing.T) {
	specs := gridTables()
	assert.Equal(t, []string{"grid_size", "beaconperiod", "update_period", "avgdelay", "stddev", "cnt"}, Header(gridColumns, specs[0]))
	assert.Equal(t, []string{"grid_size", "beaconperiod", "update_period", "node_pos", "avgdelta", "stddev", "cnt"}, Header(gridColumns, specs[3]))
}

func TestFormatRow(t *testing.T) {
	pt := NewPoint([]string{"beaconperiod", "update_period", "grid_size"}, []string{"50", "400", "7"})
	row, err := FormatRow(gridColumns, Row{
		Metric:   extract.UpdateDelay,
		Position: extract.Center,
		Point:    pt,
		Stat:     stats.SampleStatistic{Mean: 15200.0 / 150, Stddev: 12.5, Count: 150},
	})
	require.NoError(t, err)
	if diff := cmp.Diff([]string{"7", "50", "400", "center", "101.33333333333333", "12.5", "150"}, row); diff != "" {
		t.Errorf("FormatRow mismatch (-want +got):\n%s", diff)
	}

	_, err = FormatRow([]string{"separation"}, Row{Point: pt})
	assert.Error(t, err)
}

func TestCSVWriter_HeadersAndFlush(t *testing.T) {
	mfs := fsutil.NewMemoryFileSystem()
	w, err := OpenCSVWriter(mfs, "out", gridColumns, gridTables())
	require.NoError(t, err)

	// Headers are on disk before any row is written.
	assert.Equal(t, []string{"grid_size,beaconperiod,update_period,avgdelay,stddev,cnt"}, readLines(t, mfs, "out/avg_update_delay.csv"))
	assert.Equal(t, []string{"grid_size,beaconperiod,update_period,node_pos,avgdelta,stddev,cnt"}, readLines(t, mfs, "out/avg_seqno_delta_pos.csv"))

	pt := NewPoint(gridColumns, []string{"7", "50", "400"})
	require.NoError(t, w.WriteRow(Row{Metric: extract.UpdateDelay, Point: pt, Stat: stats.SampleStatistic{Mean: 10, Stddev: 1, Count: 9}}))
	require.NoError(t, w.WriteRow(Row{Metric: extract.SeqnoDelta, Position: extract.Edge, Point: pt, Stat: stats.SampleStatistic{Mean: 1.5, Stddev: 0.5, Count: 12}}))

	// Rows are visible without Close.
	assert.Equal(t, "7,50,400,10,1,9", readLines(t, mfs, "out/avg_update_delay.csv")[1])
	assert.Equal(t, "7,50,400,edge,1.5,0.5,12", readLines(t, mfs, "out/avg_seqno_delta_pos.csv")[1])
	assert.Len(t, readLines(t, mfs, "out/avg_seqno_delta.csv"), 1)

	require.NoError(t, w.Close())
	require.NoError(t, w.Close(), "second close is a no-op")
}

func TestCSVWriter_Errors(t *testing.T) {
	mfs := fsutil.NewMemoryFileSystem()

	specs := gridTables()[:1]
	w, err := OpenCSVWriter(mfs, "out", gridColumns, specs)
	require.NoError(t, err)
	defer w.Close()

	pt := NewPoint(gridColumns, []string{"7", "50", "400"})
	err = w.WriteRow(Row{Metric: extract.SeqnoDelta, Point: pt})
	assert.ErrorContains(t, err, "no output table")

	_, err = OpenCSVWriter(mfs, "out2", gridColumns, append(specs, specs[0]))
	assert.ErrorContains(t, err, "duplicate")
}

type failingFS struct{ *fsutil.MemoryFileSystem }

type failingWriter struct{}

func (failingWriter) Write([]byte) (int, error) { return 0, errors.New("disk full") }
func (failingWriter) Close() error              { return nil }

func (failingFS) Create(string) (io.WriteCloser, error) { return failingWriter{}, nil }

func TestCSVWriter_WriteFailureIsReturned(t *testing.T) {
	_, err := OpenCSVWriter(failingFS{fsutil.NewMemoryFileSystem()}, "out", gridColumns, gridTables())
	assert.ErrorContains(t, err, "disk full")
}

type recordingWriter struct {
	rows     []Row
	closed   int
	err      error
	closeErr error
}

func (r *recordingWriter) WriteRow(row Row) error {
	if r.err != nil {
		return r.err
	}
	r.rows = append(r.rows, row)
	return nil
}

func (r *recordingWriter) Close() error {
	r.closed++
	return r.closeErr
}

func TestMultiWriter(t *testing.T) {
	a, b := &recordingWriter{}, &recordingWriter{}
	m := MultiWriter{a, b}

	row := Row{Metric: extract.UpdateDelay}
	require.NoError(t, m.WriteRow(row))
	assert.Len(t, a.rows, 1)
	assert.Len(t, b.rows, 1)

	a.err = errors.New("boom")
	assert.Error(t, m.WriteRow(row))
	assert.Len(t, b.rows, 1, "stops at first error")

	require.NoError(t, m.Close())
	assert.Equal(t, 1, a.closed)
	assert.Equal(t, 1, b.closed)
}

func TestMultiWriter_CloseReachesEveryWriter(t *testing.T) {
	errA, errB := errors.New("flush a"), errors.New("flush b")
	a := &recordingWriter{closeErr: errA}
	b := &recordingWriter{closeErr: errB}

	err := MultiWriter{a, b}.Close()
	assert.ErrorIs(t, err, errA)
	assert.ErrorIs(t, err, errB)
	assert.Equal(t, 1, a.closed)
	assert.Equal(t, 1, b.closed)
}

func TestTableKey_String(t *testing.T) {
	assert.Equal(t, "updateDelay", TableKey{Metric: extract.UpdateDelay}.String())
	assert.Equal(t, "seqnoDelta_pos", TableKey{Metric: extract.SeqnoDelta, Positional: true}.String())
}
