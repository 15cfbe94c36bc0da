package sweep

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strconv"

	"github.com/banshee-data/vardis.report/internal/extract"
	"github.com/banshee-data/vardis.report/internal/fsutil"
	"github.com/banshee-data/vardis.report/internal/stats"
)

// TableKey identifies an output table: one per metric, plus one per metric
// for the grid-position breakdown.
type TableKey struct {
	Metric     extract.MetricKind
	Positional bool
}

func (k TableKey) String() string {
	if k.Positional {
		return string(k.Metric) + "_pos"
	}
	return string(k.Metric)
}

// TableSpec describes one output table.
type TableSpec struct {
	TableKey
	// File is the output file name, relative to the output directory.
	File string
	// ValueColumn names the mean column, e.g. "avgdelay".
	ValueColumn string
}

// Row is one emitted aggregate.
type Row struct {
	Metric   extract.MetricKind
	Position extract.PositionBucket
	Point    Point
	Stat     stats.SampleStatistic
}

// Table returns the key of the table r belongs to.
func (r Row) Table() TableKey {
	return TableKey{Metric: r.Metric, Positional: r.Position != extract.Whole}
}

// RowWriter persists emitted rows. WriteRow must make the row durable
// before returning.
type RowWriter interface {
	WriteRow(Row) error
	Close() error
}

// Header returns the column names of a table: the sweep columns, the
// position tag for positional tables, then mean, stddev and count.
func Header(columns []string, spec TableSpec) []string {
	header := append([]string(nil), columns...)
	if spec.Positional {
		header = append(header, "node_pos")
	}
	return append(header, spec.ValueColumn, "stddev", "cnt")
}

// FormatRow renders r in the column layout produced by Header.
func FormatRow(columns []string, r Row) ([]string, error) {
	row, err := r.Point.Values(columns)
	if err != nil {
		return nil, err
	}
	if r.Position != extract.Whole {
		row = append(row, string(r.Position))
	}
	return append(row,
		strconv.FormatFloat(r.Stat.Mean, 'g', -1, 64),
		strconv.FormatFloat(r.Stat.Stddev, 'g', -1, 64),
		strconv.FormatInt(r.Stat.Count, 10),
	), nil
}

type csvTable struct {
	spec TableSpec
	f    io.WriteCloser
	w    *csv.Writer
}

// CSVWriter keeps one open CSV stream per table for the whole job. Every
// row is flushed as soon as it is written so an interrupted job leaves
// valid output behind.
type CSVWriter struct {
	columns []string
	tables  map[TableKey]*csvTable
	order   []TableKey
}

// OpenCSVWriter creates every table under dir and writes its header.
func OpenCSVWriter(fsys fsutil.FileSystem, dir string, columns []string, specs []TableSpec) (*CSVWriter, error) {
	if err := fsys.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("create output dir: %w", err)
	}

	c := &CSVWriter{columns: columns, tables: make(map[TableKey]*csvTable)}
	for _, spec := range specs {
		if _, dup := c.tables[spec.TableKey]; dup {
			c.Close()
			return nil, fmt.Errorf("duplicate output table %s", spec.TableKey)
		}
		f, err := fsys.Create(filepath.Join(dir, spec.File))
		if err != nil {
			c.Close()
			return nil, fmt.Errorf("create %s: %w", spec.File, err)
		}
		t := &csvTable{spec: spec, f: f, w: csv.NewWriter(f)}
		c.tables[spec.TableKey] = t
		c.order = append(c.order, spec.TableKey)

		if err := t.write(Header(columns, spec)); err != nil {
			c.Close()
			return nil, fmt.Errorf("write header of %s: %w", spec.File, err)
		}
	}
	return c, nil
}

func (t *csvTable) write(record []string) error {
	if err := t.w.Write(record); err != nil {
		return err
	}
	t.w.Flush()
	return t.w.Error()
}

// WriteRow appends r to its table and flushes it.
func (c *CSVWriter) WriteRow(r Row) error {
	t, ok := c.tables[r.Table()]
	if !ok {
		return fmt.Errorf("no output table for %s", r.Table())
	}
	record, err := FormatRow(c.columns, r)
	if err != nil {
		return err
	}
	if err := t.write(record); err != nil {
		return fmt.Errorf("write %s: %w", t.spec.File, err)
	}
	return nil
}

// Close flushes and closes every table.
func (c *CSVWriter) Close() error {
	var errs []error
	for _, k := range c.order {
		t := c.tables[k]
		t.w.Flush()
		if err := t.w.Error(); err != nil {
			errs = append(errs, err)
		}
		if err := t.f.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	c.order = nil
	return errors.Join(errs...)
}

// MultiWriter fans rows out to several writers, stopping at the first error.
type MultiWriter []RowWriter

func (m MultiWriter) WriteRow(r Row) error {
	for _, w := range m {
		if err := w.WriteRow(r); err != nil {
			return err
		}
	}
	return nil
}

func (m MultiWriter) Close() error {
	var errs []error
	for _, w := range m {
		if err := w.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
