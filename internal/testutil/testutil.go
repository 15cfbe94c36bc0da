// Package testutil provides shared test utilities and fixtures.
//
// The main fixture is ScaFile, a builder for OMNeT++ scalar files that
// tests drop into an in-memory results directory.
package testutil

import (
	"fmt"
	"strings"
	"testing"

	"github.com/banshee-data/vardis.report/internal/fsutil"
)

// AssertNoError fails the test if err is not nil.
func AssertNoError(t testing.TB, err error) {
	t.Helper()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

// AssertError fails the test if err is nil.
func AssertError(t testing.TB, err error) {
	t.Helper()
	if err == nil {
		t.Fatal("expected error, got nil")
	}
}

// Stat is one statistic block of a scalar file.
type Stat struct {
	Module string
	Name   string
	Mean   float64
	Stddev float64
	Count  int64
	// Bins turns the block into a histogram.
	Bins [][2]float64
}

// ScaFile builds the text of an OMNeT++ scalar file.
type ScaFile struct {
	Run   string
	Stats []Stat
}

// NewScaFile starts a file for the named run.
func NewScaFile(run string) *ScaFile {
	return &ScaFile{Run: run}
}

// Add appends a statistic block.
func (f *ScaFile) Add(module, name string, mean, stddev float64, count int64) *ScaFile {
	f.Stats = append(f.Stats, Stat{Module: module, Name: name, Mean: mean, Stddev: stddev, Count: count})
	return f
}

// AddGrid appends one statistic per node of a side x side grid, numbered
// row by row. stat returns mean, stddev and count for node i.
func (f *ScaFile) AddGrid(network, name string, side int, stat func(i int) (float64, float64, int64)) *ScaFile {
	for i := 0; i < side*side; i++ {
		m, s, n := stat(i)
		f.Add(fmt.Sprintf("%s.nodes[%d].application", network, i), name, m, s, n)
	}
	return f
}

// String renders the file.
func (f *ScaFile) String() string {
	var b strings.Builder
	fmt.Fprintf(&b, "version 3\nrun %s\nattr configname General\n\n", f.Run)
	for _, s := range f.Stats {
		fmt.Fprintf(&b, "statistic %s %s\n", s.Module, s.Name)
		fmt.Fprintf(&b, "field count %d\n", s.Count)
		fmt.Fprintf(&b, "field mean %v\n", s.Mean)
		fmt.Fprintf(&b, "field stddev %v\n", s.Stddev)
		for _, bin := range s.Bins {
			fmt.Fprintf(&b, "bin\t%v\t%v\n", bin[0], bin[1])
		}
	}
	return b.String()
}

// WriteTo stores the file at path in mfs.
func (f *ScaFile) WriteTo(mfs *fsutil.MemoryFileSystem, path string) {
	mfs.AddFile(path, []byte(f.String()))
}
