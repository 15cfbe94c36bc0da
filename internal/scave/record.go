// Package scave reads OMNeT++ scalar result files (.sca) and selects the
// statistic and histogram records an analysis needs.
package scave

import (
	"errors"
	"fmt"
)

// ErrMalformed is wrapped by every parse failure of a result file.
var ErrMalformed = errors.New("malformed result file")

// Type is the kind of a result record.
type Type string

const (
	TypeScalar    Type = "scalar"
	TypeStatistic Type = "statistic"
	TypeHistogram Type = "histogram"
)

// Record is one named measurement of one module in one run.
type Record struct {
	Run    string
	Module string
	Name   string
	Type   Type

	Count  int64
	Mean   float64
	Stddev float64
	Sum    float64
	SqrSum float64

	// Bins holds histogram bin lower edges and counts in file order.
	Bins []Bin
}

// Bin is one histogram bin.
type Bin struct {
	Lower float64
	Count float64
}

// Filter selects records by module path, result name and type.
type Filter struct {
	Module *Pattern
	Names  []*Pattern
	// Types defaults to statistic and histogram when empty.
	Types []Type
}

// Match reports whether r passes the filter. A nil module pattern or an
// empty name list matches everything.
func (f Filter) Match(r *Record) bool {
	if !f.matchType(r.Type) {
		return false
	}
	if f.Module != nil && !f.Module.Match(r.Module) {
		return false
	}
	if len(f.Names) == 0 {
		return true
	}
	for _, p := range f.Names {
		if p.Match(r.Name) {
			return true
		}
	}
	return false
}

func (f Filter) matchType(t Type) bool {
	if len(f.Types) == 0 {
		return t == TypeStatistic || t == TypeHistogram
	}
	for _, want := range f.Types {
		if t == want {
			return true
		}
	}
	return false
}

func (f Filter) String() string {
	s := "module =~ *"
	if f.Module != nil {
		s = fmt.Sprintf("module =~ %q", f.Module)
	}
	for i, p := range f.Names {
		if i == 0 {
			s += " AND ("
		} else {
			s += " OR "
		}
		s += fmt.Sprintf("name =~ %q", p)
		if i == len(f.Names)-1 {
			s += ")"
		}
	}
	return s
}
