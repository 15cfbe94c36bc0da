package scave

import (
	"bufio"
	"fmt"
	"io"
	"math"
	"strconv"
	"strings"

	"github.com/banshee-data/vardis.report/internal/fsutil"
	"github.com/banshee-data/vardis.report/internal/stats"
)

// Reader supplies the records of one result file that pass a filter.
type Reader interface {
	Read(path string, f Filter) ([]Record, error)
}

// FileReader reads .sca files from a FileSystem.
type FileReader struct {
	FS fsutil.FileSystem
}

// NewFileReader returns a reader over fsys, defaulting to the OS filesystem.
func NewFileReader(fsys fsutil.FileSystem) *FileReader {
	if fsys == nil {
		fsys = fsutil.OSFileSystem{}
	}
	return &FileReader{FS: fsys}
}

// Read parses path and returns the matching records in file order.
func (r *FileReader) Read(path string, f Filter) ([]Record, error) {
	file, err := r.FS.Open(path)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	recs, err := Parse(file, f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return recs, nil
}

// Parse reads a scalar file from rd and returns the records passing f in
// declaration order. Input without a run header is malformed.
func Parse(rd io.Reader, f Filter) ([]Record, error) {
	p := parser{filter: f}
	sc := bufio.NewScanner(rd)
	sc.Buffer(make([]byte, 64*1024), 4*1024*1024)
	for sc.Scan() {
		p.line++
		if err := p.parseLine(sc.Text()); err != nil {
			return nil, err
		}
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	p.flush()
	if p.run == "" {
		return nil, fmt.Errorf("%w: no run header", ErrMalformed)
	}
	return p.out, nil
}

type parser struct {
	filter Filter
	line   int
	run    string
	cur    *Record
	fields map[string]bool
	out    []Record
}

func (p *parser) errorf(format string, v ...interface{}) error {
	return fmt.Errorf("%w: line %d: %s", ErrMalformed, p.line, fmt.Sprintf(format, v...))
}

func (p *parser) parseLine(line string) error {
	toks, err := tokenize(line)
	if err != nil {
		return p.errorf("%v", err)
	}
	if len(toks) == 0 || strings.HasPrefix(toks[0], "#") {
		return nil
	}

	switch toks[0] {
	case "version":
		return nil
	case "run":
		if len(toks) != 2 {
			return p.errorf("run: want 1 argument, got %d", len(toks)-1)
		}
		p.flush()
		p.run = toks[1]
	case "attr", "itervar", "param", "config":
		if len(toks) != 3 {
			return p.errorf("%s: want 2 arguments, got %d", toks[0], len(toks)-1)
		}
	case "scalar":
		if len(toks) != 4 {
			return p.errorf("scalar: want 3 arguments, got %d", len(toks)-1)
		}
		if err := p.begin(toks[1], toks[2], TypeScalar); err != nil {
			return err
		}
		if _, err := parseNumber(toks[3]); err != nil {
			return p.errorf("scalar value: %v", err)
		}
	case "statistic":
		if len(toks) != 3 {
			return p.errorf("statistic: want 2 arguments, got %d", len(toks)-1)
		}
		if err := p.begin(toks[1], toks[2], TypeStatistic); err != nil {
			return err
		}
	case "field":
		if len(toks) != 3 {
			return p.errorf("field: want 2 arguments, got %d", len(toks)-1)
		}
		if p.cur == nil || p.cur.Type == TypeScalar {
			return p.errorf("field outside statistic")
		}
		v, err := parseNumber(toks[2])
		if err != nil {
			return p.errorf("field %s: %v", toks[1], err)
		}
		p.setField(toks[1], v)
	case "bin":
		if len(toks) != 3 {
			return p.errorf("bin: want 2 arguments, got %d", len(toks)-1)
		}
		if p.cur == nil || p.cur.Type == TypeScalar {
			return p.errorf("bin outside statistic")
		}
		lo, err := parseNumber(toks[1])
		if err != nil {
			return p.errorf("bin edge: %v", err)
		}
		n, err := parseNumber(toks[2])
		if err != nil {
			return p.errorf("bin count: %v", err)
		}
		p.cur.Type = TypeHistogram
		p.cur.Bins = append(p.cur.Bins, Bin{Lower: lo, Count: n})
	default:
		// Vector declarations and future keywords carry nothing we read.
		p.flush()
	}
	return nil
}

func (p *parser) begin(module, name string, t Type) error {
	if p.run == "" {
		return p.errorf("%s before run header", t)
	}
	p.flush()
	p.cur = &Record{Run: p.run, Module: module, Name: name, Type: t}
	p.fields = make(map[string]bool)
	return nil
}

func (p *parser) setField(name string, v float64) {
	p.fields[name] = true
	switch name {
	case "count":
		p.cur.Count = int64(v)
	case "mean":
		p.cur.Mean = v
	case "stddev":
		p.cur.Stddev = v
	case "sum":
		p.cur.Sum = v
	case "sqrsum":
		p.cur.SqrSum = v
	}
}

// flush completes the current record, deriving mean and stddev from sum
// and sqrsum, or else from the histogram bins, when the file omits them.
func (p *parser) flush() {
	r := p.cur
	if r == nil {
		return
	}
	p.cur = nil
	if r.Type != TypeScalar {
		n := float64(r.Count)
		if !p.fields["mean"] && p.fields["sum"] && r.Count > 0 {
			r.Mean = r.Sum / n
		}
		if !p.fields["stddev"] && p.fields["sum"] && p.fields["sqrsum"] && r.Count > 1 {
			v := (r.SqrSum - r.Sum*r.Sum/n) / (n - 1)
			r.Stddev = math.Sqrt(math.Max(v, 0))
		}
		if r.Type == TypeHistogram && !p.fields["mean"] && !p.fields["sum"] {
			p.fromBins(r)
		}
	}
	if p.filter.Match(r) {
		p.out = append(p.out, *r)
	}
}

func (p *parser) fromBins(r *Record) {
	lowers := make([]float64, len(r.Bins))
	counts := make([]float64, len(r.Bins))
	for i, b := range r.Bins {
		lowers[i], counts[i] = b.Lower, b.Count
	}
	s := stats.FromHistogram(lowers, counts)
	r.Mean = s.Mean
	if !p.fields["stddev"] {
		r.Stddev = s.Stddev
	}
	if !p.fields["count"] {
		r.Count = s.Count
	}
}

func parseNumber(s string) (float64, error) {
	switch s {
	case "nan", "NaN", "-nan":
		return math.NaN(), nil
	}
	return strconv.ParseFloat(s, 64)
}

// tokenize splits a line on blanks; double-quoted tokens may contain blanks
// and backslash escapes.
func tokenize(line string) ([]string, error) {
	var toks []string
	i := 0
	for i < len(line) {
		c := line[i]
		if c == ' ' || c == '\t' || c == '\r' {
			i++
			continue
		}
		if c != '"' {
			j := i
			for j < len(line) && line[j] != ' ' && line[j] != '\t' && line[j] != '\r' {
				j++
			}
			toks = append(toks, line[i:j])
			i = j
			continue
		}
		var b strings.Builder
		i++
		closed := false
		for i < len(line) {
			c = line[i]
			if c == '\\' && i+1 < len(line) {
				switch line[i+1] {
				case 'n':
					b.WriteByte('\n')
				case 't':
					b.WriteByte('\t')
				default:
					b.WriteByte(line[i+1])
				}
				i += 2
				continue
			}
			if c == '"' {
				closed = true
				i++
				break
			}
			b.WriteByte(c)
			i++
		}
		if !closed {
			return nil, fmt.Errorf("unterminated quoted string")
		}
		toks = append(toks, b.String())
	}
	return toks, nil
}
