package scave

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

// Pattern matches module paths and result names using OMNeT++ wildcard
// syntax:
//
//	**        any sequence of characters
//	*         any sequence not containing '.'
//	?         one character other than '.'
//	{a-z}     character set ({^a-z} negates)
//	{m..n}    decimal number in the inclusive range (either bound optional)
//	[m..n]    bracketed index in the range, e.g. nodes[0..4]
//	\c        literal c
//
// Everything else, including a '[' that does not open an index range,
// matches itself.
type Pattern struct {
	src    string
	re     *regexp.Regexp
	ranges []numRange
}

type numRange struct {
	lo, hi       int64
	hasLo, hasHi bool
}

func (r numRange) contains(s string) bool {
	v, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return false
	}
	return (!r.hasLo || v >= r.lo) && (!r.hasHi || v <= r.hi)
}

// CompilePattern parses an OMNeT++ pattern.
func CompilePattern(src string) (*Pattern, error) {
	var b strings.Builder
	var ranges []numRange
	b.WriteByte('^')

	rs := []rune(src)
	for i := 0; i < len(rs); i++ {
		c := rs[i]
		switch c {
		case '\\':
			if i+1 >= len(rs) {
				return nil, fmt.Errorf("pattern %q: trailing backslash", src)
			}
			i++
			b.WriteString(regexp.QuoteMeta(string(rs[i])))
		case '*':
			if i+1 < len(rs) && rs[i+1] == '*' {
				b.WriteString(".*")
				i++
			} else {
				b.WriteString(`[^.]*`)
			}
		case '?':
			b.WriteString(`[^.]`)
		case '{':
			end := indexRune(rs, i+1, '}')
			if end < 0 {
				return nil, fmt.Errorf("pattern %q: unterminated '{'", src)
			}
			body := string(rs[i+1 : end])
			if r, ok := parseRange(body); ok {
				ranges = append(ranges, r)
				b.WriteString(`(\d+)`)
			} else {
				set, err := charSet(body)
				if err != nil {
					return nil, fmt.Errorf("pattern %q: %w", src, err)
				}
				b.WriteString(set)
			}
			i = end
		case '[':
			end := indexRune(rs, i+1, ']')
			if end >= 0 {
				if r, ok := parseRange(string(rs[i+1 : end])); ok {
					ranges = append(ranges, r)
					b.WriteString(`\[(\d+)\]`)
					i = end
					continue
				}
			}
			b.WriteString(`\[`)
		default:
			b.WriteString(regexp.QuoteMeta(string(c)))
		}
	}
	b.WriteByte('$')

	re, err := regexp.Compile(b.String())
	if err != nil {
		return nil, fmt.Errorf("pattern %q: %w", src, err)
	}
	return &Pattern{src: src, re: re, ranges: ranges}, nil
}

// MustCompilePattern is like CompilePattern but panics on error.
func MustCompilePattern(src string) *Pattern {
	p, err := CompilePattern(src)
	if err != nil {
		panic(err)
	}
	return p
}

// Match reports whether s matches the whole pattern.
func (p *Pattern) Match(s string) bool {
	m := p.re.FindStringSubmatch(s)
	if m == nil {
		return false
	}
	for i, r := range p.ranges {
		if !r.contains(m[i+1]) {
			return false
		}
	}
	return true
}

func (p *Pattern) String() string {
	return p.src
}

func indexRune(rs []rune, from int, r rune) int {
	for j := from; j < len(rs); j++ {
		if rs[j] == r {
			return j
		}
	}
	return -1
}

// parseRange accepts "m..n", "m..", "..n".
func parseRange(body string) (numRange, bool) {
	lo, hi, ok := strings.Cut(body, "..")
	if !ok || (lo == "" && hi == "") {
		return numRange{}, false
	}
	var r numRange
	if lo != "" {
		v, err := strconv.ParseInt(lo, 10, 64)
		if err != nil {
			return numRange{}, false
		}
		r.lo, r.hasLo = v, true
	}
	if hi != "" {
		v, err := strconv.ParseInt(hi, 10, 64)
		if err != nil {
			return numRange{}, false
		}
		r.hi, r.hasHi = v, true
	}
	return r, true
}

func charSet(body string) (string, error) {
	if body == "" || body == "^" {
		return "", fmt.Errorf("empty character set")
	}
	var b strings.Builder
	b.WriteByte('[')
	for i, c := range body {
		switch {
		case c == '^' && i == 0:
			b.WriteRune('^')
		case c == '-' && i > 0 && i < len(body)-1:
			b.WriteRune('-')
		case c == '\\' || c == ']' || c == '[' || c == '^' || c == '-':
			b.WriteByte('\\')
			b.WriteRune(c)
		default:
			b.WriteRune(c)
		}
	}
	b.WriteByte(']')
	return b.String(), nil
}
