package sweep

import (
	"fmt"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"text/template"

	"github.com/banshee-data/vardis.report/internal/fsutil"
)

// Template renders a string (file pattern or module selector) from a
// point's dimension values, e.g. "nodes[{{sub .node_cnt 1}}]".
type Template struct {
	src string
	t   *template.Template
}

var templateFuncs = template.FuncMap{
	"add": func(a string, b int) (int, error) {
		n, err := strconv.Atoi(a)
		return n + b, err
	},
	"sub": func(a string, b int) (int, error) {
		n, err := strconv.Atoi(a)
		return n - b, err
	},
}

// ParseTemplate compiles text. Referencing a dimension the point does not
// have is an error at render time.
func ParseTemplate(text string) (*Template, error) {
	t, err := template.New("").Funcs(templateFuncs).Option("missingkey=error").Parse(text)
	if err != nil {
		return nil, err
	}
	return &Template{src: text, t: t}, nil
}

// Render substitutes p's values.
func (t *Template) Render(p Point) (string, error) {
	var b strings.Builder
	if err := t.t.Execute(&b, p.Map()); err != nil {
		return "", fmt.Errorf("render %q for %s: %w", t.src, p, err)
	}
	return b.String(), nil
}

func (t *Template) String() string {
	return t.src
}

// Locator discovers the result files of a sweep point by rendering each
// pattern template and globbing it under Dir.
type Locator struct {
	FS       fsutil.FileSystem
	Dir      string
	Patterns []*Template
}

// Locate returns the union of all pattern matches, deduplicated and sorted.
func (l *Locator) Locate(p Point) ([]string, error) {
	seen := make(map[string]bool)
	var out []string
	for _, t := range l.Patterns {
		pat, err := t.Render(p)
		if err != nil {
			return nil, err
		}
		if l.Dir != "" {
			pat = filepath.Join(l.Dir, pat)
		}
		matches, err := l.FS.Glob(pat)
		if err != nil {
			return nil, fmt.Errorf("glob %q: %w", pat, err)
		}
		for _, m := range matches {
			if !seen[m] {
				seen[m] = true
				out = append(out, m)
			}
		}
	}
	sort.Strings(out)
	return out, nil
}
