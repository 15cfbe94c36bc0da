// Package monitoring holds the batch job's diagnostic logger and a tally of
// the recoverable conditions it reported.
package monitoring

import (
	"log"
	"sort"
	"sync"
)

// Logf is the package-level diagnostic logger. It defaults to log.Printf but may
// be replaced by SetLogger. Tests or production code can redirect or mute it.
var Logf func(format string, v ...interface{}) = log.Printf

// SetLogger replaces the package logger. Passing nil will set a no-op logger.
func SetLogger(f func(format string, v ...interface{})) {
	if f == nil {
		Logf = func(string, ...interface{}) {}
		return
	}
	Logf = f
}

// Category names a class of reported, non-fatal condition.
type Category string

const (
	MalformedFile    Category = "malformed_file"
	MissingMetric    Category = "missing_metric"
	MissingPosition  Category = "missing_position"
	InsufficientData Category = "insufficient_data"
)

// Tally counts reported conditions by category. The zero value is ready
// to use.
type Tally struct {
	mu     sync.Mutex
	counts map[Category]int
}

// Report logs the message through Logf and counts it under c.
func (t *Tally) Report(c Category, format string, v ...interface{}) {
	t.Add(c)
	Logf(format, v...)
}

// Add counts one occurrence of c without logging.
func (t *Tally) Add(c Category) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.counts == nil {
		t.counts = make(map[Category]int)
	}
	t.counts[c]++
}

// Count returns the occurrences of c.
func (t *Tally) Count(c Category) int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.counts[c]
}

// Categories returns the reported categories in name order.
func (t *Tally) Categories() []Category {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]Category, 0, len(t.counts))
	for c := range t.counts {
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}
