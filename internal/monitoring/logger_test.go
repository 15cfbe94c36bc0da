package monitoring

import (
	"fmt"
	"testing"
)

func TestSetLogger(t *testing.T) {
	// Save original logger
	original := Logf
	defer func() { Logf = original }()

	called := false
	SetLogger(func(format string, v ...interface{}) {
		called = true
	})
	Logf("test message")
	if !called {
		t.Error("Custom logger was not called")
	}

	called = false
	SetLogger(nil)
	Logf("test message")
	if called {
		t.Error("No-op logger should not have triggered callback")
	}
}

func TestLogf_Default(t *testing.T) {
	if Logf == nil {
		t.Error("Logf should not be nil by default")
	}
}

func TestTally(t *testing.T) {
	original := Logf
	defer func() { Logf = original }()

	var lines []string
	SetLogger(func(format string, v ...interface{}) {
		lines = append(lines, fmt.Sprintf(format, v...))
	})

	var tally Tally
	if got := tally.Count(MissingMetric); got != 0 {
		t.Errorf("zero tally count = %d, want 0", got)
	}

	tally.Report(MissingMetric, "missing %s in %s", "updateDelay", "a.sca")
	tally.Report(MissingMetric, "missing %s in %s", "seqnoDelta", "a.sca")
	tally.Report(MalformedFile, "cannot read %s", "b.sca")
	tally.Add(InsufficientData)

	if got := tally.Count(MissingMetric); got != 2 {
		t.Errorf("MissingMetric = %d, want 2", got)
	}
	if got := tally.Count(MalformedFile); got != 1 {
		t.Errorf("MalformedFile = %d, want 1", got)
	}
	if len(lines) != 3 {
		t.Fatalf("logged %d lines, want 3", len(lines))
	}
	if lines[0] != "missing updateDelay in a.sca" {
		t.Errorf("first line = %q", lines[0])
	}

	cats := tally.Categories()
	want := []Category{InsufficientData, MalformedFile, MissingMetric}
	if len(cats) != len(want) {
		t.Fatalf("categories = %v, want %v", cats, want)
	}
	for i := range want {
		if cats[i] != want[i] {
			t.Errorf("categories[%d] = %s, want %s", i, cats[i], want[i])
		}
	}
}
