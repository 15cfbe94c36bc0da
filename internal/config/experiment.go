package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/banshee-data/vardis.report/internal/extract"
	"github.com/banshee-data/vardis.report/internal/scave"
	"github.com/banshee-data/vardis.report/internal/stats"
	"github.com/banshee-data/vardis.report/internal/sweep"
)

// maxFileSize caps experiment files read from disk.
const maxFileSize = 1 * 1024 * 1024 // 1MB

// Experiment describes one parameter sweep: which dimensions were varied,
// where the result files of each point live, which statistics to pull out
// of them and where the aggregates go.
type Experiment struct {
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`

	// Type is the record type the metrics are stored as: "statistic" or
	// "histogram".
	Type string `json:"type"`
	// Module is a template rendering the module selector for a point,
	// e.g. "**nodes[{{sub .node_cnt 1}}].application".
	Module string `json:"module"`
	// Files are templates of result file globs, relative to the results
	// directory. Matches of all templates are merged.
	Files []string `json:"files"`

	// Dimensions in iteration order; the last one varies fastest.
	Dimensions []Dimension `json:"dimensions"`
	// Columns is the output column order. Empty means iteration order.
	Columns []string `json:"columns,omitempty"`

	Metrics []Metric `json:"metrics"`

	// Positional adds the edge/center/intermediate breakdown for grid
	// topologies. GridDimension names the dimension holding the grid side.
	Positional    bool   `json:"positional,omitempty"`
	GridDimension string `json:"grid_dimension,omitempty"`

	MinSamples *int    `json:"min_samples,omitempty"`
	Formula    *string `json:"formula,omitempty"`
}

// Dimension is one swept parameter. Values is either a "min:max:step"
// integer range or a comma-separated list.
type Dimension struct {
	Name   string `json:"name"`
	Values string `json:"values"`
}

// Metric binds a metric kind to its result name and output tables.
type Metric struct {
	Kind string `json:"kind"`
	// Name is an OMNeT++ pattern for the result name, e.g. "updateDelay:stats".
	Name        string `json:"name"`
	ValueColumn string `json:"value_column"`
	File        string `json:"file"`
	// PositionalFile receives the per-position rows of positional experiments.
	PositionalFile string `json:"positional_file,omitempty"`
}

// LoadExperiment loads an Experiment from a JSON file.
// The file is validated to ensure it has a .json extension and is under the max file size.
func LoadExperiment(path string) (*Experiment, error) {
	cleanPath := filepath.Clean(path)
	if ext := filepath.Ext(cleanPath); ext != ".json" {
		return nil, fmt.Errorf("config file must have .json extension, got %q", ext)
	}

	fileInfo, err := os.Stat(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to stat config file: %w", err)
	}
	if fileInfo.Size() > maxFileSize {
		return nil, fmt.Errorf("config file too large: %d bytes (max %d)", fileInfo.Size(), maxFileSize)
	}

	data, err := os.ReadFile(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	return ParseExperiment(data)
}

// ParseExperiment decodes and validates an experiment definition.
func ParseExperiment(data []byte) (*Experiment, error) {
	exp := &Experiment{}
	if err := json.Unmarshal(data, exp); err != nil {
		return nil, fmt.Errorf("failed to parse config JSON: %w", err)
	}
	if err := exp.Validate(); err != nil {
		return nil, fmt.Errorf("invalid experiment %q: %w", exp.Name, err)
	}
	return exp, nil
}

// Validate checks that the experiment is complete and self-consistent.
func (e *Experiment) Validate() error {
	if e.Name == "" {
		return errors.New("name is required")
	}
	if _, err := e.recordType(); err != nil {
		return err
	}
	if e.Module == "" {
		return errors.New("module is required")
	}
	if len(e.Files) == 0 {
		return errors.New("at least one file pattern is required")
	}
	if len(e.Dimensions) == 0 {
		return errors.New("at least one dimension is required")
	}

	dims := make(map[string]bool, len(e.Dimensions))
	for _, d := range e.Dimensions {
		if d.Name == "" {
			return errors.New("dimension without name")
		}
		if dims[d.Name] {
			return fmt.Errorf("duplicate dimension %q", d.Name)
		}
		dims[d.Name] = true
	}
	if len(e.Columns) > 0 {
		if len(e.Columns) != len(e.Dimensions) {
			return fmt.Errorf("columns must list all %d dimensions, got %d", len(e.Dimensions), len(e.Columns))
		}
		seen := make(map[string]bool, len(e.Columns))
		for _, c := range e.Columns {
			if !dims[c] || seen[c] {
				return fmt.Errorf("column %q is not a dimension or repeated", c)
			}
			seen[c] = true
		}
	}

	if len(e.Metrics) == 0 {
		return errors.New("at least one metric is required")
	}
	files := make(map[string]bool)
	for _, m := range e.Metrics {
		if _, err := extract.ParseMetricKind(m.Kind); err != nil {
			return err
		}
		if m.Name == "" || m.ValueColumn == "" || m.File == "" {
			return fmt.Errorf("metric %s: name, value_column and file are required", m.Kind)
		}
		outputs := []string{m.File}
		if e.Positional {
			if m.PositionalFile == "" {
				return fmt.Errorf("metric %s: positional_file is required for positional experiments", m.Kind)
			}
			outputs = append(outputs, m.PositionalFile)
		}
		for _, f := range outputs {
			if !filepath.IsLocal(f) {
				return fmt.Errorf("output file %q must be a relative path inside the output directory", f)
			}
			if files[f] {
				return fmt.Errorf("output file %q used twice", f)
			}
			files[f] = true
		}
	}

	if e.Positional && !dims[e.GridDimension] {
		return fmt.Errorf("grid_dimension %q is not a dimension", e.GridDimension)
	}
	if e.MinSamples != nil && *e.MinSamples < 1 {
		return fmt.Errorf("min_samples must be at least 1, got %d", *e.MinSamples)
	}
	if _, err := stats.CombineFor(e.GetFormula()); err != nil {
		return err
	}
	return nil
}

// GetMinSamples returns the min_samples value or the default.
func (e *Experiment) GetMinSamples() int {
	if e.MinSamples == nil {
		return sweep.DefaultMinSamples
	}
	return *e.MinSamples
}

// GetFormula returns the formula value or the default.
func (e *Experiment) GetFormula() stats.Formula {
	if e.Formula == nil || *e.Formula == "" {
		return stats.FormulaLegacy
	}
	return stats.Formula(*e.Formula)
}

func (e *Experiment) recordType() (scave.Type, error) {
	switch t := scave.Type(e.Type); t {
	case scave.TypeStatistic, scave.TypeHistogram:
		return t, nil
	case "":
		return scave.TypeStatistic, nil
	default:
		return "", fmt.Errorf("type must be %q or %q, got %q", scave.TypeStatistic, scave.TypeHistogram, e.Type)
	}
}

// Plan resolves the experiment into a sweep plan.
func (e *Experiment) Plan() (*sweep.Plan, error) {
	if err := e.Validate(); err != nil {
		return nil, err
	}
	typ, _ := e.recordType()

	module, err := sweep.ParseTemplate(e.Module)
	if err != nil {
		return nil, fmt.Errorf("module: %w", err)
	}
	plan := &sweep.Plan{
		Name:          e.Name,
		Columns:       e.Columns,
		Module:        module,
		Types:         []scave.Type{typ},
		Positional:    e.Positional,
		GridDimension: e.GridDimension,
		MinSamples:    e.GetMinSamples(),
	}
	for _, d := range e.Dimensions {
		values, err := sweep.ParseValues(d.Values)
		if err != nil {
			return nil, fmt.Errorf("dimension %s: %w", d.Name, err)
		}
		if len(values) == 0 {
			return nil, fmt.Errorf("dimension %s has no values", d.Name)
		}
		plan.Dimensions = append(plan.Dimensions, sweep.Dimension{Name: d.Name, Values: values})
	}
	for _, m := range e.Metrics {
		kind, _ := extract.ParseMetricKind(m.Kind)
		name, err := scave.CompilePattern(m.Name)
		if err != nil {
			return nil, fmt.Errorf("metric %s: %w", m.Kind, err)
		}
		plan.Metrics = append(plan.Metrics, sweep.MetricSpec{Kind: kind, Name: name})
	}
	return plan, nil
}

// FilePatterns parses the result file templates.
func (e *Experiment) FilePatterns() ([]*sweep.Template, error) {
	out := make([]*sweep.Template, 0, len(e.Files))
	for _, f := range e.Files {
		t, err := sweep.ParseTemplate(f)
		if err != nil {
			return nil, fmt.Errorf("file pattern: %w", err)
		}
		out = append(out, t)
	}
	return out, nil
}

// Tables lists the output tables, whole-network table first for each metric.
func (e *Experiment) Tables() []sweep.TableSpec {
	var specs []sweep.TableSpec
	for _, m := range e.Metrics {
		kind := extract.MetricKind(m.Kind)
		specs = append(specs, sweep.TableSpec{
			TableKey:    sweep.TableKey{Metric: kind},
			File:        m.File,
			ValueColumn: m.ValueColumn,
		})
		if e.Positional {
			specs = append(specs, sweep.TableSpec{
				TableKey:    sweep.TableKey{Metric: kind, Positional: true},
				File:        m.PositionalFile,
				ValueColumn: m.ValueColumn,
			})
		}
	}
	return specs
}
