// Command aggregate reads the result files of an OMNeT++ parameter sweep
// and writes one pooled statistic per sweep point and metric to CSV.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/banshee-data/vardis.report/internal/config"
	"github.com/banshee-data/vardis.report/internal/fsutil"
	"github.com/banshee-data/vardis.report/internal/monitoring"
	"github.com/banshee-data/vardis.report/internal/scave"
	"github.com/banshee-data/vardis.report/internal/stats"
	"github.com/banshee-data/vardis.report/internal/store"
	"github.com/banshee-data/vardis.report/internal/sweep"
	"github.com/banshee-data/vardis.report/internal/version"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, os.Args[1:], os.Stdout); err != nil {
		if errors.Is(err, context.Canceled) {
			log.Fatal("interrupted; rows written so far are complete")
		}
		log.Fatalf("aggregate: %v", err)
	}
}

type options struct {
	experiment string
	configPath string
	resultsDir string
	outDir     string
	formula    string
	minSamples int
	dbPath     string
	quiet      bool
	list       bool
	version    bool
}

func parseFlags(args []string, output io.Writer) (*options, error) {
	opts := &options{}
	fs := flag.NewFlagSet("aggregate", flag.ContinueOnError)
	fs.SetOutput(output)
	fs.StringVar(&opts.experiment, "experiment", "experiment1", "Built-in experiment to aggregate ("+strings.Join(config.BuiltinNames(), ", ")+")")
	fs.StringVar(&opts.configPath, "config", "", "Experiment definition JSON file (overrides -experiment)")
	fs.StringVar(&opts.resultsDir, "results", "results", "Directory holding the .sca result files")
	fs.StringVar(&opts.outDir, "out", ".", "Directory the CSV tables are written to")
	fs.StringVar(&opts.formula, "formula", "", "Combination formula: legacy or parallel (defaults to the experiment's)")
	fs.IntVar(&opts.minSamples, "min-samples", 0, "Minimum contributing runs per row (0 uses the experiment's)")
	fs.StringVar(&opts.dbPath, "db", "", "Also record rows in this SQLite database")
	fs.BoolVar(&opts.quiet, "quiet", false, "Suppress per-file diagnostics")
	fs.BoolVar(&opts.list, "list", false, "List built-in experiments and exit")
	fs.BoolVar(&opts.version, "version", false, "Print version and exit")
	if err := fs.Parse(args); err != nil {
		return nil, err
	}
	if fs.NArg() > 0 {
		return nil, fmt.Errorf("unexpected arguments: %v", fs.Args())
	}
	return opts, nil
}

func loadExperiment(opts *options) (*config.Experiment, error) {
	if opts.configPath != "" {
		return config.LoadExperiment(opts.configPath)
	}
	return config.Builtin(opts.experiment)
}

func run(ctx context.Context, args []string, stdout io.Writer) error {
	opts, err := parseFlags(args, stdout)
	if err != nil {
		return err
	}
	switch {
	case opts.version:
		fmt.Fprintf(stdout, "aggregate %s\n", version.String())
		return nil
	case opts.list:
		for _, name := range config.BuiltinNames() {
			fmt.Fprintln(stdout, name)
		}
		return nil
	}
	if opts.quiet {
		original := monitoring.Logf
		monitoring.SetLogger(nil)
		defer func() { monitoring.Logf = original }()
	}

	exp, err := loadExperiment(opts)
	if err != nil {
		return err
	}
	formula := exp.GetFormula()
	if opts.formula != "" {
		formula = stats.Formula(opts.formula)
	}
	combine, err := stats.CombineFor(formula)
	if err != nil {
		return err
	}
	plan, err := exp.Plan()
	if err != nil {
		return err
	}
	if opts.minSamples > 0 {
		plan.MinSamples = opts.minSamples
	}
	patterns, err := exp.FilePatterns()
	if err != nil {
		return err
	}

	fsys := fsutil.OSFileSystem{}
	csvw, err := sweep.OpenCSVWriter(fsys, opts.outDir, plan.OutputColumns(), exp.Tables())
	if err != nil {
		return err
	}
	writers := sweep.MultiWriter{csvw}

	if opts.dbPath != "" {
		st, err := store.Open(opts.dbPath)
		if err != nil {
			return errors.Join(err, csvw.Close())
		}
		defer st.Close()
		job, err := st.BeginJob(exp.Name, formula, plan.OutputColumns())
		if err != nil {
			return errors.Join(err, csvw.Close())
		}
		writers = append(writers, job)
		monitoring.Logf("recording job %s in %s", job.ID, opts.dbPath)
	}

	tally := &monitoring.Tally{}
	orch := &sweep.Orchestrator{
		Plan:    plan,
		Locator: &sweep.Locator{FS: fsys, Dir: opts.resultsDir, Patterns: patterns},
		Reader:  scave.NewFileReader(fsys),
		Writer:  writers,
		Combine: combine,
		Tally:   tally,
	}

	start := time.Now()
	sum, runErr := orch.Run(ctx)
	printSummary(stdout, exp.Name, formula, sum, tally, time.Since(start))

	if runErr != nil {
		// An interrupted job stays unfinished in the database.
		return errors.Join(runErr, csvw.Close())
	}
	return writers.Close()
}

func printSummary(w io.Writer, name string, formula stats.Formula, sum sweep.Summary, tally *monitoring.Tally, elapsed time.Duration) {
	fmt.Fprintf(w, "%s (%s): %s points, %s files read in %s\n",
		name, formula, humanize.Comma(int64(sum.Points)), humanize.Comma(int64(sum.Files)), elapsed.Round(time.Millisecond))
	fmt.Fprintf(w, "rows written: %s, dropped for insufficient data: %s\n",
		humanize.Comma(int64(sum.RowsWritten)), humanize.Comma(int64(sum.Dropped)))
	for _, c := range tally.Categories() {
		fmt.Fprintf(w, "  %-18s %s\n", c, humanize.Comma(int64(tally.Count(c))))
	}
}
