package main

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"runtime"
	"slices"
	"strings"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/jamesainslie/mus/cmd/mus/tui"
	"github.com/jamesainslie/mus/pkg/mus/catalog"
	"github.com/jamesainslie/mus/pkg/mus/config"
	"github.com/jamesainslie/mus/pkg/mus/digest"
	"github.com/jamesainslie/mus/pkg/mus/engine"
	"github.com/jamesainslie/mus/pkg/mus/filter"
	"github.com/jamesainslie/mus/pkg/mus/history"
	"github.com/jamesainslie/mus/pkg/mus/logging"
	"github.com/jamesainslie/mus/pkg/mus/manifest"
	"github.com/jamesainslie/mus/pkg/mus/output"
	"github.com/jamesainslie/mus/pkg/mus/tuner"
	"github.com/jamesainslie/mus/pkg/mus/types"
)

// Exit codes.
const (
	exitFatal       = 1
	exitFailures    = 2
	exitIntegrity   = 3
	exitInterrupted = 130
)

// errRunFailed reports a run where at least one file did not verify or could
// not be hashed.
var errRunFailed = errors.New("one or more files failed")

// reportedError carries an exit code for an error the report already shows.
type reportedError struct {
	code int
	err  error
}

func (e *reportedError) Error() string { return e.err.Error() }
func (e *reportedError) Unwrap() error { return e.err }

// isSilent reports whether err has already been shown to the user.
func isSilent(err error) bool {
	var re *reportedError
	return errors.As(err, &re)
}

// exitCode maps a command error to the process exit status.
func exitCode(err error) int {
	var re *reportedError
	if errors.As(err, &re) {
		return re.code
	}

	var ie *manifest.IntegrityError
	switch {
	case errors.As(err, &ie):
		return exitIntegrity
	case errors.Is(err, context.Canceled):
		return exitInterrupted
	default:
		return exitFatal
	}
}

// runPlan is what a command line asks for.
type runPlan struct {
	mode   types.Mode
	inputs []string

	// dest is the manifest to write. It is empty when derived with -a.
	dest string
	auto bool
}

func planRun(args []string, verify, auto bool) (runPlan, error) {
	switch {
	case verify && auto:
		return runPlan{}, errors.New("--auto cannot be combined with --verify")
	case verify:
		return runPlan{mode: types.ModeVerify, inputs: args}, nil
	case auto:
		return runPlan{mode: types.ModeGenerate, inputs: args, auto: true}, nil
	case len(args) < 2:
		return runPlan{}, errors.New("generation needs the paths to hash followed by the manifest file (or use -a)")
	}

	dest := args[len(args)-1]
	if info, err := os.Stat(dest); err == nil && info.IsDir() {
		return runPlan{}, fmt.Errorf("manifest file %s is a directory", dest)
	}
	return runPlan{mode: types.ModeGenerate, inputs: args[:len(args)-1], dest: dest}, nil
}

// resolveTuning picks the worker count and read buffer. Explicit settings win;
// otherwise the CLI sizes from the hardware and the TUI uses one worker.
func resolveTuning(workers, buffer int, interactive bool) tuner.OptimalConfig {
	res, err := tuner.Detect()
	if err != nil {
		logging.Get("cli").Warn("resource detection failed", "error", err)
		res = tuner.SystemResources{CPUCores: runtime.NumCPU()}
	}

	if workers <= 0 && interactive {
		workers = 1
	}
	return tuner.CalculateWithOverrides(res, workers, buffer)
}

// runChecksum generates or verifies a manifest.
func runChecksum(cmd *cobra.Command, args []string) error {
	logger := logging.Get("cli")

	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	verify, _ := cmd.Flags().GetBool("verify")
	auto, _ := cmd.Flags().GetBool("auto")
	plan, err := planRun(args, verify, auto)
	if err != nil {
		return err
	}

	alg, err := cfg.DigestAlgorithm()
	if err != nil {
		return err
	}
	buffer, err := cfg.BufferBytes()
	if err != nil {
		return err
	}
	exclude, err := filter.New(filter.WithExclude(cfg.Exclude...))
	if err != nil {
		return fmt.Errorf("invalid exclude pattern: %w", err)
	}

	formatter, err := output.Get(viper.GetString("output"))
	if err != nil {
		return err
	}
	if tf, ok := formatter.(*output.TemplateFormatter); ok && viper.GetString("template") != "" {
		tf.SetTemplate(viper.GetString("template"))
	}

	interactive := viper.GetBool("tui")
	tuning := resolveTuning(cfg.Workers, buffer, interactive)
	printVerbose("Workers: %d, buffer: %s, algorithm: %s", tuning.Workers, types.FormatSize(int64(tuning.BufferSize)), alg)

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var (
		view     *tui.View
		line     *progress
		listener engine.Listener = engine.ListenerFuncs{}
	)
	switch {
	case interactive:
		view = tui.New(tui.Options{Title: "mus: " + describeRun(plan)})
		listener = view
	case !getQuiet():
		line = newProgress(os.Stderr)
		listener = line
	}

	opts := []engine.Option{
		engine.WithAlgorithm(alg),
		engine.WithBufferSize(tuning.BufferSize),
		engine.WithManifestExtension(cfg.Manifest.Extension),
		engine.WithFilter(exclude),
		engine.WithListener(listener),
	}

	var eng *engine.Engine
	if plan.mode == types.ModeVerify {
		eng = engine.ForManifests(plan.inputs, opts...)
	} else {
		eng = engine.ForFiles(plan.inputs, opts...)
	}

	logger.Info("run started", "mode", plan.mode, "inputs", plan.inputs, "workers", tuning.Workers)

	var runErr error
	if view != nil {
		runErr = view.Run(ctx, eng, tuning.Workers)
	} else {
		if line != nil {
			line.attach(eng.Status)
		}
		runErr = eng.Run(ctx, tuning.Workers)
		if line != nil {
			line.finish()
		}
	}

	entry := &history.Entry{
		Operation: history.OperationFor(plan.mode),
		Inputs:    absPaths(plan.inputs),
		Algorithm: alg.String(),
		Workers:   tuning.Workers,
		Status:    eng.Status(),
	}
	defer func() { recordHistory(cfg, entry) }()

	interrupted := errors.Is(runErr, context.Canceled)
	var integrity *manifest.IntegrityError
	if runErr != nil && !interrupted && !errors.As(runErr, &integrity) {
		entry.Error = runErr.Error()
		return runErr
	}

	report := output.NewReport(eng.Catalog(), eng.Status())
	report.Interrupted = interrupted
	if mErr := eng.ManifestErr(); mErr != nil {
		report.Warnings = append(report.Warnings, mErr.Error())
	}

	if plan.mode == types.ModeVerify {
		report.Manifest = eng.Manifests()
		report.Algorithm = verifiedAlgorithms(eng.Catalog())
		entry.Manifest = strings.Join(report.Manifest, ", ")
		entry.Algorithm = report.Algorithm
	} else {
		report.Algorithm = alg.String()
	}

	if plan.mode == types.ModeGenerate && runErr == nil && !interrupted {
		dest, err := writeManifest(cfg, plan, eng.Catalog(), alg)
		if err != nil {
			entry.Error = err.Error()
			return err
		}
		report.Manifest = []string{dest}
		entry.Manifest = dest
	}

	entry.Failures = failuresOf(eng.Catalog())

	if err := renderReport(formatter, report); err != nil {
		return err
	}

	switch {
	case interrupted:
		entry.Error = "interrupted"
		return &reportedError{code: exitInterrupted, err: runErr}
	case report.Status.DoneKO > 0:
		return &reportedError{code: exitFailures, err: errRunFailed}
	case runErr != nil || report.Warnings != nil:
		if runErr == nil {
			runErr = eng.ManifestErr()
		}
		entry.Error = runErr.Error()
		return &reportedError{code: exitIntegrity, err: runErr}
	}
	return nil
}

// writeManifest writes the generated catalog and returns the manifest path.
func writeManifest(cfg *config.Config, plan runPlan, cat *catalog.Catalog, alg digest.Algorithm) (string, error) {
	dest := plan.dest
	if plan.auto {
		dest = filepath.Join(cat.CommonAncestor(), cat.SuggestedManifestName(cfg.Manifest.Extension))
	}

	printInfo("Writing %s", dest)
	enc := manifest.Encoder{Algorithm: alg, Header: cfg.Manifest.Header}
	if err := manifest.WriteFile(dest, cat, enc); err != nil {
		return "", fmt.Errorf("failed to write manifest: %w", err)
	}
	return dest, nil
}

// renderReport writes the report to stdout. The pretty report is skipped in
// quiet mode; machine-readable formats are always written.
func renderReport(formatter output.Formatter, report *output.Report) error {
	if getQuiet() && viper.GetString("output") == "pretty" {
		return nil
	}

	var buf bytes.Buffer
	if err := formatter.Format(&buf, report); err != nil {
		return fmt.Errorf("failed to format report: %w", err)
	}
	_, err := os.Stdout.Write(buf.Bytes())
	return err
}

// recordHistory stores the run. History problems never fail the run.
func recordHistory(cfg *config.Config, entry *history.Entry) {
	if viper.GetBool("no_history") || !cfg.History.Enabled {
		return
	}

	logger := logging.Get("history")
	store, err := history.Open(cfg.HistoryPath())
	if err != nil {
		logger.Warn("history unavailable", "error", err)
		return
	}
	defer func() { _ = store.Close() }()

	if err := store.Record(entry); err != nil {
		logger.Warn("failed to record run", "error", err)
		return
	}
	printVerbose("Recorded run %s", entry.ID)

	if n, err := store.CleanRetention(cfg.History.RetentionDays); err != nil {
		logger.Warn("history cleanup failed", "error", err)
	} else if n > 0 {
		logger.Debug("history cleaned", "removed", n)
	}
}

func failuresOf(cat *catalog.Catalog) []history.Failure {
	var out []history.Failure
	for _, rec := range cat.Failures() {
		out = append(out, history.Failure{Path: rec.Path, Cause: rec.Err})
	}
	return out
}

// verifiedAlgorithms names the algorithms implied by the expected digests.
func verifiedAlgorithms(cat *catalog.Catalog) string {
	var names []string
	for _, rec := range cat.Records() {
		alg, ok := digest.ForDigest(rec.Expected)
		if !ok || slices.Contains(names, alg.String()) {
			continue
		}
		names = append(names, alg.String())
	}
	slices.Sort(names)
	return strings.Join(names, ", ")
}

func absPaths(paths []string) []string {
	out := make([]string, 0, len(paths))
	for _, p := range paths {
		if abs, err := filepath.Abs(p); err == nil {
			p = abs
		}
		out = append(out, p)
	}
	return out
}

func describeRun(plan runPlan) string {
	verb := "generating"
	if plan.mode == types.ModeVerify {
		verb = "verifying"
	}
	if len(plan.inputs) == 1 {
		return verb + " " + plan.inputs[0]
	}
	return fmt.Sprintf("%s %d paths", verb, len(plan.inputs))
}
