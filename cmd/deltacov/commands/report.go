// Package commands implements the CLI command handlers for deltacov.
package commands

import (
	"errors"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/Sumatoshi-tech/deltacov/internal/config"
	"github.com/Sumatoshi-tech/deltacov/internal/engine"
)

// Exit codes. The criteria status dominates: a failed criterion forces a
// non-zero exit even when every file rendered.
const (
	ExitOK       = 0
	ExitFatal    = 1
	ExitCriteria = 2
)

// ReportCommand holds the flag state of the report command.
type ReportCommand struct {
	configFile string
	verbose    bool
	quiet      bool

	baselineFile      string
	diffFile          string
	annotateScript    string
	criteriaScript    string
	versionScript     string
	dateBins          string
	branchCoverage    bool
	functionCoverage  bool
	hierarchical      bool
	elidePathMismatch bool
	newFileAsBaseline bool
	parallel          int
	memoryMB          int
	strip             int
	include           []string
	exclude           []string
	substitute        []string
	omitLines         []string
	filter            []string
	stopOnError       bool
	ignoreErrors      []string
	maxMessageCount   int
	preserve          bool
	noColor           bool
}

// NewReportCommand builds the report command, the tool's root behavior: one
// invocation processes one input set and terminates.
func NewReportCommand() *cobra.Command {
	rc := &ReportCommand{}

	cmd := &cobra.Command{
		Use:   "deltacov [flags] <tracefile>...",
		Short: "Render a differential code-coverage report from coverage traces",
		Long: "deltacov categorizes every line, branch and function coverpoint " +
			"against a source change and a baseline trace, aggregates the " +
			"categories up the directory tree, and emits the report model.",
		Args:          cobra.ArbitraryArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return rc.run(cmd, args)
		},
	}

	rc.bindFlags(cmd)

	return cmd
}

func (rc *ReportCommand) bindFlags(cmd *cobra.Command) {
	flags := cmd.Flags()

	flags.StringVar(&rc.configFile, "config", "", "explicit config file path")
	flags.BoolVarP(&rc.verbose, "verbose", "v", false, "debug logging")
	flags.BoolVarP(&rc.quiet, "quiet", "q", false, "errors only")

	flags.StringVar(&rc.baselineFile, "baseline-file", "", "baseline trace; enables differential mode")
	flags.StringVar(&rc.diffFile, "diff-file", "", "unified diff between baseline and current sources")
	flags.StringVar(&rc.annotateScript, "annotate-script", "", "external annotator command")
	flags.StringVar(&rc.criteriaScript, "criteria-script", "", "external criteria predicate command")
	flags.StringVar(&rc.versionScript, "version-script", "", "per-file version check command")
	flags.StringVar(&rc.dateBins, "date-bins", config.DefaultDateBins, "age cutpoints in days")
	flags.BoolVar(&rc.branchCoverage, "branch-coverage", false, "enable branch coverage")
	flags.BoolVar(&rc.functionCoverage, "function-coverage", true, "enable function coverage")
	flags.BoolVar(&rc.hierarchical, "hierarchical", false, "multi-level directory tree")
	flags.BoolVar(&rc.elidePathMismatch, "elide-path-mismatch", false, "re-key unambiguous basename-only diff matches")
	flags.BoolVar(&rc.newFileAsBaseline, "new-file-as-baseline", false, "treat old unmeasured files as baseline")
	flags.IntVarP(&rc.parallel, "parallel", "j", config.DefaultParallel, "worker ceiling; 0 = host concurrency")
	flags.IntVar(&rc.memoryMB, "memory", config.DefaultMemoryMB, "soft RSS cap in MB; 0 = uncapped")
	flags.IntVar(&rc.strip, "strip", 0, "leading path components stripped from diff entries")
	flags.StringSliceVar(&rc.include, "include", nil, "include glob patterns")
	flags.StringSliceVar(&rc.exclude, "exclude", nil, "exclude glob patterns")
	flags.StringSliceVar(&rc.substitute, "substitute", nil, "s/from/to/ path rewrites")
	flags.StringSliceVar(&rc.omitLines, "omit-lines", nil, "drop coverage on matching source lines")
	flags.StringSliceVar(&rc.filter, "filter", nil, "post-ingest filters (brace, blank, branch_no_cond, function_alias)")
	flags.BoolVar(&rc.stopOnError, "stop-on-error", false, "treat every diagnostic as fatal")
	flags.StringSliceVar(&rc.ignoreErrors, "ignore-errors", nil, "diagnostic kinds to silence")
	flags.IntVar(&rc.maxMessageCount, "max-message-count", config.DefaultMaxMessageCount, "printed diagnostics per kind")
	flags.BoolVar(&rc.preserve, "preserve", false, "keep temp-directory dumps and logs")
	flags.BoolVar(&rc.noColor, "no-color", false, "disable colored diagnostics")
}

// run resolves configuration (file and environment first, flags win), then
// hands off to the engine.
func (rc *ReportCommand) run(cmd *cobra.Command, args []string) error {
	cfg, err := config.LoadConfig(rc.configFile)
	if err != nil {
		return err
	}

	rc.overrideFromFlags(cmd, cfg)

	if err := cfg.Validate(); err != nil {
		return err
	}

	logger := rc.newLogger()

	reporter, err := engine.NewReporter(cfg, logger)
	if err != nil {
		return err
	}

	eng := &engine.Engine{
		Config:   cfg,
		Logger:   logger,
		Reporter: reporter,
	}

	return eng.Run(cmd.Context(), args)
}

// overrideFromFlags copies explicitly set flags over the loaded config.
func (rc *ReportCommand) overrideFromFlags(cmd *cobra.Command, cfg *config.Config) {
	set := cmd.Flags().Changed

	if set("baseline-file") {
		cfg.BaselineFile = rc.baselineFile
	}

	if set("diff-file") {
		cfg.DiffFile = rc.diffFile
	}

	if set("annotate-script") {
		cfg.AnnotateScript = rc.annotateScript
	}

	if set("criteria-script") {
		cfg.CriteriaScript = rc.criteriaScript
	}

	if set("version-script") {
		cfg.VersionScript = rc.versionScript
	}

	if set("date-bins") {
		cfg.DateBins = rc.dateBins
	}

	if set("branch-coverage") {
		cfg.BranchCoverage = rc.branchCoverage
	}

	if set("function-coverage") {
		cfg.FunctionCoverage = rc.functionCoverage
	}

	if set("hierarchical") {
		cfg.Hierarchical = rc.hierarchical
	}

	if set("elide-path-mismatch") {
		cfg.ElidePathMismatch = rc.elidePathMismatch
	}

	if set("new-file-as-baseline") {
		cfg.NewFileAsBaseline = rc.newFileAsBaseline
	}

	if set("parallel") {
		cfg.Parallel = rc.parallel
	}

	if set("memory") {
		cfg.MemoryMB = rc.memoryMB
	}

	if set("strip") {
		cfg.Strip = rc.strip
	}

	if set("include") {
		cfg.Include = rc.include
	}

	if set("exclude") {
		cfg.Exclude = rc.exclude
	}

	if set("substitute") {
		cfg.Substitute = rc.substitute
	}

	if set("omit-lines") {
		cfg.OmitLines = rc.omitLines
	}

	if set("filter") {
		cfg.Filter = rc.filter
	}

	if set("stop-on-error") {
		cfg.StopOnError = rc.stopOnError
	}

	if set("ignore-errors") {
		cfg.IgnoreErrors = rc.ignoreErrors
	}

	if set("max-message-count") {
		cfg.MaxMessageCount = rc.maxMessageCount
	}

	if set("preserve") {
		cfg.Preserve = rc.preserve
	}

	if set("no-color") {
		cfg.NoColor = rc.noColor
	}
}

func (rc *ReportCommand) newLogger() *slog.Logger {
	level := slog.LevelInfo

	switch {
	case rc.verbose:
		level = slog.LevelDebug
	case rc.quiet:
		level = slog.LevelError
	}

	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
}

// ExitCode maps a run error onto the process exit code.
func ExitCode(err error) int {
	switch {
	case err == nil:
		return ExitOK
	case errors.Is(err, engine.ErrCriteriaFailed):
		return ExitCriteria
	default:
		return ExitFatal
	}
}
