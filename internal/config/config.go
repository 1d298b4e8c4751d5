// Package config defines the deltacov configuration and its viper-backed
// loader.
package config

import (
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"
)

// Defaults for the resource and diagnostic knobs.
const (
	// DefaultDateBins are the age cutpoints in days.
	DefaultDateBins = "7,30,180"

	// DefaultMaxMessageCount caps printed diagnostics per kind.
	DefaultMaxMessageCount = 100

	// DefaultParallel of 0 selects host concurrency.
	DefaultParallel = 0

	// DefaultMemoryMB of 0 leaves the worker RSS uncapped.
	DefaultMemoryMB = 0
)

// Validation errors.
var (
	// ErrDateBins indicates a malformed or non-increasing cutpoint list.
	ErrDateBins = errors.New("date_bins must be a strictly increasing list of day counts")

	// ErrNegativeOption indicates a resource knob below zero.
	ErrNegativeOption = errors.New("option must not be negative")

	// ErrDiffRequired indicates differential mode without a diff file.
	ErrDiffRequired = errors.New("baseline_file requires diff_file")
)

// Config is the top-level configuration. Field tags use mapstructure for
// viper unmarshalling; keys match the recognized option table.
type Config struct {
	// BaselineFile enables differential mode; requires DiffFile.
	BaselineFile string `mapstructure:"baseline_file"`

	// DiffFile is the unified diff between baseline and current sources.
	DiffFile string `mapstructure:"diff_file"`

	// AnnotateScript is the external annotator command line.
	AnnotateScript string `mapstructure:"annotate_script"`

	// CriteriaScript is the external criteria predicate command line.
	CriteriaScript string `mapstructure:"criteria_script"`

	// VersionScript is the per-file version check command line.
	VersionScript string `mapstructure:"version_script"`

	// DateBins is the comma-separated list of age cutpoints in days.
	DateBins string `mapstructure:"date_bins"`

	FunctionCoverage bool `mapstructure:"function_coverage"`
	BranchCoverage   bool `mapstructure:"branch_coverage"`

	// Hierarchical selects the multi-level tree over the two-level view.
	Hierarchical bool `mapstructure:"hierarchical"`

	ElidePathMismatch bool `mapstructure:"elide_path_mismatch"`
	NewFileAsBaseline bool `mapstructure:"new_file_as_baseline"`

	// Parallel is the worker count ceiling; 0 means host concurrency.
	Parallel int `mapstructure:"parallel"`

	// MemoryMB is the soft worker RSS cap in MB; 0 means uncapped.
	MemoryMB int `mapstructure:"memory"`

	// Strip is the number of leading components stripped from diff paths.
	Strip int `mapstructure:"strip"`

	OmitLines  []string `mapstructure:"omit_lines"`
	Exclude    []string `mapstructure:"exclude"`
	Include    []string `mapstructure:"include"`
	Substitute []string `mapstructure:"substitute"`

	// Filter lists the enabled post-ingest filters.
	Filter []string `mapstructure:"filter"`

	// StopOnError promotes every diagnostic to fatal.
	StopOnError bool `mapstructure:"stop_on_error"`

	// IgnoreErrors lists diagnostic kinds to silence.
	IgnoreErrors []string `mapstructure:"ignore_errors"`

	// MaxMessageCount caps printed diagnostics per kind; 0 is unlimited.
	MaxMessageCount int `mapstructure:"max_message_count"`

	// Preserve keeps the temp-directory dumps and logs after the run.
	Preserve bool `mapstructure:"preserve"`

	// NoColor disables colored diagnostics.
	NoColor bool `mapstructure:"no_color"`
}

// Validate checks cross-field consistency.
func (c *Config) Validate() error {
	if _, err := c.ParsedDateBins(); err != nil {
		return err
	}

	if c.Parallel < 0 {
		return fmt.Errorf("%w: parallel=%d", ErrNegativeOption, c.Parallel)
	}

	if c.MemoryMB < 0 {
		return fmt.Errorf("%w: memory=%d", ErrNegativeOption, c.MemoryMB)
	}

	if c.Strip < 0 {
		return fmt.Errorf("%w: strip=%d", ErrNegativeOption, c.Strip)
	}

	if c.BaselineFile != "" && c.DiffFile == "" {
		return ErrDiffRequired
	}

	return nil
}

// ParsedDateBins parses the cutpoint list and enforces strict ascent.
func (c *Config) ParsedDateBins() ([]int, error) {
	spec := c.DateBins
	if spec == "" {
		spec = DefaultDateBins
	}

	var bins []int

	for _, field := range strings.Split(spec, ",") {
		value, err := strconv.Atoi(strings.TrimSpace(field))
		if err != nil {
			return nil, fmt.Errorf("%w: %q", ErrDateBins, spec)
		}

		bins = append(bins, value)
	}

	if !sort.IntsAreSorted(bins) {
		return nil, fmt.Errorf("%w: %q", ErrDateBins, spec)
	}

	for i := 1; i < len(bins); i++ {
		if bins[i] == bins[i-1] {
			return nil, fmt.Errorf("%w: %q", ErrDateBins, spec)
		}
	}

	return bins, nil
}
