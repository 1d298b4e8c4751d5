package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadConfig_Defaults(t *testing.T) {
	cfg, err := LoadConfig(filepath.Join(t.TempDir(), "missing.yaml"))

	// An explicit but missing config file is an error; a missing implicit
	// one falls back to defaults. Exercise the implicit path from an empty
	// working directory.
	if err != nil {
		dir := t.TempDir()
		t.Chdir(dir)

		cfg, err = LoadConfig("")
	}

	require.NoError(t, err)

	assert.Equal(t, DefaultDateBins, cfg.DateBins)
	assert.True(t, cfg.FunctionCoverage)
	assert.False(t, cfg.BranchCoverage)
	assert.Equal(t, DefaultMaxMessageCount, cfg.MaxMessageCount)
	assert.Zero(t, cfg.Parallel)
}

func TestLoadConfig_FromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cfg.yaml")
	content := `baseline_file: base.info
diff_file: changes.diff
branch_coverage: true
date_bins: "1,10,100"
parallel: 3
ignore_errors:
  - empty
  - unused
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	cfg, err := LoadConfig(path)
	require.NoError(t, err)

	assert.Equal(t, "base.info", cfg.BaselineFile)
	assert.Equal(t, "changes.diff", cfg.DiffFile)
	assert.True(t, cfg.BranchCoverage)
	assert.Equal(t, 3, cfg.Parallel)
	assert.Equal(t, []string{"empty", "unused"}, cfg.IgnoreErrors)

	bins, err := cfg.ParsedDateBins()
	require.NoError(t, err)
	assert.Equal(t, []int{1, 10, 100}, bins)
}

func TestConfig_Validate(t *testing.T) {
	t.Parallel()

	valid := &Config{DateBins: "7,30,180"}
	require.NoError(t, valid.Validate())

	cases := []struct {
		name string
		cfg  Config
		want error
	}{
		{"descending bins", Config{DateBins: "30,7"}, ErrDateBins},
		{"duplicate bins", Config{DateBins: "7,7"}, ErrDateBins},
		{"garbage bins", Config{DateBins: "a,b"}, ErrDateBins},
		{"negative parallel", Config{Parallel: -1}, ErrNegativeOption},
		{"negative memory", Config{MemoryMB: -1}, ErrNegativeOption},
		{"baseline without diff", Config{BaselineFile: "b.info"}, ErrDiffRequired},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			assert.ErrorIs(t, tc.cfg.Validate(), tc.want)
		})
	}
}

func TestConfig_ParsedDateBins_Default(t *testing.T) {
	t.Parallel()

	cfg := &Config{}

	bins, err := cfg.ParsedDateBins()
	require.NoError(t, err)
	assert.Equal(t, []int{7, 30, 180}, bins)
}
