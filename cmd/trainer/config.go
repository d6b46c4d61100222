package main

import (
	"fmt"
	"os"

	"github.com/hashicorp/hcl/v2/gohcl"
	"github.com/hashicorp/hcl/v2/hclparse"

	"github.com/lox/holdem3cfr/internal/abstraction"
	"github.com/lox/holdem3cfr/internal/cfr"
)

// FileConfig is the HCL schema accepted via --config. Every attribute
// inside the training block is optional; omitted attributes keep their
// cfr.DefaultConfig values.
type FileConfig struct {
	Training TrainingBlock `hcl:"training,block"`
}

// TrainingBlock mirrors cfr.Config's tunables in HCL form.
type TrainingBlock struct {
	AbstractionLevel string  `hcl:"abstraction_level,optional"`
	StartingStack    float64 `hcl:"starting_stack,optional"`
	SmallBlind       float64 `hcl:"small_blind,optional"`
	BigBlind         float64 `hcl:"big_blind,optional"`
	MaxDepth         int     `hcl:"max_depth,optional"`
	MonteCarlo       bool    `hcl:"monte_carlo,optional"`
	PruneEvery       int     `hcl:"prune_every,optional"`
	PruneThreshold   float64 `hcl:"prune_threshold,optional"`
	ProgressEvery    int     `hcl:"progress_every,optional"`
	Seed             int64   `hcl:"seed,optional"`
	EquityTrials     int     `hcl:"equity_trials,optional"`
	EquityWorkers    int     `hcl:"equity_workers,optional"`
	Parallel         int     `hcl:"parallel,optional"`
}

// DefaultFileConfig mirrors cfr.DefaultConfig in HCL-block form.
func DefaultFileConfig() FileConfig {
	def := cfr.DefaultConfig()
	return FileConfig{Training: TrainingBlock{
		AbstractionLevel: def.Level.String(),
		StartingStack:    def.StartingStack,
		SmallBlind:       def.SmallBlind,
		BigBlind:         def.BigBlind,
		MaxDepth:         def.MaxDepth,
		MonteCarlo:       def.UseMonteCarlo,
		PruneEvery:       def.PruneEvery,
		PruneThreshold:   def.PruneThreshold,
		ProgressEvery:    def.ProgressEvery,
		Seed:             def.Seed,
		EquityTrials:     def.EquityTrials,
		EquityWorkers:    def.EquityWorkers,
		Parallel:         def.Parallel,
	}}
}

// LoadFileConfig reads and decodes an HCL config file, if path is
// non-empty and the file exists; otherwise it returns the defaults.
func LoadFileConfig(path string) (FileConfig, error) {
	def := DefaultFileConfig()
	if path == "" {
		return def, nil
	}
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return def, nil
	}

	parser := hclparse.NewParser()
	file, diags := parser.ParseHCLFile(path)
	if diags.HasErrors() {
		return def, fmt.Errorf("parse %s: %s", path, diags.Error())
	}

	cfg := def
	diags = gohcl.DecodeBody(file.Body, nil, &cfg)
	if diags.HasErrors() {
		return def, fmt.Errorf("decode %s: %s", path, diags.Error())
	}
	return cfg, nil
}

// ToSolverConfig resolves the HCL config into a cfr.Config, applying
// abstraction-level parsing.
func (c FileConfig) ToSolverConfig() (cfr.Config, error) {
	level, err := abstraction.ParseLevel(c.Training.AbstractionLevel)
	if err != nil {
		return cfr.Config{}, err
	}
	return cfr.Config{
		Level:          level,
		StartingStack:  c.Training.StartingStack,
		SmallBlind:     c.Training.SmallBlind,
		BigBlind:       c.Training.BigBlind,
		MaxDepth:       c.Training.MaxDepth,
		Epsilon:        1e-5,
		UseMonteCarlo:  c.Training.MonteCarlo,
		PruneEvery:     c.Training.PruneEvery,
		PruneThreshold: c.Training.PruneThreshold,
		ProgressEvery:  c.Training.ProgressEvery,
		Seed:           c.Training.Seed,
		EquityTrials:   c.Training.EquityTrials,
		EquityWorkers:  c.Training.EquityWorkers,
		Parallel:       c.Training.Parallel,
	}, nil
}
