package main

import (
	"fmt"
	"os"

	"github.com/alecthomas/kong"
	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/log"

	"github.com/lox/holdem3cfr/internal/cfr"
)

var titleStyle = lipgloss.NewStyle().
	Foreground(lipgloss.Color("#FAFAFA")).
	Background(lipgloss.Color("#7D56F4")).
	Padding(0, 1)

var statStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#7D56F4"))

var cli struct {
	Debug  bool   `help:"enable debug logging"`
	Config string `help:"path to an HCL training config file"`

	Train          TrainCmd          `cmd:"" help:"run CFR training and write a blueprint"`
	Resume         ResumeCmd         `cmd:"" help:"resume CFR training from a saved blueprint"`
	ExportStrategy ExportStrategyCmd `cmd:"" help:"export a saved blueprint as human-readable text"`
	ExportRFI      ExportRFICmd      `cmd:"" help:"export raise-first-in ranges for a seat"`
}

// TrainCmd trains a fresh blueprint from scratch and saves it.
type TrainCmd struct {
	Out        string `help:"base path to write the blueprint (writes .regret, .current, .sum)" required:""`
	Iterations int    `help:"number of CFR iterations to run" default:"10000"`
}

// ResumeCmd loads a previously saved blueprint and continues training it.
type ResumeCmd struct {
	Blueprint  string `help:"base path of the blueprint to resume" required:""`
	Out        string `help:"base path to write the updated blueprint (defaults to --blueprint)"`
	Iterations int    `help:"number of additional CFR iterations to run" default:"10000"`
}

// ExportStrategyCmd writes a saved blueprint's average strategy as text.
type ExportStrategyCmd struct {
	Blueprint string `help:"base path of the blueprint to export" required:""`
	Out       string `help:"path to write the exported text; defaults to stdout"`
}

// ExportRFICmd writes raise-first-in frequencies for one seat's preflop buckets.
type ExportRFICmd struct {
	Blueprint string `help:"base path of the blueprint to export" required:""`
	Seat      string `help:"seat to report on (sb|bb|btn)" default:"btn"`
	Out       string `help:"path to write the exported text; defaults to stdout"`
}

func main() {
	ctx := kong.Parse(&cli,
		kong.Name("trainer"),
		kong.Description("Three-player no-limit hold'em CFR trainer"),
		kong.UsageOnError(),
	)

	logger := setupLogger(cli.Debug)

	var err error
	switch ctx.Command() {
	case "train":
		err = cli.Train.Run(logger)
	case "resume":
		err = cli.Resume.Run(logger)
	case "export-strategy":
		err = cli.ExportStrategy.Run(logger)
	case "export-rfi":
		err = cli.ExportRFI.Run(logger)
	default:
		logger.Fatal("unknown command", "command", ctx.Command())
	}
	if err != nil {
		logger.Fatal(ctx.Command()+" failed", "err", err)
	}
}

func setupLogger(debug bool) *log.Logger {
	level := log.InfoLevel
	if debug {
		level = log.DebugLevel
	}
	logger := log.NewWithOptions(os.Stderr, log.Options{
		ReportTimestamp: true,
		Level:           level,
	})
	log.SetDefault(logger)
	return logger
}

func newSolver(logger *log.Logger) (*cfr.Solver, error) {
	fileCfg, err := LoadFileConfig(cli.Config)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	solverCfg, err := fileCfg.ToSolverConfig()
	if err != nil {
		return nil, fmt.Errorf("resolve config: %w", err)
	}
	solver := cfr.NewSolver(solverCfg,
		cfr.WithLogger(logger),
		cfr.WithProgressFunc(func(stats cfr.TrainingStats) {
			logger.Info("training progress",
				"iterations", stats.Iterations,
				"info_sets", stats.InfoSetCount,
				"last_iter", stats.LastIterationWallTime,
				"total", stats.TotalWallTime,
			)
		}),
	)
	return solver, nil
}

func (cmd *TrainCmd) Run(logger *log.Logger) error {
	solver, err := newSolver(logger)
	if err != nil {
		return err
	}

	logger.Info(titleStyle.Render("training started"), "iterations", cmd.Iterations)
	if err := solver.Train(cmd.Iterations); err != nil {
		return err
	}

	if err := solver.Save(cmd.Out); err != nil {
		return err
	}

	stats := solver.Stats()
	logger.Info(titleStyle.Render("training complete"),
		"info_sets", statStyle.Render(fmt.Sprintf("%d", stats.InfoSetCount)),
		"total_time", stats.TotalWallTime,
		"out", cmd.Out,
	)
	return nil
}

func (cmd *ResumeCmd) Run(logger *log.Logger) error {
	solver, err := newSolver(logger)
	if err != nil {
		return err
	}

	if err := solver.Load(cmd.Blueprint); err != nil {
		return err
	}
	logger.Info("resumed blueprint", "path", cmd.Blueprint, "info_sets", solver.Regrets().Size())

	out := cmd.Out
	if out == "" {
		out = cmd.Blueprint
	}

	logger.Info(titleStyle.Render("training resumed"), "iterations", cmd.Iterations)
	if err := solver.Train(cmd.Iterations); err != nil {
		return err
	}

	if err := solver.Save(out); err != nil {
		return err
	}

	stats := solver.Stats()
	logger.Info(titleStyle.Render("training complete"),
		"info_sets", statStyle.Render(fmt.Sprintf("%d", stats.InfoSetCount)),
		"total_time", stats.TotalWallTime,
		"out", out,
	)
	return nil
}

func (cmd *ExportStrategyCmd) Run(logger *log.Logger) error {
	solver, err := newSolver(logger)
	if err != nil {
		return err
	}
	if err := solver.Load(cmd.Blueprint); err != nil {
		return err
	}

	w, closeFn, err := openOutput(cmd.Out)
	if err != nil {
		return err
	}
	defer closeFn()

	return solver.WriteHumanReadable(w)
}

func (cmd *ExportRFICmd) Run(logger *log.Logger) error {
	solver, err := newSolver(logger)
	if err != nil {
		return err
	}
	if err := solver.Load(cmd.Blueprint); err != nil {
		return err
	}

	seat, err := parseSeat(cmd.Seat)
	if err != nil {
		return err
	}

	w, closeFn, err := openOutput(cmd.Out)
	if err != nil {
		return err
	}
	defer closeFn()

	return solver.ExportRFIRanges(w, seat)
}

func openOutput(path string) (*os.File, func(), error) {
	if path == "" {
		return os.Stdout, func() {}, nil
	}
	f, err := os.Create(path)
	if err != nil {
		return nil, nil, fmt.Errorf("create %s: %w", path, err)
	}
	return f, func() { f.Close() }, nil
}
