package main

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"foamsynth/internal/logging"
	"foamsynth/pkg/config"
	"foamsynth/pkg/synthesis"
)

// RootOptions holds global flags for all commands
type RootOptions struct {
	Verbose    bool
	ConfigPath string
}

// NewRootCommand creates the root command for the foamsynth CLI
func NewRootCommand() *cobra.Command {
	opts := &RootOptions{}

	cmd := &cobra.Command{
		Use:   "foamsynth",
		Short: "Synthetic foam microstructure generator",
		Long: `foamsynth packs statistically generated features into a voxel volume,
labels every voxel and thins the result into a strut network.`,
		SilenceUsage: true,
	}

	cmd.PersistentFlags().BoolVarP(&opts.Verbose, "verbose", "v", false, "verbose output")
	cmd.PersistentFlags().StringVarP(&opts.ConfigPath, "config", "c", "foamsynth.yaml", "configuration file")

	cmd.AddCommand(NewRunCommand(opts))
	cmd.AddCommand(NewInitConfigCommand(opts))

	return cmd
}

// RunOptions holds flags for the run command
type RunOptions struct {
	*RootOptions
	Seed         uint64
	Cores        int
	OutputDir    string
	Periodic     bool
	FeatureIds   string
	CsvFile      string
	StlFile      string
	Charts       bool
	ExtractSlice bool
}

// NewRunCommand creates the run command
func NewRunCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &RunOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Synthesize a foam volume",
		Long: `Run the full synthesis described by the configuration file. Flags given
on the command line override the file.

Example:
  foamsynth run -c foam.yaml --seed 42 --csv goal_attributes.csv
  foamsynth run --feature-ids labels.raw --stl struts.stl`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSynthesis(cmd, opts)
		},
	}

	cmd.Flags().Uint64Var(&opts.Seed, "seed", 0, "random seed (0 picks a time-based seed)")
	cmd.Flags().IntVar(&opts.Cores, "cores", 0, "number of CPU cores to use")
	cmd.Flags().StringVarP(&opts.OutputDir, "output", "o", "", "output directory")
	cmd.Flags().BoolVar(&opts.Periodic, "periodic", false, "wrap features across the domain faces")
	cmd.Flags().StringVar(&opts.FeatureIds, "feature-ids", "", "start from an existing int32 feature id grid")
	cmd.Flags().StringVar(&opts.CsvFile, "csv", "", "write goal attributes to this CSV file")
	cmd.Flags().StringVar(&opts.StlFile, "stl", "", "write the strut surface to this STL file")
	cmd.Flags().BoolVar(&opts.Charts, "charts", false, "write diagnostic charts")
	cmd.Flags().BoolVar(&opts.ExtractSlice, "extract-slices", false, "write TIFF slices along all axes")

	return cmd
}

// applyFlags copies the flags the user set onto cfg
func applyFlags(cmd *cobra.Command, opts *RunOptions, cfg *config.Config) {
	flags := cmd.Flags()
	if flags.Changed("seed") {
		cfg.Synthesis.Seed = opts.Seed
	}
	if flags.Changed("cores") {
		cfg.Processing.NumCores = opts.Cores
	}
	if flags.Changed("output") {
		cfg.Output.Dir = opts.OutputDir
	}
	if flags.Changed("periodic") {
		cfg.Synthesis.PeriodicBoundaries = opts.Periodic
	}
	if flags.Changed("feature-ids") {
		cfg.Synthesis.HaveFeatures = opts.FeatureIds != ""
		cfg.Synthesis.FeatureIdsFile = opts.FeatureIds
	}
	if flags.Changed("csv") {
		cfg.Output.WriteGoalAttributes = opts.CsvFile != ""
		cfg.Output.CsvFile = opts.CsvFile
	}
	if flags.Changed("stl") {
		cfg.Output.StlFile = opts.StlFile
	}
	if flags.Changed("charts") {
		cfg.Output.Charts = opts.Charts
	}
	if flags.Changed("extract-slices") {
		cfg.Output.ExtractSlices = opts.ExtractSlice
	}
	if opts.Verbose {
		cfg.Output.Verbose = true
	}
}

// setupLogging installs a text handler on stderr for the library packages
func setupLogging(w io.Writer, verbose bool) {
	level := slog.LevelInfo
	if verbose {
		level = slog.LevelDebug
	}
	logging.SetLogger(slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: level})))
}

func runSynthesis(cmd *cobra.Command, opts *RunOptions) error {
	cfg, err := config.LoadConfig(opts.ConfigPath)
	if err != nil {
		return err
	}
	applyFlags(cmd, opts, cfg)
	setupLogging(cmd.ErrOrStderr(), cfg.Output.Verbose)

	params, err := synthesis.FromConfig(cfg)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	out := cmd.OutOrStdout()
	s := synthesis.NewSynthesizer(params)
	startTime := time.Now()
	if err := s.Process(ctx); err != nil {
		return err
	}
	printSummary(out, s.GetMetrics(), time.Since(startTime))
	return nil
}

func printSummary(out io.Writer, m synthesis.SynthesisMetrics, elapsed time.Duration) {
	fmt.Fprintf(out, "Synthesis %s completed in %.2f seconds (seed %d)\n", m.RunID, elapsed.Seconds(), m.Seed)
	fmt.Fprintf(out, "Features:            %d (%d generated, %d pruned)\n", m.Features, m.Generated, m.Pruned)
	for id, n := range m.PhaseFeatures {
		if id == 0 || id >= len(m.PhaseNames) {
			continue
		}
		fmt.Fprintf(out, "  phase %d %-10s %d\n", id, m.PhaseNames[id], n)
	}
	fmt.Fprintf(out, "Size similarity:     %.4f\n", m.SizeError)
	fmt.Fprintf(out, "Neighbor similarity: %.4f\n", m.NeighborhoodError)
	fmt.Fprintf(out, "Filling error:       %.4f (%d free points, %d accepted moves)\n", m.FillingError, m.FreePoints, m.AcceptedMoves)
	fmt.Fprintf(out, "Gap sweeps:          %d (%d voxels forced to background)\n", m.GapSweeps, m.ForcedBackground)
	fmt.Fprintf(out, "Topology voxels:     %d boundary, %d triple junction, %d quadruple point\n",
		m.BoundaryVoxels, m.TripleJunctionVoxels, m.QuadruplePointVoxels)
	fmt.Fprintf(out, "Void voxels:         %d\n", m.VoidVoxels)
	for _, st := range m.StageTimes {
		fmt.Fprintf(out, "  %-20s %v\n", st.Name, st.Duration.Round(time.Millisecond))
	}
}

// NewInitConfigCommand creates the init-config command
func NewInitConfigCommand(rootOpts *RootOptions) *cobra.Command {
	var force bool
	cmd := &cobra.Command{
		Use:   "init-config [path]",
		Short: "Write a default configuration file",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path := rootOpts.ConfigPath
			if len(args) == 1 {
				path = args[0]
			}
			if _, err := os.Stat(path); err == nil && !force {
				return fmt.Errorf("%s already exists (use --force to overwrite)", path)
			}
			if err := config.CreateDefaultConfigFile(path); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Default configuration written to %s\n", path)
			return nil
		},
	}
	cmd.Flags().BoolVarP(&force, "force", "f", false, "overwrite an existing file")
	return cmd
}
