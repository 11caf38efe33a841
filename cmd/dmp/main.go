package main

import (
	"context"
	"encoding/csv"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"sort"
	"strconv"
	"text/tabwriter"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/guptarohit/asciigraph"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/san-kum/dmp/internal/analysis"
	"github.com/san-kum/dmp/internal/automation"
	"github.com/san-kum/dmp/internal/config"
	"github.com/san-kum/dmp/internal/experiment"
	"github.com/san-kum/dmp/internal/export"
	"github.com/san-kum/dmp/internal/logging"
	"github.com/san-kum/dmp/internal/metrics"
	"github.com/san-kum/dmp/internal/optim"
	"github.com/san-kum/dmp/internal/sim"
	"github.com/san-kum/dmp/internal/storage"
	"github.com/san-kum/dmp/internal/viz"
)

var (
	dataDir  string
	logLevel string
	// Primitive parameters
	dt         float64
	duration   float64
	tau        float64
	numBasis   int
	order      int
	method     string
	goal       []float64
	demoFile   string
	extraDemos []string
	capacity   int
	// Config file
	configFile string
	// Preset name
	preset string
	// Outputs
	saveLog   bool
	outPath   string
	format    string
	field     string
	cutoff    float64
	benchRuns int
	// Search and Monte Carlo
	basisGrid    []float64
	alphaGrid    []float64
	perturbation float64
	trials       int
	seed         int64
	tolerance    float64
)

func main() {
	rootCmd := &cobra.Command{
		Use:          "dmp",
		Short:        "dynamic movement primitive lab",
		SilenceUsage: true,
	}

	rootCmd.PersistentFlags().StringVar(&dataDir, "data", ".dmp", "data directory")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "log level (debug, info, warn, error)")

	runCmd := &cobra.Command{
		Use:   "run [kind]",
		Short: "learn a demonstration and unroll the primitive",
		Args:  cobra.ExactArgs(1),
		RunE:  runPrimitive,
	}
	primitiveFlags(runCmd)
	runCmd.Flags().BoolVar(&saveLog, "save-log", false, "save the per-tick trajectory log with the run")

	listCmd := &cobra.Command{
		Use:   "list",
		Short: "list runs",
		RunE:  listRuns,
	}

	plotCmd := &cobra.Command{
		Use:   "plot [run_id]",
		Short: "plot run results",
		Args:  cobra.ExactArgs(1),
		RunE:  plotRun,
	}
	plotCmd.Flags().StringVar(&field, "field", "p", "column group to plot (p, v, a, g, f)")

	analyzeCmd := &cobra.Command{
		Use:   "analyze [run_id]",
		Short: "speed spectrum and smoothness",
		Args:  cobra.ExactArgs(1),
		RunE:  analyzeRun,
	}
	analyzeCmd.Flags().Float64Var(&cutoff, "cutoff", 10, "spectrum cutoff in Hz")

	liveCmd := &cobra.Command{
		Use:   "live [kind]",
		Short: "unroll the primitive with live visualization",
		Args:  cobra.ExactArgs(1),
		RunE:  runLive,
	}
	primitiveFlags(liveCmd)

	benchCmd := &cobra.Command{
		Use:   "bench [kind]",
		Short: "measure tick cost against the servo budget",
		Args:  cobra.ExactArgs(1),
		RunE:  benchPrimitive,
	}
	benchCmd.Flags().StringVar(&preset, "preset", "", "use preset configuration")
	benchCmd.Flags().IntVar(&benchRuns, "runs", 8, "concurrent primitives in the ensemble pass")

	exportCSVCmd := &cobra.Command{
		Use:   "export-csv [run_id]",
		Short: "export run columns to CSV",
		Args:  cobra.ExactArgs(1),
		RunE:  exportCSV,
	}
	exportCSVCmd.Flags().StringVar(&field, "field", "p", "column group to export (p, v, a, g, f)")

	exportJSONCmd := &cobra.Command{
		Use:   "export-json [run_id]",
		Short: "export run data to JSON",
		Args:  cobra.ExactArgs(1),
		RunE:  exportJSON,
	}

	exportPlotCmd := &cobra.Command{
		Use:   "export-plot [run_id]",
		Short: "render run figures as images",
		Args:  cobra.ExactArgs(1),
		RunE:  exportPlot,
	}
	exportPlotCmd.Flags().StringVar(&outPath, "out", "plots", "output directory")
	exportPlotCmd.Flags().StringVar(&format, "format", "png", "image format (png, svg, pdf)")

	exportDemoCmd := &cobra.Command{
		Use:   "export-demo [kind]",
		Short: "write the demonstration a configuration learns from",
		Args:  cobra.ExactArgs(1),
		RunE:  exportDemo,
	}
	primitiveFlags(exportDemoCmd)
	exportDemoCmd.Flags().StringVar(&outPath, "out", "demo.csv", "output file")

	configCmd := &cobra.Command{
		Use:   "config [kind]",
		Short: "write a configuration file",
		Args:  cobra.ExactArgs(1),
		RunE:  writeConfig,
	}
	primitiveFlags(configCmd)
	configCmd.Flags().StringVar(&outPath, "out", "dmp.yaml", "output file")

	tuneCmd := &cobra.Command{
		Use:   "tune [kind]",
		Short: "grid search basis count and gain for the best reproduction",
		Args:  cobra.ExactArgs(1),
		RunE:  tunePrimitive,
	}
	primitiveFlags(tuneCmd)
	tuneCmd.Flags().Float64SliceVar(&basisGrid, "basis-grid", []float64{10, 25, 50}, "basis counts to try")
	tuneCmd.Flags().Float64SliceVar(&alphaGrid, "alpha-grid", []float64{15, 25, 40}, "alpha values to try (beta = alpha/4)")

	scenarioCmd := &cobra.Command{
		Use:   "scenario [file]",
		Short: "run the steps of a scenario file and save each run",
		Args:  cobra.ExactArgs(1),
		RunE:  runScenario,
	}

	monteCarloCmd := &cobra.Command{
		Use:   "montecarlo [kind]",
		Short: "unroll toward randomly perturbed goals",
		Args:  cobra.ExactArgs(1),
		RunE:  runMonteCarlo,
	}
	primitiveFlags(monteCarloCmd)
	monteCarloCmd.Flags().Float64Var(&perturbation, "perturbation", 0.1, "goal perturbation (m or rad)")
	monteCarloCmd.Flags().IntVar(&trials, "trials", 20, "number of trials")
	monteCarloCmd.Flags().Int64Var(&seed, "seed", time.Now().UnixNano(), "random seed")
	monteCarloCmd.Flags().Float64Var(&tolerance, "tolerance", 1e-2, "final goal distance counted as converged")

	presetsCmd := &cobra.Command{
		Use:   "presets [kind]",
		Short: "list available presets for a primitive kind",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			presets := config.ListPresets(args[0])
			if len(presets) == 0 {
				fmt.Printf("no presets for kind: %s (kinds: %v)\n", args[0], config.Kinds())
				return nil
			}
			fmt.Printf("presets for %s:\n", args[0])
			for _, p := range presets {
				fmt.Printf("  %s\n", p)
			}
			return nil
		},
	}

	rootCmd.AddCommand(runCmd, listCmd, plotCmd, analyzeCmd, liveCmd, benchCmd,
		exportCSVCmd, exportJSONCmd, exportPlotCmd, exportDemoCmd, configCmd, tuneCmd, scenarioCmd, monteCarloCmd, presetsCmd)

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func primitiveFlags(cmd *cobra.Command) {
	cmd.Flags().Float64Var(&dt, "dt", config.DefaultDt, "tick period")
	cmd.Flags().Float64Var(&duration, "time", config.DefaultDuration, "unroll duration")
	cmd.Flags().Float64Var(&tau, "tau", 0, "movement duration (0 reuses the demonstration's)")
	cmd.Flags().IntVar(&numBasis, "basis", config.DefaultNumBasis, "number of basis functions")
	cmd.Flags().IntVar(&order, "order", 2, "canonical system order (1 or 2)")
	cmd.Flags().StringVar(&method, "method", "ls", "regression method (ls, lwr)")
	cmd.Flags().Float64SliceVar(&goal, "goal", nil, "goal override (quaternions as w,x,y,z)")
	cmd.Flags().StringVar(&demoFile, "demo", "", "demonstration CSV file")
	cmd.Flags().StringSliceVar(&extraDemos, "extra-demo", nil, "more demonstration CSV files to learn from")
	cmd.Flags().IntVar(&capacity, "log-capacity", config.DefaultLogCapacity, "trajectory log capacity in ticks (0 disables)")
	cmd.Flags().StringVar(&configFile, "config", "", "config file path (yaml)")
	cmd.Flags().StringVar(&preset, "preset", "", "use preset configuration")
}

// loadConfig resolves the configuration for kind: a preset or the kind's base
// preset, replaced by the config file when given, then overridden by set flags.
func loadConfig(cmd *cobra.Command, kind string) (*config.Config, string, error) {
	name := preset
	if name == "" {
		name = basePreset(kind)
	}
	cfg := config.GetPreset(kind, name)
	if cfg == nil {
		return nil, "", fmt.Errorf("unknown preset: %s (available: %v)", name, config.ListPresets(kind))
	}

	if configFile != "" {
		fileCfg, err := config.Load(configFile)
		if err != nil {
			return nil, "", fmt.Errorf("failed to load config: %w", err)
		}
		if fileCfg.Kind != kind {
			return nil, "", fmt.Errorf("config %s describes a %s primitive, not %s", configFile, fileCfg.Kind, kind)
		}
		cfg = fileCfg
		name = "custom"
	}

	flags := cmd.Flags()
	if flags.Changed("dt") {
		cfg.Dt = dt
	}
	if flags.Changed("time") {
		cfg.Duration = duration
	}
	if flags.Changed("tau") {
		cfg.Tau = tau
	}
	if flags.Changed("basis") {
		cfg.Primitive.NumBasis = numBasis
	}
	if flags.Changed("order") {
		cfg.Primitive.CanonicalOrder = order
	}
	if flags.Changed("method") {
		cfg.Primitive.Method = method
	}
	if flags.Changed("goal") {
		cfg.Goal = goal
	}
	if flags.Changed("demo") {
		cfg.Demo.File = demoFile
	}
	if flags.Changed("extra-demo") {
		cfg.Demo.Extra = extraDemos
	}
	if flags.Changed("log-capacity") {
		cfg.LogCapacity = capacity
	}
	if logLevel != "" {
		cfg.LogLevel = logLevel
	}
	if !cmd.Flags().Changed("data") && cfg.DataDir != "" {
		dataDir = cfg.DataDir
	}
	return cfg, name, nil
}

func basePreset(kind string) string {
	if kind == config.KindCartesian {
		return "reach"
	}
	return "quarter_turn"
}

func newLogger(cfg *config.Config) (*zap.Logger, error) {
	level := cfg.LogLevel
	if level == "" {
		level = "info"
	}
	return logging.NewLogger("dmp", level)
}

func runPrimitive(cmd *cobra.Command, args []string) error {
	kind := args[0]
	cfg, name, err := loadConfig(cmd, kind)
	if err != nil {
		return err
	}

	logger, err := newLogger(cfg)
	if err != nil {
		return err
	}
	defer logger.Sync() //nolint:errcheck

	exp, err := experiment.New(cfg, logger)
	if err != nil {
		return err
	}
	if err := exp.Learn(); err != nil {
		return err
	}
	registry := experiment.NewRegistry()
	if err := exp.Setup(registry.DefaultMetrics(kind)); err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	fmt.Printf("running %s primitive...\n", kind)
	start := time.Now()

	result, err := exp.Run(ctx)
	if err != nil {
		return err
	}

	elapsed := time.Since(start)

	st := storage.New(dataDir)
	if err := st.Init(); err != nil {
		return err
	}
	runID, err := st.Save(exp.Metadata(name), result)
	if err != nil {
		return err
	}
	if saveLog && exp.Log() != nil {
		if err := storage.SaveLog(filepath.Join(st.Dir(runID), "log"), exp.Log()); err != nil {
			return err
		}
	}

	fmt.Printf("completed in %v\n", elapsed)
	fmt.Printf("run id: %s\n", runID)
	fmt.Printf("steps: %d\n", result.StepsTaken)
	fmt.Printf("done: %t\n", exp.Primitive().Done())
	printMetrics(result.Metrics)
	for _, stepErr := range result.Errors {
		fmt.Printf("error: %v\n", stepErr)
	}
	return nil
}

func printMetrics(m map[string]float64) {
	names := make([]string, 0, len(m))
	for name := range m {
		names = append(names, name)
	}
	sort.Strings(names)

	fmt.Println("\nmetrics:")
	for _, name := range names {
		fmt.Printf("  %s: %.6f\n", name, m[name])
	}
}

func listRuns(cmd *cobra.Command, args []string) error {
	st := storage.New(dataDir)
	runs, err := st.List()
	if err != nil {
		return err
	}

	if len(runs) == 0 {
		fmt.Println("no runs found")
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tKIND\tTIME\tDURATION\tDT\tTAU\tBASIS\tMETHOD\tSTEPS")

	for _, run := range runs {
		fmt.Fprintf(w, "%s\t%s\t%s\t%.2fs\t%.5fs\t%.2fs\t%d\t%s\t%d\n",
			run.ID,
			run.Kind,
			run.Timestamp.Format("2006-01-02 15:04:05"),
			run.Duration,
			run.Dt,
			run.Tau,
			run.NumBasis,
			run.Method,
			run.Steps,
		)
	}

	return w.Flush()
}

var fieldNames = map[string]string{
	"p": "position",
	"v": "velocity",
	"a": "acceleration",
	"g": "goal",
	"f": "forcing",
}

func plotRun(cmd *cobra.Command, args []string) error {
	runID := args[0]
	label, ok := fieldNames[field]
	if !ok {
		return fmt.Errorf("unknown field: %s", field)
	}

	st := storage.New(dataDir)
	meta, err := st.Load(runID)
	if err != nil {
		return err
	}

	cols, err := st.LoadColumns(runID, field)
	if err != nil {
		return err
	}

	if len(cols.Values) == 0 || len(cols.Names) == 0 {
		return fmt.Errorf("no data to plot")
	}

	fmt.Printf("run: %s\n", meta.ID)
	fmt.Printf("kind: %s\n", meta.Kind)
	fmt.Printf("samples: %d\n\n", len(cols.Values))

	for j, name := range cols.Names {
		data := make([]float64, len(cols.Values))
		for i, row := range cols.Values {
			if j < len(row) {
				data[i] = row[j]
			}
		}

		graph := asciigraph.Plot(data,
			asciigraph.Height(10),
			asciigraph.Width(80),
			asciigraph.Caption(fmt.Sprintf("%s %s vs time", label, name)),
		)
		fmt.Println(graph)
		fmt.Println()
	}

	return nil
}

func analyzeRun(cmd *cobra.Command, args []string) error {
	runID := args[0]

	st := storage.New(dataDir)
	meta, err := st.Load(runID)
	if err != nil {
		return err
	}

	result, err := st.LoadResult(runID)
	if err != nil {
		return err
	}

	speeds := analysis.Speeds(result.Velocities)
	spectrum, err := analysis.PowerSpectrum(speeds, meta.Dt)
	if err != nil {
		return err
	}
	sparc, err := analysis.SpectralArcLength(speeds, meta.Dt, cutoff)
	if err != nil {
		return err
	}

	fmt.Printf("speed analysis: %s\n", meta.ID)
	fmt.Printf("kind: %s\n\n", meta.Kind)

	n := 0
	for n < len(spectrum.Freqs) && spectrum.Freqs[n] <= cutoff {
		n++
	}
	if n > 1 {
		graph := asciigraph.Plot(spectrum.Power[:n],
			asciigraph.Height(15),
			asciigraph.Width(80),
			asciigraph.Caption(fmt.Sprintf("speed spectrum 0-%.0f Hz", cutoff)),
		)
		fmt.Println(graph)
		fmt.Println()
	}

	fmt.Printf("dominant frequency: %.3f hz\n", spectrum.DominantFrequency())
	fmt.Printf("spectral arc length: %.4f\n", sparc)
	return nil
}

func runLive(cmd *cobra.Command, args []string) error {
	kind := args[0]
	cfg, name, err := loadConfig(cmd, kind)
	if err != nil {
		return err
	}

	// The terminal belongs to the view; failures show in its status panel.
	exp, err := experiment.New(cfg, nil)
	if err != nil {
		return err
	}
	if err := exp.Learn(); err != nil {
		return err
	}
	if err := exp.Setup(nil); err != nil {
		return err
	}

	var prim viz.Live = exp.Quaternion()
	if exp.Cartesian() != nil {
		prim = exp.Cartesian()
	}

	m := viz.NewModel(prim, exp.Restart, kind+" "+name, cfg.Dt, exp.Tau())

	p := tea.NewProgram(m)
	if _, err := p.Run(); err != nil {
		return err
	}
	return nil
}

func benchPrimitive(cmd *cobra.Command, args []string) error {
	kind := args[0]
	base, _, err := loadConfig(cmd, kind)
	if err != nil {
		return err
	}

	fmt.Printf("benchmarking %s (budget %v per tick)\n\n", kind, metrics.ServoBudget)
	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "BASIS\tMETHOD\tSTEPS\tTIME\tSTEPS/SEC\tPER TICK\tBUDGET\tOVERRUNS")

	for _, basis := range []int{10, 25, 50, 100} {
		for _, m := range []string{"ls", "lwr"} {
			cfg := base.Clone()
			cfg.Primitive.NumBasis = basis
			cfg.Primitive.Method = m
			cfg.StopWhenDone = false

			exp, err := experiment.New(cfg, nil)
			if err != nil {
				return err
			}
			if err := exp.Learn(); err != nil {
				return err
			}
			budget := metrics.NewTickBudget(metrics.ServoBudget)
			if err := exp.Setup([]sim.Metric{budget}); err != nil {
				return err
			}

			start := time.Now()
			result, err := exp.Run(context.Background())
			if err != nil {
				return err
			}
			elapsed := time.Since(start)

			steps := result.StepsTaken
			perTick := elapsed / time.Duration(max(steps, 1))
			fmt.Fprintf(w, "%d\t%s\t%d\t%v\t%.0f\t%v\t%.1f%%\t%.2f%%\n",
				basis, m, steps, elapsed, float64(steps)/elapsed.Seconds(), perTick,
				100*float64(perTick)/float64(metrics.ServoBudget), 100*budget.Value())
		}
	}
	if err := w.Flush(); err != nil {
		return err
	}

	registry := experiment.NewRegistry()
	ensemble := sim.NewEnsemble(func(i int) (sim.Primitive, []sim.Metric, error) {
		exp, err := experiment.New(base.Clone(), nil)
		if err != nil {
			return nil, nil, err
		}
		if err := exp.Learn(); err != nil {
			return nil, nil, err
		}
		if err := exp.Restart(); err != nil {
			return nil, nil, err
		}
		return exp.Primitive(), registry.DefaultMetrics(kind), nil
	}, benchRuns)

	simCfg := sim.Config{Dt: base.Dt, Duration: base.Duration, ValidateState: true}
	start := time.Now()
	results, err := ensemble.Run(context.Background(), simCfg)
	if err != nil {
		return err
	}
	elapsed := time.Since(start)

	total := 0
	for _, r := range results {
		total += r.StepsTaken
	}
	fmt.Printf("\nensemble: %d primitives, %d ticks in %v (%.0f ticks/sec)\n",
		benchRuns, total, elapsed, float64(total)/elapsed.Seconds())
	return nil
}

func exportCSV(cmd *cobra.Command, args []string) error {
	runID := args[0]

	st := storage.New(dataDir)
	cols, err := st.LoadColumns(runID, field)
	if err != nil {
		return err
	}

	if len(cols.Values) == 0 {
		return fmt.Errorf("no data to export")
	}

	w := csv.NewWriter(os.Stdout)
	defer w.Flush()

	header := append([]string{"time"}, cols.Names...)
	if err := w.Write(header); err != nil {
		return err
	}

	for i, vals := range cols.Values {
		row := []string{strconv.FormatFloat(cols.Times[i], 'f', 6, 64)}
		for _, val := range vals {
			row = append(row, strconv.FormatFloat(val, 'f', 6, 64))
		}
		if err := w.Write(row); err != nil {
			return err
		}
	}

	return nil
}

func exportJSON(cmd *cobra.Command, args []string) error {
	runID := args[0]

	st := storage.New(dataDir)
	meta, err := st.Load(runID)
	if err != nil {
		return err
	}

	result, err := st.LoadResult(runID)
	if err != nil {
		return err
	}

	return storage.WriteJSON(os.Stdout, *meta, result)
}

func exportPlot(cmd *cobra.Command, args []string) error {
	runID := args[0]

	st := storage.New(dataDir)
	result, err := st.LoadResult(runID)
	if err != nil {
		return err
	}

	paths, err := export.SavePlots(filepath.Join(outPath, runID), format, result)
	if err != nil {
		return err
	}
	for _, p := range paths {
		fmt.Println(p)
	}
	return nil
}

func exportDemo(cmd *cobra.Command, args []string) error {
	cfg, _, err := loadConfig(cmd, args[0])
	if err != nil {
		return err
	}

	exp, err := experiment.New(cfg, nil)
	if err != nil {
		return err
	}
	if err := exp.SaveDemo(outPath); err != nil {
		return err
	}
	fmt.Printf("demonstration written to %s\n", outPath)
	return nil
}

func writeConfig(cmd *cobra.Command, args []string) error {
	cfg, _, err := loadConfig(cmd, args[0])
	if err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return err
	}
	if err := config.Save(outPath, cfg); err != nil {
		return err
	}
	fmt.Printf("configuration written to %s\n", outPath)
	return nil
}

func tunePrimitive(cmd *cobra.Command, args []string) error {
	base, _, err := loadConfig(cmd, args[0])
	if err != nil {
		return err
	}

	gs, err := optim.NewGridSearch([]string{"num_basis", "alpha"}, [][]float64{basisGrid, alphaGrid})
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	best, results, err := gs.Search(ctx, optim.ReproductionObjective(base))
	if err != nil {
		return err
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "BASIS\tALPHA\tERROR")
	for _, t := range results {
		if t.Err != nil {
			fmt.Fprintf(w, "%.0f\t%.2f\t%v\n", t.Params["num_basis"], t.Params["alpha"], t.Err)
			continue
		}
		fmt.Fprintf(w, "%.0f\t%.2f\t%.3e\n", t.Params["num_basis"], t.Params["alpha"], t.Value)
	}
	if err := w.Flush(); err != nil {
		return err
	}

	fmt.Printf("\nbest: basis=%.0f alpha=%.2f error=%.3e\n", best.Params["num_basis"], best.Params["alpha"], best.Value)
	return nil
}

func runScenario(cmd *cobra.Command, args []string) error {
	scenario, err := automation.LoadScenario(args[0])
	if err != nil {
		return err
	}

	level := logLevel
	if level == "" {
		level = "info"
	}
	logger, err := logging.NewLogger("dmp", level)
	if err != nil {
		return err
	}
	defer logger.Sync() //nolint:errcheck

	st := storage.New(dataDir)
	if err := st.Init(); err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	results, err := automation.RunScenario(ctx, scenario, experiment.NewRegistry(), st, logger)
	for _, r := range results {
		fmt.Printf("%s: run %s, %d steps, done %t\n", r.Name, r.RunID, r.Result.StepsTaken, r.Done)
	}
	return err
}

func runMonteCarlo(cmd *cobra.Command, args []string) error {
	base, _, err := loadConfig(cmd, args[0])
	if err != nil {
		return err
	}
	logger, err := newLogger(base)
	if err != nil {
		return err
	}
	defer logger.Sync() //nolint:errcheck

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	results, err := automation.RunMonteCarlo(ctx, &automation.MonteCarloConfig{
		Base:         base,
		Perturbation: perturbation,
		NumTrials:    trials,
		Seed:         seed,
		Tolerance:    tolerance,
	}, logger)
	if err != nil {
		return err
	}

	dists := make([]float64, len(results))
	for i, r := range results {
		dists[i] = r.FinalDistance
	}
	if len(dists) > 1 {
		fmt.Println(asciigraph.Plot(dists,
			asciigraph.Height(8),
			asciigraph.Width(60),
			asciigraph.Caption("final goal distance per trial"),
		))
		fmt.Println()
	}

	converged, failed := automation.MonteCarloStats(results)
	fmt.Printf("converged: %d/%d (failed %d)\n", converged, len(results), failed)
	return nil
}
