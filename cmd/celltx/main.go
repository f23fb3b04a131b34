package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"

	"github.com/san-kum/celltx/internal/analysis"
	"github.com/san-kum/celltx/internal/automation"
	"github.com/san-kum/celltx/internal/config"
	"github.com/san-kum/celltx/internal/experiment"
	"github.com/san-kum/celltx/internal/logging"
	"github.com/san-kum/celltx/internal/metrics"
	"github.com/san-kum/celltx/internal/optim"
	"github.com/san-kum/celltx/internal/report"
	"github.com/san-kum/celltx/internal/sim"
	"github.com/san-kum/celltx/internal/spec"
	"github.com/san-kum/celltx/internal/storage"
)

var (
	dataDir     string
	backend     string
	logLevel    string
	dt          float64
	duration    float64
	integrator  string
	adaptive    bool
	tolerance   float64
	negativity  string
	parallel    int
	retention   float64
	params      []string
	initial     []string
	prehistory  []string
	configFile  string
	preset      string
	modelFile   string
	entities    []string
	grid        []string
	metricName  string
	workers     int
	metricsAddr string
	svgPath     string
	trials      int
	perturb     float64
	seed        int64
	sweepParam  string
	sweepValues []float64
	entity      string
	phaseX      string
	phaseY      string
)

func main() {
	rootCmd := &cobra.Command{
		Use:           "celltx",
		Short:         "cell therapy ODE models",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.PersistentFlags().StringVar(&dataDir, "data", config.DefaultStorageDir, "data directory")
	rootCmd.PersistentFlags().StringVar(&backend, "backend", "fs", "storage backend (fs, sqlite)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "info", "log level")

	runCmd := &cobra.Command{
		Use:   "run [model]",
		Short: "run simulation",
		Args:  cobra.MaximumNArgs(1),
		RunE:  runSimulation,
	}
	addRunFlags(runCmd)

	sweepCmd := &cobra.Command{
		Use:   "sweep [model]",
		Short: "grid search model constants",
		Args:  cobra.MaximumNArgs(1),
		RunE:  sweep,
	}
	addRunFlags(sweepCmd)
	sweepCmd.Flags().StringArrayVar(&grid, "grid", nil, "constant=v1,v2,... (repeatable)")
	sweepCmd.Flags().StringVar(&metricName, "metric", "exposure_tumor_cell", "metric to minimize")
	sweepCmd.Flags().IntVar(&workers, "workers", 4, "concurrent runs")
	sweepCmd.Flags().StringVar(&metricsAddr, "metrics-addr", "", "serve prometheus metrics on this address while sweeping")

	compareCmd := &cobra.Command{
		Use:   "compare [model] [integrator1] [integrator2] ...",
		Short: "compare integrators on the same model",
		Args:  cobra.MinimumNArgs(2),
		RunE:  compareIntegrators,
	}
	addRunFlags(compareCmd)

	inspectCmd := &cobra.Command{
		Use:   "inspect [model]",
		Short: "show entities, parameters and edges of a model",
		Args:  cobra.MaximumNArgs(1),
		RunE:  inspect,
	}
	addRunFlags(inspectCmd)

	modelsCmd := &cobra.Command{
		Use:   "models",
		Short: "list built-in models",
		RunE: func(cmd *cobra.Command, args []string) error {
			w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "MODEL\tDESCRIPTION")
			registry := experiment.NewRegistry()
			for _, name := range registry.ListModels() {
				entry, _ := registry.GetModel(name)
				fmt.Fprintf(w, "%s\t%s\n", name, entry.Description)
			}
			return w.Flush()
		},
	}

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
	plotCmd.Flags().StringArrayVar(&entities, "entity", nil, "entity identity to plot (repeatable, default all)")
	plotCmd.Flags().StringVar(&svgPath, "svg", "", "also write the plot as SVG to this path")

	responseCmd := &cobra.Command{
		Use:   "response [model]",
		Short: "sweep one constant and show where an entity settles",
		Args:  cobra.MaximumNArgs(1),
		RunE:  doseResponse,
	}
	addRunFlags(responseCmd)
	responseCmd.Flags().StringVar(&sweepParam, "sweep", "", "constant to vary")
	responseCmd.Flags().Float64SliceVar(&sweepValues, "values", nil, "values of the constant")
	responseCmd.Flags().StringVar(&entity, "entity", "", "entity identity to record")
	responseCmd.Flags().IntVar(&workers, "workers", 4, "concurrent runs")
	_ = responseCmd.MarkFlagRequired("sweep")
	_ = responseCmd.MarkFlagRequired("values")
	_ = responseCmd.MarkFlagRequired("entity")

	phaseCmd := &cobra.Command{
		Use:   "phase [run_id]",
		Short: "plot one entity against another for a saved run",
		Args:  cobra.ExactArgs(1),
		RunE:  phase,
	}
	phaseCmd.Flags().StringVar(&phaseX, "x", "", "entity on the x axis")
	phaseCmd.Flags().StringVar(&phaseY, "y", "", "entity on the y axis")
	_ = phaseCmd.MarkFlagRequired("x")
	_ = phaseCmd.MarkFlagRequired("y")

	scenarioCmd := &cobra.Command{
		Use:   "scenario [file]",
		Short: "run every step of a scenario file and save each run",
		Args:  cobra.ExactArgs(1),
		RunE:  runScenario,
	}

	monteCarloCmd := &cobra.Command{
		Use:   "montecarlo [model]",
		Short: "run trials with randomly perturbed initial magnitudes",
		Args:  cobra.MaximumNArgs(1),
		RunE:  monteCarlo,
	}
	addRunFlags(monteCarloCmd)
	monteCarloCmd.Flags().IntVar(&trials, "trials", 20, "number of trials")
	monteCarloCmd.Flags().Float64Var(&perturb, "perturb", 0.1, "relative perturbation of initial magnitudes")
	monteCarloCmd.Flags().Int64Var(&seed, "seed", 0, "random seed (0 uses the clock)")
	monteCarloCmd.Flags().IntVar(&workers, "workers", 4, "concurrent runs")

	presetsCmd := &cobra.Command{
		Use:   "presets [model]",
		Short: "list available presets for a model",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			presets := config.ListPresets(args[0])
			if len(presets) == 0 {
				fmt.Printf("no presets for model: %s\n", args[0])
				return nil
			}
			fmt.Printf("presets for %s:\n", args[0])
			for _, p := range presets {
				fmt.Printf("  %s\n", p)
			}
			return nil
		},
	}

	exportCSVCmd := &cobra.Command{
		Use:   "export-csv [run_id]",
		Short: "export run trajectory to CSV",
		Args:  cobra.ExactArgs(1),
		RunE:  exportCSV,
	}

	exportJSONCmd := &cobra.Command{
		Use:   "export-json [run_id]",
		Short: "export run metadata and trajectory to JSON",
		Args:  cobra.ExactArgs(1),
		RunE:  exportJSON,
	}

	rootCmd.AddCommand(runCmd, scenarioCmd, monteCarloCmd, sweepCmd, responseCmd, phaseCmd, compareCmd, inspectCmd, modelsCmd, listCmd, plotCmd, presetsCmd, exportCSVCmd, exportJSONCmd)

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func addRunFlags(cmd *cobra.Command) {
	def := config.DefaultConfig()
	cmd.Flags().Float64Var(&dt, "dt", def.Dt, "timestep (initial step when adaptive)")
	cmd.Flags().Float64Var(&duration, "time", def.Duration, "duration")
	cmd.Flags().StringVar(&integrator, "integrator", def.Integrator, "integrator (euler, rk4, rk45)")
	cmd.Flags().BoolVar(&adaptive, "adaptive", def.Adaptive, "adaptive step size")
	cmd.Flags().Float64Var(&tolerance, "tol", def.Tolerance, "adaptive error tolerance")
	cmd.Flags().StringVar(&negativity, "negativity", def.Negativity, "negative magnitude policy (allow, clamp, reject)")
	cmd.Flags().IntVar(&parallel, "parallel", def.Parallel, "goroutines evaluating edge functions")
	cmd.Flags().Float64Var(&retention, "history-retention", 0, "history window kept for delays (0 keeps all)")
	cmd.Flags().StringArrayVar(&params, "param", nil, "constant override name=value (repeatable)")
	cmd.Flags().StringArrayVar(&initial, "initial", nil, "initial magnitude [element].[compartment].[state]=value (repeatable)")
	cmd.Flags().StringArrayVar(&prehistory, "prehistory", nil, "magnitude before t=0 identity=value (repeatable)")
	cmd.Flags().StringVar(&configFile, "config", "", "config file path (yaml)")
	cmd.Flags().StringVar(&preset, "preset", "", "use preset configuration")
	cmd.Flags().StringVar(&modelFile, "model-file", "", "load the model from a yaml document")
}

// buildConfig layers preset, config file and explicitly set flags, in that
// order.
func buildConfig(cmd *cobra.Command, args []string) (*config.Config, error) {
	cfg := config.DefaultConfig()
	if len(args) > 0 {
		cfg.Model = args[0]
	}

	if preset != "" {
		p := config.GetPreset(cfg.Model, preset)
		if p == nil {
			return nil, fmt.Errorf("unknown preset: %s (available: %v)", preset, config.ListPresets(cfg.Model))
		}
		cfg = p
	}

	if configFile != "" {
		fileCfg, err := config.Load(configFile)
		if err != nil {
			return nil, fmt.Errorf("failed to load config: %w", err)
		}
		if len(args) > 0 && fileCfg.Model != args[0] {
			fileCfg.Model = args[0]
		}
		cfg = fileCfg
	}

	flags := cmd.Flags()
	if flags.Changed("dt") {
		cfg.Dt = dt
	}
	if flags.Changed("time") {
		cfg.Duration = duration
	}
	if flags.Changed("integrator") {
		cfg.Integrator = integrator
	}
	if flags.Changed("adaptive") {
		cfg.Adaptive = adaptive
	}
	if flags.Changed("tol") {
		cfg.Tolerance = tolerance
	}
	if flags.Changed("negativity") {
		cfg.Negativity = negativity
	}
	if flags.Changed("parallel") {
		cfg.Parallel = parallel
	}
	if flags.Changed("history-retention") {
		cfg.HistoryRetention = retention
	}
	if cmd.Root().PersistentFlags().Changed("data") || cfg.Storage.Dir == "" {
		cfg.Storage.Dir = dataDir
	}
	if cmd.Root().PersistentFlags().Changed("backend") {
		cfg.Storage.Backend = backend
	}
	if cmd.Root().PersistentFlags().Changed("log-level") {
		cfg.LogLevel = logLevel
	}

	var err error
	if cfg.Params, err = mergeAssignments(cfg.Params, params); err != nil {
		return nil, err
	}
	if cfg.Initial, err = mergeAssignments(cfg.Initial, initial); err != nil {
		return nil, err
	}
	if cfg.Prehistory, err = mergeAssignments(cfg.Prehistory, prehistory); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// mergeAssignments parses name=value pairs over base. Identities may contain
// '=' in binary state names, so the value follows the last '='.
func mergeAssignments(base map[string]float64, pairs []string) (map[string]float64, error) {
	if len(pairs) == 0 {
		return base, nil
	}
	out := make(map[string]float64, len(base)+len(pairs))
	for k, v := range base {
		out[k] = v
	}
	for _, p := range pairs {
		i := strings.LastIndex(p, "=")
		if i <= 0 {
			return nil, fmt.Errorf("expected name=value, got %q", p)
		}
		v, err := strconv.ParseFloat(p[i+1:], 64)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", p, err)
		}
		out[p[:i]] = v
	}
	return out, nil
}

func newExperiment(cfg *config.Config, logger *slog.Logger, opts ...experiment.Option) (*experiment.Experiment, error) {
	opts = append(opts, experiment.WithLogger(logger))
	if modelFile != "" {
		m, err := spec.LoadDocument(modelFile)
		if err != nil {
			return nil, err
		}
		opts = append(opts, experiment.WithModel(m))
	}
	return experiment.New(cfg, opts...)
}

func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt)
}

func runSimulation(cmd *cobra.Command, args []string) error {
	cfg, err := buildConfig(cmd, args)
	if err != nil {
		return err
	}
	logger, err := logging.New(cfg.LogLevel)
	if err != nil {
		return err
	}

	exp, err := newExperiment(cfg, logger)
	if err != nil {
		return err
	}

	st, err := storage.Open(cfg.Storage.Backend, cfg.Storage.Dir)
	if err != nil {
		return err
	}
	defer st.Close()

	ctx, cancel := signalContext()
	defer cancel()

	fmt.Printf("running %s simulation...\n", exp.Graph().Name())
	result, runErr := exp.Run(ctx)
	if result == nil {
		return runErr
	}

	runID, err := saveRun(st, cfg, exp.Graph().Name(), result)
	if err != nil {
		return errors.Join(runErr, err)
	}

	fmt.Println(report.Summary(runID, result))
	if runErr != nil {
		return fmt.Errorf("partial run %s saved: %w", runID, runErr)
	}
	return nil
}

func saveRun(st storage.Backend, cfg *config.Config, model string, result *sim.Result) (string, error) {
	return st.Save(storage.RunMetadata{
		Model:      model,
		Dt:         cfg.Dt,
		Duration:   cfg.Duration,
		Integrator: cfg.Integrator,
		Adaptive:   cfg.Adaptive,
		Negativity: cfg.Negativity,
		Params:     cfg.Params,
		Metrics:    result.Metrics,
		Steps:      result.StepsTaken,
		Rejected:   result.Rejected,
		Clamps:     result.Clamps,
	}, result.Trajectory)
}

func runScenario(cmd *cobra.Command, args []string) error {
	sc, err := automation.LoadScenario(args[0])
	if err != nil {
		return err
	}
	logger, err := logging.New(logLevel)
	if err != nil {
		return err
	}
	st, err := openStore()
	if err != nil {
		return err
	}
	defer st.Close()

	ctx, cancel := signalContext()
	defer cancel()

	fmt.Printf("scenario %s: %d steps\n", sc.Name, len(sc.Steps))
	results, runErr := automation.RunScenario(ctx, sc, logger)
	for _, r := range results {
		runID, err := saveRun(st, r.Step.Config, r.Step.Config.Model, r.Result)
		if err != nil {
			return errors.Join(runErr, err)
		}
		fmt.Printf("\n%s\n", report.Title.Render(r.Step.Name))
		fmt.Println(report.Summary(runID, r.Result))
	}
	return runErr
}

func monteCarlo(cmd *cobra.Command, args []string) error {
	cfg, err := buildConfig(cmd, args)
	if err != nil {
		return err
	}
	logger, err := logging.New(cfg.LogLevel)
	if err != nil {
		return err
	}
	exp, err := newExperiment(cfg, logger)
	if err != nil {
		return err
	}

	ctx, cancel := signalContext()
	defer cancel()

	results, err := automation.RunMonteCarlo(ctx, exp, automation.MonteCarloConfig{
		Trials:       trials,
		Perturbation: perturb,
		Seed:         seed,
		Workers:      workers,
	})
	if err != nil {
		return err
	}

	stable, unstable := automation.MonteCarloStats(results)
	fmt.Printf("%d trials of %s: %d stable, %d unstable or failed\n\n", len(results), exp.Graph().Name(), stable, unstable)

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "METRIC\tMEAN\tSTDDEV\tN")
	for _, m := range experiment.NewRegistry().DefaultMetrics(exp.Graph()) {
		mean, std, n := automation.MetricSpread(results, m.Name())
		fmt.Fprintf(w, "%s\t%.6g\t%.3g\t%d\n", m.Name(), mean, std, n)
	}
	return w.Flush()
}

func doseResponse(cmd *cobra.Command, args []string) error {
	cfg, err := buildConfig(cmd, args)
	if err != nil {
		return err
	}
	logger, err := logging.New(cfg.LogLevel)
	if err != nil {
		return err
	}
	exp, err := newExperiment(cfg, logger)
	if err != nil {
		return err
	}

	ctx, cancel := signalContext()
	defer cancel()

	points, err := analysis.DoseResponse(ctx, exp, cfg.Run(), analysis.Sweep{
		Param:   sweepParam,
		Values:  sweepValues,
		Entity:  entity,
		Workers: workers,
	})
	if err != nil {
		return err
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintf(w, "%s\tFINAL\tMIN\tMAX\n", strings.ToUpper(sweepParam))
	for _, p := range points {
		if p.Err != nil {
			fmt.Fprintf(w, "%g\terror: %v\n", p.Param, p.Err)
			continue
		}
		fmt.Fprintf(w, "%g\t%.6g\t%.6g\t%.6g\n", p.Param, p.Final, p.Min, p.Max)
	}
	if err := w.Flush(); err != nil {
		return err
	}
	fmt.Printf("\n%s\n", entity)
	fmt.Print(analysis.ResponseToASCII(points, 60, 15))
	return nil
}

func phase(cmd *cobra.Command, args []string) error {
	_, result, err := loadRun(args[0])
	if err != nil {
		return err
	}
	p, err := analysis.NewPhasePortrait(result.Trajectory, phaseX, phaseY)
	if err != nil {
		return err
	}
	fmt.Printf("y: %s\n", phaseY)
	fmt.Print(p.ASCII(70, 20))
	fmt.Printf("x: %s\n", phaseX)
	return nil
}

func sweep(cmd *cobra.Command, args []string) error {
	cfg, err := buildConfig(cmd, args)
	if err != nil {
		return err
	}
	logger, err := logging.New(cfg.LogLevel)
	if err != nil {
		return err
	}
	if len(grid) == 0 {
		return fmt.Errorf("at least one --grid is required")
	}

	names := make([]string, 0, len(grid))
	ranges := make([][]float64, 0, len(grid))
	for _, g := range grid {
		name, values, ok := strings.Cut(g, "=")
		if !ok {
			return fmt.Errorf("expected constant=v1,v2,..., got %q", g)
		}
		var vals []float64
		for _, s := range strings.Split(values, ",") {
			v, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
			if err != nil {
				return fmt.Errorf("%s: %w", g, err)
			}
			vals = append(vals, v)
		}
		names = append(names, name)
		ranges = append(ranges, vals)
	}

	reg := prometheus.NewRegistry()
	collector, err := metrics.NewCollector(reg)
	if err != nil {
		return err
	}
	if metricsAddr != "" {
		srv := &http.Server{Addr: metricsAddr, Handler: promhttp.HandlerFor(reg, promhttp.HandlerOpts{})}
		go func() {
			logger.Info("serving metrics", "addr", metricsAddr)
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Error("metrics server", "err", err)
			}
		}()
		defer srv.Close()
	}

	exp, err := newExperiment(cfg, logger, experiment.WithCollector(collector))
	if err != nil {
		return err
	}

	ctx, cancel := signalContext()
	defer cancel()

	start := time.Now()
	best, val, points, err := optim.NewGridSearch(names, ranges).WithWorkers(workers).Search(ctx, exp, cfg.Run(), metricName)

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintf(w, "%s\t%s\n", strings.ToUpper(strings.Join(names, "\t")), strings.ToUpper(metricName))
	for _, p := range points {
		row := make([]string, len(names))
		for i, n := range names {
			row[i] = strconv.FormatFloat(p.Params[n], 'g', -1, 64)
		}
		if p.Err != nil {
			fmt.Fprintf(w, "%s\terror: %v\n", strings.Join(row, "\t"), p.Err)
			continue
		}
		fmt.Fprintf(w, "%s\t%.6g\n", strings.Join(row, "\t"), p.Value)
	}
	if err := w.Flush(); err != nil {
		return err
	}
	if err != nil {
		return err
	}

	fmt.Printf("\nbest %s=%.6g with %v (%d runs in %v)\n", metricName, val, best, len(points), time.Since(start))
	return nil
}

func compareIntegrators(cmd *cobra.Command, args []string) error {
	cfg, err := buildConfig(cmd, args[:1])
	if err != nil {
		return err
	}

	fmt.Printf("comparing integrators for %s (dt=%.4f, duration=%.1f)\n\n", cfg.Model, cfg.Dt, cfg.Duration)
	fmt.Printf("%-12s  %-12s  %-12s  %-8s  %-12s\n", "integrator", "total_mass", "mass_drift", "steps", "time_ms")
	fmt.Println(strings.Repeat("-", 64))

	for _, intName := range args[1:] {
		c := cfg.Clone()
		c.Integrator = intName

		exp, err := newExperiment(c, logging.NewNop())
		if err != nil {
			fmt.Printf("%-12s  error: %v\n", intName, err)
			continue
		}
		result, err := exp.Run(context.Background())
		if err != nil {
			fmt.Printf("%-12s  error: %v\n", intName, err)
			continue
		}
		fmt.Printf("%-12s  %12.6g  %12.2e  %8d  %12.2f\n", intName,
			result.Metrics["total_mass"], result.Metrics["mass_drift"], result.StepsTaken,
			float64(result.Elapsed.Microseconds())/1000)
	}
	return nil
}

func inspect(cmd *cobra.Command, args []string) error {
	cfg, err := buildConfig(cmd, args)
	if err != nil {
		return err
	}
	exp, err := newExperiment(cfg, logging.NewNop())
	if err != nil {
		return err
	}
	x0, err := exp.InitialState()
	if err != nil {
		return err
	}
	fmt.Println(report.Inspect(exp.Graph(), x0))
	return nil
}

func openStore() (storage.Backend, error) {
	return storage.Open(backend, dataDir)
}

func listRuns(cmd *cobra.Command, args []string) error {
	st, err := openStore()
	if err != nil {
		return err
	}
	defer st.Close()

	runs, err := st.List()
	if err != nil {
		return err
	}
	if len(runs) == 0 {
		fmt.Println("no runs found")
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tMODEL\tTIME\tDURATION\tDT\tINTEG\tSTEPS\tCLAMPS")
	for _, run := range runs {
		fmt.Fprintf(w, "%s\t%s\t%s\t%g\t%g\t%s\t%d\t%d\n",
			run.ID,
			run.Model,
			run.Timestamp.Format("2006-01-02 15:04:05"),
			run.Duration,
			run.Dt,
			run.Integrator,
			run.Steps,
			run.Clamps,
		)
	}
	return w.Flush()
}

func loadRun(runID string) (*storage.RunMetadata, *sim.Result, error) {
	st, err := openStore()
	if err != nil {
		return nil, nil, err
	}
	defer st.Close()

	meta, err := st.Load(runID)
	if err != nil {
		return nil, nil, err
	}
	tr, err := st.LoadTrajectory(runID)
	if err != nil {
		return nil, nil, err
	}
	return meta, &sim.Result{
		Trajectory: tr,
		Metrics:    meta.Metrics,
		StepsTaken: meta.Steps,
		Rejected:   meta.Rejected,
		Clamps:     meta.Clamps,
	}, nil
}

func plotRun(cmd *cobra.Command, args []string) error {
	meta, result, err := loadRun(args[0])
	if err != nil {
		return err
	}

	fmt.Printf("run: %s\n", meta.ID)
	fmt.Printf("model: %s\n", meta.Model)
	fmt.Printf("samples: %d\n", result.Trajectory.Len())
	if ts, ok := analysis.SteadyState(result.Trajectory, 1e-6); ok {
		fmt.Printf("steady from t=%g\n", ts)
	}
	fmt.Println()

	out, err := report.Plot(result.Trajectory, entities, 10, 80)
	if err != nil {
		return err
	}
	fmt.Print(out)

	if svgPath != "" {
		svg, err := report.SVG(result.Trajectory, entities, 800, 400)
		if err != nil {
			return err
		}
		if err := os.WriteFile(svgPath, []byte(svg), 0644); err != nil {
			return err
		}
		fmt.Printf("wrote %s\n", svgPath)
	}
	return nil
}

func exportCSV(cmd *cobra.Command, args []string) error {
	_, result, err := loadRun(args[0])
	if err != nil {
		return err
	}
	return result.Trajectory.WriteCSV(os.Stdout)
}

func exportJSON(cmd *cobra.Command, args []string) error {
	meta, result, err := loadRun(args[0])
	if err != nil {
		return err
	}
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(struct {
		*storage.RunMetadata
		Trajectory json.Marshaler `json:"trajectory"`
	}{meta, result.Trajectory})
}
