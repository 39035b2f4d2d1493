package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/inference-sim/particle-sim/internal/telemetry"
	"github.com/inference-sim/particle-sim/sim"
	"github.com/inference-sim/particle-sim/sim/coupled"
	"github.com/inference-sim/particle-sim/sim/message"
	"github.com/inference-sim/particle-sim/sim/metrics"
	"github.com/inference-sim/particle-sim/sim/particle"
	"github.com/inference-sim/particle-sim/sim/trace"
	"github.com/inference-sim/particle-sim/sim/trace/sqlite"
)

var (
	// CLI flags for the run command
	configPath       string  // Run configuration YAML
	particlesPath    string  // Particle configuration (JSON or YAML)
	logLevel         string  // Log verbosity level
	horizon          float64 // Simulated time to run until
	seed             int64   // Seed for the impulse source
	restCoefficient  float64 // Coefficient of restitution
	restDelay        float64 // Delay between loading and restitution
	collisionCutoff  float64 // Predictions further ahead than this are ignored
	contactTolerance float64 // Approaching pairs closer than this collide immediately
	noImpulses       bool    // Disable the random impulse source
	maxSteps         int     // Abort after this many steps (0 = unlimited)
	cacheLogging     bool    // Log the detector cache size after every update
	traceTextPath    string  // Text message log output
	traceJSONLPath   string  // JSON lines trace output
	traceSQLitePath  string  // SQLite trace output
	metricsPath      string  // Prometheus textfile output
	printSummary     bool    // Print a trace summary when the run ends
)

// rootCmd is the base command for the CLI
var rootCmd = &cobra.Command{
	Use:   "particle-sim",
	Short: "Discrete-event particle collision simulator",
}

// runCmd executes the simulation
var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the particle simulation",
	Run: func(cmd *cobra.Command, args []string) {
		level, err := logrus.ParseLevel(logLevel)
		if err != nil {
			logrus.Fatalf("Invalid log level: %s", logLevel)
		}
		logrus.SetLevel(level)

		cfg, err := resolveRunConfig(cmd)
		if err != nil {
			logrus.Fatalf("%v", err)
		}
		table, err := particle.Load(particlesPath)
		if err != nil {
			logrus.Fatalf("Failed to load particles: %v", err)
		}

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		telemetryCfg, err := telemetry.ConfigFromEnv()
		if err != nil {
			logrus.Fatalf("%v", err)
		}
		shutdown, err := telemetry.Setup(ctx, "particle-sim", telemetryCfg, telemetry.Run{
			Seed:       cfg.Seed,
			Particles:  table.Len(),
			Dimensions: table.Dim,
			Horizon:    cfg.Horizon,
			Impulses:   cfg.ImpulsesEnabled,
		})
		if err != nil {
			logrus.Warnf("Tracing disabled: %v", err)
		}
		defer func() {
			if err := shutdown(context.Background()); err != nil {
				logrus.Warnf("Tracing shutdown: %v", err)
			}
		}()

		logrus.Infof("Starting simulation: %d particles in %dD, horizon=%g, seed=%d, e=%g, restitution delay=%g, impulses=%v",
			table.Len(), table.Dim, cfg.Horizon, cfg.Seed, cfg.RestitutionCoefficient, cfg.RestitutionDelay, cfg.ImpulsesEnabled)
		startTime := time.Now()

		summary, err := runSimulation(ctx, table, cfg, outputOptions{
			textPath:     traceTextPath,
			jsonlPath:    traceJSONLPath,
			sqlitePath:   traceSQLitePath,
			metricsPath:  metricsPath,
			keepRecords:  printSummary,
			cacheLogging: cacheLogging,
		})
		if err != nil {
			logrus.Fatalf("Simulation failed: %v", err)
		}
		if printSummary {
			printTraceSummary(summary)
		}
		logrus.Infof("Simulation complete in %v.", time.Since(startTime))
	},
}

// resolveRunConfig layers defaults, the --config file, PARTICLE_SIM_* env
// variables and explicitly set flags, in that order.
func resolveRunConfig(cmd *cobra.Command) (RunConfig, error) {
	cfg := DefaultRunConfig()
	if configPath != "" {
		loaded, err := LoadRunConfig(configPath, cfg)
		if err != nil {
			return cfg, err
		}
		cfg = loaded
	}
	if err := ApplyEnv(&cfg); err != nil {
		return cfg, err
	}

	flags := cmd.Flags()
	if flags.Changed("horizon") {
		cfg.Horizon = horizon
	}
	if flags.Changed("seed") {
		cfg.Seed = seed
	}
	if flags.Changed("restitution-coefficient") {
		cfg.RestitutionCoefficient = restCoefficient
	}
	if flags.Changed("restitution-delay") {
		cfg.RestitutionDelay = restDelay
	}
	if flags.Changed("collision-cutoff") {
		cfg.CollisionCutoff = collisionCutoff
	}
	if flags.Changed("contact-tolerance") {
		cfg.ContactTolerance = contactTolerance
	}
	if flags.Changed("no-impulses") {
		cfg.ImpulsesEnabled = !noImpulses
	}
	if flags.Changed("max-steps") {
		cfg.MaxSteps = maxSteps
	}
	return cfg, cfg.Validate()
}

// outputOptions selects where a run's external output goes.
type outputOptions struct {
	textPath     string
	jsonlPath    string
	sqlitePath   string
	metricsPath  string
	keepRecords  bool
	cacheLogging bool
}

// runSimulation builds the simulator, wires its output to the requested
// writers and runs it to the configured horizon.
func runSimulation(ctx context.Context, table *particle.Table, cfg RunConfig, out outputOptions) (*trace.Summary, error) {
	var writers []trace.Writer
	closeAll := func() {
		for _, w := range writers {
			_ = w.Close()
		}
	}
	if out.textPath != "" {
		f, err := os.Create(out.textPath)
		if err != nil {
			return nil, fmt.Errorf("create text trace: %w", err)
		}
		writers = append(writers, trace.NewTextWriter(f))
	}
	if out.jsonlPath != "" {
		f, err := os.Create(out.jsonlPath)
		if err != nil {
			closeAll()
			return nil, fmt.Errorf("create jsonl trace: %w", err)
		}
		writers = append(writers, trace.NewJSONLWriter(f))
	}
	if out.sqlitePath != "" {
		store, err := sqlite.Open(out.sqlitePath)
		if err != nil {
			closeAll()
			return nil, err
		}
		writers = append(writers, store)
	}
	collectors := metrics.New()
	writers = append(writers, collectors)
	recorder := trace.NewRecorder(out.keepRecords, writers...)

	sysCfg := cfg.SystemConfig()
	sysCfg.Detector.LogCacheSize = out.cacheLogging

	var sys *coupled.System
	hook := func(info sim.StepInfo) {
		collectors.ObserveStep(info)
		collectors.SetCacheEntries(sys.Detector.CacheLen())
		collectors.SetLoading(sys.Responder.Forest().Live(), sys.Responder.LoadingEdges())
	}
	sys, err := coupled.New(table, sysCfg, sim.WithOutputSink(recorder.Sink()), sim.WithStepHook(hook))
	if err != nil {
		_ = recorder.Close()
		return nil, err
	}

	runErr := sys.Run(ctx, cfg.Horizon)
	closeErr := recorder.Close()
	if runErr != nil {
		return nil, runErr
	}
	if closeErr != nil {
		return nil, closeErr
	}
	if out.metricsPath != "" {
		if err := collectors.WriteTextfile(out.metricsPath); err != nil {
			return nil, err
		}
	}
	logrus.Infof("Run ended at t=%g after %d steps", sys.Clock(), sys.Kernel().Steps())
	return trace.Summarize(recorder.Records()), nil
}

func printTraceSummary(s *trace.Summary) {
	var b strings.Builder
	fmt.Fprintf(&b, "=== Trace Summary ===\n")
	fmt.Fprintf(&b, "Records:          %d\n", s.Records)
	fmt.Fprintf(&b, "Last event time:  %g\n", s.LastTime)
	fmt.Fprintf(&b, "Impulses:         %d\n", s.Impulses)
	fmt.Fprintf(&b, "Collisions:       %d (%d distinct pairs)\n", s.Collisions, s.DistinctPair)
	for _, p := range []message.Purpose{message.PurposeImpulse, message.PurposeLoad, message.PurposeRestitution} {
		fmt.Fprintf(&b, "Responses (%-4s): %d\n", p, s.ByPurpose[p])
	}
	fmt.Print(b.String())
}

// Execute runs the CLI root command
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// init sets up CLI flags and subcommands
func init() {
	runCmd.Flags().StringVar(&configPath, "config", "", "Run configuration YAML")
	runCmd.Flags().StringVar(&particlesPath, "particles", "", "Particle configuration file (.json, .yaml or .yml)")
	runCmd.Flags().StringVar(&logLevel, "log", "warn", "Log level (trace, debug, info, warn, error, fatal, panic)")

	defaults := DefaultRunConfig()
	runCmd.Flags().Float64Var(&horizon, "horizon", defaults.Horizon, "Simulated time to run until")
	runCmd.Flags().Int64Var(&seed, "seed", defaults.Seed, "Seed for the random impulse source")
	runCmd.Flags().Float64Var(&restCoefficient, "restitution-coefficient", defaults.RestitutionCoefficient, "Coefficient of restitution (1 = elastic)")
	runCmd.Flags().Float64Var(&restDelay, "restitution-delay", defaults.RestitutionDelay, "Delay between a collision and its restitution")
	runCmd.Flags().Float64Var(&collisionCutoff, "collision-cutoff", defaults.CollisionCutoff, "Ignore collisions predicted further ahead than this")
	runCmd.Flags().Float64Var(&contactTolerance, "contact-tolerance", defaults.ContactTolerance, "Gap below which an approaching pair counts as touching and collides immediately")
	runCmd.Flags().BoolVar(&noImpulses, "no-impulses", false, "Disable random impulses")
	runCmd.Flags().IntVar(&maxSteps, "max-steps", 0, "Abort after this many steps (0 = unlimited)")
	runCmd.Flags().BoolVar(&cacheLogging, "cache-logging", false, "Log the collision cache size after every update")

	runCmd.Flags().StringVar(&traceTextPath, "trace-text", "", "Write the text message log to this file")
	runCmd.Flags().StringVar(&traceJSONLPath, "trace-jsonl", "", "Write a JSON lines trace to this file")
	runCmd.Flags().StringVar(&traceSQLitePath, "trace-sqlite", "", "Write the trace to this SQLite database")
	runCmd.Flags().StringVar(&metricsPath, "metrics-textfile", "", "Write Prometheus metrics to this file when the run ends")
	runCmd.Flags().BoolVar(&printSummary, "summary", false, "Print a trace summary when the run ends")
	_ = runCmd.MarkFlagRequired("particles")

	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(generateCmd)
	rootCmd.AddCommand(snapshotCmd)
}

// traceFormat infers a trace's format from its extension.
func traceFormat(path string) string {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".jsonl", ".ndjson":
		return "jsonl"
	case ".db", ".sqlite", ".sqlite3":
		return "sqlite"
	default:
		return "text"
	}
}
