package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/olekukonko/tablewriter"
	"github.com/rs/zerolog"
	"github.com/spf13/afero"
	"github.com/spf13/cobra"

	"github.com/rocketlyz/rspack/internal/cache"
	"github.com/rocketlyz/rspack/internal/compiler"
	"github.com/rocketlyz/rspack/internal/config"
	"github.com/rocketlyz/rspack/internal/graph"
	"github.com/rocketlyz/rspack/internal/loader/builtin"
	"github.com/rocketlyz/rspack/internal/metrics"
	"github.com/rocketlyz/rspack/internal/observability"
	"github.com/rocketlyz/rspack/internal/parser/javascript"
	"github.com/rocketlyz/rspack/internal/scaffold"
	"github.com/rocketlyz/rspack/internal/server"
	"github.com/rocketlyz/rspack/internal/watch"
)

var version = "dev"

func main() {
	var (
		configPath string
		logLevel   string
		logFormat  string

		watchMode   bool
		noEmit      bool
		jsonReport  bool
		metricsAddr string

		graphFormat string

		initDir      string
		initTemplate string
	)

	rootCmd := &cobra.Command{
		Use:           "rspack",
		Short:         "Build JavaScript modules through configurable loader chains",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "Config file path (default: rspack.{yaml,toml,json} in the working directory)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "Log level: trace, debug, info, warn, error")
	rootCmd.PersistentFlags().StringVar(&logFormat, "log-format", "", "Log format: console or json")

	buildCmd := &cobra.Command{
		Use:   "build",
		Short: "Build the configured entries",
		RunE: func(cmd *cobra.Command, args []string) error {
			env, err := setup(cmd.Context(), afero.NewOsFs(), configPath, logLevel, logFormat)
			if err != nil {
				return err
			}
			if metricsAddr != "" {
				env.cfg.Metrics.Addr = metricsAddr
			}
			if watchMode {
				return env.watch(cmd.Context(), cmd.OutOrStdout(), !noEmit)
			}
			defer env.close()
			return env.build(cmd.Context(), cmd.OutOrStdout(), !noEmit, jsonReport)
		},
	}
	buildCmd.Flags().BoolVarP(&watchMode, "watch", "w", false, "Rebuild when a source file changes")
	buildCmd.Flags().BoolVar(&noEmit, "no-emit", false, "Build without writing the output directory")
	buildCmd.Flags().BoolVar(&jsonReport, "json", false, "Print the build report as JSON")
	buildCmd.Flags().StringVar(&metricsAddr, "metrics-addr", "", "Serve /metrics and /health on this address while watching")

	graphCmd := &cobra.Command{
		Use:   "graph",
		Short: "Print the module graph",
		RunE: func(cmd *cobra.Command, args []string) error {
			env, err := setup(cmd.Context(), afero.NewOsFs(), configPath, logLevel, logFormat)
			if err != nil {
				return err
			}
			defer env.close()
			return env.graph(cmd.Context(), cmd.OutOrStdout(), graphFormat)
		},
	}
	graphCmd.Flags().StringVarP(&graphFormat, "format", "f", "stats", "Output format: dot, mermaid, json or stats")

	loadersCmd := &cobra.Command{
		Use:   "loaders",
		Short: "List the built-in loaders and the rules using them",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(configPath)
			if err != nil {
				fmt.Fprintf(os.Stderr, "Warning: config load failed (%v), listing loaders only\n", err)
				cfg = &config.Config{}
			}
			listLoaders(cmd.OutOrStdout(), builtin.Default(), cfg)
			return nil
		},
	}

	initCmd := &cobra.Command{
		Use:   "init",
		Short: "Create a new project from a template",
		RunE: func(cmd *cobra.Command, args []string) error {
			cwd, err := os.Getwd()
			if err != nil {
				return err
			}
			return initProject(cmd.InOrStdin(), cmd.OutOrStdout(), afero.NewOsFs(), cwd, initDir, initTemplate)
		},
	}
	initCmd.Flags().StringVarP(&initDir, "dir", "d", "", "Project folder (prompted when empty)")
	initCmd.Flags().StringVarP(&initTemplate, "template", "t", "", "Project template (prompted when empty)")

	rootCmd.AddCommand(buildCmd, graphCmd, loadersCmd, initCmd)

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// env holds what every build command shares.
type env struct {
	fs      afero.Fs
	parse   javascript.ParseFunc
	cfg     *config.Config
	logger  zerolog.Logger
	tracing *observability.TracerProvider
	metrics *observability.BuildMetrics
	store   cache.Store
	cache   *cache.Cache
}

func setup(ctx context.Context, fs afero.Fs, configPath, logLevel, logFormat string) (*env, error) {
	cfg, err := config.LoadFs(fs, configPath)
	if err != nil {
		return nil, err
	}
	if logLevel != "" {
		cfg.Log.Level = logLevel
	}
	if logFormat != "" {
		cfg.Log.Format = logFormat
	}
	for _, w := range cfg.Validate() {
		fmt.Fprintf(os.Stderr, "Warning: %s\n", w)
	}

	logger := observability.NewLogger(observability.LogConfig{Level: cfg.Log.Level, Format: cfg.Log.Format}, os.Stderr)

	tcfg := observability.DefaultTracingConfig()
	tcfg.ServiceVersion = version
	tcfg.OTLPEndpoint = cfg.Tracing.Endpoint
	tcfg.SampleRate = cfg.Tracing.SampleRate
	if cfg.Tracing.Environment != "" {
		tcfg.Environment = cfg.Tracing.Environment
	}
	tp, err := observability.InitTracing(ctx, tcfg)
	if err != nil {
		return nil, err
	}

	m := observability.NewBuildMetrics()
	store, err := cache.NewStore(ctx, cfg.Cache, fs, logger)
	if err != nil {
		tp.Shutdown(ctx)
		return nil, err
	}

	return &env{
		fs:      fs,
		cfg:     cfg,
		logger:  logger,
		tracing: tp,
		metrics: m,
		store:   store,
		cache:   cache.New(store, fs, logger, m),
	}, nil
}

func (e *env) close() {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := e.tracing.Shutdown(ctx); err != nil {
		e.logger.Warn().Err(err).Msg("flushing traces failed")
	}
	if e.store != nil {
		if err := e.store.Close(); err != nil {
			e.logger.Warn().Err(err).Msg("closing cache failed")
		}
	}
}

func (e *env) compiler(emit bool) (*compiler.Compiler, error) {
	opts := []compiler.Option{
		compiler.WithFs(e.fs),
		compiler.WithLogger(e.logger),
		compiler.WithMetrics(e.metrics),
		compiler.WithCache(e.cache),
		compiler.WithEmit(emit),
	}
	if e.parse != nil {
		opts = append(opts, compiler.WithParser(e.parse))
	}
	return compiler.New(e.cfg, opts...)
}

func (e *env) build(ctx context.Context, out io.Writer, emit, jsonReport bool) error {
	c, err := e.compiler(emit)
	if err != nil {
		return err
	}

	stats, err := c.Run(ctx)
	if jsonReport {
		report := metrics.New()
		report.Collect(stats, err)
		report.Finish()
		if werr := report.WriteJSON(out); werr != nil {
			return werr
		}
		return err
	}
	if err != nil {
		return err
	}
	stats.WriteSummary(out)
	return nil
}

// watch rebuilds on every change until SIGINT or SIGTERM. Build errors are
// reported and watching continues.
func (e *env) watch(ctx context.Context, out io.Writer, emit bool) error {
	c, err := e.compiler(emit)
	if err != nil {
		e.close()
		return err
	}

	stopCfg := server.DefaultStopConfig()
	stopCfg.Logger = e.logger
	ep := server.NewEndpoint(version, stopCfg)
	ep.Health.Handle("/metrics", e.metrics.Handler())

	var status server.BuildStatus
	ep.Health.AddCheck("build", status.Check)
	if rs, ok := e.store.(*cache.RedisStore); ok {
		ep.Health.AddCheck("cache", server.PingCheck("redis cache", rs.Ping))
	}
	ep.Stop.OnStop(server.TracingHook(e.tracing.Shutdown))
	if e.store != nil {
		ep.Stop.OnStop(server.CacheHook(e.store.Close))
	}

	ctx = ep.Stop.Context(ctx)
	addr, err := ep.Start(e.cfg.Metrics.Addr)
	if err != nil {
		ep.Close()
		return fmt.Errorf("serving metrics: %w", err)
	}
	if addr != "" {
		e.logger.Info().Str("addr", addr).Msg("serving /metrics and /health")
	}

	w := &watch.Watcher{
		Debounce: watch.DefaultDebounce,
		Logger:   e.logger,
	}
	runErr := w.Run(ctx, func(ctx context.Context, changed []string) ([]string, error) {
		stats, err := c.Run(ctx)
		status.Record(err)
		if err == nil {
			stats.WriteSummary(out)
		}
		return stats.WatchFiles(), err
	})

	ep.Close()
	return runErr
}

func (e *env) graph(ctx context.Context, out io.Writer, format string) error {
	c, err := e.compiler(false)
	if err != nil {
		return err
	}
	stats, err := c.Run(ctx)
	if err != nil {
		return err
	}

	switch format {
	case "dot":
		fmt.Fprint(out, graph.ExportDOT(stats.Graph))
	case "mermaid":
		fmt.Fprint(out, graph.ExportMermaid(stats.Graph))
	case "json":
		data, err := graph.ExportJSON(stats.Graph)
		if err != nil {
			return err
		}
		fmt.Fprintf(out, "%s\n", data)
	case "stats":
		fmt.Fprint(out, graph.FormatStats(stats.Graph))
	default:
		return fmt.Errorf("unknown graph format %q (valid: dot, mermaid, json, stats)", format)
	}
	return nil
}

func listLoaders(out io.Writer, registry *builtin.Registry, cfg *config.Config) {
	used := make(map[string]int)
	for _, r := range cfg.Module.Rules {
		for _, u := range r.Use {
			used[u.Loader]++
		}
	}

	table := tablewriter.NewWriter(out)
	table.SetHeader([]string{"Loader", "Rules"})
	table.SetBorder(false)
	for _, name := range registry.Names() {
		table.Append([]string{name, strconv.Itoa(used[name])})
	}
	table.Render()
}

func initProject(in io.Reader, out io.Writer, fs afero.Fs, cwd, dir, template string) error {
	p := &scaffold.Prompter{In: in, Out: out, Fs: fs, Cwd: cwd}

	dir, template, err := p.Ask(scaffold.FormatTargetDir(dir), template)
	if err != nil {
		return err
	}

	root := dir
	if !filepath.IsAbs(root) {
		root = filepath.Join(cwd, dir)
	}
	fmt.Fprintf(out, "\nScaffolding project in %s...\n", root)
	if _, err := scaffold.Create(fs, root, template); err != nil {
		return err
	}
	scaffold.PrintNextSteps(out, dir, scaffold.PackageManager(os.Getenv("npm_config_user_agent")))
	return nil
}
