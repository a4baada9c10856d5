// Package cmd - combine command
package cmd

import (
	"context"
	stderrors "errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	backend "github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"ltcombine/adapters/treefile"
	"ltcombine/core/combiner"
	"ltcombine/core/determinism"
	"ltcombine/core/pipeline"
	"ltcombine/core/processors"
	"ltcombine/core/ui"
	"ltcombine/internal/config"
	"ltcombine/internal/logging"
)

var (
	combineCommon       []string
	combineAveraged     []string
	combinePairwise     int
	combineOuterSamples int
	combineDownSample   int
	combineSeed         int64
	combineCSV          string
	combineTree         string
	combineRedis        string
	combineRedisPrefix  string
	combineSummary      bool
	combineMetricsAddr  string
	combineThreads      int
	combineIOThreads    int
	combineTimeout      time.Duration
)

// combineCmd represents the combine command
var combineCmd = &cobra.Command{
	Use:   "combine <outer-tree> <inner-tree>",
	Short: "Combine an outer and an inner logic tree",
	Long: `Combine two logic tree files and stream every combined branch through
the configured processors.

Tree files are JSON, YAML or HCL, chosen by extension. Levels with the same
node type in both files are the same level; list them with --common to keep
only inner branches that agree with the outer branch on those levels.

Examples:
  ltcombine combine source.json gmpe.yaml --csv combined.csv
  ltcombine combine source.json gmpe.hcl --common MAG --average SITE
  ltcombine combine source.json gmpe.hcl --pairwise 5 --outer-samples 100 --seed 7
  ltcombine combine source.json gmpe.hcl --downsample 500 --tree combined.json
  ltcombine combine source.json gmpe.hcl --redis localhost:6379 --metrics-addr :9090`,
	Args: cobra.ExactArgs(2),
	RunE: runCombine,
}

func init() {
	f := combineCmd.Flags()
	f.StringSliceVar(&combineCommon, "common", nil, "node types of the levels shared by both trees")
	f.StringSliceVar(&combineAveraged, "average", nil, "node types of the levels to average out")
	f.IntVar(&combinePairwise, "pairwise", 0, "pairwise-sample this many inner branches per outer branch")
	f.IntVar(&combineOuterSamples, "outer-samples", 0, "pre-sample the outer tree to this many branches (with --pairwise)")
	f.IntVar(&combineDownSample, "downsample", 0, "down-sample the combined tree to this many branches")
	f.Int64Var(&combineSeed, "seed", 0, "random seed (0 derives one from the tree sizes)")
	f.StringVar(&combineCSV, "csv", "", "write one CSV row per combined branch to this file")
	f.StringVar(&combineTree, "tree", "", "write the combined tree to this file (.json, .yaml or .hcl)")
	f.StringVar(&combineRedis, "redis", "", "store combined branches in redis at this address")
	f.StringVar(&combineRedisPrefix, "redis-prefix", "", "key prefix for the redis hashes")
	f.BoolVar(&combineSummary, "summary", true, "print the weight carried by every node")
	f.StringVar(&combineMetricsAddr, "metrics-addr", "", "serve prometheus metrics on this address while running")
	f.IntVar(&combineThreads, "threads", 0, "compute threads (0 uses all CPUs)")
	f.IntVar(&combineIOThreads, "io-threads", 0, "IO threads (0 derives from --threads)")
	f.DurationVar(&combineTimeout, "timeout", 0, "abort the run after this long (0 disables)")
}

// applyCombineFlags overrides the configuration with explicitly set flags
func applyCombineFlags(cmd *cobra.Command, cfg *config.Config) error {
	f := cmd.Flags()
	if f.Changed("pairwise") {
		cfg.Sampling.PairwiseSamples = combinePairwise
	}
	if f.Changed("outer-samples") {
		cfg.Sampling.OuterSamples = combineOuterSamples
	}
	if f.Changed("downsample") {
		cfg.Sampling.DownSample = combineDownSample
	}
	if f.Changed("seed") {
		cfg.Sampling.Seed = combineSeed
	}
	if f.Changed("csv") {
		cfg.Output.CSVPath = combineCSV
	}
	if f.Changed("tree") {
		cfg.Output.TreePath = combineTree
	}
	if f.Changed("summary") {
		cfg.Output.ShowSummary = combineSummary
	}
	if f.Changed("redis") {
		cfg.Redis.Addr = combineRedis
	}
	if f.Changed("redis-prefix") {
		cfg.Redis.KeyPrefix = combineRedisPrefix
	}
	if f.Changed("metrics-addr") {
		cfg.Metrics.Addr = combineMetricsAddr
	}
	if f.Changed("threads") {
		cfg.Pipeline.ComputeThreads = combineThreads
	}
	if f.Changed("io-threads") {
		cfg.Pipeline.IOThreads = combineIOThreads
	}
	return cfg.Validate()
}

func runCombine(cmd *cobra.Command, args []string) error {
	cfg := *config.Get()
	if err := applyCombineFlags(cmd, &cfg); err != nil {
		return err
	}
	logger := logging.Component("cli")
	defer logging.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if combineTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, combineTimeout)
		defer cancel()
	}

	reg := treefile.NewRegistry(nil)
	outer, err := reg.Load(args[0])
	if err != nil {
		return fmt.Errorf("loading outer tree: %w", err)
	}
	inner, err := reg.Load(args[1])
	if err != nil {
		return fmt.Errorf("loading inner tree: %w", err)
	}

	common, err := reg.LevelsOf(combineCommon...)
	if err != nil {
		return err
	}
	averaged, err := reg.LevelsOf(combineAveraged...)
	if err != nil {
		return err
	}

	c, err := combiner.New(outer, inner,
		combiner.WithCommonLevels(common...),
		combiner.WithAveragedLevels(averaged...),
	)
	if err != nil {
		return fmt.Errorf("preparing combination: %w", err)
	}

	if n := cfg.Sampling.PairwiseSamples; n > 0 {
		seed := cfg.Sampling.Seed
		if seed == 0 {
			seed = determinism.DefaultSeed(c.ExpectedCombinations(), max(cfg.Sampling.OuterSamples, 1)*n)
		}
		if err := c.PairwiseSample(cfg.Sampling.OuterSamples, n, seed); err != nil {
			return fmt.Errorf("pairwise sampling: %w", err)
		}
	}
	if n := cfg.Sampling.DownSample; n > 0 {
		seed := cfg.Sampling.Seed
		if seed == 0 {
			seed = determinism.DefaultSeed(c.ExpectedCombinations(), n)
		}
		if err := c.DownSample(n, seed); err != nil {
			return fmt.Errorf("down-sampling: %w", err)
		}
	}

	promReg := prometheus.NewRegistry()
	metrics, err := pipeline.NewMetrics(promReg)
	if err != nil {
		return err
	}
	if cfg.Metrics.Addr != "" {
		srv := serveMetrics(cfg.Metrics.Addr, promReg, logger)
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = srv.Shutdown(shutdownCtx)
		}()
	}

	p := pipeline.New(c,
		pipeline.WithComputeThreads(cfg.Pipeline.ComputeThreads),
		pipeline.WithIOThreads(cfg.Pipeline.IOThreads),
		pipeline.WithObserver(progressObserver(cmd)),
		pipeline.WithMetrics(metrics),
	)

	summary := processors.NewWeightSummary(nil)
	p.Add(summary)
	if cfg.Output.CSVPath != "" {
		p.Add(processors.NewCSVWriter(cfg.Output.CSVPath))
	}
	if cfg.Redis.Addr != "" {
		client := backend.NewClient(&backend.Options{Addr: cfg.Redis.Addr})
		defer client.Close()
		p.Add(processors.NewRedisSink(client, cfg.Redis.KeyPrefix+":"))
	}

	report, err := p.Run(ctx)
	if err != nil {
		return fmt.Errorf("combining: %w", err)
	}

	if cfg.Output.TreePath != "" {
		tree, err := c.Tree()
		if err != nil {
			return err
		}
		if err := treefile.Write(cfg.Output.TreePath, tree); err != nil {
			return err
		}
	}

	w := ui.NewWriter(cmd.OutOrStdout(), noColor)
	w.RenderReport(report, len(c.Levels()), c.SamplingStats())
	if cfg.Output.ShowSummary {
		w.RenderSummary(summary.Report())
	}
	return nil
}

func serveMetrics(addr string, reg *prometheus.Registry, logger *zap.Logger) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg}))
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		if err := srv.ListenAndServe(); err != nil && !stderrors.Is(err, http.ErrServerClosed) {
			logger.Warn("metrics server stopped", zap.String("addr", addr), zap.Error(err))
		}
	}()
	logger.Info("serving metrics", zap.String("addr", addr))
	return srv
}

// progressObserver logs progress in verbose mode and draws a bar otherwise
func progressObserver(cmd *cobra.Command) pipeline.Observer {
	if verbose {
		return pipeline.LogObserver{Logger: logging.Component("pipeline")}
	}
	return ui.NewWriter(cmd.ErrOrStderr(), noColor).NewProgressObserver()
}
