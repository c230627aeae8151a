package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/ja7ad/runningtime/pkg/estimator"
	"github.com/ja7ad/runningtime/pkg/report"
	"github.com/ja7ad/runningtime/pkg/script"
	"github.com/ja7ad/runningtime/pkg/system/host"
	"github.com/ja7ad/runningtime/pkg/throttling"
)

type opts struct {
	configPath  string
	cacheDir    string
	fakeTime    string
	output      string
	runs        int
	reference   time.Duration
	timeout     time.Duration
	metricsFile string
	logLevel    string
	showHost    bool
}

// settings are opts merged with the environment and the config file.
type settings struct {
	cacheDir    string
	fakeTime    *float64
	output      string
	runs        int
	reference   time.Duration
	timeout     time.Duration
	metricsFile string
	logLevel    slog.Level
	showHost    bool
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		slog.Error(err.Error())
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var o opts

	root := &cobra.Command{
		Use:   "runningtime [FILE]...",
		Short: "Estimate JavaScript running time on a low-end reference CPU",
		Long: `The runningtime tool executes compiled JavaScript artifacts and reports how
long they would take to run on a low-end reference device.

The host is calibrated once with a fixed CPU-bound workload; the resulting
throttling factor is cached on disk and applied to every measurement.
Files that are not JavaScript report 0.

Environment:
  RUNNINGTIME_FAKE_TIME, SIZE_LIMIT_FAKE_TIME   report this number of seconds for every file
  RUNNINGTIME_CACHE_DIR                          cache root (default: user cache dir)

Examples:
  runningtime dist/index.js dist/vendor.js
  runningtime -o json dist/*.js
  runningtime calibrate
  runningtime cache clear`,
		Args:          cobra.ArbitraryArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := load(cmd, o)
			if err != nil {
				return err
			}
			return run(cmd.Context(), cmd.OutOrStdout(), s, args)
		},
	}

	pf := root.PersistentFlags()
	pf.StringVar(&o.configPath, "config", "", "config file (default is $HOME/.runningtime/config.yaml)")
	pf.StringVar(&o.cacheDir, "cache-dir", "", "cache root holding the throttling factor")
	pf.StringVar(&o.fakeTime, "fake-time", "", "report this many seconds for every file (testing)")
	pf.StringVarP(&o.output, "output", "o", "table", "output format: table, json or yaml")
	pf.IntVar(&o.runs, "runs", throttling.DefaultRuns, "calibration runs (median is used)")
	pf.DurationVar(&o.reference, "reference", throttling.DefaultReference, "calibration workload time on the reference CPU")
	pf.DurationVar(&o.timeout, "timeout", 0, "abort after this long (0 = no limit)")
	pf.StringVar(&o.metricsFile, "metrics-file", "", "write Prometheus metrics to this textfile")
	pf.StringVar(&o.logLevel, "log-level", "warn", "log level: debug, info, warn, error")
	pf.BoolVar(&o.showHost, "host", false, "print a host summary before the results")

	root.AddCommand(newCalibrateCmd(&o), newCacheCmd(&o))
	return root
}

// load merges flags, environment and the optional config file.
func load(cmd *cobra.Command, o opts) (settings, error) {
	v := viper.New()
	v.SetEnvPrefix("runningtime")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()
	_ = v.BindEnv("fake-time", "RUNNINGTIME_FAKE_TIME", "SIZE_LIMIT_FAKE_TIME")
	if err := v.BindPFlags(cmd.Flags()); err != nil {
		return settings{}, err
	}

	if o.configPath != "" {
		v.SetConfigFile(o.configPath)
	} else if home, err := os.UserHomeDir(); err == nil {
		v.AddConfigPath(filepath.Join(home, ".runningtime"))
		v.SetConfigName("config")
		v.SetConfigType("yaml")
	}
	if err := v.ReadInConfig(); err != nil {
		var nf viper.ConfigFileNotFoundError
		if o.configPath != "" || !errors.As(err, &nf) {
			return settings{}, fmt.Errorf("config: %w", err)
		}
	}

	s := settings{
		cacheDir:    v.GetString("cache-dir"),
		output:      strings.ToLower(v.GetString("output")),
		runs:        v.GetInt("runs"),
		reference:   v.GetDuration("reference"),
		timeout:     v.GetDuration("timeout"),
		metricsFile: v.GetString("metrics-file"),
		showHost:    v.GetBool("host"),
	}

	if s.cacheDir == "" {
		base, err := os.UserCacheDir()
		if err != nil {
			return settings{}, fmt.Errorf("cache dir: %w", err)
		}
		s.cacheDir = filepath.Join(base, "runningtime")
	}
	if ft := strings.TrimSpace(v.GetString("fake-time")); ft != "" {
		f, err := strconv.ParseFloat(ft, 64)
		if err != nil {
			return settings{}, fmt.Errorf("fake time %q: %w", ft, err)
		}
		s.fakeTime = &f
	}
	switch s.output {
	case "table", "json", "yaml":
	default:
		return settings{}, fmt.Errorf("output must be table, json or yaml")
	}
	if s.runs < 1 {
		return settings{}, fmt.Errorf("runs must be >= 1")
	}
	if s.reference <= 0 {
		return settings{}, fmt.Errorf("reference must be > 0")
	}
	if err := s.logLevel.UnmarshalText([]byte(v.GetString("log-level"))); err != nil {
		return settings{}, fmt.Errorf("log level: %w", err)
	}

	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: s.logLevel})))
	return s, nil
}

type stack struct {
	est   *estimator.Estimator
	cache *throttling.DiskCache
	reg   *prometheus.Registry
}

func build(s settings) (*stack, error) {
	logger := slog.Default()

	runner := script.NewJSRunner(script.WithLogger(logger))
	cal := throttling.NewCalibrator(runner.Benchmark,
		throttling.WithRuns(s.runs),
		throttling.WithReference(s.reference),
		throttling.WithLogger(logger),
	)
	cache := throttling.NewDiskCache(nil, s.cacheDir)
	reg := prometheus.NewRegistry()

	est, err := estimator.New(
		&estimator.Config{FixedDuration: s.fakeTime},
		cache, runner, cal,
		estimator.WithLogger(logger),
		estimator.WithMetrics(estimator.NewMetrics(reg)),
	)
	if err != nil {
		return nil, err
	}
	return &stack{est: est, cache: cache, reg: reg}, nil
}

func withSignals(ctx context.Context, s settings) (context.Context, context.CancelFunc) {
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	if s.timeout <= 0 {
		return ctx, stop
	}
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	return ctx, func() {
		cancel()
		stop()
	}
}

func run(ctx context.Context, w io.Writer, s settings, args []string) error {
	if len(args) == 0 {
		return fmt.Errorf("no files provided")
	}

	st, err := build(s)
	if err != nil {
		return err
	}
	ctx, cancel := withSignals(ctx, s)
	defer cancel()

	if s.showHost {
		printHost(w, host.Describe(ctx), st.cache.Path())
	}

	// Estimate every file concurrently; results keep argument order.
	acc := report.New()
	var wg sync.WaitGroup
	for i, p := range args {
		i, p := i, p
		wg.Add(1)
		go func() {
			defer wg.Done()
			sec, err := st.est.Estimate(ctx, p)
			if err != nil {
				slog.Warn("estimate failed", "path", p, "err", err)
			}
			acc.Apply(i, p, sec, s.fakeTime != nil, err)
		}()
	}
	wg.Wait()

	sum := acc.Summary()
	if s.fakeTime == nil {
		if f, ok := st.cache.Read(); ok {
			sum.Throttling = float64(f)
		}
	}
	if err := render(w, s.output, sum); err != nil {
		return err
	}
	if err := writeMetrics(s, st.reg); err != nil {
		return err
	}

	if sum.Failed > 0 {
		return fmt.Errorf("%d of %d artifacts failed", sum.Failed, len(args))
	}
	return nil
}

func writeMetrics(s settings, reg *prometheus.Registry) error {
	if s.metricsFile == "" {
		return nil
	}
	if err := os.MkdirAll(filepath.Dir(s.metricsFile), 0o755); err != nil {
		return fmt.Errorf("metrics: %w", err)
	}
	if err := prometheus.WriteToTextfile(s.metricsFile, reg); err != nil {
		return fmt.Errorf("metrics: %w", err)
	}
	return nil
}
