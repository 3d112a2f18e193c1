package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gocircum/statefuzz"
	"github.com/gocircum/statefuzz/core"
	"github.com/gocircum/statefuzz/core/config"
	"github.com/gocircum/statefuzz/pkg/logging"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

func runFuzz(args []string, out io.Writer) error {
	fs := newFlagSet("fuzz")
	configPath := fs.String("config", "", "Path to the YAML campaign configuration")
	target := fs.String("target", "", "Target address, overrides target.address")
	seeds := fs.String("seeds", "", "Seed capture directory, overrides campaign.seeds_dir")
	iterations := fs.Int("iterations", -1, "Iteration budget, overrides campaign.iterations (0 runs until interrupted)")
	workers := fs.Int("workers", 0, "Worker count, overrides campaign.workers")
	graphOut := fs.String("graph", "", "Graph output file, overrides campaign.graph_output")
	if err := fs.Parse(args); err != nil {
		return err
	}

	cfg, err := loadConfig(*configPath)
	if err != nil {
		return err
	}
	if *target != "" {
		cfg.Target.Address = *target
	}
	if *seeds != "" {
		cfg.Campaign.SeedsDir = *seeds
	}
	if *iterations >= 0 {
		cfg.Campaign.Iterations = *iterations
	}
	if *workers > 0 {
		cfg.Campaign.Workers = *workers
	}
	if *graphOut != "" {
		cfg.Campaign.GraphOutput = *graphOut
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	// Flags given on the command line win over the file.
	if _, given := lookupFlag(os.Args[1:], "log-level"); !given && cfg.Logging.Level != "" {
		logging.InitLogger(cfg.Logging.Level, cfg.Logging.Format, nil)
	}
	logger := logging.GetLogger()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	opts := core.Options{Registerer: reg}

	if cfg.Campaign.StatsCSV != "" {
		f, err := os.Create(cfg.Campaign.StatsCSV)
		if err != nil {
			return fmt.Errorf("failed to create stats file: %w", err)
		}
		defer f.Close()
		opts.StatsCSV = f
	}

	if cfg.Campaign.MetricsAddr != "" {
		srv := &http.Server{
			Addr:              cfg.Campaign.MetricsAddr,
			Handler:           metricsMux(reg),
			ReadHeaderTimeout: 5 * time.Second,
		}
		go func() {
			logger.Info("serving metrics", "addr", srv.Addr)
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Error("metrics server failed", "error", err)
			}
		}()
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
			defer cancel()
			_ = srv.Shutdown(shutdownCtx)
		}()
	}

	fuzzer, err := statefuzz.NewFuzzer(cfg, opts, logger)
	if err != nil {
		return err
	}

	err = fuzzer.Run(ctx)
	fmt.Fprintln(out, fuzzer.Status())
	if cfg.Campaign.GraphOutput != "" {
		fmt.Fprintf(out, "state graph written to %s\n", cfg.Campaign.GraphOutput)
	}
	return err
}

func loadConfig(path string) (*config.FileConfig, error) {
	if path == "" {
		return config.Default(), nil
	}
	return config.LoadFileConfig(path)
}

func metricsMux(reg *prometheus.Registry) *http.ServeMux {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg}))
	return mux
}
