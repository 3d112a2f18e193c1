package core

import (
	"context"
	"crypto/x509"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/gocircum/statefuzz/core/capture"
	"github.com/gocircum/statefuzz/core/config"
	"github.com/gocircum/statefuzz/core/monitor"
	"github.com/gocircum/statefuzz/core/mutator"
	"github.com/gocircum/statefuzz/core/observer"
	"github.com/gocircum/statefuzz/core/packet"
	"github.com/gocircum/statefuzz/core/scheduler"
	"github.com/gocircum/statefuzz/core/stategraph"
	"github.com/gocircum/statefuzz/core/transport"
	"github.com/gocircum/statefuzz/interfaces"
	"github.com/gocircum/statefuzz/pkg/logging"
	"github.com/prometheus/client_golang/prometheus"
	"golang.org/x/time/rate"
)

// ErrNoTarget is returned when no executor is supplied and the
// configuration names no target address.
var ErrNoTarget = errors.New("no target address configured")

// retryDelay is the base pause between connect attempts.
const retryDelay = 100 * time.Millisecond

// Options carry the collaborators NewEngine does not build from the
// configuration.
type Options struct {
	// Executor replays sequences. nil builds a TCP executor for
	// cfg.Target.
	Executor interfaces.Executor
	// Registerer receives the campaign metrics. May be nil.
	Registerer prometheus.Registerer
	// StatsCSV receives periodic stats rows. May be nil.
	StatsCSV io.Writer
}

// Engine owns the shared state of one campaign: the state graph, the
// observer feeding it, the mutator and the executor.
type Engine struct {
	config   *config.FileConfig
	graph    *stategraph.Graph
	observer *observer.Observer
	bias     *scheduler.NoveltyBias
	mutator  *mutator.Mutator
	monitor  *monitor.Monitor
	executor interfaces.Executor
	logger   logging.Logger
}

// NewEngine wires an engine from a validated configuration.
func NewEngine(cfg *config.FileConfig, opts Options, logger logging.Logger) (*Engine, error) {
	if cfg == nil {
		cfg = config.Default()
	}
	logger = logging.OrGlobal(logger)

	normalize, err := observer.ParseNormalizer(cfg.Observer.Normalize)
	if err != nil {
		return nil, fmt.Errorf("invalid observer configuration: %w", err)
	}
	weights, err := cfg.Mutation.KindWeights()
	if err != nil {
		return nil, fmt.Errorf("invalid mutation configuration: %w", err)
	}

	graph := stategraph.New(stategraph.WithIndexBucketLimit(cfg.Observer.IndexBucketLimit))

	var (
		bias   *scheduler.NoveltyBias
		policy scheduler.Policy
	)
	if cfg.Scheduler.Policy == "novelty" {
		bias = scheduler.NewNoveltyBias(cfg.Scheduler.Window, cfg.Scheduler.Boost)
		policy = bias
	}

	mon, err := monitor.New(monitor.Config{
		Workers:    cfg.Campaign.Workers,
		Interval:   cfg.Campaign.StatsInterval,
		Registerer: opts.Registerer,
		StatsCSV:   opts.StatsCSV,
	}, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to create monitor: %w", err)
	}

	exec := opts.Executor
	if exec == nil {
		if exec, err = newTargetExecutor(cfg.Target, logger); err != nil {
			return nil, err
		}
	}

	return &Engine{
		config: cfg,
		graph:  graph,
		observer: observer.New(graph, observer.Options{
			Normalize:      normalize,
			MaxSignalBytes: cfg.Observer.MaxSignalBytes,
		}, logger),
		bias:     bias,
		mutator:  mutator.New(cfg.Mutation.Options(), scheduler.New(policy), mutator.NewWeightedDispatch(weights)),
		monitor:  mon,
		executor: exec,
		logger:   logger.With("component", "engine"),
	}, nil
}

// newTargetExecutor builds the TCP executor and its dialer chain:
// logging, pacing, retries and segmentation around the base dialer.
func newTargetExecutor(t config.Target, logger logging.Logger) (*transport.Executor, error) {
	if t.Address == "" {
		return nil, ErrNoTarget
	}

	tcpCfg := &transport.TCPConfig{
		DialTimeout: t.DialTimeout,
		SOCKS5Proxy: t.SOCKS5Proxy,
	}
	if t.TLS.Enabled {
		tlsCfg, err := targetTLSConfig(t)
		if err != nil {
			return nil, err
		}
		tcpCfg.TLS = tlsCfg
	}
	base, err := transport.NewTCPDialer(tcpCfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create dialer: %w", err)
	}

	middlewares := []transport.Middleware{transport.LoggingMiddleware(logger)}
	if t.ConnectRate > 0 {
		middlewares = append(middlewares, transport.ThrottlingMiddleware(rate.Limit(t.ConnectRate), 1))
	}
	if t.DialRetries > 0 {
		middlewares = append(middlewares, transport.RetryMiddleware(t.DialRetries+1, retryDelay))
	}
	middlewares = append(middlewares, transport.SegmentingMiddleware(t.SegmentSize, t.SegmentDelay))

	return transport.NewExecutor(transport.Chain(middlewares...)(base), transport.ExecutorConfig{
		Address:       t.Address,
		ReadTimeout:   t.ReadTimeout,
		ReadBanner:    t.ReadBanner,
		MaxReplyBytes: t.MaxReplyBytes,
	}, logger), nil
}

func targetTLSConfig(t config.Target) (*transport.TLSConfig, error) {
	tlsCfg := &transport.TLSConfig{
		ClientHelloID: t.TLS.ClientHelloID,
		ServerName:    t.TLS.ServerName,
		MinVersion:    t.TLS.MinVersion,
		MaxVersion:    t.TLS.MaxVersion,
	}
	if t.TLS.RootCAFile == "" {
		return tlsCfg, nil
	}
	pem, err := os.ReadFile(t.TLS.RootCAFile)
	if err != nil {
		return nil, fmt.Errorf("failed to read root CA file '%s': %w", t.TLS.RootCAFile, err)
	}
	pool := x509.NewCertPool()
	if !pool.AppendCertsFromPEM(pem) {
		return nil, fmt.Errorf("no certificates found in '%s'", t.TLS.RootCAFile)
	}
	tlsCfg.RootCAs = pool
	return tlsCfg, nil
}

// Config returns the configuration the engine was built from.
func (e *Engine) Config() *config.FileConfig { return e.config }

// Graph returns the shared state graph.
func (e *Engine) Graph() *stategraph.Graph { return e.graph }

// Observer returns the observer feeding the graph.
func (e *Engine) Observer() *observer.Observer { return e.observer }

// Mutator returns the mutation engine.
func (e *Engine) Mutator() *mutator.Mutator { return e.mutator }

// Monitor returns the campaign monitor.
func (e *Engine) Monitor() *monitor.Monitor { return e.monitor }

// NoveltyBias returns the feedback policy, or nil when positions are
// chosen uniformly.
func (e *Engine) NoveltyBias() *scheduler.NoveltyBias { return e.bias }

// LoadSeeds decodes every capture under root with the configured capture
// options.
func (e *Engine) LoadSeeds(root string) ([]capture.Seed, error) {
	direction, err := capture.ParseDirection(e.config.Capture.Direction)
	if err != nil {
		return nil, err
	}
	return capture.LoadDir(root, capture.Options{
		Direction:  direction,
		InferSpans: e.config.Capture.InferTextSpans,
	}, e.logger)
}

// Execute replays seq once and feeds its signals into the graph. The
// returned error comes from the executor; signature failures are reported
// in Result.Err.
func (e *Engine) Execute(ctx context.Context, seq packet.Sequence) (observer.Result, error) {
	run := e.observer.Begin(seq.Len())
	err := e.executor.Execute(ctx, seq, run)
	res := run.Finish()

	if e.bias != nil {
		for _, i := range res.NovelIndices {
			e.bias.Credit(i)
		}
	}
	e.monitor.RecordExecution(res, err)
	e.monitor.UpdateGraph(e.graph.Stats())
	return res, err
}

// FuzzOne mutates seq with rng and executes the mutant. An unchanged
// mutation is not executed; its Result is zero and ran is false.
func (e *Engine) FuzzOne(ctx context.Context, seq packet.Sequence, rng mutator.Rand) (out mutator.Outcome, res observer.Result, ran bool, err error) {
	out = e.mutator.MutateOutcome(seq, rng)
	e.monitor.RecordMutation(out.Kind, out.Changed)
	if !out.Changed {
		return out, observer.Result{}, false, nil
	}
	res, err = e.Execute(ctx, out.Sequence)
	return out, res, true, err
}

// WriteGraph writes a snapshot of the state graph to path. The format
// follows the extension: .json, .yaml/.yml or .dot.
func (e *Engine) WriteGraph(path string) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create graph file: %w", err)
	}
	if err := WriteSnapshot(f, e.graph.Snapshot(), filepath.Ext(path)); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

// WriteSnapshot encodes s in the format named by ext (with or without the
// leading dot).
func WriteSnapshot(w io.Writer, s stategraph.Snapshot, ext string) error {
	switch strings.ToLower(strings.TrimPrefix(ext, ".")) {
	case "json":
		return s.WriteJSON(w)
	case "yaml", "yml":
		return s.WriteYAML(w)
	case "dot", "gv":
		return s.WriteDOT(w)
	}
	return fmt.Errorf("unsupported graph format '%s'. Supported formats are: json, yaml, dot", ext)
}
