package monitor

import (
	"encoding/csv"
	"io"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gocircum/statefuzz/core/mutator"
	"github.com/gocircum/statefuzz/core/observer"
	"github.com/gocircum/statefuzz/core/stategraph"
	"github.com/gocircum/statefuzz/pkg/logging"
	"github.com/prometheus/client_golang/prometheus"
	"golang.org/x/time/rate"
)

// DefaultInterval is the progress reporting interval.
const DefaultInterval = 5 * time.Second

// CSVHeader is the first row of the stats file.
var CSVHeader = []string{"time", "workers", "corpus", "failures", "executions", "execs_per_sec", "nodes", "edges"}

// Config configures a Monitor.
type Config struct {
	Workers int
	// Interval is the minimum time between progress log lines and CSV rows.
	Interval time.Duration
	// Registerer receives the prometheus collectors. May be nil.
	Registerer prometheus.Registerer
	// StatsCSV receives one row per report. May be nil.
	StatsCSV io.Writer
}

// Progress is a point-in-time view of a campaign.
type Progress struct {
	Uptime      time.Duration
	Workers     int
	Corpus      uint64
	Failures    uint64
	Executions  uint64
	ExecsPerSec float64
	// Nodes excludes the start node.
	Nodes int
	Edges int
}

// Monitor aggregates campaign counters. It is safe for concurrent use.
type Monitor struct {
	metrics *Metrics
	logger  logging.Logger
	limiter *rate.Limiter
	start   time.Time
	workers int

	executions atomic.Uint64
	failures   atomic.Uint64
	corpus     atomic.Uint64
	nodes      atomic.Int64
	edges      atomic.Int64

	mu  sync.Mutex
	csv *csv.Writer
}

// New creates a Monitor. When cfg.StatsCSV is set the header row is written
// immediately.
func New(cfg Config, logger logging.Logger) (*Monitor, error) {
	metrics, err := NewMetrics(cfg.Registerer)
	if err != nil {
		return nil, err
	}
	if cfg.Interval <= 0 {
		cfg.Interval = DefaultInterval
	}
	m := &Monitor{
		metrics: metrics,
		logger:  logging.OrGlobal(logger).With("component", "monitor"),
		limiter: rate.NewLimiter(rate.Every(cfg.Interval), 1),
		start:   time.Now(),
		workers: max(cfg.Workers, 1),
	}
	if cfg.StatsCSV != nil {
		m.csv = csv.NewWriter(cfg.StatsCSV)
		if err := m.csv.Write(CSVHeader); err != nil {
			return nil, err
		}
		m.csv.Flush()
		if err := m.csv.Error(); err != nil {
			return nil, err
		}
	}
	return m, nil
}

// RecordMutation counts one mutation attempt.
func (m *Monitor) RecordMutation(kind mutator.Kind, changed bool) {
	m.metrics.observeMutation(kind, changed)
}

// RecordExecution counts one finished execution. err is the executor error,
// if any.
func (m *Monitor) RecordExecution(res observer.Result, err error) {
	m.executions.Add(1)
	failed := err != nil || res.Err != nil
	if failed {
		m.failures.Add(1)
	}
	m.metrics.observeExecution(res.Verdict, failed)
}

// SetCorpusSize publishes the number of admitted sequences.
func (m *Monitor) SetCorpusSize(n int) {
	m.corpus.Store(uint64(n))
	m.metrics.corpus.Set(float64(n))
}

// UpdateGraph publishes the state graph size.
func (m *Monitor) UpdateGraph(stats stategraph.Stats) {
	nodes := max(stats.Nodes-1, 0)
	m.nodes.Store(int64(nodes))
	m.edges.Store(int64(stats.Edges))
	m.metrics.nodes.Set(float64(nodes))
	m.metrics.edges.Set(float64(stats.Edges))
}

// Progress returns the current counters.
func (m *Monitor) Progress() Progress {
	uptime := time.Since(m.start)
	p := Progress{
		Uptime:     uptime,
		Workers:    m.workers,
		Corpus:     m.corpus.Load(),
		Failures:   m.failures.Load(),
		Executions: m.executions.Load(),
		Nodes:      int(m.nodes.Load()),
		Edges:      int(m.edges.Load()),
	}
	if secs := uptime.Seconds(); secs > 0 {
		p.ExecsPerSec = float64(p.Executions) / secs
	}
	return p
}

// Tick reports progress if the interval has elapsed since the last report.
// It returns whether a report was written.
func (m *Monitor) Tick() bool {
	if !m.limiter.Allow() {
		return false
	}
	m.report()
	return true
}

// Flush reports unconditionally. Call it once the campaign ends.
func (m *Monitor) Flush() error {
	m.report()
	if m.csv == nil {
		return nil
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.csv.Error()
}

func (m *Monitor) report() {
	p := m.Progress()
	m.logger.Info("progress",
		"uptime", p.Uptime.Truncate(time.Second).String(),
		"workers", p.Workers,
		"corpus", p.Corpus,
		"failures", p.Failures,
		"executions", p.Executions,
		"exec_per_sec", strconv.FormatFloat(p.ExecsPerSec, 'f', 1, 64),
		"nodes", p.Nodes,
		"edges", p.Edges,
	)
	if m.csv == nil {
		return
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	row := []string{
		strconv.FormatInt(time.Now().Unix(), 10),
		strconv.Itoa(p.Workers),
		strconv.FormatUint(p.Corpus, 10),
		strconv.FormatUint(p.Failures, 10),
		strconv.FormatUint(p.Executions, 10),
		strconv.FormatFloat(p.ExecsPerSec, 'f', 2, 64),
		strconv.Itoa(p.Nodes),
		strconv.Itoa(p.Edges),
	}
	if err := m.csv.Write(row); err != nil {
		m.logger.Warn("failed to write stats row", "error", err)
		return
	}
	m.csv.Flush()
}
