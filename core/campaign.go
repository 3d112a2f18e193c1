package core

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"

	"github.com/gocircum/statefuzz/core/mutator"
	"github.com/gocircum/statefuzz/core/packet"
	"github.com/gocircum/statefuzz/interfaces"
	"github.com/gocircum/statefuzz/pkg/logging"
	"github.com/gocircum/statefuzz/pkg/securerandom"
	"golang.org/x/sync/errgroup"
)

// ErrNoSeeds is returned when no seed survives calibration.
var ErrNoSeeds = errors.New("no usable seeds")

// maxConsecutiveFailures aborts a worker whose target stopped answering.
const maxConsecutiveFailures = 50

// Campaign runs workers that share one engine and one corpus.
type Campaign struct {
	engine     *Engine
	seeds      []packet.Sequence
	corpus     Corpus
	workers    int
	iterations int
	seed       uint64
	logger     logging.Logger

	claimed atomic.Int64
	running atomic.Bool
}

var _ interfaces.Campaign = (*Campaign)(nil)

// NewCampaign prepares a campaign over seeds. The worker count, the
// iteration budget and the rng seed come from the engine configuration; a
// zero seed is drawn from crypto/rand.
func (e *Engine) NewCampaign(seeds []packet.Sequence) (*Campaign, error) {
	cfg := e.config.Campaign
	seed := cfg.Seed
	if seed == 0 {
		var err error
		if seed, err = securerandom.Seed(); err != nil {
			return nil, fmt.Errorf("failed to draw campaign seed: %w", err)
		}
	}
	return &Campaign{
		engine:     e,
		seeds:      seeds,
		workers:    max(cfg.Workers, 1),
		iterations: cfg.Iterations,
		seed:       seed,
		logger:     e.logger.With("component", "campaign"),
	}, nil
}

// Seed returns the rng seed; running again with it replays the same
// mutations per worker.
func (c *Campaign) Seed() uint64 { return c.seed }

// Corpus returns the admitted set.
func (c *Campaign) Corpus() *Corpus { return &c.corpus }

// Run executes every seed once, then fuzzes until the iteration budget is
// spent or ctx is done. Cancellation is not an error.
func (c *Campaign) Run(ctx context.Context) error {
	if !c.running.CompareAndSwap(false, true) {
		return errors.New("campaign is already running")
	}
	defer c.running.Store(false)

	c.logger.Info("starting campaign", "seeds", len(c.seeds), "workers", c.workers, "iterations", c.iterations, "seed", c.seed)
	if err := c.calibrate(ctx); err != nil {
		return err
	}

	g, gctx := errgroup.WithContext(ctx)
	for w := 0; w < c.workers; w++ {
		worker := &worker{
			id:       w,
			campaign: c,
			rng:      mutator.NewRand(c.seed + uint64(w)),
			logger:   c.logger.With("worker", w),
		}
		g.Go(func() error { return worker.run(gctx) })
	}
	err := g.Wait()

	c.engine.monitor.SetCorpusSize(c.corpus.Len())
	c.engine.monitor.UpdateGraph(c.engine.graph.Stats())
	if ferr := c.engine.monitor.Flush(); ferr != nil {
		c.logger.Warn("failed to flush stats", "error", ferr)
	}
	if err != nil {
		return err
	}
	c.logger.Info("campaign finished", "status", c.Status())
	return nil
}

// calibrate replays every seed unmutated. Seeds whose replay could not be
// attempted are dropped; the rest enter the corpus whatever their verdict.
func (c *Campaign) calibrate(ctx context.Context) error {
	for i, seq := range c.seeds {
		if ctx.Err() != nil {
			return nil
		}
		if seq.Len() == 0 {
			continue
		}
		res, err := c.engine.Execute(ctx, seq)
		if err != nil {
			c.logger.Warn("seed execution failed", "seed", i, "error", err)
			continue
		}
		c.corpus.Add(Entry{Sequence: seq, Verdict: res.Verdict, Parent: -1})
	}
	c.engine.monitor.SetCorpusSize(c.corpus.Len())
	if c.corpus.Len() == 0 && ctx.Err() == nil {
		return ErrNoSeeds
	}
	return nil
}

// claim reserves one iteration of the budget. A budget <= 0 is unbounded.
func (c *Campaign) claim() bool {
	n := c.claimed.Add(1)
	return c.iterations <= 0 || n <= int64(c.iterations)
}

// Status implements interfaces.Campaign.
func (c *Campaign) Status() string {
	p := c.engine.monitor.Progress()
	done := c.claimed.Load()
	if c.iterations > 0 && done > int64(c.iterations) {
		done = int64(c.iterations)
	}
	return fmt.Sprintf("iterations %d/%d | corpus: %d | execs: %d | failures: %d | nodes: %d | edges: %d",
		done, c.iterations, p.Corpus, p.Executions, p.Failures, p.Nodes, p.Edges)
}

type worker struct {
	id       int
	campaign *Campaign
	rng      mutator.Rand
	logger   logging.Logger
	failures int
}

func (w *worker) run(ctx context.Context) error {
	c := w.campaign
	for ctx.Err() == nil && c.claim() {
		parent, parentIdx, ok := c.corpus.Pick(w.rng)
		if !ok {
			return nil
		}

		out, res, ran, err := c.engine.FuzzOne(ctx, parent.Sequence, w.rng)
		if ctx.Err() != nil {
			return nil
		}
		if err != nil {
			w.failures++
			w.logger.Debug("execution failed", "error", err)
			if w.failures >= maxConsecutiveFailures {
				return fmt.Errorf("worker %d: %d consecutive failed executions: %w", w.id, w.failures, err)
			}
			continue
		}
		if !ran {
			continue
		}
		w.failures = 0

		if res.Verdict.Interesting() {
			idx := c.corpus.Add(Entry{Sequence: out.Sequence, Verdict: res.Verdict, Parent: parentIdx})
			gen := c.engine.graph.NextGeneration()
			c.engine.monitor.SetCorpusSize(c.corpus.Len())
			w.logger.Debug("admitted sequence", "entry", idx, "parent", parentIdx, "verdict", res.Verdict, "kind", out.Kind, "generation", gen)
		}
		c.engine.monitor.Tick()
	}
	return nil
}
