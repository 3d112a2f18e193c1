// Package statefuzz runs state-aware fuzzing campaigns against network
// targets: seeds come from packet captures, mutants are replayed by an
// executor, and the replies build a state graph that decides which mutants
// are kept.
package statefuzz

import (
	"context"
	"fmt"
	"sync"

	"github.com/gocircum/statefuzz/core"
	"github.com/gocircum/statefuzz/core/config"
	"github.com/gocircum/statefuzz/core/packet"
	"github.com/gocircum/statefuzz/core/stategraph"
	"github.com/gocircum/statefuzz/interfaces"
	"github.com/gocircum/statefuzz/pkg/logging"
)

// Fuzzer is the library entry point. It loads seeds, runs one campaign at
// a time and persists the state graph.
type Fuzzer struct {
	engine *core.Engine
	logger logging.Logger

	mu       sync.Mutex
	seeds    []packet.Sequence
	campaign *core.Campaign
}

var _ interfaces.Campaign = (*Fuzzer)(nil)

// NewFuzzer creates a Fuzzer. Seeds are loaded from cfg.Campaign.SeedsDir
// when it is set.
func NewFuzzer(cfg *config.FileConfig, opts core.Options, logger logging.Logger) (*Fuzzer, error) {
	engine, err := core.NewEngine(cfg, opts, logger)
	if err != nil {
		return nil, err
	}
	f := &Fuzzer{
		engine: engine,
		logger: logging.OrGlobal(logger).With("component", "fuzzer"),
	}
	if dir := engine.Config().Campaign.SeedsDir; dir != "" {
		seeds, err := engine.LoadSeeds(dir)
		if err != nil {
			return nil, fmt.Errorf("failed to load seeds: %w", err)
		}
		for _, s := range seeds {
			f.seeds = append(f.seeds, s.Sequence)
		}
	}
	return f, nil
}

// Engine returns the underlying engine.
func (f *Fuzzer) Engine() *core.Engine {
	return f.engine
}

// AddSeeds queues sequences for the next Run.
func (f *Fuzzer) AddSeeds(seqs ...packet.Sequence) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.seeds = append(f.seeds, seqs...)
}

// Seeds returns the number of queued seeds.
func (f *Fuzzer) Seeds() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.seeds)
}

// Run starts a campaign over the queued seeds and blocks until it ends.
// The graph is written to campaign.graph_output afterwards, also when the
// campaign failed.
func (f *Fuzzer) Run(ctx context.Context) error {
	f.mu.Lock()
	campaign, err := f.engine.NewCampaign(append([]packet.Sequence(nil), f.seeds...))
	if err != nil {
		f.mu.Unlock()
		return err
	}
	f.campaign = campaign
	f.mu.Unlock()

	runErr := campaign.Run(ctx)
	if path := f.engine.Config().Campaign.GraphOutput; path != "" {
		if err := f.engine.WriteGraph(path); err != nil {
			f.logger.Error("failed to write state graph", "path", path, "error", err)
			if runErr == nil {
				runErr = err
			}
		} else {
			f.logger.Info("wrote state graph", "path", path)
		}
	}
	return runErr
}

// Status implements interfaces.Campaign.
func (f *Fuzzer) Status() string {
	f.mu.Lock()
	campaign := f.campaign
	f.mu.Unlock()
	if campaign == nil {
		return fmt.Sprintf("not started | seeds: %d", f.Seeds())
	}
	return campaign.Status()
}

// Snapshot returns a copy of the state graph.
func (f *Fuzzer) Snapshot() stategraph.Snapshot {
	return f.engine.Graph().Snapshot()
}
