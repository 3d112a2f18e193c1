package config

import (
	"time"

	"github.com/gocircum/statefuzz/core/mutator"
	"github.com/gocircum/statefuzz/core/observer"
)

// Defaults used by ApplyDefaults.
const (
	DefaultPolicy        = "uniform"
	DefaultWindow        = 256
	DefaultBoost         = 4.0
	DefaultDialTimeout   = 2 * time.Second
	DefaultReadTimeout   = 500 * time.Millisecond
	DefaultMaxReplyBytes = 4096
	DefaultWorkers       = 1
	DefaultIterations    = 1000
	DefaultStatsInterval = 5 * time.Second
)

// Default returns a configuration with every default applied.
func Default() *FileConfig {
	fc := &FileConfig{}
	fc.ApplyDefaults()
	return fc
}

// ApplyDefaults fills zero values.
func (fc *FileConfig) ApplyDefaults() {
	md := mutator.DefaultOptions()
	m := &fc.Mutation
	if m.MinPackets == 0 {
		m.MinPackets = md.MinPackets
	}
	if m.MaxHavocStack == 0 {
		m.MaxHavocStack = md.MaxHavocStack
	}
	if m.MaxAttempts == 0 {
		m.MaxAttempts = md.MaxAttempts
	}

	s := &fc.Scheduler
	if s.Policy == "" {
		s.Policy = DefaultPolicy
	}
	if s.Window == 0 {
		s.Window = DefaultWindow
	}
	if s.Boost == 0 {
		s.Boost = DefaultBoost
	}

	if fc.Capture.Direction == "" {
		fc.Capture.Direction = "client"
	}

	o := &fc.Observer
	if o.Normalize == "" {
		o.Normalize = "raw"
	}
	if o.MaxSignalBytes == 0 {
		o.MaxSignalBytes = observer.DefaultMaxSignalBytes
	}

	t := &fc.Target
	if t.DialTimeout == 0 {
		t.DialTimeout = DefaultDialTimeout
	}
	if t.ReadTimeout == 0 {
		t.ReadTimeout = DefaultReadTimeout
	}
	if t.MaxReplyBytes == 0 {
		t.MaxReplyBytes = DefaultMaxReplyBytes
	}
	if t.TLS.Enabled && t.TLS.ClientHelloID == "" {
		t.TLS.ClientHelloID = "HelloChrome_Auto"
	}

	c := &fc.Campaign
	if c.Workers == 0 {
		c.Workers = DefaultWorkers
	}
	if c.Iterations == 0 {
		c.Iterations = DefaultIterations
	}
	if c.StatsInterval == 0 {
		c.StatsInterval = DefaultStatsInterval
	}

	if fc.Logging.Level == "" {
		fc.Logging.Level = "info"
	}
	if fc.Logging.Format == "" {
		fc.Logging.Format = "console"
	}
}

// KindWeights converts the weight table to operator kinds.
func (m Mutation) KindWeights() (map[mutator.Kind]float64, error) {
	if len(m.Weights) == 0 {
		return nil, nil
	}
	out := make(map[mutator.Kind]float64, len(m.Weights))
	for name, w := range m.Weights {
		k, err := mutator.ParseKind(name)
		if err != nil {
			return nil, err
		}
		out[k] = w
	}
	return out, nil
}

// Options converts the bounds to mutator options.
func (m Mutation) Options() mutator.Options {
	return mutator.Options{
		MinPackets:    m.MinPackets,
		MaxPackets:    m.MaxPackets,
		MaxPacketSize: m.MaxPacketSize,
		MaxHavocStack: m.MaxHavocStack,
		MaxAttempts:   m.MaxAttempts,
	}
}
