package config

import (
	"fmt"
	"net"
	"sort"
	"strings"

	"github.com/gocircum/statefuzz/core/capture"
	"github.com/gocircum/statefuzz/core/observer"
	"github.com/gocircum/statefuzz/core/transport"
)

// Validate checks the configuration for values no component accepts.
func (fc *FileConfig) Validate() error {
	if err := fc.Mutation.Validate(); err != nil {
		return err
	}
	if err := fc.Scheduler.Validate(); err != nil {
		return err
	}
	if _, err := capture.ParseDirection(fc.Capture.Direction); err != nil {
		return fmt.Errorf("capture.direction: %w", err)
	}
	if _, err := observer.ParseNormalizer(fc.Observer.Normalize); err != nil {
		return fmt.Errorf("observer.normalize: %w", err)
	}
	if fc.Observer.MaxSignalBytes < 0 {
		return fmt.Errorf("observer.max_signal_bytes must not be negative: %d", fc.Observer.MaxSignalBytes)
	}
	if fc.Observer.IndexBucketLimit < 0 {
		return fmt.Errorf("observer.index_bucket_limit must not be negative: %d", fc.Observer.IndexBucketLimit)
	}
	if err := fc.Target.Validate(); err != nil {
		return err
	}
	if err := fc.Campaign.Validate(); err != nil {
		return err
	}
	switch fc.Logging.Format {
	case "console", "json":
	default:
		return fmt.Errorf("logging.format '%s' is invalid. Supported formats are: console, json", fc.Logging.Format)
	}
	return nil
}

// Validate checks the mutation section.
func (m Mutation) Validate() error {
	if m.MinPackets < 1 {
		return fmt.Errorf("mutation.min_packets must be at least 1, got %d", m.MinPackets)
	}
	if m.MaxPackets != 0 && m.MaxPackets < m.MinPackets {
		return fmt.Errorf("mutation.max_packets (%d) is below mutation.min_packets (%d)", m.MaxPackets, m.MinPackets)
	}
	if m.MaxPacketSize < 0 || m.MaxHavocStack < 0 || m.MaxAttempts < 0 {
		return fmt.Errorf("mutation limits must not be negative")
	}
	positive := false
	for name, w := range m.Weights {
		if w < 0 {
			return fmt.Errorf("mutation weight for '%s' must not be negative: %g", name, w)
		}
		if w > 0 {
			positive = true
		}
	}
	if len(m.Weights) > 0 && !positive {
		return fmt.Errorf("mutation.weights must give at least one operator a positive weight")
	}
	if _, err := m.KindWeights(); err != nil {
		return fmt.Errorf("mutation.weights: %w", err)
	}
	return nil
}

// Validate checks the scheduler section.
func (s Scheduler) Validate() error {
	switch s.Policy {
	case "uniform", "novelty":
	default:
		return fmt.Errorf("scheduler.policy '%s' is invalid. Supported policies are: novelty, uniform", s.Policy)
	}
	if s.Window < 0 {
		return fmt.Errorf("scheduler.window must not be negative: %d", s.Window)
	}
	if s.Boost < 0 {
		return fmt.Errorf("scheduler.boost must not be negative: %g", s.Boost)
	}
	return nil
}

// Validate checks the target section. An empty address is allowed; it is
// required only when a campaign runs against a live target.
func (t Target) Validate() error {
	if t.Address != "" {
		if _, _, err := net.SplitHostPort(t.Address); err != nil {
			return fmt.Errorf("target.address '%s' is invalid: %w", t.Address, err)
		}
	}
	if t.SOCKS5Proxy != "" {
		if _, _, err := net.SplitHostPort(t.SOCKS5Proxy); err != nil {
			return fmt.Errorf("target.socks5_proxy '%s' is invalid: %w", t.SOCKS5Proxy, err)
		}
	}
	if t.DialTimeout < 0 || t.ReadTimeout < 0 {
		return fmt.Errorf("target timeouts must not be negative")
	}
	if t.MaxReplyBytes < 0 {
		return fmt.Errorf("target.max_reply_bytes must not be negative: %d", t.MaxReplyBytes)
	}
	if t.DialRetries < 0 {
		return fmt.Errorf("target.dial_retries must not be negative: %d", t.DialRetries)
	}
	if t.SegmentSize < 0 || t.SegmentDelay < 0 {
		return fmt.Errorf("target segmentation must not be negative")
	}
	if t.ConnectRate < 0 {
		return fmt.Errorf("target.connect_rate must not be negative: %g", t.ConnectRate)
	}
	if !t.TLS.Enabled {
		return nil
	}
	if _, err := transport.ClientHello(t.TLS.ClientHelloID); err != nil {
		return fmt.Errorf("target.tls.client_hello_id '%s' is invalid. Supported IDs are: %s", t.TLS.ClientHelloID, strings.Join(transport.ClientHelloNames(), ", "))
	}
	for _, v := range []string{t.TLS.MinVersion, t.TLS.MaxVersion} {
		if v == "" {
			continue
		}
		if _, err := transport.TLSVersion(v); err != nil {
			return fmt.Errorf("invalid TLS version '%s'. Supported versions are: %s", v, supportedTLSVersions())
		}
	}
	return nil
}

func supportedTLSVersions() string {
	versions := transport.TLSVersionNames()
	sort.Strings(versions)
	return strings.Join(versions, ", ")
}

// Validate checks the campaign section.
func (c Campaign) Validate() error {
	if c.Workers < 1 {
		return fmt.Errorf("campaign.workers must be at least 1, got %d", c.Workers)
	}
	if c.Iterations < 0 {
		return fmt.Errorf("campaign.iterations must not be negative: %d", c.Iterations)
	}
	if c.StatsInterval < 0 {
		return fmt.Errorf("campaign.stats_interval must not be negative")
	}
	return nil
}
