package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/gocircum/statefuzz/core/mutator"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const ftpConfig = `
mutation:
  weights:
    havoc: 4
    insert: 1
    delete: 1
    reorder: 2
  max_packets: 32
  max_packet_size: 1024
scheduler:
  policy: novelty
  window: 64
capture:
  direction: client
  infer_text_spans: true
observer:
  normalize: status_code
target:
  address: 127.0.0.1:2121
  read_timeout: 250ms
  read_banner: true
  connect_rate: 20
campaign:
  workers: 4
  iterations: 5000
  seed: 42
  graph_output: state.json
logging:
  level: debug
  format: json
`

func TestLoadFileConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ftp.yaml")
	require.NoError(t, os.WriteFile(path, []byte(ftpConfig), 0o644))

	fc, err := LoadFileConfig(path)
	require.NoError(t, err)

	assert.Equal(t, "novelty", fc.Scheduler.Policy)
	assert.Equal(t, 64, fc.Scheduler.Window)
	assert.Equal(t, DefaultBoost, fc.Scheduler.Boost)
	assert.Equal(t, 250*time.Millisecond, fc.Target.ReadTimeout)
	assert.Equal(t, DefaultDialTimeout, fc.Target.DialTimeout)
	assert.Equal(t, uint64(42), fc.Campaign.Seed)
	assert.Equal(t, 1, fc.Mutation.MinPackets)

	weights, err := fc.Mutation.KindWeights()
	require.NoError(t, err)
	assert.Equal(t, map[mutator.Kind]float64{
		mutator.KindHavoc:   4,
		mutator.KindInsert:  1,
		mutator.KindDelete:  1,
		mutator.KindReorder: 2,
	}, weights)

	opts := fc.Mutation.Options()
	assert.Equal(t, 32, opts.MaxPackets)
	assert.Equal(t, 1024, opts.MaxPacketSize)
}

func TestLoadFileConfigMissing(t *testing.T) {
	_, err := LoadFileConfig(filepath.Join(t.TempDir(), "nope.yaml"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to read config file")
}

func TestParseEmptyUsesDefaults(t *testing.T) {
	fc, err := Parse(nil)
	require.NoError(t, err)
	assert.Equal(t, Default(), fc)

	weights, err := fc.Mutation.KindWeights()
	require.NoError(t, err)
	assert.Nil(t, weights)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name     string
		yaml     string
		errorMsg string
	}{
		{"unknown_key", "mutation:\n  shuffle: 1\n", "failed to parse config"},
		{"unknown_kind", "mutation:\n  weights:\n    shuffle: 1\n", "unknown mutation kind"},
		{"negative_weight", "mutation:\n  weights:\n    havoc: -1\n", "must not be negative"},
		{"all_zero_weights", "mutation:\n  weights:\n    havoc: 0\n", "positive weight"},
		{"max_below_min", "mutation:\n  min_packets: 4\n  max_packets: 2\n", "below mutation.min_packets"},
		{"bad_policy", "scheduler:\n  policy: lifo\n", "scheduler.policy 'lifo' is invalid"},
		{"bad_direction", "capture:\n  direction: server\n", "capture.direction"},
		{"bad_normalizer", "observer:\n  normalize: regex\n", "observer.normalize"},
		{"bad_address", "target:\n  address: localhost\n", "target.address 'localhost' is invalid"},
		{"bad_proxy", "target:\n  socks5_proxy: proxy\n", "target.socks5_proxy"},
		{"bad_hello", "target:\n  tls:\n    enabled: true\n    client_hello_id: HelloNetscape\n", "client_hello_id 'HelloNetscape' is invalid"},
		{"bad_tls_version", "target:\n  tls:\n    enabled: true\n    min_version: \"0.9\"\n", "invalid TLS version '0.9'"},
		{"negative_segment", "target:\n  segment_size: -1\n", "segmentation must not be negative"},
		{"negative_workers", "campaign:\n  workers: -2\n", "campaign.workers must be at least 1"},
		{"bad_log_format", "logging:\n  format: xml\n", "logging.format 'xml' is invalid"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse([]byte(tt.yaml))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.errorMsg)
		})
	}
}

func TestTLSDefaultsOnlyWhenEnabled(t *testing.T) {
	fc, err := Parse([]byte("target:\n  tls:\n    enabled: true\n"))
	require.NoError(t, err)
	assert.Equal(t, "HelloChrome_Auto", fc.Target.TLS.ClientHelloID)

	fc, err = Parse([]byte("target:\n  address: 127.0.0.1:21\n"))
	require.NoError(t, err)
	assert.Empty(t, fc.Target.TLS.ClientHelloID)
}
