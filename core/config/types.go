package config

import "time"

// FileConfig is the on-disk campaign configuration.
type FileConfig struct {
	Mutation  Mutation  `yaml:"mutation"`
	Scheduler Scheduler `yaml:"scheduler"`
	Capture   Capture   `yaml:"capture"`
	Observer  Observer  `yaml:"observer"`
	Target    Target    `yaml:"target"`
	Campaign  Campaign  `yaml:"campaign"`
	Logging   Logging   `yaml:"logging"`
}

// Mutation configures the mutation engine.
type Mutation struct {
	// Weights maps operator names (havoc, insert, delete, reorder,
	// duplicate, splice, crossover_insert, crossover_replace) to relative
	// weights. Missing operators are never chosen; an empty map weighs all
	// operators equally.
	Weights       map[string]float64 `yaml:"weights,omitempty"`
	MinPackets    int                `yaml:"min_packets"`
	MaxPackets    int                `yaml:"max_packets"`
	MaxPacketSize int                `yaml:"max_packet_size"`
	MaxHavocStack int                `yaml:"max_havoc_stack"`
	MaxAttempts   int                `yaml:"max_attempts"`
}

// Scheduler configures target-position selection.
type Scheduler struct {
	Policy string  `yaml:"policy"` // "uniform" or "novelty"
	Window int     `yaml:"window"`
	Boost  float64 `yaml:"boost"`
}

// Capture configures seed decoding.
type Capture struct {
	Direction      string `yaml:"direction"` // "client" or "both"
	InferTextSpans bool   `yaml:"infer_text_spans"`
}

// Observer configures signal normalization and the state graph.
type Observer struct {
	Normalize        string `yaml:"normalize"` // "raw", "status_code" or "first_line"
	MaxSignalBytes   int    `yaml:"max_signal_bytes"`
	IndexBucketLimit int    `yaml:"index_bucket_limit"`
}

// Target configures the replay executor.
type Target struct {
	Address     string        `yaml:"address"`
	DialTimeout time.Duration `yaml:"dial_timeout"`
	// DialRetries is how many extra attempts a failed connect gets.
	DialRetries   int           `yaml:"dial_retries"`
	ReadTimeout   time.Duration `yaml:"read_timeout"`
	ReadBanner    bool          `yaml:"read_banner"`
	MaxReplyBytes int           `yaml:"max_reply_bytes"`
	// ConnectRate limits new connections per second. 0 disables pacing.
	ConnectRate float64 `yaml:"connect_rate"`
	SOCKS5Proxy string  `yaml:"socks5_proxy,omitempty"`
	// SegmentSize splits every write into chunks of at most this many
	// bytes, SegmentDelay apart. 0 sends each packet in one write.
	SegmentSize  int           `yaml:"segment_size"`
	SegmentDelay time.Duration `yaml:"segment_delay"`
	TLS          TLS           `yaml:"tls"`
}

// TLS configures an optional uTLS layer in front of the target.
type TLS struct {
	Enabled       bool   `yaml:"enabled"`
	ClientHelloID string `yaml:"client_hello_id"`
	ServerName    string `yaml:"server_name"`
	MinVersion    string `yaml:"min_version"`
	MaxVersion    string `yaml:"max_version"`
	RootCAFile    string `yaml:"root_ca_file,omitempty"`
}

// Campaign configures the fuzzing run.
type Campaign struct {
	SeedsDir   string `yaml:"seeds_dir"`
	Workers    int    `yaml:"workers"`
	Iterations int    `yaml:"iterations"`
	// Seed makes a run reproducible. 0 draws a random seed.
	Seed          uint64        `yaml:"seed"`
	GraphOutput   string        `yaml:"graph_output,omitempty"`
	StatsCSV      string        `yaml:"stats_csv,omitempty"`
	StatsInterval time.Duration `yaml:"stats_interval"`
	MetricsAddr   string        `yaml:"metrics_addr,omitempty"`
}

// Logging configures the global logger.
type Logging struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"` // "console" or "json"
}
