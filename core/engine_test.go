package core

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/gocircum/statefuzz/core/capture"
	"github.com/gocircum/statefuzz/core/config"
	"github.com/gocircum/statefuzz/core/mutator"
	"github.com/gocircum/statefuzz/core/observer"
	"github.com/gocircum/statefuzz/core/packet"
	"github.com/gocircum/statefuzz/interfaces"
	"github.com/gocircum/statefuzz/mocks"
	"github.com/gocircum/statefuzz/testutils"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
)

// echo reports each packet's payload as the state it drives the target to.
func echo(_ context.Context, seq packet.Sequence, rec interfaces.StateRecorder) error {
	for i := 0; i < seq.Len(); i++ {
		if _, more := rec.Record(observer.BytesSignal(seq.At(i).Bytes()), true); !more {
			return nil
		}
	}
	return nil
}

func newTestEngine(t *testing.T, cfg *config.FileConfig, exec interfaces.Executor) *Engine {
	t.Helper()
	if cfg == nil {
		cfg = config.Default()
	}
	engine, err := NewEngine(cfg, Options{Executor: exec, Registerer: prometheus.NewRegistry()}, testutils.NewTestLogger())
	require.NoError(t, err)
	return engine
}

func TestEngineExecute(t *testing.T) {
	ctrl := gomock.NewController(t)
	exec := mocks.NewMockExecutor(ctrl)
	exec.EXPECT().Execute(gomock.Any(), gomock.Any(), gomock.Any()).DoAndReturn(echo).Times(2)

	engine := newTestEngine(t, nil, exec)
	seq := packet.FromPayloads([]byte("A"), []byte("B"), []byte("A"))

	res, err := engine.Execute(context.Background(), seq)
	require.NoError(t, err)
	assert.Equal(t, observer.NewNode, res.Verdict)
	assert.Equal(t, 3, res.Recorded)

	res, err = engine.Execute(context.Background(), seq)
	require.NoError(t, err)
	assert.Equal(t, observer.Known, res.Verdict)

	stats := engine.Graph().Stats()
	assert.Equal(t, 3, stats.Nodes)
	assert.Equal(t, 3, stats.Edges)

	p := engine.Monitor().Progress()
	assert.Equal(t, uint64(2), p.Executions)
	assert.Equal(t, 2, p.Nodes)
}

func TestNewEngineRequiresTarget(t *testing.T) {
	_, err := NewEngine(config.Default(), Options{}, testutils.NewTestLogger())
	assert.ErrorIs(t, err, ErrNoTarget)
}

func TestNewEngineAgainstStatusServer(t *testing.T) {
	server := testutils.NewMockStatusServer()
	defer server.Close()

	cfg := config.Default()
	cfg.Observer.Normalize = "status_code"
	cfg.Target.Address = server.Addr()
	cfg.Target.ReadBanner = true
	cfg.Target.ConnectRate = 1000
	cfg.Target.DialRetries = 1
	cfg.Target.SegmentSize = 3
	engine := newTestEngine(t, cfg, nil)

	seq := testutils.Lines("USER a", "PASS b")
	res, err := engine.Execute(context.Background(), seq)
	require.NoError(t, err)
	assert.Equal(t, observer.NewNode, res.Verdict)
	assert.Equal(t, 2, res.Recorded)

	labels := make([]string, 0)
	for _, n := range engine.Graph().Snapshot().Nodes {
		labels = append(labels, n.Label)
	}
	assert.Equal(t, []string{"331", "230"}, labels)
}

func TestNewEngineRejectsMissingRootCA(t *testing.T) {
	cfg := config.Default()
	cfg.Target.Address = "127.0.0.1:21"
	cfg.Target.TLS.Enabled = true
	cfg.Target.TLS.ClientHelloID = "HelloGolang"
	cfg.Target.TLS.RootCAFile = filepath.Join(t.TempDir(), "missing.pem")

	_, err := NewEngine(cfg, Options{}, testutils.NewTestLogger())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to read root CA file")
}

func TestFuzzOneSkipsUnchangedMutation(t *testing.T) {
	ctrl := gomock.NewController(t)
	exec := mocks.NewMockExecutor(ctrl)
	exec.EXPECT().Execute(gomock.Any(), gomock.Any(), gomock.Any()).Times(0)

	cfg := config.Default()
	cfg.Mutation.Weights = map[string]float64{"delete": 1}
	engine := newTestEngine(t, cfg, exec)

	seq := packet.FromPayloads([]byte("only"))
	out, _, ran, err := engine.FuzzOne(context.Background(), seq, mutator.NewRand(1))
	require.NoError(t, err)
	assert.False(t, ran)
	assert.False(t, out.Changed)
	assert.Equal(t, mutator.KindDelete, out.Kind)
}

func TestFuzzOneExecutesMutant(t *testing.T) {
	ctrl := gomock.NewController(t)
	exec := mocks.NewMockExecutor(ctrl)
	var executed packet.Sequence
	exec.EXPECT().Execute(gomock.Any(), gomock.Any(), gomock.Any()).DoAndReturn(
		func(ctx context.Context, seq packet.Sequence, rec interfaces.StateRecorder) error {
			executed = seq.Clone()
			return echo(ctx, seq, rec)
		})

	cfg := config.Default()
	cfg.Mutation.Weights = map[string]float64{"duplicate": 1}
	cfg.Scheduler.Policy = "novelty"
	engine := newTestEngine(t, cfg, exec)

	seq := packet.FromPayloads([]byte("USER a\r\n"))
	out, res, ran, err := engine.FuzzOne(context.Background(), seq, mutator.NewRand(7))
	require.NoError(t, err)
	require.True(t, ran)
	assert.Equal(t, 2, out.Sequence.Len())
	assert.True(t, executed.Equal(&out.Sequence))
	assert.Equal(t, observer.NewNode, res.Verdict)
	assert.Equal(t, []int{0, 1}, res.NovelIndices)

	require.NotNil(t, engine.NoveltyBias())
	assert.Equal(t, 1, engine.NoveltyBias().Hits(0))
	assert.Equal(t, 1, engine.NoveltyBias().Hits(1))
}

func TestWriteGraph(t *testing.T) {
	ctrl := gomock.NewController(t)
	exec := mocks.NewMockExecutor(ctrl)
	exec.EXPECT().Execute(gomock.Any(), gomock.Any(), gomock.Any()).DoAndReturn(echo)

	engine := newTestEngine(t, nil, exec)
	_, err := engine.Execute(context.Background(), packet.FromPayloads([]byte("A"), []byte("B")))
	require.NoError(t, err)

	dir := t.TempDir()
	for _, name := range []string{"graph.json", "graph.yaml", "graph.dot"} {
		path := filepath.Join(dir, name)
		require.NoError(t, engine.WriteGraph(path), name)
		data, err := os.ReadFile(path)
		require.NoError(t, err)
		assert.NotEmpty(t, data, name)
	}

	data, err := os.ReadFile(filepath.Join(dir, "graph.dot"))
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(string(data), "digraph"))

	assert.Error(t, engine.WriteGraph(filepath.Join(dir, "graph.png")))
	assert.Error(t, WriteSnapshot(&bytes.Buffer{}, engine.Graph().Snapshot(), "xml"))
}

func TestLoadSeeds(t *testing.T) {
	engine := newTestEngine(t, nil, mocks.NewMockExecutor(gomock.NewController(t)))

	data, err := capture.Encode(testutils.Lines("USER a", "PASS b"))
	require.NoError(t, err)
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "ftp.pcap"), data, 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "broken.pcap"), []byte("nope"), 0o644))

	seeds, err := engine.LoadSeeds(dir)
	require.NoError(t, err)
	require.Len(t, seeds, 1)
	assert.Equal(t, 2, seeds[0].Len())
}
