package capture

import (
	"bytes"
	"errors"
	"net"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/gocircum/statefuzz/core/packet"
	"github.com/gocircum/statefuzz/pkg/logging"
	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
	"github.com/google/gopacket/pcapgo"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type frameSpec struct {
	src, dst         string
	srcPort, dstPort uint16
	payload          string
	syn, ack, psh    bool
	udp              bool
}

func buildTestFrame(t *testing.T, f frameSpec) []byte {
	t.Helper()
	srcIP, dstIP := net.ParseIP(f.src), net.ParseIP(f.dst)
	eth := &layers.Ethernet{
		SrcMAC:       net.HardwareAddr{2, 0, 0, 0, 0, 1},
		DstMAC:       net.HardwareAddr{2, 0, 0, 0, 0, 2},
		EthernetType: layers.EthernetTypeIPv4,
	}
	var netLayer gopacket.SerializableLayer
	var checksumLayer gopacket.NetworkLayer
	if v4 := srcIP.To4(); v4 != nil {
		proto := layers.IPProtocolTCP
		if f.udp {
			proto = layers.IPProtocolUDP
		}
		ip := &layers.IPv4{Version: 4, IHL: 5, TTL: 64, Protocol: proto, SrcIP: v4, DstIP: dstIP.To4()}
		netLayer, checksumLayer = ip, ip
	} else {
		eth.EthernetType = layers.EthernetTypeIPv6
		next := layers.IPProtocolTCP
		if f.udp {
			next = layers.IPProtocolUDP
		}
		ip := &layers.IPv6{Version: 6, HopLimit: 64, NextHeader: next, SrcIP: srcIP, DstIP: dstIP}
		netLayer, checksumLayer = ip, ip
	}

	var transport gopacket.SerializableLayer
	if f.udp {
		udp := &layers.UDP{SrcPort: layers.UDPPort(f.srcPort), DstPort: layers.UDPPort(f.dstPort)}
		require.NoError(t, udp.SetNetworkLayerForChecksum(checksumLayer))
		transport = udp
	} else {
		tcp := &layers.TCP{
			SrcPort: layers.TCPPort(f.srcPort), DstPort: layers.TCPPort(f.dstPort),
			SYN: f.syn, ACK: f.ack, PSH: f.psh, Window: 1024,
		}
		require.NoError(t, tcp.SetNetworkLayerForChecksum(checksumLayer))
		transport = tcp
	}

	buf := gopacket.NewSerializeBuffer()
	opts := gopacket.SerializeOptions{FixLengths: true, ComputeChecksums: true}
	require.NoError(t, gopacket.SerializeLayers(buf, opts, eth, netLayer, transport, gopacket.Payload(f.payload)))
	return append([]byte(nil), buf.Bytes()...)
}

func writeCapture(t *testing.T, frames ...[]byte) []byte {
	t.Helper()
	var out bytes.Buffer
	w := pcapgo.NewWriter(&out)
	require.NoError(t, w.WriteFileHeader(65536, layers.LinkTypeEthernet))
	for i, f := range frames {
		ci := gopacket.CaptureInfo{Timestamp: time.Unix(int64(i), 0), CaptureLength: len(f), Length: len(f)}
		require.NoError(t, w.WritePacket(ci, f))
	}
	return out.Bytes()
}

// ftpCapture holds two interleaved FTP control sessions with handshakes
// and server replies.
func ftpCapture(t *testing.T) []byte {
	const server = "10.0.0.9"
	a := func(payload string, toServer bool, flags ...bool) []byte {
		f := frameSpec{src: "10.0.0.1", dst: server, srcPort: 40001, dstPort: 21, payload: payload, ack: true, psh: payload != ""}
		if !toServer {
			f.src, f.dst, f.srcPort, f.dstPort = server, "10.0.0.1", 21, 40001
		}
		if len(flags) > 0 && flags[0] {
			f.syn, f.ack = true, false
		}
		return buildTestFrame(t, f)
	}
	b := func(payload string, toServer bool) []byte {
		f := frameSpec{src: "10.0.0.2", dst: server, srcPort: 40002, dstPort: 21, payload: payload, ack: true, psh: payload != ""}
		if !toServer {
			f.src, f.dst, f.srcPort, f.dstPort = server, "10.0.0.2", 21, 40002
		}
		return buildTestFrame(t, f)
	}
	return writeCapture(t,
		a("", true, true),
		a("220 ready\r\n", false),
		a("", true),
		b("USER bob\r\n", true),
		a("USER anonymous\r\n", true),
		a("331 password\r\n", false),
		b("331 password\r\n", false),
		a("PASS guest\r\n", true),
		b("PASS secret\r\n", true),
		a("QUIT\r\n", true),
	)
}

func payloads(seq packet.Sequence) []string {
	out := make([]string, 0, seq.Len())
	for _, p := range seq.Payloads() {
		out = append(out, string(p))
	}
	return out
}

func TestEncodeDecodeRoundTrip(t *testing.T) {
	tests := []struct {
		name     string
		payloads [][]byte
	}{
		{"ftp", [][]byte{[]byte("USER a\r\n"), []byte("PASS b\r\n"), []byte("QUIT\r\n")}},
		{"binary", [][]byte{{0x00, 0xff, 0x10}, bytes.Repeat([]byte{0xaa}, 1500)}},
		{"empty_packet", [][]byte{[]byte("x"), {}, []byte("y")}},
		{"tiny", [][]byte{{0x01}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			seq := packet.FromPayloads(tt.payloads...)
			encoded, err := Encode(seq)
			require.NoError(t, err)

			decoded, err := Decode(encoded, Options{})
			require.NoError(t, err)
			require.Len(t, decoded, 1)
			assert.True(t, decoded[0].Equal(&seq), "payloads %q", payloads(decoded[0]))

			again, err := Encode(decoded[0])
			require.NoError(t, err)
			assert.Equal(t, encoded, again, "encoding is idempotent")
		})
	}
}

func TestEncodeRejectsOversizePayload(t *testing.T) {
	seq := packet.FromPayloads(make([]byte, maxEncodedPayload+1))
	_, err := Encode(seq)
	assert.Error(t, err)
}

func TestDecodeGroupsSessions(t *testing.T) {
	sessions, err := DecodeSessions(ftpCapture(t), Options{})
	require.NoError(t, err)
	require.Len(t, sessions, 2)

	assert.Equal(t, "tcp 10.0.0.1:40001 <-> 10.0.0.9:21", sessions[0].Key)
	assert.Equal(t, []string{"USER anonymous\r\n", "PASS guest\r\n", "QUIT\r\n"}, payloads(sessions[0].Sequence))
	assert.Equal(t, 2, sessions[0].Dropped)

	assert.Equal(t, "tcp 10.0.0.2:40002 <-> 10.0.0.9:21", sessions[1].Key)
	assert.Equal(t, []string{"USER bob\r\n", "PASS secret\r\n"}, payloads(sessions[1].Sequence))
}

func TestDecodeBothDirections(t *testing.T) {
	seqs, err := Decode(ftpCapture(t), Options{Direction: DirectionBoth})
	require.NoError(t, err)
	require.Len(t, seqs, 2)
	assert.Equal(t, []string{
		"220 ready\r\n", "USER anonymous\r\n", "331 password\r\n", "PASS guest\r\n", "QUIT\r\n",
	}, payloads(seqs[0]))
}

func TestDecodeInitiatorWithoutHandshake(t *testing.T) {
	// server speaks first and no SYN is captured
	data := writeCapture(t,
		buildTestFrame(t, frameSpec{src: "10.0.0.9", dst: "10.0.0.1", srcPort: 25, dstPort: 50000, payload: "220 smtp\r\n", ack: true, psh: true}),
		buildTestFrame(t, frameSpec{src: "10.0.0.1", dst: "10.0.0.9", srcPort: 50000, dstPort: 25, payload: "HELO x\r\n", ack: true, psh: true}),
	)
	seqs, err := Decode(data, Options{})
	require.NoError(t, err)
	require.Len(t, seqs, 1)
	assert.Equal(t, []string{"HELO x\r\n"}, payloads(seqs[0]))
}

func TestDecodeUDPAndIPv6(t *testing.T) {
	data := writeCapture(t,
		buildTestFrame(t, frameSpec{src: "10.0.0.1", dst: "10.0.0.53", srcPort: 5353, dstPort: 53, payload: "query", udp: true}),
		buildTestFrame(t, frameSpec{src: "fd00::1", dst: "fd00::2", srcPort: 41000, dstPort: 80, payload: "GET / HTTP/1.0\r\n\r\n", ack: true, psh: true}),
	)
	sessions, err := DecodeSessions(data, Options{})
	require.NoError(t, err)
	require.Len(t, sessions, 2)
	assert.Equal(t, "udp 10.0.0.1:5353 <-> 10.0.0.53:53", sessions[0].Key)
	assert.Equal(t, "tcp [fd00::1]:41000 <-> [fd00::2]:80", sessions[1].Key)
	assert.Equal(t, []string{"GET / HTTP/1.0\r\n\r\n"}, payloads(sessions[1].Sequence))
}

func TestDecodeInfersSpans(t *testing.T) {
	encoded, err := Encode(packet.FromPayloads([]byte("USER anonymous\r\n")))
	require.NoError(t, err)

	seqs, err := Decode(encoded, Options{InferSpans: true})
	require.NoError(t, err)
	require.Len(t, seqs, 1)
	p := seqs[0].At(0)
	require.True(t, p.HasSpans())
	assert.True(t, p.EnvelopeAt(p.Len()-1))

	plain, err := Decode(encoded, Options{})
	require.NoError(t, err)
	assert.False(t, plain[0].At(0).HasSpans())
}

func TestDecodePcapng(t *testing.T) {
	var out bytes.Buffer
	w, err := pcapgo.NewNgWriter(&out, layers.LinkTypeEthernet)
	require.NoError(t, err)
	for i, payload := range []string{"first\n", "second\n"} {
		frame := buildTestFrame(t, frameSpec{src: "10.0.0.1", dst: "10.0.0.2", srcPort: 40000, dstPort: 7, payload: payload, ack: true, psh: true})
		ci := gopacket.CaptureInfo{Timestamp: time.Unix(int64(i), 0), CaptureLength: len(frame), Length: len(frame)}
		require.NoError(t, w.WritePacket(ci, frame))
	}
	require.NoError(t, w.Flush())

	seqs, err := Decode(out.Bytes(), Options{})
	require.NoError(t, err)
	require.Len(t, seqs, 1)
	assert.Equal(t, []string{"first\n", "second\n"}, payloads(seqs[0]))
}

func TestDecodeMalformed(t *testing.T) {
	good, err := Encode(packet.FromPayloads([]byte("hello world")))
	require.NoError(t, err)

	tests := []struct {
		name   string
		data   []byte
		record int
	}{
		{"empty", nil, -1},
		{"bad_magic", []byte("definitely not a capture file"), -1},
		{"truncated_file_header", good[:10], -1},
		{"truncated_record_header", append(append([]byte(nil), good...), 1, 2, 3, 4, 5), 1},
		{"truncated_payload", good[:len(good)-3], 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Decode(tt.data, Options{})
			require.Error(t, err)
			assert.True(t, errors.Is(err, ErrMalformedCapture))

			var mce *MalformedCaptureError
			require.True(t, errors.As(err, &mce))
			assert.Equal(t, tt.record, mce.Record)
		})
	}
}

func TestParseDirection(t *testing.T) {
	d, err := ParseDirection("both")
	require.NoError(t, err)
	assert.Equal(t, DirectionBoth, d)
	d, err = ParseDirection("")
	require.NoError(t, err)
	assert.Equal(t, DirectionClient, d)
	_, err = ParseDirection("server")
	assert.Error(t, err)
}

func TestLoadDirSkipsMalformed(t *testing.T) {
	dir := t.TempDir()
	nested := filepath.Join(dir, "ftp")
	require.NoError(t, os.MkdirAll(nested, 0o755))

	good, err := Encode(packet.FromPayloads([]byte("PING\r\n")))
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "a.pcap"), good, 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(nested, "b.pcap"), ftpCapture(t), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(nested, "broken.pcapng"), []byte("junk"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("ignored"), 0o644))

	seeds, err := LoadDir(dir, Options{}, logging.NewNopLogger())
	require.NoError(t, err)
	require.Len(t, seeds, 3)
	assert.Equal(t, filepath.Join(dir, "a.pcap"), seeds[0].Path)
	assert.Equal(t, []string{"PING\r\n"}, payloads(seeds[0].Sequence))
	assert.Equal(t, filepath.Join(nested, "b.pcap"), seeds[1].Path)

	single, err := LoadDir(filepath.Join(dir, "a.pcap"), Options{}, logging.NewNopLogger())
	require.NoError(t, err)
	assert.Len(t, single, 1)

	_, err = LoadDir(filepath.Join(dir, "missing"), Options{}, logging.NewNopLogger())
	assert.Error(t, err)
}
