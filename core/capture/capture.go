// Package capture converts between packet captures (pcap and pcapng) and
// packet sequences. Decoding groups packets into sessions by transport
// endpoints; encoding synthesizes a single TCP session.
package capture

import (
	"bytes"
	"errors"
	"fmt"
	"io"

	"github.com/gocircum/statefuzz/core/packet"
	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
	"github.com/google/gopacket/pcapgo"
)

// ErrMalformedCapture matches every capture framing failure.
var ErrMalformedCapture = errors.New("malformed capture")

// MalformedCaptureError reports why a capture could not be read. Record is
// the zero-based index of the failing record, or -1 for the file header.
type MalformedCaptureError struct {
	Reason string
	Record int
	Err    error
}

func (e *MalformedCaptureError) Error() string {
	where := "file header"
	if e.Record >= 0 {
		where = fmt.Sprintf("record %d", e.Record)
	}
	if e.Err != nil {
		return fmt.Sprintf("malformed capture: %s at %s: %v", e.Reason, where, e.Err)
	}
	return fmt.Sprintf("malformed capture: %s at %s", e.Reason, where)
}

func (e *MalformedCaptureError) Unwrap() error { return e.Err }

// Is makes errors.Is(err, ErrMalformedCapture) hold.
func (e *MalformedCaptureError) Is(target error) bool {
	return target == ErrMalformedCapture
}

// Direction selects which packets of a session become part of the sequence.
type Direction int

const (
	// DirectionClient keeps packets sent by the session initiator. Those are
	// the packets a replay sends to the target.
	DirectionClient Direction = iota
	// DirectionBoth keeps every packet in capture order.
	DirectionBoth
)

// ParseDirection maps a configuration value to a Direction.
func ParseDirection(s string) (Direction, error) {
	switch s {
	case "", "client":
		return DirectionClient, nil
	case "both":
		return DirectionBoth, nil
	}
	return 0, fmt.Errorf("unknown capture direction %q", s)
}

// Options control decoding.
type Options struct {
	Direction Direction
	// InferSpans tags text payloads with verb, argument and envelope spans.
	InferSpans bool
}

// Session is one decoded conversation.
type Session struct {
	// Key is the canonical endpoint tuple, e.g. "tcp 10.0.0.1:40000 <-> 10.0.0.2:21".
	Key      string
	Sequence packet.Sequence
	// Dropped counts packets of the session filtered out by direction.
	Dropped int
}

// Decode parses a capture and returns one sequence per session, in order of
// each session's first packet.
func Decode(data []byte, opts Options) ([]packet.Sequence, error) {
	sessions, err := DecodeSessions(data, opts)
	if err != nil {
		return nil, err
	}
	out := make([]packet.Sequence, 0, len(sessions))
	for _, s := range sessions {
		out = append(out, s.Sequence)
	}
	return out, nil
}

// recordReader is the part of pcapgo.Reader and pcapgo.NgReader Decode needs.
type recordReader interface {
	ReadPacketData() ([]byte, gopacket.CaptureInfo, error)
	LinkType() layers.LinkType
}

var ngMagic = []byte{0x0a, 0x0d, 0x0d, 0x0a}

func openReader(data []byte) (recordReader, error) {
	if len(data) < 4 {
		return nil, &MalformedCaptureError{Reason: "truncated file header", Record: -1}
	}
	if bytes.Equal(data[:4], ngMagic) {
		r, err := pcapgo.NewNgReader(bytes.NewReader(data), pcapgo.DefaultNgReaderOptions)
		if err != nil {
			return nil, &MalformedCaptureError{Reason: "bad pcapng section header", Record: -1, Err: err}
		}
		return r, nil
	}
	if !knownPcapMagic(data[:4]) {
		return nil, &MalformedCaptureError{Reason: fmt.Sprintf("bad magic %x", data[:4]), Record: -1}
	}
	r, err := pcapgo.NewReader(bytes.NewReader(data))
	if err != nil {
		return nil, &MalformedCaptureError{Reason: "truncated file header", Record: -1, Err: err}
	}
	return r, nil
}

func knownPcapMagic(b []byte) bool {
	for _, m := range [][]byte{
		{0xd4, 0xc3, 0xb2, 0xa1}, {0xa1, 0xb2, 0xc3, 0xd4},
		{0x4d, 0x3c, 0xb2, 0xa1}, {0xa1, 0xb2, 0x3c, 0x4d},
	} {
		if bytes.Equal(b, m) {
			return true
		}
	}
	return false
}

type flowKey struct {
	proto  string
	lo, hi string
}

type sessionState struct {
	Session
	initiator string
	sawSYN    bool
}

// segment is the transport view of one captured packet.
type segment struct {
	key      flowKey
	src, dst string
	// client is the likely initiator when no SYN was seen: the endpoint
	// with the higher port number.
	client  string
	syn     bool
	keep    bool
	payload []byte
}

// DecodeSessions is Decode with session metadata.
func DecodeSessions(data []byte, opts Options) ([]Session, error) {
	r, err := openReader(data)
	if err != nil {
		return nil, err
	}
	decodeOpts := gopacket.DecodeOptions{Lazy: true, NoCopy: true}

	var (
		order []*sessionState
		byKey = make(map[flowKey]*sessionState)
	)
	for record := 0; ; record++ {
		raw, ci, err := r.ReadPacketData()
		if err == io.EOF && ci.CaptureLength == 0 {
			break
		}
		if err != nil {
			reason := "unreadable record"
			if errors.Is(err, io.ErrUnexpectedEOF) || err == io.EOF {
				reason = "truncated record"
			}
			return nil, &MalformedCaptureError{Reason: reason, Record: record, Err: err}
		}

		seg, ok := transportSegment(gopacket.NewPacket(raw, r.LinkType(), decodeOpts))
		if !ok {
			continue
		}

		s, found := byKey[seg.key]
		if !found {
			s = &sessionState{
				Session:   Session{Key: fmt.Sprintf("%s %s <-> %s", seg.key.proto, seg.key.lo, seg.key.hi)},
				initiator: seg.client,
			}
			byKey[seg.key] = s
			order = append(order, s)
		}
		if seg.syn && !s.sawSYN {
			s.initiator = seg.src
			s.sawSYN = true
		}
		if !seg.keep {
			continue
		}
		if opts.Direction == DirectionClient && seg.src != s.initiator {
			s.Dropped++
			continue
		}

		var spans []packet.FieldSpan
		if opts.InferSpans {
			spans = packet.InferTextSpans(seg.payload)
		}
		s.Sequence.Append(packet.New(seg.payload, spans...))
	}

	out := make([]Session, 0, len(order))
	for _, s := range order {
		if s.Sequence.Len() == 0 {
			continue
		}
		out = append(out, s.Session)
	}
	return out, nil
}

// transportSegment extracts the view of a TCP or UDP packet. TCP segments
// without payload are not kept unless PSH is set, so handshakes and bare
// ACKs never become packets.
func transportSegment(pkt gopacket.Packet) (segment, bool) {
	netLayer := pkt.NetworkLayer()
	if netLayer == nil {
		return segment{}, false
	}
	netSrc, netDst := netLayer.NetworkFlow().Endpoints()

	var (
		seg              segment
		proto            string
		srcPort, dstPort uint16
	)
	if tcp, ok := pkt.Layer(layers.LayerTypeTCP).(*layers.TCP); ok {
		proto, srcPort, dstPort = "tcp", uint16(tcp.SrcPort), uint16(tcp.DstPort)
		seg.payload = tcp.Payload
		seg.syn = tcp.SYN && !tcp.ACK
		seg.keep = len(tcp.Payload) > 0 || tcp.PSH
	} else if udp, ok := pkt.Layer(layers.LayerTypeUDP).(*layers.UDP); ok {
		proto, srcPort, dstPort = "udp", uint16(udp.SrcPort), uint16(udp.DstPort)
		seg.payload = udp.Payload
		seg.keep = true
	} else {
		return segment{}, false
	}

	seg.src = endpoint(netSrc, srcPort)
	seg.dst = endpoint(netDst, dstPort)
	seg.client = seg.src
	if srcPort < dstPort {
		seg.client = seg.dst
	}
	seg.key = flowKey{proto: proto, lo: seg.src, hi: seg.dst}
	if seg.dst < seg.src {
		seg.key.lo, seg.key.hi = seg.dst, seg.src
	}
	return seg, true
}

func endpoint(host gopacket.Endpoint, port uint16) string {
	if host.EndpointType() == layers.EndpointIPv6 {
		return fmt.Sprintf("[%s]:%d", host, port)
	}
	return fmt.Sprintf("%s:%d", host, port)
}
