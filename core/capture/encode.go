package capture

import (
	"bytes"
	"fmt"
	"io"
	"net"
	"time"

	"github.com/gocircum/statefuzz/core/packet"
	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
	"github.com/google/gopacket/pcapgo"
)

const (
	encodeSnapLen = 262144
	// maxEncodedPayload keeps the IPv4 total length within 16 bits.
	maxEncodedPayload = 65535 - 20 - 20
)

var (
	encodeClientMAC = net.HardwareAddr{0x02, 0x00, 0x00, 0x00, 0x00, 0x01}
	encodeServerMAC = net.HardwareAddr{0x02, 0x00, 0x00, 0x00, 0x00, 0x02}
	encodeClientIP  = net.IPv4(10, 0, 0, 1).To4()
	encodeServerIP  = net.IPv4(10, 0, 0, 2).To4()
	encodeEpoch     = time.Unix(1700000000, 0).UTC()
)

const (
	encodeClientPort = 40000
	encodeServerPort = 9
)

// Encode writes seq as a classic pcap file holding one TCP session. Each
// packet becomes one Ethernet/IPv4/TCP frame with PSH set, sent from a fixed
// client to a fixed server, so Decode returns the same payloads in order.
// Spans are not stored.
func Encode(seq packet.Sequence) ([]byte, error) {
	var buf bytes.Buffer
	if err := EncodeTo(&buf, seq); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// EncodeTo is Encode writing to w.
func EncodeTo(w io.Writer, seq packet.Sequence) error {
	pw := pcapgo.NewWriter(w)
	if err := pw.WriteFileHeader(encodeSnapLen, layers.LinkTypeEthernet); err != nil {
		return fmt.Errorf("failed to write pcap header: %w", err)
	}

	seqNum := uint32(1)
	for i := 0; i < seq.Len(); i++ {
		payload := seq.At(i).Bytes()
		if len(payload) > maxEncodedPayload {
			return fmt.Errorf("packet %d: payload of %d bytes does not fit one frame", i, len(payload))
		}
		frame, err := buildFrame(payload, seqNum, uint16(i))
		if err != nil {
			return fmt.Errorf("packet %d: %w", i, err)
		}
		ci := gopacket.CaptureInfo{
			Timestamp:     encodeEpoch.Add(time.Duration(i) * time.Millisecond),
			CaptureLength: len(frame),
			Length:        len(frame),
		}
		if err := pw.WritePacket(ci, frame); err != nil {
			return fmt.Errorf("packet %d: failed to write record: %w", i, err)
		}
		seqNum += uint32(len(payload))
	}
	return nil
}

func buildFrame(payload []byte, seq uint32, id uint16) ([]byte, error) {
	eth := &layers.Ethernet{
		SrcMAC:       encodeClientMAC,
		DstMAC:       encodeServerMAC,
		EthernetType: layers.EthernetTypeIPv4,
	}
	ip := &layers.IPv4{
		Version:  4,
		IHL:      5,
		TTL:      64,
		Id:       id,
		Flags:    layers.IPv4DontFragment,
		Protocol: layers.IPProtocolTCP,
		SrcIP:    encodeClientIP,
		DstIP:    encodeServerIP,
	}
	tcp := &layers.TCP{
		SrcPort: encodeClientPort,
		DstPort: encodeServerPort,
		Seq:     seq,
		Ack:     1,
		PSH:     true,
		ACK:     true,
		Window:  65535,
	}
	if err := tcp.SetNetworkLayerForChecksum(ip); err != nil {
		return nil, err
	}

	buf := gopacket.NewSerializeBuffer()
	opts := gopacket.SerializeOptions{FixLengths: true, ComputeChecksums: true}
	if err := gopacket.SerializeLayers(buf, opts, eth, ip, tcp, gopacket.Payload(payload)); err != nil {
		return nil, fmt.Errorf("failed to serialize frame: %w", err)
	}
	return buf.Bytes(), nil
}
