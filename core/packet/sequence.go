package packet

import "fmt"

// Sequence is an ordered list of packets forming one test case. Order is
// execution order. A Sequence exclusively owns its packets.
type Sequence struct {
	packets []Packet
}

// NewSequence builds a sequence from copies of the given packets.
func NewSequence(packets ...Packet) Sequence {
	s := Sequence{packets: make([]Packet, 0, len(packets))}
	for _, p := range packets {
		s.packets = append(s.packets, p.Clone())
	}
	return s
}

// FromPayloads builds a sequence with one packet per payload.
func FromPayloads(payloads ...[]byte) Sequence {
	s := Sequence{packets: make([]Packet, 0, len(payloads))}
	for _, b := range payloads {
		s.packets = append(s.packets, New(b))
	}
	return s
}

// Len returns the number of packets.
func (s *Sequence) Len() int {
	return len(s.packets)
}

// At returns the packet at index i. The pointer stays valid until the
// sequence is structurally modified.
func (s *Sequence) At(i int) *Packet {
	return &s.packets[i]
}

// Payloads returns the raw buffers in order. The buffers are not copied.
func (s *Sequence) Payloads() [][]byte {
	out := make([][]byte, len(s.packets))
	for i := range s.packets {
		out[i] = s.packets[i].data
	}
	return out
}

// Clone returns a deep copy that shares no memory with s.
func (s Sequence) Clone() Sequence {
	c := Sequence{packets: make([]Packet, len(s.packets))}
	for i := range s.packets {
		c.packets[i] = s.packets[i].Clone()
	}
	return c
}

// Equal reports whether both sequences hold the same ordered raw buffers.
func (s *Sequence) Equal(other *Sequence) bool {
	if len(s.packets) != len(other.packets) {
		return false
	}
	for i := range s.packets {
		if !s.packets[i].Equal(&other.packets[i]) {
			return false
		}
	}
	return true
}

// Append adds a copy of p at the end.
func (s *Sequence) Append(p Packet) {
	s.packets = append(s.packets, p.Clone())
}

// Insert places a copy of p at index i, shifting later packets right.
func (s *Sequence) Insert(i int, p Packet) error {
	if i < 0 || i > len(s.packets) {
		return fmt.Errorf("insert index %d out of range [0,%d]", i, len(s.packets))
	}
	s.packets = append(s.packets, Packet{})
	copy(s.packets[i+1:], s.packets[i:])
	s.packets[i] = p.Clone()
	return nil
}

// Remove deletes the packet at index i and returns it.
func (s *Sequence) Remove(i int) (Packet, error) {
	if i < 0 || i >= len(s.packets) {
		return Packet{}, fmt.Errorf("remove index %d out of range [0,%d)", i, len(s.packets))
	}
	p := s.packets[i]
	copy(s.packets[i:], s.packets[i+1:])
	s.packets[len(s.packets)-1] = Packet{}
	s.packets = s.packets[:len(s.packets)-1]
	return p, nil
}

// Swap exchanges the packets at i and j.
func (s *Sequence) Swap(i, j int) {
	s.packets[i], s.packets[j] = s.packets[j], s.packets[i]
}

// Move takes the packet at from and reinserts it so that it ends up at
// index to.
func (s *Sequence) Move(from, to int) error {
	if from < 0 || from >= len(s.packets) || to < 0 || to >= len(s.packets) {
		return fmt.Errorf("move %d->%d out of range [0,%d)", from, to, len(s.packets))
	}
	if from == to {
		return nil
	}
	p := s.packets[from]
	if from < to {
		copy(s.packets[from:to], s.packets[from+1:to+1])
	} else {
		copy(s.packets[to+1:from+1], s.packets[to:from])
	}
	s.packets[to] = p
	return nil
}

// TotalBytes returns the summed length of all packets.
func (s *Sequence) TotalBytes() int {
	n := 0
	for i := range s.packets {
		n += len(s.packets[i].data)
	}
	return n
}
