package packet

import (
	"bytes"
	"fmt"
	"sort"
)

// TagEnvelope marks bytes that frame a packet (terminators, length prefixes).
// Havoc mutation steers away from envelope spans when it can.
const TagEnvelope = "envelope"

// FieldSpan describes one field inside a packet buffer.
type FieldSpan struct {
	Offset int    `json:"offset" yaml:"offset"`
	Length int    `json:"length" yaml:"length"`
	Tag    string `json:"tag" yaml:"tag"`
}

// End returns the offset one past the last byte of the span.
func (s FieldSpan) End() int {
	return s.Offset + s.Length
}

// Contains reports whether pos lies inside the span.
func (s FieldSpan) Contains(pos int) bool {
	return pos >= s.Offset && pos < s.End()
}

// Packet is one unit of protocol data. The zero value is an empty packet.
// A Packet never shares its buffers with another Packet.
type Packet struct {
	data  []byte
	spans []FieldSpan
}

// New creates a packet holding a copy of data. Spans that do not fit inside
// data are dropped.
func New(data []byte, spans ...FieldSpan) Packet {
	p := Packet{data: append([]byte(nil), data...)}
	p.SetSpans(spans)
	return p
}

// Bytes returns the packet buffer. Callers must not modify it.
func (p *Packet) Bytes() []byte {
	return p.data
}

// Len returns the buffer length.
func (p *Packet) Len() int {
	return len(p.data)
}

// Spans returns a copy of the field spans, ordered by offset.
func (p *Packet) Spans() []FieldSpan {
	if len(p.spans) == 0 {
		return nil
	}
	return append([]FieldSpan(nil), p.spans...)
}

// HasSpans reports whether the packet carries field metadata.
func (p *Packet) HasSpans() bool {
	return len(p.spans) > 0
}

// SetSpans replaces the field spans, keeping only those inside the buffer.
func (p *Packet) SetSpans(spans []FieldSpan) {
	p.spans = p.spans[:0]
	for _, s := range spans {
		if s.Length <= 0 || s.Offset < 0 || s.End() > len(p.data) {
			continue
		}
		p.spans = append(p.spans, s)
	}
	if len(p.spans) == 0 {
		p.spans = nil
		return
	}
	sort.SliceStable(p.spans, func(i, j int) bool { return p.spans[i].Offset < p.spans[j].Offset })
}

// DropSpans discards all field metadata.
func (p *Packet) DropSpans() {
	p.spans = nil
}

// Clone returns a deep copy.
func (p Packet) Clone() Packet {
	c := Packet{data: append([]byte(nil), p.data...)}
	if len(p.spans) > 0 {
		c.spans = append([]FieldSpan(nil), p.spans...)
	}
	return c
}

// Equal reports whether both packets hold the same bytes.
func (p *Packet) Equal(other *Packet) bool {
	return bytes.Equal(p.data, other.data)
}

// EnvelopeAt reports whether pos falls inside an envelope span.
func (p *Packet) EnvelopeAt(pos int) bool {
	for _, s := range p.spans {
		if s.Tag == TagEnvelope && s.Contains(pos) {
			return true
		}
	}
	return false
}

// Overwrite copies src into the buffer at pos without changing its length.
// Bytes past the end of the buffer are not written.
func (p *Packet) Overwrite(pos int, src []byte) int {
	if pos < 0 || pos >= len(p.data) {
		return 0
	}
	return copy(p.data[pos:], src)
}

// SetByte sets the byte at pos.
func (p *Packet) SetByte(pos int, b byte) {
	if pos >= 0 && pos < len(p.data) {
		p.data[pos] = b
	}
}

// Insert inserts src at pos, growing the buffer. A span containing pos grows,
// spans after pos shift right.
func (p *Packet) Insert(pos int, src []byte) error {
	if pos < 0 || pos > len(p.data) {
		return fmt.Errorf("insert position %d out of range [0,%d]", pos, len(p.data))
	}
	if len(src) == 0 {
		return nil
	}
	grown := make([]byte, 0, len(p.data)+len(src))
	grown = append(grown, p.data[:pos]...)
	grown = append(grown, src...)
	grown = append(grown, p.data[pos:]...)
	p.data = grown

	k := len(src)
	for i := range p.spans {
		s := &p.spans[i]
		switch {
		case pos <= s.Offset:
			s.Offset += k
		case pos < s.End():
			s.Length += k
		}
	}
	return nil
}

// Delete removes n bytes starting at pos. Spans are shrunk by the overlap
// and dropped if nothing is left of them.
func (p *Packet) Delete(pos, n int) error {
	if pos < 0 || n < 0 || pos+n > len(p.data) {
		return fmt.Errorf("delete range [%d,%d) out of range [0,%d)", pos, pos+n, len(p.data))
	}
	if n == 0 {
		return nil
	}
	p.data = append(p.data[:pos], p.data[pos+n:]...)

	end := pos + n
	kept := p.spans[:0]
	for _, s := range p.spans {
		start, stop := s.Offset, s.End()
		// bytes of the span before, inside and after the deleted range
		before := clamp(pos, start, stop) - start
		after := stop - clamp(end, start, stop)
		if before+after == 0 {
			continue
		}
		if start >= end {
			s.Offset = start - n
		} else if start > pos {
			s.Offset = pos
		}
		s.Length = before + after
		kept = append(kept, s)
	}
	if len(kept) == 0 {
		p.spans = nil
	} else {
		p.spans = kept
	}
	return nil
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
