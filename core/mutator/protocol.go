package mutator

import (
	"github.com/gocircum/statefuzz/core/packet"
)

// insertPacket inserts either a copy of an existing packet or a synthesized
// random packet at a scheduler-chosen position.
func (m *Mutator) insertPacket(seq *packet.Sequence, rng Rand) (bool, []int) {
	n := seq.Len()
	if m.opts.MaxPackets > 0 && n >= m.opts.MaxPackets {
		return false, nil
	}
	pos := m.sched.PickInsertion(n, rng)

	var p packet.Packet
	if n > 0 && !chance(rng, 4) {
		p = seq.At(m.sched.Pick(n, rng)).Clone()
	} else {
		p = m.synthesize(rng)
	}
	if err := seq.Insert(pos, p); err != nil {
		return false, nil
	}
	return true, []int{pos}
}

func (m *Mutator) synthesize(rng Rand) packet.Packet {
	size := 1 + below(rng, m.opts.SynthMaxLen)
	buf := make([]byte, size)
	for i := range buf {
		buf[i] = byte(rng.Uint64())
	}
	return packet.New(buf)
}

func (m *Mutator) deletePacket(seq *packet.Sequence, rng Rand) (bool, []int) {
	n := seq.Len()
	if n <= m.opts.MinPackets {
		return false, nil
	}
	idx := m.sched.Pick(n, rng)
	if _, err := seq.Remove(idx); err != nil {
		return false, nil
	}
	return true, []int{idx}
}

// reorderPacket either swaps two packets or moves one packet to another
// position.
func (m *Mutator) reorderPacket(seq *packet.Sequence, rng Rand) (bool, []int) {
	n := seq.Len()
	if n < 2 {
		return false, nil
	}
	from, to := m.sched.PickPair(n, rng)
	if chance(rng, 2) {
		if seq.At(from).Equal(seq.At(to)) {
			return false, nil
		}
		seq.Swap(from, to)
		return true, []int{from, to}
	}
	if err := seq.Move(from, to); err != nil {
		return false, nil
	}
	return true, []int{to}
}

func (m *Mutator) duplicatePacket(seq *packet.Sequence, rng Rand) (bool, []int) {
	n := seq.Len()
	if n == 0 || (m.opts.MaxPackets > 0 && n >= m.opts.MaxPackets) {
		return false, nil
	}
	idx := m.sched.Pick(n, rng)
	if err := seq.Insert(idx+1, seq.At(idx).Clone()); err != nil {
		return false, nil
	}
	return true, []int{idx, idx + 1}
}

// splicePackets joins packet i with packet i+1: the head of i up to a random
// point is followed by the tail of i+1 from a random point, and i+1 is
// removed.
func (m *Mutator) splicePackets(seq *packet.Sequence, rng Rand) (bool, []int) {
	n := seq.Len()
	if n <= m.opts.MinPackets || n < 2 {
		return false, nil
	}
	idx := m.sched.Pick(n-1, rng)
	self, other := seq.At(idx), seq.At(idx+1)
	selfLen, otherLen := self.Len(), other.Len()
	if selfLen == 0 || otherLen == 0 {
		return false, nil
	}

	to := below(rng, selfLen)
	from := below(rng, otherLen)
	tail := append([]byte(nil), other.Bytes()[from:]...)
	if m.opts.MaxPacketSize > 0 && to+len(tail) > m.opts.MaxPacketSize {
		tail = tail[:max(m.opts.MaxPacketSize-to, 0)]
	}
	if err := self.Delete(to, selfLen-to); err != nil {
		return false, nil
	}
	if err := self.Insert(to, tail); err != nil {
		return false, nil
	}
	if _, err := seq.Remove(idx + 1); err != nil {
		return false, nil
	}
	return true, []int{idx}
}

// crossoverInsert inserts a chunk of one packet into another packet of the
// same sequence.
func (m *Mutator) crossoverInsert(seq *packet.Sequence, rng Rand) (bool, []int) {
	n := seq.Len()
	if n < 2 {
		return false, nil
	}
	dst, src := m.sched.PickPair(n, rng)
	self, other := seq.At(dst), seq.At(src)
	selfLen, otherLen := self.Len(), other.Len()
	if selfLen == 0 || otherLen == 0 {
		return false, nil
	}
	if m.opts.MaxPacketSize > 0 && selfLen >= m.opts.MaxPacketSize {
		return false, nil
	}

	from := below(rng, otherLen)
	to := below(rng, selfLen)
	count := 1 + below(rng, otherLen-from)
	if m.opts.MaxPacketSize > 0 {
		count = min(count, m.opts.MaxPacketSize-selfLen)
	}
	chunk := append([]byte(nil), other.Bytes()[from:from+count]...)
	if err := self.Insert(to, chunk); err != nil {
		return false, nil
	}
	return true, []int{dst}
}

// crossoverReplace overwrites a chunk of one packet with bytes from another
// packet of the same sequence. The destination length does not change.
func (m *Mutator) crossoverReplace(seq *packet.Sequence, rng Rand) (bool, []int) {
	n := seq.Len()
	if n < 2 {
		return false, nil
	}
	dst, src := m.sched.PickPair(n, rng)
	self, other := seq.At(dst), seq.At(src)
	selfLen, otherLen := self.Len(), other.Len()
	if selfLen == 0 || otherLen == 0 {
		return false, nil
	}

	from := below(rng, otherLen)
	to := below(rng, selfLen)
	count := 1 + below(rng, min(otherLen-from, selfLen-to))
	chunk := append([]byte(nil), other.Bytes()[from:from+count]...)
	self.Overwrite(to, chunk)
	return true, []int{dst}
}

// havoc stacks byte-level operations on one scheduler-chosen packet.
func (m *Mutator) havoc(seq *packet.Sequence, rng Rand) (bool, []int) {
	n := seq.Len()
	if n == 0 {
		return false, nil
	}
	idx := m.sched.Pick(n, rng)
	p := seq.At(idx)

	changed := false
	stack := 1 + below(rng, m.opts.MaxHavocStack)
	for i := 0; i < stack; i++ {
		op := ByteOp(below(rng, int(numByteOps)))
		if havocPacket(op, p, rng, m.opts.MaxPacketSize) {
			changed = true
		}
	}
	if !changed {
		return false, nil
	}
	return true, []int{idx}
}
