package mutator

import (
	"bytes"
	"encoding/binary"

	"github.com/gocircum/statefuzz/core/packet"
)

// ByteOp identifies one byte-level havoc operation.
type ByteOp int

const (
	OpBitFlip ByteOp = iota
	OpByteFlip
	OpByteRandom
	OpByteInsert
	OpByteDelete
	OpChunkDuplicate
	OpChunkCopy
	OpChunkSet
	OpArith8
	OpArith16
	OpArith32
	OpInteresting8
	OpInteresting16
	OpInteresting32
	numByteOps
)

var byteOpNames = [...]string{
	OpBitFlip:        "bit_flip",
	OpByteFlip:       "byte_flip",
	OpByteRandom:     "byte_random",
	OpByteInsert:     "byte_insert",
	OpByteDelete:     "byte_delete",
	OpChunkDuplicate: "chunk_duplicate",
	OpChunkCopy:      "chunk_copy",
	OpChunkSet:       "chunk_set",
	OpArith8:         "arith8",
	OpArith16:        "arith16",
	OpArith32:        "arith32",
	OpInteresting8:   "interesting8",
	OpInteresting16:  "interesting16",
	OpInteresting32:  "interesting32",
}

func (op ByteOp) String() string {
	if op < 0 || op >= numByteOps {
		return "unknown"
	}
	return byteOpNames[op]
}

const (
	arithMax    = 35
	maxChunkLen = 32
)

var (
	interesting8  = []int8{-128, -1, 0, 1, 16, 32, 64, 100, 127}
	interesting16 = []int16{-32768, -129, 128, 255, 256, 512, 1000, 1024, 4096, 32767}
	interesting32 = []int32{-2147483648, -100663046, -32769, 32768, 65535, 65536, 100663045, 2147483647}
)

// havocPacket applies one byte-level operation to p. maxSize bounds growth
// (0 means unbounded). It reports whether the buffer changed.
func havocPacket(op ByteOp, p *packet.Packet, rng Rand, maxSize int) bool {
	n := p.Len()
	canGrow := maxSize <= 0 || n < maxSize

	switch op {
	case OpBitFlip:
		if n == 0 {
			return false
		}
		pos := pickPos(p, n, rng)
		p.SetByte(pos, p.Bytes()[pos]^(1<<uint(below(rng, 8))))
		return true

	case OpByteFlip:
		if n == 0 {
			return false
		}
		pos := pickPos(p, n, rng)
		p.SetByte(pos, ^p.Bytes()[pos])
		return true

	case OpByteRandom:
		if n == 0 {
			return false
		}
		pos := pickPos(p, n, rng)
		p.SetByte(pos, p.Bytes()[pos]^byte(1+below(rng, 255)))
		return true

	case OpByteInsert:
		if !canGrow {
			return false
		}
		count := 1 + below(rng, growRoom(n, maxSize, 8))
		ins := make([]byte, count)
		for i := range ins {
			ins[i] = byte(rng.Uint64())
		}
		pos := pickPos(p, n+1, rng)
		return p.Insert(pos, ins) == nil

	case OpByteDelete:
		if n == 0 {
			return false
		}
		count := 1 + below(rng, min(n, 16))
		pos := pickPos(p, n-count+1, rng)
		return p.Delete(pos, count) == nil

	case OpChunkDuplicate:
		if n == 0 || !canGrow {
			return false
		}
		count := 1 + below(rng, min(n, growRoom(n, maxSize, maxChunkLen)))
		start := below(rng, n-count+1)
		chunk := append([]byte(nil), p.Bytes()[start:start+count]...)
		pos := pickPos(p, n+1, rng)
		return p.Insert(pos, chunk) == nil

	case OpChunkCopy:
		if n < 2 {
			return false
		}
		count := 1 + below(rng, min(n-1, maxChunkLen))
		from := below(rng, n-count+1)
		to := pickPos(p, n-count+1, rng)
		if from == to {
			return false
		}
		before := append([]byte(nil), p.Bytes()[to:to+count]...)
		p.Overwrite(to, append([]byte(nil), p.Bytes()[from:from+count]...))
		return !bytes.Equal(before, p.Bytes()[to:to+count])

	case OpChunkSet:
		if n == 0 {
			return false
		}
		count := 1 + below(rng, min(n, maxChunkLen))
		pos := pickPos(p, n-count+1, rng)
		val := byte(rng.Uint64())
		before := append([]byte(nil), p.Bytes()[pos:pos+count]...)
		p.Overwrite(pos, bytes.Repeat([]byte{val}, count))
		return !bytes.Equal(before, p.Bytes()[pos:pos+count])

	case OpArith8, OpArith16, OpArith32:
		return arith(p, widthOf(op), rng)

	case OpInteresting8, OpInteresting16, OpInteresting32:
		return splice(p, widthOf(op), rng)
	}
	return false
}

func widthOf(op ByteOp) int {
	switch op {
	case OpArith16, OpInteresting16:
		return 2
	case OpArith32, OpInteresting32:
		return 4
	}
	return 1
}

// arith adds or subtracts a small delta to a word of the given width, in a
// random byte order.
func arith(p *packet.Packet, width int, rng Rand) bool {
	n := p.Len()
	if n < width {
		return false
	}
	pos := pickPos(p, n-width+1, rng)
	delta := uint32(1 + below(rng, arithMax))
	sub := chance(rng, 2)
	order := byteOrder(rng)
	word := p.Bytes()[pos : pos+width]

	buf := make([]byte, width)
	switch width {
	case 1:
		v := uint32(word[0])
		if sub {
			v -= delta
		} else {
			v += delta
		}
		buf[0] = byte(v)
	case 2:
		v := uint32(order.Uint16(word))
		if sub {
			v -= delta
		} else {
			v += delta
		}
		order.PutUint16(buf, uint16(v))
	default:
		v := order.Uint32(word)
		if sub {
			v -= delta
		} else {
			v += delta
		}
		order.PutUint32(buf, v)
	}
	p.Overwrite(pos, buf)
	return true
}

// splice overwrites a word with an interesting boundary value.
func splice(p *packet.Packet, width int, rng Rand) bool {
	n := p.Len()
	if n < width {
		return false
	}
	pos := pickPos(p, n-width+1, rng)
	order := byteOrder(rng)

	buf := make([]byte, width)
	switch width {
	case 1:
		buf[0] = byte(interesting8[below(rng, len(interesting8))])
	case 2:
		order.PutUint16(buf, uint16(interesting16[below(rng, len(interesting16))]))
	default:
		order.PutUint32(buf, uint32(interesting32[below(rng, len(interesting32))]))
	}
	before := append([]byte(nil), p.Bytes()[pos:pos+width]...)
	p.Overwrite(pos, buf)
	return !bytes.Equal(before, buf)
}

func byteOrder(rng Rand) binary.ByteOrder {
	if chance(rng, 2) {
		return binary.BigEndian
	}
	return binary.LittleEndian
}

// growRoom caps a growth amount so the packet stays within maxSize.
func growRoom(n, maxSize, want int) int {
	if maxSize > 0 && maxSize-n < want {
		return max(maxSize-n, 1)
	}
	return want
}

// pickPos chooses a position in [0,limit), trying a few times to avoid
// envelope spans. limit <= 0 yields 0.
func pickPos(p *packet.Packet, limit int, rng Rand) int {
	if limit <= 1 {
		return 0
	}
	pos := rng.IntN(limit)
	if !p.HasSpans() {
		return pos
	}
	for try := 0; try < 3 && p.EnvelopeAt(pos); try++ {
		pos = rng.IntN(limit)
	}
	return pos
}
