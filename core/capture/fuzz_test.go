package capture

import (
	"testing"

	"github.com/gocircum/statefuzz/core/packet"
)

func FuzzDecode(f *testing.F) {
	seed, err := Encode(packet.FromPayloads([]byte("USER a\r\n"), []byte{0x00, 0x01}))
	if err != nil {
		f.Fatal(err)
	}
	f.Add(seed)
	f.Add(seed[:30])
	f.Add([]byte{0x0a, 0x0d, 0x0d, 0x0a, 0x00})
	f.Add([]byte{})

	f.Fuzz(func(t *testing.T, data []byte) {
		seqs, err := Decode(data, Options{Direction: DirectionBoth, InferSpans: true})
		if err != nil {
			return
		}
		for _, seq := range seqs {
			for i := 0; i < seq.Len(); i++ {
				p := seq.At(i)
				for _, s := range p.Spans() {
					if s.Length <= 0 || s.Offset < 0 || s.End() > p.Len() {
						t.Fatalf("span %+v outside packet of %d bytes", s, p.Len())
					}
				}
			}
		}
	})
}
