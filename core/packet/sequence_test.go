package packet

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func payloadStrings(s *Sequence) []string {
	var out []string
	for _, b := range s.Payloads() {
		out = append(out, string(b))
	}
	return out
}

func TestSequenceEditing(t *testing.T) {
	s := FromPayloads([]byte("a"), []byte("b"), []byte("c"))

	require.NoError(t, s.Insert(1, New([]byte("x"))))
	assert.Equal(t, []string{"a", "x", "b", "c"}, payloadStrings(&s))

	p, err := s.Remove(0)
	require.NoError(t, err)
	assert.Equal(t, "a", string(p.Bytes()))
	assert.Equal(t, []string{"x", "b", "c"}, payloadStrings(&s))

	s.Swap(0, 2)
	assert.Equal(t, []string{"c", "b", "x"}, payloadStrings(&s))

	require.NoError(t, s.Move(0, 2))
	assert.Equal(t, []string{"b", "x", "c"}, payloadStrings(&s))
	require.NoError(t, s.Move(2, 0))
	assert.Equal(t, []string{"c", "b", "x"}, payloadStrings(&s))

	assert.Error(t, s.Insert(5, New(nil)))
	_, err = s.Remove(3)
	assert.Error(t, err)
	assert.Error(t, s.Move(0, 3))
}

func TestSequenceCloneHasNoAliasing(t *testing.T) {
	s := FromPayloads([]byte("hello"), []byte("world"))
	c := s.Clone()
	c.At(0).SetByte(0, 'J')
	require.NoError(t, c.At(1).Insert(0, []byte("!")))

	assert.Equal(t, []string{"hello", "world"}, payloadStrings(&s))
	assert.Equal(t, []string{"Jello", "!world"}, payloadStrings(&c))
	assert.False(t, s.Equal(&c))
}

func TestSequenceInsertCopiesPacket(t *testing.T) {
	var s Sequence
	p := New([]byte("abc"))
	require.NoError(t, s.Insert(0, p))
	p.SetByte(0, 'z')
	assert.Equal(t, "abc", string(s.At(0).Bytes()))
}

func TestSequenceEqual(t *testing.T) {
	a := FromPayloads([]byte("1"), []byte("2"))
	b := FromPayloads([]byte("1"), []byte("2"))
	c := FromPayloads([]byte("1"))
	assert.True(t, a.Equal(&b))
	assert.False(t, a.Equal(&c))
	assert.Equal(t, 2, a.TotalBytes())
}
