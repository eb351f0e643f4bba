package peer_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"gotorrent/p2p/peer"
)

func TestBitfieldSetAndCheck(t *testing.T) {
	bf := peer.NewBitfield(10)
	assert.False(t, bf.Check(3))
	bf.Set(3)
	assert.True(t, bf.Check(3))
	assert.False(t, bf.Check(4))
}

func TestBitfieldMissingPieces(t *testing.T) {
	bf := peer.NewBitfield(4)
	bf.Set(0)
	bf.Set(2)
	assert.Equal(t, []int{1, 3}, bf.MissingPieces())
}

func TestBitfieldCloneIsIndependent(t *testing.T) {
	bf := peer.NewBitfield(8)
	bf.Set(1)
	clone := bf.Clone()
	clone.Set(2)
	assert.False(t, bf.Check(2))
	assert.True(t, clone.Check(2))
}

func TestBitfieldFromWireRoundTrip(t *testing.T) {
	bf := peer.NewBitfield(9)
	bf.Set(0)
	bf.Set(8)
	wire := bf.Wire()

	got := peer.BitfieldFromWire(wire, 9)
	assert.True(t, got.Check(0))
	assert.True(t, got.Check(8))
	assert.False(t, got.Check(1))
}

func TestBitfieldCheckOutOfRangeIsFalse(t *testing.T) {
	bf := peer.NewBitfield(4)
	require.False(t, bf.Check(-1))
	require.False(t, bf.Check(100))
}
