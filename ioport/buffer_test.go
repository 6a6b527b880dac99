package ioport

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNewBufferZeroInitialized(t *testing.T) {
	b := NewBuffer(4)
	assert.Equal(t, 4, b.Size())
	for _, x := range b.ReadSlice() {
		assert.Equal(t, float32(0), x)
	}
	assert.Equal(t, Stats{}, b.stats)
}

func TestSwapRecomputesStatsFromNewReadSide(t *testing.T) {
	b := NewBuffer(4)
	w := b.WriteSlice()
	copy(w, []float32{1, 2, 3, 4})
	b.Swap()

	read, stats := b.InpPort()()
	assert.Equal(t, []float32{1, 2, 3, 4}, read)
	assert.Equal(t, float32(10), stats.Sum)
	assert.Equal(t, float32(2.5), stats.Avg)
	assert.Equal(t, float32(1), stats.Min)
	assert.Equal(t, float32(4), stats.Max)
}

func TestSwapDoesNotMutateStatsBetweenSwaps(t *testing.T) {
	b := NewBuffer(2)
	copy(b.WriteSlice(), []float32{1, 1})
	b.Swap()
	_, s1 := b.InpPort()()

	// mutate the (now) write side; read side + stats must stay stable until next Swap
	copy(b.WriteSlice(), []float32{9, 9})
	_, s2 := b.InpPort()()
	assert.Equal(t, s1, s2)
}

func TestOutpPortReturnsCurrentWriteSlice(t *testing.T) {
	b := NewBuffer(3)
	outp := b.OutpPort()
	s := outp()
	s[0] = 42
	assert.Equal(t, float32(42), b.WriteSlice()[0])
}
