package dendrite

import (
	"testing"

	"github.com/jkuhl/ngm2/ioport"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestDendrite(t *testing.T, inputSize int, maxBranchLevel uint8, permThreshold float32) (*Dendrite, *ioport.Buffer) {
	t.Helper()
	buf := ioport.NewBuffer(inputSize)
	var p Params
	p.Defaults()
	p.Type = Proximal
	p.InputSize = inputSize
	p.InputIDs = []uint64{0}
	p.PermanenceThreshold = permThreshold
	p.MaxBranchLevel = maxBranchLevel
	p.RndSeed = 1
	d, err := New(p)
	require.NoError(t, err)
	d.SetInpFunc(0, buf.InpPort())

	for i := 0; i < d.GetSynapseCount(); i++ {
		d.synapses.Permanence[i] = 0.9
	}
	return d, buf
}

// E1: single dendrite, input_size=4, all permanences 0.9, tau=0.3, input
// [1,1,1,1], max_branch_level=0 -> response 1.0 within tolerance.
func TestE1AllOnesResponse(t *testing.T) {
	d, buf := newTestDendrite(t, 4, 0, 0.3)
	copy(buf.WriteSlice(), []float32{1, 1, 1, 1})
	buf.Swap()

	resp := d.GetResponse()
	assert.InDelta(t, 1.0, resp, 1e-2)
}

// E2: same setup, zero input -> response exactly 0.
func TestE2ZeroInputResponse(t *testing.T) {
	d, buf := newTestDendrite(t, 4, 0, 0.3)
	copy(buf.WriteSlice(), []float32{0, 0, 0, 0})
	buf.Swap()

	resp := d.GetResponse()
	assert.Equal(t, float32(0), resp)
}

// Invariant 1: SoA arrays stay equal length with valid segment_idx/input_inc.
func TestInvariant1SoAConsistency(t *testing.T) {
	d, buf := newTestDendrite(t, 4, 1, 0.3)
	copy(buf.WriteSlice(), []float32{1, 0, 0, 1})
	buf.Swap()

	d.GetResponse()

	ss := d.GetSynapses()
	n := ss.Len()
	assert.Len(t, ss.Mismatch, n)
	assert.Len(t, ss.AdaptHistory, n)
	assert.Len(t, ss.SegmentIdx, n)
	assert.Len(t, ss.InputInc, n)
	for i := 0; i < n; i++ {
		assert.GreaterOrEqual(t, ss.SegmentIdx[i], uint16(1))
		assert.LessOrEqual(t, ss.SegmentIdx[i], d.GetMaxSegmentIdx())
		assert.Contains(t, []uint8{0, 1}, ss.InputInc[i])
	}
	assert.Equal(t, uint8(1), ss.InputInc[n-1])
}

// Invariant 2: permanences/mismatch stay within [0,1] across process/adapt.
func TestInvariant2PermanenceMismatchBounds(t *testing.T) {
	d, buf := newTestDendrite(t, 4, 1, 0.3)
	copy(buf.WriteSlice(), []float32{1, 0, 0, 1})
	buf.Swap()

	resp := d.GetResponse()
	d.AdaptSynapses(resp, 1.0)

	ss := d.GetSynapses()
	for i := 0; i < ss.Len(); i++ {
		assert.GreaterOrEqual(t, ss.Permanence[i], float32(0))
		assert.LessOrEqual(t, ss.Permanence[i], float32(1))
		assert.GreaterOrEqual(t, ss.Mismatch[i], float32(0))
		assert.LessOrEqual(t, ss.Mismatch[i], float32(1))
	}
}

// Invariant 3 / E6: with min_mismatch_percentage = 1.0, AdaptBranches never
// grows the SoA.
func TestE6NeverBranchesAtFullMismatchPercentage(t *testing.T) {
	d, buf := newTestDendrite(t, 4, 2, 0.3)
	d.SetMinMismatchPercentage(1.0)
	before := d.GetSynapseCount()

	for step := 0; step < 20; step++ {
		copy(buf.WriteSlice(), []float32{1, 0, 0, 1})
		buf.Swap()
		resp := d.GetResponse()
		d.AdaptSynapses(resp, 1.0)
		d.AdaptBranches()
	}

	assert.Equal(t, before, d.GetSynapseCount())
}

// Invariant 3: with branching thresholds lowered, AdaptBranches never
// shrinks the SoA.
func TestAdaptBranchesSoALengthNonDecreasing(t *testing.T) {
	d, buf := newTestDendrite(t, 4, 2, 0.3)
	d.SetMinMismatchPercentage(0.001)
	d.SetAccumulatedThetaThres(0.001)

	before := d.GetSynapseCount()
	for step := 0; step < 50; step++ {
		if step%2 == 0 {
			copy(buf.WriteSlice(), []float32{1, 0, 0, 1})
		} else {
			copy(buf.WriteSlice(), []float32{0, 1, 1, 0})
		}
		buf.Swap()
		resp := d.GetResponse()
		d.AdaptSynapses(resp, 1.0)
	}
	d.AdaptBranches()

	assert.GreaterOrEqual(t, d.GetSynapseCount(), before)
}

func TestGetLeafMaskOneHotAtConstruction(t *testing.T) {
	d, _ := newTestDendrite(t, 4, 1, 0.3)
	mask := d.GetLeafMask()
	// all synapses start on segment 1, which is an inner node for
	// max_branch_level=1 (leaves are 2,3) -- segment 1 itself is the
	// sole occupied (and thus sole live) segment.
	var count int
	for _, m := range mask {
		if m == 1 {
			count++
		}
	}
	assert.Equal(t, 1, count)
	assert.Equal(t, uint8(1), mask[1])
}
