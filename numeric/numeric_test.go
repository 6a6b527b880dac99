package numeric

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNormalizedShannonEntropyUniform(t *testing.T) {
	v := []float32{3, 3, 3, 3}
	assert.InDelta(t, 1.0, NormalizedShannonEntropy(v), 1e-5)
}

func TestNormalizedShannonEntropyOneHot(t *testing.T) {
	v := []float32{0, 0, 1, 0}
	assert.InDelta(t, 0.0, NormalizedShannonEntropy(v), 1e-5)
}

func TestNormalizedShannonEntropyEmpty(t *testing.T) {
	assert.Equal(t, float32(0), NormalizedShannonEntropy(nil))
}

func TestNormalizedShannonEntropyMonotoneUnderConcentration(t *testing.T) {
	spread := []float32{1, 1, 1, 1}
	concentrated := []float32{4, 0.1, 0.1, 0.1}
	assert.Greater(t, NormalizedShannonEntropy(spread), NormalizedShannonEntropy(concentrated))
}

func TestLocalInhibitionIdentityAtStrengthOne(t *testing.T) {
	v := []float32{0.5, 0.5, 0.5, 0.5}
	LocalInhibition(v, 1.0)
	for _, x := range v {
		assert.InDelta(t, 0.5, x, 1e-4)
	}
}

func TestLocalInhibitionMonotoneAtNonMaxPositions(t *testing.T) {
	strong := []float32{1.0, 0.9, 0.9, 0.9}
	LocalInhibition(strong, 5.0)
	for i, x := range strong {
		if i == 0 {
			continue
		}
		assert.LessOrEqual(t, x, float32(0.9)+1e-4)
	}
}

func TestSigmoidHardStepApproachesStep(t *testing.T) {
	shape := Shape{Steepness: 0.999, TransitionPoint: 0.5}
	below := Sigmoid(0.1, shape)
	above := Sigmoid(0.9, shape)
	assert.Less(t, below, float32(0.5))
	assert.Greater(t, above, float32(0.5))
}

func TestNormalizeZeroRange(t *testing.T) {
	v := []float32{2, 2, 2}
	Normalize(v)
	for _, x := range v {
		assert.Equal(t, float32(0), x)
	}
}

// TestNormalizeNearZeroRangeIsZeroed covers a range that is nonzero but
// still below machine epsilon -- "zero-range" per the documented contract
// (SPEC_FULL.md §7). A tolerance as tight as the smallest representable
// float32 would let this range through and compute a degenerate ratio
// instead of zeroing it.
func TestNormalizeNearZeroRangeIsZeroed(t *testing.T) {
	v := []float32{0, 1e-7, 5e-8}
	Normalize(v)
	for _, x := range v {
		assert.Equal(t, float32(0), x)
	}
}

func TestNormalizeRange(t *testing.T) {
	v := []float32{1, 2, 3}
	Normalize(v)
	assert.Equal(t, []float32{0, 0.5, 1}, v)
}

// TestLocalInhibitionAttenuationUsesDefaultShape pins the entropy-based
// attenuation term to the original's un-shaped sigmoid call (default
// sigmoid_shape_t{0.5,0.5}, per hd_ngm2_tools.h's local_inhibition4). The
// expected value below is computed by hand from that shape; an attenuation
// shape of {0.25,0.5} (ungrounded anywhere in this codebase) would instead
// land near 0.1968, well outside the tolerance.
func TestLocalInhibitionAttenuationUsesDefaultShape(t *testing.T) {
	v := []float32{1.0, 0.5, 0.5, 0.5}
	LocalInhibition(v, 5.0)
	assert.InDelta(t, 0.242914, v[1], 0.002)
}

func TestSoftmaxSumsToOne(t *testing.T) {
	v := []float32{1, 2, 3}
	Softmax(v, 1.0)
	var sum float32
	for _, x := range v {
		sum += x
	}
	assert.InDelta(t, 1.0, sum, 1e-5)
}
