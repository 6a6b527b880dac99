package neuron

import (
	"testing"

	"github.com/jkuhl/ngm2/dendrite"
	"github.com/jkuhl/ngm2/ioport"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestNeuron(t *testing.T) (*Neuron, *ioport.Buffer) {
	t.Helper()
	buf := ioport.NewBuffer(4)

	var dp dendrite.Params
	dp.Defaults()
	dp.Type = dendrite.Proximal
	dp.InputSize = 4
	dp.InputIDs = []uint64{0}
	dp.RndSeed = 1

	var p Params
	p.Defaults()
	p.DendriteParams = []dendrite.Params{dp}
	p.RndSeed = 2

	n, err := New(p)
	require.NoError(t, err)
	n.SetInpFunc(0, buf.InpPort())
	return n, buf
}

func TestGetResponseNoApicalDendritesSentinelBecomesOne(t *testing.T) {
	n, buf := newTestNeuron(t)
	copy(buf.WriteSlice(), []float32{1, 1, 1, 1})
	buf.Swap()

	resp := n.GetResponse()
	assert.GreaterOrEqual(t, resp, float32(0))
	assert.LessOrEqual(t, resp, float32(1))
	assert.Equal(t, float32(1), n.apicalActivity)
}

func TestAdaptIncrementsInputCountAcrossBranchIntervals(t *testing.T) {
	n, buf := newTestNeuron(t)
	n.SetBranchInterval(2)

	for i := 0; i < 4; i++ {
		copy(buf.WriteSlice(), []float32{1, 0, 0, 1})
		buf.Swap()
		resp := n.GetResponse()
		n.Adapt(resp)
	}

	assert.Equal(t, 4, n.inputCount)
}

func TestResponseStaysBounded(t *testing.T) {
	n, buf := newTestNeuron(t)
	for i := 0; i < 10; i++ {
		copy(buf.WriteSlice(), []float32{0.3, 0.7, 0.1, 0.9})
		buf.Swap()
		resp := n.GetResponse()
		assert.GreaterOrEqual(t, resp, float32(0))
		assert.LessOrEqual(t, resp, float32(1))
		n.Adapt(0.1)
	}
}
