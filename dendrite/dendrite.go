// Copyright (c) 2019, The Emergent Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package dendrite implements the dendritic branch: a structure-of-arrays
// synapse store distributed over a binary segment tree, with response
// computation, permanence adaptation, and structural growth ("branching")
// of ambiguous synapses toward deeper segments.
package dendrite

import (
	"fmt"
	"math"
	"math/rand"
	"sort"

	"github.com/chewxy/math32"
	"github.com/jkuhl/ngm2/ioport"
	"github.com/jkuhl/ngm2/numeric"
)

// Type distinguishes the two dendrite kinds a neuron may own.
type Type int

const (
	Proximal Type = iota
	Apical
)

// Params holds the construction-time configuration of a dendrite plus the
// suggested defaults for its six (seven, including MismatchActThres)
// mutable learning hyperparameters. Call Defaults() to populate the
// suggested values before setting the caller-specific fields (Type,
// InputSize, InputIDs, RndSeed).
type Params struct {
	Type                Type
	InputSize           int
	InputIDs            []uint64
	PermanenceThreshold float32
	MaxBranchLevel      uint8
	RndSeed             int64

	DefaultPrimaryLearningRate   float32 // suggestion: 0.01
	DefaultSecondaryLearningRate float32 // suggestion: 0.0001
	DefaultMismatchSmoothing     float32 // suggestion: 0.001
	DefaultAccumulatedThetaThres float32 // suggestion: 2.0
	DefaultMinMismatchDeviation  float32 // suggestion: 1.0
	DefaultMinMismatchPercentage float32 // suggestion: 0.05 (0.002 is a known alternate operating point)
	DefaultMismatchActThres      float32 // suggestion: 0.8
}

// Defaults populates the suggested learning-hyperparameter defaults and the
// suggested permanence threshold / branch level. Caller-specific fields
// (Type, InputSize, InputIDs, RndSeed) are left untouched.
func (p *Params) Defaults() {
	p.PermanenceThreshold = 0.3
	p.MaxBranchLevel = 2
	p.DefaultPrimaryLearningRate = 0.01
	p.DefaultSecondaryLearningRate = 0.0001
	p.DefaultMismatchSmoothing = 0.001
	p.DefaultAccumulatedThetaThres = 2.0
	p.DefaultMinMismatchDeviation = 1.0
	p.DefaultMinMismatchPercentage = 0.05
	p.DefaultMismatchActThres = 0.8
}

// SynapseStore is the structure-of-arrays synapse storage: five parallel
// slices that must always be grown and resized together. Resize is the only
// way to change their length, keeping that invariant local to this type.
type SynapseStore struct {
	Permanence    []float32
	Mismatch      []float32
	AdaptHistory  []float32
	SegmentIdx    []uint16
	InputInc      []uint8
}

// Len returns the current synapse count.
func (s *SynapseStore) Len() int { return len(s.Permanence) }

// Resize grows or shrinks all five arrays to length n, preserving existing
// values and zero-extending new entries.
func (s *SynapseStore) Resize(n int) {
	s.Permanence = resizeF32(s.Permanence, n)
	s.Mismatch = resizeF32(s.Mismatch, n)
	s.AdaptHistory = resizeF32(s.AdaptHistory, n)
	s.SegmentIdx = resizeU16(s.SegmentIdx, n)
	s.InputInc = resizeU8(s.InputInc, n)
}

func resizeF32(s []float32, n int) []float32 {
	if n <= len(s) {
		return s[:n]
	}
	out := make([]float32, n)
	copy(out, s)
	return out
}

func resizeU16(s []uint16, n int) []uint16 {
	if n <= len(s) {
		return s[:n]
	}
	out := make([]uint16, n)
	copy(out, s)
	return out
}

func resizeU8(s []uint8, n int) []uint8 {
	if n <= len(s) {
		return s[:n]
	}
	out := make([]uint8, n)
	copy(out, s)
	return out
}

type portRef struct {
	id uint64
	fn ioport.InpFunc
}

// Dendrite is a single dendritic branch: its SoA synapse store, the binary
// segment tree scratch arrays, its wired input ports (in ascending-ID
// order), and its own PRNG.
type Dendrite struct {
	params        Params
	maxSegmentIdx uint16
	idSet         map[uint64]bool

	synapses         SynapseStore
	segmentActivity  []float32
	segmentWeights   []float32
	ports            []portRef

	primaryLearningRate   float32
	secondaryLearningRate float32
	mismatchSmoothing     float32
	accumulatedThetaThres float32
	minMismatchDeviation  float32
	minMismatchPercentage float32
	mismatchActThres      float32
	lastMaxInp            float32

	rng *rand.Rand
}

// New constructs a dendrite from params, seeding InputSize synapses all on
// segment 1 with Poisson-distributed permanences centered on the
// permanence threshold.
func New(params Params) (*Dendrite, error) {
	if params.InputSize <= 0 {
		return nil, fmt.Errorf("dendrite: input_size must be > 0, got %d", params.InputSize)
	}
	if params.Type != Apical && params.Type != Proximal {
		return nil, fmt.Errorf("dendrite: invalid type %d", params.Type)
	}

	maxSegIdx := uint16(1<<(params.MaxBranchLevel+1)) - 1

	idSet := make(map[uint64]bool, len(params.InputIDs))
	for _, id := range params.InputIDs {
		idSet[id] = true
	}

	d := &Dendrite{
		params:                params,
		maxSegmentIdx:         maxSegIdx,
		idSet:                 idSet,
		primaryLearningRate:   params.DefaultPrimaryLearningRate,
		secondaryLearningRate: params.DefaultSecondaryLearningRate,
		mismatchSmoothing:     params.DefaultMismatchSmoothing,
		accumulatedThetaThres: params.DefaultAccumulatedThetaThres,
		minMismatchDeviation:  params.DefaultMinMismatchDeviation,
		minMismatchPercentage: params.DefaultMinMismatchPercentage,
		mismatchActThres:      params.DefaultMismatchActThres,
		rng:                   rand.New(rand.NewSource(params.RndSeed)),
	}

	d.synapses.Resize(params.InputSize)
	lambda := 100.0 * float64(params.PermanenceThreshold)
	for i := 0; i < params.InputSize; i++ {
		perm := float32(poisson(d.rng, lambda)) / 100
		d.synapses.Permanence[i] = clamp(perm, 0, 1)
		d.synapses.SegmentIdx[i] = 1
		d.synapses.InputInc[i] = 1
	}

	d.segmentActivity = make([]float32, maxSegIdx+1)
	d.segmentWeights = make([]float32, maxSegIdx+1)

	return d, nil
}

// Params returns a read-only copy of the construction-time parameters.
func (d *Dendrite) Params() Params { return d.params }

// SetInpFunc stores the input capability for id, but only if this dendrite
// was configured to accept it. Ports are kept sorted by id so the wire
// sweep in GetResponse/AdaptSynapses visits them in deterministic order.
func (d *Dendrite) SetInpFunc(id uint64, fn ioport.InpFunc) {
	if !d.idSet[id] {
		return
	}
	idx := sort.Search(len(d.ports), func(i int) bool { return d.ports[i].id >= id })
	if idx < len(d.ports) && d.ports[idx].id == id {
		d.ports[idx].fn = fn
		return
	}
	d.ports = append(d.ports, portRef{})
	copy(d.ports[idx+1:], d.ports[idx:])
	d.ports[idx] = portRef{id: id, fn: fn}
}

// cursor walks the wired ports in order, one element at a time, following
// the input_inc advance rule.
type cursor struct {
	ports   []portRef
	portIdx int
	pos     int
	cur     []float32
	stats   ioport.Stats
}

func newCursor(ports []portRef) cursor {
	c := cursor{ports: ports}
	if len(ports) > 0 {
		c.cur, c.stats = ports[0].fn()
	}
	return c
}

func (c *cursor) value() float32 { return c.cur[c.pos] }

// advance moves the cursor by inc (0 or 1 elements); when the current
// port's slice is exhausted it moves to the next port and resets pos.
func (c *cursor) advance(inc uint8) {
	c.pos += int(inc)
	if c.pos >= len(c.cur) {
		c.portIdx++
		if c.portIdx < len(c.ports) {
			c.cur, c.stats = c.ports[c.portIdx].fn()
			c.pos = 0
		}
	}
}

// GetResponse computes the dendrite's response to the current input: the
// maximum activity among the leaves of its binary segment tree, after
// entropy-based attenuation and normalization by total input.
func (d *Dendrite) GetResponse() float32 {
	for i := range d.segmentActivity {
		d.segmentActivity[i] = 0
	}

	var inpSum float32
	d.lastMaxInp = 0
	for _, p := range d.ports {
		_, stats := p.fn()
		inpSum += stats.Sum
		if stats.Max > d.lastMaxInp {
			d.lastMaxInp = stats.Max
		}
	}
	if !isNormal(inpSum) {
		return 0
	}
	if len(d.ports) == 0 {
		return 0
	}

	c := newCursor(d.ports)
	nse := c.stats.Nse
	tau := d.params.PermanenceThreshold

	synCnt := d.synapses.Len()
	for i := 0; i < synCnt; i++ {
		if c.portIdx >= len(c.ports) {
			break
		}
		x := c.value()
		stats := c.stats
		if d.synapses.Permanence[i] > tau {
			seg := d.synapses.SegmentIdx[i]
			d.segmentActivity[seg] += x

			leak := d.rng.Float32() * (stats.Max / 2)
			if leak > x {
				inpContrib := x / stats.Sum
				permStrength := (d.synapses.Permanence[i] - tau) / (1 - tau)
				d.segmentActivity[seg] -= permStrength * (1 - inpContrib)
				if d.segmentActivity[seg] < 0 {
					d.segmentActivity[seg] = 0
				}
			}
		}

		prevPortIdx := c.portIdx
		c.advance(d.synapses.InputInc[i])
		if c.portIdx != prevPortIdx && c.portIdx < len(c.ports) {
			if c.stats.Nse < nse {
				nse = c.stats.Nse
			}
		}
	}

	leafBegin := (d.maxSegmentIdx + 1) / 2
	for si := uint16(1); si < leafBegin; si++ {
		d.segmentActivity[si*2] += d.segmentActivity[si]
		d.segmentActivity[si*2+1] += d.segmentActivity[si]
	}

	attenuation := 1 - numeric.Sigmoid((nse-0.8)/0.2, numeric.Shape{Steepness: 0.25, TransitionPoint: 0.5})
	var maxActivity float32
	for si := leafBegin; si <= d.maxSegmentIdx; si++ {
		d.segmentActivity[si] = clamp(d.segmentActivity[si]*attenuation/inpSum, 0, 1)
		if d.segmentActivity[si] > maxActivity {
			maxActivity = d.segmentActivity[si]
		}
	}

	return maxActivity
}

// AdaptSynapses adapts every synapse's permanence toward the current input,
// given the winning maxActivity reported for this dendrite's type and an
// overall learning weight. It also accumulates adapt_history and the
// mismatch heuristic used later by AdaptBranches.
func (d *Dendrite) AdaptSynapses(maxActivity, weight float32) {
	if !isNormal(maxActivity) {
		return
	}

	for i := range d.segmentWeights {
		d.segmentWeights[i] = 0
	}
	leafBegin := (d.maxSegmentIdx + 1) / 2
	maxSeen := false
	for si := leafBegin; si <= d.maxSegmentIdx; si++ {
		if !maxSeen && d.segmentActivity[si]+numeric.Epsilon32 >= maxActivity {
			maxSeen = true
			d.segmentWeights[si] = weight * d.primaryLearningRate
		} else {
			d.segmentWeights[si] = d.segmentActivity[si] * weight * d.secondaryLearningRate / maxActivity
		}
	}

	for levelStart := leafBegin; levelStart > 1; levelStart /= 2 {
		for si := levelStart; si < levelStart*2; si += 2 {
			d.segmentWeights[si/2] = max32(d.segmentWeights[si], d.segmentWeights[si+1])
			d.segmentActivity[si/2] = max32(d.segmentActivity[si], d.segmentActivity[si+1])
		}
	}

	if len(d.ports) == 0 {
		return
	}
	c := newCursor(d.ports)
	attenuation := 1 - numeric.Sigmoid((c.stats.Nse-0.8)/0.2, numeric.Shape{Steepness: 0.5, TransitionPoint: 0.5})
	tau := d.params.PermanenceThreshold

	synCnt := d.synapses.Len()
	for i := 0; i < synCnt; i++ {
		if c.portIdx >= len(c.ports) {
			break
		}
		x := c.value()
		stats := c.stats

		high := stats.Avg/2 + numeric.Epsilon32
		var ratio float32
		if x > high {
			ratio = (x - high) / (1 - high)
		} else {
			ratio = (high - x) / high
		}
		theta := clamp(d.segmentWeights[d.synapses.SegmentIdx[i]]*ratio*attenuation, 0, 1)

		perm := d.synapses.Permanence[i]
		if x > high {
			perm = clamp(perm*(1-theta)+theta, 0, 1)
		} else {
			perm = clamp(perm*(1-theta), 0, 1)
		}
		d.synapses.Permanence[i] = perm
		d.synapses.AdaptHistory[i] += theta

		seg := d.synapses.SegmentIdx[i]
		actRatio := d.segmentActivity[seg] / maxActivity
		if actRatio >= d.mismatchActThres && d.lastMaxInp != 0 {
			inpRatio := x / d.lastMaxInp
			var m float32
			if d.synapses.Permanence[i] > tau {
				m = 1 - inpRatio
			} else {
				m = inpRatio
			}
			m *= actRatio
			sigma := d.mismatchSmoothing
			d.synapses.Mismatch[i] = d.synapses.Mismatch[i]*(1-sigma) + m*sigma
		}

		prevPortIdx := c.portIdx
		c.advance(d.synapses.InputInc[i])
		if c.portIdx != prevPortIdx && c.portIdx < len(c.ports) {
			attenuation = 1 - numeric.Sigmoid((c.stats.Nse-0.8)/0.2, numeric.Shape{Steepness: 0.5, TransitionPoint: 0.5})
		}
	}
}

// AdaptBranches is the structural-growth tick: synapses whose mismatch is
// significantly above the branch's current mismatch distribution, and
// which have accumulated enough adaptation effort, are cloned to both
// children of their current segment -- provided enough synapses qualify at
// once (min_mismatch_percentage of the branch's input size).
//
// mm_std here is a population variance, not a standard deviation, despite
// being used as one below -- preserved exactly as the reference
// implementation computes it; see SPEC_FULL.md's Open Questions.
func (d *Dendrite) AdaptBranches() {
	synCntF := float32(d.synapses.Len())
	var mmSum float32
	for _, m := range d.synapses.Mismatch {
		mmSum += m
	}
	mmAvg := mmSum / synCntF

	var mmStdSum float32
	for _, m := range d.synapses.Mismatch {
		diff := mmAvg - m
		mmStdSum += diff * diff
	}
	mmStd := mmStdSum / synCntF
	mmThres := mmAvg + mmStd*d.minMismatchDeviation + 1/float32(d.params.InputSize)

	isAmbiguous := func(i int) bool {
		return d.synapses.AdaptHistory[i] >= d.accumulatedThetaThres &&
			d.synapses.Mismatch[i] >= mmThres &&
			uint32(d.synapses.SegmentIdx[i])*2+1 <= uint32(d.maxSegmentIdx)
	}

	synCnt := d.synapses.Len()
	mmCnt := 0
	for i := 0; i < synCnt; i++ {
		if isAmbiguous(i) {
			mmCnt++
		}
	}

	if float32(mmCnt) < float32(d.params.InputSize)*d.minMismatchPercentage {
		return
	}

	lastSynapseIdx := synCnt - 1
	d.synapses.Resize(synCnt + mmCnt)

	curIdx := d.synapses.Len() - 1
	for curIdx > lastSynapseIdx {
		d.copySynapse(curIdx, lastSynapseIdx)
		curIdx--

		if !isAmbiguous(lastSynapseIdx) {
			lastSynapseIdx--
			continue
		}

		d.copySynapse(curIdx, lastSynapseIdx)

		oldSeg := d.synapses.SegmentIdx[curIdx]
		d.synapses.SegmentIdx[curIdx] = oldSeg * 2
		d.synapses.SegmentIdx[curIdx+1] = oldSeg*2 + 1

		d.synapses.AdaptHistory[curIdx] = 0
		d.synapses.AdaptHistory[curIdx+1] = 0
		d.synapses.Mismatch[curIdx] = 0
		d.synapses.Mismatch[curIdx+1] = 0

		oldPerm := d.synapses.Permanence[curIdx]
		d.synapses.Permanence[curIdx] = clamp(oldPerm+d.wiggle(), 0, 1)
		d.synapses.Permanence[curIdx+1] = clamp(oldPerm+d.wiggle(), 0, 1)

		d.synapses.InputInc[curIdx] = 0

		curIdx--
		lastSynapseIdx--
	}
}

func (d *Dendrite) wiggle() float32 {
	return (d.rng.Float32()*2 - 1) * 0.1
}

func (d *Dendrite) copySynapse(dst, src int) {
	d.synapses.Permanence[dst] = d.synapses.Permanence[src]
	d.synapses.Mismatch[dst] = d.synapses.Mismatch[src]
	d.synapses.AdaptHistory[dst] = d.synapses.AdaptHistory[src]
	d.synapses.SegmentIdx[dst] = d.synapses.SegmentIdx[src]
	d.synapses.InputInc[dst] = d.synapses.InputInc[src]
}

// Runtime parameterization -- all six (seven) mutable learning hyperparameters.

func (d *Dendrite) SetPrimaryLearningRate(v float32)   { d.primaryLearningRate = v }
func (d *Dendrite) SetSecondaryLearningRate(v float32) { d.secondaryLearningRate = v }
func (d *Dendrite) SetMismatchSmoothing(v float32)     { d.mismatchSmoothing = v }
func (d *Dendrite) SetAccumulatedThetaThres(v float32) { d.accumulatedThetaThres = v }
func (d *Dendrite) SetMinMismatchDeviation(v float32)  { d.minMismatchDeviation = v }
func (d *Dendrite) SetMinMismatchPercentage(v float32) { d.minMismatchPercentage = v }
func (d *Dendrite) SetMismatchActThres(v float32)      { d.mismatchActThres = v }

func (d *Dendrite) PrimaryLearningRate() float32   { return d.primaryLearningRate }
func (d *Dendrite) SecondaryLearningRate() float32 { return d.secondaryLearningRate }
func (d *Dendrite) MismatchSmoothing() float32     { return d.mismatchSmoothing }
func (d *Dendrite) AccumulatedThetaThres() float32 { return d.accumulatedThetaThres }
func (d *Dendrite) MinMismatchDeviation() float32  { return d.minMismatchDeviation }
func (d *Dendrite) MinMismatchPercentage() float32 { return d.minMismatchPercentage }
func (d *Dendrite) MismatchActThres() float32      { return d.mismatchActThres }

// Introspection support, used by status reporting and (outside this spec's
// scope) visualization.

// GetLeafMask returns a one-hot-per-live-leaf mask over all segment
// indices: segments touched by any synapse, with every ancestor of an
// occupied inner segment cleared.
func (d *Dendrite) GetLeafMask() []uint8 {
	mask := make([]uint8, d.maxSegmentIdx+1)
	for _, seg := range d.synapses.SegmentIdx {
		mask[seg] = 1
	}

	level := (d.maxSegmentIdx + 1) / 2
	for level > 1 {
		for si := level; si < level*2; si++ {
			if mask[si] == 1 {
				lower := si
				for lower > 0 {
					lower /= 2
					mask[lower] = 0
				}
			}
		}
		level /= 2
	}
	return mask
}

// GetRepresentationCount returns the number of live leaves.
func (d *Dendrite) GetRepresentationCount() uint16 {
	mask := d.GetLeafMask()
	var count uint16
	for _, m := range mask {
		if m == 1 {
			count++
		}
	}
	return count
}

// GetRepresentation returns the permanences of every synapse on the
// root-to-leaf path of the idx-th live leaf (in tree order).
func (d *Dendrite) GetRepresentation(idx uint16) []float32 {
	mask := d.GetLeafMask()

	target := idx + 1
	i := 0
	for ; i < len(mask); i++ {
		target -= uint16(mask[i])
		if target == 0 {
			break
		}
	}

	for j := range mask {
		mask[j] = 0
	}
	mask[i] = 1
	for i > 1 {
		i /= 2
		mask[i] = 1
	}

	result := make([]float32, 0, d.params.InputSize)
	for si := 0; si < d.synapses.Len(); si++ {
		if mask[d.synapses.SegmentIdx[si]] == 1 {
			result = append(result, d.synapses.Permanence[si])
		}
	}
	return result
}

func (d *Dendrite) GetRepresentationSize() int { return d.params.InputSize }
func (d *Dendrite) GetSynapseCount() int       { return d.synapses.Len() }
func (d *Dendrite) GetSynapses() *SynapseStore { return &d.synapses }
func (d *Dendrite) GetMaxSegmentIdx() uint16    { return d.maxSegmentIdx }
func (d *Dendrite) GetInputSize() int          { return d.params.InputSize }

func clamp(x, lo, hi float32) float32 {
	if x < lo {
		return lo
	}
	if x > hi {
		return hi
	}
	return x
}

func max32(a, b float32) float32 {
	if a > b {
		return a
	}
	return b
}

func isNormal(x float32) bool {
	if math32.IsNaN(x) || math32.IsInf(x, 0) {
		return false
	}
	return x != 0
}

// poisson draws a single sample from a Poisson distribution with the given
// mean using Knuth's algorithm -- adequate here since it only runs once per
// synapse at construction time, not in any hot loop.
func poisson(rng *rand.Rand, lambda float64) int {
	if lambda <= 0 {
		return 0
	}
	l := math.Exp(-lambda)
	k := 0
	p := 1.0
	for {
		k++
		p *= rng.Float64()
		if p <= l {
			break
		}
	}
	return k - 1
}
