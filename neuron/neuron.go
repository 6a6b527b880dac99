// Copyright (c) 2019, The Emergent Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package neuron implements a single neuron: a bundle of typed dendrites
// whose apical and proximal responses are combined into one stochastic
// activity value, with learning-window-gated adaptation and a periodic
// structural-growth tick.
package neuron

import (
	"fmt"
	"math/rand"

	"github.com/jkuhl/ngm2/dendrite"
	"github.com/jkuhl/ngm2/ioport"
	"github.com/jkuhl/ngm2/numeric"
)

// LearningWindow is the pair of sigmoid shapes gating how strongly a
// neuron's adaptation weight is allowed to grow as a function of its own
// activity: the first shape suppresses learning near zero activity, the
// second suppresses it near full activity.
type LearningWindow struct {
	Low  numeric.Shape
	High numeric.Shape
}

// Params configures a neuron: the params of each of its dendrites, plus the
// suggested branch-growth interval and activity learning window.
type Params struct {
	DendriteParams []dendrite.Params

	DefaultBranchInterval          int            // suggestion: 5000
	DefaultActivityLearningWindow  LearningWindow // suggestion: {{0.6,0.33},{0.6,0.66}}
	RndSeed                        int64
}

// Defaults populates the suggested branch interval and activity learning
// window. DendriteParams and RndSeed are left for the caller to set.
func (p *Params) Defaults() {
	p.DefaultBranchInterval = 5000
	p.DefaultActivityLearningWindow = LearningWindow{
		Low:  numeric.Shape{Steepness: 0.6, TransitionPoint: 0.33},
		High: numeric.Shape{Steepness: 0.6, TransitionPoint: 0.66},
	}
}

// Neuron owns a set of dendrites and the scalar state needed to gate its
// own learning: the most recent overall activity, per-type max activity,
// an input-step counter, and its own PRNG.
type Neuron struct {
	// ID is assigned by the owning population.Group as this neuron's
	// position within the group's output buffer.
	ID int

	params Params

	dendrites            []*dendrite.Dendrite
	neuronActivity       float32
	apicalActivity       float32
	proximalActivity     float32
	inputCount           int
	branchInterval       int
	activityLearningWindow LearningWindow

	rng *rand.Rand
}

// New constructs a neuron and all of its dendrites.
func New(params Params) (*Neuron, error) {
	if len(params.DendriteParams) == 0 {
		return nil, fmt.Errorf("neuron: must have at least one dendrite")
	}

	n := &Neuron{
		params:                 params,
		branchInterval:         params.DefaultBranchInterval,
		activityLearningWindow: params.DefaultActivityLearningWindow,
		rng:                    rand.New(rand.NewSource(params.RndSeed)),
	}

	n.dendrites = make([]*dendrite.Dendrite, 0, len(params.DendriteParams))
	for _, dp := range params.DendriteParams {
		d, err := dendrite.New(dp)
		if err != nil {
			return nil, fmt.Errorf("neuron: %w", err)
		}
		n.dendrites = append(n.dendrites, d)
	}
	return n, nil
}

// SetInpFunc hands the input capability down to every dendrite; the neuron
// itself holds no direct reference to input ports.
func (n *Neuron) SetInpFunc(id uint64, fn ioport.InpFunc) {
	for _, d := range n.dendrites {
		d.SetInpFunc(id, fn)
	}
}

// GetResponse computes this neuron's response: the max proximal response
// times the max apical response (1 if no apical dendrites exist), plus a
// small amount of noise, clamped to [0,1].
func (n *Neuron) GetResponse() float32 {
	n.neuronActivity = 0
	n.apicalActivity = -1
	n.proximalActivity = 0

	for _, d := range n.dendrites {
		resp := d.GetResponse()
		switch d.Params().Type {
		case dendrite.Apical:
			if resp > n.apicalActivity {
				n.apicalActivity = resp
			}
		case dendrite.Proximal:
			if resp > n.proximalActivity {
				n.proximalActivity = resp
			}
		}
	}

	if n.apicalActivity < 0 {
		n.apicalActivity = 1
	}
	n.apicalActivity = clamp(n.apicalActivity, 0, 1)
	n.proximalActivity = clamp(n.proximalActivity, 0, 1)

	noise := 0.01 + n.rng.Float32()*0.04
	n.neuronActivity = clamp(n.apicalActivity*n.proximalActivity+noise, 0, 1)
	return n.neuronActivity
}

// Adapt adapts every dendrite toward the current input, gated by a bump
// filter over the neuron's own activity (so learning is suppressed at both
// extremes of the activity range), then -- every BranchInterval inputs --
// checks every dendrite for structural growth.
func (n *Neuron) Adapt(weight float32) {
	low := numeric.Sigmoid(n.neuronActivity, n.activityLearningWindow.Low)
	high := 1 - numeric.Sigmoid(n.neuronActivity, n.activityLearningWindow.High)
	synapseWeight := weight * min32(low, high)

	for _, d := range n.dendrites {
		var typeMax float32
		switch d.Params().Type {
		case dendrite.Apical:
			typeMax = n.apicalActivity
		case dendrite.Proximal:
			typeMax = n.proximalActivity
		}
		d.AdaptSynapses(typeMax, synapseWeight)
	}

	n.inputCount++
	if n.branchInterval <= 0 || n.inputCount%n.branchInterval != 0 {
		return
	}
	for _, d := range n.dendrites {
		d.AdaptBranches()
	}
}

// SetBranchInterval overrides how many Adapt calls elapse between branch
// growth checks.
func (n *Neuron) SetBranchInterval(interval int) { n.branchInterval = interval }

// SetActivityLearningWindow overrides the learning-gate sigmoid pair.
func (n *Neuron) SetActivityLearningWindow(w LearningWindow) { n.activityLearningWindow = w }

func (n *Neuron) BranchInterval() int                      { return n.branchInterval }
func (n *Neuron) ActivityLearningWindow() LearningWindow    { return n.activityLearningWindow }

// Introspection support.

func (n *Neuron) GetRepresentationCount() uint16 {
	var total uint16
	for _, d := range n.dendrites {
		total += d.GetRepresentationCount()
	}
	return total
}

func (n *Neuron) GetDendrite(idx int) *dendrite.Dendrite { return n.dendrites[idx] }
func (n *Neuron) GetDendriteCount() int                  { return len(n.dendrites) }

func (n *Neuron) GetSynapseCount() int {
	total := 0
	for _, d := range n.dendrites {
		total += d.GetSynapseCount()
	}
	return total
}

func clamp(x, lo, hi float32) float32 {
	if x < lo {
		return lo
	}
	if x > hi {
		return hi
	}
	return x
}

func min32(a, b float32) float32 {
	if a < b {
		return a
	}
	return b
}
