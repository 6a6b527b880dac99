// Copyright (c) 2019, The Emergent Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package population implements the neuron group: the external entity that
// owns a set of neurons, evaluates them in parallel, applies local
// inhibition, and drives stochastic winner-take-most learning across the
// population.
package population

import (
	"context"
	"fmt"
	"math/rand"
	"sort"
	"strings"
	"unsafe"

	"github.com/c2h5oh/datasize"
	"github.com/jkuhl/ngm2/ioport"
	"github.com/jkuhl/ngm2/neuron"
	"github.com/jkuhl/ngm2/numeric"
	"github.com/jkuhl/ngm2/sim"
	"golang.org/x/sync/errgroup"
)

// Group implements sim.IOEntity: it is the entity kind the environment steps.
var _ sim.IOEntity = (*Group)(nil)

// Params configures a neuron group.
type Params struct {
	ID            uint64
	NeuronParams  []neuron.Params
	RndSeed       int64

	DefaultLocalInhibitionStrength float32      // suggestion: 5-10
	DefaultCommonLearningRate      float32      // suggestion: 1e-4 - 1e-2
	DefaultWeightFilter            numeric.Shape // e.g. {0.5, 0.33}
	DefaultStochasticWinThres      float32      // suggestion: ~0.8
}

// Defaults populates the suggested group-level hyperparameters.
// ID, NeuronParams and RndSeed are left for the caller to set.
func (p *Params) Defaults() {
	p.DefaultLocalInhibitionStrength = 5.0
	p.DefaultCommonLearningRate = 0.0001
	p.DefaultWeightFilter = numeric.Shape{Steepness: 0.5, TransitionPoint: 0.33}
	p.DefaultStochasticWinThres = 0.8
}

// Group is a neuron group: the primary io_entity-implementing component of
// this model. It owns its neurons, its wired input-ID set, and its output
// port capability.
type Group struct {
	params Params

	inpIDs  []uint64
	neurons []*neuron.Neuron
	outFn   ioport.OutpFunc

	localInhibitionStrength float32
	commonLearningRate      float32
	weightFilter            numeric.Shape
	stochasticWinThres      float32

	rng *rand.Rand

	// NumWorkers bounds the parallel regions in Process (neuron response
	// and secondary adapt). 0 or 1 means sequential.
	NumWorkers int
}

// New constructs a neuron group and all of its neurons, and collects the
// deduplicated, sorted set of input IDs the group as a whole needs wired.
func New(params Params) (*Group, error) {
	if len(params.NeuronParams) == 0 {
		return nil, fmt.Errorf("population: group must have at least one neuron")
	}

	g := &Group{
		params:                  params,
		localInhibitionStrength: params.DefaultLocalInhibitionStrength,
		commonLearningRate:      params.DefaultCommonLearningRate,
		weightFilter:            params.DefaultWeightFilter,
		stochasticWinThres:      params.DefaultStochasticWinThres,
		rng:                     rand.New(rand.NewSource(params.RndSeed)),
	}

	idSet := make(map[uint64]bool)
	g.neurons = make([]*neuron.Neuron, 0, len(params.NeuronParams))
	for _, np := range params.NeuronParams {
		n, err := neuron.New(np)
		if err != nil {
			return nil, fmt.Errorf("population: %w", err)
		}
		n.ID = len(g.neurons)
		g.neurons = append(g.neurons, n)
		for _, dp := range np.DendriteParams {
			for _, id := range dp.InputIDs {
				idSet[id] = true
			}
		}
	}

	g.inpIDs = make([]uint64, 0, len(idSet))
	for id := range idSet {
		g.inpIDs = append(g.inpIDs, id)
	}
	sort.Slice(g.inpIDs, func(i, j int) bool { return g.inpIDs[i] < g.inpIDs[j] })

	return g, nil
}

// SetOutpFunc implements the io_entity contract: stores the capability
// that produces this group's current output write slice.
func (g *Group) SetOutpFunc(fn ioport.OutpFunc) { g.outFn = fn }

// SetInpFunc implements the io_entity contract: hands the input capability
// down to every neuron (which in turn hands it to its dendrites).
func (g *Group) SetInpFunc(id uint64, fn ioport.InpFunc) {
	for _, n := range g.neurons {
		n.SetInpFunc(id, fn)
	}
}

// Process implements one simulation step for the group:
//  1. acquire the write slice and fill it with every neuron's response (in parallel);
//  2. apply local inhibition across the group;
//  3. pick a stochastic primary winner and let it learn strongly;
//  4. let every neuron learn a little, scaled by its share of total activity.
func (g *Group) Process() {
	if g.outFn == nil {
		panic("population: Process called before SetOutpFunc")
	}
	out := g.outFn()
	if len(out) != len(g.neurons) {
		panic(fmt.Sprintf("population: output buffer size %d does not match neuron count %d", len(out), len(g.neurons)))
	}

	g.parallelOverNeurons(func(n *neuron.Neuron) {
		out[n.ID] = n.GetResponse()
	})

	numeric.LocalInhibition(out, g.localInhibitionStrength)

	var maxAct float32
	for _, v := range out {
		if v > maxAct {
			maxAct = v
		}
	}
	winAct := maxAct*g.stochasticWinThres + g.rng.Float32()*(maxAct-maxAct*g.stochasticWinThres)
	for idx, v := range out {
		if v+numeric.Epsilon32 >= winAct {
			g.neurons[idx].Adapt(numeric.Sigmoid(1-v, g.weightFilter))
			break
		}
	}

	var actSum float32
	for _, v := range out {
		actSum += v
	}
	g.parallelOverNeurons(func(n *neuron.Neuron) {
		secWeight := numeric.Sigmoid(1-(out[n.ID]/actSum), g.weightFilter)
		n.Adapt(secWeight * g.commonLearningRate)
	})
}

// parallelOverNeurons runs fn once per neuron, bounded to NumWorkers
// concurrent calls (sequential if NumWorkers <= 1), joining before return.
func (g *Group) parallelOverNeurons(fn func(n *neuron.Neuron)) {
	if g.NumWorkers <= 1 {
		for _, n := range g.neurons {
			fn(n)
		}
		return
	}
	eg, _ := errgroup.WithContext(context.Background())
	eg.SetLimit(g.NumWorkers)
	for _, n := range g.neurons {
		n := n
		eg.Go(func() error {
			fn(n)
			return nil
		})
	}
	_ = eg.Wait()
}

// GetOutpID implements the io_entity contract.
func (g *Group) GetOutpID() uint64 { return g.params.ID }

// GetOutpSize implements the io_entity contract.
func (g *Group) GetOutpSize() int { return len(g.neurons) }

// GetInpIDs implements the io_entity contract.
func (g *Group) GetInpIDs() []uint64 { return g.inpIDs }

// StatusStr implements the io_entity contract's optional status reporting.
func (g *Group) StatusStr() string {
	return fmt.Sprintf(
		"Neuron Group | id: %d\n | neurons: %d | representations: %d | synapses: %d | max mm: %.4f | avg mm: %.4f | max at: %.4f | avg at: %.4f",
		g.GetOutpID(), g.GetNeuronCount(), g.GetRepresentationCount(), g.GetSynapseCount(),
		g.GetMaxMismatch(), g.GetAvgMismatch(), g.GetMaxAccTheta(), g.GetAvgAccTheta(),
	)
}

// Runtime parameterization.

func (g *Group) SetLocalInhibitionStrength(v float32) { g.localInhibitionStrength = v }
func (g *Group) SetCommonLearningRate(v float32)       { g.commonLearningRate = v }
func (g *Group) SetWeightFilter(v numeric.Shape)       { g.weightFilter = v }

func (g *Group) LocalInhibitionStrength() float32 { return g.localInhibitionStrength }
func (g *Group) CommonLearningRate() float32      { return g.commonLearningRate }
func (g *Group) WeightFilter() numeric.Shape      { return g.weightFilter }

// Introspection support.

func (g *Group) GetNeuron(idx int) *neuron.Neuron { return g.neurons[idx] }
func (g *Group) GetNeuronCount() int              { return len(g.neurons) }

func (g *Group) GetMaxRepresentationCount() uint16 {
	var result uint16
	for _, n := range g.neurons {
		if c := n.GetRepresentationCount(); c > result {
			result = c
		}
	}
	return result
}

func (g *Group) GetRepresentationCount() int {
	total := 0
	for _, n := range g.neurons {
		total += int(n.GetRepresentationCount())
	}
	return total
}

func (g *Group) GetSynapseCount() int {
	total := 0
	for _, n := range g.neurons {
		total += n.GetSynapseCount()
	}
	return total
}

func (g *Group) GetMaxMismatch() float32 {
	var result float32
	for _, n := range g.neurons {
		for di := 0; di < n.GetDendriteCount(); di++ {
			for _, m := range n.GetDendrite(di).GetSynapses().Mismatch {
				if m > result {
					result = m
				}
			}
		}
	}
	return result
}

func (g *Group) GetAvgMismatch() float32 {
	var sum, cnt float32
	for _, n := range g.neurons {
		for di := 0; di < n.GetDendriteCount(); di++ {
			ms := n.GetDendrite(di).GetSynapses().Mismatch
			for _, m := range ms {
				sum += m
			}
			cnt += float32(len(ms))
		}
	}
	if cnt == 0 {
		return 0
	}
	return sum / cnt
}

func (g *Group) GetMaxAccTheta() float32 {
	var result float32
	for _, n := range g.neurons {
		for di := 0; di < n.GetDendriteCount(); di++ {
			for _, a := range n.GetDendrite(di).GetSynapses().AdaptHistory {
				if a > result {
					result = a
				}
			}
		}
	}
	return result
}

func (g *Group) GetAvgAccTheta() float32 {
	var sum, cnt float32
	for _, n := range g.neurons {
		for di := 0; di < n.GetDendriteCount(); di++ {
			as := n.GetDendrite(di).GetSynapses().AdaptHistory
			for _, a := range as {
				sum += a
			}
			cnt += float32(len(as))
		}
	}
	if cnt == 0 {
		return 0
	}
	return sum / cnt
}

// synapseBytes is the per-synapse SoA footprint: three float32 columns
// (permanence, mismatch, adapt_history) plus a uint16 segment index and a
// uint8 input increment.
const synapseBytes = 3*unsafe.Sizeof(float32(0)) + unsafe.Sizeof(uint16(0)) + unsafe.Sizeof(uint8(0))

// SizeReport returns a string reporting the per-neuron and total synapse
// memory footprint of the group.
func (g *Group) SizeReport() string {
	var b strings.Builder
	totalSyn := 0
	totalMem := uint64(0)
	for _, n := range g.neurons {
		ns := n.GetSynapseCount()
		mem := uint64(ns) * uint64(synapseBytes)
		totalSyn += ns
		totalMem += mem
		fmt.Fprintf(&b, "%8d:\t Dendrites: %d\t Syns: %d\t SynMem: %v\n",
			n.ID, n.GetDendriteCount(), ns, datasize.ByteSize(mem).HumanReadable())
	}
	fmt.Fprintf(&b, "\n%8d:\t Neurons: %d\t Syns: %d\t SynMem: %v\n",
		g.GetOutpID(), g.GetNeuronCount(), totalSyn, datasize.ByteSize(totalMem).HumanReadable())
	return b.String()
}
