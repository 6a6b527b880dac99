// Copyright (c) 2019, The Emergent Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Command ngm2sim is a thin host driver for the hierarchical dendritic
// neuron group model: it wires a small feedforward-plus-feedback group
// graph, steps it for a fixed number of cycles, and logs periodic status.
package main

import (
	"flag"
	"fmt"
	"log/slog"
	"math/rand"
	"os"

	"github.com/jkuhl/ngm2/dendrite"
	"github.com/jkuhl/ngm2/internal/xlog"
	"github.com/jkuhl/ngm2/ioport"
	"github.com/jkuhl/ngm2/neuron"
	"github.com/jkuhl/ngm2/population"
	"github.com/jkuhl/ngm2/sim"
)

var (
	neurons     int
	branchLevel int
	inputSize   int
	steps       int
	statusEvery int
	logLevel    string
	seed        int64
)

func main() {
	flag.Usage = func() {
		fmt.Fprintf(flag.CommandLine.Output(), "Usage of %s:\n", os.Args[0])
		flag.PrintDefaults()
	}
	flag.IntVar(&neurons, "neurons", 8, "number of neurons per group")
	flag.IntVar(&branchLevel, "branch-level", 2, "maximum dendrite segment-tree depth")
	flag.IntVar(&inputSize, "input-size", 16, "width of the synthetic driving input")
	flag.IntVar(&steps, "steps", 200, "number of process/swap cycles to run")
	flag.IntVar(&statusEvery, "status-every", 20, "log group status every N steps")
	flag.StringVar(&logLevel, "log-level", "info", "log level: debug, info, warn, error")
	flag.Int64Var(&seed, "seed", 1, "base RNG seed")
	flag.Parse()

	log := xlog.NewTextLogger(parseLevel(logLevel))

	const groupID, fbkID uint64 = 1, 2
	src := newPatternSource(0, inputSize, seed)
	grp := newGroup(groupID, neurons, branchLevel, inputSize, src.GetOutpID(), fbkID, seed)
	fbk := newFeedbackSource(fbkID, groupID)

	env := sim.NewEnv(log)
	sim.Add(env, src)
	sim.Add(env, grp)
	sim.Add(env, fbk)
	env.InitIOBuffers()

	log.Info("starting simulation", "neurons", neurons, "branch_level", branchLevel,
		"input_size", inputSize, "steps", steps)

	for step := 0; step < steps; step++ {
		env.Process()
		env.SwapIO()
		if statusEvery > 0 && step%statusEvery == 0 {
			log.Info("status", "step", step, "group", grp.StatusStr())
		}
	}

	fmt.Println(grp.SizeReport())
}

func parseLevel(s string) slog.Level {
	switch s {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// newGroup builds a population.Group of neurons, each with one proximal
// dendrite driven by inpID and one apical dendrite driven by fbkID -- the
// feedback entity that re-broadcasts the group's own (one-step-delayed)
// output, closing a cyclic wiring loop through the double-buffered ports.
func newGroup(id uint64, n, branchLevel, inputSize int, inpID, fbkID uint64, seed int64) *population.Group {
	neuronParams := make([]neuron.Params, n)
	for i := range neuronParams {
		var prox dendrite.Params
		prox.Defaults()
		prox.Type = dendrite.Proximal
		prox.InputSize = inputSize
		prox.InputIDs = []uint64{inpID}
		prox.MaxBranchLevel = uint8(branchLevel)
		prox.RndSeed = seed + int64(i) + 1

		var apic dendrite.Params
		apic.Defaults()
		apic.Type = dendrite.Apical
		apic.InputSize = 1
		apic.InputIDs = []uint64{fbkID}
		apic.RndSeed = seed + int64(i) + 2000

		var np neuron.Params
		np.Defaults()
		np.DendriteParams = []dendrite.Params{prox, apic}
		np.RndSeed = seed + int64(i) + 1000
		neuronParams[i] = np
	}

	var gp population.Params
	gp.Defaults()
	gp.ID = id
	gp.NeuronParams = neuronParams
	gp.RndSeed = seed

	g, err := population.New(gp)
	if err != nil {
		panic(err)
	}
	return g
}

// patternSource is a pure io_entity source that emits a sparse binary
// pattern of 1-3 randomly placed active positions, redrawn every step --
// enough structure for local inhibition and structural growth to do
// something observable.
type patternSource struct {
	sim.EntityBase
	id   uint64
	size int
	rng  *rand.Rand
	out  ioport.OutpFunc
}

func newPatternSource(id uint64, size int, seed int64) *patternSource {
	return &patternSource{id: id, size: size, rng: rand.New(rand.NewSource(seed))}
}

func (s *patternSource) SetOutpFunc(fn ioport.OutpFunc) { s.out = fn }
func (s *patternSource) GetOutpID() uint64              { return s.id }
func (s *patternSource) GetOutpSize() int               { return s.size }
func (s *patternSource) Process() {
	v := s.out()
	for i := range v {
		v[i] = 0
	}
	active := 1 + s.rng.Intn(3)
	for k := 0; k < active; k++ {
		v[s.rng.Intn(len(v))] = 1
	}
}

// feedbackSource re-broadcasts the maximum of a group's own output as a
// one-element vector on a fresh ID, letting
// a later-wired apical dendrite read it one step delayed, per the lock-step
// double-buffering contract.
type feedbackSource struct {
	id    uint64
	srcID uint64
	inFn  ioport.InpFunc
	out   ioport.OutpFunc
}

func newFeedbackSource(id, srcID uint64) *feedbackSource {
	return &feedbackSource{id: id, srcID: srcID}
}

func (f *feedbackSource) SetOutpFunc(fn ioport.OutpFunc) { f.out = fn }
func (f *feedbackSource) SetInpFunc(id uint64, fn ioport.InpFunc) {
	if id == f.srcID {
		f.inFn = fn
	}
}
func (f *feedbackSource) GetOutpID() uint64   { return f.id }
func (f *feedbackSource) GetOutpSize() int    { return 1 }
func (f *feedbackSource) GetInpIDs() []uint64 { return []uint64{f.srcID} }
func (f *feedbackSource) StatusStr() string   { return "" }
func (f *feedbackSource) Process() {
	_, stats := f.inFn()
	f.out()[0] = stats.Max
}
