// Copyright (c) 2019, The Emergent Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package ioport implements the double-buffered vector port used for all
// inter-entity wiring in the simulation environment, together with the
// running statistics (sum, avg, min, max, normalized Shannon entropy)
// recomputed once on every buffer swap.
package ioport

import (
	"math"

	"github.com/jkuhl/ngm2/numeric"
)

// Stats holds the summary statistics of a buffer's current read side.
type Stats struct {
	Sum float32
	Avg float32
	Min float32
	Max float32
	Nse float32
}

// InpFunc is the capability a dendrite (or any consumer) holds to read a
// buffer's current read side and its stats. It does not transfer ownership
// of the underlying storage.
type InpFunc func() ([]float32, Stats)

// OutpFunc is the capability an entity holds to write into a buffer's
// current write side.
type OutpFunc func() []float32

// Buffer is a pair of equal-length float32 vectors (write, read) plus the
// Stats derived from the read side. The two halves keep a fixed size for
// the lifetime of the Buffer; Stats is only ever mutated by Swap.
type Buffer struct {
	halves   [2][]float32
	stats    Stats
	writeIdx uint8
	readIdx  uint8
}

// NewBuffer allocates a zero-initialized buffer of the given size.
func NewBuffer(size int) *Buffer {
	return &Buffer{
		halves:   [2][]float32{make([]float32, size), make([]float32, size)},
		writeIdx: 0,
		readIdx:  1,
	}
}

// Size returns the fixed length of each half.
func (b *Buffer) Size() int { return len(b.halves[0]) }

// WriteSlice returns a mutable slice over the current write half.
func (b *Buffer) WriteSlice() []float32 { return b.halves[b.writeIdx] }

// ReadSlice returns the current read half. Callers must not mutate it.
func (b *Buffer) ReadSlice() []float32 { return b.halves[b.readIdx] }

// Swap exchanges the read/write roles and recomputes Stats from the new
// read side in a single pass.
func (b *Buffer) Swap() {
	b.readIdx = b.writeIdx
	b.writeIdx = (b.writeIdx + 1) & 1
	b.updateStats()
}

func (b *Buffer) updateStats() {
	read := b.ReadSlice()
	var sum, minVal, maxVal float32
	minVal = math.MaxFloat32
	for _, x := range read {
		sum += x
		if x < minVal {
			minVal = x
		}
		if x > maxVal {
			maxVal = x
		}
	}
	b.stats = Stats{
		Sum: sum,
		Avg: sum / float32(len(read)),
		Min: minVal,
		Max: maxVal,
		Nse: numeric.NormalizedShannonEntropy(read),
	}
}

// OutpPort returns the capability that produces the current write slice.
func (b *Buffer) OutpPort() OutpFunc {
	return func() []float32 { return b.WriteSlice() }
}

// InpPort returns the capability that produces the current read slice and
// its stats.
func (b *Buffer) InpPort() InpFunc {
	return func() ([]float32, Stats) { return b.ReadSlice(), b.stats }
}
