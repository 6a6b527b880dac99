// Copyright (c) 2019, The Emergent Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package numeric provides the small numeric building blocks shared across
// the dendrite, neuron and population packages: a shaped sigmoid, normalized
// Shannon entropy, min-max normalization, softmax, and signal-shape-aware
// local inhibition.
package numeric

import "github.com/chewxy/math32"

// Epsilon32 is machine epsilon for float32 (the smallest value such that
// 1+Epsilon32 != 1), used throughout this package and its callers as the
// rounding-tolerance constant the original implementation gets from
// std::numeric_limits<float>::epsilon() -- not to be confused with the
// smallest representable (subnormal) float32, which provides no real
// headroom against accumulated rounding error.
const Epsilon32 float32 = 1.1920929e-07

// Shape parameterizes the Sigmoid function by steepness and the location of
// its inflection point (the transition point).
type Shape struct {
	Steepness       float32 `def:"0.5" desc:"how hard the transition is -- 1 approaches a step function"`
	TransitionPoint float32 `def:"0.5" desc:"x value at which the sigmoid reaches its half-max"`
}

func (s Shape) Defaults() Shape {
	return Shape{Steepness: 0.5, TransitionPoint: 0.5}
}

// Sigmoid computes a sigmoid function shaped by steepness and transition
// point rather than by a gain/bias pair: Steepness -> 1 yields a hard step;
// TransitionPoint shifts the inflection.
func Sigmoid(x float32, shape Shape) float32 {
	stepSize := 1 - math32.Pow(shape.Steepness, 0.1)
	startingPoint := -shape.TransitionPoint / stepSize
	return 1 / (1 + math32.Exp(-(x/stepSize + startingPoint)))
}

// NormalizedShannonEntropy returns 0 for an empty or non-finite-sum vector;
// otherwise H/log2(len(v)), H = -sum p*log2(p), p = v[i]/sum(v), clamped to
// [0,1].
func NormalizedShannonEntropy(v []float32) float32 {
	if len(v) == 0 {
		return 0
	}
	var sum float32
	for _, x := range v {
		sum += x
	}
	if !isNormal(sum) {
		return 0
	}
	var entropy float32
	for _, x := range v {
		p := x / sum
		if p >= Epsilon32 {
			entropy -= p * math32.Log2(p)
		}
	}
	denom := math32.Log2(float32(len(v)))
	if denom == 0 {
		return 0
	}
	return clamp(entropy/denom, 0, 1)
}

// Normalize rescales v in place to [0,1] by its own min/max. A zero-range
// vector (max-min within float32 epsilon) is zeroed.
func Normalize(v []float32) {
	if len(v) == 0 {
		return
	}
	maxVal, minVal := v[0], v[0]
	for _, x := range v {
		if x > maxVal {
			maxVal = x
		}
		if x < minVal {
			minVal = x
		}
	}
	if maxVal-minVal <= Epsilon32 {
		for i := range v {
			v[i] = 0
		}
		return
	}
	for i, x := range v {
		v[i] = (x - minVal) / (maxVal - minVal)
	}
}

// Softmax rescales v in place to a probability distribution with inverse
// temperature beta. A non-finite sum (after exponentiation) zeroes the
// vector rather than producing NaNs.
func Softmax(v []float32, beta float32) {
	if len(v) == 0 {
		return
	}
	maxVal := v[0]
	for _, x := range v {
		if x > maxVal {
			maxVal = x
		}
	}
	var sum float32
	for i, x := range v {
		e := math32.Exp((x - maxVal) * beta)
		v[i] = e
		sum += e
	}
	if isNormal(sum) {
		for i := range v {
			v[i] /= sum
		}
	} else {
		for i := range v {
			v[i] = 0
		}
	}
}

// LocalInhibition implements the signal-shape-aware local inhibition rule:
// strong peaks survive unchanged; weak signals are suppressed more strongly
// the higher strength is, with the suppression exponent itself relaxing
// toward 1 (no-op) as the signal's normalized Shannon entropy approaches 1,
// i.e. as the signal looks like noise rather than information.
func LocalInhibition(v []float32, strength float32) {
	if len(v) == 0 {
		return
	}
	var maxVal float32
	for _, x := range v {
		if x > maxVal {
			maxVal = x
		}
	}
	if !isNormal(maxVal) {
		return
	}
	a := 1 - Sigmoid((NormalizedShannonEntropy(v)-0.8)/0.2, Shape{Steepness: 0.5, TransitionPoint: 0.5})
	for i, x := range v {
		ratio := x / maxVal
		v[i] = clamp(x*math32.Pow(ratio, 1+(strength-1)*a), 0, 1)
	}
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

// isNormal reports whether x is finite and non-zero -- the NaN/Inf/zero
// part of C++'s std::isnormal used throughout the original implementation
// to guard against NaN/Inf/zero propagation. Subnormal values are accepted.
func isNormal(x float32) bool {
	if math32.IsNaN(x) || math32.IsInf(x, 0) {
		return false
	}
	return x != 0
}
