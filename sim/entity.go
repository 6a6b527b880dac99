// Copyright (c) 2019, The Emergent Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package sim implements the lock-step simulation environment: a typed
// entity registry, double-buffered port wiring, and the process/swap cycle
// that lets entities be wired in arbitrary (including cyclic) graphs
// without read-after-write hazards.
package sim

import "github.com/jkuhl/ngm2/ioport"

// IOEntity is the external entity contract (component G): every entity the
// environment steps must implement it. SetInpFunc, GetInpIDs and StatusStr
// have no-op defaults available via EntityBase for entities that don't need
// them (e.g. a pure source has no inputs).
type IOEntity interface {
	SetOutpFunc(fn ioport.OutpFunc)
	SetInpFunc(id uint64, fn ioport.InpFunc)

	Process()

	GetOutpID() uint64
	GetOutpSize() int
	GetInpIDs() []uint64

	StatusStr() string
}

// EntityBase provides no-op implementations of the optional parts of
// IOEntity (input wiring and status reporting) for entities that are pure
// sources, or that don't want to report status. Embed it and override what
// you need.
type EntityBase struct{}

func (EntityBase) SetInpFunc(uint64, ioport.InpFunc) {}
func (EntityBase) GetInpIDs() []uint64               { return nil }
func (EntityBase) StatusStr() string                 { return "" }
