// Copyright (c) 2019, The Emergent Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package sim

import (
	"log"
	"reflect"
	"sort"
	"sync"

	"github.com/jkuhl/ngm2/internal/xlog"
	"github.com/jkuhl/ngm2/ioport"
)

// entityVec is the type-erased view over a typedEntityVec[T], letting Env
// store heterogeneous entity kinds in one map while each concrete kind
// keeps its own contiguous, cache-friendly storage.
type entityVec interface {
	size() int
	asBase(i int) IOEntity
}

type typedEntityVec[T IOEntity] struct {
	items []T
}

func (v *typedEntityVec[T]) size() int           { return len(v.items) }
func (v *typedEntityVec[T]) asBase(i int) IOEntity { return v.items[i] }

// Env is the lock-step simulation environment (component F): a typed
// entity registry, the output-ID-keyed IO buffers, and the four ordered
// hook phases (pre/post-process, pre/post-swap).
type Env struct {
	entities  map[reflect.Type]entityVec
	typeOrder []reflect.Type

	ioBuffers map[uint64]*ioport.Buffer

	nextHookID       uint64
	preProcessHooks  map[uint64]func()
	postProcessHooks map[uint64]func()
	preSwapHooks     map[uint64]func()
	postSwapHooks    map[uint64]func()

	log *xlog.Logger

	// NumThreads bounds how many goroutines Process distributes entity
	// stepping across. 0 or 1 means sequential, in iterate_entities order
	// -- the default, since intra-step entity ordering is otherwise only
	// a performance concern (each entity only touches its own write
	// buffer and others' read buffers, per §5's resource model).
	NumThreads int

	thrChans []chan func(IOEntity)
	thrLay   [][]IOEntity
	waitGp   sync.WaitGroup
}

// NewEnv constructs an empty environment. A nil logger installs a no-op
// logger.
func NewEnv(log *xlog.Logger) *Env {
	if log == nil {
		log = xlog.NoopLogger()
	}
	return &Env{
		entities:         make(map[reflect.Type]entityVec),
		ioBuffers:        make(map[uint64]*ioport.Buffer),
		preProcessHooks:  make(map[uint64]func()),
		postProcessHooks: make(map[uint64]func()),
		preSwapHooks:     make(map[uint64]func()),
		postSwapHooks:    make(map[uint64]func()),
		log:              log,
	}
}

// Add appends a new entity of concrete type T into its type-keyed,
// contiguous storage bucket.
func Add[T IOEntity](e *Env, item T) {
	t := reflect.TypeOf(item)
	v, ok := e.entities[t]
	if !ok {
		tv := &typedEntityVec[T]{}
		e.entities[t] = tv
		e.typeOrder = append(e.typeOrder, t)
		v = tv
	}
	tv := v.(*typedEntityVec[T])
	tv.items = append(tv.items, item)
}

// Entities returns the homogeneous storage bucket for concrete type T, if
// any entity of that type has been added.
func Entities[T IOEntity](e *Env) ([]T, bool) {
	var zero T
	t := reflect.TypeOf(zero)
	v, ok := e.entities[t]
	if !ok {
		return nil, false
	}
	return v.(*typedEntityVec[T]).items, true
}

// allEntities collects every entity in stable type-bucket-then-insertion
// order. Called by StartThreads and on every ForEachEntity call; entity
// registration is expected to be complete before stepping begins.
func (e *Env) allEntities() []IOEntity {
	var all []IOEntity
	for _, t := range e.typeOrder {
		v := e.entities[t]
		n := v.size()
		for i := 0; i < n; i++ {
			all = append(all, v.asBase(i))
		}
	}
	return all
}

// ForEachEntity calls fn once per entity, in stable type-bucket-then-
// insertion order.
func (e *Env) ForEachEntity(fn func(IOEntity)) {
	for _, ent := range e.allEntities() {
		fn(ent)
	}
}

// InitIOBuffers wires every entity's declared output into a fresh buffer
// and every entity's declared inputs to the buffers they reference.
// Duplicate output IDs and missing input IDs are the two fatal conditions
// of this model (§7): both abort the process after diagnostic output.
func (e *Env) InitIOBuffers() {
	e.ForEachEntity(func(ent IOEntity) {
		id := ent.GetOutpID()
		if _, exists := e.ioBuffers[id]; exists {
			e.log.Error("duplicate io_entity ID", "id", id)
			fatalf("sim: duplicate io_entity output ID %d", id)
		}
		buf := ioport.NewBuffer(ent.GetOutpSize())
		e.ioBuffers[id] = buf
		ent.SetOutpFunc(buf.OutpPort())
	})

	e.ForEachEntity(func(ent IOEntity) {
		for _, id := range ent.GetInpIDs() {
			buf, ok := e.ioBuffers[id]
			if !ok {
				e.log.Error("missing io_entity ID", "id", id)
				fatalf("sim: missing io_entity input ID %d", id)
			}
			ent.SetInpFunc(id, buf.InpPort())
		}
	})
}

// GetIOBuffer returns the buffer registered under id, if any.
func (e *Env) GetIOBuffer(id uint64) (*ioport.Buffer, bool) {
	b, ok := e.ioBuffers[id]
	return b, ok
}

// Process runs one lock-step processing phase: pre-process hooks, then
// every entity's Process() (sequential by default; distributed across
// NumThreads goroutines if StartThreads was called), then post-process
// hooks.
func (e *Env) Process() {
	e.runHooksInIDOrder(e.preProcessHooks)
	e.thrEntityFun(func(ent IOEntity) { ent.Process() })
	e.runHooksInIDOrder(e.postProcessHooks)
}

// SwapIO runs pre-swap hooks, swaps every buffer (recomputing its read-side
// stats once), then runs post-swap hooks.
func (e *Env) SwapIO() {
	e.runHooksInIDOrder(e.preSwapHooks)
	for _, buf := range e.ioBuffers {
		buf.Swap()
	}
	e.runHooksInIDOrder(e.postSwapHooks)
}

func (e *Env) runHooksInIDOrder(hooks map[uint64]func()) {
	if len(hooks) == 0 {
		return
	}
	ids := make([]uint64, 0, len(hooks))
	for id := range hooks {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	for _, id := range ids {
		hooks[id]()
	}
}

func (e *Env) SetPreProcessHook(fn func()) uint64  { return e.addHook(e.preProcessHooks, fn) }
func (e *Env) SetPostProcessHook(fn func()) uint64 { return e.addHook(e.postProcessHooks, fn) }
func (e *Env) SetPreSwapHook(fn func()) uint64      { return e.addHook(e.preSwapHooks, fn) }
func (e *Env) SetPostSwapHook(fn func()) uint64     { return e.addHook(e.postSwapHooks, fn) }

func (e *Env) RemovePreProcessHook(id uint64)  { delete(e.preProcessHooks, id) }
func (e *Env) RemovePostProcessHook(id uint64) { delete(e.postProcessHooks, id) }
func (e *Env) RemovePreSwapHook(id uint64)      { delete(e.preSwapHooks, id) }
func (e *Env) RemovePostSwapHook(id uint64)     { delete(e.postSwapHooks, id) }

func (e *Env) addHook(hooks map[uint64]func(), fn func()) uint64 {
	id := e.nextHookID
	hooks[id] = fn
	e.nextHookID++
	return id
}

// StartThreads snapshots the current entity set into NumThreads
// round-robin buckets and starts one worker goroutine per bucket, each
// reading step closures off its own channel -- the same channel-dispatch
// shape as the teacher's ThrLayFun/ThrWorker pair, repurposed here to
// distribute entity stepping instead of per-layer network functions.
// Call after all entities have been added; a no-op if NumThreads <= 1.
func (e *Env) StartThreads() {
	if e.NumThreads <= 1 {
		return
	}
	all := e.allEntities()
	e.thrLay = make([][]IOEntity, e.NumThreads)
	for i, ent := range all {
		b := i % e.NumThreads
		e.thrLay[b] = append(e.thrLay[b], ent)
	}
	e.thrChans = make([]chan func(IOEntity), e.NumThreads)
	for t := 0; t < e.NumThreads; t++ {
		e.thrChans[t] = make(chan func(IOEntity))
		go e.thrWorker(t)
	}
}

// StopThreads closes every worker's channel, terminating its goroutine.
func (e *Env) StopThreads() {
	for _, ch := range e.thrChans {
		close(ch)
	}
	e.thrChans = nil
	e.thrLay = nil
}

func (e *Env) thrWorker(tt int) {
	for fn := range e.thrChans[tt] {
		for _, ent := range e.thrLay[tt] {
			fn(ent)
		}
		e.waitGp.Done()
	}
}

// thrEntityFun runs fn over every entity, either sequentially (in
// iterate_entities order) or dispatched to the worker pool started by
// StartThreads.
func (e *Env) thrEntityFun(fn func(ent IOEntity)) {
	if e.NumThreads <= 1 || e.thrChans == nil {
		e.ForEachEntity(fn)
		return
	}
	for t := 0; t < e.NumThreads; t++ {
		e.waitGp.Add(1)
		e.thrChans[t] <- fn
	}
	e.waitGp.Wait()
}

// fatalf is a seam over log.Fatalf so the two mandated fatal conditions
// remain testable without terminating the test binary; overridden in
// env_test.go.
var fatalf = func(format string, args ...any) {
	log.Fatalf(format, args...)
}
