package sim

import (
	"testing"

	"github.com/jkuhl/ngm2/ioport"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// sourceEntity is a pure source: fixed output, no inputs.
type sourceEntity struct {
	EntityBase
	id  uint64
	val float32
	out ioport.OutpFunc
}

func (s *sourceEntity) SetOutpFunc(fn ioport.OutpFunc) { s.out = fn }
func (s *sourceEntity) GetOutpID() uint64              { return s.id }
func (s *sourceEntity) GetOutpSize() int               { return 1 }
func (s *sourceEntity) Process()                       { s.out()[0] = s.val }

// observerEntity reads one upstream ID and records what it saw each step.
type observerEntity struct {
	id      uint64
	inpID   uint64
	inpFn   ioport.InpFunc
	out     ioport.OutpFunc
	Seen    []float32
}

func (o *observerEntity) SetOutpFunc(fn ioport.OutpFunc)          { o.out = fn }
func (o *observerEntity) SetInpFunc(id uint64, fn ioport.InpFunc) { o.inpFn = fn }
func (o *observerEntity) GetOutpID() uint64                       { return o.id }
func (o *observerEntity) GetOutpSize() int                        { return 1 }
func (o *observerEntity) GetInpIDs() []uint64                     { return []uint64{o.inpID} }
func (o *observerEntity) StatusStr() string                       { return "" }
func (o *observerEntity) Process() {
	v, _ := o.inpFn()
	o.Seen = append(o.Seen, v[0])
	o.out()[0] = v[0]
}

// TestE5DoubleBufferingDelaysReadsByOneStep exercises scenario E5:
// A produces, B consumes A's output. After InitIOBuffers, calling
// Process/SwapIO in lock-step means B's second-step read observes A's
// first-step write, never a same-step write.
func TestE5DoubleBufferingDelaysReadsByOneStep(t *testing.T) {
	env := NewEnv(nil)
	a := &sourceEntity{id: 0, val: 1}
	b := &observerEntity{id: 1, inpID: 0}

	Add(env, a)
	Add(env, b)
	env.InitIOBuffers()

	env.Process()
	env.SwapIO()
	a.val = 2
	env.Process()
	env.SwapIO()

	require.Len(t, b.Seen, 2)
	assert.Equal(t, float32(0), b.Seen[0], "B's first read must precede A's first write becoming visible")
	assert.Equal(t, float32(1), b.Seen[1], "B's second read must observe A's first-step output, not the concurrent second-step write")
}

func TestAddAndEntitiesRoundTrip(t *testing.T) {
	env := NewEnv(nil)
	a := &sourceEntity{id: 0, val: 1}
	Add(env, a)

	got, ok := Entities[*sourceEntity](env)
	require.True(t, ok)
	assert.Len(t, got, 1)
	assert.Same(t, a, got[0])

	_, ok = Entities[*observerEntity](env)
	assert.False(t, ok)
}

func TestInitIOBuffersFatalsOnDuplicateOutputID(t *testing.T) {
	orig := fatalf
	defer func() { fatalf = orig }()
	var gotPanic bool
	fatalf = func(format string, args ...any) { panic("fatal") }
	defer func() {
		if r := recover(); r != nil {
			gotPanic = true
		}
		assert.True(t, gotPanic)
	}()

	env := NewEnv(nil)
	Add(env, &sourceEntity{id: 5, val: 1})
	Add(env, &sourceEntity{id: 5, val: 2})
	env.InitIOBuffers()
}

func TestInitIOBuffersFatalsOnMissingInputID(t *testing.T) {
	orig := fatalf
	defer func() { fatalf = orig }()
	var gotPanic bool
	fatalf = func(format string, args ...any) { panic("fatal") }
	defer func() {
		if r := recover(); r != nil {
			gotPanic = true
		}
		assert.True(t, gotPanic)
	}()

	env := NewEnv(nil)
	Add(env, &observerEntity{id: 1, inpID: 999})
	env.InitIOBuffers()
}

func TestProcessHooksRunInRegistrationOrder(t *testing.T) {
	env := NewEnv(nil)
	var order []string
	env.SetPreProcessHook(func() { order = append(order, "pre1") })
	env.SetPreProcessHook(func() { order = append(order, "pre2") })
	env.SetPostProcessHook(func() { order = append(order, "post1") })

	env.Process()
	assert.Equal(t, []string{"pre1", "pre2", "post1"}, order)
}

func TestRemoveHookStopsFiring(t *testing.T) {
	env := NewEnv(nil)
	fired := 0
	id := env.SetPreProcessHook(func() { fired++ })
	env.Process()
	env.RemovePreProcessHook(id)
	env.Process()
	assert.Equal(t, 1, fired)
}

func TestThreadedProcessMatchesSequential(t *testing.T) {
	seqEnv := NewEnv(nil)
	a := &sourceEntity{id: 0, val: 3}
	b := &observerEntity{id: 1, inpID: 0}
	Add(seqEnv, a)
	Add(seqEnv, b)
	seqEnv.InitIOBuffers()
	seqEnv.Process()
	seqEnv.SwapIO()
	seqEnv.Process()

	thrEnv := NewEnv(nil)
	a2 := &sourceEntity{id: 0, val: 3}
	b2 := &observerEntity{id: 1, inpID: 0}
	Add(thrEnv, a2)
	Add(thrEnv, b2)
	thrEnv.InitIOBuffers()
	thrEnv.NumThreads = 2
	thrEnv.StartThreads()
	defer thrEnv.StopThreads()
	thrEnv.Process()
	thrEnv.SwapIO()
	thrEnv.Process()

	assert.Equal(t, b.Seen, b2.Seen)
}
