package tasklet

import "sync"

// Bomb is the immutable (Type, Value, Traceback) triple used to carry a
// pending exception as a Tempval: instead of raising immediately,
// operations that discover an error box it as a Bomb and hand it to
// whichever tasklet next "explodes" it (pops it as a Tempval), exactly the
// deferred-exception mechanism spec.md §4.6 describes.
type Bomb struct {
	Type      error
	Value     any
	Traceback []Frame
}

// Explode returns the Bomb's Type as the error to raise, or a *SystemError
// if the Bomb or its Type is nil; Value and Traceback are not folded into
// the returned error, and Explode never panics. Callers
// that only need the error should call Explode and return/raise it;
// callers that need to recycle the Bomb must call Release afterward.
func (b *Bomb) Explode() error {
	if b == nil || b.Type == nil {
		return &SystemError{Message: "exploded an empty bomb"}
	}
	return b.Type
}

// bombPool recycles Bomb values, grounded on the free-list pattern the
// teacher's chunked ready-queue uses for its chunk nodes: exceptions are a
// cold path relative to normal tempval traffic, but a deadlock-heavy
// workload can raise one per blocked tasklet, so pooling avoids a GC spike
// under that specific load shape.
var bombPool = sync.Pool{
	New: func() any { return new(Bomb) },
}

// NewBomb allocates (or reuses) a Bomb and populates it.
func NewBomb(errType error, value any, traceback []Frame) *Bomb {
	b := bombPool.Get().(*Bomb)
	b.Type = errType
	b.Value = value
	b.Traceback = traceback
	return b
}

// Release returns a Bomb to the free list. The caller must not retain any
// reference to b afterward; Release clears b's fields first so a reused
// Bomb never leaks a stale Traceback slice.
func (b *Bomb) Release() {
	if b == nil {
		return
	}
	b.Type = nil
	b.Value = nil
	b.Traceback = nil
	bombPool.Put(b)
}

// memoryErrorBomb is a process-wide preallocated Bomb for MemoryError
// conditions (e.g. bombPool and every other allocator being unable to
// service a request) — it must never itself require an allocation to
// raise, matching spec.md §7's note that MemoryError is "a preallocated
// Bomb".
var memoryErrorBomb = &Bomb{Type: &MemoryError{Message: "out of memory"}}

// MemoryErrorBomb returns the shared preallocated MemoryError Bomb. Unlike
// NewBomb's result, it must never be passed to Release.
func MemoryErrorBomb() *Bomb { return memoryErrorBomb }
