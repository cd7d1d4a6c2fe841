package pipeline

import (
	"log/slog"
	"sync"
	"sync/atomic"
)

// Exchange is the thread-safe single-slot frame buffer shared between the
// engine's decode callback (producer) and the host thread (consumer).
//
// The write lock is held only for the slot swap, never for a copy. The
// consumer copies under a read lock, so a Read never observes bytes mixed
// from two different Publish calls: whatever slot reference it snapshots is
// a single completed buffer.
type Exchange struct {
	mu     sync.RWMutex
	frame  []byte
	width  int
	height int

	// outMu serializes access to the host-facing output buffer, which is
	// valid only until the next Read call.
	outMu sync.Mutex
	out   []byte

	seq     atomic.Uint64
	resized atomic.Bool
	skipped atomic.Uint64
}

// NewExchange creates an empty exchange. Buffers are allocated lazily on
// first successful negotiation.
func NewExchange() *Exchange {
	return &Exchange{}
}

// Publish stores the latest decoded frame. Called from the engine's decode
// completion context; must never invoke host code.
//
// The slice becomes owned by the exchange; replacing it releases the
// previous one. Frames with unusable dimensions or a buffer smaller than
// width*height*4 are skipped so the previous frame stays visible.
func (x *Exchange) Publish(buf []byte, width, height int) {
	if width <= 0 || height <= 0 || width > MaxDimension || height > MaxDimension {
		x.skipped.Add(1)
		return
	}
	need := width * height * 4
	if len(buf) < need {
		x.skipped.Add(1)
		slog.Warn("pipeline: short frame buffer, keeping previous frame",
			"have", len(buf),
			"need", need,
		)
		return
	}

	x.mu.Lock()
	if width != x.width || height != x.height {
		x.width = width
		x.height = height
		// Output buffer is reallocated lazily on the next Read.
		x.resized.Store(true)
	}
	x.frame = buf
	x.mu.Unlock()

	x.seq.Add(1)
}

// Read copies the current frame into the host-facing output buffer and
// returns it. The returned slice is valid until the next Read call.
// Returns nil if nothing has ever been published.
func (x *Exchange) Read() []byte {
	x.outMu.Lock()
	defer x.outMu.Unlock()

	x.mu.RLock()
	defer x.mu.RUnlock()
	if x.frame == nil {
		return nil
	}
	need := x.width * x.height * 4
	if cap(x.out) < need {
		x.out = make([]byte, need)
	}
	x.out = x.out[:need]
	copy(x.out, x.frame[:need])
	return x.out
}

// Dimensions returns the most recently published frame size, (0, 0) while
// unknown.
func (x *Exchange) Dimensions() (int, int) {
	x.mu.RLock()
	defer x.mu.RUnlock()
	return x.width, x.height
}

// Seq returns the number of frames published so far.
func (x *Exchange) Seq() uint64 {
	return x.seq.Load()
}

// Skipped returns the number of frames dropped because their buffer or
// dimensions were unusable.
func (x *Exchange) Skipped() uint64 {
	return x.skipped.Load()
}

// TakeResized reports, exactly once per dimension change (including the
// very first negotiation), that the frame size changed. The host uses it
// to drive the deferred initialized notification.
func (x *Exchange) TakeResized() bool {
	return x.resized.CompareAndSwap(true, false)
}

// Release drops all held buffers. Call only after frame publishing has
// been disabled and the graph forced to Null.
func (x *Exchange) Release() {
	x.mu.Lock()
	x.frame = nil
	x.width = 0
	x.height = 0
	x.mu.Unlock()

	x.outMu.Lock()
	x.out = nil
	x.outMu.Unlock()
}
