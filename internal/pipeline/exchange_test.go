package pipeline

import (
	"bytes"
	"sync"
	"testing"
)

// uniformFrame builds a width*height*4 RGBA buffer filled with a single
// byte value, so torn reads are detectable as mixed values.
func uniformFrame(width, height int, value byte) []byte {
	buf := make([]byte, width*height*4)
	for i := range buf {
		buf[i] = value
	}
	return buf
}

func TestExchange_ReadBeforePublish(t *testing.T) {
	x := NewExchange()
	if got := x.Read(); got != nil {
		t.Fatalf("Read() before any Publish = %d bytes, want nil", len(got))
	}
}

func TestExchange_PublishThenRead(t *testing.T) {
	x := NewExchange()
	frame := uniformFrame(4, 3, 0xAB)
	x.Publish(frame, 4, 3)

	got := x.Read()
	if got == nil {
		t.Fatal("Read() = nil after Publish")
	}
	if len(got) != 4*3*4 {
		t.Fatalf("Read() length = %d, want %d", len(got), 4*3*4)
	}
	if !bytes.Equal(got, frame) {
		t.Error("Read() bytes differ from published frame")
	}
}

func TestExchange_DimensionChangeResizesOutput(t *testing.T) {
	x := NewExchange()

	x.Publish(uniformFrame(1280, 720, 0x11), 1280, 720)
	if got := x.Read(); len(got) != 1280*720*4 {
		t.Fatalf("first Read() length = %d, want %d", len(got), 1280*720*4)
	}

	x.Publish(uniformFrame(1920, 1080, 0x22), 1920, 1080)
	got := x.Read()
	if len(got) != 1920*1080*4 {
		t.Fatalf("Read() after resize length = %d, want %d", len(got), 1920*1080*4)
	}
	for i, b := range got {
		if b != 0x22 {
			t.Fatalf("residual byte %#x at offset %d after resize", b, i)
		}
	}

	// Shrink back down: no stale tail bytes either.
	x.Publish(uniformFrame(640, 480, 0x33), 640, 480)
	got = x.Read()
	if len(got) != 640*480*4 {
		t.Fatalf("Read() after shrink length = %d, want %d", len(got), 640*480*4)
	}
	for i, b := range got {
		if b != 0x33 {
			t.Fatalf("residual byte %#x at offset %d after shrink", b, i)
		}
	}
}

func TestExchange_TakeResizedOncePerChange(t *testing.T) {
	x := NewExchange()

	if x.TakeResized() {
		t.Fatal("TakeResized() true before any Publish")
	}

	x.Publish(uniformFrame(2, 2, 1), 2, 2)
	if !x.TakeResized() {
		t.Fatal("TakeResized() false after first negotiation")
	}
	if x.TakeResized() {
		t.Fatal("TakeResized() delivered twice for one change")
	}

	// Same dimensions: no new signal.
	x.Publish(uniformFrame(2, 2, 2), 2, 2)
	if x.TakeResized() {
		t.Fatal("TakeResized() true without a dimension change")
	}

	// New dimensions: signalled again.
	x.Publish(uniformFrame(3, 2, 3), 3, 2)
	if !x.TakeResized() {
		t.Fatal("TakeResized() false after mid-stream dimension change")
	}
}

func TestExchange_SkipsUnusableFrames(t *testing.T) {
	x := NewExchange()
	good := uniformFrame(2, 2, 0x55)
	x.Publish(good, 2, 2)

	// Short buffer: previous frame must stay visible.
	x.Publish([]byte{1, 2, 3}, 2, 2)
	// Garbage dimensions.
	x.Publish(good, 0, 2)
	x.Publish(good, 2, -1)
	x.Publish(good, MaxDimension+1, 2)

	if got := x.Read(); !bytes.Equal(got, good) {
		t.Error("unusable Publish calls replaced the visible frame")
	}
	if skipped := x.Skipped(); skipped != 4 {
		t.Errorf("Skipped() = %d, want 4", skipped)
	}
	if seq := x.Seq(); seq != 1 {
		t.Errorf("Seq() = %d, want 1", seq)
	}
}

// TestExchange_NoTornReads publishes frames of distinct uniform values
// while a reader races. Any mixed-value read would mean the copy observed
// bytes from two different Publish calls.
func TestExchange_NoTornReads(t *testing.T) {
	x := NewExchange()
	const width, height = 64, 64
	const rounds = 2000

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		for i := 0; i < rounds; i++ {
			x.Publish(uniformFrame(width, height, byte(i%251)), width, height)
		}
	}()

	for i := 0; i < rounds; i++ {
		got := x.Read()
		if got == nil {
			continue
		}
		first := got[0]
		for off, b := range got {
			if b != first {
				t.Fatalf("torn read: byte %#x at offset %d, frame started with %#x", b, off, first)
			}
		}
	}
	wg.Wait()
}

func TestExchange_ReleaseDropsBuffers(t *testing.T) {
	x := NewExchange()
	x.Publish(uniformFrame(2, 2, 9), 2, 2)
	x.Release()

	if got := x.Read(); got != nil {
		t.Errorf("Read() after Release = %d bytes, want nil", len(got))
	}
	if w, h := x.Dimensions(); w != 0 || h != 0 {
		t.Errorf("Dimensions() after Release = %dx%d, want 0x0", w, h)
	}
}
