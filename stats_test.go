package videoplay

import (
	"math"
	"testing"
	"time"
)

func TestCalculateFPS_Steady(t *testing.T) {
	// 31 frames at exactly 30fps.
	base := time.Now()
	times := make([]time.Time, 31)
	for i := range times {
		times[i] = base.Add(time.Duration(i) * time.Second / 30)
	}

	mean, stddev, min, max := calculateFPS(times)
	if math.Abs(mean-30) > 0.5 {
		t.Errorf("mean = %v, want ~30", mean)
	}
	if stddev > 0.5 {
		t.Errorf("stddev = %v, want ~0 for a steady stream", stddev)
	}
	if math.Abs(min-30) > 0.5 || math.Abs(max-30) > 0.5 {
		t.Errorf("min/max = %v/%v, want ~30/~30", min, max)
	}
}

func TestCalculateFPS_Irregular(t *testing.T) {
	base := time.Now()
	times := []time.Time{
		base,
		base.Add(100 * time.Millisecond), // 10 fps
		base.Add(150 * time.Millisecond), // 20 fps
		base.Add(350 * time.Millisecond), // 5 fps
	}

	mean, stddev, min, max := calculateFPS(times)
	if mean <= 0 {
		t.Errorf("mean = %v, want > 0", mean)
	}
	if stddev == 0 {
		t.Error("stddev = 0 for an irregular stream")
	}
	if math.Abs(min-5) > 0.1 {
		t.Errorf("min = %v, want ~5", min)
	}
	if math.Abs(max-20) > 0.1 {
		t.Errorf("max = %v, want ~20", max)
	}
	if min > mean || mean > max {
		t.Errorf("invariant min <= mean <= max violated: %v/%v/%v", min, mean, max)
	}
}

func TestCalculateFPS_Degenerate(t *testing.T) {
	now := time.Now()

	for _, tt := range []struct {
		name  string
		times []time.Time
	}{
		{"empty", nil},
		{"single", []time.Time{now}},
		{"duplicate timestamps", []time.Time{now, now, now}},
	} {
		t.Run(tt.name, func(t *testing.T) {
			mean, stddev, min, max := calculateFPS(tt.times)
			if mean != 0 || stddev != 0 || min != 0 || max != 0 {
				t.Errorf("calculateFPS = %v/%v/%v/%v, want all zero", mean, stddev, min, max)
			}
		})
	}
}

func TestFPSWindow_BoundedAndOrdered(t *testing.T) {
	var w fpsWindow
	base := time.Now()

	// Overfill the ring.
	total := fpsWindowSize + 50
	for i := 0; i < total; i++ {
		w.record(base.Add(time.Duration(i) * time.Millisecond))
	}

	snap := w.snapshot()
	if len(snap) != fpsWindowSize {
		t.Fatalf("snapshot length = %d, want %d (bounded)", len(snap), fpsWindowSize)
	}

	// Oldest entries were evicted; order is arrival order.
	wantFirst := base.Add(time.Duration(total-fpsWindowSize) * time.Millisecond)
	if !snap[0].Equal(wantFirst) {
		t.Errorf("snapshot[0] = %v, want %v", snap[0], wantFirst)
	}
	for i := 1; i < len(snap); i++ {
		if snap[i].Before(snap[i-1]) {
			t.Fatalf("snapshot out of order at %d", i)
		}
	}
}

func TestFPSWindow_Measure(t *testing.T) {
	var w fpsWindow
	base := time.Now()
	for i := 0; i < 10; i++ {
		w.record(base.Add(time.Duration(i) * 100 * time.Millisecond))
	}

	mean, _, _, _ := w.measure()
	if math.Abs(mean-10) > 0.2 {
		t.Errorf("measure() mean = %v, want ~10", mean)
	}
}
