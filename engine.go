package videoplay

import (
	"fmt"
	"log/slog"
	"sync"

	"github.com/tinyzimmer/go-gst/gst"
)

// Process-wide engine lifecycle. The engine library is initialized when the
// first player is constructed and the reference count is kept so teardown
// diagnostics can tell whether instances leaked. The library itself is not
// deinitialized at zero: GStreamer does not support re-initialization
// within a process, so final teardown is left to process exit.
var (
	engineMu   sync.Mutex
	engineRefs int
)

// engineAcquire initializes the engine library on first use and verifies
// it is actually functional by instantiating a throwaway element.
func engineAcquire() error {
	engineMu.Lock()
	defer engineMu.Unlock()

	// Safe to call multiple times.
	gst.Init(nil)

	if engineRefs == 0 {
		if err := probeEngine(); err != nil {
			return fmt.Errorf("videoplay: engine not available: %w", err)
		}
	}
	engineRefs++
	return nil
}

// engineRelease drops one reference.
func engineRelease() {
	engineMu.Lock()
	defer engineMu.Unlock()

	if engineRefs == 0 {
		slog.Warn("videoplay: engine release without matching acquire")
		return
	}
	engineRefs--
	if engineRefs == 0 {
		slog.Debug("videoplay: last player closed")
	}
}

// probeEngine verifies the engine runtime is installed and usable.
func probeEngine() error {
	elem, err := gst.NewElement("fakesrc")
	if err != nil {
		return fmt.Errorf("engine not properly installed: %w", err)
	}
	elem.SetState(gst.StateNull)
	return nil
}
