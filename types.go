package videoplay

import (
	"time"

	"github.com/tinyzimmer/go-gst/gst"
)

// StreamHandler receives playback notifications from a Player. Every
// method is invoked on the host thread that called into the player, never
// from an engine-internal thread.
//
// OnInitialized fires once per successful size negotiation, including each
// mid-stream dimension change. OnFrameDecoded signals that at least one new
// frame has been cached since the last host poll.
type StreamHandler interface {
	OnInitialized()
	OnPlaying(playing bool)
	OnFrameDecoded()
	OnCompleted()
}

// NopStreamHandler discards all notifications. Used when a Config carries
// no handler.
type NopStreamHandler struct{}

// OnInitialized implements StreamHandler.
func (NopStreamHandler) OnInitialized() {}

// OnPlaying implements StreamHandler.
func (NopStreamHandler) OnPlaying(bool) {}

// OnFrameDecoded implements StreamHandler.
func (NopStreamHandler) OnFrameDecoded() {}

// OnCompleted implements StreamHandler.
func (NopStreamHandler) OnCompleted() {}

// HardwareImageExporter is an optional collaborator that exports the
// current frame as a zero-copy hardware image handle when the underlying
// memory is shareable. The export mechanics (EGL, DMABuf) live outside
// this package; the exporter receives the frame's engine buffer so it can
// inspect the backing memory directly.
type HardwareImageExporter interface {
	// Export returns a handle for the given display/context pair, or
	// (0, false) when the buffer's memory is not hardware-backed.
	Export(display, context uintptr, buffer *gst.Buffer, width, height int) (uintptr, bool)
}

// Config configures a Player. Locator is required; everything else has a
// usable zero value.
type Config struct {
	// Locator is a URI or filesystem path identifying the source.
	Locator string
	// Handler receives playback notifications. Nil means discard.
	Handler StreamHandler
	// AutoRepeat restarts playback from zero on end-of-stream instead of
	// delivering OnCompleted.
	AutoRepeat bool
	// Exporter optionally enables hardware image export.
	Exporter HardwareImageExporter
}

// PlaybackStats is a point-in-time snapshot of a player's counters and
// frame-rate measurements. Safe to request from any goroutine.
type PlaybackStats struct {
	// SessionID identifies this player instance in logs.
	SessionID string
	// SourceKind is "file" or "live-network".
	SourceKind string
	// FramesDecoded is the number of frames published by the decode
	// callback.
	FramesDecoded uint64
	// FramesSkipped is the number of frames dropped because their buffer
	// or dimensions were unusable.
	FramesSkipped uint64
	// Width and Height are the currently negotiated dimensions, zero
	// while unknown.
	Width  int
	Height int
	// Uptime is the time since the player was constructed.
	Uptime time.Duration
	// FPSMean, FPSStdDev, FPSMin, FPSMax describe the decode rate over a
	// sliding window of recent frames.
	FPSMean   float64
	FPSStdDev float64
	FPSMin    float64
	FPSMax    float64
	// Bus error counters by category. Errors are never fatal; these only
	// surface what the engine reported.
	ErrorsNetwork uint64
	ErrorsCodec   uint64
	ErrorsAuth    uint64
	ErrorsUnknown uint64
}
