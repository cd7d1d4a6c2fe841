package videoplay

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/tinyzimmer/go-gst/gst"
	"github.com/tinyzimmer/go-gst/gst/app"

	"github.com/e7canasta/video-playback/internal/pipeline"
)

// ErrClosed is returned by operations on a player that has been closed or
// whose construction/preroll failed.
var ErrClosed = errors.New("videoplay: player closed")

// engineTransport is the slice of the element-graph handle the player
// drives: state changes, seeks, queries and teardown. Sessions built by
// New use *pipeline.Handle.
type engineTransport interface {
	SetState(state gst.State) error
	BlockSetState(state gst.State) error
	Seek(rate float64, positionNs int64, keyUnit bool) bool
	Position() (int64, bool)
	Duration() (int64, bool)
	SinkDimensions() (int, int)
	Destroy()
}

// streamNegotiation is the slice of the live-stream negotiator the player
// consults before and during transport changes.
type streamNegotiation interface {
	Err() error
	SetRunState(state gst.State)
}

// Player orchestrates one playback session: it owns the element graph,
// the frame exchange between the engine's decode thread and the host, and
// the deferred delivery of engine events to the host thread.
//
// All public methods are intended for the host thread. Engine-internal
// threads never run handler callbacks directly; their events are staged and
// delivered on the host's own calls (Position, FrameBuffer). Handler
// callbacks always run with no player lock held, so a handler may call back
// into the player.
type Player struct {
	sessionID string
	handler   StreamHandler
	exporter  HardwareImageExporter
	source    pipeline.SourceDescriptor

	mu         sync.Mutex
	engine     engineTransport
	topology   pipeline.Topology
	negotiator streamNegotiation
	closed     bool
	playing    bool
	rate       float64
	volume     float64
	muted      bool
	autoRepeat bool

	exchange  *pipeline.Exchange
	completed pipeline.CompletionFlag
	counters  pipeline.ErrorCounters

	// publishing gates the decode callback. Cleared first during teardown
	// so a producer callback cannot race a host-side buffer release.
	publishing atomic.Bool

	// lastNotified tracks the newest frame sequence already reported to
	// the handler, for coalesced OnFrameDecoded delivery.
	lastNotified atomic.Uint64

	// lastSample retains the newest decoded sample for hardware image
	// export; only populated when an exporter is configured.
	sampleMu   sync.Mutex
	lastSample *gst.Sample

	fps     fpsWindow
	started time.Time

	busCancel context.CancelFunc
	busDone   sync.WaitGroup
}

// New constructs a player for the given source. The locator is classified
// once, the matching topology is built, and the event bridge is started.
// Construction fails atomically: on error no graph or goroutine is left
// behind.
//
// The session starts in the engine's Null state; call Init to preroll.
func New(cfg Config) (*Player, error) {
	if cfg.Locator == "" {
		return nil, fmt.Errorf("videoplay: locator is required")
	}
	handler := cfg.Handler
	if handler == nil {
		handler = NopStreamHandler{}
	}

	if err := engineAcquire(); err != nil {
		return nil, err
	}

	source := pipeline.ClassifySource(cfg.Locator)

	handle, err := pipeline.Build(source)
	if err != nil {
		engineRelease()
		return nil, err
	}

	p := &Player{
		sessionID:  uuid.New().String(),
		handler:    handler,
		exporter:   cfg.Exporter,
		source:     source,
		engine:     handle,
		topology:   handle.Topology,
		rate:       1.0,
		volume:     1.0,
		autoRepeat: cfg.AutoRepeat,
		exchange:   pipeline.NewExchange(),
		started:    time.Now(),
	}

	if live, ok := handle.Topology.(*pipeline.LiveLowLatency); ok {
		p.negotiator = pipeline.NewNegotiator(handle, live)
	}

	p.publishing.Store(true)
	handle.Topology.AppSink().SetCallbacks(&app.SinkCallbacks{
		NewSampleFunc: p.onSample,
	})

	busCtx, cancel := context.WithCancel(context.Background())
	p.busCancel = cancel
	p.busDone.Add(1)
	go func() {
		defer p.busDone.Done()
		pipeline.RunEventBridge(busCtx, handle.Pipeline, &p.completed, &p.counters)
	}()

	slog.Info("videoplay: player created",
		"session", p.sessionID,
		"uri", source.URI,
		"kind", source.Kind.String(),
	)
	return p, nil
}

// Init prerolls the graph to Paused, waiting out the engine's asynchronous
// state change, and probes the negotiated video size. On failure the graph
// is torn down and the player is unusable.
func (p *Player) Init() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return ErrClosed
	}

	if err := p.engine.BlockSetState(gst.StatePaused); err != nil {
		p.teardownLocked()
		return fmt.Errorf("videoplay: preroll failed: %w", err)
	}

	width, height := p.engine.SinkDimensions()
	slog.Info("videoplay: prerolled",
		"session", p.sessionID,
		"width", width,
		"height", height,
	)
	return nil
}

// Play transitions the graph to Playing. Fails if a live session's stream
// negotiation has already failed (unsupported codec, broken link).
func (p *Player) Play() error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return ErrClosed
	}
	if p.negotiator != nil {
		if err := p.negotiator.Err(); err != nil {
			p.mu.Unlock()
			return err
		}
	}

	if err := p.engine.SetState(gst.StatePlaying); err != nil {
		p.mu.Unlock()
		return fmt.Errorf("videoplay: failed to start playback: %w", err)
	}
	if p.negotiator != nil {
		p.negotiator.SetRunState(gst.StatePlaying)
	}
	p.playing = true
	p.mu.Unlock()

	// No lock held: the handler may re-enter the player.
	p.handler.OnPlaying(true)
	return nil
}

// Pause transitions the graph to Paused. The prior state is preserved when
// the engine refuses the change.
func (p *Player) Pause() error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return ErrClosed
	}

	if err := p.engine.SetState(gst.StatePaused); err != nil {
		p.mu.Unlock()
		return fmt.Errorf("videoplay: failed to pause: %w", err)
	}
	if p.negotiator != nil {
		p.negotiator.SetRunState(gst.StatePaused)
	}
	p.playing = false
	p.mu.Unlock()

	p.handler.OnPlaying(false)
	return nil
}

// Stop transitions the graph to Ready. Resources are retained for a fast
// resume; full release is Close, not Stop.
func (p *Player) Stop() error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return ErrClosed
	}

	if err := p.engine.SetState(gst.StateReady); err != nil {
		p.mu.Unlock()
		return fmt.Errorf("videoplay: failed to stop: %w", err)
	}
	if p.negotiator != nil {
		p.negotiator.SetRunState(gst.StateReady)
	}
	p.playing = false
	p.mu.Unlock()

	p.handler.OnPlaying(false)
	return nil
}

// SetVolume stores the volume (clamped to [0, 1]) and applies it to the
// file topology's volume-bearing element. The live topology has no single
// volume node, so the call is a recorded no-op there.
func (p *Player) SetVolume(v float64) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return ErrClosed
	}

	p.volume = clampVolume(v)
	if file, ok := p.topology.(*pipeline.FileAutoDecode); ok {
		file.Playbin.SetProperty("volume", p.volume)
	}
	return nil
}

// SetPlaybackRate changes the playback rate via a flushing seek to the
// current position. Rates <= 0 are rejected with the prior rate unchanged,
// and rate control is undefined for live sources. Rates outside [0.5, 2.0]
// mute audio; rates inside unmute it.
func (p *Player) SetPlaybackRate(rate float64) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return ErrClosed
	}
	if rate <= 0 {
		return fmt.Errorf("videoplay: rate %v is not supported", rate)
	}
	if p.source.Kind == pipeline.SourceLiveNetwork {
		return fmt.Errorf("videoplay: rate control is undefined for live sources")
	}

	position, ok := p.engine.Position()
	if !ok {
		return fmt.Errorf("videoplay: cannot change rate, position unknown")
	}
	if !p.engine.Seek(rate, position, false) {
		return fmt.Errorf("videoplay: failed to set playback rate to %v", rate)
	}

	p.rate = rate
	p.muted = muteForRate(rate)
	if file, ok := p.topology.(*pipeline.FileAutoDecode); ok {
		file.Playbin.SetProperty("mute", p.muted)
	}
	return nil
}

// Seek performs a flushing, key-unit-aligned seek to positionMs at the
// current rate. When the graph is not playing it is briefly run through
// Playing and back to Paused so a fresh frame at the new position actually
// lands in the frame exchange; a paused graph does not otherwise emit one.
func (p *Player) Seek(positionMs int64) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.seekLocked(positionMs)
}

func (p *Player) seekLocked(positionMs int64) error {
	if p.closed {
		return ErrClosed
	}

	if !p.engine.Seek(p.rate, positionMs*int64(time.Millisecond), true) {
		return fmt.Errorf("videoplay: failed to seek to %dms", positionMs)
	}

	if !p.playing {
		if err := p.engine.BlockSetState(gst.StatePlaying); err != nil {
			return fmt.Errorf("videoplay: post-seek refresh failed: %w", err)
		}
		if err := p.engine.BlockSetState(gst.StatePaused); err != nil {
			return fmt.Errorf("videoplay: post-seek refresh failed: %w", err)
		}
	}
	return nil
}

// Duration returns the stream duration in milliseconds, or -1 when the
// engine cannot report one (expected for live sources).
func (p *Player) Duration() int64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return -1
	}
	dur, ok := p.engine.Duration()
	if !ok {
		return -1
	}
	return dur / int64(time.Millisecond)
}

// Position returns the current position in milliseconds, or -1 when the
// query fails (common transiently on live sources).
//
// As a side effect it delivers any pending deferred notifications: size
// changes, new decoded frames, and end-of-stream completion. Completion is
// delivered at most once per end-of-stream; with auto-repeat enabled it
// becomes a seek back to zero instead of OnCompleted.
func (p *Player) Position() int64 {
	p.deliverPending()

	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return -1
	}
	pos, ok := p.engine.Position()
	if !ok {
		return -1
	}
	return pos / int64(time.Millisecond)
}

// FrameBuffer copies the most recent decoded frame into the host-facing
// output buffer and returns it: RGBA, width*height*4 bytes, valid until
// the next FrameBuffer call. Returns nil while no frame has been decoded.
// Pending deferred notifications are delivered first.
func (p *Player) FrameBuffer() []byte {
	p.deliverPending()
	return p.exchange.Read()
}

// HardwareImageHandle exports the current frame as a zero-copy hardware
// image handle via the configured exporter, handing it the frame's engine
// buffer so dmabuf-backed memory can be reached. Returns 0 when no
// exporter is installed, no frame is cached, or the buffer is not
// hardware-backed.
func (p *Player) HardwareImageHandle(display, context uintptr) uintptr {
	if p.exporter == nil {
		return 0
	}

	p.sampleMu.Lock()
	sample := p.lastSample
	p.sampleMu.Unlock()
	if sample == nil {
		return 0
	}
	buffer := sample.GetBuffer()
	if buffer == nil {
		return 0
	}

	width, height := p.exchange.Dimensions()
	if width == 0 || height == 0 {
		return 0
	}
	handle, ok := p.exporter.Export(display, context, buffer, width, height)
	if !ok {
		return 0
	}
	return handle
}

// SetAutoRepeat switches end-of-stream handling between OnCompleted
// delivery and an automatic seek back to zero.
func (p *Player) SetAutoRepeat(repeat bool) {
	p.mu.Lock()
	p.autoRepeat = repeat
	p.mu.Unlock()
}

// Stats returns a snapshot of the session's counters and frame-rate
// measurements.
func (p *Player) Stats() PlaybackStats {
	width, height := p.exchange.Dimensions()
	mean, stddev, min, max := p.fps.measure()

	return PlaybackStats{
		SessionID:     p.sessionID,
		SourceKind:    p.source.Kind.String(),
		FramesDecoded: p.exchange.Seq(),
		FramesSkipped: p.exchange.Skipped(),
		Width:         width,
		Height:        height,
		Uptime:        time.Since(p.started),
		FPSMean:       mean,
		FPSStdDev:     stddev,
		FPSMin:        min,
		FPSMax:        max,
		ErrorsNetwork: p.counters.Network.Load(),
		ErrorsCodec:   p.counters.Codec.Load(),
		ErrorsAuth:    p.counters.Auth.Load(),
		ErrorsUnknown: p.counters.Unknown.Load(),
	}
}

// Close tears the session down: frame publishing is disabled first, then
// the event bridge is stopped, then the graph is forced to Null, and only
// then are buffers released. Idempotent.
func (p *Player) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return nil
	}
	p.teardownLocked()

	slog.Info("videoplay: player closed",
		"session", p.sessionID,
		"frames_decoded", p.exchange.Seq(),
		"uptime", time.Since(p.started),
	)
	return nil
}

// teardownLocked performs the ordered teardown. Caller holds p.mu.
func (p *Player) teardownLocked() {
	p.publishing.Store(false)

	if p.busCancel != nil {
		p.busCancel()
		p.busDone.Wait()
	}

	p.engine.Destroy()

	p.sampleMu.Lock()
	p.lastSample = nil
	p.sampleMu.Unlock()
	p.exchange.Release()

	p.closed = true
	p.playing = false
	engineRelease()
}

// onSample runs in the engine's decode-completion context. It copies the
// sample's bytes out (the engine reuses its buffers), tags them with the
// currently negotiated dimensions, and publishes them to the exchange. No
// handler callback is invoked from here.
func (p *Player) onSample(sink *app.Sink) gst.FlowReturn {
	if !p.publishing.Load() {
		return gst.FlowOK
	}

	sample := sink.PullSample()
	if sample == nil {
		slog.Warn("videoplay: failed to pull sample, skipping frame", "session", p.sessionID)
		return gst.FlowOK
	}
	buffer := sample.GetBuffer()
	if buffer == nil {
		slog.Warn("videoplay: sample has no buffer, skipping frame", "session", p.sessionID)
		return gst.FlowOK
	}

	mapInfo := buffer.Map(gst.MapRead)
	data := mapInfo.Bytes()
	if len(data) == 0 {
		buffer.Unmap()
		slog.Warn("videoplay: empty frame buffer", "session", p.sessionID)
		return gst.FlowOK
	}
	frame := make([]byte, len(data))
	copy(frame, data)
	buffer.Unmap()

	if p.exporter != nil {
		p.sampleMu.Lock()
		p.lastSample = sample
		p.sampleMu.Unlock()
	}

	// Dimensions come from the sink pad's current caps so renegotiated
	// graphs are picked up frame by frame.
	width, height := p.engine.SinkDimensions()
	p.exchange.Publish(frame, width, height)
	p.fps.record(time.Now())

	return gst.FlowOK
}

// deliverPending runs on the host thread and drains staged notifications:
// dimension changes, newly decoded frames and end-of-stream completion.
// This is the only path on which handler callbacks fire for events raised
// by engine threads.
func (p *Player) deliverPending() {
	if p.exchange.TakeResized() {
		p.handler.OnInitialized()
	}

	if seq := p.exchange.Seq(); seq > p.lastNotified.Load() {
		p.lastNotified.Store(seq)
		p.handler.OnFrameDecoded()
	}

	if p.completed.TakeAndReset() {
		p.mu.Lock()
		repeat := p.autoRepeat
		p.mu.Unlock()

		if repeat {
			if err := p.Seek(0); err != nil {
				slog.Error("videoplay: auto-repeat seek failed",
					"session", p.sessionID,
					"error", err,
				)
			}
		} else {
			p.handler.OnCompleted()
		}
	}
}

// clampVolume bounds a volume request to [0, 1].
func clampVolume(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

// muteForRate derives the mute policy from a playback rate: audio is muted
// outside [0.5, 2.0], where resampling quality degrades.
func muteForRate(rate float64) bool {
	return rate < 0.5 || rate > 2.0
}
