package pipeline

import (
	"fmt"
	"time"

	"github.com/tinyzimmer/go-gst/gst"
	"github.com/tinyzimmer/go-gst/gst/app"
)

// MaxDimension bounds the width and height a negotiated capability may
// report. Anything larger is treated as garbage and ignored.
const MaxDimension = 8192

// rgbaCaps pins the color-conversion output to 32-bit RGBA so the frame
// buffer math (width*height*4) always holds. This is a hard invariant of
// the design, not a negotiation hint.
const rgbaCaps = "video/x-raw,format=RGBA"

// Topology is a tagged variant over the two graph shapes. Each variant
// holds only the element references meaningful to it.
type Topology interface {
	// Kind reports which source kind this topology serves.
	Kind() SourceKind
	// AppSink returns the fixed-format sink delivering decoded frames.
	AppSink() *app.Sink
}

// FileAutoDecode is the seekable-file topology: a playbin drives demux and
// decode, and hands video to a conversion+sink bin exposed through a single
// ghost pad so the inner pair can be swapped without touching the outer
// graph.
type FileAutoDecode struct {
	Playbin    *gst.Element
	Output     *gst.Bin
	Convert    *gst.Element
	CapsFilter *gst.Element
	Sink       *app.Sink
}

// Kind implements Topology.
func (t *FileAutoDecode) Kind() SourceKind { return SourceFile }

// AppSink implements Topology.
func (t *FileAutoDecode) AppSink() *app.Sink { return t.Sink }

// LiveLowLatency is the live-network topology: an rtspsrc tuned for minimal
// buffering feeds a bounded leaky queue, which feeds the conversion chain.
// The depacketizer/parser/decoder chain is inserted later by the Negotiator
// once the actual elementary stream is known.
type LiveLowLatency struct {
	Source     *gst.Element
	Queue      *gst.Element
	Convert    *gst.Element
	CapsFilter *gst.Element
	Sink       *app.Sink
}

// Kind implements Topology.
func (t *LiveLowLatency) Kind() SourceKind { return SourceLiveNetwork }

// AppSink implements Topology.
func (t *LiveLowLatency) AppSink() *app.Sink { return t.Sink }

// Handle owns the full element graph for one playback session. It is
// exclusively owned by the player instance that built it and is never
// shared across instances.
type Handle struct {
	Pipeline *gst.Pipeline
	Topology Topology
}

// Build constructs the topology matching the descriptor's kind, or fails
// atomically: any partially constructed graph is forced to Null before the
// error is returned.
func Build(desc SourceDescriptor) (*Handle, error) {
	switch desc.Kind {
	case SourceLiveNetwork:
		return buildLiveLowLatency(desc)
	default:
		return buildFileAutoDecode(desc)
	}
}

// SetState submits a state-change request for the whole graph.
func (h *Handle) SetState(state gst.State) error {
	return h.Pipeline.SetState(state)
}

// BlockSetState submits a state change and waits for the engine to report
// completion. The engine guarantees async transitions resolve in finite
// time, success or failure.
func (h *Handle) BlockSetState(state gst.State) error {
	return h.Pipeline.BlockSetState(state)
}

// Seek performs a flushing seek to positionNs at the given rate. keyUnit
// additionally snaps the seek to the nearest key frame.
func (h *Handle) Seek(rate float64, positionNs int64, keyUnit bool) bool {
	flags := gst.SeekFlagFlush
	if keyUnit {
		flags |= gst.SeekFlagKeyUnit
	}
	ev := gst.NewSeekEvent(rate, gst.FormatTime, flags,
		gst.SeekTypeSet, positionNs, gst.SeekTypeNone, 0)
	return h.Pipeline.SendEvent(ev)
}

// Position queries the engine for the current stream time in nanoseconds.
// The query fails transiently on live sources; callers map that to the -1
// sentinel.
func (h *Handle) Position() (int64, bool) {
	q := gst.NewPositionQuery(gst.FormatTime)
	if !h.Pipeline.Query(q) {
		return 0, false
	}
	_, pos := q.ParsePosition()
	return pos, true
}

// Duration queries the engine for the total stream duration in nanoseconds.
// Live sources have none.
func (h *Handle) Duration() (int64, bool) {
	q := gst.NewDurationQuery(gst.FormatTime)
	if !h.Pipeline.Query(q) {
		return 0, false
	}
	_, dur := q.ParseDuration()
	return dur, true
}

// SinkDimensions reads the currently negotiated width and height from the
// sink's input pad. Returns (0, 0) while the size is unknown or when the
// reported size is out of bounds.
func (h *Handle) SinkDimensions() (int, int) {
	sinkPad := h.Topology.AppSink().Element.GetStaticPad("sink")
	if sinkPad == nil {
		return 0, 0
	}
	caps := sinkPad.GetCurrentCaps()
	if caps == nil {
		return 0, 0
	}
	structure := caps.GetStructureAt(0)
	if structure == nil {
		return 0, 0
	}
	width := structureInt(structure, "width")
	height := structureInt(structure, "height")
	if width <= 0 || height <= 0 || width > MaxDimension || height > MaxDimension {
		return 0, 0
	}
	return width, height
}

// Destroy tears the graph down to Null. Safe to call more than once. The
// caller must have disabled frame publishing first; see the teardown
// ordering contract in the package docs.
func (h *Handle) Destroy() {
	if h == nil || h.Pipeline == nil {
		return
	}
	if err := h.Pipeline.SetState(gst.StateNull); err != nil {
		// Nothing actionable at teardown; the engine releases resources
		// when the last reference drops.
		return
	}
}

// structureInt extracts an integer field from a caps structure, returning
// 0 when the field is absent or not an integer.
func structureInt(s *gst.Structure, field string) int {
	v, err := s.GetValue(field)
	if err != nil {
		return 0
	}
	i, ok := v.(int)
	if !ok {
		return 0
	}
	return i
}

// buildFileAutoDecode assembles: playbin → [ghost sink pad: videoconvert →
// RGBA capsfilter → appsink]. The sink is synchronized so delivery is
// host-paced.
func buildFileAutoDecode(desc SourceDescriptor) (*Handle, error) {
	pipeline, err := gst.NewPipeline("playback")
	if err != nil {
		return nil, fmt.Errorf("pipeline: failed to create pipeline: %w", err)
	}

	playbin, err := gst.NewElement("playbin")
	if err != nil {
		return nil, teardown(pipeline, fmt.Errorf("pipeline: failed to create playbin: %w", err))
	}
	playbin.SetProperty("uri", desc.URI)

	convert, capsfilter, sink, err := newConversionChain(true)
	if err != nil {
		return nil, teardown(pipeline, err)
	}

	output := gst.NewBin("videooutput")
	if err := output.AddMany(convert, capsfilter, sink.Element); err != nil {
		return nil, teardown(pipeline, fmt.Errorf("pipeline: failed to assemble output bin: %w", err))
	}
	if err := gst.ElementLinkMany(convert, capsfilter, sink.Element); err != nil {
		return nil, teardown(pipeline, fmt.Errorf("pipeline: failed to link output bin: %w", err))
	}

	// Expose the conversion chain through a single boundary pad so playbin
	// sees one sink element.
	convertSink := convert.GetStaticPad("sink")
	if convertSink == nil {
		return nil, teardown(pipeline, fmt.Errorf("pipeline: videoconvert has no sink pad"))
	}
	ghost := gst.NewGhostPad("sink", convertSink)
	ghost.SetActive(true)
	output.AddPad(ghost.Pad)

	playbin.SetProperty("video-sink", output.Element)

	if err := pipeline.AddMany(playbin); err != nil {
		return nil, teardown(pipeline, fmt.Errorf("pipeline: failed to add playbin: %w", err))
	}

	return &Handle{
		Pipeline: pipeline,
		Topology: &FileAutoDecode{
			Playbin:    playbin,
			Output:     output,
			Convert:    convert,
			CapsFilter: capsfilter,
			Sink:       sink,
		},
	}, nil
}

// buildLiveLowLatency assembles: rtspsrc → [negotiated depay/parse/decoder,
// inserted later] → leaky queue → videoconvert → RGBA capsfilter → appsink.
// The sink is unsynchronized for minimal latency.
func buildLiveLowLatency(desc SourceDescriptor) (*Handle, error) {
	pipeline, err := gst.NewPipeline("playback")
	if err != nil {
		return nil, fmt.Errorf("pipeline: failed to create pipeline: %w", err)
	}

	source, err := gst.NewElement("rtspsrc")
	if err != nil {
		return nil, teardown(pipeline, fmt.Errorf("pipeline: failed to create rtspsrc: %w", err))
	}
	source.SetProperty("location", desc.URI)
	source.SetProperty("latency", 0)
	source.SetProperty("buffer-mode", 0)
	source.SetProperty("do-retransmission", false)
	source.SetProperty("protocols", 4) // TCP only, low jitter
	source.SetProperty("drop-on-latency", true)

	// Bounded jitter buffer: one buffer deep, 5 ms horizon, drop oldest
	// on overflow.
	queue, err := gst.NewElement("queue")
	if err != nil {
		return nil, teardown(pipeline, fmt.Errorf("pipeline: failed to create queue: %w", err))
	}
	queue.SetProperty("max-size-buffers", 1)
	queue.SetProperty("max-size-bytes", 0)
	queue.SetProperty("max-size-time", uint64(5*time.Millisecond))
	queue.SetProperty("leaky", 2) // downstream: drop oldest

	convert, capsfilter, sink, err := newConversionChain(false)
	if err != nil {
		return nil, teardown(pipeline, err)
	}

	if err := pipeline.AddMany(source, queue, convert, capsfilter, sink.Element); err != nil {
		return nil, teardown(pipeline, fmt.Errorf("pipeline: failed to add elements: %w", err))
	}
	if err := gst.ElementLinkMany(queue, convert, capsfilter, sink.Element); err != nil {
		return nil, teardown(pipeline, fmt.Errorf("pipeline: failed to link conversion chain: %w", err))
	}

	return &Handle{
		Pipeline: pipeline,
		Topology: &LiveLowLatency{
			Source:     source,
			Queue:      queue,
			Convert:    convert,
			CapsFilter: capsfilter,
			Sink:       sink,
		},
	}, nil
}

// newConversionChain creates the videoconvert → RGBA capsfilter → appsink
// triple shared by both topologies. synchronized selects host-paced (file)
// versus immediate (live) delivery.
func newConversionChain(synchronized bool) (*gst.Element, *gst.Element, *app.Sink, error) {
	convert, err := gst.NewElement("videoconvert")
	if err != nil {
		return nil, nil, nil, fmt.Errorf("pipeline: failed to create videoconvert: %w", err)
	}

	capsfilter, err := gst.NewElement("capsfilter")
	if err != nil {
		return nil, nil, nil, fmt.Errorf("pipeline: failed to create capsfilter: %w", err)
	}
	capsfilter.SetProperty("caps", gst.NewCapsFromString(rgbaCaps))

	sink, err := app.NewAppSink()
	if err != nil {
		return nil, nil, nil, fmt.Errorf("pipeline: failed to create appsink: %w", err)
	}
	if synchronized {
		sink.SetProperty("sync", true)
		sink.SetProperty("qos", false)
	} else {
		sink.SetProperty("sync", false)
		sink.SetProperty("max-buffers", 1)
		sink.SetProperty("drop", true)
	}

	return convert, capsfilter, sink, nil
}

// teardown rolls a partially constructed graph back to Null and passes the
// original error through.
func teardown(pipeline *gst.Pipeline, err error) error {
	if pipeline != nil {
		pipeline.SetState(gst.StateNull)
	}
	return err
}
