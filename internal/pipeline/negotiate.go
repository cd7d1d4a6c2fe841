package pipeline

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/tinyzimmer/go-gst/gst"
)

// ErrUnsupportedCodec is returned when a discovered elementary stream
// carries an encoding no codec family table covers.
var ErrUnsupportedCodec = errors.New("pipeline: unsupported codec")

// rtpMediaType is the transport-encapsulated payload type the negotiator
// recognizes. Connectors with any other media type (control, metadata,
// audio payloads without a table entry) are ignored.
const rtpMediaType = "application/x-rtp"

// codecFamily describes how to extend the graph for one encoding family:
// the matched depacketizer and parser, and the ordered decoder candidate
// list, hardware-accelerated implementations first. The first candidate
// that instantiates wins.
type codecFamily struct {
	Name     string
	Depay    string
	Parse    string
	Decoders []string
}

var codecFamilies = map[string]codecFamily{
	"H264": {
		Name:     "H264",
		Depay:    "rtph264depay",
		Parse:    "h264parse",
		Decoders: []string{"vaapih264dec", "nvh264dec", "v4l2h264dec", "avdec_h264", "openh264dec"},
	},
	"H265": {
		Name:     "H265",
		Depay:    "rtph265depay",
		Parse:    "h265parse",
		Decoders: []string{"vaapih265dec", "nvh265dec", "v4l2h265dec", "avdec_h265"},
	},
}

// familyForEncoding resolves an encoding identifier from caps to a codec
// family. Matching is case-insensitive; HEVC is an alias for H265.
func familyForEncoding(encoding string) (codecFamily, bool) {
	key := strings.ToUpper(strings.TrimSpace(encoding))
	if key == "HEVC" {
		key = "H265"
	}
	family, ok := codecFamilies[key]
	return family, ok
}

// Negotiator extends a running live graph when the capture element
// discovers an elementary stream. It is a state machine keyed off the
// engine's pad-added event and is idempotent against duplicate events for
// the same stream.
//
// Unsupported codecs and link failures are recorded as a session-level
// failure surfaced through Err; they are not retried.
type Negotiator struct {
	handle *Handle
	live   *LiveLowLatency

	mu       sync.Mutex
	linked   bool
	err      error
	runState gst.State
}

// NewNegotiator creates a negotiator for a live topology and connects it
// to the capture element's pad-added signal.
func NewNegotiator(handle *Handle, live *LiveLowLatency) *Negotiator {
	n := &Negotiator{
		handle:   handle,
		live:     live,
		runState: gst.StatePaused,
	}
	live.Source.Connect("pad-added", func(self *gst.Element, pad *gst.Pad) {
		n.onPadAdded(pad)
	})
	return n
}

// SetRunState records the graph's current target state so elements
// inserted after a later discovery event do not stall a playing graph.
func (n *Negotiator) SetRunState(state gst.State) {
	n.mu.Lock()
	n.runState = state
	n.mu.Unlock()
}

// Err returns the recorded negotiation failure, if any. A non-nil result
// means the session cannot proceed.
func (n *Negotiator) Err() error {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.err
}

// onPadAdded runs on the engine's signal thread. It inspects the new
// connector's capability description and, for a recognized video payload,
// inserts and links the matching depay → parse → decoder chain in front of
// the jitter queue feeding the conversion chain.
func (n *Negotiator) onPadAdded(pad *gst.Pad) {
	n.mu.Lock()
	defer n.mu.Unlock()

	if n.linked {
		// Duplicate discovery event for an already-wired stream.
		slog.Debug("pipeline: stream already linked, ignoring pad", "pad", pad.GetName())
		return
	}

	caps := pad.GetCurrentCaps()
	if caps == nil {
		slog.Warn("pipeline: new pad has no caps, ignoring", "pad", pad.GetName())
		return
	}
	structure := caps.GetStructureAt(0)
	if structure == nil {
		slog.Warn("pipeline: new pad caps are empty, ignoring", "pad", pad.GetName())
		return
	}

	if structure.Name() != rtpMediaType {
		slog.Debug("pipeline: ignoring non-RTP pad",
			"pad", pad.GetName(),
			"media_type", structure.Name(),
		)
		return
	}
	if media := structureString(structure, "media"); media != "" && media != "video" {
		slog.Debug("pipeline: ignoring non-video stream",
			"pad", pad.GetName(),
			"media", media,
		)
		return
	}

	encoding := structureString(structure, "encoding-name")
	if encoding == "" {
		slog.Warn("pipeline: pad caps carry no encoding identifier, ignoring",
			"pad", pad.GetName(),
		)
		return
	}

	family, ok := familyForEncoding(encoding)
	if !ok {
		n.err = fmt.Errorf("%w: %s", ErrUnsupportedCodec, encoding)
		slog.Error("pipeline: negotiation failed",
			"pad", pad.GetName(),
			"encoding", encoding,
			"error", n.err,
		)
		return
	}

	if err := n.insertChain(pad, family); err != nil {
		n.err = err
		slog.Error("pipeline: negotiation failed",
			"pad", pad.GetName(),
			"encoding", encoding,
			"error", err,
		)
		return
	}

	n.linked = true
	slog.Info("pipeline: elementary stream wired",
		"pad", pad.GetName(),
		"encoding", family.Name,
	)
}

// insertChain instantiates depay, parser and decoder for the family, adds
// them to the running graph, links them into the conversion path and
// promotes them to the current run state.
func (n *Negotiator) insertChain(pad *gst.Pad, family codecFamily) error {
	depay, err := gst.NewElement(family.Depay)
	if err != nil {
		return fmt.Errorf("pipeline: failed to create depacketizer %s: %w", family.Depay, err)
	}
	parse, err := gst.NewElement(family.Parse)
	if err != nil {
		return fmt.Errorf("pipeline: failed to create parser %s: %w", family.Parse, err)
	}

	decoder, decoderName := selectDecoder(family)
	if decoder == nil {
		return fmt.Errorf("pipeline: no instantiable decoder for %s (tried %s)",
			family.Name, strings.Join(family.Decoders, ", "))
	}

	if err := n.handle.Pipeline.AddMany(depay, parse, decoder); err != nil {
		return fmt.Errorf("pipeline: failed to add %s chain: %w", family.Name, err)
	}
	if err := gst.ElementLinkMany(depay, parse, decoder, n.live.Queue); err != nil {
		return fmt.Errorf("pipeline: failed to link %s chain: %w", family.Name, err)
	}

	depaySink := depay.GetStaticPad("sink")
	if depaySink == nil {
		return fmt.Errorf("pipeline: depacketizer %s has no sink pad", family.Depay)
	}
	if depaySink.IsLinked() {
		// Recurred discovery event raced us; the stream is wired.
		slog.Debug("pipeline: depacketizer already linked")
	} else if ret := pad.Link(depaySink); ret != gst.PadLinkOK {
		return fmt.Errorf("pipeline: failed to link source pad to %s: %v", family.Depay, ret)
	}

	// Promote the new elements so they do not stall a graph already in
	// Playing.
	for _, elem := range []*gst.Element{depay, parse, decoder} {
		if err := elem.SetState(n.runState); err != nil {
			return fmt.Errorf("pipeline: failed to promote %s: %w", elem.GetName(), err)
		}
	}

	slog.Info("pipeline: decoder selected",
		"encoding", family.Name,
		"decoder", decoderName,
	)
	return nil
}

// selectDecoder walks the family's candidate list, hardware first, and
// returns the first decoder that instantiates.
func selectDecoder(family codecFamily) (*gst.Element, string) {
	for _, name := range family.Decoders {
		decoder, err := gst.NewElement(name)
		if err == nil {
			return decoder, name
		}
		slog.Debug("pipeline: decoder candidate unavailable",
			"candidate", name,
			"error", err,
		)
	}
	return nil, ""
}

// structureString extracts a string field from a caps structure, returning
// "" when absent or not a string.
func structureString(s *gst.Structure, field string) string {
	v, err := s.GetValue(field)
	if err != nil {
		return ""
	}
	str, ok := v.(string)
	if !ok {
		return ""
	}
	return str
}
