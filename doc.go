// Package videoplay orchestrates video playback on top of the GStreamer
// dataflow engine: it selects and wires engine-provided elements for a
// given source, drives the graph's lifecycle, and exposes decoded RGBA
// frames and transport controls through a narrow, thread-safe surface.
//
// It implements none of the media handling itself. Demuxing, transport,
// and codec decode are delegated to engine elements; this package decides
// which elements to assemble, supervises them, and manages the buffer and
// hand-off surface around them.
//
// # Quick Start
//
//	player, err := videoplay.New(videoplay.Config{
//	    Locator: "/media/intro.mp4",
//	    Handler: myHandler, // optional
//	})
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer player.Close()
//
//	if err := player.Init(); err != nil { // preroll
//	    log.Fatal(err)
//	}
//	player.Play()
//
//	// Host render loop:
//	if buf := player.FrameBuffer(); buf != nil {
//	    // buf is RGBA, width*height*4 bytes, valid until the next call
//	}
//	pos := player.Position() // ms, -1 on transient query failure
//
// # Topologies
//
// The locator is classified once at construction:
//
//   - File sources play through an auto-negotiating decode chain (playbin)
//     feeding a videoconvert → RGBA capsfilter → appsink bin behind a
//     single ghost pad, with host-paced (synchronized) delivery.
//   - rtsp:// sources use a low-latency capture chain: rtspsrc with zero
//     target latency, TCP transport, retransmission off and drop-on-latency
//     on, feeding a one-buffer leaky jitter queue into the same conversion
//     chain, with immediate (unsynchronized) delivery. The
//     depacketizer/parser/decoder chain is inserted at runtime once the
//     elementary stream's encoding is discovered; decoder candidates are
//     tried hardware-accelerated first.
//
// The RGBA pin on the conversion output is a hard invariant: frame buffer
// sizes are always width*height*4 bytes.
//
// # Threading
//
// The engine decodes on its own internal threads. Two boundaries are
// locked: the single-slot frame exchange (reader-writer lock, writer holds
// it only for the slot swap) and the completion flag (plain mutex,
// test-and-reset). Engine threads never invoke handler callbacks; size
// changes, decoded-frame signals and end-of-stream completion are staged
// and delivered on the host's own Position and FrameBuffer calls.
// Completion is delivered at most once per end-of-stream, either as
// OnCompleted or, with auto-repeat enabled, as a seek back to zero.
//
// # Requirements
//
// A GStreamer 1.x runtime with the base, good and bad plugin sets must be
// installed. Hardware decoders (VAAPI, NVDEC, V4L2) are used when their
// elements instantiate and are skipped otherwise.
package videoplay
