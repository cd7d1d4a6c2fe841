package pipeline

import (
	"context"
	"log/slog"
	"time"

	"github.com/tinyzimmer/go-gst/gst"
)

// RunEventBridge drains every status message the pipeline produces and
// converts the ones the player cares about into deferred state.
//
// It runs on its own goroutine, which stands in for the engine's internal
// dispatch thread: no host callback is ever invoked from here. End-of-stream
// sets the completion flag, which the host consumes on its next position
// query. Warnings and errors are logged and counted; neither stops playback.
//
// Returns when ctx is cancelled. Every message is consumed; none are
// forwarded further.
func RunEventBridge(ctx context.Context, pl *gst.Pipeline, completed *CompletionFlag, counters *ErrorCounters) {
	if pl == nil {
		return
	}
	bus := pl.GetPipelineBus()

	for {
		select {
		case <-ctx.Done():
			slog.Debug("pipeline: event bridge stopping")
			return

		default:
			// Short poll keeps shutdown responsive.
			msg := bus.TimedPop(50 * time.Millisecond)
			if msg == nil {
				continue
			}

			switch msg.Type() {
			case gst.MessageEOS:
				completed.Signal()
				slog.Info("pipeline: end of stream")

			case gst.MessageError:
				gerr := msg.ParseError()
				category := ClassifyEngineError(gerr)
				counters.Count(category)
				slog.Error("pipeline: engine error",
					"source", msg.Source(),
					"error", gerr.Error(),
					"debug", gerr.DebugString(),
					"category", category.String(),
				)

			case gst.MessageWarning:
				slog.Warn("pipeline: engine warning",
					"source", msg.Source(),
					"message", msg.String(),
				)

			case gst.MessageStateChanged:
				if msg.Source() == pl.GetName() {
					old, next := msg.ParseStateChanged()
					slog.Debug("pipeline: state changed",
						"from", old,
						"to", next,
					)
				}
			}
		}
	}
}
