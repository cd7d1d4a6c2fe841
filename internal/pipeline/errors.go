package pipeline

import (
	"strings"
	"sync/atomic"

	"github.com/tinyzimmer/go-gst/gst"
)

// ErrorCategory classifies engine bus errors for telemetry. Bus errors are
// never fatal to playback; categorization only feeds statistics and logs.
type ErrorCategory int

const (
	// ErrCategoryNetwork indicates connection, timeout or DNS failures.
	ErrCategoryNetwork ErrorCategory = iota
	// ErrCategoryCodec indicates decode, format or negotiation failures.
	ErrCategoryCodec
	// ErrCategoryAuth indicates authentication or authorization failures.
	ErrCategoryAuth
	// ErrCategoryUnknown indicates unclassified failures.
	ErrCategoryUnknown
)

// String returns a human-readable string representation of the category.
func (e ErrorCategory) String() string {
	switch e {
	case ErrCategoryNetwork:
		return "network"
	case ErrCategoryCodec:
		return "codec"
	case ErrCategoryAuth:
		return "auth"
	default:
		return "unknown"
	}
}

// ErrorCounters accumulates bus errors by category. All fields are updated
// atomically from the bus monitor goroutine and read from the host thread.
type ErrorCounters struct {
	Network atomic.Uint64
	Codec   atomic.Uint64
	Auth    atomic.Uint64
	Unknown atomic.Uint64
}

// Count records one error of the given category.
func (c *ErrorCounters) Count(cat ErrorCategory) {
	switch cat {
	case ErrCategoryNetwork:
		c.Network.Add(1)
	case ErrCategoryCodec:
		c.Codec.Add(1)
	case ErrCategoryAuth:
		c.Auth.Add(1)
	default:
		c.Unknown.Add(1)
	}
}

// ClassifyEngineError categorizes an engine error message.
//
// go-gst's GError does not expose the error domain, so classification
// relies on message keywords. Auth is checked first (most specific), then
// codec, then network (most common).
func ClassifyEngineError(gerr *gst.GError) ErrorCategory {
	if gerr == nil {
		return ErrCategoryUnknown
	}
	return classifyText(gerr.Error() + " " + gerr.DebugString())
}

// classifyText categorizes an error message by keyword.
func classifyText(text string) ErrorCategory {
	combined := strings.ToLower(text)

	if containsAny(combined, authKeywords) {
		return ErrCategoryAuth
	}
	if containsAny(combined, codecKeywords) {
		return ErrCategoryCodec
	}
	if containsAny(combined, networkKeywords) {
		return ErrCategoryNetwork
	}
	return ErrCategoryUnknown
}

var authKeywords = []string{
	"unauthorized",
	"401",
	"403",
	"forbidden",
	"authentication",
	"credentials",
	"password",
}

var codecKeywords = []string{
	"codec",
	"decode",
	"format",
	"negotiation",
	"caps",
	"h264",
	"h265",
	"not negotiated",
	"no decoder",
	"missing plugin",
}

var networkKeywords = []string{
	"connection",
	"timeout",
	"unreachable",
	"network",
	"dns",
	"resolve",
	"socket",
	"tcp",
	"udp",
	"rtsp",
	"could not connect",
	"failed to connect",
}

func containsAny(s string, keywords []string) bool {
	for _, kw := range keywords {
		if strings.Contains(s, kw) {
			return true
		}
	}
	return false
}
