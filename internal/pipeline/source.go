package pipeline

import (
	"log/slog"
	"net/url"
	"path/filepath"
	"strings"
)

// SourceKind selects which pipeline topology is built for a playback session.
type SourceKind int

const (
	// SourceFile is a seekable local source played through an
	// auto-negotiating decode chain.
	SourceFile SourceKind = iota
	// SourceLiveNetwork is a low-latency network stream whose elementary
	// streams are discovered at runtime.
	SourceLiveNetwork
)

// String returns a human-readable string representation of the source kind.
func (k SourceKind) String() string {
	switch k {
	case SourceFile:
		return "file"
	case SourceLiveNetwork:
		return "live-network"
	default:
		return "unknown"
	}
}

// networkScheme is the locator prefix that selects the live topology.
// The comparison is case-insensitive.
const networkScheme = "rtsp://"

// SourceDescriptor is the normalized locator plus its classification.
// It is immutable after construction and decides the topology for the
// whole session.
type SourceDescriptor struct {
	URI  string
	Kind SourceKind
}

// ClassifySource normalizes a raw locator and classifies it.
//
// A locator that is already a well-formed URI is kept as-is. Anything else
// is treated as a filesystem path and converted to a file:// URI. If the
// conversion fails the original string is passed through unchanged so the
// failure surfaces later as a construction error with the engine's own
// diagnostics.
func ClassifySource(locator string) SourceDescriptor {
	uri := locator
	if !isWellFormedURI(locator) {
		converted, err := filePathToURI(locator)
		if err != nil {
			slog.Error("pipeline: failed to convert path to URI, passing through",
				"locator", locator,
				"error", err,
			)
		} else {
			uri = converted
		}
	}

	kind := SourceFile
	if strings.HasPrefix(strings.ToLower(uri), networkScheme) {
		kind = SourceLiveNetwork
	}

	return SourceDescriptor{URI: uri, Kind: kind}
}

// isWellFormedURI reports whether s already carries a usable URI scheme.
// Single-letter schemes are rejected so Windows-style drive paths ("C:\...")
// classify as filesystem paths.
func isWellFormedURI(s string) bool {
	u, err := url.Parse(s)
	if err != nil {
		return false
	}
	return len(u.Scheme) > 1
}

// filePathToURI converts a filesystem path into a file:// URI.
func filePathToURI(path string) (string, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return "", err
	}
	u := url.URL{Scheme: "file", Path: filepath.ToSlash(abs)}
	return u.String(), nil
}
