package pipeline

import (
	"strings"
	"testing"
)

func TestFamilyForEncoding(t *testing.T) {
	tests := []struct {
		encoding  string
		wantOK    bool
		wantDepay string
		wantParse string
	}{
		{"H264", true, "rtph264depay", "h264parse"},
		{"h264", true, "rtph264depay", "h264parse"},
		{"H265", true, "rtph265depay", "h265parse"},
		{"HEVC", true, "rtph265depay", "h265parse"},
		{" H264 ", true, "rtph264depay", "h264parse"},
		{"VP8", false, "", ""},
		{"MP4V-ES", false, "", ""},
		{"", false, "", ""},
	}

	for _, tt := range tests {
		t.Run(tt.encoding, func(t *testing.T) {
			family, ok := familyForEncoding(tt.encoding)
			if ok != tt.wantOK {
				t.Fatalf("familyForEncoding(%q) ok = %v, want %v", tt.encoding, ok, tt.wantOK)
			}
			if !ok {
				return
			}
			if family.Depay != tt.wantDepay {
				t.Errorf("Depay = %q, want %q", family.Depay, tt.wantDepay)
			}
			if family.Parse != tt.wantParse {
				t.Errorf("Parse = %q, want %q", family.Parse, tt.wantParse)
			}
		})
	}
}

// TestDecoderCandidates_HardwareFirst pins the candidate ordering: every
// family must try hardware-accelerated decoders before software ones, so
// the first instantiable candidate is the fastest available.
func TestDecoderCandidates_HardwareFirst(t *testing.T) {
	software := map[string]bool{
		"avdec_h264":  true,
		"avdec_h265":  true,
		"openh264dec": true,
	}

	for name, family := range codecFamilies {
		t.Run(name, func(t *testing.T) {
			if len(family.Decoders) == 0 {
				t.Fatal("family has no decoder candidates")
			}
			if software[family.Decoders[0]] {
				t.Errorf("first candidate %q is a software decoder", family.Decoders[0])
			}

			// Once the list switches to software it must not go back to
			// hardware: the priority order is fixed.
			seenSoftware := false
			for _, candidate := range family.Decoders {
				if software[candidate] {
					seenSoftware = true
				} else if seenSoftware {
					t.Errorf("hardware candidate %q listed after software ones", candidate)
				}
			}

			// Candidates must match the family's codec.
			tag := strings.ToLower(name)
			for _, candidate := range family.Decoders {
				if !strings.Contains(candidate, tag) {
					t.Errorf("candidate %q does not match family %s", candidate, name)
				}
			}
		})
	}
}

func TestClassifyText(t *testing.T) {
	tests := []struct {
		name string
		text string
		want ErrorCategory
	}{
		{"auth", "401 Unauthorized from server", ErrCategoryAuth},
		{"auth beats network", "connection refused: bad credentials", ErrCategoryAuth},
		{"codec", "no decoder available for H264", ErrCategoryCodec},
		{"negotiation", "streaming stopped, reason not-negotiated", ErrCategoryCodec},
		{"network", "could not connect to server", ErrCategoryNetwork},
		{"timeout", "timeout while waiting for server response", ErrCategoryNetwork},
		{"unknown", "internal data stream problem", ErrCategoryUnknown},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := classifyText(tt.text); got != tt.want {
				t.Errorf("classifyText(%q) = %v, want %v", tt.text, got, tt.want)
			}
		})
	}
}

func TestErrorCategory_String(t *testing.T) {
	tests := []struct {
		cat  ErrorCategory
		want string
	}{
		{ErrCategoryNetwork, "network"},
		{ErrCategoryCodec, "codec"},
		{ErrCategoryAuth, "auth"},
		{ErrCategoryUnknown, "unknown"},
		{ErrorCategory(99), "unknown"},
	}
	for _, tt := range tests {
		if got := tt.cat.String(); got != tt.want {
			t.Errorf("ErrorCategory(%d).String() = %q, want %q", tt.cat, got, tt.want)
		}
	}
}

func TestErrorCounters_Count(t *testing.T) {
	var c ErrorCounters
	c.Count(ErrCategoryNetwork)
	c.Count(ErrCategoryNetwork)
	c.Count(ErrCategoryCodec)
	c.Count(ErrCategoryAuth)
	c.Count(ErrCategoryUnknown)
	c.Count(ErrorCategory(42))

	if got := c.Network.Load(); got != 2 {
		t.Errorf("Network = %d, want 2", got)
	}
	if got := c.Codec.Load(); got != 1 {
		t.Errorf("Codec = %d, want 1", got)
	}
	if got := c.Auth.Load(); got != 1 {
		t.Errorf("Auth = %d, want 1", got)
	}
	if got := c.Unknown.Load(); got != 2 {
		t.Errorf("Unknown = %d, want 2", got)
	}
}
