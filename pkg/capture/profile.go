package capture

import (
	"time"

	"pi-capture/pkg/types"
)

type MetadataMode string

const (
	MetadataNone    MetadataMode = "none"
	MetadataEXIF    MetadataMode = "exif"
	MetadataSidecar MetadataMode = "sidecar"
)

// Profile is the fixed behaviour of one capture tool.
type Profile struct {
	Name string
	// WarmUp runs after the session starts.
	WarmUp time.Duration
	// Settle runs after adaptive controls are applied.
	Settle time.Duration

	// Adaptive allows the lighting analysis when the settings ask for it.
	Adaptive bool
	// Manual applies the caller's exposure, ISO and white balance.
	Manual bool
	// WhiteBalanceGains sets colour gains for white balance presets instead
	// of only turning AWB off.
	WhiteBalanceGains bool
	Bracketing        bool
	// Preview honours the requested preview time.
	Preview bool

	Metadata        MetadataMode
	StringifyCamera bool
}

var (
	Adaptive = Profile{
		Name:              "adaptive",
		WarmUp:            time.Second,
		Settle:            time.Second,
		Adaptive:          true,
		Manual:            true,
		WhiteBalanceGains: true,
		Bracketing:        true,
		Preview:           true,
		Metadata:          MetadataEXIF,
	}
	Manual = Profile{
		Name:            "manual",
		Manual:          true,
		Preview:         true,
		Metadata:        MetadataSidecar,
		StringifyCamera: true,
	}
	Basic = Profile{
		Name:     "basic",
		WarmUp:   2 * time.Second,
		Metadata: MetadataNone,
	}
)

// MetadataMode returns where the record of a capture with s goes.
func (p Profile) MetadataMode(s types.CaptureSettings) MetadataMode {
	if p.Metadata == MetadataEXIF && s.JSONMetadata {
		return MetadataSidecar
	}
	return p.Metadata
}

// RemainingPreview is the preview time left after warm-up and, when
// adaptive controls were applied, the settle time.
func (p Profile) RemainingPreview(s types.CaptureSettings, adapted bool) time.Duration {
	if !p.Preview {
		return 0
	}
	d := s.Preview - p.WarmUp
	if adapted {
		d -= p.Settle
	}
	if d < 0 {
		return 0
	}
	return d
}
