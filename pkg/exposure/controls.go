package exposure

import (
	"pi-capture/pkg/types"
)

const (
	DefaultBaseISO = 400
	MaxISO         = 1600
)

// WhiteBalanceGains maps presets to (red, blue) colour gains.
var WhiteBalanceGains = map[types.WhiteBalance][2]float64{
	types.WhiteBalanceDaylight:    {1.5, 2.5},
	types.WhiteBalanceCloudy:      {1.8, 2.2},
	types.WhiteBalanceTungsten:    {2.5, 1.2},
	types.WhiteBalanceFluorescent: {2.0, 1.8},
}

// AdaptiveControls turns an assessment into an auto exposure control set with
// compensation and a boosted, capped gain.
func AdaptiveControls(a types.LightingAssessment, baseISO int) types.Controls {
	c := types.Controls{
		AeEnable:      types.Ptr(true),
		ExposureValue: types.Ptr(a.Recommended.BrightnessCompensation),
	}
	if baseISO > 0 {
		boost := a.Recommended.ISOBoost
		if boost == 0 {
			boost = 1.0
		}
		iso := int(float64(baseISO) * boost)
		if iso > MaxISO {
			iso = MaxISO
		}
		c.AnalogueGain = types.Ptr(float64(iso) / 100)
	}

	return c
}

// ManualControls holds the caller's explicit settings. withGains selects
// whether a white balance preset also sets colour gains or only turns AWB off.
func ManualControls(s types.CaptureSettings, withGains bool) types.Controls {
	var c types.Controls
	if s.ExposureTime != nil && *s.ExposureTime > 0 {
		c.ExposureTime = types.Ptr(*s.ExposureTime)
		c.AeEnable = types.Ptr(false)
	}
	if s.ISO != nil && *s.ISO > 0 {
		c.AnalogueGain = types.Ptr(float64(*s.ISO) / 100)
	}
	if s.WhiteBalance != "" && s.WhiteBalance != types.WhiteBalanceAuto {
		c.AwbEnable = types.Ptr(false)
		if gains, ok := WhiteBalanceGains[s.WhiteBalance]; withGains && ok {
			c.ColourGains = &gains
		}
	}

	return c
}

func BaseISO(s types.CaptureSettings) int {
	if s.ISO != nil && *s.ISO > 0 {
		return *s.ISO
	}
	return DefaultBaseISO
}
