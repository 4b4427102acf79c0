package exposure

import (
	"image"

	"pi-capture/pkg/types"
)

// Brightness thresholds of the lighting ladder.
const (
	VeryDarkBelow   = 50
	DarkBelow       = 100
	VeryBrightAbove = 180
)

// Histogram ranges counted as dark and bright pixels.
const (
	darkHigh  = 84
	brightLow = 170
)

type bucket struct {
	description string
	recommended types.Recommendation
}

var buckets = map[types.LightingCondition]bucket{
	types.ConditionVeryDark: {
		description: "Night/Very Dark",
		recommended: types.Recommendation{ExposureMode: types.ExposureModeLong, ISOBoost: 2.0, BrightnessCompensation: 0.3},
	},
	types.ConditionDark: {
		description: "Dawn/Dusk/Overcast",
		recommended: types.Recommendation{ExposureMode: types.ExposureModeNormal, ISOBoost: 1.5, BrightnessCompensation: 0.2},
	},
	types.ConditionNormal: {
		description: "Good Lighting",
		recommended: types.Recommendation{ExposureMode: types.ExposureModeNormal, ISOBoost: 1.0, BrightnessCompensation: 0.0},
	},
	types.ConditionVeryBright: {
		description: "Direct Sunlight",
		recommended: types.Recommendation{ExposureMode: types.ExposureModeShort, ISOBoost: 0.8, BrightnessCompensation: -0.2},
	},
}

func Classify(brightness float64) types.LightingCondition {
	switch {
	case brightness < VeryDarkBelow:
		return types.ConditionVeryDark
	case brightness < DarkBelow:
		return types.ConditionDark
	case brightness > VeryBrightAbove:
		return types.ConditionVeryBright
	default:
		return types.ConditionNormal
	}
}

// Recommend returns the fixed adjustment and description for a condition.
// Unknown conditions get the neutral adjustment.
func Recommend(c types.LightingCondition) (types.Recommendation, string) {
	b, ok := buckets[c]
	if !ok {
		return buckets[types.ConditionNormal].recommended, "Auto"
	}
	return b.recommended, b.description
}

func Assess(s Stats) types.LightingAssessment {
	c := Classify(s.Brightness)
	rec, desc := Recommend(c)

	return types.LightingAssessment{
		Condition:           c,
		Description:         desc,
		Brightness:          s.Brightness,
		DarkPixelsPercent:   s.Fraction(0, darkHigh) * 100,
		BrightPixelsPercent: s.Fraction(brightLow, 255) * 100,
		Recommended:         rec,
	}
}

// Analyze classifies a preview frame. Callers decide whether Neutral is an
// acceptable fallback when it fails.
func Analyze(img image.Image) (*types.LightingAssessment, error) {
	s, err := Measure(img)
	if err != nil {
		return nil, err
	}
	a := Assess(s)

	return &a, nil
}

// Neutral is the assessment used when the preview could not be analysed.
func Neutral() types.LightingAssessment {
	rec, desc := Recommend(types.ConditionUnknown)
	return types.LightingAssessment{
		Condition:   types.ConditionUnknown,
		Description: desc,
		Brightness:  128,
		Recommended: rec,
	}
}
