package exposure

import (
	"image"
	"image/color"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pi-capture/pkg/types"
)

func uniform(w, h int, c color.Color) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, c)
		}
	}
	return img
}

func gray(v uint8) color.RGBA {
	return color.RGBA{R: v, G: v, B: v, A: 255}
}

func TestClassifyBoundaries(t *testing.T) {
	tests := []struct {
		brightness float64
		want       types.LightingCondition
	}{
		{0, types.ConditionVeryDark},
		{49.999, types.ConditionVeryDark},
		{50, types.ConditionDark},
		{99.999, types.ConditionDark},
		{100, types.ConditionNormal},
		{128, types.ConditionNormal},
		{180, types.ConditionNormal},
		{180.001, types.ConditionVeryBright},
		{255, types.ConditionVeryBright},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, Classify(tt.brightness), "brightness %v", tt.brightness)
	}
}

func TestRecommendTable(t *testing.T) {
	rec, desc := Recommend(types.ConditionVeryDark)
	assert.Equal(t, "Night/Very Dark", desc)
	assert.Equal(t, 0.3, rec.BrightnessCompensation)
	assert.Equal(t, 2.0, rec.ISOBoost)
	assert.Equal(t, types.ExposureModeLong, rec.ExposureMode)

	rec, _ = Recommend(types.ConditionDark)
	assert.Equal(t, 0.2, rec.BrightnessCompensation)
	assert.Equal(t, 1.5, rec.ISOBoost)

	rec, _ = Recommend(types.ConditionVeryBright)
	assert.Equal(t, -0.2, rec.BrightnessCompensation)
	assert.Equal(t, 0.8, rec.ISOBoost)
	assert.Equal(t, types.ExposureModeShort, rec.ExposureMode)

	rec, desc = Recommend(types.ConditionUnknown)
	assert.Equal(t, "Auto", desc)
	assert.Equal(t, 1.0, rec.ISOBoost)
	assert.Equal(t, 0.0, rec.BrightnessCompensation)
}

func TestAnalyzeUniformFrames(t *testing.T) {
	a, err := Analyze(uniform(16, 8, gray(30)))
	require.NoError(t, err)
	assert.Equal(t, types.ConditionVeryDark, a.Condition)
	assert.InDelta(t, 30, a.Brightness, 0.001)
	assert.InDelta(t, 100, a.DarkPixelsPercent, 0.001)
	assert.InDelta(t, 0, a.BrightPixelsPercent, 0.001)

	a, err = Analyze(uniform(16, 8, gray(220)))
	require.NoError(t, err)
	assert.Equal(t, types.ConditionVeryBright, a.Condition)
	assert.Equal(t, "Direct Sunlight", a.Description)
	assert.InDelta(t, 100, a.BrightPixelsPercent, 0.001)
}

func TestAnalyzeMixedFrame(t *testing.T) {
	// Left half black, right half white: brightness 127.5, half dark, half bright.
	img := uniform(10, 10, gray(0))
	for y := 0; y < 10; y++ {
		for x := 5; x < 10; x++ {
			img.Set(x, y, gray(255))
		}
	}
	a, err := Analyze(img)
	require.NoError(t, err)
	assert.Equal(t, types.ConditionNormal, a.Condition)
	assert.InDelta(t, 127.5, a.Brightness, 0.001)
	assert.InDelta(t, 50, a.DarkPixelsPercent, 0.001)
	assert.InDelta(t, 50, a.BrightPixelsPercent, 0.001)
}

func TestAnalyzeBrightnessAveragesChannels(t *testing.T) {
	a, err := Analyze(uniform(4, 4, color.RGBA{R: 90, G: 150, B: 30, A: 255}))
	require.NoError(t, err)
	assert.InDelta(t, 90, a.Brightness, 0.001)
	assert.Equal(t, types.ConditionDark, a.Condition)
}

func TestAnalyzeEmptyImage(t *testing.T) {
	_, err := Analyze(image.NewRGBA(image.Rect(0, 0, 0, 0)))
	require.ErrorIs(t, err, ErrEmptyImage)

	_, err = Analyze(nil)
	require.ErrorIs(t, err, ErrEmptyImage)
}

func TestNeutral(t *testing.T) {
	n := Neutral()
	assert.Equal(t, types.ConditionUnknown, n.Condition)
	assert.Equal(t, 128.0, n.Brightness)
	assert.Equal(t, types.ExposureModeNormal, n.Recommended.ExposureMode)
}
