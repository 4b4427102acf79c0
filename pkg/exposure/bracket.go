package exposure

import (
	"math"

	"pi-capture/pkg/types"
)

// BracketOffsets are the exposure compensations of a bracket, in EV.
var BracketOffsets = []float64{-1, 0, 1}

const IdealBrightness = 128

// Score rates an exposure: 100 at ideal brightness with nothing clipped,
// minus one point per level of distance and per percent of clipped pixels.
func Score(brightness, clippedHighlights, clippedShadows float64) float64 {
	return 100 - math.Abs(brightness-IdealBrightness) - clippedHighlights*100 - clippedShadows*100
}

// Evaluate fills the measurement and score fields of a candidate.
func Evaluate(c *types.BracketCandidate, s Stats) {
	c.Brightness = s.Brightness
	c.ClippedHighlights = s.Histogram[255]
	c.ClippedShadows = s.Histogram[0]
	c.Score = Score(c.Brightness, c.ClippedHighlights, c.ClippedShadows)
}

// SelectBest returns the index of the first candidate with the highest score,
// or -1 when there are none.
func SelectBest(cands []types.BracketCandidate) int {
	best := -1
	for i := range cands {
		if best < 0 || cands[i].Score > cands[best].Score {
			best = i
		}
	}
	return best
}
