package exposure

import (
	"bytes"
	"errors"
	"image"

	"github.com/disintegration/imaging"
)

var ErrEmptyImage = errors.New("image has no pixels")

// Stats holds what the classifier and the bracket scorer need from a frame.
type Stats struct {
	// Brightness is the mean of the R, G and B channel means, 0-255.
	Brightness float64
	// Histogram is the luminance histogram normalised by pixel count.
	Histogram [256]float64
	Width     int
	Height    int
}

// Fraction sums histogram bins lo..hi inclusive.
func (s Stats) Fraction(lo, hi int) float64 {
	if lo < 0 {
		lo = 0
	}
	if hi > 255 {
		hi = 255
	}
	var f float64
	for i := lo; i <= hi; i++ {
		f += s.Histogram[i]
	}
	return f
}

func Measure(img image.Image) (Stats, error) {
	if img == nil || img.Bounds().Empty() {
		return Stats{}, ErrEmptyImage
	}
	nrgba := imaging.Clone(img)
	w, h := nrgba.Rect.Dx(), nrgba.Rect.Dy()

	var sum [3]uint64
	for y := 0; y < h; y++ {
		row := nrgba.Pix[y*nrgba.Stride : y*nrgba.Stride+w*4]
		for i := 0; i < len(row); i += 4 {
			sum[0] += uint64(row[i])
			sum[1] += uint64(row[i+1])
			sum[2] += uint64(row[i+2])
		}
	}
	n := float64(w * h)

	return Stats{
		Brightness: (float64(sum[0])/n + float64(sum[1])/n + float64(sum[2])/n) / 3,
		Histogram:  imaging.Histogram(nrgba),
		Width:      w,
		Height:     h,
	}, nil
}

// Decode decodes an encoded frame (JPEG from the camera).
func Decode(data []byte) (image.Image, error) {
	return imaging.Decode(bytes.NewReader(data))
}

func Open(path string) (image.Image, error) {
	return imaging.Open(path)
}

// ColorMode names the colour layout of a decoded image the way the metadata
// record reports it.
func ColorMode(img image.Image) string {
	switch img.(type) {
	case *image.Gray, *image.Gray16:
		return "L"
	case *image.CMYK:
		return "CMYK"
	case *image.NRGBA, *image.RGBA, *image.NRGBA64, *image.RGBA64:
		return "RGBA"
	default:
		return "RGB"
	}
}
