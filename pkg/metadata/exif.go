package metadata

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	exifv3 "github.com/dsoprea/go-exif/v3"
	exifcommon "github.com/dsoprea/go-exif/v3/common"
	jpegstructure "github.com/dsoprea/go-jpeg-image-structure/v2"
	"github.com/goccy/go-json"
	"github.com/rwcarlsen/goexif/exif"

	"pi-capture/pkg/types"
)

const userCommentTagID = 0x9286

// UserCommentMarker prefixes the JSON payload in the UserComment tag.
var UserCommentMarker = []byte("JPEG\x00\x00\x00\x00")

var ErrNoEmbedded = errors.New("no embedded metadata")

// StandardTags are the EXIF tags mirrored from the record.
type StandardTags struct {
	Description string
	Software    string
	// ExposureTime is a rational in seconds; a zero denominator means absent.
	ExposureTime [2]int64
	ISO          int
	WhiteBalance *int
	ColorSpace   *int
}

// ExposureString formats the exposure as 1/Xs or Ns.
func (t StandardTags) ExposureString() string {
	num, den := t.ExposureTime[0], t.ExposureTime[1]
	if den == 0 || num == 0 {
		return ""
	}
	sec := float64(num) / float64(den)
	if sec < 1 {
		return fmt.Sprintf("1/%ds", int(1/sec))
	}
	return fmt.Sprintf("%gs", sec)
}

// Payload is the compact JSON stored after the marker.
func Payload(md *types.CaptureMetadata) ([]byte, error) {
	return json.Marshal(md)
}

// Description is the ImageDescription mirror; empty without a lighting
// assessment.
func Description(md *types.CaptureMetadata) string {
	if md.Lighting == nil || md.Lighting.Description == "" {
		return ""
	}
	return fmt.Sprintf("Adaptive capture: %s (brightness: %.1f)", md.Lighting.Description, md.Lighting.Brightness)
}

func Software(s types.CaptureSettings) string {
	res := fmt.Sprintf("RaspberryPi Adaptive Camera - Quality:%d", s.Quality)
	if s.AdaptiveExposure {
		res += " - Adaptive"
	}
	if s.ExposureBracketing {
		res += " - Bracketed"
	}
	return res
}

// ExposureRational converts microseconds to 1/x below one second and n/1000
// otherwise.
func ExposureRational(us float64) (num, den uint32, ok bool) {
	if us <= 0 {
		return 0, 0, false
	}
	sec := us / 1e6
	if sec < 1 {
		return 1, uint32(1 / sec), true
	}
	return uint32(sec * 1000), 1000, true
}

// Embed stores md in the UserComment of the JPEG at path, mirrors the
// standard tags and replaces the file through a temporary copy. The image
// data is not re-encoded.
func Embed(path string, md *types.CaptureMetadata) error {
	payload, err := Payload(md)
	if err != nil {
		return fmt.Errorf("marshal metadata: %w", err)
	}

	intfc, err := jpegstructure.NewJpegMediaParser().ParseFile(path)
	if err != nil {
		return fmt.Errorf("parse jpeg: %w", err)
	}
	sl := intfc.(*jpegstructure.SegmentList)

	rootIb, err := sl.ConstructExifBuilder()
	if err != nil {
		// No EXIF yet.
		im, err := exifcommon.NewIfdMappingWithStandard()
		if err != nil {
			return err
		}
		rootIb = exifv3.NewIfdBuilder(im, exifv3.NewTagIndex(), exifcommon.IfdStandardIfdIdentity, exifcommon.EncodeDefaultByteOrder)
	}

	ifd0, err := exifv3.GetOrCreateIbFromRootIb(rootIb, "IFD0")
	if err != nil {
		return err
	}
	exifIb, err := exifv3.GetOrCreateIbFromRootIb(rootIb, "IFD/Exif")
	if err != nil {
		return err
	}

	raw := append(append([]byte{}, UserCommentMarker...), payload...)
	bt := exifv3.NewBuilderTag(
		exifIb.IfdIdentity().UnindexedString(),
		userCommentTagID,
		exifcommon.TypeUndefined,
		exifv3.NewIfdBuilderTagValueFromBytes(raw),
		exifcommon.EncodeDefaultByteOrder,
	)
	if err = exifIb.Set(bt); err != nil {
		return fmt.Errorf("set UserComment: %w", err)
	}

	if desc := Description(md); desc != "" {
		if err = ifd0.SetStandardWithName("ImageDescription", desc); err != nil {
			return fmt.Errorf("set ImageDescription: %w", err)
		}
	}
	if err = ifd0.SetStandardWithName("Software", Software(md.Settings)); err != nil {
		return fmt.Errorf("set Software: %w", err)
	}

	if v, ok := number(md.Camera["ExposureTime"]); ok {
		if num, den, ok := ExposureRational(v); ok {
			r := []exifcommon.Rational{{Numerator: num, Denominator: den}}
			if err = exifIb.SetStandardWithName("ExposureTime", r); err != nil {
				return fmt.Errorf("set ExposureTime: %w", err)
			}
		}
	}
	if v, ok := number(md.Camera["AnalogueGain"]); ok {
		if err = exifIb.SetStandardWithName("ISOSpeedRatings", []uint16{uint16(v * 100)}); err != nil {
			return fmt.Errorf("set ISOSpeedRatings: %w", err)
		}
	}
	if _, ok := number(md.Camera["ColourTemperature"]); ok {
		if err = exifIb.SetStandardWithName("WhiteBalance", []uint16{1}); err != nil {
			return fmt.Errorf("set WhiteBalance: %w", err)
		}
		if err = exifIb.SetStandardWithName("ColorSpace", []uint16{1}); err != nil {
			return fmt.Errorf("set ColorSpace: %w", err)
		}
	}

	if err = sl.SetExif(rootIb); err != nil {
		return fmt.Errorf("encode exif: %w", err)
	}

	return replaceFile(path, func(f *os.File) error {
		return sl.Write(f)
	})
}

func replaceFile(path string, write func(f *os.File) error) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), "."+filepath.Base(path)+".*.tmp")
	if err != nil {
		return err
	}
	defer os.Remove(tmp.Name())

	if err = write(tmp); err != nil {
		tmp.Close()
		return err
	}
	if err = tmp.Close(); err != nil {
		return err
	}
	if err = os.Chmod(tmp.Name(), 0o644); err != nil {
		return err
	}

	return os.Rename(tmp.Name(), path)
}

// ReadEmbedded returns the record stored in the UserComment of the image.
// Images without EXIF or without the marker give ErrNoEmbedded.
func ReadEmbedded(imagePath string) (*Record, error) {
	f, err := os.Open(imagePath)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	x, err := exif.Decode(f)
	if err != nil {
		return nil, fmt.Errorf("%w: %s", ErrNoEmbedded, err)
	}
	tags := readStandardTags(x)

	tag, err := x.Get(exif.UserComment)
	if err != nil {
		return nil, fmt.Errorf("%w: no UserComment", ErrNoEmbedded)
	}
	if !bytes.HasPrefix(tag.Val, UserCommentMarker) {
		return nil, fmt.Errorf("%w: UserComment has no JSON marker", ErrNoEmbedded)
	}

	raw := append([]byte(nil), tag.Val[len(UserCommentMarker):]...)
	md := new(types.CaptureMetadata)
	if err = json.Unmarshal(raw, md); err != nil {
		return nil, fmt.Errorf("parse embedded metadata: %w", err)
	}

	return &Record{Source: SourceEXIF, Path: imagePath, Raw: raw, Metadata: md, Tags: tags}, nil
}

func readStandardTags(x *exif.Exif) *StandardTags {
	t := new(StandardTags)
	if tag, err := x.Get(exif.ImageDescription); err == nil {
		t.Description, _ = tag.StringVal()
	}
	if tag, err := x.Get(exif.Software); err == nil {
		t.Software, _ = tag.StringVal()
	}
	if tag, err := x.Get(exif.ExposureTime); err == nil {
		if num, den, err := tag.Rat2(0); err == nil {
			t.ExposureTime = [2]int64{num, den}
		}
	}
	if tag, err := x.Get(exif.ISOSpeedRatings); err == nil {
		t.ISO, _ = tag.Int(0)
	}
	if tag, err := x.Get(exif.WhiteBalance); err == nil {
		if v, err := tag.Int(0); err == nil {
			t.WhiteBalance = &v
		}
	}
	if tag, err := x.Get(exif.ColorSpace); err == nil {
		if v, err := tag.Int(0); err == nil {
			t.ColorSpace = &v
		}
	}
	return t
}
