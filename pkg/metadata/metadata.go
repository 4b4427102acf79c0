package metadata

import (
	"errors"
	"fmt"

	"pi-capture/pkg/types"
	"pi-capture/pkg/utils"
)

type Source string

const (
	SourceEXIF    Source = "exif"
	SourceSidecar Source = "sidecar"
)

// Record is capture metadata read back from an image.
type Record struct {
	Source Source
	// Path is the file the record came from.
	Path string
	// Raw is the JSON exactly as stored.
	Raw      []byte
	Metadata *types.CaptureMetadata
	// Tags is only set for embedded records.
	Tags *StandardTags
}

// Read tries the embedded record first and falls back to the sidecar.
func Read(imagePath string) (*Record, error) {
	rec, err := ReadEmbedded(imagePath)
	if err == nil {
		return rec, nil
	}
	utils.GetLogger().Debugf("no embedded metadata in %s: %s", imagePath, err)

	rec, sErr := ReadSidecar(imagePath)
	if sErr != nil {
		return nil, fmt.Errorf("read metadata: %w", errors.Join(err, sErr))
	}

	return rec, nil
}

// ConvertCameraMetadata makes device metadata safe to serialise. Scalars are
// kept, lists keep their scalar items and everything else becomes its string
// form. With stringify every value becomes a string.
func ConvertCameraMetadata(in map[string]any, stringify bool) map[string]any {
	out := make(map[string]any, len(in))
	for k, v := range in {
		if stringify {
			out[k] = fmt.Sprint(v)
			continue
		}
		out[k] = convertValue(v)
	}
	return out
}

func convertValue(v any) any {
	switch t := v.(type) {
	case nil, bool, string,
		int, int8, int16, int32, int64,
		uint, uint8, uint16, uint32, uint64,
		float32, float64:
		return t
	case []any:
		res := make([]any, len(t))
		for i, item := range t {
			res[i] = scalarOrString(item)
		}
		return res
	case []int:
		return t
	case []float64:
		return t
	case []string:
		return t
	default:
		return fmt.Sprint(t)
	}
}

func scalarOrString(v any) any {
	switch v.(type) {
	case bool, string,
		int, int8, int16, int32, int64,
		uint, uint8, uint16, uint32, uint64,
		float32, float64:
		return v
	default:
		return fmt.Sprint(v)
	}
}

// number reads a numeric metadata value, whether it came from the device or
// from decoded JSON.
func number(v any) (float64, bool) {
	switch t := v.(type) {
	case int:
		return float64(t), true
	case int32:
		return float64(t), true
	case int64:
		return float64(t), true
	case uint32:
		return float64(t), true
	case float32:
		return float64(t), true
	case float64:
		return t, true
	default:
		return 0, false
	}
}
