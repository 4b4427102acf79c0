package capturecli

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pi-capture/pkg/metadata"
	"pi-capture/pkg/types"
)

func testMetadata() *types.CaptureMetadata {
	return &types.CaptureMetadata{
		Timestamp: "20250304_050607",
		Filename:  testName,
		Settings: types.CaptureSettings{
			Width:            1920,
			Height:           1080,
			Quality:          85,
			WhiteBalance:     types.WhiteBalanceAuto,
			AdaptiveExposure: true,
		},
		Lighting: &types.LightingAssessment{
			Condition:         types.ConditionDark,
			Description:       "Dawn/Dusk/Overcast",
			Brightness:        72.5,
			DarkPixelsPercent: 61.2,
		},
		Camera: map[string]any{"ExposureTime": 20000, "AnalogueGain": 6.0},
	}
}

func writeImage(t *testing.T) string {
	t.Helper()
	p := filepath.Join(t.TempDir(), testName)
	require.NoError(t, os.WriteFile(p, grayJPEG(t, 100), 0o644))
	return p
}

func TestReadmetaEmbedded(t *testing.T) {
	img := writeImage(t)
	require.NoError(t, metadata.Embed(img, testMetadata()))

	var out bytes.Buffer
	require.NoError(t, NewReadmetaApp(&out).Run([]string{"readmeta", img}))

	s := out.String()
	assert.Contains(t, s, "Image: "+testName)
	assert.Contains(t, s, "Standard EXIF Data:")
	assert.Contains(t, s, "Exposure: 1/50s")
	assert.Contains(t, s, "ISO: 600")
	assert.Contains(t, s, "Lighting: Dawn/Dusk/Overcast (brightness: 72.5)")
	assert.Contains(t, s, "Dark pixels: 61.2%")
	assert.Contains(t, s, "Camera exposure: 20000 μs")
	assert.Contains(t, s, "Lux: N/A")
	assert.NotContains(t, s, "Trying JSON metadata")
	assert.NotContains(t, s, "Full JSON Metadata:")
}

func TestReadmetaSidecarFallback(t *testing.T) {
	img := writeImage(t)
	_, err := metadata.WriteSidecar(img, testMetadata())
	require.NoError(t, err)

	var out bytes.Buffer
	require.NoError(t, NewReadmetaApp(&out).Run([]string{"readmeta", "--raw", img}))

	s := out.String()
	assert.Contains(t, s, "Trying JSON metadata...")
	assert.Contains(t, s, "JSON Metadata: captured_20250304_050607_metadata.json")
	assert.Contains(t, s, "Resolution: 1920x1080")
	assert.Contains(t, s, "Full JSON Metadata:")
	assert.NotContains(t, s, "Raw JSON output:")
	assert.Equal(t, 1, strings.Count(s, `"filename": "`+testName+`"`))
}

func TestReadmetaSidecarDumpsFullJSON(t *testing.T) {
	img := writeImage(t)
	_, err := metadata.WriteSidecar(img, testMetadata())
	require.NoError(t, err)

	var out bytes.Buffer
	require.NoError(t, NewReadmetaApp(&out).Run([]string{"readmeta", "--json-only", img}))

	s := out.String()
	assert.Contains(t, s, "JSON Metadata: captured_20250304_050607_metadata.json")
	assert.Contains(t, s, "Full JSON Metadata:")
	// Fields the summary leaves out still appear in the dump.
	assert.Contains(t, s, `"flip_horizontal": false`)
	assert.Contains(t, s, `"dark_pixels_percent": 61.2`)
	assert.Contains(t, s, `"AnalogueGain": 6`)
}

func TestReadmetaExifOnlyIgnoresSidecar(t *testing.T) {
	img := writeImage(t)
	_, err := metadata.WriteSidecar(img, testMetadata())
	require.NoError(t, err)

	var out bytes.Buffer
	err = NewReadmetaApp(&out).Run([]string{"readmeta", "--exif-only", img})
	assert.Equal(t, 1, exitCode(t, err))
}

func TestReadmetaJSONOnly(t *testing.T) {
	img := writeImage(t)
	require.NoError(t, metadata.Embed(img, testMetadata()))

	var out bytes.Buffer
	err := NewReadmetaApp(&out).Run([]string{"readmeta", "--json-only", img})
	assert.Equal(t, 1, exitCode(t, err))
	assert.Contains(t, err.Error(), "No metadata found")
}

func TestReadmetaErrors(t *testing.T) {
	var out bytes.Buffer

	err := NewReadmetaApp(&out).Run([]string{"readmeta"})
	assert.Equal(t, 1, exitCode(t, err))

	err = NewReadmetaApp(&out).Run([]string{"readmeta", filepath.Join(t.TempDir(), "missing.jpg")})
	assert.Equal(t, 1, exitCode(t, err))
	assert.Contains(t, err.Error(), "Image file not found")

	img := writeImage(t)
	err = NewReadmetaApp(&out).Run([]string{"readmeta", "--json-only", "--exif-only", img})
	assert.Equal(t, 1, exitCode(t, err))

	err = NewReadmetaApp(&out).Run([]string{"readmeta", img})
	assert.Equal(t, 1, exitCode(t, err))
}
