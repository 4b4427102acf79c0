package metadata

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/goccy/go-json"

	"pi-capture/pkg/types"
)

const sidecarSuffix = "_metadata.json"

// SidecarPath returns <dir>/<stem>_metadata.json for an image path.
func SidecarPath(imagePath string) string {
	return strings.TrimSuffix(imagePath, filepath.Ext(imagePath)) + sidecarSuffix
}

// WriteSidecar writes md next to the image and returns the sidecar path.
func WriteSidecar(imagePath string, md *types.CaptureMetadata) (string, error) {
	data, err := json.MarshalIndent(md, "", "  ")
	if err != nil {
		return "", fmt.Errorf("marshal metadata: %w", err)
	}
	p := SidecarPath(imagePath)
	if err = os.WriteFile(p, data, 0o644); err != nil {
		return "", err
	}

	return p, nil
}

func ReadSidecar(imagePath string) (*Record, error) {
	p := SidecarPath(imagePath)
	data, err := os.ReadFile(p)
	if err != nil {
		return nil, err
	}
	md := new(types.CaptureMetadata)
	if err = json.Unmarshal(data, md); err != nil {
		return nil, fmt.Errorf("parse %s: %w", filepath.Base(p), err)
	}

	return &Record{Source: SourceSidecar, Path: p, Raw: data, Metadata: md}, nil
}
