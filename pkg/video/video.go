package video

import (
	"bytes"
	"fmt"
	"image"
	_ "image/jpeg"
	"os"

	"github.com/icza/mjpeg"

	"pi-capture/pkg/utils"
)

const DefaultFPS = 10

// Builder writes JPEG frames into an MJPEG AVI.
type Builder struct {
	width  int
	height int
	fps    int

	cnt int
	aw  mjpeg.AviWriter
}

func NewBuilder(path string, width, height, fps int) (*Builder, error) {
	aw, err := mjpeg.New(path, int32(width), int32(height), int32(fps))
	if err != nil {
		return nil, err
	}

	return &Builder{
		width:  width,
		height: height,
		fps:    fps,
		aw:     aw,
	}, nil
}

// Add appends frame when its dimensions match the video. Mismatched frames
// are skipped and reported as false.
func (b *Builder) Add(frame []byte) (bool, error) {
	w, h, err := frameSize(frame)
	if err != nil {
		return false, err
	}
	if w != b.width || h != b.height {
		return false, nil
	}
	if err = b.aw.AddFrame(frame); err != nil {
		return false, err
	}
	b.cnt++

	return true, nil
}

func (b *Builder) Close() error {
	return b.aw.Close()
}

func (b *Builder) GetCnt() int {
	return b.cnt
}

func frameSize(frame []byte) (int, int, error) {
	cfg, _, err := image.DecodeConfig(bytes.NewReader(frame))
	if err != nil {
		return 0, 0, fmt.Errorf("decode frame header: %w", err)
	}
	return cfg.Width, cfg.Height, nil
}

// Build assembles the given JPEG files into a timelapse at path. The first
// readable frame fixes the video size. It returns the number of frames
// written.
func Build(path string, files []string, fps int) (int, error) {
	logger := utils.GetLogger()
	if fps <= 0 {
		fps = DefaultFPS
	}

	var b *Builder
	for _, f := range files {
		data, err := os.ReadFile(f)
		if err != nil {
			logger.Warnf("skip %s: %s", f, err)
			continue
		}
		if b == nil {
			w, h, err := frameSize(data)
			if err != nil {
				logger.Warnf("skip %s: %s", f, err)
				continue
			}
			if b, err = NewBuilder(path, w, h, fps); err != nil {
				return 0, err
			}
		}
		ok, err := b.Add(data)
		if err != nil {
			logger.Warnf("skip %s: %s", f, err)
			continue
		}
		if !ok {
			logger.Warnf("skip %s: size differs from %dx%d", f, b.width, b.height)
		}
	}
	if b == nil {
		return 0, fmt.Errorf("no usable frames among %d files", len(files))
	}
	if err := b.Close(); err != nil {
		return b.GetCnt(), err
	}

	return b.GetCnt(), nil
}
