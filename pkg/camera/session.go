package camera

import (
	"context"
	"errors"

	"pi-capture/pkg/types"
)

const (
	DefaultDevice = "/dev/video0"
	DefaultFPS    = 15
)

var (
	ErrNoDevice     = errors.New("no camera device")
	ErrStarted      = errors.New("already started")
	ErrNotStarted   = errors.New("camera not started")
	ErrStreamClosed = errors.New("capture stream closed")
)

// Config is applied when the session starts.
type Config struct {
	Width    int
	Height   int
	Quality  int
	Rotation int
	FlipH    bool
	FlipV    bool
}

// Session is one exclusive use of the camera. The owner must call Stop and
// Close on every path once Open succeeded.
type Session interface {
	Configure(cfg Config) error
	Start(ctx context.Context) error
	SetControls(c types.Controls) error
	// CaptureFrame returns the newest encoded frame.
	CaptureFrame(ctx context.Context) ([]byte, error)
	// CaptureFile writes the newest frame to path.
	CaptureFile(ctx context.Context, path string) error
	// Metadata reports the current exposure state with normalised keys:
	// ExposureTime (µs), AnalogueGain and ColourTemperature when known.
	Metadata() (map[string]any, error)
	Properties() (map[string]any, error)
	Stop() error
	Close() error
}

type Opener func(devName string) (Session, error)

// OpenV4L2 is the Opener for real hardware.
func OpenV4L2(devName string) (Session, error) {
	c, err := Open(devName)
	if err != nil {
		return nil, err
	}
	return c, nil
}
