package camera

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/vladimirvivien/go4vl/device"
	"github.com/vladimirvivien/go4vl/v4l2"

	"pi-capture/pkg/types"
)

// FrameTimeout bounds how long CaptureFrame waits for the driver.
var FrameTimeout = 5 * time.Second

// Camera is a Session over a V4L2 device that streams JPEG frames.
type Camera struct {
	devName string

	lock     sync.Mutex
	cancel   context.CancelFunc
	camera   *device.Device
	frames   <-chan []byte
	cfg      Config
	settings types.CameraSettings
	closed   bool
}

// Open checks the device node. Nothing is opened until Start.
func Open(devName string) (*Camera, error) {
	if devName == "" {
		devName = DefaultDevice
	}
	if _, err := os.Stat(devName); err != nil {
		return nil, fmt.Errorf("%w: %s", ErrNoDevice, err)
	}

	return &Camera{devName: devName}, nil
}

func (c *Camera) Configure(cfg Config) error {
	c.lock.Lock()
	defer c.lock.Unlock()
	if c.camera != nil {
		return ErrStarted
	}
	c.cfg = cfg

	return nil
}

func (c *Camera) open() error {
	if c.camera != nil {
		return ErrStarted
	}
	camera, err := device.Open(
		c.devName,
		device.WithBufferSize(1),
		device.WithFPS(DefaultFPS),
		device.WithPixFormat(v4l2.PixFormat{
			PixelFormat: v4l2.PixelFmtJPEG,
			Width:       uint32(c.cfg.Width),
			Height:      uint32(c.cfg.Height),
			Field:       v4l2.FieldNone,
		}),
	)
	if err != nil {
		return err
	}
	c.camera = camera

	return nil
}

func (c *Camera) Start(ctx context.Context) error {
	c.lock.Lock()
	defer c.lock.Unlock()
	if c.closed {
		return errors.New("camera closed")
	}
	logger.Infof("start camera %s in %d*%d", c.devName, c.cfg.Width, c.cfg.Height)
	if err := c.open(); err != nil {
		return err
	}

	newCtx, cancel := context.WithCancel(ctx)
	c.cancel = cancel
	if err := c.camera.Start(newCtx); err != nil {
		cancel()
		c.cancel = nil
		return err
	}
	c.frames = c.camera.GetOutput()

	for _, s := range ConfigSettings(c.cfg) {
		if err := c.applySetting(s); err != nil {
			logger.Warnf("set ctrl(%d) to %d, err: %s", s.ID, s.Value, err)
		}
	}

	return nil
}

// SetControls applies the writes of ctrl in order. Controls the driver does
// not expose are skipped with a warning; failed writes are returned.
func (c *Camera) SetControls(ctrl types.Controls) error {
	c.lock.Lock()
	defer c.lock.Unlock()
	if c.camera == nil {
		return ErrNotStarted
	}

	settings := ToSettings(ctrl)
	c.settings = Merge(c.settings, settings)
	var errs []error
	for _, s := range settings {
		if err := c.applySetting(s); err != nil {
			errs = append(errs, fmt.Errorf("set ctrl(%d) to %d: %w", s.ID, s.Value, err))
		}
	}

	return errors.Join(errs...)
}

func (c *Camera) applySetting(s types.CtrlSetting) error {
	if _, err := v4l2.GetControl(c.camera.Fd(), s.ID); err != nil {
		logger.Warnf("the device does not support control(%d)", s.ID)
		return nil
	}
	logger.Debugf("set ctrl(%d) to %d", s.ID, s.Value)

	return c.camera.SetControlValue(s.ID, s.Value)
}

func (c *Camera) CaptureFrame(ctx context.Context) ([]byte, error) {
	c.lock.Lock()
	frames := c.frames
	c.lock.Unlock()
	if frames == nil {
		return nil, ErrNotStarted
	}

	// Frames queued before the call were exposed with older controls.
drain:
	for {
		select {
		case _, ok := <-frames:
			if !ok {
				return nil, ErrStreamClosed
			}
		default:
			break drain
		}
	}

	ctx, cancel := context.WithTimeout(ctx, FrameTimeout)
	defer cancel()
	select {
	case frame, ok := <-frames:
		if !ok {
			return nil, ErrStreamClosed
		}
		if len(frame) == 0 {
			return nil, errors.New("empty frame")
		}
		return append([]byte(nil), frame...), nil
	case <-ctx.Done():
		return nil, fmt.Errorf("wait for frame: %w", ctx.Err())
	}
}

func (c *Camera) CaptureFile(ctx context.Context, path string) error {
	frame, err := c.CaptureFrame(ctx)
	if err != nil {
		return err
	}

	return os.WriteFile(path, frame, 0o644)
}

func (c *Camera) Metadata() (map[string]any, error) {
	c.lock.Lock()
	defer c.lock.Unlock()
	if c.camera == nil {
		return nil, ErrNotStarted
	}

	values := make(map[v4l2.CtrlID]int)
	for _, id := range knownCtrlID {
		ctrl, err := v4l2.GetControl(c.camera.Fd(), id)
		if err != nil {
			continue
		}
		values[ctrl.ID] = int(ctrl.Value)
	}

	return NormalizeMetadata(values), nil
}

// NormalizeMetadata maps raw control values onto the keys the metadata record
// uses.
func NormalizeMetadata(values map[v4l2.CtrlID]int) map[string]any {
	res := make(map[string]any)
	if v, ok := values[CtrlExposureAbsolute]; ok {
		res["ExposureTime"] = v * 100
	}
	if v, ok := values[CtrlISO]; ok {
		manual := values[CtrlISOAuto] == 0
		if iso := MenuIndexToISO(v); manual && iso > 0 {
			res["AnalogueGain"] = float64(iso) / 100
		}
	}
	if v, ok := values[CtrlWBTemperature]; ok && values[CtrlWhiteBalanceAuto] == 0 {
		res["ColourTemperature"] = v
	}
	if v, ok := values[CtrlExposureAuto]; ok {
		res["AeEnable"] = v == exposureAuto
	}
	if v, ok := values[CtrlWhiteBalanceAuto]; ok {
		res["AwbEnable"] = v != 0
	}
	if v, ok := values[CtrlExposureBias]; ok {
		res["ExposureValue"] = float64(v-biasZeroIndex) / 3
	}
	r, okR := values[CtrlRedBalance]
	b, okB := values[CtrlBlueBalance]
	if okR && okB {
		res["ColourGains"] = []float64{float64(r) / balanceScale, float64(b) / balanceScale}
	}

	return res
}

// Properties describes the device and every control it exposes. The device
// is opened briefly when the session has not started.
func (c *Camera) Properties() (map[string]any, error) {
	c.lock.Lock()
	defer c.lock.Unlock()

	camera := c.camera
	if camera == nil {
		var err error
		camera, err = device.Open(c.devName,
			device.WithBufferSize(1),
			device.WithPixFormat(v4l2.PixFormat{
				PixelFormat: v4l2.PixelFmtJPEG,
				Width:       uint32(320),
				Height:      uint32(240),
			}))
		if err != nil {
			return nil, err
		}
		defer camera.Close()
	}

	res := make(map[string]any)
	capability := camera.Capability()
	res["Driver"] = capability.Driver
	res["Card"] = capability.Card
	res["BusInfo"] = capability.BusInfo
	res["Version"] = capability.GetVersionInfo().String()

	if w, h, err := maxSize(camera); err == nil {
		res["PixelArraySize"] = []int{w, h}
	} else {
		logger.Warnf("get max size: %s", err)
	}

	ctrls, err := v4l2.QueryAllExtControls(camera.Fd())
	if err != nil {
		return nil, err
	}
	controls := make(map[string]any, len(ctrls))
	for _, ctrl := range ctrls {
		controls[ctrl.Name] = CtrlToString(ctrl)
	}
	res["Controls"] = controls

	return res, nil
}

func maxSize(camera *device.Device) (width, height int, err error) {
	sizes, err := v4l2.GetAllFormatFrameSizes(camera.Fd())
	if err != nil {
		return
	}
	for _, size := range sizes {
		if size.PixelFormat == v4l2.PixelFmtJPEG {
			width = int(size.Size.MaxWidth)
			height = int(size.Size.MaxHeight)

			return
		}
	}
	err = fmt.Errorf("unable to determine the maximum pixels of the camera")

	return
}

func (c *Camera) Stop() error {
	c.lock.Lock()
	defer c.lock.Unlock()
	if c.cancel != nil {
		// The stream goroutine stops the device once its context is done.
		c.cancel()
		// Wait for it so Close does not race with that Stop.
		time.Sleep(100 * time.Millisecond)
		c.cancel = nil
	}
	c.frames = nil

	return nil
}

func (c *Camera) Close() error {
	c.lock.Lock()
	defer c.lock.Unlock()
	c.closed = true
	if c.camera != nil {
		err := c.camera.Close()
		c.camera = nil
		return err
	}
	return nil
}
