package capture

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/dustin/go-humanize"
	"go.uber.org/zap"

	"pi-capture/pkg/camera"
	"pi-capture/pkg/exposure"
	"pi-capture/pkg/metadata"
	"pi-capture/pkg/storage"
	"pi-capture/pkg/types"
	"pi-capture/pkg/utils"
	"pi-capture/pkg/utils/ps"
)

// BracketSettle is the wait after each bracket compensation change.
const BracketSettle = 500 * time.Millisecond

// Result describes a finished capture. Metadata problems do not fail a
// capture; they are reported in MetadataErr and Warnings.
type Result struct {
	Name string
	Path string
	Size int64

	Metadata     *types.CaptureMetadata
	MetadataMode MetadataMode
	// MetadataPath is the sidecar or, for EXIF, the image itself.
	MetadataPath string
	MetadataErr  error

	// Controls is the effective control set: every set the session
	// accepted, later ones on top.
	Controls types.Controls

	Bracket  []types.BracketCandidate
	Selected int

	Warnings []string
}

// MetadataMessage describes where the metadata ended up.
func (res *Result) MetadataMessage() string {
	switch res.MetadataMode {
	case MetadataSidecar:
		if res.MetadataErr != nil {
			return fmt.Sprintf("⚠ Metadata could not be saved: %s", res.MetadataErr)
		}
		return fmt.Sprintf("✓ Metadata saved: %s", filepath.Base(res.MetadataPath))
	case MetadataEXIF:
		if res.MetadataErr != nil {
			return "⚠ Metadata could not be embedded (image still captured)"
		}
		return "✓ Metadata embedded in EXIF data"
	}
	return ""
}

type Runner struct {
	store     *storage.Storage
	open      camera.Opener
	device    string
	now       func() time.Time
	sleep     func(ctx context.Context, d time.Duration) error
	ntpServer string
	maxOffset time.Duration
	minFree   uint64
	clock     func(server string) (time.Duration, error)
	snapshot  func(dir string) (*types.SystemSnapshot, error)
	logger    *zap.SugaredLogger
}

type Option func(*Runner)

func WithOpener(open camera.Opener) Option {
	return func(r *Runner) { r.open = open }
}

func WithDevice(device string) Option {
	return func(r *Runner) { r.device = device }
}

func WithClock(now func() time.Time) Option {
	return func(r *Runner) { r.now = now }
}

func WithSleep(sleep func(ctx context.Context, d time.Duration) error) Option {
	return func(r *Runner) { r.sleep = sleep }
}

// WithNTP enables the clock check against server.
func WithNTP(server string, maxOffset time.Duration) Option {
	return func(r *Runner) {
		r.ntpServer = server
		r.maxOffset = maxOffset
	}
}

func WithClockQuery(query func(server string) (time.Duration, error)) Option {
	return func(r *Runner) { r.clock = query }
}

func WithSystemSnapshot(snapshot func(dir string) (*types.SystemSnapshot, error)) Option {
	return func(r *Runner) { r.snapshot = snapshot }
}

// WithMinFree sets the free space in bytes below which a capture warns.
func WithMinFree(bytes uint64) Option {
	return func(r *Runner) { r.minFree = bytes }
}

func WithLogger(l *zap.SugaredLogger) Option {
	return func(r *Runner) { r.logger = l }
}

func NewRunner(store *storage.Storage, opts ...Option) *Runner {
	r := &Runner{
		store:     store,
		open:      camera.OpenV4L2,
		device:    camera.DefaultDevice,
		now:       time.Now,
		sleep:     Sleep,
		maxOffset: time.Second,
		clock:     utils.ClockOffset,
		snapshot:  ps.Snapshot,
		logger:    utils.GetLogger(),
	}
	for _, o := range opts {
		o(r)
	}
	return r
}

// Sleep waits for d or until ctx is done.
func Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (r *Runner) pause(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	return r.sleep(ctx, d)
}

func (r *Runner) warn(res *Result, format string, args ...any) {
	msg := fmt.Sprintf(format, args...)
	r.logger.Warn(msg)
	res.Warnings = append(res.Warnings, msg)
}

// Capture takes one image with profile p. The session is stopped and closed
// on every path.
func (r *Runner) Capture(ctx context.Context, p Profile, s types.CaptureSettings) (*Result, error) {
	res := &Result{Selected: -1, MetadataMode: p.MetadataMode(s)}

	clock := r.checkClock(res)
	c := r.store.NewCapture(r.now())
	res.Name, res.Path = c.Name, c.Path

	r.logger.Infof("initializing camera %s", r.device)
	sess, err := r.open(r.device)
	if err != nil {
		return res, stepErr(StageOpen, err)
	}
	stopped := false
	defer func() {
		if !stopped {
			if err := sess.Stop(); err != nil {
				r.logger.Warnf("stop camera: %s", err)
			}
		}
		if err := sess.Close(); err != nil {
			r.logger.Warnf("close camera: %s", err)
		}
	}()

	err = sess.Configure(camera.Config{
		Width:    s.Width,
		Height:   s.Height,
		Quality:  s.Quality,
		Rotation: s.Rotation,
		FlipH:    s.FlipH,
		FlipV:    s.FlipV,
	})
	if err != nil {
		return res, stepErr(StageConfigure, err)
	}

	r.logger.Info("starting camera")
	if err = sess.Start(ctx); err != nil {
		return res, stepErr(StageStart, err)
	}
	if err = r.pause(ctx, p.WarmUp); err != nil {
		return res, stepErr(StageStart, err)
	}

	var lighting *types.LightingAssessment
	adapted := false
	if p.Adaptive && s.AdaptiveExposure {
		r.logger.Info("analyzing lighting conditions")
		a := r.assessLighting(ctx, sess, res)
		lighting = &a
		r.logger.Infof("detected lighting: %s (brightness: %.1f)", a.Description, a.Brightness)

		ctrl := exposure.AdaptiveControls(a, exposure.BaseISO(s))
		if err := sess.SetControls(ctrl); err != nil {
			r.warn(res, "could not apply adaptive controls, using defaults: %s", err)
		} else {
			res.Controls = res.Controls.Merge(ctrl)
			r.logger.Infof("applied adaptive controls for %s conditions: %s", a.Condition, ctrl)
		}
		adapted = true
		if err = r.pause(ctx, p.Settle); err != nil {
			return res, stepErr(StageControls, err)
		}
	}

	if p.Manual {
		manual := exposure.ManualControls(s, p.WhiteBalanceGains)
		if !manual.IsEmpty() {
			if err = sess.SetControls(manual); err != nil {
				return res, stepErr(StageControls, err)
			}
			res.Controls = res.Controls.Merge(manual)
			r.logger.Infof("applied manual controls, effective set: %s", res.Controls)
		}
	}

	if d := p.RemainingPreview(s, adapted); d > 0 {
		r.logger.Infof("final preview for %s", d)
		if err = r.pause(ctx, d); err != nil {
			return res, stepErr(StageCapture, err)
		}
	}

	var camMeta map[string]any
	if res.MetadataMode != MetadataNone {
		if camMeta, err = sess.Metadata(); err != nil {
			r.warn(res, "could not read camera metadata: %s", err)
			camMeta = map[string]any{"error": fmt.Sprintf("metadata query failed: %s", err)}
		}
	}

	if p.Bracketing && s.ExposureBracketing && !hasManualExposure(s) {
		r.logger.Info("capturing bracketed exposures")
		if err = r.bracket(ctx, sess, c, res); err != nil {
			return res, stepErr(StageBracket, err)
		}
	} else {
		r.logger.Infof("capturing image: %s", c.Name)
		if err = sess.CaptureFile(ctx, c.Path); err != nil {
			return res, stepErr(StageCapture, err)
		}
	}

	stopped = true
	if err := sess.Stop(); err != nil {
		r.logger.Warnf("stop camera: %s", err)
	}

	if res.MetadataMode != MetadataNone {
		md := &types.CaptureMetadata{
			Timestamp: c.Timestamp,
			Filename:  c.Name,
			Settings:  s,
			Lighting:  lighting,
			Camera:    metadata.ConvertCameraMetadata(camMeta, p.StringifyCamera),
			Clock:     clock,
			System:    r.systemSnapshot(res),
		}
		md.FinalImage = r.finalAnalysis(c.Path, res)
		res.Metadata = md
		r.persist(res, md)
	}

	info, err := os.Stat(c.Path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			err = ErrImageMissing
		}
		return res, stepErr(StageVerify, err)
	}
	res.Size = info.Size()

	if err := r.store.RecordCapture(c.Name); err != nil {
		r.logger.Warnf("record capture: %s", err)
	}

	return res, nil
}

func hasManualExposure(s types.CaptureSettings) bool {
	return s.ExposureTime != nil && *s.ExposureTime > 0
}

// assessLighting falls back to the neutral assessment when the preview frame
// can not be analysed.
func (r *Runner) assessLighting(ctx context.Context, sess camera.Session, res *Result) types.LightingAssessment {
	a, err := func() (*types.LightingAssessment, error) {
		frame, err := sess.CaptureFrame(ctx)
		if err != nil {
			return nil, err
		}
		img, err := exposure.Decode(frame)
		if err != nil {
			return nil, fmt.Errorf("decode preview: %w", err)
		}
		return exposure.Analyze(img)
	}()
	if err != nil {
		r.warn(res, "could not analyze lighting conditions: %s", err)
		return exposure.Neutral()
	}
	return *a
}

func (r *Runner) finalAnalysis(path string, res *Result) *types.ImageAnalysis {
	img, err := exposure.Open(path)
	if err != nil {
		r.logger.Debugf("final analysis: %s", err)
		return nil
	}
	st, err := exposure.Measure(img)
	if err != nil {
		r.logger.Debugf("final analysis: %s", err)
		return nil
	}

	return &types.ImageAnalysis{
		Brightness: st.Brightness,
		Dimensions: [2]int{st.Width, st.Height},
		Mode:       exposure.ColorMode(img),
	}
}

func (r *Runner) persist(res *Result, md *types.CaptureMetadata) {
	switch res.MetadataMode {
	case MetadataSidecar:
		p, err := metadata.WriteSidecar(res.Path, md)
		if err != nil {
			res.MetadataErr = err
			r.warn(res, "could not save metadata: %s", err)
			return
		}
		res.MetadataPath = p
	case MetadataEXIF:
		r.logger.Info("embedding metadata into EXIF")
		if err := metadata.Embed(res.Path, md); err != nil {
			res.MetadataErr = err
			r.warn(res, "could not embed metadata in EXIF: %s", err)
			return
		}
		res.MetadataPath = res.Path
	}
}

func (r *Runner) checkClock(res *Result) *types.ClockCheck {
	if r.ntpServer == "" {
		return nil
	}
	offset, err := r.clock(r.ntpServer)
	if err != nil {
		r.warn(res, "clock check against %s failed: %s", r.ntpServer, err)
		return nil
	}
	if offset > r.maxOffset || offset < -r.maxOffset {
		r.warn(res, "system clock is off by %s", offset)
	}

	return &types.ClockCheck{
		Server:   r.ntpServer,
		OffsetMs: float64(offset) / float64(time.Millisecond),
	}
}

func (r *Runner) systemSnapshot(res *Result) *types.SystemSnapshot {
	if r.snapshot == nil {
		return nil
	}
	snap, err := r.snapshot(r.store.Dir())
	if err != nil {
		r.logger.Warnf("system snapshot: %s", err)
		return nil
	}
	if r.minFree > 0 && snap.DiskFree < r.minFree {
		r.warn(res, "low disk space: %s free", humanize.Bytes(snap.DiskFree))
	}
	return snap
}
