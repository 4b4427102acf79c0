package capturecli

import (
	"context"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/urfave/cli/v2"

	"pi-capture/pkg/camera"
	"pi-capture/pkg/capture"
	"pi-capture/pkg/config"
	"pi-capture/pkg/storage"
	"pi-capture/pkg/types"
	"pi-capture/pkg/utils"
)

// Options replace the hardware and the clock in tests.
type Options struct {
	Opener camera.Opener
	Stdout io.Writer
	Sleep  func(ctx context.Context, d time.Duration) error
	Now    func() time.Time
	// ExeDir anchors the default output directory.
	ExeDir string
}

func (o Options) withDefaults() Options {
	if o.Opener == nil {
		o.Opener = camera.OpenV4L2
	}
	if o.Stdout == nil {
		o.Stdout = os.Stdout
	}
	if o.Sleep == nil {
		o.Sleep = capture.Sleep
	}
	if o.Now == nil {
		o.Now = time.Now
	}
	if o.ExeDir == "" {
		o.ExeDir = config.ExecutableDir()
	}
	return o
}

type variant struct {
	profile capture.Profile
	name    string
	usage   string
	title   string
}

var (
	adaptiveVariant = variant{
		profile: capture.Adaptive,
		name:    "capture",
		usage:   "Advanced Raspberry Pi Camera Capture with Adaptive Exposure",
		title:   "Advanced Raspberry Pi Camera Capture with Adaptive Exposure",
	}
	manualVariant = variant{
		profile: capture.Manual,
		name:    "capture-manual",
		usage:   "Raspberry Pi Camera Capture with manual controls",
		title:   "Advanced Raspberry Pi Camera Capture",
	}
	basicVariant = variant{
		profile: capture.Basic,
		name:    "capture-basic",
		usage:   "Raspberry Pi Camera Capture",
		title:   "Raspberry Pi Camera Capture",
	}
)

func NewAdaptiveApp(opts Options) *cli.App {
	return newCaptureApp(adaptiveVariant, opts)
}

func NewManualApp(opts Options) *cli.App {
	return newCaptureApp(manualVariant, opts)
}

func NewBasicApp(opts Options) *cli.App {
	return newCaptureApp(basicVariant, opts)
}

func commonFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{Name: "output-dir", EnvVars: []string{config.EnvOutputDir}, Usage: "Output directory for captured images (default: auto-detect or use ../image/incoming)"},
		&cli.StringFlag{Name: "device", EnvVars: []string{config.EnvDevice}, Usage: "V4L2 camera device"},
		&cli.StringFlag{Name: "config", EnvVars: []string{config.EnvConfig}, Usage: "YAML config file"},
	}
}

func controlFlags() []cli.Flag {
	return []cli.Flag{
		&cli.IntFlag{Name: "width", Value: 1920, Usage: "Image width"},
		&cli.IntFlag{Name: "height", Value: 1080, Usage: "Image height"},
		&cli.IntFlag{Name: "quality", Value: 85, Usage: "JPEG quality (1-100)"},
		&cli.IntFlag{Name: "exposure", Usage: "Manual exposure time (microseconds)"},
		&cli.IntFlag{Name: "iso", Usage: "ISO value (100-1600)"},
		&cli.StringFlag{Name: "wb", Value: string(types.WhiteBalanceAuto), Usage: "White balance mode: " + whiteBalanceChoices()},
		&cli.IntFlag{Name: "rotation", Usage: "Image rotation: 0, 90, 180 or 270"},
		&cli.BoolFlag{Name: "flip-h", Usage: "Flip horizontally"},
		&cli.BoolFlag{Name: "flip-v", Usage: "Flip vertically"},
		&cli.IntFlag{Name: "preview", Value: 2, Usage: "Preview time in seconds"},
		&cli.BoolFlag{Name: "list-props", Usage: "List camera properties"},
		&cli.StringFlag{Name: "ntp-server", EnvVars: []string{config.EnvNTPServer}, Usage: "Check the clock against this NTP server before capturing"},
	}
}

func adaptiveFlags() []cli.Flag {
	return []cli.Flag{
		&cli.BoolFlag{Name: "no-adaptive", Usage: "Disable adaptive exposure (use standard auto-exposure)"},
		&cli.BoolFlag{Name: "bracket", Usage: "Enable exposure bracketing (takes best of 3 exposures)"},
		&cli.BoolFlag{Name: "json-metadata", Usage: "Save metadata to separate JSON file instead of embedding in EXIF"},
	}
}

func whiteBalanceChoices() string {
	s := make([]string, len(types.WhiteBalanceModes))
	for i, m := range types.WhiteBalanceModes {
		s[i] = string(m)
	}
	return strings.Join(s, ", ")
}

func newCaptureApp(v variant, opts Options) *cli.App {
	opts = opts.withDefaults()

	flags := commonFlags()
	if v.profile.Manual {
		flags = append(flags, controlFlags()...)
	}
	if v.profile.Adaptive {
		flags = append(flags, adaptiveFlags()...)
	}

	app := &cli.App{
		Name:   v.name,
		Usage:  v.usage,
		Flags:  flags,
		Writer: opts.Stdout,
		Action: func(c *cli.Context) error {
			return runCapture(c, v, opts)
		},
	}
	// Errors are reported by main.
	app.ExitErrHandler = func(_ *cli.Context, _ error) {}
	return app
}

func runCapture(c *cli.Context, v variant, opts Options) error {
	w := c.App.Writer

	cfg, err := config.Load(c.String("config"))
	if err != nil {
		return cli.Exit(fmt.Sprintf("load config: %s", err), 1)
	}
	dir, fallback := config.ResolveOutputDir(c.String("output-dir"), cfg.OutputDir, opts.ExeDir)
	if fallback {
		fmt.Fprintf(w, "Warning: Using fallback directory: %s\n", dir)
		fmt.Fprintln(w, "Consider using --output-dir to specify the correct path")
	}
	device := c.String("device")
	if device == "" {
		device = cfg.Device
	}

	if c.Bool("list-props") {
		return listProperties(w, opts.Opener, device)
	}

	s, err := settingsFromFlags(c, v.profile, cfg)
	if err != nil {
		return cli.Exit(err.Error(), 1)
	}

	store, err := storage.New(dir)
	if err != nil {
		return cli.Exit(fmt.Sprintf("create output directory: %s", err), 1)
	}

	printBanner(w, v, s, dir)

	ntpServer := cfg.NTPServer
	if c.IsSet("ntp-server") {
		ntpServer = c.String("ntp-server")
	}
	runner := capture.NewRunner(store,
		capture.WithOpener(opts.Opener),
		capture.WithDevice(device),
		capture.WithClock(opts.Now),
		capture.WithSleep(opts.Sleep),
		capture.WithNTP(ntpServer, cfg.MaxClockOffset),
		capture.WithMinFree(cfg.MinFreeMB*1024*1024),
	)
	res, err := runner.Capture(c.Context, v.profile, s)
	if !Report(w, res, err) {
		return cli.Exit("image capture failed", 1)
	}

	return nil
}

func settingsFromFlags(c *cli.Context, p capture.Profile, cfg *config.Config) (types.CaptureSettings, error) {
	s := types.CaptureSettings{
		Width:        cfg.Capture.Width,
		Height:       cfg.Capture.Height,
		Quality:      cfg.Capture.Quality,
		WhiteBalance: types.WhiteBalanceAuto,
		Preview:      time.Duration(cfg.Capture.Preview) * time.Second,
	}
	if !p.Manual {
		return s, nil
	}

	intFlag := func(name string, dst *int) {
		if c.IsSet(name) {
			*dst = c.Int(name)
		}
	}
	intFlag("width", &s.Width)
	intFlag("height", &s.Height)
	intFlag("quality", &s.Quality)
	if c.IsSet("preview") {
		s.Preview = time.Duration(c.Int("preview")) * time.Second
	}
	if v := c.Int("exposure"); v > 0 {
		s.ExposureTime = types.Ptr(v)
	}
	if v := c.Int("iso"); v > 0 {
		s.ISO = types.Ptr(v)
	}
	wb, err := types.ParseWhiteBalance(c.String("wb"))
	if err != nil {
		return s, err
	}
	s.WhiteBalance = wb
	s.Rotation = c.Int("rotation")
	s.FlipH = c.Bool("flip-h")
	s.FlipV = c.Bool("flip-v")
	if p.Adaptive {
		s.AdaptiveExposure = !c.Bool("no-adaptive")
		s.ExposureBracketing = c.Bool("bracket")
		s.JSONMetadata = c.Bool("json-metadata")
	}

	return s, s.Validate()
}

func printBanner(w io.Writer, v variant, s types.CaptureSettings, dir string) {
	fmt.Fprintln(w, v.title)
	fmt.Fprintln(w, strings.Repeat("=", 60))
	fmt.Fprintf(w, "Resolution: %dx%d\n", s.Width, s.Height)
	fmt.Fprintf(w, "Quality: %d\n", s.Quality)
	if v.profile.Adaptive {
		fmt.Fprintf(w, "Adaptive exposure: %s\n", enabled(s.AdaptiveExposure))
		fmt.Fprintf(w, "Exposure bracketing: %s\n", enabled(s.ExposureBracketing))
	}
	fmt.Fprintf(w, "Incoming directory: %s\n", dir)
	fmt.Fprintln(w)
}

func enabled(b bool) string {
	if b {
		return "Enabled"
	}
	return "Disabled"
}

func listProperties(w io.Writer, open camera.Opener, device string) error {
	sess, err := open(device)
	if err != nil {
		return cli.Exit(fmt.Sprintf("Error listing camera properties: %s", err), 1)
	}
	defer func() {
		if err := sess.Close(); err != nil {
			utils.GetLogger().Warnf("close camera: %s", err)
		}
	}()

	props, err := sess.Properties()
	if err != nil {
		return cli.Exit(fmt.Sprintf("Error listing camera properties: %s", err), 1)
	}
	keys := make([]string, 0, len(props))
	for k := range props {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	fmt.Fprintln(w, "Camera Properties:")
	for _, k := range keys {
		if controls, ok := props[k].(map[string]any); ok {
			fmt.Fprintf(w, "  %s:\n", k)
			names := make([]string, 0, len(controls))
			for n := range controls {
				names = append(names, n)
			}
			sort.Strings(names)
			for _, n := range names {
				fmt.Fprintf(w, "    %v\n", controls[n])
			}
			continue
		}
		fmt.Fprintf(w, "  %s: %v\n", k, props[k])
	}

	return nil
}
