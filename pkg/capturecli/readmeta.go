package capturecli

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/goccy/go-json"
	"github.com/urfave/cli/v2"

	"pi-capture/pkg/metadata"
	"pi-capture/pkg/types"
)

func NewReadmetaApp(w io.Writer) *cli.App {
	if w == nil {
		w = os.Stdout
	}
	app := &cli.App{
		Name:      "readmeta",
		Usage:     "Read capture metadata from an image",
		ArgsUsage: "<image>",
		Writer:    w,
		Flags: []cli.Flag{
			&cli.BoolFlag{Name: "json-only", Usage: "Only read the JSON sidecar"},
			&cli.BoolFlag{Name: "exif-only", Usage: "Only read the EXIF data"},
			&cli.BoolFlag{Name: "raw", Usage: "Also print the raw JSON"},
		},
		Action: runReadmeta,
	}
	app.ExitErrHandler = func(_ *cli.Context, _ error) {}
	return app
}

func runReadmeta(c *cli.Context) error {
	if c.NArg() != 1 {
		return cli.Exit("usage: readmeta <image> [--json-only|--exif-only] [--raw]", 1)
	}
	if c.Bool("json-only") && c.Bool("exif-only") {
		return cli.Exit("--json-only and --exif-only can not be combined", 1)
	}

	w := c.App.Writer
	image := c.Args().First()
	if _, err := os.Stat(image); err != nil {
		return cli.Exit(fmt.Sprintf("Image file not found: %s", image), 1)
	}

	var (
		rec *metadata.Record
		err error
	)
	switch {
	case c.Bool("json-only"):
		rec, err = metadata.ReadSidecar(image)
	case c.Bool("exif-only"):
		rec, err = metadata.ReadEmbedded(image)
	default:
		rec, err = metadata.ReadEmbedded(image)
		if err != nil {
			fmt.Fprintf(w, "No embedded metadata found: %s\n", err)
			fmt.Fprintln(w, "Trying JSON metadata...")
			fmt.Fprintln(w)
			rec, err = metadata.ReadSidecar(image)
		}
	}
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return cli.Exit(fmt.Sprintf("No metadata found for %s", filepath.Base(image)), 1)
		}
		return cli.Exit(fmt.Sprintf("Error reading metadata: %s", err), 1)
	}

	PrintRecord(w, image, rec)

	// A sidecar is always dumped in full, so --raw adds nothing to it.
	switch {
	case rec.Source == metadata.SourceSidecar:
		printRaw(w, "Full JSON Metadata:", rec.Raw)
	case c.Bool("raw"):
		printRaw(w, "Raw JSON output:", rec.Raw)
	}

	return nil
}

func printRaw(w io.Writer, title string, raw []byte) {
	fmt.Fprintln(w)
	fmt.Fprintln(w, title)
	fmt.Fprintln(w, strings.Repeat("=", 50))
	fmt.Fprintln(w, indentJSON(raw))
}

// PrintRecord writes a human readable summary of rec.
func PrintRecord(w io.Writer, image string, rec *metadata.Record) {
	if rec.Source == metadata.SourceSidecar {
		fmt.Fprintf(w, "JSON Metadata: %s\n", filepath.Base(rec.Path))
	} else {
		fmt.Fprintf(w, "Image: %s\n", filepath.Base(image))
	}
	fmt.Fprintln(w, strings.Repeat("=", 50))
	if info, err := os.Stat(image); err == nil {
		fmt.Fprintf(w, "File size: %s\n", humanize.Bytes(uint64(info.Size())))
	}

	if t := rec.Tags; t != nil {
		fmt.Fprintln(w)
		fmt.Fprintln(w, "Standard EXIF Data:")
		fmt.Fprintln(w, strings.Repeat("-", 20))
		printField(w, "Description", t.Description)
		printField(w, "Software", t.Software)
		printField(w, "Exposure", t.ExposureString())
		if t.ISO > 0 {
			fmt.Fprintf(w, "ISO: %d\n", t.ISO)
		}
		if t.WhiteBalance != nil {
			wb := "Auto"
			if *t.WhiteBalance == 1 {
				wb = "Manual"
			}
			fmt.Fprintf(w, "White balance: %s\n", wb)
		}
	}

	fmt.Fprintln(w)
	fmt.Fprintln(w, "Embedded Metadata:")
	fmt.Fprintln(w, strings.Repeat("-", 20))
	printCaptureMetadata(w, rec.Metadata)
}

func printCaptureMetadata(w io.Writer, md *types.CaptureMetadata) {
	printField(w, "Timestamp", md.Timestamp)
	printField(w, "Filename", md.Filename)

	s := md.Settings
	fmt.Fprintf(w, "Resolution: %dx%d\n", s.Width, s.Height)
	fmt.Fprintf(w, "Quality: %d\n", s.Quality)
	fmt.Fprintf(w, "Adaptive Exposure: %t\n", s.AdaptiveExposure)
	if s.ExposureBracketing {
		fmt.Fprintln(w, "Exposure Bracketing: true")
	}

	if l := md.Lighting; l != nil {
		fmt.Fprintf(w, "Lighting: %s (brightness: %.1f)\n", l.Description, l.Brightness)
		fmt.Fprintf(w, "Dark pixels: %.1f%%\n", l.DarkPixelsPercent)
		fmt.Fprintf(w, "Bright pixels: %.1f%%\n", l.BrightPixelsPercent)
	}
	if fa := md.FinalImage; fa != nil {
		fmt.Fprintf(w, "Final brightness: %.1f\n", fa.Brightness)
	}

	cam := md.Camera
	printCamera(w, cam, "ExposureTime", "Camera exposure: %v μs\n")
	printCamera(w, cam, "AnalogueGain", "Analogue gain: %v\n")
	printCamera(w, cam, "ColourTemperature", "Color temperature: %vK\n")
	if v, ok := cam["Lux"]; ok {
		fmt.Fprintf(w, "Lux: %v\n", v)
	} else {
		fmt.Fprintln(w, "Lux: N/A")
	}

	if ck := md.Clock; ck != nil {
		fmt.Fprintf(w, "Clock offset: %.1f ms (%s)\n", ck.OffsetMs, ck.Server)
	}
	if sys := md.System; sys != nil {
		fmt.Fprintf(w, "Disk free: %s\n", humanize.Bytes(sys.DiskFree))
	}
}

func printField(w io.Writer, name, value string) {
	if value != "" {
		fmt.Fprintf(w, "%s: %s\n", name, value)
	}
}

func printCamera(w io.Writer, cam map[string]any, key, format string) {
	if v, ok := cam[key]; ok {
		fmt.Fprintf(w, format, v)
	}
}

func indentJSON(raw []byte) string {
	var buf bytes.Buffer
	if err := json.Indent(&buf, raw, "", "  "); err != nil {
		return string(raw)
	}
	return buf.String()
}
