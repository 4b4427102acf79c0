package capturecli

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/urfave/cli/v2"

	"pi-capture/pkg/config"
	"pi-capture/pkg/storage"
	"pi-capture/pkg/video"
)

func NewTimelapseApp(w io.Writer, now func() time.Time) *cli.App {
	if w == nil {
		w = os.Stdout
	}
	if now == nil {
		now = time.Now
	}
	app := &cli.App{
		Name:   "timelapse",
		Usage:  "Assemble captured images into an MJPEG timelapse",
		Writer: w,
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "output-dir", EnvVars: []string{config.EnvOutputDir}, Usage: "Directory holding the captured images"},
			&cli.StringFlag{Name: "config", EnvVars: []string{config.EnvConfig}, Usage: "YAML config file"},
			&cli.StringFlag{Name: "out", Usage: "Video file (default: <output-dir>/timelapse_<timestamp>.avi)"},
			&cli.IntFlag{Name: "fps", Value: video.DefaultFPS, Usage: "Frames per second"},
			&cli.IntFlag{Name: "last", Usage: "Only use the newest N images"},
		},
		Action: func(c *cli.Context) error {
			cfg, err := config.Load(c.String("config"))
			if err != nil {
				return cli.Exit(fmt.Sprintf("load config: %s", err), 1)
			}
			dir, _ := config.ResolveOutputDir(c.String("output-dir"), cfg.OutputDir, config.ExecutableDir())
			store, err := storage.New(dir)
			if err != nil {
				return cli.Exit(err.Error(), 1)
			}
			images, err := store.ListImages()
			if err != nil {
				return cli.Exit(fmt.Sprintf("list images: %s", err), 1)
			}
			if n := c.Int("last"); n > 0 && n < len(images) {
				images = images[len(images)-n:]
			}
			if len(images) == 0 {
				return cli.Exit(fmt.Sprintf("✗ No images in %s", dir), 1)
			}

			out := c.String("out")
			if out == "" {
				out = filepath.Join(dir, "timelapse_"+now().Format(storage.TimestampLayout)+storage.DefaultVideoExt)
			}
			files := make([]string, len(images))
			for i, f := range images {
				files[i] = filepath.Join(dir, f.Name)
			}

			n, err := video.Build(out, files, c.Int("fps"))
			if err != nil {
				return cli.Exit(fmt.Sprintf("✗ Error building timelapse: %s", err), 1)
			}
			size := "unknown size"
			if info, err := os.Stat(out); err == nil {
				size = humanize.Bytes(uint64(info.Size()))
			}
			fmt.Fprintf(c.App.Writer, "✓ Timelapse written: %s (%d frames, %s)\n", out, n, size)

			return nil
		},
	}
	app.ExitErrHandler = func(_ *cli.Context, _ error) {}
	return app
}
