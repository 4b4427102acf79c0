package capturecli

import (
	"errors"
	"fmt"
	"io"

	"github.com/dustin/go-humanize"

	"pi-capture/pkg/capture"
)

// Report prints the outcome of a capture and reports whether it succeeded.
func Report(w io.Writer, res *capture.Result, err error) bool {
	if err != nil {
		if errors.Is(err, capture.ErrImageMissing) {
			fmt.Fprintln(w, "✗ Error: Image file not created!")
		} else {
			fmt.Fprintf(w, "✗ Error capturing image: %s\n", err)
		}
		fmt.Fprintln(w)
		fmt.Fprintln(w, "✗ Image capture failed!")
		return false
	}

	fmt.Fprintf(w, "✓ Image captured successfully: %s\n", res.Name)
	fmt.Fprintf(w, "✓ Saved to: %s\n", res.Path)
	fmt.Fprintf(w, "✓ File size: %s\n", humanize.Bytes(uint64(res.Size)))

	if md := res.Metadata; md != nil {
		if md.Lighting != nil {
			fmt.Fprintf(w, "✓ Lighting condition: %s\n", md.Lighting.Description)
		}
		if fa := md.FinalImage; fa != nil {
			if md.Lighting != nil {
				fmt.Fprintf(w, "✓ Final image brightness: %.1f\n", fa.Brightness)
			} else {
				fmt.Fprintf(w, "✓ Image dimensions: %dx%d\n", fa.Dimensions[0], fa.Dimensions[1])
				fmt.Fprintf(w, "✓ Color mode: %s\n", fa.Mode)
			}
		}
	}
	if len(res.Bracket) > 0 {
		fmt.Fprintf(w, "✓ Bracketing selected %+.1f EV of %d exposures\n",
			res.Bracket[res.Selected].Offset, len(res.Bracket))
	}

	if res.MetadataMode != capture.MetadataNone {
		fmt.Fprintln(w, res.MetadataMessage())
	}
	fmt.Fprintln(w)
	fmt.Fprintln(w, "✓ Image capture completed successfully!")
	return true
}
