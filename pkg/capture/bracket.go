package capture

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"pi-capture/pkg/camera"
	"pi-capture/pkg/exposure"
	"pi-capture/pkg/storage"
	"pi-capture/pkg/types"
)

// bracket captures one frame per offset, copies the best scoring one to the
// capture path and removes every temporary frame.
func (r *Runner) bracket(ctx context.Context, sess camera.Session, c storage.Capture, res *Result) error {
	defer func() {
		for i := range exposure.BracketOffsets {
			if err := os.Remove(c.BracketPath(i)); err != nil && !errors.Is(err, os.ErrNotExist) {
				r.logger.Warnf("remove bracket %d: %s", i, err)
			}
		}
	}()

	var cands []types.BracketCandidate
	for i, offset := range exposure.BracketOffsets {
		if err := sess.SetControls(types.Controls{ExposureValue: types.Ptr(offset)}); err != nil {
			return err
		}
		if err := r.pause(ctx, BracketSettle); err != nil {
			return err
		}

		p := c.BracketPath(i)
		r.logger.Infof("capturing exposure %d/%d (compensation: %+.1f)", i+1, len(exposure.BracketOffsets), offset)
		if err := sess.CaptureFile(ctx, p); err != nil {
			return err
		}

		cand := types.BracketCandidate{Offset: offset, Path: p}
		img, err := exposure.Open(p)
		if err == nil {
			var st exposure.Stats
			if st, err = exposure.Measure(img); err == nil {
				exposure.Evaluate(&cand, st)
			}
		}
		if err != nil {
			r.warn(res, "could not analyze bracket %d: %s", i, err)
			continue
		}
		cands = append(cands, cand)
	}

	best := exposure.SelectBest(cands)
	if best < 0 {
		return ErrNoUsableBracket
	}
	if err := copyFile(cands[best].Path, c.Path); err != nil {
		return fmt.Errorf("copy best exposure: %w", err)
	}
	r.logger.Infof("selected best exposure: %s (score: %.1f)", cands[best].Path, cands[best].Score)
	res.Bracket = cands
	res.Selected = best

	return nil
}

// copyFile copies src to dst keeping its mode and modification time.
func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()
	info, err := in.Stat()
	if err != nil {
		return err
	}

	out, err := os.OpenFile(dst, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, info.Mode().Perm())
	if err != nil {
		return err
	}
	if _, err = io.Copy(out, in); err != nil {
		out.Close()
		return err
	}
	if err = out.Close(); err != nil {
		return err
	}

	return os.Chtimes(dst, info.ModTime(), info.ModTime())
}
