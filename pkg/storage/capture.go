package storage

import (
	"fmt"
	"path/filepath"
	"strings"
	"time"
)

// Capture holds the file names of one capture.
type Capture struct {
	Timestamp string
	Name      string
	Path      string
	Dir       string
}

func NewCapture(dir string, t time.Time) Capture {
	ts := t.Format(TimestampLayout)
	name := CapturePrefix + ts + DefaultImageExt
	return Capture{
		Timestamp: ts,
		Name:      name,
		Path:      filepath.Join(dir, name),
		Dir:       dir,
	}
}

// BracketPath is the temporary file of bracket exposure i.
func (c Capture) BracketPath(i int) string {
	return filepath.Join(c.Dir, fmt.Sprintf("%s%s_bracket_%d%s", CapturePrefix, c.Timestamp, i, DefaultImageExt))
}

// IsCaptureName reports whether name is a final capture image, not a
// bracket temporary.
func IsCaptureName(name string) bool {
	if !strings.HasPrefix(name, CapturePrefix) || !strings.HasSuffix(name, DefaultImageExt) {
		return false
	}
	ts := strings.TrimSuffix(strings.TrimPrefix(name, CapturePrefix), DefaultImageExt)
	_, err := time.ParseInLocation(TimestampLayout, ts, time.Local)
	return err == nil
}
