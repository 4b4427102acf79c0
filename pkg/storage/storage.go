package storage

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/goccy/go-json"

	"pi-capture/pkg/types"
)

var ErrInvalidName = errors.New("invalid image name")

// Storage is the directory captures are written to.
type Storage struct {
	dir string
}

// ImagesInfo is kept in info.json and updated after each capture.
type ImagesInfo struct {
	Count       int    `json:"count"`
	LatestImage string `json:"latestImage"`

	UpdateAt time.Time `json:"updateAt"`
}

func New(dir string) (*Storage, error) {
	if dir == "" {
		return nil, fmt.Errorf("storage dir can not be empty")
	}
	if err := mkdirAll(dir); err != nil {
		return nil, err
	}

	return &Storage{dir: dir}, nil
}

func (s *Storage) Dir() string {
	return s.dir
}

// NewCapture names the files of a capture taken at t.
func (s *Storage) NewCapture(t time.Time) Capture {
	return NewCapture(s.dir, t)
}

// RecordCapture notes name as the latest image.
func (s *Storage) RecordCapture(name string) error {
	info, err := s.loadImageInfo()
	if err != nil {
		info = &ImagesInfo{}
	}
	info.Count++
	info.LatestImage = name

	return s.dumpImageInfo(info)
}

// ListImages returns the captured images sorted oldest first.
func (s *Storage) ListImages() ([]types.File, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return nil, err
	}
	var res []types.File
	for _, e := range entries {
		if e.IsDir() || !IsCaptureName(e.Name()) {
			continue
		}
		info, err := e.Info()
		if err != nil {
			continue
		}
		res = append(res, types.File{
			Name:    e.Name(),
			Size:    humanize.Bytes(uint64(info.Size())),
			ModTime: info.ModTime(),
		})
	}
	sort.Slice(res, func(i, j int) bool {
		return res[i].Name < res[j].Name
	})

	return res, nil
}

// LatestImage returns the newest capture name, or "" when there is none.
// Capture names sort by time, so the listing wins over a stale info.json.
func (s *Storage) LatestImage() (string, error) {
	files, err := s.ListImages()
	if err != nil {
		return "", err
	}
	if len(files) > 0 {
		return files[len(files)-1].Name, nil
	}
	info, err := s.loadImageInfo()
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return "", nil
		}
		return "", err
	}
	if _, err = os.Stat(filepath.Join(s.dir, info.LatestImage)); err != nil {
		return "", nil
	}

	return info.LatestImage, nil
}

// ImagePath resolves a capture name inside the directory. Names with path
// elements are rejected.
func (s *Storage) ImagePath(name string) (string, error) {
	if name == "" || name != filepath.Base(name) || strings.HasPrefix(name, ".") {
		return "", fmt.Errorf("%w: %q", ErrInvalidName, name)
	}
	p := filepath.Join(s.dir, name)
	if _, err := os.Stat(p); err != nil {
		return "", err
	}

	return p, nil
}

func (s *Storage) loadImageInfo() (*ImagesInfo, error) {
	data, err := os.ReadFile(s.infoPath())
	if err != nil {
		return nil, fmt.Errorf("read image info err: %w", err)
	}
	info := &ImagesInfo{}
	if err = json.Unmarshal(data, info); err != nil {
		return nil, fmt.Errorf("unmarshal image info err: %w", err)
	}

	return info, nil
}

func (s *Storage) dumpImageInfo(info *ImagesInfo) error {
	info.UpdateAt = time.Now()
	data, err := json.Marshal(info)
	if err != nil {
		return err
	}

	return os.WriteFile(s.infoPath(), data, DefaultFilePerm)
}

func (s *Storage) infoPath() string {
	return filepath.Join(s.dir, DefaultInfoFile)
}

func mkdirAll(dirs ...string) error {
	for _, d := range dirs {
		err := os.MkdirAll(d, DefaultDirPerm)
		if err != nil {
			return err
		}
	}
	return nil
}
