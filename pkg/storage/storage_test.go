package storage

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewCapture(t *testing.T) {
	ts := time.Date(2025, 3, 4, 5, 6, 7, 0, time.Local)
	c := NewCapture("/data", ts)
	assert.Equal(t, "20250304_050607", c.Timestamp)
	assert.Equal(t, "captured_20250304_050607.jpg", c.Name)
	assert.Equal(t, "/data/captured_20250304_050607.jpg", c.Path)
	assert.Equal(t, "/data/captured_20250304_050607_bracket_2.jpg", c.BracketPath(2))
}

func TestIsCaptureName(t *testing.T) {
	assert.True(t, IsCaptureName("captured_20250304_050607.jpg"))
	assert.False(t, IsCaptureName("captured_20250304_050607_bracket_0.jpg"))
	assert.False(t, IsCaptureName("captured_20250304_050607_metadata.json"))
	assert.False(t, IsCaptureName("other.jpg"))
}

func TestListAndLatest(t *testing.T) {
	dir := t.TempDir()
	s, err := New(dir)
	require.NoError(t, err)

	latest, err := s.LatestImage()
	require.NoError(t, err)
	assert.Empty(t, latest)

	for _, name := range []string{
		"captured_20250304_050607.jpg",
		"captured_20250101_000000.jpg",
		"captured_20250304_050607_metadata.json",
		"captured_20250304_050607_bracket_1.jpg",
		"notes.txt",
	} {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), make([]byte, 2048), DefaultFilePerm))
	}

	files, err := s.ListImages()
	require.NoError(t, err)
	require.Len(t, files, 2)
	assert.Equal(t, "captured_20250101_000000.jpg", files[0].Name)
	assert.Equal(t, "2.0 kB", files[0].Size)

	latest, err = s.LatestImage()
	require.NoError(t, err)
	assert.Equal(t, "captured_20250304_050607.jpg", latest)
}

func TestRecordCapture(t *testing.T) {
	dir := t.TempDir()
	s, err := New(dir)
	require.NoError(t, err)

	require.NoError(t, s.RecordCapture("captured_20250304_050607.jpg"))
	require.NoError(t, s.RecordCapture("captured_20250304_060000.jpg"))
	info, err := s.loadImageInfo()
	require.NoError(t, err)
	assert.Equal(t, 2, info.Count)
	assert.Equal(t, "captured_20250304_060000.jpg", info.LatestImage)
}

func TestImagePath(t *testing.T) {
	dir := t.TempDir()
	s, err := New(dir)
	require.NoError(t, err)
	name := "captured_20250304_050607.jpg"
	require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte("x"), DefaultFilePerm))

	p, err := s.ImagePath(name)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, name), p)

	_, err = s.ImagePath("../etc/passwd")
	assert.ErrorIs(t, err, ErrInvalidName)
	_, err = s.ImagePath(".hidden")
	assert.ErrorIs(t, err, ErrInvalidName)
	_, err = s.ImagePath("captured_20990101_000000.jpg")
	assert.ErrorIs(t, err, os.ErrNotExist)
}

func TestNewEmptyDir(t *testing.T) {
	_, err := New("")
	assert.Error(t, err)
}
