package server

import (
	"bytes"
	"context"
	"image"
	"image/jpeg"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/goccy/go-json"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pi-capture/pkg/camera"
	"pi-capture/pkg/capture"
	"pi-capture/pkg/config"
	"pi-capture/pkg/schedule"
	"pi-capture/pkg/storage"
	"pi-capture/pkg/types"
	"pi-capture/pkg/webdav"
)

var testTime = time.Date(2025, 5, 6, 7, 8, 9, 0, time.Local)

const testName = "captured_20250506_070809.jpg"

func grayJPEG(t *testing.T, v uint8) []byte {
	t.Helper()
	img := image.NewGray(image.Rect(0, 0, 32, 24))
	for i := range img.Pix {
		img.Pix[i] = v
	}
	var buf bytes.Buffer
	require.NoError(t, jpeg.Encode(&buf, img, nil))
	return buf.Bytes()
}

type fakeSession struct {
	frame []byte
	// block, when set, holds CaptureFile until closed.
	block   chan struct{}
	entered chan struct{}
}

func (f *fakeSession) Configure(camera.Config) error { return nil }

func (f *fakeSession) Start(context.Context) error { return nil }

func (f *fakeSession) SetControls(types.Controls) error { return nil }

func (f *fakeSession) Stop() error { return nil }

func (f *fakeSession) Close() error { return nil }

func (f *fakeSession) Metadata() (map[string]any, error) {
	return map[string]any{"ExposureTime": 10000}, nil
}

func (f *fakeSession) Properties() (map[string]any, error) {
	return map[string]any{"Driver": "fake"}, nil
}

func (f *fakeSession) CaptureFrame(context.Context) ([]byte, error) {
	return f.frame, nil
}

func (f *fakeSession) CaptureFile(_ context.Context, path string) error {
	if f.block != nil {
		close(f.entered)
		<-f.block
	}
	return os.WriteFile(path, f.frame, 0o644)
}

type harness struct {
	srv    *Server
	dir    string
	router *gin.Engine
	sess   *fakeSession
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	gin.SetMode(gin.TestMode)

	dir := t.TempDir()
	store, err := storage.New(dir)
	require.NoError(t, err)

	h := &harness{dir: dir, sess: &fakeSession{frame: grayJPEG(t, 120)}}
	cfg := config.DefaultConfig()
	cfg.MinFreeMB = 0
	share := webdav.New(context.Background(), 0, dir)

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	srv := New(ctx, cfg, store, share,
		WithOpener(func(string) (camera.Session, error) { return h.sess, nil }),
		WithRunnerOptions(
			capture.WithClock(func() time.Time { return testTime }),
			capture.WithSleep(func(context.Context, time.Duration) error { return nil }),
		),
	)
	h.srv = srv
	h.router, err = srv.Router("")
	require.NoError(t, err)
	return h
}

func (h *harness) do(method, target, body string) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	h.router.ServeHTTP(w, req)
	return w
}

type envelope struct {
	Status string          `json:"status"`
	Data   json.RawMessage `json:"data"`
}

func decode(t *testing.T, w *httptest.ResponseRecorder, v any) {
	t.Helper()
	var env envelope
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &env))
	assert.Equal(t, "success", env.Status)
	require.NoError(t, json.Unmarshal(env.Data, v))
}

func TestCaptureAndBrowse(t *testing.T) {
	h := newHarness(t)

	w := h.do(http.MethodPost, "/api/capture", `{"profile":"adaptive","json_metadata":true,"preview":0}`)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var res captureResponse
	decode(t, w, &res)
	assert.Equal(t, testName, res.Name)
	assert.Equal(t, capture.MetadataSidecar, res.MetadataMode)
	require.NotNil(t, res.Metadata)
	require.NotNil(t, res.Metadata.Lighting)
	assert.Equal(t, types.ConditionNormal, res.Metadata.Lighting.Condition)
	assert.FileExists(t, filepath.Join(h.dir, "captured_20250506_070809_metadata.json"))

	w = h.do(http.MethodGet, "/api/images", "")
	require.Equal(t, http.StatusOK, w.Code)
	var files []types.File
	decode(t, w, &files)
	require.Len(t, files, 1)
	assert.Equal(t, testName, files[0].Name)

	w = h.do(http.MethodGet, "/api/images/latest", "")
	require.Equal(t, http.StatusOK, w.Code)
	var latest string
	decode(t, w, &latest)
	assert.Equal(t, testName, latest)

	w = h.do(http.MethodGet, "/api/images/"+testName, "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, h.sess.frame, w.Body.Bytes())

	w = h.do(http.MethodGet, "/api/images/"+testName+"/metadata", "")
	require.Equal(t, http.StatusOK, w.Code)
	var md struct {
		Source   string                `json:"source"`
		Metadata types.CaptureMetadata `json:"metadata"`
	}
	decode(t, w, &md)
	assert.Equal(t, "sidecar", md.Source)
	assert.Equal(t, testName, md.Metadata.Filename)
}

func TestCaptureEmptyBodyEmbedsExif(t *testing.T) {
	h := newHarness(t)

	w := h.do(http.MethodPost, "/api/capture", "")
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var res captureResponse
	decode(t, w, &res)
	assert.Equal(t, capture.MetadataEXIF, res.MetadataMode)
	assert.Equal(t, "✓ Metadata embedded in EXIF data", res.Message)

	w = h.do(http.MethodGet, "/api/images/"+testName+"/metadata", "")
	require.Equal(t, http.StatusOK, w.Code)
	var md struct {
		Source string `json:"source"`
	}
	decode(t, w, &md)
	assert.Equal(t, "exif", md.Source)
}

func TestCaptureBasic(t *testing.T) {
	h := newHarness(t)

	w := h.do(http.MethodPost, "/api/capture", `{"profile":"basic"}`)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var res captureResponse
	decode(t, w, &res)
	assert.Equal(t, capture.MetadataNone, res.MetadataMode)
	assert.Nil(t, res.Metadata)
}

func TestCaptureBadRequests(t *testing.T) {
	h := newHarness(t)

	assert.Equal(t, http.StatusBadRequest, h.do(http.MethodPost, "/api/capture", `{"profile":"hdr"}`).Code)
	assert.Equal(t, http.StatusBadRequest, h.do(http.MethodPost, "/api/capture", `{"white_balance":"neon"}`).Code)
	assert.Equal(t, http.StatusBadRequest, h.do(http.MethodPost, "/api/capture", `{`).Code)

	for _, body := range []string{
		`{"width":-5}`,
		`{"width":-5,"height":0,"quality":500,"rotation":45}`,
		`{"quality":0}`,
		`{"rotation":45}`,
		`{"iso":-100}`,
		`{"preview":-1}`,
	} {
		w := h.do(http.MethodPost, "/api/capture", body)
		assert.Equal(t, http.StatusBadRequest, w.Code, body)
		assert.Contains(t, w.Body.String(), `"status":"error"`, body)
	}

	entries, err := os.ReadDir(h.dir)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestCaptureBusy(t *testing.T) {
	h := newHarness(t)
	h.sess.block = make(chan struct{})
	h.sess.entered = make(chan struct{})

	var wg sync.WaitGroup
	wg.Add(1)
	var first *httptest.ResponseRecorder
	go func() {
		defer wg.Done()
		first = h.do(http.MethodPost, "/api/capture", `{"profile":"basic"}`)
	}()
	<-h.sess.entered

	assert.Equal(t, http.StatusConflict, h.do(http.MethodPost, "/api/capture", `{"profile":"basic"}`).Code)
	assert.Equal(t, http.StatusConflict, h.do(http.MethodGet, "/api/device/properties", "").Code)

	close(h.sess.block)
	wg.Wait()
	assert.Equal(t, http.StatusOK, first.Code)
}

func TestImageErrors(t *testing.T) {
	h := newHarness(t)

	assert.Equal(t, http.StatusNotFound, h.do(http.MethodGet, "/api/images/latest", "").Code)
	assert.Equal(t, http.StatusNotFound, h.do(http.MethodGet, "/api/images/"+testName, "").Code)
	assert.Equal(t, http.StatusBadRequest, h.do(http.MethodGet, "/api/images/.info.json", "").Code)

	require.NoError(t, os.WriteFile(filepath.Join(h.dir, testName), grayJPEG(t, 10), 0o644))
	assert.Equal(t, http.StatusNotFound, h.do(http.MethodGet, "/api/images/"+testName+"/metadata", "").Code)
}

func TestDevice(t *testing.T) {
	h := newHarness(t)

	w := h.do(http.MethodGet, "/api/device/properties", "")
	require.Equal(t, http.StatusOK, w.Code)
	var props map[string]any
	decode(t, w, &props)
	assert.Equal(t, "fake", props["Driver"])

	w = h.do(http.MethodGet, "/api/device/snapshot", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "image/jpeg", w.Header().Get("Content-Type"))
	assert.Equal(t, h.sess.frame, w.Body.Bytes())

	w = h.do(http.MethodGet, "/api/device/status", "")
	assert.Equal(t, http.StatusOK, w.Code)

	assert.Equal(t, http.StatusBadRequest, h.do(http.MethodPut, "/api/device/webdav?op=reboot", "").Code)
	assert.Equal(t, http.StatusOK, h.do(http.MethodPut, "/api/device/webdav?op=shutdown", "").Code)
}

func TestSchedule(t *testing.T) {
	h := newHarness(t)

	assert.Equal(t, http.StatusNotFound, h.do(http.MethodGet, "/api/schedule", "").Code)
	assert.Equal(t, http.StatusBadRequest, h.do(http.MethodPut, "/api/schedule", `{"profile":"basic","interval":1}`).Code)
	assert.Equal(t, http.StatusBadRequest, h.do(http.MethodPut, "/api/schedule", `{"profile":"hdr","interval":60}`).Code)
	assert.Equal(t, http.StatusBadRequest, h.do(http.MethodPut, "/api/schedule", `{"profile":"basic"}`).Code)

	w := h.do(http.MethodPut, "/api/schedule", `{"profile":"basic","interval":3600}`)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	w = h.do(http.MethodGet, "/api/schedule", "")
	require.Equal(t, http.StatusOK, w.Code)
	var job struct {
		Profile  string `json:"profile"`
		Interval int    `json:"interval"`
	}
	decode(t, w, &job)
	assert.Equal(t, "basic", job.Profile)
	assert.Equal(t, 3600, job.Interval)

	assert.Equal(t, http.StatusOK, h.do(http.MethodDelete, "/api/schedule", "").Code)
	assert.Equal(t, http.StatusNotFound, h.do(http.MethodGet, "/api/schedule", "").Code)
}

func TestScheduledCapture(t *testing.T) {
	h := newHarness(t)
	require.NoError(t, h.srv.scheduledCapture(context.Background(), schedule.Job{Profile: "basic", Interval: 60}))
	assert.FileExists(t, filepath.Join(h.dir, testName))

	assert.Error(t, h.srv.scheduledCapture(context.Background(), schedule.Job{Profile: "hdr", Interval: 60}))
}

func TestNoRoute(t *testing.T) {
	h := newHarness(t)
	assert.Equal(t, http.StatusNotFound, h.do(http.MethodGet, "/nope", "").Code)
}
