package server

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"net/http"
	"os"
	"path"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/gin-gonic/gin"
	"github.com/vincent-vinf/go-jsend"
	"go.uber.org/zap"

	"pi-capture/pkg/camera"
	"pi-capture/pkg/capture"
	"pi-capture/pkg/config"
	"pi-capture/pkg/metadata"
	"pi-capture/pkg/schedule"
	"pi-capture/pkg/storage"
	"pi-capture/pkg/types"
	"pi-capture/pkg/utils"
	"pi-capture/pkg/utils/ps"
	"pi-capture/pkg/webdav"
)

const (
	webDavStart    = "start"
	webDavShutdown = "shutdown"
)

var errBusy = errors.New("the camera is busy")

type Server struct {
	cfg   *config.Config
	store *storage.Storage
	share *webdav.Share
	sched *schedule.Scheduler
	open  camera.Opener

	// runnerOpts are applied after the defaults derived from cfg.
	runnerOpts []capture.Option

	// cameraLock keeps at most one session open.
	cameraLock sync.Mutex

	logger *zap.SugaredLogger
}

type Option func(*Server)

func WithOpener(open camera.Opener) Option {
	return func(s *Server) { s.open = open }
}

func WithRunnerOptions(opts ...capture.Option) Option {
	return func(s *Server) { s.runnerOpts = append(s.runnerOpts, opts...) }
}

// New creates the server; its capture scheduler runs until ctx is done.
func New(ctx context.Context, cfg *config.Config, store *storage.Storage, share *webdav.Share, opts ...Option) *Server {
	s := &Server{
		cfg:    cfg,
		store:  store,
		share:  share,
		open:   camera.OpenV4L2,
		logger: utils.GetLogger(),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.sched = schedule.New(ctx, s.scheduledCapture)
	return s
}

// Router builds the API. Static files are served from staticsDir when set.
func (s *Server) Router(staticsDir string) (*gin.Engine, error) {
	r := gin.New()
	r.Use(gin.Logger())
	r.Use(gin.Recovery())
	r.Use(utils.Cors())
	if staticsDir != "" {
		if err := registerStaticsDir(r, staticsDir, "/"); err != nil {
			return nil, err
		}
	}
	r.NoRoute(func(c *gin.Context) {
		c.JSON(http.StatusNotFound, jsend.SimpleErr("page not found"))
	})

	apiRouter := r.Group("/api")
	apiRouter.POST("/capture", s.capture)

	imageRouter := apiRouter.Group("/images")
	imageRouter.GET("", s.listImages)
	imageRouter.GET("/latest", s.latestImage)
	imageRouter.GET("/:name", s.getImage)
	imageRouter.GET("/:name/metadata", s.getImageMetadata)

	scheduleRouter := apiRouter.Group("/schedule")
	scheduleRouter.GET("", s.getSchedule)
	scheduleRouter.PUT("", s.setSchedule)
	scheduleRouter.DELETE("", s.stopSchedule)

	deviceRouter := apiRouter.Group("/device")
	deviceRouter.GET("/properties", s.deviceProperties)
	deviceRouter.GET("/snapshot", s.snapshot)
	deviceRouter.GET("/status", s.deviceStatus)
	deviceRouter.PUT("/webdav", s.ctlWebdav)

	return r, nil
}

type captureRequest struct {
	Profile string `json:"profile"`
	types.CaptureSettings
	// Preview is in seconds.
	Preview      *int `json:"preview"`
	JSONMetadata bool `json:"json_metadata"`
}

type captureResponse struct {
	Name         string                 `json:"name"`
	Size         string                 `json:"size"`
	MetadataMode capture.MetadataMode   `json:"metadataMode"`
	Message      string                 `json:"message,omitempty"`
	Metadata     *types.CaptureMetadata `json:"metadata,omitempty"`
	Warnings     []string               `json:"warnings,omitempty"`
}

func profileByName(name string) (capture.Profile, bool) {
	switch name {
	case "", capture.Adaptive.Name:
		return capture.Adaptive, true
	case capture.Manual.Name:
		return capture.Manual, true
	case capture.Basic.Name:
		return capture.Basic, true
	}
	return capture.Profile{}, false
}

func (s *Server) defaultRequest() captureRequest {
	return captureRequest{
		CaptureSettings: types.CaptureSettings{
			Width:            s.cfg.Capture.Width,
			Height:           s.cfg.Capture.Height,
			Quality:          s.cfg.Capture.Quality,
			WhiteBalance:     types.WhiteBalanceAuto,
			AdaptiveExposure: true,
		},
	}
}

func (s *Server) capture(c *gin.Context) {
	req := s.defaultRequest()
	if err := c.ShouldBindJSON(&req); err != nil && !errors.Is(err, io.EOF) {
		c.JSON(http.StatusBadRequest, jsend.SimpleErr(err.Error()))
		return
	}
	p, ok := profileByName(req.Profile)
	if !ok {
		c.JSON(http.StatusBadRequest, jsend.SimpleErr(fmt.Sprintf("unknown profile %q", req.Profile)))
		return
	}
	settings := req.CaptureSettings
	settings.JSONMetadata = req.JSONMetadata
	settings.Preview = time.Duration(s.cfg.Capture.Preview) * time.Second
	if req.Preview != nil {
		settings.Preview = time.Duration(*req.Preview) * time.Second
	}
	if err := settings.Validate(); err != nil {
		c.JSON(http.StatusBadRequest, jsend.SimpleErr(err.Error()))
		return
	}

	if !s.cameraLock.TryLock() {
		c.JSON(http.StatusConflict, jsend.SimpleErr(errBusy.Error()))
		return
	}
	defer s.cameraLock.Unlock()

	res, err := s.runner().Capture(c.Request.Context(), p, settings)
	if err != nil {
		s.logger.Errorf("capture failed: %s", err)
		internalErr(c, err)
		return
	}

	c.JSON(http.StatusOK, jsend.Success(captureResponse{
		Name:         res.Name,
		Size:         humanize.Bytes(uint64(res.Size)),
		MetadataMode: res.MetadataMode,
		Message:      res.MetadataMessage(),
		Metadata:     res.Metadata,
		Warnings:     res.Warnings,
	}))
}

func (s *Server) scheduledCapture(ctx context.Context, job schedule.Job) error {
	p, ok := profileByName(job.Profile)
	if !ok {
		return fmt.Errorf("unknown profile %q", job.Profile)
	}
	req := s.defaultRequest()
	req.CaptureSettings.Preview = time.Duration(s.cfg.Capture.Preview) * time.Second

	if !s.cameraLock.TryLock() {
		return errBusy
	}
	defer s.cameraLock.Unlock()

	res, err := s.runner().Capture(ctx, p, req.CaptureSettings)
	if err != nil {
		return err
	}
	s.logger.Infof("scheduled capture %s (%s)", res.Name, humanize.Bytes(uint64(res.Size)))
	return nil
}

func (s *Server) getSchedule(c *gin.Context) {
	job := s.sched.Job()
	if job == nil {
		c.JSON(http.StatusNotFound, jsend.SimpleErr("no capture scheduled"))
		return
	}

	c.JSON(http.StatusOK, jsend.Success(job))
}

func (s *Server) setSchedule(c *gin.Context) {
	var job schedule.Job
	if err := c.ShouldBindJSON(&job); err != nil {
		c.JSON(http.StatusBadRequest, jsend.SimpleErr(err.Error()))
		return
	}
	if _, ok := profileByName(job.Profile); !ok {
		c.JSON(http.StatusBadRequest, jsend.SimpleErr(fmt.Sprintf("unknown profile %q", job.Profile)))
		return
	}
	if err := s.sched.Begin(job); err != nil {
		c.JSON(http.StatusBadRequest, jsend.SimpleErr(err.Error()))
		return
	}

	c.JSON(http.StatusOK, jsend.Success(job))
}

func (s *Server) stopSchedule(c *gin.Context) {
	if !s.sched.Stop() {
		c.JSON(http.StatusOK, jsend.SimpleErr("no capture scheduled"))
		return
	}

	c.JSON(http.StatusOK, jsend.Success(nil))
}

func (s *Server) runner() *capture.Runner {
	opts := []capture.Option{
		capture.WithOpener(s.open),
		capture.WithDevice(s.cfg.Device),
		capture.WithNTP(s.cfg.NTPServer, s.cfg.MaxClockOffset),
		capture.WithMinFree(s.cfg.MinFreeMB * 1024 * 1024),
	}
	return capture.NewRunner(s.store, append(opts, s.runnerOpts...)...)
}

func (s *Server) listImages(c *gin.Context) {
	files, err := s.store.ListImages()
	if err != nil {
		internalErr(c, err)
		return
	}
	if files == nil {
		files = []types.File{}
	}

	c.JSON(http.StatusOK, jsend.Success(files))
}

func (s *Server) latestImage(c *gin.Context) {
	name, err := s.store.LatestImage()
	if err != nil {
		internalErr(c, err)
		return
	}
	if name == "" {
		c.JSON(http.StatusNotFound, jsend.SimpleErr("no image captured yet"))
		return
	}

	c.JSON(http.StatusOK, jsend.Success(name))
}

func (s *Server) imagePath(c *gin.Context) (string, bool) {
	p, err := s.store.ImagePath(c.Param("name"))
	switch {
	case errors.Is(err, storage.ErrInvalidName):
		c.JSON(http.StatusBadRequest, jsend.SimpleErr(err.Error()))
		return "", false
	case errors.Is(err, os.ErrNotExist):
		c.JSON(http.StatusNotFound, jsend.SimpleErr("image not found"))
		return "", false
	case err != nil:
		internalErr(c, err)
		return "", false
	}
	return p, true
}

func (s *Server) getImage(c *gin.Context) {
	p, ok := s.imagePath(c)
	if !ok {
		return
	}
	c.File(p)
}

func (s *Server) getImageMetadata(c *gin.Context) {
	p, ok := s.imagePath(c)
	if !ok {
		return
	}
	rec, err := metadata.Read(p)
	if err != nil {
		c.JSON(http.StatusNotFound, jsend.SimpleErr(fmt.Sprintf("no metadata for %s", c.Param("name"))))
		return
	}

	c.JSON(http.StatusOK, jsend.Success(gin.H{
		"source":   rec.Source,
		"metadata": rec.Metadata,
		"tags":     rec.Tags,
	}))
}

// withSession opens the camera for the duration of fn.
func (s *Server) withSession(fn func(sess camera.Session) error) error {
	if !s.cameraLock.TryLock() {
		return errBusy
	}
	defer s.cameraLock.Unlock()

	sess, err := s.open(s.cfg.Device)
	if err != nil {
		return err
	}
	defer func() {
		if err := sess.Close(); err != nil {
			s.logger.Warnf("close camera: %s", err)
		}
	}()

	return fn(sess)
}

func (s *Server) sessionErr(c *gin.Context, err error) {
	if errors.Is(err, errBusy) {
		c.JSON(http.StatusConflict, jsend.SimpleErr(err.Error()))
		return
	}
	internalErr(c, err)
}

func (s *Server) deviceProperties(c *gin.Context) {
	var props map[string]any
	err := s.withSession(func(sess camera.Session) (err error) {
		props, err = sess.Properties()
		return
	})
	if err != nil {
		s.sessionErr(c, err)
		return
	}

	c.JSON(http.StatusOK, jsend.Success(props))
}

// snapshot returns one preview frame without storing it.
func (s *Server) snapshot(c *gin.Context) {
	var frame []byte
	err := s.withSession(func(sess camera.Session) error {
		err := sess.Configure(camera.Config{
			Width:   s.cfg.Capture.Width,
			Height:  s.cfg.Capture.Height,
			Quality: s.cfg.Capture.Quality,
		})
		if err != nil {
			return err
		}
		if err = sess.Start(c.Request.Context()); err != nil {
			return err
		}
		defer func() {
			if err := sess.Stop(); err != nil {
				s.logger.Warnf("stop camera: %s", err)
			}
		}()
		frame, err = sess.CaptureFrame(c.Request.Context())
		return err
	})
	if err != nil {
		s.sessionErr(c, err)
		return
	}

	c.Data(http.StatusOK, "image/jpeg", frame)
}

func (s *Server) deviceStatus(c *gin.Context) {
	st, err := ps.HostStatus(s.store.Dir())
	if err != nil {
		internalErr(c, err)
		return
	}

	c.JSON(http.StatusOK, jsend.Success(st))
}

func (s *Server) ctlWebdav(c *gin.Context) {
	op := c.Query("op")
	switch op {
	case webDavStart:
		if !s.share.Start() {
			c.JSON(http.StatusOK, jsend.Success("the webdav service is already enabled"))
			return
		}
		c.JSON(http.StatusOK, jsend.Success(gin.H{"port": s.share.Port()}))
	case webDavShutdown:
		if !s.share.Stop() {
			c.JSON(http.StatusOK, jsend.SimpleErr("the webdav service has been shut down"))
			return
		}
		c.JSON(http.StatusOK, jsend.Success(nil))
	default:
		c.JSON(http.StatusBadRequest, jsend.SimpleErr("unknown operation"))
	}
}

func registerStaticsDir(group gin.IRoutes, dir, relativeGroup string) error {
	if info, err := os.Stat(dir); err != nil || !info.IsDir() {
		return fmt.Errorf("the specified directory %s does not exist", dir)
	}
	dir = filepath.ToSlash(filepath.Clean(dir))
	group.StaticFile(relativeGroup, filepath.Join(dir, "index.html"))
	return filepath.WalkDir(dir, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() {
			relativePath := path.Join(relativeGroup, strings.Replace(filepath.ToSlash(p), dir, "", 1))
			group.StaticFile(relativePath, p)
		}
		return nil
	})
}

func internalErr(c *gin.Context, err error) {
	c.JSON(http.StatusInternalServerError, jsend.SimpleErr(err.Error()))
}
