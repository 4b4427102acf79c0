package main

import (
	"context"
	"flag"

	"go.uber.org/zap"

	"pi-capture/pkg/config"
	"pi-capture/pkg/server"
	"pi-capture/pkg/storage"
	"pi-capture/pkg/utils"
	"pi-capture/pkg/webdav"
)

var (
	configPath = flag.String("config", "", "YAML config file")
	webdavPort = flag.Int("webdav-port", 0, "webdav port (default from config)")
	port       = flag.Int("port", 0, "api port (default from config)")
	storageDir = flag.String("dir", "", "capture directory (default from config)")
	staticsDir = flag.String("statics", "", "directory of the web ui")

	logger *zap.SugaredLogger
)

func init() {
	logger = utils.GetLogger()
	flag.Parse()
}

func main() {
	defer logger.Sync()

	cfg, err := config.Load(*configPath)
	if err != nil {
		logger.Fatal(err)
	}
	if *port > 0 {
		cfg.Server.Port = *port
	}
	if *webdavPort > 0 {
		cfg.Server.WebdavPort = *webdavPort
	}

	dir, fallback := config.ResolveOutputDir(*storageDir, cfg.OutputDir, config.ExecutableDir())
	if fallback {
		logger.Warnf("using fallback capture directory %s", dir)
	}
	stg, err := storage.New(dir)
	if err != nil {
		logger.Fatal(err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	share := webdav.New(ctx, cfg.Server.WebdavPort, stg.Dir())

	r, err := server.New(ctx, cfg, stg, share).Router(*staticsDir)
	if err != nil {
		logger.Fatal(err)
	}

	utils.ListenAndServe(r, cfg.Server.Port)
}
