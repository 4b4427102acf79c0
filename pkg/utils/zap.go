package utils

import (
	"os"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

const LogLevelEnv = "PICAPTURE_LOG_LEVEL"

var (
	logger *zap.SugaredLogger
)

func init() {
	logger = NewLogger(os.Getenv(LogLevelEnv))
}

func GetLogger() *zap.SugaredLogger {
	return logger
}

// NewLogger builds the console logger used by every command. Unknown or empty
// levels fall back to info.
func NewLogger(level string) *zap.SugaredLogger {
	lvl := zapcore.InfoLevel
	if level != "" {
		if err := lvl.Set(level); err != nil {
			lvl = zapcore.InfoLevel
		}
	}
	cfg := zap.Config{
		Level:    zap.NewAtomicLevelAt(lvl),
		Encoding: "console",
		EncoderConfig: zapcore.EncoderConfig{
			MessageKey:  "msg",
			LevelKey:    "level",
			TimeKey:     "time",
			EncodeLevel: zapcore.CapitalLevelEncoder,
			EncodeTime:  zapcore.TimeEncoderOfLayout("2006-01-02 15:04:05"),
		},
		OutputPaths:      []string{"stderr"},
		ErrorOutputPaths: []string{"stderr"},
	}

	l, err := cfg.Build()
	if err != nil {
		panic(err)
	}
	return l.Sugar()
}
