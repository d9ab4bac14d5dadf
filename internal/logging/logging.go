package logging

import (
	"io"
	"os"
	"time"

	"github.com/sirupsen/logrus"
	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/stratforge/api/internal/config"
)

// Setup configures the standard logrus logger from config. When a log
// file is set, output goes to both stdout and a size-rotated file.
func Setup(cfg config.LoggingConfig) {
	level, err := logrus.ParseLevel(cfg.Level)
	if err != nil {
		level = logrus.InfoLevel
	}
	logrus.SetLevel(level)

	if cfg.Format == "json" {
		logrus.SetFormatter(&logrus.JSONFormatter{
			TimestampFormat: time.RFC3339,
		})
	} else {
		logrus.SetFormatter(&logrus.TextFormatter{
			FullTimestamp:   true,
			TimestampFormat: time.RFC3339,
		})
	}

	var output io.Writer = os.Stdout
	if cfg.File != "" {
		output = io.MultiWriter(os.Stdout, &lumberjack.Logger{
			Filename: cfg.File,
			MaxSize:  cfg.MaxSize, // MB
			MaxAge:   cfg.MaxAge,  // days
			Compress: true,
		})
	}
	logrus.SetOutput(output)
}
