package logging

import (
	"io"
	"os"
	"strings"

	"github.com/sirupsen/logrus"

	"verisync/config"
)

// InitLogger configures logrus from the logging section of the loaded
// configuration. Bad values degrade to the defaults with a warning instead
// of failing startup.
func InitLogger() {
	cfg := config.AppConfig.Logging

	level, err := logrus.ParseLevel(cfg.Level)
	if err != nil {
		logrus.Warnf("Invalid logging.level '%s', falling back to 'info': %v", cfg.Level, err)
		level = logrus.InfoLevel
	}
	logrus.SetLevel(level)

	switch strings.ToLower(cfg.Format) {
	case "json":
		logrus.SetFormatter(&logrus.JSONFormatter{})
	default:
		logrus.SetFormatter(&logrus.TextFormatter{
			FullTimestamp: true,
		})
	}

	var output io.Writer
	switch strings.ToLower(cfg.Output) {
	case "stdout":
		output = os.Stdout
	case "stderr":
		output = os.Stderr
	default:
		file, err := os.OpenFile(cfg.Output, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0666)
		if err != nil {
			logrus.Warnf("Cannot open logging.output '%s', falling back to stdout: %v", cfg.Output, err)
			output = os.Stdout
		} else {
			output = file
		}
	}
	logrus.SetOutput(output)

	logrus.WithFields(logrus.Fields{
		"level":  level.String(),
		"format": strings.ToLower(cfg.Format),
	}).Info("Logger initialized")
}
