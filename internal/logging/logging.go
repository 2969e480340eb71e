// Package logging provides the package-level structured logger shared
// across the driver, mirroring the teacher's logging.Log singleton.
package logging

import (
	"os"

	"github.com/sirupsen/logrus"
)

// Log is the shared logger used throughout the driver. Tests may swap
// its output or level; production wiring happens once in main.go.
var Log = newLogger()

func newLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetFormatter(&logrus.JSONFormatter{})
	logger.SetOutput(os.Stderr)
	logger.SetLevel(logrus.InfoLevel)
	return logger
}

// SetDebug switches the logger between debug and info level.
func SetDebug(enabled bool) {
	if enabled {
		Log.SetLevel(logrus.DebugLevel)
	} else {
		Log.SetLevel(logrus.InfoLevel)
	}
}
