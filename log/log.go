// Package log constructs loggers for patchbay components.
package log

import (
	"io"
	"os"
	"strconv"

	"github.com/sirupsen/logrus"
)

// DebugEnv enables debug level for loggers returned by GetLogger.
const DebugEnv = "PATCHBAY_DEBUG"

var debug bool

func init() {
	var err error
	debug, err = strconv.ParseBool(os.Getenv(DebugEnv))
	if err != nil {
		debug = false
	}
}

// GetLogger returns a new logger instance
func GetLogger() *logrus.Logger {
	l := logrus.New()
	if debug {
		l.SetLevel(logrus.DebugLevel)
	}
	return l
}

// SetDebug overrides the debug level of loggers created afterwards.
func SetDebug(enabled bool) {
	debug = enabled
}

// Silent returns a logger that discards everything.
func Silent() *logrus.Logger {
	l := logrus.New()
	l.SetOutput(io.Discard)
	l.SetLevel(logrus.PanicLevel)
	return l
}
