// Package glog is a small leveled-logging facade in the style the rest of
// this codebase expects: glog.V(n).Infof(...) gates a log line on a
// verbosity threshold, while glog.Infof/Warningf/Errorf/Fatalf always log.
// It is backed by logrus rather than the standard library logger.
package glog

import (
	"os"

	"github.com/sirupsen/logrus"
)

var logger = logrus.New()

// level is the configured verbosity threshold; V(n) logging calls with n
// above this level are no-ops.
var level int32

func init() {
	logger.SetOutput(os.Stderr)
	logger.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
}

// SetLevel sets the verbosity threshold used by V().
func SetLevel(v int32) {
	level = v
}

// SetLogger swaps the underlying logrus logger, e.g. to redirect output in
// tests or to change the formatter in production.
func SetLogger(l *logrus.Logger) {
	logger = l
}

// Verbose is returned by V and gates Info-level logging on a verbosity
// threshold.
type Verbose bool

// V reports whether verbosity level v is enabled.
func V(v int32) Verbose {
	return Verbose(v <= level)
}

func (vb Verbose) Infof(format string, args ...interface{}) {
	if vb {
		logger.Infof(format, args...)
	}
}

func (vb Verbose) Info(args ...interface{}) {
	if vb {
		logger.Info(args...)
	}
}

func Infof(format string, args ...interface{}) {
	logger.Infof(format, args...)
}

func Warningf(format string, args ...interface{}) {
	logger.Warnf(format, args...)
}

func Errorf(format string, args ...interface{}) {
	logger.Errorf(format, args...)
}

func Fatalf(format string, args ...interface{}) {
	logger.Fatalf(format, args...)
}
