package driver

import "github.com/catalystcommunity/executor-driver/internal/logging"

// ErrorReporter is the seam the original's sentry_sdk.capture_exception
// call occupied: a place to forward unexpected failures to an external
// aggregator without coupling the driver to a specific vendor.
type ErrorReporter interface {
	ReportError(err error, stage string)
}

// noopReporter only logs; it's the default when no reporter is wired.
type noopReporter struct{}

func (noopReporter) ReportError(err error, stage string) {
	logging.Log.WithField("stage", stage).WithError(err).Warn("unreported error (no ErrorReporter configured)")
}

// NoopReporter is the driver's default ErrorReporter.
var NoopReporter ErrorReporter = noopReporter{}
