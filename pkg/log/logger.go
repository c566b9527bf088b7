package log

// Logger is the logging surface every component depends on.
// The concrete backend lives in logrus.go.
type Logger interface {
	Debugf(format string, args ...interface{})
	Infof(format string, args ...interface{})
	Warnf(format string, args ...interface{})
	Errorf(format string, args ...interface{})
	Fatalf(format string, args ...interface{})

	// WithField returns a logger that appends key=value to every line.
	WithField(key string, value interface{}) Logger
	// WithFields is WithField for several keys at once.
	WithFields(fields map[string]interface{}) Logger
}
