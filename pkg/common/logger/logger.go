package logger

import (
	"io"
	"os"

	"github.com/sirupsen/logrus"
)

var Log = logrus.New()

// Init configures the process logger. When logFile is non-empty, entries are
// written to both stdout and that file. The returned closer releases the file.
func Init(level, logFile string) io.Closer {
	return InitTo(os.Stdout, level, logFile)
}

// InitTo is Init with console output sent to w.
func InitTo(w io.Writer, level, logFile string) io.Closer {
	Log.SetFormatter(&logrus.JSONFormatter{
		TimestampFormat: "2006-01-02T15:04:05.000Z07:00",
	})

	if level == "" {
		level = "info"
	}
	logLevel, err := logrus.ParseLevel(level)
	if err != nil {
		logLevel = logrus.InfoLevel
	}
	Log.SetLevel(logLevel)

	Log.SetOutput(w)
	if logFile == "" {
		return io.NopCloser(nil)
	}

	f, err := os.OpenFile(logFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o600)
	if err != nil {
		Log.WithError(err).WithField("log_file", logFile).Warn("log file unavailable, logging to stdout only")
		return io.NopCloser(nil)
	}
	Log.SetOutput(io.MultiWriter(w, f))
	return f
}

func WithField(key string, value interface{}) *logrus.Entry {
	return Log.WithField(key, value)
}

func WithFields(fields logrus.Fields) *logrus.Entry {
	return Log.WithFields(fields)
}

// Security returns an entry tagged as a security event.
func Security(linkingID, field string) *logrus.Entry {
	return Log.WithFields(logrus.Fields{
		"security_event": true,
		"linking_id":     linkingID,
		"field":          field,
	})
}
