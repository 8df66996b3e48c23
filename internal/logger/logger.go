// Package logger configures the process-wide logrus logger and hands out
// entries scoped to a single connection.
package logger

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"gopkg.in/natefinch/lumberjack.v2"
)

const (
	connIDKey   = "conn_id"
	roleKey     = "role"
	deviceIDKey = "device_id"
	tunnelKey   = "tunnel"
)

type contextKeyLoggerType struct{}

var contextKeyLogger = &contextKeyLoggerType{}

// Options controls logger setup.
type Options struct {
	Level string
	File  string
}

// Init sets up the text formatter and level for all log statements. When
// opts.File is set, output is also written to a rotated log file. The
// returned closer flushes the file and must be called on shutdown.
func Init(opts Options) (io.Closer, error) {
	formatter := new(logrus.TextFormatter)
	formatter.TimestampFormat = "2006-01-02 15:04:05"
	formatter.FullTimestamp = true
	logrus.SetFormatter(formatter)
	logrus.SetLevel(ParseLevel(opts.Level))

	if opts.File == "" {
		logrus.SetOutput(os.Stdout)
		return io.NopCloser(nil), nil
	}

	if err := os.MkdirAll(filepath.Dir(opts.File), 0o755); err != nil {
		return nil, err
	}
	w := &lumberjack.Logger{
		Filename:   opts.File,
		MaxSize:    25,
		MaxBackups: 10,
		MaxAge:     14,
		Compress:   true,
	}
	logrus.SetOutput(io.MultiWriter(os.Stdout, w))
	return w, nil
}

// ParseLevel maps a verbosity name to a logrus level, defaulting to info.
func ParseLevel(level string) logrus.Level {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "debug":
		return logrus.DebugLevel
	case "warn", "warning":
		return logrus.WarnLevel
	case "error":
		return logrus.ErrorLevel
	default:
		return logrus.InfoLevel
	}
}

// Default returns a logger without connection fields.
func Default() *logrus.Entry {
	return logrus.NewEntry(logrus.StandardLogger())
}

// ForConnection returns a logger tagged with a fresh connection id and the
// connection's role and key, along with that id.
func ForConnection(role, deviceID, tunnel string) (*logrus.Entry, string) {
	id := uuid.NewString()
	entry := logrus.WithFields(logrus.Fields{
		connIDKey:   id,
		roleKey:     role,
		deviceIDKey: deviceID,
		tunnelKey:   tunnel,
	})
	return entry, id
}

// WithContext stores entry in ctx.
func WithContext(ctx context.Context, entry *logrus.Entry) context.Context {
	return context.WithValue(ctx, contextKeyLogger, entry)
}

// FromContext returns the logger stored in ctx, or the default logger.
func FromContext(ctx context.Context) *logrus.Entry {
	if ctx == nil {
		return Default()
	}
	if entry, ok := ctx.Value(contextKeyLogger).(*logrus.Entry); ok {
		return entry
	}
	return Default()
}
