// Package logger provides the structured logger shared by pipeline components.
package logger

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
)

// LoggingConfig controls level, format and destination of log output.
type LoggingConfig struct {
	Level      string
	Format     string // text | json
	Output     string // stdout | stderr | file
	FilePrefix string
	Component  string
}

// Logger wraps logrus so callers get WithField/WithError chaining while
// every entry carries the component that produced it.
type Logger struct {
	*logrus.Logger
	component string
}

// New builds a logger from configuration. Unknown levels fall back to info.
func New(cfg LoggingConfig) *Logger {
	base := logrus.New()
	base.SetLevel(ParseLevel(cfg.Level))

	switch strings.ToLower(strings.TrimSpace(cfg.Format)) {
	case "json":
		base.SetFormatter(&logrus.JSONFormatter{TimestampFormat: time.RFC3339})
	default:
		base.SetFormatter(&logrus.TextFormatter{FullTimestamp: true, TimestampFormat: time.RFC3339})
	}

	base.SetOutput(openOutput(cfg))

	l := &Logger{Logger: base, component: strings.TrimSpace(cfg.Component)}
	if l.component != "" {
		base.AddHook(componentHook{component: l.component})
	}
	return l
}

// NewDefault returns an info-level text logger tagged with the component name.
func NewDefault(component string) *Logger {
	return New(LoggingConfig{Level: "info", Format: "text", Output: "stderr", Component: component})
}

// NewDiscard returns a logger that drops everything. Handy in tests.
func NewDiscard() *Logger {
	l := New(LoggingConfig{Level: "error"})
	l.SetOutput(io.Discard)
	return l
}

// Component reports the component name attached to entries.
func (l *Logger) Component() string {
	if l == nil {
		return ""
	}
	return l.component
}

// Named returns a logger sharing output and level but tagged with another component.
func (l *Logger) Named(component string) *Logger {
	base := logrus.New()
	base.SetLevel(l.GetLevel())
	base.SetFormatter(l.Formatter)
	base.SetOutput(l.Out)
	base.AddHook(componentHook{component: component})
	return &Logger{Logger: base, component: component}
}

// ParseLevel maps error|warn|info|debug (and logrus names) onto logrus levels.
func ParseLevel(level string) logrus.Level {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "error":
		return logrus.ErrorLevel
	case "warn", "warning":
		return logrus.WarnLevel
	case "debug":
		return logrus.DebugLevel
	case "trace":
		return logrus.TraceLevel
	default:
		return logrus.InfoLevel
	}
}

func openOutput(cfg LoggingConfig) io.Writer {
	switch strings.ToLower(strings.TrimSpace(cfg.Output)) {
	case "stdout":
		return os.Stdout
	case "file":
		prefix := cfg.FilePrefix
		if prefix == "" {
			prefix = "pipeline"
		}
		name := fmt.Sprintf("%s-%s.log", prefix, time.Now().Format("20060102"))
		if dir := filepath.Dir(prefix); dir != "." {
			_ = os.MkdirAll(dir, 0o755)
		}
		f, err := os.OpenFile(name, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
		if err != nil {
			return os.Stderr
		}
		return f
	default:
		return os.Stderr
	}
}

type componentHook struct {
	component string
}

func (h componentHook) Levels() []logrus.Level { return logrus.AllLevels }

func (h componentHook) Fire(entry *logrus.Entry) error {
	if _, ok := entry.Data["component"]; !ok {
		entry.Data["component"] = h.component
	}
	return nil
}
