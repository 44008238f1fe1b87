package logger

import (
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"gopkg.in/natefinch/lumberjack.v2"
)

var (
	mu      sync.Mutex
	base    io.Writer
	logPath string
	level   = zerolog.InfoLevel
)

// Configure sets the log directory and level for all loggers created
// afterwards. Call it once from the composition root before anything logs.
func Configure(dir, levelStr string) {
	mu.Lock()
	defer mu.Unlock()

	if lvl, err := zerolog.ParseLevel(strings.ToLower(levelStr)); err == nil && levelStr != "" {
		level = lvl
	}

	if dir != "" {
		logPath = filepath.Join(dir, "unzipr.log")
		base = io.MultiWriter(consoleWriter(), &lumberjack.Logger{
			Filename:   logPath,
			MaxSize:    10, // megabytes
			MaxBackups: 3,
			MaxAge:     30, // days
			Compress:   true,
		})
	}
}

func consoleWriter() zerolog.ConsoleWriter {
	return zerolog.ConsoleWriter{
		Out:        os.Stderr,
		TimeFormat: time.RFC3339,
	}
}

func writer() io.Writer {
	mu.Lock()
	defer mu.Unlock()
	if base == nil {
		base = consoleWriter()
	}
	return base
}

// New returns a logger tagged with a component name.
func New(component string) zerolog.Logger {
	return zerolog.New(writer()).
		Level(level).
		With().
		Timestamp().
		Str("component", component).
		Logger()
}

// Default returns an untagged logger for the composition root.
func Default() zerolog.Logger {
	return zerolog.New(writer()).Level(level).With().Timestamp().Logger()
}

// GetLogPath returns the path of the rotating log file, empty until Configure
// has been called with a directory.
func GetLogPath() string {
	mu.Lock()
	defer mu.Unlock()
	return logPath
}
