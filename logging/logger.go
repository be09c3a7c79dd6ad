package logging

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/mattn/go-isatty"
	"github.com/sirupsen/logrus"

	"github.com/grovetools/autoreg/config"
	"github.com/grovetools/autoreg/pkg/paths"
	"github.com/grovetools/autoreg/util/pathutil"
)

const (
	logDateLayout     = "2006-01-02"
	defaultMaxAgeDays = 14
)

var (
	loggers   = make(map[string]*logrus.Entry)
	loggersMu sync.Mutex
)

// NewLogger creates and returns a pre-configured logger for a specific component.
// It uses a singleton pattern per component to avoid re-initializing.
func NewLogger(component string) *logrus.Entry {
	loggersMu.Lock()
	defer loggersMu.Unlock()

	if logger, exists := loggers[component]; exists {
		return logger
	}

	var logCfg Config
	if cfg, err := config.LoadDefault(); err == nil {
		if err := cfg.UnmarshalExtension("logging", &logCfg); err != nil {
			logrus.Warnf("Failed to parse 'logging' config: %v", err)
		}
	}

	entry := newLogger(component, logCfg, defaultLogFile(component))
	if dir := paths.LogDir(); dir != "" && logCfg.File.Path == "" {
		pruneOldLogs(dir, component, logCfg.File.MaxAgeDays, time.Now())
	}
	loggers[component] = entry
	return entry
}

// LogFilePath returns today's default log file for a component.
func LogFilePath(component string) string {
	return defaultLogFile(component)
}

func defaultLogFile(component string) string {
	dir := paths.LogDir()
	if dir == "" {
		return ""
	}
	return filepath.Join(dir, fmt.Sprintf("%s-%s.log", component, time.Now().Format(logDateLayout)))
}

// pruneOldLogs removes <component>-<date>.log files in dir dated before the
// retention window. Files that do not carry a parsable date are left alone.
func pruneOldLogs(dir, component string, maxAgeDays int, now time.Time) {
	if maxAgeDays < 0 {
		return
	}
	if maxAgeDays == 0 {
		maxAgeDays = defaultMaxAgeDays
	}
	cutoff := now.AddDate(0, 0, -maxAgeDays)

	entries, err := os.ReadDir(dir)
	if err != nil {
		return
	}
	prefix := component + "-"
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || !strings.HasPrefix(name, prefix) || !strings.HasSuffix(name, ".log") {
			continue
		}
		day, err := time.ParseInLocation(logDateLayout, strings.TrimSuffix(strings.TrimPrefix(name, prefix), ".log"), now.Location())
		if err != nil {
			continue
		}
		if day.Before(cutoff) {
			_ = os.Remove(filepath.Join(dir, name))
		}
	}
}

func newLogger(component string, logCfg Config, defaultFile string) *logrus.Entry {
	logger := logrus.New()

	levelStr := "info"
	if env := os.Getenv("AUTOREG_LOG_LEVEL"); env != "" {
		levelStr = env
	} else if logCfg.Level != "" {
		levelStr = logCfg.Level
	}
	level, err := logrus.ParseLevel(levelStr)
	if err != nil {
		level = logrus.InfoLevel
	}
	logger.SetLevel(level)

	if os.Getenv("AUTOREG_LOG_CALLER") == "true" || logCfg.ReportCaller {
		logger.SetReportCaller(true)
	}

	switch logCfg.Format.Preset {
	case "json":
		logger.SetFormatter(&logrus.JSONFormatter{})
	case "simple":
		logger.SetFormatter(&TextFormatter{Config: FormatConfig{
			DisableTimestamp: true,
			DisableComponent: true,
		}})
	default:
		logger.SetFormatter(&TextFormatter{Config: logCfg.Format})
	}

	var writers []io.Writer

	logFilePath := defaultFile
	if logCfg.File.Enabled && logCfg.File.Path != "" {
		if p, err := pathutil.Expand(logCfg.File.Path, ""); err == nil {
			logFilePath = p
		} else {
			logger.Warnf("Invalid log file path %q: %v", logCfg.File.Path, err)
		}
	}
	if logFilePath != "" {
		dir := filepath.Dir(logFilePath)
		if err := os.MkdirAll(dir, 0755); err != nil {
			if logCfg.File.Enabled {
				logger.Warnf("Failed to create log directory %s: %v", dir, err)
			}
		} else {
			file, err := os.OpenFile(logFilePath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0666)
			if err == nil {
				writers = append(writers, file)
			} else if logCfg.File.Enabled {
				logger.Warnf("Failed to open log file %s: %v", logFilePath, err)
			}
		}
	}

	stderrMode := "auto"
	if logCfg.Format.StructuredToStderr != "" {
		stderrMode = logCfg.Format.StructuredToStderr
	}

	shouldLogToStderr := false
	switch stderrMode {
	case "always":
		shouldLogToStderr = true
	case "never":
		shouldLogToStderr = false
	default:
		// auto: structured logs reach stderr when debugging or when nobody is
		// watching a terminal (daemon under a supervisor, CI, pipes).
		isDebug := os.Getenv("AUTOREG_DEBUG") == "1" || logger.GetLevel() >= logrus.DebugLevel
		isInteractive := isatty.IsTerminal(os.Stderr.Fd()) || isatty.IsCygwinTerminal(os.Stderr.Fd())
		shouldLogToStderr = isDebug || !isInteractive
	}
	if shouldLogToStderr {
		writers = append(writers, os.Stderr)
	}

	switch len(writers) {
	case 0:
		logger.SetOutput(io.Discard)
	case 1:
		logger.SetOutput(writers[0])
	default:
		logger.SetOutput(io.MultiWriter(writers...))
	}

	return logger.WithField("component", component)
}
