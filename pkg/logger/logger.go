package logger

import (
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/sirupsen/logrus"
)

// Logger is a wrapper around logrus.Logger
type Logger struct {
	*logrus.Logger
}

// LoggingConfig contains logging configuration
type LoggingConfig struct {
	Level      string `mapstructure:"level"`
	Format     string `mapstructure:"format"`
	Output     string `mapstructure:"output"`
	FilePrefix string `mapstructure:"file_prefix"`
}

// componentHook stamps every entry emitted by a NewDefault logger with
// the component name it was constructed for (httpapi, soc, ticketing,
// sla-sweep, ...), so WithError/WithField chains don't each need to
// re-attach it.
type componentHook struct {
	component string
}

func (h componentHook) Levels() []logrus.Level { return logrus.AllLevels }

func (h componentHook) Fire(e *logrus.Entry) error {
	e.Data["component"] = h.component
	return nil
}

// New creates the top-level application logger.
func New(cfg LoggingConfig) *Logger {
	log := logrus.New()

	level, err := logrus.ParseLevel(cfg.Level)
	if err != nil {
		level = logrus.InfoLevel
	}
	log.SetLevel(level)

	switch strings.ToLower(cfg.Format) {
	case "json":
		log.SetFormatter(&logrus.JSONFormatter{})
	default:
		log.SetFormatter(&logrus.TextFormatter{
			FullTimestamp: true,
		})
	}

	switch strings.ToLower(cfg.Output) {
	case "file":
		if cfg.FilePrefix == "" {
			cfg.FilePrefix = "soc-backend"
		}
		logDir := "logs"
		if err := os.MkdirAll(logDir, 0755); err != nil {
			log.Errorf("failed to create logs directory: %v", err)
		} else {
			logPath := filepath.Join(logDir, cfg.FilePrefix+".log")
			file, err := os.OpenFile(logPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
			if err != nil {
				log.Errorf("failed to open log file: %v", err)
			} else {
				log.SetOutput(io.MultiWriter(os.Stdout, file))
			}
		}
	default:
		log.SetOutput(os.Stdout)
	}

	return &Logger{Logger: log}
}

// NewDefault creates a component-scoped logger with default
// formatting, for constructors (soc.Service, ticketing.Service, the
// event bus, the dispatcher, ...) that fall back to their own logger
// when none is supplied. Every entry it emits carries "component".
func NewDefault(component string) *Logger {
	log := logrus.New()
	log.SetLevel(logrus.InfoLevel)
	log.SetFormatter(&logrus.TextFormatter{
		FullTimestamp: true,
	})
	log.SetOutput(os.Stdout)
	if component != "" {
		log.AddHook(componentHook{component: component})
	}

	return &Logger{Logger: log}
}
