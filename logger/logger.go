package logger

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fatih/color"
	"github.com/sirupsen/logrus"
)

var (
	log  *logrus.Logger
	once sync.Once

	green = color.New(color.FgGreen)
	cyan  = color.New(color.FgCyan)
)

// GetLogger returns the process-wide logger, creating it on first use.
func GetLogger() *logrus.Logger {
	once.Do(func() {
		log = logrus.New()
		log.SetFormatter(&logrus.TextFormatter{
			FullTimestamp:   true,
			TimestampFormat: "2006-01-02 15:04:05",
		})
		log.SetOutput(os.Stdout)
		log.SetLevel(levelFromEnv())
	})
	return log
}

func levelFromEnv() logrus.Level {
	if lvl, err := logrus.ParseLevel(os.Getenv("LOG_LEVEL")); err == nil {
		return lvl
	}
	return logrus.InfoLevel
}

// SetLevel adjusts the log level at runtime; unknown names are ignored.
func SetLevel(level string) {
	if lvl, err := logrus.ParseLevel(level); err == nil {
		GetLogger().SetLevel(lvl)
	}
}

// EnableFileOutput mirrors log output into a timestamped file under dir.
func EnableFileOutput(dir string) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create log dir: %w", err)
	}
	name := filepath.Join(dir, "droidagent_"+time.Now().Format("2006-01-02_15-04-05")+".log")
	f, err := os.OpenFile(name, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return fmt.Errorf("open log file: %w", err)
	}
	GetLogger().SetOutput(io.MultiWriter(os.Stdout, f))
	GetLogger().Infof("logging to %s", name)
	return nil
}

func Debugf(format string, args ...interface{}) { GetLogger().Debugf(format, args...) }
func Infof(format string, args ...interface{})  { GetLogger().Infof(format, args...) }
func Warnf(format string, args ...interface{})  { GetLogger().Warnf(format, args...) }
func Errorf(format string, args ...interface{}) { GetLogger().Errorf(format, args...) }
func Fatalf(format string, args ...interface{}) { GetLogger().Fatalf(format, args...) }

// Successf highlights milestones (session up, display created) in green.
func Successf(format string, args ...interface{}) {
	GetLogger().Info(green.Sprintf(format, args...))
}

// Bannerf prints an emphasized startup line in cyan.
func Bannerf(format string, args ...interface{}) {
	GetLogger().Info(cyan.Sprintf(format, args...))
}
