package logger

import (
	"os"

	"github.com/sirupsen/logrus"
)

var log = newDefault()

func newDefault() *logrus.Logger {
	l := logrus.New()
	l.SetOutput(os.Stderr)
	l.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	l.SetLevel(logrus.InfoLevel)
	return l
}

// Init configures the global logger level. Unknown levels fall back to info.
func Init(level string) {
	parsed, err := logrus.ParseLevel(level)
	if err != nil {
		parsed = logrus.InfoLevel
	}
	log.SetLevel(parsed)
}

func Debug(msg string) { log.Debug(msg) }
func Info(msg string)  { log.Info(msg) }
func Warn(msg string)  { log.Warn(msg) }
func Error(msg string) { log.Error(msg) }

// DebugCF logs a component-scoped message with structured fields.
func DebugCF(component, msg string, fields map[string]interface{}) {
	entry(component, fields).Debug(msg)
}

func InfoCF(component, msg string, fields map[string]interface{}) {
	entry(component, fields).Info(msg)
}

func WarnCF(component, msg string, fields map[string]interface{}) {
	entry(component, fields).Warn(msg)
}

func ErrorCF(component, msg string, fields map[string]interface{}) {
	entry(component, fields).Error(msg)
}

func entry(component string, fields map[string]interface{}) *logrus.Entry {
	e := log.WithField("component", component)
	if len(fields) > 0 {
		e = e.WithFields(logrus.Fields(fields))
	}
	return e
}
