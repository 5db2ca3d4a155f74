package interchange

import (
	"fmt"
	"log"
	"os"

	"github.com/sirupsen/logrus"

	"github.com/jabolina/go-interchange/pkg/interchange/types"
)

const (
	calldepth = 2
	info      = "INFO"
	warn      = "WARN"
	errorl    = "ERROR"
	debug     = "DEBUG"
)

func NewDefaultLogger() *DefaultLogger {
	return &DefaultLogger{
		Logger: log.New(os.Stderr, "interchange", log.LstdFlags),
		debug:  false,
	}
}

// Use the given log level as prefix
func level(prefix, message string) string {
	return fmt.Sprintf("[%s]: %s", prefix, message)
}

// The default logger used if the user does not provide its
// own implementation.
type DefaultLogger struct {
	*log.Logger
	debug bool
}

// ToggleDebug enables or disables debug output.
func (l *DefaultLogger) ToggleDebug(enable bool) {
	l.debug = enable
}

func (l *DefaultLogger) Info(v ...interface{}) {
	l.Output(calldepth, level(info, fmt.Sprint(v...)))
}

func (l *DefaultLogger) Infof(format string, v ...interface{}) {
	l.Output(calldepth, level(info, fmt.Sprintf(format, v...)))
}

func (l *DefaultLogger) Warn(v ...interface{}) {
	l.Output(calldepth, level(warn, fmt.Sprint(v...)))
}

func (l *DefaultLogger) Warnf(format string, v ...interface{}) {
	l.Output(calldepth, level(warn, fmt.Sprintf(format, v...)))
}

func (l *DefaultLogger) Error(v ...interface{}) {
	l.Output(calldepth, level(errorl, fmt.Sprint(v...)))
}

func (l *DefaultLogger) Errorf(format string, v ...interface{}) {
	l.Output(calldepth, level(errorl, fmt.Sprintf(format, v...)))
}

func (l *DefaultLogger) Debug(v ...interface{}) {
	if l.debug {
		l.Output(calldepth, level(debug, fmt.Sprint(v...)))
	}
}

func (l *DefaultLogger) Debugf(format string, v ...interface{}) {
	if l.debug {
		l.Output(calldepth, level(debug, fmt.Sprintf(format, v...)))
	}
}

// Logger backed by a structured logrus entry, for embedders that
// already aggregate structured logs.
type LogrusLogger struct {
	entry *logrus.Entry
}

// NewLogrusLogger adapts the logrus logger with the engine name
// attached to every line. An unparseable level keeps the logger
// default.
func NewLogrusLogger(base *logrus.Logger, name, logLevel string) *LogrusLogger {
	if lvl, err := logrus.ParseLevel(logLevel); err == nil {
		base.SetLevel(lvl)
	}
	return &LogrusLogger{entry: base.WithField("engine", name)}
}

func (l *LogrusLogger) Info(v ...interface{}) {
	l.entry.Info(v...)
}

func (l *LogrusLogger) Infof(format string, v ...interface{}) {
	l.entry.Infof(format, v...)
}

func (l *LogrusLogger) Warn(v ...interface{}) {
	l.entry.Warn(v...)
}

func (l *LogrusLogger) Warnf(format string, v ...interface{}) {
	l.entry.Warnf(format, v...)
}

func (l *LogrusLogger) Error(v ...interface{}) {
	l.entry.Error(v...)
}

func (l *LogrusLogger) Errorf(format string, v ...interface{}) {
	l.entry.Errorf(format, v...)
}

func (l *LogrusLogger) Debug(v ...interface{}) {
	l.entry.Debug(v...)
}

func (l *LogrusLogger) Debugf(format string, v ...interface{}) {
	l.entry.Debugf(format, v...)
}

var _ types.Logger = &DefaultLogger{}
var _ types.Logger = &LogrusLogger{}
