// SPDX-License-Identifier: LGPL-2.1-only

// Package logger wraps logrus with the levelled, field-carrying object
// pattern used throughout the project's ambient stack, adapted from
// pillar's base.LogObject.
package logger

import (
	"github.com/sirupsen/logrus"
)

// Level mirrors the log_level values accepted by the [client] config
// section: debug, info, message, warning, critical, error, fatal.
type Level string

// Recognized configuration log levels.
const (
	LevelDebug    Level = "debug"
	LevelInfo     Level = "info"
	LevelMessage  Level = "message"
	LevelWarning  Level = "warning"
	LevelCritical Level = "critical"
	LevelError    Level = "error"
	LevelFatal    Level = "fatal"
)

// logrusLevel maps a config log level to the closest logrus level.
// logrus has no direct equivalent of glib's MESSAGE/CRITICAL levels, so
// message collapses into Info and critical collapses into Error.
func logrusLevel(l Level) logrus.Level {
	switch l {
	case LevelDebug:
		return logrus.DebugLevel
	case LevelInfo, LevelMessage:
		return logrus.InfoLevel
	case LevelWarning:
		return logrus.WarnLevel
	case LevelCritical, LevelError:
		return logrus.ErrorLevel
	case LevelFatal:
		return logrus.FatalLevel
	default:
		return logrus.InfoLevel
	}
}

// Object carries a set of fields to attach to every log line, the way
// base.LogObject does for pillar's agents.
type Object struct {
	logger *logrus.Logger
	fields logrus.Fields
}

// New creates the root Object for the given agent/source name.
func New(agentName string) *Object {
	l := logrus.New()
	l.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	return &Object{
		logger: l,
		fields: logrus.Fields{"source": agentName},
	}
}

// SetLevel configures the minimum log level from a configured log_level.
// It does not look at -d/--debug; callers use SetDebug for that override.
func (o *Object) SetLevel(l Level) {
	o.logger.SetLevel(logrusLevel(l))
}

// SetDebug forces debug-level output, as -d/--debug does regardless of the
// configured log_level.
func (o *Object) SetDebug() {
	o.logger.SetLevel(logrus.DebugLevel)
}

// SetOutputSystemd switches the formatter to a journal-friendly plain
// format; actual forwarding to the journal is handled by running under
// systemd with StandardOutput=journal, matching -s/--output-systemd.
func (o *Object) SetOutputSystemd() {
	o.logger.SetFormatter(&logrus.TextFormatter{DisableTimestamp: true})
}

// With returns a child Object carrying additional fields merged with the
// parent's, mirroring LogObject.Merge.
func (o *Object) With(fields logrus.Fields) *Object {
	merged := make(logrus.Fields, len(o.fields)+len(fields))
	for k, v := range o.fields {
		merged[k] = v
	}
	for k, v := range fields {
		merged[k] = v
	}
	return &Object{logger: o.logger, fields: merged}
}

func (o *Object) entry() *logrus.Entry {
	return o.logger.WithFields(o.fields)
}

// Debugf logs at debug level.
func (o *Object) Debugf(format string, args ...interface{}) { o.entry().Debugf(format, args...) }

// Infof logs at info level.
func (o *Object) Infof(format string, args ...interface{}) { o.entry().Infof(format, args...) }

// Messagef logs at the "message" level (collapsed into Info).
func (o *Object) Messagef(format string, args ...interface{}) { o.entry().Infof(format, args...) }

// Warnf logs at warning level.
func (o *Object) Warnf(format string, args ...interface{}) { o.entry().Warnf(format, args...) }

// Criticalf logs at the "critical" level (collapsed into Error).
func (o *Object) Criticalf(format string, args ...interface{}) { o.entry().Errorf(format, args...) }

// Errorf logs at error level.
func (o *Object) Errorf(format string, args ...interface{}) { o.entry().Errorf(format, args...) }

// Fatalf logs at fatal level and exits the process.
func (o *Object) Fatalf(format string, args ...interface{}) { o.entry().Fatalf(format, args...) }
