package whatsapp

import (
	"github.com/sirupsen/logrus"
	waLog "go.mau.fi/whatsmeow/util/log"
)

// waLogger adapts whatsmeow's logger onto logrus so session noise lands in the
// same JSON stream as everything else.
type waLogger struct {
	entry *logrus.Entry
}

func NewWALogger(logger *logrus.Logger, module string) waLog.Logger {
	return &waLogger{entry: logger.WithField("module", module)}
}

func (l *waLogger) Errorf(msg string, args ...interface{}) { l.entry.Errorf(msg, args...) }
func (l *waLogger) Warnf(msg string, args ...interface{})  { l.entry.Warnf(msg, args...) }
func (l *waLogger) Infof(msg string, args ...interface{})  { l.entry.Infof(msg, args...) }
func (l *waLogger) Debugf(msg string, args ...interface{}) { l.entry.Debugf(msg, args...) }

func (l *waLogger) Sub(module string) waLog.Logger {
	parent, _ := l.entry.Data["module"].(string)
	if parent != "" {
		module = parent + "/" + module
	}
	return &waLogger{entry: l.entry.WithField("module", module)}
}
