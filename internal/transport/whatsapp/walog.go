package whatsapp

import (
	"fmt"
	"strings"

	waLog "go.mau.fi/whatsmeow/util/log"

	logx "remindbot/pkg/logx"
)

// waLogger routes whatsmeow's logs through logx.
type waLogger struct {
	log logx.Logger
	floor int
}

var waLevels = map[string]int{"DEBUG": 0, "INFO": 1, "WARN": 2, "ERROR": 3}

func newWALogger(log logx.Logger, module, level string) waLog.Logger {
	floor, ok := waLevels[strings.ToUpper(strings.TrimSpace(level))]
	if !ok {
		floor = waLevels["WARN"]
	}
	return waLogger{log: log.With(logx.String("wa", module)), floor: floor}
}

func (l waLogger) Debugf(msg string, args ...any) {
	if l.floor <= 0 {
		l.log.Debug(fmt.Sprintf(msg, args...))
	}
}

func (l waLogger) Infof(msg string, args ...any) {
	if l.floor <= 1 {
		l.log.Info(fmt.Sprintf(msg, args...))
	}
}

func (l waLogger) Warnf(msg string, args ...any) {
	if l.floor <= 2 {
		l.log.Warn(fmt.Sprintf(msg, args...))
	}
}

func (l waLogger) Errorf(msg string, args ...any) {
	l.log.Error(fmt.Sprintf(msg, args...))
}

func (l waLogger) Sub(module string) waLog.Logger {
	return waLogger{log: l.log.With(logx.String("sub", module)), floor: l.floor}
}
