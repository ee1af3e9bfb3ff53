package liveclient

import "github.com/propdesk/propdesk/internal/logger"

// Logger is what the client reports through. The default forwards to the
// process-wide terminal logger.
type Logger interface {
	Info(format string, args ...interface{})
	Warn(format string, args ...interface{})
	Error(format string, args ...interface{})
}

type defaultLogger struct{}

func (defaultLogger) Info(format string, args ...interface{})  { logger.Debug(format, args...) }
func (defaultLogger) Warn(format string, args ...interface{})  { logger.Warn(format, args...) }
func (defaultLogger) Error(format string, args ...interface{}) { logger.Error(format, args...) }
