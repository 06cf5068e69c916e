// Package logging is the thin zap wrapper used by the client and server
// orchestrators and the demo commands (the pkg/ managers do not log),
// matching the package-level Debug/Info/Warn/Error shape
// the teacher's managers call (see pkg/custom/reliable/utils.go's
// logging.Debug(..., zap.Uint64(...)) usage).
package logging

import "go.uber.org/zap"

var logger *zap.Logger

func init() {
	l, err := zap.NewProduction()
	if err != nil {
		l = zap.NewNop()
	}
	logger = l
}

// SetLogger swaps the package-level logger, e.g. to zap.NewDevelopment() in
// tests or demos, or to a logger preconfigured with connection-scoped fields.
func SetLogger(l *zap.Logger) {
	if l != nil {
		logger = l
	}
}

func Debug(msg string, fields ...zap.Field) { logger.Debug(msg, fields...) }
func Info(msg string, fields ...zap.Field)  { logger.Info(msg, fields...) }
func Warn(msg string, fields ...zap.Field)  { logger.Warn(msg, fields...) }
func Error(msg string, fields ...zap.Field) { logger.Error(msg, fields...) }
