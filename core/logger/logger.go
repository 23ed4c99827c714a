package logger

// Logger exposes logging methods for common severity levels.
type Logger interface {
	Debugf(format string, args ...any)
	// Debugw logs a message with structured fields.
	Debugw(msg string, fields map[string]any)
	Infof(format string, args ...any)
	Warnf(format string, args ...any)
	Errorf(format string, args ...any)
}

// StructuredLogger can log structured information at info level. It is
// implemented by ZerologLogger.
type StructuredLogger interface {
	Infow(msg string, fields map[string]any)
}

// Infow logs msg with fields when l supports structured info logs and falls
// back to Infof otherwise.
func Infow(l Logger, msg string, fields map[string]any) {
	if s, ok := l.(StructuredLogger); ok {
		s.Infow(msg, fields)
		return
	}
	l.Infof("%s %v", msg, fields)
}
