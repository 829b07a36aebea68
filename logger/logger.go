package logger

// Logger is the minimal structured logging surface the permission engine
// needs. keyvals are alternating key/value pairs; a trailing odd value is
// ignored.
type Logger interface {
	Debug(msg string, keyvals ...any)
	Info(msg string, keyvals ...any)
	Error(msg string, keyvals ...any)
}
