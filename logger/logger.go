// Package logger defines the logging contract the privilege engine writes
// its decision and consistency records through.
package logger

// Logger accepts a message plus alternating key/value pairs. The engine
// sticks to these three levels: Debug for resolution detail, Info for
// decisions and mutations, Error for fail-closed denials and post-commit
// invalidation failures.
type Logger interface {
	Error(msg string, keyvals ...any)
	Info(msg string, keyvals ...any)
	Debug(msg string, keyvals ...any)
}

// TraceIDFunc produces the correlation ID attached to each decision record.
// It must be cheap and safe for concurrent use.
type TraceIDFunc func() string
