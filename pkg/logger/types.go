package logger

// Logger is the structured logger every component receives through its constructor.
type Logger interface {
	Debug(msg string, args ...Field)
	Info(msg string, args ...Field)
	Warn(msg string, args ...Field)
	Error(msg string, args ...Field)
}

// Field is a single structured key/value attached to a log line.
type Field struct {
	Key   string
	Value any
}

// OrNop returns l, or a NopLogger when l is nil.
func OrNop(l Logger) Logger {
	if l == nil {
		return NewNopLogger()
	}
	return l
}
