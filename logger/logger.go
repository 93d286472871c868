package logger

type Logger interface {
	Debug(msg string, fields map[string]any)
	Info(msg string, fields map[string]any)
	Warn(msg string, fields map[string]any)
	Error(msg string, fields map[string]any)
}

type NoopLogger struct{}

func (NoopLogger) Debug(string, map[string]any) {}
func (NoopLogger) Info(string, map[string]any)  {}
func (NoopLogger) Warn(string, map[string]any)  {}
func (NoopLogger) Error(string, map[string]any) {}

// namer is implemented by backends that support named sub-loggers.
type namer interface {
	Named(name string) Logger
}

// Named derives a component sub-logger when the backend supports it and
// returns l unchanged otherwise.
func Named(l Logger, name string) Logger {
	if n, ok := l.(namer); ok {
		return n.Named(name)
	}
	return l
}
