package logger

// NullLogger drops every record. Tests install it so scenario output stays
// readable; it is also the resolver's default until the engine injects its
// own logger.
type NullLogger struct{}

func NewNullLogger() *NullLogger { return &NullLogger{} }

func (*NullLogger) Debug(string, ...any) {}
func (*NullLogger) Info(string, ...any)  {}
func (*NullLogger) Error(string, ...any) {}
