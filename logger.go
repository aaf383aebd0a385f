package privilege

import "github.com/oarkflow/privilege/logger"

// Logger is re-exported so engine callers don't need a second import.
type Logger = logger.Logger

// TraceIDFunc is re-exported alongside Logger.
type TraceIDFunc = logger.TraceIDFunc
