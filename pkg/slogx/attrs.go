package slogx

import (
	"fmt"
	"log/slog"
)

const (
	// KeyLoggerName is the key for the logger name attribute.
	KeyLoggerName = "logger"
	// KeyCommandID is the key for the id of a BiDi command.
	KeyCommandID = "command_id"
	// KeyMethod is the key for a BiDi command or event method.
	KeyMethod = "method"
)

// Error returns a slog.Attr representing the provided error.
// The attribute key is "error" and the value is the error's message.
//
// Parameters:
//   - err: The error to log, must not be nil.
//
// Returns:
//   - slog.Attr: An "error" attribute holding err.Error().
func Error(err error) slog.Attr {
	return slog.String("error", err.Error())
}

// ByteString creates a slog.Attr with the given key and a string representation of the byte slice value.
// Raw frames are logged this way so they stay readable in console output.
//
// Parameters:
//   - key: The attribute key.
//   - value: The raw bytes, usually one wire frame.
//
// Returns:
//   - slog.Attr: A string attribute holding value as text.
func ByteString(key string, value []byte) slog.Attr {
	return slog.String(key, string(value))
}

// Stringer creates a slog.Attr with the provided key and the string representation
// of the given fmt.Stringer value.
//
// Parameters:
//   - key: The attribute key.
//   - value: Any fmt.Stringer, such as a message kind or slot state.
//
// Returns:
//   - slog.Attr: A string attribute holding value.String().
func Stringer(key string, value fmt.Stringer) slog.Attr {
	return slog.String(key, value.String())
}

// LoggerName creates a slog.Attr with the provided logger name.
// The attribute key is defined by KeyLoggerName.
//
// Parameters:
//   - name: The component name, for example "bidi.broker".
//
// Returns:
//   - slog.Attr: A string attribute keyed by KeyLoggerName.
func LoggerName(name string) slog.Attr {
	return slog.String(KeyLoggerName, name)
}

// CommandID creates a slog.Attr for a command id.
//
// Parameters:
//   - id: The id the broker assigned to the command.
//
// Returns:
//   - slog.Attr: An int64 attribute keyed by KeyCommandID.
func CommandID(id int64) slog.Attr {
	return slog.Int64(KeyCommandID, id)
}

// Method creates a slog.Attr for a command or event method name.
func Method(method string) slog.Attr {
	return slog.String(KeyMethod, method)
}
