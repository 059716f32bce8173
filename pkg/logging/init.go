package logging

import (
	"fmt"
	"io"
	"log/slog"

	"github.com/lmittmann/tint"
)

const (
	JSON = "json"
	Text = "text"
	Tint = "tint"
)

// Types lists the accepted logging types.
var Types = []string{JSON, Text, Tint}

// NewHandler returns a handler of the given type writing to w.
func NewHandler(w io.Writer, loggingType string, logLevelName string) (slog.Handler, error) {
	var logLevel slog.Level
	if err := logLevel.UnmarshalText([]byte(logLevelName)); err != nil {
		return nil, fmt.Errorf("could not parse log level: %w", err)
	}

	logHandlerOptions := slog.HandlerOptions{
		AddSource: logLevel <= slog.LevelDebug,
		Level:     logLevel,
	}

	switch loggingType {
	case JSON:
		return slog.NewJSONHandler(w, &logHandlerOptions), nil
	case Text:
		return slog.NewTextHandler(w, &logHandlerOptions), nil
	case Tint:
		return tint.NewHandler(w, &tint.Options{
			AddSource:  logHandlerOptions.AddSource,
			Level:      logHandlerOptions.Level,
			TimeFormat: "15:04:05.000",
		}), nil
	default:
		return nil, fmt.Errorf("unknown logging type: %s", loggingType)
	}
}

// Initialize installs a handler writing to w as the default logger.
func Initialize(w io.Writer, loggingType string, logLevelName string) error {
	handler, err := NewHandler(w, loggingType, logLevelName)
	if err != nil {
		return err
	}

	slog.SetDefault(slog.New(handler))
	slog.Debug("logging initialized", "type", loggingType, "logLevel", logLevelName)
	return nil
}
