// Package main is the entry point for the placesync server and its maintenance commands.
package main

import (
	"context"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/spf13/viper"
	"go.opentelemetry.io/otel/trace"

	"github.com/dreampalaces/placesync/cmd/placesync/app"
	"github.com/dreampalaces/placesync/internal/config"
)

// logSetting reads PLACESYNC_<name>, falling back to the unprefixed <name>
func logSetting(name string) string {
	v := viper.New()
	v.SetEnvPrefix(config.EnvPrefix)
	v.AutomaticEnv()
	if value := v.GetString(name); value != "" {
		return value
	}
	return os.Getenv(name)
}

// getLogLevel parses LOG_LEVEL. Anything slog accepts works ("debug",
// "WARN+2"), plus "warning". Unset or invalid means info.
func getLogLevel() slog.Level {
	raw := strings.TrimSpace(logSetting("LOG_LEVEL"))
	if raw == "" {
		return slog.LevelInfo
	}
	if strings.EqualFold(raw, "warning") {
		return slog.LevelWarn
	}

	var level slog.Level
	if err := level.UnmarshalText([]byte(raw)); err != nil {
		slog.Warn("Invalid LOG_LEVEL, using INFO", "value", raw)
		return slog.LevelInfo
	}
	return level
}

// newBaseHandler writes JSON unless LOG_FORMAT is "text"
func newBaseHandler(w io.Writer, level slog.Level) slog.Handler {
	opts := &slog.HandlerOptions{Level: level}
	if strings.EqualFold(logSetting("LOG_FORMAT"), "text") {
		return slog.NewTextHandler(w, opts)
	}
	return slog.NewJSONHandler(w, opts)
}

// traceHandler stamps records logged inside a span with its trace and span ids
type traceHandler struct {
	slog.Handler
}

func (h *traceHandler) Handle(ctx context.Context, r slog.Record) error {
	if sc := trace.SpanContextFromContext(ctx); sc.IsValid() {
		r.AddAttrs(
			slog.String("trace_id", sc.TraceID().String()),
			slog.String("span_id", sc.SpanID().String()),
		)
	}
	return h.Handler.Handle(ctx, r)
}

func (h *traceHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return &traceHandler{Handler: h.Handler.WithAttrs(attrs)}
}

func (h *traceHandler) WithGroup(name string) slog.Handler {
	return &traceHandler{Handler: h.Handler.WithGroup(name)}
}

func main() {
	// stdout is reserved for command output such as version --format json
	handler := &traceHandler{Handler: newBaseHandler(os.Stderr, getLogLevel())}
	slog.SetDefault(slog.New(handler))

	if err := app.NewRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}
