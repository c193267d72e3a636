package logging

import (
	"context"
	"io"
	"log/slog"
	"os"
	"strings"
	"time"

	"go.opentelemetry.io/contrib/bridges/otelslog"
	sdklog "go.opentelemetry.io/otel/sdk/log"
)

// ServiceName identifies the server in OTel and Graylog records.
const ServiceName = "skirmish-server"

// ContextKey is the group the Context attributes are logged under.
const ContextKey = "round"

// SlogManager owns the server's slog pipeline: a text handler, the OTel
// bridge and any extra sinks, all fed the same records.
type SlogManager struct {
	logger      *slog.Logger
	logProvider *sdklog.LoggerProvider

	// Context is consulted on every record. Set it before Setup.
	Context ContextProvider
}

func NewSlogManager() *SlogManager {
	return &SlogManager{}
}

func parseLevel(level string) slog.Level {
	var l slog.Level
	switch strings.ToUpper(strings.TrimSpace(level)) {
	case "DEBUG", "TRACE":
		l = slog.LevelDebug
	case "WARN", "WARNING":
		l = slog.LevelWarn
	case "ERROR", "FATAL":
		l = slog.LevelError
	default:
		l = slog.LevelInfo
	}
	return l
}

// utcTime renders record times as RFC3339 in UTC so log files from
// different hosts sort together.
func utcTime(_ []string, a slog.Attr) slog.Attr {
	if a.Key != slog.TimeKey || a.Value.Kind() != slog.KindTime {
		return a
	}
	return slog.String(slog.TimeKey, a.Value.Time().UTC().Format(time.RFC3339))
}

// Setup (re)builds the logger. out defaults to stdout. A nil provider
// leaves the OTel bridge out.
func (m *SlogManager) Setup(out io.Writer, level string, provider *sdklog.LoggerProvider, extra ...slog.Handler) {
	if out == nil {
		out = os.Stdout
	}
	m.logProvider = provider

	handlers := []slog.Handler{
		slog.NewTextHandler(out, &slog.HandlerOptions{Level: parseLevel(level), ReplaceAttr: utcTime}),
	}
	if provider != nil {
		handlers = append(handlers, otelslog.NewHandler(ServiceName, otelslog.WithLoggerProvider(provider)))
	}
	handlers = append(handlers, extra...)

	m.logger = slog.New(newContextHandler(newFanout(handlers...), ContextKey, m.Context))
	m.logger.Debug("Logging initialized", "level", level, "sinks", len(handlers))
}

// Logger falls back to slog.Default before Setup.
func (m *SlogManager) Logger() *slog.Logger {
	if m.logger == nil {
		return slog.Default()
	}
	return m.logger
}

// Flush pushes buffered OTel records to the exporter.
func (m *SlogManager) Flush(ctx context.Context) error {
	if m.logProvider == nil {
		return nil
	}
	return m.logProvider.ForceFlush(ctx)
}
