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

// ServiceName identifies this process to the log bridge and GELF sink.
const ServiceName = "flightdeck"

// osStdout is the console sink; tests swap it out.
var osStdout io.Writer = os.Stdout

// SlogManager manages slog-based logging with optional OTel integration.
type SlogManager struct {
	logger *slog.Logger

	// OTel provider for flushing
	logProvider *sdklog.LoggerProvider

	// Context supplies run attributes for every record. Set before Setup.
	Context ContextProvider
	// GELF, when set before Setup, receives every record as well.
	GELF GELFWriter
}

// NewSlogManager creates a new slog-based logging manager.
func NewSlogManager() *SlogManager {
	return &SlogManager{}
}

// parseLevel reads a level name case-insensitively. Unknown names log at
// info.
func parseLevel(level string) slog.Level {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(strings.TrimSpace(level))); err != nil {
		return slog.LevelInfo
	}
	return lvl
}

// utcSeconds renders record times as RFC 3339 UTC.
func utcSeconds(_ []string, a slog.Attr) slog.Attr {
	if a.Key != slog.TimeKey {
		return a
	}
	if t, ok := a.Value.Any().(time.Time); ok {
		a.Value = slog.StringValue(t.UTC().Format(time.RFC3339))
	}
	return a
}

// Setup (re)builds the logger. Records go to file as JSON, or to stdout as
// text when file is nil. A nil provider leaves the OTel bridge out.
func (m *SlogManager) Setup(file io.Writer, level string, provider *sdklog.LoggerProvider) {
	lvl := parseLevel(level)
	m.logProvider = provider

	m.logger = slog.New(NewContextHandler(NewMultiHandler(m.sinks(file, lvl)...), m.contextAttrs))
	m.logger.Info("Logging initialized", "level", lvl.String())
}

func (m *SlogManager) sinks(file io.Writer, lvl slog.Level) []slog.Handler {
	opts := &slog.HandlerOptions{Level: lvl, ReplaceAttr: utcSeconds}
	var primary slog.Handler
	if file != nil {
		primary = slog.NewJSONHandler(file, opts)
	} else {
		primary = slog.NewTextHandler(osStdout, opts)
	}
	out := []slog.Handler{primary}
	if m.logProvider != nil {
		out = append(out, otelslog.NewHandler(ServiceName, otelslog.WithLoggerProvider(m.logProvider)))
	}
	if m.GELF != nil {
		out = append(out, NewGELFHandler(m.GELF, lvl))
	}
	return out
}

func (m *SlogManager) contextAttrs() []slog.Attr {
	if m.Context == nil {
		return nil
	}
	return m.Context()
}

// Logger returns the configured slog.Logger.
func (m *SlogManager) Logger() *slog.Logger {
	if m.logger == nil {
		return slog.Default()
	}
	return m.logger
}

// Flush forces a flush of OTel logs if available.
func (m *SlogManager) Flush(ctx context.Context) error {
	if m.logProvider != nil {
		return m.logProvider.ForceFlush(ctx)
	}
	return nil
}

// WriteLog writes a log entry with the specified function name, data, and level.
func (m *SlogManager) WriteLog(functionName, data, level string) {
	if m.logger == nil {
		return
	}
	m.logger.Log(context.Background(), parseLevel(level), data, "function", functionName)
}
