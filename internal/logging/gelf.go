package logging

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/Graylog2/go-gelf/gelf"
)

// GELFWriter is the part of *gelf.Writer the handler needs.
type GELFWriter interface {
	WriteMessage(m *gelf.Message) error
}

// NewGELFWriter dials a Graylog UDP input.
func NewGELFWriter(addr string) (*gelf.Writer, error) {
	w, err := gelf.NewWriter(addr)
	if err != nil {
		return nil, fmt.Errorf("dial graylog %s: %w", addr, err)
	}
	return w, nil
}

// syslog severities used by GELF
const (
	gelfError   int32 = 3
	gelfWarning int32 = 4
	gelfInfo    int32 = 6
	gelfDebug   int32 = 7
)

// GELFHandler is a slog.Handler that ships records to Graylog. Attributes
// become GELF additional fields; groups are joined with dots.
type GELFHandler struct {
	w      GELFWriter
	level  slog.Leveler
	host   string
	attrs  []slog.Attr
	prefix string
}

func NewGELFHandler(w GELFWriter, level slog.Leveler) *GELFHandler {
	host, _ := os.Hostname()
	return &GELFHandler{w: w, level: level, host: host}
}

func (h *GELFHandler) Enabled(_ context.Context, level slog.Level) bool {
	return level >= h.level.Level()
}

func (h *GELFHandler) Handle(_ context.Context, r slog.Record) error {
	extra := make(map[string]interface{}, len(h.attrs)+r.NumAttrs())
	for _, a := range h.attrs {
		addExtra(extra, "", a)
	}
	r.Attrs(func(a slog.Attr) bool {
		addExtra(extra, h.prefix, a)
		return true
	})

	return h.w.WriteMessage(&gelf.Message{
		Version:  "1.1",
		Host:     h.host,
		Short:    r.Message,
		TimeUnix: float64(r.Time.UnixNano()) / 1e9,
		Level:    gelfLevel(r.Level),
		Facility: ServiceName,
		Extra:    extra,
	})
}

func (h *GELFHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	next := *h
	next.attrs = make([]slog.Attr, 0, len(h.attrs)+len(attrs))
	next.attrs = append(next.attrs, h.attrs...)
	for _, a := range attrs {
		next.attrs = append(next.attrs, slog.Attr{Key: h.prefix + a.Key, Value: a.Value})
	}
	return &next
}

func (h *GELFHandler) WithGroup(name string) slog.Handler {
	if name == "" {
		return h
	}
	next := *h
	next.prefix = h.prefix + name + "."
	return &next
}

func addExtra(extra map[string]interface{}, prefix string, a slog.Attr) {
	v := a.Value.Resolve()
	if v.Kind() == slog.KindGroup {
		for _, g := range v.Group() {
			addExtra(extra, prefix+a.Key+".", g)
		}
		return
	}
	if a.Key == "" {
		return
	}
	key := "_" + strings.ReplaceAll(prefix+a.Key, " ", "_")
	if err, ok := v.Any().(error); ok {
		extra[key] = err.Error()
		return
	}
	extra[key] = v.Any()
}

func gelfLevel(l slog.Level) int32 {
	switch {
	case l >= slog.LevelError:
		return gelfError
	case l >= slog.LevelWarn:
		return gelfWarning
	case l >= slog.LevelInfo:
		return gelfInfo
	default:
		return gelfDebug
	}
}
