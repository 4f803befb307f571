// Package logging sets up the process-wide slog.Logger the way the teacher
// codebase does: a colorized handler for local development, plain JSON for
// deployed environments.
package logging

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/fatih/color"
)

const (
	EnvLocal = "local"
	EnvDev   = "dev"
	EnvProd  = "prod"
)

// Setup returns the logger appropriate for env: pretty/colorized for local,
// structured JSON at debug level for dev, structured JSON at info level for
// prod, and pretty as the fallback for anything unrecognized.
func Setup(env string, out io.Writer) *slog.Logger {
	switch env {
	case EnvDev:
		return slog.New(slog.NewJSONHandler(out, &slog.HandlerOptions{Level: slog.LevelDebug}))
	case EnvProd:
		return slog.New(slog.NewJSONHandler(out, &slog.HandlerOptions{Level: slog.LevelInfo}))
	case EnvLocal:
		return slog.New(newPrettyHandler(out, slog.LevelDebug))
	default:
		return slog.New(newPrettyHandler(out, slog.LevelDebug))
	}
}

type prettyHandler struct {
	out   io.Writer
	level slog.Level
	attrs []slog.Attr
}

func newPrettyHandler(out io.Writer, level slog.Level) *prettyHandler {
	return &prettyHandler{out: out, level: level}
}

func (h *prettyHandler) Enabled(_ context.Context, level slog.Level) bool {
	return level >= h.level
}

func (h *prettyHandler) Handle(_ context.Context, r slog.Record) error {
	var levelColor func(format string, a ...interface{}) string
	switch r.Level {
	case slog.LevelDebug:
		levelColor = color.MagentaString
	case slog.LevelWarn:
		levelColor = color.YellowString
	case slog.LevelError:
		levelColor = color.RedString
	default:
		levelColor = color.CyanString
	}

	fields := make(map[string]any, r.NumAttrs()+len(h.attrs))
	for _, a := range h.attrs {
		fields[a.Key] = a.Value.Any()
	}
	r.Attrs(func(a slog.Attr) bool {
		fields[a.Key] = a.Value.Any()
		return true
	})

	var extra string
	if len(fields) > 0 {
		b, err := json.MarshalIndent(fields, "", "  ")
		if err != nil {
			return err
		}
		extra = " " + string(b)
	}

	_, err := fmt.Fprintf(h.out, "%s %s %s%s\n",
		r.Time.Format(time.DateTime),
		levelColor(r.Level.String()),
		r.Message,
		extra,
	)
	return err
}

func (h *prettyHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	next := *h
	next.attrs = append(append([]slog.Attr{}, h.attrs...), attrs...)
	return &next
}

func (h *prettyHandler) WithGroup(_ string) slog.Handler {
	return h
}
