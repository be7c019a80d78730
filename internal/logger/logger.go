// Package logger builds the structured logger used across the engine: a
// FanoutHandler appending JSON lines to an app.json file (never rotated) and a
// colorized line to the console, adapted from internal/logger/logger.go's
// FanoutHandler/ConsoleHandler pair, with the Wails event-sink handler
// dropped since there is no GUI surface here.
package logger

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fatih/color"
	"github.com/mattn/go-isatty"
)

// ConsoleHandler writes one colorized line per record, color chosen by
// level, matching internal/logger/logger.go's console formatting.
type ConsoleHandler struct {
	mu      sync.Mutex
	out     io.Writer
	colorOK bool
}

// NewConsoleHandler builds a ConsoleHandler. Color is disabled automatically
// when out is not a terminal.
func NewConsoleHandler(out io.Writer) *ConsoleHandler {
	colorOK := false
	if f, ok := out.(*os.File); ok {
		colorOK = isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
	}
	return &ConsoleHandler{out: out, colorOK: colorOK}
}

func (h *ConsoleHandler) Enabled(context.Context, slog.Level) bool { return true }

func (h *ConsoleHandler) Handle(_ context.Context, r slog.Record) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	levelStr := r.Level.String()[:4]
	if h.colorOK {
		switch {
		case r.Level >= slog.LevelError:
			levelStr = color.RedString(levelStr)
		case r.Level >= slog.LevelWarn:
			levelStr = color.YellowString(levelStr)
		case r.Level >= slog.LevelInfo:
			levelStr = color.GreenString(levelStr)
		default:
			levelStr = color.HiBlackString(levelStr)
		}
	}

	var attrs string
	r.Attrs(func(a slog.Attr) bool {
		attrs += fmt.Sprintf(" %s=%v", a.Key, a.Value.Any())
		return true
	})

	msg := fmt.Sprintf("%s [%s] %s%s\n", levelStr, r.Time.Format(time.TimeOnly), r.Message, attrs)
	_, err := h.out.Write([]byte(msg))
	return err
}

func (h *ConsoleHandler) WithAttrs([]slog.Attr) slog.Handler { return h }
func (h *ConsoleHandler) WithGroup(string) slog.Handler      { return h }

// FanoutHandler dispatches every record to each of its handlers.
type FanoutHandler struct {
	handlers []slog.Handler
}

func (h *FanoutHandler) Enabled(ctx context.Context, level slog.Level) bool {
	for _, handler := range h.handlers {
		if handler.Enabled(ctx, level) {
			return true
		}
	}
	return false
}

func (h *FanoutHandler) Handle(ctx context.Context, r slog.Record) error {
	for _, handler := range h.handlers {
		_ = handler.Handle(ctx, r.Clone())
	}
	return nil
}

func (h *FanoutHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	out := make([]slog.Handler, len(h.handlers))
	for i, handler := range h.handlers {
		out[i] = handler.WithAttrs(attrs)
	}
	return &FanoutHandler{handlers: out}
}

func (h *FanoutHandler) WithGroup(name string) slog.Handler {
	out := make([]slog.Handler, len(h.handlers))
	for i, handler := range h.handlers {
		out[i] = handler.WithGroup(name)
	}
	return &FanoutHandler{handlers: out}
}

// New builds the fanout logger: JSON lines under logDir/app.json plus a
// colorized console stream on consoleOutput.
func New(logDir string, consoleOutput io.Writer) (*slog.Logger, error) {
	if err := os.MkdirAll(logDir, 0o755); err != nil {
		return nil, err
	}
	f, err := os.OpenFile(filepath.Join(logDir, "app.json"), os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, err
	}

	jsonHandler := slog.NewJSONHandler(f, nil)
	consoleHandler := NewConsoleHandler(consoleOutput)

	handler := &FanoutHandler{handlers: []slog.Handler{jsonHandler, consoleHandler}}
	return slog.New(handler), nil
}
