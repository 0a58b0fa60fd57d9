package logger

import (
	"io"
	"log/slog"
	"os"
	"strings"
)

type Options struct {
	Service   string
	Env       string
	Level     string
	Format    string // "json" (default) or "text"
	AddSource bool
	Output    io.Writer
}

// New builds the process logger and installs it as the slog default.
func New(opts Options) *slog.Logger {
	base := slog.New(handler(opts)).With(
		"service", opts.Service,
		"env", opts.Env,
	)

	slog.SetDefault(base)
	return base
}

// Nop discards everything. Tests use it where a logger is required.
func Nop() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func handler(opts Options) slog.Handler {
	out := opts.Output
	if out == nil {
		out = os.Stdout
	}
	hopts := &slog.HandlerOptions{
		Level:     parseLevel(opts.Level),
		AddSource: opts.AddSource,
	}

	if strings.EqualFold(strings.TrimSpace(opts.Format), "text") {
		return slog.NewTextHandler(out, hopts)
	}
	return slog.NewJSONHandler(out, hopts)
}

// parseLevel accepts slog level names ("debug", "warn", "error+2", ...) and
// "warning". Anything else is info.
func parseLevel(lvl string) slog.Level {
	s := strings.TrimSpace(lvl)
	if strings.EqualFold(s, "warning") {
		s = "warn"
	}
	var level slog.Level
	if err := level.UnmarshalText([]byte(s)); err != nil {
		return slog.LevelInfo
	}
	return level
}
