package core

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/chainguard-dev/clog"
)

// groupOutput is where log group banners are written. Banners go to stdout so that they interleave with the
// output of the git commands being run.
var groupOutput io.Writer = os.Stdout

// NewLogger creates the logger used for a checkout run
func NewLogger(w io.Writer, level slog.Level) *clog.Logger {
	return clog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: level}))
}

// Debug logs a debug message using the logger stored in the context
func Debug(ctx context.Context, format string, args ...any) {
	clog.FromContext(ctx).Debugf(format, args...)
}

// Info logs an informational message using the logger stored in the context
func Info(ctx context.Context, format string, args ...any) {
	clog.FromContext(ctx).Infof(format, args...)
}

// Warning logs a warning using the logger stored in the context
func Warning(ctx context.Context, format string, args ...any) {
	clog.FromContext(ctx).Warnf(format, args...)
}

// StartGroup marks the start of a foldable group of log lines
func StartGroup(name string) {
	_, _ = fmt.Fprintf(groupOutput, "🔄 %s ...\n", name)
}

// EndGroup marks the end of a foldable group of log lines
func EndGroup(name string) {
	_, _ = fmt.Fprintf(groupOutput, "✅ %s\n", name)
}

// DirExists checks that path exists and is a directory
func DirExists(path string, required bool) error {
	if path == "" {
		return fmt.Errorf("directory path cannot be empty")
	}

	stat, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) && !required {
			return nil
		}
		return fmt.Errorf("directory '%s' does not exist: %w", path, err)
	}

	if !stat.IsDir() {
		return fmt.Errorf("'%s' is not a directory", path)
	}

	return nil
}
