// Package logger provides structured logging functionality.
// It wraps the standard log/slog package for consistent logging across the
// directory client.
//
// Collection fetches are logged through the FetchContext helpers so that every
// request carries the same snake_case fields (collection, kind, url, request_id).
//
// The package supports two output formats:
//   - JSON (default): Machine-readable structured logging
//   - Human: Human-readable console output with colors and prefixes
package logger

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"time"
)

// Logger is the default logger instance.
var Logger *slog.Logger

// output is where console logs are written. Stdout is reserved for command output.
var output io.Writer = os.Stderr

func init() {
	Logger = slog.New(slog.NewJSONHandler(output, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
}

// SetLevel configures the logging level.
func SetLevel(level slog.Level) {
	SetLevelAndFormat(level, FormatJSON)
}

// SetOutput redirects console logs to w using the JSON format at the given level.
func SetOutput(w io.Writer, level slog.Level) {
	output = w
	SetLevel(level)
}

// Info logs an informational message.
func Info(msg string, args ...any) {
	Logger.Info(msg, args...)
}

// Debug logs a debug message.
func Debug(msg string, args ...any) {
	Logger.Debug(msg, args...)
}

// Warn logs a warning message.
func Warn(msg string, args ...any) {
	Logger.Warn(msg, args...)
}

// Error logs an error message.
func Error(msg string, args ...any) {
	Logger.Error(msg, args...)
}

// WithCollection returns a logger with collection context.
func WithCollection(name, kind string) *slog.Logger {
	return Logger.With("collection", name, "kind", kind)
}

// =============================================================================
// Fetch Context Helpers
// =============================================================================

// FetchContext describes one collection fetch for logging.
type FetchContext struct {
	// Collection is the configured collection name (required)
	Collection string
	// Kind is the collection kind (subGroups, memberGroups, ...)
	Kind string
	// URL is the request URL built from the collection options
	URL string
	// RequestID identifies the request across start/end/abort logs
	RequestID string
}

// LogFetchStart logs the start of a collection fetch.
func LogFetchStart(ctx FetchContext) {
	Logger.Info("fetch started", buildFetchAttrs(ctx)...)
}

// LogFetchEnd logs the completion of a collection fetch.
// If err is non-nil, logs as an error with the error chain.
func LogFetchEnd(ctx FetchContext, recordCount int, duration time.Duration, err error) {
	attrs := buildFetchAttrs(ctx)
	attrs = append(attrs, slog.Duration("duration", duration))

	if err != nil {
		attrs = append(attrs, errorAttrs(err)...)
		Logger.Error("fetch failed", attrs...)
		return
	}

	attrs = append(attrs, slog.Int("record_count", recordCount))
	Logger.Info("fetch completed", attrs...)
}

// LogFetchAborted logs a fetch that was superseded by a newer one.
// Aborts are expected behavior and are logged at debug level.
func LogFetchAborted(ctx FetchContext, supersededBy string) {
	attrs := buildFetchAttrs(ctx)
	if supersededBy != "" {
		attrs = append(attrs, slog.String("superseded_by", supersededBy))
	}
	Logger.Debug("fetch aborted", attrs...)
}

func buildFetchAttrs(ctx FetchContext) []any {
	attrs := make([]any, 0, 8)
	attrs = append(attrs, slog.String("collection", ctx.Collection))
	if ctx.Kind != "" {
		attrs = append(attrs, slog.String("kind", ctx.Kind))
	}
	if ctx.URL != "" {
		attrs = append(attrs, slog.String("url", ctx.URL))
	}
	if ctx.RequestID != "" {
		attrs = append(attrs, slog.String("request_id", ctx.RequestID))
	}
	return attrs
}

// errorAttrs returns the error message, its type and, for wrapped errors, the chain.
func errorAttrs(err error) []any {
	attrs := []any{
		slog.String("error", err.Error()),
		slog.String("error_type", fmt.Sprintf("%T", err)),
	}

	chain := []string{err.Error()}
	current := err
	for {
		unwrapped := errors.Unwrap(current)
		if unwrapped == nil {
			break
		}
		chain = append(chain, unwrapped.Error())
		current = unwrapped
	}
	if len(chain) > 1 {
		attrs = append(attrs, slog.String("error_chain", strings.Join(chain, " -> ")))
	}
	return attrs
}

// =============================================================================
// Human-Readable Log Format Support
// =============================================================================

// OutputFormat represents the log output format
type OutputFormat int

const (
	// FormatJSON is the default machine-readable JSON format
	FormatJSON OutputFormat = iota
	// FormatHuman is a human-readable console format with colors and prefixes
	FormatHuman
)

// ParseFormat maps a flag value ("json", "human") to an OutputFormat.
func ParseFormat(s string) (OutputFormat, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "json":
		return FormatJSON, nil
	case "human", "text":
		return FormatHuman, nil
	default:
		return FormatJSON, fmt.Errorf("unknown log format %q (expected json or human)", s)
	}
}

// SetLevelAndFormat sets both the log level and format.
func SetLevelAndFormat(level slog.Level, format OutputFormat) {
	Logger = slog.New(newConsoleHandler(output, level, format))
}

func newConsoleHandler(w io.Writer, level slog.Level, format OutputFormat) slog.Handler {
	if format == FormatHuman {
		return NewHumanHandler(w, &HumanHandlerOptions{
			Level:     level,
			UseColors: isTerminal(w),
		})
	}
	return slog.NewJSONHandler(w, &slog.HandlerOptions{Level: level})
}

// isTerminal returns true if the writer is a terminal (supports colors)
func isTerminal(w io.Writer) bool {
	if f, ok := w.(*os.File); ok {
		fi, err := f.Stat()
		if err != nil {
			return false
		}
		return (fi.Mode() & os.ModeCharDevice) != 0
	}
	return false
}

// HumanHandlerOptions configures the human-readable log handler.
type HumanHandlerOptions struct {
	// Level is the minimum log level to output
	Level slog.Level
	// UseColors enables ANSI color codes
	UseColors bool
}

// HumanHandler is a slog handler that outputs human-readable log messages.
type HumanHandler struct {
	opts   HumanHandlerOptions
	writer io.Writer
	attrs  []slog.Attr
}

// NewHumanHandler creates a new human-readable log handler.
func NewHumanHandler(w io.Writer, opts *HumanHandlerOptions) *HumanHandler {
	if opts == nil {
		opts = &HumanHandlerOptions{Level: slog.LevelInfo}
	}
	return &HumanHandler{
		opts:   *opts,
		writer: w,
	}
}

// Enabled returns true if the handler is enabled for the given level.
func (h *HumanHandler) Enabled(_ context.Context, level slog.Level) bool {
	return level >= h.opts.Level
}

// Handle outputs a log record as "15:04:05 <prefix> message key=value ...".
func (h *HumanHandler) Handle(_ context.Context, r slog.Record) error {
	var sb strings.Builder

	sb.WriteString(r.Time.Format("15:04:05"))
	sb.WriteString(" ")
	sb.WriteString(h.levelPrefix(r.Level, r.Message))
	sb.WriteString(" ")
	sb.WriteString(r.Message)

	var parts []string
	for _, a := range h.attrs {
		parts = append(parts, formatAttr(a))
	}
	r.Attrs(func(a slog.Attr) bool {
		parts = append(parts, formatAttr(a))
		return true
	})
	if len(parts) > 0 {
		sb.WriteString(" ")
		sb.WriteString(strings.Join(parts, " "))
	}

	sb.WriteString("\n")
	_, err := io.WriteString(h.writer, sb.String())
	return err
}

// WithAttrs returns a new handler with the given attributes added.
func (h *HumanHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	merged := make([]slog.Attr, 0, len(h.attrs)+len(attrs))
	merged = append(merged, h.attrs...)
	merged = append(merged, attrs...)
	return &HumanHandler{opts: h.opts, writer: h.writer, attrs: merged}
}

// WithGroup returns the handler unchanged; groups are flattened in human output.
func (h *HumanHandler) WithGroup(_ string) slog.Handler {
	return h
}

// levelPrefix returns a symbol for the level, using ✓ for completed operations.
func (h *HumanHandler) levelPrefix(level slog.Level, message string) string {
	const (
		colorReset  = "\033[0m"
		colorRed    = "\033[31m"
		colorYellow = "\033[33m"
		colorGreen  = "\033[32m"
		colorCyan   = "\033[36m"
	)

	var prefix, color string
	switch {
	case level >= slog.LevelError:
		prefix, color = "✗", colorRed
	case level >= slog.LevelWarn:
		prefix, color = "⚠", colorYellow
	case level >= slog.LevelInfo:
		if strings.Contains(strings.ToLower(message), "completed") {
			prefix, color = "✓", colorGreen
		} else {
			prefix, color = "ℹ", colorCyan
		}
	default:
		prefix, color = "·", colorReset
	}

	if h.opts.UseColors {
		return color + prefix + colorReset
	}
	return prefix
}

// formatAttr formats a single attribute for display.
func formatAttr(a slog.Attr) string {
	switch v := a.Value.Any().(type) {
	case time.Duration:
		return fmt.Sprintf("%s=%s", a.Key, FormatDuration(v))
	case float64:
		return fmt.Sprintf("%s=%.2f", a.Key, v)
	default:
		return fmt.Sprintf("%s=%v", a.Key, v)
	}
}

// FormatDuration formats a duration in a human-readable way.
func FormatDuration(d time.Duration) string {
	if d < time.Millisecond {
		return fmt.Sprintf("%dµs", d.Microseconds())
	}
	if d < time.Second {
		return fmt.Sprintf("%dms", d.Milliseconds())
	}
	if d < time.Minute {
		return fmt.Sprintf("%.2fs", d.Seconds())
	}
	return fmt.Sprintf("%.1fm", d.Minutes())
}

// =============================================================================
// Log File Output Support
// =============================================================================

// logFile holds the currently open log file (if any)
var logFile *os.File

// SetLogFile configures logging to write to both the console and the specified file.
// File logs are always JSON.
func SetLogFile(path string, level slog.Level, consoleFormat OutputFormat) error {
	CloseLogFile()

	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return fmt.Errorf("opening log file: %w", err)
	}
	logFile = f

	Logger = slog.New(&dualHandler{
		console: newConsoleHandler(output, level, consoleFormat),
		file:    slog.NewJSONHandler(f, &slog.HandlerOptions{Level: level}),
	})

	Info("log file opened", slog.String("path", path))
	return nil
}

// CloseLogFile closes the current log file if one is open.
func CloseLogFile() {
	if logFile == nil {
		return
	}
	if err := logFile.Sync(); err != nil {
		Warn("failed to sync log file", slog.String("error", err.Error()))
	}
	if err := logFile.Close(); err != nil {
		Warn("failed to close log file", slog.String("error", err.Error()))
	}
	logFile = nil
}

// dualHandler is a slog.Handler that writes to both console and file handlers.
type dualHandler struct {
	console slog.Handler
	file    slog.Handler
}

func (d *dualHandler) Enabled(ctx context.Context, level slog.Level) bool {
	return d.console.Enabled(ctx, level) || d.file.Enabled(ctx, level)
}

func (d *dualHandler) Handle(ctx context.Context, r slog.Record) error {
	if d.console.Enabled(ctx, r.Level) {
		if err := d.console.Handle(ctx, r); err != nil {
			return err
		}
	}
	if d.file.Enabled(ctx, r.Level) {
		if err := d.file.Handle(ctx, r.Clone()); err != nil {
			return err
		}
	}
	return nil
}

func (d *dualHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return &dualHandler{
		console: d.console.WithAttrs(attrs),
		file:    d.file.WithAttrs(attrs),
	}
}

func (d *dualHandler) WithGroup(name string) slog.Handler {
	return &dualHandler{
		console: d.console.WithGroup(name),
		file:    d.file.WithGroup(name),
	}
}
