package config

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// LevelTrace is a custom log level below Debug for wire-level forensics.
const LevelTrace = slog.Level(-8)

// ParseLogLevel converts a string to a slog.Level.
// Supported values: trace, debug, info, warn, error (case-insensitive).
func ParseLogLevel(s string) (slog.Level, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "info":
		return slog.LevelInfo, nil
	case "trace":
		return LevelTrace, nil
	case "debug":
		return slog.LevelDebug, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return slog.LevelInfo, fmt.Errorf("unknown log level %q (valid: trace, debug, info, warn, error)", s)
	}
}

// ReplaceLogLevelNames customizes the level name for Trace in log output.
func ReplaceLogLevelNames(_ []string, a slog.Attr) slog.Attr {
	if a.Key == slog.LevelKey {
		level, ok := a.Value.Any().(slog.Level)
		if ok && level == LevelTrace {
			a.Value = slog.StringValue("TRACE")
		}
	}
	return a
}

// ReportingMode is the bitmask controlling which log sinks are active,
// per spec.md §6 ("Logging level is configurable with flags
// PRINT|LOGFILE|DATABASE (bitmask)").
type ReportingMode int

const (
	// Print sends log lines to stdout.
	Print ReportingMode = 1 << iota
	// Logfile writes log lines to LogDir/<module>.log.
	Logfile
	// Database ships log lines to the configured logstash endpoint.
	Database
)

// NewLogger builds a slog.Logger that fans out to every sink enabled in
// mode. module names the component (used for the logfile name and as a
// contextual attribute on every line, matching the structured event
// shape in spec.md §6).
func NewLogger(mode ReportingMode, module string, cfg *Config, level slog.Level) (*slog.Logger, error) {
	opts := &slog.HandlerOptions{Level: level, ReplaceAttr: ReplaceLogLevelNames}

	var handlers []slog.Handler

	if mode&Print != 0 {
		handlers = append(handlers, slog.NewJSONHandler(os.Stdout, opts))
	}

	if mode&Logfile != 0 {
		if cfg == nil || cfg.LogDir == "" {
			return nil, fmt.Errorf("logfile sink requested but log_dir is not configured")
		}
		if err := os.MkdirAll(cfg.LogDir, 0o755); err != nil {
			return nil, fmt.Errorf("create log dir %s: %w", cfg.LogDir, err)
		}
		f, err := os.OpenFile(filepath.Join(cfg.LogDir, module+".log"), os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
		if err != nil {
			return nil, fmt.Errorf("open log file: %w", err)
		}
		handlers = append(handlers, slog.NewJSONHandler(f, opts))
	}

	if mode&Database != 0 {
		if cfg == nil || cfg.LogstashHost == "" {
			return nil, fmt.Errorf("database sink requested but logstash_host is not configured")
		}
		handlers = append(handlers, newLogstashHandler(cfg.LogstashHost, cfg.LogstashPort, opts))
	}

	if len(handlers) == 0 {
		handlers = append(handlers, slog.NewJSONHandler(io.Discard, opts))
	}

	logger := slog.New(fanoutHandler{handlers: handlers}).With("module", module)
	return logger, nil
}

// fanoutHandler broadcasts every record to all wrapped handlers. This
// is the Go-idiomatic analogue of the source pipeline's pattern of
// attaching multiple logging.Handler instances to one logger.
type fanoutHandler struct {
	handlers []slog.Handler
}

func (f fanoutHandler) Enabled(_ context.Context, _ slog.Level) bool {
	return true
}

func (f fanoutHandler) Handle(ctx context.Context, r slog.Record) error {
	var firstErr error
	for _, h := range f.handlers {
		if err := h.Handle(ctx, r.Clone()); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

func (f fanoutHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	next := make([]slog.Handler, len(f.handlers))
	for i, h := range f.handlers {
		next[i] = h.WithAttrs(attrs)
	}
	return fanoutHandler{handlers: next}
}

func (f fanoutHandler) WithGroup(name string) slog.Handler {
	next := make([]slog.Handler, len(f.handlers))
	for i, h := range f.handlers {
		next[i] = h.WithGroup(name)
	}
	return fanoutHandler{handlers: next}
}

// logstashHandler posts each record as a JSON line to a logstash HTTP
// input. It wraps a slog.JSONHandler pointed at an io.Writer that
// flushes one line per record to the configured endpoint.
type logstashHandler struct {
	inner  slog.Handler
	client *http.Client
	url    string
}

func newLogstashHandler(host string, port int, opts *slog.HandlerOptions) slog.Handler {
	w := &logstashWriter{}
	h := &logstashHandler{
		inner:  slog.NewJSONHandler(w, opts),
		client: &http.Client{Timeout: 5 * time.Second},
		url:    fmt.Sprintf("http://%s:%d", host, port),
	}
	w.post = h.post
	return h
}

type logstashWriter struct {
	post func([]byte)
}

func (w *logstashWriter) Write(p []byte) (int, error) {
	buf := make([]byte, len(p))
	copy(buf, p)
	if w.post != nil {
		go w.post(buf)
	}
	return len(p), nil
}

func (h *logstashHandler) post(body []byte) {
	req, err := http.NewRequest(http.MethodPost, h.url, bytes.NewReader(body))
	if err != nil {
		return
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := h.client.Do(req)
	if err != nil {
		return
	}
	resp.Body.Close()
}

func (h *logstashHandler) Enabled(_ context.Context, _ slog.Level) bool { return true }
func (h *logstashHandler) Handle(ctx context.Context, r slog.Record) error {
	return h.inner.Handle(ctx, r)
}
func (h *logstashHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return &logstashHandler{inner: h.inner.WithAttrs(attrs), client: h.client, url: h.url}
}
func (h *logstashHandler) WithGroup(name string) slog.Handler {
	return &logstashHandler{inner: h.inner.WithGroup(name), client: h.client, url: h.url}
}
