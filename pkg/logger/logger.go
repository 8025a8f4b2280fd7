package logger

import (
	"context"
	"io"
	"maps"
	"os"
	"runtime/debug"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/angelmondragon/digital-fulfillment/pkg/config"
)

const redacted = "[redacted]"

// sensitiveKeys never reach the log output. Digital codes are the product
// being sold, so a leaked log line is a leaked sale.
var sensitiveKeys = map[string]struct{}{
	"code":          {},
	"codes":         {},
	"code_value":    {},
	"password":      {},
	"token":         {},
	"authorization": {},
	"api_key":       {},
}

// Options configures the structured logger.
type Options struct {
	ServiceName string
	Instance    string
	Level       zerolog.Level
	WarnStack   bool
	Console     bool
	Output      io.Writer
}

// FromConfig builds the options every binary uses once config is loaded.
func FromConfig(service string, app config.AppConfig) Options {
	return Options{
		ServiceName: service,
		Level:       ParseLevel(app.LogLevel),
		WarnStack:   app.LogWarnStack,
		Console:     strings.EqualFold(app.LogFormat, "console"),
	}
}

// Logger keeps per-request fields on the context so call sites only pass ctx.
// A key tagged twice keeps its latest value and is written once.
type Logger struct {
	base      *zerolog.Logger
	warnStack bool
}

type ctxKey struct{}

type scope struct {
	fields map[string]any
	entry  *zerolog.Logger
}

func New(opts Options) *Logger {
	if opts.Level == zerolog.NoLevel {
		opts.Level = zerolog.InfoLevel
	}
	out := opts.Output
	if out == nil {
		out = os.Stdout
	}
	if opts.Console {
		out = zerolog.ConsoleWriter{Out: out, TimeFormat: "15:04:05"}
	}
	zerolog.TimeFieldFormat = time.RFC3339Nano

	fields := zerolog.New(out).With().Timestamp().Str("service", opts.ServiceName)
	if opts.Instance != "" {
		fields = fields.Str("instance", opts.Instance)
	}
	base := fields.Logger().Level(opts.Level)
	return &Logger{base: &base, warnStack: opts.WarnStack}
}

// ParseLevel maps a config string onto a zerolog level, defaulting to info.
func ParseLevel(value string) zerolog.Level {
	lvl, err := zerolog.ParseLevel(strings.ToLower(strings.TrimSpace(value)))
	if err != nil || lvl == zerolog.NoLevel {
		return zerolog.InfoLevel
	}
	return lvl
}

func scopeOf(ctx context.Context) *scope {
	if ctx == nil {
		return nil
	}
	s, _ := ctx.Value(ctxKey{}).(*scope)
	return s
}

func (l *Logger) from(ctx context.Context) *zerolog.Logger {
	if s := scopeOf(ctx); s != nil {
		return s.entry
	}
	return l.base
}

func (l *Logger) with(ctx context.Context, fields map[string]any) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	merged := make(map[string]any, len(fields))
	if parent := scopeOf(ctx); parent != nil {
		maps.Copy(merged, parent.fields)
	}
	for k, v := range fields {
		if _, secret := sensitiveKeys[strings.ToLower(k)]; secret {
			v = redacted
		}
		merged[k] = v
	}
	entry := l.base.With().Fields(merged).Logger()
	return context.WithValue(ctx, ctxKey{}, &scope{fields: merged, entry: &entry})
}

func (l *Logger) WithField(ctx context.Context, key string, value any) context.Context {
	return l.with(ctx, map[string]any{key: value})
}

func (l *Logger) WithFields(ctx context.Context, fields map[string]any) context.Context {
	return l.with(ctx, fields)
}

func (l *Logger) WithRequestID(ctx context.Context, requestID string) context.Context {
	return l.with(ctx, map[string]any{"request_id": requestID})
}

func (l *Logger) WithEventID(ctx context.Context, eventID string) context.Context {
	return l.with(ctx, map[string]any{"event_id": eventID})
}

func (l *Logger) WithOrderID(ctx context.Context, orderID string) context.Context {
	return l.with(ctx, map[string]any{"order_id": orderID})
}

// WithOrderItem tags the context with the marketplace order/item pair being fulfilled.
func (l *Logger) WithOrderItem(ctx context.Context, orderID, itemID string) context.Context {
	return l.with(ctx, map[string]any{"order_id": orderID, "item_id": itemID})
}

func (l *Logger) Info(ctx context.Context, msg string) {
	l.from(ctx).Info().Msg(msg)
}

func (l *Logger) Debug(ctx context.Context, msg string) {
	l.from(ctx).Debug().Msg(msg)
}

func (l *Logger) Warn(ctx context.Context, msg string) {
	l.warn(ctx, msg, nil)
}

// WarnErr logs an expected failure (one the caller recovers from) without a stack trace.
func (l *Logger) WarnErr(ctx context.Context, msg string, err error) {
	l.warn(ctx, msg, err)
}

func (l *Logger) warn(ctx context.Context, msg string, err error) {
	event := l.from(ctx).Warn()
	if err != nil {
		event = event.Err(err)
	}
	if l.warnStack {
		event = event.Str("stack", stackTrace())
	}
	event.Msg(msg)
}

func (l *Logger) Error(ctx context.Context, msg string, err error) {
	event := l.from(ctx).Error()
	if err != nil {
		event = event.Err(err)
	}
	event.Str("stack", stackTrace()).Msg(msg)
}

func stackTrace() string {
	return strings.TrimSpace(string(debug.Stack()))
}
