package logger

import (
	"context"
	"io"
	"os"
	"runtime/debug"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/trace"

	"github.com/molimor/molimor-backend/pkg/env"
	pkgerrors "github.com/molimor/molimor-backend/pkg/errors"
)

const (
	FormatJSON    = "json"
	FormatConsole = "console"
)

type Options struct {
	ServiceName string
	Level       zerolog.Level
	// WarnStack attaches a stack trace to warnings as well as errors.
	WarnStack bool
	Output    io.Writer
	// Format is json or console. Empty reads LOG_FORMAT.
	Format string
}

// Logger writes JSON lines through zerolog. Fields added with WithField and
// friends travel in the context, so every log call under a request carries
// the request id, user id and order id it has collected so far.
type Logger struct {
	base      *zerolog.Logger
	warnStack bool
}

type ctxKey struct{}

func New(opts Options) *Logger {
	if opts.Level == zerolog.NoLevel {
		opts.Level = zerolog.InfoLevel
	}
	output := opts.Output
	if output == nil {
		output = os.Stdout
	}
	format := opts.Format
	if format == "" {
		format = env.Get("LOG_FORMAT", FormatJSON)
	}
	if strings.EqualFold(format, FormatConsole) {
		output = zerolog.ConsoleWriter{Out: output, TimeFormat: "15:04:05"}
	}

	zerolog.TimeFieldFormat = time.RFC3339Nano
	base := zerolog.New(output).
		Level(opts.Level).
		With().
		Timestamp().
		Str("service", opts.ServiceName).
		Logger()
	return &Logger{base: &base, warnStack: opts.WarnStack}
}

// Nop discards everything.
func Nop() *Logger {
	l := zerolog.Nop()
	return &Logger{base: &l}
}

// ParseLevel maps a config string to a zerolog level; unknown values yield NoLevel
// so New can fall back to info.
func ParseLevel(value string) zerolog.Level {
	value = strings.ToLower(strings.TrimSpace(value))
	if value == "" {
		return zerolog.NoLevel
	}
	lvl, err := zerolog.ParseLevel(value)
	if err != nil {
		return zerolog.NoLevel
	}
	return lvl
}

func (l *Logger) from(ctx context.Context) *zerolog.Logger {
	if ctx != nil {
		if entry, ok := ctx.Value(ctxKey{}).(*zerolog.Logger); ok {
			return entry
		}
	}
	return l.base
}

func (l *Logger) with(ctx context.Context, build func(zerolog.Context) zerolog.Context) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	entry := build(l.from(ctx).With()).Logger()
	return context.WithValue(ctx, ctxKey{}, &entry)
}

func (l *Logger) WithField(ctx context.Context, key string, value any) context.Context {
	return l.with(ctx, func(c zerolog.Context) zerolog.Context { return c.Interface(key, value) })
}

func (l *Logger) WithFields(ctx context.Context, fields map[string]any) context.Context {
	return l.with(ctx, func(c zerolog.Context) zerolog.Context { return c.Fields(fields) })
}

func (l *Logger) WithRequestID(ctx context.Context, requestID string) context.Context {
	return l.WithField(ctx, "request_id", requestID)
}

func (l *Logger) WithUserID(ctx context.Context, userID string) context.Context {
	return l.WithField(ctx, "user_id", userID)
}

func (l *Logger) WithOrderID(ctx context.Context, orderID string) context.Context {
	return l.WithField(ctx, "order_id", orderID)
}

func (l *Logger) WithActorRole(ctx context.Context, role string) context.Context {
	return l.WithField(ctx, "actor_role", role)
}

// event starts an entry and stamps it with the active trace, if any.
func (l *Logger) event(ctx context.Context, level zerolog.Level) *zerolog.Event {
	e := l.from(ctx).WithLevel(level)
	if ctx == nil || e == nil {
		return e
	}
	if sc := trace.SpanContextFromContext(ctx); sc.IsValid() {
		e = e.Str("trace_id", sc.TraceID().String()).Str("span_id", sc.SpanID().String())
	}
	return e
}

func (l *Logger) Debug(ctx context.Context, msg string) {
	l.event(ctx, zerolog.DebugLevel).Msg(msg)
}

func (l *Logger) Info(ctx context.Context, msg string) {
	l.event(ctx, zerolog.InfoLevel).Msg(msg)
}

func (l *Logger) Warn(ctx context.Context, msg string) {
	e := l.event(ctx, zerolog.WarnLevel)
	if l.warnStack {
		e = e.Str("stack", stackTrace())
	}
	e.Msg(msg)
}

// Error logs err with a stack trace. Typed errors add their code.
func (l *Logger) Error(ctx context.Context, msg string, err error) {
	e := l.event(ctx, zerolog.ErrorLevel)
	if err != nil {
		e = e.Err(err)
		if typed := pkgerrors.As(err); typed != nil {
			e = e.Str("error_code", string(typed.Code()))
		}
	}
	e.Str("stack", stackTrace()).Msg(msg)
}

func stackTrace() string {
	return strings.TrimSpace(string(debug.Stack()))
}
