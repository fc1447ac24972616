package telemetry

import (
	"context"
	"io"
	"os"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel/trace"

	"github.com/openfroyo/editengine/pkg/edit"
)

// Logger is a zerolog logger that carries edit context: the engine key,
// request kind, object and acting viewer.
type Logger struct {
	zlog zerolog.Logger
	file io.Closer
}

type loggerContextKey struct{}

// NewLogger builds a logger writing to stdout, stderr or an append-only
// log file.
func NewLogger(cfg LoggingConfig) (*Logger, error) {
	l := &Logger{}

	var w io.Writer
	switch cfg.Output {
	case "", "stdout":
		w = os.Stdout
	case "stderr":
		w = os.Stderr
	default:
		f, err := os.OpenFile(cfg.Output, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
		if err != nil {
			return nil, err
		}
		w, l.file = f, f
	}

	if cfg.Format == "console" {
		w = zerolog.ConsoleWriter{Out: w, TimeFormat: consoleTimeFormat(cfg.TimeFormat)}
	}
	zerolog.TimeFieldFormat = timeFieldFormat(cfg.TimeFormat)

	zctx := zerolog.New(w).Level(parseLogLevel(cfg.Level)).With().Timestamp()
	if cfg.EnableCaller {
		zctx = zctx.Caller()
	}
	l.zlog = zctx.Logger()

	if cfg.EnableSampling {
		l.zlog = l.zlog.Sample(&zerolog.BurstSampler{
			Burst:       uint32(cfg.SamplingInitial),
			Period:      time.Second,
			NextSampler: &zerolog.BasicSampler{N: uint32(cfg.SamplingThereafter)},
		})
	}
	return l, nil
}

// Close releases the log file, if any.
func (l *Logger) Close() error {
	if l.file == nil {
		return nil
	}
	return l.file.Close()
}

func (l *Logger) with(zlog zerolog.Logger) *Logger {
	return &Logger{zlog: zlog, file: l.file}
}

// NewComponentLogger creates a child logger for a specific component.
func (l *Logger) NewComponentLogger(component string) *Logger {
	return l.with(l.zlog.With().Str("component", component).Logger())
}

// WithContext adds the logger to the context.
func (l *Logger) WithContext(ctx context.Context) context.Context {
	return context.WithValue(ctx, loggerContextKey{}, l)
}

// FromContext retrieves the logger from the context, falling back to the
// process-wide zerolog logger.
func FromContext(ctx context.Context) *Logger {
	if l, ok := ctx.Value(loggerContextKey{}).(*Logger); ok {
		return l
	}
	return &Logger{zlog: log.Logger}
}

// WithField returns a logger with a single additional field.
func (l *Logger) WithField(key string, value any) *Logger {
	return l.with(l.zlog.With().Interface(key, value).Logger())
}

// WithEngine adds the edit engine key.
func (l *Logger) WithEngine(engineKey string) *Logger {
	return l.with(l.zlog.With().Str("engine", engineKey).Logger())
}

// WithEdit adds the engine key and the kind of edit request.
func (l *Logger) WithEdit(engineKey string, kind edit.RequestKind) *Logger {
	return l.with(l.zlog.With().Str("engine", engineKey).Str("kind", string(kind)).Logger())
}

// WithOutcome adds how an edit ended and how long it took.
func (l *Logger) WithOutcome(outcome string, d time.Duration) *Logger {
	return l.with(l.zlog.With().Str("outcome", outcome).Dur("duration", d).Logger())
}

// WithObject adds the object PHID.
func (l *Logger) WithObject(phid string) *Logger {
	return l.with(l.zlog.With().Str("object", phid).Logger())
}

// WithViewer adds the acting viewer PHID.
func (l *Logger) WithViewer(phid string) *Logger {
	return l.with(l.zlog.With().Str("viewer", phid).Logger())
}

// WithSpan adds trace and span ids when sc is valid.
func (l *Logger) WithSpan(sc trace.SpanContext) *Logger {
	if !sc.IsValid() {
		return l
	}
	return l.with(l.zlog.With().
		Str("trace_id", sc.TraceID().String()).
		Str("span_id", sc.SpanID().String()).
		Logger())
}

// WithError adds error information to the logger. Edit errors also carry
// their class and code.
func (l *Logger) WithError(err error) *Logger {
	zctx := l.zlog.With().Err(err)
	if ee, ok := edit.AsError(err); ok {
		zctx = zctx.Str("error_class", string(ee.Class))
		if ee.Code != "" {
			zctx = zctx.Str("error_code", ee.Code)
		}
	}
	return l.with(zctx.Logger())
}

// Zerolog returns the underlying zerolog logger, for packages that take a
// zerolog.Logger directly.
func (l *Logger) Zerolog() zerolog.Logger {
	return l.zlog
}

func (l *Logger) Debug(msg string) { l.zlog.Debug().Msg(msg) }
func (l *Logger) Info(msg string)  { l.zlog.Info().Msg(msg) }
func (l *Logger) Error(msg string) { l.zlog.Error().Msg(msg) }

func parseLogLevel(level string) zerolog.Level {
	switch level {
	case "trace":
		return zerolog.TraceLevel
	case "debug":
		return zerolog.DebugLevel
	case "warn":
		return zerolog.WarnLevel
	case "error":
		return zerolog.ErrorLevel
	case "fatal":
		return zerolog.FatalLevel
	default:
		return zerolog.InfoLevel
	}
}

func timeFieldFormat(format string) string {
	switch format {
	case "unix":
		return zerolog.TimeFormatUnix
	case "unixms":
		return zerolog.TimeFormatUnixMs
	case "unixmicro":
		return zerolog.TimeFormatUnixMicro
	default:
		return time.RFC3339
	}
}

func consoleTimeFormat(format string) string {
	if format == "unix" {
		return "unix"
	}
	return time.RFC3339
}
