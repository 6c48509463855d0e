// Package logging is the overlay's structured logging layer, built on
// go.uber.org/zap. It keeps the same Field/Level/Logger shape the rest of
// the tree already depends on, so call sites read the same as before, but
// every line from a Named logger carries a stable component tag —
// `Overlay-UDP`, `Overlay-QUIC`, `ControlEnvelopeValidator` — in the JSON
// "logger" field via zap's logger naming, instead of hand-rolled JSON
// marshaling.
package logging

import (
	"context"
	"os"
	"strings"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Level mirrors zapcore.Level under the names the rest of the tree uses.
type Level = zapcore.Level

const (
	DebugLevel = zapcore.DebugLevel
	InfoLevel  = zapcore.InfoLevel
	WarnLevel  = zapcore.WarnLevel
	ErrorLevel = zapcore.ErrorLevel
	FatalLevel = zapcore.FatalLevel
)

// Field is a structured logging field, matching zap.Field.
type Field = zap.Field

func String(key, value string) Field                 { return zap.String(key, value) }
func Int(key string, value int) Field                { return zap.Int(key, value) }
func Bool(key string, value bool) Field              { return zap.Bool(key, value) }
func Error(err error) Field                          { return zap.Error(err) }
func Duration(key string, value time.Duration) Field { return zap.Duration(key, value) }
func Any(key string, value interface{}) Field        { return zap.Any(key, value) }

// Logger is the structured logging interface every overlay component is
// handed at construction time.
type Logger interface {
	Debug(msg string, fields ...Field)
	Info(msg string, fields ...Field)
	Warn(msg string, fields ...Field)
	Error(msg string, fields ...Field)
	Fatal(msg string, fields ...Field)

	WithContext(ctx context.Context) Logger
	WithFields(fields ...Field) Logger
	Named(component string) Logger
	SetLevel(level Level)
	GetLevel() Level
}

// zapLogger adapts *zap.Logger plus an AtomicLevel to the Logger interface.
type zapLogger struct {
	z       *zap.Logger
	atom    zap.AtomicLevel
	context context.Context
}

// New builds a Logger writing JSON lines to output at the given level. The
// returned level is adjustable at runtime via SetLevel.
func New(output zapcore.WriteSyncer, level Level) Logger {
	atom := zap.NewAtomicLevelAt(level)
	encoderCfg := zap.NewProductionEncoderConfig()
	encoderCfg.TimeKey = "timestamp"
	encoderCfg.EncodeTime = zapcore.ISO8601TimeEncoder
	encoderCfg.EncodeLevel = zapcore.CapitalLevelEncoder

	core := zapcore.NewCore(zapcore.NewJSONEncoder(encoderCfg), output, atom)
	z := zap.New(core, zap.AddCaller())
	return &zapLogger{z: z, atom: atom}
}

// NewDefault builds a stdout logger at InfoLevel, or the level named by the
// OVERLAY_LOG_LEVEL environment variable if set.
func NewDefault() Logger {
	level := InfoLevel
	if v := os.Getenv("OVERLAY_LOG_LEVEL"); v != "" {
		switch strings.ToUpper(v) {
		case "DEBUG":
			level = DebugLevel
		case "INFO":
			level = InfoLevel
		case "WARN":
			level = WarnLevel
		case "ERROR":
			level = ErrorLevel
		}
	}
	return New(zapcore.AddSync(os.Stdout), level)
}

func (l *zapLogger) Debug(msg string, fields ...Field) { l.z.Debug(msg, fields...) }
func (l *zapLogger) Info(msg string, fields ...Field)  { l.z.Info(msg, fields...) }
func (l *zapLogger) Warn(msg string, fields ...Field)  { l.z.Warn(msg, fields...) }
func (l *zapLogger) Error(msg string, fields ...Field) { l.z.Error(msg, fields...) }
func (l *zapLogger) Fatal(msg string, fields ...Field) { l.z.Fatal(msg, fields...) }

func (l *zapLogger) WithContext(ctx context.Context) Logger {
	fields := contextFields(ctx)
	return &zapLogger{z: l.z.With(fields...), atom: l.atom, context: ctx}
}

func (l *zapLogger) WithFields(fields ...Field) Logger {
	return &zapLogger{z: l.z.With(fields...), atom: l.atom, context: l.context}
}

// Named tags every subsequent log line from this logger with component in
// its "logger" field, e.g. Named("Overlay-UDP") yields "logger":"Overlay-UDP".
func (l *zapLogger) Named(component string) Logger {
	return &zapLogger{z: l.z.Named(component), atom: l.atom, context: l.context}
}

func (l *zapLogger) SetLevel(level Level) { l.atom.SetLevel(level) }
func (l *zapLogger) GetLevel() Level      { return l.atom.Level() }

func contextFields(ctx context.Context) []Field {
	if ctx == nil {
		return nil
	}
	var fields []Field
	if requestID := ctx.Value(requestIDKey{}); requestID != nil {
		fields = append(fields, zap.Any("requestId", requestID))
	}
	return fields
}

type requestIDKey struct{}

// WithRequestID stores a request id on ctx for later retrieval by
// WithContext.
func WithRequestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, requestIDKey{}, id)
}
