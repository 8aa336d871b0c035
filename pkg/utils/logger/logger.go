package logger

import (
	"context"
	"fmt"
	"os"
	"sync/atomic"
	"time"

	"neurojudge/pkg/utils/contextkey"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Config selects level, encoding and sinks for the evaluator log.
type Config struct {
	Level      string `yaml:"level"`
	Format     string `yaml:"format"` // json or console
	OutputPath string `yaml:"outputPath"`
	ErrorPath  string `yaml:"errorPath"`
}

var global atomic.Pointer[zap.Logger]

func init() {
	global.Store(zap.NewNop())
}

// Init replaces the process logger. Until it is called, logging is a no-op.
func Init(cfg Config) error {
	l, err := build(cfg)
	if err != nil {
		return err
	}
	global.Store(l)
	return nil
}

func build(cfg Config) (*zap.Logger, error) {
	level := zapcore.InfoLevel
	if cfg.Level != "" {
		if err := level.UnmarshalText([]byte(cfg.Level)); err != nil {
			return nil, fmt.Errorf("invalid log level %q: %w", cfg.Level, err)
		}
	}

	encCfg := zapcore.EncoderConfig{
		TimeKey:        "time",
		LevelKey:       "level",
		NameKey:        "logger",
		CallerKey:      "caller",
		MessageKey:     "msg",
		StacktraceKey:  "stacktrace",
		LineEnding:     zapcore.DefaultLineEnding,
		EncodeLevel:    zapcore.LowercaseLevelEncoder,
		EncodeTime:     zapcore.TimeEncoderOfLayout(time.RFC3339),
		EncodeDuration: zapcore.StringDurationEncoder,
		EncodeCaller:   zapcore.ShortCallerEncoder,
	}
	var enc zapcore.Encoder
	if cfg.Format == "json" {
		enc = zapcore.NewJSONEncoder(encCfg)
	} else {
		encCfg.EncodeLevel = zapcore.CapitalColorLevelEncoder
		enc = zapcore.NewConsoleEncoder(encCfg)
	}

	out, err := openSink(cfg.OutputPath, os.Stdout)
	if err != nil {
		return nil, err
	}
	errOut, err := openSink(cfg.ErrorPath, os.Stderr)
	if err != nil {
		return nil, err
	}

	return zap.New(zapcore.NewCore(enc, out, level),
		zap.AddCaller(),
		zap.AddCallerSkip(1),
		zap.AddStacktrace(zapcore.ErrorLevel),
		zap.ErrorOutput(errOut),
	), nil
}

// openSink maps "", "stdout" and "stderr" to the std streams and anything else to an append-only file.
func openSink(path string, fallback *os.File) (zapcore.WriteSyncer, error) {
	switch path {
	case "":
		return zapcore.Lock(fallback), nil
	case "stdout":
		return zapcore.Lock(os.Stdout), nil
	case "stderr":
		return zapcore.Lock(os.Stderr), nil
	}
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open log file %s: %w", path, err)
	}
	return zapcore.AddSync(f), nil
}

// WithSubmission tags log lines emitted under ctx with the submission id.
func WithSubmission(ctx context.Context, id int64) context.Context {
	return context.WithValue(ctx, contextkey.SubmissionID, id)
}

// WithPhase tags log lines emitted under ctx with the lifecycle phase.
func WithPhase(ctx context.Context, phase string) context.Context {
	return context.WithValue(ctx, contextkey.Phase, phase)
}

func contextFields(ctx context.Context) []zap.Field {
	if ctx == nil {
		return nil
	}
	var fields []zap.Field
	if v, ok := ctx.Value(contextkey.TraceID).(string); ok && v != "" {
		fields = append(fields, zap.String("trace_id", v))
	}
	if v, ok := ctx.Value(contextkey.RequestID).(string); ok && v != "" {
		fields = append(fields, zap.String("request_id", v))
	}
	if v, ok := ctx.Value(contextkey.SubmissionID).(int64); ok {
		fields = append(fields, zap.Int64("submission_id", v))
	}
	if v, ok := ctx.Value(contextkey.Phase).(string); ok && v != "" {
		fields = append(fields, zap.String("phase", v))
	}
	return fields
}

func log(ctx context.Context, level zapcore.Level, msg string, fields []zap.Field) {
	l := global.Load()
	if ce := l.Check(level, msg); ce != nil {
		ce.Write(append(contextFields(ctx), fields...)...)
	}
}

func Debug(ctx context.Context, msg string, fields ...zap.Field) {
	log(ctx, zapcore.DebugLevel, msg, fields)
}

func Info(ctx context.Context, msg string, fields ...zap.Field) {
	log(ctx, zapcore.InfoLevel, msg, fields)
}

func Warn(ctx context.Context, msg string, fields ...zap.Field) {
	log(ctx, zapcore.WarnLevel, msg, fields)
}

func Error(ctx context.Context, msg string, fields ...zap.Field) {
	log(ctx, zapcore.ErrorLevel, msg, fields)
}

// Sync flushes buffered entries; call it once on shutdown.
func Sync() error {
	return global.Load().Sync()
}
