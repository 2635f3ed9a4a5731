// Package log provides structured logging for the hopper pipeline.
//
// Two logger variants are available:
//   - Logger: Non-sugared zap.Logger for the pipeline core (high performance, structured fields)
//   - SugaredLogger: Printf-style logging for CLI surfaces (convenience over performance)
//
// Use Logger.Sugar() to obtain a SugaredLogger when needed.
//
// The pipeline core logs through a tee: one copy to stderr for the operator,
// one copy to a Capture file that the log flush scheduler periodically
// uploads to the blob store and truncates.
package log

import (
	"io"
	"os"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Logger provides structured logging with run context.
// Every entry carries the run_id field identifying this pipeline run.
type Logger struct {
	zap   *zap.Logger
	runID string
}

// SugaredLogger provides printf-style logging for CLI surfaces.
type SugaredLogger struct {
	sugar *zap.SugaredLogger
}

// NewLogger creates a logger writing to os.Stderr.
func NewLogger(runID string) *Logger {
	return newLoggerWithWriters(runID, os.Stderr)
}

// NewTeeLogger creates a logger writing to os.Stderr and to the given
// capture sink. The capture copy is what the flush scheduler ships to
// the blob store.
func NewTeeLogger(runID string, capture *Capture) *Logger {
	return newLoggerWithWriters(runID, os.Stderr, capture)
}

// WithOutput returns a new logger with a different output writer.
// The run context fields are preserved.
func (l *Logger) WithOutput(w io.Writer) *Logger {
	return newLoggerWithWriters(l.runID, w)
}

func newLoggerWithWriters(runID string, writers ...io.Writer) *Logger {
	cores := make([]zapcore.Core, 0, len(writers))
	for _, w := range writers {
		cores = append(cores, newCore(w))
	}

	zapLogger := zap.New(zapcore.NewTee(cores...)).With(zap.String("run_id", runID))
	return &Logger{zap: zapLogger, runID: runID}
}

func newCore(w io.Writer) zapcore.Core {
	encoderConfig := zapcore.EncoderConfig{
		TimeKey:     "timestamp",
		LevelKey:    "level",
		MessageKey:  "message",
		EncodeTime:  zapcore.RFC3339NanoTimeEncoder,
		EncodeLevel: zapcore.LowercaseLevelEncoder,
	}
	return zapcore.NewCore(
		zapcore.NewJSONEncoder(encoderConfig),
		zapcore.AddSync(w),
		zapcore.DebugLevel,
	)
}

// Debug logs a debug message.
func (l *Logger) Debug(message string, fields map[string]any) {
	l.zap.Debug(message, zap.Any("fields", fields))
}

// Info logs an info message.
func (l *Logger) Info(message string, fields map[string]any) {
	l.zap.Info(message, zap.Any("fields", fields))
}

// Warn logs a warning message.
func (l *Logger) Warn(message string, fields map[string]any) {
	l.zap.Warn(message, zap.Any("fields", fields))
}

// Error logs an error message.
func (l *Logger) Error(message string, fields map[string]any) {
	l.zap.Error(message, zap.Any("fields", fields))
}

// Sync flushes any buffered log entries.
func (l *Logger) Sync() error {
	return l.zap.Sync()
}

// Sugar returns a SugaredLogger for printf-style logging.
// Use for CLI surfaces where convenience matters more than performance.
func (l *Logger) Sugar() *SugaredLogger {
	return &SugaredLogger{sugar: l.zap.Sugar()}
}

// Debugf logs a debug message with printf-style formatting.
func (s *SugaredLogger) Debugf(template string, args ...any) {
	s.sugar.Debugf(template, args...)
}

// Infof logs an info message with printf-style formatting.
func (s *SugaredLogger) Infof(template string, args ...any) {
	s.sugar.Infof(template, args...)
}

// Warnf logs a warning message with printf-style formatting.
func (s *SugaredLogger) Warnf(template string, args ...any) {
	s.sugar.Warnf(template, args...)
}

// Errorf logs an error message with printf-style formatting.
func (s *SugaredLogger) Errorf(template string, args ...any) {
	s.sugar.Errorf(template, args...)
}

// With returns a SugaredLogger with additional context fields.
func (s *SugaredLogger) With(args ...any) *SugaredLogger {
	return &SugaredLogger{sugar: s.sugar.With(args...)}
}
