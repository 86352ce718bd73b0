// Package logging provides the application.Logger implementation every
// long-running component receives by constructor injection.
package logging

import (
	"os"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"

	"relaytunnel/application"
)

// ZapLogger adapts a zap.SugaredLogger to application.Logger, writing to
// stdout and to a size-rotated log file.
type ZapLogger struct {
	sugar *zap.SugaredLogger
}

var _ application.Logger = (*ZapLogger)(nil)

// NewZapLogger builds a ZapLogger that rotates logFilePath at 100MB,
// keeping up to 5 backups for 28 days, alongside a stdout stream for
// interactive runs.
func NewZapLogger(logFilePath string) *ZapLogger {
	fileSink := zapcore.AddSync(&lumberjack.Logger{
		Filename:   logFilePath,
		MaxSize:    100,
		MaxBackups: 5,
		MaxAge:     28,
		Compress:   true,
	})
	stdoutSink := zapcore.AddSync(os.Stdout)

	encoderCfg := zap.NewProductionEncoderConfig()
	encoderCfg.EncodeTime = zapcore.ISO8601TimeEncoder
	encoder := zapcore.NewConsoleEncoder(encoderCfg)

	core := zapcore.NewTee(
		zapcore.NewCore(encoder, fileSink, zapcore.InfoLevel),
		zapcore.NewCore(encoder, stdoutSink, zapcore.InfoLevel),
	)

	return &ZapLogger{sugar: zap.New(core).Sugar()}
}

// Printf implements application.Logger.
func (l *ZapLogger) Printf(format string, v ...any) {
	l.sugar.Infof(format, v...)
}

// Sync flushes any buffered log entries; callers should defer it at
// shutdown.
func (l *ZapLogger) Sync() error {
	return l.sugar.Sync()
}
