// Package monitoring holds the process-wide diagnostic logger.
package monitoring

import (
	"log"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Logf is the package-level diagnostic logger. It defaults to log.Printf but may
// be replaced by SetLogger. Tests or production code can redirect or mute it.
var Logf func(format string, v ...interface{}) = log.Printf

// SetLogger replaces the package logger. Passing nil will set a no-op logger.
func SetLogger(f func(format string, v ...interface{})) {
	if f == nil {
		Logf = func(string, ...interface{}) {}
		return
	}
	Logf = f
}

// UseZap routes Logf through l at info level.
func UseZap(l *zap.Logger) {
	if l == nil {
		SetLogger(nil)
		return
	}
	SetLogger(l.WithOptions(zap.AddCallerSkip(1)).Sugar().Infof)
}

// NewLogger builds the console logger used by the binary.
func NewLogger(debug bool) (*zap.Logger, error) {
	cfg := zap.NewDevelopmentConfig()
	cfg.EncoderConfig.EncodeTime = zapcore.TimeEncoderOfLayout("15:04:05.000")
	if !debug {
		cfg.Level = zap.NewAtomicLevelAt(zap.InfoLevel)
		cfg.Development = false
	}
	return cfg.Build()
}
