// Package logger builds the process-wide zap logger.
package logger

import (
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/mohammad-safakhou/searchrag/config"
)

// New returns a JSON production logger. Debug output is enabled by
// general.debug or general.log_level=debug.
func New(cfg config.GeneralConfig) (*zap.Logger, error) {
	zc := zap.NewProductionConfig()
	zc.EncoderConfig.TimeKey = "ts"
	zc.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder

	level := zapcore.InfoLevel
	if lvl := strings.TrimSpace(cfg.LogLevel); lvl != "" {
		if err := level.UnmarshalText([]byte(strings.ToLower(lvl))); err != nil {
			return nil, &config.ConfigurationError{Key: "general.log_level", Msg: err.Error()}
		}
	}
	if cfg.Debug {
		level = zapcore.DebugLevel
	}
	zc.Level = zap.NewAtomicLevelAt(level)
	if level == zapcore.DebugLevel {
		zc.Development = true
		zc.Sampling = nil
	}
	return zc.Build()
}
