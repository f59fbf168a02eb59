package config

import (
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// ParseLevel parses a zap level name
func ParseLevel(s string) (zapcore.Level, error) {
	return zapcore.ParseLevel(s)
}

// Logger builds the logger described by the log section. debug overrides
// the configured level.
func (l Log) Logger(debug bool) (*zap.Logger, error) {
	zc := zap.NewProductionConfig()
	if l.Development {
		zc = zap.NewDevelopmentConfig()
	}
	level, err := ParseLevel(l.Level)
	if err != nil {
		return nil, err
	}
	if debug {
		level = zapcore.DebugLevel
	}
	zc.Level = zap.NewAtomicLevelAt(level)
	return zc.Build()
}
