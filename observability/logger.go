package observability

import (
	"os"
	"sync"
	"sync/atomic"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"

	"safewalk-api/config"
)

var (
	globalLogger atomic.Pointer[zap.Logger]
	once         sync.Once
)

// InitializeLogger builds the process-wide logger. Later calls are no-ops.
func InitializeLogger(cfg config.LogConfig) {
	once.Do(func() {
		globalLogger.Store(NewLogger(cfg))
	})
}

// NewLogger builds a logger without touching the global one.
func NewLogger(cfg config.LogConfig) *zap.Logger {
	level := zap.NewAtomicLevel()
	if err := level.UnmarshalText([]byte(cfg.Level)); err != nil {
		level.SetLevel(zap.InfoLevel)
	}

	cores := []zapcore.Core{
		zapcore.NewCore(encoder(cfg.Format), zapcore.Lock(os.Stdout), level),
	}

	if cfg.LogFile != "" {
		// Files always get JSON.
		writer := zapcore.AddSync(&lumberjack.Logger{
			Filename:   cfg.LogFile,
			MaxSize:    100,
			MaxBackups: 5,
			MaxAge:     28,
			Compress:   true,
		})
		cores = append(cores, zapcore.NewCore(encoder("json"), writer, level))
	}

	return zap.New(zapcore.NewTee(cores...), zap.AddCaller())
}

func encoder(format string) zapcore.Encoder {
	encCfg := zap.NewProductionEncoderConfig()
	encCfg.EncodeTime = zapcore.ISO8601TimeEncoder
	if format == "console" {
		encCfg.EncodeLevel = zapcore.CapitalColorLevelEncoder
		return zapcore.NewConsoleEncoder(encCfg)
	}
	return zapcore.NewJSONEncoder(encCfg)
}

// GetLogger returns the global logger, or a no-op logger before initialization.
func GetLogger() *zap.Logger {
	if l := globalLogger.Load(); l != nil {
		return l
	}
	return zap.NewNop()
}

func Sync() {
	if l := globalLogger.Load(); l != nil {
		_ = l.Sync()
	}
}
