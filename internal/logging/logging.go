package logging

import (
	"os"
	"sync"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"golang.org/x/term"
)

var (
	sugar        *zap.SugaredLogger
	logger       *zap.Logger
	loggerOnce   sync.Once
	currentLevel = zap.NewAtomicLevelAt(zap.InfoLevel)
)

// ANSI color codes
const (
	colorReset  = "\033[0m"
	colorRed    = "\033[31m"
	colorGreen  = "\033[32m"
	colorYellow = "\033[33m"
	colorPurple = "\033[35m"
	colorCyan   = "\033[36m"
	colorGray   = "\033[37m"
)

func coloredLevelEncoder(l zapcore.Level, enc zapcore.PrimitiveArrayEncoder) {
	var color string
	switch l {
	case zapcore.DebugLevel:
		color = colorCyan
	case zapcore.InfoLevel:
		color = colorGreen
	case zapcore.WarnLevel:
		color = colorYellow
	case zapcore.ErrorLevel, zapcore.FatalLevel:
		color = colorRed
	case zapcore.DPanicLevel, zapcore.PanicLevel:
		color = colorPurple
	default:
		color = colorGray
	}
	enc.AppendString(color + l.CapitalString() + colorReset)
}

// InitLogger builds the process logger on first use and afterwards only
// switches the level between info and debug.
func InitLogger(verbose bool) error {
	var err error
	loggerOnce.Do(func() {
		config := zap.NewDevelopmentConfig()
		config.Level = currentLevel
		config.DisableStacktrace = true
		config.EncoderConfig.TimeKey = "timestamp"
		config.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
		if term.IsTerminal(int(os.Stderr.Fd())) {
			config.EncoderConfig.EncodeLevel = coloredLevelEncoder
		} else {
			config.EncoderConfig.EncodeLevel = zapcore.CapitalLevelEncoder
		}

		logger, err = config.Build()
		if err != nil {
			return
		}
		sugar = logger.Sugar()
	})

	if verbose {
		currentLevel.SetLevel(zap.DebugLevel)
	} else {
		currentLevel.SetLevel(zap.InfoLevel)
	}
	return err
}

// GetLogger returns the process logger, or a no-op logger before InitLogger.
func GetLogger() *zap.Logger {
	if logger == nil {
		return zap.NewNop()
	}
	return logger
}

// GetSugar returns the sugared process logger, or a no-op logger before
// InitLogger.
func GetSugar() *zap.SugaredLogger {
	if sugar == nil {
		return zap.NewNop().Sugar()
	}
	return sugar
}

// SyncLogger flushes any buffered log entries
func SyncLogger() {
	if logger != nil {
		_ = logger.Sync() // stderr sync fails on some terminals
	}
}
