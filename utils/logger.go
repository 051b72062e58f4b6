package utils

import (
	"sync"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

const logFile = "llamalend.log"

var (
	log   *zap.Logger
	level = zap.NewAtomicLevelAt(zapcore.InfoLevel)
	once  sync.Once
)

// buildLogger writes JSON entries to stderr and, when paths names one, a
// log file. stdout stays free for command output.
func buildLogger(paths ...string) (*zap.Logger, error) {
	config := zap.NewProductionConfig()
	config.Level = level
	config.OutputPaths = append([]string{"stderr"}, paths...)
	config.ErrorOutputPaths = []string{"stderr"}

	config.EncoderConfig.TimeKey = "timestamp"
	config.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	config.EncoderConfig.StacktraceKey = "stacktrace"

	return config.Build(
		zap.AddCaller(),
		zap.AddStacktrace(zapcore.ErrorLevel),
	)
}

func ensureLogger() *zap.Logger {
	once.Do(func() {
		logger, err := buildLogger(logFile)
		if err != nil {
			// unwritable working directory
			logger, err = buildLogger()
		}
		if err != nil {
			panic(err)
		}
		log = logger.Named("llamalend")
	})
	return log
}

// InitLogger returns the process logger, building it on first use. debug
// switches the level of the shared logger on every call.
func InitLogger(debug bool) *zap.Logger {
	if debug {
		level.SetLevel(zapcore.DebugLevel)
	} else {
		level.SetLevel(zapcore.InfoLevel)
	}
	return ensureLogger()
}

// GetLogger returns the process logger at its current level
func GetLogger() *zap.Logger {
	return ensureLogger()
}

// CleanupLogger flushes any buffered log entries
func CleanupLogger() {
	_ = ensureLogger().Sync()
}

// OrNop returns l, or a no-op logger when l is nil
func OrNop(l *zap.Logger) *zap.Logger {
	if l == nil {
		return zap.NewNop()
	}
	return l
}
