package utils

import (
	"sync"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

var (
	log  *zap.Logger
	once sync.Once
)

// InitLogger builds the process-wide logger. Production mode writes JSON to
// stdout and arb-bot.log; debug mode adds per-market quote noise, so it gets
// a human-readable console encoding instead.
func InitLogger(debug bool) *zap.Logger {
	once.Do(func() {
		var config zap.Config
		if debug {
			config = zap.NewDevelopmentConfig()
			config.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
		} else {
			config = zap.NewProductionConfig()
			// Every submission decision must stay traceable; never sample
			// them away.
			config.Sampling = nil
		}

		config.OutputPaths = []string{"stdout", "arb-bot.log"}
		config.ErrorOutputPaths = []string{"stderr", "arb-bot-error.log"}

		config.EncoderConfig.TimeKey = "timestamp"
		config.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder

		logger, err := config.Build(zap.AddStacktrace(zapcore.ErrorLevel))
		if err != nil {
			panic(err)
		}

		log = logger.Named("arbbot")
	})

	return log
}

// GetLogger returns the global logger, initializing a production one if
// InitLogger has not run.
func GetLogger() *zap.Logger {
	if log == nil {
		return InitLogger(false)
	}
	return log
}

// CleanupLogger flushes any buffered log entries
func CleanupLogger() {
	if log != nil {
		_ = log.Sync()
	}
}
