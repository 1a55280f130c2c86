package core

import (
	"fmt"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Init initializes zap's global logger.
// After calling this, we use zap.L() directly.
func Init(pretty bool) error {
	var config zap.Config

	if pretty {
		config = zap.NewDevelopmentConfig()
		config.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	} else {
		config = zap.NewProductionConfig()
		config.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	}

	logger, err := config.Build()
	if err != nil {
		return fmt.Errorf("failed to build logger: %w", err)
	}

	zap.ReplaceGlobals(logger)
	return nil
}

// LogToolCall logs one dispatched tool call using zap's global logger.
func LogToolCall(toolName string, invocationID string, depth int, duration float64, err error) {
	fields := []zap.Field{
		zap.String("tool", toolName),
		zap.String("invocation_id", invocationID),
		zap.Int("depth", depth),
		zap.Float64("duration_seconds", duration),
		zap.Bool("success", err == nil),
	}

	if err != nil {
		fields = append(fields, zap.Error(err))
		zap.L().Error("Tool call failed", fields...)
		return
	}

	if depth > 0 {
		// Nested-call demonstration line consumed by external validation tooling.
		zap.L().Info("Nested tool call completed", fields...)
		return
	}

	zap.L().Info("Tool call completed", fields...)
}

// LogPanicRecovery logs a recovered panic using zap's global logger.
func LogPanicRecovery(operation string, recovered any) {
	zap.L().Error("Panic recovered",
		zap.String("operation", operation),
		zap.Any("panic", recovered))
}

// LogDeferredError runs a cleanup function and logs its error, if any.
// Intended for use in defer statements where the error cannot be returned.
func LogDeferredError(fn func() error) {
	if err := fn(); err != nil {
		zap.L().Debug("Deferred cleanup failed", zap.Error(err))
	}
}
