// Package logging builds the zap logger shared by the gateway. Components
// derive their own scope from it with Named, so a single pipeline run can
// be followed across render, extract, and persist log lines.
package logging

import (
	"fmt"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// New returns a configured zap.Logger. Development mode gets colored
// console output for local runs; production mode emits JSON with
// stacktraces enabled so failed pipeline stages are diagnosable from logs
// alone. The time key is "ts" in both modes to keep log queries uniform.
func New(development bool) (*zap.Logger, error) {
	var cfg zap.Config
	if development {
		cfg = zap.NewDevelopmentConfig()
		cfg.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	} else {
		cfg = zap.NewProductionConfig()
		cfg.DisableStacktrace = false
	}
	cfg.EncoderConfig.TimeKey = "ts"

	logger, err := cfg.Build()
	if err != nil {
		return nil, fmt.Errorf("build logger: %w", err)
	}
	return logger, nil
}
