// Package logging builds the process-wide structured logger and the
// best-effort fan-out of the Telemetry Registry's event/wire streams to
// on-disk files.
package logging

import (
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// New builds the process-wide *zap.Logger. dev selects zap's
// human-readable development encoder; production runs use the default
// JSON encoder.
func New(dev bool, runID string) (*zap.Logger, error) {
	var cfg zap.Config
	if dev {
		cfg = zap.NewDevelopmentConfig()
	} else {
		cfg = zap.NewProductionConfig()
	}
	cfg.EncoderConfig.TimeKey = "ts"
	cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder

	logger, err := cfg.Build()
	if err != nil {
		return nil, err
	}
	return logger.With(zap.String("run_id", runID)), nil
}

// ForChannel returns a child logger tagged with the channel index, used
// by the Supervisor when spawning one Simulation Loop per channel.
func ForChannel(base *zap.Logger, channel int) *zap.Logger {
	return base.With(zap.Int("channel", channel))
}
