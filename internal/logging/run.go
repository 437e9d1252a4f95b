package logging

import (
	"context"
	"time"

	"battery-emulator/internal/telemetry"
)

// DefaultDrainInterval is how often Run polls the Telemetry Registry for
// new event/wire records.
const DefaultDrainInterval = 200 * time.Millisecond

// Run drains reg into f every interval until ctx is canceled, then drains
// once more to flush anything published just before shutdown.
func (f *FanOut) Run(ctx context.Context, reg *telemetry.Registry, interval time.Duration) {
	if interval <= 0 {
		interval = DefaultDrainInterval
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			f.Drain(reg)
			return
		case <-ticker.C:
			f.Drain(reg)
		}
	}
}
