package logging

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"battery-emulator/internal/telemetry"
)

const (
	timestampLayout  = "2006-01-02 15:04:05.000"
	fileSuffixLayout = "20060102_150405"
)

// FanOut drains new entries from a telemetry.Registry's bounded event and
// wire streams into two on-disk log files, without ever blocking a
// Simulation Loop. It is owned and run by the Supervisor, never by a
// Loop.
type FanOut struct {
	eventFile *os.File
	wireFile  *os.File

	mu            sync.Mutex
	lastEventTime time.Time
	lastWireTime  time.Time
}

// NewFanOut opens event_YYYYMMDD_HHMMSS.log and scpi_YYYYMMDD_HHMMSS.log
// directly under dir (creating dir if needed), timestamped at the moment
// the run starts.
func NewFanOut(dir string) (*FanOut, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("logging: create log dir %s: %w", dir, err)
	}

	suffix := time.Now().Format(fileSuffixLayout)
	eventPath := filepath.Join(dir, fmt.Sprintf("event_%s.log", suffix))
	wirePath := filepath.Join(dir, fmt.Sprintf("scpi_%s.log", suffix))

	eventFile, err := os.OpenFile(eventPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, fmt.Errorf("logging: open %s: %w", eventPath, err)
	}
	wireFile, err := os.OpenFile(wirePath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		eventFile.Close()
		return nil, fmt.Errorf("logging: open %s: %w", wirePath, err)
	}

	return &FanOut{eventFile: eventFile, wireFile: wireFile}, nil
}

// Drain writes every event/wire record newer than the last Drain call.
// Failures are swallowed after a best-effort attempt: this path is
// diagnostic, not load-bearing.
func (f *FanOut) Drain(reg *telemetry.Registry) {
	f.mu.Lock()
	defer f.mu.Unlock()

	for _, ev := range reg.Events() {
		if !ev.Time.After(f.lastEventTime) {
			continue
		}
		line := fmt.Sprintf("%s | CH%d %s\n", ev.Time.Format(timestampLayout), ev.Channel, ev.Message)
		f.eventFile.WriteString(line)
		f.lastEventTime = ev.Time
	}

	for _, w := range reg.Wire() {
		if !w.Time.After(f.lastWireTime) {
			continue
		}
		line := fmt.Sprintf("%s | CH%d %s %s\n", w.Time.Format(timestampLayout), w.Channel, w.Direction, w.Payload)
		f.wireFile.WriteString(line)
		f.lastWireTime = w.Time
	}
}

// Close closes both underlying files.
func (f *FanOut) Close() error {
	err1 := f.eventFile.Close()
	err2 := f.wireFile.Close()
	if err1 != nil {
		return err1
	}
	return err2
}
