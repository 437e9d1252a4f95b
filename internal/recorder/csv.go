// Package recorder writes the per-channel CSV ledger of the simulation
// trajectory.
package recorder

import (
	"context"
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"battery-emulator/internal/telemetry"
)

var header = []string{"elapsed_s", "soc", "v_filt", "i_meas", "power"}

type channelWriter struct {
	file  *os.File
	w     *csv.Writer
	start time.Time
}

// Recorder fans Telemetry Registry samples out to one CSV file per
// channel, named "<prefix>_ch<N>.csv".
type Recorder struct {
	dir    string
	prefix string

	writers map[int]*channelWriter
}

// New constructs a Recorder. Files are created lazily, the first time a
// channel's Sample is observed.
func New(dir, prefix string) *Recorder {
	return &Recorder{dir: dir, prefix: prefix, writers: make(map[int]*channelWriter)}
}

func (r *Recorder) writerFor(channel int) (*channelWriter, error) {
	if cw, ok := r.writers[channel]; ok {
		return cw, nil
	}

	if err := os.MkdirAll(r.dir, 0o755); err != nil {
		return nil, fmt.Errorf("recorder: create dir %s: %w", r.dir, err)
	}

	path := filepath.Join(r.dir, fmt.Sprintf("%s_ch%d.csv", r.prefix, channel))
	f, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("recorder: create %s: %w", path, err)
	}

	w := csv.NewWriter(f)
	if err := w.Write(header); err != nil {
		f.Close()
		return nil, fmt.Errorf("recorder: write header %s: %w", path, err)
	}
	w.Flush()

	cw := &channelWriter{file: f, w: w, start: time.Now()}
	r.writers[channel] = cw
	return cw, nil
}

// Record appends one row for sample. Write failures are swallowed after
// a best-effort attempt: the CSV path is diagnostic, not load-bearing.
func (r *Recorder) Record(sample telemetry.Sample) {
	cw, err := r.writerFor(sample.Channel)
	if err != nil {
		return
	}

	row := []string{
		fmtFloat(sample.T.Sub(cw.start).Seconds()),
		fmtFloat(sample.SOC),
		fmtFloat(sample.VFilt),
		fmtFloat(sample.IMeas),
		fmtFloat(sample.Power),
	}
	cw.w.Write(row)
	cw.w.Flush()
}

// Run subscribes to reg and records every published Sample until ctx is
// canceled, then closes all open files.
func (r *Recorder) Run(ctx context.Context, reg *telemetry.Registry) {
	ch, cancel := reg.Subscribe(256)
	defer cancel()
	defer r.Close()

	for {
		select {
		case <-ctx.Done():
			return
		case sample, ok := <-ch:
			if !ok {
				return
			}
			r.Record(sample)
		}
	}
}

// Close flushes and closes every open CSV file.
func (r *Recorder) Close() {
	for _, cw := range r.writers {
		cw.w.Flush()
		cw.file.Close()
	}
}

func fmtFloat(x float64) string {
	return strconv.FormatFloat(x, 'f', 6, 64)
}
