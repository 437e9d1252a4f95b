package recorder

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"battery-emulator/internal/telemetry"
)

func TestRecordCreatesPerChannelFileWithHeader(t *testing.T) {
	dir := t.TempDir()
	r := New(dir, "run")
	defer r.Close()

	r.Record(telemetry.Sample{Channel: 1, T: time.Now(), SOC: 0.9, VFilt: 4.1, IMeas: 1.2, Power: 4.92})
	r.Record(telemetry.Sample{Channel: 2, T: time.Now(), SOC: 0.8, VFilt: 3.9, IMeas: 0.5, Power: 1.95})

	data1, err := os.ReadFile(filepath.Join(dir, "run_ch1.csv"))
	if err != nil {
		t.Fatalf("read ch1 csv: %v", err)
	}
	if !strings.HasPrefix(string(data1), "elapsed_s,soc,v_filt,i_meas,power\n") {
		t.Fatalf("missing header: %q", data1)
	}
	if strings.Count(string(data1), "\n") != 2 {
		t.Fatalf("expected header + 1 row, got %q", data1)
	}

	if _, err := os.Stat(filepath.Join(dir, "run_ch2.csv")); err != nil {
		t.Fatalf("expected separate file for channel 2: %v", err)
	}
}

func TestRecordAppendsMultipleRowsToSameFile(t *testing.T) {
	dir := t.TempDir()
	r := New(dir, "run")
	defer r.Close()

	for i := 0; i < 5; i++ {
		r.Record(telemetry.Sample{Channel: 1, T: time.Now(), SOC: 0.9, VFilt: 4.1, IMeas: 1.0, Power: 4.1})
	}

	data, err := os.ReadFile(filepath.Join(dir, "run_ch1.csv"))
	if err != nil {
		t.Fatalf("read csv: %v", err)
	}
	if strings.Count(string(data), "\n") != 6 {
		t.Fatalf("expected header + 5 rows, got %d lines: %q", strings.Count(string(data), "\n"), data)
	}
}
