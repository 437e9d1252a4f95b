package dashboard

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"battery-emulator/internal/telemetry"
)

func TestHandleChannelsReturnsSnapshot(t *testing.T) {
	reg := telemetry.New()
	reg.Publish(telemetry.ChannelSnapshot{Channel: 1, SOC: 0.75})

	s := New(reg, true)
	req := httptest.NewRequest(http.MethodGet, "/channels", nil)
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), `"soc":0.75`) {
		t.Fatalf("body missing soc: %s", rec.Body.String())
	}
}

func TestHandleEventsReturnsAppendedEvents(t *testing.T) {
	reg := telemetry.New()
	reg.AppendEvent(1, "channel started")

	s := New(reg, true)
	req := httptest.NewRequest(http.MethodGet, "/events", nil)
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "channel started") {
		t.Fatalf("body missing event: %s", rec.Body.String())
	}
}
