// Package metrics exports the Telemetry Registry as Prometheus gauges,
// independent of the dashboard push path.
package metrics

import (
	"context"
	"net/http"
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"battery-emulator/internal/telemetry"
)

// Exporter owns one GaugeVec per published quantity, each labeled by
// channel.
type Exporter struct {
	registry *prometheus.Registry

	soc               *prometheus.GaugeVec
	vFilt             *prometheus.GaugeVec
	iMeas             *prometheus.GaugeVec
	power             *prometheus.GaugeVec
	consecutiveErrors *prometheus.GaugeVec
}

// New constructs an Exporter with its own prometheus.Registry, so running
// multiple emulator instances in the same process (e.g. in tests) never
// collides on the global default registry.
func New() *Exporter {
	e := &Exporter{
		registry: prometheus.NewRegistry(),
		soc: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "battery_soc_ratio",
			Help: "Emulated state of charge, 0 to 1.",
		}, []string{"channel"}),
		vFilt: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "battery_terminal_voltage_volts",
			Help: "Filtered terminal voltage.",
		}, []string{"channel"}),
		iMeas: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "battery_current_amps",
			Help: "Last measured current.",
		}, []string{"channel"}),
		power: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "battery_power_watts",
			Help: "v_filt * i_meas.",
		}, []string{"channel"}),
		consecutiveErrors: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "battery_consecutive_measurement_errors",
			Help: "Consecutive measurement failures since the last success.",
		}, []string{"channel"}),
	}

	e.registry.MustRegister(e.soc, e.vFilt, e.iMeas, e.power, e.consecutiveErrors)
	return e
}

// Observe updates every gauge from one published Sample.
func (e *Exporter) Observe(s telemetry.Sample) {
	label := prometheus.Labels{"channel": strconv.Itoa(s.Channel)}
	e.soc.With(label).Set(s.SOC)
	e.vFilt.With(label).Set(s.VFilt)
	e.iMeas.With(label).Set(s.IMeas)
	e.power.With(label).Set(s.Power)
	e.consecutiveErrors.With(label).Set(float64(s.ConsecutiveErrors))
}

// Run subscribes to reg and updates gauges from every published Sample
// until ctx is canceled. This is one of two independent consumers of
// Subscribe (the other is the dashboard WebSocket); neither can starve
// the other or block a Simulation Loop.
func (e *Exporter) Run(ctx context.Context, reg *telemetry.Registry) {
	ch, cancel := reg.Subscribe(256)
	defer cancel()

	for {
		select {
		case <-ctx.Done():
			return
		case sample, ok := <-ch:
			if !ok {
				return
			}
			e.Observe(sample)
		}
	}
}

// Handler returns the http.Handler to mount at /metrics.
func (e *Exporter) Handler() http.Handler {
	return promhttp.HandlerFor(e.registry, promhttp.HandlerOpts{})
}

// Serve blocks, serving /metrics on addr until ctx is canceled.
func (e *Exporter) Serve(ctx context.Context, addr string) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", e.Handler())
	srv := &http.Server{Addr: addr, Handler: mux}

	errCh := make(chan error, 1)
	go func() { errCh <- srv.ListenAndServe() }()

	select {
	case <-ctx.Done():
		return srv.Close()
	case err := <-errCh:
		return err
	}
}
