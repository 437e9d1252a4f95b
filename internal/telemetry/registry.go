// Package telemetry is the concurrent mapping from channel index to the
// latest Sample, plus the two bounded append-only event streams consumed
// by the dashboard, the metrics exporter, and the on-disk log fan-out.
// Every method here is safe for concurrent use by multiple Simulation
// Loops and multiple consumers.
package telemetry

import (
	"sync"
	"time"
)

// Sample is published to the Registry once per Simulation Loop iteration.
type Sample struct {
	Channel           int       `json:"channel"`
	T                 time.Time `json:"t"`
	SOC               float64   `json:"soc"`
	VFilt             float64   `json:"v_filt"`
	IMeas             float64   `json:"i_meas"`
	Power             float64   `json:"power"`
	State             string    `json:"state"`
	ConsecutiveErrors int       `json:"consecutive_errors"`
}

// HistoryPoint is one (elapsed-seconds, value) pair in a bounded ring.
type HistoryPoint struct {
	TS    float64 `json:"t_s"`
	Value float64 `json:"value"`
}

// ChannelSnapshot is what the dashboard receives for one active channel.
type ChannelSnapshot struct {
	Channel       int            `json:"channel"`
	TElapsedS     float64        `json:"t_elapsed_s"`
	SOC           float64        `json:"soc"`
	VFilt         float64        `json:"v_filt"`
	IMeas         float64        `json:"i_meas"`
	Power         float64        `json:"power"`
	HistoryVolt   []HistoryPoint `json:"history_voltage"`
	HistoryCurr   []HistoryPoint `json:"history_current"`
	HistoryPower  []HistoryPoint `json:"history_power"`
	ProfileName   string         `json:"profile_name"`
	State         string         `json:"state"`
	ConsecutiveErrors int        `json:"consecutive_errors"`
}

// EventRecord is a human-readable, timestamped event tagged with its
// channel. Channel 0 means "not channel-specific".
type EventRecord struct {
	Time    time.Time `json:"time"`
	Channel int       `json:"channel"`
	Message string    `json:"message"`
}

// WireRecord captures one outgoing command or one reply.
type WireRecord struct {
	Time      time.Time `json:"time"`
	Channel   int       `json:"channel"`
	Direction string    `json:"direction"` // "->" or "<-"
	Payload   string    `json:"payload"`
}

const (
	eventStreamCapacity = 100
	wireStreamCapacity  = 200
)

// Registry is the concurrent container shared by every active channel's
// Simulation Loop and every consumer (dashboard, metrics exporter, log
// fan-out, CSV recorder).
type Registry struct {
	mu     sync.RWMutex
	latest map[int]ChannelSnapshot

	events *ring[EventRecord]
	wire   *ring[WireRecord]

	subMu sync.Mutex
	subs  map[int]chan Sample
	nextID int
}

// New constructs an empty Registry.
func New() *Registry {
	return &Registry{
		latest: make(map[int]ChannelSnapshot),
		events: newRing[EventRecord](eventStreamCapacity),
		wire:   newRing[WireRecord](wireStreamCapacity),
		subs:   make(map[int]chan Sample),
	}
}

// Publish records the latest snapshot for a channel and fans its Sample
// out to every active subscriber. Appenders never block: a full
// subscriber channel drops the sample rather than stall the publisher,
// which is always a Simulation Loop.
func (r *Registry) Publish(snap ChannelSnapshot) {
	r.mu.Lock()
	r.latest[snap.Channel] = snap
	r.mu.Unlock()

	sample := Sample{
		Channel:           snap.Channel,
		SOC:               snap.SOC,
		VFilt:             snap.VFilt,
		IMeas:             snap.IMeas,
		Power:             snap.Power,
		State:             snap.State,
		ConsecutiveErrors: snap.ConsecutiveErrors,
		T:                 time.Now(),
	}

	r.subMu.Lock()
	for _, ch := range r.subs {
		select {
		case ch <- sample:
		default:
			// slow subscriber: drop rather than block the publisher.
		}
	}
	r.subMu.Unlock()
}

// Snapshot returns the latest ChannelSnapshot for every active channel,
// keyed by channel index.
func (r *Registry) Snapshot() map[int]ChannelSnapshot {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make(map[int]ChannelSnapshot, len(r.latest))
	for k, v := range r.latest {
		out[k] = v
	}
	return out
}

// Remove drops a channel from the latest-sample map, e.g. once its loop
// has terminated and the dashboard should stop showing it as active.
func (r *Registry) Remove(channel int) {
	r.mu.Lock()
	delete(r.latest, channel)
	r.mu.Unlock()
}

// AppendEvent appends a human-readable event. Channel 0 means the event
// is not specific to one channel (e.g. Supervisor-level).
func (r *Registry) AppendEvent(channel int, message string) {
	r.events.append(EventRecord{Time: time.Now(), Channel: channel, Message: message})
}

// AppendWire appends one wire-level record.
func (r *Registry) AppendWire(channel int, direction, payload string) {
	r.wire.append(WireRecord{Time: time.Now(), Channel: channel, Direction: direction, Payload: payload})
}

// Events returns a copy of the current human event stream, oldest first.
func (r *Registry) Events() []EventRecord { return r.events.snapshot() }

// Wire returns a copy of the current wire event stream, oldest first.
func (r *Registry) Wire() []WireRecord { return r.wire.snapshot() }

// Subscribe registers a buffered Sample channel that receives every
// future Publish call. The returned cancel function must be called once
// the subscriber is done; it is safe to call more than once.
func (r *Registry) Subscribe(buffer int) (<-chan Sample, func()) {
	if buffer <= 0 {
		buffer = 1
	}
	ch := make(chan Sample, buffer)

	r.subMu.Lock()
	id := r.nextID
	r.nextID++
	r.subs[id] = ch
	r.subMu.Unlock()

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			r.subMu.Lock()
			delete(r.subs, id)
			r.subMu.Unlock()
			close(ch)
		})
	}
	return ch, cancel
}
