package telemetry

import (
	"testing"
	"time"
)

func TestPublishUpdatesLatestSnapshot(t *testing.T) {
	r := New()
	r.Publish(ChannelSnapshot{Channel: 1, SOC: 0.5, VFilt: 3.2})

	snap := r.Snapshot()
	got, ok := snap[1]
	if !ok {
		t.Fatal("channel 1 missing from snapshot")
	}
	if got.SOC != 0.5 || got.VFilt != 3.2 {
		t.Fatalf("got %+v", got)
	}
}

func TestEventStreamBoundedDropsOldest(t *testing.T) {
	r := New()
	for i := 0; i < eventStreamCapacity+10; i++ {
		r.AppendEvent(1, "event")
	}
	events := r.Events()
	if len(events) != eventStreamCapacity {
		t.Fatalf("len(events)=%d, want %d", len(events), eventStreamCapacity)
	}
}

func TestWireStreamBoundedDropsOldest(t *testing.T) {
	r := New()
	for i := 0; i < wireStreamCapacity+25; i++ {
		r.AppendWire(1, "->", "VOLT 3.412")
	}
	wire := r.Wire()
	if len(wire) != wireStreamCapacity {
		t.Fatalf("len(wire)=%d, want %d", len(wire), wireStreamCapacity)
	}
}

func TestSubscribeNeverBlocksPublisher(t *testing.T) {
	r := New()
	ch, cancel := r.Subscribe(2)
	defer cancel()

	done := make(chan struct{})
	go func() {
		for i := 0; i < 100; i++ {
			r.Publish(ChannelSnapshot{Channel: 1, SOC: float64(i)})
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Publish blocked on a full, unread subscriber channel")
	}

	// A bounded number of samples should have landed in the channel;
	// reading them must not panic and must be in non-decreasing order.
	last := -1.0
	for {
		select {
		case s := <-ch:
			if s.SOC < last {
				t.Fatalf("samples out of order: %v after %v", s.SOC, last)
			}
			last = s.SOC
		default:
			return
		}
	}
}

func TestSubscribeCancelClosesChannel(t *testing.T) {
	r := New()
	ch, cancel := r.Subscribe(1)
	cancel()
	cancel() // idempotent

	_, ok := <-ch
	if ok {
		t.Fatal("channel should be closed after cancel")
	}
}
