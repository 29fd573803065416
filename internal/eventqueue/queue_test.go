package eventqueue

import (
	"context"
	"testing"
	"time"
)

func TestPutGetRoundTrip(t *testing.T) {
	q := New(4, nil)
	q.Put(Event{Keycode: 30, KeyName: "a", TimestampMs: 1})

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	ev, ok := q.Get(ctx)
	if !ok {
		t.Fatal("expected event")
	}
	if ev.KeyName != "a" {
		t.Fatalf("got %q, want a", ev.KeyName)
	}
}

func TestDropOnFull(t *testing.T) {
	var drops []uint64
	q := New(2, func(total uint64) { drops = append(drops, total) })

	for i := 0; i < 5; i++ {
		q.Put(Event{Keycode: uint16(i)})
	}

	if q.Produced() != 5 {
		t.Fatalf("produced = %d, want 5", q.Produced())
	}
	if q.Drops() != 3 {
		t.Fatalf("drops = %d, want 3", q.Drops())
	}
	if q.Delivered() != 2 {
		t.Fatalf("delivered = %d, want 2", q.Delivered())
	}
}

func TestDropLoggerRateLimited(t *testing.T) {
	var logged int
	q := New(0, func(total uint64) { logged++ })

	// Fill beyond capacity enough to trigger two rate-limited log calls
	// (at drop #1 and drop #101).
	for i := 0; i < DefaultCapacity+150; i++ {
		q.Put(Event{})
	}

	if logged != 2 {
		t.Fatalf("logged = %d, want 2", logged)
	}
}

func TestProducedEqualsDropsPlusDelivered(t *testing.T) {
	q := New(3, nil)
	for i := 0; i < 37; i++ {
		q.Put(Event{Keycode: uint16(i)})
	}
	if q.Produced() != q.Drops()+q.Delivered() {
		t.Fatalf("invariant broken: produced=%d drops=%d delivered=%d",
			q.Produced(), q.Drops(), q.Delivered())
	}
}

func TestTryGetEmpty(t *testing.T) {
	q := New(1, nil)
	if _, ok := q.TryGet(); ok {
		t.Fatal("expected empty queue")
	}
}
