package dispatch

import (
	"context"
	"sync"
	"testing"
	"time"
)

func TestDispatcherDeliversInOrderAndDrainsOnClose(t *testing.T) {
	var mu sync.Mutex
	var got []int
	d := New(Config{BufferSize: 8}, func(_ context.Context, n int) {
		mu.Lock()
		got = append(got, n)
		mu.Unlock()
	})
	for i := 0; i < 5; i++ {
		if !d.Submit(context.Background(), i) {
			t.Fatalf("submit %d dropped", i)
		}
	}
	d.Close()

	mu.Lock()
	defer mu.Unlock()
	if len(got) != 5 {
		t.Fatalf("delivered %d items, want 5", len(got))
	}
	for i, n := range got {
		if n != i {
			t.Fatalf("out of order: %v", got)
		}
	}
	if d.Submit(context.Background(), 9) {
		t.Fatal("submit after close should be rejected")
	}
}

func TestDispatcherDropIfFull(t *testing.T) {
	release := make(chan struct{})
	started := make(chan struct{}, 1)
	d := New(Config{BufferSize: 1, DropIfFull: true}, func(context.Context, string) {
		select {
		case started <- struct{}{}:
		default:
		}
		<-release
	})

	d.Submit(context.Background(), "a")
	select {
	case <-started:
	case <-time.After(time.Second):
		t.Fatal("handler did not start")
	}
	d.Submit(context.Background(), "b") // fills the buffer
	if d.Submit(context.Background(), "c") {
		t.Fatal("expected drop when buffer is full")
	}
	if d.Dropped() != 1 {
		t.Fatalf("dropped = %d", d.Dropped())
	}
	close(release)
	d.Close()
}

func TestNilDispatcherIsInert(t *testing.T) {
	var d *Dispatcher[int]
	if d.Submit(context.Background(), 1) {
		t.Fatal("nil dispatcher must not accept")
	}
	d.Close()
	if d.Dropped() != 0 {
		t.Fatal("nil dispatcher has no drops")
	}
	if New[int](Config{}, nil) != nil {
		t.Fatal("nil handler should yield nil dispatcher")
	}
}
