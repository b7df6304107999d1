package observable

import (
	"sync"
	"testing"
)

func TestPublish_DeliversToAllSubscribers(t *testing.T) {
	o := New[int]()

	var a, b []int
	o.Subscribe(func(v int) { a = append(a, v) })
	o.Subscribe(func(v int) { b = append(b, v) })

	o.Publish(1)
	o.Publish(2)

	for name, got := range map[string][]int{"a": a, "b": b} {
		if len(got) != 2 || got[0] != 1 || got[1] != 2 {
			t.Errorf("subscriber %s saw %v, want [1 2]", name, got)
		}
	}
}

func TestSubscribe_ReplaysLatestValue(t *testing.T) {
	o := New[string]()

	var before []string
	o.Subscribe(func(v string) { before = append(before, v) })
	if len(before) != 0 {
		t.Fatalf("nothing published yet, replay delivered %v", before)
	}

	o.Publish("first")
	o.Publish("second")

	var late []string
	o.Subscribe(func(v string) { late = append(late, v) })
	if len(late) != 1 || late[0] != "second" {
		t.Errorf("late subscriber saw %v, want only the latest value", late)
	}

	if v, ok := o.Latest(); !ok || v != "second" {
		t.Errorf("Latest() = %q, %v, want second", v, ok)
	}
}

func TestUnsubscribe_StopsDelivery(t *testing.T) {
	o := New[int]()

	var got []int
	unsub := o.Subscribe(func(v int) { got = append(got, v) })

	o.Publish(1)
	unsub()
	unsub() // safe to call twice
	o.Publish(2)

	if len(got) != 1 || got[0] != 1 {
		t.Errorf("subscriber saw %v after unsubscribe, want [1]", got)
	}
	if o.Len() != 0 {
		t.Errorf("Len() = %d, want 0", o.Len())
	}
}

func TestSubscribe_OrderedAgainstConcurrentPublish(t *testing.T) {
	// Subscribing mid-stream replays the latest value; with a publisher
	// running concurrently, the replay and the live deliveries must still
	// arrive monotonically, never a newer value before an older one.
	o := New[int]()

	done := make(chan struct{})
	go func() {
		defer close(done)
		for i := 0; i < 500; i++ {
			o.Publish(i)
		}
	}()

	for k := 0; k < 20; k++ {
		var mu sync.Mutex
		var seen []int
		unsub := o.Subscribe(func(v int) {
			mu.Lock()
			seen = append(seen, v)
			mu.Unlock()
		})
		unsub()

		mu.Lock()
		for i := 1; i < len(seen); i++ {
			if seen[i] < seen[i-1] {
				t.Fatalf("out-of-order delivery: %d after %d", seen[i], seen[i-1])
			}
		}
		mu.Unlock()
	}
	<-done
}
