package events

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPublishReachesSubscribers(t *testing.T) {
	b := NewBroker()
	b.Start()
	defer b.Stop()

	sub := b.Subscribe()
	defer b.Unsubscribe(sub)
	assert.Equal(t, 1, b.SubscriberCount())

	b.Publish(&Event{TaskID: "t1", Classification: ClassStatus, Payload: "hello"})

	select {
	case ev := <-sub:
		assert.Equal(t, "t1", ev.TaskID)
		assert.Equal(t, ClassStatus, ev.Classification)
		assert.NotEmpty(t, ev.ID)
		assert.False(t, ev.Timestamp.IsZero())
	case <-time.After(2 * time.Second):
		t.Fatal("event never arrived")
	}
}

// TestPerTaskFIFO verifies events of one task arrive in publish order
func TestPerTaskFIFO(t *testing.T) {
	b := NewBroker()
	b.Start()
	defer b.Stop()

	sub := b.Subscribe()
	defer b.Unsubscribe(sub)

	const n = 20
	for i := 0; i < n; i++ {
		b.Publish(&Event{TaskID: "t1", Classification: ClassLog, Payload: i})
	}

	for i := 0; i < n; i++ {
		select {
		case ev := <-sub:
			require.Equal(t, i, ev.Payload, "event %d out of order", i)
		case <-time.After(2 * time.Second):
			t.Fatalf("missing event %d", i)
		}
	}
}

func TestUnsubscribeClosesChannel(t *testing.T) {
	b := NewBroker()
	b.Start()
	defer b.Stop()

	sub := b.Subscribe()
	b.Unsubscribe(sub)
	_, open := <-sub
	assert.False(t, open)
	assert.Zero(t, b.SubscriberCount())

	// double unsubscribe is safe
	b.Unsubscribe(sub)
}

func TestSlowSubscriberDoesNotBlockOthers(t *testing.T) {
	b := NewBroker()
	b.Start()
	defer b.Stop()

	slow := b.Subscribe() // never drained, buffer fills
	defer b.Unsubscribe(slow)
	fast := b.Subscribe()
	defer b.Unsubscribe(fast)

	for i := 0; i < 200; i++ {
		b.Publish(&Event{TaskID: fmt.Sprintf("t%d", i), Classification: ClassLog})
	}

	// a full slow buffer must not stop the fast subscriber from
	// filling its own buffer
	received := 0
	deadline := time.After(2 * time.Second)
	for received < 50 {
		select {
		case <-fast:
			received++
		case <-deadline:
			t.Fatalf("fast subscriber starved after %d events", received)
		}
	}
}
