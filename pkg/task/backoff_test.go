package task

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

// TestDelayCurves verifies the three backoff curves, including the
// exponential doubling used by the retry scheduler: 10, 20, 40.
func TestDelayCurves(t *testing.T) {
	tests := []struct {
		name    string
		backoff Backoff
		attempt int
		want    time.Duration
	}{
		{"fixed ignores attempt", Backoff{Kind: BackoffFixed, BaseMs: 10}, 5, 10 * time.Millisecond},
		{"linear scales", Backoff{Kind: BackoffLinear, BaseMs: 10}, 3, 30 * time.Millisecond},
		{"exponential first", Backoff{Kind: BackoffExponential, BaseMs: 10}, 1, 10 * time.Millisecond},
		{"exponential second", Backoff{Kind: BackoffExponential, BaseMs: 10}, 2, 20 * time.Millisecond},
		{"exponential third", Backoff{Kind: BackoffExponential, BaseMs: 10}, 3, 40 * time.Millisecond},
		{"exponential capped", Backoff{Kind: BackoffExponential, BaseMs: 10, MaxMs: 25}, 3, 25 * time.Millisecond},
		{"attempt floor", Backoff{Kind: BackoffLinear, BaseMs: 10}, 0, 10 * time.Millisecond},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.backoff.Delay(tt.attempt))
		})
	}
}

func TestJitterBounds(t *testing.T) {
	b := Backoff{Kind: BackoffFixed, BaseMs: 100, Jitter: JitterFull}
	for i := 0; i < 50; i++ {
		d := b.Jittered(1)
		assert.GreaterOrEqual(t, d, time.Duration(0))
		assert.LessOrEqual(t, d, 100*time.Millisecond)
	}

	b.Jitter = JitterEqual
	for i := 0; i < 50; i++ {
		d := b.Jittered(1)
		assert.GreaterOrEqual(t, d, 50*time.Millisecond)
		assert.LessOrEqual(t, d, 100*time.Millisecond)
	}

	b.Jitter = JitterNone
	assert.Equal(t, 100*time.Millisecond, b.Jittered(1))
}

// TestRecordClaimable walks the claim predicate through schedule and
// lease gates.
func TestRecordClaimable(t *testing.T) {
	now := time.Now()
	past := now.Add(-time.Minute)
	future := now.Add(time.Minute)

	tests := []struct {
		name string
		rec  Record
		want bool
	}{
		{"pending", Record{Status: StatusPending}, true},
		{"waiting retry due", Record{Status: StatusWaitingRetry, ScheduledTo: &past}, true},
		{"waiting retry early", Record{Status: StatusWaitingRetry, ScheduledTo: &future}, false},
		{"leased", Record{Status: StatusScheduled, LeaseExpiry: &future}, false},
		{"lease lapsed", Record{Status: StatusScheduled, LeaseExpiry: &past}, true},
		{"running", Record{Status: StatusRunning}, false},
		{"terminal", Record{Status: StatusSucceeded}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.rec.claimable(now))
		})
	}
}
