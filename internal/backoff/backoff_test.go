package backoff

import (
	"testing"
	"time"

	"pulse-server/internal/models"

	"github.com/stretchr/testify/assert"
)

func TestDelay(t *testing.T) {
	tests := []struct {
		name    string
		mt      models.MessageType
		p       models.Priority
		attempt int
		want    time.Duration
	}{
		{"otp medium first", models.MessageTypeOTP, models.PriorityMedium, 0, 2 * time.Second},
		{"otp high halves", models.MessageTypeOTP, models.PriorityHigh, 0, time.Second},
		{"otp low doubles", models.MessageTypeOTP, models.PriorityLow, 1, 8 * time.Second},
		{"otp capped", models.MessageTypeOTP, models.PriorityMedium, 10, 30 * time.Second},
		{"transactional third", models.MessageTypeTransactional, models.PriorityMedium, 2, 120 * time.Second},
		{"transactional capped", models.MessageTypeTransactional, models.PriorityLow, 8, 30 * time.Minute},
		{"promotional", models.MessageTypePromotional, models.PriorityMedium, 1, 600 * time.Second},
		{"promotional capped", models.MessageTypePromotional, models.PriorityLow, 9, 6 * time.Hour},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Delay(tt.mt, tt.p, tt.attempt))
		})
	}
}

func TestDelay_MonotonicUntilCap(t *testing.T) {
	for _, mt := range []models.MessageType{models.MessageTypeOTP, models.MessageTypeTransactional, models.MessageTypePromotional} {
		prev := time.Duration(0)
		for attempt := 0; attempt < 20; attempt++ {
			d := Delay(mt, models.PriorityMedium, attempt)
			assert.GreaterOrEqual(t, d, prev)
			assert.LessOrEqual(t, d, maxDelay[mt])
			prev = d
		}
	}
}

func TestNextAttemptAt_JitterBounds(t *testing.T) {
	now := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)

	tests := []struct {
		name string
		r    float64
		want time.Duration
	}{
		{"no jitter", 0, 30 * time.Second},
		{"half jitter", 0.5, 30*time.Second + 3750*time.Millisecond},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := &Policy{Rand: func() float64 { return tt.r }, Now: func() time.Time { return now }}
			got := p.NextAttemptAt(models.MessageTypeTransactional, models.PriorityMedium, 0)
			assert.Equal(t, now.Add(tt.want), got)
		})
	}

	p := &Policy{Rand: func() float64 { return 0.999999 }, Now: func() time.Time { return now }}
	got := p.NextAttemptAt(models.MessageTypeTransactional, models.PriorityMedium, 0)
	assert.Less(t, got.Sub(now), 30*time.Second+7500*time.Millisecond)
}
