// Package backoff computes when a failed notification job should be retried.
package backoff

import (
	"math"
	"math/rand/v2"
	"time"

	"pulse-server/internal/models"
)

const jitterRatio = 0.25

var baseDelay = map[models.MessageType]time.Duration{
	models.MessageTypeOTP:           2 * time.Second,
	models.MessageTypeTransactional: 30 * time.Second,
	models.MessageTypePromotional:   300 * time.Second,
}

var maxDelay = map[models.MessageType]time.Duration{
	models.MessageTypeOTP:           30 * time.Second,
	models.MessageTypeTransactional: 30 * time.Minute,
	models.MessageTypePromotional:   6 * time.Hour,
}

var priorityFactor = map[models.Priority]float64{
	models.PriorityHigh:   0.5,
	models.PriorityMedium: 1,
	models.PriorityLow:    2,
}

// Policy maps (message type, priority, attempt) to the next attempt time.
// Rand and Now are injectable for tests.
type Policy struct {
	Rand func() float64
	Now  func() time.Time
}

func New() *Policy {
	return &Policy{Rand: rand.Float64, Now: time.Now}
}

// Delay returns the capped exponential delay for the attempt about to be
// made, before jitter. attempt is 0-based.
func Delay(mt models.MessageType, p models.Priority, attempt int) time.Duration {
	base, ok := baseDelay[mt]
	if !ok {
		base = baseDelay[models.MessageTypeTransactional]
	}
	ceiling, ok := maxDelay[mt]
	if !ok {
		ceiling = maxDelay[models.MessageTypeTransactional]
	}
	factor, ok := priorityFactor[p]
	if !ok {
		factor = 1
	}
	if attempt < 0 {
		attempt = 0
	}

	d := float64(base) * math.Pow(2, float64(attempt)) * factor
	if d >= float64(ceiling) {
		return ceiling
	}
	return time.Duration(d)
}

// NextAttemptAt returns now + delay + a uniform jitter of up to a quarter of
// the delay.
func (p *Policy) NextAttemptAt(mt models.MessageType, pr models.Priority, attempt int) time.Time {
	d := Delay(mt, pr, attempt)
	jitter := time.Duration(p.Rand() * jitterRatio * float64(d))
	return p.Now().Add(d + jitter)
}
