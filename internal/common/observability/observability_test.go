package observability

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"go.opentelemetry.io/otel/attribute"
)

func TestNoopStartSpan(t *testing.T) {
	o := NewNoop()
	ctx, span := o.StartSpan(context.Background(), "orchestrator.send", attribute.String("templateKey", "welcome"))
	defer span.End()

	assert.NotNil(t, ctx)
	assert.False(t, span.SpanContext().IsValid())

	o.RecordJobProcessed(ctx, "EMAIL", "SENT")
	o.RecordJobDuration(ctx, time.Millisecond, "EMAIL")
}

func TestNilObservabilityIsSafe(t *testing.T) {
	var o *Observability
	ctx, span := o.StartSpan(context.Background(), "x")
	span.End()
	assert.NotNil(t, ctx)
	o.RecordJobProcessed(ctx, "SMS", "FAILED")
}
