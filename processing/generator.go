package processing

import (
	"context"
	"net/http"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

var tracer = otel.Tracer("github.com/drewmudry/remixengine-api/processing")

// Timeouts bound each external call. Expiry is returned as an error.
type Timeouts struct {
	Text   time.Duration
	Vision time.Duration
	Image  time.Duration
	Fetch  time.Duration
}

func DefaultTimeouts() Timeouts {
	return Timeouts{
		Text:   60 * time.Second,
		Vision: 30 * time.Second,
		Image:  5 * time.Minute,
		Fetch:  10 * time.Second,
	}
}

// Generator holds the three remix adapters. It never retries an external
// call itself; retries belong to the job queue.
type Generator struct {
	Text     StructuredGenerator
	Vision   ImageDescriber
	Images   ImageGenerator
	HTTP     *http.Client
	Timeouts Timeouts
}

func NewGenerator(text StructuredGenerator, vision ImageDescriber, images ImageGenerator, timeouts Timeouts) *Generator {
	return &Generator{
		Text:     text,
		Vision:   vision,
		Images:   images,
		HTTP:     &http.Client{},
		Timeouts: timeouts,
	}
}

func startSpan(ctx context.Context, name string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	return tracer.Start(ctx, name, trace.WithAttributes(attrs...))
}

func endSpan(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}
