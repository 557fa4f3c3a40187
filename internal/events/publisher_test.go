package events

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRoutingKey(t *testing.T) {
	e := JobEvent{Type: "remix_title", Status: "complete"}
	assert.Equal(t, "job.remix_title.complete", e.RoutingKey())
}

func TestNoopPublisher(t *testing.T) {
	var p Publisher = Noop{}
	assert.NoError(t, p.PublishJobEvent(context.Background(), JobEvent{JobID: "j1"}))
}
