package events

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestPublishOnUnconnectedPublisherNeverPanics(t *testing.T) {
	p := NewPublisher(Config{URL: "nats://127.0.0.1:1", SessionID: "s1"})
	assert.NotPanics(t, func() {
		p.Publish("workflow.save.started", map[string]string{"mode": "simple"})
	})
}

func TestPublishOnNilPublisherNeverPanics(t *testing.T) {
	var p *Publisher
	assert.NotPanics(t, func() {
		p.Publish("workflow.save.started", nil)
	})
}

func TestNewEventIDIsUniqueAndPrefixed(t *testing.T) {
	a := NewEventID("wf_", time.Now())
	b := NewEventID("wf_", time.Now())
	assert.Contains(t, a, "wf_")
	assert.NotEqual(t, a, b)
}
