// Package events publishes workflow lifecycle events
// (workflow.save.started/validated/finalized/repair_exhausted) onto NATS in
// the same canonical envelope shape the teacher's eventbus package uses.
// Publishing is always best-effort: a saver.Publisher must never fail (or
// block) the save it's reporting on.
package events

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"log"
	"time"

	"github.com/nats-io/nats.go"
)

// CanonicalEvent is the uniform event envelope, matching the shape used
// elsewhere in the host system so downstream consumers need only one
// decoder.
type CanonicalEvent struct {
	EventID   string       `json:"event_id"`
	Source    string       `json:"source"`
	Type      string       `json:"type"`
	Timestamp time.Time    `json:"timestamp"`
	Context   EventContext `json:"context"`
	Payload   EventPayload `json:"payload"`
}

// EventContext carries the session the event belongs to.
type EventContext struct {
	SessionID string `json:"session_id,omitempty"`
}

// EventPayload carries event-specific fields as a flat string map — weave's
// lifecycle events never need richer payloads than that.
type EventPayload struct {
	Fields map[string]string `json:"fields,omitempty"`
}

// NewEventID generates a compact, date-prefixed unique id.
func NewEventID(prefix string, t time.Time) string {
	b := make([]byte, 8)
	_, _ = rand.Read(b)
	return prefix + t.UTC().Format("20060102") + "_" + hex.EncodeToString(b)
}

// Publisher is a NATS-backed saver.Publisher. A nil *Publisher or a nil
// underlying connection makes every Publish call a silent no-op.
type Publisher struct {
	nc        *nats.Conn
	subject   string
	sessionID string
}

// Config configures a NATS connection for lifecycle events.
type Config struct {
	URL       string
	Subject   string // defaults to "weave.events.workflow"
	SessionID string
}

// NewPublisher connects to NATS and returns a Publisher. On connection
// failure it logs and returns a Publisher with no live connection — every
// subsequent Publish is then a no-op, matching saver's nil-safe contract.
func NewPublisher(cfg Config) *Publisher {
	subject := cfg.Subject
	if subject == "" {
		subject = "weave.events.workflow"
	}
	url := cfg.URL
	if url == "" {
		url = nats.DefaultURL
	}

	nc, err := nats.Connect(url,
		nats.Name("weave-eventbus"),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2*time.Second),
	)
	if err != nil {
		log.Printf("⚠️ [EVENTS] nats connect failed, lifecycle events disabled: %v", err)
		return &Publisher{subject: subject, sessionID: cfg.SessionID}
	}
	return &Publisher{nc: nc, subject: subject, sessionID: cfg.SessionID}
}

// Publish implements saver.Publisher. Any failure — marshal, connection,
// send — is logged and swallowed.
func (p *Publisher) Publish(event string, fields map[string]string) {
	if p == nil || p.nc == nil {
		return
	}
	evt := CanonicalEvent{
		EventID:   NewEventID("wf_", time.Now()),
		Source:    "weave",
		Type:      event,
		Timestamp: time.Now(),
		Context:   EventContext{SessionID: p.sessionID},
		Payload:   EventPayload{Fields: fields},
	}
	data, err := json.Marshal(evt)
	if err != nil {
		log.Printf("⚠️ [EVENTS] marshal failed for %s: %v", event, err)
		return
	}
	if err := p.nc.Publish(p.subject, data); err != nil {
		log.Printf("⚠️ [EVENTS] publish failed for %s: %v", event, err)
	}
}

// Subscribe registers handler for every event on the configured subject,
// draining on ctx cancellation. Used by external observers (not by saver
// itself), grounded on the same Subscribe shape as the teacher's bus.
func (p *Publisher) Subscribe(ctx context.Context, handler func(CanonicalEvent)) (*nats.Subscription, error) {
	if p.nc == nil {
		return nil, nil
	}
	sub, err := p.nc.Subscribe(p.subject, func(msg *nats.Msg) {
		var evt CanonicalEvent
		if err := json.Unmarshal(msg.Data, &evt); err == nil {
			handler(evt)
		}
	})
	if err != nil {
		return nil, err
	}
	go func() {
		<-ctx.Done()
		_ = sub.Drain()
	}()
	return sub, nil
}

// Close releases the underlying NATS connection, if any.
func (p *Publisher) Close() {
	if p != nil && p.nc != nil {
		p.nc.Close()
	}
}
