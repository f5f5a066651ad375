package observability

import (
	"context"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type capturingBusPublisher struct {
	routingKey string
	envelope   EventEnvelope
	headers    map[string]string
	err        error
}

func (p *capturingBusPublisher) PublishJSON(_ context.Context, routingKey string, event EventEnvelope, headers map[string]string) error {
	p.routingKey = routingKey
	p.envelope = event
	p.headers = headers
	return p.err
}

func TestPublishEventStampsOccurredAt(t *testing.T) {
	bus := &capturingBusPublisher{}
	SetPublisher(bus)
	defer SetPublisher(nil)

	err := PublishEvent(context.Background(), "ws_events.sessions", EventEnvelope{
		EventType: "ws_events",
		EventName: "ws_connect",
	}, TraceHeaders("req-1", "trace-1"))
	require.NoError(t, err)

	assert.Equal(t, "ws_events.sessions", bus.routingKey)
	assert.Equal(t, "ws_connect", bus.envelope.EventName)
	assert.NotEmpty(t, bus.envelope.OccurredAt)
	assert.Equal(t, map[string]string{"x-request-id": "req-1", "trace_id": "trace-1"}, bus.headers)
}

func TestPublishEventWithoutPublisher(t *testing.T) {
	SetPublisher(nil)
	assert.NoError(t, PublishEvent(context.Background(), "ws_events.sessions", EventEnvelope{}, nil))
}

func TestPublishEventPropagatesFailure(t *testing.T) {
	bus := &capturingBusPublisher{err: assert.AnError}
	SetPublisher(bus)
	defer SetPublisher(nil)

	err := PublishEvent(context.Background(), "ws_events.sessions", EventEnvelope{EventName: "ws_error"}, nil)
	assert.Error(t, err)
}

func TestTraceHeadersOmitsEmptyValues(t *testing.T) {
	assert.Empty(t, TraceHeaders("", ""))
	assert.Equal(t, map[string]string{"trace_id": "trace-1"}, TraceHeaders("", "trace-1"))
	assert.Equal(t, map[string]string{"x-request-id": "req-1"}, TraceHeaders("req-1", ""))
}

func TestMetaFromRequest(t *testing.T) {
	req := httptest.NewRequest("GET", "/ws/sessions", nil)
	req.Header.Set("X-Device-Id", "unit-42")
	req.Header.Set("X-Request-Id", "req-9")
	req.Header.Set("X-Forwarded-For", "203.0.113.7, 10.0.0.1")

	meta := MetaFromRequest(req)
	assert.Equal(t, "unit-42", meta.DeviceID)
	assert.Equal(t, "req-9", meta.RequestID)
	assert.Equal(t, "203.0.113.7", meta.IP, "first forwarded hop is the client")
}

func TestMetaFromRequestFallsBackToRemoteAddr(t *testing.T) {
	req := httptest.NewRequest("GET", "/ws/sessions", nil)
	req.RemoteAddr = "192.0.2.4:5123"

	assert.Equal(t, "192.0.2.4", MetaFromRequest(req).IP)
}
