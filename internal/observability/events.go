package observability

// EventEnvelope frames one realtime lifecycle event for the platform
// event bus. Consumers key on EventType for the stream and on EventName
// for the transition (ws_connect, ws_disconnect, ws_error).
type EventEnvelope struct {
	EventType  string      `json:"event_type"`
	EventName  string      `json:"event_name"`
	OccurredAt string      `json:"occurred_at"`
	Payload    interface{} `json:"payload"`
}

// TraceHeaders carries request/trace correlation into the bus message
// headers so audit consumers can join events back to the handshake that
// produced them.
func TraceHeaders(requestID, traceID string) map[string]string {
	headers := make(map[string]string, 2)
	if requestID != "" {
		headers["x-request-id"] = requestID
	}
	if traceID != "" {
		headers["trace_id"] = traceID
	}
	return headers
}
