package events

import (
	"context"
	"encoding/json"
	"testing"
	"time"
)

func TestEventSubjectNaming(t *testing.T) {
	builder := NewBuilder("test-node")

	tests := []struct {
		event Event
		want  string
	}{
		{builder.SessionStarted("sess-123").Build(), "outdial.sessions.sess-123.started"},
		{builder.LegDialing("sess-123", LegCustomer).Build(), "outdial.sessions.sess-123.leg.dialing"},
		{builder.SessionBridged("sess-123", "br-1"), "outdial.sessions.sess-123.bridged"},
		{builder.RecordingFailed("sess-123", "storage full"), "outdial.sessions.sess-123.recording.failed"},
		{builder.SessionEnded("sess-123").Build(), "outdial.sessions.sess-123.ended"},
	}

	for _, tt := range tests {
		if got := tt.event.Subject(); got != tt.want {
			t.Errorf("Subject() = %q, want %q", got, tt.want)
		}
	}
}

func TestSessionStartedEventJSON(t *testing.T) {
	builder := NewBuilder("test-node")

	event := builder.SessionStarted("sess-123").
		Targets("SIP/4448", "SIP/4449").
		Build()

	data, err := json.Marshal(event)
	if err != nil {
		t.Fatalf("Failed to marshal: %v", err)
	}

	var m map[string]interface{}
	if err := json.Unmarshal(data, &m); err != nil {
		t.Fatalf("Failed to unmarshal: %v", err)
	}

	checks := map[string]string{
		"event_type":      "session.started",
		"session_id":      "sess-123",
		"node_id":         "test-node",
		"customer_target": "SIP/4448",
		"agent_target":    "SIP/4449",
	}

	for k, want := range checks {
		if got, ok := m[k].(string); !ok || got != want {
			t.Errorf("m[%q] = %v, want %q", k, m[k], want)
		}
	}

	if _, ok := m["event_id"].(string); !ok {
		t.Error("event_id missing or not a string")
	}
}

func TestLegEventCarriesRole(t *testing.T) {
	builder := NewBuilder("test-node")

	event := builder.LegAnswered("sess-1", LegAgent, "ch-agent").
		RingDuration(4 * time.Second).
		Build()

	data, err := json.Marshal(event)
	if err != nil {
		t.Fatalf("Failed to marshal: %v", err)
	}

	var m map[string]interface{}
	if err := json.Unmarshal(data, &m); err != nil {
		t.Fatalf("Failed to unmarshal: %v", err)
	}

	if got := m["leg"].(string); got != "agent" {
		t.Errorf("leg = %v, want agent", got)
	}
	if got := m["channel_id"].(string); got != "ch-agent" {
		t.Errorf("channel_id = %v, want ch-agent", got)
	}
	if got := m["ring_duration_ms"].(float64); got != 4000 {
		t.Errorf("ring_duration_ms = %v, want 4000", got)
	}
}

func TestSessionEndedEventCDRFields(t *testing.T) {
	builder := NewBuilder("test-node")

	event := builder.SessionEnded("sess-123").
		Reason(EndReasonNormal, "customer hangup").
		Durations(
			3*time.Second,   // ring
			120*time.Second, // talk
			127*time.Second, // total
		).
		Disposition(DispositionAnswered).
		Recorded(true).
		Build()

	data, err := json.Marshal(event)
	if err != nil {
		t.Fatalf("Failed to marshal: %v", err)
	}

	var m map[string]interface{}
	if err := json.Unmarshal(data, &m); err != nil {
		t.Fatalf("Failed to unmarshal: %v", err)
	}

	if got := m["ring_duration_ms"].(float64); got != 3000 {
		t.Errorf("ring_duration_ms = %v, want 3000", got)
	}
	if got := m["talk_duration_ms"].(float64); got != 120000 {
		t.Errorf("talk_duration_ms = %v, want 120000", got)
	}
	if got := m["total_duration_ms"].(float64); got != 127000 {
		t.Errorf("total_duration_ms = %v, want 127000", got)
	}
	if got := m["disposition_code"].(string); got != "ANSWERED" {
		t.Errorf("disposition_code = %v, want ANSWERED", got)
	}
	if got := m["recorded"].(bool); !got {
		t.Error("recorded = false, want true")
	}
}

func TestNoopPublisher(t *testing.T) {
	pub := NewNoopPublisher()
	builder := NewBuilder("test")

	event := builder.SessionStarted("sess-1").Build()

	if err := pub.Publish(context.Background(), event); err != nil {
		t.Errorf("Publish() = %v, want nil", err)
	}
	pub.PublishAsync(event)
	if err := pub.Close(); err != nil {
		t.Errorf("Close() = %v, want nil", err)
	}
}

func TestChannelPublisherDelivery(t *testing.T) {
	pub := NewChannelPublisher(4)
	builder := NewBuilder("test")

	sent := builder.SessionBridged("sess-9", "br-9")
	if err := pub.Publish(context.Background(), sent); err != nil {
		t.Fatalf("Publish() = %v", err)
	}

	select {
	case got := <-pub.Events():
		if got.SessionID() != "sess-9" {
			t.Errorf("SessionID() = %q, want %q", got.SessionID(), "sess-9")
		}
		if got.Type() != SessionBridged {
			t.Errorf("Type() = %q, want %q", got.Type(), SessionBridged)
		}
	default:
		t.Fatal("no event delivered")
	}
}

func TestChannelPublisherDropsWhenFull(t *testing.T) {
	pub := NewChannelPublisher(1)
	builder := NewBuilder("test")

	pub.PublishAsync(builder.SessionStarted("sess-1").Build())
	pub.PublishAsync(builder.SessionStarted("sess-2").Build())

	if got := pub.DroppedCount(); got != 1 {
		t.Errorf("DroppedCount() = %d, want 1", got)
	}
}
