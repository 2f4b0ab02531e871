package logger

import (
	"bytes"
	"encoding/json"
	"testing"
)

func TestNewAttachesFieldsAndLevel(t *testing.T) {
	var buf bytes.Buffer
	l := New(&buf, "warn", map[string]string{"strategy": "visual"})
	l.Info().Msg("hidden")
	l.Warn().Str("page", "3").Msg("shown")

	var ev map[string]interface{}
	if err := json.Unmarshal(bytes.TrimSpace(buf.Bytes()), &ev); err != nil {
		t.Fatalf("expected exactly one event, got %q: %v", buf.String(), err)
	}
	if ev["message"] != "shown" || ev["strategy"] != "visual" || ev["level"] != "warn" {
		t.Fatalf("event = %v", ev)
	}
}

func TestUnknownLevelMeansInfo(t *testing.T) {
	var buf bytes.Buffer
	l := New(&buf, "chatty", nil)
	l.Debug().Msg("hidden")
	if buf.Len() != 0 {
		t.Fatalf("debug leaked: %q", buf.String())
	}
	l.Info().Msg("shown")
	if buf.Len() == 0 {
		t.Fatal("info dropped")
	}
}

func TestAxiomEventsDropDebugAndTagService(t *testing.T) {
	if _, ok := toAxiomEvent([]byte(`{"level":"debug","message":"x"}`)); ok {
		t.Fatal("debug forwarded")
	}
	ev, ok := toAxiomEvent([]byte(`{"level":"info","message":"x"}`))
	if !ok || ev["service"] != serviceName {
		t.Fatalf("event = %v", ev)
	}
	raw, ok := toAxiomEvent([]byte("not json"))
	if !ok || raw["message"] != "not json" {
		t.Fatalf("raw = %v", raw)
	}
}
