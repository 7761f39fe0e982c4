package realtime

import (
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/apexops/dashboard/internal/domain"
)

func TestEncode_Envelope(t *testing.T) {
	frame, err := Encode(AgentCreated{Agent: domain.Agent{ID: "a1", Name: "X"}})
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}

	var raw map[string]json.RawMessage
	if err := json.Unmarshal(frame, &raw); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if string(raw["type"]) != `"agent_created"` {
		t.Errorf("type = %s", raw["type"])
	}
	if _, ok := raw["message"]; ok {
		t.Error("message present on a data event")
	}

	var data map[string]any
	if err := json.Unmarshal(raw["data"], &data); err != nil {
		t.Fatalf("data: %v", err)
	}
	if data["id"] != "a1" || data["name"] != "X" {
		t.Errorf("data = %v", data)
	}
}

func TestEncode_ConnectedCarriesMessageOnly(t *testing.T) {
	frame, err := Encode(Connected{Message: ConnectedMessage})
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	want := `{"type":"connected","message":"WebSocket connected"}`
	if string(frame) != want {
		t.Errorf("frame = %s, want %s", frame, want)
	}
}

func TestEncode_IDEvents(t *testing.T) {
	frame, err := Encode(AlertRead{ID: "al-1"})
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	if want := `{"type":"alert_read","data":{"id":"al-1"}}`; string(frame) != want {
		t.Errorf("frame = %s, want %s", frame, want)
	}
}

func TestEncode_Rejects(t *testing.T) {
	if _, err := Encode(nil); !errors.Is(err, ErrUnsupportedEvent) {
		t.Errorf("Encode(nil) = %v", err)
	}
	if _, err := Encode(&AgentDeleted{ID: "x"}); !errors.Is(err, ErrUnsupportedEvent) {
		t.Errorf("Encode(pointer) = %v", err)
	}
	if _, err := Encode(Unknown{}); !errors.Is(err, ErrMissingType) {
		t.Errorf("Encode(Unknown{}) = %v", err)
	}
}

func TestDecode_StatsUpdate(t *testing.T) {
	ts := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	frame, err := Encode(StatsUpdate{Stats: domain.LiveStats{
		Timestamp:         ts,
		GPUUtilization:    81.5,
		CPUUtilization:    55,
		RequestsPerMinute: 1900,
		ResponseTime:      250,
	}})
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}

	ev, err := Decode(frame)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	su, ok := ev.(StatsUpdate)
	if !ok {
		t.Fatalf("Decode = %T, want StatsUpdate", ev)
	}
	if !su.Stats.Timestamp.Equal(ts) || su.Stats.GPUUtilization != 81.5 || su.Stats.RequestsPerMinute != 1900 {
		t.Errorf("stats = %+v", su.Stats)
	}
}

func TestDecode_UnknownTypePreserved(t *testing.T) {
	in := []byte(`{"type":"lineage_rebuilt","data":{"nodes":3},"message":"hi"}`)

	ev, err := Decode(in)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	u, ok := ev.(Unknown)
	if !ok {
		t.Fatalf("Decode = %T, want Unknown", ev)
	}
	if u.Type() != "lineage_rebuilt" || string(u.Data) != `{"nodes":3}` || u.Message != "hi" {
		t.Errorf("unknown = %+v", u)
	}

	out, err := Encode(u)
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	if string(out) != string(in) {
		t.Errorf("re-encoded = %s, want %s", out, in)
	}
}

func TestDecode_Errors(t *testing.T) {
	tests := []struct {
		name  string
		frame string
		is    error
	}{
		{"invalid json", `{"type":`, nil},
		{"not an object", `"agent_created"`, nil},
		{"missing type", `{"data":{"id":"a1"}}`, ErrMissingType},
		{"empty type", `{"type":""}`, ErrMissingType},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Decode([]byte(tt.frame))
			if err == nil {
				t.Fatal("Decode succeeded, want error")
			}
			if tt.is != nil && !errors.Is(err, tt.is) {
				t.Errorf("Decode error = %v, want %v", err, tt.is)
			}
		})
	}
}

func TestDecode_MismatchedDataFallsBackToUnknown(t *testing.T) {
	tests := []struct {
		name  string
		frame string
		kind  EventType
		is    error
	}{
		{"known type without data", `{"type":"agent_updated"}`, TypeAgentUpdated, ErrMissingData},
		{"null data", `{"type":"agent_created","data":null}`, TypeAgentCreated, ErrMissingData},
		{"array data", `{"type":"stats_update","data":[1,2]}`, TypeStatsUpdate, nil},
		{"decimal as string", `{"type":"stats_update","data":{"gpuUtilization":"75.1"}}`, TypeStatsUpdate, nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ev, err := Decode([]byte(tt.frame))
			if err != nil {
				t.Fatalf("Decode: %v", err)
			}
			u, ok := ev.(Unknown)
			if !ok {
				t.Fatalf("Decode = %T, want Unknown", ev)
			}
			if u.Type() != tt.kind {
				t.Errorf("Type() = %q, want %q", u.Type(), tt.kind)
			}
			if u.Err == nil {
				t.Error("Unknown.Err should record why the data did not fit")
			}
			if tt.is != nil && !errors.Is(u.Err, tt.is) {
				t.Errorf("Unknown.Err = %v, want %v", u.Err, tt.is)
			}
		})
	}
}
