package realtime

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/apexops/dashboard/internal/domain"
)

type EventType string

const (
	TypeConnected                 EventType = "connected"
	TypeAgentCreated              EventType = "agent_created"
	TypeAgentUpdated              EventType = "agent_updated"
	TypeAgentStatusUpdated        EventType = "agent_status_updated"
	TypeAgentDeleted              EventType = "agent_deleted"
	TypeGPUResourceCreated        EventType = "gpu_resource_created"
	TypeGPUResourceUpdated        EventType = "gpu_resource_updated"
	TypeResourceUsageCreated      EventType = "resource_usage_created"
	TypeCostAnalyticsCreated      EventType = "cost_analytics_created"
	TypePerformanceMetricsCreated EventType = "performance_metrics_created"
	TypeAlertCreated              EventType = "alert_created"
	TypeAlertRead                 EventType = "alert_read"
	TypeStatsUpdate               EventType = "stats_update"
)

// ConnectedMessage is sent to every connection right after the upgrade.
const ConnectedMessage = "WebSocket connected"

var (
	ErrMissingType      = errors.New("event has no type")
	ErrMissingData      = errors.New("event has no data")
	ErrUnsupportedEvent = errors.New("unsupported event value")
)

// Event is one frame on the channel. The concrete types below are the
// known variants; Unknown carries anything else untouched.
type Event interface {
	Type() EventType
}

type Connected struct{ Message string }

type AgentCreated struct{ Agent domain.Agent }

type AgentUpdated struct{ Agent domain.Agent }

type AgentStatusUpdated struct{ Agent domain.Agent }

type AgentDeleted struct{ ID string }

type GPUResourceCreated struct{ Resource domain.GPUResource }

type GPUResourceUpdated struct{ Resource domain.GPUResource }

type ResourceUsageCreated struct{ Usage domain.ResourceUsage }

type CostAnalyticsCreated struct{ Analytics domain.CostAnalytics }

type PerformanceMetricsCreated struct{ Metrics domain.PerformanceMetrics }

type AlertCreated struct{ Alert domain.Alert }

type AlertRead struct{ ID string }

type StatsUpdate struct{ Stats domain.LiveStats }

// Unknown preserves events whose type this build does not recognize, and
// known types whose data does not fit the variant. Err is set in the
// second case.
type Unknown struct {
	Kind    EventType
	Data    json.RawMessage
	Message string
	Err     error
}

func (Connected) Type() EventType                 { return TypeConnected }
func (AgentCreated) Type() EventType              { return TypeAgentCreated }
func (AgentUpdated) Type() EventType              { return TypeAgentUpdated }
func (AgentStatusUpdated) Type() EventType        { return TypeAgentStatusUpdated }
func (AgentDeleted) Type() EventType              { return TypeAgentDeleted }
func (GPUResourceCreated) Type() EventType        { return TypeGPUResourceCreated }
func (GPUResourceUpdated) Type() EventType        { return TypeGPUResourceUpdated }
func (ResourceUsageCreated) Type() EventType      { return TypeResourceUsageCreated }
func (CostAnalyticsCreated) Type() EventType      { return TypeCostAnalyticsCreated }
func (PerformanceMetricsCreated) Type() EventType { return TypePerformanceMetricsCreated }
func (AlertCreated) Type() EventType              { return TypeAlertCreated }
func (AlertRead) Type() EventType                 { return TypeAlertRead }
func (StatsUpdate) Type() EventType               { return TypeStatsUpdate }
func (u Unknown) Type() EventType                 { return u.Kind }

type envelope struct {
	Type    EventType       `json:"type"`
	Data    json.RawMessage `json:"data,omitempty"`
	Message string          `json:"message,omitempty"`
}

type idRef struct {
	ID string `json:"id"`
}

// Encode serializes ev into a wire frame: {"type", "data"?, "message"?}.
func Encode(ev Event) ([]byte, error) {
	if ev == nil {
		return nil, ErrUnsupportedEvent
	}

	env := envelope{Type: ev.Type()}
	var data any
	switch e := ev.(type) {
	case Connected:
		env.Message = e.Message
	case Unknown:
		env.Data = e.Data
		env.Message = e.Message
	case AgentCreated:
		data = e.Agent
	case AgentUpdated:
		data = e.Agent
	case AgentStatusUpdated:
		data = e.Agent
	case AgentDeleted:
		data = idRef{ID: e.ID}
	case GPUResourceCreated:
		data = e.Resource
	case GPUResourceUpdated:
		data = e.Resource
	case ResourceUsageCreated:
		data = e.Usage
	case CostAnalyticsCreated:
		data = e.Analytics
	case PerformanceMetricsCreated:
		data = e.Metrics
	case AlertCreated:
		data = e.Alert
	case AlertRead:
		data = idRef{ID: e.ID}
	case StatsUpdate:
		data = e.Stats
	default:
		return nil, fmt.Errorf("%w: %T", ErrUnsupportedEvent, ev)
	}

	if env.Type == "" {
		return nil, ErrMissingType
	}
	if data != nil {
		raw, err := json.Marshal(data)
		if err != nil {
			return nil, fmt.Errorf("encode %s data: %w", env.Type, err)
		}
		env.Data = raw
	}
	return json.Marshal(env)
}

// Decode parses a wire frame into its typed variant. Only invalid JSON and
// a missing type are errors. A frame whose type is unrecognized, or whose
// data is absent or shaped differently from its variant, decodes to Unknown.
func Decode(frame []byte) (Event, error) {
	var env envelope
	if err := json.Unmarshal(frame, &env); err != nil {
		return nil, fmt.Errorf("decode event: %w", err)
	}
	if env.Type == "" {
		return nil, ErrMissingType
	}

	ev, err := decodeVariant(env)
	if err != nil {
		return Unknown{Kind: env.Type, Data: env.Data, Message: env.Message, Err: err}, nil
	}
	return ev, nil
}

func decodeVariant(env envelope) (Event, error) {
	switch env.Type {
	case TypeConnected:
		return Connected{Message: env.Message}, nil
	case TypeAgentCreated:
		a, err := decodeData[domain.Agent](env)
		return AgentCreated{Agent: a}, err
	case TypeAgentUpdated:
		a, err := decodeData[domain.Agent](env)
		return AgentUpdated{Agent: a}, err
	case TypeAgentStatusUpdated:
		a, err := decodeData[domain.Agent](env)
		return AgentStatusUpdated{Agent: a}, err
	case TypeAgentDeleted:
		ref, err := decodeData[idRef](env)
		return AgentDeleted{ID: ref.ID}, err
	case TypeGPUResourceCreated:
		g, err := decodeData[domain.GPUResource](env)
		return GPUResourceCreated{Resource: g}, err
	case TypeGPUResourceUpdated:
		g, err := decodeData[domain.GPUResource](env)
		return GPUResourceUpdated{Resource: g}, err
	case TypeResourceUsageCreated:
		u, err := decodeData[domain.ResourceUsage](env)
		return ResourceUsageCreated{Usage: u}, err
	case TypeCostAnalyticsCreated:
		c, err := decodeData[domain.CostAnalytics](env)
		return CostAnalyticsCreated{Analytics: c}, err
	case TypePerformanceMetricsCreated:
		m, err := decodeData[domain.PerformanceMetrics](env)
		return PerformanceMetricsCreated{Metrics: m}, err
	case TypeAlertCreated:
		a, err := decodeData[domain.Alert](env)
		return AlertCreated{Alert: a}, err
	case TypeAlertRead:
		ref, err := decodeData[idRef](env)
		return AlertRead{ID: ref.ID}, err
	case TypeStatsUpdate:
		s, err := decodeData[domain.LiveStats](env)
		return StatsUpdate{Stats: s}, err
	default:
		return Unknown{Kind: env.Type, Data: env.Data, Message: env.Message}, nil
	}
}

func decodeData[T any](env envelope) (T, error) {
	var v T
	if len(env.Data) == 0 || string(env.Data) == "null" {
		return v, fmt.Errorf("%s: %w", env.Type, ErrMissingData)
	}
	if err := json.Unmarshal(env.Data, &v); err != nil {
		return v, fmt.Errorf("decode %s data: %w", env.Type, err)
	}
	return v, nil
}
