package events

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/wonny/genxsop/backend/internal/contracts"
)

// Event names
const (
	NameForecastGenerated   = "ForecastGenerated"
	NameForecastJobsCleaned = "ForecastJobsCleaned"
)

// Event is a domain event published after a state change commits.
type Event interface {
	EventName() string
}

// ForecastGenerated is published after a forecast run commits.
type ForecastGenerated struct {
	ProductID      int64             `json:"product_id"`
	ModelID        contracts.ModelID `json:"model_id"`
	HorizonMonths  int               `json:"horizon_months"`
	RecordsCreated int               `json:"records_created"`
	UserID         int64             `json:"user_id"`
}

func (ForecastGenerated) EventName() string { return NameForecastGenerated }

// ForecastJobsCleaned summarises a retention cleanup.
type ForecastJobsCleaned struct {
	RetentionDays int       `json:"retention_days"`
	DeletedCount  int64     `json:"deleted_count"`
	Cutoff        time.Time `json:"cutoff"`
	UserID        int64     `json:"user_id"`
}

func (ForecastJobsCleaned) EventName() string { return NameForecastJobsCleaned }

// Envelope is the wire form of an event.
type Envelope struct {
	Name       string          `json:"name"`
	OccurredAt time.Time       `json:"occurred_at"`
	Payload    json.RawMessage `json:"payload"`
}

// Encode wraps an event in an envelope and marshals it.
func Encode(e Event, at time.Time) ([]byte, error) {
	payload, err := json.Marshal(e)
	if err != nil {
		return nil, err
	}
	return json.Marshal(Envelope{Name: e.EventName(), OccurredAt: at.UTC(), Payload: payload})
}

// Publisher delivers domain events. Delivery is fire-and-forget;
// callers log and ignore errors.
type Publisher interface {
	Publish(ctx context.Context, e Event) error
}

// Nop discards every event.
type Nop struct{}

func (Nop) Publish(context.Context, Event) error { return nil }

// Memory records events in process (tests, memory store mode).
type Memory struct {
	mu     sync.Mutex
	events []Event
}

// NewMemory creates an empty recorder.
func NewMemory() *Memory {
	return &Memory{}
}

func (m *Memory) Publish(_ context.Context, e Event) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events = append(m.events, e)
	return nil
}

// Events returns a copy of everything published so far.
func (m *Memory) Events() []Event {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]Event(nil), m.events...)
}

// Named returns recorded events with the given name.
func (m *Memory) Named(name string) []Event {
	var out []Event
	for _, e := range m.Events() {
		if e.EventName() == name {
			out = append(out, e)
		}
	}
	return out
}
