package mocks

import (
	"context"
	"sync"

	"github.com/seu-repo/energy-core/internal/domain"
	"github.com/seu-repo/energy-core/internal/ports"
)

// MockActuation is a func-field ports.Actuation that counts calls
type MockActuation struct {
	mu        sync.Mutex
	calls     int
	ApplyFunc func(ctx context.Context, m *domain.Measure) (ports.ActuationResult, error)
}

func (m *MockActuation) Apply(ctx context.Context, measure *domain.Measure) (ports.ActuationResult, error) {
	m.mu.Lock()
	m.calls++
	m.mu.Unlock()
	if m.ApplyFunc != nil {
		return m.ApplyFunc(ctx, measure)
	}
	return ports.ActuationResult{OK: true, Message: "ok"}, nil
}

func (m *MockActuation) Calls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls
}

// PublishedEvent is one call to MockPublisher.Publish
type PublishedEvent struct {
	Subject string
	Event   interface{}
}

// MockPublisher records every event handed to it
type MockPublisher struct {
	mu          sync.Mutex
	events      []PublishedEvent
	PublishFunc func(ctx context.Context, subject string, event interface{}) error
}

func (m *MockPublisher) Publish(ctx context.Context, subject string, event interface{}) error {
	m.mu.Lock()
	m.events = append(m.events, PublishedEvent{Subject: subject, Event: event})
	m.mu.Unlock()
	if m.PublishFunc != nil {
		return m.PublishFunc(ctx, subject, event)
	}
	return nil
}

func (m *MockPublisher) Events() []PublishedEvent {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]PublishedEvent(nil), m.events...)
}

// Count returns how many events were published on subject
func (m *MockPublisher) Count(subject string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, e := range m.events {
		if e.Subject == subject {
			n++
		}
	}
	return n
}

// Last returns the most recent event on subject
func (m *MockPublisher) Last(subject string) (interface{}, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := len(m.events) - 1; i >= 0; i-- {
		if m.events[i].Subject == subject {
			return m.events[i].Event, true
		}
	}
	return nil, false
}

var (
	_ ports.Actuation      = (*MockActuation)(nil)
	_ ports.EventPublisher = (*MockPublisher)(nil)
	_ ports.Cache          = (*MockCache)(nil)
)
