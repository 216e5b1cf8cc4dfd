package mqtt

import (
	"fmt"
	"sync"

	"github.com/railops/dispatchd/core/events"
)

// MockNotifier records notifications for tests.
type MockNotifier struct {
	Plans  []events.PlanEvent
	Alerts []events.AlertEvent
	Fail   bool
	mu     sync.Mutex
}

// NewMockNotifier creates a new MockNotifier.
func NewMockNotifier() *MockNotifier {
	return &MockNotifier{}
}

// NotifyPlan records the plan event or fails when configured to.
func (m *MockNotifier) NotifyPlan(ev events.PlanEvent) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Fail {
		return fmt.Errorf("publish failed")
	}
	m.Plans = append(m.Plans, ev)
	return nil
}

// NotifyAlert records the alert event or fails when configured to.
func (m *MockNotifier) NotifyAlert(ev events.AlertEvent) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Fail {
		return fmt.Errorf("publish failed")
	}
	m.Alerts = append(m.Alerts, ev)
	return nil
}
