package aiq

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
)

// StepType identifies what produced an intermediate step event.
type StepType string

const (
	StepWorkflowStart StepType = "WORKFLOW_START"
	StepWorkflowEnd   StepType = "WORKFLOW_END"
	StepLLMStart      StepType = "LLM_START"
	StepLLMEnd        StepType = "LLM_END"
	StepToolStart     StepType = "TOOL_START"
	StepToolEnd       StepType = "TOOL_END"
	StepCustomStart   StepType = "CUSTOM_START"
	StepCustomEnd     StepType = "CUSTOM_END"
)

// IntermediateStep is one event emitted while a workflow runs. START/END
// pairs share a UUID so consumers can correlate them.
type IntermediateStep struct {
	UUID      string    `json:"UUID"`
	EventType StepType  `json:"event_type"`
	Name      string    `json:"name"`
	Timestamp time.Time `json:"timestamp"`
	Input     string    `json:"input,omitempty"`
	Output    string    `json:"output,omitempty"`
}

const subscriberBuffer = 64

// StepManager fans intermediate steps out to subscribers. Pushing never
// blocks workflow execution; a subscriber that falls behind loses events and
// the drop is counted.
type StepManager struct {
	mu      sync.Mutex
	subs    map[int]chan IntermediateStep
	nextID  int
	dropped uint64
	closed  bool
}

// NewStepManager creates an empty step manager.
func NewStepManager() *StepManager {
	return &StepManager{subs: make(map[int]chan IntermediateStep)}
}

// Subscribe registers a new subscriber. The returned cancel function must be
// called when the subscriber is done; it closes the channel.
func (m *StepManager) Subscribe() (<-chan IntermediateStep, func()) {
	m.mu.Lock()
	defer m.mu.Unlock()

	id := m.nextID
	m.nextID++
	ch := make(chan IntermediateStep, subscriberBuffer)
	if m.closed {
		close(ch)
		return ch, func() {}
	}
	m.subs[id] = ch

	cancel := func() {
		m.mu.Lock()
		defer m.mu.Unlock()
		if sub, ok := m.subs[id]; ok {
			delete(m.subs, id)
			close(sub)
		}
	}
	return ch, cancel
}

// Push delivers a step to all subscribers. Nil-safe so components can emit
// unconditionally even when no manager is attached to the context.
func (m *StepManager) Push(step IntermediateStep) {
	if m == nil {
		return
	}
	if step.UUID == "" {
		step.UUID = uuid.New().String()
	}
	if step.Timestamp.IsZero() {
		step.Timestamp = time.Now()
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	for _, ch := range m.subs {
		select {
		case ch <- step:
		default:
			m.dropped++
		}
	}
}

// Start emits a START step and returns the UUID for the matching End call.
func (m *StepManager) Start(eventType StepType, name, input string) string {
	uid := uuid.New().String()
	m.Push(IntermediateStep{
		UUID:      uid,
		EventType: eventType,
		Name:      name,
		Input:     input,
	})
	return uid
}

// End emits an END step sharing the UUID produced by Start.
func (m *StepManager) End(uid string, eventType StepType, name, output string) {
	m.Push(IntermediateStep{
		UUID:      uid,
		EventType: eventType,
		Name:      name,
		Output:    output,
	})
}

// Dropped reports how many events were discarded because a subscriber's
// buffer was full.
func (m *StepManager) Dropped() uint64 {
	if m == nil {
		return 0
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.dropped
}

// Close shuts down all subscriber channels. Further pushes are no-ops.
func (m *StepManager) Close() {
	if m == nil {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return
	}
	m.closed = true
	for id, ch := range m.subs {
		delete(m.subs, id)
		close(ch)
	}
}

type stepManagerKey struct{}

// WithStepManager returns a context carrying the step manager.
func WithStepManager(ctx context.Context, m *StepManager) context.Context {
	return context.WithValue(ctx, stepManagerKey{}, m)
}

// StepManagerFrom extracts the step manager from a context. Returns nil when
// none is attached; all StepManager methods tolerate a nil receiver.
func StepManagerFrom(ctx context.Context) *StepManager {
	if m, ok := ctx.Value(stepManagerKey{}).(*StepManager); ok {
		return m
	}
	return nil
}
