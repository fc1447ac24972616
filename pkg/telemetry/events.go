package telemetry

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Event represents a telemetry event emitted by the edit engine.
type Event struct {
	// ID is the unique identifier for this event.
	ID string `json:"id"`

	// Timestamp is when the event occurred.
	Timestamp time.Time `json:"timestamp"`

	// Type is the event type.
	Type string `json:"type"`

	// Source identifies where the event originated.
	Source string `json:"source"`

	// EngineKey is the edit engine that handled the request.
	EngineKey string `json:"engine,omitempty"`

	// ObjectPHID is the edited object, if one was resolved.
	ObjectPHID string `json:"object,omitempty"`

	// ViewerPHID is the acting viewer, if known.
	ViewerPHID string `json:"viewer,omitempty"`

	// Message is a human-readable event message.
	Message string `json:"message"`

	// Level is the event severity level (info, warning, error).
	Level string `json:"level"`

	// Data contains additional event-specific data.
	Data map[string]interface{} `json:"data,omitempty"`
}

// EventType constants for common event types.
const (
	EventTypeObjectCreated        = "object.created"
	EventTypeObjectEdited         = "object.edited"
	EventTypeEditRejected         = "edit.rejected"
	EventTypeEditInvalid          = "edit.invalid"
	EventTypeConfigurationChanged = "configuration.changed"
	EventTypePolicyReloaded       = "policy.reloaded"
	EventTypeError                = "error"
)

// EventLevel constants for event severity.
const (
	EventLevelInfo    = "info"
	EventLevelWarning = "warning"
	EventLevelError   = "error"
)

// EventSubscriber is a function that handles events.
type EventSubscriber func(event Event)

// EventFilter determines if an event should be processed.
type EventFilter func(event Event) bool

// EventPublisher manages event publishing and subscriptions.
type EventPublisher struct {
	config      EventsConfig
	buffer      chan Event
	subscribers []subscriberEntry
	filters     []EventFilter
	wg          sync.WaitGroup
	mu          sync.RWMutex
	ctx         context.Context
	cancel      context.CancelFunc
}

type subscriberEntry struct {
	subscriber EventSubscriber
	filter     EventFilter
}

// NewEventPublisher creates a new event publisher with the given configuration.
func NewEventPublisher(cfg EventsConfig) (*EventPublisher, error) {
	if !cfg.Enabled {
		return &EventPublisher{config: cfg}, nil
	}

	ctx, cancel := context.WithCancel(context.Background())

	ep := &EventPublisher{
		config:      cfg,
		buffer:      make(chan Event, cfg.BufferSize),
		subscribers: make([]subscriberEntry, 0),
		filters:     make([]EventFilter, 0),
		ctx:         ctx,
		cancel:      cancel,
	}

	// Start the event processing goroutine
	if cfg.EnableAsync {
		ep.wg.Add(1)
		go ep.processEvents()
	}

	return ep, nil
}

// Publish publishes an event to all subscribers.
func (ep *EventPublisher) Publish(event Event) error {
	if !ep.config.Enabled {
		return nil
	}

	// Set ID and timestamp if not already set
	if event.ID == "" {
		event.ID = uuid.New().String()
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}

	// Apply global filters
	ep.mu.RLock()
	for _, filter := range ep.filters {
		if !filter(event) {
			ep.mu.RUnlock()
			return nil // Event filtered out
		}
	}
	ep.mu.RUnlock()

	// Send to buffer if async, otherwise process immediately
	if ep.config.EnableAsync {
		select {
		case ep.buffer <- event:
			return nil
		case <-ep.ctx.Done():
			return fmt.Errorf("event publisher stopped")
		default:
			// Buffer full, drop event or log warning
			return fmt.Errorf("event buffer full, event dropped")
		}
	}

	// Synchronous publishing
	ep.deliverEvent(event)
	return nil
}

// PublishObjectEdited publishes an event for a committed edit. created
// selects between the created and edited event types.
func (ep *EventPublisher) PublishObjectEdited(engineKey, objectPHID, viewerPHID string, created bool, types []string) error {
	eventType := EventTypeObjectEdited
	verb := "edited"
	if created {
		eventType = EventTypeObjectCreated
		verb = "created"
	}
	return ep.Publish(Event{
		Type:       eventType,
		Source:     "editor",
		EngineKey:  engineKey,
		ObjectPHID: objectPHID,
		ViewerPHID: viewerPHID,
		Message:    fmt.Sprintf("%s %s by %s", objectPHID, verb, viewerPHID),
		Level:      EventLevelInfo,
		Data: map[string]interface{}{
			"transaction_types": types,
		},
	})
}

// PublishEditRejected publishes an event for an edit refused before any
// mutation was attempted.
func (ep *EventPublisher) PublishEditRejected(engineKey, viewerPHID, code, reason string) error {
	return ep.Publish(Event{
		Type:       EventTypeEditRejected,
		Source:     "engine",
		EngineKey:  engineKey,
		ViewerPHID: viewerPHID,
		Message:    fmt.Sprintf("Edit on %s rejected: %s", engineKey, reason),
		Level:      EventLevelWarning,
		Data: map[string]interface{}{
			"code": code,
		},
	})
}

// PublishEditInvalid publishes an event for an edit that failed validation.
func (ep *EventPublisher) PublishEditInvalid(engineKey, objectPHID string, errorTypes []string) error {
	return ep.Publish(Event{
		Type:       EventTypeEditInvalid,
		Source:     "editor",
		EngineKey:  engineKey,
		ObjectPHID: objectPHID,
		Message:    fmt.Sprintf("Edit on %s failed validation", engineKey),
		Level:      EventLevelWarning,
		Data: map[string]interface{}{
			"errors": errorTypes,
		},
	})
}

// PublishConfigurationChanged publishes an event for a saved form
// configuration.
func (ep *EventPublisher) PublishConfigurationChanged(engineKey, identifier, actor string) error {
	return ep.Publish(Event{
		Type:       EventTypeConfigurationChanged,
		Source:     "engine",
		EngineKey:  engineKey,
		ViewerPHID: actor,
		Message:    fmt.Sprintf("Configuration %s/%s saved by %s", engineKey, identifier, actor),
		Level:      EventLevelInfo,
		Data: map[string]interface{}{
			"configuration": identifier,
		},
	})
}

// PublishPolicyReloaded publishes an event after the policy loader swaps in
// a new policy set.
func (ep *EventPublisher) PublishPolicyReloaded(path string, err error) error {
	event := Event{
		Type:    EventTypePolicyReloaded,
		Source:  "policy",
		Message: fmt.Sprintf("Policies reloaded from %s", path),
		Level:   EventLevelInfo,
		Data: map[string]interface{}{
			"path": path,
		},
	}
	if err != nil {
		event.Level = EventLevelError
		event.Message = fmt.Sprintf("Policy reload from %s failed: %v", path, err)
	}
	return ep.Publish(event)
}

// Subscribe adds a new event subscriber.
func (ep *EventPublisher) Subscribe(subscriber EventSubscriber, filter EventFilter) {
	ep.mu.Lock()
	defer ep.mu.Unlock()

	ep.subscribers = append(ep.subscribers, subscriberEntry{
		subscriber: subscriber,
		filter:     filter,
	})
}

// AddFilter adds a global event filter.
func (ep *EventPublisher) AddFilter(filter EventFilter) {
	ep.mu.Lock()
	defer ep.mu.Unlock()

	ep.filters = append(ep.filters, filter)
}

// processEvents processes events from the buffer asynchronously. Batches
// are delivered when full, on every flush interval, and on shutdown.
func (ep *EventPublisher) processEvents() {
	defer ep.wg.Done()

	batch := make([]Event, 0, ep.config.MaxBatchSize)

	var tick <-chan time.Time
	if ep.config.FlushInterval > 0 {
		ticker := time.NewTicker(ep.config.FlushInterval)
		defer ticker.Stop()
		tick = ticker.C
	}

	for {
		select {
		case event := <-ep.buffer:
			batch = append(batch, event)

			if len(batch) >= ep.config.MaxBatchSize {
				ep.flushBatch(batch)
				batch = make([]Event, 0, ep.config.MaxBatchSize)
			}

		case <-tick:
			if len(batch) > 0 {
				ep.flushBatch(batch)
				batch = make([]Event, 0, ep.config.MaxBatchSize)
			}

		case <-ep.ctx.Done():
			// Drain whatever is still buffered before shutting down
			for {
				select {
				case event := <-ep.buffer:
					batch = append(batch, event)
					continue
				default:
				}
				break
			}
			if len(batch) > 0 {
				ep.flushBatch(batch)
			}
			return
		}
	}
}

// flushBatch delivers a batch of events to subscribers.
func (ep *EventPublisher) flushBatch(events []Event) {
	for _, event := range events {
		ep.deliverEvent(event)
	}
}

// deliverEvent delivers an event to all subscribers in registration order.
func (ep *EventPublisher) deliverEvent(event Event) {
	ep.mu.RLock()
	defer ep.mu.RUnlock()

	for _, entry := range ep.subscribers {
		// Apply subscriber-specific filter
		if entry.filter != nil && !entry.filter(event) {
			continue
		}

		entry.subscriber(event)
	}
}

// Shutdown gracefully shuts down the event publisher.
func (ep *EventPublisher) Shutdown(ctx context.Context) error {
	if !ep.config.Enabled {
		return nil
	}

	// Signal shutdown
	ep.cancel()

	// Wait for processing to complete with timeout
	done := make(chan struct{})
	go func() {
		ep.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("event publisher shutdown timeout")
	}
}

// Common event filters.

// FilterByLevel creates a filter that only allows events of a specific level or higher.
func FilterByLevel(minLevel string) EventFilter {
	levels := map[string]int{
		EventLevelInfo:    0,
		EventLevelWarning: 1,
		EventLevelError:   2,
	}

	minLevelValue := levels[minLevel]

	return func(event Event) bool {
		return levels[event.Level] >= minLevelValue
	}
}

// FilterByType creates a filter that only allows events of specific types.
func FilterByType(types ...string) EventFilter {
	typeSet := make(map[string]bool)
	for _, t := range types {
		typeSet[t] = true
	}

	return func(event Event) bool {
		return typeSet[event.Type]
	}
}

// FilterByEngine creates a filter that only allows events for a specific engine.
func FilterByEngine(engineKey string) EventFilter {
	return func(event Event) bool {
		return event.EngineKey == engineKey
	}
}

// FilterByObject creates a filter that only allows events for a specific object.
func FilterByObject(objectPHID string) EventFilter {
	return func(event Event) bool {
		return event.ObjectPHID == objectPHID
	}
}
