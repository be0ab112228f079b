package envmodules

import (
	"context"
	"sync"
	"time"

	cloudevents "github.com/cloudevents/sdk-go/v2"
)

// Observer defines the interface for objects that want to be notified of
// engine events. Events use the CloudEvents specification.
type Observer interface {
	// OnEvent is called synchronously for every event the observer is
	// subscribed to. Observers must not call back into the graph that
	// emitted the event.
	OnEvent(ctx context.Context, event cloudevents.Event) error

	// ObserverID returns a unique identifier for this observer.
	ObserverID() string
}

// Subject defines the interface for objects that can be observed.
type Subject interface {
	// RegisterObserver adds an observer. If eventTypes is empty, the observer
	// receives all events.
	RegisterObserver(observer Observer, eventTypes ...string) error

	// UnregisterObserver removes an observer. It is idempotent.
	UnregisterObserver(observer Observer) error

	// NotifyObservers delivers an event to every interested observer.
	NotifyObservers(ctx context.Context, event cloudevents.Event) error

	// GetObservers returns information about currently registered observers.
	GetObservers() []ObserverInfo
}

// ObserverInfo provides information about a registered observer.
type ObserverInfo struct {
	ID           string    `json:"id"`
	EventTypes   []string  `json:"eventTypes"`
	RegisteredAt time.Time `json:"registeredAt"`
}

// Event types emitted by a DependencyGraph.
const (
	EventTypeModuleLoading    = "com.envmodules.module.loading"
	EventTypeModuleLoaded     = "com.envmodules.module.loaded"
	EventTypeModuleReferenced = "com.envmodules.module.referenced"
	EventTypeModuleUnloaded   = "com.envmodules.module.unloaded"
	EventTypeModuleReleased   = "com.envmodules.module.released"
	EventTypeModuleFailed     = "com.envmodules.module.failed"

	EventTypeDependencySkipped = "com.envmodules.dependency.skipped"

	EventTypePathChanged     = "com.envmodules.path.changed"
	EventTypeAliasAdded      = "com.envmodules.alias.added"
	EventTypeAliasRemoved    = "com.envmodules.alias.removed"
	EventTypeFunctionAdded   = "com.envmodules.function.added"
	EventTypeFunctionRemoved = "com.envmodules.function.removed"
)

// FunctionalObserver provides a simple way to create observers using functions.
type FunctionalObserver struct {
	id      string
	handler func(ctx context.Context, event cloudevents.Event) error
}

// NewFunctionalObserver creates an observer that delegates to handler.
func NewFunctionalObserver(id string, handler func(ctx context.Context, event cloudevents.Event) error) Observer {
	return &FunctionalObserver{
		id:      id,
		handler: handler,
	}
}

// OnEvent implements the Observer interface by calling the handler function.
func (f *FunctionalObserver) OnEvent(ctx context.Context, event cloudevents.Event) error {
	return f.handler(ctx, event)
}

// ObserverID implements the Observer interface by returning the observer ID.
func (f *FunctionalObserver) ObserverID() string {
	return f.id
}

type observerRegistration struct {
	observer     Observer
	eventTypes   map[string]bool
	registeredAt time.Time
}

// eventSubject is the Subject implementation shared by engine components.
// Delivery is synchronous and in registration order; observer failures are
// logged and never reach the emitter.
type eventSubject struct {
	mu        sync.RWMutex
	observers []*observerRegistration
	source    string
	logger    Logger
}

func newEventSubject(source string, logger Logger) *eventSubject {
	return &eventSubject{source: source, logger: logger}
}

func (s *eventSubject) RegisterObserver(observer Observer, eventTypes ...string) error {
	if observer == nil {
		return ErrObserverNil
	}

	eventTypeMap := make(map[string]bool, len(eventTypes))
	for _, eventType := range eventTypes {
		eventTypeMap[eventType] = true
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	registration := &observerRegistration{
		observer:     observer,
		eventTypes:   eventTypeMap,
		registeredAt: time.Now(),
	}
	for i, existing := range s.observers {
		if existing.observer.ObserverID() == observer.ObserverID() {
			s.observers[i] = registration
			return nil
		}
	}
	s.observers = append(s.observers, registration)

	s.logger.Debug("Observer registered", "observerID", observer.ObserverID(), "eventTypes", eventTypes)
	return nil
}

func (s *eventSubject) UnregisterObserver(observer Observer) error {
	if observer == nil {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	for i, existing := range s.observers {
		if existing.observer.ObserverID() == observer.ObserverID() {
			s.observers = append(s.observers[:i], s.observers[i+1:]...)
			s.logger.Debug("Observer unregistered", "observerID", observer.ObserverID())
			break
		}
	}
	return nil
}

func (s *eventSubject) NotifyObservers(ctx context.Context, event cloudevents.Event) error {
	if event.Time().IsZero() {
		event.SetTime(time.Now())
	}
	if err := ValidateModuleEvent(event); err != nil {
		s.logger.Error("Invalid event", "eventType", event.Type(), "error", err)
		return err
	}

	s.mu.RLock()
	registrations := make([]*observerRegistration, len(s.observers))
	copy(registrations, s.observers)
	s.mu.RUnlock()

	for _, registration := range registrations {
		if len(registration.eventTypes) > 0 && !registration.eventTypes[event.Type()] {
			continue
		}
		s.deliver(ctx, registration.observer, event)
	}
	return nil
}

func (s *eventSubject) deliver(ctx context.Context, observer Observer, event cloudevents.Event) {
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("Observer panicked", "observerID", observer.ObserverID(), "event", event.Type(), "panic", r)
		}
	}()

	if err := observer.OnEvent(ctx, event); err != nil {
		s.logger.Error("Observer error", "observerID", observer.ObserverID(), "event", event.Type(), "error", err)
	}
}

func (s *eventSubject) GetObservers() []ObserverInfo {
	s.mu.RLock()
	defer s.mu.RUnlock()

	info := make([]ObserverInfo, 0, len(s.observers))
	for _, registration := range s.observers {
		eventTypes := make([]string, 0, len(registration.eventTypes))
		for eventType := range registration.eventTypes {
			eventTypes = append(eventTypes, eventType)
		}
		info = append(info, ObserverInfo{
			ID:           registration.observer.ObserverID(),
			EventTypes:   eventTypes,
			RegisteredAt: registration.registeredAt,
		})
	}
	return info
}

// emit builds and delivers an event. Emission failures are logged only.
func (s *eventSubject) emit(eventType string, data map[string]any) {
	s.mu.RLock()
	empty := len(s.observers) == 0
	s.mu.RUnlock()
	if empty {
		return
	}

	module, _ := data["module"].(string)
	event := NewModuleEvent(eventType, s.source, module, data)
	if err := s.NotifyObservers(context.Background(), event); err != nil {
		s.logger.Error("Failed to notify observers", "event", eventType, "error", err)
	}
}
