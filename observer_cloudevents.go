package envmodules

import (
	"fmt"
	"strings"
	"time"

	cloudevents "github.com/cloudevents/sdk-go/v2"
	"github.com/google/uuid"
)

// CloudEvent is an alias for the CloudEvents Event type.
type CloudEvent = cloudevents.Event

// eventTypePrefix is shared by every event type the engine emits.
const eventTypePrefix = "com.envmodules."

// NewModuleEvent creates an engine event about module. The module full name
// is carried as the CloudEvents subject so observers can filter on it without
// decoding the JSON data.
func NewModuleEvent(eventType, source, module string, data any) cloudevents.Event {
	event := cloudevents.NewEvent()
	event.SetID(newEventID())
	event.SetSource(source)
	event.SetType(eventType)
	event.SetTime(time.Now())
	event.SetSpecVersion(cloudevents.VersionV1)
	if module != "" {
		event.SetSubject(module)
	}
	if data != nil {
		_ = event.SetData(cloudevents.ApplicationJSON, data)
	}
	return event
}

// EventModule returns the module an engine event is about.
func EventModule(event cloudevents.Event) (string, bool) {
	module := event.Subject()
	return module, module != ""
}

// UUIDv7 keeps event IDs ordered by emission time.
func newEventID() string {
	id, err := uuid.NewV7()
	if err != nil {
		id = uuid.New()
	}
	return id.String()
}

// ValidateModuleEvent checks that event is a valid CloudEvent of one of the
// engine's event types.
func ValidateModuleEvent(event cloudevents.Event) error {
	if err := event.Validate(); err != nil {
		return fmt.Errorf("invalid event %s: %w", event.ID(), err)
	}
	if !strings.HasPrefix(event.Type(), eventTypePrefix) {
		return fmt.Errorf("%w: %q", ErrUnknownEventType, event.Type())
	}
	return nil
}
