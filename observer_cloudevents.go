package modkit

import (
	"fmt"
	"time"

	cloudevents "github.com/cloudevents/sdk-go/v2"
	"github.com/google/uuid"
)

// CloudEvent is an alias for the CloudEvents Event type for convenience
type CloudEvent = cloudevents.Event

// ExtensionApplication is the CloudEvents extension carrying the name of the
// application that emitted a lifecycle event.
const ExtensionApplication = "modkitapp"

// NewCloudEvent builds a v1.0 event stamped with the current time and a
// time-ordered id. data is encoded as JSON; metadata entries become
// extensions.
func NewCloudEvent(eventType, source string, data any, metadata map[string]any) cloudevents.Event {
	event := cloudevents.NewEvent(cloudevents.VersionV1)
	event.SetID(newEventID())
	event.SetType(eventType)
	event.SetSource(source)
	event.SetTime(time.Now())

	if data != nil {
		_ = event.SetData(cloudevents.ApplicationJSON, data)
	}
	for name, value := range metadata {
		event.SetExtension(name, value)
	}
	return event
}

// EventApplication returns the application name recorded on event, or "" for
// events not emitted by an application.
func EventApplication(event cloudevents.Event) string {
	name, _ := event.Extensions()[ExtensionApplication].(string)
	return name
}

func newEventID() string {
	if id, err := uuid.NewV7(); err == nil {
		return id.String()
	}
	return uuid.NewString()
}

// ValidateCloudEvent reports events missing a required attribute.
func ValidateCloudEvent(event cloudevents.Event) error {
	if err := event.Validate(); err != nil {
		return fmt.Errorf("%w %q: %v", ErrInvalidEvent, event.Type(), err)
	}
	return nil
}
