package domain

import (
	"encoding/json"
	"errors"
	"fmt"
)

// ErrUnknownEventType is returned when an event type is not one of the known kinds.
var ErrUnknownEventType = errors.New("unknown event type")

// EventType defines the kind of dialog change pushed to subscribers.
type EventType string

const (
	// EventMessageFromUser is a new dialog message from the end-user to staff.
	EventMessageFromUser EventType = "NY_DIALOGMELDING_FRA_BRUKER_TIL_NAV"
	// EventMessageToUser is a new dialog message from staff to the end-user.
	EventMessageToUser EventType = "NY_DIALOGMELDING_FRA_NAV_TIL_BRUKER"
)

// AllEventTypes returns every known event type in declaration order.
func AllEventTypes() []EventType {
	return []EventType{EventMessageFromUser, EventMessageToUser}
}

// IsValid reports whether the event type is a known kind.
func (e EventType) IsValid() bool {
	switch e {
	case EventMessageFromUser, EventMessageToUser:
		return true
	default:
		return false
	}
}

// ParseEventType converts a raw string into a known EventType.
func ParseEventType(s string) (EventType, error) {
	e := EventType(s)
	if !e.IsValid() {
		return "", fmt.Errorf("%w: %q", ErrUnknownEventType, s)
	}
	return e, nil
}

// UnmarshalJSON rejects values outside the closed set of event types.
func (e *EventType) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	parsed, err := ParseEventType(s)
	if err != nil {
		return err
	}
	*e = parsed
	return nil
}

// Encode returns the compact wire value pushed to a client connection:
// the JSON encoded event name, quotes included.
func (e EventType) Encode() string {
	data, _ := json.Marshal(string(e))
	return string(data)
}

// NotificationRequest is a producer's request to notify subscribers of a key.
type NotificationRequest struct {
	SubscriptionKey string    `json:"subscriptionKey"`
	EventType       EventType `json:"eventType"`
}

// BroadcastEnvelope is the payload placed on the shared broadcast channel.
type BroadcastEnvelope struct {
	SubscriptionKey string    `json:"subscriptionKey"`
	EventType       EventType `json:"eventType"`
}

// Envelope converts the request into its wire form.
func (r NotificationRequest) Envelope() BroadcastEnvelope {
	return BroadcastEnvelope{
		SubscriptionKey: r.SubscriptionKey,
		EventType:       r.EventType,
	}
}

// Marshal serializes the envelope into the text published on the channel.
func (e BroadcastEnvelope) Marshal() (string, error) {
	data, err := json.Marshal(e)
	if err != nil {
		return "", fmt.Errorf("marshal broadcast envelope: %w", err)
	}
	return string(data), nil
}

// DecodeEnvelope parses a raw broadcast message. Unknown event types and
// missing subscription keys are rejected.
func DecodeEnvelope(raw string) (BroadcastEnvelope, error) {
	var env BroadcastEnvelope
	if err := json.Unmarshal([]byte(raw), &env); err != nil {
		return BroadcastEnvelope{}, fmt.Errorf("decode broadcast envelope: %w", err)
	}
	if env.SubscriptionKey == "" {
		return BroadcastEnvelope{}, errors.New("decode broadcast envelope: missing subscriptionKey")
	}
	if !env.EventType.IsValid() {
		return BroadcastEnvelope{}, fmt.Errorf("decode broadcast envelope: %w", ErrUnknownEventType)
	}
	return env, nil
}
