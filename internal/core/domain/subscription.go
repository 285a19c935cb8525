package domain

import "slices"

// Subscription binds a connection to a subscription key, the requesting
// subject and the set of event types it wants delivered.
type Subscription struct {
	Subject         string      `json:"sub"`
	TicketValue     string      `json:"connectionTicket"`
	SubscriptionKey string      `json:"subscriptionKey"`
	Events          []EventType `json:"events"`
}

// NewSubscription builds the subscription stored under a freshly minted
// ticket. An empty event list means every event type; repeated event types
// are kept once, in the order first requested.
func NewSubscription(subject string, ticket WellFormedTicket, req TicketRequest) Subscription {
	events := AllEventTypes()
	if len(req.Events) > 0 {
		events = make([]EventType, 0, len(req.Events))
		for _, e := range req.Events {
			if !slices.Contains(events, e) {
				events = append(events, e)
			}
		}
	}
	return Subscription{
		Subject:         subject,
		TicketValue:     ticket.String(),
		SubscriptionKey: req.SubscriptionKey,
		Events:          events,
	}
}

// Wants reports whether the subscription should receive the given event type.
func (s Subscription) Wants(e EventType) bool {
	if len(s.Events) == 0 {
		return true
	}
	return slices.Contains(s.Events, e)
}

// Equal compares two subscriptions field by field.
func (s Subscription) Equal(other Subscription) bool {
	return s.Subject == other.Subject &&
		s.TicketValue == other.TicketValue &&
		s.SubscriptionKey == other.SubscriptionKey &&
		slices.Equal(s.Events, other.Events)
}

// TicketRequest is the body a staff client posts to obtain a connection ticket.
type TicketRequest struct {
	SubscriptionKey string      `json:"subscriptionKey"`
	Events          []EventType `json:"events,omitempty"`
}
