package domain

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"log/slog"
	"strings"

	"github.com/google/uuid"
)

// ErrInvalidTicket is returned when a presented ticket is not a well-formed identifier.
var ErrInvalidTicket = errors.New("invalid ticket")

// WellFormedTicket is a ticket that parsed as a valid identifier. It has not
// yet been looked up, so it may or may not exist in the store.
type WellFormedTicket struct {
	value string
}

// NewTicket mints a fresh random ticket.
func NewTicket() WellFormedTicket {
	return WellFormedTicket{value: uuid.NewString()}
}

// ParseTicket validates the syntax of a presented ticket. It never touches
// the store; malformed input is rejected with ErrInvalidTicket.
func ParseTicket(raw string) (WellFormedTicket, error) {
	id, err := uuid.Parse(strings.TrimSpace(raw))
	if err != nil {
		return WellFormedTicket{}, ErrInvalidTicket
	}
	return WellFormedTicket{value: id.String()}, nil
}

// String returns the canonical ticket value.
func (t WellFormedTicket) String() string {
	return t.value
}

// Fingerprint identifies the ticket in logs and errors without revealing it.
// A ticket is a bearer credential, so its value is never written out.
func (t WellFormedTicket) Fingerprint() string {
	if t.value == "" {
		return ""
	}
	sum := sha256.Sum256([]byte(t.value))
	return hex.EncodeToString(sum[:6])
}

// LogValue implements slog.LogValuer.
func (t WellFormedTicket) LogValue() slog.Value {
	return slog.StringValue(t.Fingerprint())
}

// IsZero reports whether the ticket was never initialised.
func (t WellFormedTicket) IsZero() bool {
	return t.value == ""
}

// ValidatedTicket is a ticket that resolved to a stored Subscription.
type ValidatedTicket struct {
	Ticket       WellFormedTicket
	Subscription Subscription
}
