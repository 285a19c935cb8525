package validation

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/lorrc/notification-relay/internal/core/domain"
	apperrors "github.com/lorrc/notification-relay/internal/core/errors"
	"github.com/lorrc/notification-relay/internal/core/services"
)

// MaxBodyBytes bounds the JSON bodies accepted by the relay's endpoints.
const MaxBodyBytes = 64 << 10

// Validator validates request data
type Validator struct {
	errors *apperrors.ValidationErrors
}

// NewValidator creates a new validator
func NewValidator() *Validator {
	return &Validator{
		errors: apperrors.NewValidationErrors(),
	}
}

// HasErrors returns true if there are validation errors
func (v *Validator) HasErrors() bool {
	return v.errors.HasErrors()
}

// Errors returns the validation errors
func (v *Validator) Errors() *apperrors.ValidationErrors {
	return v.errors
}

// Err returns the collected errors, or nil when there are none.
func (v *Validator) Err() error {
	if !v.HasErrors() {
		return nil
	}
	return v.errors
}

// Required validates that a string is not empty
func (v *Validator) Required(field, value string) *Validator {
	if strings.TrimSpace(value) == "" {
		v.errors.Add(field, "This field is required")
	}
	return v
}

// MaxLength validates maximum string length
func (v *Validator) MaxLength(field, value string, max int) *Validator {
	if len(value) > max {
		v.errors.Add(field, "Must be at most "+strconv.Itoa(max)+" characters")
	}
	return v
}

// EventTypes validates that every listed event type is known.
func (v *Validator) EventTypes(field string, events []domain.EventType) *Validator {
	for _, e := range events {
		if !e.IsValid() {
			v.errors.Add(field, "Unknown event type: "+string(e))
		}
	}
	return v
}

// DecodeJSON decodes a JSON request body of at most MaxBodyBytes.
// Malformed bodies and unknown event types are reported as a bad request.
func DecodeJSON[T any](w http.ResponseWriter, r *http.Request) (*T, error) {
	var req T

	body := http.MaxBytesReader(w, r.Body, MaxBodyBytes)
	if err := json.NewDecoder(body).Decode(&req); err != nil {
		if errors.Is(err, io.EOF) {
			err = errors.New("empty request body")
		}
		return nil, apperrors.NewBadRequestError(err, "Invalid payload")
	}

	return &req, nil
}

// TicketRequest checks a ticket request before a ticket is minted for it.
func TicketRequest(req domain.TicketRequest) error {
	return NewValidator().
		Required("subscriptionKey", req.SubscriptionKey).
		MaxLength("subscriptionKey", req.SubscriptionKey, services.MaxSubscriptionKeyLength).
		EventTypes("events", req.Events).
		Err()
}
