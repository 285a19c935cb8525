package errors

import (
	"errors"
	"fmt"
)

// Domain errors - these represent rejected input or missing resources
var (
	// Authentication & Authorization
	ErrUnauthorized = errors.New("unauthorized")
	ErrForbidden    = errors.New("action forbidden")

	// Tickets & subscriptions
	ErrSubscriptionNotFound = errors.New("subscription not found")

	// Notification validation
	ErrSubscriptionKeyRequired = errors.New("subscription key is required")
	ErrSubscriptionKeyTooLong  = errors.New("subscription key exceeds maximum length")
	ErrInvalidEventType        = errors.New("invalid event type")

	// Generic
	ErrNotFound    = errors.New("resource not found")
	ErrBadRequest  = errors.New("bad request")
	ErrRateLimited = errors.New("rate limit exceeded")
)

// BackendKind distinguishes the failure causes of the shared store and broadcast medium.
type BackendKind int

const (
	// BackendTransport covers connection, timeout and protocol level failures.
	BackendTransport BackendKind = iota
	// BackendUnknown covers everything else, e.g. undecodable stored values.
	BackendUnknown
)

func (k BackendKind) String() string {
	switch k {
	case BackendTransport:
		return "transport"
	default:
		return "unknown"
	}
}

// BackendError wraps a failure of the shared store or the broadcast medium.
type BackendError struct {
	Kind BackendKind
	Op   string
	Err  error
}

func (e *BackendError) Error() string {
	return fmt.Sprintf("%s backend error on %s: %v", e.Kind, e.Op, e.Err)
}

func (e *BackendError) Unwrap() error {
	return e.Err
}

// NewBackendError builds a BackendError, using classify to decide the kind.
func NewBackendError(op string, err error, classify func(error) BackendKind) *BackendError {
	kind := BackendUnknown
	if classify != nil {
		kind = classify(err)
	}
	return &BackendError{Kind: kind, Op: op, Err: err}
}

// TicketErrorKind distinguishes why a ticket could not be consumed.
type TicketErrorKind int

const (
	TicketNotFound TicketErrorKind = iota
	TicketBackend
)

// TicketError is the failure returned when consuming a connection ticket.
// NotFound and Backend are kept apart for server-side logging; clients see
// the same rejection for both. TicketRef is the ticket's fingerprint.
type TicketError struct {
	Kind      TicketErrorKind
	TicketRef string
	Err       error
}

func (e *TicketError) Error() string {
	if e.Kind == TicketNotFound {
		return fmt.Sprintf("ticket %s not found", e.TicketRef)
	}
	return fmt.Sprintf("consume ticket %s: %v", e.TicketRef, e.Err)
}

func (e *TicketError) Unwrap() error {
	return e.Err
}

// ToTicketError maps a ticket store failure onto the ticket consumption
// boundary. Every non-nil error maps to exactly one kind.
func ToTicketError(ticketRef string, err error) *TicketError {
	if err == nil {
		return nil
	}
	if errors.Is(err, ErrSubscriptionNotFound) {
		return &TicketError{Kind: TicketNotFound, TicketRef: ticketRef, Err: err}
	}
	var backendErr *BackendError
	if !errors.As(err, &backendErr) {
		backendErr = &BackendError{Kind: BackendUnknown, Op: "consume ticket", Err: err}
	}
	return &TicketError{Kind: TicketBackend, TicketRef: ticketRef, Err: backendErr}
}

// GenerateTicketError is returned when a ticket could not be issued.
type GenerateTicketError struct {
	Err *BackendError
}

func (e *GenerateTicketError) Error() string {
	return "generate ticket: " + e.Err.Error()
}

func (e *GenerateTicketError) Unwrap() error {
	return e.Err
}

// ToGenerateTicketError maps a ticket store write failure onto the issue boundary.
func ToGenerateTicketError(err error) *GenerateTicketError {
	if err == nil {
		return nil
	}
	var backendErr *BackendError
	if !errors.As(err, &backendErr) {
		backendErr = &BackendError{Kind: BackendUnknown, Op: "add subscription", Err: err}
	}
	return &GenerateTicketError{Err: backendErr}
}

// AppError wraps errors with additional context for HTTP responses
type AppError struct {
	Err        error  // The underlying error
	Message    string // User-friendly message
	Code       string // Machine-readable error code
	StatusCode int    // HTTP status code
	Details    map[string]interface{}
}

func (e *AppError) Error() string {
	if e.Message != "" {
		return e.Message
	}
	return e.Err.Error()
}

func (e *AppError) Unwrap() error {
	return e.Err
}

// Error constructors for common cases
func NewBadRequestError(err error, message string) *AppError {
	return &AppError{
		Err:        err,
		Message:    message,
		Code:       "BAD_REQUEST",
		StatusCode: 400,
	}
}

func NewForbiddenError(message string) *AppError {
	return &AppError{
		Err:        ErrForbidden,
		Message:    message,
		Code:       "FORBIDDEN",
		StatusCode: 403,
	}
}

func NewInternalError(err error) *AppError {
	return &AppError{
		Err:        err,
		Message:    "An unexpected error occurred",
		Code:       "INTERNAL_ERROR",
		StatusCode: 500,
	}
}

// ValidationErrors holds multiple field validation errors
type ValidationErrors struct {
	Errors map[string][]string `json:"errors"`
}

func NewValidationErrors() *ValidationErrors {
	return &ValidationErrors{
		Errors: make(map[string][]string),
	}
}

func (v *ValidationErrors) Add(field, message string) {
	v.Errors[field] = append(v.Errors[field], message)
}

func (v *ValidationErrors) HasErrors() bool {
	return len(v.Errors) > 0
}

func (v *ValidationErrors) Error() string {
	return fmt.Sprintf("validation failed: %d field(s) have errors", len(v.Errors))
}
