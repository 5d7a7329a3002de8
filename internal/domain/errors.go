package domain

import (
	"errors"
	"fmt"
)

// Sentinel errors. Services wrap these so handlers can map them to status codes.
var (
	ErrNoTokensRegistered = errors.New("no tokens registered")
	ErrNoTargetsMatched   = errors.New("no tokens matched the filter")

	// ErrPermanentToken marks a gateway failure meaning the token will never accept deliveries again.
	ErrPermanentToken = errors.New("registration token is invalid or unregistered")

	// ErrGatewayUnavailable is returned when no push gateway could be initialized.
	ErrGatewayUnavailable = errors.New("push gateway unavailable")
)

// ValidationError reports a missing or malformed request field
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// Required builds the error for a missing field
func Required(field string) *ValidationError {
	return &ValidationError{Field: field, Message: "is required"}
}

// DeliveryErrorKind classifies a failed per-target send
type DeliveryErrorKind string

const (
	DeliveryTransient DeliveryErrorKind = "transient"
	DeliveryPermanent DeliveryErrorKind = "permanent"
)

// ClassifyDeliveryError maps a gateway error to its kind
func ClassifyDeliveryError(err error) DeliveryErrorKind {
	if errors.Is(err, ErrPermanentToken) {
		return DeliveryPermanent
	}
	return DeliveryTransient
}
