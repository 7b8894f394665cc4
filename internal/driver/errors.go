// File: internal/driver/errors.go
package driver

import "fmt"

// ContactNotFoundError means WhatsApp rejected the phone number outright.
// The failure is permanent for that contact; the orchestrator records it
// and moves on.
type ContactNotFoundError struct {
	Phone string
}

func (e *ContactNotFoundError) Error() string {
	return fmt.Sprintf("no WhatsApp account for phone %s", e.Phone)
}

// SendTimeoutError means the chat never reached a decidable state within
// the step budget. The message may or may not have gone out.
type SendTimeoutError struct {
	Phone string
	Step  string
}

func (e *SendTimeoutError) Error() string {
	return fmt.Sprintf("timed out at %s for phone %s", e.Step, e.Phone)
}

// DeliveryError wraps a mid-flow element failure: the chat opened but a
// later step could not find its control. Likely a selector drift.
type DeliveryError struct {
	Phone string
	Step  string
	Err   error
}

func (e *DeliveryError) Error() string {
	return fmt.Sprintf("delivery failed at %s for phone %s: %v", e.Step, e.Phone, e.Err)
}

func (e *DeliveryError) Unwrap() error { return e.Err }
