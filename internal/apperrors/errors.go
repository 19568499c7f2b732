package apperrors

import (
	"errors"
	"fmt"
	"strings"
)

var (
	ErrAuthentication   = errors.New("authentication failed")
	ErrNotFound         = errors.New("not found")
	ErrPermission       = errors.New("permission denied")
	ErrInvalidInput     = errors.New("invalid input")
	ErrDelivery         = errors.New("delivery failed")
	ErrState            = errors.New("invalid connection state")
	ErrQueueFull        = errors.New("send queue full")
	ErrConnectionClosed = errors.New("connection closed")
	ErrPanic            = errors.New("panic recovered")
)

// DeliveryError describes one failed dispatch to one connection.
type DeliveryError struct {
	ConnectionID string
	UserID       string
	Err          error
}

func (e *DeliveryError) Error() string {
	return fmt.Sprintf("deliver to %s (conn %s): %v", e.UserID, e.ConnectionID, e.Err)
}

func (e *DeliveryError) Unwrap() error { return e.Err }

func (e *DeliveryError) Is(target error) bool { return target == ErrDelivery }

// NotFound wraps ErrNotFound with the missing entity.
func NotFound(what string) error {
	return fmt.Errorf("%s: %w", what, ErrNotFound)
}

func Permission(reason string) error {
	return fmt.Errorf("%s: %w", reason, ErrPermission)
}

func Invalid(reason string) error {
	return fmt.Errorf("%s: %w", reason, ErrInvalidInput)
}

var sentinels = []error{
	ErrAuthentication, ErrNotFound, ErrPermission, ErrInvalidInput,
	ErrDelivery, ErrState, ErrQueueFull, ErrConnectionClosed, ErrPanic,
}

// Reason strips a trailing sentinel so the message can be shown to a client.
func Reason(err error) string {
	if err == nil {
		return ""
	}
	msg := err.Error()
	for _, s := range sentinels {
		if errors.Is(err, s) {
			if trimmed := strings.TrimSuffix(msg, ": "+s.Error()); trimmed != "" {
				return trimmed
			}
		}
	}
	return msg
}
