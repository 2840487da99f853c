package domain

import (
	"errors"
	"fmt"
)

var (
	ErrInstrumentNotFound   = errors.New("instrument not found")
	ErrConversationNotFound = errors.New("conversation not found")
)

// ValidationError reports input with a bad shape or out-of-range value.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

// NotFoundError reports an instrument name that did not resolve to a catalog entry.
type NotFoundError struct {
	Name string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("instrument %q not found", e.Name)
}

func (e *NotFoundError) Is(target error) bool {
	return target == ErrInstrumentNotFound
}

// DeviceRejectedError carries a non-success answer from a reachable device.
type DeviceRejectedError struct {
	StatusCode int
	Body       string
}

func (e *DeviceRejectedError) Error() string {
	return fmt.Sprintf("device rejected request (status %d): %s", e.StatusCode, e.Body)
}

func IsValidation(err error) bool {
	var v *ValidationError
	return errors.As(err, &v)
}
