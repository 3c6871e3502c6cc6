package services

import (
	"errors"

	"github.com/villagevault/villagevault/server/store"
)

// ValidationError is returned for malformed or out of range input. Message is
// safe to show to the client.
type ValidationError struct {
	Message string
}

func (e *ValidationError) Error() string {
	return e.Message
}

type UnauthorizedError struct {
	Message string
}

func (e *UnauthorizedError) Error() string {
	return e.Message
}

type ForbiddenError struct {
	Message string
}

func (e *ForbiddenError) Error() string {
	return e.Message
}

// NotFoundError wraps store.ErrNotFound with a client facing message.
type NotFoundError struct {
	Message string
}

func (e *NotFoundError) Error() string {
	return e.Message
}

func (e *NotFoundError) Unwrap() error {
	return store.ErrNotFound
}

func invalid(message string) error {
	return &ValidationError{Message: message}
}

func forbidden(message string) error {
	return &ForbiddenError{Message: message}
}

func unauthorized(message string) error {
	return &UnauthorizedError{Message: message}
}

func notFound(resource string) error {
	return &NotFoundError{Message: resource + " not found"}
}

// notFoundOr turns store.ErrNotFound into a NotFoundError for 'resource' and
// leaves every other error untouched.
func notFoundOr(err error, resource string) error {
	if errors.Is(err, store.ErrNotFound) {
		return notFound(resource)
	}
	return err
}
