// Package apperrors defines the error taxonomy shared by repositories,
// services and HTTP handlers.
package apperrors

import "errors"

var (
	// ErrNotFound is returned for a missing user, thread or notification.
	ErrNotFound = errors.New("not found")
	// ErrForbidden is returned when an actor mutates state it does not own.
	ErrForbidden = errors.New("forbidden")
	// ErrInvalidArgument is returned for requests that can never succeed,
	// such as following yourself.
	ErrInvalidArgument = errors.New("invalid argument")
)
