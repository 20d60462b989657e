package errors

import (
	"errors"
	"fmt"
)

var (
	ErrInvalid         = errors.New("invalid")
	ErrNotFound        = errors.New("not found")
	ErrUnauthorized    = errors.New("unauthorized")
	ErrForbidden       = errors.New("forbidden")
	ErrConflict        = errors.New("conflict")
	ErrTooMany         = errors.New("too many requests")
	ErrInternal        = errors.New("internal")
	ErrExternalService = errors.New("external service failure")
	ErrProcessing      = errors.New("processing failure")
	ErrGeneration      = errors.New("generation failure")
)

// ErrValidation is the name used by the ingestion and query layers for bad input.
var ErrValidation = ErrInvalid

func Invalid(format string, args ...interface{}) error {
	return fmt.Errorf("%w: %s", ErrInvalid, fmt.Sprintf(format, args...))
}

func External(op string, err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%w: %s: %w", ErrExternalService, op, err)
}

func Processing(op string, err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%w: %s: %w", ErrProcessing, op, err)
}

func Generation(err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%w: %w", ErrGeneration, err)
}

func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

func IsConflict(err error) bool {
	return errors.Is(err, ErrConflict)
}

func IsInvalid(err error) bool {
	return errors.Is(err, ErrInvalid)
}
