package service

import (
	"errors"
	"fmt"

	"phreakmail-web/internal/repository"
)

var (
	// ErrNotFound is returned when the requested record does not exist.
	ErrNotFound = errors.New("not found")
	// ErrConflict is returned when a record with the same unique key exists.
	ErrConflict = errors.New("conflict")
	// ErrInvalidInput wraps validation failures; the message is safe to show.
	ErrInvalidInput = errors.New("invalid input")
	// ErrForbidden is returned when the caller may not touch the record.
	ErrForbidden = errors.New("forbidden")
)

func invalidf(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalidInput, fmt.Sprintf(format, args...))
}

// translate maps repository sentinels onto service sentinels.
func translate(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, repository.ErrNotFound):
		return fmt.Errorf("%w: %v", ErrNotFound, err)
	case errors.Is(err, repository.ErrConflict):
		return fmt.Errorf("%w: %v", ErrConflict, err)
	case errors.Is(err, repository.ErrReference):
		return fmt.Errorf("%w: %v", ErrNotFound, err)
	}
	return err
}
