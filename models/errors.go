package models

import (
	"errors"
	"fmt"
)

// ErrorKind classifies failures returned by the service layer.
type ErrorKind string

const (
	ErrorKindValidation       ErrorKind = "validation_error"
	ErrorKindNotFound         ErrorKind = "not_found"
	ErrorKindStorage          ErrorKind = "storage_error"
	ErrorKindUnsupportedMedia ErrorKind = "unsupported_media"
	ErrorKindPayloadTooLarge  ErrorKind = "payload_too_large"
)

type AppError struct {
	Kind    ErrorKind
	Message string
	Err     error
}

func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("[%s] %s", e.Kind, e.Message)
}

func (e *AppError) Unwrap() error {
	return e.Err
}

func NewValidationError(format string, args ...any) *AppError {
	return &AppError{Kind: ErrorKindValidation, Message: fmt.Sprintf(format, args...)}
}

func NewNotFoundError(format string, args ...any) *AppError {
	return &AppError{Kind: ErrorKindNotFound, Message: fmt.Sprintf(format, args...)}
}

func NewStorageError(message string, err error) *AppError {
	return &AppError{Kind: ErrorKindStorage, Message: message, Err: err}
}

func NewUnsupportedMediaError(format string, args ...any) *AppError {
	return &AppError{Kind: ErrorKindUnsupportedMedia, Message: fmt.Sprintf(format, args...)}
}

func NewPayloadTooLargeError(format string, args ...any) *AppError {
	return &AppError{Kind: ErrorKindPayloadTooLarge, Message: fmt.Sprintf(format, args...)}
}

// KindOf returns the kind of err, or ErrorKindStorage for anything untyped.
func KindOf(err error) ErrorKind {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Kind
	}
	return ErrorKindStorage
}

func IsKind(err error, kind ErrorKind) bool {
	var appErr *AppError
	return errors.As(err, &appErr) && appErr.Kind == kind
}
