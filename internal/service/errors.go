package service

import (
	"errors"

	"github.com/Eursukkul/tutor-booking/internal/gateway"
)

var (
	ErrUnauthenticated       = errors.New("unauthenticated")
	ErrForbidden             = errors.New("forbidden")
	ErrNotFound              = errors.New("not found")
	ErrInvalidState          = errors.New("invalid state")
	ErrInvalidTransition     = errors.New("invalid transition")
	ErrQuotaExceeded         = errors.New("daily quota exceeded")
	ErrInvalidInput          = errors.New("invalid input")
	ErrDowngradeNotSupported = errors.New("downgrade not supported")

	ErrSignatureInvalid    = gateway.ErrSignatureInvalid
	ErrUpstreamUnavailable = gateway.ErrUpstreamUnavailable
)
