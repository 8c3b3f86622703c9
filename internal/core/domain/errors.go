package domain

import (
	"errors"
	"fmt"
)

var (
	ErrAuth                = errors.New("authentication failed")
	ErrMissingOrMalformed  = fmt.Errorf("%w: authorization token missing or malformed", ErrAuth)
	ErrInvalidToken        = fmt.Errorf("%w: invalid token", ErrAuth)
	ErrMalformedClaims     = fmt.Errorf("%w: subject claim not found in token", ErrAuth)
	ErrUpstreamUnavailable = fmt.Errorf("%w: failed to fetch user information", ErrAuth)
)

var (
	ErrUnauthorized    = errors.New("unauthorized")
	ErrInvalidIdentity = errors.New("identity has no subject id")
	ErrNotFound        = errors.New("item not found")
	ErrValidation      = errors.New("validation failed")
	ErrStorage         = errors.New("storage failure")
)

var (
	ErrConflict                 = errors.New("write conflict")
	ErrVersionConflict          = fmt.Errorf("%w: version mismatch", ErrConflict)
	ErrDuplicateName            = fmt.Errorf("%w: item name already exists", ErrConflict)
	ErrConflictRetriesExhausted = fmt.Errorf("%w: retries exhausted", ErrConflict)
)
