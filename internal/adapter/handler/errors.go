package handler

import (
	"errors"
	"net/http"

	"google.golang.org/grpc/codes"

	"github.com/rl1809/item-catalog/internal/core/domain"
)

// authFailure maps a resolver error to the HTTP status and message sent to
// the client.
func authFailure(err error) (int, string) {
	switch {
	case errors.Is(err, domain.ErrMissingOrMalformed):
		return http.StatusUnauthorized, "Authorization token missing or malformed"
	case errors.Is(err, domain.ErrInvalidToken):
		return http.StatusUnauthorized, "Invalid token"
	case errors.Is(err, domain.ErrMalformedClaims):
		return http.StatusBadRequest, "Subject not found in token"
	case errors.Is(err, domain.ErrUpstreamUnavailable):
		return http.StatusBadGateway, "Failed to fetch user information"
	default:
		return http.StatusInternalServerError, "Server error"
	}
}

func authCode(err error) codes.Code {
	switch {
	case errors.Is(err, domain.ErrMissingOrMalformed), errors.Is(err, domain.ErrInvalidToken):
		return codes.Unauthenticated
	case errors.Is(err, domain.ErrMalformedClaims):
		return codes.InvalidArgument
	case errors.Is(err, domain.ErrUpstreamUnavailable):
		return codes.Unavailable
	default:
		return codes.Internal
	}
}

// reason returns a client-safe description of a service error. Storage and
// unexpected errors never leak their detail.
func reason(err error) string {
	switch {
	case errors.Is(err, domain.ErrValidation):
		return err.Error()
	case errors.Is(err, domain.ErrConflictRetriesExhausted):
		switch {
		case errors.Is(err, domain.ErrDuplicateName):
			return "conflict retries exhausted: item name already exists"
		case errors.Is(err, domain.ErrVersionConflict):
			return "conflict retries exhausted: item was modified concurrently"
		}
		return "conflict retries exhausted"
	case errors.Is(err, domain.ErrDuplicateName):
		return "item name already exists"
	case errors.Is(err, domain.ErrUnauthorized):
		return "unauthorized"
	case errors.Is(err, domain.ErrInvalidIdentity):
		return "invalid identity"
	case errors.Is(err, domain.ErrNotFound):
		return "item not found"
	case errors.Is(err, domain.ErrStorage):
		return "storage failure"
	default:
		return "internal error"
	}
}

func serviceCode(err error) codes.Code {
	switch {
	case errors.Is(err, domain.ErrValidation):
		return codes.InvalidArgument
	case errors.Is(err, domain.ErrConflictRetriesExhausted):
		return codes.Aborted
	case errors.Is(err, domain.ErrDuplicateName):
		return codes.AlreadyExists
	case errors.Is(err, domain.ErrUnauthorized):
		return codes.PermissionDenied
	case errors.Is(err, domain.ErrInvalidIdentity):
		return codes.Unauthenticated
	case errors.Is(err, domain.ErrNotFound):
		return codes.NotFound
	default:
		return codes.Internal
	}
}
