package port

import (
	"context"

	"github.com/rl1809/item-catalog/internal/core/domain"
)

// ProfileClient fetches a user profile from the remote profile service.
type ProfileClient interface {
	FetchProfile(ctx context.Context, subjectID string) (domain.Profile, error)
}
