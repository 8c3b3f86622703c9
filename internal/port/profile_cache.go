package port

import (
	"context"
	"time"

	"github.com/rl1809/item-catalog/internal/core/domain"
)

// ProfileCache is a cache-aside store; it never fetches on a miss.
type ProfileCache interface {
	// Get returns ok=false for absent or expired keys
	Get(ctx context.Context, subjectID string) (domain.Profile, bool, error)

	Set(ctx context.Context, subjectID string, profile domain.Profile, ttl time.Duration) error
}
