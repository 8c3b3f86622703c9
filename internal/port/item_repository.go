package port

import (
	"context"

	"github.com/rl1809/item-catalog/internal/core/domain"
)

type WriteStatus int

const (
	WriteOK WriteStatus = iota
	WriteVersionConflict
	WriteDuplicate
	WriteFailed
)

func (s WriteStatus) String() string {
	switch s {
	case WriteOK:
		return "ok"
	case WriteVersionConflict:
		return "version_conflict"
	case WriteDuplicate:
		return "duplicate"
	default:
		return "failed"
	}
}

// WriteResult is the outcome of a persistence write. Item is set only when
// Status is WriteOK; Err carries the reason otherwise.
type WriteResult struct {
	Status WriteStatus
	Item   domain.Item
	Err    error
}

func WriteSucceeded(item domain.Item) WriteResult {
	return WriteResult{Status: WriteOK, Item: item}
}

func WriteRejected(status WriteStatus, err error) WriteResult {
	return WriteResult{Status: status, Err: err}
}

type ItemRepository interface {
	// CreateItem inserts a new item and assigns its ID
	CreateItem(ctx context.Context, item domain.Item) WriteResult

	// GetItem returns nil, nil when no item has the given ID
	GetItem(ctx context.Context, id int64) (*domain.Item, error)

	// ListItemsByOwner returns every item owned by ownerID
	ListItemsByOwner(ctx context.Context, ownerID string) ([]domain.Item, error)

	// ListItemsByIDs returns the items whose ID is in ids, regardless of owner
	ListItemsByIDs(ctx context.Context, ids []int64) ([]domain.Item, error)

	// UpdateItem writes item only if the stored version still equals item.Version,
	// advancing it by one
	UpdateItem(ctx context.Context, item domain.Item) WriteResult
}
