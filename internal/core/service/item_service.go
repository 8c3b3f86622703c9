package service

import (
	"context"
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/rl1809/item-catalog/internal/core/domain"
	"github.com/rl1809/item-catalog/internal/core/identity"
	"github.com/rl1809/item-catalog/internal/observability"
	"github.com/rl1809/item-catalog/internal/port"
)

// ItemService applies the catalog's business rules on top of the item store.
// The caller is always read from the identity bound to the request context.
type ItemService struct {
	repo     port.ItemRepository
	validate *validator.Validate
	logger   *zap.Logger
	metrics  *observability.Metrics
	now      func() time.Time
}

func NewItemService(repo port.ItemRepository, logger *zap.Logger, metrics *observability.Metrics) *ItemService {
	return &ItemService{
		repo:     repo,
		validate: validator.New(),
		logger:   logger,
		metrics:  metrics,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// Create persists a new item owned by the calling merchant.
func (s *ItemService) Create(ctx context.Context, fields domain.ItemFields) (domain.Item, error) {
	caller, _ := identity.FromContext(ctx)
	if !caller.IsMerchant() {
		return domain.Item{}, fmt.Errorf("%w: user is not a merchant, cannot add new item", domain.ErrUnauthorized)
	}
	if caller.SubjectID == "" {
		return domain.Item{}, domain.ErrInvalidIdentity
	}
	if err := s.validate.Struct(fields); err != nil {
		return domain.Item{}, fmt.Errorf("%w: %v", domain.ErrValidation, err)
	}

	item := domain.NewItem(fields, caller.SubjectID, s.now())

	var reason error
	for attempt := 1; attempt <= domain.MaxWriteAttempts; attempt++ {
		res := s.repo.CreateItem(ctx, item)

		switch res.Status {
		case port.WriteOK:
			s.logger.Info("New item added",
				zap.Int64("item_id", res.Item.ID),
				zap.String("owner_id", res.Item.OwnerID),
				zap.String("name", res.Item.Name),
			)
			return res.Item, nil
		case port.WriteDuplicate, port.WriteVersionConflict:
			reason = res.Err
			s.metrics.WriteConflict("create", res.Status.String())
			s.logger.Info("Conflict adding item",
				zap.Int("attempt", attempt),
				zap.String("name", item.Name),
				zap.Error(res.Err),
			)
		default:
			s.logger.Error("Error adding new item", zap.String("name", item.Name), zap.Error(res.Err))
			return domain.Item{}, fmt.Errorf("%w: %w", domain.ErrStorage, res.Err)
		}
	}

	s.metrics.RetryExhausted("create")
	s.logger.Error("Failed to add item after retries", zap.String("name", item.Name), zap.Error(reason))
	return domain.Item{}, fmt.Errorf("%w: %w", domain.ErrConflictRetriesExhausted, reason)
}

// Retrieve returns the caller's own items when ids is nil, otherwise every
// item whose id is listed, whoever owns it.
func (s *ItemService) Retrieve(ctx context.Context, ids []int64) ([]domain.Item, error) {
	var (
		items []domain.Item
		err   error
	)

	if ids == nil {
		caller, ok := identity.FromContext(ctx)
		if !ok || caller.SubjectID == "" {
			return nil, domain.ErrInvalidIdentity
		}
		items, err = s.repo.ListItemsByOwner(ctx, caller.SubjectID)
	} else {
		items, err = s.repo.ListItemsByIDs(ctx, ids)
	}

	if err != nil {
		s.logger.Error("Error fetching items", zap.Int64s("item_ids", ids), zap.Error(err))
		return nil, fmt.Errorf("%w: %w", domain.ErrStorage, err)
	}
	if items == nil {
		items = []domain.Item{}
	}
	return items, nil
}

// Update applies patch to an item owned by the caller. A version conflict
// reloads the item and reapplies the patch, up to MaxWriteAttempts in total.
func (s *ItemService) Update(ctx context.Context, itemID int64, patch domain.ItemPatch) (domain.Item, error) {
	caller, ok := identity.FromContext(ctx)
	if !ok || caller.SubjectID == "" {
		return domain.Item{}, domain.ErrInvalidIdentity
	}
	if err := s.validate.Struct(patch); err != nil {
		return domain.Item{}, fmt.Errorf("%w: %v", domain.ErrValidation, err)
	}

	var reason error
	for attempt := 1; attempt <= domain.MaxWriteAttempts; attempt++ {
		current, err := s.load(ctx, itemID, caller)
		if err != nil {
			return domain.Item{}, err
		}
		if patch.IsEmpty() {
			return current, nil
		}

		next := current
		patch.Apply(&next)
		res := s.repo.UpdateItem(ctx, next)

		switch res.Status {
		case port.WriteOK:
			s.logger.Info("Item updated",
				zap.Int64("item_id", itemID),
				zap.Int("version", res.Item.Version),
				zap.Int("attempt", attempt),
			)
			return res.Item, nil
		case port.WriteVersionConflict:
			reason = res.Err
			s.metrics.WriteConflict("update", res.Status.String())
			s.logger.Info("Version conflict updating item",
				zap.Int64("item_id", itemID),
				zap.Int("read_version", current.Version),
				zap.Int("attempt", attempt),
			)
		case port.WriteDuplicate:
			s.logger.Info("Duplicate name updating item", zap.Int64("item_id", itemID), zap.Error(res.Err))
			return domain.Item{}, res.Err
		default:
			s.logger.Error("Error updating item", zap.Int64("item_id", itemID), zap.Error(res.Err))
			return domain.Item{}, fmt.Errorf("%w: %w", domain.ErrStorage, res.Err)
		}
	}

	s.metrics.RetryExhausted("update")
	s.logger.Error("Failed to update item after retries", zap.Int64("item_id", itemID), zap.Error(reason))
	return domain.Item{}, fmt.Errorf("%w: %w", domain.ErrConflictRetriesExhausted, reason)
}

func (s *ItemService) load(ctx context.Context, itemID int64, caller domain.Identity) (domain.Item, error) {
	item, err := s.repo.GetItem(ctx, itemID)
	if err != nil {
		s.logger.Error("Error loading item", zap.Int64("item_id", itemID), zap.Error(err))
		return domain.Item{}, fmt.Errorf("%w: %w", domain.ErrStorage, err)
	}
	if item == nil {
		return domain.Item{}, fmt.Errorf("%w: %d", domain.ErrNotFound, itemID)
	}
	if item.OwnerID != caller.SubjectID {
		return domain.Item{}, fmt.Errorf("%w: item %d belongs to another user", domain.ErrUnauthorized, itemID)
	}
	return *item, nil
}
