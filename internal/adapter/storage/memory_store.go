package storage

import (
	"cmp"
	"context"
	"slices"
	"sync"

	"github.com/rl1809/item-catalog/internal/core/domain"
	"github.com/rl1809/item-catalog/internal/port"
)

// MemoryStore is an in-process item store with the same uniqueness and
// version-check rules as MySQLAdapter. Used for local runs and tests.
type MemoryStore struct {
	mu     sync.Mutex
	items  map[int64]domain.Item
	nextID int64
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{items: make(map[int64]domain.Item), nextID: 1}
}

func (s *MemoryStore) CreateItem(_ context.Context, item domain.Item) port.WriteResult {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.nameTaken(item.Name, 0) {
		return port.WriteRejected(port.WriteDuplicate, domain.ErrDuplicateName)
	}
	item.ID = s.nextID
	s.nextID++
	s.items[item.ID] = item
	return port.WriteSucceeded(item)
}

func (s *MemoryStore) GetItem(_ context.Context, id int64) (*domain.Item, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	item, ok := s.items[id]
	if !ok {
		return nil, nil
	}
	return &item, nil
}

func (s *MemoryStore) ListItemsByOwner(_ context.Context, ownerID string) ([]domain.Item, error) {
	return s.filter(func(item domain.Item) bool { return item.OwnerID == ownerID }), nil
}

func (s *MemoryStore) ListItemsByIDs(_ context.Context, ids []int64) ([]domain.Item, error) {
	return s.filter(func(item domain.Item) bool { return slices.Contains(ids, item.ID) }), nil
}

func (s *MemoryStore) UpdateItem(_ context.Context, item domain.Item) port.WriteResult {
	s.mu.Lock()
	defer s.mu.Unlock()

	stored, ok := s.items[item.ID]
	if !ok || stored.Version != item.Version {
		return port.WriteRejected(port.WriteVersionConflict, domain.ErrVersionConflict)
	}
	if s.nameTaken(item.Name, item.ID) {
		return port.WriteRejected(port.WriteDuplicate, domain.ErrDuplicateName)
	}

	item.OwnerID = stored.OwnerID
	item.CreatedAt = stored.CreatedAt
	item.Version++
	s.items[item.ID] = item
	return port.WriteSucceeded(item)
}

func (s *MemoryStore) nameTaken(name string, except int64) bool {
	for id, existing := range s.items {
		if id != except && existing.Name == name {
			return true
		}
	}
	return false
}

func (s *MemoryStore) filter(keep func(domain.Item) bool) []domain.Item {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := []domain.Item{}
	for _, item := range s.items {
		if keep(item) {
			out = append(out, item)
		}
	}
	slices.SortFunc(out, func(a, b domain.Item) int { return cmp.Compare(a.ID, b.ID) })
	return out
}
