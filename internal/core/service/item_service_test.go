package service

import (
	"context"
	"errors"
	"strconv"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/rl1809/item-catalog/internal/core/domain"
	"github.com/rl1809/item-catalog/internal/core/identity"
	"github.com/rl1809/item-catalog/internal/observability"
	"github.com/rl1809/item-catalog/internal/port"
)

// Mock ItemRepository with the same version-check semantics as the MySQL store
type mockItemRepo struct {
	mu     sync.Mutex
	items  map[int64]domain.Item
	nextID int64

	createErr   error
	listErr     error
	afterGet    func()
	beforeWrite func(call int)

	createCalls atomic.Int32
	updateCalls atomic.Int32
}

func newMockItemRepo() *mockItemRepo {
	return &mockItemRepo{items: make(map[int64]domain.Item), nextID: 1}
}

func (m *mockItemRepo) seed(item domain.Item) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.items[item.ID] = item
	if item.ID >= m.nextID {
		m.nextID = item.ID + 1
	}
}

func (m *mockItemRepo) get(id int64) domain.Item {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.items[id]
}

func (m *mockItemRepo) CreateItem(ctx context.Context, item domain.Item) port.WriteResult {
	m.createCalls.Add(1)
	if m.createErr != nil {
		return port.WriteRejected(port.WriteFailed, m.createErr)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	for _, existing := range m.items {
		if existing.Name == item.Name {
			return port.WriteRejected(port.WriteDuplicate, domain.ErrDuplicateName)
		}
	}
	item.ID = m.nextID
	m.nextID++
	m.items[item.ID] = item
	return port.WriteSucceeded(item)
}

func (m *mockItemRepo) GetItem(ctx context.Context, id int64) (*domain.Item, error) {
	m.mu.Lock()
	item, ok := m.items[id]
	m.mu.Unlock()

	// Runs after the read so a test can hold loaded copies back from writing.
	if m.afterGet != nil {
		m.afterGet()
	}
	if !ok {
		return nil, nil
	}
	return &item, nil
}

func (m *mockItemRepo) ListItemsByOwner(ctx context.Context, ownerID string) ([]domain.Item, error) {
	if m.listErr != nil {
		return nil, m.listErr
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	var out []domain.Item
	for _, item := range m.items {
		if item.OwnerID == ownerID {
			out = append(out, item)
		}
	}
	return out, nil
}

func (m *mockItemRepo) ListItemsByIDs(ctx context.Context, ids []int64) ([]domain.Item, error) {
	if m.listErr != nil {
		return nil, m.listErr
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	var out []domain.Item
	for _, id := range ids {
		if item, ok := m.items[id]; ok {
			out = append(out, item)
		}
	}
	return out, nil
}

func (m *mockItemRepo) UpdateItem(ctx context.Context, item domain.Item) port.WriteResult {
	call := int(m.updateCalls.Add(1))
	if m.beforeWrite != nil {
		m.beforeWrite(call)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	stored, ok := m.items[item.ID]
	if !ok || stored.Version != item.Version {
		return port.WriteRejected(port.WriteVersionConflict, domain.ErrVersionConflict)
	}
	for id, existing := range m.items {
		if id != item.ID && existing.Name == item.Name {
			return port.WriteRejected(port.WriteDuplicate, domain.ErrDuplicateName)
		}
	}
	item.Version++
	m.items[item.ID] = item
	return port.WriteSucceeded(item)
}

// bump simulates another writer committing between our read and our write.
func (m *mockItemRepo) bump(id int64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	item := m.items[id]
	item.Quantity += 100
	item.Version++
	m.items[id] = item
}

var (
	merchant      = domain.Identity{SubjectID: "42", Role: domain.RoleMerchant}
	otherMerchant = domain.Identity{SubjectID: "99", Role: domain.RoleMerchant}
	customer      = domain.Identity{SubjectID: "7", Role: domain.RoleCustomer}
)

func newTestService(repo port.ItemRepository) *ItemService {
	return NewItemService(repo, zap.NewNop(), observability.NewMetrics("test"))
}

func as(id domain.Identity) context.Context {
	ctx, _ := identity.Bind(context.Background(), id)
	return ctx
}

func widget() domain.ItemFields {
	return domain.ItemFields{Name: "Widget", Description: "A widget", Quantity: 5, Price: 2.5}
}

func ptr[T any](v T) *T { return &v }

func seedItem(repo *mockItemRepo, id int64, owner string) domain.Item {
	item := domain.NewItem(domain.ItemFields{
		Name:        "item-" + owner + "-" + strconv.FormatInt(id, 10),
		Description: "seeded",
		Quantity:    1,
		Price:       1,
	}, owner, time.Now())
	item.ID = id
	repo.seed(item)
	return item
}

func TestCreate_Success(t *testing.T) {
	repo := newMockItemRepo()
	svc := newTestService(repo)

	item, err := svc.Create(as(merchant), widget())
	require.NoError(t, err)

	want := domain.Item{
		ID:          1,
		Name:        "Widget",
		Description: "A widget",
		Quantity:    5,
		Price:       2.5,
		OwnerID:     "42",
		Version:     1,
	}
	if diff := cmp.Diff(want, item, cmpopts.IgnoreFields(domain.Item{}, "CreatedAt", "UpdatedAt")); diff != "" {
		t.Errorf("created item mismatch (-want +got):\n%s", diff)
	}
	assert.Equal(t, int32(1), repo.createCalls.Load())
}

func TestCreate_NonMerchant(t *testing.T) {
	repo := newMockItemRepo()
	svc := newTestService(repo)

	_, err := svc.Create(as(customer), widget())
	assert.ErrorIs(t, err, domain.ErrUnauthorized)
	assert.Zero(t, repo.createCalls.Load())
	assert.Empty(t, repo.items)
}

func TestCreate_NoIdentityBound(t *testing.T) {
	svc := newTestService(newMockItemRepo())

	_, err := svc.Create(context.Background(), widget())
	assert.ErrorIs(t, err, domain.ErrUnauthorized)
}

func TestCreate_MerchantWithoutSubject(t *testing.T) {
	svc := newTestService(newMockItemRepo())

	_, err := svc.Create(as(domain.Identity{Role: domain.RoleMerchant}), widget())
	assert.ErrorIs(t, err, domain.ErrInvalidIdentity)
}

func TestCreate_Validation(t *testing.T) {
	svc := newTestService(newMockItemRepo())

	long := make([]byte, 81)
	for i := range long {
		long[i] = 'x'
	}

	cases := map[string]domain.ItemFields{
		"missing name":        {Description: "d", Quantity: 1, Price: 1},
		"missing description": {Name: "n", Quantity: 1, Price: 1},
		"name too long":       {Name: string(long), Description: "d", Quantity: 1, Price: 1},
		"negative quantity":   {Name: "n", Description: "d", Quantity: -1, Price: 1},
		"negative price":      {Name: "n", Description: "d", Quantity: 1, Price: -0.5},
	}
	for name, fields := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := svc.Create(as(merchant), fields)
			assert.ErrorIs(t, err, domain.ErrValidation)
		})
	}
}

func TestCreate_DuplicateNameExhaustsRetries(t *testing.T) {
	repo := newMockItemRepo()
	svc := newTestService(repo)

	_, err := svc.Create(as(merchant), widget())
	require.NoError(t, err)

	_, err = svc.Create(as(otherMerchant), widget())
	assert.ErrorIs(t, err, domain.ErrConflictRetriesExhausted)
	assert.ErrorIs(t, err, domain.ErrDuplicateName, "underlying reason must be surfaced")
	assert.Equal(t, int32(1+domain.MaxWriteAttempts), repo.createCalls.Load())
}

func TestCreate_StorageErrorIsNotRetried(t *testing.T) {
	repo := newMockItemRepo()
	repo.createErr = errors.New("connection reset")
	svc := newTestService(repo)

	_, err := svc.Create(as(merchant), widget())
	assert.ErrorIs(t, err, domain.ErrStorage)
	assert.Equal(t, int32(1), repo.createCalls.Load())
}

func TestRetrieve_OwnedItems(t *testing.T) {
	repo := newMockItemRepo()
	seedItem(repo, 1, merchant.SubjectID)
	seedItem(repo, 2, otherMerchant.SubjectID)
	seedItem(repo, 3, merchant.SubjectID)
	svc := newTestService(repo)

	items, err := svc.Retrieve(as(merchant), nil)
	require.NoError(t, err)
	require.Len(t, items, 2)
	for _, item := range items {
		assert.Equal(t, merchant.SubjectID, item.OwnerID)
	}
}

func TestRetrieve_ExplicitIDsIgnoreOwnership(t *testing.T) {
	repo := newMockItemRepo()
	seedItem(repo, 7, merchant.SubjectID)
	seedItem(repo, 8, otherMerchant.SubjectID)
	svc := newTestService(repo)

	items, err := svc.Retrieve(as(merchant), []int64{7, 8})
	require.NoError(t, err)
	require.Len(t, items, 2)
	assert.Equal(t, int64(7), items[0].ID)
	assert.Equal(t, int64(8), items[1].ID)
	assert.Equal(t, otherMerchant.SubjectID, items[1].OwnerID)
}

func TestRetrieve_NoMatchesIsEmptyList(t *testing.T) {
	svc := newTestService(newMockItemRepo())

	items, err := svc.Retrieve(as(merchant), []int64{100})
	require.NoError(t, err)
	assert.NotNil(t, items)
	assert.Empty(t, items)

	items, err = svc.Retrieve(as(customer), nil)
	require.NoError(t, err)
	assert.NotNil(t, items)
	assert.Empty(t, items)
}

func TestRetrieve_StorageError(t *testing.T) {
	repo := newMockItemRepo()
	repo.listErr = errors.New("db down")
	svc := newTestService(repo)

	_, err := svc.Retrieve(as(merchant), []int64{1})
	assert.ErrorIs(t, err, domain.ErrStorage)
}

func TestUpdate_Success(t *testing.T) {
	repo := newMockItemRepo()
	orig := seedItem(repo, 1, merchant.SubjectID)
	svc := newTestService(repo)

	item, err := svc.Update(as(merchant), 1, domain.ItemPatch{Quantity: ptr(10), Price: ptr(3.75)})
	require.NoError(t, err)

	assert.Equal(t, 10, item.Quantity)
	assert.Equal(t, 3.75, item.Price)
	assert.Equal(t, orig.Name, item.Name)
	assert.Equal(t, orig.Version+1, item.Version)
	assert.Equal(t, merchant.SubjectID, item.OwnerID)
}

func TestUpdate_NotFound(t *testing.T) {
	svc := newTestService(newMockItemRepo())

	_, err := svc.Update(as(merchant), 404, domain.ItemPatch{Quantity: ptr(1)})
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestUpdate_NotOwner(t *testing.T) {
	repo := newMockItemRepo()
	orig := seedItem(repo, 1, merchant.SubjectID)
	svc := newTestService(repo)

	_, err := svc.Update(as(otherMerchant), 1, domain.ItemPatch{Quantity: ptr(0), Name: ptr("stolen")})
	assert.ErrorIs(t, err, domain.ErrUnauthorized)
	assert.Equal(t, orig, repo.get(1), "item must be unchanged")
	assert.Zero(t, repo.updateCalls.Load())
}

func TestUpdate_InvalidPatch(t *testing.T) {
	repo := newMockItemRepo()
	seedItem(repo, 1, merchant.SubjectID)
	svc := newTestService(repo)

	_, err := svc.Update(as(merchant), 1, domain.ItemPatch{Name: ptr("")})
	assert.ErrorIs(t, err, domain.ErrValidation)
}

func TestUpdate_NegativeAmountsRejected(t *testing.T) {
	repo := newMockItemRepo()
	orig := seedItem(repo, 1, merchant.SubjectID)
	svc := newTestService(repo)

	for _, patch := range []domain.ItemPatch{{Quantity: ptr(-1)}, {Price: ptr(-0.5)}} {
		_, err := svc.Update(as(merchant), 1, patch)
		assert.ErrorIs(t, err, domain.ErrValidation)
	}
	assert.Equal(t, orig, repo.get(1))
	assert.Zero(t, repo.updateCalls.Load())
}

func TestUpdate_EmptyPatchIsNoop(t *testing.T) {
	repo := newMockItemRepo()
	orig := seedItem(repo, 1, merchant.SubjectID)
	svc := newTestService(repo)

	item, err := svc.Update(as(merchant), 1, domain.ItemPatch{})
	require.NoError(t, err)
	assert.Equal(t, orig.Version, item.Version)
	assert.Zero(t, repo.updateCalls.Load())
}

func TestUpdate_RetriesOnceAfterConflict(t *testing.T) {
	repo := newMockItemRepo()
	orig := seedItem(repo, 1, merchant.SubjectID)
	repo.beforeWrite = func(call int) {
		if call == 1 {
			repo.bump(1)
		}
	}
	svc := newTestService(repo)

	item, err := svc.Update(as(merchant), 1, domain.ItemPatch{Name: ptr("Renamed")})
	require.NoError(t, err)

	assert.Equal(t, orig.Version+2, item.Version, "one win by the racer, one by the retrier")
	assert.Equal(t, "Renamed", item.Name)
	assert.Equal(t, orig.Quantity+100, item.Quantity, "racer's write must not be lost")
	assert.Equal(t, item, repo.get(1))
	assert.Equal(t, int32(2), repo.updateCalls.Load())
}

func TestUpdate_ConflictRetriesExhausted(t *testing.T) {
	repo := newMockItemRepo()
	seedItem(repo, 1, merchant.SubjectID)
	repo.beforeWrite = func(int) { repo.bump(1) }
	svc := newTestService(repo)

	_, err := svc.Update(as(merchant), 1, domain.ItemPatch{Quantity: ptr(1)})
	assert.ErrorIs(t, err, domain.ErrConflictRetriesExhausted)
	assert.ErrorIs(t, err, domain.ErrVersionConflict)
	assert.Equal(t, int32(domain.MaxWriteAttempts), repo.updateCalls.Load())
}

func TestUpdate_DuplicateNameIsNotRetried(t *testing.T) {
	repo := newMockItemRepo()
	taken := seedItem(repo, 1, merchant.SubjectID)
	seedItem(repo, 2, merchant.SubjectID)
	svc := newTestService(repo)

	_, err := svc.Update(as(merchant), 2, domain.ItemPatch{Name: ptr(taken.Name)})
	assert.ErrorIs(t, err, domain.ErrDuplicateName)
	assert.NotErrorIs(t, err, domain.ErrConflictRetriesExhausted)
	assert.Equal(t, int32(1), repo.updateCalls.Load())
}

func TestUpdate_ConcurrentWritersFromSameVersion(t *testing.T) {
	repo := newMockItemRepo()
	orig := seedItem(repo, 1, merchant.SubjectID)

	// Neither writer proceeds past its first read until both have loaded v1.
	var loads atomic.Int32
	bothLoaded := make(chan struct{})
	repo.afterGet = func() {
		switch loads.Add(1) {
		case 1:
			<-bothLoaded
		case 2:
			close(bothLoaded)
		}
	}
	svc := newTestService(repo)

	var wg sync.WaitGroup
	errs := make([]error, 2)
	patches := []domain.ItemPatch{{Quantity: ptr(11)}, {Price: ptr(9.5)}}
	for i := range patches {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = svc.Update(as(merchant), 1, patches[i])
		}(i)
	}
	wg.Wait()

	require.NoError(t, errs[0])
	require.NoError(t, errs[1])

	final := repo.get(1)
	assert.Equal(t, orig.Version+2, final.Version)
	assert.Equal(t, 11, final.Quantity, "no lost update")
	assert.Equal(t, 9.5, final.Price, "no lost update")
	assert.Equal(t, int32(3), repo.updateCalls.Load(), "exactly one writer conflicts once")
}
