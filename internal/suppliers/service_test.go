package suppliers

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
)

type fakeRepo struct {
	items  map[int64]Supplier
	nextID int64
}

func newFakeRepo() *fakeRepo {
	return &fakeRepo{items: map[int64]Supplier{}, nextID: 1}
}

func (f *fakeRepo) List(_ context.Context, filters ListFilters) ([]Supplier, int, error) {
	var list []Supplier
	for _, s := range f.items {
		if filters.OnlyActive && !s.IsActive {
			continue
		}
		list = append(list, s)
	}
	return list, len(list), nil
}

func (f *fakeRepo) Get(_ context.Context, id int64) (Supplier, error) {
	s, ok := f.items[id]
	if !ok {
		return Supplier{}, ErrNotFound
	}
	return s, nil
}

func (f *fakeRepo) Create(_ context.Context, s Supplier) (Supplier, error) {
	s.ID = f.nextID
	f.nextID++
	f.items[s.ID] = s
	return s, nil
}

func (f *fakeRepo) Update(_ context.Context, id int64, s Supplier) error {
	if _, ok := f.items[id]; !ok {
		return ErrNotFound
	}
	s.ID = id
	f.items[id] = s
	return nil
}

func (f *fakeRepo) Deactivate(_ context.Context, id int64) error {
	s, ok := f.items[id]
	if !ok {
		return ErrNotFound
	}
	s.IsActive = false
	f.items[id] = s
	return nil
}

func TestServiceCreateValidation(t *testing.T) {
	svc := NewService(newFakeRepo())

	_, err := svc.Create(context.Background(), Supplier{Name: "  "})
	require.ErrorIs(t, err, ErrValidation)

	_, err = svc.Create(context.Background(), Supplier{Name: "Acme", Rating: 9})
	require.ErrorIs(t, err, ErrValidation)

	created, err := svc.Create(context.Background(), Supplier{Name: "Acme", Rating: 4})
	require.NoError(t, err)
	require.True(t, created.IsActive)
	require.NotZero(t, created.ID)
}

func TestServiceDeactivateKeepsRow(t *testing.T) {
	repo := newFakeRepo()
	svc := NewService(repo)

	created, err := svc.Create(context.Background(), Supplier{Name: "Acme"})
	require.NoError(t, err)

	require.NoError(t, svc.Deactivate(context.Background(), created.ID))

	got, err := svc.Get(context.Background(), created.ID)
	require.NoError(t, err)
	require.False(t, got.IsActive)

	active, _, err := svc.List(context.Background(), ListFilters{OnlyActive: true})
	require.NoError(t, err)
	require.Empty(t, active)
}

func TestServiceGetUnknown(t *testing.T) {
	svc := NewService(newFakeRepo())

	_, err := svc.Get(context.Background(), 99)
	require.ErrorIs(t, err, ErrNotFound)

	_, err = svc.Get(context.Background(), 0)
	require.ErrorIs(t, err, ErrValidation)
}
