package session

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryRepository(t *testing.T) {
	repo := NewMemoryRepository()
	ctx := context.Background()

	s := New(testPrompts(), defaultOptions(), nil, nil, quietLogger(), WithID("ses-1"))
	require.NoError(t, repo.Save(ctx, s))

	got, err := repo.FindByID(ctx, "ses-1")
	require.NoError(t, err)
	assert.Same(t, s, got)

	all, err := repo.List(ctx)
	require.NoError(t, err)
	assert.Len(t, all, 1)

	require.NoError(t, repo.Delete(ctx, "ses-1"))
	_, err = repo.FindByID(ctx, "ses-1")
	assert.ErrorIs(t, err, ErrNotFound)
	assert.ErrorIs(t, repo.Delete(ctx, "ses-1"), ErrNotFound)
}

func TestMemoryRepository_ListInCreationOrder(t *testing.T) {
	repo := NewMemoryRepository()
	ctx := context.Background()

	var want []string
	for range 20 {
		s := New(testPrompts(), defaultOptions(), nil, nil, quietLogger())
		require.NoError(t, repo.Save(ctx, s))
		want = append(want, s.ID)
	}

	all, err := repo.List(ctx)
	require.NoError(t, err)
	got := make([]string, 0, len(all))
	for _, s := range all {
		got = append(got, s.ID)
	}
	assert.Equal(t, want, got)
}
