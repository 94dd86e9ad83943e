package store

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type widget struct {
	ID   int64
	Name string
}

func newWidgets() *Memory[widget] {
	return NewMemory(func(w *widget, id int64) { w.ID = id })
}

func TestMemoryLifecycle(t *testing.T) {
	ctx := context.Background()
	repo := newWidgets()

	a, err := repo.Save(ctx, 0, widget{Name: "a"})
	require.NoError(t, err)
	assert.Equal(t, int64(1), a.ID)

	b, err := repo.Save(ctx, 0, widget{Name: "b"})
	require.NoError(t, err)
	assert.Equal(t, int64(2), b.ID)

	b.Name = "b2"
	_, err = repo.Save(ctx, b.ID, b)
	require.NoError(t, err)

	got, err := repo.Find(ctx, 2)
	require.NoError(t, err)
	assert.Equal(t, "b2", got.Name)

	all, err := repo.FindAll(ctx)
	require.NoError(t, err)
	assert.Equal(t, []widget{{1, "a"}, {2, "b2"}}, all)

	only, err := repo.FindBy(ctx, func(w widget) bool { return w.Name == "a" })
	require.NoError(t, err)
	assert.Equal(t, []widget{{1, "a"}}, only)

	require.NoError(t, repo.Delete(ctx, 1))
	_, err = repo.Find(ctx, 1)
	assert.ErrorIs(t, err, ErrNotFound)
	assert.ErrorIs(t, repo.Delete(ctx, 1), ErrNotFound)

	n, err := repo.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestMemoryExplicitIDAdvancesSequence(t *testing.T) {
	ctx := context.Background()
	repo := newWidgets()

	_, err := repo.Save(ctx, 10, widget{Name: "seeded"})
	require.NoError(t, err)
	next, err := repo.Save(ctx, 0, widget{Name: "next"})
	require.NoError(t, err)
	assert.Equal(t, int64(11), next.ID)
}

func TestMemoryHonoursCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	repo := newWidgets()

	_, err := repo.Save(ctx, 0, widget{})
	assert.ErrorIs(t, err, context.Canceled)
	_, err = repo.FindAll(ctx)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestMemoryConcurrentSaves(t *testing.T) {
	ctx := context.Background()
	repo := newWidgets()

	var wg sync.WaitGroup
	for range 100 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := repo.Save(ctx, 0, widget{})
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	n, err := repo.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 100, n)
}
