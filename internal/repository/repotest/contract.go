// Package repotest holds the behavioural tests every UserRepository
// implementation has to pass.
package repotest

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"users-api/internal/domain"
	"users-api/internal/repository"
)

// Factory returns a fresh, initialised and empty repository.
type Factory func(t *testing.T) repository.UserRepository

// RunUserRepositoryTests runs the shared suite against repositories built by newRepo.
func RunUserRepositoryTests(t *testing.T, newRepo Factory) {
	t.Run("IDsStrictlyIncrease", func(t *testing.T) { testIDsStrictlyIncrease(t, newRepo(t)) })
	t.Run("CreateThenFindOne", func(t *testing.T) { testCreateThenFindOne(t, newRepo(t)) })
	t.Run("CreateDropsProtectedFields", func(t *testing.T) { testCreateDropsProtectedFields(t, newRepo(t)) })
	t.Run("UpdateOverlaysPatch", func(t *testing.T) { testUpdateOverlaysPatch(t, newRepo(t)) })
	t.Run("UpdateKeepsPosition", func(t *testing.T) { testUpdateKeepsPosition(t, newRepo(t)) })
	t.Run("UpdateMissing", func(t *testing.T) { testUpdateMissing(t, newRepo(t)) })
	t.Run("RemoveThenFindOne", func(t *testing.T) { testRemoveThenFindOne(t, newRepo(t)) })
	t.Run("FindByEmail", func(t *testing.T) { testFindByEmail(t, newRepo(t)) })
	t.Run("ClearResetsCounter", func(t *testing.T) { testClearResetsCounter(t, newRepo(t)) })
	t.Run("ReturnedUsersAreCopies", func(t *testing.T) { testReturnedUsersAreCopies(t, newRepo(t)) })
	t.Run("Scenario", func(t *testing.T) { testScenario(t, newRepo(t)) })
	t.Run("ConcurrentCreates", func(t *testing.T) { testConcurrentCreates(t, newRepo(t)) })
}

func mustCreate(t *testing.T, repo repository.UserRepository, attrs domain.Attributes) domain.User {
	t.Helper()
	user, err := repo.Create(context.Background(), attrs)
	require.NoError(t, err)
	return user
}

func testIDsStrictlyIncrease(t *testing.T, repo repository.UserRepository) {
	var last int64
	for i := 0; i < 10; i++ {
		user := mustCreate(t, repo, domain.Attributes{"name": "user"})
		assert.Greater(t, user.ID, last)
		last = user.ID
	}
	assert.Equal(t, int64(10), last)
}

func testCreateThenFindOne(t *testing.T, repo repository.UserRepository) {
	ctx := context.Background()
	created := mustCreate(t, repo, domain.Attributes{"name": "A", "email": "a@x.com"})
	assert.Equal(t, int64(1), created.ID)
	assert.True(t, created.CreatedAt.Equal(created.UpdatedAt))

	got, err := repo.FindOne(ctx, created.ID)
	require.NoError(t, err)
	assert.Equal(t, created.ID, got.ID)
	assert.Equal(t, created.Attributes, got.Attributes)
	assert.True(t, got.CreatedAt.Equal(created.CreatedAt))
	assert.True(t, got.UpdatedAt.Equal(got.CreatedAt))
}

func testCreateDropsProtectedFields(t *testing.T, repo repository.UserRepository) {
	created := mustCreate(t, repo, domain.Attributes{"id": "99", "createdAt": "yesterday", "name": "A"})
	assert.Equal(t, int64(1), created.ID)
	assert.Equal(t, domain.Attributes{"name": "A"}, created.Attributes)
}

func testUpdateOverlaysPatch(t *testing.T, repo repository.UserRepository) {
	ctx := context.Background()
	created := mustCreate(t, repo, domain.Attributes{"name": "A", "email": "a@x.com"})

	updated, err := repo.Update(ctx, created.ID, domain.Attributes{
		"name":      "A2",
		"id":        "42",
		"createdAt": "1970-01-01T00:00:00Z",
	})
	require.NoError(t, err)
	assert.Equal(t, created.ID, updated.ID)
	assert.Equal(t, domain.Attributes{"name": "A2", "email": "a@x.com"}, updated.Attributes)
	assert.True(t, updated.CreatedAt.Equal(created.CreatedAt))
	assert.True(t, updated.UpdatedAt.After(created.UpdatedAt))

	again, err := repo.Update(ctx, created.ID, domain.Attributes{"name": "A3"})
	require.NoError(t, err)
	assert.True(t, again.UpdatedAt.After(updated.UpdatedAt))

	got, err := repo.FindOne(ctx, created.ID)
	require.NoError(t, err)
	assert.Equal(t, "A3", got.Attributes["name"])
	assert.True(t, got.UpdatedAt.Equal(again.UpdatedAt))
	assert.False(t, got.UpdatedAt.Before(got.CreatedAt))
}

func testUpdateKeepsPosition(t *testing.T, repo repository.UserRepository) {
	ctx := context.Background()
	first := mustCreate(t, repo, domain.Attributes{"name": "first"})
	mustCreate(t, repo, domain.Attributes{"name": "second"})
	mustCreate(t, repo, domain.Attributes{"name": "third"})

	_, err := repo.Update(ctx, first.ID, domain.Attributes{"name": "first-updated"})
	require.NoError(t, err)

	all, err := repo.FindAll(ctx)
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, "first-updated", all[0].Attributes["name"])
	assert.Equal(t, "second", all[1].Attributes["name"])
	assert.Equal(t, "third", all[2].Attributes["name"])
}

func testUpdateMissing(t *testing.T, repo repository.UserRepository) {
	_, err := repo.Update(context.Background(), 7, domain.Attributes{"name": "x"})
	require.ErrorIs(t, err, domain.ErrUserNotFound)

	var nf *domain.NotFoundError
	require.ErrorAs(t, err, &nf)
	assert.Equal(t, int64(7), nf.ID)
}

func testRemoveThenFindOne(t *testing.T, repo repository.UserRepository) {
	ctx := context.Background()
	created := mustCreate(t, repo, domain.Attributes{"name": "A"})

	require.NoError(t, repo.Remove(ctx, created.ID))

	_, err := repo.FindOne(ctx, created.ID)
	assert.ErrorIs(t, err, domain.ErrUserNotFound)
	assert.ErrorIs(t, repo.Remove(ctx, created.ID), domain.ErrUserNotFound)
	assert.ErrorIs(t, repo.Remove(ctx, 1000), domain.ErrUserNotFound)

	count, err := repo.Count(ctx)
	require.NoError(t, err)
	assert.Zero(t, count)
}

func testFindByEmail(t *testing.T, repo repository.UserRepository) {
	ctx := context.Background()
	mustCreate(t, repo, domain.Attributes{"name": "A", "email": "a@x.com"})
	second := mustCreate(t, repo, domain.Attributes{"name": "B", "email": "b@x.com"})
	mustCreate(t, repo, domain.Attributes{"name": "B-dup", "email": "b@x.com"})

	got, ok, err := repo.FindByEmail(ctx, "b@x.com")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, second.ID, got.ID)

	_, ok, err = repo.FindByEmail(ctx, "nobody@x.com")
	require.NoError(t, err)
	assert.False(t, ok)
}

func testClearResetsCounter(t *testing.T, repo repository.UserRepository) {
	ctx := context.Background()
	mustCreate(t, repo, domain.Attributes{"name": "A"})
	mustCreate(t, repo, domain.Attributes{"name": "B"})

	require.NoError(t, repo.Clear(ctx))

	count, err := repo.Count(ctx)
	require.NoError(t, err)
	assert.Zero(t, count)

	next := mustCreate(t, repo, domain.Attributes{"name": "C"})
	assert.Equal(t, int64(1), next.ID)
}

func testReturnedUsersAreCopies(t *testing.T, repo repository.UserRepository) {
	ctx := context.Background()
	created := mustCreate(t, repo, domain.Attributes{"name": "A"})
	created.Attributes["name"] = "mutated"

	got, err := repo.FindOne(ctx, created.ID)
	require.NoError(t, err)
	got.Attributes["name"] = "mutated again"

	all, err := repo.FindAll(ctx)
	require.NoError(t, err)
	require.Len(t, all, 1)
	assert.Equal(t, "A", all[0].Attributes["name"])
}

func testScenario(t *testing.T, repo repository.UserRepository) {
	ctx := context.Background()
	a := mustCreate(t, repo, domain.Attributes{"name": "A", "email": "a@x.com"})
	b := mustCreate(t, repo, domain.Attributes{"name": "B", "email": "b@x.com"})
	require.Equal(t, int64(1), a.ID)
	require.Equal(t, int64(2), b.ID)

	updated, err := repo.Update(ctx, 1, domain.Attributes{"name": "A2"})
	require.NoError(t, err)
	assert.Equal(t, int64(1), updated.ID)
	assert.Equal(t, "A2", updated.Attributes["name"])
	assert.Equal(t, "a@x.com", updated.Email())

	require.NoError(t, repo.Remove(ctx, 2))
	_, err = repo.FindOne(ctx, 2)
	require.ErrorIs(t, err, domain.ErrUserNotFound)

	all, err := repo.FindAll(ctx)
	require.NoError(t, err)
	require.Len(t, all, 1)
	assert.Equal(t, int64(1), all[0].ID)
	assert.Equal(t, "A2", all[0].Attributes["name"])
}

func testConcurrentCreates(t *testing.T, repo repository.UserRepository) {
	const workers = 8
	const perWorker = 25

	ids := make(chan int64, workers*perWorker)
	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < perWorker; i++ {
				user, err := repo.Create(context.Background(), domain.Attributes{"name": "c"})
				if err != nil {
					t.Errorf("create: %v", err)
					return
				}
				ids <- user.ID
			}
		}()
	}
	wg.Wait()
	close(ids)

	seen := make(map[int64]struct{}, workers*perWorker)
	for id := range ids {
		_, dup := seen[id]
		assert.False(t, dup, "duplicate id %d", id)
		seen[id] = struct{}{}
	}
	assert.Len(t, seen, workers*perWorker)

	count, err := repo.Count(context.Background())
	require.NoError(t, err)
	assert.Equal(t, workers*perWorker, count)
}
