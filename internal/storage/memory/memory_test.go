package memory

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Brownie44l1/skinlens/internal/domain/entity"
)

func TestUserRepository(t *testing.T) {
	ctx := context.Background()
	repo := NewUserRepository()

	u := &entity.User{Username: "alice", Role: entity.RolePatient}
	require.NoError(t, repo.Create(ctx, u))
	assert.Equal(t, int64(1), u.ID)
	assert.False(t, u.CreatedAt.IsZero())

	assert.ErrorIs(t, repo.Create(ctx, &entity.User{Username: "alice"}), entity.ErrConflict)

	got, err := repo.GetByUsername(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, u.ID, got.ID)

	got.Username = "mutated"
	again, err := repo.GetByID(ctx, u.ID)
	require.NoError(t, err)
	assert.Equal(t, "alice", again.Username)

	require.NoError(t, repo.SetRole(ctx, "alice", entity.RoleDoctor))
	again, _ = repo.GetByID(ctx, u.ID)
	assert.Equal(t, entity.RoleDoctor, again.Role)

	_, err = repo.GetByID(ctx, 99)
	assert.ErrorIs(t, err, entity.ErrNotFound)
}

func TestSessionRepository(t *testing.T) {
	ctx := context.Background()
	repo := NewSessionRepository()

	s := &entity.Session{AccessToken: "a1", RefreshToken: "r1", UserID: 7}
	require.NoError(t, repo.Create(ctx, s))

	got, err := repo.GetByRefreshToken(ctx, "r1")
	require.NoError(t, err)
	assert.Equal(t, int64(7), got.UserID)

	require.NoError(t, repo.Delete(ctx, "a1"))
	_, err = repo.GetByAccessToken(ctx, "a1")
	assert.ErrorIs(t, err, entity.ErrNotFound)
	_, err = repo.GetByRefreshToken(ctx, "r1")
	assert.ErrorIs(t, err, entity.ErrNotFound)
	assert.ErrorIs(t, repo.Delete(ctx, "a1"), entity.ErrNotFound)
}

func TestPostRepository_CountsAndOrder(t *testing.T) {
	ctx := context.Background()
	repo := NewPostRepository()

	first := &entity.Post{UserID: 1, Author: "alice", Content: "first"}
	second := &entity.Post{UserID: 1, Author: "alice", Content: "second"}
	require.NoError(t, repo.CreatePost(ctx, first))
	require.NoError(t, repo.CreatePost(ctx, second))

	require.NoError(t, repo.CreateComment(ctx, &entity.Comment{PostID: first.ID, Comment: "a"}))
	require.NoError(t, repo.CreateComment(ctx, &entity.Comment{PostID: first.ID, Comment: "b"}))
	assert.ErrorIs(t, repo.CreateComment(ctx, &entity.Comment{PostID: 42}), entity.ErrNotFound)

	posts, err := repo.ListPosts(ctx)
	require.NoError(t, err)
	require.Len(t, posts, 2)
	assert.Equal(t, "second", posts[0].Content)
	assert.Equal(t, 0, posts[0].CommentsCount)
	assert.Equal(t, 2, posts[1].CommentsCount)

	comments, err := repo.ListComments(ctx, first.ID)
	require.NoError(t, err)
	require.Len(t, comments, 2)
	assert.Equal(t, "a", comments[0].Comment)
}

func TestUploadRepository_ListByUser(t *testing.T) {
	ctx := context.Background()
	repo := NewUploadRepository()

	require.NoError(t, repo.Create(ctx, &entity.ImageUpload{UserID: 1, ImageKey: "a"}))
	require.NoError(t, repo.Create(ctx, &entity.ImageUpload{UserID: 2, ImageKey: "b"}))
	require.NoError(t, repo.Create(ctx, &entity.ImageUpload{UserID: 1, ImageKey: "c"}))

	uploads, err := repo.ListByUser(ctx, 1)
	require.NoError(t, err)
	require.Len(t, uploads, 2)
	assert.Equal(t, "c", uploads[0].ImageKey)
}

func TestEscalationRepository(t *testing.T) {
	ctx := context.Background()
	repo := NewEscalationRepository()

	require.NoError(t, repo.Create(ctx, &entity.Escalation{PatientID: 1, Status: entity.StatusPending}))
	require.NoError(t, repo.Create(ctx, &entity.Escalation{PatientID: 2, Status: entity.StatusPending}))

	all, err := repo.List(ctx, 0)
	require.NoError(t, err)
	assert.Len(t, all, 2)

	mine, err := repo.List(ctx, 2)
	require.NoError(t, err)
	require.Len(t, mine, 1)

	require.NoError(t, repo.UpdateStatus(ctx, mine[0].ID, entity.StatusPending, entity.StatusReviewed))
	got, err := repo.Get(ctx, mine[0].ID)
	require.NoError(t, err)
	assert.Equal(t, entity.StatusReviewed, got.Status)

	// stale expected status
	err = repo.UpdateStatus(ctx, mine[0].ID, entity.StatusPending, entity.StatusClosed)
	assert.ErrorIs(t, err, entity.ErrConflict)
	got, err = repo.Get(ctx, mine[0].ID)
	require.NoError(t, err)
	assert.Equal(t, entity.StatusReviewed, got.Status)

	assert.ErrorIs(t, repo.UpdateStatus(ctx, 99, entity.StatusPending, entity.StatusClosed), entity.ErrNotFound)
}

func TestConcurrentCreate(t *testing.T) {
	ctx := context.Background()
	repo := NewPostRepository()

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = repo.CreatePost(ctx, &entity.Post{Content: "x"})
		}()
	}
	wg.Wait()

	posts, err := repo.ListPosts(ctx)
	require.NoError(t, err)
	assert.Len(t, posts, 50)
}
