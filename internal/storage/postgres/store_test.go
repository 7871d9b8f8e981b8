package postgres

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	tcpostgres "github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"
	"go.uber.org/zap"

	"github.com/Brownie44l1/skinlens/internal/domain/entity"
)

// startPostgres runs a throwaway Postgres container. It requires Docker.
func startPostgres(t *testing.T) string {
	t.Helper()
	ctx := context.Background()

	container, err := tcpostgres.Run(ctx, "postgres:16-alpine",
		tcpostgres.WithDatabase("skinlens_test"),
		tcpostgres.WithUsername("skinlens"),
		tcpostgres.WithPassword("password"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(60*time.Second)),
	)
	require.NoError(t, err)
	t.Cleanup(func() { container.Terminate(ctx) })

	connStr, err := container.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)
	return connStr
}

func TestStoreIntegration(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping integration test in short mode")
	}

	ctx := context.Background()
	s, err := Connect(ctx, startPostgres(t), 30*time.Second, zap.NewNop())
	require.NoError(t, err)
	defer s.Close()

	alice := &entity.User{Username: "alice", PasswordHash: "x", Role: entity.RolePatient}
	require.NoError(t, s.Users.Create(ctx, alice))
	assert.Positive(t, alice.ID)
	assert.ErrorIs(t, s.Users.Create(ctx, &entity.User{Username: "alice", PasswordHash: "y", Role: entity.RolePatient}), entity.ErrConflict)

	doc := &entity.User{Username: "doc", PasswordHash: "x", Role: entity.RolePatient}
	require.NoError(t, s.Users.Create(ctx, doc))
	require.NoError(t, s.Users.SetRole(ctx, "doc", entity.RoleDoctor))
	got, err := s.Users.GetByUsername(ctx, "doc")
	require.NoError(t, err)
	assert.Equal(t, entity.RoleDoctor, got.Role)

	_, err = s.Users.GetByID(ctx, 9999)
	assert.ErrorIs(t, err, entity.ErrNotFound)

	// sessions
	now := time.Now().UTC()
	sess := &entity.Session{AccessToken: "a", RefreshToken: "r", UserID: alice.ID,
		AccessExpiresAt: now.Add(time.Hour), RefreshExpiresAt: now.Add(24 * time.Hour)}
	require.NoError(t, s.Sessions.Create(ctx, sess))
	byRefresh, err := s.Sessions.GetByRefreshToken(ctx, "r")
	require.NoError(t, err)
	assert.Equal(t, "a", byRefresh.AccessToken)
	require.NoError(t, s.Sessions.Delete(ctx, "a"))
	assert.ErrorIs(t, s.Sessions.Delete(ctx, "a"), entity.ErrNotFound)

	// posts and comments
	post := &entity.Post{UserID: alice.ID, Content: "hello"}
	require.NoError(t, s.Posts.CreatePost(ctx, post))
	require.NoError(t, s.Posts.CreateComment(ctx, &entity.Comment{PostID: post.ID, UserID: doc.ID, Comment: "hi"}))
	assert.ErrorIs(t, s.Posts.CreateComment(ctx, &entity.Comment{PostID: 9999, UserID: doc.ID, Comment: "x"}), entity.ErrNotFound)

	posts, err := s.Posts.ListPosts(ctx)
	require.NoError(t, err)
	require.Len(t, posts, 1)
	assert.Equal(t, 1, posts[0].CommentsCount)
	assert.Equal(t, "alice", posts[0].Author)

	comments, err := s.Posts.ListComments(ctx, post.ID)
	require.NoError(t, err)
	require.Len(t, comments, 1)
	assert.Equal(t, "doc", comments[0].Author)

	// uploads keep JSON verbatim and a missing prediction as empty
	upload := &entity.ImageUpload{UserID: alice.ID, ImageKey: "k.jpg", ImageURL: "http://x/k.jpg",
		Metadata: []byte(`{"age": 45}`)}
	require.NoError(t, s.Uploads.Create(ctx, upload))
	stored, err := s.Uploads.Get(ctx, upload.ID)
	require.NoError(t, err)
	assert.JSONEq(t, `{"age": 45}`, string(stored.Metadata))
	assert.False(t, stored.HasPrediction())
	assert.Equal(t, "alice", stored.Owner)

	withPrediction := &entity.ImageUpload{UserID: alice.ID, ImageKey: "p.jpg", ImageURL: "u",
		Prediction: []byte(`{"success":true,"prediction":"Benign"}`)}
	require.NoError(t, s.Uploads.Create(ctx, withPrediction))
	uploads, err := s.Uploads.ListByUser(ctx, alice.ID)
	require.NoError(t, err)
	require.Len(t, uploads, 2)
	assert.Equal(t, withPrediction.ID, uploads[0].ID)
	assert.True(t, uploads[0].HasPrediction())

	// escalations
	esc := &entity.Escalation{PatientID: alice.ID, ImageID: upload.ID, Reason: "grew", Status: entity.StatusPending}
	require.NoError(t, s.Escalations.Create(ctx, esc))
	require.NoError(t, s.Escalations.UpdateStatus(ctx, esc.ID, entity.StatusPending, entity.StatusReviewed))
	err = s.Escalations.UpdateStatus(ctx, esc.ID, entity.StatusPending, entity.StatusClosed)
	assert.ErrorIs(t, err, entity.ErrConflict)
	assert.ErrorIs(t, s.Escalations.UpdateStatus(ctx, esc.ID+100, entity.StatusPending, entity.StatusClosed), entity.ErrNotFound)

	mine, err := s.Escalations.List(ctx, alice.ID)
	require.NoError(t, err)
	require.Len(t, mine, 1)
	assert.Equal(t, entity.StatusReviewed, mine[0].Status)

	none, err := s.Escalations.List(ctx, doc.ID)
	require.NoError(t, err)
	assert.Empty(t, none)

	all, err := s.Escalations.List(ctx, 0)
	require.NoError(t, err)
	assert.Len(t, all, 1)

	// reset then migrate leaves an empty schema
	require.NoError(t, s.Reset(ctx))
	require.NoError(t, s.Migrate(ctx))
	posts, err = s.Posts.ListPosts(ctx)
	require.NoError(t, err)
	assert.Empty(t, posts)
}

func TestConnect_InvalidURL(t *testing.T) {
	_, err := Connect(context.Background(), "://not-a-url", time.Second, zap.NewNop())
	assert.Error(t, err)
}
