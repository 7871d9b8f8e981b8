package memory

import (
	"context"
	"slices"
	"sync"
	"time"

	"github.com/Brownie44l1/skinlens/internal/domain/entity"
	"github.com/Brownie44l1/skinlens/internal/domain/port"
)

// PostRepository is an in-memory post and comment store.
type PostRepository struct {
	mu            sync.RWMutex
	nextPostID    int64
	nextCommentID int64
	posts         map[int64]*entity.Post
	comments      map[int64][]entity.Comment
}

func NewPostRepository() *PostRepository {
	return &PostRepository{
		posts:    make(map[int64]*entity.Post),
		comments: make(map[int64][]entity.Comment),
	}
}

func (r *PostRepository) CreatePost(ctx context.Context, post *entity.Post) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.nextPostID++
	post.ID = r.nextPostID
	post.CreatedAt = time.Now().UTC()
	post.CommentsCount = 0

	stored := *post
	r.posts[post.ID] = &stored
	return nil
}

func (r *PostRepository) GetPost(ctx context.Context, id int64) (*entity.Post, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	post, exists := r.posts[id]
	if !exists {
		return nil, entity.ErrNotFound
	}
	out := *post
	out.CommentsCount = len(r.comments[id])
	return &out, nil
}

func (r *PostRepository) ListPosts(ctx context.Context) ([]entity.Post, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	posts := make([]entity.Post, 0, len(r.posts))
	for id, post := range r.posts {
		p := *post
		p.CommentsCount = len(r.comments[id])
		posts = append(posts, p)
	}
	slices.SortFunc(posts, func(a, b entity.Post) int {
		return int(b.ID - a.ID)
	})
	return posts, nil
}

func (r *PostRepository) CreateComment(ctx context.Context, comment *entity.Comment) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.posts[comment.PostID]; !exists {
		return entity.ErrNotFound
	}

	r.nextCommentID++
	comment.ID = r.nextCommentID
	comment.CreatedAt = time.Now().UTC()
	r.comments[comment.PostID] = append(r.comments[comment.PostID], *comment)
	return nil
}

func (r *PostRepository) ListComments(ctx context.Context, postID int64) ([]entity.Comment, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return slices.Clone(r.comments[postID]), nil
}

var _ port.PostRepository = (*PostRepository)(nil)
