package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/Brownie44l1/skinlens/internal/domain/entity"
	"github.com/Brownie44l1/skinlens/internal/domain/port"
)

type PostService struct {
	posts port.PostRepository
}

func NewPostService(posts port.PostRepository) *PostService {
	return &PostService{posts: posts}
}

func (s *PostService) Create(ctx context.Context, author *entity.User, content string) (*entity.Post, error) {
	post, err := entity.NewPost(author, content)
	if err != nil {
		return nil, err
	}
	if err := s.posts.CreatePost(ctx, post); err != nil {
		return nil, err
	}
	return post, nil
}

func (s *PostService) List(ctx context.Context) ([]entity.Post, error) {
	return s.posts.ListPosts(ctx)
}

// Get returns a post with its comments, oldest first.
func (s *PostService) Get(ctx context.Context, id int64) (*entity.Post, []entity.Comment, error) {
	post, err := s.posts.GetPost(ctx, id)
	if err != nil {
		return nil, nil, err
	}
	comments, err := s.posts.ListComments(ctx, id)
	if err != nil {
		return nil, nil, err
	}
	return post, comments, nil
}

// Comment adds a comment. An unknown post is an input error.
func (s *PostService) Comment(ctx context.Context, author *entity.User, postID int64, text string) (*entity.Comment, error) {
	comment, err := entity.NewComment(author, postID, text)
	if err != nil {
		return nil, err
	}
	if err := s.posts.CreateComment(ctx, comment); err != nil {
		if errors.Is(err, entity.ErrNotFound) {
			return nil, fmt.Errorf("%w: post %d does not exist", entity.ErrInvalid, postID)
		}
		return nil, err
	}
	return comment, nil
}
