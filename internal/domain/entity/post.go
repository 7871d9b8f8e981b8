package entity

import (
	"fmt"
	"strings"
	"time"
)

type Post struct {
	ID            int64
	UserID        int64
	Author        string
	Content       string
	CreatedAt     time.Time
	CommentsCount int
}

func NewPost(author *User, content string) (*Post, error) {
	if strings.TrimSpace(content) == "" {
		return nil, fmt.Errorf("%w: content required", ErrInvalid)
	}
	return &Post{
		UserID:  author.ID,
		Author:  author.Username,
		Content: content,
	}, nil
}

type Comment struct {
	ID        int64
	PostID    int64
	UserID    int64
	Author    string
	Comment   string
	CreatedAt time.Time
}

func NewComment(author *User, postID int64, text string) (*Comment, error) {
	if postID <= 0 {
		return nil, fmt.Errorf("%w: post required", ErrInvalid)
	}
	if strings.TrimSpace(text) == "" {
		return nil, fmt.Errorf("%w: comment required", ErrInvalid)
	}
	return &Comment{
		PostID:  postID,
		UserID:  author.ID,
		Author:  author.Username,
		Comment: text,
	}, nil
}
