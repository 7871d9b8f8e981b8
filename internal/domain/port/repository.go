package port

import (
	"context"

	"github.com/Brownie44l1/skinlens/internal/domain/entity"
)

// UserRepository stores accounts. Create sets ID and CreatedAt and returns
// entity.ErrConflict for a taken username.
type UserRepository interface {
	Create(ctx context.Context, user *entity.User) error
	GetByID(ctx context.Context, id int64) (*entity.User, error)
	GetByUsername(ctx context.Context, username string) (*entity.User, error)
}

type SessionRepository interface {
	Create(ctx context.Context, session *entity.Session) error
	GetByAccessToken(ctx context.Context, token string) (*entity.Session, error)
	GetByRefreshToken(ctx context.Context, token string) (*entity.Session, error)
	Delete(ctx context.Context, accessToken string) error
}

// PostRepository stores posts and their comments. ListPosts returns newest
// first with CommentsCount filled, ListComments oldest first.
type PostRepository interface {
	CreatePost(ctx context.Context, post *entity.Post) error
	GetPost(ctx context.Context, id int64) (*entity.Post, error)
	ListPosts(ctx context.Context) ([]entity.Post, error)
	CreateComment(ctx context.Context, comment *entity.Comment) error
	ListComments(ctx context.Context, postID int64) ([]entity.Comment, error)
}

type UploadRepository interface {
	Create(ctx context.Context, upload *entity.ImageUpload) error
	Get(ctx context.Context, id int64) (*entity.ImageUpload, error)
	// ListByUser returns the user's uploads, newest first.
	ListByUser(ctx context.Context, userID int64) ([]entity.ImageUpload, error)
}

type EscalationRepository interface {
	Create(ctx context.Context, escalation *entity.Escalation) error
	Get(ctx context.Context, id int64) (*entity.Escalation, error)
	// List returns escalations newest first; patientID 0 means all patients.
	List(ctx context.Context, patientID int64) ([]entity.Escalation, error)
	// UpdateStatus moves an escalation from one status to another. It returns
	// ErrConflict when the stored status is no longer from.
	UpdateStatus(ctx context.Context, id int64, from, to entity.EscalationStatus) error
}
