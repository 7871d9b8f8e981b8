package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/Brownie44l1/skinlens/internal/domain/entity"
	"github.com/Brownie44l1/skinlens/internal/domain/port"
)

type UserRepository struct{ pool *pgxpool.Pool }

func (r *UserRepository) Create(ctx context.Context, user *entity.User) error {
	err := r.pool.QueryRow(ctx, `
		INSERT INTO users (username, email, password_hash, family_history_skin_cancer, role)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id, created_at
	`, user.Username, user.Email, user.PasswordHash, user.FamilyHistorySkinCancer, string(user.Role)).
		Scan(&user.ID, &user.CreatedAt)
	return mapError(err)
}

const selectUser = `SELECT id, username, email, password_hash, family_history_skin_cancer, role, created_at FROM users`

func scanUser(row pgx.Row) (*entity.User, error) {
	var u entity.User
	var role string
	if err := row.Scan(&u.ID, &u.Username, &u.Email, &u.PasswordHash, &u.FamilyHistorySkinCancer, &role, &u.CreatedAt); err != nil {
		return nil, mapError(err)
	}
	u.Role = entity.Role(role)
	return &u, nil
}

func (r *UserRepository) GetByID(ctx context.Context, id int64) (*entity.User, error) {
	return scanUser(r.pool.QueryRow(ctx, selectUser+` WHERE id = $1`, id))
}

func (r *UserRepository) GetByUsername(ctx context.Context, username string) (*entity.User, error) {
	return scanUser(r.pool.QueryRow(ctx, selectUser+` WHERE username = $1`, username))
}

// SetRole changes the role of the named user.
func (r *UserRepository) SetRole(ctx context.Context, username string, role entity.Role) error {
	tag, err := r.pool.Exec(ctx, `UPDATE users SET role = $1 WHERE username = $2`, string(role), username)
	if err != nil {
		return mapError(err)
	}
	if tag.RowsAffected() == 0 {
		return entity.ErrNotFound
	}
	return nil
}

type SessionRepository struct{ pool *pgxpool.Pool }

func (r *SessionRepository) Create(ctx context.Context, s *entity.Session) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO sessions (access_token, refresh_token, user_id, access_expires_at, refresh_expires_at)
		VALUES ($1, $2, $3, $4, $5)
	`, s.AccessToken, s.RefreshToken, s.UserID, s.AccessExpiresAt, s.RefreshExpiresAt)
	return mapError(err)
}

const selectSession = `SELECT access_token, refresh_token, user_id, access_expires_at, refresh_expires_at FROM sessions`

func scanSession(row pgx.Row) (*entity.Session, error) {
	var s entity.Session
	if err := row.Scan(&s.AccessToken, &s.RefreshToken, &s.UserID, &s.AccessExpiresAt, &s.RefreshExpiresAt); err != nil {
		return nil, mapError(err)
	}
	return &s, nil
}

func (r *SessionRepository) GetByAccessToken(ctx context.Context, token string) (*entity.Session, error) {
	return scanSession(r.pool.QueryRow(ctx, selectSession+` WHERE access_token = $1`, token))
}

func (r *SessionRepository) GetByRefreshToken(ctx context.Context, token string) (*entity.Session, error) {
	return scanSession(r.pool.QueryRow(ctx, selectSession+` WHERE refresh_token = $1 ORDER BY access_expires_at DESC LIMIT 1`, token))
}

func (r *SessionRepository) Delete(ctx context.Context, accessToken string) error {
	tag, err := r.pool.Exec(ctx, `DELETE FROM sessions WHERE access_token = $1`, accessToken)
	if err != nil {
		return mapError(err)
	}
	if tag.RowsAffected() == 0 {
		return entity.ErrNotFound
	}
	return nil
}

type PostRepository struct{ pool *pgxpool.Pool }

func (r *PostRepository) CreatePost(ctx context.Context, post *entity.Post) error {
	err := r.pool.QueryRow(ctx, `
		INSERT INTO posts (user_id, content) VALUES ($1, $2)
		RETURNING id, created_at
	`, post.UserID, post.Content).Scan(&post.ID, &post.CreatedAt)
	return mapError(err)
}

const selectPost = `
	SELECT p.id, p.user_id, u.username, p.content, p.created_at,
		(SELECT COUNT(*) FROM comments c WHERE c.post_id = p.id)
	FROM posts p JOIN users u ON u.id = p.user_id`

func scanPost(row pgx.Row) (entity.Post, error) {
	var p entity.Post
	err := row.Scan(&p.ID, &p.UserID, &p.Author, &p.Content, &p.CreatedAt, &p.CommentsCount)
	return p, err
}

func (r *PostRepository) GetPost(ctx context.Context, id int64) (*entity.Post, error) {
	p, err := scanPost(r.pool.QueryRow(ctx, selectPost+` WHERE p.id = $1`, id))
	if err != nil {
		return nil, mapError(err)
	}
	return &p, nil
}

func (r *PostRepository) ListPosts(ctx context.Context) ([]entity.Post, error) {
	rows, err := r.pool.Query(ctx, selectPost+` ORDER BY p.created_at DESC, p.id DESC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var posts []entity.Post
	for rows.Next() {
		p, err := scanPost(rows)
		if err != nil {
			return nil, err
		}
		posts = append(posts, p)
	}
	return posts, rows.Err()
}

func (r *PostRepository) CreateComment(ctx context.Context, c *entity.Comment) error {
	err := r.pool.QueryRow(ctx, `
		INSERT INTO comments (post_id, user_id, comment) VALUES ($1, $2, $3)
		RETURNING id, created_at
	`, c.PostID, c.UserID, c.Comment).Scan(&c.ID, &c.CreatedAt)
	return mapError(err)
}

func (r *PostRepository) ListComments(ctx context.Context, postID int64) ([]entity.Comment, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT c.id, c.post_id, c.user_id, u.username, c.comment, c.created_at
		FROM comments c JOIN users u ON u.id = c.user_id
		WHERE c.post_id = $1
		ORDER BY c.created_at, c.id
	`, postID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var comments []entity.Comment
	for rows.Next() {
		var c entity.Comment
		if err := rows.Scan(&c.ID, &c.PostID, &c.UserID, &c.Author, &c.Comment, &c.CreatedAt); err != nil {
			return nil, err
		}
		comments = append(comments, c)
	}
	return comments, rows.Err()
}

type UploadRepository struct{ pool *pgxpool.Pool }

func (r *UploadRepository) Create(ctx context.Context, u *entity.ImageUpload) error {
	metadata := u.Metadata
	if len(metadata) == 0 {
		metadata = []byte("{}")
	}
	err := r.pool.QueryRow(ctx, `
		INSERT INTO image_uploads (user_id, image_key, image_url, thumbnail_key, metadata, prediction, explanation)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING id, uploaded_at
	`, u.UserID, u.ImageKey, u.ImageURL, u.ThumbnailKey, []byte(metadata), nullableJSON(u.Prediction), u.Explanation).
		Scan(&u.ID, &u.UploadedAt)
	return mapError(err)
}

const selectUpload = `
	SELECT i.id, i.user_id, u.username, i.image_key, i.image_url, i.thumbnail_key,
		i.metadata, i.prediction, i.explanation, i.uploaded_at
	FROM image_uploads i JOIN users u ON u.id = i.user_id`

func scanUpload(row pgx.Row) (entity.ImageUpload, error) {
	var u entity.ImageUpload
	var metadata, prediction []byte
	err := row.Scan(&u.ID, &u.UserID, &u.Owner, &u.ImageKey, &u.ImageURL, &u.ThumbnailKey,
		&metadata, &prediction, &u.Explanation, &u.UploadedAt)
	u.Metadata = metadata
	u.Prediction = prediction
	return u, err
}

func (r *UploadRepository) Get(ctx context.Context, id int64) (*entity.ImageUpload, error) {
	u, err := scanUpload(r.pool.QueryRow(ctx, selectUpload+` WHERE i.id = $1`, id))
	if err != nil {
		return nil, mapError(err)
	}
	return &u, nil
}

func (r *UploadRepository) ListByUser(ctx context.Context, userID int64) ([]entity.ImageUpload, error) {
	rows, err := r.pool.Query(ctx, selectUpload+` WHERE i.user_id = $1 ORDER BY i.uploaded_at DESC, i.id DESC`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var uploads []entity.ImageUpload
	for rows.Next() {
		u, err := scanUpload(rows)
		if err != nil {
			return nil, err
		}
		uploads = append(uploads, u)
	}
	return uploads, rows.Err()
}

type EscalationRepository struct{ pool *pgxpool.Pool }

func (r *EscalationRepository) Create(ctx context.Context, e *entity.Escalation) error {
	err := r.pool.QueryRow(ctx, `
		INSERT INTO escalations (patient_id, image_id, reason, contact_number, status)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id, submitted_at
	`, e.PatientID, e.ImageID, e.Reason, e.ContactNumber, string(e.Status)).Scan(&e.ID, &e.SubmittedAt)
	return mapError(err)
}

const selectEscalation = `SELECT id, patient_id, image_id, reason, contact_number, status, submitted_at FROM escalations`

func scanEscalation(row pgx.Row) (entity.Escalation, error) {
	var e entity.Escalation
	var status string
	err := row.Scan(&e.ID, &e.PatientID, &e.ImageID, &e.Reason, &e.ContactNumber, &status, &e.SubmittedAt)
	e.Status = entity.EscalationStatus(status)
	return e, err
}

func (r *EscalationRepository) Get(ctx context.Context, id int64) (*entity.Escalation, error) {
	e, err := scanEscalation(r.pool.QueryRow(ctx, selectEscalation+` WHERE id = $1`, id))
	if err != nil {
		return nil, mapError(err)
	}
	return &e, nil
}

func (r *EscalationRepository) List(ctx context.Context, patientID int64) ([]entity.Escalation, error) {
	rows, err := r.pool.Query(ctx, selectEscalation+`
		WHERE $1::bigint = 0 OR patient_id = $1
		ORDER BY submitted_at DESC, id DESC
	`, patientID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var escalations []entity.Escalation
	for rows.Next() {
		e, err := scanEscalation(rows)
		if err != nil {
			return nil, err
		}
		escalations = append(escalations, e)
	}
	return escalations, rows.Err()
}

func (r *EscalationRepository) UpdateStatus(ctx context.Context, id int64, from, to entity.EscalationStatus) error {
	tag, err := r.pool.Exec(ctx,
		`UPDATE escalations SET status = $1 WHERE id = $2 AND status = $3`,
		string(to), id, string(from))
	if err != nil {
		return mapError(err)
	}
	if tag.RowsAffected() > 0 {
		return nil
	}

	var exists bool
	if err := r.pool.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM escalations WHERE id = $1)`, id).Scan(&exists); err != nil {
		return mapError(err)
	}
	if !exists {
		return entity.ErrNotFound
	}
	return fmt.Errorf("%w: escalation %d is no longer %s", entity.ErrConflict, id, from)
}

var (
	_ port.UserRepository       = (*UserRepository)(nil)
	_ port.SessionRepository    = (*SessionRepository)(nil)
	_ port.PostRepository       = (*PostRepository)(nil)
	_ port.UploadRepository     = (*UploadRepository)(nil)
	_ port.EscalationRepository = (*EscalationRepository)(nil)
)
