package memory

import (
	"context"
	"sync"
	"time"

	"github.com/Brownie44l1/skinlens/internal/domain/entity"
	"github.com/Brownie44l1/skinlens/internal/domain/port"
)

// UserRepository is an in-memory account store.
type UserRepository struct {
	mu         sync.RWMutex
	nextID     int64
	users      map[int64]*entity.User
	byUsername map[string]int64
}

func NewUserRepository() *UserRepository {
	return &UserRepository{
		users:      make(map[int64]*entity.User),
		byUsername: make(map[string]int64),
	}
}

func (r *UserRepository) Create(ctx context.Context, user *entity.User) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.byUsername[user.Username]; exists {
		return entity.ErrConflict
	}

	r.nextID++
	user.ID = r.nextID
	user.CreatedAt = time.Now().UTC()

	stored := *user
	r.users[user.ID] = &stored
	r.byUsername[user.Username] = user.ID
	return nil
}

func (r *UserRepository) GetByID(ctx context.Context, id int64) (*entity.User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	user, exists := r.users[id]
	if !exists {
		return nil, entity.ErrNotFound
	}
	out := *user
	return &out, nil
}

func (r *UserRepository) GetByUsername(ctx context.Context, username string) (*entity.User, error) {
	r.mu.RLock()
	id, exists := r.byUsername[username]
	r.mu.RUnlock()

	if !exists {
		return nil, entity.ErrNotFound
	}
	return r.GetByID(ctx, id)
}

// SetRole changes the role of the named user.
func (r *UserRepository) SetRole(ctx context.Context, username string, role entity.Role) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	id, exists := r.byUsername[username]
	if !exists {
		return entity.ErrNotFound
	}
	r.users[id].Role = role
	return nil
}

// SessionRepository is an in-memory token store.
type SessionRepository struct {
	mu        sync.RWMutex
	byAccess  map[string]*entity.Session
	byRefresh map[string]string
}

func NewSessionRepository() *SessionRepository {
	return &SessionRepository{
		byAccess:  make(map[string]*entity.Session),
		byRefresh: make(map[string]string),
	}
}

func (r *SessionRepository) Create(ctx context.Context, session *entity.Session) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.byAccess[session.AccessToken]; exists {
		return entity.ErrConflict
	}
	stored := *session
	r.byAccess[session.AccessToken] = &stored
	r.byRefresh[session.RefreshToken] = session.AccessToken
	return nil
}

func (r *SessionRepository) GetByAccessToken(ctx context.Context, token string) (*entity.Session, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	session, exists := r.byAccess[token]
	if !exists {
		return nil, entity.ErrNotFound
	}
	out := *session
	return &out, nil
}

func (r *SessionRepository) GetByRefreshToken(ctx context.Context, token string) (*entity.Session, error) {
	r.mu.RLock()
	access, exists := r.byRefresh[token]
	r.mu.RUnlock()

	if !exists {
		return nil, entity.ErrNotFound
	}
	return r.GetByAccessToken(ctx, access)
}

func (r *SessionRepository) Delete(ctx context.Context, accessToken string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	session, exists := r.byAccess[accessToken]
	if !exists {
		return entity.ErrNotFound
	}
	delete(r.byAccess, accessToken)
	if r.byRefresh[session.RefreshToken] == accessToken {
		delete(r.byRefresh, session.RefreshToken)
	}
	return nil
}

var (
	_ port.UserRepository    = (*UserRepository)(nil)
	_ port.SessionRepository = (*SessionRepository)(nil)
)
