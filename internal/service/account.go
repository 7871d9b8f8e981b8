package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"github.com/Brownie44l1/skinlens/internal/domain/entity"
	"github.com/Brownie44l1/skinlens/internal/domain/port"
)

type SignupInput struct {
	Username                string
	Email                   string
	Password                string
	FamilyHistorySkinCancer bool
}

// AccountService handles sign-up and opaque bearer token sessions.
type AccountService struct {
	users      port.UserRepository
	sessions   port.SessionRepository
	tokenTTL   time.Duration
	refreshTTL time.Duration
	now        func() time.Time
}

func NewAccountService(users port.UserRepository, sessions port.SessionRepository, tokenTTL, refreshTTL time.Duration) *AccountService {
	return &AccountService{
		users:      users,
		sessions:   sessions,
		tokenTTL:   tokenTTL,
		refreshTTL: refreshTTL,
		now:        time.Now,
	}
}

// Signup creates a patient account and logs it in.
func (s *AccountService) Signup(ctx context.Context, in SignupInput) (*entity.User, *entity.Session, error) {
	if in.Username == "" || in.Password == "" {
		return nil, nil, fmt.Errorf("%w: username and password required", entity.ErrInvalid)
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(in.Password), bcrypt.DefaultCost)
	if err != nil {
		if errors.Is(err, bcrypt.ErrPasswordTooLong) {
			return nil, nil, fmt.Errorf("%w: password too long", entity.ErrInvalid)
		}
		return nil, nil, err
	}

	user, err := entity.NewUser(in.Username, in.Email, string(hash), in.FamilyHistorySkinCancer)
	if err != nil {
		return nil, nil, err
	}
	if err := s.users.Create(ctx, user); err != nil {
		if errors.Is(err, entity.ErrConflict) {
			return nil, nil, fmt.Errorf("%w: user already exists", entity.ErrConflict)
		}
		return nil, nil, err
	}

	session, err := s.issue(ctx, user.ID)
	if err != nil {
		return nil, nil, err
	}
	return user, session, nil
}

// Login checks credentials and issues a new token pair.
func (s *AccountService) Login(ctx context.Context, username, password string) (*entity.Session, error) {
	user, err := s.users.GetByUsername(ctx, username)
	if errors.Is(err, entity.ErrNotFound) {
		return nil, fmt.Errorf("%w: invalid credentials", entity.ErrUnauthorized)
	}
	if err != nil {
		return nil, err
	}
	if bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)) != nil {
		return nil, fmt.Errorf("%w: invalid credentials", entity.ErrUnauthorized)
	}
	return s.issue(ctx, user.ID)
}

// Refresh replaces the access token bound to refreshToken. The refresh
// token keeps its original expiry.
func (s *AccountService) Refresh(ctx context.Context, refreshToken string) (*entity.Session, error) {
	old, err := s.sessions.GetByRefreshToken(ctx, refreshToken)
	if errors.Is(err, entity.ErrNotFound) {
		return nil, fmt.Errorf("%w: invalid refresh token", entity.ErrUnauthorized)
	}
	if err != nil {
		return nil, err
	}
	if old.RefreshExpired(s.now()) {
		_ = s.sessions.Delete(ctx, old.AccessToken)
		return nil, fmt.Errorf("%w: refresh token expired", entity.ErrUnauthorized)
	}

	if err := s.sessions.Delete(ctx, old.AccessToken); err != nil && !errors.Is(err, entity.ErrNotFound) {
		return nil, err
	}
	session := &entity.Session{
		AccessToken:      uuid.NewString(),
		RefreshToken:     old.RefreshToken,
		UserID:           old.UserID,
		AccessExpiresAt:  s.now().Add(s.tokenTTL),
		RefreshExpiresAt: old.RefreshExpiresAt,
	}
	if err := s.sessions.Create(ctx, session); err != nil {
		return nil, err
	}
	return session, nil
}

// Authenticate resolves an access token to its user.
func (s *AccountService) Authenticate(ctx context.Context, accessToken string) (*entity.User, error) {
	if accessToken == "" {
		return nil, fmt.Errorf("%w: missing token", entity.ErrUnauthorized)
	}
	session, err := s.sessions.GetByAccessToken(ctx, accessToken)
	if errors.Is(err, entity.ErrNotFound) {
		return nil, fmt.Errorf("%w: invalid token", entity.ErrUnauthorized)
	}
	if err != nil {
		return nil, err
	}
	if session.AccessExpired(s.now()) {
		return nil, fmt.Errorf("%w: token expired", entity.ErrUnauthorized)
	}

	user, err := s.users.GetByID(ctx, session.UserID)
	if errors.Is(err, entity.ErrNotFound) {
		return nil, fmt.Errorf("%w: unknown user", entity.ErrUnauthorized)
	}
	return user, err
}

// Signout revokes the session behind accessToken.
func (s *AccountService) Signout(ctx context.Context, accessToken string) error {
	err := s.sessions.Delete(ctx, accessToken)
	if errors.Is(err, entity.ErrNotFound) {
		return nil
	}
	return err
}

func (s *AccountService) issue(ctx context.Context, userID int64) (*entity.Session, error) {
	now := s.now()
	session := &entity.Session{
		AccessToken:      uuid.NewString(),
		RefreshToken:     uuid.NewString(),
		UserID:           userID,
		AccessExpiresAt:  now.Add(s.tokenTTL),
		RefreshExpiresAt: now.Add(s.refreshTTL),
	}
	if err := s.sessions.Create(ctx, session); err != nil {
		return nil, err
	}
	return session, nil
}
