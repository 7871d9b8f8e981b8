package entity

import (
	"fmt"
	"strings"
	"time"
)

// Role is the profile role attached to every account.
type Role string

const (
	RoleAdmin   Role = "admin"
	RoleDoctor  Role = "doctor"
	RolePatient Role = "patient"
)

func (r Role) Valid() bool {
	switch r {
	case RoleAdmin, RoleDoctor, RolePatient:
		return true
	}
	return false
}

// CanReview reports whether the role may see and update every escalation.
func (r Role) CanReview() bool {
	return r == RoleAdmin || r == RoleDoctor
}

type User struct {
	ID                      int64
	Username                string
	Email                   string
	PasswordHash            string
	FamilyHistorySkinCancer bool
	Role                    Role
	CreatedAt               time.Time
}

// NewUser builds a patient account. The password must already be hashed.
func NewUser(username, email, passwordHash string, familyHistory bool) (*User, error) {
	username = strings.TrimSpace(username)
	if username == "" {
		return nil, fmt.Errorf("%w: username required", ErrInvalid)
	}
	if len(username) > 150 {
		return nil, fmt.Errorf("%w: username longer than 150 characters", ErrInvalid)
	}
	return &User{
		Username:                username,
		Email:                   strings.TrimSpace(email),
		PasswordHash:            passwordHash,
		FamilyHistorySkinCancer: familyHistory,
		Role:                    RolePatient,
	}, nil
}

// Session is an issued access/refresh token pair.
type Session struct {
	AccessToken      string
	RefreshToken     string
	UserID           int64
	AccessExpiresAt  time.Time
	RefreshExpiresAt time.Time
}

func (s *Session) AccessExpired(now time.Time) bool  { return !now.Before(s.AccessExpiresAt) }
func (s *Session) RefreshExpired(now time.Time) bool { return !now.Before(s.RefreshExpiresAt) }
