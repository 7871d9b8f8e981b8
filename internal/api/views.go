package api

import (
	"encoding/json"
	"time"

	"github.com/Brownie44l1/skinlens/internal/domain/entity"
	"github.com/Brownie44l1/skinlens/internal/service"
)

type userView struct {
	ID       int64  `json:"id"`
	Username string `json:"username"`
}

type meView struct {
	ID                      int64       `json:"id"`
	Username                string      `json:"username"`
	Email                   string      `json:"email"`
	Role                    entity.Role `json:"role"`
	FamilyHistorySkinCancer bool        `json:"family_history_skin_cancer"`
	DateJoined              time.Time   `json:"date_joined"`
}

func newMeView(u *entity.User) meView {
	return meView{
		ID:                      u.ID,
		Username:                u.Username,
		Email:                   u.Email,
		Role:                    u.Role,
		FamilyHistorySkinCancer: u.FamilyHistorySkinCancer,
		DateJoined:              u.CreatedAt,
	}
}

type tokenView struct {
	Access  string `json:"access"`
	Refresh string `json:"refresh"`
}

func newTokenView(s *entity.Session) tokenView {
	return tokenView{Access: s.AccessToken, Refresh: s.RefreshToken}
}

type postView struct {
	ID            int64     `json:"id"`
	User          userView  `json:"user"`
	Content       string    `json:"content"`
	CreatedAt     time.Time `json:"created_at"`
	CommentsCount int       `json:"comments_count"`
}

func newPostView(p *entity.Post) postView {
	return postView{
		ID:            p.ID,
		User:          userView{ID: p.UserID, Username: p.Author},
		Content:       p.Content,
		CreatedAt:     p.CreatedAt,
		CommentsCount: p.CommentsCount,
	}
}

type commentView struct {
	ID        int64     `json:"id"`
	Post      int64     `json:"post"`
	User      userView  `json:"user"`
	Comment   string    `json:"comment"`
	CreatedAt time.Time `json:"created_at"`
}

func newCommentView(c *entity.Comment) commentView {
	return commentView{
		ID:        c.ID,
		Post:      c.PostID,
		User:      userView{ID: c.UserID, Username: c.Author},
		Comment:   c.Comment,
		CreatedAt: c.CreatedAt,
	}
}

type postDetailView struct {
	postView
	Comments []commentView `json:"comments"`
}

type uploadView struct {
	ID          int64           `json:"id"`
	User        userView        `json:"user"`
	Image       string          `json:"image"`
	ImageURL    string          `json:"image_url"`
	Metadata    json.RawMessage `json:"metadata"`
	Prediction  json.RawMessage `json:"prediction"`
	Explanation string          `json:"explanation"`
	UploadedAt  time.Time       `json:"uploaded_at"`
}

func newUploadView(u *entity.ImageUpload) uploadView {
	v := uploadView{
		ID:          u.ID,
		User:        userView{ID: u.UserID, Username: u.Owner},
		Image:       u.ImageKey,
		ImageURL:    u.ImageURL,
		Metadata:    u.Metadata,
		Prediction:  u.Prediction,
		Explanation: u.Explanation,
		UploadedAt:  u.UploadedAt,
	}
	if len(v.Metadata) == 0 {
		v.Metadata = json.RawMessage("{}")
	}
	if !u.HasPrediction() {
		v.Prediction = json.RawMessage("null")
	}
	return v
}

type escalationView struct {
	ID            int64                   `json:"id"`
	Patient       int64                   `json:"patient"`
	Image         int64                   `json:"image"`
	Reason        string                  `json:"reason"`
	ContactNumber string                  `json:"contact_number"`
	Status        entity.EscalationStatus `json:"status"`
	SubmittedAt   time.Time               `json:"submitted_at"`
}

func newEscalationView(e *entity.Escalation) escalationView {
	return escalationView{
		ID:            e.ID,
		Patient:       e.PatientID,
		Image:         e.ImageID,
		Reason:        e.Reason,
		ContactNumber: e.ContactNumber,
		Status:        e.Status,
		SubmittedAt:   e.SubmittedAt,
	}
}

type escalationDetailView struct {
	ID            int64                   `json:"id"`
	Patient       userView                `json:"patient"`
	Image         uploadView              `json:"image"`
	Reason        string                  `json:"reason"`
	ContactNumber string                  `json:"contact_number"`
	Status        entity.EscalationStatus `json:"status"`
	SubmittedAt   time.Time               `json:"submitted_at"`
}

func newEscalationDetailView(d *service.EscalationDetail) escalationDetailView {
	return escalationDetailView{
		ID:            d.ID,
		Patient:       userView{ID: d.Patient.ID, Username: d.Patient.Username},
		Image:         newUploadView(d.Image),
		Reason:        d.Reason,
		ContactNumber: d.ContactNumber,
		Status:        d.Status,
		SubmittedAt:   d.SubmittedAt,
	}
}
