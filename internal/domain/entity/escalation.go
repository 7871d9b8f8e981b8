package entity

import (
	"fmt"
	"time"
)

type EscalationStatus string

const (
	StatusPending  EscalationStatus = "pending"
	StatusReviewed EscalationStatus = "reviewed"
	StatusClosed   EscalationStatus = "closed"
)

var escalationTransitions = map[EscalationStatus][]EscalationStatus{
	StatusPending:  {StatusReviewed, StatusClosed},
	StatusReviewed: {StatusClosed},
}

func (s EscalationStatus) Valid() bool {
	switch s {
	case StatusPending, StatusReviewed, StatusClosed:
		return true
	}
	return false
}

// CanTransition reports whether an escalation may move from s to next.
// Closed is terminal.
func (s EscalationStatus) CanTransition(next EscalationStatus) bool {
	for _, allowed := range escalationTransitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// Escalation is a patient's request for a clinician to look at an upload.
type Escalation struct {
	ID            int64
	PatientID     int64
	ImageID       int64
	Reason        string
	ContactNumber string
	Status        EscalationStatus
	SubmittedAt   time.Time
}

func NewEscalation(patient *User, image *ImageUpload, reason, contact string) (*Escalation, error) {
	if image.UserID != patient.ID {
		return nil, fmt.Errorf("%w: image belongs to another user", ErrForbidden)
	}
	return &Escalation{
		PatientID:     patient.ID,
		ImageID:       image.ID,
		Reason:        reason,
		ContactNumber: contact,
		Status:        StatusPending,
	}, nil
}

// Transition moves the escalation to next or returns ErrInvalid.
func (e *Escalation) Transition(next EscalationStatus) error {
	if !next.Valid() {
		return fmt.Errorf("%w: unknown status %q", ErrInvalid, next)
	}
	if !e.Status.CanTransition(next) {
		return fmt.Errorf("%w: cannot move escalation from %s to %s", ErrInvalid, e.Status, next)
	}
	e.Status = next
	return nil
}
