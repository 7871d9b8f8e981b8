package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/Brownie44l1/skinlens/internal/domain/entity"
	"github.com/Brownie44l1/skinlens/internal/domain/port"
)

type EscalationInput struct {
	ImageID       int64
	Reason        string
	ContactNumber string
}

// EscalationDetail is an escalation with the patient and image it refers to.
type EscalationDetail struct {
	entity.Escalation
	Patient *entity.User
	Image   *entity.ImageUpload
}

type EscalationService struct {
	escalations port.EscalationRepository
	uploads     port.UploadRepository
	users       port.UserRepository
}

func NewEscalationService(escalations port.EscalationRepository, uploads port.UploadRepository, users port.UserRepository) *EscalationService {
	return &EscalationService{escalations: escalations, uploads: uploads, users: users}
}

// Create files a pending escalation for one of the patient's own uploads.
func (s *EscalationService) Create(ctx context.Context, patient *entity.User, in EscalationInput) (*entity.Escalation, error) {
	image, err := s.uploads.Get(ctx, in.ImageID)
	if errors.Is(err, entity.ErrNotFound) {
		return nil, fmt.Errorf("%w: image %d does not exist", entity.ErrInvalid, in.ImageID)
	}
	if err != nil {
		return nil, err
	}

	escalation, err := entity.NewEscalation(patient, image, in.Reason, in.ContactNumber)
	if err != nil {
		return nil, err
	}
	if err := s.escalations.Create(ctx, escalation); err != nil {
		return nil, err
	}
	return escalation, nil
}

// List shows patients their own escalations and reviewers all of them.
func (s *EscalationService) List(ctx context.Context, viewer *entity.User) ([]entity.Escalation, error) {
	if viewer.Role.CanReview() {
		return s.escalations.List(ctx, 0)
	}
	return s.escalations.List(ctx, viewer.ID)
}

func (s *EscalationService) Get(ctx context.Context, viewer *entity.User, id int64) (*EscalationDetail, error) {
	escalation, err := s.escalations.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if escalation.PatientID != viewer.ID && !viewer.Role.CanReview() {
		return nil, entity.ErrForbidden
	}

	patient, err := s.users.GetByID(ctx, escalation.PatientID)
	if err != nil {
		return nil, fmt.Errorf("loading patient: %w", err)
	}
	image, err := s.uploads.Get(ctx, escalation.ImageID)
	if err != nil {
		return nil, fmt.Errorf("loading image: %w", err)
	}
	return &EscalationDetail{Escalation: *escalation, Patient: patient, Image: image}, nil
}

// UpdateStatus moves an escalation along its workflow. Only doctors and
// admins may do this.
func (s *EscalationService) UpdateStatus(ctx context.Context, reviewer *entity.User, id int64, status entity.EscalationStatus) (*entity.Escalation, error) {
	if !reviewer.Role.CanReview() {
		return nil, fmt.Errorf("%w: only doctors and admins can review escalations", entity.ErrForbidden)
	}

	escalation, err := s.escalations.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	current := escalation.Status
	if err := escalation.Transition(status); err != nil {
		return nil, err
	}
	// another reviewer may have moved it since Get
	if err := s.escalations.UpdateStatus(ctx, id, current, escalation.Status); err != nil {
		return nil, err
	}
	return escalation, nil
}
