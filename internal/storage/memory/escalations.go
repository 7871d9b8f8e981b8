package memory

import (
	"context"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/Brownie44l1/skinlens/internal/domain/entity"
	"github.com/Brownie44l1/skinlens/internal/domain/port"
)

// EscalationRepository is an in-memory escalation store.
type EscalationRepository struct {
	mu          sync.RWMutex
	nextID      int64
	escalations map[int64]*entity.Escalation
}

func NewEscalationRepository() *EscalationRepository {
	return &EscalationRepository{escalations: make(map[int64]*entity.Escalation)}
}

func (r *EscalationRepository) Create(ctx context.Context, escalation *entity.Escalation) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.nextID++
	escalation.ID = r.nextID
	escalation.SubmittedAt = time.Now().UTC()

	stored := *escalation
	r.escalations[escalation.ID] = &stored
	return nil
}

func (r *EscalationRepository) Get(ctx context.Context, id int64) (*entity.Escalation, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	escalation, exists := r.escalations[id]
	if !exists {
		return nil, entity.ErrNotFound
	}
	out := *escalation
	return &out, nil
}

func (r *EscalationRepository) List(ctx context.Context, patientID int64) ([]entity.Escalation, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var escalations []entity.Escalation
	for _, e := range r.escalations {
		if patientID == 0 || e.PatientID == patientID {
			escalations = append(escalations, *e)
		}
	}
	slices.SortFunc(escalations, func(a, b entity.Escalation) int {
		return int(b.ID - a.ID)
	})
	return escalations, nil
}

func (r *EscalationRepository) UpdateStatus(ctx context.Context, id int64, from, to entity.EscalationStatus) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	escalation, exists := r.escalations[id]
	if !exists {
		return entity.ErrNotFound
	}
	if escalation.Status != from {
		return fmt.Errorf("%w: escalation %d is no longer %s", entity.ErrConflict, id, from)
	}
	escalation.Status = to
	return nil
}

var _ port.EscalationRepository = (*EscalationRepository)(nil)
