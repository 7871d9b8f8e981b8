package memory

import (
	"context"
	"slices"
	"sync"
	"time"

	"github.com/Brownie44l1/skinlens/internal/domain/entity"
	"github.com/Brownie44l1/skinlens/internal/domain/port"
)

// UploadRepository is an in-memory image upload store.
type UploadRepository struct {
	mu      sync.RWMutex
	nextID  int64
	uploads map[int64]*entity.ImageUpload
}

func NewUploadRepository() *UploadRepository {
	return &UploadRepository{uploads: make(map[int64]*entity.ImageUpload)}
}

func (r *UploadRepository) Create(ctx context.Context, upload *entity.ImageUpload) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.nextID++
	upload.ID = r.nextID
	upload.UploadedAt = time.Now().UTC()

	stored := *upload
	r.uploads[upload.ID] = &stored
	return nil
}

func (r *UploadRepository) Get(ctx context.Context, id int64) (*entity.ImageUpload, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	upload, exists := r.uploads[id]
	if !exists {
		return nil, entity.ErrNotFound
	}
	out := *upload
	return &out, nil
}

func (r *UploadRepository) ListByUser(ctx context.Context, userID int64) ([]entity.ImageUpload, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var uploads []entity.ImageUpload
	for _, upload := range r.uploads {
		if upload.UserID == userID {
			uploads = append(uploads, *upload)
		}
	}
	slices.SortFunc(uploads, func(a, b entity.ImageUpload) int {
		return int(b.ID - a.ID)
	})
	return uploads, nil
}

var _ port.UploadRepository = (*UploadRepository)(nil)
