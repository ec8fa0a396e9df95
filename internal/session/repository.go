package session

import (
	"context"

	"gorm.io/gorm"

	"github.com/talkincode/chatgate/internal/domain"
)

// Repository handles database operations for chat sessions.
type Repository interface {
	// Create inserts a new session row
	Create(ctx context.Context, s *domain.ChatSession) error

	// Update saves the full session record
	Update(ctx context.Context, s *domain.ChatSession) error

	// GetByID retrieves a session by ID
	GetByID(ctx context.Context, id int64) (*domain.ChatSession, error)

	// List retrieves sessions with pagination
	List(ctx context.Context, filter map[string]interface{}, page, pageSize int) ([]*domain.ChatSession, int64, error)

	// All retrieves every session, for reconcile sweeps
	All(ctx context.Context) ([]*domain.ChatSession, error)

	// UpdateStatus updates just the status column
	UpdateStatus(ctx context.Context, id int64, status string) error

	// Delete removes a session row
	Delete(ctx context.Context, id int64) error
}

// GormRepository is the GORM implementation of Repository
type GormRepository struct {
	db *gorm.DB
}

func NewGormRepository(db *gorm.DB) *GormRepository {
	return &GormRepository{db: db}
}

func (r *GormRepository) Create(ctx context.Context, s *domain.ChatSession) error {
	return r.db.WithContext(ctx).Create(s).Error
}

func (r *GormRepository) Update(ctx context.Context, s *domain.ChatSession) error {
	return r.db.WithContext(ctx).Save(s).Error
}

func (r *GormRepository) GetByID(ctx context.Context, id int64) (*domain.ChatSession, error) {
	var s domain.ChatSession
	err := r.db.WithContext(ctx).First(&s, id).Error
	return &s, err
}

func (r *GormRepository) List(ctx context.Context, filter map[string]interface{}, page, pageSize int) ([]*domain.ChatSession, int64, error) {
	var sessions []*domain.ChatSession
	var total int64

	query := r.db.WithContext(ctx)
	for key, value := range filter {
		if value != nil && value != "" {
			query = query.Where(key+" = ?", value)
		}
	}

	if err := query.Model(&domain.ChatSession{}).Count(&total).Error; err != nil {
		return nil, 0, err
	}

	offset := (page - 1) * pageSize
	err := query.
		Order("created_at DESC").
		Offset(offset).
		Limit(pageSize).
		Find(&sessions).Error
	return sessions, total, err
}

func (r *GormRepository) All(ctx context.Context) ([]*domain.ChatSession, error) {
	var sessions []*domain.ChatSession
	err := r.db.WithContext(ctx).Find(&sessions).Error
	return sessions, err
}

func (r *GormRepository) UpdateStatus(ctx context.Context, id int64, status string) error {
	return r.db.WithContext(ctx).
		Model(&domain.ChatSession{}).
		Where("id = ?", id).
		Update("status", status).Error
}

func (r *GormRepository) Delete(ctx context.Context, id int64) error {
	return r.db.WithContext(ctx).Delete(&domain.ChatSession{}, id).Error
}
