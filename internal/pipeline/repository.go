package pipeline

import (
	"context"

	"gorm.io/gorm"

	"github.com/talkincode/chatgate/internal/domain"
)

// MessageRepository handles database operations for chat messages.
type MessageRepository interface {
	// Create inserts a new message row
	Create(ctx context.Context, m *domain.ChatMessage) error

	// History retrieves a conversation's messages oldest-first, optionally
	// narrowed to one session (sessionID 0 means any)
	History(ctx context.Context, conversationID string, sessionID int64) ([]*domain.ChatMessage, error)

	// List retrieves messages with pagination, newest-first
	List(ctx context.Context, filter map[string]interface{}, page, pageSize int) ([]*domain.ChatMessage, int64, error)
}

// ContactRepository handles database operations for contacts.
type ContactRepository interface {
	// Upsert creates the contact or refreshes its profile fields
	Upsert(ctx context.Context, c *domain.ChatContact) error

	// GetByRemoteAddress retrieves one contact
	GetByRemoteAddress(ctx context.Context, addr string) (*domain.ChatContact, error)

	// List retrieves contacts with pagination
	List(ctx context.Context, filter map[string]interface{}, page, pageSize int) ([]*domain.ChatContact, int64, error)

	// SetAgentMode updates the agent state and its derived status
	SetAgentMode(ctx context.Context, addr, state string) error
}

// SessionFinder is the narrow session lookup the pipeline needs for
// outgoing-send validation.
type SessionFinder interface {
	GetByID(ctx context.Context, id int64) (*domain.ChatSession, error)
}

// GormMessageRepository is the GORM implementation of MessageRepository
type GormMessageRepository struct {
	db *gorm.DB
}

func NewGormMessageRepository(db *gorm.DB) *GormMessageRepository {
	return &GormMessageRepository{db: db}
}

func (r *GormMessageRepository) Create(ctx context.Context, m *domain.ChatMessage) error {
	return r.db.WithContext(ctx).Create(m).Error
}

func (r *GormMessageRepository) History(ctx context.Context, conversationID string, sessionID int64) ([]*domain.ChatMessage, error) {
	var msgs []*domain.ChatMessage
	query := r.db.WithContext(ctx).Where("conversation_id = ?", conversationID)
	if sessionID != 0 {
		query = query.Where("session_id = ?", sessionID)
	}
	err := query.Order("timestamp ASC, id ASC").Find(&msgs).Error
	return msgs, err
}

func (r *GormMessageRepository) List(ctx context.Context, filter map[string]interface{}, page, pageSize int) ([]*domain.ChatMessage, int64, error) {
	var msgs []*domain.ChatMessage
	var total int64

	query := r.db.WithContext(ctx)
	for key, value := range filter {
		if value != nil && value != "" {
			query = query.Where(key+" = ?", value)
		}
	}

	if err := query.Model(&domain.ChatMessage{}).Count(&total).Error; err != nil {
		return nil, 0, err
	}

	offset := (page - 1) * pageSize
	err := query.
		Order("timestamp DESC").
		Offset(offset).
		Limit(pageSize).
		Find(&msgs).Error
	return msgs, total, err
}

// GormContactRepository is the GORM implementation of ContactRepository
type GormContactRepository struct {
	db *gorm.DB
}

func NewGormContactRepository(db *gorm.DB) *GormContactRepository {
	return &GormContactRepository{db: db}
}

func (r *GormContactRepository) Upsert(ctx context.Context, c *domain.ChatContact) error {
	var existing domain.ChatContact
	err := r.db.WithContext(ctx).
		Where("remote_address = ?", c.RemoteAddress).
		First(&existing).Error
	if err == gorm.ErrRecordNotFound {
		return r.db.WithContext(ctx).Create(c).Error
	}
	if err != nil {
		return err
	}

	updates := map[string]interface{}{}
	if c.DisplayName != "" {
		updates["display_name"] = c.DisplayName
	}
	if c.AvatarURL != "" {
		updates["avatar_url"] = c.AvatarURL
	}
	if len(updates) == 0 {
		return nil
	}
	return r.db.WithContext(ctx).
		Model(&domain.ChatContact{}).
		Where("remote_address = ?", c.RemoteAddress).
		Updates(updates).Error
}

func (r *GormContactRepository) GetByRemoteAddress(ctx context.Context, addr string) (*domain.ChatContact, error) {
	var c domain.ChatContact
	err := r.db.WithContext(ctx).Where("remote_address = ?", addr).First(&c).Error
	return &c, err
}

func (r *GormContactRepository) List(ctx context.Context, filter map[string]interface{}, page, pageSize int) ([]*domain.ChatContact, int64, error) {
	var contacts []*domain.ChatContact
	var total int64

	query := r.db.WithContext(ctx)
	for key, value := range filter {
		if value != nil && value != "" {
			query = query.Where(key+" = ?", value)
		}
	}

	if err := query.Model(&domain.ChatContact{}).Count(&total).Error; err != nil {
		return nil, 0, err
	}

	offset := (page - 1) * pageSize
	err := query.
		Order("updated_at DESC").
		Offset(offset).
		Limit(pageSize).
		Find(&contacts).Error
	return contacts, total, err
}

func (r *GormContactRepository) SetAgentMode(ctx context.Context, addr, state string) error {
	return r.db.WithContext(ctx).
		Model(&domain.ChatContact{}).
		Where("remote_address = ?", addr).
		Updates(map[string]interface{}{
			"agent_state":  state,
			"agent_status": domain.DeriveAgentStatus(state),
		}).Error
}
