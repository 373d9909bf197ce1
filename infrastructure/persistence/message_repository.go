package persistence

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"

	"chat-secure-circle/domain/persistence"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// MessageRepository implements persistence.MessageRepository
type MessageRepository struct {
	db *gorm.DB
}

// NewMessageRepository creates a new chat message repository
func NewMessageRepository(db *gorm.DB) persistence.MessageRepository {
	return &MessageRepository{db: db}
}

type txKey struct{}

// getDB returns the database instance, checking for transaction context
func (r *MessageRepository) getDB(ctx context.Context) *gorm.DB {
	if tx, ok := ctx.Value(txKey{}).(*gorm.DB); ok && tx != nil {
		return tx
	}
	return r.db.WithContext(ctx)
}

// Create stores a new chat message
func (r *MessageRepository) Create(ctx context.Context, entity *persistence.ChatMessage) error {
	db := r.getDB(ctx)
	if err := db.Create(entity).Error; err != nil {
		if isDuplicateKey(err) {
			return fmt.Errorf("chat message %s: %w", entity.ID, persistence.ErrDuplicate)
		}
		return fmt.Errorf("failed to create chat message: %w", err)
	}
	return nil
}

// Update saves an existing chat message
func (r *MessageRepository) Update(ctx context.Context, entity *persistence.ChatMessage) error {
	db := r.getDB(ctx)
	result := db.Model(entity).Select("content", "image_url", "is_user").Updates(entity)
	if result.Error != nil {
		return fmt.Errorf("failed to update chat message: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return fmt.Errorf("chat message %s: %w", entity.ID, persistence.ErrNotFound)
	}
	return nil
}

// FindByID finds a chat message by ID
func (r *MessageRepository) FindByID(ctx context.Context, id uuid.UUID) (*persistence.ChatMessage, error) {
	db := r.getDB(ctx)
	var message persistence.ChatMessage
	if err := db.First(&message, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("chat message %s: %w", id, persistence.ErrNotFound)
		}
		return nil, fmt.Errorf("failed to find chat message: %w", err)
	}
	return &message, nil
}

// FindByUser finds a user's chat messages in ascending creation order.
// With a limit, the most recent messages are kept.
func (r *MessageRepository) FindByUser(ctx context.Context, userID uuid.UUID, limit int) ([]*persistence.ChatMessage, error) {
	db := r.getDB(ctx)
	messages := []*persistence.ChatMessage{}

	if limit <= 0 {
		err := db.Where("user_id = ?", userID).Order("created_at ASC").Order("id ASC").Find(&messages).Error
		if err != nil {
			return nil, fmt.Errorf("failed to find chat messages for user: %w", err)
		}
		return messages, nil
	}

	err := db.Where("user_id = ?", userID).Order("created_at DESC").Order("id DESC").Limit(limit).Find(&messages).Error
	if err != nil {
		return nil, fmt.Errorf("failed to find chat messages for user: %w", err)
	}
	slices.Reverse(messages)
	return messages, nil
}

// Delete deletes a chat message
func (r *MessageRepository) Delete(ctx context.Context, id uuid.UUID) error {
	db := r.getDB(ctx)
	result := db.Delete(&persistence.ChatMessage{}, "id = ?", id)
	if result.Error != nil {
		return fmt.Errorf("failed to delete chat message: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return fmt.Errorf("chat message %s: %w", id, persistence.ErrNotFound)
	}
	return nil
}

// isDuplicateKey covers drivers that do not translate constraint errors.
func isDuplicateKey(err error) bool {
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	msg := err.Error()
	return strings.Contains(msg, "UNIQUE constraint failed") || strings.Contains(msg, "duplicate key value")
}
