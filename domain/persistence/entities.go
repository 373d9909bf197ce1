package persistence

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

const (
	SenderUser      = "You"
	SenderAssistant = "Gemini AI"
)

// ChatMessage is one stored message of a user's conversation with the assistant
type ChatMessage struct {
	ID        uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	UserID    uuid.UUID `gorm:"type:uuid;not null;index:idx_chat_messages_user_created,priority:1" json:"user_id"`
	Content   string    `gorm:"type:text;not null;default:''" json:"content"`
	ImageURL  *string   `gorm:"type:text" json:"image_url,omitempty"`
	IsUser    bool      `gorm:"not null;default:false" json:"is_user"`
	CreatedAt time.Time `gorm:"autoCreateTime;index:idx_chat_messages_user_created,priority:2" json:"created_at"`
}

// BeforeCreate hook for ChatMessage
func (m *ChatMessage) BeforeCreate(tx *gorm.DB) error {
	if m.ID == uuid.Nil {
		m.ID = uuid.New()
	}
	return nil
}

// TableName returns the table name for ChatMessage
func (ChatMessage) TableName() string {
	return "chat_messages"
}

// Sender is the display name of the message author.
func (m *ChatMessage) Sender() string {
	if m.IsUser {
		return SenderUser
	}
	return SenderAssistant
}

// HasImage reports whether the message references a stored image.
func (m *ChatMessage) HasImage() bool {
	return m.ImageURL != nil && *m.ImageURL != ""
}
