package history

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"chat-secure-circle/domain/persistence"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// ErrInvalidMessage wraps every validation failure.
var ErrInvalidMessage = errors.New("invalid message")

const (
	maxContentLength = 50000
	maxBatchSize     = 50
)

// Service stores and lists the messages a user exchanged with the assistant.
// It is independent of the chat proxy, which never reads or writes history.
type Service struct {
	repo persistence.MessageRepository
	tx   persistence.TransactionManager
}

func NewService(repo persistence.MessageRepository, tx persistence.TransactionManager) *Service {
	return &Service{repo: repo, tx: tx}
}

// List returns a user's messages oldest first. A positive limit keeps only the
// most recent ones; otherwise the whole history is returned.
func (s *Service) List(ctx context.Context, userID uuid.UUID, limit int) ([]*persistence.ChatMessage, error) {
	if userID == uuid.Nil {
		return nil, fmt.Errorf("%w: user id is required", ErrInvalidMessage)
	}
	if limit < 0 {
		limit = 0
	}
	return s.repo.FindByUser(ctx, userID, limit)
}

// Save validates and stores one message.
func (s *Service) Save(ctx context.Context, message *persistence.ChatMessage) error {
	if err := validate(message); err != nil {
		return err
	}
	if err := s.repo.Create(ctx, message); err != nil {
		return err
	}
	logrus.WithFields(logrus.Fields{
		"message_id": message.ID,
		"user_id":    message.UserID,
		"is_user":    message.IsUser,
		"has_image":  message.HasImage(),
	}).Debug("Stored chat message")
	return nil
}

// SaveAll stores messages atomically, e.g. a user prompt with the assistant reply.
func (s *Service) SaveAll(ctx context.Context, messages []*persistence.ChatMessage) error {
	if len(messages) == 0 {
		return fmt.Errorf("%w: no messages", ErrInvalidMessage)
	}
	if len(messages) > maxBatchSize {
		return fmt.Errorf("%w: too many messages: %d (max %d)", ErrInvalidMessage, len(messages), maxBatchSize)
	}
	for i, message := range messages {
		if err := validate(message); err != nil {
			return fmt.Errorf("message %d: %w", i, err)
		}
	}

	store := func(ctx context.Context) error {
		for _, message := range messages {
			if err := s.repo.Create(ctx, message); err != nil {
				return err
			}
		}
		return nil
	}
	if s.tx == nil {
		return store(ctx)
	}
	return s.tx.WithTransaction(ctx, store)
}

// Delete removes a message by ID.
func (s *Service) Delete(ctx context.Context, id uuid.UUID) error {
	return s.repo.Delete(ctx, id)
}

// validate mirrors the client send guard: a user message needs text or an image.
// Assistant replies may be empty.
func validate(message *persistence.ChatMessage) error {
	if message == nil {
		return fmt.Errorf("%w: message is required", ErrInvalidMessage)
	}
	if message.UserID == uuid.Nil {
		return fmt.Errorf("%w: user_id is required", ErrInvalidMessage)
	}
	if len(message.Content) > maxContentLength {
		return fmt.Errorf("%w: content too long (%d chars, max %d)", ErrInvalidMessage, len(message.Content), maxContentLength)
	}
	if message.IsUser && strings.TrimSpace(message.Content) == "" && !message.HasImage() {
		return fmt.Errorf("%w: content or image_url is required", ErrInvalidMessage)
	}
	return nil
}
