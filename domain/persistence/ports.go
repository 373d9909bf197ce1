package persistence

import (
	"context"
	"errors"

	"github.com/google/uuid"
)

var (
	ErrNotFound  = errors.New("record not found")
	ErrDuplicate = errors.New("record already exists")
)

// Repository defines the generic repository interface using Go generics
type Repository[T any] interface {
	Create(ctx context.Context, entity *T) error
	Update(ctx context.Context, entity *T) error
	FindByID(ctx context.Context, id uuid.UUID) (*T, error)
	Delete(ctx context.Context, id uuid.UUID) error
}

// MessageRepository defines operations specific to chat messages
type MessageRepository interface {
	Repository[ChatMessage]

	// FindByUser returns a user's messages oldest first. limit <= 0 means no limit.
	FindByUser(ctx context.Context, userID uuid.UUID, limit int) ([]*ChatMessage, error)
}

// DatabaseManager defines the interface for database management operations
type DatabaseManager interface {
	// Connect establishes database connection
	Connect(ctx context.Context, dsn string) error

	// Close closes the database connection
	Close() error

	// Migrate runs database migrations
	Migrate() error

	// Health checks database connectivity
	Health(ctx context.Context) error

	// Messages returns the chat message repository
	Messages() MessageRepository
}

// TransactionManager defines interface for database transactions
type TransactionManager interface {
	// WithTransaction executes a function within a database transaction
	WithTransaction(ctx context.Context, fn func(ctx context.Context) error) error
}
