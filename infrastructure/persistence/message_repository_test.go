package persistence

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"chat-secure-circle/domain/persistence"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupTestDB(t *testing.T) *DatabaseManager {
	t.Helper()
	dm := NewDatabaseManager(DriverSQLite)
	require.NoError(t, dm.Connect(context.Background(), ":memory:"))
	require.NoError(t, dm.Migrate())
	t.Cleanup(func() { dm.Close() })
	return dm
}

func strPtr(s string) *string { return &s }

func TestNewDatabaseManager_DefaultDriver(t *testing.T) {
	dm := NewDatabaseManager("")
	assert.Equal(t, DriverPostgres, dm.driver)
}

func TestDatabaseManager_UnsupportedDriver(t *testing.T) {
	dm := NewDatabaseManager("oracle")
	err := dm.Connect(context.Background(), "whatever")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unsupported database driver")
}

func TestDatabaseManager_NotConnected(t *testing.T) {
	dm := NewDatabaseManager(DriverSQLite)

	assert.Error(t, dm.Migrate())
	assert.Error(t, dm.Health(context.Background()))
	assert.NoError(t, dm.Close())
	assert.Error(t, dm.WithTransaction(context.Background(), func(ctx context.Context) error { return nil }))
}

func TestDatabaseManager_Health(t *testing.T) {
	dm := setupTestDB(t)
	assert.NoError(t, dm.Health(context.Background()))
	assert.NotNil(t, dm.GetDB())
	assert.NotNil(t, dm.Messages())
}

func TestMessageRepository_CreateAndFind(t *testing.T) {
	dm := setupTestDB(t)
	repo := dm.Messages()
	ctx := context.Background()
	userID := uuid.New()

	message := &persistence.ChatMessage{
		UserID:   userID,
		Content:  "What is in this picture?",
		ImageURL: strPtr("chat_images/u1/abc"),
		IsUser:   true,
	}
	require.NoError(t, repo.Create(ctx, message))
	assert.NotEqual(t, uuid.Nil, message.ID)
	assert.False(t, message.CreatedAt.IsZero())

	found, err := repo.FindByID(ctx, message.ID)
	require.NoError(t, err)
	assert.Equal(t, message.Content, found.Content)
	assert.Equal(t, userID, found.UserID)
	require.NotNil(t, found.ImageURL)
	assert.Equal(t, "chat_images/u1/abc", *found.ImageURL)
	assert.True(t, found.IsUser)
}

func TestMessageRepository_CreateDuplicate(t *testing.T) {
	dm := setupTestDB(t)
	repo := dm.Messages()
	ctx := context.Background()

	id := uuid.New()
	require.NoError(t, repo.Create(ctx, &persistence.ChatMessage{ID: id, UserID: uuid.New(), Content: "a"}))

	err := repo.Create(ctx, &persistence.ChatMessage{ID: id, UserID: uuid.New(), Content: "b"})
	require.Error(t, err)
	assert.True(t, errors.Is(err, persistence.ErrDuplicate))
}

func TestMessageRepository_FindByID_NotFound(t *testing.T) {
	dm := setupTestDB(t)

	_, err := dm.Messages().FindByID(context.Background(), uuid.New())

	require.Error(t, err)
	assert.True(t, errors.Is(err, persistence.ErrNotFound))
}

func TestMessageRepository_FindByUser_Ordering(t *testing.T) {
	dm := setupTestDB(t)
	repo := dm.Messages()
	ctx := context.Background()
	userID := uuid.New()
	otherUser := uuid.New()
	base := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

	// inserted out of order on purpose
	require.NoError(t, repo.Create(ctx, &persistence.ChatMessage{UserID: userID, Content: "third", CreatedAt: base.Add(2 * time.Minute)}))
	require.NoError(t, repo.Create(ctx, &persistence.ChatMessage{UserID: userID, Content: "first", IsUser: true, CreatedAt: base}))
	require.NoError(t, repo.Create(ctx, &persistence.ChatMessage{UserID: userID, Content: "second", CreatedAt: base.Add(time.Minute)}))
	require.NoError(t, repo.Create(ctx, &persistence.ChatMessage{UserID: otherUser, Content: "other", CreatedAt: base}))

	messages, err := repo.FindByUser(ctx, userID, 0)
	require.NoError(t, err)
	require.Len(t, messages, 3)
	assert.Equal(t, "first", messages[0].Content)
	assert.Equal(t, "second", messages[1].Content)
	assert.Equal(t, "third", messages[2].Content)

	// a limit keeps the newest messages, still oldest first
	limited, err := repo.FindByUser(ctx, userID, 2)
	require.NoError(t, err)
	require.Len(t, limited, 2)
	assert.Equal(t, "second", limited[0].Content)
	assert.Equal(t, "third", limited[1].Content)

	none, err := repo.FindByUser(ctx, uuid.New(), 0)
	require.NoError(t, err)
	assert.NotNil(t, none)
	assert.Empty(t, none)
}

func TestMessageRepository_FindByUser_LongHistory(t *testing.T) {
	dm := setupTestDB(t)
	repo := dm.Messages()
	ctx := context.Background()
	userID := uuid.New()
	base := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

	for i := 0; i < 501; i++ {
		require.NoError(t, repo.Create(ctx, &persistence.ChatMessage{
			UserID:    userID,
			Content:   fmt.Sprintf("msg-%d", i),
			IsUser:    i%2 == 0,
			CreatedAt: base.Add(time.Duration(i) * time.Second),
		}))
	}

	all, err := repo.FindByUser(ctx, userID, 0)
	require.NoError(t, err)
	require.Len(t, all, 501)
	assert.Equal(t, "msg-0", all[0].Content)
	assert.Equal(t, "msg-500", all[500].Content)

	recent, err := repo.FindByUser(ctx, userID, 500)
	require.NoError(t, err)
	require.Len(t, recent, 500)
	assert.Equal(t, "msg-1", recent[0].Content)
	assert.Equal(t, "msg-500", recent[499].Content)
}

func TestMessageRepository_Update(t *testing.T) {
	dm := setupTestDB(t)
	repo := dm.Messages()
	ctx := context.Background()

	message := &persistence.ChatMessage{UserID: uuid.New(), Content: "draft", IsUser: true}
	require.NoError(t, repo.Create(ctx, message))

	message.Content = ""
	message.ImageURL = strPtr("chat_images/u/x")
	require.NoError(t, repo.Update(ctx, message))

	found, err := repo.FindByID(ctx, message.ID)
	require.NoError(t, err)
	assert.Equal(t, "", found.Content)
	require.NotNil(t, found.ImageURL)
	assert.Equal(t, "chat_images/u/x", *found.ImageURL)

	err = repo.Update(ctx, &persistence.ChatMessage{ID: uuid.New(), Content: "ghost"})
	assert.True(t, errors.Is(err, persistence.ErrNotFound))
}

func TestMessageRepository_Delete(t *testing.T) {
	dm := setupTestDB(t)
	repo := dm.Messages()
	ctx := context.Background()

	message := &persistence.ChatMessage{UserID: uuid.New(), Content: "bye"}
	require.NoError(t, repo.Create(ctx, message))

	require.NoError(t, repo.Delete(ctx, message.ID))
	_, err := repo.FindByID(ctx, message.ID)
	assert.True(t, errors.Is(err, persistence.ErrNotFound))

	err = repo.Delete(ctx, message.ID)
	assert.True(t, errors.Is(err, persistence.ErrNotFound))
}

func TestDatabaseManager_WithTransaction(t *testing.T) {
	dm := setupTestDB(t)
	repo := dm.Messages()
	ctx := context.Background()
	userID := uuid.New()

	t.Run("commit", func(t *testing.T) {
		err := dm.WithTransaction(ctx, func(txCtx context.Context) error {
			if err := repo.Create(txCtx, &persistence.ChatMessage{UserID: userID, Content: "q", IsUser: true}); err != nil {
				return err
			}
			return repo.Create(txCtx, &persistence.ChatMessage{UserID: userID, Content: "a"})
		})
		require.NoError(t, err)

		messages, err := repo.FindByUser(ctx, userID, 0)
		require.NoError(t, err)
		assert.Len(t, messages, 2)
	})

	t.Run("rollback", func(t *testing.T) {
		other := uuid.New()
		err := dm.WithTransaction(ctx, func(txCtx context.Context) error {
			if err := repo.Create(txCtx, &persistence.ChatMessage{UserID: other, Content: "q"}); err != nil {
				return err
			}
			return errors.New("boom")
		})
		require.EqualError(t, err, "boom")

		messages, err := repo.FindByUser(ctx, other, 0)
		require.NoError(t, err)
		assert.Empty(t, messages)
	})
}
