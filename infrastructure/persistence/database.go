package persistence

import (
	"context"
	"fmt"
	"time"

	"chat-secure-circle/domain/persistence"

	"github.com/sirupsen/logrus"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

const (
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"
)

// DatabaseManager implements the persistence.DatabaseManager interface
type DatabaseManager struct {
	driver   string
	db       *gorm.DB
	messages persistence.MessageRepository
}

// NewDatabaseManager creates a new database manager for driver ("postgres" or "sqlite")
func NewDatabaseManager(driver string) *DatabaseManager {
	if driver == "" {
		driver = DriverPostgres
	}
	return &DatabaseManager{driver: driver}
}

func (dm *DatabaseManager) dialector(dsn string) (gorm.Dialector, error) {
	switch dm.driver {
	case DriverPostgres:
		return postgres.Open(dsn), nil
	case DriverSQLite:
		return sqlite.Open(dsn), nil
	default:
		return nil, fmt.Errorf("unsupported database driver %q", dm.driver)
	}
}

// Connect establishes database connection
func (dm *DatabaseManager) Connect(ctx context.Context, dsn string) error {
	logrus.WithField("driver", dm.driver).Info("Connecting to database...")

	dialector, err := dm.dialector(dsn)
	if err != nil {
		return err
	}

	// Configure GORM logger
	gormLogger := logger.New(
		logrus.StandardLogger(),
		logger.Config{
			SlowThreshold:             200 * time.Millisecond,
			LogLevel:                  logger.Warn,
			IgnoreRecordNotFoundError: true,
			Colorful:                  false,
		},
	)

	db, err := gorm.Open(dialector, &gorm.Config{
		Logger:         gormLogger,
		TranslateError: true,
		NowFunc: func() time.Time {
			return time.Now().UTC()
		},
	})
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}

	// Get underlying SQL DB for connection pool configuration
	sqlDB, err := db.DB()
	if err != nil {
		return fmt.Errorf("failed to get underlying SQL DB: %w", err)
	}

	if dm.driver == DriverSQLite {
		// every sqlite connection to :memory: is its own database
		sqlDB.SetMaxOpenConns(1)
	} else {
		sqlDB.SetMaxIdleConns(10)
		sqlDB.SetMaxOpenConns(50)
		sqlDB.SetConnMaxLifetime(time.Hour)
	}

	// Test connection
	if err := sqlDB.PingContext(ctx); err != nil {
		return fmt.Errorf("failed to ping database: %w", err)
	}

	dm.db = db
	dm.messages = NewMessageRepository(db)

	logrus.WithField("driver", dm.driver).Info("Successfully connected to database")
	return nil
}

// Close closes the database connection
func (dm *DatabaseManager) Close() error {
	if dm.db == nil {
		return nil
	}

	sqlDB, err := dm.db.DB()
	if err != nil {
		return fmt.Errorf("failed to get underlying SQL DB for close: %w", err)
	}

	if err := sqlDB.Close(); err != nil {
		return fmt.Errorf("failed to close database connection: %w", err)
	}

	logrus.Info("Database connection closed successfully")
	return nil
}

// Migrate creates the chat_messages table and its indexes
func (dm *DatabaseManager) Migrate() error {
	if dm.db == nil {
		return fmt.Errorf("database connection not established")
	}

	logrus.Info("Running database migrations...")

	if err := dm.db.AutoMigrate(&persistence.ChatMessage{}); err != nil {
		return fmt.Errorf("failed to migrate chat_messages: %w", err)
	}

	logrus.Info("Database migrations completed successfully")
	return nil
}

// Health checks database connectivity
func (dm *DatabaseManager) Health(ctx context.Context) error {
	if dm.db == nil {
		return fmt.Errorf("database connection not established")
	}

	sqlDB, err := dm.db.DB()
	if err != nil {
		return fmt.Errorf("failed to get underlying SQL DB: %w", err)
	}

	if err := sqlDB.PingContext(ctx); err != nil {
		return fmt.Errorf("database ping failed: %w", err)
	}

	return nil
}

// Messages returns the chat message repository
func (dm *DatabaseManager) Messages() persistence.MessageRepository {
	return dm.messages
}

// GetDB returns the underlying GORM database instance
func (dm *DatabaseManager) GetDB() *gorm.DB {
	return dm.db
}

// WithTransaction executes a function within a database transaction
func (dm *DatabaseManager) WithTransaction(ctx context.Context, fn func(ctx context.Context) error) error {
	if dm.db == nil {
		return fmt.Errorf("database connection not established")
	}

	tx := dm.db.WithContext(ctx).Begin()
	if tx.Error != nil {
		return fmt.Errorf("failed to begin transaction: %w", tx.Error)
	}

	defer func() {
		if r := recover(); r != nil {
			tx.Rollback()
			panic(r)
		}
	}()

	txCtx := context.WithValue(ctx, txKey{}, tx)

	if err := fn(txCtx); err != nil {
		if rbErr := tx.Rollback().Error; rbErr != nil {
			logrus.WithError(rbErr).Error("Failed to rollback transaction")
		}
		return err
	}

	if err := tx.Commit().Error; err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}

	return nil
}
