package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/kbukum/voicescribe/logger"
)

// casAttempts bounds the conditional-update retry loop. Contention on a
// single user row is rare (one submitter), so losing this many times in a
// row indicates something is wrong.
const casAttempts = 5

// GormStore implements Store on a GORM-managed database.
type GormStore struct {
	db  *gorm.DB
	log *logger.Logger
}

// Open opens a sqlite database at dsn and migrates the schema.
func Open(dsn string, log *logger.Logger) (*GormStore, error) {
	return New(sqlite.Open(dsn), log)
}

// New creates a GormStore on the given dialector and migrates the schema.
func New(dialector gorm.Dialector, log *logger.Logger) (*GormStore, error) {
	db, err := gorm.Open(dialector, &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("store: open database: %w", err)
	}
	if err := db.AutoMigrate(&User{}, &UsageRecord{}, &PaymentRecord{}); err != nil {
		return nil, fmt.Errorf("store: migrate schema: %w", err)
	}
	if log == nil {
		log = logger.NewDefault("voicescribe")
	}
	return &GormStore{db: db, log: log.WithComponent("store")}, nil
}

// GetOrCreateUser fetches or lazily creates the user row.
func (s *GormStore) GetOrCreateUser(ctx context.Context, hash string, defaultFreeSeconds int) (*User, error) {
	var user User
	err := s.db.WithContext(ctx).
		Where(&User{HashedUserID: hash}).
		Attrs(&User{
			FreeSeconds:     defaultFreeSeconds,
			LastFreeResetAt: time.Now().UTC(),
		}).
		FirstOrCreate(&user).Error
	if err != nil {
		return nil, fmt.Errorf("store: get or create user: %w", err)
	}
	return &user, nil
}

// UpdateUser applies mutate under a conditional update keyed on the row's
// updated_at stamp, retrying on concurrent modification.
func (s *GormStore) UpdateUser(ctx context.Context, hash string, mutate func(*User) error) (*User, error) {
	for attempt := 0; attempt < casAttempts; attempt++ {
		var user User
		if err := s.db.WithContext(ctx).Where("hashed_user_id = ?", hash).First(&user).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return nil, fmt.Errorf("store: user %q not found", hash)
			}
			return nil, fmt.Errorf("store: load user: %w", err)
		}

		seen := user.UpdatedAt
		if err := mutate(&user); err != nil {
			return nil, err
		}

		user.UpdatedAt = time.Now().UTC()
		res := s.db.WithContext(ctx).
			Model(&User{}).
			Where("hashed_user_id = ? AND updated_at = ?", hash, seen).
			Updates(map[string]any{
				"free_seconds":       user.FreeSeconds,
				"purchased_seconds":  user.PurchasedSeconds,
				"last_free_reset_at": user.LastFreeResetAt,
				"warned_at":          user.WarnedAt,
				"updated_at":         user.UpdatedAt,
			})
		if res.Error != nil {
			return nil, fmt.Errorf("store: update user: %w", res.Error)
		}
		if res.RowsAffected == 1 {
			return &user, nil
		}

		s.log.Debug("conditional user update lost, retrying", logger.Fields(
			logger.FieldUserHash, hash,
			logger.FieldAttempt, attempt+1,
		))
	}
	return nil, ErrConcurrentUpdate
}

// AppendUsage appends a usage record.
func (s *GormStore) AppendUsage(ctx context.Context, rec *UsageRecord) error {
	if err := s.db.WithContext(ctx).Create(rec).Error; err != nil {
		return fmt.Errorf("store: append usage record: %w", err)
	}
	return nil
}

// AppendPayment appends a payment record.
func (s *GormStore) AppendPayment(ctx context.Context, rec *PaymentRecord) error {
	if err := s.db.WithContext(ctx).Create(rec).Error; err != nil {
		return fmt.Errorf("store: append payment record: %w", err)
	}
	return nil
}
