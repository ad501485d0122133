// Package store is the persistence collaborator for the voicescribe core:
// durable user quota rows plus append-only usage and payment records.
//
// Balance mutations go through UpdateUser, which applies the caller's
// mutation as an atomic single-row read-modify-write at the storage layer.
// Multiple process instances may share the database, so the guarantee is a
// conditional update, not an in-process lock.
package store

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// ErrConcurrentUpdate is returned when a conditional user update keeps
// losing against concurrent writers.
var ErrConcurrentUpdate = errors.New("store: user row changed concurrently")

// BaseModel contains common fields for all records.
type BaseModel struct {
	ID        uuid.UUID `gorm:"type:uuid;primary_key"`
	CreatedAt time.Time `gorm:"autoCreateTime"`
	UpdatedAt time.Time `gorm:"autoUpdateTime"`
}

// BeforeCreate generates a UUID if not already set.
func (b *BaseModel) BeforeCreate(_ *gorm.DB) error {
	if b.ID == uuid.Nil {
		b.ID = uuid.New()
	}
	return nil
}

// User is a per-user quota row. The identity is an opaque hash of the
// submitter's platform identity; the raw identity is never stored.
type User struct {
	BaseModel
	HashedUserID     string `gorm:"size:255;uniqueIndex"`
	FreeSeconds      int
	PurchasedSeconds int
	LastFreeResetAt  time.Time
	WarnedAt         *time.Time
}

// UsageRecord is an append-only log entry for one submission outcome.
// ProcessingTime is -1 when the job failed before a billable outcome.
type UsageRecord struct {
	BaseModel
	UserID         uuid.UUID `gorm:"type:uuid;index"`
	AudioDuration  int
	ProcessingTime float64
}

// PaymentRecord is an append-only log entry for one confirmed payment.
type PaymentRecord struct {
	BaseModel
	UserID    uuid.UUID `gorm:"type:uuid;index"`
	PaymentID string    `gorm:"size:255"`
	Units     int
}

// Store is the persistence interface the quota ledger consumes.
type Store interface {
	// GetOrCreateUser fetches the user row by identity hash, creating it
	// with the default free allowance on first contact.
	GetOrCreateUser(ctx context.Context, hash string, defaultFreeSeconds int) (*User, error)
	// UpdateUser applies mutate to the user row as an atomic single-row
	// read-modify-write and returns the updated row. An error returned by
	// mutate aborts the update and is returned unchanged.
	UpdateUser(ctx context.Context, hash string, mutate func(*User) error) (*User, error)
	// AppendUsage appends a usage record. Records are never mutated.
	AppendUsage(ctx context.Context, rec *UsageRecord) error
	// AppendPayment appends a payment record. Records are never mutated.
	AppendPayment(ctx context.Context, rec *PaymentRecord) error
}
