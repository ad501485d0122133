package store

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/kbukum/voicescribe/logger"
)

func newTestStore(t *testing.T) *GormStore {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "test.db"), logger.NewDefault("test"))
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	return s
}

func TestGetOrCreateUserLazyDefaults(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	user, err := s.GetOrCreateUser(ctx, "hash-1", 1800)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if user.FreeSeconds != 1800 {
		t.Errorf("expected default free allowance 1800, got %d", user.FreeSeconds)
	}
	if user.PurchasedSeconds != 0 {
		t.Errorf("expected zero purchased seconds, got %d", user.PurchasedSeconds)
	}
	if user.WarnedAt != nil {
		t.Error("expected nil warned_at on creation")
	}

	// Second call returns the existing row, defaults not reapplied.
	if _, err := s.UpdateUser(ctx, "hash-1", func(u *User) error {
		u.FreeSeconds = 5
		return nil
	}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	again, err := s.GetOrCreateUser(ctx, "hash-1", 1800)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if again.FreeSeconds != 5 {
		t.Errorf("expected persisted balance 5, got %d", again.FreeSeconds)
	}
	if again.ID != user.ID {
		t.Error("expected the same row on second contact")
	}
}

func TestUpdateUserPersistsMutation(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	if _, err := s.GetOrCreateUser(ctx, "hash-2", 100); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	now := time.Now().UTC()
	updated, err := s.UpdateUser(ctx, "hash-2", func(u *User) error {
		u.FreeSeconds = 40
		u.PurchasedSeconds = 60
		u.WarnedAt = &now
		return nil
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if updated.FreeSeconds != 40 || updated.PurchasedSeconds != 60 {
		t.Errorf("unexpected balances: %+v", updated)
	}

	reloaded, _ := s.GetOrCreateUser(ctx, "hash-2", 100)
	if reloaded.FreeSeconds != 40 || reloaded.PurchasedSeconds != 60 {
		t.Errorf("mutation not persisted: %+v", reloaded)
	}
	if reloaded.WarnedAt == nil {
		t.Error("expected warned_at persisted")
	}
}

func TestUpdateUserMutateErrorAborts(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	if _, err := s.GetOrCreateUser(ctx, "hash-3", 100); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	wantErr := context.DeadlineExceeded
	_, err := s.UpdateUser(ctx, "hash-3", func(u *User) error {
		u.FreeSeconds = 0
		return wantErr
	})
	if err != wantErr {
		t.Fatalf("expected mutate error returned unchanged, got %v", err)
	}

	reloaded, _ := s.GetOrCreateUser(ctx, "hash-3", 100)
	if reloaded.FreeSeconds != 100 {
		t.Errorf("aborted update must not persist, got %d", reloaded.FreeSeconds)
	}
}

func TestUpdateUserRetriesOnConflictingWrite(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	if _, err := s.GetOrCreateUser(ctx, "hash-5", 100); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	// mutate runs between the read and the conditional update; a write
	// issued from inside it stamps the row and invalidates the outer
	// update's snapshot, forcing the retry branch.
	attempts := 0
	updated, err := s.UpdateUser(ctx, "hash-5", func(u *User) error {
		attempts++
		if attempts == 1 {
			if _, err := s.UpdateUser(ctx, "hash-5", func(inner *User) error {
				inner.PurchasedSeconds += 30
				return nil
			}); err != nil {
				return err
			}
		}
		u.FreeSeconds -= 20
		return nil
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if attempts != 2 {
		t.Errorf("expected a second attempt after losing the conditional update, got %d", attempts)
	}

	// Neither write may be lost: the losing attempt's debit must have been
	// reapplied to the row the conflicting write produced.
	if updated.FreeSeconds != 80 {
		t.Errorf("expected free 80, got %d", updated.FreeSeconds)
	}
	if updated.PurchasedSeconds != 30 {
		t.Errorf("expected the conflicting credit kept, got %d", updated.PurchasedSeconds)
	}
	reloaded, _ := s.GetOrCreateUser(ctx, "hash-5", 100)
	if reloaded.FreeSeconds != 80 || reloaded.PurchasedSeconds != 30 {
		t.Errorf("persisted row lost a write: %+v", reloaded)
	}
}

func TestUpdateUserGivesUpUnderSustainedContention(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	if _, err := s.GetOrCreateUser(ctx, "hash-6", 100); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	// Every attempt loses against a fresh conflicting write.
	attempts := 0
	_, err := s.UpdateUser(ctx, "hash-6", func(u *User) error {
		attempts++
		if _, err := s.UpdateUser(ctx, "hash-6", func(inner *User) error {
			inner.PurchasedSeconds++
			return nil
		}); err != nil {
			return err
		}
		u.FreeSeconds -= 20
		return nil
	})
	if !errors.Is(err, ErrConcurrentUpdate) {
		t.Fatalf("expected ErrConcurrentUpdate, got %v", err)
	}
	if attempts != casAttempts {
		t.Errorf("expected %d attempts before giving up, got %d", casAttempts, attempts)
	}

	// The outer debit never landed; only the conflicting credits did.
	reloaded, _ := s.GetOrCreateUser(ctx, "hash-6", 100)
	if reloaded.FreeSeconds != 100 {
		t.Errorf("losing update must not debit, got %d", reloaded.FreeSeconds)
	}
	if reloaded.PurchasedSeconds != casAttempts {
		t.Errorf("expected %d conflicting credits, got %d", casAttempts, reloaded.PurchasedSeconds)
	}
}

func TestUpdateUserUnknownUser(t *testing.T) {
	s := newTestStore(t)
	if _, err := s.UpdateUser(context.Background(), "nope", func(*User) error { return nil }); err == nil {
		t.Fatal("expected error for unknown user")
	}
}

func TestAppendUsageAndPayment(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	user, err := s.GetOrCreateUser(ctx, "hash-4", 100)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if err := s.AppendUsage(ctx, &UsageRecord{UserID: user.ID, AudioDuration: 60, ProcessingTime: 3.5}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := s.AppendUsage(ctx, &UsageRecord{UserID: user.ID, AudioDuration: 60, ProcessingTime: -1}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := s.AppendPayment(ctx, &PaymentRecord{UserID: user.ID, PaymentID: "ch_123", Units: 50}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	var usageCount, paymentCount int64
	s.db.Model(&UsageRecord{}).Where("user_id = ?", user.ID).Count(&usageCount)
	s.db.Model(&PaymentRecord{}).Where("user_id = ?", user.ID).Count(&paymentCount)
	if usageCount != 2 {
		t.Errorf("expected 2 usage records, got %d", usageCount)
	}
	if paymentCount != 1 {
		t.Errorf("expected 1 payment record, got %d", paymentCount)
	}
}
