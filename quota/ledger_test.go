package quota

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/kbukum/voicescribe/store"
)

// memStore is a single-user in-memory Store for ledger tests. Its clock is
// injectable so rows created by lazy GetOrCreateUser carry reset stamps on
// the same timeline as the ledger under test.
type memStore struct {
	users    map[string]*store.User
	usage    []store.UsageRecord
	payments []store.PaymentRecord
	failWith error
	now      func() time.Time
}

func newMemStore() *memStore {
	return &memStore{users: make(map[string]*store.User), now: time.Now}
}

func (m *memStore) GetOrCreateUser(_ context.Context, hash string, defaultFree int) (*store.User, error) {
	if m.failWith != nil {
		return nil, m.failWith
	}
	if u, ok := m.users[hash]; ok {
		copied := *u
		return &copied, nil
	}
	u := &store.User{
		BaseModel:       store.BaseModel{ID: uuid.New()},
		HashedUserID:    hash,
		FreeSeconds:     defaultFree,
		LastFreeResetAt: m.now().UTC(),
	}
	m.users[hash] = u
	copied := *u
	return &copied, nil
}

func (m *memStore) UpdateUser(_ context.Context, hash string, mutate func(*store.User) error) (*store.User, error) {
	if m.failWith != nil {
		return nil, m.failWith
	}
	u, ok := m.users[hash]
	if !ok {
		return nil, errors.New("user not found")
	}
	copied := *u
	if err := mutate(&copied); err != nil {
		return nil, err
	}
	m.users[hash] = &copied
	result := copied
	return &result, nil
}

func (m *memStore) AppendUsage(_ context.Context, rec *store.UsageRecord) error {
	if m.failWith != nil {
		return m.failWith
	}
	m.usage = append(m.usage, *rec)
	return nil
}

func (m *memStore) AppendPayment(_ context.Context, rec *store.PaymentRecord) error {
	if m.failWith != nil {
		return m.failWith
	}
	m.payments = append(m.payments, *rec)
	return nil
}

func fixedClock(t time.Time) func() time.Time {
	return func() time.Time { return t }
}

func testLedger(st store.Store, cfg Config, now time.Time) *Ledger {
	return NewLedger(st, cfg, WithClock(fixedClock(now)))
}

func TestAdmitCreatesUserWithDefaultAllowance(t *testing.T) {
	st := newMemStore()
	l := testLedger(st, Config{FreeAllowanceSeconds: 1800}, time.Now())

	user, outcome, err := l.Admit(context.Background(), "hash-1", 60)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if outcome != Approved {
		t.Errorf("expected Approved, got %q", outcome)
	}
	if user.FreeSeconds != 1800 {
		t.Errorf("expected lazy creation with 1800 free seconds, got %d", user.FreeSeconds)
	}
}

func TestAdmitExceededDoesNotDebit(t *testing.T) {
	st := newMemStore()
	now := time.Now()
	l := testLedger(st, Config{FreeAllowanceSeconds: 100}, now)

	user, outcome, err := l.Admit(context.Background(), "hash-1", 500)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if outcome != Exceeded {
		t.Errorf("expected Exceeded, got %q", outcome)
	}
	if user.FreeSeconds != 100 {
		t.Errorf("admission must not debit, got %d", user.FreeSeconds)
	}
	if len(st.usage) != 0 {
		t.Errorf("admission rejection must not write usage records, got %d", len(st.usage))
	}
}

func TestAdmitWarningFiresOncePerWindow(t *testing.T) {
	st := newMemStore()
	now := time.Now()
	l := testLedger(st, Config{
		FreeAllowanceSeconds:    250,
		WarningThresholdSeconds: 300,
	}, now)

	user, outcome, err := l.Admit(context.Background(), "hash-1", 60)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if outcome != ApprovedWithWarning {
		t.Fatalf("expected ApprovedWithWarning, got %q", outcome)
	}
	if user.WarnedAt == nil {
		t.Fatal("expected warned_at stamped")
	}

	_, outcome, err = l.Admit(context.Background(), "hash-1", 60)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if outcome != AlreadyWarned {
		t.Errorf("expected AlreadyWarned on second admit, got %q", outcome)
	}
}

func TestAdmitRolloverResetsOncePerWindow(t *testing.T) {
	st := newMemStore()
	start := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	st.now = fixedClock(start)
	cfg := Config{FreeAllowanceSeconds: 1800, WarningThresholdSeconds: 300}

	l := testLedger(st, cfg, start)
	if _, _, err := l.Admit(context.Background(), "hash-1", 60); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	// Drain the free balance and stamp a warning.
	warned := start
	if _, err := st.UpdateUser(context.Background(), "hash-1", func(u *store.User) error {
		u.FreeSeconds = 10
		u.WarnedAt = &warned
		return nil
	}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	// 31 days later the allowance is restored and the warning cleared.
	later := testLedger(st, cfg, start.Add(31*24*time.Hour))
	user, outcome, err := later.Admit(context.Background(), "hash-1", 60)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if user.FreeSeconds != 1800 {
		t.Errorf("expected rollover to restore allowance, got %d", user.FreeSeconds)
	}
	if user.WarnedAt != nil {
		t.Error("expected rollover to clear warned_at")
	}
	if outcome != Approved {
		t.Errorf("expected Approved after rollover, got %q", outcome)
	}

	// A second admit in the same window must not reset again.
	if err := later.Settle(context.Background(), user, 100, 2.0); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	user, _, err = later.Admit(context.Background(), "hash-1", 60)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if user.FreeSeconds != 1700 {
		t.Errorf("rollover must be idempotent within the window, got %d", user.FreeSeconds)
	}
}

func TestSettleDebitsFreeFirst(t *testing.T) {
	st := newMemStore()
	l := testLedger(st, Config{FreeAllowanceSeconds: 50}, time.Now())
	ctx := context.Background()

	user, _, err := l.Admit(ctx, "hash-1", 10)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, err := st.UpdateUser(ctx, "hash-1", func(u *store.User) error {
		u.PurchasedSeconds = 50
		return nil
	}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if err := l.Settle(ctx, user, 80, 4.2); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	final := st.users["hash-1"]
	if final.FreeSeconds != 0 {
		t.Errorf("expected free drained to 0, got %d", final.FreeSeconds)
	}
	if final.PurchasedSeconds != 20 {
		t.Errorf("expected purchased 20, got %d", final.PurchasedSeconds)
	}
	if len(st.usage) != 1 {
		t.Fatalf("expected one usage record, got %d", len(st.usage))
	}
	if st.usage[0].AudioDuration != 80 || st.usage[0].ProcessingTime != 4.2 {
		t.Errorf("unexpected usage record %+v", st.usage[0])
	}
}

func TestSettleWithinFreeLeavesPurchasedUntouched(t *testing.T) {
	st := newMemStore()
	l := testLedger(st, Config{FreeAllowanceSeconds: 100}, time.Now())
	ctx := context.Background()

	user, _, err := l.Admit(ctx, "hash-1", 10)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, err := st.UpdateUser(ctx, "hash-1", func(u *store.User) error {
		u.PurchasedSeconds = 40
		return nil
	}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if err := l.Settle(ctx, user, 60, 1.0); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	final := st.users["hash-1"]
	if final.FreeSeconds != 40 {
		t.Errorf("expected free 40, got %d", final.FreeSeconds)
	}
	if final.PurchasedSeconds != 40 {
		t.Errorf("purchased must be untouched, got %d", final.PurchasedSeconds)
	}
}

func TestBalancesNeverNegativeUnderHonoredAdmission(t *testing.T) {
	st := newMemStore()
	l := testLedger(st, Config{FreeAllowanceSeconds: 120, WarningThresholdSeconds: 30}, time.Now())
	ctx := context.Background()

	durations := []int{50, 40, 20, 60, 10}
	for _, d := range durations {
		user, outcome, err := l.Admit(ctx, "hash-1", d)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if outcome != Exceeded {
			if err := l.Settle(ctx, user, d, 1.0); err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
		}
		final := st.users["hash-1"]
		if final.FreeSeconds < 0 || final.PurchasedSeconds < 0 {
			t.Fatalf("negative balance after duration %d: %+v", d, final)
		}
	}
}

func TestRecordFailureLeavesBalances(t *testing.T) {
	st := newMemStore()
	l := testLedger(st, Config{FreeAllowanceSeconds: 100}, time.Now())
	ctx := context.Background()

	if _, _, err := l.Admit(ctx, "hash-1", 30); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := l.RecordFailure(ctx, "hash-1", 30); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if st.users["hash-1"].FreeSeconds != 100 {
		t.Errorf("failure must not debit, got %d", st.users["hash-1"].FreeSeconds)
	}
	if len(st.usage) != 1 {
		t.Fatalf("expected one usage record, got %d", len(st.usage))
	}
	if st.usage[0].ProcessingTime != FailedProcessingTime {
		t.Errorf("expected sentinel processing time, got %v", st.usage[0].ProcessingTime)
	}
	if st.usage[0].AudioDuration != 30 {
		t.Errorf("expected declared duration kept, got %d", st.usage[0].AudioDuration)
	}
}

func TestCredit(t *testing.T) {
	st := newMemStore()
	l := testLedger(st, Config{FreeAllowanceSeconds: 100, CreditRateSeconds: 60}, time.Now())
	ctx := context.Background()

	user, err := l.Credit(ctx, "hash-1", 25, "ch_123")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if user.PurchasedSeconds != 1500 {
		t.Errorf("expected 25*60=1500 purchased seconds, got %d", user.PurchasedSeconds)
	}
	if len(st.payments) != 1 {
		t.Fatalf("expected one payment record, got %d", len(st.payments))
	}
	if st.payments[0].PaymentID != "ch_123" || st.payments[0].Units != 25 {
		t.Errorf("unexpected payment record %+v", st.payments[0])
	}
}

func TestAdmitSurfacesStorageFailure(t *testing.T) {
	st := newMemStore()
	st.failWith = errors.New("connection refused")
	l := testLedger(st, Config{FreeAllowanceSeconds: 100}, time.Now())

	if _, _, err := l.Admit(context.Background(), "hash-1", 10); err == nil {
		t.Fatal("expected storage failure surfaced as error")
	}
}
