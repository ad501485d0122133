// Package quota implements the admission check and time-balance ledger.
//
// Every submission is admitted against the user's remaining free plus
// purchased seconds before any work starts. Quota is only debited by
// Settle after a successful run; a rejected or failed job never touches
// balances. The once-per-window free reset and the warn stamp are side
// effects of Admit, applied inside the same atomic row update as the
// admission read.
package quota

import (
	"context"
	"fmt"
	"time"

	"github.com/kbukum/voicescribe/logger"
	"github.com/kbukum/voicescribe/store"
)

// Outcome is the result of an admission check.
type Outcome string

// Admission outcomes.
const (
	// Approved admits the job silently.
	Approved Outcome = "approved"
	// ApprovedWithWarning admits the job and asks the pipeline to warn the
	// user that the balance is running low. Stamped once per reset window.
	ApprovedWithWarning Outcome = "approved_with_warning"
	// AlreadyWarned admits the job silently; the low-balance warning was
	// already delivered this window.
	AlreadyWarned Outcome = "already_warned"
	// Exceeded rejects the job: the balance cannot cover the requested
	// duration.
	Exceeded Outcome = "exceeded"
)

// FailedProcessingTime marks a usage record for a job that failed before a
// billable outcome.
const FailedProcessingTime = -1

// Config holds ledger configuration.
type Config struct {
	// FreeAllowanceSeconds is the free balance granted on first contact
	// and restored by each rolling reset.
	FreeAllowanceSeconds int `yaml:"free_allowance_seconds" mapstructure:"free_allowance_seconds"`
	// WarningThresholdSeconds triggers the low-balance warning when the
	// total balance drops below it.
	WarningThresholdSeconds int `yaml:"warning_threshold_seconds" mapstructure:"warning_threshold_seconds"`
	// ResetInterval is the rolling window for the free allowance reset.
	ResetInterval time.Duration `yaml:"reset_interval" mapstructure:"reset_interval"`
	// CreditRateSeconds is the number of seconds granted per purchased unit.
	CreditRateSeconds int `yaml:"credit_rate_seconds" mapstructure:"credit_rate_seconds"`
}

// ApplyDefaults applies default values to ledger configuration.
func (c *Config) ApplyDefaults() {
	if c.FreeAllowanceSeconds == 0 {
		c.FreeAllowanceSeconds = 1800
	}
	if c.WarningThresholdSeconds == 0 {
		c.WarningThresholdSeconds = 300
	}
	if c.ResetInterval == 0 {
		c.ResetInterval = 30 * 24 * time.Hour
	}
	if c.CreditRateSeconds == 0 {
		c.CreditRateSeconds = 60
	}
}

// Ledger owns the per-user time-balance invariants.
type Ledger struct {
	store store.Store
	cfg   Config
	log   *logger.Logger
	now   func() time.Time
}

// Option configures a Ledger.
type Option func(*Ledger)

// WithLogger sets the ledger's logger.
func WithLogger(log *logger.Logger) Option {
	return func(l *Ledger) {
		l.log = log.WithComponent("quota")
	}
}

// WithClock substitutes the time source. Test use only.
func WithClock(now func() time.Time) Option {
	return func(l *Ledger) {
		l.now = now
	}
}

// NewLedger creates a Ledger on the given store.
func NewLedger(st store.Store, cfg Config, opts ...Option) *Ledger {
	cfg.ApplyDefaults()
	l := &Ledger{
		store: st,
		cfg:   cfg,
		now:   time.Now,
	}
	for _, o := range opts {
		o(l)
	}
	if l.log == nil {
		l.log = logger.NewDefault("voicescribe").WithComponent("quota")
	}
	return l
}

// Config returns the ledger's effective configuration.
func (l *Ledger) Config() Config { return l.cfg }

// Admit decides whether a job of requestedSeconds may run for the user.
// It lazily creates the user row, performs the once-per-window free reset,
// and stamps the low-balance warning — all inside one atomic row update.
// Quota is NOT debited here; only Settle debits.
func (l *Ledger) Admit(ctx context.Context, userHash string, requestedSeconds int) (*store.User, Outcome, error) {
	if _, err := l.store.GetOrCreateUser(ctx, userHash, l.cfg.FreeAllowanceSeconds); err != nil {
		return nil, "", fmt.Errorf("quota: admit: %w", err)
	}

	var outcome Outcome
	user, err := l.store.UpdateUser(ctx, userHash, func(u *store.User) error {
		now := l.now().UTC()
		if now.Sub(u.LastFreeResetAt) > l.cfg.ResetInterval {
			u.FreeSeconds = l.cfg.FreeAllowanceSeconds
			u.LastFreeResetAt = now
			u.WarnedAt = nil
		}

		total := u.FreeSeconds + u.PurchasedSeconds
		switch {
		case total < requestedSeconds:
			outcome = Exceeded
		case total < l.cfg.WarningThresholdSeconds:
			if u.WarnedAt != nil {
				outcome = AlreadyWarned
			} else {
				warned := now
				u.WarnedAt = &warned
				outcome = ApprovedWithWarning
			}
		default:
			outcome = Approved
		}
		return nil
	})
	if err != nil {
		return nil, "", fmt.Errorf("quota: admit: %w", err)
	}

	l.log.Debug("admission decided", logger.Fields(
		logger.FieldUserHash, userHash,
		logger.FieldOutcome, string(outcome),
		logger.FieldDuration, requestedSeconds,
	))
	return user, outcome, nil
}

// Settle debits a successful job's duration — free seconds first (floor 0),
// the remainder from purchased seconds — and appends the success usage
// record. A debit past the admitted balance is a logic-error invariant:
// it is logged loudly and still applied so the discrepancy stays visible.
func (l *Ledger) Settle(ctx context.Context, user *store.User, durationSeconds int, processingTime float64) error {
	_, err := l.store.UpdateUser(ctx, user.HashedUserID, func(u *store.User) error {
		if durationSeconds <= u.FreeSeconds {
			u.FreeSeconds -= durationSeconds
			return nil
		}
		fromPurchased := durationSeconds - u.FreeSeconds
		u.FreeSeconds = 0
		u.PurchasedSeconds -= fromPurchased
		if u.PurchasedSeconds < 0 {
			l.log.Error("settle debited past admitted balance", logger.Fields(
				logger.FieldUserHash, u.HashedUserID,
				logger.FieldDuration, durationSeconds,
				"purchased_seconds", u.PurchasedSeconds,
			))
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("quota: settle: %w", err)
	}

	if err := l.store.AppendUsage(ctx, &store.UsageRecord{
		UserID:         user.ID,
		AudioDuration:  durationSeconds,
		ProcessingTime: processingTime,
	}); err != nil {
		return fmt.Errorf("quota: settle: %w", err)
	}
	return nil
}

// RecordFailure appends a failed usage record. Balances are untouched.
func (l *Ledger) RecordFailure(ctx context.Context, userHash string, durationSeconds int) error {
	user, err := l.store.GetOrCreateUser(ctx, userHash, l.cfg.FreeAllowanceSeconds)
	if err != nil {
		return fmt.Errorf("quota: record failure: %w", err)
	}
	if err := l.store.AppendUsage(ctx, &store.UsageRecord{
		UserID:         user.ID,
		AudioDuration:  durationSeconds,
		ProcessingTime: FailedProcessingTime,
	}); err != nil {
		return fmt.Errorf("quota: record failure: %w", err)
	}
	return nil
}

// Credit adds purchasedUnits * CreditRateSeconds to the user's purchased
// balance and appends the payment record. Called by the payment
// collaborator on confirmed payment.
func (l *Ledger) Credit(ctx context.Context, userHash string, purchasedUnits int, paymentID string) (*store.User, error) {
	user, err := l.store.GetOrCreateUser(ctx, userHash, l.cfg.FreeAllowanceSeconds)
	if err != nil {
		return nil, fmt.Errorf("quota: credit: %w", err)
	}

	if err := l.store.AppendPayment(ctx, &store.PaymentRecord{
		UserID:    user.ID,
		PaymentID: paymentID,
		Units:     purchasedUnits,
	}); err != nil {
		return nil, fmt.Errorf("quota: credit: %w", err)
	}

	updated, err := l.store.UpdateUser(ctx, userHash, func(u *store.User) error {
		u.PurchasedSeconds += purchasedUnits * l.cfg.CreditRateSeconds
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("quota: credit: %w", err)
	}

	l.log.Info("credited purchased seconds", logger.Fields(
		logger.FieldUserHash, userHash,
		"units", purchasedUnits,
		"purchased_seconds", updated.PurchasedSeconds,
	))
	return updated, nil
}
