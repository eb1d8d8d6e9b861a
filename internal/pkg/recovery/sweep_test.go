package recovery

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/simplify-ai/simplify/app/models"
	"github.com/simplify-ai/simplify/internal/pkg/config"
	"github.com/simplify-ai/simplify/internal/pkg/database"
	"github.com/simplify-ai/simplify/internal/pkg/ledger"
	"github.com/simplify-ai/simplify/internal/pkg/payment"
	"github.com/simplify-ai/simplify/internal/pkg/plans"
	"github.com/simplify-ai/simplify/internal/pkg/webhooks"
)

type sentMail struct {
	To      string
	Subject string
	Body    string
}

type fakeMailer struct {
	sent   []sentMail
	fail   error
	onSend func()
}

func (f *fakeMailer) Send(to, subject, body string) error {
	if f.onSend != nil {
		f.onSend()
	}
	if f.fail != nil {
		return f.fail
	}
	f.sent = append(f.sent, sentMail{To: to, Subject: subject, Body: body})
	return nil
}

type fakeProvider struct {
	paid map[string]*payment.CheckoutSession
}

func (f *fakeProvider) CreateCheckoutSession(_ context.Context, _ payment.CheckoutParams) (*payment.CheckoutSession, error) {
	return nil, errors.New("not used by the sweep")
}

func (f *fakeProvider) GetCheckoutSession(_ context.Context, id string) (*payment.CheckoutSession, error) {
	if cs, ok := f.paid[id]; ok {
		return cs, nil
	}
	return nil, payment.ErrUnavailable
}

type fixture struct {
	db       *gorm.DB
	cfg      *config.Config
	sweeper  *Sweeper
	accounts *ledger.Service
	mailer   *fakeMailer
	provider *fakeProvider
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	require.NoError(t, database.AutoMigrate(db))

	cfg := &config.Config{
		AppBaseURL: "http://localhost:4173",
		Currency:   "eur",
		FreeUses:   3,
		Plans: map[plans.Tier]config.Plan{
			plans.TierPack: {ID: plans.TierPack, Mode: plans.ModePayment, Credits: 10, AmountCents: 500},
		},
		Recovery: config.Recovery{
			InitialDelay:  time.Hour,
			BackoffHours:  []int{1, 24, 72},
			MaxAttempts:   3,
			SweepInterval: 30 * time.Minute,
			BatchSize:     50,
		},
	}

	mailer := &fakeMailer{}
	provider := &fakeProvider{paid: map[string]*payment.CheckoutSession{}}
	hooks := webhooks.NewService(db, cfg)
	return &fixture{
		db:       db,
		cfg:      cfg,
		sweeper:  NewSweeper(db, cfg, provider, mailer, hooks),
		accounts: ledger.NewService(db, cfg),
		mailer:   mailer,
		provider: provider,
	}
}

func (f *fixture) abandonedSession(t *testing.T, id, customerID, email string, age time.Duration, now time.Time) *models.Account {
	t.Helper()
	account, err := f.accounts.EnsureAccount(customerID)
	require.NoError(t, err)
	if email != "" {
		account, err = f.accounts.LinkEmail(account.ID, email)
		require.NoError(t, err)
	}
	session := models.PaymentSession{
		ID:         id,
		AccountID:  account.ID,
		CustomerID: account.CustomerID,
		PlanID:     "pack",
		Status:     models.SessionStatusCreated,
		CreatedAt:  now.Add(-age),
	}
	require.NoError(t, f.db.Create(&session).Error)
	return account
}

func (f *fixture) session(t *testing.T, id string) *models.PaymentSession {
	t.Helper()
	var session models.PaymentSession
	require.NoError(t, f.db.First(&session, "id = ?", id).Error)
	return &session
}

func TestSweepNudgesAbandonedSession(t *testing.T) {
	f := newFixture(t)
	now := time.Now()
	f.abandonedSession(t, "cs_nudge", "shopper", "shopper@example.com", 2*time.Hour, now)

	summary, err := f.sweeper.Run(context.Background(), false, now)
	require.NoError(t, err)
	assert.Equal(t, Summary{Scanned: 1, Sent: 1}, summary)

	require.Len(t, f.mailer.sent, 1)
	assert.Equal(t, "shopper@example.com", f.mailer.sent[0].To)
	assert.Contains(t, f.mailer.sent[0].Body, "resume_session=cs_nudge")

	session := f.session(t, "cs_nudge")
	assert.Equal(t, 1, session.RecoveryAttempts)
	assert.Equal(t, 1, session.RecoveryLastStep)
	assert.Contains(t, []string{models.RecoveryVariantA, models.RecoveryVariantB}, session.RecoveryLastVariant)
	require.NotNil(t, session.RecoveryNextAttempt)
	assert.WithinDuration(t, now.Add(24*time.Hour), *session.RecoveryNextAttempt, time.Minute)
	require.NotNil(t, session.RecoveryEmailSentAt)

	var audit models.AuditEvent
	require.NoError(t, f.db.Where("name = ?", models.AuditRecoverySent).First(&audit).Error)
	assert.Equal(t, "cs_nudge", audit.SessionID)
	assert.Contains(t, audit.Payload, `"step":1`)
}

func TestSweepFollowsBackoffUntilExhausted(t *testing.T) {
	f := newFixture(t)
	now := time.Now()
	f.abandonedSession(t, "cs_backoff", "shopper", "shopper@example.com", 2*time.Hour, now)

	// Step 1.
	_, err := f.sweeper.Run(context.Background(), false, now)
	require.NoError(t, err)

	// Too early for step 2.
	summary, err := f.sweeper.Run(context.Background(), false, now.Add(time.Hour))
	require.NoError(t, err)
	assert.Equal(t, Summary{}, summary)

	// Step 2 after the 24h backoff.
	summary, err = f.sweeper.Run(context.Background(), false, now.Add(25*time.Hour))
	require.NoError(t, err)
	assert.Equal(t, Summary{Scanned: 1, Sent: 1}, summary)
	session := f.session(t, "cs_backoff")
	assert.Equal(t, 2, session.RecoveryAttempts)
	assert.WithinDuration(t, now.Add(25*time.Hour).Add(72*time.Hour), *session.RecoveryNextAttempt, time.Minute)

	// Step 3 after the 72h backoff.
	summary, err = f.sweeper.Run(context.Background(), false, now.Add(98*time.Hour))
	require.NoError(t, err)
	assert.Equal(t, Summary{Scanned: 1, Sent: 1}, summary)
	assert.Equal(t, 3, f.session(t, "cs_backoff").RecoveryAttempts)

	// Exhausted: even a forced sweep leaves it alone.
	summary, err = f.sweeper.Run(context.Background(), true, now.Add(200*time.Hour))
	require.NoError(t, err)
	assert.Equal(t, Summary{}, summary)
	assert.Len(t, f.mailer.sent, 3)
}

func TestForcedSweepIgnoresSchedule(t *testing.T) {
	f := newFixture(t)
	now := time.Now()
	f.abandonedSession(t, "cs_force", "shopper", "shopper@example.com", 2*time.Hour, now)

	_, err := f.sweeper.Run(context.Background(), false, now)
	require.NoError(t, err)

	// The schedule says wait 24h; force overrides it.
	summary, err := f.sweeper.Run(context.Background(), true, now.Add(time.Minute))
	require.NoError(t, err)
	assert.Equal(t, Summary{Scanned: 1, Sent: 1}, summary)
	assert.Equal(t, 2, f.session(t, "cs_force").RecoveryAttempts)
}

func TestSweepIgnoresFreshSessions(t *testing.T) {
	f := newFixture(t)
	now := time.Now()
	f.abandonedSession(t, "cs_fresh", "shopper", "shopper@example.com", 10*time.Minute, now)

	summary, err := f.sweeper.Run(context.Background(), true, now)
	require.NoError(t, err)
	assert.Equal(t, Summary{}, summary)
	assert.Empty(t, f.mailer.sent)
}

func TestSweepConvertsSessionPaidBehindOurBack(t *testing.T) {
	f := newFixture(t)
	now := time.Now()
	account := f.abandonedSession(t, "cs_paid", "shopper", "shopper@example.com", 2*time.Hour, now)
	f.provider.paid["cs_paid"] = &payment.CheckoutSession{
		ID:            "cs_paid",
		Status:        "complete",
		PaymentStatus: "paid",
		AmountTotal:   500,
		Currency:      "eur",
		Metadata: map[string]string{
			"customer_id":     "shopper",
			"plan":            "pack",
			"credits_granted": "10",
		},
	}

	summary, err := f.sweeper.Run(context.Background(), false, now)
	require.NoError(t, err)
	assert.Equal(t, Summary{Scanned: 1, Converted: 1}, summary)
	assert.Empty(t, f.mailer.sent)

	session := f.session(t, "cs_paid")
	assert.Equal(t, models.SessionStatusCompleted, session.Status)
	assert.True(t, session.Granted)

	ca, err := f.accounts.Credits(account.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(10), ca.Credits)

	// A completed session never reappears as a candidate.
	summary, err = f.sweeper.Run(context.Background(), true, now.Add(48*time.Hour))
	require.NoError(t, err)
	assert.Equal(t, Summary{}, summary)
}

func TestSweepSkipsContactlessSessionButAdvances(t *testing.T) {
	f := newFixture(t)
	now := time.Now()
	f.abandonedSession(t, "cs_noemail", "shopper", "", 2*time.Hour, now)

	summary, err := f.sweeper.Run(context.Background(), false, now)
	require.NoError(t, err)
	assert.Equal(t, Summary{Scanned: 1, Skipped: 1}, summary)
	assert.Empty(t, f.mailer.sent)

	session := f.session(t, "cs_noemail")
	assert.Equal(t, 1, session.RecoveryAttempts)
	assert.Equal(t, "email-missing", session.RecoveryLastError)

	var audit models.AuditEvent
	require.NoError(t, f.db.Where("name = ?", models.AuditRecoverySkip).First(&audit).Error)
	assert.Contains(t, audit.Payload, "email-missing")
}

func TestSweepPersistsScheduleBeforeSending(t *testing.T) {
	f := newFixture(t)
	now := time.Now()
	f.abandonedSession(t, "cs_persist", "shopper", "shopper@example.com", 2*time.Hour, now)

	// The advanced schedule must already be on disk when the mail goes out:
	// a crash mid-send would otherwise replay the same step next sweep.
	var attemptsAtSend int
	f.mailer.onSend = func() {
		attemptsAtSend = f.session(t, "cs_persist").RecoveryAttempts
	}

	_, err := f.sweeper.Run(context.Background(), false, now)
	require.NoError(t, err)
	assert.Equal(t, 1, attemptsAtSend)
}

func TestSweepRecordsFailedDelivery(t *testing.T) {
	f := newFixture(t)
	now := time.Now()
	f.abandonedSession(t, "cs_bounce", "shopper", "shopper@example.com", 2*time.Hour, now)
	f.mailer.fail = errors.New("smtp: connection refused")

	summary, err := f.sweeper.Run(context.Background(), false, now)
	require.NoError(t, err)
	assert.Equal(t, Summary{Scanned: 1, Failed: 1}, summary)

	// Attempts advance anyway so a dead mailbox cannot loop forever.
	session := f.session(t, "cs_bounce")
	assert.Equal(t, 1, session.RecoveryAttempts)
	assert.Contains(t, session.RecoveryLastError, "connection refused")
	assert.Nil(t, session.RecoveryEmailSentAt)

	var audit models.AuditEvent
	require.NoError(t, f.db.Where("name = ?", models.AuditRecoveryFailed).First(&audit).Error)
	assert.Equal(t, "cs_bounce", audit.SessionID)
}

func TestSweepRecordsSegmentForComparison(t *testing.T) {
	f := newFixture(t)
	now := time.Now()
	account := f.abandonedSession(t, "cs_segment", "shopper", "shopper@example.com", 2*time.Hour, now)
	require.NoError(t, f.db.Model(&models.PaymentSession{}).
		Where("id = ?", "cs_segment").
		Update("acquisition_channel", models.AcquisitionPaid).Error)
	require.NoError(t, f.db.Model(&models.CreditAccount{}).
		Where("account_id = ?", account.ID).
		Update("plan_tier", "pack").Error)

	_, err := f.sweeper.Run(context.Background(), false, now)
	require.NoError(t, err)

	var audit models.AuditEvent
	require.NoError(t, f.db.Where("name = ?", models.AuditRecoverySent).First(&audit).Error)
	assert.Contains(t, audit.Payload, `"channel":"paid"`)
	assert.Contains(t, audit.Payload, `"plan_tier":"pack"`)
}

func TestPickVariantIsDeterministic(t *testing.T) {
	first := pickVariant("cs_stable")
	for i := 0; i < 10; i++ {
		assert.Equal(t, first, pickVariant("cs_stable"))
	}
	assert.Contains(t, []string{models.RecoveryVariantA, models.RecoveryVariantB}, first)
}

func TestManagerStartStop(t *testing.T) {
	f := newFixture(t)
	manager := NewManager(f.sweeper, f.cfg)

	assert.False(t, manager.IsRunning())
	manager.Start()
	assert.True(t, manager.IsRunning())
	// A second Start is a no-op.
	manager.Start()
	manager.Stop()
	assert.False(t, manager.IsRunning())
	manager.Stop()
}

func TestManagerRunOnce(t *testing.T) {
	f := newFixture(t)
	now := time.Now()
	f.abandonedSession(t, "cs_manager", "shopper", "shopper@example.com", 2*time.Hour, now)
	manager := NewManager(f.sweeper, f.cfg)

	summary, err := manager.RunOnce(context.Background(), true)
	require.NoError(t, err)
	assert.Equal(t, 1, summary.Sent)
}
