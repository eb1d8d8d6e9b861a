package reconcile

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

// fakeProvider serves canned checkout sessions keyed by id.
type fakeProvider struct {
	sessions map[string]*payment.CheckoutSession
	errs     map[string]error
	calls    []string
}

func (f *fakeProvider) CreateCheckoutSession(_ context.Context, _ payment.CheckoutParams) (*payment.CheckoutSession, error) {
	return nil, errors.New("not used in reconciliation")
}

func (f *fakeProvider) GetCheckoutSession(_ context.Context, id string) (*payment.CheckoutSession, error) {
	f.calls = append(f.calls, id)
	if err, ok := f.errs[id]; ok {
		return nil, err
	}
	if cs, ok := f.sessions[id]; ok {
		return cs, nil
	}
	return nil, payment.ErrUnavailable
}

type fixture struct {
	db       *gorm.DB
	svc      *Service
	accounts *ledger.Service
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
		Currency: "eur",
		FreeUses: 3,
		Plans: map[plans.Tier]config.Plan{
			plans.TierPack: {ID: plans.TierPack, Mode: plans.ModePayment, Credits: 10, AmountCents: 500},
		},
	}
	provider := &fakeProvider{
		sessions: map[string]*payment.CheckoutSession{},
		errs:     map[string]error{},
	}
	hooks := webhooks.NewService(db, cfg)
	return &fixture{
		db:       db,
		svc:      NewService(db, provider, hooks),
		accounts: ledger.NewService(db, cfg),
		provider: provider,
	}
}

func (f *fixture) openSession(t *testing.T, id, customerID string, createdAt time.Time) *models.Account {
	t.Helper()
	account, err := f.accounts.EnsureAccount(customerID)
	require.NoError(t, err)
	session := models.PaymentSession{
		ID:         id,
		AccountID:  account.ID,
		CustomerID: account.CustomerID,
		PlanID:     "pack",
		Status:     models.SessionStatusCreated,
		CreatedAt:  createdAt,
	}
	require.NoError(t, f.db.Create(&session).Error)
	return account
}

func paidSession(id, customerID string) *payment.CheckoutSession {
	return &payment.CheckoutSession{
		ID:            id,
		Status:        "complete",
		PaymentStatus: "paid",
		Customer:      "cus_fake",
		AmountTotal:   500,
		Currency:      "eur",
		Metadata: map[string]string{
			"customer_id":     customerID,
			"plan":            "pack",
			"credits_granted": "10",
		},
	}
}

func TestReconcileOneFinalizesPaidSession(t *testing.T) {
	f := newFixture(t)
	account := f.openSession(t, "cs_paid", "buyer", time.Now())
	f.provider.sessions["cs_paid"] = paidSession("cs_paid", "buyer")

	reconciled, err := f.svc.ReconcileOne(context.Background(), "cs_paid")
	require.NoError(t, err)
	assert.True(t, reconciled)

	var session models.PaymentSession
	require.NoError(t, f.db.First(&session, "id = ?", "cs_paid").Error)
	assert.Equal(t, models.SessionStatusCompleted, session.Status)
	assert.True(t, session.Granted)

	ca, err := f.accounts.Credits(account.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(10), ca.Credits)
}

func TestReconcileOneLeavesUnpaidSessionOpen(t *testing.T) {
	f := newFixture(t)
	f.openSession(t, "cs_open", "buyer", time.Now())
	f.provider.sessions["cs_open"] = &payment.CheckoutSession{
		ID: "cs_open", Status: "open", PaymentStatus: "unpaid",
	}

	reconciled, err := f.svc.ReconcileOne(context.Background(), "cs_open")
	require.NoError(t, err)
	assert.False(t, reconciled)

	var session models.PaymentSession
	require.NoError(t, f.db.First(&session, "id = ?", "cs_open").Error)
	assert.Equal(t, models.SessionStatusCreated, session.Status)
}

func TestReconcileOneSkipsCompletedSessionWithoutProviderCall(t *testing.T) {
	f := newFixture(t)
	account := f.openSession(t, "cs_done", "buyer", time.Now())
	require.NoError(t, f.db.Model(&models.PaymentSession{}).
		Where("id = ?", "cs_done").
		Updates(map[string]interface{}{"status": models.SessionStatusCompleted, "granted": true}).Error)
	_ = account

	reconciled, err := f.svc.ReconcileOne(context.Background(), "cs_done")
	require.NoError(t, err)
	assert.False(t, reconciled)
	assert.Empty(t, f.provider.calls)
}

func TestReconcileOneUnknownSession(t *testing.T) {
	f := newFixture(t)
	_, err := f.svc.ReconcileOne(context.Background(), "cs_missing")
	assert.ErrorIs(t, err, ErrSessionNotFound)
}

func TestReconcileBatchIsolatesFailures(t *testing.T) {
	f := newFixture(t)
	f.openSession(t, "cs_ok", "buyer-a", time.Now().Add(-2*time.Hour))
	f.openSession(t, "cs_bad", "buyer-b", time.Now().Add(-time.Hour))
	f.provider.sessions["cs_ok"] = paidSession("cs_ok", "buyer-a")
	f.provider.errs["cs_bad"] = payment.ErrUnavailable

	results, err := f.svc.ReconcileBatch(context.Background(), 10)
	require.NoError(t, err)
	require.Len(t, results, 2)

	// Oldest first.
	assert.Equal(t, "cs_ok", results[0].SessionID)
	assert.True(t, results[0].Reconciled)
	assert.Empty(t, results[0].Error)

	assert.Equal(t, "cs_bad", results[1].SessionID)
	assert.False(t, results[1].Reconciled)
	assert.NotEmpty(t, results[1].Error)
}
