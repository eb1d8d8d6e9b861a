package webhooks

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/simplify-ai/simplify/app/models"
	"github.com/simplify-ai/simplify/internal/pkg/config"
	"github.com/simplify-ai/simplify/internal/pkg/database"
	"github.com/simplify-ai/simplify/internal/pkg/ledger"
	"github.com/simplify-ai/simplify/internal/pkg/plans"
)

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)

	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)

	require.NoError(t, database.AutoMigrate(db))
	return db
}

func testConfig() *config.Config {
	return &config.Config{
		AppBaseURL: "http://localhost:4173",
		Currency:   "eur",
		FreeUses:   3,
		Plans: map[plans.Tier]config.Plan{
			plans.TierOne:  {ID: plans.TierOne, Mode: plans.ModePayment, Credits: 1, AmountCents: 100},
			plans.TierPack: {ID: plans.TierPack, Mode: plans.ModePayment, Credits: 10, AmountCents: 500},
			plans.TierSub:  {ID: plans.TierSub, Mode: plans.ModeSubscription, Credits: 250, AmountCents: 800},
		},
		Recovery: config.Recovery{
			InitialDelay: time.Hour, BackoffHours: []int{1, 24, 72}, MaxAttempts: 3,
			SweepInterval: 30 * time.Minute, BatchSize: 50,
		},
	}
}

type testEnv struct {
	db       *gorm.DB
	hooks    *Service
	accounts *ledger.Service
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	db := newTestDB(t)
	cfg := testConfig()
	return &testEnv{
		db:       db,
		hooks:    NewService(db, cfg),
		accounts: ledger.NewService(db, cfg),
	}
}

// rawEvent builds a provider webhook body from an envelope id, type and object.
func rawEvent(t *testing.T, eventID, eventType string, object map[string]interface{}) []byte {
	t.Helper()
	raw, err := json.Marshal(map[string]interface{}{
		"id":   eventID,
		"type": eventType,
		"data": map[string]interface{}{"object": object},
	})
	require.NoError(t, err)
	return raw
}

func (e *testEnv) process(t *testing.T, raw []byte) Outcome {
	t.Helper()
	event, err := ParseEvent(raw)
	require.NoError(t, err)
	outcome, err := e.hooks.Process(event, raw, true)
	require.NoError(t, err)
	return outcome
}

func (e *testEnv) credits(t *testing.T, accountID uint) *models.CreditAccount {
	t.Helper()
	ca, err := e.accounts.Credits(accountID)
	require.NoError(t, err)
	return ca
}
