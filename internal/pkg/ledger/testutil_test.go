package ledger

import (
	"testing"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/simplify-ai/simplify/internal/pkg/config"
	"github.com/simplify-ai/simplify/internal/pkg/database"
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
	// One connection so every goroutine sees the same in-memory database and
	// writes serialize the way a real server's row locks would.
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
			plans.TierOne:  {ID: plans.TierOne, Label: "Single use", Mode: plans.ModePayment, Credits: 1, AmountCents: 100},
			plans.TierPack: {ID: plans.TierPack, Label: "10 uses", Mode: plans.ModePayment, Credits: 10, AmountCents: 500},
			plans.TierSub:  {ID: plans.TierSub, Label: "Monthly subscription", Mode: plans.ModeSubscription, Credits: 250, AmountCents: 800},
		},
		Recovery: config.Recovery{
			InitialDelay:  time.Hour,
			BackoffHours:  []int{1, 24, 72},
			MaxAttempts:   3,
			SweepInterval: 30 * time.Minute,
			BatchSize:     50,
		},
	}
}

func newTestService(t *testing.T) *Service {
	t.Helper()
	return NewService(newTestDB(t), testConfig())
}
