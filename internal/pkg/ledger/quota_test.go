package ledger

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/simplify-ai/simplify/app/models"
)

func TestConsumeFreeBeforeCredits(t *testing.T) {
	svc := newTestService(t)
	account, err := svc.EnsureAccount("consumer")
	require.NoError(t, err)
	require.NoError(t, svc.Grant(account.ID, 2, ""))

	var sources []Source
	for i := 0; i < 5; i++ {
		source, err := svc.Consume(account.ID)
		require.NoError(t, err)
		sources = append(sources, source)
	}
	assert.Equal(t, []Source{SourceFree, SourceFree, SourceFree, SourceCredit, SourceCredit}, sources)

	_, err = svc.Consume(account.ID)
	assert.ErrorIs(t, err, ErrInsufficientCredits)

	ca, err := svc.Credits(account.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(0), ca.Credits)
	assert.Equal(t, int64(3), ca.FreeUsed)
	assert.Equal(t, int64(2), ca.TotalConsumed)
}

func TestConcurrentConsumeNeverOversells(t *testing.T) {
	svc := newTestService(t)
	account, err := svc.EnsureAccount("racer")
	require.NoError(t, err)
	require.NoError(t, svc.Grant(account.ID, 2, ""))

	const attempts = 12
	var wg sync.WaitGroup
	results := make(chan error, attempts)
	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := svc.Consume(account.ID)
			results <- err
		}()
	}
	wg.Wait()
	close(results)

	succeeded, rejected := 0, 0
	for err := range results {
		if err == nil {
			succeeded++
		} else {
			require.ErrorIs(t, err, ErrInsufficientCredits)
			rejected++
		}
	}
	// 3 free uses + 2 credits, regardless of interleaving.
	assert.Equal(t, 5, succeeded)
	assert.Equal(t, attempts-5, rejected)

	ca, err := svc.Credits(account.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(0), ca.Credits)
	assert.Equal(t, int64(3), ca.FreeUsed)
}

func TestRollbackRefundsExactlyOneUnit(t *testing.T) {
	svc := newTestService(t)
	account, err := svc.EnsureAccount("refundee")
	require.NoError(t, err)
	require.NoError(t, svc.Grant(account.ID, 1, ""))

	source, err := svc.Consume(account.ID)
	require.NoError(t, err)
	require.Equal(t, SourceFree, source)

	require.NoError(t, svc.Rollback(account.ID, SourceFree))
	ca, err := svc.Credits(account.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(0), ca.FreeUsed)

	// A repeated rollback of the same unit is a no-op, not a double refund.
	require.NoError(t, svc.Rollback(account.ID, SourceFree))
	ca, err = svc.Credits(account.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(0), ca.FreeUsed)
}

func TestRollbackCreditRestoresBalance(t *testing.T) {
	svc := newTestService(t)
	account, err := svc.EnsureAccount("refundee")
	require.NoError(t, err)
	require.NoError(t, svc.Grant(account.ID, 1, ""))

	// Exhaust the free pool so the next consume charges a credit.
	for i := 0; i < 3; i++ {
		_, err := svc.Consume(account.ID)
		require.NoError(t, err)
	}
	source, err := svc.Consume(account.ID)
	require.NoError(t, err)
	require.Equal(t, SourceCredit, source)

	require.NoError(t, svc.Rollback(account.ID, SourceCredit))

	ca, err := svc.Credits(account.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(1), ca.Credits)
	assert.Equal(t, int64(0), ca.TotalConsumed)

	// A repeated credit rollback must not mint balance beyond what was
	// ever purchased.
	require.NoError(t, svc.Rollback(account.ID, SourceCredit))
	ca, err = svc.Credits(account.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(1), ca.Credits)
	assert.Equal(t, int64(0), ca.TotalConsumed)

	var refunds []models.AuditEvent
	require.NoError(t, svc.DB().Where("name = ?", models.AuditCreditRefund).Find(&refunds).Error)
	assert.Len(t, refunds, 1)
}
