package ledger

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
)

type memoryRepo struct {
	store *memoryStore
}

func newMemoryRepo() *memoryRepo {
	return &memoryRepo{store: newMemoryStore()}
}

func (r *memoryRepo) WithTx(ctx context.Context, fn func(context.Context, TxStore) error) error {
	return fn(ctx, r.store)
}

func (r *memoryRepo) GetAccount(ctx context.Context, customerID int64) (Account, error) {
	a, ok := r.store.accounts[customerID]
	if !ok {
		return Account{}, ErrAccountNotFound
	}
	return *a, nil
}

func (r *memoryRepo) ListTransactions(ctx context.Context, customerID int64, limit int) ([]Transaction, error) {
	var out []Transaction
	for _, tx := range r.store.txs {
		if tx.CustomerID == customerID {
			out = append(out, tx)
		}
	}
	return out, nil
}

func (r *memoryRepo) UpdateBlock(ctx context.Context, customerID int64, until *time.Time, reason string) error {
	a, ok := r.store.accounts[customerID]
	if !ok {
		return ErrAccountNotFound
	}
	a.BlockedUntil = until
	a.BlockReason = reason
	return nil
}

func newCacheForTest(t *testing.T) *Cache {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return NewCache(client, time.Minute)
}

func TestServicePostAndSummary(t *testing.T) {
	repo := newMemoryRepo()
	svc := NewService(repo, NewEngine(), nil, newCacheForTest(t), nil)
	ctx := context.Background()

	_, err := svc.Post(ctx, PostInput{CustomerID: 5, Type: TypeSale, Amount: dec("120.00"), ReferenceType: RefSale, ReferenceID: 1})
	require.NoError(t, err)

	summary, err := svc.GetBalanceSummary(ctx, 5)
	require.NoError(t, err)
	require.True(t, summary.CurrentBalance.Equal(dec("120.00")))
	require.True(t, summary.HasDebt)
	require.Equal(t, "debtor", summary.Status)

	// Payment invalidates the cached summary.
	_, err = svc.Post(ctx, PostInput{CustomerID: 5, Type: TypePayment, Amount: dec("120.00"), ReferenceType: RefPayment, ReferenceID: 2})
	require.NoError(t, err)
	summary, err = svc.GetBalanceSummary(ctx, 5)
	require.NoError(t, err)
	require.True(t, summary.CurrentBalance.IsZero())
	require.Equal(t, "settled", summary.Status)
}

func TestServiceSummaryWithoutAccount(t *testing.T) {
	repo := newMemoryRepo()
	svc := NewService(repo, NewEngine(), nil, newCacheForTest(t), nil)

	summary, err := svc.GetBalanceSummary(context.Background(), 99)
	require.NoError(t, err)
	require.True(t, summary.CurrentBalance.IsZero())
	require.Equal(t, "settled", summary.Status)
}

func TestServiceCreditCheck(t *testing.T) {
	repo := newMemoryRepo()
	svc := NewService(repo, NewEngine(), nil, newCacheForTest(t), nil)
	ctx := context.Background()

	decision, err := svc.CheckCreditAvailability(ctx, 5)
	require.NoError(t, err)
	require.False(t, decision.HasCredit)
	require.Equal(t, "no account", decision.Reason)

	_, err = svc.Post(ctx, PostInput{CustomerID: 5, Type: TypeRepairDeposit, Amount: dec("80.00"), ReferenceType: RefDeposit, ReferenceID: 1})
	require.NoError(t, err)

	decision, err = svc.CheckCreditAvailability(ctx, 5)
	require.NoError(t, err)
	require.True(t, decision.HasCredit)
	require.True(t, decision.Available.Equal(dec("80.00")))
}

func TestServiceBlockAccount(t *testing.T) {
	repo := newMemoryRepo()
	svc := NewService(repo, NewEngine(), nil, newCacheForTest(t), nil)
	ctx := context.Background()
	base := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	svc.WithNow(func() time.Time { return base })

	_, err := svc.Post(ctx, PostInput{CustomerID: 5, Type: TypeRepairDeposit, Amount: dec("80.00"), ReferenceType: RefDeposit, ReferenceID: 1})
	require.NoError(t, err)

	require.Error(t, svc.BlockAccount(ctx, 5, base.Add(-time.Hour), "late", 1))
	require.NoError(t, svc.BlockAccount(ctx, 5, base.Add(48*time.Hour), "chargeback", 1))

	decision, err := svc.CheckCreditAvailability(ctx, 5)
	require.NoError(t, err)
	require.False(t, decision.HasCredit)
	require.Equal(t, "chargeback", decision.Reason)

	summary, err := svc.GetBalanceSummary(ctx, 5)
	require.NoError(t, err)
	require.Equal(t, "blocked", summary.Status)

	require.NoError(t, svc.UnblockAccount(ctx, 5, 1))
	decision, err = svc.CheckCreditAvailability(ctx, 5)
	require.NoError(t, err)
	require.True(t, decision.HasCredit)
}
