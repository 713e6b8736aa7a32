package ledger

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

type memoryStore struct {
	accounts map[int64]*Account
	txs      []Transaction
	nextID   int64
}

func newMemoryStore() *memoryStore {
	return &memoryStore{accounts: make(map[int64]*Account)}
}

func (s *memoryStore) GetOrCreateAccountForUpdate(ctx context.Context, customerID int64) (Account, error) {
	if a, ok := s.accounts[customerID]; ok {
		return *a, nil
	}
	s.nextID++
	a := &Account{ID: s.nextID, CustomerID: customerID, IsActive: true}
	s.accounts[customerID] = a
	return *a, nil
}

func (s *memoryStore) TransactionExists(ctx context.Context, t TransactionType, refType ReferenceType, refID int64) (bool, error) {
	for _, tx := range s.txs {
		if tx.Type == t && tx.ReferenceType == refType && tx.ReferenceID == refID {
			return true, nil
		}
	}
	return false, nil
}

func (s *memoryStore) InsertTransaction(ctx context.Context, tx Transaction) (Transaction, error) {
	s.nextID++
	tx.ID = s.nextID
	s.txs = append(s.txs, tx)
	return tx, nil
}

func (s *memoryStore) UpdateAccountAfterPost(ctx context.Context, a Account) error {
	stored, ok := s.accounts[a.CustomerID]
	if !ok {
		return ErrAccountNotFound
	}
	*stored = a
	return nil
}

func dec(s string) decimal.Decimal {
	d, err := decimal.NewFromString(s)
	if err != nil {
		panic(err)
	}
	return d
}

func TestPostSaleIncreasesDebt(t *testing.T) {
	store := newMemoryStore()
	engine := NewEngine()
	ctx := context.Background()

	tx, err := engine.Post(ctx, store, PostInput{CustomerID: 7, Type: TypeSale, Amount: dec("150.00"), ReferenceType: RefSale, ReferenceID: 1, ActorID: 9})
	require.NoError(t, err)
	require.True(t, tx.BalanceBefore.IsZero())
	require.True(t, tx.BalanceAfter.Equal(dec("150.00")))
	require.True(t, store.accounts[7].Balance.Equal(dec("150.00")))
	require.True(t, store.accounts[7].TotalSales.Equal(dec("150.00")))
	require.EqualValues(t, 1, store.accounts[7].TransactionCount)
}

func TestPostPaymentReducesDebt(t *testing.T) {
	store := newMemoryStore()
	engine := NewEngine()
	ctx := context.Background()

	_, err := engine.Post(ctx, store, PostInput{CustomerID: 7, Type: TypeSale, Amount: dec("150.00"), ReferenceType: RefSale, ReferenceID: 1})
	require.NoError(t, err)
	tx, err := engine.Post(ctx, store, PostInput{CustomerID: 7, Type: TypePayment, Amount: dec("200.00"), ReferenceType: RefPayment, ReferenceID: 10})
	require.NoError(t, err)
	// Overpayment flips into credit.
	require.True(t, tx.BalanceAfter.Equal(dec("-50.00")))
	require.True(t, store.accounts[7].TotalPayments.Equal(dec("200.00")))
}

func TestPostPaymentIdempotent(t *testing.T) {
	store := newMemoryStore()
	engine := NewEngine()
	ctx := context.Background()

	_, err := engine.Post(ctx, store, PostInput{CustomerID: 7, Type: TypePayment, Amount: dec("50.00"), ReferenceType: RefPayment, ReferenceID: 10})
	require.NoError(t, err)
	_, err = engine.Post(ctx, store, PostInput{CustomerID: 7, Type: TypePayment, Amount: dec("50.00"), ReferenceType: RefPayment, ReferenceID: 10})
	require.ErrorIs(t, err, ErrDuplicateTransaction)
	require.True(t, store.accounts[7].Balance.Equal(dec("-50.00")), "balance moved once only")
	require.Len(t, store.txs, 1)
}

func TestPostCreditApplicationKeepsBalance(t *testing.T) {
	store := newMemoryStore()
	engine := NewEngine()
	ctx := context.Background()

	// Credit already consumed by the SALE post; the application record is
	// traceability only.
	_, err := engine.Post(ctx, store, PostInput{CustomerID: 3, Type: TypeOpeningBalance, Amount: dec("-769.00"), ReferenceType: RefManual, ReferenceID: 0})
	require.NoError(t, err)
	_, err = engine.Post(ctx, store, PostInput{CustomerID: 3, Type: TypeSale, Amount: dec("769.00"), ReferenceType: RefSale, ReferenceID: 42})
	require.NoError(t, err)
	tx, err := engine.Post(ctx, store, PostInput{CustomerID: 3, Type: TypeCreditApplication, Amount: dec("769.00"), ReferenceType: RefSale, ReferenceID: 42})
	require.NoError(t, err)
	require.True(t, tx.BalanceBefore.Equal(tx.BalanceAfter))
	require.True(t, store.accounts[3].Balance.IsZero())
}

func TestPostVoidSaleReversesSale(t *testing.T) {
	store := newMemoryStore()
	engine := NewEngine()
	ctx := context.Background()

	_, err := engine.Post(ctx, store, PostInput{CustomerID: 7, Type: TypeSale, Amount: dec("99.50"), ReferenceType: RefSale, ReferenceID: 5})
	require.NoError(t, err)
	_, err = engine.Post(ctx, store, PostInput{CustomerID: 7, Type: TypeVoidSale, Amount: dec("99.50"), ReferenceType: RefSale, ReferenceID: 5})
	require.NoError(t, err)
	require.True(t, store.accounts[7].Balance.IsZero())

	_, err = engine.Post(ctx, store, PostInput{CustomerID: 7, Type: TypeVoidSale, Amount: dec("99.50"), ReferenceType: RefSale, ReferenceID: 5})
	require.ErrorIs(t, err, ErrDuplicateTransaction)
}

func TestPostRepairDepositDirections(t *testing.T) {
	store := newMemoryStore()
	engine := NewEngine()
	ctx := context.Background()

	_, err := engine.Post(ctx, store, PostInput{CustomerID: 2, Type: TypeRepairDeposit, Amount: dec("300.00"), ReferenceType: RefDeposit, ReferenceID: 1})
	require.NoError(t, err)
	require.True(t, store.accounts[2].Balance.Equal(dec("-300.00")), "deposit is credit to the customer")

	_, err = engine.Post(ctx, store, PostInput{CustomerID: 2, Type: TypeRepairDeposit, Amount: dec("300.00"), ReferenceType: RefDeposit, ReferenceID: 1, DepositRefund: true})
	require.NoError(t, err)
	require.True(t, store.accounts[2].Balance.IsZero())
}

func TestPostRejectsBadInput(t *testing.T) {
	store := newMemoryStore()
	engine := NewEngine()
	ctx := context.Background()

	_, err := engine.Post(ctx, store, PostInput{CustomerID: 0, Type: TypeSale, Amount: dec("10.00")})
	require.Error(t, err)

	_, err = engine.Post(ctx, store, PostInput{CustomerID: 1, Type: TypeSale, Amount: dec("0")})
	require.ErrorIs(t, err, ErrInvalidAmount)

	_, err = engine.Post(ctx, store, PostInput{CustomerID: 1, Type: TransactionType("BOGUS"), Amount: dec("10.00")})
	require.ErrorIs(t, err, ErrUnknownType)
}

func TestBalanceChainInvariant(t *testing.T) {
	store := newMemoryStore()
	engine := NewEngine()
	ctx := context.Background()

	amounts := []string{"120.00", "35.50", "80.00"}
	for i, a := range amounts {
		_, err := engine.Post(ctx, store, PostInput{CustomerID: 1, Type: TypeSale, Amount: dec(a), ReferenceType: RefSale, ReferenceID: int64(i + 1)})
		require.NoError(t, err)
	}
	_, err := engine.Post(ctx, store, PostInput{CustomerID: 1, Type: TypePayment, Amount: dec("100.00"), ReferenceType: RefPayment, ReferenceID: 1})
	require.NoError(t, err)

	for i := 0; i < len(store.txs)-1; i++ {
		require.True(t, store.txs[i].BalanceAfter.Equal(store.txs[i+1].BalanceBefore),
			fmt.Sprintf("chain broken between tx %d and %d", i, i+1))
	}
	// Balance equals the sum of signed deltas.
	sum := decimal.Zero
	for _, tx := range store.txs {
		delta, err := SignedDelta(tx.Type, tx.Amount, false)
		require.NoError(t, err)
		sum = sum.Add(delta)
	}
	require.True(t, store.accounts[1].Balance.Equal(sum))
}

func TestEvaluateCredit(t *testing.T) {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	future := now.Add(24 * time.Hour)
	past := now.Add(-24 * time.Hour)

	d := EvaluateCredit(Account{IsActive: true, Balance: dec("-40.00")}, now)
	require.True(t, d.HasCredit)
	require.True(t, d.Available.Equal(dec("40.00")))

	d = EvaluateCredit(Account{IsActive: true, Balance: dec("10.00")}, now)
	require.False(t, d.HasCredit)

	d = EvaluateCredit(Account{IsActive: false, Balance: dec("-40.00")}, now)
	require.False(t, d.HasCredit)
	require.Equal(t, "account inactive", d.Reason)

	d = EvaluateCredit(Account{IsActive: true, Balance: dec("-40.00"), BlockedUntil: &future, BlockReason: "chargeback"}, now)
	require.False(t, d.HasCredit)
	require.Equal(t, "chargeback", d.Reason)

	// Expired blocks no longer apply.
	d = EvaluateCredit(Account{IsActive: true, Balance: dec("-40.00"), BlockedUntil: &past}, now)
	require.True(t, d.HasCredit)
}

func TestPostEventIDDeterministicForGuardedTypes(t *testing.T) {
	engine := NewEngine()

	storeA := newMemoryStore()
	txA, err := engine.Post(context.Background(), storeA, PostInput{
		CustomerID: 1, Type: TypePayment, Amount: dec("50"),
		ReferenceType: RefPayment, ReferenceID: 9, ActorID: 1,
	})
	require.NoError(t, err)

	storeB := newMemoryStore()
	txB, err := engine.Post(context.Background(), storeB, PostInput{
		CustomerID: 1, Type: TypePayment, Amount: dec("50"),
		ReferenceType: RefPayment, ReferenceID: 9, ActorID: 1,
	})
	require.NoError(t, err)
	require.Equal(t, txA.EventID, txB.EventID)

	saleA, err := engine.Post(context.Background(), storeA, PostInput{
		CustomerID: 1, Type: TypeSale, Amount: dec("50"),
		ReferenceType: RefSale, ReferenceID: 9, ActorID: 1,
	})
	require.NoError(t, err)
	saleB, err := engine.Post(context.Background(), storeA, PostInput{
		CustomerID: 1, Type: TypeSale, Amount: dec("50"),
		ReferenceType: RefSale, ReferenceID: 10, ActorID: 1,
	})
	require.NoError(t, err)
	require.NotEqual(t, saleA.EventID, saleB.EventID)
}
