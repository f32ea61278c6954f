package settlement_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/backoffice/internal/inventory"
	"github.com/odyssey-erp/backoffice/internal/invoicing"
	"github.com/odyssey-erp/backoffice/internal/ledger"
	"github.com/odyssey-erp/backoffice/internal/platform/memstore"
	"github.com/odyssey-erp/backoffice/internal/settlement"
	"github.com/odyssey-erp/backoffice/internal/shared"
)

const (
	cashAccount     int64 = 1
	bankAccount     int64 = 2
	otherBank       int64 = 3
	customerAccount int64 = 4
	salesAccount    int64 = 5
	purchaseAccount int64 = 6
	supplierAccount int64 = 7
	warehouse       int64 = 1
	product         int64 = 10
)

type fixture struct {
	stock    *inventory.Service
	invoices *invoicing.Service
	books    *ledger.Service
	svc      *settlement.Service
}

func dec(v string) decimal.Decimal { return decimal.RequireFromString(v) }

func newFixture(t *testing.T) fixture {
	t.Helper()
	store := memstore.New()
	store.SeedWarehouse(inventory.WarehouseStock{WarehouseID: warehouse, Retail: true})
	for id, typ := range map[int64]ledger.AccountType{
		cashAccount:     ledger.AccountTypeCash,
		bankAccount:     ledger.AccountTypeBank,
		otherBank:       ledger.AccountTypeBank,
		customerAccount: ledger.AccountTypeUser,
		salesAccount:    ledger.AccountTypeIncome,
		purchaseAccount: ledger.AccountTypeExpense,
		supplierAccount: ledger.AccountTypeUser,
	} {
		store.SeedAccount(ledger.Account{ID: id, Type: typ})
	}
	stock := inventory.NewService(store.Inventory(), store)
	invoices := invoicing.NewService(store.Invoicing(), stock)
	books := ledger.NewService(store.Ledger())
	svc := settlement.NewService(store.Settlement(), invoices, stock, books, settlement.ServiceConfig{
		SalesAccountID:    salesAccount,
		PurchaseAccountID: purchaseAccount,
	})
	return fixture{stock: stock, invoices: invoices, books: books, svc: svc}
}

func (f fixture) purchase(t *testing.T, count int64, price string) invoicing.PurchaseInvoice {
	t.Helper()
	inv, err := f.invoices.CreatePurchaseInvoice(context.Background(), invoicing.PurchaseInvoiceInput{
		WarehouseID: warehouse,
		Lines:       []invoicing.PurchaseLine{{ProductID: product, Count: count, Price: inventory.Price{Purchase: dec(price)}}},
	})
	require.NoError(t, err)
	return inv
}

func (f fixture) sale(t *testing.T, count int64, price string) invoicing.SalesInvoice {
	t.Helper()
	inv, err := f.invoices.CreateSalesInvoice(context.Background(), invoicing.SalesInvoiceInput{
		Lines: []invoicing.SalesLine{{ProductID: product, WarehouseID: warehouse, Count: count, Price: dec(price)}},
	})
	require.NoError(t, err)
	return inv
}

func (f fixture) onHand(t *testing.T) int64 {
	t.Helper()
	avail, err := f.stock.Availability(context.Background(), product, "", inventory.ChannelAny)
	require.NoError(t, err)
	return avail.Total
}

func (f fixture) balance(t *testing.T, id int64) decimal.Decimal {
	t.Helper()
	acc, err := f.books.Account(context.Background(), id)
	require.NoError(t, err)
	return acc.Balance
}

func cashPayment(amount string) settlement.Payment {
	return settlement.Payment{Cash: dec(amount), CashAccounts: []settlement.Allocation{{AccountID: cashAccount}}}
}

func TestSettleSalesInvoiceConsumesStockAndPosts(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.purchase(t, 100, "10")
	si := f.sale(t, 30, "20")
	require.Equal(t, int64(100), f.onHand(t))

	result, err := f.svc.Settle(ctx, settlement.Input{Type: settlement.TypeSalesInvoice, InvoiceID: si.ID, Payment: cashPayment("600")})
	require.NoError(t, err)
	require.Equal(t, int64(70), f.onHand(t))
	require.True(t, result.Document.Amount.Equal(dec("600")))
	require.Equal(t, settlement.DocumentType, result.Document.Type)
	require.True(t, f.balance(t, cashAccount).Equal(dec("600")))
	require.True(t, f.balance(t, salesAccount).Equal(dec("-600")))

	inv, err := f.invoices.SalesInvoice(ctx, si.ID)
	require.NoError(t, err)
	require.Equal(t, invoicing.StatusPaid, inv.Status)
	require.Equal(t, result.Settlement.ID, inv.SettlementID)
	require.NotZero(t, inv.StockChangeID)

	st, err := f.svc.Settlement(ctx, result.Settlement.ID)
	require.NoError(t, err)
	require.Equal(t, result.Document.ID, st.DocumentID)
	require.True(t, st.Payment.CashAccounts[0].Amount.Equal(dec("600")))
}

func TestSettleShortfallWritesNothing(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.purchase(t, 40, "10")
	// both drafts pass the advisory check, only one can be served
	first := f.sale(t, 30, "20")
	second := f.sale(t, 30, "20")

	_, err := f.svc.Settle(ctx, settlement.Input{Type: settlement.TypeSalesInvoice, InvoiceID: first.ID, Payment: cashPayment("600")})
	require.NoError(t, err)

	_, err = f.svc.Settle(ctx, settlement.Input{Type: settlement.TypeSalesInvoice, InvoiceID: second.ID, Payment: cashPayment("600")})
	var shortfall *shared.InsufficientStockError
	require.True(t, errors.As(err, &shortfall))
	require.Equal(t, int64(30), shortfall.Requested)
	require.Equal(t, int64(10), shortfall.Available)

	require.Equal(t, int64(10), f.onHand(t))
	require.True(t, f.balance(t, cashAccount).Equal(dec("600")))
	inv, err := f.invoices.SalesInvoice(ctx, second.ID)
	require.NoError(t, err)
	require.Equal(t, invoicing.StatusUnpaid, inv.Status)
	require.Zero(t, inv.SettlementID)
	require.Zero(t, inv.StockChangeID)
}

func TestSettleTwiceConflicts(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	pi := f.purchase(t, 10, "10")
	in := settlement.Input{Type: settlement.TypePurchaseInvoice, InvoiceID: pi.ID, Payment: cashPayment("100")}

	_, err := f.svc.Settle(ctx, in)
	require.NoError(t, err)
	_, err = f.svc.Settle(ctx, in)
	require.ErrorIs(t, err, shared.ErrConflict)
	require.True(t, f.balance(t, cashAccount).Equal(dec("-100")))
}

func TestSettlePurchaseInvoiceMirrorsSales(t *testing.T) {
	f := newFixture(t)
	pi := f.purchase(t, 10, "10")

	result, err := f.svc.Settle(context.Background(), settlement.Input{
		Type:      settlement.TypePurchaseInvoice,
		InvoiceID: pi.ID,
		Payment: settlement.Payment{
			Bank:            dec("60"),
			DistributedBank: true,
			BankAccounts: []settlement.Allocation{
				{AccountID: bankAccount, Amount: dec("45")},
				{AccountID: otherBank, Amount: dec("15")},
			},
			Credit:          dec("40"),
			CreditAccountID: supplierAccount,
		},
	})
	require.NoError(t, err)
	require.True(t, result.Document.Amount.Equal(dec("100")))
	require.True(t, f.balance(t, purchaseAccount).Equal(dec("100")))
	require.True(t, f.balance(t, bankAccount).Equal(dec("-45")))
	require.True(t, f.balance(t, otherBank).Equal(dec("-15")))
	require.True(t, f.balance(t, supplierAccount).Equal(dec("-40")))
	// purchases bring stock in when invoiced, settling leaves it alone
	require.Equal(t, int64(10), f.onHand(t))
}

func TestSettleRejectsWrongAllocationAccountType(t *testing.T) {
	f := newFixture(t)
	pi := f.purchase(t, 1, "10")

	_, err := f.svc.Settle(context.Background(), settlement.Input{
		Type:      settlement.TypePurchaseInvoice,
		InvoiceID: pi.ID,
		Payment:   settlement.Payment{Cash: dec("10"), CashAccounts: []settlement.Allocation{{AccountID: bankAccount}}},
	})
	require.ErrorIs(t, err, shared.ErrValidation)
	require.True(t, f.balance(t, bankAccount).IsZero())
}

func TestUnsettleReopensInvoiceAndKeepsStockConsumed(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.purchase(t, 100, "10")
	si := f.sale(t, 30, "20")

	result, err := f.svc.Settle(ctx, settlement.Input{Type: settlement.TypeSalesInvoice, InvoiceID: si.ID, Payment: cashPayment("600")})
	require.NoError(t, err)
	require.NoError(t, f.svc.Unsettle(ctx, result.Settlement.ID))

	require.True(t, f.balance(t, cashAccount).IsZero())
	require.True(t, f.balance(t, salesAccount).IsZero())
	_, err = f.books.Document(ctx, result.Document.ID)
	require.ErrorIs(t, err, shared.ErrNotFound)
	_, err = f.svc.Settlement(ctx, result.Settlement.ID)
	require.ErrorIs(t, err, shared.ErrNotFound)

	inv, err := f.invoices.SalesInvoice(ctx, si.ID)
	require.NoError(t, err)
	require.Equal(t, invoicing.StatusUnpaid, inv.Status)
	require.Zero(t, inv.SettlementID)
	require.Equal(t, int64(70), f.onHand(t))

	// settling again must not take the stock out a second time
	_, err = f.svc.Settle(ctx, settlement.Input{Type: settlement.TypeSalesInvoice, InvoiceID: si.ID, Payment: cashPayment("600")})
	require.NoError(t, err)
	require.Equal(t, int64(70), f.onHand(t))
	require.True(t, f.balance(t, cashAccount).Equal(dec("600")))
}

func TestDeleteSettledSalesInvoiceCascades(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.purchase(t, 100, "10")
	si := f.sale(t, 30, "20")

	_, err := f.svc.Settle(ctx, settlement.Input{Type: settlement.TypeSalesInvoice, InvoiceID: si.ID, Payment: cashPayment("600")})
	require.NoError(t, err)
	require.ErrorIs(t, f.invoices.DeleteSalesInvoice(ctx, si.ID), shared.ErrConflict)

	require.NoError(t, f.svc.DeleteSalesInvoice(ctx, si.ID))
	require.Equal(t, int64(100), f.onHand(t))
	require.True(t, f.balance(t, cashAccount).IsZero())
	_, err = f.invoices.SalesInvoice(ctx, si.ID)
	require.ErrorIs(t, err, shared.ErrNotFound)
}

func TestDeleteSettledPurchaseInvoiceCascades(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	pi := f.purchase(t, 10, "10")

	_, err := f.svc.Settle(ctx, settlement.Input{Type: settlement.TypePurchaseInvoice, InvoiceID: pi.ID, Payment: cashPayment("100")})
	require.NoError(t, err)
	require.NoError(t, f.svc.DeletePurchaseInvoice(ctx, pi.ID))
	require.Zero(t, f.onHand(t))
	require.True(t, f.balance(t, cashAccount).IsZero())
	require.True(t, f.balance(t, purchaseAccount).IsZero())
}

func TestDeletePurchaseInvoiceBlockedBySoldStock(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	pi := f.purchase(t, 10, "10")
	si := f.sale(t, 8, "20")
	_, err := f.svc.Settle(ctx, settlement.Input{Type: settlement.TypeSalesInvoice, InvoiceID: si.ID, Payment: cashPayment("160")})
	require.NoError(t, err)

	err = f.svc.DeletePurchaseInvoice(ctx, pi.ID)
	require.ErrorIs(t, err, shared.ErrInsufficientStock)
	require.Equal(t, int64(2), f.onHand(t))
	_, err = f.invoices.PurchaseInvoice(ctx, pi.ID)
	require.NoError(t, err)
}

type countingLocker struct {
	keys []string
	err  error
}

func (l *countingLocker) Lock(ctx context.Context, key string) (func(), error) {
	if l.err != nil {
		return nil, l.err
	}
	l.keys = append(l.keys, key)
	return func() {}, nil
}

func TestSettleTakesInvoiceLock(t *testing.T) {
	store := memstore.New()
	store.SeedWarehouse(inventory.WarehouseStock{WarehouseID: warehouse, Retail: true})
	store.SeedAccount(ledger.Account{ID: cashAccount, Type: ledger.AccountTypeCash})
	store.SeedAccount(ledger.Account{ID: purchaseAccount, Type: ledger.AccountTypeExpense})
	stock := inventory.NewService(store.Inventory(), store)
	invoices := invoicing.NewService(store.Invoicing(), stock)
	locker := &countingLocker{}
	svc := settlement.NewService(store.Settlement(), invoices, stock, ledger.NewService(store.Ledger()), settlement.ServiceConfig{
		PurchaseAccountID: purchaseAccount,
		Locker:            locker,
	})
	ctx := context.Background()
	pi, err := invoices.CreatePurchaseInvoice(ctx, invoicing.PurchaseInvoiceInput{
		WarehouseID: warehouse,
		DateTime:    time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC),
		Lines:       []invoicing.PurchaseLine{{ProductID: product, Count: 1, Price: inventory.Price{Purchase: dec("5")}}},
	})
	require.NoError(t, err)

	_, err = svc.Settle(ctx, settlement.Input{Type: settlement.TypePurchaseInvoice, InvoiceID: pi.ID, Payment: cashPayment("5")})
	require.NoError(t, err)
	require.Equal(t, []string{shared.SettlementLockKey(string(settlement.TypePurchaseInvoice), pi.ID)}, locker.keys)

	locker.err = shared.Conflict("lock", "busy", "busy, retry later")
	_, err = svc.Settle(ctx, settlement.Input{Type: settlement.TypePurchaseInvoice, InvoiceID: pi.ID, Payment: cashPayment("5")})
	require.ErrorIs(t, err, shared.ErrConflict)
}

func TestSettledArtifactsChangeOnlyThroughTheInvoice(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.purchase(t, 100, "10")
	si := f.sale(t, 30, "20")

	result, err := f.svc.Settle(ctx, settlement.Input{Type: settlement.TypeSalesInvoice, InvoiceID: si.ID, Payment: cashPayment("600")})
	require.NoError(t, err)
	paid, err := f.invoices.SalesInvoice(ctx, si.ID)
	require.NoError(t, err)
	require.NotZero(t, paid.StockChangeID)

	require.ErrorIs(t, f.stock.Undo(ctx, paid.StockChangeID), shared.ErrConflict)
	require.Equal(t, int64(70), f.onHand(t))

	_, err = f.books.Update(ctx, result.Document.ID, ledger.DocumentInput{Lines: []ledger.Line{
		{AccountID: cashAccount, Debit: dec("1")},
		{AccountID: salesAccount, Credit: dec("1")},
	}})
	require.ErrorIs(t, err, shared.ErrConflict)
	_, err = f.books.Reverse(ctx, result.Document.ID)
	require.ErrorIs(t, err, shared.ErrConflict)
	require.ErrorIs(t, f.books.Delete(ctx, result.Document.ID), shared.ErrConflict)
	require.True(t, f.balance(t, cashAccount).Equal(dec("600")))

	require.NoError(t, f.svc.DeleteSalesInvoice(ctx, si.ID))
	require.Equal(t, int64(100), f.onHand(t))
	require.True(t, f.balance(t, cashAccount).IsZero())
	require.True(t, f.balance(t, salesAccount).IsZero())
	_, err = f.books.Document(ctx, result.Document.ID)
	require.ErrorIs(t, err, shared.ErrNotFound)
}
