package memstore

import (
	"context"
	"slices"

	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/backoffice/internal/inventory"
	"github.com/odyssey-erp/backoffice/internal/invoicing"
	"github.com/odyssey-erp/backoffice/internal/ledger"
	"github.com/odyssey-erp/backoffice/internal/settlement"
	"github.com/odyssey-erp/backoffice/internal/shared"
)

// Tx is one unit of work. It satisfies the transactional repository of every
// module, so a settlement sees the same invoices, stock and balances it writes.
type Tx struct {
	st *state
}

var (
	_ ledger.TxRepository     = (*Tx)(nil)
	_ inventory.TxRepository  = (*Tx)(nil)
	_ invoicing.TxRepository  = (*Tx)(nil)
	_ settlement.TxRepository = (*Tx)(nil)
)

func (tx *Tx) id() int64 {
	tx.st.nextID++
	return tx.st.nextID
}

func (tx *Tx) Inventory() inventory.TxRepository { return tx }

func (tx *Tx) Invoices() invoicing.TxRepository { return tx }

func (tx *Tx) Ledger() ledger.TxRepository { return tx }

// ledger

func (tx *Tx) GetAccount(ctx context.Context, id int64) (ledger.Account, error) {
	acc, ok := tx.st.accounts[id]
	if !ok {
		return ledger.Account{}, shared.NotFound("account", id)
	}
	return acc, nil
}

func (tx *Tx) AddToBalance(ctx context.Context, id int64, delta decimal.Decimal) (decimal.Decimal, error) {
	acc, ok := tx.st.accounts[id]
	if !ok {
		return decimal.Zero, shared.NotFound("account", id)
	}
	acc.Balance = acc.Balance.Add(delta)
	tx.st.accounts[id] = acc
	return acc.Balance, nil
}

func (tx *Tx) InsertDocument(ctx context.Context, doc ledger.Document) (ledger.Document, error) {
	doc.ID = tx.id()
	doc.Lines = slices.Clone(doc.Lines)
	tx.st.documents[doc.ID] = doc
	return doc, nil
}

func (tx *Tx) GetDocument(ctx context.Context, id int64) (ledger.Document, error) {
	doc, ok := tx.st.documents[id]
	if !ok {
		return ledger.Document{}, shared.NotFound("accounting document", id)
	}
	doc.Lines = slices.Clone(doc.Lines)
	return doc, nil
}

func (tx *Tx) UpdateDocument(ctx context.Context, doc ledger.Document) error {
	if _, ok := tx.st.documents[doc.ID]; !ok {
		return shared.NotFound("accounting document", doc.ID)
	}
	doc.Lines = slices.Clone(doc.Lines)
	tx.st.documents[doc.ID] = doc
	return nil
}

func (tx *Tx) DeleteDocument(ctx context.Context, id int64) error {
	if _, ok := tx.st.documents[id]; !ok {
		return shared.NotFound("accounting document", id)
	}
	delete(tx.st.documents, id)
	return nil
}

// inventory

func (tx *Tx) stock(key inventory.StockKey) int64 {
	var total int64
	for _, rec := range tx.st.records {
		if rec.Key() == key {
			total += rec.Count
		}
	}
	return total
}

func (tx *Tx) LockStock(ctx context.Context, key inventory.StockKey) (int64, error) {
	return tx.stock(key), nil
}

func (tx *Tx) InsertRecord(ctx context.Context, rec inventory.Record) (inventory.Record, error) {
	rec.ID = tx.id()
	tx.st.records[rec.ID] = rec
	return rec, nil
}

func (tx *Tx) GetRecord(ctx context.Context, id int64) (inventory.Record, error) {
	rec, ok := tx.st.records[id]
	if !ok {
		return inventory.Record{}, shared.NotFound("inventory record", id)
	}
	return rec, nil
}

func (tx *Tx) DeleteRecord(ctx context.Context, id int64) error {
	if _, ok := tx.st.records[id]; !ok {
		return shared.NotFound("inventory record", id)
	}
	delete(tx.st.records, id)
	return nil
}

func (tx *Tx) UpdateRecordCount(ctx context.Context, id, count int64) error {
	rec, ok := tx.st.records[id]
	if !ok {
		return shared.NotFound("inventory record", id)
	}
	rec.Count = count
	tx.st.records[id] = rec
	return nil
}

func (tx *Tx) StockByWarehouse(ctx context.Context, productID int64, variant string) ([]inventory.WarehouseStock, error) {
	out := make([]inventory.WarehouseStock, 0, len(tx.st.warehouses))
	for _, w := range tx.st.warehouses {
		w.Count = tx.stock(inventory.StockKey{ProductID: productID, Variant: variant, WarehouseID: w.WarehouseID})
		out = append(out, w)
	}
	return out, nil
}

func (tx *Tx) LatestPurchasePrice(ctx context.Context, productID int64, variant string) (decimal.Decimal, error) {
	var latest inventory.Record
	for _, rec := range tx.st.records {
		if rec.ProductID != productID || rec.Variant != variant || rec.RefModule != inventory.RefPurchaseInvoice || rec.Count <= 0 {
			continue
		}
		// newest by date, then by id, as the SQL repository orders them
		if rec.DateTime.After(latest.DateTime) || (rec.DateTime.Equal(latest.DateTime) && rec.ID > latest.ID) {
			latest = rec
		}
	}
	return latest.Price.Purchase, nil
}

func (tx *Tx) InsertChange(ctx context.Context, change inventory.Change) (inventory.Change, error) {
	change.ID = tx.id()
	change.Entries = slices.Clone(change.Entries)
	tx.st.changes[change.ID] = change
	return change, nil
}

func (tx *Tx) GetChange(ctx context.Context, id int64) (inventory.Change, error) {
	change, ok := tx.st.changes[id]
	if !ok {
		return inventory.Change{}, shared.NotFound("inventory change", id)
	}
	return change, nil
}

func (tx *Tx) DeleteChange(ctx context.Context, id int64) error {
	if _, ok := tx.st.changes[id]; !ok {
		return shared.NotFound("inventory change", id)
	}
	delete(tx.st.changes, id)
	return nil
}

func (tx *Tx) InsertCommodityProfit(ctx context.Context, profit inventory.CommodityProfit) (inventory.CommodityProfit, error) {
	profit.ID = tx.id()
	tx.st.profits[profit.ID] = profit
	return profit, nil
}

func (tx *Tx) DeleteCommodityProfits(ctx context.Context, refModule, refID string) error {
	for id, p := range tx.st.profits {
		if p.RefModule == refModule && p.RefID == refID {
			delete(tx.st.profits, id)
		}
	}
	return nil
}

// invoicing

func (tx *Tx) GetReason(ctx context.Context, id int64) (invoicing.Reason, error) {
	reason, ok := tx.st.reasons[id]
	if !ok {
		return invoicing.Reason{}, shared.NotFound("add-and-subtract reason", id)
	}
	return reason, nil
}

func (tx *Tx) InsertPurchaseInvoice(ctx context.Context, inv invoicing.PurchaseInvoice) (invoicing.PurchaseInvoice, error) {
	inv.ID = tx.id()
	tx.st.purchases[inv.ID] = inv
	return inv, nil
}

func (tx *Tx) GetPurchaseInvoice(ctx context.Context, id int64) (invoicing.PurchaseInvoice, error) {
	inv, ok := tx.st.purchases[id]
	if !ok {
		return invoicing.PurchaseInvoice{}, shared.NotFound("purchase invoice", id)
	}
	return inv, nil
}

func (tx *Tx) UpdatePurchaseInvoice(ctx context.Context, inv invoicing.PurchaseInvoice) error {
	if _, ok := tx.st.purchases[inv.ID]; !ok {
		return shared.NotFound("purchase invoice", inv.ID)
	}
	tx.st.purchases[inv.ID] = inv
	return nil
}

func (tx *Tx) DeletePurchaseInvoice(ctx context.Context, id int64) error {
	if _, ok := tx.st.purchases[id]; !ok {
		return shared.NotFound("purchase invoice", id)
	}
	delete(tx.st.purchases, id)
	return nil
}

func (tx *Tx) InsertSalesInvoice(ctx context.Context, inv invoicing.SalesInvoice) (invoicing.SalesInvoice, error) {
	inv.ID = tx.id()
	tx.st.sales[inv.ID] = inv
	return inv, nil
}

func (tx *Tx) GetSalesInvoice(ctx context.Context, id int64) (invoicing.SalesInvoice, error) {
	inv, ok := tx.st.sales[id]
	if !ok {
		return invoicing.SalesInvoice{}, shared.NotFound("sales invoice", id)
	}
	return inv, nil
}

func (tx *Tx) UpdateSalesInvoice(ctx context.Context, inv invoicing.SalesInvoice) error {
	if _, ok := tx.st.sales[inv.ID]; !ok {
		return shared.NotFound("sales invoice", inv.ID)
	}
	tx.st.sales[inv.ID] = inv
	return nil
}

func (tx *Tx) DeleteSalesInvoice(ctx context.Context, id int64) error {
	if _, ok := tx.st.sales[id]; !ok {
		return shared.NotFound("sales invoice", id)
	}
	delete(tx.st.sales, id)
	return nil
}

// settlement

func (tx *Tx) InsertSettlement(ctx context.Context, st settlement.Settlement) (settlement.Settlement, error) {
	for _, existing := range tx.st.settlements {
		if existing.Type == st.Type && existing.InvoiceID == st.InvoiceID {
			return settlement.Settlement{}, shared.Conflict(string(st.Type), st.InvoiceID, "invoice already settled")
		}
	}
	st.ID = tx.id()
	tx.st.settlements[st.ID] = st
	return st, nil
}

func (tx *Tx) GetSettlement(ctx context.Context, id int64) (settlement.Settlement, error) {
	st, ok := tx.st.settlements[id]
	if !ok {
		return settlement.Settlement{}, shared.NotFound("settlement", id)
	}
	return st, nil
}

func (tx *Tx) UpdateSettlement(ctx context.Context, st settlement.Settlement) error {
	if _, ok := tx.st.settlements[st.ID]; !ok {
		return shared.NotFound("settlement", st.ID)
	}
	tx.st.settlements[st.ID] = st
	return nil
}

func (tx *Tx) DeleteSettlement(ctx context.Context, id int64) error {
	if _, ok := tx.st.settlements[id]; !ok {
		return shared.NotFound("settlement", id)
	}
	delete(tx.st.settlements, id)
	return nil
}
