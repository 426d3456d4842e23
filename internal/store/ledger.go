package store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/safar/go-retail-ledger/internal/database"
	"github.com/safar/go-retail-ledger/internal/models"
	"github.com/shopspring/decimal"
)

// ApplyStockChange applies a signed quantity change to a product's stock and
// appends the matching ledger entry. The product update and the ledger
// insert commit as one transaction, so the product's stock always equals the
// stock_after of its newest transaction.
//
// The sign convention is the caller's: a sale of N units is passed as -N.
// Stock is never clamped; a change may drive it negative. For sale
// decreases, pricePerUnit defaults to the product's list price when nil and
// total_value is |quantityChange| * pricePerUnit.
func ApplyStockChange(ctx context.Context, db *sql.DB, accountID, productID int64, quantityChange int, txType, notes string, pricePerUnit *decimal.Decimal) (*models.Product, *models.StockTransaction, error) {
	if quantityChange == 0 {
		return nil, nil, database.ErrInvalidQuantity
	}
	if !models.ValidTransactionType(txType) {
		return nil, nil, database.ErrInvalidTransactionType
	}

	var (
		product *models.Product
		entry   *models.StockTransaction
	)

	err := database.WithRetry(ctx, db, database.SerializableTxOptions(), func(tx *sql.Tx) error {
		var err error
		product, entry, err = applyStockChangeTx(ctx, tx, accountID, productID, quantityChange, txType, notes, pricePerUnit)
		return err
	})
	if err != nil {
		return nil, nil, err
	}

	return product, entry, nil
}

// applyStockChangeTx is the in-transaction body of ApplyStockChange, shared
// with order creation so order-driven sales ride the caller's transaction.
func applyStockChangeTx(ctx context.Context, tx *sql.Tx, accountID, productID int64, quantityChange int, txType, notes string, pricePerUnit *decimal.Decimal) (*models.Product, *models.StockTransaction, error) {
	product := &models.Product{}

	query := `
		SELECT id, account_id, name, description, price, stock, low_stock_threshold,
		       COALESCE(category, ''), COALESCE(image_url, ''), created_at, updated_at, version
		FROM products
		WHERE id = $1 AND account_id = $2
		FOR UPDATE`

	err := tx.QueryRowContext(ctx, query, productID, accountID).Scan(
		&product.ID,
		&product.AccountID,
		&product.Name,
		&product.Description,
		&product.Price,
		&product.Stock,
		&product.LowStockThreshold,
		&product.Category,
		&product.ImageURL,
		&product.CreatedAt,
		&product.UpdatedAt,
		&product.Version,
	)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil, database.ErrProductNotFound
		}
		return nil, nil, fmt.Errorf("lock product: %w", err)
	}

	stockBefore := product.Stock
	stockAfter := stockBefore + quantityChange

	err = tx.QueryRowContext(ctx,
		`UPDATE products
		 SET stock = $1, updated_at = NOW(), version = version + 1
		 WHERE id = $2
		 RETURNING stock, updated_at, version`,
		stockAfter, product.ID).Scan(&product.Stock, &product.UpdatedAt, &product.Version)
	if err != nil {
		return nil, nil, fmt.Errorf("update stock: %w", err)
	}

	entry := &models.StockTransaction{
		AccountID:      accountID,
		ProductID:      product.ID,
		ProductName:    product.Name,
		Type:           txType,
		QuantityChange: quantityChange,
		StockBefore:    stockBefore,
		StockAfter:     stockAfter,
		Notes:          notes,
	}

	if txType == models.TransactionTypeSale && quantityChange < 0 {
		unit := product.Price
		if pricePerUnit != nil {
			unit = *pricePerUnit
		}
		total := unit.Mul(decimal.NewFromInt(int64(-quantityChange)))
		entry.PricePerUnit = &unit
		entry.TotalValue = &total
	}

	if err := insertTransactionTx(ctx, tx, entry); err != nil {
		return nil, nil, err
	}

	return product, entry, nil
}

// insertTransactionTx appends a fully populated ledger entry. Entries are
// immutable once written; there is no update or standalone delete path.
func insertTransactionTx(ctx context.Context, tx *sql.Tx, entry *models.StockTransaction) error {
	var pricePerUnit, totalValue interface{}
	if entry.PricePerUnit != nil {
		pricePerUnit = *entry.PricePerUnit
	}
	if entry.TotalValue != nil {
		totalValue = *entry.TotalValue
	}

	err := tx.QueryRowContext(ctx,
		`INSERT INTO stock_transactions
		 (account_id, product_id, product_name, type, quantity_change, stock_before, stock_after,
		  price_per_unit, total_value, notes, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, NOW())
		 RETURNING id, created_at`,
		entry.AccountID, entry.ProductID, entry.ProductName, entry.Type,
		entry.QuantityChange, entry.StockBefore, entry.StockAfter,
		pricePerUnit, totalValue, entry.Notes).Scan(&entry.ID, &entry.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert stock transaction: %w", err)
	}

	return nil
}

// ListTransactions pages through a tenant's ledger newest-first. A zero
// productID returns entries for all products.
func ListTransactions(ctx context.Context, db *sql.DB, accountID, productID int64, cursor string, limit int) (*CursorPage, error) {
	cursorData, err := DecodeCursor(cursor)
	if err != nil {
		return nil, fmt.Errorf("decode cursor: %w", err)
	}

	query := `
		SELECT id, account_id, product_id, product_name, type, quantity_change,
		       stock_before, stock_after, price_per_unit, total_value, COALESCE(notes, ''), created_at
		FROM stock_transactions
		WHERE account_id = $1
		  AND ($2 = 0 OR product_id = $2)
		  AND (created_at, id) < ($3, $4)
		ORDER BY created_at DESC, id DESC
		LIMIT $5`

	rows, err := db.QueryContext(ctx, query, accountID, productID, cursorData.CreatedAt, cursorData.ID, limit+1)
	if err != nil {
		return nil, fmt.Errorf("list stock transactions: %w", err)
	}
	defer rows.Close()

	var entries []models.StockTransaction
	for rows.Next() {
		var entry models.StockTransaction
		var pricePerUnit, totalValue decimal.NullDecimal
		err := rows.Scan(
			&entry.ID,
			&entry.AccountID,
			&entry.ProductID,
			&entry.ProductName,
			&entry.Type,
			&entry.QuantityChange,
			&entry.StockBefore,
			&entry.StockAfter,
			&pricePerUnit,
			&totalValue,
			&entry.Notes,
			&entry.CreatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("scan stock transaction: %w", err)
		}
		if pricePerUnit.Valid {
			entry.PricePerUnit = &pricePerUnit.Decimal
		}
		if totalValue.Valid {
			entry.TotalValue = &totalValue.Decimal
		}
		entries = append(entries, entry)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}

	hasMore := len(entries) > limit
	if hasMore {
		entries = entries[:limit]
	}

	var nextCursor string
	if hasMore && len(entries) > 0 {
		last := entries[len(entries)-1]
		nextCursor = EncodeCursor(Cursor{CreatedAt: last.CreatedAt, ID: last.ID})
	}

	return &CursorPage{
		Items:      entries,
		NextCursor: nextCursor,
		HasMore:    hasMore,
	}, nil
}
