package store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/safar/go-retail-ledger/internal/database"
	"github.com/safar/go-retail-ledger/internal/models"
	"github.com/shopspring/decimal"
)

type CreateOrderRequest struct {
	Items []OrderItemRequest
	Notes string
}

// OrderItemRequest describes one line of a new order. A nil UnitPrice means
// "charge the product's current list price".
type OrderItemRequest struct {
	ProductID int64
	Quantity  int
	UnitPrice *decimal.Decimal
	Discount  decimal.Decimal
}

type orderTotals struct {
	Subtotal      decimal.Decimal
	TotalDiscount decimal.Decimal
	GrandTotal    decimal.Decimal
}

// computeOrderTotals derives the per-line and aggregate financials:
//
//	final_unit_price = unit_price - discount
//	line_total       = final_unit_price * quantity
//	subtotal         = sum(unit_price * quantity)
//	total_discount   = sum(discount * quantity)
//	grand_total      = subtotal - total_discount
//
// Items are mutated in place to carry their derived fields.
func computeOrderTotals(items []models.OrderItem) orderTotals {
	var totals orderTotals
	for i := range items {
		item := &items[i]
		qty := decimal.NewFromInt(int64(item.Quantity))
		item.FinalUnitPrice = item.UnitPrice.Sub(item.Discount)
		item.LineTotal = item.FinalUnitPrice.Mul(qty)
		totals.Subtotal = totals.Subtotal.Add(item.UnitPrice.Mul(qty))
		totals.TotalDiscount = totals.TotalDiscount.Add(item.Discount.Mul(qty))
	}
	totals.GrandTotal = totals.Subtotal.Sub(totals.TotalDiscount)
	return totals
}

// CreateOrder creates an order with frozen financial totals and one `sale`
// ledger entry per line item, all in a single serializable transaction.
// Order numbers come from a per-tenant atomic counter, so concurrent
// creation cannot produce duplicates.
//
// Insufficient stock does not fail the order; the resulting negative stock
// is the caller's business concern and shows up in the low-stock listing.
func CreateOrder(ctx context.Context, db *sql.DB, accountID int64, req CreateOrderRequest) (*models.Order, error) {
	if len(req.Items) == 0 {
		return nil, database.ErrEmptyOrder
	}
	for _, item := range req.Items {
		if item.Quantity < 1 || item.Discount.IsNegative() {
			return nil, database.ErrInvalidOrderItem
		}
	}

	var order *models.Order

	err := database.WithRetry(ctx, db, database.SerializableTxOptions(), func(tx *sql.Tx) error {
		items := make([]models.OrderItem, 0, len(req.Items))
		for _, reqItem := range req.Items {
			var name string
			var listPrice decimal.Decimal
			err := tx.QueryRowContext(ctx,
				`SELECT name, price FROM products WHERE id = $1 AND account_id = $2`,
				reqItem.ProductID, accountID).Scan(&name, &listPrice)
			if err != nil {
				if err == sql.ErrNoRows {
					return database.ErrProductNotFound
				}
				return fmt.Errorf("resolve product %d: %w", reqItem.ProductID, err)
			}

			unitPrice := listPrice
			if reqItem.UnitPrice != nil {
				unitPrice = *reqItem.UnitPrice
			}

			items = append(items, models.OrderItem{
				ProductID:   reqItem.ProductID,
				ProductName: name,
				Quantity:    reqItem.Quantity,
				UnitPrice:   unitPrice,
				Discount:    reqItem.Discount,
			})
		}

		totals := computeOrderTotals(items)

		orderNumber, err := nextOrderNumber(ctx, tx, accountID)
		if err != nil {
			return err
		}

		order = &models.Order{
			AccountID:     accountID,
			OrderNumber:   orderNumber,
			Status:        models.OrderStatusCompleted,
			Subtotal:      totals.Subtotal,
			TotalDiscount: totals.TotalDiscount,
			GrandTotal:    totals.GrandTotal,
			Notes:         req.Notes,
		}

		err = tx.QueryRowContext(ctx,
			`INSERT INTO orders (account_id, order_number, status, subtotal, total_discount, grand_total, notes, created_at)
			 VALUES ($1, $2, $3, $4, $5, $6, $7, NOW())
			 RETURNING id, created_at`,
			accountID, order.OrderNumber, order.Status, order.Subtotal,
			order.TotalDiscount, order.GrandTotal, order.Notes).Scan(&order.ID, &order.CreatedAt)
		if err != nil {
			return fmt.Errorf("create order: %w", err)
		}

		for i := range items {
			item := &items[i]
			item.OrderID = order.ID
			err = tx.QueryRowContext(ctx,
				`INSERT INTO order_items (order_id, product_id, product_name, quantity, unit_price,
				                          discount, final_unit_price, line_total, created_at)
				 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, NOW())
				 RETURNING id, created_at`,
				item.OrderID, item.ProductID, item.ProductName, item.Quantity,
				item.UnitPrice, item.Discount, item.FinalUnitPrice, item.LineTotal).Scan(&item.ID, &item.CreatedAt)
			if err != nil {
				return fmt.Errorf("create order item: %w", err)
			}
		}

		for i := range items {
			item := &items[i]
			finalUnitPrice := item.FinalUnitPrice
			_, _, err := applyStockChangeTx(ctx, tx, accountID, item.ProductID, -item.Quantity,
				models.TransactionTypeSale, "Order "+order.OrderNumber, &finalUnitPrice)
			if err != nil {
				return err
			}
		}

		order.Items = items
		return nil
	})
	if err != nil {
		return nil, err
	}

	return order, nil
}

// nextOrderNumber claims the tenant's next sequence value atomically. The
// counter is monotonic and never reused, so deleted orders leave gaps rather
// than duplicates.
func nextOrderNumber(ctx context.Context, tx *sql.Tx, accountID int64) (string, error) {
	var seq int64
	err := tx.QueryRowContext(ctx,
		`INSERT INTO order_counters (account_id, seq)
		 VALUES ($1, 1)
		 ON CONFLICT (account_id)
		 DO UPDATE SET seq = order_counters.seq + 1
		 RETURNING seq`,
		accountID).Scan(&seq)
	if err != nil {
		return "", fmt.Errorf("next order number: %w", err)
	}
	return fmt.Sprintf("ORD-%04d", seq), nil
}

func GetOrder(ctx context.Context, db *sql.DB, accountID, id int64) (*models.Order, error) {
	order := &models.Order{}

	query := `
		SELECT id, account_id, order_number, status, subtotal, total_discount, grand_total,
		       COALESCE(notes, ''), created_at
		FROM orders
		WHERE id = $1 AND account_id = $2`

	err := db.QueryRowContext(ctx, query, id, accountID).Scan(
		&order.ID,
		&order.AccountID,
		&order.OrderNumber,
		&order.Status,
		&order.Subtotal,
		&order.TotalDiscount,
		&order.GrandTotal,
		&order.Notes,
		&order.CreatedAt,
	)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, database.ErrOrderNotFound
		}
		return nil, fmt.Errorf("get order: %w", err)
	}

	itemsQuery := `
		SELECT id, order_id, product_id, product_name, quantity, unit_price,
		       discount, final_unit_price, line_total, created_at
		FROM order_items
		WHERE order_id = $1
		ORDER BY id ASC`

	rows, err := db.QueryContext(ctx, itemsQuery, id)
	if err != nil {
		return nil, fmt.Errorf("get order items: %w", err)
	}
	defer rows.Close()

	var items []models.OrderItem
	for rows.Next() {
		var item models.OrderItem
		err := rows.Scan(
			&item.ID,
			&item.OrderID,
			&item.ProductID,
			&item.ProductName,
			&item.Quantity,
			&item.UnitPrice,
			&item.Discount,
			&item.FinalUnitPrice,
			&item.LineTotal,
			&item.CreatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("scan order item: %w", err)
		}
		items = append(items, item)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}

	order.Items = items

	return order, nil
}

func ListOrdersCursor(ctx context.Context, db *sql.DB, accountID int64, cursor string, limit int) (*CursorPage, error) {
	cursorData, err := DecodeCursor(cursor)
	if err != nil {
		return nil, fmt.Errorf("decode cursor: %w", err)
	}

	query := `
		SELECT id, account_id, order_number, status, subtotal, total_discount, grand_total,
		       COALESCE(notes, ''), created_at
		FROM orders
		WHERE account_id = $1
		  AND (created_at, id) < ($2, $3)
		ORDER BY created_at DESC, id DESC
		LIMIT $4`

	rows, err := db.QueryContext(ctx, query, accountID, cursorData.CreatedAt, cursorData.ID, limit+1)
	if err != nil {
		return nil, fmt.Errorf("list orders: %w", err)
	}
	defer rows.Close()

	var orders []models.Order
	for rows.Next() {
		var order models.Order
		err := rows.Scan(
			&order.ID,
			&order.AccountID,
			&order.OrderNumber,
			&order.Status,
			&order.Subtotal,
			&order.TotalDiscount,
			&order.GrandTotal,
			&order.Notes,
			&order.CreatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("scan order: %w", err)
		}
		orders = append(orders, order)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}

	hasMore := len(orders) > limit
	if hasMore {
		orders = orders[:limit]
	}

	var nextCursor string
	if hasMore && len(orders) > 0 {
		last := orders[len(orders)-1]
		nextCursor = EncodeCursor(Cursor{CreatedAt: last.CreatedAt, ID: last.ID})
	}

	return &CursorPage{
		Items:      orders,
		NextCursor: nextCursor,
		HasMore:    hasMore,
	}, nil
}
