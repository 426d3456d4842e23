package store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/safar/go-retail-ledger/internal/database"
	"github.com/safar/go-retail-ledger/internal/models"
	"github.com/shopspring/decimal"
)

type CreateProductRequest struct {
	Name              string
	Description       string
	Price             decimal.Decimal
	InitialStock      int
	LowStockThreshold int
	Category          string
	ImageURL          string
}

// ProductUpdate carries the mutable product attributes. Nil fields are left
// unchanged. Stock is deliberately absent: stock changes only flow through
// the ledger.
type ProductUpdate struct {
	Name              *string
	Description       *string
	Price             *decimal.Decimal
	LowStockThreshold *int
	Category          *string
	ImageURL          *string
}

// CreateProduct inserts a product and its single `initial` ledger entry
// (quantity_change = initial stock, stock_before = 0) in one transaction.
func CreateProduct(ctx context.Context, db *sql.DB, accountID int64, req CreateProductRequest) (*models.Product, error) {
	if req.Name == "" || !req.Price.IsPositive() || req.LowStockThreshold < 0 || req.InitialStock < 0 {
		return nil, database.ErrInvalidProduct
	}

	product := &models.Product{}

	err := database.WithTransaction(ctx, db, database.DefaultTxOptions(), func(tx *sql.Tx) error {
		query := `
			INSERT INTO products (account_id, name, description, price, stock, low_stock_threshold,
			                      category, image_url, created_at, updated_at, version)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, NOW(), NOW(), 1)
			RETURNING id, account_id, name, description, price, stock, low_stock_threshold,
			          COALESCE(category, ''), COALESCE(image_url, ''), created_at, updated_at, version`

		err := tx.QueryRowContext(ctx, query,
			accountID, req.Name, req.Description, req.Price, req.InitialStock,
			req.LowStockThreshold, nullableString(strPtrIfSet(req.Category)), nullableString(strPtrIfSet(req.ImageURL))).Scan(
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
			return fmt.Errorf("create product: %w", err)
		}

		return insertTransactionTx(ctx, tx, &models.StockTransaction{
			AccountID:      accountID,
			ProductID:      product.ID,
			ProductName:    product.Name,
			Type:           models.TransactionTypeInitial,
			QuantityChange: req.InitialStock,
			StockBefore:    0,
			StockAfter:     req.InitialStock,
			Notes:          "Initial stock",
		})
	})
	if err != nil {
		return nil, err
	}

	return product, nil
}

func GetProduct(ctx context.Context, db *sql.DB, accountID, id int64) (*models.Product, error) {
	product := &models.Product{}

	query := `
		SELECT id, account_id, name, description, price, stock, low_stock_threshold,
		       COALESCE(category, ''), COALESCE(image_url, ''), created_at, updated_at, version
		FROM products
		WHERE id = $1 AND account_id = $2`

	err := db.QueryRowContext(ctx, query, id, accountID).Scan(
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
			return nil, database.ErrProductNotFound
		}
		return nil, fmt.Errorf("get product: %w", err)
	}

	return product, nil
}

// UpdateProduct edits catalog attributes. Stock never changes here.
func UpdateProduct(ctx context.Context, db *sql.DB, accountID, id int64, upd ProductUpdate) (*models.Product, error) {
	if upd.Name != nil && *upd.Name == "" {
		return nil, database.ErrInvalidProduct
	}
	if upd.Price != nil && !upd.Price.IsPositive() {
		return nil, database.ErrInvalidProduct
	}
	if upd.LowStockThreshold != nil && *upd.LowStockThreshold < 0 {
		return nil, database.ErrInvalidProduct
	}

	product := &models.Product{}

	query := `
		UPDATE products
		SET name = COALESCE($3, name),
		    description = COALESCE($4, description),
		    price = COALESCE($5, price),
		    low_stock_threshold = COALESCE($6, low_stock_threshold),
		    category = COALESCE($7, category),
		    image_url = COALESCE($8, image_url),
		    updated_at = NOW(),
		    version = version + 1
		WHERE id = $1 AND account_id = $2
		RETURNING id, account_id, name, description, price, stock, low_stock_threshold,
		          COALESCE(category, ''), COALESCE(image_url, ''), created_at, updated_at, version`

	err := db.QueryRowContext(ctx, query, id, accountID,
		nullableString(upd.Name), nullableString(upd.Description), nullableDecimal(upd.Price),
		nullableInt(upd.LowStockThreshold), nullableString(upd.Category), nullableString(upd.ImageURL)).Scan(
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
			return nil, database.ErrProductNotFound
		}
		return nil, fmt.Errorf("update product: %w", err)
	}

	return product, nil
}

// DeleteProduct removes a product. Its ledger entries go with it via the
// foreign-key cascade; order items keep their denormalized snapshots.
func DeleteProduct(ctx context.Context, db *sql.DB, accountID, id int64) error {
	result, err := db.ExecContext(ctx,
		`DELETE FROM products WHERE id = $1 AND account_id = $2`, id, accountID)
	if err != nil {
		return fmt.Errorf("delete product: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("get rows affected: %w", err)
	}

	if rowsAffected == 0 {
		return database.ErrProductNotFound
	}

	return nil
}

func ListProducts(ctx context.Context, db *sql.DB, accountID int64, page, pageSize int) (*OffsetPage, error) {
	var total int64
	err := db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM products WHERE account_id = $1`, accountID).Scan(&total)
	if err != nil {
		return nil, fmt.Errorf("count products: %w", err)
	}

	offset := (page - 1) * pageSize
	query := `
		SELECT id, account_id, name, description, price, stock, low_stock_threshold,
		       COALESCE(category, ''), COALESCE(image_url, ''), created_at, updated_at, version
		FROM products
		WHERE account_id = $1
		ORDER BY created_at DESC
		LIMIT $2 OFFSET $3`

	rows, err := db.QueryContext(ctx, query, accountID, pageSize, offset)
	if err != nil {
		return nil, fmt.Errorf("list products: %w", err)
	}
	defer rows.Close()

	products, err := scanProducts(rows)
	if err != nil {
		return nil, err
	}

	return &OffsetPage{
		Items:      products,
		Total:      total,
		Page:       page,
		PageSize:   pageSize,
		TotalPages: totalPages(total, pageSize),
	}, nil
}

// ListLowStock returns the tenant's products at or below their threshold.
func ListLowStock(ctx context.Context, db *sql.DB, accountID int64) ([]models.Product, error) {
	query := `
		SELECT id, account_id, name, description, price, stock, low_stock_threshold,
		       COALESCE(category, ''), COALESCE(image_url, ''), created_at, updated_at, version
		FROM products
		WHERE account_id = $1 AND stock <= low_stock_threshold
		ORDER BY stock ASC, name ASC`

	rows, err := db.QueryContext(ctx, query, accountID)
	if err != nil {
		return nil, fmt.Errorf("list low stock: %w", err)
	}
	defer rows.Close()

	return scanProducts(rows)
}

func scanProducts(rows *sql.Rows) ([]models.Product, error) {
	var products []models.Product
	for rows.Next() {
		var product models.Product
		err := rows.Scan(
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
			return nil, fmt.Errorf("scan product: %w", err)
		}
		products = append(products, product)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}

	return products, nil
}

func strPtrIfSet(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func nullableInt(i *int) interface{} {
	if i == nil {
		return nil
	}
	return *i
}

func nullableDecimal(d *decimal.Decimal) interface{} {
	if d == nil {
		return nil
	}
	return *d
}
