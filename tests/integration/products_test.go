package integration

import (
	"context"
	"errors"
	"testing"

	"github.com/safar/go-retail-ledger/internal/database"
	"github.com/safar/go-retail-ledger/internal/models"
	"github.com/safar/go-retail-ledger/internal/store"
	"github.com/shopspring/decimal"
)

func TestCreateProductWritesInitialTransaction(t *testing.T) {
	db, cleanup := setupTestDB(t)
	defer cleanup()

	ctx := context.Background()
	account := createTestAccount(t, db, "products@example.com")

	product, err := store.CreateProduct(ctx, db, account.ID, store.CreateProductRequest{
		Name:              "Espresso Beans",
		Description:       "1kg bag",
		Price:             decimal.NewFromFloat(18.50),
		InitialStock:      40,
		LowStockThreshold: 5,
		Category:          "coffee",
	})
	if err != nil {
		t.Fatalf("Create product: %v", err)
	}

	if product.Stock != 40 {
		t.Errorf("Expected stock 40, got %d", product.Stock)
	}

	page, err := store.ListTransactions(ctx, db, account.ID, product.ID, "", 10)
	if err != nil {
		t.Fatalf("List transactions: %v", err)
	}

	entries := page.Items.([]models.StockTransaction)
	if len(entries) != 1 {
		t.Fatalf("Expected exactly one transaction, got %d", len(entries))
	}

	entry := entries[0]
	if entry.Type != models.TransactionTypeInitial {
		t.Errorf("Expected initial transaction, got %q", entry.Type)
	}
	if entry.QuantityChange != 40 || entry.StockBefore != 0 || entry.StockAfter != 40 {
		t.Errorf("Expected change=40 before=0 after=40, got change=%d before=%d after=%d",
			entry.QuantityChange, entry.StockBefore, entry.StockAfter)
	}
	if entry.PricePerUnit != nil || entry.TotalValue != nil {
		t.Error("Initial transactions should carry no financial fields")
	}
}

func TestCreateProductValidation(t *testing.T) {
	db, cleanup := setupTestDB(t)
	defer cleanup()

	ctx := context.Background()
	account := createTestAccount(t, db, "validation@example.com")

	tests := []struct {
		name string
		req  store.CreateProductRequest
	}{
		{"empty name", store.CreateProductRequest{Price: decimal.NewFromInt(10)}},
		{"zero price", store.CreateProductRequest{Name: "X", Price: decimal.Zero}},
		{"negative price", store.CreateProductRequest{Name: "X", Price: decimal.NewFromInt(-1)}},
		{"negative threshold", store.CreateProductRequest{Name: "X", Price: decimal.NewFromInt(10), LowStockThreshold: -1}},
		{"negative initial stock", store.CreateProductRequest{Name: "X", Price: decimal.NewFromInt(10), InitialStock: -5}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := store.CreateProduct(ctx, db, account.ID, tt.req); !errors.Is(err, database.ErrInvalidProduct) {
				t.Errorf("Expected invalid product error, got: %v", err)
			}
		})
	}
}

func TestUpdateProductNeverTouchesStock(t *testing.T) {
	db, cleanup := setupTestDB(t)
	defer cleanup()

	ctx := context.Background()
	account := createTestAccount(t, db, "update-product@example.com")

	product, err := store.CreateProduct(ctx, db, account.ID, store.CreateProductRequest{
		Name:         "Grinder",
		Price:        decimal.NewFromFloat(79.00),
		InitialStock: 12,
	})
	if err != nil {
		t.Fatalf("Create product: %v", err)
	}

	newName := "Burr Grinder"
	newPrice := decimal.NewFromFloat(89.00)
	updated, err := store.UpdateProduct(ctx, db, account.ID, product.ID, store.ProductUpdate{
		Name:  &newName,
		Price: &newPrice,
	})
	if err != nil {
		t.Fatalf("Update product: %v", err)
	}

	if updated.Name != "Burr Grinder" {
		t.Errorf("Expected updated name, got %q", updated.Name)
	}
	if !updated.Price.Equal(newPrice) {
		t.Errorf("Expected price 89.00, got %s", updated.Price)
	}
	if updated.Stock != 12 {
		t.Errorf("Stock must not change on catalog edits, got %d", updated.Stock)
	}
	if updated.Version != product.Version+1 {
		t.Errorf("Expected version bump to %d, got %d", product.Version+1, updated.Version)
	}

	// No new ledger entry either.
	page, err := store.ListTransactions(ctx, db, account.ID, product.ID, "", 10)
	if err != nil {
		t.Fatalf("List transactions: %v", err)
	}
	if entries := page.Items.([]models.StockTransaction); len(entries) != 1 {
		t.Errorf("Expected only the initial transaction, got %d entries", len(entries))
	}
}

func TestDeleteProductCascadesLedger(t *testing.T) {
	db, cleanup := setupTestDB(t)
	defer cleanup()

	ctx := context.Background()
	account := createTestAccount(t, db, "delete-product@example.com")

	product, err := store.CreateProduct(ctx, db, account.ID, store.CreateProductRequest{
		Name:         "Kettle",
		Price:        decimal.NewFromFloat(45.00),
		InitialStock: 8,
	})
	if err != nil {
		t.Fatalf("Create product: %v", err)
	}

	if _, _, err := store.ApplyStockChange(ctx, db, account.ID, product.ID, 4, models.TransactionTypeRestock, "", nil); err != nil {
		t.Fatalf("Apply stock change: %v", err)
	}

	if err := store.DeleteProduct(ctx, db, account.ID, product.ID); err != nil {
		t.Fatalf("Delete product: %v", err)
	}

	if _, err := store.GetProduct(ctx, db, account.ID, product.ID); !errors.Is(err, database.ErrProductNotFound) {
		t.Errorf("Expected product not found after delete, got: %v", err)
	}

	var remaining int
	if err := db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM stock_transactions WHERE product_id = $1`, product.ID).Scan(&remaining); err != nil {
		t.Fatalf("Count transactions: %v", err)
	}
	if remaining != 0 {
		t.Errorf("Expected ledger cascade on delete, %d entries remain", remaining)
	}

	if err := store.DeleteProduct(ctx, db, account.ID, product.ID); !errors.Is(err, database.ErrProductNotFound) {
		t.Errorf("Expected not found on double delete, got: %v", err)
	}
}

func TestProductTenantIsolation(t *testing.T) {
	db, cleanup := setupTestDB(t)
	defer cleanup()

	ctx := context.Background()
	owner := createTestAccount(t, db, "owner-a@example.com")
	other := createTestAccount(t, db, "owner-b@example.com")

	product, err := store.CreateProduct(ctx, db, owner.ID, store.CreateProductRequest{
		Name:         "Private Item",
		Price:        decimal.NewFromInt(10),
		InitialStock: 1,
	})
	if err != nil {
		t.Fatalf("Create product: %v", err)
	}

	if _, err := store.GetProduct(ctx, db, other.ID, product.ID); !errors.Is(err, database.ErrProductNotFound) {
		t.Errorf("Expected cross-tenant read to fail, got: %v", err)
	}
	if _, _, err := store.ApplyStockChange(ctx, db, other.ID, product.ID, 5, models.TransactionTypeRestock, "", nil); !errors.Is(err, database.ErrProductNotFound) {
		t.Errorf("Expected cross-tenant stock change to fail, got: %v", err)
	}
	if err := store.DeleteProduct(ctx, db, other.ID, product.ID); !errors.Is(err, database.ErrProductNotFound) {
		t.Errorf("Expected cross-tenant delete to fail, got: %v", err)
	}

	listed, err := store.ListProducts(ctx, db, other.ID, 1, 20)
	if err != nil {
		t.Fatalf("List products: %v", err)
	}
	if listed.Total != 0 {
		t.Errorf("Expected empty listing for other tenant, got %d", listed.Total)
	}
}

func TestListLowStock(t *testing.T) {
	db, cleanup := setupTestDB(t)
	defer cleanup()

	ctx := context.Background()
	account := createTestAccount(t, db, "lowstock@example.com")

	low, err := store.CreateProduct(ctx, db, account.ID, store.CreateProductRequest{
		Name: "Nearly Out", Price: decimal.NewFromInt(5), InitialStock: 2, LowStockThreshold: 3,
	})
	if err != nil {
		t.Fatalf("Create product: %v", err)
	}
	if _, err := store.CreateProduct(ctx, db, account.ID, store.CreateProductRequest{
		Name: "Well Stocked", Price: decimal.NewFromInt(5), InitialStock: 50, LowStockThreshold: 3,
	}); err != nil {
		t.Fatalf("Create product: %v", err)
	}

	products, err := store.ListLowStock(ctx, db, account.ID)
	if err != nil {
		t.Fatalf("List low stock: %v", err)
	}

	if len(products) != 1 || products[0].ID != low.ID {
		t.Errorf("Expected only the low product, got %+v", products)
	}
}
