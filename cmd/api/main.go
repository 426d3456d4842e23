package main

import (
	"database/sql"
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"strconv"
	"strings"

	"github.com/safar/go-retail-ledger/internal/cache"
	"github.com/safar/go-retail-ledger/internal/config"
	"github.com/safar/go-retail-ledger/internal/database"
	"github.com/safar/go-retail-ledger/internal/models"
	"github.com/safar/go-retail-ledger/internal/store"
	"github.com/shopspring/decimal"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Load config: %v", err)
	}

	db, err := database.NewConnection(&cfg.Database)
	if err != nil {
		log.Fatalf("Connect to database: %v", err)
	}
	defer db.Close()

	log.Printf("Connected to database successfully")

	productCache := cache.New(&cfg.Cache)
	defer productCache.Close()
	if productCache != nil {
		log.Printf("Product cache enabled at %s", cfg.Cache.Addr)
	}

	mux := http.NewServeMux()

	mux.HandleFunc("/accounts", handleAccounts(db))
	mux.HandleFunc("/accounts/", handleAccountSubtree(db))
	mux.HandleFunc("/products", handleProducts(db))
	mux.HandleFunc("/products/", handleProductSubtree(db, productCache))
	mux.HandleFunc("/orders", handleOrders(db))
	mux.HandleFunc("/orders/", handleOrderByID(db))
	mux.HandleFunc("/low-stock", handleLowStock(db))

	server := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      mux,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	log.Printf("Server starting on port %s", cfg.Server.Port)
	if err := server.ListenAndServe(); err != nil {
		log.Fatalf("Server error: %v", err)
	}
}

// authenticate resolves the tenant from the X-API-Key header.
func authenticate(r *http.Request, db *sql.DB) (*models.Account, error) {
	apiKey := r.Header.Get("X-API-Key")
	if apiKey == "" {
		return nil, database.ErrInvalidCredentials
	}
	account, err := store.GetAccountByAPIKey(r.Context(), db, apiKey)
	if err != nil {
		if errors.Is(err, database.ErrAccountNotFound) {
			return nil, database.ErrInvalidCredentials
		}
		return nil, err
	}
	return account, nil
}

func handleAccounts(db *sql.DB) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()

		if r.Method != http.MethodPost {
			respondError(w, http.StatusMethodNotAllowed, "Method not allowed")
			return
		}

		var req struct {
			Email     string `json:"email"`
			Name      string `json:"name"`
			StoreName string `json:"store_name"`
			Password  string `json:"password"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			respondError(w, http.StatusBadRequest, "Invalid request body")
			return
		}

		account, err := store.CreateAccount(ctx, db, req.Email, req.Name, req.StoreName, req.Password)
		if err != nil {
			respondError(w, statusForError(err), err.Error())
			return
		}

		respondJSON(w, http.StatusCreated, account)
	}
}

func handleAccountSubtree(db *sql.DB) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()

		switch strings.TrimPrefix(r.URL.Path, "/accounts/") {
		case "login":
			if r.Method != http.MethodPost {
				respondError(w, http.StatusMethodNotAllowed, "Method not allowed")
				return
			}
			var req struct {
				Email    string `json:"email"`
				Password string `json:"password"`
			}
			if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
				respondError(w, http.StatusBadRequest, "Invalid request body")
				return
			}
			account, err := store.Authenticate(ctx, db, req.Email, req.Password)
			if err != nil {
				respondError(w, statusForError(err), err.Error())
				return
			}
			respondJSON(w, http.StatusOK, account)

		case "me":
			account, err := authenticate(r, db)
			if err != nil {
				respondError(w, statusForError(err), err.Error())
				return
			}

			switch r.Method {
			case http.MethodGet:
				respondJSON(w, http.StatusOK, account)

			case http.MethodPatch:
				var req struct {
					Name      *string `json:"name"`
					StoreName *string `json:"store_name"`
				}
				if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
					respondError(w, http.StatusBadRequest, "Invalid request body")
					return
				}
				updated, err := store.UpdateAccount(ctx, db, account.ID, req.Name, req.StoreName)
				if err != nil {
					respondError(w, statusForError(err), err.Error())
					return
				}
				respondJSON(w, http.StatusOK, updated)

			default:
				respondError(w, http.StatusMethodNotAllowed, "Method not allowed")
			}

		default:
			respondError(w, http.StatusNotFound, "Not found")
		}
	}
}

func handleProducts(db *sql.DB) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()

		account, err := authenticate(r, db)
		if err != nil {
			respondError(w, statusForError(err), err.Error())
			return
		}

		switch r.Method {
		case http.MethodPost:
			var req struct {
				Name              string  `json:"name"`
				Description       string  `json:"description"`
				Price             float64 `json:"price"`
				InitialStock      int     `json:"initial_stock"`
				LowStockThreshold int     `json:"low_stock_threshold"`
				Category          string  `json:"category"`
				ImageURL          string  `json:"image_url"`
			}
			if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
				respondError(w, http.StatusBadRequest, "Invalid request body")
				return
			}

			product, err := store.CreateProduct(ctx, db, account.ID, store.CreateProductRequest{
				Name:              req.Name,
				Description:       req.Description,
				Price:             decimal.NewFromFloat(req.Price),
				InitialStock:      req.InitialStock,
				LowStockThreshold: req.LowStockThreshold,
				Category:          req.Category,
				ImageURL:          req.ImageURL,
			})
			if err != nil {
				respondError(w, statusForError(err), err.Error())
				return
			}

			respondJSON(w, http.StatusCreated, product)

		case http.MethodGet:
			page, pageSize := pageParams(r)
			result, err := store.ListProducts(ctx, db, account.ID, page, pageSize)
			if err != nil {
				respondError(w, statusForError(err), err.Error())
				return
			}
			respondJSON(w, http.StatusOK, result)

		default:
			respondError(w, http.StatusMethodNotAllowed, "Method not allowed")
		}
	}
}

func handleProductSubtree(db *sql.DB, productCache *cache.ProductCache) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()

		account, err := authenticate(r, db)
		if err != nil {
			respondError(w, statusForError(err), err.Error())
			return
		}

		rest := strings.TrimPrefix(r.URL.Path, "/products/")
		parts := strings.SplitN(rest, "/", 2)
		id, err := strconv.ParseInt(parts[0], 10, 64)
		if err != nil {
			respondError(w, http.StatusBadRequest, "Invalid product ID")
			return
		}

		if len(parts) == 2 {
			switch parts[1] {
			case "stock":
				handleStockChange(w, r, db, productCache, account.ID, id)
			case "transactions":
				handleListTransactions(w, r, db, account.ID, id)
			default:
				respondError(w, http.StatusNotFound, "Not found")
			}
			return
		}

		switch r.Method {
		case http.MethodGet:
			if product, ok := productCache.Get(ctx, account.ID, id); ok {
				respondJSON(w, http.StatusOK, product)
				return
			}
			product, err := store.GetProduct(ctx, db, account.ID, id)
			if err != nil {
				respondError(w, statusForError(err), err.Error())
				return
			}
			if err := productCache.Set(ctx, product); err != nil {
				log.Printf("Cache product %d: %v", id, err)
			}
			respondJSON(w, http.StatusOK, product)

		case http.MethodPatch:
			var req struct {
				Name              *string  `json:"name"`
				Description       *string  `json:"description"`
				Price             *float64 `json:"price"`
				LowStockThreshold *int     `json:"low_stock_threshold"`
				Category          *string  `json:"category"`
				ImageURL          *string  `json:"image_url"`
			}
			if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
				respondError(w, http.StatusBadRequest, "Invalid request body")
				return
			}

			upd := store.ProductUpdate{
				Name:              req.Name,
				Description:       req.Description,
				LowStockThreshold: req.LowStockThreshold,
				Category:          req.Category,
				ImageURL:          req.ImageURL,
			}
			if req.Price != nil {
				price := decimal.NewFromFloat(*req.Price)
				upd.Price = &price
			}

			product, err := store.UpdateProduct(ctx, db, account.ID, id, upd)
			if err != nil {
				respondError(w, statusForError(err), err.Error())
				return
			}
			if err := productCache.Invalidate(ctx, account.ID, id); err != nil {
				log.Printf("Invalidate product %d: %v", id, err)
			}
			respondJSON(w, http.StatusOK, product)

		case http.MethodDelete:
			if err := store.DeleteProduct(ctx, db, account.ID, id); err != nil {
				respondError(w, statusForError(err), err.Error())
				return
			}
			if err := productCache.Invalidate(ctx, account.ID, id); err != nil {
				log.Printf("Invalidate product %d: %v", id, err)
			}
			w.WriteHeader(http.StatusNoContent)

		default:
			respondError(w, http.StatusMethodNotAllowed, "Method not allowed")
		}
	}
}

func handleStockChange(w http.ResponseWriter, r *http.Request, db *sql.DB, productCache *cache.ProductCache, accountID, productID int64) {
	ctx := r.Context()

	if r.Method != http.MethodPost {
		respondError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}

	var req struct {
		QuantityChange int      `json:"quantity_change"`
		Type           string   `json:"type"`
		Notes          string   `json:"notes"`
		PricePerUnit   *float64 `json:"price_per_unit"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	var pricePerUnit *decimal.Decimal
	if req.PricePerUnit != nil {
		price := decimal.NewFromFloat(*req.PricePerUnit)
		pricePerUnit = &price
	}

	product, entry, err := store.ApplyStockChange(ctx, db, accountID, productID, req.QuantityChange, req.Type, req.Notes, pricePerUnit)
	if err != nil {
		respondError(w, statusForError(err), err.Error())
		return
	}
	if err := productCache.Invalidate(ctx, accountID, productID); err != nil {
		log.Printf("Invalidate product %d: %v", productID, err)
	}

	respondJSON(w, http.StatusOK, map[string]interface{}{
		"product":     product,
		"transaction": entry,
	})
}

func handleListTransactions(w http.ResponseWriter, r *http.Request, db *sql.DB, accountID, productID int64) {
	ctx := r.Context()

	if r.Method != http.MethodGet {
		respondError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}

	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	if limit < 1 || limit > 100 {
		limit = 20
	}

	result, err := store.ListTransactions(ctx, db, accountID, productID, r.URL.Query().Get("cursor"), limit)
	if err != nil {
		respondError(w, statusForError(err), err.Error())
		return
	}

	respondJSON(w, http.StatusOK, result)
}

func handleOrders(db *sql.DB) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()

		account, err := authenticate(r, db)
		if err != nil {
			respondError(w, statusForError(err), err.Error())
			return
		}

		switch r.Method {
		case http.MethodPost:
			var req struct {
				Items []struct {
					ProductID int64    `json:"product_id"`
					Quantity  int      `json:"quantity"`
					UnitPrice *float64 `json:"unit_price"`
					Discount  float64  `json:"discount"`
				} `json:"items"`
				Notes string `json:"notes"`
			}
			if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
				respondError(w, http.StatusBadRequest, "Invalid request body")
				return
			}

			var items []store.OrderItemRequest
			for _, item := range req.Items {
				reqItem := store.OrderItemRequest{
					ProductID: item.ProductID,
					Quantity:  item.Quantity,
					Discount:  decimal.NewFromFloat(item.Discount),
				}
				if item.UnitPrice != nil {
					price := decimal.NewFromFloat(*item.UnitPrice)
					reqItem.UnitPrice = &price
				}
				items = append(items, reqItem)
			}

			order, err := store.CreateOrder(ctx, db, account.ID, store.CreateOrderRequest{
				Items: items,
				Notes: req.Notes,
			})
			if err != nil {
				respondError(w, statusForError(err), err.Error())
				return
			}

			respondJSON(w, http.StatusCreated, order)

		case http.MethodGet:
			limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
			if limit < 1 || limit > 100 {
				limit = 20
			}
			result, err := store.ListOrdersCursor(ctx, db, account.ID, r.URL.Query().Get("cursor"), limit)
			if err != nil {
				respondError(w, statusForError(err), err.Error())
				return
			}
			respondJSON(w, http.StatusOK, result)

		default:
			respondError(w, http.StatusMethodNotAllowed, "Method not allowed")
		}
	}
}

func handleOrderByID(db *sql.DB) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()

		account, err := authenticate(r, db)
		if err != nil {
			respondError(w, statusForError(err), err.Error())
			return
		}

		idStr := strings.TrimPrefix(r.URL.Path, "/orders/")
		id, err := strconv.ParseInt(idStr, 10, 64)
		if err != nil {
			respondError(w, http.StatusBadRequest, "Invalid order ID")
			return
		}

		order, err := store.GetOrder(ctx, db, account.ID, id)
		if err != nil {
			respondError(w, statusForError(err), err.Error())
			return
		}

		respondJSON(w, http.StatusOK, order)
	}
}

func handleLowStock(db *sql.DB) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()

		account, err := authenticate(r, db)
		if err != nil {
			respondError(w, statusForError(err), err.Error())
			return
		}

		if r.Method != http.MethodGet {
			respondError(w, http.StatusMethodNotAllowed, "Method not allowed")
			return
		}

		products, err := store.ListLowStock(ctx, db, account.ID)
		if err != nil {
			respondError(w, statusForError(err), err.Error())
			return
		}

		respondJSON(w, http.StatusOK, products)
	}
}

func pageParams(r *http.Request) (int, int) {
	page, _ := strconv.Atoi(r.URL.Query().Get("page"))
	if page < 1 {
		page = 1
	}
	pageSize, _ := strconv.Atoi(r.URL.Query().Get("page_size"))
	if pageSize < 1 || pageSize > 100 {
		pageSize = 20
	}
	return page, pageSize
}

func statusForError(err error) int {
	switch {
	case errors.Is(err, database.ErrAccountNotFound),
		errors.Is(err, database.ErrProductNotFound),
		errors.Is(err, database.ErrOrderNotFound):
		return http.StatusNotFound
	case errors.Is(err, database.ErrInvalidCredentials):
		return http.StatusUnauthorized
	case errors.Is(err, database.ErrDuplicateEmail):
		return http.StatusConflict
	case errors.Is(err, database.ErrInvalidProduct),
		errors.Is(err, database.ErrInvalidQuantity),
		errors.Is(err, database.ErrInvalidTransactionType),
		errors.Is(err, database.ErrEmptyOrder),
		errors.Is(err, database.ErrInvalidOrderItem):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

func respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		log.Printf("Error encoding JSON response: %v", err)
	}
}

func respondError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, map[string]string{"error": message})
}
