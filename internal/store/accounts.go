package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/lib/pq"
	"github.com/safar/go-retail-ledger/internal/database"
	"github.com/safar/go-retail-ledger/internal/models"
	"golang.org/x/crypto/bcrypt"
)

// bcryptCost of 12 keeps hashing time reasonable while staying above the
// library default.
const bcryptCost = 12

func CreateAccount(ctx context.Context, db *sql.DB, email, name, storeName, password string) (*models.Account, error) {
	if email == "" || password == "" {
		return nil, database.ErrInvalidCredentials
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcryptCost)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}

	account := &models.Account{}

	query := `
		INSERT INTO accounts (email, name, store_name, api_key, password_hash, created_at, updated_at, version)
		VALUES ($1, $2, $3, $4, $5, NOW(), NOW(), 1)
		RETURNING id, email, name, store_name, api_key, created_at, updated_at, version`

	err = db.QueryRowContext(ctx, query, email, name, storeName, uuid.NewString(), string(hash)).Scan(
		&account.ID,
		&account.Email,
		&account.Name,
		&account.StoreName,
		&account.APIKey,
		&account.CreatedAt,
		&account.UpdatedAt,
		&account.Version,
	)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == "23505" {
			return nil, database.ErrDuplicateEmail
		}
		return nil, fmt.Errorf("create account: %w", err)
	}

	return account, nil
}

func GetAccount(ctx context.Context, db *sql.DB, id int64) (*models.Account, error) {
	return getAccountBy(ctx, db, "id = $1", id)
}

// GetAccountByAPIKey resolves the tenant for an incoming request.
func GetAccountByAPIKey(ctx context.Context, db *sql.DB, apiKey string) (*models.Account, error) {
	return getAccountBy(ctx, db, "api_key = $1", apiKey)
}

func getAccountBy(ctx context.Context, db *sql.DB, where string, arg interface{}) (*models.Account, error) {
	account := &models.Account{}

	query := `
		SELECT id, email, name, store_name, api_key, password_hash, created_at, updated_at, version
		FROM accounts
		WHERE ` + where

	err := db.QueryRowContext(ctx, query, arg).Scan(
		&account.ID,
		&account.Email,
		&account.Name,
		&account.StoreName,
		&account.APIKey,
		&account.PasswordHash,
		&account.CreatedAt,
		&account.UpdatedAt,
		&account.Version,
	)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, database.ErrAccountNotFound
		}
		return nil, fmt.Errorf("get account: %w", err)
	}

	return account, nil
}

func UpdateAccount(ctx context.Context, db *sql.DB, id int64, name, storeName *string) (*models.Account, error) {
	account := &models.Account{}

	query := `
		UPDATE accounts
		SET name = COALESCE($2, name),
		    store_name = COALESCE($3, store_name),
		    updated_at = NOW(),
		    version = version + 1
		WHERE id = $1
		RETURNING id, email, name, store_name, api_key, created_at, updated_at, version`

	err := db.QueryRowContext(ctx, query, id, nullableString(name), nullableString(storeName)).Scan(
		&account.ID,
		&account.Email,
		&account.Name,
		&account.StoreName,
		&account.APIKey,
		&account.CreatedAt,
		&account.UpdatedAt,
		&account.Version,
	)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, database.ErrAccountNotFound
		}
		return nil, fmt.Errorf("update account: %w", err)
	}

	return account, nil
}

// Authenticate verifies an email/password pair and returns the account.
func Authenticate(ctx context.Context, db *sql.DB, email, password string) (*models.Account, error) {
	account, err := getAccountBy(ctx, db, "email = $1", email)
	if err != nil {
		if errors.Is(err, database.ErrAccountNotFound) {
			return nil, database.ErrInvalidCredentials
		}
		return nil, err
	}

	if bcrypt.CompareHashAndPassword([]byte(account.PasswordHash), []byte(password)) != nil {
		return nil, database.ErrInvalidCredentials
	}

	return account, nil
}

func nullableString(s *string) interface{} {
	if s == nil {
		return nil
	}
	return *s
}
