package db

import (
	"context"
	_ "embed"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/kinkard/auction-house/internal/models"
)

//go:embed schema.sql
var schema string

// Querier is the subset of pgx shared by *pgxpool.Pool and pgx.Tx, so
// read-only helpers can run either inside or outside a transaction.
type Querier interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

// DB wraps a PostgreSQL connection pool
type DB struct {
	Pool *pgxpool.Pool
}

// NewDB initializes a new database connection pool
func NewDB(ctx context.Context, connString string) (*DB, error) {
	pool, err := pgxpool.New(ctx, connString)
	if err != nil {
		return nil, fmt.Errorf("failed to create connection pool: %w", err)
	}

	return &DB{Pool: pool}, nil
}

// Close closes the database connection pool
func (db *DB) Close() {
	db.Pool.Close()
}

// Init applies the schema. Statements are idempotent so it is safe to run on
// every startup.
func (db *DB) Init(ctx context.Context) error {
	if _, err := db.Pool.Exec(ctx, schema); err != nil {
		return fmt.Errorf("failed to apply schema: %w", err)
	}
	return nil
}

// Begin starts a transaction on the pool.
func (db *DB) Begin(ctx context.Context) (pgx.Tx, error) {
	tx, err := db.Pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	return tx, nil
}

// GetOrCreateUser returns the user with the given username, creating it on
// first login. Usernames are case-sensitive.
func (db *DB) GetOrCreateUser(ctx context.Context, username string) (*models.User, error) {
	if username == "" {
		return nil, fmt.Errorf("username cannot be empty")
	}

	// The no-op update makes RETURNING yield the row on conflict as well.
	user := &models.User{}
	err := db.Pool.QueryRow(ctx,
		`INSERT INTO users (username) VALUES ($1)
		 ON CONFLICT (username) DO UPDATE SET username = EXCLUDED.username
		 RETURNING id, username, created_at`,
		username).Scan(&user.ID, &user.Username, &user.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("failed to get or create user: %w", err)
	}

	// A fresh account always shows a funds balance, even at zero.
	_, err = db.Pool.Exec(ctx,
		`INSERT INTO user_items (user_id, item_id, quantity, held)
		 SELECT $1, id, 0, 0 FROM items WHERE name = $2
		 ON CONFLICT (user_id, item_id) DO NOTHING`,
		user.ID, models.FundsItem)
	if err != nil {
		return nil, fmt.Errorf("failed to init funds balance: %w", err)
	}
	return user, nil
}

// GetUsername retrieves a username by user id.
func GetUsername(ctx context.Context, q Querier, userID int64) (string, error) {
	var username string
	err := q.QueryRow(ctx, "SELECT username FROM users WHERE id = $1", userID).Scan(&username)
	if err != nil {
		return "", fmt.Errorf("failed to get username: %w", err)
	}
	return username, nil
}
