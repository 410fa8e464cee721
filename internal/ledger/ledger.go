// Package ledger owns all balance and hold mutations. Every operation runs
// on a transaction owned by the caller, so an order-state change and its
// ledger movements commit or roll back together.
package ledger

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"

	"github.com/kinkard/auction-house/internal/db"
	"github.com/kinkard/auction-house/internal/models"
)

var (
	// ErrInvalidAmount is returned for non-positive quantities or empty item names.
	ErrInvalidAmount = errors.New("invalid amount")
	// ErrInsufficientFunds is returned when the available (not held) balance
	// cannot cover the requested amount.
	ErrInsufficientFunds = errors.New("insufficient funds")
)

// NormalizeItem case-normalizes an item name.
func NormalizeItem(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}

func validate(item string, qty int64) (string, error) {
	item = NormalizeItem(item)
	if item == "" || qty <= 0 {
		return "", ErrInvalidAmount
	}
	return item, nil
}

// ItemID resolves an item name. pgx.ErrNoRows is propagated for unknown items.
func ItemID(ctx context.Context, q db.Querier, item string) (int64, error) {
	var id int64
	err := q.QueryRow(ctx, "SELECT id FROM items WHERE name = $1", NormalizeItem(item)).Scan(&id)
	return id, err
}

// ensureItem resolves an item name, registering it on first use.
func ensureItem(ctx context.Context, tx pgx.Tx, item string) (int64, error) {
	var id int64
	err := tx.QueryRow(ctx,
		`INSERT INTO items (name) VALUES ($1)
		 ON CONFLICT (name) DO UPDATE SET name = EXCLUDED.name
		 RETURNING id`,
		item).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("failed to ensure item %q: %w", item, err)
	}
	return id, nil
}

// lockHolding reads (quantity, held) for update. A missing row reads as zero.
func lockHolding(ctx context.Context, tx pgx.Tx, userID, itemID int64) (quantity, held int64, err error) {
	err = tx.QueryRow(ctx,
		"SELECT quantity, held FROM user_items WHERE user_id = $1 AND item_id = $2 FOR UPDATE",
		userID, itemID).Scan(&quantity, &held)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, 0, nil
	}
	if err != nil {
		return 0, 0, fmt.Errorf("failed to lock holding: %w", err)
	}
	return quantity, held, nil
}

// Deposit increases the user's balance of an item, registering the item on
// first use.
func Deposit(ctx context.Context, tx pgx.Tx, userID int64, item string, qty int64) error {
	item, err := validate(item, qty)
	if err != nil {
		return err
	}

	itemID, err := ensureItem(ctx, tx, item)
	if err != nil {
		return err
	}

	_, err = tx.Exec(ctx,
		`INSERT INTO user_items (user_id, item_id, quantity, held) VALUES ($1, $2, $3, 0)
		 ON CONFLICT (user_id, item_id) DO UPDATE SET quantity = user_items.quantity + $3`,
		userID, itemID, qty)
	if err != nil {
		return fmt.Errorf("failed to deposit: %w", err)
	}
	return nil
}

// Withdraw decreases the user's balance of an item. Held quantities are not
// withdrawable. An emptied non-funds row is removed; the funds row is kept
// even at zero.
func Withdraw(ctx context.Context, tx pgx.Tx, userID int64, item string, qty int64) error {
	item, err := validate(item, qty)
	if err != nil {
		return err
	}

	itemID, err := ItemID(ctx, tx, item)
	if errors.Is(err, pgx.ErrNoRows) {
		return ErrInsufficientFunds
	} else if err != nil {
		return fmt.Errorf("failed to resolve item %q: %w", item, err)
	}

	quantity, held, err := lockHolding(ctx, tx, userID, itemID)
	if err != nil {
		return err
	}
	if quantity-held < qty {
		return ErrInsufficientFunds
	}

	if quantity-qty == 0 && held == 0 && item != models.FundsItem {
		_, err = tx.Exec(ctx,
			"DELETE FROM user_items WHERE user_id = $1 AND item_id = $2", userID, itemID)
	} else {
		_, err = tx.Exec(ctx,
			"UPDATE user_items SET quantity = quantity - $3 WHERE user_id = $1 AND item_id = $2",
			userID, itemID, qty)
	}
	if err != nil {
		return fmt.Errorf("failed to withdraw: %w", err)
	}
	return nil
}

// Hold reserves part of the user's balance against an open order or bid.
func Hold(ctx context.Context, tx pgx.Tx, userID int64, item string, qty int64) error {
	item, err := validate(item, qty)
	if err != nil {
		return err
	}

	itemID, err := ItemID(ctx, tx, item)
	if errors.Is(err, pgx.ErrNoRows) {
		return ErrInsufficientFunds
	} else if err != nil {
		return fmt.Errorf("failed to resolve item %q: %w", item, err)
	}

	quantity, held, err := lockHolding(ctx, tx, userID, itemID)
	if err != nil {
		return err
	}
	if quantity-held < qty {
		return ErrInsufficientFunds
	}

	_, err = tx.Exec(ctx,
		"UPDATE user_items SET held = held + $3 WHERE user_id = $1 AND item_id = $2",
		userID, itemID, qty)
	if err != nil {
		return fmt.Errorf("failed to hold: %w", err)
	}
	return nil
}

// Release returns a previously held quantity to the available balance.
// Releasing more than is held is an invariant violation, not a user error.
func Release(ctx context.Context, tx pgx.Tx, userID int64, item string, qty int64) error {
	item, err := validate(item, qty)
	if err != nil {
		return err
	}

	itemID, err := ItemID(ctx, tx, item)
	if err != nil {
		return fmt.Errorf("failed to resolve item %q: %w", item, err)
	}

	_, held, err := lockHolding(ctx, tx, userID, itemID)
	if err != nil {
		return err
	}
	if held < qty {
		return fmt.Errorf("release of %d exceeds held %d for user %d item %q", qty, held, userID, item)
	}

	_, err = tx.Exec(ctx,
		"UPDATE user_items SET held = held - $3 WHERE user_id = $1 AND item_id = $2",
		userID, itemID, qty)
	if err != nil {
		return fmt.Errorf("failed to release: %w", err)
	}
	return nil
}

// Transfer moves a held quantity from one user to another. The quantity must
// already be held by the sender; settlement is the only caller.
func Transfer(ctx context.Context, tx pgx.Tx, fromID, toID int64, item string, qty int64) error {
	item, err := validate(item, qty)
	if err != nil {
		return err
	}

	itemID, err := ItemID(ctx, tx, item)
	if err != nil {
		return fmt.Errorf("failed to resolve item %q: %w", item, err)
	}

	quantity, held, err := lockHolding(ctx, tx, fromID, itemID)
	if err != nil {
		return err
	}
	if held < qty || quantity < qty {
		return fmt.Errorf("transfer of %d exceeds held %d for user %d item %q", qty, held, fromID, item)
	}

	if quantity-qty == 0 && held-qty == 0 && item != models.FundsItem {
		_, err = tx.Exec(ctx,
			"DELETE FROM user_items WHERE user_id = $1 AND item_id = $2", fromID, itemID)
	} else {
		_, err = tx.Exec(ctx,
			"UPDATE user_items SET quantity = quantity - $3, held = held - $3 WHERE user_id = $1 AND item_id = $2",
			fromID, itemID, qty)
	}
	if err != nil {
		return fmt.Errorf("failed to debit transfer: %w", err)
	}

	_, err = tx.Exec(ctx,
		`INSERT INTO user_items (user_id, item_id, quantity, held) VALUES ($1, $2, $3, 0)
		 ON CONFLICT (user_id, item_id) DO UPDATE SET quantity = user_items.quantity + $3`,
		toID, itemID, qty)
	if err != nil {
		return fmt.Errorf("failed to credit transfer: %w", err)
	}
	return nil
}

// ChargeFee burns the fee from the user's available funds. Fees are not
// routed to a house account; the transaction log is the record of the charge.
func ChargeFee(ctx context.Context, tx pgx.Tx, userID int64, amount int64) error {
	if err := Withdraw(ctx, tx, userID, models.FundsItem, amount); err != nil {
		return err
	}
	return nil
}

// ViewItems lists the user's holdings in item registration order, funds first.
func ViewItems(ctx context.Context, q db.Querier, userID int64) ([]models.ItemHolding, error) {
	rows, err := q.Query(ctx,
		`SELECT items.name, user_items.quantity, user_items.held
		 FROM user_items
		 INNER JOIN items ON user_items.item_id = items.id
		 WHERE user_items.user_id = $1
		 ORDER BY items.id`,
		userID)
	if err != nil {
		return nil, fmt.Errorf("failed to view items: %w", err)
	}
	defer rows.Close()

	var holdings []models.ItemHolding
	for rows.Next() {
		var h models.ItemHolding
		if err := rows.Scan(&h.Name, &h.Quantity, &h.Held); err != nil {
			return nil, fmt.Errorf("failed to scan holding: %w", err)
		}
		holdings = append(holdings, h)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return holdings, nil
}
