// Package market owns the sell order state machine. It never mutates
// balances directly: every fund or item movement goes through the ledger
// inside the same transaction as the order state change, and the order row
// itself is locked FOR UPDATE so concurrent buyers and bidders serialize.
package market

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"

	"github.com/kinkard/auction-house/internal/db"
	"github.com/kinkard/auction-house/internal/ledger"
	"github.com/kinkard/auction-house/internal/models"
	"github.com/kinkard/auction-house/internal/notify"
	"github.com/kinkard/auction-house/internal/txlog"
)

var (
	ErrOrderNotFound = errors.New("sell order not found")
	ErrOrderNotOpen  = errors.New("sell order is no longer open")
	// ErrWrongOrderKind is returned when a bid targets an immediate order or
	// a plain buy targets an auction.
	ErrWrongOrderKind = errors.New("wrong order kind")
	ErrBidTooLow      = errors.New("bid must be higher than the current price")
)

// Fee is the non-refundable charge taken from the seller at order creation:
// ceil(price * 0.05) + 1, in integer arithmetic. Prices are integers.
func Fee(price int64) int64 {
	return (price*5+99)/100 + 1
}

// EventSink receives settlement events for the monitoring feed. Publishing
// happens after commit and must not block.
type EventSink interface {
	Publish(event string, payload any)
}

// Market drives sell orders against the ledger and the durable store.
type Market struct {
	db       *db.DB
	txlog    *txlog.Log
	notifier *notify.Registry
	events   EventSink
	sched    *Scheduler
	lifetime time.Duration
	log      *zap.SugaredLogger
}

// New creates a market. events may be nil when no monitoring feed is attached.
func New(database *db.DB, log *txlog.Log, notifier *notify.Registry, events EventSink,
	lifetime time.Duration, logger *zap.SugaredLogger) *Market {
	m := &Market{
		db:       database,
		txlog:    log,
		notifier: notifier,
		events:   events,
		lifetime: lifetime,
		log:      logger,
	}
	m.sched = newScheduler(m.settleExpired, logger)
	return m
}

// Run rebuilds the expiry schedule from all open orders and drives settlement
// until ctx is cancelled. Orders already past their deadline settle on the
// first pass.
func (m *Market) Run(ctx context.Context) error {
	rows, err := m.db.Pool.Query(ctx, "SELECT id, expires_at FROM orders WHERE status = 'open'")
	if err != nil {
		return fmt.Errorf("failed to reload expiry schedule: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var id int64
		var expiresAt time.Time
		if err := rows.Scan(&id, &expiresAt); err != nil {
			return fmt.Errorf("failed to scan open order: %w", err)
		}
		m.sched.Add(id, expiresAt)
	}
	if err := rows.Err(); err != nil {
		return err
	}

	m.sched.Run(ctx)
	return nil
}

// Deposit credits the user's account.
func (m *Market) Deposit(ctx context.Context, user *models.User, item string, qty int64) error {
	tx, err := m.db.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	if err := ledger.Deposit(ctx, tx, user.ID, item, qty); err != nil {
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit deposit: %w", err)
	}

	m.txlog.Deposit(user.Username, ledger.NormalizeItem(item), qty)
	return nil
}

// Withdraw debits the user's account. Held quantities are not withdrawable.
func (m *Market) Withdraw(ctx context.Context, user *models.User, item string, qty int64) error {
	tx, err := m.db.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	if err := ledger.Withdraw(ctx, tx, user.ID, item, qty); err != nil {
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit withdraw: %w", err)
	}

	m.txlog.Withdraw(user.Username, ledger.NormalizeItem(item), qty)
	return nil
}

// ViewItems lists the user's holdings from a single committed snapshot.
func (m *Market) ViewItems(ctx context.Context, user *models.User) ([]models.ItemHolding, error) {
	return ledger.ViewItems(ctx, m.db.Pool, user.ID)
}

// CreateSellOrder places a new sell order: the fee is charged immediately,
// the item quantity is held, and the order is registered with the expiry
// scheduler - all in one transaction. The order id is assigned by the store
// on insert, so an aborted creation may leave a gap; ids stay monotonic and
// are never reused.
func (m *Market) CreateSellOrder(ctx context.Context, seller *models.User, kind models.OrderKind,
	item string, qty, price int64) (*models.Order, error) {
	item = ledger.NormalizeItem(item)
	if item == "" || qty <= 0 || price <= 0 {
		return nil, ledger.ErrInvalidAmount
	}
	if item == models.FundsItem {
		return nil, fmt.Errorf("%s cannot be sold", models.FundsItem)
	}

	fee := Fee(price)
	expiresAt := time.Now().Add(m.lifetime)

	tx, err := m.db.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback(ctx)

	if err := ledger.ChargeFee(ctx, tx, seller.ID, fee); err != nil {
		return nil, fmt.Errorf("cannot cover the %d funds fee: %w", fee, err)
	}
	if err := ledger.Hold(ctx, tx, seller.ID, item, qty); err != nil {
		return nil, err
	}

	itemID, err := ledger.ItemID(ctx, tx, item)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve item %q: %w", item, err)
	}

	order := &models.Order{
		SellerID:  seller.ID,
		Seller:    seller.Username,
		Item:      item,
		Quantity:  qty,
		Kind:      kind,
		Price:     price,
		Fee:       fee,
		Status:    models.OrderOpen,
		ExpiresAt: expiresAt,
	}
	err = tx.QueryRow(ctx,
		`INSERT INTO orders (seller_id, item_id, quantity, kind, price, fee, expires_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)
		 RETURNING id, created_at`,
		seller.ID, itemID, qty, kind, price, fee, expiresAt).Scan(&order.ID, &order.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("failed to create order: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("failed to commit order creation: %w", err)
	}

	m.txlog.OrderCreated(order.ID, seller.Username, string(kind), item, qty, price)
	m.txlog.FeeCharged(order.ID, seller.Username, fee)
	m.sched.Add(order.ID, expiresAt)
	m.log.Infow("sell order placed", "order", order.ID, "seller", seller.Username,
		"kind", kind, "item", item, "quantity", qty, "price", price, "fee", fee)
	return order, nil
}

// lockedOrder is an order row locked FOR UPDATE, with names resolved for
// post-commit reporting.
type lockedOrder struct {
	models.Order
}

func lockOrder(ctx context.Context, tx pgx.Tx, orderID int64) (*lockedOrder, error) {
	o := &lockedOrder{}
	o.ID = orderID
	err := tx.QueryRow(ctx,
		`SELECT o.seller_id, u.username, i.name, o.quantity, o.kind, o.price, o.fee,
		        o.bidder_id, o.status, o.created_at, o.expires_at
		 FROM orders o
		 INNER JOIN users u ON o.seller_id = u.id
		 INNER JOIN items i ON o.item_id = i.id
		 WHERE o.id = $1
		 FOR UPDATE OF o`,
		orderID).Scan(&o.SellerID, &o.Seller, &o.Item, &o.Quantity, &o.Kind, &o.Price,
		&o.Fee, &o.BidderID, &o.Status, &o.CreatedAt, &o.ExpiresAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrOrderNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to lock order: %w", err)
	}
	return o, nil
}

// BuyImmediate executes an immediate sell order in full: the buyer pays the
// ask price, the held item moves to the buyer. The creation fee stays with
// the house.
func (m *Market) BuyImmediate(ctx context.Context, buyer *models.User, orderID int64) (*models.Order, error) {
	tx, err := m.db.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback(ctx)

	o, err := lockOrder(ctx, tx, orderID)
	if err != nil {
		return nil, err
	}
	if o.Status != models.OrderOpen {
		return nil, ErrOrderNotOpen
	}
	if o.Kind != models.OrderImmediate {
		return nil, fmt.Errorf("%w: order #%d is an auction, bid on it instead", ErrWrongOrderKind, orderID)
	}

	// Funds briefly pass through a hold so that settlement always moves held
	// quantities, same as the auction path.
	if err := ledger.Hold(ctx, tx, buyer.ID, models.FundsItem, o.Price); err != nil {
		return nil, err
	}
	if err := ledger.Transfer(ctx, tx, buyer.ID, o.SellerID, models.FundsItem, o.Price); err != nil {
		return nil, err
	}
	if err := ledger.Transfer(ctx, tx, o.SellerID, buyer.ID, o.Item, o.Quantity); err != nil {
		return nil, err
	}

	_, err = tx.Exec(ctx,
		"UPDATE orders SET status = 'filled', bidder_id = $2 WHERE id = $1", orderID, buyer.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to mark order filled: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("failed to commit buy: %w", err)
	}

	m.txlog.OrderFilled(orderID, o.Seller, buyer.Username, o.Item, o.Quantity, o.Price)
	m.notifier.Notify(o.Seller,
		fmt.Sprintf("Your sell order #%d was bought by %s for %d funds", orderID, buyer.Username, o.Price))
	m.publish("order_filled", orderID, o.Item, o.Quantity, o.Price)
	m.log.Infow("immediate order filled", "order", orderID, "buyer", buyer.Username, "price", o.Price)
	o.Status = models.OrderFilled
	return &o.Order, nil
}

// PlaceBid places a bid on an auction order. The bid must strictly exceed
// the current price; the superseded bidder's held funds are released. The
// expiry deadline does not move.
func (m *Market) PlaceBid(ctx context.Context, bidder *models.User, orderID, amount int64) error {
	if amount <= 0 {
		return ledger.ErrInvalidAmount
	}

	tx, err := m.db.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	o, err := lockOrder(ctx, tx, orderID)
	if err != nil {
		return err
	}
	if o.Status != models.OrderOpen {
		return ErrOrderNotOpen
	}
	if o.Kind != models.OrderAuction {
		return fmt.Errorf("%w: order #%d sells immediately, buy it without a bid", ErrWrongOrderKind, orderID)
	}
	if amount <= o.Price {
		return fmt.Errorf("%w: current price is %d", ErrBidTooLow, o.Price)
	}

	// Refund the previous bidder before taking the new hold, so a bidder
	// raising their own bid only needs to cover the difference.
	var prevBidder string
	if o.BidderID != nil {
		prevBidder, err = db.GetUsername(ctx, tx, *o.BidderID)
		if err != nil {
			return err
		}
		if err := ledger.Release(ctx, tx, *o.BidderID, models.FundsItem, o.Price); err != nil {
			return err
		}
	}
	if err := ledger.Hold(ctx, tx, bidder.ID, models.FundsItem, amount); err != nil {
		return err
	}

	_, err = tx.Exec(ctx,
		"UPDATE orders SET price = $2, bidder_id = $3 WHERE id = $1", orderID, amount, bidder.ID)
	if err != nil {
		return fmt.Errorf("failed to record bid: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit bid: %w", err)
	}

	m.txlog.BidPlaced(orderID, bidder.Username, amount)
	if o.BidderID != nil {
		m.txlog.BidRefunded(orderID, prevBidder, o.Price)
		if prevBidder != bidder.Username {
			m.notifier.Notify(prevBidder,
				fmt.Sprintf("You were outbid on sell order #%d, %d funds returned", orderID, o.Price))
		}
	}
	m.log.Infow("bid placed", "order", orderID, "bidder", bidder.Username, "amount", amount)
	return nil
}

// settleExpired finalizes one order past its deadline in its own transaction.
// The scheduler has already removed the order from the schedule, so this runs
// at most once per deadline; an order that is no longer open is left alone.
func (m *Market) settleExpired(ctx context.Context, orderID int64) error {
	tx, err := m.db.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	o, err := lockOrder(ctx, tx, orderID)
	if errors.Is(err, ErrOrderNotFound) {
		return nil
	}
	if err != nil {
		return err
	}
	if o.Status != models.OrderOpen {
		return nil
	}

	if o.Kind == models.OrderAuction && o.BidderID != nil {
		winner, err := db.GetUsername(ctx, tx, *o.BidderID)
		if err != nil {
			return err
		}
		if err := ledger.Transfer(ctx, tx, *o.BidderID, o.SellerID, models.FundsItem, o.Price); err != nil {
			return err
		}
		if err := ledger.Transfer(ctx, tx, o.SellerID, *o.BidderID, o.Item, o.Quantity); err != nil {
			return err
		}
		if _, err := tx.Exec(ctx, "UPDATE orders SET status = 'filled' WHERE id = $1", orderID); err != nil {
			return fmt.Errorf("failed to mark order filled: %w", err)
		}
		if err := tx.Commit(ctx); err != nil {
			return fmt.Errorf("failed to commit settlement: %w", err)
		}

		m.txlog.OrderFilled(orderID, o.Seller, winner, o.Item, o.Quantity, o.Price)
		m.notifier.Notify(o.Seller,
			fmt.Sprintf("Your auction #%d sold to %s for %d funds", orderID, winner, o.Price))
		m.notifier.Notify(winner,
			fmt.Sprintf("You won auction #%d: %d %s(s) for %d funds", orderID, o.Quantity, o.Item, o.Price))
		m.publish("auction_settled", orderID, o.Item, o.Quantity, o.Price)
		m.log.Infow("auction settled", "order", orderID, "winner", winner, "price", o.Price)
		return nil
	}

	// Unfilled immediate order or auction without bids: the item returns to
	// the seller, the fee stays forfeited.
	if err := ledger.Release(ctx, tx, o.SellerID, o.Item, o.Quantity); err != nil {
		return err
	}
	if _, err := tx.Exec(ctx, "UPDATE orders SET status = 'expired' WHERE id = $1", orderID); err != nil {
		return fmt.Errorf("failed to mark order expired: %w", err)
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit expiry: %w", err)
	}

	m.txlog.OrderExpired(orderID, o.Seller, o.Item, o.Quantity)
	m.notifier.Notify(o.Seller,
		fmt.Sprintf("Your sell order #%d expired, %d %s(s) returned", orderID, o.Quantity, o.Item))
	m.publish("order_expired", orderID, o.Item, o.Quantity, o.Price)
	m.log.Infow("order expired unsold", "order", orderID)
	return nil
}

// OpenOrders returns all open orders in creation order as a point-in-time
// snapshot from a single query.
func (m *Market) OpenOrders(ctx context.Context) ([]models.Order, error) {
	rows, err := m.db.Pool.Query(ctx,
		`SELECT o.id, o.seller_id, u.username, i.name, o.quantity, o.kind, o.price, o.fee,
		        o.bidder_id, o.status, o.created_at, o.expires_at
		 FROM orders o
		 INNER JOIN users u ON o.seller_id = u.id
		 INNER JOIN items i ON o.item_id = i.id
		 WHERE o.status = 'open'
		 ORDER BY o.id`)
	if err != nil {
		return nil, fmt.Errorf("failed to list open orders: %w", err)
	}
	defer rows.Close()

	var orders []models.Order
	for rows.Next() {
		var o models.Order
		if err := rows.Scan(&o.ID, &o.SellerID, &o.Seller, &o.Item, &o.Quantity, &o.Kind,
			&o.Price, &o.Fee, &o.BidderID, &o.Status, &o.CreatedAt, &o.ExpiresAt); err != nil {
			return nil, fmt.Errorf("failed to scan order: %w", err)
		}
		orders = append(orders, o)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return orders, nil
}

type orderEvent struct {
	Event    string `json:"event"`
	OrderID  int64  `json:"order_id"`
	Item     string `json:"item"`
	Quantity int64  `json:"quantity"`
	Price    int64  `json:"price"`
}

func (m *Market) publish(event string, orderID int64, item string, qty, price int64) {
	if m.events == nil {
		return
	}
	m.events.Publish(event, orderEvent{
		Event:    event,
		OrderID:  orderID,
		Item:     item,
		Quantity: qty,
		Price:    price,
	})
}
