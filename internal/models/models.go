package models

import "time"

// FundsItem is the reserved item name that represents currency.
// Every other item name is a tradable good.
const FundsItem = "funds"

// User represents a marketplace user, created on first login.
type User struct {
	ID        int64
	Username  string
	CreatedAt time.Time
}

// OrderKind distinguishes immediate-settlement orders from timed auctions.
type OrderKind string

const (
	OrderImmediate OrderKind = "immediate"
	OrderAuction   OrderKind = "auction"
)

// ParseOrderKind recognizes an order kind token from the sell command.
func ParseOrderKind(s string) (OrderKind, bool) {
	switch OrderKind(s) {
	case OrderImmediate, OrderAuction:
		return OrderKind(s), true
	}
	return "", false
}

// OrderStatus is the lifecycle state of a sell order.
type OrderStatus string

const (
	OrderOpen      OrderStatus = "open"
	OrderFilled    OrderStatus = "filled"
	OrderExpired   OrderStatus = "expired"
	OrderCancelled OrderStatus = "cancelled"
)

// Order represents a sell order. For auctions Price is the current best bid,
// initialized to the reserve price, and BidderID points at the highest bidder.
type Order struct {
	ID        int64
	SellerID  int64
	Seller    string // username, populated by listing queries
	Item      string
	Quantity  int64
	Kind      OrderKind
	Price     int64
	Fee       int64
	BidderID  *int64
	Status    OrderStatus
	CreatedAt time.Time
	ExpiresAt time.Time
}

// ItemHolding is one row of a user's account: total quantity and the part
// reserved by open orders or bids. Available = Quantity - Held.
type ItemHolding struct {
	Name     string
	Quantity int64
	Held     int64
}

// Available returns the spendable part of the holding.
func (h ItemHolding) Available() int64 {
	return h.Quantity - h.Held
}
