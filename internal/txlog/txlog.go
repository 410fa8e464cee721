// Package txlog is the append-only audit trail: one JSON line per
// balance-affecting event. The engine writes it after commit and never reads
// it back; it is an external record, not a recovery mechanism.
package txlog

import (
	"fmt"
	"os"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Log appends immutable records to a file.
type Log struct {
	logger *zap.Logger
	file   *os.File
}

// Open opens (or creates) the transaction log file in append mode.
func Open(path string) (*Log, error) {
	file, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, fmt.Errorf("failed to open transaction log: %w", err)
	}

	encCfg := zapcore.EncoderConfig{
		MessageKey: "event",
		TimeKey:    "ts",
		EncodeTime: zapcore.ISO8601TimeEncoder,
	}
	core := zapcore.NewCore(zapcore.NewJSONEncoder(encCfg), zapcore.Lock(file), zapcore.InfoLevel)
	return &Log{logger: zap.New(core), file: file}, nil
}

// Close flushes and closes the log file.
func (l *Log) Close() error {
	_ = l.logger.Sync()
	return l.file.Close()
}

func (l *Log) record(event string, fields ...zap.Field) {
	l.logger.Info(event, fields...)
}

// Deposit records a balance increase outside of any order.
func (l *Log) Deposit(user, item string, qty int64) {
	l.record("deposit", zap.String("user", user), zap.String("item", item), zap.Int64("quantity", qty))
}

// Withdraw records a balance decrease outside of any order.
func (l *Log) Withdraw(user, item string, qty int64) {
	l.record("withdraw", zap.String("user", user), zap.String("item", item), zap.Int64("quantity", qty))
}

// OrderCreated records a new sell order and the item hold backing it.
func (l *Log) OrderCreated(orderID int64, seller, kind, item string, qty, price int64) {
	l.record("order_created", zap.Int64("order", orderID), zap.String("seller", seller),
		zap.String("kind", kind), zap.String("item", item),
		zap.Int64("quantity", qty), zap.Int64("price", price))
}

// FeeCharged records the non-refundable creation fee taken from the seller.
func (l *Log) FeeCharged(orderID int64, seller string, amount int64) {
	l.record("fee_charged", zap.Int64("order", orderID), zap.String("seller", seller),
		zap.Int64("amount", amount))
}

// BidPlaced records a bid and the funds hold backing it.
func (l *Log) BidPlaced(orderID int64, bidder string, amount int64) {
	l.record("bid_placed", zap.Int64("order", orderID), zap.String("bidder", bidder),
		zap.Int64("amount", amount))
}

// BidRefunded records the release of a superseded bidder's held funds.
func (l *Log) BidRefunded(orderID int64, bidder string, amount int64) {
	l.record("bid_refunded", zap.Int64("order", orderID), zap.String("bidder", bidder),
		zap.Int64("amount", amount))
}

// OrderFilled records a settlement: funds to the seller, item to the buyer.
func (l *Log) OrderFilled(orderID int64, seller, buyer, item string, qty, price int64) {
	l.record("order_filled", zap.Int64("order", orderID), zap.String("seller", seller),
		zap.String("buyer", buyer), zap.String("item", item),
		zap.Int64("quantity", qty), zap.Int64("price", price))
}

// OrderExpired records an unfilled expiry and the item hold returned to the seller.
func (l *Log) OrderExpired(orderID int64, seller, item string, qty int64) {
	l.record("order_expired", zap.Int64("order", orderID), zap.String("seller", seller),
		zap.String("item", item), zap.Int64("quantity", qty))
}
