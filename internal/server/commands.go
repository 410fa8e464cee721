package server

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/kinkard/auction-house/internal/market"
	"github.com/kinkard/auction-house/internal/models"
)

const helpText = `Available commands:
  deposit <item> [<quantity>]   - add items (or funds) to your account
  withdraw <item> [<quantity>]  - remove items from your account
  view_items                    - list your items and funds
  sell [immediate|auction] <item> [<quantity>] <price>
                                - place a sell order; a 5% + 1 funds fee is charged
  view_sell_orders              - list all open sell orders
  buy <order_id> [<bid>]        - buy an immediate order, or bid on an auction
  whoami                        - print your username
  ping                          - pong
  help                          - this message`

// session executes commands on behalf of one logged-in user. Every mutating
// command maps to a single market transaction; a failed command reports an
// error line and changes nothing.
type session struct {
	user   *models.User
	market *market.Market
}

func (s *session) process(ctx context.Context, line string) string {
	command, args := splitCommand(line)
	switch command {
	case "ping":
		return "pong"
	case "whoami":
		return s.user.Username
	case "help":
		return helpText
	case "view_items":
		return s.viewItems(ctx)
	case "deposit":
		return s.deposit(ctx, args)
	case "withdraw":
		return s.withdraw(ctx, args)
	case "sell":
		return s.sell(ctx, args)
	case "view_sell_orders":
		return s.viewSellOrders(ctx)
	case "buy":
		return s.buy(ctx, args)
	default:
		return fmt.Sprintf("Error: unknown command '%s'. Type 'help' to list available commands", command)
	}
}

func (s *session) viewItems(ctx context.Context) string {
	holdings, err := s.market.ViewItems(ctx, s.user)
	if err != nil {
		return fmt.Sprintf("Error: failed to view items: %v", err)
	}

	var sb strings.Builder
	sb.WriteString("Items:")
	for _, h := range holdings {
		if h.Held > 0 {
			fmt.Fprintf(&sb, "\n- %s: %d (%d held)", h.Name, h.Quantity, h.Held)
		} else {
			fmt.Fprintf(&sb, "\n- %s: %d", h.Name, h.Quantity)
		}
	}
	return sb.String()
}

func (s *session) deposit(ctx context.Context, args string) string {
	if args == "" {
		return "Error: argument is required. Format: 'deposit <item name> [<quantity>]'"
	}
	item, qty := parseItemAndQuantity(args)
	if err := s.market.Deposit(ctx, s.user, item, qty); err != nil {
		return fmt.Sprintf("Error: failed to deposit %d %s(s): %v", qty, item, err)
	}
	return fmt.Sprintf("Successfully deposited %d %s(s)", qty, item)
}

func (s *session) withdraw(ctx context.Context, args string) string {
	if args == "" {
		return "Error: argument is required. Format: 'withdraw <item name> [<quantity>]'"
	}
	item, qty := parseItemAndQuantity(args)
	if err := s.market.Withdraw(ctx, s.user, item, qty); err != nil {
		return fmt.Sprintf("Error: failed to withdraw %d %s(s): %v", qty, item, err)
	}
	return fmt.Sprintf("Successfully withdrew %d %s(s)", qty, item)
}

func (s *session) sell(ctx context.Context, args string) string {
	const usage = "Error: unable to parse order. " +
		"Expected: 'sell [immediate|auction] <item name> [<quantity>] <price>'. " +
		"Default type is 'immediate' and default quantity is 1"

	kind := models.OrderImmediate
	if pos := strings.IndexByte(args, ' '); pos > 0 {
		if k, ok := models.ParseOrderKind(args[:pos]); ok {
			kind = k
			args = strings.TrimSpace(args[pos+1:])
		}
	}

	pos := strings.LastIndexByte(args, ' ')
	if pos < 0 {
		return usage
	}
	price, err := strconv.ParseInt(args[pos+1:], 10, 64)
	if err != nil {
		return usage
	}
	item, qty := parseItemAndQuantity(strings.TrimSpace(args[:pos]))

	order, err := s.market.CreateSellOrder(ctx, s.user, kind, item, qty, price)
	if err != nil {
		return fmt.Sprintf("Error: failed to place %s sell order for %d %s(s): %v", kind, qty, item, err)
	}
	return fmt.Sprintf("Successfully placed %s sell order #%d for %d %s(s)", kind, order.ID, qty, item)
}

func (s *session) viewSellOrders(ctx context.Context) string {
	orders, err := s.market.OpenOrders(ctx)
	if err != nil {
		return fmt.Sprintf("Error: failed to view sell orders: %v", err)
	}

	var sb strings.Builder
	sb.WriteString("Sell orders:")
	for _, o := range orders {
		kind := ""
		if o.Kind == models.OrderAuction {
			kind = "on auction "
		}
		remaining := time.Until(o.ExpiresAt).Round(time.Second)
		if remaining < 0 {
			remaining = 0
		}
		if o.Quantity == 1 {
			fmt.Fprintf(&sb, "\n- #%d: %s is selling a %s for %d funds %sfor the next %s",
				o.ID, o.Seller, o.Item, o.Price, kind, remaining)
		} else {
			fmt.Fprintf(&sb, "\n- #%d: %s is selling %d %s(s) for %d funds %sfor the next %s",
				o.ID, o.Seller, o.Quantity, o.Item, o.Price, kind, remaining)
		}
	}
	return sb.String()
}

func (s *session) buy(ctx context.Context, args string) string {
	const usage = "Error: unable to parse command. Expected: 'buy <sell_order_id> [<bid>]'"

	fields := strings.Fields(args)
	if len(fields) == 0 || len(fields) > 2 {
		return usage
	}
	orderID, err := strconv.ParseInt(fields[0], 10, 64)
	if err != nil {
		return usage
	}

	if len(fields) == 2 {
		bid, err := strconv.ParseInt(fields[1], 10, 64)
		if err != nil {
			return usage
		}
		if err := s.market.PlaceBid(ctx, s.user, orderID, bid); err != nil {
			return fmt.Sprintf("Error: failed to place bid on sell order #%d: %v", orderID, err)
		}
		return fmt.Sprintf("Successfully placed bid on sell order #%d", orderID)
	}

	if _, err := s.market.BuyImmediate(ctx, s.user, orderID); err != nil {
		return fmt.Sprintf("Error: failed to execute immediate sell order #%d: %v", orderID, err)
	}
	return fmt.Sprintf("Successfully executed immediate sell order #%d", orderID)
}

// splitCommand separates the command word from its arguments.
func splitCommand(line string) (command, args string) {
	if pos := strings.IndexByte(line, ' '); pos >= 0 {
		return line[:pos], strings.TrimSpace(line[pos+1:])
	}
	return line, ""
}

// parseItemAndQuantity parses the last word as a quantity; if it is not an
// integer the whole string is the item name and the quantity defaults to 1.
// Item names may contain spaces: "holy sword 2" -> ("holy sword", 2).
func parseItemAndQuantity(args string) (item string, qty int64) {
	if pos := strings.LastIndexByte(args, ' '); pos >= 0 {
		if qty, err := strconv.ParseInt(args[pos+1:], 10, 64); err == nil {
			return args[:pos], qty
		}
	}
	return args, 1
}
