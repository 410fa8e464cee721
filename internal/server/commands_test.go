package server

import (
	"context"
	"strings"
	"testing"

	"github.com/kinkard/auction-house/internal/models"
)

func TestParseItemAndQuantity(t *testing.T) {
	tests := []struct {
		args string
		item string
		qty  int64
	}{
		{"arrow 5", "arrow", 5},
		{"arrow", "arrow", 1},
		{"holy sword 2", "holy sword", 2},
		{"holy sword", "holy sword", 1},
		{"funds 100", "funds", 100},
		{"", "", 1},
	}
	for _, tt := range tests {
		item, qty := parseItemAndQuantity(tt.args)
		if item != tt.item || qty != tt.qty {
			t.Errorf("parseItemAndQuantity(%q) = (%q, %d), want (%q, %d)",
				tt.args, item, qty, tt.item, tt.qty)
		}
	}
}

func TestSplitCommand(t *testing.T) {
	tests := []struct {
		line    string
		command string
		args    string
	}{
		{"ping", "ping", ""},
		{"deposit arrow 5", "deposit", "arrow 5"},
		{"buy 3  60", "buy", "3  60"},
		{"sell  auction sword 10", "sell", "auction sword 10"},
	}
	for _, tt := range tests {
		command, args := splitCommand(tt.line)
		if command != tt.command || args != tt.args {
			t.Errorf("splitCommand(%q) = (%q, %q), want (%q, %q)",
				tt.line, command, args, tt.command, tt.args)
		}
	}
}

// Commands below never reach the market, so a session without one suffices.
func testSession() *session {
	return &session{user: &models.User{ID: 1, Username: "alice"}}
}

func TestProcess_Ping(t *testing.T) {
	if got := testSession().process(context.Background(), "ping"); got != "pong" {
		t.Errorf("ping = %q, want pong", got)
	}
}

func TestProcess_Whoami(t *testing.T) {
	if got := testSession().process(context.Background(), "whoami"); got != "alice" {
		t.Errorf("whoami = %q, want alice", got)
	}
}

func TestProcess_Help(t *testing.T) {
	got := testSession().process(context.Background(), "help")
	for _, command := range []string{"deposit", "withdraw", "view_items", "sell", "view_sell_orders", "buy"} {
		if !strings.Contains(got, command) {
			t.Errorf("help output does not mention %q", command)
		}
	}
}

func TestProcess_UnknownCommand(t *testing.T) {
	got := testSession().process(context.Background(), "dance")
	if !strings.HasPrefix(got, "Error: unknown command 'dance'") {
		t.Errorf("unexpected response: %q", got)
	}
}

func TestProcess_UsageErrors(t *testing.T) {
	tests := []struct {
		name string
		line string
	}{
		{"DepositNoArgs", "deposit"},
		{"WithdrawNoArgs", "withdraw"},
		{"SellNoArgs", "sell"},
		{"SellNoPrice", "sell sword"},
		{"SellBadPrice", "sell sword gold"},
		{"BuyNoArgs", "buy"},
		{"BuyBadOrderID", "buy three"},
		{"BuyBadBid", "buy 3 lots"},
		{"BuyTooManyArgs", "buy 3 60 70"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := testSession().process(context.Background(), tt.line)
			if !strings.HasPrefix(got, "Error:") {
				t.Errorf("process(%q) = %q, want an error line", tt.line, got)
			}
		})
	}
}
