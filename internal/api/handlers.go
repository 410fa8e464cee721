// Package api is the read-only HTTP monitoring surface: health, a snapshot
// of open orders, and a websocket feed of settlement events. It exposes no
// mutating operation; all trading happens over the text protocol.
package api

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/kinkard/auction-house/internal/market"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// Handler contains dependencies for HTTP handlers
type Handler struct {
	Market *market.Market
	Hub    *Hub
	log    *zap.SugaredLogger
}

// NewHandler creates a new handler
func NewHandler(m *market.Market, hub *Hub, log *zap.SugaredLogger) *Handler {
	return &Handler{Market: m, Hub: hub, log: log}
}

// Routes builds the ops router.
func (h *Handler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Get("/health", h.Health)
	r.Get("/orders", h.OpenOrders)
	r.Get("/ws", h.WS)
	return r
}

// Health reports liveness.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
}

type orderView struct {
	ID        int64     `json:"id"`
	Seller    string    `json:"seller"`
	Item      string    `json:"item"`
	Quantity  int64     `json:"quantity"`
	Kind      string    `json:"kind"`
	Price     int64     `json:"price"`
	ExpiresAt time.Time `json:"expires_at"`
}

// OpenOrders returns a point-in-time snapshot of all open sell orders.
func (h *Handler) OpenOrders(w http.ResponseWriter, r *http.Request) {
	orders, err := h.Market.OpenOrders(r.Context())
	if err != nil {
		h.log.Errorw("failed to list open orders", "error", err)
		http.Error(w, `{"error": "failed to list open orders"}`, http.StatusInternalServerError)
		return
	}

	views := make([]orderView, 0, len(orders))
	for _, o := range orders {
		views = append(views, orderView{
			ID:        o.ID,
			Seller:    o.Seller,
			Item:      o.Item,
			Quantity:  o.Quantity,
			Kind:      string(o.Kind),
			Price:     o.Price,
			ExpiresAt: o.ExpiresAt,
		})
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]any{"orders": views})
}

// WS subscribes the client to the settlement event feed.
func (h *Handler) WS(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Errorw("failed to upgrade connection", "error", err)
		return
	}
	h.Hub.add(conn)

	// The feed is write-only; reading just detects disconnects.
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			h.Hub.remove(conn)
			return
		}
	}
}
