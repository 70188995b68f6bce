package notify

import (
	"context"
	"encoding/json"
	"log"
	"net/http"
	"strings"
	"sync"
	"time"

	"cpxtbgateway/internal/metrics"
	"cpxtbgateway/internal/models"

	"github.com/gorilla/websocket"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = 50 * time.Second
	sendBufferSize = 16
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// Client is one live connection with an optional merchant/wallet filter.
type Client struct {
	hub  *Hub
	conn *websocket.Conn
	send chan []byte

	mu         sync.Mutex
	subscribed bool
	merchantID int64
	wallet     string
}

// Subscribe sets the client's filter. Later subscribe messages replace the
// earlier filter.
func (c *Client) Subscribe(merchantID int64, wallet string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.subscribed = true
	c.merchantID = merchantID
	c.wallet = strings.ToLower(wallet)
}

func (c *Client) matches(merchant *models.Merchant) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.subscribed {
		return false
	}
	if c.merchantID != 0 && c.merchantID == merchant.ID {
		return true
	}
	return c.wallet != "" && c.wallet == strings.ToLower(merchant.WalletAddress)
}

// Hub tracks live clients and fans payment updates out to the ones whose
// filter matches the payment's merchant. Delivery is fire-and-forget: a slow
// or disconnected client misses the update and the polling path catches it up.
type Hub struct {
	mu      sync.RWMutex
	clients map[*Client]struct{}
}

func NewHub() *Hub {
	return &Hub{clients: make(map[*Client]struct{})}
}

func (h *Hub) add(c *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.clients[c] = struct{}{}
	metrics.WSClients.Inc()
}

func (h *Hub) remove(c *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.clients[c]; ok {
		delete(h.clients, c)
		close(c.send)
		metrics.WSClients.Dec()
	}
}

// PaymentUpdated implements the reconciler's notifier boundary.
func (h *Hub) PaymentUpdated(merchant *models.Merchant, payment *models.PaymentRequest) {
	upd := BuildUpdate(payment)
	payload, err := json.Marshal(upd)
	if err != nil {
		log.Printf("notify: marshal update payment=%s failed: %v", payment.Reference, err)
		return
	}

	h.mu.RLock()
	defer h.mu.RUnlock()
	for c := range h.clients {
		if !c.matches(merchant) {
			continue
		}
		select {
		case c.send <- payload:
		default:
			// Client not keeping up; drop the frame.
		}
	}
}

// ServeWS upgrades an HTTP request and runs the connection until it closes.
func (h *Hub) ServeWS(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("notify: upgrade failed: %v", err)
		return
	}
	c := &Client{hub: h, conn: conn, send: make(chan []byte, sendBufferSize)}
	h.add(c)

	go c.writePump()
	c.readPump(r.Context())
}

func (c *Client) readPump(ctx context.Context) {
	defer func() {
		c.hub.remove(c)
		_ = c.conn.Close()
	}()
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, raw, err := c.conn.ReadMessage()
		if err != nil {
			return
		}
		var msg subscribeMessage
		if err := json.Unmarshal(raw, &msg); err != nil {
			log.Printf("notify: bad client message: %v", err)
			continue
		}
		if msg.Type != "subscribe" {
			continue
		}
		c.Subscribe(msg.MerchantID, msg.WalletAddress)
	}
}

func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = c.conn.Close()
	}()

	for {
		select {
		case payload, ok := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, payload); err != nil {
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
