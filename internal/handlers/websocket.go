package handlers

import (
	"log"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"chronocharm-backend/internal/models"
	"chronocharm-backend/internal/services"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = (pongWait * 9) / 10
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

type WebSocketHandler struct {
	ledger *services.Ledger
	hub    *WebSocketHub
}

// WebSocketHub holds one live connection per user and pushes ledger changes
// to it. It implements services.Broadcaster.
type WebSocketHub struct {
	clients    map[string]*Client
	register   chan *Client
	unregister chan *Client
	broadcast  chan *Message
}

type Client struct {
	UserID string
	Conn   *websocket.Conn

	send   chan *Message
	closed chan struct{}
}

type Message struct {
	Type   string      `json:"type"`
	UserID string      `json:"user_id,omitempty"`
	Data   interface{} `json:"data"`
}

func NewWebSocketHub() *WebSocketHub {
	hub := &WebSocketHub{
		clients:    make(map[string]*Client),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		broadcast:  make(chan *Message, 100),
	}

	go hub.run()

	return hub
}

func NewWebSocketHandler(hub *WebSocketHub, ledger *services.Ledger) *WebSocketHandler {
	return &WebSocketHandler{
		ledger: ledger,
		hub:    hub,
	}
}

func (h *WebSocketHandler) HandleWebSocket(c *gin.Context) {
	userID := requestUserID(c, "")

	account, err := h.ledger.GetOrCreate(c.Request.Context(), userID)
	if err != nil {
		respondError(c, err)
		return
	}

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		log.Printf("Failed to upgrade to WebSocket: %v", err)
		return
	}

	client := &Client{
		UserID: userID,
		Conn:   conn,
		send:   make(chan *Message, 16),
		closed: make(chan struct{}),
	}

	h.hub.register <- client
	go client.writePump()

	defer func() {
		h.hub.unregister <- client
		conn.Close()
	}()

	client.queue(balanceMessage(account))

	conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		var msg Message
		err := conn.ReadJSON(&msg)
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				log.Printf("WebSocket error: %v", err)
			}
			break
		}

		h.handleMessage(c, client, &msg)
	}
}

func (h *WebSocketHandler) handleMessage(c *gin.Context, client *Client, msg *Message) {
	switch msg.Type {
	case "PING":
		client.queue(&Message{
			Type: "PONG",
			Data: gin.H{"timestamp": time.Now().Unix()},
		})
	case "GET_BALANCE":
		account, err := h.ledger.GetOrCreate(c.Request.Context(), client.UserID)
		if err != nil {
			log.Printf("Failed to get account for WS: %v", err)
			return
		}
		client.queue(balanceMessage(account))
	}
}

// queue never blocks; a slow client drops messages.
func (c *Client) queue(msg *Message) {
	select {
	case c.send <- msg:
	case <-c.closed:
	default:
		log.Printf("Dropping %s message for %s: send buffer full", msg.Type, c.UserID)
	}
}

func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.Conn.Close()
	}()

	for {
		select {
		case msg := <-c.send:
			c.Conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.Conn.WriteJSON(msg); err != nil {
				return
			}
		case <-ticker.C:
			c.Conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.Conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		case <-c.closed:
			c.Conn.SetWriteDeadline(time.Now().Add(writeWait))
			c.Conn.WriteMessage(websocket.CloseMessage, []byte{})
			return
		}
	}
}

func (hub *WebSocketHub) run() {
	for {
		select {
		case client := <-hub.register:
			if old, ok := hub.clients[client.UserID]; ok {
				close(old.closed)
			}
			hub.clients[client.UserID] = client
			log.Printf("Client registered: %s", client.UserID)

		case client := <-hub.unregister:
			if current, ok := hub.clients[client.UserID]; ok && current == client {
				delete(hub.clients, client.UserID)
				close(client.closed)
				log.Printf("Client unregistered: %s", client.UserID)
			}

		case message := <-hub.broadcast:
			if client, ok := hub.clients[message.UserID]; ok {
				client.queue(message)
			}
		}
	}
}

func (hub *WebSocketHub) publish(msg *Message) {
	select {
	case hub.broadcast <- msg:
	default:
		log.Printf("WebSocket broadcast queue full; dropping %s for %s", msg.Type, msg.UserID)
	}
}

func (hub *WebSocketHub) BroadcastBalance(account *models.UserAccount) {
	hub.publish(balanceMessage(account))
}

func (hub *WebSocketHub) BroadcastWager(wager *models.Wager, account *models.UserAccount) {
	hub.publish(&Message{
		Type:   "WAGER_UPDATE",
		UserID: account.UserID,
		Data: gin.H{
			"wager":   wager,
			"balance": account.ToResponse(),
		},
	})
}

func balanceMessage(account *models.UserAccount) *Message {
	return &Message{
		Type:   "BALANCE_UPDATE",
		UserID: account.UserID,
		Data:   account.ToResponse(),
	}
}
