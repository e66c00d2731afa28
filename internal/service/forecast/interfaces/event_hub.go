package interfaces

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"demandcast/internal/pkg/logger"
	regdomain "demandcast/internal/service/registry/domain"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	clientSendSize = 32
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool { // 看板在其他域名下，允许跨域
		return true
	},
}

// EventHub 维护所有订阅模型生命周期事件的 websocket 连接，并负责广播
type EventHub struct {
	clients    map[string]*wsClient
	register   chan *wsClient
	unregister chan *wsClient
	done       chan struct{}
	lock       sync.RWMutex
}

func NewEventHub() *EventHub {
	return &EventHub{
		clients:    make(map[string]*wsClient),
		register:   make(chan *wsClient),
		unregister: make(chan *wsClient),
		done:       make(chan struct{}),
	}
}

// Run 处理注册与注销，直到 ctx 结束
func (h *EventHub) Run(ctx context.Context) {
	for {
		select {
		case c := <-h.register:
			h.lock.Lock()
			h.clients[c.id] = c
			h.lock.Unlock()
			logger.L().Debug().Str("client", c.id).Msg("model event subscriber registered")
		case c := <-h.unregister:
			h.lock.Lock()
			if _, ok := h.clients[c.id]; ok {
				delete(h.clients, c.id)
				close(c.send)
			}
			h.lock.Unlock()
		case <-ctx.Done():
			close(h.done)
			h.lock.Lock()
			for id, c := range h.clients {
				delete(h.clients, id)
				close(c.send)
			}
			h.lock.Unlock()
			return
		}
	}
}

// Broadcast 把事件推送给所有订阅者，发送缓冲已满的慢连接会被跳过
func (h *EventHub) Broadcast(event regdomain.LifecycleEvent) {
	payload, err := json.Marshal(event)
	if err != nil {
		return
	}
	h.lock.RLock()
	defer h.lock.RUnlock()
	for _, c := range h.clients {
		select {
		case c.send <- payload:
		default:
			logger.L().Warn().Str("client", c.id).Msg("model event subscriber too slow, event dropped")
		}
	}
}

// Subscribers 当前连接数
func (h *EventHub) Subscribers() int {
	h.lock.RLock()
	defer h.lock.RUnlock()
	return len(h.clients)
}

// ServeWS 把 HTTP 连接升级为 websocket 并注册到 Hub
func (h *EventHub) ServeWS(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		logger.Ctx(r.Context()).Warn().Err(err).Msg("websocket upgrade failed")
		return
	}
	c := &wsClient{hub: h, conn: conn, send: make(chan []byte, clientSendSize), id: uuid.NewString()}
	select {
	case h.register <- c:
	case <-h.done:
		conn.Close()
		return
	}

	go c.writePump()
	go c.readPump()
}

// wsClient 是一个 websocket 连接
type wsClient struct {
	hub  *EventHub
	conn *websocket.Conn
	send chan []byte
	id   string
}

// writePump 把 send 中的消息写入连接，并定时发送 ping
func (c *wsClient) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()
	for {
		select {
		case msg, ok := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
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

// readPump 只处理 pong 和关闭；订阅者不会发送业务消息
func (c *wsClient) readPump() {
	defer func() {
		select {
		case c.hub.unregister <- c:
		case <-c.hub.done:
		}
		c.conn.Close()
	}()
	c.conn.SetReadLimit(512)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})
	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			return
		}
	}
}
