// Package broadcast 面向仪表盘客户端的 websocket 广播集线器
// 按主题扇出，慢客户端丢消息不丢连接
package broadcast

import (
	"log/slog"
	"sync"
	"time"

	"github.com/bytedance/sonic"
	"github.com/gorilla/websocket"
)

// TopicAnalytics 实时统计主题，聚合器的三类更新都走这一个主题
const TopicAnalytics = "analytics"

const (
	sendBufferSize = 64
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = 50 * time.Second
	maxMessageSize = 4096
)

// Envelope 广播消息信封
type Envelope struct {
	Event   string `json:"event"`
	Payload any    `json:"payload"`
}

// Encode 编码一条信封消息，供订阅方在广播之外直接投递（如接入时的初始快照）
func Encode(event string, payload any) ([]byte, error) {
	return sonic.Marshal(Envelope{Event: event, Payload: payload})
}

// Client 一个已接入的 websocket 客户端
type Client struct {
	conn      *websocket.Conn
	send      chan []byte
	closeOnce sync.Once
}

// Send 向客户端投递已编码的消息，缓冲满时丢弃
func (c *Client) Send(data []byte) {
	select {
	case c.send <- data:
	default:
		slog.Debug("客户端发送缓冲已满，丢弃广播消息")
	}
}

func (c *Client) close() {
	c.closeOnce.Do(func() {
		close(c.send)
	})
}

// Hub 广播集线器
type Hub struct {
	mu     sync.RWMutex
	topics map[string]map[*Client]struct{}
}

// NewHub 创建集线器
func NewHub() *Hub {
	return &Hub{topics: make(map[string]map[*Client]struct{})}
}

// Subscribe 将 websocket 连接注册到主题并启动读写泵
// 连接断开时自动退订
func (h *Hub) Subscribe(topic string, conn *websocket.Conn) *Client {
	c := &Client{
		conn: conn,
		send: make(chan []byte, sendBufferSize),
	}

	h.mu.Lock()
	if h.topics[topic] == nil {
		h.topics[topic] = make(map[*Client]struct{})
	}
	h.topics[topic][c] = struct{}{}
	h.mu.Unlock()

	go h.writePump(c)
	go h.readPump(topic, c)
	return c
}

// Publish 向主题的全部客户端广播一条消息
// 一次编码多次发送，慢客户端只丢这一条消息
func (h *Hub) Publish(topic, event string, payload any) {
	data, err := sonic.Marshal(Envelope{Event: event, Payload: payload})
	if err != nil {
		slog.Error("广播消息编码失败", "event", event, "error", err)
		return
	}

	h.mu.RLock()
	defer h.mu.RUnlock()
	for c := range h.topics[topic] {
		c.Send(data)
	}
}

// ClientCount 主题当前的客户端数
func (h *Hub) ClientCount(topic string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.topics[topic])
}

// Close 断开全部客户端
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for topic, clients := range h.topics {
		for c := range clients {
			c.close()
		}
		delete(h.topics, topic)
	}
}

func (h *Hub) unsubscribe(topic string, c *Client) {
	h.mu.Lock()
	if clients, ok := h.topics[topic]; ok {
		delete(clients, c)
	}
	h.mu.Unlock()
	c.close()
}

// writePump 顺序写出发送缓冲中的消息，定期发 ping 保活
func (h *Hub) writePump(c *Client) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case data, ok := <-c.send:
			if !ok {
				_ = c.conn.WriteControl(websocket.CloseMessage, nil, time.Now().Add(writeWait))
				return
			}
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				return
			}
		case <-ticker.C:
			if err := c.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait)); err != nil {
				return
			}
		}
	}
}

// readPump 只用于感知连接断开，丢弃客户端发来的内容
func (h *Hub) readPump(topic string, c *Client) {
	defer h.unsubscribe(topic, c)

	c.conn.SetReadLimit(maxMessageSize)
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

// TopicPublisher 绑定单个主题的发布端，实现聚合器的 Publisher 接口
type TopicPublisher struct {
	hub   *Hub
	topic string
}

// Topic 返回绑定到指定主题的发布端
func (h *Hub) Topic(name string) TopicPublisher {
	return TopicPublisher{hub: h, topic: name}
}

// Publish 向绑定主题广播
func (p TopicPublisher) Publish(event string, payload any) {
	p.hub.Publish(p.topic, event, payload)
}
