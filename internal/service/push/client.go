// internal/service/push/client.go
package push

import (
	"context"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/pkg/errors"

	"takeout/internal/pkg/logger"
)

const (
	writeWait  = 5 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = (pongWait * 9) / 10
	maxInbound = 4096
)

// Client 是一个 WebSocket 连接的代表，实现 Session
type Client struct {
	id   string
	conn *websocket.Conn

	writeMu   sync.Mutex
	closeOnce sync.Once
	done      chan struct{}
}

func newClient(id string, conn *websocket.Conn) *Client {
	return &Client{id: id, conn: conn, done: make(chan struct{})}
}

// Send 写入一条文本消息。gorilla 的连接不支持并发写，用 writeMu 串行化。
func (c *Client) Send(ctx context.Context, data []byte) error {
	select {
	case <-c.done:
		return errors.New("connection closed")
	default:
	}
	deadline := time.Now().Add(writeWait)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	if err := c.conn.SetWriteDeadline(deadline); err != nil {
		return err
	}
	return c.conn.WriteMessage(websocket.TextMessage, data)
}

func (c *Client) Close() error {
	var err error
	c.closeOnce.Do(func() {
		close(c.done)
		_ = c.conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(time.Second))
		err = c.conn.Close()
	})
	return err
}

// readPump 读取客户端消息直到连接断开。客户端发来的文本只记录日志。
func (c *Client) readPump(ctx context.Context) {
	c.conn.SetReadLimit(maxInbound)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})
	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				logger.Ctx(ctx).Warn().Err(err).Str("session_id", c.id).Msg("websocket read error")
			}
			return
		}
		logger.Ctx(ctx).Info().Str("session_id", c.id).Str("text", string(data)).Msg("received message from client")
	}
}

// pingLoop 定期发送 ping 保持连接
func (c *Client) pingLoop() {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()
	for {
		select {
		case <-c.done:
			return
		case <-ticker.C:
			if err := c.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait)); err != nil {
				return
			}
		}
	}
}
