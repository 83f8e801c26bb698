// internal/service/push/handler.go
package push

import (
	"context"
	"net/http"

	"github.com/gorilla/websocket"

	"takeout/internal/pkg/logger"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool { // 简化处理，允许所有跨域
		return true
	},
}

// Handler 把 GET /ws/{sid} 升级为 WebSocket 并注册到 Hub
type Handler struct {
	hub *Hub
}

func NewHandler(hub *Hub) *Handler {
	return &Handler{hub: hub}
}

func (h *Handler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /ws/{sid}", h.serveWs)
}

func (h *Handler) serveWs(w http.ResponseWriter, r *http.Request) {
	sid := r.PathValue("sid")
	if sid == "" {
		http.Error(w, "sid is required", http.StatusBadRequest)
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		logger.Ctx(r.Context()).Warn().Err(err).Str("session_id", sid).Msg("websocket upgrade failed")
		return
	}

	// 连接的生命周期与请求无关
	ctx := context.WithoutCancel(r.Context())
	client := newClient(sid, conn)
	if err := h.hub.Register(ctx, sid, client); err != nil {
		logger.Ctx(ctx).Warn().Err(err).Str("session_id", sid).Msg("register session failed")
		_ = client.Close()
		return
	}

	go client.pingLoop()
	go func() {
		client.readPump(ctx)
		h.hub.Detach(ctx, sid, client)
		_ = client.Close()
	}()
}
