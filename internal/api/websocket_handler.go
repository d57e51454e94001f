package api

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	jsoniter "github.com/json-iterator/go"
	"github.com/sirupsen/logrus"

	"github.com/pcpower/service/internal/models"
)

var wsJSON = jsoniter.ConfigCompatibleWithStandardLibrary

const (
	wsPongWait   = 90 * time.Second
	wsPingPeriod = 45 * time.Second
	wsWriteWait  = 10 * time.Second
)

// WebSocket升级器
var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// HandleWebSocket 在一条WebSocket连接上承载多条JSON-RPC消息，每帧一条
func (h *Handler) HandleWebSocket(c *gin.Context) {
	ctx := c.Request.Context()
	logger := logrus.WithContext(ctx)

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		// Upgrade 已经写回了错误响应
		logger.WithError(err).Warn("[WebSocket] 升级连接失败")
		return
	}
	defer conn.Close()

	logger.Infof("[WebSocket] 连接已建立: %s", c.ClientIP())

	conn.SetReadLimit(maxMessageBytes)
	conn.SetReadDeadline(time.Now().Add(wsPongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(wsPongWait))
	})

	done := make(chan struct{})
	defer close(done)
	go func() {
		ticker := time.NewTicker(wsPingPeriod)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(wsWriteWait)); err != nil {
					return
				}
			case <-done:
				return
			}
		}
	}()

	out := &wsWriter{conn: conn}
	var workers sync.WaitGroup

	for {
		msgType, data, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				logger.WithError(err).Warn("[WebSocket] 读取消息失败")
			}
			break
		}
		if msgType != websocket.TextMessage && msgType != websocket.BinaryMessage {
			continue
		}

		// 每帧独立处理，慢的设备调用不阻塞同一连接上的后续消息
		workers.Add(1)
		go func(data []byte) {
			defer workers.Done()
			h.serveFrame(ctx, out, data)
		}(data)
	}

	// 处理中的消息写完再关闭连接
	workers.Wait()
	logger.Info("[WebSocket] 连接已关闭")
}

func (h *Handler) serveFrame(ctx context.Context, out *wsWriter, data []byte) {
	logger := logrus.WithContext(ctx)

	resp, _, err := h.sessions.Serve(ctx, data)
	if errors.Is(err, ErrSessionClosed) {
		out.send(models.NewMCPError(peekID(data), ErrCodeServer, "Server is shutting down"))
		out.conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseGoingAway, "shutting down"),
			time.Now().Add(wsWriteWait))
		return
	}
	if resp == nil {
		return
	}
	if err := out.send(resp); err != nil {
		logger.WithError(err).Warn("[WebSocket] 写入响应失败")
		// 让读循环退出
		out.conn.Close()
	}
}

// wsWriter 串行化同一连接上的写操作，gorilla只允许一个并发写者
type wsWriter struct {
	mu   sync.Mutex
	conn *websocket.Conn
}

func (w *wsWriter) send(resp *models.MCPResponse) error {
	data, err := wsJSON.Marshal(resp)
	if err != nil {
		return err
	}

	w.mu.Lock()
	defer w.mu.Unlock()
	w.conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
	return w.conn.WriteMessage(websocket.TextMessage, data)
}
