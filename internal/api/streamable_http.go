package api

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/mark3labs/mcp-go/mcp"
	"github.com/sirupsen/logrus"

	"github.com/pcpower/service/internal/models"
)

// MCPSessionHeader 响应中携带通道标识的头
const MCPSessionHeader = "Mcp-Session-Id"

// 单条消息体上限
const maxMessageBytes = 1 << 20

// ErrCodeServer 非协议方法错误（动词不支持、服务关闭）
const ErrCodeServer = -32000

// StreamableHTTPHandler 专门处理MCP Streamable HTTP协议
type StreamableHTTPHandler struct {
	sessions *SessionManager
}

// NewStreamableHTTPHandler 创建新的Streamable HTTP处理器
func NewStreamableHTTPHandler(sessions *SessionManager) *StreamableHTTPHandler {
	return &StreamableHTTPHandler{
		sessions: sessions,
	}
}

// HandleStreamableHTTP 处理 POST /mcp
func (sh *StreamableHTTPHandler) HandleStreamableHTTP(c *gin.Context) {
	ctx := c.Request.Context()
	logger := logrus.WithContext(ctx)

	c.Header("Cache-Control", "no-cache, no-store, must-revalidate")

	body, err := io.ReadAll(io.LimitReader(c.Request.Body, maxMessageBytes))
	if err != nil {
		logger.WithError(err).Warn("[Streamable HTTP] 读取请求体失败")
		c.JSON(http.StatusBadRequest, models.NewMCPError(nil, mcp.PARSE_ERROR, "Parse error"))
		return
	}

	// 通道内部已做恢复，这里兜底处理通道之外的异常，并确保只响应一次
	defer func() {
		if r := recover(); r != nil {
			logger.Errorf("[Streamable HTTP] 发生恐慌: %v", r)
			if !c.Writer.Written() {
				c.JSON(http.StatusInternalServerError,
					models.NewMCPError(peekID(body), mcp.INTERNAL_ERROR, "Internal server error"))
			}
		}
	}()

	resp, sessionID, err := sh.sessions.Serve(ctx, body)
	if errors.Is(err, ErrSessionClosed) {
		logger.Warn("[Streamable HTTP] 服务正在关闭，拒绝请求")
		c.JSON(http.StatusServiceUnavailable,
			models.NewMCPError(peekID(body), ErrCodeServer, "Server is shutting down"))
		return
	}

	c.Header(MCPSessionHeader, sessionID)

	if resp == nil {
		c.Status(http.StatusAccepted)
		c.Writer.WriteHeaderNow()
		return
	}

	if resp.Error != nil {
		logger.Infof("[Streamable HTTP] 返回错误: code=%d, message=%s", resp.Error.Code, resp.Error.Message)
	}
	c.JSON(http.StatusOK, resp)
}

// peekID 尽力从原始消息中取出合法的id，失败时为nil
func peekID(body []byte) json.RawMessage {
	var req models.MCPRequest
	if err := json.Unmarshal(body, &req); err != nil || !req.HasValidID() {
		return nil
	}
	return req.ID
}

// HandleMethodNotAllowed 处理 /mcp 上不支持的HTTP动词
func HandleMethodNotAllowed(c *gin.Context) {
	logrus.WithContext(c.Request.Context()).Infof("[MCP] %s request to /mcp - method not allowed", c.Request.Method)
	c.JSON(http.StatusMethodNotAllowed, models.NewMCPError(nil, ErrCodeServer,
		"Method "+c.Request.Method+" not allowed. Use GET for info or POST for MCP requests."))
}

// RegisterStreamableHTTPRoutes 注册Streamable HTTP路由
func (sh *StreamableHTTPHandler) RegisterStreamableHTTPRoutes(router *gin.Engine) {
	router.POST("/mcp", sh.HandleStreamableHTTP)
	router.PUT("/mcp", HandleMethodNotAllowed)
	router.PATCH("/mcp", HandleMethodNotAllowed)
	router.DELETE("/mcp", HandleMethodNotAllowed)

	router.GET("/mcp/capabilities", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"transport":       "streamable-http",
			"protocolVersion": mcp.LATEST_PROTOCOL_VERSION,
			"sessionStrategy": sh.sessions.Strategy().String(),
			"capabilities": gin.H{
				"tools": gin.H{
					"listChanged": false,
				},
			},
			"serverInfo": sh.sessions.Info(),
		})
	})
	logrus.Debug("[Streamable HTTP] 注册MCP路由: POST /mcp")
}
