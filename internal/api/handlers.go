package api

import (
	"net/http"
	"os"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/pcpower/service/internal/utils"
)

// Handler 辅助HTTP接口与MCP传输的集合
type Handler struct {
	sessions   *SessionManager
	streamable *StreamableHTTPHandler
	staticDir  string
	startTime  time.Time
}

// NewHandler 创建API处理器；staticDir为空或不存在时不提供静态文件
func NewHandler(sessions *SessionManager, staticDir string) *Handler {
	return &Handler{
		sessions:   sessions,
		streamable: NewStreamableHTTPHandler(sessions),
		staticDir:  staticDir,
		startTime:  time.Now(),
	}
}

// NewCORSMiddleware 允许MCP Inspector等任意来源访问
func NewCORSMiddleware() gin.HandlerFunc {
	config := cors.DefaultConfig()
	config.AllowAllOrigins = true
	config.AllowMethods = []string{"GET", "POST", "PUT", "PATCH", "DELETE", "HEAD", "OPTIONS"}
	config.AllowHeaders = []string{"Origin", "Content-Length", "Content-Type", "Authorization", "Accept", "Cache-Control", "X-Requested-With", "Last-Event-ID", utils.TraceIDHeader, MCPSessionHeader, "Mcp-Protocol-Version"}
	config.ExposeHeaders = []string{"Content-Length", utils.TraceIDHeader, MCPSessionHeader}
	config.AllowCredentials = true
	config.MaxAge = 12 * time.Hour
	return cors.New(config)
}

// NewRouter 创建带中间件和全部路由的gin引擎
func NewRouter(h *Handler) *gin.Engine {
	router := gin.New()
	router.Use(gin.Logger())
	router.Use(gin.Recovery())
	router.Use(utils.TraceIDMiddleware())
	router.Use(NewCORSMiddleware())

	h.RegisterRoutes(router)
	return router
}

// RegisterRoutes 注册所有路由
func (h *Handler) RegisterRoutes(router *gin.Engine) {
	router.GET("/", h.HandleRoot)
	router.GET("/health", h.HandleHealth)
	router.GET("/mcp", h.HandleInfo)
	router.GET("/mcp/ws", h.HandleWebSocket)
	h.streamable.RegisterStreamableHTTPRoutes(router)

	if h.staticDir != "" {
		if info, err := os.Stat(h.staticDir); err == nil && info.IsDir() {
			router.Static("/public", h.staticDir)
			logrus.Infof("静态文件服务器注册成功: /public -> %s", h.staticDir)
		}
	}
}

// HandleRoot 服务信息
func (h *Handler) HandleRoot(c *gin.Context) {
	info := h.sessions.Info()
	c.JSON(http.StatusOK, gin.H{
		"service":         info.Name,
		"version":         info.Version,
		"mode":            "streamable-http",
		"protocol":        "MCP Streamable HTTP",
		"status":          "running",
		"sessionStrategy": h.sessions.Strategy().String(),
		"uptime":          time.Since(h.startTime).Round(time.Second).String(),
		"timestamp":       time.Now().Format(time.RFC3339),
		"endpoints": gin.H{
			"mcp":          "/mcp",
			"websocket":    "/mcp/ws",
			"capabilities": "/mcp/capabilities",
			"health":       "/health",
		},
	})
}

// HandleHealth 存活检查
func (h *Handler) HandleHealth(c *gin.Context) {
	info := h.sessions.Info()
	c.JSON(http.StatusOK, gin.H{
		"status":    "ok",
		"timestamp": time.Now().Format(time.RFC3339),
		"server":    info.Name,
		"version":   info.Version,
	})
}

// HandleInfo GET /mcp 的发现接口
func (h *Handler) HandleInfo(c *gin.Context) {
	info := h.sessions.Info()

	scheme := "http"
	if c.Request.TLS != nil || c.GetHeader("X-Forwarded-Proto") == "https" {
		scheme = "https"
	}

	tools := make([]gin.H, 0)
	for _, op := range h.sessions.Catalogue().ListOperations() {
		tools = append(tools, gin.H{"name": op.Name, "description": op.Description})
	}

	c.JSON(http.StatusOK, gin.H{
		"name":        info.Name,
		"version":     info.Version,
		"description": "PC Power Control MCP Server",
		"protocol":    "model-context-protocol",
		"endpoint":    "/mcp",
		"methods":     []string{"POST"},
		"tools":       tools,
		"usage": gin.H{
			"connect": "Connect MCP Inspector or other MCP clients to: " + scheme + "://" + c.Request.Host + "/mcp",
			"example": "Use MCP Inspector to test this server's capabilities",
		},
	})
}
