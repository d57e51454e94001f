package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"
	"github.com/mark3labs/mcp-go/mcp"
	"github.com/sirupsen/logrus"

	"github.com/pcpower/service/internal/models"
	"github.com/pcpower/service/internal/services"
)

// ErrSessionClosed 会话管理器已关闭，不再接受新消息
var ErrSessionClosed = errors.New("session manager is closed")

// SessionStrategy 通道生命周期策略
type SessionStrategy int

const (
	// PerRequest 每条消息创建新通道，用完即弃
	PerRequest SessionStrategy = iota
	// SharedLongLived 启动时创建一个通道，所有消息复用
	SharedLongLived
)

// ParseSessionStrategy 解析配置中的策略名
func ParseSessionStrategy(s string) (SessionStrategy, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "per-request", "perrequest", "stateless":
		return PerRequest, nil
	case "shared", "shared-long-lived", "sharedlonglived":
		return SharedLongLived, nil
	default:
		return PerRequest, fmt.Errorf("未知的会话策略: %q", s)
	}
}

func (s SessionStrategy) String() string {
	switch s {
	case PerRequest:
		return "per-request"
	case SharedLongLived:
		return "shared"
	default:
		return fmt.Sprintf("SessionStrategy(%d)", int(s))
	}
}

// ServerInfo initialize 与信息接口返回的服务标识
type ServerInfo struct {
	Name    string `json:"name"`
	Version string `json:"version"`
}

// rpcError 协议层错误
type rpcError struct {
	code    int
	message string
}

func (e *rpcError) Error() string {
	return fmt.Sprintf("%d: %s", e.code, e.message)
}

// Channel 把解码后的消息路由到操作目录。除目录外不持有任何状态，可并发复用。
type Channel struct {
	id        string
	catalogue *services.Catalogue
	info      ServerInfo
}

func newChannel(catalogue *services.Catalogue, info ServerInfo) *Channel {
	return &Channel{
		id:        uuid.NewString(),
		catalogue: catalogue,
		info:      info,
	}
}

// ID 通道标识，作为Mcp-Session-Id返回给客户端
func (ch *Channel) ID() string {
	return ch.id
}

// Handle 处理一条原始JSON-RPC消息。通知返回nil；其余情况总是返回一个合法响应。
func (ch *Channel) Handle(ctx context.Context, raw []byte) (resp *models.MCPResponse) {
	logger := logrus.WithContext(ctx).WithField("session", ch.id)

	if !json.Valid(raw) {
		logger.Warn("[MCP] JSON解析错误")
		return models.NewMCPError(nil, mcp.PARSE_ERROR, "Parse error")
	}

	var req models.MCPRequest
	if err := json.Unmarshal(raw, &req); err != nil {
		logger.WithError(err).Warn("[MCP] 无效的请求结构")
		return models.NewMCPError(nil, mcp.INVALID_REQUEST, "Invalid Request")
	}
	if !req.HasValidID() {
		logger.Warnf("[MCP] 无效的id: %s", string(req.ID))
		return models.NewMCPError(nil, mcp.INVALID_REQUEST, "Invalid Request: id must be a string, number or null")
	}

	defer func() {
		if r := recover(); r != nil {
			logger.Errorf("[MCP] 处理 %s 时发生恐慌: %v", req.Method, r)
			resp = models.NewMCPError(req.ID, mcp.INTERNAL_ERROR, "Internal error")
		}
	}()

	if req.JSONRPC != mcp.JSONRPC_VERSION {
		return models.NewMCPError(req.ID, mcp.INVALID_REQUEST, "Invalid Request: jsonrpc must be \"2.0\"")
	}
	if req.Method == "" {
		return models.NewMCPError(req.ID, mcp.INVALID_REQUEST, "Invalid Request: missing method")
	}

	logger.Debugf("[MCP] 处理方法: %s, ID: %s", req.Method, string(req.ID))

	result, err := ch.dispatch(ctx, &req)
	if req.IsNotification() {
		if err != nil {
			logger.WithError(err).Warnf("[MCP] 通知处理失败: %s", req.Method)
		}
		return nil
	}

	if err != nil {
		var rpcErr *rpcError
		if errors.As(err, &rpcErr) {
			return models.NewMCPError(req.ID, rpcErr.code, rpcErr.message)
		}
		logger.WithError(err).Errorf("[MCP] 处理 %s 失败", req.Method)
		return models.NewMCPError(req.ID, mcp.INTERNAL_ERROR, "Internal error")
	}
	return models.NewMCPResult(req.ID, result)
}

func (ch *Channel) dispatch(ctx context.Context, req *models.MCPRequest) (interface{}, error) {
	switch req.Method {
	case "initialize":
		return map[string]interface{}{
			"protocolVersion": mcp.LATEST_PROTOCOL_VERSION,
			"capabilities": map[string]interface{}{
				"tools": map[string]interface{}{
					"listChanged": false,
				},
			},
			"serverInfo": ch.info,
		}, nil
	case "ping":
		return map[string]interface{}{}, nil
	case "tools/list":
		return map[string]interface{}{
			"tools": ToolInfos(ch.catalogue),
		}, nil
	case "tools/call":
		return ch.callTool(ctx, req.Params)
	default:
		if strings.HasPrefix(req.Method, "notifications/") {
			// 带id的通知按请求应答
			return map[string]interface{}{}, nil
		}
		return nil, &rpcError{code: mcp.METHOD_NOT_FOUND, message: "Method not found: " + req.Method}
	}
}

func (ch *Channel) callTool(ctx context.Context, raw json.RawMessage) (interface{}, error) {
	var params models.MCPToolCallParams
	if len(raw) > 0 {
		if err := json.Unmarshal(raw, &params); err != nil {
			return nil, &rpcError{code: mcp.INVALID_PARAMS, message: "Invalid params: " + err.Error()}
		}
	}
	if params.Name == "" {
		return nil, &rpcError{code: mcp.INVALID_PARAMS, message: "Invalid params: missing tool name"}
	}

	result, err := ch.catalogue.Invoke(ctx, params.Name, params.Arguments)
	if errors.Is(err, services.ErrUnknownOperation) {
		return nil, &rpcError{code: mcp.METHOD_NOT_FOUND, message: "Unknown tool: " + params.Name}
	}
	if err != nil {
		return nil, fmt.Errorf("调用工具 %s: %w", params.Name, err)
	}
	return result, nil
}

// ToolInfos 把目录转换为tools/list格式
func ToolInfos(catalogue *services.Catalogue) []models.MCPToolInfo {
	ops := catalogue.ListOperations()
	tools := make([]models.MCPToolInfo, 0, len(ops))
	for _, op := range ops {
		tools = append(tools, models.MCPToolInfo{
			Name:        op.Name,
			Description: op.Description,
			InputSchema: map[string]interface{}{
				"type":       "object",
				"properties": map[string]interface{}{},
			},
		})
	}
	return tools
}

// SessionManager 按策略为每条入站消息提供通道
type SessionManager struct {
	strategy  SessionStrategy
	catalogue *services.Catalogue
	info      ServerInfo
	shared    *Channel

	closed   atomic.Bool
	mu       sync.RWMutex
	inflight sync.WaitGroup
}

// NewSessionManager 创建会话管理器；共享策略下立即创建唯一通道
func NewSessionManager(strategy SessionStrategy, catalogue *services.Catalogue, info ServerInfo) *SessionManager {
	m := &SessionManager{
		strategy:  strategy,
		catalogue: catalogue,
		info:      info,
	}
	if strategy == SharedLongLived {
		m.shared = newChannel(catalogue, info)
	}
	return m
}

// Strategy 当前策略
func (m *SessionManager) Strategy() SessionStrategy {
	return m.strategy
}

// Catalogue 绑定的操作目录
func (m *SessionManager) Catalogue() *services.Catalogue {
	return m.catalogue
}

// Info 服务标识
func (m *SessionManager) Info() ServerInfo {
	return m.info
}

func (m *SessionManager) channel() *Channel {
	if m.shared != nil {
		return m.shared
	}
	return newChannel(m.catalogue, m.info)
}

// Serve 为一条消息获取通道并处理，返回响应和通道ID
func (m *SessionManager) Serve(ctx context.Context, raw []byte) (*models.MCPResponse, string, error) {
	// 读锁保证Close之后不会再有新的inflight.Add
	m.mu.RLock()
	if m.closed.Load() {
		m.mu.RUnlock()
		return nil, "", ErrSessionClosed
	}
	m.inflight.Add(1)
	m.mu.RUnlock()
	defer m.inflight.Done()

	ch := m.channel()
	return ch.Handle(ctx, raw), ch.ID(), nil
}

// Close 停止接受新消息，等待处理中的消息完成或ctx到期
func (m *SessionManager) Close(ctx context.Context) error {
	m.mu.Lock()
	m.closed.Store(true)
	m.mu.Unlock()

	done := make(chan struct{})
	go func() {
		m.inflight.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
