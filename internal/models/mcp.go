package models

import (
	"bytes"
	"encoding/json"
	"strings"
)

// MCP协议相关的数据结构定义

// MCPRequest 表示MCP JSON-RPC请求
// ID 保留原始JSON形式（数字或字符串），响应时原样回传
type MCPRequest struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      json.RawMessage `json:"id,omitempty"`
	Method  string          `json:"method"`
	Params  json.RawMessage `json:"params,omitempty"`
}

// IsNotification 不带id的 notifications/* 消息是通知，不需要响应。
// 带id的消息一律按请求处理；其他方法即使缺少id也会得到响应，id为null。
func (r *MCPRequest) IsNotification() bool {
	return len(r.ID) == 0 && strings.HasPrefix(r.Method, "notifications/")
}

// HasValidID id只能缺省，或是字符串、数字、null
func (r *MCPRequest) HasValidID() bool {
	id := bytes.TrimSpace(r.ID)
	if len(id) == 0 || bytes.Equal(id, NullID) {
		return true
	}
	switch c := id[0]; {
	case c == '"', c == '-', c >= '0' && c <= '9':
		return true
	}
	return false
}

// MCPToolCallParams tools/call 请求参数
type MCPToolCallParams struct {
	Name      string                 `json:"name"`
	Arguments map[string]interface{} `json:"arguments,omitempty"`
}

// MCPResponse 表示MCP JSON-RPC响应
// ID 不使用omitempty：缺失时必须序列化为null
type MCPResponse struct {
	JSONRPC string          `json:"jsonrpc"`
	Result  interface{}     `json:"result,omitempty"`
	Error   *MCPError       `json:"error,omitempty"`
	ID      json.RawMessage `json:"id"`
}

// MCPError MCP错误响应
type MCPError struct {
	Code    int         `json:"code"`
	Message string      `json:"message"`
	Data    interface{} `json:"data,omitempty"`
}

// NullID 请求未提供id时响应使用的id
var NullID = json.RawMessage("null")

func normalizeID(id json.RawMessage) json.RawMessage {
	if len(id) == 0 {
		return NullID
	}
	return id
}

// NewMCPResult 构造成功响应
func NewMCPResult(id json.RawMessage, result interface{}) *MCPResponse {
	return &MCPResponse{JSONRPC: "2.0", ID: normalizeID(id), Result: result}
}

// NewMCPError 构造错误响应
func NewMCPError(id json.RawMessage, code int, message string) *MCPResponse {
	return &MCPResponse{
		JSONRPC: "2.0",
		ID:      normalizeID(id),
		Error:   &MCPError{Code: code, Message: message},
	}
}

// MCPToolCallResponse 工具调用响应
type MCPToolCallResponse struct {
	Content []MCPContent `json:"content"`
	IsError bool         `json:"isError,omitempty"`
}

// MCPContent 内容块
type MCPContent struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

// NewTextResult 构造只包含一个文本块的工具结果
func NewTextResult(text string) MCPToolCallResponse {
	return MCPToolCallResponse{
		Content: []MCPContent{{Type: "text", Text: text}},
	}
}

// Text 拼接所有文本块
func (r MCPToolCallResponse) Text() string {
	var out string
	for _, c := range r.Content {
		if c.Type == "text" {
			out += c.Text
		}
	}
	return out
}

// MCPToolInfo tools/list 中的单个工具描述
type MCPToolInfo struct {
	Name        string                 `json:"name"`
	Description string                 `json:"description"`
	InputSchema map[string]interface{} `json:"inputSchema,omitempty"`
}
