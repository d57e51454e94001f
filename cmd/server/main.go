package main

import (
	"context"
	"io"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
	"github.com/sirupsen/logrus"

	"github.com/pcpower/service/internal/config"
	"github.com/pcpower/service/internal/services"
	"github.com/pcpower/service/internal/utils"
	"github.com/pcpower/service/pkg/device"
)

// initializeServices 加载配置并创建设备代理和操作目录，两种运行模式共用
func initializeServices(logOutput io.Writer) (*config.Config, *services.Catalogue) {
	cfg := config.Load()
	utils.InitTraceIDSystem(cfg.LogrusLevel(), logOutput)

	if err := cfg.Validate(); err != nil {
		logrus.WithError(err).Fatal("配置无效")
	}
	logrus.Infof("配置: %s", cfg)

	client := device.NewClient(
		cfg.APIBaseURL,
		cfg.AuthorizationHeader,
		cfg.DeviceTimeout,
		device.WithUserAgent(cfg.DeviceUserAgent),
	)
	return cfg, services.NewCatalogue(client)
}

// registerMCPTools 把目录中的每个操作注册为mcp-go工具
func registerMCPTools(s *server.MCPServer, catalogue *services.Catalogue) {
	for _, op := range catalogue.ListOperations() {
		tool := mcp.NewTool(op.Name,
			mcp.WithDescription(op.Description),
		)
		s.AddTool(tool, toolHandler(catalogue, op.Name))
		logrus.Debugf("注册MCP工具: %s", op.Name)
	}
}

// toolHandler 返回调用指定操作的处理函数；设备故障体现在结果文本中，不返回错误
func toolHandler(catalogue *services.Catalogue, name string) func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		result, err := catalogue.Invoke(ctx, name, request.Params.Arguments)
		if err != nil {
			return nil, err
		}
		return mcp.NewToolResultText(result.Text()), nil
	}
}
