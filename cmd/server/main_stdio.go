//go:build stdio

package main

import (
	"os"

	"github.com/mark3labs/mcp-go/server"
	"github.com/sirupsen/logrus"
)

func main() {
	// MCP使用stdout通信，日志只能写stderr
	cfg, catalogue := initializeServices(os.Stderr)
	logrus.Info("启动 PC Power STDIO MCP 服务器...")

	serverOptions := []server.ServerOption{}
	if cfg.Debug {
		serverOptions = append(serverOptions, server.WithLogging())
	}

	s := server.NewMCPServer(
		cfg.ServiceName,
		cfg.ServiceVersion,
		serverOptions...,
	)
	registerMCPTools(s, catalogue)

	logrus.Info("PC Power STDIO MCP 服务器已启动，等待连接...")
	if err := server.ServeStdio(s); err != nil {
		logrus.WithError(err).Fatal("MCP服务器启动失败")
	}
}
