//go:build !stdio

package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/pcpower/service/internal/api"
)

func main() {
	cfg, catalogue := initializeServices(os.Stdout)
	logrus.Info("启动 PC Power Streamable HTTP MCP 服务器...")

	if cfg.GinMode == "debug" {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}

	strategy, err := api.ParseSessionStrategy(cfg.SessionStrategy)
	if err != nil {
		logrus.WithError(err).Fatal("会话策略无效")
	}

	sessions := api.NewSessionManager(strategy, catalogue, api.ServerInfo{
		Name:    cfg.ServiceName,
		Version: cfg.ServiceVersion,
	})
	router := api.NewRouter(api.NewHandler(sessions, cfg.StaticDir))

	srv := &http.Server{
		Addr:         cfg.Addr(),
		Handler:      router,
		ReadTimeout:  time.Minute,
		WriteTimeout: cfg.DeviceTimeout + time.Minute,
		IdleTimeout:  5 * time.Minute,
	}

	// 优雅关闭：停止接收新消息，等待进行中的设备调用结束
	shutdownDone := make(chan struct{})
	go func() {
		defer close(shutdownDone)

		sigint := make(chan os.Signal, 1)
		signal.Notify(sigint, os.Interrupt, syscall.SIGTERM)
		sig := <-sigint
		logrus.Infof("收到信号 %s，正在关闭服务器...", sig)

		ctx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
		defer cancel()

		if err := srv.Shutdown(ctx); err != nil {
			logrus.WithError(err).Warn("HTTP服务器关闭时出错")
		}
		if err := sessions.Close(ctx); err != nil {
			logrus.WithError(err).Warn("等待进行中的请求超时")
		}
		logrus.Info("服务器已关闭")
	}()

	logrus.Infof("PC Power MCP 服务器启动在 %s (会话策略: %s)", cfg.Addr(), strategy)
	logrus.Infof("MCP协议端点: http://%s/mcp", cfg.Addr())
	logrus.Infof("WebSocket端点: ws://%s/mcp/ws", cfg.Addr())

	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logrus.WithError(err).Fatal("HTTP服务器启动失败")
	}
	<-shutdownDone
}
