package utils

import (
	"context"
	"crypto/rand"
	"fmt"
	"io"
	"runtime"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
)

// TraceID 键名
const TraceIDKey = "traceId"

// TraceIDHeader 请求/响应头
const TraceIDHeader = "X-Trace-ID"

type traceIDContextKey struct{}

// GenerateTraceID 生成TraceID
func GenerateTraceID() string {
	bytes := make([]byte, 8)
	rand.Read(bytes)
	return fmt.Sprintf("%x", bytes)
}

// TraceIDHook 把context中的TraceID写入logrus字段
type TraceIDHook struct{}

// Levels 返回适用的日志级别
func (hook *TraceIDHook) Levels() []logrus.Level {
	return logrus.AllLevels
}

// Fire 在每次日志记录时触发
func (hook *TraceIDHook) Fire(entry *logrus.Entry) error {
	if entry.Context == nil {
		return nil
	}
	if traceID := GetTraceIDFromContext(entry.Context); traceID != "" {
		entry.Data[TraceIDKey] = traceID
	}
	return nil
}

// InitTraceIDSystem 初始化logrus格式、级别与TraceID Hook
func InitTraceIDSystem(level logrus.Level, out io.Writer) {
	logrus.SetFormatter(&logrus.TextFormatter{
		FullTimestamp:   true,
		TimestampFormat: "2006/01/02 15:04:05",
		DisableColors:   true,
		CallerPrettyfier: func(f *runtime.Frame) (string, string) {
			return "", fmt.Sprintf("%s:%d", f.File, f.Line)
		},
	})
	logrus.SetReportCaller(level >= logrus.DebugLevel)
	logrus.SetLevel(level)
	logrus.SetOutput(out)
	logrus.AddHook(&TraceIDHook{})

	logrus.Debugf("TraceID系统初始化完成, 日志级别: %s", level)
}

// TraceIDMiddleware Gin中间件：TraceID处理
func TraceIDMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		// 从请求头获取TraceID，如果没有则生成新的
		traceID := c.GetHeader(TraceIDHeader)
		if traceID == "" {
			traceID = GenerateTraceID()
		}

		c.Set(TraceIDKey, traceID)
		c.Request = c.Request.WithContext(WithTraceID(c.Request.Context(), traceID))
		c.Header(TraceIDHeader, traceID)

		c.Next()
	}
}

// GetTraceIDFromGin 从Gin上下文获取TraceID
func GetTraceIDFromGin(c *gin.Context) string {
	if traceID, exists := c.Get(TraceIDKey); exists {
		if s, ok := traceID.(string); ok {
			return s
		}
	}
	return ""
}

// GetTraceIDFromContext 从标准context获取TraceID
func GetTraceIDFromContext(ctx context.Context) string {
	if traceID, ok := ctx.Value(traceIDContextKey{}).(string); ok {
		return traceID
	}
	return ""
}

// WithTraceID 将TraceID添加到标准context
func WithTraceID(ctx context.Context, traceID string) context.Context {
	return context.WithValue(ctx, traceIDContextKey{}, traceID)
}
