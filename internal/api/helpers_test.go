package api

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/pcpower/service/internal/services"
	"github.com/pcpower/service/pkg/device"
)

var testInfo = ServerInfo{Name: "pc-power-mcp", Version: "1.0.0"}

// espMock 模拟ESP设备：按路径返回固定文本
func espMock(t *testing.T, responses map[string]string) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		text, ok := responses[r.Method+" "+r.URL.Path]
		if !ok {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "text/plain")
		w.Write([]byte(text))
	}))
	t.Cleanup(srv.Close)
	return srv
}

// slowMock 模拟超时的设备
func slowMock(t *testing.T, delay time.Duration) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-time.After(delay):
			w.Write([]byte("OK"))
		case <-r.Context().Done():
		}
	}))
	t.Cleanup(srv.Close)
	return srv
}

func newTestSessions(deviceURL string, strategy SessionStrategy) *SessionManager {
	client := device.NewClient(deviceURL, "token", 100*time.Millisecond)
	return NewSessionManager(strategy, services.NewCatalogue(client), testInfo)
}

// panicDevice 调用即恐慌的设备
type panicDevice struct{}

func (panicDevice) Call(ctx context.Context, path, method string) device.Outcome {
	panic("device exploded")
}

func newTestRouter(deviceURL string, strategy SessionStrategy) (*gin.Engine, *SessionManager) {
	gin.SetMode(gin.TestMode)
	sessions := newTestSessions(deviceURL, strategy)
	return NewRouter(NewHandler(sessions, "")), sessions
}

var strategies = []SessionStrategy{PerRequest, SharedLongLived}
