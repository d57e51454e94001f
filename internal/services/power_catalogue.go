package services

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/pcpower/service/internal/models"
	"github.com/pcpower/service/pkg/device"
)

// ErrUnknownOperation 请求的工具未在目录中注册
var ErrUnknownOperation = errors.New("unknown operation")

// 工具名称
const (
	OpGetPowerStatus = "get-pc-power-status"
	OpTurnOn         = "turn-pc-on"
	OpTurnOff        = "turn-pc-off"
	OpForceOff       = "force-pc-off"
)

// 设备成功执行电源命令时返回的文本
const deviceOK = "OK"

const (
	statusOfflineText = "Failed to retrieve status data, maybe ESP is offline."
	powerOfflineText  = "Failed to retrieve power data, maybe ESP is offline."
)

// DeviceCaller 设备代理接口，目录只通过它访问设备
type DeviceCaller interface {
	Call(ctx context.Context, path, method string) device.Outcome
}

// Interpreter 把设备响应翻译成给用户的文本；ok为false表示没有可用响应
type Interpreter func(text string, ok bool) string

// Operation 一个可调用的无参数工具
type Operation struct {
	Name        string
	Description string
	Path        string
	Method      string
	Interpret   Interpreter
}

// Catalogue 电源操作目录
type Catalogue struct {
	device     DeviceCaller
	operations []Operation
	index      map[string]int
}

// NewCatalogue 创建包含四个电源操作的目录
func NewCatalogue(caller DeviceCaller) *Catalogue {
	c := &Catalogue{
		device: caller,
		operations: []Operation{
			{
				Name:        OpGetPowerStatus,
				Description: "Get user's PC power status",
				Path:        "/state",
				Method:      http.MethodGet,
				Interpret:   statusQuery(),
			},
			{
				Name:        OpTurnOn,
				Description: "Turn user's PC on",
				Path:        "/on",
				Method:      http.MethodPost,
				Interpret: powerCommand(
					"PC is now turning on!",
					"Failed to turn on the PC, maybe it's already on or ESP is offline.",
				),
			},
			{
				Name:        OpTurnOff,
				Description: "Turn user's PC off",
				Path:        "/off",
				Method:      http.MethodPost,
				Interpret: powerCommand(
					"PC is now turning off!",
					"Failed to turn off the PC, maybe it's already off or ESP is offline.",
				),
			},
			{
				Name:        OpForceOff,
				Description: "Force user's PC off - Dangerous",
				Path:        "/foff",
				Method:      http.MethodPost,
				Interpret: powerCommand(
					"PC is now forcing turning off!",
					"Failed to force off the PC, maybe it's already off or ESP is offline.",
				),
			},
		},
	}

	c.index = make(map[string]int, len(c.operations))
	for i, op := range c.operations {
		c.index[op.Name] = i
	}
	return c
}

func statusQuery() Interpreter {
	return func(text string, ok bool) string {
		if !ok {
			return statusOfflineText
		}
		return "PC is currently: " + text
	}
}

func powerCommand(success, failure string) Interpreter {
	return func(text string, ok bool) string {
		if !ok {
			return powerOfflineText
		}
		if text == deviceOK {
			return success
		}
		return failure
	}
}

// ListOperations 返回目录中所有操作的副本，顺序固定
func (c *Catalogue) ListOperations() []Operation {
	out := make([]Operation, len(c.operations))
	copy(out, c.operations)
	return out
}

// Lookup 按名称查找操作
func (c *Catalogue) Lookup(name string) (Operation, bool) {
	i, ok := c.index[name]
	if !ok {
		return Operation{}, false
	}
	return c.operations[i], true
}

// Invoke 调用指定操作。设备不可用不是错误，结果文本会说明；
// 只有未注册的名称返回 ErrUnknownOperation。四个操作都不接受参数，input被忽略。
func (c *Catalogue) Invoke(ctx context.Context, name string, input map[string]interface{}) (models.MCPToolCallResponse, error) {
	op, ok := c.Lookup(name)
	if !ok {
		return models.MCPToolCallResponse{}, fmt.Errorf("%w: %s", ErrUnknownOperation, name)
	}

	logger := logrus.WithContext(ctx).WithField("tool", name)
	if len(input) > 0 {
		logger.Debugf("[工具调用] 忽略参数: %v", input)
	}

	startTime := time.Now()
	text, available := c.device.Call(ctx, op.Path, op.Method).Text()
	// 空响应等同于没有响应
	if available && text == "" {
		logger.Warn("[工具调用] 设备返回空响应")
		available = false
	}

	result := op.Interpret(text, available)
	logger.WithFields(logrus.Fields{
		"available": available,
		"duration":  time.Since(startTime),
	}).Infof("[工具调用] 结果: %s", result)

	return models.NewTextResult(result), nil
}
