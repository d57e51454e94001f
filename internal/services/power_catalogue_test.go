package services

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"testing"

	"github.com/brianvoe/gofakeit/v6"

	"github.com/pcpower/service/pkg/device"
)

// fakeDevice 按路径返回预设结果并记录调用
type fakeDevice struct {
	mu       sync.Mutex
	outcomes map[string]device.Outcome
	calls    []string
}

func (f *fakeDevice) Call(ctx context.Context, path, method string) device.Outcome {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, method+" "+path)
	if out, ok := f.outcomes[path]; ok {
		return out
	}
	return device.Unavailable()
}

func answering(text string) *fakeDevice {
	return &fakeDevice{outcomes: map[string]device.Outcome{
		"/state": device.Available(text),
		"/on":    device.Available(text),
		"/off":   device.Available(text),
		"/foff":  device.Available(text),
	}}
}

func TestCatalogueListOperations(t *testing.T) {
	cat := NewCatalogue(&fakeDevice{})
	ops := cat.ListOperations()

	want := []struct{ name, path, method, desc string }{
		{OpGetPowerStatus, "/state", http.MethodGet, "Get user's PC power status"},
		{OpTurnOn, "/on", http.MethodPost, "Turn user's PC on"},
		{OpTurnOff, "/off", http.MethodPost, "Turn user's PC off"},
		{OpForceOff, "/foff", http.MethodPost, "Force user's PC off - Dangerous"},
	}
	if len(ops) != len(want) {
		t.Fatalf("got %d operations, want %d", len(ops), len(want))
	}
	for i, w := range want {
		op := ops[i]
		if op.Name != w.name || op.Path != w.path || op.Method != w.method || op.Description != w.desc {
			t.Errorf("operation %d = %+v, want %+v", i, op, w)
		}
		if _, ok := cat.Lookup(op.Name); !ok {
			t.Errorf("advertised operation %s not resolvable", op.Name)
		}
	}

	// 修改副本不影响目录
	ops[0].Name = "mutated"
	if _, ok := cat.Lookup(OpGetPowerStatus); !ok {
		t.Error("catalogue mutated through ListOperations copy")
	}
}

func TestCatalogueSuccess(t *testing.T) {
	cases := map[string]string{
		OpTurnOn:   "PC is now turning on!",
		OpTurnOff:  "PC is now turning off!",
		OpForceOff: "PC is now forcing turning off!",
	}
	for name, want := range cases {
		fake := answering("OK")
		res, err := NewCatalogue(fake).Invoke(context.Background(), name, nil)
		if err != nil {
			t.Fatalf("%s: unexpected error %v", name, err)
		}
		if got := res.Text(); got != want {
			t.Errorf("%s = %q, want %q", name, got, want)
		}
		if len(res.Content) != 1 || res.Content[0].Type != "text" {
			t.Errorf("%s: unexpected content %+v", name, res.Content)
		}
		if len(fake.calls) != 1 || fake.calls[0][:4] != "POST" {
			t.Errorf("%s: device calls = %v", name, fake.calls)
		}
	}
}

func TestCatalogueStatusEchoesText(t *testing.T) {
	gofakeit.Seed(42)
	for i := 0; i < 20; i++ {
		status := gofakeit.Word()
		fake := answering(status)
		res, err := NewCatalogue(fake).Invoke(context.Background(), OpGetPowerStatus, nil)
		if err != nil {
			t.Fatal(err)
		}
		if got, want := res.Text(), "PC is currently: "+status; got != want {
			t.Errorf("got %q, want %q", got, want)
		}
		if fake.calls[0] != "GET /state" {
			t.Errorf("device calls = %v", fake.calls)
		}
	}
}

func TestCatalogueUnexpectedResponse(t *testing.T) {
	cases := map[string]string{
		OpTurnOn:   "Failed to turn on the PC, maybe it's already on or ESP is offline.",
		OpTurnOff:  "Failed to turn off the PC, maybe it's already off or ESP is offline.",
		OpForceOff: "Failed to force off the PC, maybe it's already off or ESP is offline.",
	}
	gofakeit.Seed(7)
	for name, want := range cases {
		for _, text := range []string{"ok", "OK\n", "BUSY", gofakeit.Sentence(4)} {
			res, err := NewCatalogue(answering(text)).Invoke(context.Background(), name, nil)
			if err != nil {
				t.Fatal(err)
			}
			if got := res.Text(); got != want {
				t.Errorf("%s with %q = %q, want %q", name, text, got, want)
			}
		}
	}
}

func TestCatalogueDeviceUnavailable(t *testing.T) {
	cases := map[string]string{
		OpGetPowerStatus: "Failed to retrieve status data, maybe ESP is offline.",
		OpTurnOn:         "Failed to retrieve power data, maybe ESP is offline.",
		OpTurnOff:        "Failed to retrieve power data, maybe ESP is offline.",
		OpForceOff:       "Failed to retrieve power data, maybe ESP is offline.",
	}
	for name, want := range cases {
		res, err := NewCatalogue(&fakeDevice{}).Invoke(context.Background(), name, nil)
		if err != nil {
			t.Fatalf("%s: unavailability must not be an error, got %v", name, err)
		}
		if got := res.Text(); got != want {
			t.Errorf("%s = %q, want %q", name, got, want)
		}

		// 空响应等同于不可用
		res, _ = NewCatalogue(answering("")).Invoke(context.Background(), name, nil)
		if got := res.Text(); got != want {
			t.Errorf("%s with empty body = %q, want %q", name, got, want)
		}
	}
}

func TestCatalogueUnknownOperation(t *testing.T) {
	fake := answering("OK")
	_, err := NewCatalogue(fake).Invoke(context.Background(), "reboot-pc", nil)
	if !errors.Is(err, ErrUnknownOperation) {
		t.Fatalf("err = %v, want ErrUnknownOperation", err)
	}
	if len(fake.calls) != 0 {
		t.Errorf("unknown operation must not reach the device: %v", fake.calls)
	}
}

func TestCatalogueStatusIdempotent(t *testing.T) {
	cat := NewCatalogue(answering("on"))
	first, _ := cat.Invoke(context.Background(), OpGetPowerStatus, nil)
	second, _ := cat.Invoke(context.Background(), OpGetPowerStatus, map[string]interface{}{"ignored": true})
	if first.Text() != second.Text() {
		t.Errorf("repeated status differs: %q vs %q", first.Text(), second.Text())
	}
}
