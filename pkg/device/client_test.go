package device

import (
	"context"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	logtest "github.com/sirupsen/logrus/hooks/test"
)

func TestCallSendsHeaders(t *testing.T) {
	var got *http.Request
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got = r.Clone(context.Background())
		w.Write([]byte("OK"))
	}))
	defer srv.Close()

	c := NewClient(srv.URL+"/", "s3cret", time.Second)
	out := c.Call(context.Background(), "/on", http.MethodPost)

	text, ok := out.Text()
	if !ok || text != "OK" {
		t.Fatalf("Call() = %q, %v", text, ok)
	}
	if got.Method != http.MethodPost {
		t.Errorf("method = %s", got.Method)
	}
	if got.URL.Path != "/on" {
		t.Errorf("path = %s", got.URL.Path)
	}
	if ua := got.Header.Get("User-Agent"); ua != DefaultUserAgent {
		t.Errorf("User-Agent = %q", ua)
	}
	if auth := got.Header.Get("Authorization"); auth != "Bearer s3cret" {
		t.Errorf("Authorization = %q", auth)
	}
	if accept := got.Header.Get("Accept"); accept != "application/json, text/plain, */*" {
		t.Errorf("Accept = %q", accept)
	}
}

func TestFormatAuthorization(t *testing.T) {
	cases := map[string]string{
		"":                "",
		"abc":             "Bearer abc",
		"Bearer abc":      "Bearer abc",
		"Basic dXNlcjpw":  "Basic dXNlcjpw",
		"  padded-token ": "Bearer padded-token",
	}
	for in, want := range cases {
		if got := formatAuthorization(in); got != want {
			t.Errorf("formatAuthorization(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestCallWithoutTokenOmitsHeader(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if _, ok := r.Header["Authorization"]; ok {
			t.Errorf("unexpected Authorization header %q", r.Header.Get("Authorization"))
		}
		if ua := r.Header.Get("User-Agent"); ua != "custom/2.0" {
			t.Errorf("User-Agent = %q, want custom/2.0", ua)
		}
		w.Write([]byte("on"))
	}))
	defer srv.Close()

	out := NewClient(srv.URL, "", time.Second, WithUserAgent("custom/2.0")).Call(context.Background(), "/state", http.MethodGet)
	if out.IsUnavailable() {
		t.Fatal("expected available outcome")
	}
}

func TestCallTruncatesOversizedBody(t *testing.T) {
	hook := logtest.NewGlobal()
	defer hook.Reset()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(strings.Repeat("x", maxBodyBytes+10)))
	}))
	defer srv.Close()

	out := NewClient(srv.URL, "t", time.Second).Call(context.Background(), "/state", http.MethodGet)
	text, ok := out.Text()
	if !ok {
		t.Fatal("oversized body should still be an answer")
	}
	if len(text) != maxBodyBytes {
		t.Errorf("len(text) = %d, want %d", len(text), maxBodyBytes)
	}

	var warned bool
	for _, e := range hook.AllEntries() {
		if e.Level == logrus.WarnLevel && strings.Contains(e.Message, "截断") {
			warned = true
		}
	}
	if !warned {
		t.Error("expected a truncation warning")
	}
}

func TestCallExactLimitIsNotTruncated(t *testing.T) {
	hook := logtest.NewGlobal()
	defer hook.Reset()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(strings.Repeat("y", maxBodyBytes)))
	}))
	defer srv.Close()

	out := NewClient(srv.URL, "t", time.Second).Call(context.Background(), "/state", http.MethodGet)
	if text, _ := out.Text(); len(text) != maxBodyBytes {
		t.Errorf("len(text) = %d, want %d", len(text), maxBodyBytes)
	}
	for _, e := range hook.AllEntries() {
		if strings.Contains(e.Message, "截断") {
			t.Errorf("unexpected truncation warning: %s", e.Message)
		}
	}
}

func TestCallNon2xxIsUnavailable(t *testing.T) {
	for _, status := range []int{http.StatusUnauthorized, http.StatusNotFound, http.StatusInternalServerError, http.StatusServiceUnavailable} {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(status)
			w.Write([]byte("OK"))
		}))

		out := NewClient(srv.URL, "t", time.Second).Call(context.Background(), "/on", http.MethodPost)
		if !out.IsUnavailable() {
			t.Errorf("status %d should be unavailable", status)
		}
		srv.Close()
	}
}

func TestCallTimeoutIsUnavailable(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	defer srv.Close()
	defer close(release)

	start := time.Now()
	out := NewClient(srv.URL, "t", 50*time.Millisecond).Call(context.Background(), "/state", http.MethodGet)
	if !out.IsUnavailable() {
		t.Fatal("timeout should be unavailable")
	}
	if elapsed := time.Since(start); elapsed > 2*time.Second {
		t.Errorf("call took %v, timeout not applied", elapsed)
	}
}

func TestCallConnectionRefusedIsUnavailable(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	addr := ln.Addr().String()
	ln.Close()

	out := NewClient("http://"+addr, "t", time.Second).Call(context.Background(), "/off", http.MethodPost)
	if !out.IsUnavailable() {
		t.Fatal("refused connection should be unavailable")
	}
}

func TestCallIgnoresCallerCancellation(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(30 * time.Millisecond)
		w.Write([]byte("OK"))
	}))
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	out := NewClient(srv.URL, "t", time.Second).Call(ctx, "/foff", http.MethodPost)
	if text, ok := out.Text(); !ok || text != "OK" {
		t.Errorf("cancelled caller should not abort device call, got %q %v", text, ok)
	}
}

func TestOutcome(t *testing.T) {
	if text, ok := Unavailable().Text(); ok || text != "" {
		t.Errorf("Unavailable().Text() = %q, %v", text, ok)
	}
	if !Unavailable().IsUnavailable() {
		t.Error("Unavailable() should report unavailable")
	}
	if Available("").IsUnavailable() {
		t.Error("an empty body is still a device answer")
	}
}
