package main

import (
	"bytes"
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/ggoodman/symstream"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func baseConfig() symstream.Config {
	return symstream.Config{
		Name:       "foxes",
		Mode:       "session",
		Supply:     3,
		Symbol:     "f09fa68a",
		KeyPrefix:  "symstream:",
		PublicURL:  "http://localhost:8080/foxes",
		SessionTTL: time.Hour,
		BlockSize:  5,
	}
}

func TestRunStdio(t *testing.T) {
	var out bytes.Buffer
	if err := run(context.Background(), baseConfig(), discardLogger(), &out); err != nil {
		t.Fatalf("run: %v", err)
	}
	if want := bytes.Repeat(symstream.Fox.Bytes(), 3); !bytes.Equal(out.Bytes(), want) {
		t.Fatalf("stdout = %x, want %x", out.Bytes(), want)
	}
}

func TestRunStdioWithRedis(t *testing.T) {
	mr := miniredis.RunT(t)
	cfg := baseConfig()
	cfg.RedisAddr = mr.Addr()
	cfg.Mode = "shared"
	cfg.Supply = 2

	var out bytes.Buffer
	if err := run(context.Background(), cfg, discardLogger(), &out); err != nil {
		t.Fatalf("run: %v", err)
	}
	if out.Len() != 8 {
		t.Fatalf("expected 8 bytes, got %d", out.Len())
	}
	if keys := mr.Keys(); len(keys) != 0 {
		t.Fatalf("expected shared supply to be destroyed on exit, have %v", keys)
	}
}

func TestRunHTTPShutsDownOnCancel(t *testing.T) {
	cfg := baseConfig()
	cfg.Listen = "127.0.0.1:0"
	cfg.HMACSecret = "fox-secret"

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- run(ctx, cfg, discardLogger(), io.Discard) }()

	time.Sleep(50 * time.Millisecond)
	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("run: %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatalf("run did not return after cancellation")
	}
}

func TestRunRejectsBadConfig(t *testing.T) {
	tests := map[string]func(*symstream.Config){
		"mode":        func(c *symstream.Config) { c.Mode = "sometimes" },
		"symbol":      func(c *symstream.Config) { c.Symbol = "zz" },
		"redis":       func(c *symstream.Config) { c.RedisAddr = "127.0.0.1:1" },
		"session key": func(c *symstream.Config) { c.Listen = "127.0.0.1:0"; c.SessionKey = "not-hex" },
	}
	for name, mutate := range tests {
		t.Run(name, func(t *testing.T) {
			cfg := baseConfig()
			mutate(&cfg)
			if err := run(context.Background(), cfg, discardLogger(), io.Discard); err == nil {
				t.Fatalf("expected error")
			}
		})
	}
}

func TestBuildAuthenticator(t *testing.T) {
	cfg := baseConfig()
	a, err := buildAuthenticator(context.Background(), cfg)
	if err != nil || a != nil {
		t.Fatalf("expected no authenticator without secrets, got %v, %v", a, err)
	}

	cfg.HMACSecret = "fox-secret"
	a, err = buildAuthenticator(context.Background(), cfg)
	if err != nil || a == nil {
		t.Fatalf("expected hmac authenticator, got %v, %v", a, err)
	}
}
