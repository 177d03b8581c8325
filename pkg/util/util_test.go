package util

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestNewLoggerWritesFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "logs", "exchange.log")
	logger, err := NewLogger("info", path)
	if err != nil {
		t.Fatalf("failed to create logger: %v", err)
	}
	logger.Sugar().Infow("match_settled", "id", "abc")
	logger.Sugar().Debugw("match_state", "id", "abc")
	_ = logger.Sync()

	body, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("failed to read log file: %v", err)
	}
	if !strings.Contains(string(body), `"msg":"match_settled"`) {
		t.Errorf("log file missing entry:\n%s", body)
	}
	if strings.Contains(string(body), "match_state") {
		t.Errorf("debug entry written at info level:\n%s", body)
	}
}

func TestNewLoggerRejectsBadLevel(t *testing.T) {
	if _, err := NewLogger("loud", ""); err == nil {
		t.Fatal("expected error for unknown level")
	}
}

func TestFixedClock(t *testing.T) {
	start := time.Unix(1_700_000_000, 0)
	c := NewFixedClock(start)
	c.Advance(90 * time.Second)

	if got := c.Now().Sub(start); got != 90*time.Second {
		t.Errorf("elapsed = %v, want 90s", got)
	}
}

func TestSetupTracingNoopWithoutEndpoint(t *testing.T) {
	shutdown, err := SetupTracing(context.Background(), "test", "")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := shutdown(context.Background()); err != nil {
		t.Fatalf("shutdown error: %v", err)
	}
}

func TestSetupTracingWithEndpoint(t *testing.T) {
	// non-routable, nothing is exported before shutdown
	shutdown, err := SetupTracing(context.Background(), "test", "http://192.0.2.1:4318")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := shutdown(context.Background()); err != nil {
		t.Fatalf("shutdown error: %v", err)
	}
}
