package security

import (
	"bytes"
	"fmt"
	"log/slog"
	"strings"
	"testing"
	"time"
)

func TestRateLimiter_Allow(t *testing.T) {
	rl := NewRateLimiter(1, 2, nil)
	defer rl.Close()

	if !rl.Allow("10.0.0.1") {
		t.Error("first request should be allowed")
	}
	if !rl.Allow("10.0.0.1") {
		t.Error("second request should be within burst")
	}
	if rl.Allow("10.0.0.1") {
		t.Error("third request should exceed burst")
	}
}

func TestRateLimiter_IndependentIdentifiers(t *testing.T) {
	rl := NewRateLimiter(1, 1, nil)
	defer rl.Close()

	if !rl.Allow("10.0.0.1") {
		t.Error("first identifier should be allowed")
	}
	if rl.Allow("10.0.0.1") {
		t.Error("first identifier should be exhausted")
	}
	if !rl.Allow("10.0.0.2") {
		t.Error("second identifier should have its own bucket")
	}
}

func TestRateLimiter_Refill(t *testing.T) {
	rl := NewRateLimiter(100, 1, nil)
	defer rl.Close()

	if !rl.Allow("10.0.0.1") {
		t.Fatal("first request should be allowed")
	}
	if rl.Allow("10.0.0.1") {
		t.Fatal("bucket should be empty")
	}

	time.Sleep(20 * time.Millisecond)
	if !rl.Allow("10.0.0.1") {
		t.Error("bucket should have refilled")
	}
}

func TestRateLimiter_Cleanup(t *testing.T) {
	rl := NewRateLimiter(1, 1, nil)
	defer rl.Close()

	rl.Allow("10.0.0.1")
	rl.Allow("10.0.0.2")

	rl.Cleanup(0)

	rl.mu.Lock()
	remaining := len(rl.limiters)
	rl.mu.Unlock()
	if remaining != 0 {
		t.Errorf("entries after cleanup = %d, want 0", remaining)
	}
}

func TestRateLimiter_LRUEviction(t *testing.T) {
	rl := NewRateLimiter(1, 1, nil)
	rl.maxEntries = 3
	defer rl.Close()

	for i := 0; i < 4; i++ {
		rl.Allow(fmt.Sprintf("10.0.0.%d", i))
	}

	rl.mu.Lock()
	_, oldestPresent := rl.limiters["10.0.0.0"]
	size := len(rl.limiters)
	rl.mu.Unlock()

	if size != 3 {
		t.Errorf("entries = %d, want 3", size)
	}
	if oldestPresent {
		t.Error("oldest identifier should have been evicted")
	}
}

func TestRateLimiter_CloseIdempotent(t *testing.T) {
	rl := NewRateLimiter(1, 1, nil)
	rl.Close()
	rl.Close()
}

func TestAuditor_HashesSensitiveValues(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, nil))

	auditor := NewAuditor(logger, true)
	auditor.LogTokenMinted("user@example.com", "client-1", "10.0.0.1", "client_credentials", "mcp.read")

	output := buf.String()
	if strings.Contains(output, "user@example.com") {
		t.Error("audit log should not contain the raw subject")
	}
	if !strings.Contains(output, "token_minted") {
		t.Errorf("audit log missing event type: %s", output)
	}
	if !strings.Contains(output, hashForLogging("user@example.com")) {
		t.Error("audit log should contain the subject hash")
	}
}

func TestAuditor_Disabled(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, nil))

	auditor := NewAuditor(logger, false)
	auditor.LogClientAuthFailure("client-1", "10.0.0.1")

	if buf.Len() != 0 {
		t.Errorf("disabled auditor wrote output: %s", buf.String())
	}
}

func TestHashForLogging(t *testing.T) {
	if got := hashForLogging(""); got != "" {
		t.Errorf("hashForLogging(\"\") = %q, want empty", got)
	}
	if got := hashForLogging("value"); len(got) != 16 {
		t.Errorf("hash length = %d, want 16", len(got))
	}
	if hashForLogging("a") == hashForLogging("b") {
		t.Error("different values should hash differently")
	}
}
