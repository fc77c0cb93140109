package logger

import (
	"bytes"
	"strings"
	"testing"
)

func TestNew(t *testing.T) {
	// Test with debug true
	logger := New(true)
	if logger == nil {
		t.Fatal("Expected logger to not be nil")
	}

	// Test with debug false
	logger = New(false)
	if logger == nil {
		t.Fatal("Expected logger to not be nil")
	}
}

func TestNew_Debug(t *testing.T) {
	var buf bytes.Buffer
	logger := NewWithWriter(&buf, true)
	logger.Debug("test debug message")

	if !strings.Contains(buf.String(), "test debug message") {
		t.Errorf("Expected log output to contain 'test debug message', but it didn't")
	}
}

func TestNew_Info_With_Debug_False(t *testing.T) {
	var buf bytes.Buffer
	logger := NewWithWriter(&buf, false)
	logger.Debug("test debug message")
	logger.Info("test info message", "component", "quota")

	out := buf.String()
	if strings.Contains(out, "test debug message") {
		t.Errorf("Expected log output to not contain 'test debug message', but it did")
	}
	if !strings.Contains(out, `"component":"quota"`) {
		t.Errorf("Expected JSON attributes in output, got %s", out)
	}
}

func TestKeySuffix(t *testing.T) {
	if got := KeySuffix("sk_swarm_abcdef"); got != "cdef" {
		t.Errorf("Expected cdef, got %s", got)
	}
	if got := KeySuffix("abc"); got != "abc" {
		t.Errorf("Expected abc, got %s", got)
	}
}

func TestKeyPrefix(t *testing.T) {
	if got := KeyPrefix("sk_swarm_0123456789abcdef", 12); got != "sk_swarm_012..." {
		t.Errorf("Unexpected prefix %s", got)
	}
	if got := KeyPrefix("short", 12); got != "short" {
		t.Errorf("Unexpected prefix %s", got)
	}
}
