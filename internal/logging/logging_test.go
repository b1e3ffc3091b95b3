package logging

import (
	"bytes"
	"strings"
	"testing"
)

func TestPreInitLoggerUsesConfiguredHandler(t *testing.T) {
	logger := L("wsapi")

	var buf bytes.Buffer
	Init("text", "info", &buf)

	logger.Info("connected", "clientId", "c-1")

	out := buf.String()
	if strings.Contains(out, `msg="INFO connected`) {
		t.Fatalf("unexpected nested severity prefix in message: %s", out)
	}
	if !strings.Contains(out, "msg=connected") {
		t.Fatalf("expected plain connected message, got: %s", out)
	}
	if !strings.Contains(out, "component=wsapi") {
		t.Fatalf("expected component field, got: %s", out)
	}
	if !strings.Contains(out, "clientId=c-1") {
		t.Fatalf("expected clientId field, got: %s", out)
	}
}

func TestPreInitLoggerRespectsConfiguredLevel(t *testing.T) {
	logger := L("wsapi")

	var buf bytes.Buffer
	Init("text", "warn", &buf)

	logger.Info("hidden")
	logger.Warn("shown")

	out := buf.String()
	if strings.Contains(out, "hidden") {
		t.Fatalf("info log should be filtered at warn level: %s", out)
	}
	if !strings.Contains(out, "shown") {
		t.Fatalf("warn log should be emitted: %s", out)
	}
}

func TestWithCommandAddsCorrelationFields(t *testing.T) {
	var buf bytes.Buffer
	Init("text", "info", &buf)

	logger := WithCommand(L("commands"), "k1", "click")
	logger.Info("dispatched")

	out := buf.String()
	if !strings.Contains(out, "commandId=k1") || !strings.Contains(out, "commandType=click") {
		t.Fatalf("expected command correlation fields, got: %s", out)
	}
}
