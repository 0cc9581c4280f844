package configutil

import (
	"strings"
	"testing"
	"time"
)

type wsSettings struct {
	ServerAddr   string        `mapstructure:"server_addr"`
	Path         string        `mapstructure:"path"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
}

func TestDecodeSettingsNormalizesKeys(t *testing.T) {
	var out wsSettings
	err := DecodeSettings(map[string]any{
		"Server-Addr":   ":9090",
		"path":          "/events",
		"write_timeout": "250ms",
	}, &out)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if out.ServerAddr != ":9090" || out.Path != "/events" {
		t.Fatalf("unexpected decode result: %+v", out)
	}
	if out.WriteTimeout != 250*time.Millisecond {
		t.Fatalf("expected 250ms, got %s", out.WriteTimeout)
	}
}

func TestValidateSettingsReportsMissingAndUnknown(t *testing.T) {
	err := ValidateSettings(map[string]any{
		"server_addr": " ",
		"colour":      "blue",
	}, Schema{Required: []string{"server_addr"}, Optional: []string{"path"}})
	if err == nil {
		t.Fatalf("expected validation error")
	}
	msg := err.Error()
	if !strings.Contains(msg, "missing: server_addr") || !strings.Contains(msg, "unknown: colour") {
		t.Fatalf("unexpected message %q", msg)
	}
}

func TestMillisFallback(t *testing.T) {
	if got := Millis(0, time.Second); got != time.Second {
		t.Fatalf("expected fallback, got %s", got)
	}
	if got := Millis(1500, time.Second); got != 1500*time.Millisecond {
		t.Fatalf("expected 1.5s, got %s", got)
	}
}
