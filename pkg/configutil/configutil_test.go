package configutil

import (
	"strings"
	"testing"
	"time"

	"github.com/harunnryd/callagent/pkg/errorsx"
)

func TestValidateSettingsReportsMissingAndUnknown(t *testing.T) {
	err := ValidateSettings(map[string]any{
		"API-Key": "  ",
		"colour":  "blue",
	}, Schema{Required: []string{"api_key", "voice_id"}, Optional: []string{"model"}})
	if err == nil {
		t.Fatalf("expected error")
	}
	msg := err.Error()
	if !strings.Contains(msg, "missing: api_key, voice_id") {
		t.Fatalf("expected both required keys missing, got %q", msg)
	}
	if !strings.Contains(msg, "unknown: colour") {
		t.Fatalf("expected unknown key, got %q", msg)
	}
	if !errorsx.HasReason(err, errorsx.ReasonConfig) {
		t.Fatalf("expected config reason, got %s", errorsx.Reason(err))
	}
}

func TestValidateSettingsNormalizesKeys(t *testing.T) {
	err := ValidateSettings(map[string]any{"apiKey": "k", "MODEL": "m"},
		Schema{Required: []string{"api_key"}, Optional: []string{"model"}})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := ValidateSettings(map[string]any{"anything": 1}, Schema{AllowUnknown: true}); err != nil {
		t.Fatalf("unexpected error with AllowUnknown: %v", err)
	}
}

type Location struct {
	Bucket string `mapstructure:"bucket"`
}

type decoded struct {
	Location `mapstructure:",squash"`
	Speed    float64       `mapstructure:"speed"`
	Enabled  *bool         `mapstructure:"enabled"`
	Retries  *int          `mapstructure:"max_retries"`
	Timeout  time.Duration `mapstructure:"timeout"`
}

func TestDecodeWeaklyTypedAndSquashed(t *testing.T) {
	var out decoded
	err := Decode("vendors.tts.settings", map[string]any{
		"bucket":      "clips",
		"speed":       "1.5",
		"enabled":     "false",
		"max-retries": 2,
		"timeout":     "3s",
	}, Schema{Optional: []string{"bucket", "speed", "enabled", "max_retries", "timeout"}}, &out)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if out.Bucket != "clips" || out.Speed != 1.5 || out.Timeout != 3*time.Second {
		t.Fatalf("unexpected decode: %+v", out)
	}
	if BoolValue(out.Enabled, true) {
		t.Fatalf("expected enabled=false")
	}
	if IntValue(out.Retries, 0) != 2 {
		t.Fatalf("expected retries=2, got %d", IntValue(out.Retries, 0))
	}
}

func TestDecodeNamesPath(t *testing.T) {
	var out decoded
	err := Decode("storage.media.settings", map[string]any{"region": "x"}, Schema{Required: []string{"bucket"}}, &out)
	if err == nil || !strings.HasPrefix(err.Error(), "storage.media.settings: ") {
		t.Fatalf("expected path-prefixed error, got %v", err)
	}
}

func TestHelpers(t *testing.T) {
	if BoolValue(nil, true) != true || IntValue(nil, 7) != 7 {
		t.Fatalf("expected fallbacks for nil pointers")
	}
	if Millis(0, time.Second) != time.Second || Millis(250, time.Second) != 250*time.Millisecond {
		t.Fatalf("unexpected Millis conversion")
	}
	if err := RequireString(" ", "vendors.llm.settings.api_key"); err == nil || !strings.Contains(err.Error(), "vendors.llm.settings.api_key is required") {
		t.Fatalf("expected required error, got %v", err)
	}
}
