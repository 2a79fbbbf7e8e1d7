package adapters

import (
	"errors"
	"testing"

	"github.com/harunnryd/callagent/pkg/adapters/stt"
	"github.com/harunnryd/callagent/pkg/adapters/tts"
)

func TestResultNormalize(t *testing.T) {
	if r := stt.Recognized("  ").Normalize(); r.Status != stt.StatusNoMatch {
		t.Fatalf("expected blank text to become no match, got %v", r.Status)
	}
	if r := stt.Recognized(" hello ").Normalize(); r.Status != stt.StatusRecognized || r.Text != "hello" {
		t.Fatalf("unexpected result %+v", r)
	}
	r := stt.EngineError(errors.New("down")).Normalize()
	if r.Status != stt.StatusEngineError || r.Err == nil {
		t.Fatalf("engine error must pass through, got %+v", r)
	}
	if stt.StatusEngineError.String() != "engine_error" {
		t.Fatalf("unexpected status string %q", stt.StatusEngineError.String())
	}
}

func TestVoiceAccent(t *testing.T) {
	cases := []struct {
		voice tts.Voice
		want  string
	}{
		{tts.Voice{Language: "en", Gender: "male"}, "co.uk"},
		{tts.Voice{Language: "en", Gender: "female"}, "com.au"},
		{tts.Voice{Language: "en", Gender: "robot"}, "com.au"},
		{tts.Voice{Language: "hi", Gender: "male"}, "co.in"},
		{tts.Voice{Language: "fr", Gender: "male"}, "com"},
	}
	for _, c := range cases {
		if got := c.voice.Accent(); got != c.want {
			t.Fatalf("%+v: expected %s, got %s", c.voice, c.want, got)
		}
	}
	if d := tts.DefaultVoice("hi"); d.Accent() != "com" {
		t.Fatalf("fallback voice must not carry an accent, got %s", d.Accent())
	}
	if d := tts.DefaultVoice("en"); d.Speed != 1 || d.IsMale() || d.Accent() != "com" {
		t.Fatalf("unexpected default voice %+v", d)
	}
}
