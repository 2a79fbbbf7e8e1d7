package elevenlabs

import (
	"context"
	"encoding/base64"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/gorilla/websocket"
	"github.com/harunnryd/callagent/pkg/adapters/tts"
)

type seen struct {
	mu    sync.Mutex
	path  string
	speed float64
}

func (s *seen) get() (string, float64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.path, s.speed
}

func fakeServer(t *testing.T, got *seen) *httptest.Server {
	t.Helper()
	upgrader := websocket.Upgrader{}
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got.mu.Lock()
		got.path = r.URL.Path
		got.mu.Unlock()
		if r.Header.Get("xi-api-key") != "key" {
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		var init map[string]any
		if err := conn.ReadJSON(&init); err != nil {
			return
		}
		if vs, ok := init["voice_settings"].(map[string]any); ok {
			got.mu.Lock()
			got.speed, _ = vs["speed"].(float64)
			got.mu.Unlock()
		}
		for i := 0; i < 2; i++ {
			var msg map[string]any
			if err := conn.ReadJSON(&msg); err != nil {
				return
			}
		}
		_ = conn.WriteJSON(map[string]any{"audio": base64.StdEncoding.EncodeToString([]byte("abc"))})
		_ = conn.WriteJSON(map[string]any{"audio": base64.StdEncoding.EncodeToString([]byte("def"))})
		_ = conn.WriteJSON(map[string]any{"audio": nil, "isFinal": true})
		_, _, _ = conn.ReadMessage()
	}))
}

func TestSynthesizeCollectsUntilFinal(t *testing.T) {
	got := &seen{}
	srv := fakeServer(t, got)
	defer srv.Close()

	s, err := New(Config{
		APIKey:      "key",
		VoiceID:     "female-voice",
		VoiceIDMale: "male-voice",
		BaseURL:     "ws" + strings.TrimPrefix(srv.URL, "http"),
	})
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	out, err := s.Synthesize(context.Background(), "Hello", tts.Voice{Language: "en", Gender: "male", Speed: 1.3})
	if err != nil {
		t.Fatalf("synthesize: %v", err)
	}
	if string(out.Data) != "abcdef" || out.Format != "mp3" {
		t.Fatalf("unexpected audio %q (%s)", out.Data, out.Format)
	}
	path, speed := got.get()
	if path != "/v1/text-to-speech/male-voice/stream-input" {
		t.Fatalf("unexpected path %q", path)
	}
	if speed != 1.2 {
		t.Fatalf("expected clamped speed 1.2, got %v", speed)
	}
}

func TestSynthesizeDialFailure(t *testing.T) {
	srv := fakeServer(t, &seen{})
	defer srv.Close()

	s, _ := New(Config{APIKey: "wrong", VoiceID: "v", BaseURL: "ws" + strings.TrimPrefix(srv.URL, "http")})
	if _, err := s.Synthesize(context.Background(), "Hello", tts.DefaultVoice("en")); err == nil {
		t.Fatalf("expected dial error")
	}
}

func TestNewRequiresConfig(t *testing.T) {
	if _, err := New(Config{}); err == nil {
		t.Fatalf("expected config error")
	}
}

func TestClampSpeed(t *testing.T) {
	cases := map[float64]float64{0: 1, 0.5: 0.7, 1: 1, 1.3: 1.2}
	for in, want := range cases {
		if got := clampSpeed(in); got != want {
			t.Fatalf("clampSpeed(%v)=%v want %v", in, got, want)
		}
	}
}
