package transports

import (
	"encoding/json"
	"testing"
)

func encode(t *testing.T, m Message) string {
	t.Helper()
	b, err := json.Marshal(m)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	return string(b)
}

func TestMessageShapes(t *testing.T) {
	cases := []struct {
		name string
		msg  Message
		want string
	}{
		{"ack", ConnectionAck("en", "female", 1.3), `{"type":"connection","message":"Connected to AI Call Agent","language":"en","voice":"female","speed":1.3}`},
		{"user", UserTranscript("hello"), `{"transcript":"hello","sender":"user"}`},
		{"ai", AITranscript("hi there"), `{"transcript":"hi there","sender":"ai"}`},
		{"no match", NoMatchNotice(), `{"transcript":"Could not understand audio. Please speak clearly.","sender":"system"}`},
		{"audio", AudioReady("/media/response_1.mp3"), `{"audio_url":"/media/response_1.mp3"}`},
		{"error", ErrorNotice("Error processing audio: boom"), `{"transcript":"Error processing audio: boom","sender":"system","error":true}`},
	}
	for _, tc := range cases {
		if got := encode(t, tc.msg); got != tc.want {
			t.Fatalf("%s: got %s want %s", tc.name, got, tc.want)
		}
	}
}
