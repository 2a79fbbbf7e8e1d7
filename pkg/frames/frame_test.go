package frames

import (
	"net/url"
	"testing"
)

func TestAudioFrameCopiesData(t *testing.T) {
	buf := []byte{1, 2, 3}
	f := NewAudioFrame("call", buf)
	buf[0] = 9
	if f.Data()[0] != 1 || f.Len() != 3 {
		t.Fatalf("expected frame to own its bytes, got %v", f.Data())
	}
	if f.Kind() != KindAudio || f.ConnID() != "call" {
		t.Fatalf("unexpected identity %s/%s", f.Kind(), f.ConnID())
	}
}

func TestConnectFrameParamsAreIsolated(t *testing.T) {
	params := url.Values{"language": {"hi"}}
	f := NewConnectFrame("call", "trace", params)
	params.Set("language", "en")
	got := f.Params()
	if got.Get("language") != "hi" {
		t.Fatalf("expected hi, got %q", got.Get("language"))
	}
	got.Set("language", "fr")
	if f.Params().Get("language") != "hi" {
		t.Fatalf("params mutated through accessor")
	}
}

func TestDisconnectFrame(t *testing.T) {
	f := NewDisconnectFrame("call", CloseAbnormal)
	if f.Kind() != KindDisconnect || f.Code() != 1006 {
		t.Fatalf("unexpected frame %+v", f)
	}
}
