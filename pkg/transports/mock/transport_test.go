package mock

import (
	"errors"
	"net/url"
	"testing"

	"github.com/harunnryd/callagent/pkg/errorsx"
	"github.com/harunnryd/callagent/pkg/frames"
	"github.com/harunnryd/callagent/pkg/transports"
)

func TestScriptedCallFrames(t *testing.T) {
	tr := New()
	tr.Dial("c1", "t1", url.Values{"language": {"hi"}})
	tr.Speak("c1", []byte{1, 2, 3})
	tr.EndSpeech("c1")
	tr.Hangup("c1", 1000)

	want := []frames.Kind{frames.KindConnect, frames.KindAudio, frames.KindControl, frames.KindDisconnect}
	for i, kind := range want {
		f := <-tr.Recv()
		if f.Kind() != kind || f.ConnID() != "c1" {
			t.Fatalf("frame %d: expected %s for c1, got %s for %s", i, kind, f.Kind(), f.ConnID())
		}
	}
}

func TestSendFollowsConnectionState(t *testing.T) {
	tr := New()
	if err := tr.Send("c1", transports.AITranscript("early")); !errors.Is(err, ErrConnClosed) {
		t.Fatalf("expected closed before dial, got %v", err)
	}
	tr.Dial("c1", "t1", nil)
	if err := tr.Send("c1", transports.AITranscript("hi")); err != nil {
		t.Fatalf("send: %v", err)
	}
	got := <-tr.Sent()
	if got.ConnID != "c1" || got.Message.Transcript != "hi" {
		t.Fatalf("unexpected sent %+v", got)
	}
	tr.Hangup("c1", 1000)
	err := tr.Send("c1", transports.AITranscript("late"))
	if !errorsx.HasReason(err, errorsx.ReasonTransportSend) {
		t.Fatalf("expected transport_send after hangup, got %v", err)
	}
	if h := tr.History("c1"); len(h) != 1 || h[0].Transcript != "hi" {
		t.Fatalf("unexpected history %+v", h)
	}
}

func TestStopClosesInbound(t *testing.T) {
	tr := New()
	if err := tr.Stop(); err != nil {
		t.Fatalf("stop: %v", err)
	}
	_ = tr.Stop()
	tr.Dial("c1", "t1", nil)
	if _, ok := <-tr.Recv(); ok {
		t.Fatalf("expected closed inbound channel")
	}
}

func TestCloseConnAnswersWithDisconnect(t *testing.T) {
	tr := New()
	tr.Dial("c1", "t1", nil)
	<-tr.Recv()
	if err := tr.CloseConn("c1", frames.CloseInternalError, "bye"); err != nil {
		t.Fatalf("close: %v", err)
	}
	if code, ok := tr.Closed("c1"); !ok || code != frames.CloseInternalError {
		t.Fatalf("expected recorded close 1011, got %d %v", code, ok)
	}
	f := <-tr.Recv()
	if d, ok := f.(frames.DisconnectFrame); !ok || d.Code() != frames.CloseInternalError {
		t.Fatalf("expected disconnect frame, got %+v", f)
	}
	if err := tr.CloseConn("c1", frames.CloseInternalError, "again"); err == nil {
		t.Fatalf("expected error closing a closed connection")
	}
}
