package turn

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/harunnryd/callagent/pkg/adapters/stt"
	"github.com/harunnryd/callagent/pkg/adapters/tts"
	"github.com/harunnryd/callagent/pkg/conversation"
	"github.com/harunnryd/callagent/pkg/errorsx"
	"github.com/harunnryd/callagent/pkg/llm"
	"github.com/harunnryd/callagent/pkg/metrics"
	"github.com/harunnryd/callagent/pkg/storage"
	"github.com/harunnryd/callagent/pkg/store"
	"github.com/harunnryd/callagent/pkg/transports"
)

type stubSTT struct {
	result   stt.Result
	panicMsg string
	calls    int
	sawClip  bool
}

func (s *stubSTT) Name() string { return "stub_stt" }

func (s *stubSTT) Recognize(_ context.Context, clipPath, _ string) stt.Result {
	s.calls++
	if _, err := os.Stat(clipPath); err == nil {
		s.sawClip = true
	}
	if s.panicMsg != "" {
		panic(s.panicMsg)
	}
	return s.result
}

type stubLLM struct {
	reply   string
	err     error
	prompts []string
}

func (s *stubLLM) Name() string { return "stub_llm" }

func (s *stubLLM) Generate(_ context.Context, prompt string) (string, error) {
	s.prompts = append(s.prompts, prompt)
	return s.reply, s.err
}

type stubTTS struct {
	fail   int
	voices []tts.Voice
}

func (s *stubTTS) Name() string { return "stub_tts" }

func (s *stubTTS) Synthesize(_ context.Context, _ string, voice tts.Voice) (tts.Audio, error) {
	s.voices = append(s.voices, voice)
	if len(s.voices) <= s.fail {
		return tts.Audio{}, errors.New("synth down")
	}
	return tts.Audio{Data: []byte("mp3-bytes"), Format: "mp3"}, nil
}

type recorder struct {
	mu   sync.Mutex
	msgs []transports.Message
	err  error
}

func (r *recorder) Notify(msg transports.Message) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.msgs = append(r.msgs, msg)
	return r.err
}

type fixture struct {
	proc   *Processor
	stt    *stubSTT
	llm    *stubLLM
	tts    *stubTTS
	store  *store.Memory
	temp   *storage.Local
	media  *storage.Local
	obs    *metrics.MemoryObserver
	callID string
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	dir := t.TempDir()
	temp, err := storage.NewLocal(filepath.Join(dir, "temp"))
	if err != nil {
		t.Fatalf("temp store: %v", err)
	}
	media, err := storage.NewLocal(filepath.Join(dir, "media"))
	if err != nil {
		t.Fatalf("media store: %v", err)
	}
	f := &fixture{
		stt:   &stubSTT{result: stt.Recognized("hello")},
		llm:   &stubLLM{reply: "hi there"},
		tts:   &stubTTS{},
		store: store.NewMemory(),
		temp:  temp,
		media: media,
		obs:   metrics.NewMemoryObserver(),
	}
	call, err := f.store.CreateCall(context.Background())
	if err != nil {
		t.Fatalf("create call: %v", err)
	}
	f.callID = call.ID
	f.proc, err = NewProcessor(Config{}, Deps{
		STT:   f.stt,
		LLM:   f.llm,
		TTS:   f.tts,
		Store: f.store,
		Temp:  temp,
		Media: storage.MediaStore{FileStore: media, BaseURL: "/media/"},
		Obs:   f.obs,
	})
	if err != nil {
		t.Fatalf("new processor: %v", err)
	}
	return f
}

func (f *fixture) turn(size int, history *conversation.Context, rec *recorder) Turn {
	return Turn{
		CallID:   f.callID,
		TraceID:  "trace",
		Audio:    make([]byte, size),
		Language: "en",
		Voice:    "male",
		Speed:    1.3,
		History:  history,
		Notify:   rec,
	}
}

func (f *fixture) transcripts(t *testing.T) []store.Transcript {
	t.Helper()
	rows, err := f.store.ListTranscripts(context.Background(), f.callID)
	if err != nil {
		t.Fatalf("list transcripts: %v", err)
	}
	return rows
}

func (f *fixture) assertTempGone(t *testing.T) {
	t.Helper()
	ok, err := f.temp.Exists(context.Background(), storage.TempClipName(f.callID))
	if err != nil {
		t.Fatalf("exists: %v", err)
	}
	if ok {
		t.Fatalf("temp clip left behind")
	}
}

func TestProcessHappyPath(t *testing.T) {
	f := newFixture(t)
	rec := &recorder{}
	history := conversation.New()
	out := f.proc.Process(context.Background(), f.turn(2000, history, rec))

	if out.Status != Completed {
		t.Fatalf("expected completed, got %s (%v)", out.Status, out.Err)
	}
	wantURL := "/media/response_" + f.callID + ".mp3"
	if out.AudioURL != wantURL {
		t.Fatalf("unexpected url %q", out.AudioURL)
	}
	if len(rec.msgs) != 3 {
		t.Fatalf("expected 3 messages, got %+v", rec.msgs)
	}
	if rec.msgs[0] != transports.UserTranscript("hello") ||
		rec.msgs[1] != transports.AITranscript("hi there") ||
		rec.msgs[2] != transports.AudioReady(wantURL) {
		t.Fatalf("unexpected message order %+v", rec.msgs)
	}
	rows := f.transcripts(t)
	if len(rows) != 2 || rows[0].Text != "hello" || !rows[0].IsUser || rows[1].Text != "hi there" || rows[1].IsUser {
		t.Fatalf("unexpected transcripts %+v", rows)
	}
	if !f.stt.sawClip {
		t.Fatalf("recognizer did not see the temp clip")
	}
	f.assertTempGone(t)
	data, err := os.ReadFile(f.media.Path(storage.ResponseName(f.callID, "mp3")))
	if err != nil || string(data) != "mp3-bytes" {
		t.Fatalf("unexpected media file %q (%v)", data, err)
	}
	if got := history.Entries(); len(got) != 2 || got[0] != "User: hello" || got[1] != "AI: hi there" {
		t.Fatalf("unexpected history %v", got)
	}
	if len(f.tts.voices) != 1 || f.tts.voices[0] != (tts.Voice{Language: "en", Gender: "male", Speed: 1.3}) {
		t.Fatalf("unexpected voice %+v", f.tts.voices)
	}
	names := strings.Join(f.obs.Names(), ",")
	if names != "turn_started,stt_done,llm_done,tts_done,turn_done" {
		t.Fatalf("unexpected events %s", names)
	}
}

func TestProcessSkipsSmallBuffer(t *testing.T) {
	f := newFixture(t)
	rec := &recorder{}
	out := f.proc.Process(context.Background(), f.turn(500, conversation.New(), rec))
	if out.Status != Skipped {
		t.Fatalf("expected skipped, got %s", out.Status)
	}
	if f.stt.calls != 0 || len(f.llm.prompts) != 0 || len(f.tts.voices) != 0 {
		t.Fatalf("collaborators invoked for small buffer")
	}
	if len(rec.msgs) != 0 || len(f.transcripts(t)) != 0 {
		t.Fatalf("expected no messages or rows")
	}
	f.assertTempGone(t)
}

func TestProcessNoMatch(t *testing.T) {
	for name, result := range map[string]stt.Result{
		"no match":     stt.NoMatch(),
		"blank":        stt.Recognized("   "),
		"engine error": stt.EngineError(errors.New("unreachable")),
	} {
		t.Run(name, func(t *testing.T) {
			f := newFixture(t)
			f.stt.result = result
			rec := &recorder{}
			out := f.proc.Process(context.Background(), f.turn(2000, conversation.New(), rec))
			if out.Status != NoMatch {
				t.Fatalf("expected no match, got %s", out.Status)
			}
			if len(rec.msgs) != 1 || rec.msgs[0] != transports.NoMatchNotice() {
				t.Fatalf("unexpected messages %+v", rec.msgs)
			}
			if len(f.transcripts(t)) != 0 {
				t.Fatalf("expected no transcripts")
			}
			if len(f.llm.prompts) != 0 || len(f.tts.voices) != 0 {
				t.Fatalf("model or synthesis invoked after no match")
			}
			f.assertTempGone(t)
		})
	}
}

func TestProcessLLMFailureUsesFallback(t *testing.T) {
	f := newFixture(t)
	f.llm.err = errors.New("quota")
	rec := &recorder{}
	out := f.proc.Process(context.Background(), f.turn(2000, conversation.New(), rec))
	if out.Status != Completed {
		t.Fatalf("expected completed, got %s", out.Status)
	}
	rows := f.transcripts(t)
	if len(rows) != 2 || rows[1].IsUser || rows[1].Text != llm.DefaultFallbackReply {
		t.Fatalf("unexpected transcripts %+v", rows)
	}
	if len(f.tts.voices) != 1 {
		t.Fatalf("expected synthesis attempt, got %d", len(f.tts.voices))
	}
}

func TestProcessTTSFallbackVoice(t *testing.T) {
	f := newFixture(t)
	f.tts.fail = 1
	rec := &recorder{}
	out := f.proc.Process(context.Background(), f.turn(2000, conversation.New(), rec))
	if out.Status != Completed {
		t.Fatalf("expected completed, got %s (%v)", out.Status, out.Err)
	}
	if len(f.tts.voices) != 2 || f.tts.voices[1] != tts.DefaultVoice("en") {
		t.Fatalf("unexpected voices %+v", f.tts.voices)
	}
}

func TestProcessTTSFailsTwice(t *testing.T) {
	f := newFixture(t)
	f.tts.fail = 2
	rec := &recorder{}
	out := f.proc.Process(context.Background(), f.turn(2000, conversation.New(), rec))
	if out.Status != Failed || !errorsx.HasReason(out.Err, errorsx.ReasonTTSFallback) {
		t.Fatalf("expected tts fallback failure, got %s (%v)", out.Status, out.Err)
	}
	last := rec.msgs[len(rec.msgs)-1]
	if !last.Error || last.Sender != transports.SenderSystem || !strings.HasPrefix(last.Transcript, "Error processing audio: ") {
		t.Fatalf("expected error notice, got %+v", last)
	}
	for _, m := range rec.msgs {
		if m.AudioURL != "" {
			t.Fatalf("unexpected audio url message %+v", m)
		}
	}
	f.assertTempGone(t)
}

func TestProcessRecoversPanic(t *testing.T) {
	f := newFixture(t)
	f.stt.panicMsg = "decoder exploded"
	rec := &recorder{}
	out := f.proc.Process(context.Background(), f.turn(2000, conversation.New(), rec))
	if out.Status != Failed {
		t.Fatalf("expected failed, got %s", out.Status)
	}
	if len(rec.msgs) != 1 || rec.msgs[0] != transports.ErrorNotice("Error processing audio: decoder exploded") {
		t.Fatalf("unexpected messages %+v", rec.msgs)
	}
	f.assertTempGone(t)
}

func TestProcessStoreFailure(t *testing.T) {
	f := newFixture(t)
	rec := &recorder{}
	tr := f.turn(2000, conversation.New(), rec)
	tr.CallID = "missing-call"
	out := f.proc.Process(context.Background(), tr)
	if out.Status != Failed || !errorsx.HasReason(out.Err, errorsx.ReasonStoreWrite) {
		t.Fatalf("expected store failure, got %s (%v)", out.Status, out.Err)
	}
	if len(f.llm.prompts) != 0 {
		t.Fatalf("model invoked after store failure")
	}
}

func TestProcessRemovesClipWhenWriteFailsMidway(t *testing.T) {
	if _, err := os.Stat("/dev/full"); err != nil {
		t.Skip("needs /dev/full")
	}
	f := newFixture(t)
	clip := f.temp.Path(storage.TempClipName(f.callID))
	if err := os.Symlink("/dev/full", clip); err != nil {
		t.Fatalf("symlink: %v", err)
	}
	rec := &recorder{}
	out := f.proc.Process(context.Background(), f.turn(2000, conversation.New(), rec))
	if out.Status != Failed || !errorsx.HasReason(out.Err, errorsx.ReasonArtifactWrite) {
		t.Fatalf("expected artifact write failure, got %s (%v)", out.Status, out.Err)
	}
	if len(rec.msgs) != 1 || !rec.msgs[0].Error {
		t.Fatalf("expected one error notice, got %+v", rec.msgs)
	}
	if f.stt.calls != 0 {
		t.Fatalf("recognizer invoked after failed write")
	}
	if _, err := os.Lstat(clip); !errors.Is(err, os.ErrNotExist) {
		t.Fatalf("expected clip entry removed, got %v", err)
	}
	f.assertTempGone(t)
}

func TestProcessPromptUsesRecentWindow(t *testing.T) {
	f := newFixture(t)
	history := conversation.New()
	for i := 0; i < 6; i++ {
		history.AppendUser("old")
	}
	f.proc.Process(context.Background(), f.turn(2000, history, &recorder{}))
	if len(f.llm.prompts) != 1 {
		t.Fatalf("expected one prompt")
	}
	want := conversation.DefaultSystemInstruction + "\n\n" + "User: old\nUser: old\nUser: old\nUser: old\nUser: hello"
	if f.llm.prompts[0] != want {
		t.Fatalf("unexpected prompt:\n%s", f.llm.prompts[0])
	}
}

func TestProcessIgnoresNotifyFailures(t *testing.T) {
	f := newFixture(t)
	rec := &recorder{err: errors.New("connection closed")}
	out := f.proc.Process(context.Background(), f.turn(2000, conversation.New(), rec))
	if out.Status != Completed {
		t.Fatalf("expected completed despite closed connection, got %s", out.Status)
	}
	f.assertTempGone(t)
}

func TestProcessKeepsRawClipWhenNotWAV(t *testing.T) {
	f := newFixture(t)
	f.proc.cfg.NormalizeRate = 16000
	out := f.proc.Process(context.Background(), f.turn(2000, conversation.New(), &recorder{}))
	if out.Status != Completed {
		t.Fatalf("expected completed, got %s", out.Status)
	}
}
