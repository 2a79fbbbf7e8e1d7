package audio

import (
	"bytes"
	"errors"
	"testing"
)

func TestParseWAVHeader(t *testing.T) {
	clip := EncodeWAV(make([]int16, 16000), 16000, 1)
	info, err := ParseWAVHeader(clip)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if info.SampleRate != 16000 || info.Channels != 1 || info.BitsPerSample != 16 {
		t.Fatalf("unexpected info %+v", info)
	}
	if info.DataOffset != 44 || info.DataSize != 32000 {
		t.Fatalf("unexpected data chunk %+v", info)
	}
	if d := info.Duration(); d != 1 {
		t.Fatalf("expected 1s, got %v", d)
	}
}

func TestParseWAVHeaderClampsStreamingSize(t *testing.T) {
	clip := EncodeWAV(make([]int16, 100), 8000, 1)
	clip[40], clip[41], clip[42], clip[43] = 0xFF, 0xFF, 0xFF, 0xFF
	info, err := ParseWAVHeader(clip)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if info.DataSize != 200 {
		t.Fatalf("expected clamped size 200, got %d", info.DataSize)
	}
}

func TestParseWAVHeaderRejectsGarbage(t *testing.T) {
	if _, err := ParseWAVHeader(bytes.Repeat([]byte{1}, 2000)); !errors.Is(err, ErrNotWAV) {
		t.Fatalf("expected ErrNotWAV, got %v", err)
	}
}

func TestNormalizeWAVPassthrough(t *testing.T) {
	clip := EncodeWAV(make([]int16, 1600), 16000, 1)
	out, _, err := NormalizeWAV(clip, 16000)
	if err != nil {
		t.Fatalf("normalize: %v", err)
	}
	if !bytes.Equal(out, clip) {
		t.Fatalf("expected clip unchanged")
	}
}

func TestNormalizeWAVDownmixesStereo(t *testing.T) {
	samples := make([]int16, 200)
	for i := range samples {
		if i%2 == 0 {
			samples[i] = 1000
		} else {
			samples[i] = 3000
		}
	}
	out, info, err := NormalizeWAV(EncodeWAV(samples, 16000, 2), 16000)
	if err != nil {
		t.Fatalf("normalize: %v", err)
	}
	if info.Channels != 2 {
		t.Fatalf("expected source info to report stereo")
	}
	got, err := ParseWAVHeader(out)
	if err != nil {
		t.Fatalf("parse output: %v", err)
	}
	if got.Channels != 1 || got.DataSize != 200 {
		t.Fatalf("unexpected output %+v", got)
	}
	mono := decodePCM16(out[got.DataOffset:])
	if mono[0] < 1990 || mono[0] > 2010 {
		t.Fatalf("expected averaged sample near 2000, got %d", mono[0])
	}
}

func TestNormalizeWAVResamples(t *testing.T) {
	clip := EncodeWAV(make([]int16, 48000), 48000, 1)
	out, _, err := NormalizeWAV(clip, 16000)
	if err != nil {
		t.Fatalf("normalize: %v", err)
	}
	got, err := ParseWAVHeader(out)
	if err != nil {
		t.Fatalf("parse output: %v", err)
	}
	if got.SampleRate != 16000 || got.Channels != 1 {
		t.Fatalf("unexpected output %+v", got)
	}
}

func TestNormalizeWAVKeepsRawOnUnsupported(t *testing.T) {
	raw := []byte("not audio at all, but long enough to be a clip")
	out, _, err := NormalizeWAV(raw, 16000)
	if !errors.Is(err, ErrNotWAV) {
		t.Fatalf("expected ErrNotWAV, got %v", err)
	}
	if !bytes.Equal(out, raw) {
		t.Fatalf("expected raw bytes back")
	}
}

// mpeg2Frame builds a 96-byte MPEG-2 layer III frame (32 kbps, 24 kHz).
func mpeg2Frame(fill byte) []byte {
	fr := bytes.Repeat([]byte{fill}, 96)
	fr[0], fr[1], fr[2], fr[3] = 0xFF, 0xF3, 0x44, 0xC4
	return fr
}

func testStream(n int) []byte {
	var buf bytes.Buffer
	for i := 0; i < n; i++ {
		buf.Write(mpeg2Frame(byte(i + 1)))
	}
	return buf.Bytes()
}

func TestSpeedUpMP3DropsFrames(t *testing.T) {
	out, err := SpeedUpMP3(testStream(10), 2)
	if err != nil {
		t.Fatalf("speedup: %v", err)
	}
	if len(out) != 5*96 {
		t.Fatalf("expected 5 frames, got %d bytes", len(out))
	}
	if out[4] != 1 || out[96+4] != 3 {
		t.Fatalf("expected frames 1 and 3 kept first, got %d %d", out[4], out[96+4])
	}
}

func TestSpeedUpMP3KeepsID3AndResyncs(t *testing.T) {
	tag := []byte{'I', 'D', '3', 4, 0, 0, 0, 0, 0, 2, 0xAA, 0xBB}
	stream := append(append(append([]byte{}, tag...), 0x00, 0x01), testStream(4)...)
	out, err := SpeedUpMP3(stream, 1.3)
	if err != nil {
		t.Fatalf("speedup: %v", err)
	}
	if !bytes.HasPrefix(out, tag) {
		t.Fatalf("expected id3 tag preserved")
	}
	frames := (len(out) - len(tag)) / 96
	if frames != 3 {
		t.Fatalf("expected 3 of 4 frames kept at 1.3x, got %d", frames)
	}
}

func TestSpeedUpMP3Passthrough(t *testing.T) {
	in := testStream(3)
	out, err := SpeedUpMP3(in, 1)
	if err != nil || !bytes.Equal(in, out) {
		t.Fatalf("expected passthrough, err=%v", err)
	}
	if _, err := SpeedUpMP3([]byte("nope"), 1.5); !errors.Is(err, ErrNoMP3Frames) {
		t.Fatalf("expected ErrNoMP3Frames, got %v", err)
	}
}
