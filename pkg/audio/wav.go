// Package audio holds the small amount of container handling the call
// pipeline needs: WAV inspection and normalization for inbound utterances
// and MP3 speed-up for synthesized replies.
package audio

import (
	"encoding/binary"
	"errors"
	"fmt"
)

var (
	ErrNotWAV      = errors.New("audio: not a RIFF/WAVE container")
	ErrUnsupported = errors.New("audio: unsupported sample format")
)

const formatPCM = 1

// WAVInfo describes the fmt and data chunks of a WAV container.
type WAVInfo struct {
	AudioFormat   int
	Channels      int
	SampleRate    int
	BitsPerSample int
	DataOffset    int
	DataSize      int
}

// Duration of the data chunk in seconds.
func (w WAVInfo) Duration() float64 {
	frame := w.Channels * w.BitsPerSample / 8
	if frame <= 0 || w.SampleRate <= 0 {
		return 0
	}
	return float64(w.DataSize/frame) / float64(w.SampleRate)
}

// ParseWAVHeader walks the RIFF chunks of data. Streaming recorders often
// write a zero or oversized data length; the size is clamped to what is
// actually present.
func ParseWAVHeader(data []byte) (WAVInfo, error) {
	if len(data) < 12 || string(data[0:4]) != "RIFF" || string(data[8:12]) != "WAVE" {
		return WAVInfo{}, ErrNotWAV
	}
	var info WAVInfo
	haveFmt := false
	pos := 12
	for pos+8 <= len(data) {
		id := string(data[pos : pos+4])
		size := int(binary.LittleEndian.Uint32(data[pos+4 : pos+8]))
		body := pos + 8
		switch id {
		case "fmt ":
			if size < 16 || body+16 > len(data) {
				return WAVInfo{}, fmt.Errorf("audio: short fmt chunk: %w", ErrNotWAV)
			}
			info.AudioFormat = int(binary.LittleEndian.Uint16(data[body:]))
			info.Channels = int(binary.LittleEndian.Uint16(data[body+2:]))
			info.SampleRate = int(binary.LittleEndian.Uint32(data[body+4:]))
			info.BitsPerSample = int(binary.LittleEndian.Uint16(data[body+14:]))
			haveFmt = true
		case "data":
			if !haveFmt {
				return WAVInfo{}, fmt.Errorf("audio: data chunk before fmt: %w", ErrNotWAV)
			}
			info.DataOffset = body
			avail := len(data) - body
			if size <= 0 || size > avail {
				size = avail
			}
			info.DataSize = size
			return info, nil
		}
		if size < 0 || body+size > len(data) {
			break
		}
		pos = body + size + size%2
	}
	return WAVInfo{}, fmt.Errorf("audio: missing data chunk: %w", ErrNotWAV)
}

// EncodeWAV wraps interleaved PCM16 samples in a canonical 44-byte header.
func EncodeWAV(samples []int16, sampleRate, channels int) []byte {
	dataSize := len(samples) * 2
	out := make([]byte, 44+dataSize)
	copy(out[0:4], "RIFF")
	binary.LittleEndian.PutUint32(out[4:8], uint32(36+dataSize))
	copy(out[8:12], "WAVE")
	copy(out[12:16], "fmt ")
	binary.LittleEndian.PutUint32(out[16:20], 16)
	binary.LittleEndian.PutUint16(out[20:22], formatPCM)
	binary.LittleEndian.PutUint16(out[22:24], uint16(channels))
	binary.LittleEndian.PutUint32(out[24:28], uint32(sampleRate))
	binary.LittleEndian.PutUint32(out[28:32], uint32(sampleRate*channels*2))
	binary.LittleEndian.PutUint16(out[32:34], uint16(channels*2))
	binary.LittleEndian.PutUint16(out[34:36], 16)
	copy(out[36:40], "data")
	binary.LittleEndian.PutUint32(out[40:44], uint32(dataSize))
	for i, s := range samples {
		binary.LittleEndian.PutUint16(out[44+i*2:], uint16(s))
	}
	return out
}

func decodePCM16(data []byte) []int16 {
	out := make([]int16, len(data)/2)
	for i := range out {
		out[i] = int16(binary.LittleEndian.Uint16(data[i*2:]))
	}
	return out
}
