package audio

import (
	"fmt"

	resampling "github.com/tphakala/go-audio-resampling"
)

// NormalizeWAV converts a PCM16 WAV clip to mono at targetRate. Clips that
// already match are returned as-is. On ErrNotWAV or ErrUnsupported the
// original bytes are returned along with the error so callers can log and
// carry on with the raw clip.
func NormalizeWAV(data []byte, targetRate int) ([]byte, WAVInfo, error) {
	info, err := ParseWAVHeader(data)
	if err != nil {
		return data, info, err
	}
	if info.AudioFormat != formatPCM || info.BitsPerSample != 16 || info.Channels <= 0 {
		return data, info, fmt.Errorf("format=%d bits=%d channels=%d: %w",
			info.AudioFormat, info.BitsPerSample, info.Channels, ErrUnsupported)
	}
	if targetRate <= 0 || (info.SampleRate == targetRate && info.Channels == 1) {
		return data, info, nil
	}

	pcm := decodePCM16(data[info.DataOffset : info.DataOffset+info.DataSize])
	mono := downmix(pcm, info.Channels)
	if info.SampleRate == targetRate {
		return EncodeWAV(toInt16(mono), targetRate, 1), info, nil
	}

	r, err := resampling.New(&resampling.Config{
		InputRate:  float64(info.SampleRate),
		OutputRate: float64(targetRate),
		Channels:   1,
		Quality:    resampling.QualitySpec{Preset: resampling.QualityHigh},
	})
	if err != nil {
		return data, info, fmt.Errorf("create resampler: %w", err)
	}
	out, err := r.Process(mono)
	if err != nil {
		return data, info, fmt.Errorf("resample: %w", err)
	}
	return EncodeWAV(toInt16(out), targetRate, 1), info, nil
}

func downmix(pcm []int16, channels int) []float64 {
	frames := len(pcm) / channels
	out := make([]float64, frames)
	for i := 0; i < frames; i++ {
		var sum float64
		for c := 0; c < channels; c++ {
			sum += float64(pcm[i*channels+c]) / 32768.0
		}
		out[i] = sum / float64(channels)
	}
	return out
}

func toInt16(in []float64) []int16 {
	out := make([]int16, len(in))
	for i, s := range in {
		switch {
		case s > 1.0:
			out[i] = 32767
		case s < -1.0:
			out[i] = -32768
		default:
			out[i] = int16(s * 32767.0)
		}
	}
	return out
}
