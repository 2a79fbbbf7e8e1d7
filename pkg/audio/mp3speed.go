package audio

import "errors"

var ErrNoMP3Frames = errors.New("audio: no MPEG layer III frames found")

var (
	mpeg1L3Bitrates = [16]int{0, 32, 40, 48, 56, 64, 80, 96, 112, 128, 160, 192, 224, 256, 320, 0}
	mpeg2L3Bitrates = [16]int{0, 8, 16, 24, 32, 40, 48, 56, 64, 80, 96, 112, 128, 144, 160, 0}
	sampleRates     = map[byte][3]int{
		3: {44100, 48000, 32000}, // MPEG-1
		2: {22050, 24000, 16000}, // MPEG-2
		0: {11025, 12000, 8000},  // MPEG-2.5
	}
)

// SpeedUpMP3 shortens an MP3 stream by dropping whole frames so that playback
// runs factor times faster. Pitch is preserved; factor <= 1 returns data
// unchanged. A leading ID3v2 tag is kept.
func SpeedUpMP3(data []byte, factor float64) ([]byte, error) {
	if factor <= 1 {
		return data, nil
	}
	start := id3v2Size(data)
	frames := mp3Frames(data[start:])
	if len(frames) == 0 {
		return nil, ErrNoMP3Frames
	}
	out := make([]byte, 0, len(data))
	out = append(out, data[:start]...)
	step := 1 / factor
	acc := 1 - step
	for _, fr := range frames {
		acc += step
		if acc >= 1-1e-9 {
			out = append(out, data[start+fr[0]:start+fr[1]]...)
			acc--
		}
	}
	return out, nil
}

// mp3Frames returns [start, end) offsets of each layer III frame, skipping
// bytes that do not form a valid header.
func mp3Frames(data []byte) [][2]int {
	var frames [][2]int
	pos := 0
	for pos+4 <= len(data) {
		n := mp3FrameLen(data[pos:])
		if n <= 0 || pos+n > len(data) {
			pos++
			continue
		}
		frames = append(frames, [2]int{pos, pos + n})
		pos += n
	}
	return frames
}

func mp3FrameLen(h []byte) int {
	if h[0] != 0xFF || h[1]&0xE0 != 0xE0 {
		return 0
	}
	version := (h[1] >> 3) & 0x03
	layer := (h[1] >> 1) & 0x03
	if version == 1 || layer != 1 {
		return 0
	}
	rates, ok := sampleRates[version]
	srIdx := (h[2] >> 2) & 0x03
	brIdx := h[2] >> 4
	if !ok || srIdx == 3 {
		return 0
	}
	bitrate := mpeg2L3Bitrates[brIdx]
	coeff := 72
	if version == 3 {
		bitrate = mpeg1L3Bitrates[brIdx]
		coeff = 144
	}
	if bitrate == 0 {
		return 0
	}
	padding := int((h[2] >> 1) & 0x01)
	return coeff*bitrate*1000/rates[srIdx] + padding
}

func id3v2Size(data []byte) int {
	if len(data) < 10 || string(data[0:3]) != "ID3" {
		return 0
	}
	size := int(data[6]&0x7F)<<21 | int(data[7]&0x7F)<<14 | int(data[8]&0x7F)<<7 | int(data[9]&0x7F)
	total := 10 + size
	if data[5]&0x10 != 0 {
		total += 10
	}
	if total > len(data) {
		return 0
	}
	return total
}
