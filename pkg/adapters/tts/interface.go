package tts

import (
	"context"
	"strings"
)

// Gender hints understood by the voice mapping. Anything other than male
// selects the default voice.
const (
	GenderMale   = "male"
	GenderFemale = "female"
)

// Voice carries the per-call synthesis parameters.
type Voice struct {
	Language string
	Gender   string
	Speed    float64
}

// DefaultVoice is the fallback voice: base language, default gender, normal speed.
func DefaultVoice(language string) Voice {
	return Voice{Language: language, Speed: 1.0}
}

// IsMale reports whether the voice asks for the male variant.
func (v Voice) IsMale() bool {
	return strings.EqualFold(strings.TrimSpace(v.Gender), GenderMale)
}

// Accent returns the regional variant used to flavour a language:
// en+male → co.uk, en otherwise → com.au, hi → co.in, anything else → com.
// A voice without a gender hint (the fallback voice) always gets com.
func (v Voice) Accent() string {
	if strings.TrimSpace(v.Gender) == "" {
		return "com"
	}
	switch strings.ToLower(v.Language) {
	case "en":
		if v.IsMale() {
			return "co.uk"
		}
		return "com.au"
	case "hi":
		return "co.in"
	default:
		return "com"
	}
}

// Audio is a finished synthesized clip.
type Audio struct {
	Data []byte
	// Format is the container extension, e.g. "mp3".
	Format string
}

// Synthesizer turns reply text into audio.
type Synthesizer interface {
	// Name returns adapter name for logging/metrics.
	Name() string
	Synthesize(ctx context.Context, text string, voice Voice) (Audio, error)
}
