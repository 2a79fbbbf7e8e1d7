package configutil

import (
	"strings"
	"time"

	"github.com/harunnryd/callagent/pkg/errorsx"
	"github.com/mitchellh/mapstructure"
)

// Decode validates a provider settings block found at path and decodes it
// into out. Errors name the path so a bad config points at its own key.
func Decode(path string, input map[string]any, schema Schema, out any) error {
	if err := ValidateSettings(input, schema); err != nil {
		return errorsx.Newf(errorsx.ReasonConfig, "%s: %v", path, err)
	}
	if err := DecodeSettings(input, out); err != nil {
		return errorsx.Newf(errorsx.ReasonConfig, "%s: %v", path, err)
	}
	return nil
}

// DecodeSettings decodes a free-form settings map into a mapstructure-tagged
// struct. Input is weakly typed, so "1.2" fills a float and "true" a bool.
func DecodeSettings(input map[string]any, out any) error {
	if len(input) == 0 {
		return nil
	}
	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		TagName:          "mapstructure",
		Result:           out,
		WeaklyTypedInput: true,
		DecodeHook:       mapstructure.StringToTimeDurationHookFunc(),
		MatchName: func(mapKey, fieldName string) bool {
			return normalizeKey(mapKey) == normalizeKey(fieldName)
		},
	})
	if err != nil {
		return err
	}
	return decoder.Decode(input)
}

// RequireString reports a missing value for the config key at path.
func RequireString(value, path string) error {
	if strings.TrimSpace(value) == "" {
		return errorsx.Newf(errorsx.ReasonConfig, "%s is required", path)
	}
	return nil
}

func BoolValue(value *bool, fallback bool) bool {
	if value == nil {
		return fallback
	}
	return *value
}

func IntValue(value *int, fallback int) int {
	if value == nil {
		return fallback
	}
	return *value
}

// Millis converts a millisecond knob, using fallback when it is not positive.
func Millis(ms int, fallback time.Duration) time.Duration {
	if ms <= 0 {
		return fallback
	}
	return time.Duration(ms) * time.Millisecond
}

func normalizeKey(value string) string {
	value = strings.ToLower(value)
	value = strings.ReplaceAll(value, "_", "")
	value = strings.ReplaceAll(value, "-", "")
	return value
}
