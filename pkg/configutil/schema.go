package configutil

import (
	"sort"
	"strings"

	"github.com/harunnryd/callagent/pkg/errorsx"
)

// Schema lists the keys a provider accepts in its settings block.
type Schema struct {
	Required     []string
	Optional     []string
	AllowUnknown bool
}

// ValidateSettings checks input against schema. Key comparison ignores case,
// underscores and hyphens, so "api_key", "apiKey" and "API-KEY" are the same key.
// A required key holding a blank string counts as missing.
func ValidateSettings(input map[string]any, schema Schema) error {
	allowed := make(map[string]struct{}, len(schema.Required)+len(schema.Optional))
	for _, k := range schema.Optional {
		allowed[normalizeKey(k)] = struct{}{}
	}
	required := make(map[string]string, len(schema.Required))
	for _, k := range schema.Required {
		nk := normalizeKey(k)
		required[nk] = k
		allowed[nk] = struct{}{}
	}

	present := make(map[string]bool, len(input))
	var unknown []string
	for k, v := range input {
		nk := normalizeKey(k)
		if _, ok := allowed[nk]; !ok && !schema.AllowUnknown {
			unknown = append(unknown, k)
		}
		present[nk] = present[nk] || !isBlank(v)
	}

	var missing []string
	for nk, name := range required {
		if !present[nk] {
			missing = append(missing, name)
		}
	}
	if len(missing) == 0 && len(unknown) == 0 {
		return nil
	}

	sort.Strings(missing)
	sort.Strings(unknown)
	var parts []string
	if len(missing) > 0 {
		parts = append(parts, "missing: "+strings.Join(missing, ", "))
	}
	if len(unknown) > 0 {
		parts = append(parts, "unknown: "+strings.Join(unknown, ", "))
	}
	return errorsx.Newf(errorsx.ReasonConfig, "%s", strings.Join(parts, "; "))
}

func isBlank(v any) bool {
	switch val := v.(type) {
	case nil:
		return true
	case string:
		return strings.TrimSpace(val) == ""
	default:
		return false
	}
}
