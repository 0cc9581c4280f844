package configutil

import (
	"sort"
	"strings"

	"github.com/harunnryd/interviewer/pkg/errorsx"
)

// Schema lists the keys a provider settings map may carry.
type Schema struct {
	Required     []string
	Optional     []string
	AllowUnknown bool
}

// ValidateSettings checks a settings map against a schema.
// Keys are compared case, underscore and hyphen insensitively.
func ValidateSettings(input map[string]any, schema Schema) error {
	allowed := make(map[string]string, len(schema.Required)+len(schema.Optional))
	required := make(map[string]string, len(schema.Required))
	for _, k := range schema.Required {
		required[normalizeKey(k)] = k
		allowed[normalizeKey(k)] = k
	}
	for _, k := range schema.Optional {
		allowed[normalizeKey(k)] = k
	}

	var missing, unknown []string
	present := make(map[string]bool, len(input))
	for k, v := range input {
		nk := normalizeKey(k)
		if _, ok := allowed[nk]; !ok && !schema.AllowUnknown {
			unknown = append(unknown, k)
			continue
		}
		if isEmptyValue(v) {
			continue
		}
		present[nk] = true
	}
	for nk, key := range required {
		if !present[nk] {
			missing = append(missing, key)
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
	return errorsx.New(errorsx.ReasonConfigInvalid, "%s", strings.Join(parts, "; "))
}

func isEmptyValue(v any) bool {
	switch val := v.(type) {
	case nil:
		return true
	case string:
		return strings.TrimSpace(val) == ""
	default:
		return false
	}
}
