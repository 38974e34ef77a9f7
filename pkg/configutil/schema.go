package configutil

import (
	"sort"
	"strings"
)

// Schema lists the keys a provider settings map may carry.
type Schema struct {
	Required     []string
	Optional     []string
	AllowUnknown bool
}

// SettingsError reports every key problem in one pass so a config can be
// fixed in a single edit.
type SettingsError struct {
	Missing []string
	Unknown []string
	// Hints maps an unknown key to the allowed key it most likely meant.
	Hints map[string]string
}

func (e *SettingsError) Error() string {
	var parts []string
	if len(e.Missing) > 0 {
		parts = append(parts, "missing: "+strings.Join(e.Missing, ", "))
	}
	if len(e.Unknown) > 0 {
		names := make([]string, len(e.Unknown))
		for i, k := range e.Unknown {
			names[i] = k
			if hint, ok := e.Hints[k]; ok {
				names[i] = k + " (did you mean " + hint + "?)"
			}
		}
		parts = append(parts, "unknown: "+strings.Join(names, ", "))
	}
	return strings.Join(parts, "; ")
}

// ValidateSettings checks input against schema. Keys match regardless of
// case, underscores and hyphens. The returned error is a *SettingsError.
func ValidateSettings(input map[string]any, schema Schema) error {
	allowed := make(map[string]string, len(schema.Required)+len(schema.Optional))
	for _, k := range schema.Optional {
		allowed[normalizeKey(k)] = k
	}
	for _, k := range schema.Required {
		allowed[normalizeKey(k)] = k
	}

	present := make(map[string]any, len(input))
	serr := &SettingsError{}
	for k, v := range input {
		nk := normalizeKey(k)
		present[nk] = v
		if _, ok := allowed[nk]; ok || schema.AllowUnknown {
			continue
		}
		serr.Unknown = append(serr.Unknown, k)
		if hint := closestKey(nk, allowed); hint != "" {
			if serr.Hints == nil {
				serr.Hints = make(map[string]string)
			}
			serr.Hints[k] = hint
		}
	}
	for _, k := range schema.Required {
		if v, ok := present[normalizeKey(k)]; !ok || isEmptyValue(v) {
			serr.Missing = append(serr.Missing, k)
		}
	}
	if len(serr.Missing) == 0 && len(serr.Unknown) == 0 {
		return nil
	}
	sort.Strings(serr.Missing)
	sort.Strings(serr.Unknown)
	return serr
}

// closestKey returns the allowed key sharing the longest prefix with nk, if
// the shared part covers most of the shorter of the two.
func closestKey(nk string, allowed map[string]string) string {
	best, bestLen := "", 0
	for norm, orig := range allowed {
		n := commonPrefix(nk, norm)
		if n > bestLen || (n == bestLen && n > 0 && orig < best) {
			best, bestLen = orig, n
		}
	}
	shorter := len(nk)
	if bestNorm := normalizeKey(best); len(bestNorm) < shorter {
		shorter = len(bestNorm)
	}
	if bestLen == 0 || bestLen*4 < shorter*3 {
		return ""
	}
	return best
}

func commonPrefix(a, b string) int {
	n := 0
	for n < len(a) && n < len(b) && a[n] == b[n] {
		n++
	}
	return n
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
