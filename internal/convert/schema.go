package convert

import (
	"encoding/json"

	"github.com/dlclark/regexp2"
)

// allowedSchemaKeys is the fixed set a sanitized JSON-schema node may
// keep; everything else (vendor extensions, $ref, additionalProperties,
// ...) is dropped so every provider's stricter schema validator accepts
// the tool definition (spec.md §4.1).
var allowedSchemaKeys = map[string]bool{
	"type":        true,
	"description": true,
	"properties":  true,
	"required":    true,
	"enum":        true,
	"items":       true,
}

// SanitizeSchema recursively filters a tool input schema down to the
// allowed key set, generalizing providers.RemoveFieldsRecursively (which
// removes a denylist) into an allowlist filter.
func SanitizeSchema(node any) any {
	switch v := node.(type) {
	case map[string]any:
		out := make(map[string]any, len(v))
		for k, val := range v {
			if !allowedSchemaKeys[k] {
				continue
			}
			if k == "properties" {
				if props, ok := val.(map[string]any); ok {
					sanitizedProps := make(map[string]any, len(props))
					for pk, pv := range props {
						sanitizedProps[pk] = SanitizeSchema(pv)
					}
					out[k] = sanitizedProps
					continue
				}
			}
			out[k] = SanitizeSchema(val)
		}
		return out
	case []any:
		out := make([]any, len(v))
		for i, item := range v {
			out[i] = SanitizeSchema(item)
		}
		return out
	default:
		return v
	}
}

// danglingEscape matches a trailing, not-yet-complete JSON string escape
// sequence at the end of a partial-JSON buffer: a lone backslash, \u,
// \u0, or \u00 with fewer than four hex digits following. The pattern is
// a plain end-anchored alternation with no lookahead.
var danglingEscape = regexp2.MustCompile(`\\u[0-9a-fA-F]{0,3}$|\\$`, 0)

// TrimDanglingEscape strips an incomplete trailing escape sequence from a
// streaming tool-call argument buffer before a best-effort partial-JSON
// parse attempt, so a half-delivered \u unicode escape doesn't corrupt
// the parse.
func TrimDanglingEscape(s string) string {
	m, err := danglingEscape.FindStringMatch(s)
	if err != nil || m == nil {
		return s
	}
	return s[:m.Index]
}

// SafeParseToolArguments best-effort parses a (possibly still-streaming,
// possibly truncated) JSON object of tool-call arguments. It never
// returns an error: callers treat an unparsable buffer as "not ready
// yet" and keep accumulating.
func SafeParseToolArguments(raw string) (map[string]any, bool) {
	if raw == "" {
		return map[string]any{}, true
	}
	trimmed := TrimDanglingEscape(raw)
	var out map[string]any
	if err := json.Unmarshal([]byte(trimmed), &out); err != nil {
		return nil, false
	}
	return out, true
}
