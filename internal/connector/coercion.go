package connector

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

var (
	// trailingCommaRe strips a comma that precedes a closing brace/bracket.
	trailingCommaRe = regexp.MustCompile(`,(\s*[}\]])`)
	// bareKeyRe quotes an unquoted JSON object key, e.g. `foo:` -> `"foo":`.
	bareKeyRe = regexp.MustCompile(`([{,]\s*)([A-Za-z_][A-Za-z0-9_]*)\s*:`)
)

// CoerceInput turns a raw string argument into the map[string]any an MCP
// tool's JSON-RPC call expects, trying progressively looser strategies and
// stopping at the first that succeeds. Agents sometimes pass a string even
// when a tool declares an object schema; this recovers the caller's intent
// instead of failing outright.
//
// schema is the tool's full JSON Schema object. Strategy (e) reads its
// "properties" map to decide whether the whole string can be wrapped under
// a single property name, and the error names those properties.
func CoerceInput(raw string, schema map[string]any) (map[string]any, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return map[string]any{}, nil
	}

	if m, ok := tryParseJSONObject(raw); ok {
		return m, nil
	}
	if m, ok := tryExtractBalancedObject(raw); ok {
		return m, nil
	}
	if m, ok := tryFixupJSON(raw); ok {
		return m, nil
	}
	if m, ok := tryKeyValuePairs(raw); ok {
		return m, nil
	}
	if m, ok := trySingleProperty(raw, schema); ok {
		return m, nil
	}

	return nil, fmt.Errorf("%w: could not coerce %q into schema %v", ErrCoercion, raw, schemaSummary(schema))
}

// (a) Parse as JSON object if input looks like one already.
func tryParseJSONObject(raw string) (map[string]any, bool) {
	if !strings.HasPrefix(raw, "{") || !strings.HasSuffix(raw, "}") {
		return nil, false
	}
	var m map[string]any
	if err := json.Unmarshal([]byte(raw), &m); err != nil {
		return nil, false
	}
	return m, true
}

// (b) Find the first '{' and its matching '}' by brace depth, and
// JSON-parse that span. Handles
// input with leading/trailing prose around the JSON object.
func tryExtractBalancedObject(raw string) (map[string]any, bool) {
	start := strings.Index(raw, "{")
	if start < 0 {
		return nil, false
	}
	depth := 0
	end := -1
	for i := start; i < len(raw); i++ {
		switch raw[i] {
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				end = i
			}
		}
		if end >= 0 {
			break
		}
	}
	if end < 0 {
		return nil, false
	}
	return tryParseJSONObject(raw[start : end+1])
}

// (c) Attempt common fixups (trailing commas, unquoted bareword keys) then
// JSON-parse.
func tryFixupJSON(raw string) (map[string]any, bool) {
	candidate := raw
	if !strings.HasPrefix(candidate, "{") {
		if idx := strings.Index(candidate, "{"); idx >= 0 {
			candidate = candidate[idx:]
		}
	}
	if !strings.HasSuffix(candidate, "}") {
		if idx := strings.LastIndex(candidate, "}"); idx >= 0 {
			candidate = candidate[:idx+1]
		}
	}

	candidate = trailingCommaRe.ReplaceAllString(candidate, "$1")
	candidate = bareKeyRe.ReplaceAllString(candidate, `$1"$2":`)

	return tryParseJSONObject(candidate)
}

// (d) Parse key=value or key: "value" pairs; cast true/false and integers.
func tryKeyValuePairs(raw string) (map[string]any, bool) {
	pairs := splitPairs(raw)
	if len(pairs) == 0 {
		return nil, false
	}

	result := make(map[string]any, len(pairs))
	for _, pair := range pairs {
		key, value, ok := splitKeyValue(pair)
		if !ok {
			return nil, false
		}
		result[key] = castScalar(value)
	}
	return result, true
}

// (e) If the schema declares exactly one property, wrap the raw string
// under that property's name.
func trySingleProperty(raw string, schema map[string]any) (map[string]any, bool) {
	props, _ := schema["properties"].(map[string]any)
	if len(props) != 1 {
		return nil, false
	}
	for name := range props {
		return map[string]any{name: raw}, true
	}
	return nil, false
}

func schemaSummary(schema map[string]any) []string {
	props, _ := schema["properties"].(map[string]any)
	names := make([]string, 0, len(props))
	for name := range props {
		names = append(names, name)
	}
	return names
}

func splitPairs(raw string) []string {
	var parts []string
	for _, segment := range strings.Split(raw, ",") {
		segment = strings.TrimSpace(segment)
		if segment != "" {
			parts = append(parts, segment)
		}
	}
	return parts
}

func splitKeyValue(pair string) (key, value string, ok bool) {
	if idx := strings.Index(pair, "="); idx > 0 {
		return strings.TrimSpace(pair[:idx]), strings.Trim(strings.TrimSpace(pair[idx+1:]), `"`), true
	}
	if idx := strings.Index(pair, ":"); idx > 0 {
		return strings.TrimSpace(pair[:idx]), strings.Trim(strings.TrimSpace(pair[idx+1:]), `"`), true
	}
	return "", "", false
}

func castScalar(value string) any {
	switch value {
	case "true":
		return true
	case "false":
		return false
	}
	if n, err := strconv.Atoi(value); err == nil {
		return n
	}
	if f, err := strconv.ParseFloat(value, 64); err == nil {
		return f
	}
	return value
}
