package llm

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v6"
)

// compiled schemas keyed by Schema.Name
var schemaCache sync.Map

// validateResponse extracts the JSON object from raw and checks it against schema.
// Small local models often wrap JSON in code fences or prose, so the first
// balanced object is used. On failure it returns *ErrInvalidResponse.
func validateResponse(schema *Schema, raw json.RawMessage) (json.RawMessage, error) {
	if schema == nil {
		return raw, nil
	}

	obj, ok := ExtractJSONObject(string(raw))
	if !ok {
		return nil, &ErrInvalidResponse{
			Content: raw,
			Err:     fmt.Errorf("no JSON object in reply"),
		}
	}
	if err := ValidateJSON(schema, json.RawMessage(obj)); err != nil {
		return nil, err
	}
	return json.RawMessage(obj), nil
}

// ValidateJSON checks raw against schema without any extraction.
func ValidateJSON(schema *Schema, raw json.RawMessage) error {
	var parsed any
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return &ErrInvalidResponse{
			Content: raw,
			Err:     fmt.Errorf("invalid JSON: %w", err),
		}
	}

	compiled, err := compiledSchema(schema)
	if err != nil {
		return &ErrInvalidResponse{
			Content: raw,
			Err:     fmt.Errorf("compile schema %q: %w", schema.Name, err),
		}
	}

	if err := compiled.Validate(parsed); err != nil {
		return &ErrInvalidResponse{
			Content: raw,
			Err:     fmt.Errorf("schema validation failed: %w", err),
		}
	}
	return nil
}

func compiledSchema(schema *Schema) (*jsonschema.Schema, error) {
	if cached, ok := schemaCache.Load(schema.Name); ok {
		return cached.(*jsonschema.Schema), nil
	}

	// The compiler wants a decoded JSON value, not Go literals.
	defBytes, err := json.Marshal(schema.Definition)
	if err != nil {
		return nil, fmt.Errorf("marshal schema definition: %w", err)
	}
	var def any
	if err := json.Unmarshal(defBytes, &def); err != nil {
		return nil, fmt.Errorf("parse schema definition: %w", err)
	}

	c := jsonschema.NewCompiler()
	url := fmt.Sprintf("schema://%s.json", schema.Name)
	if err := c.AddResource(url, def); err != nil {
		return nil, fmt.Errorf("add resource: %w", err)
	}
	compiled, err := c.Compile(url)
	if err != nil {
		return nil, fmt.Errorf("compile: %w", err)
	}

	schemaCache.Store(schema.Name, compiled)
	return compiled, nil
}

// ExtractJSONObject returns the first balanced {...} object found in s.
// Braces inside JSON strings are ignored.
func ExtractJSONObject(s string) (string, bool) {
	start := strings.IndexByte(s, '{')
	for start >= 0 {
		if end := matchBrace(s[start:]); end > 0 {
			candidate := s[start : start+end]
			if json.Valid([]byte(candidate)) {
				return candidate, true
			}
		}
		next := strings.IndexByte(s[start+1:], '{')
		if next < 0 {
			break
		}
		start += next + 1
	}
	return "", false
}

// matchBrace returns the length of the object starting at s[0], or -1.
func matchBrace(s string) int {
	depth := 0
	inString := false
	escaped := false
	for i := 0; i < len(s); i++ {
		c := s[i]
		if inString {
			switch {
			case escaped:
				escaped = false
			case c == '\\':
				escaped = true
			case c == '"':
				inString = false
			}
			continue
		}
		switch c {
		case '"':
			inString = true
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				return i + 1
			}
		}
	}
	return -1
}

// strictDefinition returns a deep copy of def where every object forbids
// extra properties and requires all of its properties, as strict
// structured-output modes demand. Validation keeps using the original.
func strictDefinition(def map[string]any) map[string]any {
	out := make(map[string]any, len(def)+2)
	for k, v := range def {
		out[k] = v
	}

	if props, ok := def["properties"].(map[string]any); ok {
		strictProps := make(map[string]any, len(props))
		names := make([]string, 0, len(props))
		for name, p := range props {
			names = append(names, name)
			if pm, ok := p.(map[string]any); ok {
				strictProps[name] = strictDefinition(pm)
			} else {
				strictProps[name] = p
			}
		}
		sort.Strings(names)
		out["properties"] = strictProps
		out["required"] = names
		out["additionalProperties"] = false
	}
	if items, ok := def["items"].(map[string]any); ok {
		out["items"] = strictDefinition(items)
	}
	return out
}
