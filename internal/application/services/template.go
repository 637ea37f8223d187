// SPDX-License-Identifier: AGPL-3.0-or-later
package services

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

var (
	pathPlaceholder  = regexp.MustCompile(`\{\{([^{}]+)\}\}`)
	inputPlaceholder = regexp.MustCompile(`\[\[input(\d+)\]\]`)
)

// deniedPathSegments blocks JSON-path traversal into prototype-pollution
// vectors; Go maps have no prototype chain, but the names remain reserved so
// a template written for the sandbox (which does carry one) behaves
// identically here.
var deniedPathSegments = map[string]bool{
	"__proto__":   true,
	"constructor": true,
	"prototype":   true,
}

// SubstitutePlaceholders performs literal (non-template-engine) placeholder
// substitution over s: "{{path.to.value}}" resolves against object's
// properties, and "[[inputN]]" resolves against the Nth positional input
// (spec §4.3.1). Unresolved placeholders are left untouched rather than
// erroring, matching the platform's own lenient behavior.
func SubstitutePlaceholders(s string, object map[string]interface{}, inputs []interface{}) string {
	s = pathPlaceholder.ReplaceAllStringFunc(s, func(m string) string {
		path := strings.TrimSpace(pathPlaceholder.FindStringSubmatch(m)[1])
		v, ok := resolvePath(object, path)
		if !ok {
			return m
		}
		return stringify(v)
	})
	s = inputPlaceholder.ReplaceAllStringFunc(s, func(m string) string {
		idx, _ := strconv.Atoi(inputPlaceholder.FindStringSubmatch(m)[1])
		if idx < 0 || idx >= len(inputs) {
			return m
		}
		return stringify(inputs[idx])
	})
	return s
}

// resolvePath walks a dotted path with optional [N] array indices, e.g.
// "contact.emails[0].address", rejecting any segment in deniedPathSegments.
func resolvePath(root map[string]interface{}, path string) (interface{}, bool) {
	var current interface{} = root
	for _, segment := range strings.Split(path, ".") {
		name, indices, hasIndex := splitIndex(segment)
		if deniedPathSegments[name] {
			return nil, false
		}
		m, ok := current.(map[string]interface{})
		if !ok {
			return nil, false
		}
		next, exists := m[name]
		if !exists {
			return nil, false
		}
		if hasIndex {
			for _, index := range indices {
				arr, ok := next.([]interface{})
				if !ok || index < 0 || index >= len(arr) {
					return nil, false
				}
				next = arr[index]
			}
		}
		current = next
	}
	return current, true
}

// splitIndex splits a path segment like "arrays[1][0]" into its map key
// ("arrays") and the ordered list of bracket indices to apply in turn.
func splitIndex(segment string) (name string, indices []int, hasIndex bool) {
	open := strings.IndexByte(segment, '[')
	if open < 0 || !strings.HasSuffix(segment, "]") {
		return segment, nil, false
	}
	name = segment[:open]
	rest := segment[open:]
	for len(rest) > 0 {
		if rest[0] != '[' {
			return segment, nil, false
		}
		close := strings.IndexByte(rest, ']')
		if close < 0 {
			return segment, nil, false
		}
		idx, err := strconv.Atoi(rest[1:close])
		if err != nil {
			return segment, nil, false
		}
		indices = append(indices, idx)
		rest = rest[close+1:]
	}
	return name, indices, true
}

func stringify(v interface{}) string {
	switch t := v.(type) {
	case string:
		return t
	case nil:
		return ""
	case float64, bool, int, int64:
		return fmt.Sprintf("%v", t)
	default:
		b, err := json.Marshal(t)
		if err != nil {
			return ""
		}
		return string(b)
	}
}
