package permission

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"
)

// MalformedInput describes a part of an external permission blob that was ignored while repairing it.
type MalformedInput struct {
	Path   string // dotted, e.g. "test_mgmt.test_create.view"; empty for the whole input
	Reason string
}

func (m MalformedInput) Error() string {
	if m.Path == "" {
		return "malformed permissions: " + m.Reason
	}
	return fmt.Sprintf("malformed permissions at %s: %s", m.Path, m.Reason)
}

// Normalize converts an external permission representation into a complete Tree for `role`.
// As with Default, any role but RoleSuperAdmin, the empty role included, gets the editable defaults.
// See Repair for the accepted inputs; the repair report is discarded.
func Normalize(raw interface{}, role Role) Tree {
	t, _ := Repair(raw, role)
	return t
}

// Repair overlays the flags found in `raw` onto Default(role) and reports what it had to ignore.
//
// `raw` may be nil, a JSON document (string, []byte or json.RawMessage; a JSON string holding
// JSON is unwrapped once) or a Tree.
// Any other value, such as a map[string]interface{} or map[string]map[string]bool,
// is read through its json.Marshal form.
// Unknown keys are dropped; values of the wrong type keep their default.
// Repair never fails: unusable input yields the default tree.
func Repair(raw interface{}, role Role) (Tree, []MalformedInput) {
	t := Default(role)
	if locked(role) {
		// every flag is forced on whatever `raw` holds
		return t, nil
	}

	var issues []MalformedInput
	obj, ok := decode(raw, &issues)
	if !ok {
		return t, issues
	}

	keys := make([]string, 0, len(obj))
	for k := range obj {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	for _, id := range keys {
		spec, known := lookup(id)
		if !known {
			issues = append(issues, MalformedInput{Path: id, Reason: "unknown module"})
			continue
		}
		val, isObj := obj[id].(map[string]interface{})
		if !isObj {
			issues = append(issues, MalformedInput{Path: id, Reason: fmt.Sprintf("expected object, got %s", typeName(obj[id]))})
			continue
		}

		mod := t.modules[id].clone()
		mod.Own = overlay(mod.Own, val, id, &issues)
		for _, k := range sortedKeys(val) {
			if isAction(k) {
				continue
			}
			if !spec.hasSub(k) {
				issues = append(issues, MalformedInput{Path: id + "." + k, Reason: "unknown key"})
				continue
			}
			subVal, isObj := val[k].(map[string]interface{})
			if !isObj {
				issues = append(issues, MalformedInput{Path: id + "." + k, Reason: fmt.Sprintf("expected object, got %s", typeName(val[k]))})
				continue
			}
			mod.subs[k] = overlay(mod.subs[k], subVal, id+"."+k, &issues)
		}
		t.modules[id] = mod
	}
	return t, issues
}

func decode(raw interface{}, issues *[]MalformedInput) (map[string]interface{}, bool) {
	switch v := raw.(type) {
	case nil:
		return nil, false
	case Tree:
		if v.IsZero() {
			return nil, false
		}
		return v.Map(), true
	case *Tree:
		if v == nil || v.IsZero() {
			return nil, false
		}
		return v.Map(), true
	case json.RawMessage:
		return decodeJSON([]byte(v), issues, true)
	case []byte:
		return decodeJSON(v, issues, true)
	case string:
		return decodeJSON([]byte(v), issues, true)
	}
	// decoded or typed maps, possibly nesting map[string]bool
	data, err := json.Marshal(raw)
	if err != nil {
		*issues = append(*issues, MalformedInput{Reason: fmt.Sprintf("unsupported input type %T", raw)})
		return nil, false
	}
	return decodeJSON(data, issues, false)
}

func decodeJSON(data []byte, issues *[]MalformedInput, unwrap bool) (map[string]interface{}, bool) {
	if strings.TrimSpace(string(data)) == "" {
		return nil, false
	}
	var v interface{}
	if err := json.Unmarshal(data, &v); err != nil {
		*issues = append(*issues, MalformedInput{Reason: "invalid JSON: " + err.Error()})
		return nil, false
	}
	switch val := v.(type) {
	case nil:
		return nil, false
	case map[string]interface{}:
		return val, true
	case string:
		if unwrap {
			return decodeJSON([]byte(val), issues, false)
		}
	}
	*issues = append(*issues, MalformedInput{Reason: fmt.Sprintf("expected object, got %s", typeName(v))})
	return nil, false
}

func overlay(c Capabilities, obj map[string]interface{}, path string, issues *[]MalformedInput) Capabilities {
	for _, a := range Actions {
		v, ok := obj[string(a)]
		if !ok {
			continue
		}
		b, isBool := v.(bool)
		if !isBool {
			*issues = append(*issues, MalformedInput{Path: path + "." + string(a), Reason: fmt.Sprintf("expected boolean, got %s", typeName(v))})
			continue
		}
		c = c.With(a, b)
	}
	return c
}

func isAction(k string) bool {
	switch Action(k) {
	case View, Create, Edit, Delete:
		return true
	}
	return false
}

func sortedKeys(m map[string]interface{}) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func typeName(v interface{}) string {
	switch v.(type) {
	case nil:
		return "null"
	case bool:
		return "boolean"
	case float64, json.Number:
		return "number"
	case string:
		return "string"
	case []interface{}:
		return "array"
	case map[string]interface{}:
		return "object"
	}
	return fmt.Sprintf("%T", v)
}
