package engine

import (
	"reflect"
	"strings"
)

// ResolveField extracts a value from an entity record given a dotted field
// path. It walks nested map lookups segment by segment and reports
// (nil, false) when any intermediate segment is missing, nil, or not a
// mapping. A leaf that holds an explicit null resolves to (nil, true):
// "field set to null" and "field absent" are distinct inputs. Absence is a
// valid evaluation input interpreted by operators (is_null passes, equals
// fails); resolution never errors.
func ResolveField(record map[string]any, path string) (any, bool) {
	if record == nil || path == "" {
		return nil, false
	}

	segments := strings.Split(path, ".")
	var current any = record

	for _, segment := range segments {
		switch node := current.(type) {
		case map[string]any:
			next, ok := node[segment]
			if !ok {
				return nil, false
			}
			current = next
		case map[string]string:
			next, ok := node[segment]
			if !ok {
				return nil, false
			}
			current = next
		default:
			// Entity payloads occasionally carry typed structs (decoded
			// webhook bodies, test fixtures). Fall back to reflection
			// rather than failing the whole path.
			next, ok := resolveStructField(current, segment)
			if !ok {
				return nil, false
			}
			current = next
		}
	}

	return current, true
}

// resolveStructField resolves one path segment against a struct value,
// matching field names case-insensitively.
func resolveStructField(obj any, name string) (any, bool) {
	if obj == nil {
		return nil, false
	}

	v := reflect.ValueOf(obj)
	for v.Kind() == reflect.Ptr {
		if v.IsNil() {
			return nil, false
		}
		v = v.Elem()
	}
	if v.Kind() != reflect.Struct {
		return nil, false
	}

	f := v.FieldByNameFunc(func(fieldName string) bool {
		return strings.EqualFold(fieldName, name)
	})
	if !f.IsValid() || !f.CanInterface() {
		return nil, false
	}
	return f.Interface(), true
}
