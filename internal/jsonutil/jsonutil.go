// SPDX-License-Identifier: LGPL-2.1-only

// Package jsonutil evaluates JSONPath queries over a generically decoded
// JSON tree, the Go counterpart of json-helper.c's json_get_string/
// json_get_int/json_get_array/json_contains built on json-glib.
package jsonutil

import (
	"encoding/json"
	"fmt"

	"github.com/PaesslerAG/jsonpath"
)

// Decode unmarshals raw JSON into the generic tree jsonpath queries
// operate over.
func Decode(data []byte) (interface{}, error) {
	var v interface{}
	if err := json.Unmarshal(data, &v); err != nil {
		return nil, fmt.Errorf("failed to decode JSON: %w", err)
	}
	return v, nil
}

// GetString evaluates path and returns the first result as a string.
// Returns ok=false if the path is absent (mirrors json_get_string
// returning NULL).
func GetString(root interface{}, path string) (string, bool) {
	v, err := jsonpath.Get(path, root)
	if err != nil {
		return "", false
	}
	switch t := v.(type) {
	case string:
		return t, true
	case []interface{}:
		if len(t) == 0 {
			return "", false
		}
		s, ok := t[0].(string)
		return s, ok
	default:
		return "", false
	}
}

// GetInt64 evaluates path and returns the first result as an int64.
func GetInt64(root interface{}, path string) (int64, bool) {
	v, err := jsonpath.Get(path, root)
	if err != nil {
		return 0, false
	}
	return toInt64(v)
}

func toInt64(v interface{}) (int64, bool) {
	switch t := v.(type) {
	case float64:
		return int64(t), true
	case []interface{}:
		if len(t) == 0 {
			return 0, false
		}
		return toInt64(t[0])
	default:
		return 0, false
	}
}

// GetArray evaluates path and returns the first array result, or ok=false
// if the path is absent or not an array.
func GetArray(root interface{}, path string) ([]interface{}, bool) {
	v, err := jsonpath.Get(path, root)
	if err != nil {
		return nil, false
	}
	if arr, ok := v.([]interface{}); ok {
		return arr, true
	}
	return nil, false
}

// Contains reports whether path resolves to anything at all, the
// equivalent of json_contains.
func Contains(root interface{}, path string) bool {
	v, err := jsonpath.Get(path, root)
	if err != nil {
		return false
	}
	if arr, ok := v.([]interface{}); ok {
		return len(arr) > 0
	}
	return v != nil
}

// MissingPathError is returned by callers that require a path to resolve
// and want to distinguish "absent" from other decode failures.
type MissingPathError struct {
	Path string
}

func (e *MissingPathError) Error() string {
	return fmt.Sprintf("required JSON path not found: %s", e.Path)
}
