package store

import (
	"encoding/json"
	"fmt"
)

// MergeFields returns a copy of record with the top-level JSON fields in
// patch written over it. Nested objects are replaced, not merged. A patch
// value of the wrong type yields a *json.UnmarshalTypeError.
func MergeFields[T any](record T, patch map[string]json.RawMessage) (T, error) {
	var zero T

	base, err := json.Marshal(record)
	if err != nil {
		return zero, fmt.Errorf("marshal record: %w", err)
	}
	fields := map[string]json.RawMessage{}
	if err := json.Unmarshal(base, &fields); err != nil {
		return zero, fmt.Errorf("unmarshal record fields: %w", err)
	}

	for k, v := range patch {
		fields[k] = v
	}

	merged, err := json.Marshal(fields)
	if err != nil {
		return zero, fmt.Errorf("marshal merged fields: %w", err)
	}
	var out T
	if err := json.Unmarshal(merged, &out); err != nil {
		return zero, err
	}
	return out, nil
}
