package flowstate

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// ToPtr returns a pointer to the given value.
// This is useful for creating pointers to literals or converting values to pointers.
func ToPtr[T any](v T) *T {
	return &v
}

// MarshalPayload converts a caller supplied payload into raw JSON.
// A nil payload stays nil so the field is omitted from the stored record.
// Raw JSON and byte slices holding JSON are compacted rather than re-encoded.
func MarshalPayload(v any) (json.RawMessage, error) {
	switch p := v.(type) {
	case nil:
		return nil, nil
	case json.RawMessage:
		if p == nil {
			return nil, nil
		}
		return compact(p)
	case []byte:
		if p == nil {
			return nil, nil
		}
		return compact(p)
	}

	data, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal payload: %w", err)
	}
	return data, nil
}

func compact(raw []byte) (json.RawMessage, error) {
	var buf bytes.Buffer
	if err := json.Compact(&buf, raw); err != nil {
		return nil, fmt.Errorf("payload is not valid JSON: %w", err)
	}
	return buf.Bytes(), nil
}

// DecodePayload deserializes a stored payload into T
func DecodePayload[T any](raw json.RawMessage) (T, error) {
	var zero T
	if len(raw) == 0 {
		return zero, fmt.Errorf("payload is empty")
	}

	var result T
	if err := json.Unmarshal(raw, &result); err != nil {
		return zero, fmt.Errorf("failed to unmarshal payload: %w", err)
	}
	return result, nil
}
