package flowstate

import (
	"encoding/json"
	"errors"
)

// Encode serializes a record to the JSON form shared by every backend.
// States are written as lowercase names and timestamps as RFC 3339.
func Encode(record *ExecutionRecord) ([]byte, error) {
	if record == nil {
		return nil, errors.New("cannot encode nil record")
	}

	out := *record
	if out.VertexStates == nil {
		out.VertexStates = map[string]*VertexRecord{}
	}

	data, err := json.Marshal(&out)
	if err != nil {
		return nil, err
	}
	return data, nil
}

// Decode parses a stored record. Missing optional fields decode to their
// zero values; malformed documents and unknown states yield a decode error.
func Decode(data []byte) (*ExecutionRecord, error) {
	var record ExecutionRecord
	if err := json.Unmarshal(data, &record); err != nil {
		return nil, NewDecodeError(err)
	}

	if record.ExecutionID == "" {
		return nil, NewDecodeError(errors.New("record has no execution_id"))
	}
	if !record.State.IsValid() {
		return nil, NewDecodeError(errors.New("record has no state"))
	}

	if record.VertexStates == nil {
		record.VertexStates = make(map[string]*VertexRecord)
	}
	for id, vertex := range record.VertexStates {
		if vertex == nil || !vertex.State.IsValid() {
			return nil, NewDecodeError(errors.New("vertex " + id + " has no state"))
		}
	}

	return &record, nil
}
