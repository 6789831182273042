package artifact

import "encoding/json"

// Marshal serialises an Artifact to JSON. Timestamps encode as ISO-8601
// (RFC 3339) via the standard time.Time codec.
func Marshal(a *Artifact) ([]byte, error) {
	return json.Marshal(a)
}

// Unmarshal deserialises an Artifact from JSON.
func Unmarshal(data []byte) (*Artifact, error) {
	var a Artifact
	if err := json.Unmarshal(data, &a); err != nil {
		return nil, err
	}
	return &a, nil
}

// MarshalResult serialises a ComparisonResult to JSON.
func MarshalResult(r *ComparisonResult) ([]byte, error) {
	return json.Marshal(r)
}
