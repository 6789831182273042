package layers

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/ysmood/gson"
)

// RawCommand is one undecoded paint-log entry, exactly as the protocol
// delivered it. The normalizer owns turning these into canonical commands;
// nothing downstream of this package re-inspects payload shape.
type RawCommand = map[string]any

// DecodeCommandLog decodes a raw LayerTree.snapshotCommandLog result.
// The commandLog field has arrived, across Chrome versions, as a JSON
// string holding a serialized array, as a native array, and as a single
// object. All three decode to the same ordered entry sequence here.
func DecodeCommandLog(result []byte) ([]RawCommand, error) {
	var envelope struct {
		CommandLog json.RawMessage `json:"commandLog"`
	}
	if err := json.Unmarshal(result, &envelope); err != nil {
		return nil, fmt.Errorf("layers: command log envelope: %w", err)
	}
	return decodeValue(envelope.CommandLog)
}

func decodeValue(payload []byte) ([]RawCommand, error) {
	payload = bytes.TrimSpace(payload)
	if len(payload) == 0 || bytes.Equal(payload, []byte("null")) {
		return nil, nil
	}

	switch payload[0] {
	case '"':
		// Serialized text: unquote, then decode whatever it holds.
		var s string
		if err := json.Unmarshal(payload, &s); err != nil {
			return nil, fmt.Errorf("layers: command log text: %w", err)
		}
		return decodeValue([]byte(s))

	case '[':
		j := gson.New(payload)
		arr := j.Arr()
		out := make([]RawCommand, 0, len(arr))
		for _, el := range arr {
			if m, ok := el.Val().(map[string]any); ok {
				out = append(out, m)
			}
		}
		return out, nil

	case '{':
		j := gson.New(payload)
		if m, ok := j.Val().(map[string]any); ok {
			return []RawCommand{m}, nil
		}
		return nil, nil

	default:
		return nil, fmt.Errorf("layers: unrecognized command log shape (leading %q)", payload[0])
	}
}
