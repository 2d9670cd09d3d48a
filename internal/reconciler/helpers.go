package reconciler

import "encoding/json"

func unmarshalJSON(raw json.RawMessage, dst any) error {
	if len(raw) == 0 {
		return nil
	}
	return json.Unmarshal(raw, dst)
}

// rawJSON wraps alert bytes as json.RawMessage so catalog inserts
// store them as a parsed document rather than a doubly-encoded string.
func rawJSON(b []byte) json.RawMessage {
	return json.RawMessage(b)
}
