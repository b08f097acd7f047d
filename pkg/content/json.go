package content

import (
	"encoding/json"
	"fmt"
)

// MarshalJSON renders Content as a flat JSON object with a "type"
// discriminator alongside the variant's own fields, matching the wire
// shape in the external interface's message content payload table.
func (c Content) MarshalJSON() ([]byte, error) {
	contentType, contentData, _, err := Encode(c, nil)
	if err != nil {
		return nil, err
	}

	var fields map[string]json.RawMessage
	if err := json.Unmarshal([]byte(contentData), &fields); err != nil {
		return nil, fmt.Errorf("content: flattening %s for wire encoding: %w", contentType, err)
	}

	out := make(map[string]json.RawMessage, len(fields)+1)
	for k, v := range fields {
		out[k] = v
	}
	typeJSON, err := json.Marshal(contentType)
	if err != nil {
		return nil, err
	}
	out["type"] = typeJSON

	return json.Marshal(out)
}

// UnmarshalJSON parses a flat JSON object with a "type" discriminator back
// into a Content, using the same decode contract as Decode: an
// unrecognized type round-trips as Opaque.
func (c *Content) UnmarshalJSON(data []byte) error {
	var envelope struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(data, &envelope); err != nil {
		return fmt.Errorf("content: reading type discriminator: %w", err)
	}
	if envelope.Type == "" {
		return fmt.Errorf("content: missing type discriminator")
	}

	decoded, err := Decode(envelope.Type, string(data))
	if err != nil {
		return err
	}
	*c = decoded
	return nil
}
