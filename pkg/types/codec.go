package types

import "encoding/json"

// UnmarshalJSON accepts either a bare string or a list of ContentBlock for
// the "content" field of message.user payloads, matching the two shapes
// producers in the wild emit ("string | ContentBlock[]" per spec.md §6).
func (p *MessageUserPayload) UnmarshalJSON(data []byte) error {
	type rawShape struct {
		Content json.RawMessage `json:"content"`
		Turn    int             `json:"turn"`
	}
	var raw rawShape
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	p.Turn = raw.Turn

	if len(raw.Content) == 0 {
		p.Content = nil
		return nil
	}

	var asString string
	if err := json.Unmarshal(raw.Content, &asString); err == nil {
		p.Content = []ContentBlock{{Type: "text", Text: asString}}
		return nil
	}

	var asBlocks []ContentBlock
	if err := json.Unmarshal(raw.Content, &asBlocks); err != nil {
		return err
	}
	p.Content = asBlocks
	return nil
}
