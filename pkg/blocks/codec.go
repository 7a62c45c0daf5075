package blocks

import (
	"bytes"
	"encoding/json"
	"io"

	"github.com/pkg/errors"
)

// Each known block marshals with its "type" discriminator first.

func (b *Text) MarshalJSON() ([]byte, error) {
	type alias Text
	return json.Marshal(struct {
		Type Kind `json:"type"`
		*alias
	}{KindText, (*alias)(b)})
}

func (b *ButtonGroup) MarshalJSON() ([]byte, error) {
	type alias ButtonGroup
	return json.Marshal(struct {
		Type Kind `json:"type"`
		*alias
	}{KindButtonGroup, (*alias)(b)})
}

func (b *MultiSelect) MarshalJSON() ([]byte, error) {
	type alias MultiSelect
	return json.Marshal(struct {
		Type Kind `json:"type"`
		*alias
	}{KindMultiSelect, (*alias)(b)})
}

func (b *InteractionResponse) MarshalJSON() ([]byte, error) {
	type alias InteractionResponse
	return json.Marshal(struct {
		Type Kind `json:"type"`
		*alias
	}{KindInteractionResponse, (*alias)(b)})
}

// MarshalJSON re-emits the original payload of an unknown block.
func (b *Unknown) MarshalJSON() ([]byte, error) {
	if len(b.Raw) == 0 {
		return json.Marshal(map[string]string{"id": b.ID, "type": string(b.Type)})
	}
	return b.Raw, nil
}

// DecodeBlock decodes a single JSON block object, dispatching on its "type".
// Kinds outside the known vocabulary decode to *Unknown.
func DecodeBlock(data []byte) (Block, error) {
	var hdr struct {
		ID   string `json:"id"`
		Type Kind   `json:"type"`
	}
	if err := json.Unmarshal(data, &hdr); err != nil {
		return nil, errors.Wrap(err, "decode block header")
	}

	var (
		b   Block
		err error
	)
	switch hdr.Type {
	case KindText:
		v := &Text{}
		err = json.Unmarshal(data, v)
		b = v
	case KindButtonGroup:
		v := &ButtonGroup{}
		err = json.Unmarshal(data, v)
		b = v
	case KindMultiSelect:
		v := &MultiSelect{}
		err = json.Unmarshal(data, v)
		b = v
	case KindInteractionResponse:
		v := &InteractionResponse{}
		err = json.Unmarshal(data, v)
		b = v
	default:
		raw := make([]byte, len(data))
		copy(raw, data)
		return &Unknown{ID: hdr.ID, Type: hdr.Type, Raw: bytes.TrimSpace(raw)}, nil
	}
	if err != nil {
		return nil, errors.Wrapf(err, "decode %s block %q", hdr.Type, hdr.ID)
	}
	return b, nil
}

// Blocks is an ordered sequence of blocks that decodes polymorphically.
type Blocks []Block

func (bs *Blocks) UnmarshalJSON(data []byte) error {
	var raws []json.RawMessage
	if err := json.Unmarshal(data, &raws); err != nil {
		return errors.Wrap(err, "decode blocks")
	}
	if raws == nil {
		*bs = nil
		return nil
	}
	out := make(Blocks, 0, len(raws))
	for i, raw := range raws {
		b, err := DecodeBlock(raw)
		if err != nil {
			return errors.Wrapf(err, "block %d", i)
		}
		out = append(out, b)
	}
	*bs = out
	return nil
}

// DecodeEnvelope strictly decodes data as exactly one envelope JSON object.
// Trailing non-whitespace data is an error.
func DecodeEnvelope(data []byte) (*Envelope, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	var env Envelope
	if err := dec.Decode(&env); err != nil {
		return nil, errors.Wrap(err, "decode envelope")
	}
	var trailing json.RawMessage
	if err := dec.Decode(&trailing); err != io.EOF {
		return nil, errors.New("decode envelope: trailing data after envelope")
	}
	return &env, nil
}
