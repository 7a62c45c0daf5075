package serde

import (
	"encoding/json"
	"os"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"

	"github.com/go-go-golems/blockchat/pkg/blocks"
)

// ToYAML renders any JSON-serializable value (envelopes, stored turns, protocol
// messages) as YAML, using the JSON wire names so that the dump matches what
// goes over the channel.
func ToYAML(v any) ([]byte, error) {
	generic, err := toGeneric(v)
	if err != nil {
		return nil, err
	}
	return yaml.Marshal(generic)
}

// EnvelopeFromYAML decodes an envelope written with ToYAML (or hand-written in
// the same shape).
func EnvelopeFromYAML(b []byte) (*blocks.Envelope, error) {
	var generic any
	if err := yaml.Unmarshal(b, &generic); err != nil {
		return nil, errors.Wrap(err, "yaml unmarshal envelope")
	}
	js, err := json.Marshal(generic)
	if err != nil {
		return nil, errors.Wrap(err, "json marshal envelope")
	}
	return blocks.DecodeEnvelope(js)
}

// SaveYAML writes v as YAML to path.
func SaveYAML(path string, v any) error {
	data, err := ToYAML(v)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}

// LoadEnvelopeYAML reads an envelope from a YAML file.
func LoadEnvelopeYAML(path string) (*blocks.Envelope, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return EnvelopeFromYAML(b)
}

func toGeneric(v any) (any, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return nil, errors.Wrapf(err, "json marshal %T", v)
	}
	var out any
	if err := json.Unmarshal(b, &out); err != nil {
		return nil, errors.Wrapf(err, "json unmarshal %T", v)
	}
	return out, nil
}
