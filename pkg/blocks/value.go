package blocks

import (
	"bytes"
	"encoding/json"
	"strings"

	"github.com/pkg/errors"
)

// ValueDelimiter joins multiple selected values when an interaction is rendered as text.
const ValueDelimiter = ", "

// InteractionValue is the value of an interaction: a single string or a list of strings.
// The wire shape (string vs. array) is preserved through Multi.
type InteractionValue struct {
	Values []string
	Multi  bool
}

// SingleValue returns a value that encodes as a JSON string.
func SingleValue(v string) InteractionValue {
	return InteractionValue{Values: []string{v}}
}

// MultiValue returns a value that encodes as a JSON array.
func MultiValue(vs ...string) InteractionValue {
	out := make([]string, len(vs))
	copy(out, vs)
	return InteractionValue{Values: out, Multi: true}
}

func (v InteractionValue) IsZero() bool {
	return len(v.Values) == 0 && !v.Multi
}

func (v InteractionValue) String() string {
	return strings.Join(v.Values, ValueDelimiter)
}

func (v InteractionValue) MarshalJSON() ([]byte, error) {
	if v.Multi {
		if v.Values == nil {
			return []byte("[]"), nil
		}
		return json.Marshal(v.Values)
	}
	if len(v.Values) == 0 {
		return json.Marshal("")
	}
	return json.Marshal(v.Values[0])
}

func (v *InteractionValue) UnmarshalJSON(data []byte) error {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 {
		return errors.New("empty interaction value")
	}
	switch trimmed[0] {
	case '"':
		var s string
		if err := json.Unmarshal(trimmed, &s); err != nil {
			return errors.Wrap(err, "decode interaction value")
		}
		*v = SingleValue(s)
		return nil
	case '[':
		var ss []string
		if err := json.Unmarshal(trimmed, &ss); err != nil {
			return errors.Wrap(err, "decode interaction value list")
		}
		*v = MultiValue(ss...)
		return nil
	default:
		return errors.Errorf("interaction value must be a string or a list of strings, got %s", string(trimmed))
	}
}
