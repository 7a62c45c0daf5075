package blocks

import (
	"encoding/json"
	"fmt"
)

// Rekey renames every block of e whose id is already in used, appending the
// smallest free "-N" suffix. used is updated with all ids of e. It returns the
// old→new mapping of renamed blocks.
//
// The renaming is deterministic for a given used set and envelope.
func Rekey(e *Envelope, used map[string]struct{}) map[string]string {
	if e == nil {
		return nil
	}
	var renamed map[string]string
	for _, b := range e.Blocks {
		if b == nil {
			continue
		}
		id := b.BlockID()
		if _, taken := used[id]; !taken {
			used[id] = struct{}{}
			continue
		}
		next := id
		for n := 2; ; n++ {
			next = fmt.Sprintf("%s-%d", id, n)
			if _, taken := used[next]; !taken {
				break
			}
		}
		setID(b, next)
		used[next] = struct{}{}
		if renamed == nil {
			renamed = map[string]string{}
		}
		renamed[id] = next
	}
	return renamed
}

func setID(b Block, id string) {
	switch v := b.(type) {
	case *Text:
		v.ID = id
	case *ButtonGroup:
		v.ID = id
	case *MultiSelect:
		v.ID = id
	case *InteractionResponse:
		v.ID = id
	case *Unknown:
		v.ID = id
		var m map[string]json.RawMessage
		if err := json.Unmarshal(v.Raw, &m); err == nil {
			idJSON, _ := json.Marshal(id)
			m["id"] = idJSON
			if raw, err := json.Marshal(m); err == nil {
				v.Raw = raw
			}
		}
	}
}
