package conversation

import (
	"time"

	"github.com/go-go-golems/blockchat/pkg/blocks"
)

type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

func (r Role) Valid() bool {
	return r == RoleUser || r == RoleAssistant
}

// Turn is one persisted envelope of a session.
//
// CreatedAt is assigned by the store and strictly increases within a session;
// it is the only valid replay order.
type Turn struct {
	ID        string           `json:"id"`
	SessionID string           `json:"sessionId"`
	Role      Role             `json:"role"`
	Envelope  *blocks.Envelope `json:"envelope"`
	CreatedAt time.Time        `json:"createdAt"`
}

// Message is one entry of the linear history handed to a generator.
type Message struct {
	Role Role   `json:"role"`
	Text string `json:"text"`
}
