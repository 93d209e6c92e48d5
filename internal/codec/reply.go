package codec

import (
	"encoding/json"
)

// Outbound message types.
const (
	TypeHello = "hello"
	TypeRole  = "role"
	TypeBusy  = "busy"
)

// Reply is a control-plane message sent to a connection.
type Reply struct {
	Type string `json:"type"`
	Role string `json:"role,omitempty"`
	By   string `json:"by,omitempty"`
}

// HelloReply is the greeting sent on accept, disclosing the initial role.
func HelloReply(role string) Reply {
	return Reply{Type: TypeHello, Role: role}
}

// RoleGrant confirms a role transition.
func RoleGrant(role string) Reply {
	return Reply{Type: TypeRole, Role: role}
}

// BusyReply denies an acquire because another connection is driving.
func BusyReply() Reply {
	return Reply{Type: TypeBusy, By: "driver"}
}

// Encode serializes any outbound value as a single JSON message.
func Encode(v interface{}) ([]byte, error) {
	return json.Marshal(v)
}
