package server

import "github.com/carrysync/carry/pkg/operation"

// PushRequest is the wire shape of a Push call per spec.md §6.
type PushRequest struct {
	NodeID     string                `json:"nodeId"`
	Operations []operation.Operation `json:"operations"`
}

// RejectedOp describes one operation Push refused to apply.
type RejectedOp struct {
	OpID   string `json:"opId"`
	Reason string `json:"reason"`
	Winner string `json:"winner,omitempty"`
}

// PushResponse is the wire shape of a Push response.
type PushResponse struct {
	Accepted    []string     `json:"accepted"`
	Rejected    []RejectedOp `json:"rejected"`
	ServerClock uint64       `json:"serverClock"`
}

// PullResponse is the wire shape of a Pull response.
type PullResponse struct {
	Operations []operation.Operation `json:"operations"`
	SyncToken  string                `json:"syncToken"`
	HasMore    bool                  `json:"hasMore"`
}
